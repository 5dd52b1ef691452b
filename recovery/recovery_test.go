package recovery_test

import (
	"context"
	"testing"

	"github.com/GunterMueller/cubrid/recovery"
	"github.com/GunterMueller/cubrid/wal"
)

func TestRegistryLookup(t *testing.T) {
	var called []recovery.Index
	apply := func(idx recovery.Index) recovery.ApplyFunc {
		return func(ctx context.Context, rcv *recovery.Rcv) error {
			called = append(called, idx)
			return nil
		}
	}

	b := recovery.NewBuilder()
	b.Register(recovery.IndexPageImage, apply(recovery.IndexPageImage))
	b.Register(recovery.IndexPageWrite, apply(recovery.IndexPageWrite))
	reg := b.Build()

	fn, ok := reg.Lookup(recovery.IndexPageImage)
	if !ok {
		t.Fatal("Lookup(IndexPageImage) got false")
	}
	err := fn(context.Background(), &recovery.Rcv{Lsa: wal.Lsa{PageID: 3, Offset: 8}})
	if err != nil {
		t.Fatal(err)
	}
	if len(called) != 1 || called[0] != recovery.IndexPageImage {
		t.Errorf("called %v want [IndexPageImage]", called)
	}

	if _, ok = reg.Lookup(recovery.IndexPageInit); ok {
		t.Error("Lookup(IndexPageInit) got true for an unregistered index")
	}
	if _, ok = reg.Lookup(recovery.Index(999)); ok {
		t.Error("Lookup(999) got true for an unknown index")
	}
}

func TestRegisterTwice(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("registering the same index twice did not panic")
		}
	}()

	fn := func(ctx context.Context, rcv *recovery.Rcv) error {
		return nil
	}
	b := recovery.NewBuilder()
	b.Register(recovery.IndexExternal, fn)
	b.Register(recovery.IndexExternal, fn)
}

package wal_test

import (
	"testing"

	"github.com/GunterMueller/cubrid/wal"
)

func TestLsaOrder(t *testing.T) {
	cases := []struct {
		lsa1, lsa2 wal.Lsa
		less       bool
	}{
		{wal.Lsa{PageID: 1, Offset: 0}, wal.Lsa{PageID: 2, Offset: 0}, true},
		{wal.Lsa{PageID: 2, Offset: 0}, wal.Lsa{PageID: 1, Offset: 100}, false},
		{wal.Lsa{PageID: 5, Offset: 8}, wal.Lsa{PageID: 5, Offset: 16}, true},
		{wal.Lsa{PageID: 5, Offset: 16}, wal.Lsa{PageID: 5, Offset: 16}, false},
		{wal.Lsa{PageID: -3, Offset: 0}, wal.Lsa{PageID: 0, Offset: 0}, true},
	}

	for _, c := range cases {
		if got := c.lsa1.Less(c.lsa2); got != c.less {
			t.Errorf("%s.Less(%s) got %t want %t", c.lsa1, c.lsa2, got, c.less)
		}
		le := c.less || c.lsa1 == c.lsa2
		if got := c.lsa1.LessEqual(c.lsa2); got != le {
			t.Errorf("%s.LessEqual(%s) got %t want %t", c.lsa1, c.lsa2, got, le)
		}
	}
}

func TestNullLsa(t *testing.T) {
	if !wal.NullLsa.IsNull() {
		t.Error("NullLsa.IsNull() got false")
	}
	if (wal.Lsa{PageID: 0, Offset: 0}).IsNull() {
		t.Error("0|0 IsNull() got true")
	}
	if wal.NullLsa.String() != "null" {
		t.Errorf("NullLsa.String() got %q", wal.NullLsa.String())
	}
}

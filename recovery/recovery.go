// Package recovery defines the registry of redo apply functions. Each log
// record names the function that reapplies it by a small integer recovery
// index; the registry maps indexes to functions. It is populated once at
// startup and read-only afterward.
package recovery

import (
	"context"
	"fmt"

	"github.com/GunterMueller/cubrid/wal"
)

// Index selects the apply function for a record.
type Index int16

const (
	IndexPageImage Index = iota + 1 // full data page after image
	IndexPageWrite                  // partial write at a page offset
	IndexPageInit                   // format a fresh data page
	IndexExternal                   // operation outside database page space
)

// Rcv is everything an apply function gets about one record: where the
// record sits in the log, what page and slot it targets, and its decoded
// payload. Before is the before image, present only for diff record
// variants; Zipped marks a payload stored compressed, to be expanded by the
// apply function's own means.
type Rcv struct {
	Lsa    wal.Lsa
	Type   wal.RecordType
	VolID  int16
	PageID int64
	Offset int16
	Data   []byte
	Before []byte
	Zipped bool
}

// ApplyFunc reapplies one logged operation to persistent state. Failures
// are not retried; an error stops the engine that invoked it.
type ApplyFunc func(ctx context.Context, rcv *Rcv) error

// Registry maps recovery indexes to apply functions. Build one with a
// Builder; a built registry is immutable.
type Registry struct {
	funcs map[Index]ApplyFunc
}

func (reg *Registry) Lookup(idx Index) (ApplyFunc, bool) {
	fn, ok := reg.funcs[idx]
	return fn, ok
}

type Builder struct {
	funcs map[Index]ApplyFunc
}

func NewBuilder() *Builder {
	return &Builder{
		funcs: map[Index]ApplyFunc{},
	}
}

// Register adds an apply function; registering the same index twice is a
// programming error.
func (b *Builder) Register(idx Index, fn ApplyFunc) *Builder {
	if _, ok := b.funcs[idx]; ok {
		panic(fmt.Sprintf("recovery: index %d registered twice", idx))
	}
	b.funcs[idx] = fn
	return b
}

// Build seals the registry. The builder must not be used afterward.
func (b *Builder) Build() *Registry {
	reg := &Registry{funcs: b.funcs}
	b.funcs = nil
	return reg
}

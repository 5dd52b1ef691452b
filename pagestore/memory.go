package pagestore

import (
	"bytes"
	"io"
	"sync"

	"github.com/google/btree"
)

type memoryKV struct {
	mutex sync.RWMutex
	tree  *btree.BTree
}

type keyVal struct {
	key []byte
	val []byte
}

func (kv keyVal) Less(item btree.Item) bool {
	return bytes.Compare(kv.key, (item.(keyVal)).key) < 0
}

// MakeMemoryKV makes an in-memory KV for tests and tools.
func MakeMemoryKV() KV {
	return &memoryKV{
		tree: btree.New(16),
	}
}

func (mkv *memoryKV) Get(key []byte, fn func(val []byte) error) error {
	mkv.mutex.RLock()
	defer mkv.mutex.RUnlock()

	item := mkv.tree.Get(keyVal{key: key})
	if item == nil {
		return io.EOF
	}
	return fn((item.(keyVal)).val)
}

func (mkv *memoryKV) Set(key, val []byte) error {
	mkv.mutex.Lock()
	defer mkv.mutex.Unlock()

	mkv.tree.ReplaceOrInsert(keyVal{
		key: append(make([]byte, 0, len(key)), key...),
		val: append(make([]byte, 0, len(val)), val...),
	})
	return nil
}

func (mkv *memoryKV) Close() error {
	mkv.mutex.Lock()
	defer mkv.mutex.Unlock()

	mkv.tree = btree.New(16)
	return nil
}

// Package pagestore is the backing store the replication engine reads log
// pages from and the data page state its apply functions mutate. Pages are
// kept in a key value store; memory, bbolt, badger, and pebble backends are
// provided behind one KV interface.
package pagestore

import (
	"encoding/binary"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"

	"github.com/GunterMueller/cubrid/wal"
)

// Key space: one byte of namespace followed by the big-endian page
// coordinates. The log header lives under the log page key of the header
// page id.
const (
	logPageTag  = 'l'
	dataPageTag = 'd'
)

// KV is the storage abstraction the page store runs on. Get calls fn with
// the stored value, or returns io.EOF when the key is absent; the value is
// only valid for the duration of fn.
type KV interface {
	Get(key []byte, fn func(val []byte) error) error
	Set(key, val []byte) error
	Close() error
}

// Store keeps log pages, data pages, and the log header.
type Store struct {
	kv     KV
	logger *log.Logger
}

// Open opens a page store on the named backend: memory, bbolt, badger, or
// pebble.
func Open(backend, dataDir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	var kv KV
	var err error
	switch backend {
	case "memory":
		kv = MakeMemoryKV()
	case "bbolt":
		kv, err = MakeBBoltKV(dataDir)
	case "badger":
		kv, err = MakeBadgerKV(dataDir, logger)
	case "pebble":
		kv, err = MakePebbleKV(dataDir, logger)
	default:
		return nil, fmt.Errorf("pagestore: unknown backend: %s", backend)
	}
	if err != nil {
		return nil, err
	}

	return NewStore(kv, logger), nil
}

func NewStore(kv KV, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Store{
		kv:     kv,
		logger: logger,
	}
}

func logPageKey(pageID int64) []byte {
	key := make([]byte, 9)
	key[0] = logPageTag
	binary.BigEndian.PutUint64(key[1:], uint64(pageID))
	return key
}

func dataPageKey(volID int16, pageID int64) []byte {
	key := make([]byte, 11)
	key[0] = dataPageTag
	binary.BigEndian.PutUint16(key[1:], uint16(volID))
	binary.BigEndian.PutUint64(key[3:], uint64(pageID))
	return key
}

// FetchPage retrieves a log page and verifies its checksum and page id.
// The engine's reader depends on this store never returning a structurally
// invalid page.
func (st *Store) FetchPage(pageID int64) ([]byte, error) {
	page := make([]byte, wal.PageSize)
	err := st.kv.Get(logPageKey(pageID),
		func(val []byte) error {
			if len(val) != wal.PageSize {
				return fmt.Errorf("pagestore: log page %d: stored %d bytes", pageID,
					len(val))
			}
			copy(page, val)
			return nil
		})
	if err == io.EOF {
		return nil, fmt.Errorf("pagestore: missing log page %d", pageID)
	} else if err != nil {
		return nil, err
	}

	err = wal.VerifyPage(page, pageID)
	if err != nil {
		return nil, err
	}
	return page, nil
}

// PutPage assembles and stores a log page. This is the log producing side;
// the replication engine only fetches.
func (st *Store) PutPage(pageID int64, firstRecord int32, area []byte) error {
	return st.kv.Set(logPageKey(pageID), wal.BuildPage(pageID, firstRecord, area))
}

// LoadHeader reads and validates the log header from the header page.
func (st *Store) LoadHeader() (*wal.Header, error) {
	var hdr *wal.Header
	err := st.kv.Get(logPageKey(wal.HeaderPageID),
		func(val []byte) error {
			var err error
			hdr, err = wal.DecodeHeader(val)
			return err
		})
	if err == io.EOF {
		return nil, fmt.Errorf("pagestore: missing log header")
	} else if err != nil {
		return nil, err
	}

	if hdr.LogPageSize != wal.PageSize {
		return nil, fmt.Errorf("pagestore: log page size %d, running with %d",
			hdr.LogPageSize, wal.PageSize)
	}
	return hdr, nil
}

func (st *Store) SaveHeader(hdr *wal.Header) error {
	buf := make([]byte, wal.HeaderSize)
	wal.EncodeHeader(buf, hdr)
	return st.kv.Set(logPageKey(wal.HeaderPageID), buf)
}

// ReadDataPage returns a copy of a data page, or io.EOF if the page was
// never written.
func (st *Store) ReadDataPage(volID int16, pageID int64) ([]byte, error) {
	var page []byte
	err := st.kv.Get(dataPageKey(volID, pageID),
		func(val []byte) error {
			page = append(make([]byte, 0, len(val)), val...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (st *Store) WriteDataPage(volID int16, pageID int64, page []byte) error {
	return st.kv.Set(dataPageKey(volID, pageID), page)
}

func (st *Store) Close() error {
	return st.kv.Close()
}

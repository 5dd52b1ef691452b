package pagestore

import (
	"io"
	"os"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"
)

type pebbleKV struct {
	db *pebble.DB
}

func MakePebbleKV(dataDir string, logger *log.Logger) (KV, error) {
	os.MkdirAll(dataDir, 0755)

	db, err := pebble.Open(dataDir, &pebble.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return pebbleKV{
		db: db,
	}, nil
}

func (pkv pebbleKV) Get(key []byte, fn func(val []byte) error) error {
	val, closer, err := pkv.db.Get(key)
	if err == pebble.ErrNotFound {
		return io.EOF
	} else if err != nil {
		return err
	}
	defer closer.Close()

	return fn(val)
}

func (pkv pebbleKV) Set(key, val []byte) error {
	return pkv.db.Set(key, val, pebble.NoSync)
}

func (pkv pebbleKV) Close() error {
	return pkv.db.Close()
}

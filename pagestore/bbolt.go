package pagestore

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var pagesBucket = []byte{'p', 'a', 'g', 'e', 's'}

type bboltKV struct {
	db *bbolt.DB
}

func MakeBBoltKV(dataDir string) (KV, error) {
	db, err := bbolt.Open(filepath.Join(dataDir, "pages.bbolt"), 0644, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(
		func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(pagesBucket)
			return err
		})
	if err != nil {
		db.Close()
		return nil, err
	}

	return bboltKV{
		db: db,
	}, nil
}

func (bkv bboltKV) begin(writable bool) (*bbolt.Tx, *bbolt.Bucket, error) {
	tx, err := bkv.db.Begin(writable)
	if err != nil {
		return nil, nil, fmt.Errorf("bbolt: begin failed: %s", err)
	}
	bkt := tx.Bucket(pagesBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, nil, errors.New("bbolt: missing pages bucket")
	}
	return tx, bkt, nil
}

func (bkv bboltKV) Get(key []byte, fn func(val []byte) error) error {
	tx, bkt, err := bkv.begin(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	val := bkt.Get(key)
	if val == nil {
		return io.EOF
	}
	return fn(val)
}

func (bkv bboltKV) Set(key, val []byte) error {
	tx, bkt, err := bkv.begin(true)
	if err != nil {
		return err
	}

	err = bkt.Put(key, val)
	if err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (bkv bboltKV) Close() error {
	return bkv.db.Close()
}

package prefs

import (
	"strconv"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var prefsBucket = []byte("prefs")

// BoltStore keeps prefs in a single-bucket bbolt database. bbolt
// fsyncs on every committed transaction, which gives each Set the
// durability the checkpoint protocol needs.
type BoltStore struct {
	db *bolt.DB
}

var _ Prefs = (*BoltStore)(nil)

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(prefsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.WithStack(err)
	}

	return &BoltStore{db: db}, nil
}

func (bs *BoltStore) Close() error {
	return bs.db.Close()
}

func (bs *BoltStore) get(key string) (string, error) {
	var value string
	found := false
	err := bs.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(prefsBucket).Get([]byte(key))
		if raw != nil {
			value = string(raw)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", errors.WithStack(err)
	}
	if !found {
		return "", ErrNoKey
	}
	return value, nil
}

func (bs *BoltStore) set(key string, value string) error {
	err := bs.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(prefsBucket).Put([]byte(key), []byte(value))
	})
	return errors.WithStack(err)
}

func (bs *BoltStore) GetInt64(key string) (int64, error) {
	value, err := bs.get(key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return parsed, nil
}

func (bs *BoltStore) SetInt64(key string, value int64) error {
	return bs.set(key, strconv.FormatInt(value, 10))
}

func (bs *BoltStore) GetString(key string) (string, error) {
	return bs.get(key)
}

func (bs *BoltStore) SetString(key string, value string) error {
	return bs.set(key, value)
}

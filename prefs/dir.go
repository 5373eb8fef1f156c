package prefs

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dchest/safefile"
	"github.com/pkg/errors"
)

// DirStore keeps one file per key under a directory. Writes go
// through safefile (write to a temp file, then rename), so a crash
// mid-write never leaves a half-written value behind.
type DirStore struct {
	dir string
}

var _ Prefs = (*DirStore)(nil)

func NewDirStore(dir string) (*DirStore, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &DirStore{dir: dir}, nil
}

func (ds *DirStore) keyPath(key string) string {
	return filepath.Join(ds.dir, key)
}

func (ds *DirStore) get(key string) (string, error) {
	raw, err := ioutil.ReadFile(ds.keyPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoKey
		}
		return "", errors.WithStack(err)
	}
	return string(raw), nil
}

func (ds *DirStore) set(key string, value string) error {
	err := safefile.WriteFile(ds.keyPath(key), []byte(value), 0644)
	return errors.WithStack(err)
}

func (ds *DirStore) GetInt64(key string) (int64, error) {
	value, err := ds.get(key)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, errors.WithStack(err)
	}
	return parsed, nil
}

func (ds *DirStore) SetInt64(key string, value int64) error {
	return ds.set(key, strconv.FormatInt(value, 10))
}

func (ds *DirStore) GetString(key string) (string, error) {
	return ds.get(key)
}

func (ds *DirStore) SetString(key string, value string) error {
	return ds.set(key, value)
}

package store

import (
	"context"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("h5zarr")

// Bolt keeps every key in one bucket of a bbolt database file, so a whole
// hierarchy travels as a single file.
type Bolt struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*Bolt, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding %q", path)
	}
	db, err := bolt.Open(expanded, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bolt database %q", expanded)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating bucket")
	}
	return &Bolt{db: db}, nil
}

// Close closes the database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func (b *Bolt) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		k, v := tx.Bucket(boltBucket).Cursor().Seek([]byte(key))
		if k == nil || string(k) != key {
			return notFound(key)
		}
		// Values are only valid for the life of the transaction.
		value = append([]byte{}, v...)
		return nil
	})
	return value, err
}

func (b *Bolt) Set(_ context.Context, key string, value []byte) error {
	key, err := NormalizeKey(key)
	if err != nil {
		return err
	}
	return errors.Wrapf(b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put([]byte(key), append([]byte{}, value...))
	}), "writing %q", key)
}

func (b *Bolt) Has(_ context.Context, key string) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket(boltBucket).Cursor().Seek([]byte(key))
		ok = k != nil && string(k) == key
		return nil
	})
	return ok, err
}

func (b *Bolt) Delete(_ context.Context, key string) error {
	return errors.Wrapf(b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete([]byte(key))
	}), "deleting %q", key)
}

// ListKeys returns the keys in bbolt's byte order, which is lexicographic.
func (b *Bolt) ListKeys(context.Context) ([]string, error) {
	var keys []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

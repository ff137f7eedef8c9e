// Package store defines the key/value store abstraction that Zarr
// documents are written to and read from, and the backends h5zarr ships
// with: in-memory, directory, bbolt, S3, and a byte-bounded LRU cache that
// wraps any of them.
//
// Keys are slash separated paths such as "group/array/.zarray". Values are
// opaque byte strings. Stores never alias the slices passed to Set or
// returned from Get.
package store

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrKeyNotFound is returned by Get for keys that do not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrReadOnly is returned by Set and Delete on read-only stores.
	ErrReadOnly = errors.New("store is read-only")
)

// Store is the minimal capability every backend provides.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error

	// ListKeys returns every key in lexicographic order.
	ListKeys(ctx context.Context) ([]string, error)
}

// Deleter is implemented by stores that can remove keys. Deleting a
// missing key is not an error.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Haser is implemented by stores that can test for a key without
// reading its value.
type Haser interface {
	Has(ctx context.Context, key string) (bool, error)
}

// Has reports whether key exists in s, using Haser when available.
func Has(ctx context.Context, s Store, key string) (bool, error) {
	if h, ok := s.(Haser); ok {
		return h.Has(ctx, key)
	}
	_, err := s.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case IsNotFound(err):
		return false, nil
	default:
		return false, err
	}
}

// Delete removes key from s. Stores that cannot delete return ErrReadOnly.
func Delete(ctx context.Context, s Store, key string) error {
	d, ok := s.(Deleter)
	if !ok {
		return errors.Wrapf(ErrReadOnly, "deleting %q", key)
	}
	return d.Delete(ctx, key)
}

// Close releases the resources of stores that hold any.
func Close(s Store) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// IsNotFound reports whether err means a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

func notFound(key string) error {
	return errors.Wrapf(ErrKeyNotFound, "%q", key)
}

// NormalizeKey cleans a key and rejects keys that would escape the store
// root.
func NormalizeKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("empty key")
	}
	if strings.ContainsRune(key, '\\') || strings.ContainsRune(key, 0) {
		return "", errors.Errorf("invalid key %q", key)
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" {
		return "", errors.Errorf("invalid key %q", key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", errors.Errorf("key %q escapes the store", key)
		}
	}
	return clean, nil
}

// Prefixed returns a view of s in which every key is stored under prefix.
func Prefixed(s Store, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return s
	}
	return &prefixed{base: s, prefix: prefix + "/"}
}

type prefixed struct {
	base   Store
	prefix string
}

func (p *prefixed) key(key string) (string, error) {
	clean, err := NormalizeKey(key)
	if err != nil {
		return "", err
	}
	return p.prefix + clean, nil
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := p.key(key)
	if err != nil {
		return nil, err
	}
	return p.base.Get(ctx, k)
}

func (p *prefixed) Set(ctx context.Context, key string, value []byte) error {
	k, err := p.key(key)
	if err != nil {
		return err
	}
	return p.base.Set(ctx, k, value)
}

func (p *prefixed) Has(ctx context.Context, key string) (bool, error) {
	k, err := p.key(key)
	if err != nil {
		return false, err
	}
	return Has(ctx, p.base, k)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	k, err := p.key(key)
	if err != nil {
		return err
	}
	return Delete(ctx, p.base, k)
}

func (p *prefixed) ListKeys(ctx context.Context) ([]string, error) {
	keys, err := p.base.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, k := range keys {
		if strings.HasPrefix(k, p.prefix) {
			out = append(out, strings.TrimPrefix(k, p.prefix))
		}
	}
	return out, nil
}

// ReadOnly returns a view of s that refuses writes.
func ReadOnly(s Store) Store {
	return readOnly{base: s}
}

type readOnly struct {
	base Store
}

func (r readOnly) Get(ctx context.Context, key string) ([]byte, error) {
	return r.base.Get(ctx, key)
}

func (r readOnly) Set(_ context.Context, key string, _ []byte) error {
	return errors.Wrapf(ErrReadOnly, "writing %q", key)
}

func (r readOnly) Has(ctx context.Context, key string) (bool, error) {
	return Has(ctx, r.base, key)
}

func (r readOnly) ListKeys(ctx context.Context) ([]string, error) {
	return r.base.ListKeys(ctx)
}

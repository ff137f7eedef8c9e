package store

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// Dir stores each key as a file below a root directory, the layout
// zarr-python's DirectoryStore uses.
type Dir struct {
	root string
}

// NewDir returns a store rooted at root, creating the directory if needed.
// A leading ~ is expanded to the user's home directory.
func NewDir(root string) (*Dir, error) {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding %q", root)
	}
	if err := os.MkdirAll(expanded, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating store directory %q", expanded)
	}
	return &Dir{root: expanded}, nil
}

// Root returns the directory the store writes to.
func (d *Dir) Root() string {
	return d.root
}

func (d *Dir) path(key string) (string, error) {
	clean, err := NormalizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(clean)), nil
}

func (d *Dir) Get(_ context.Context, key string) ([]byte, error) {
	p, err := d.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(key)
		}
		return nil, errors.Wrapf(err, "reading %q", key)
	}
	return data, nil
}

// Set writes the value to a temporary file and renames it into place so
// readers never observe a partial value.
func (d *Dir) Set(_ context.Context, key string, value []byte) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return errors.Wrapf(err, "creating directory for %q", key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "writing %q", key)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "writing %q", key)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "writing %q", key)
	}
	return errors.Wrapf(os.Rename(tmp.Name(), p), "writing %q", key)
}

func (d *Dir) Has(_ context.Context, key string) (bool, error) {
	p, err := d.path(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(p)
	switch {
	case err == nil:
		return info.Mode().IsRegular(), nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, errors.Wrapf(err, "checking %q", key)
	}
}

func (d *Dir) Delete(_ context.Context, key string) error {
	p, err := d.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "deleting %q", key)
	}
	return nil
}

func (d *Dir) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(d.root, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(d.root, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "listing %q", d.root)
	}
	sort.Strings(keys)
	return keys, nil
}

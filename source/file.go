package source

import (
	"context"
	"io"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// File reads ranges of a local file.
type File struct {
	f    *os.File
	path string
	size int64
}

// OpenFile opens the file at path. A leading ~ is expanded.
func OpenFile(path string) (*File, error) {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, errors.Wrapf(err, "expanding %q", path)
	}
	f, err := os.Open(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", expanded)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat %q", expanded)
	}
	return &File{f: f, path: expanded, size: info.Size()}, nil
}

func (s *File) ReadRange(ctx context.Context, offset, length int64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkRange(offset, length, s.size); err != nil {
		return nil, errors.WithMessage(err, s.path)
	}
	buf := make([]byte, length)
	if _, err := s.f.ReadAt(buf, offset); err != nil && !(errors.Is(err, io.EOF) && length == 0) {
		return nil, errors.Wrapf(err, "reading %s", s.path)
	}
	return buf, nil
}

func (s *File) Size(context.Context) (int64, error) {
	return s.size, nil
}

func (s *File) URI() string {
	return s.path
}

func (s *File) Close() error {
	return s.f.Close()
}

package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
)

// Zlib is the numcodecs zlib codec (RFC 1950 stream), which is also the
// byte format of the HDF5 deflate filter.
type Zlib struct {
	Level int
}

func newZlib(cfg Config) (Codec, error) {
	return NewZlib(cfg.Int("level", 1)), nil
}

// NewZlib returns a zlib codec at the given level (clamped to 0..9).
func NewZlib(level int) *Zlib {
	return &Zlib{Level: clampLevel(level, 0, 9)}
}

func (z *Zlib) ID() string { return ZlibID }

func (z *Zlib) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := zlib.NewWriterLevel(&buf, z.Level)
	if err != nil {
		return nil, errors.Wrap(err, "creating zlib writer")
	}
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "zlib compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "zlib compress")
	}
	return buf.Bytes(), nil
}

func (z *Zlib) Decode(src []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(err, "zlib reader")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "zlib decompress")
	}
	return out, nil
}

// GZip is the numcodecs gzip codec (RFC 1952 stream).
type GZip struct {
	Level int
}

func newGZip(cfg Config) (Codec, error) {
	return &GZip{Level: clampLevel(cfg.Int("level", 1), 0, 9)}, nil
}

func (g *GZip) ID() string { return GZipID }

func (g *GZip) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := pgzip.NewWriterLevel(&buf, g.Level)
	if err != nil {
		return nil, errors.Wrap(err, "creating gzip writer")
	}
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "gzip compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip compress")
	}
	return buf.Bytes(), nil
}

func (g *GZip) Decode(src []byte) ([]byte, error) {
	r, err := pgzip.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, errors.Wrap(err, "gzip reader")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "gzip decompress")
	}
	return out, nil
}

func clampLevel(level, lo, hi int) int {
	if level < lo {
		return lo
	}
	if level > hi {
		return hi
	}
	return level
}

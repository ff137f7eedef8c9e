package codec

import (
	"bytes"
	"io"

	"github.com/dsnet/compress/bzip2"
	"github.com/pkg/errors"
)

// BZ2 is the numcodecs bz2 codec; the HDF5 bzip2 filter (307) stores the
// same stream.
type BZ2 struct {
	Level int
}

func newBZ2(cfg Config) (Codec, error) {
	return NewBZ2(cfg.Int("level", 9)), nil
}

// NewBZ2 returns a bz2 codec at the given block size level (1..9).
func NewBZ2(level int) *BZ2 {
	return &BZ2{Level: clampLevel(level, 1, 9)}
}

func (b *BZ2) ID() string { return BZ2ID }

func (b *BZ2) Encode(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := bzip2.NewWriter(&buf, &bzip2.WriterConfig{Level: b.Level})
	if err != nil {
		return nil, errors.Wrap(err, "creating bzip2 writer")
	}
	if _, err := w.Write(src); err != nil {
		return nil, errors.Wrap(err, "bzip2 compress")
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, "bzip2 compress")
	}
	return buf.Bytes(), nil
}

func (b *BZ2) Decode(src []byte) ([]byte, error) {
	r, err := bzip2.NewReader(bytes.NewReader(src), nil)
	if err != nil {
		return nil, errors.Wrap(err, "bzip2 reader")
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "bzip2 decompress")
	}
	return out, nil
}

package codec

import (
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// Zstd is the numcodecs zstd codec; the HDF5 zstd filter (32015) stores a
// single zstd frame per chunk.
type Zstd struct {
	Level int
}

func newZstd(cfg Config) (Codec, error) {
	return NewZstd(cfg.Int("level", 1)), nil
}

// NewZstd returns a zstd codec at the given zstd level.
func NewZstd(level int) *Zstd {
	return &Zstd{Level: level}
}

func (z *Zstd) ID() string { return ZstdID }

func (z *Zstd) Encode(src []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(z.Level)),
		zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd encoder")
	}
	defer enc.Close()
	return enc.EncodeAll(src, make([]byte, 0, len(src))), nil
}

func (z *Zstd) Decode(src []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd decoder")
	}
	defer dec.Close()

	out, err := dec.DecodeAll(src, nil)
	if err != nil {
		return nil, errors.Wrap(err, "zstd decompress")
	}
	return out, nil
}

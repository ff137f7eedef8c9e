package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"

	binpkg "github.com/robert-malhotra/h5zarr/internal/binary"
)

// Shuffle is the numcodecs shuffle filter. Its byte layout is identical
// to the HDF5 shuffle filter: byte j of every element is grouped together.
type Shuffle struct {
	ElementSize int
}

func newShuffle(cfg Config) (Codec, error) {
	return NewShuffle(cfg.Int("elementsize", 4)), nil
}

// NewShuffle returns a shuffle filter for elements of size bytes.
func NewShuffle(size int) *Shuffle {
	if size < 1 {
		size = 1
	}
	return &Shuffle{ElementSize: size}
}

func (s *Shuffle) ID() string { return ShuffleID }

func (s *Shuffle) Encode(src []byte) ([]byte, error) {
	n := len(src) / s.ElementSize
	if s.ElementSize <= 1 || n == 0 {
		return src, nil
	}
	out := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for j := 0; j < s.ElementSize; j++ {
			out[j*n+i] = src[i*s.ElementSize+j]
		}
	}
	// Trailing bytes that do not form a whole element are left in place.
	copy(out[n*s.ElementSize:], src[n*s.ElementSize:])
	return out, nil
}

func (s *Shuffle) Decode(src []byte) ([]byte, error) {
	n := len(src) / s.ElementSize
	if s.ElementSize <= 1 || n == 0 {
		return src, nil
	}
	out := make([]byte, len(src))
	for i := 0; i < n; i++ {
		for j := 0; j < s.ElementSize; j++ {
			out[i*s.ElementSize+j] = src[j*n+i]
		}
	}
	copy(out[n*s.ElementSize:], src[n*s.ElementSize:])
	return out, nil
}

// Fletcher32 is the numcodecs fletcher32 filter: the HDF5 Fletcher-32
// checksum of the data appended as 4 little-endian bytes.
type Fletcher32 struct{}

func newFletcher32(Config) (Codec, error) { return Fletcher32{}, nil }

func (Fletcher32) ID() string { return Fletcher32ID }

func (Fletcher32) Encode(src []byte) ([]byte, error) {
	out := make([]byte, len(src)+4)
	copy(out, src)
	binary.LittleEndian.PutUint32(out[len(src):], binpkg.Fletcher32(src))
	return out, nil
}

func (Fletcher32) Decode(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, errors.New("fletcher32: input too short for checksum")
	}
	data := src[:len(src)-4]
	stored := binary.LittleEndian.Uint32(src[len(src)-4:])
	if computed := binpkg.Fletcher32(data); computed != stored {
		return nil, errors.Errorf("fletcher32: checksum mismatch (stored=0x%08x, computed=0x%08x)", stored, computed)
	}
	return data, nil
}

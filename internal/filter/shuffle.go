package filter

import (
	"github.com/robert-malhotra/h5zarr/codec"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// Shuffle implements the byte shuffle filter.
// This filter rearranges bytes to improve compression by grouping
// similar byte positions together (e.g., all MSBs, then all next bytes, etc.).
type Shuffle struct {
	s *codec.Shuffle
}

// NewShuffle creates a new shuffle filter.
// Client data: [0] = element size in bytes
func NewShuffle(clientData []uint32) *Shuffle {
	elemSize := 1
	if len(clientData) > 0 && clientData[0] > 0 {
		elemSize = int(clientData[0])
	}
	return &Shuffle{s: codec.NewShuffle(elemSize)}
}

func (f *Shuffle) ID() uint16 {
	return message.FilterShuffle
}

// Decode reverses the shuffle transformation.
// Input is organized as: [all byte 0s][all byte 1s]...[all byte N-1s]
// Output is organized as: [elem0][elem1]...[elemM]
func (f *Shuffle) Decode(input []byte) ([]byte, error) {
	return f.s.Decode(input)
}

// Encode groups byte j of every element together.
func (f *Shuffle) Encode(input []byte) ([]byte, error) {
	return f.s.Encode(input)
}

// ElementSize returns the element size the filter shuffles by.
func (f *Shuffle) ElementSize() int {
	return f.s.ElementSize
}

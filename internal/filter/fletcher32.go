package filter

import (
	"github.com/robert-malhotra/h5zarr/codec"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// Fletcher32Filter implements the Fletcher-32 checksum filter.
// This filter validates data integrity by checking a checksum
// appended to the data.
type Fletcher32Filter struct{}

// NewFletcher32 creates a new Fletcher-32 filter.
func NewFletcher32(clientData []uint32) *Fletcher32Filter {
	return &Fletcher32Filter{}
}

func (f *Fletcher32Filter) ID() uint16 {
	return message.FilterFletcher32
}

// Decode verifies the Fletcher-32 checksum and returns the data without it.
// The checksum is stored as the last 4 bytes of the input.
func (f *Fletcher32Filter) Decode(input []byte) ([]byte, error) {
	return codec.Fletcher32{}.Decode(input)
}

// Encode appends the Fletcher-32 checksum.
func (f *Fletcher32Filter) Encode(input []byte) ([]byte, error) {
	return codec.Fletcher32{}.Encode(input)
}

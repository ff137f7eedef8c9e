package filter

import (
	"github.com/robert-malhotra/h5zarr/codec"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// Deflate implements the DEFLATE filter (zlib stream).
type Deflate struct {
	level int
	z     *codec.Zlib
}

// NewDeflate creates a new DEFLATE filter.
// Client data: [0] = compression level (0-9, or default if empty)
func NewDeflate(clientData []uint32) *Deflate {
	level := 6 // Default compression level
	if len(clientData) > 0 {
		level = int(clientData[0])
	}
	return &Deflate{level: level, z: codec.NewZlib(level)}
}

func (f *Deflate) ID() uint16 {
	return message.FilterDeflate
}

// Level returns the configured compression level.
func (f *Deflate) Level() int {
	return f.level
}

func (f *Deflate) Decode(input []byte) ([]byte, error) {
	return f.z.Decode(input)
}

func (f *Deflate) Encode(input []byte) ([]byte, error) {
	return f.z.Encode(input)
}

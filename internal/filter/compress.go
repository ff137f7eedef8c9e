package filter

import (
	"github.com/robert-malhotra/h5zarr/codec"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// BZip2 implements the registered bzip2 filter (ID 307).
// Client data: [0] = block size level (1-9)
type BZip2 struct {
	c *codec.BZ2
}

// NewBZip2 creates a new bzip2 filter.
func NewBZip2(clientData []uint32) *BZip2 {
	level := 9
	if len(clientData) > 0 {
		level = int(clientData[0])
	}
	return &BZip2{c: codec.NewBZ2(level)}
}

func (f *BZip2) ID() uint16 { return message.FilterBZIP2 }

// Level returns the configured block size level.
func (f *BZip2) Level() int { return f.c.Level }

func (f *BZip2) Decode(input []byte) ([]byte, error) { return f.c.Decode(input) }

func (f *BZip2) Encode(input []byte) ([]byte, error) { return f.c.Encode(input) }

// LZ4 implements the registered LZ4 filter (ID 32004).
// Client data: [0] = block size in bytes (0 for the default)
type LZ4 struct {
	c *codec.LZ4H5
}

// NewLZ4 creates a new LZ4 filter.
func NewLZ4(clientData []uint32) *LZ4 {
	c := &codec.LZ4H5{}
	if len(clientData) > 0 {
		c.BlockSize = int(clientData[0])
	}
	return &LZ4{c: c}
}

func (f *LZ4) ID() uint16 { return message.FilterLZ4 }

func (f *LZ4) Decode(input []byte) ([]byte, error) { return f.c.Decode(input) }

func (f *LZ4) Encode(input []byte) ([]byte, error) { return f.c.Encode(input) }

// Zstd implements the registered Zstandard filter (ID 32015).
// Client data: [0] = compression level
type Zstd struct {
	c *codec.Zstd
}

// NewZstd creates a new Zstandard filter.
func NewZstd(clientData []uint32) *Zstd {
	level := 3
	if len(clientData) > 0 {
		level = int(int32(clientData[0]))
	}
	return &Zstd{c: codec.NewZstd(level)}
}

func (f *Zstd) ID() uint16 { return message.FilterZstd }

// Level returns the configured compression level.
func (f *Zstd) Level() int { return f.c.Level }

func (f *Zstd) Decode(input []byte) ([]byte, error) { return f.c.Decode(input) }

func (f *Zstd) Encode(input []byte) ([]byte, error) { return f.c.Encode(input) }

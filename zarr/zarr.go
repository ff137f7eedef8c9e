// Package zarr models the Zarr format version 2 metadata documents that
// h5zarr produces: array (.zarray), group (.zgroup) and attribute (.zattrs)
// documents, the per-array chunk manifest (.zchunkstore) and the
// consolidated metadata document (.zmetadata).
//
// All documents are encoded with [Marshal], which produces canonical JSON:
// object keys are sorted at every level, output is indented with two
// spaces and ends with a newline. Encoding the same value twice always
// yields the same bytes.
package zarr

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/codec"
)

// Format is the Zarr format version of every document in this package.
const Format = 2

// Well-known keys.
const (
	GroupKey       = ".zgroup"
	ArrayKey       = ".zarray"
	AttrsKey       = ".zattrs"
	ManifestKey    = ".zchunkstore"
	MetadataKey    = ".zmetadata"
	DefaultSep     = "."
	OrderC         = "C"
	OrderF         = "F"
	consolidatedV1 = 1
)

// GroupMeta is the content of a .zgroup document.
type GroupMeta struct {
	ZarrFormat int `json:"zarr_format"`
}

// NewGroupMeta returns the group document for the current format.
func NewGroupMeta() GroupMeta {
	return GroupMeta{ZarrFormat: Format}
}

// ArrayMeta is the content of a .zarray document.
type ArrayMeta struct {
	ZarrFormat         int            `json:"zarr_format"`
	Shape              []uint64       `json:"shape"`
	Chunks             []uint64       `json:"chunks"`
	DType              DType          `json:"dtype"`
	Compressor         codec.Config   `json:"compressor"`
	FillValue          interface{}    `json:"fill_value"`
	Order              string         `json:"order"`
	Filters            []codec.Config `json:"filters"`
	DimensionSeparator string         `json:"dimension_separator,omitempty"`
}

// Validate checks the internal consistency of the array document.
func (m *ArrayMeta) Validate() error {
	if m.ZarrFormat != Format {
		return errors.Errorf("unsupported zarr_format %d", m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return errors.Errorf("shape has %d dimensions but chunks has %d", len(m.Shape), len(m.Chunks))
	}
	for i, c := range m.Chunks {
		if c == 0 {
			return errors.Errorf("chunk dimension %d is zero", i)
		}
	}
	if m.Order != OrderC && m.Order != OrderF {
		return errors.Errorf("invalid order %q", m.Order)
	}
	if m.DType.IsZero() {
		return errors.New("missing dtype")
	}
	if sep := m.Separator(); sep != "." && sep != "/" {
		return errors.Errorf("invalid dimension_separator %q", sep)
	}
	return nil
}

// Separator returns the dimension separator of chunk keys.
func (m *ArrayMeta) Separator() string {
	if m.DimensionSeparator == "" {
		return DefaultSep
	}
	return m.DimensionSeparator
}

// Grid returns the number of chunks along each dimension.
func (m *ArrayMeta) Grid() []uint64 {
	grid := make([]uint64, len(m.Shape))
	for i := range m.Shape {
		grid[i] = (m.Shape[i] + m.Chunks[i] - 1) / m.Chunks[i]
	}
	return grid
}

// NumChunks returns the total number of chunks in the grid. A rank 0 array
// has one chunk.
func (m *ArrayMeta) NumChunks() uint64 {
	n := uint64(1)
	for _, g := range m.Grid() {
		n *= g
	}
	return n
}

// ChunkElements returns the number of elements in one full chunk.
func (m *ArrayMeta) ChunkElements() uint64 {
	n := uint64(1)
	for _, c := range m.Chunks {
		n *= c
	}
	return n
}

// ChunkBytes returns the decoded size of one full chunk, or 0 for object
// arrays.
func (m *ArrayMeta) ChunkBytes() uint64 {
	return m.ChunkElements() * uint64(m.DType.ItemSize())
}

// ChunkKey returns the key of the chunk at grid index idx.
func (m *ArrayMeta) ChunkKey(idx []uint64) string {
	return ChunkKey(idx, m.Separator())
}

// Key joins a node path and a document name into a store key. The root
// path is "".
func Key(path, name string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return name
	}
	if name == "" {
		return path
	}
	return path + "/" + name
}

// SplitKey splits a store key into node path and document name.
func SplitKey(key string) (path, name string) {
	i := strings.LastIndexByte(key, '/')
	if i < 0 {
		return "", key
	}
	return key[:i], key[i+1:]
}

package message

import (
	"encoding/binary"
	"fmt"

	binpkg "github.com/robert-malhotra/h5zarr/internal/binary"
)

// LayoutClass represents the storage layout class.
type LayoutClass uint8

const (
	LayoutCompact    LayoutClass = 0 // Data stored in object header
	LayoutContiguous LayoutClass = 1 // Data in single contiguous block
	LayoutChunked    LayoutClass = 2 // Data in indexed chunks
	LayoutVirtual    LayoutClass = 3 // Virtual dataset (v4+)
)

// String returns the layout class name.
func (c LayoutClass) String() string {
	switch c {
	case LayoutCompact:
		return "compact"
	case LayoutContiguous:
		return "contiguous"
	case LayoutChunked:
		return "chunked"
	case LayoutVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("layout(%d)", uint8(c))
	}
}

// ChunkIndexType represents the type of chunk index used in v4 layouts.
// Layouts before v4 always use a v1 B-tree.
type ChunkIndexType uint8

const (
	ChunkIndexBTreeV1         ChunkIndexType = 0 // v1 B-tree (layout v1-v3)
	ChunkIndexSingleChunk     ChunkIndexType = 1 // Single chunk (no index needed)
	ChunkIndexImplicit        ChunkIndexType = 2 // Implicit (contiguous chunks)
	ChunkIndexFixedArray      ChunkIndexType = 3 // Fixed array
	ChunkIndexExtensibleArray ChunkIndexType = 4 // Extensible array
	ChunkIndexBTreeV2         ChunkIndexType = 5 // B-tree v2
)

// String returns the chunk index type name.
func (t ChunkIndexType) String() string {
	switch t {
	case ChunkIndexBTreeV1:
		return "btree-v1"
	case ChunkIndexSingleChunk:
		return "single"
	case ChunkIndexImplicit:
		return "implicit"
	case ChunkIndexFixedArray:
		return "fixed-array"
	case ChunkIndexExtensibleArray:
		return "extensible-array"
	case ChunkIndexBTreeV2:
		return "btree-v2"
	default:
		return fmt.Sprintf("index(%d)", uint8(t))
	}
}

// Chunked layout flags (v4).
const (
	LayoutFlagDontFilterPartialBound uint8 = 0x01
	LayoutFlagSingleIndexWithFilter  uint8 = 0x02
)

// DataLayout represents a data layout message (type 0x0008).
type DataLayout struct {
	Version uint8
	Class   LayoutClass

	// Compact layout: data is stored directly
	CompactData []byte

	// Contiguous layout
	Address uint64 // Address of data
	Size    uint64 // Size of data in bytes

	// Chunked layout
	ChunkDims      []uint32       // Size of each chunk dimension, element size last
	ChunkIndexAddr uint64         // Address of B-tree, chunk index, or single chunk
	ChunkIndexType ChunkIndexType // Type of chunk index (v4 only)

	// Chunked layout v4 additional fields
	ChunkFlags         uint8
	DimensionSizeBytes uint8 // Size of each dimension entry

	// Single chunk with filters (v4)
	FilteredChunkSize uint64
	SingleFilterMask  uint32

	// Fixed array parameters (v4)
	PageBits uint8

	// Extensible array parameters (v4)
	MaxBits            uint8
	IndexElements      uint8
	MinPointers        uint8
	MinElements        uint8
	ExtensiblePageBits uint8

	// v2 B-tree parameters (v4)
	NodeSize     uint32
	SplitPercent uint8
	MergePercent uint8
}

func (m *DataLayout) Type() Type { return TypeDataLayout }

// HasFilteredSingleChunk reports whether a single-chunk index carries
// the filtered size and mask of its chunk.
func (m *DataLayout) HasFilteredSingleChunk() bool {
	return m.ChunkIndexType == ChunkIndexSingleChunk && m.ChunkFlags&LayoutFlagSingleIndexWithFilter != 0
}

func parseDataLayout(data []byte, r *binpkg.Reader) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("data layout message too short")
	}

	layout := &DataLayout{
		Version: data[0],
	}

	switch layout.Version {
	case 1, 2:
		return parseDataLayoutV1V2(data, r, layout)
	case 3:
		return parseDataLayoutV3(data, r, layout)
	case 4:
		return parseDataLayoutV4(data, r, layout)
	default:
		return nil, fmt.Errorf("unsupported data layout version: %d", layout.Version)
	}
}

func parseDataLayoutV1V2(data []byte, r *binpkg.Reader, layout *DataLayout) (*DataLayout, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("data layout v1/v2 message too short")
	}

	ndims := int(data[1])
	layout.Class = LayoutClass(data[2])
	// data[3] is reserved

	offset := 4

	switch layout.Class {
	case LayoutCompact:
		if offset+4 > len(data) {
			return nil, fmt.Errorf("compact layout truncated")
		}
		size := binary.LittleEndian.Uint32(data[offset:])
		offset += 4
		if offset+int(size) > len(data) {
			return nil, fmt.Errorf("compact data truncated")
		}
		layout.CompactData = make([]byte, size)
		copy(layout.CompactData, data[offset:offset+int(size)])

	case LayoutContiguous:
		offsetSize := r.OffsetSize()
		lengthSize := r.LengthSize()
		if offset+offsetSize+lengthSize > len(data) {
			return nil, fmt.Errorf("contiguous layout truncated")
		}
		layout.Address = decodeUint(data[offset:], offsetSize, r.ByteOrder())
		offset += offsetSize
		layout.Size = decodeUint(data[offset:], lengthSize, r.ByteOrder())

	case LayoutChunked:
		offsetSize := r.OffsetSize()
		if offset+offsetSize > len(data) {
			return nil, fmt.Errorf("chunked layout truncated")
		}
		layout.ChunkIndexAddr = decodeUint(data[offset:], offsetSize, r.ByteOrder())
		offset += offsetSize

		// Parse chunk dimensions (ndims * 4 bytes each)
		layout.ChunkDims = make([]uint32, ndims)
		for i := 0; i < ndims && offset+4 <= len(data); i++ {
			layout.ChunkDims[i] = binary.LittleEndian.Uint32(data[offset:])
			offset += 4
		}
	}

	return layout, nil
}

func parseDataLayoutV3(data []byte, r *binpkg.Reader, layout *DataLayout) (*DataLayout, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("data layout v%d message too short", layout.Version)
	}

	layout.Class = LayoutClass(data[1])
	offset := 2

	switch layout.Class {
	case LayoutCompact:
		if offset+2 > len(data) {
			return nil, fmt.Errorf("compact layout v3 truncated")
		}
		size := binary.LittleEndian.Uint16(data[offset:])
		offset += 2
		if offset+int(size) > len(data) {
			return nil, fmt.Errorf("compact data v3 truncated")
		}
		layout.CompactData = make([]byte, size)
		copy(layout.CompactData, data[offset:offset+int(size)])

	case LayoutContiguous:
		offsetSize := r.OffsetSize()
		lengthSize := r.LengthSize()
		if offset+offsetSize+lengthSize > len(data) {
			return nil, fmt.Errorf("contiguous layout v3 truncated")
		}
		layout.Address = decodeUint(data[offset:], offsetSize, r.ByteOrder())
		offset += offsetSize
		layout.Size = decodeUint(data[offset:], lengthSize, r.ByteOrder())

	case LayoutChunked:
		if layout.Version >= 4 {
			return parseChunkedV4(data[offset:], r, layout)
		}

		// Dimensionality, v1 B-tree address, then 4-byte dimension sizes.
		offsetSize := r.OffsetSize()
		if offset+1+offsetSize > len(data) {
			return nil, fmt.Errorf("chunked layout v3 truncated")
		}
		ndims := int(data[offset])
		offset++
		layout.ChunkIndexAddr = decodeUint(data[offset:], offsetSize, r.ByteOrder())
		offset += offsetSize
		if offset+4*ndims > len(data) {
			return nil, fmt.Errorf("chunked layout v3 dimensions truncated")
		}
		layout.ChunkIndexType = ChunkIndexBTreeV1
		layout.DimensionSizeBytes = 4
		layout.ChunkDims = make([]uint32, ndims)
		for i := 0; i < ndims; i++ {
			layout.ChunkDims[i] = binary.LittleEndian.Uint32(data[offset:])
			offset += 4
		}

	case LayoutVirtual:
		// Virtual datasets are recognized but their mappings are not parsed.

	default:
		return nil, fmt.Errorf("unknown layout class: %d", layout.Class)
	}

	return layout, nil
}

func parseDataLayoutV4(data []byte, r *binpkg.Reader, layout *DataLayout) (*DataLayout, error) {
	return parseDataLayoutV3(data, r, layout)
}

// parseChunkedV4 parses the chunked-class body of a v4 layout message:
// flags, dimensionality, encoded dimension size, dimensions, index type,
// index parameters and the index address.
func parseChunkedV4(data []byte, r *binpkg.Reader, layout *DataLayout) (*DataLayout, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("chunked layout v4 truncated")
	}
	layout.ChunkFlags = data[0]
	ndims := int(data[1])
	layout.DimensionSizeBytes = data[2]
	offset := 3

	dimSize := int(layout.DimensionSizeBytes)
	if dimSize < 1 || dimSize > 8 {
		return nil, fmt.Errorf("invalid chunk dimension size encoding: %d", dimSize)
	}
	if offset+ndims*dimSize+1 > len(data) {
		return nil, fmt.Errorf("chunked layout v4 dimensions truncated")
	}
	layout.ChunkDims = make([]uint32, ndims)
	for i := 0; i < ndims; i++ {
		layout.ChunkDims[i] = uint32(decodeUint(data[offset:], dimSize, r.ByteOrder()))
		offset += dimSize
	}

	layout.ChunkIndexType = ChunkIndexType(data[offset])
	offset++

	need := func(n int) error {
		if offset+n > len(data) {
			return fmt.Errorf("chunked layout v4 %s parameters truncated", layout.ChunkIndexType)
		}
		return nil
	}

	switch layout.ChunkIndexType {
	case ChunkIndexSingleChunk:
		if layout.ChunkFlags&LayoutFlagSingleIndexWithFilter != 0 {
			lengthSize := r.LengthSize()
			if err := need(lengthSize + 4); err != nil {
				return nil, err
			}
			layout.FilteredChunkSize = decodeUint(data[offset:], lengthSize, r.ByteOrder())
			offset += lengthSize
			layout.SingleFilterMask = binary.LittleEndian.Uint32(data[offset:])
			offset += 4
		}
	case ChunkIndexImplicit:
	case ChunkIndexFixedArray:
		if err := need(1); err != nil {
			return nil, err
		}
		layout.PageBits = data[offset]
		offset++
	case ChunkIndexExtensibleArray:
		if err := need(5); err != nil {
			return nil, err
		}
		layout.MaxBits = data[offset]
		layout.IndexElements = data[offset+1]
		layout.MinPointers = data[offset+2]
		layout.MinElements = data[offset+3]
		layout.ExtensiblePageBits = data[offset+4]
		offset += 5
	case ChunkIndexBTreeV2:
		if err := need(6); err != nil {
			return nil, err
		}
		layout.NodeSize = binary.LittleEndian.Uint32(data[offset:])
		layout.SplitPercent = data[offset+4]
		layout.MergePercent = data[offset+5]
		offset += 6
	default:
		return nil, fmt.Errorf("unknown chunk index type: %d", layout.ChunkIndexType)
	}

	offsetSize := r.OffsetSize()
	if err := need(offsetSize); err != nil {
		return nil, err
	}
	layout.ChunkIndexAddr = decodeUint(data[offset:], offsetSize, r.ByteOrder())

	return layout, nil
}

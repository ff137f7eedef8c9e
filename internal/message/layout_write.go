package message

import (
	"github.com/robert-malhotra/h5zarr/internal/binary"
)

// Serialize writes the DataLayout to the writer.
// Uses version 3/4 format for modern compatibility.
func (m *DataLayout) Serialize(w *binary.Writer) error {
	// We use version 4 for chunked with index type, version 3 otherwise
	version := m.Version
	if version == 0 {
		if m.Class == LayoutChunked {
			version = 4
		} else {
			version = 3
		}
	}

	if err := w.WriteUint8(version); err != nil {
		return err
	}

	if err := w.WriteUint8(uint8(m.Class)); err != nil {
		return err
	}

	switch m.Class {
	case LayoutCompact:
		// Version 3: 2-byte size
		if err := w.WriteUint16(uint16(len(m.CompactData))); err != nil {
			return err
		}
		if err := w.WriteBytes(m.CompactData); err != nil {
			return err
		}

	case LayoutContiguous:
		// Address + size
		if err := w.WriteOffset(m.Address); err != nil {
			return err
		}
		if err := w.WriteLength(m.Size); err != nil {
			return err
		}

	case LayoutChunked:
		if version < 4 {
			return m.serializeChunkedV3(w)
		}
		if err := w.WriteUint8(m.ChunkFlags); err != nil {
			return err
		}

		// Number of dimensions (including element size as extra dimension)
		ndims := uint8(len(m.ChunkDims))
		if err := w.WriteUint8(ndims); err != nil {
			return err
		}

		dimSizeBytes := m.DimensionSizeBytes
		if dimSizeBytes == 0 {
			dimSizeBytes = 4
		}
		if err := w.WriteUint8(dimSizeBytes); err != nil {
			return err
		}

		for _, dim := range m.ChunkDims {
			if err := w.WriteUintN(uint64(dim), int(dimSizeBytes)); err != nil {
				return err
			}
		}

		if err := w.WriteUint8(uint8(m.ChunkIndexType)); err != nil {
			return err
		}

		switch m.ChunkIndexType {
		case ChunkIndexSingleChunk:
			if m.ChunkFlags&LayoutFlagSingleIndexWithFilter != 0 {
				if err := w.WriteLength(m.FilteredChunkSize); err != nil {
					return err
				}
				if err := w.WriteUint32(m.SingleFilterMask); err != nil {
					return err
				}
			}
		case ChunkIndexFixedArray:
			// Must match the page bits stored in the FAHD header.
			if err := w.WriteUint8(m.PageBits); err != nil {
				return err
			}
		case ChunkIndexExtensibleArray:
			for _, b := range []uint8{m.MaxBits, m.IndexElements, m.MinPointers, m.MinElements, m.ExtensiblePageBits} {
				if err := w.WriteUint8(b); err != nil {
					return err
				}
			}
		case ChunkIndexBTreeV2:
			if err := w.WriteUint32(m.NodeSize); err != nil {
				return err
			}
			if err := w.WriteUint8(m.SplitPercent); err != nil {
				return err
			}
			if err := w.WriteUint8(m.MergePercent); err != nil {
				return err
			}
		}

		if err := w.WriteOffset(m.ChunkIndexAddr); err != nil {
			return err
		}
	}

	return nil
}

// SerializedSize is the number of bytes Serialize writes.
func (m *DataLayout) SerializedSize(w *binary.Writer) int {
	return measure(w, m.Serialize)
}

// NewCompactLayout creates a new compact layout message.
func NewCompactLayout(data []byte) *DataLayout {
	return &DataLayout{
		Version:     3,
		Class:       LayoutCompact,
		CompactData: data,
	}
}

// NewContiguousLayout creates a new contiguous layout message.
// Address and Size will be set later when data is written.
func NewContiguousLayout(address, size uint64) *DataLayout {
	return &DataLayout{
		Version: 3,
		Class:   LayoutContiguous,
		Address: address,
		Size:    size,
	}
}

// NewChunkedLayout creates a new chunked layout message.
// ChunkIndexAddr will be set later when the index is written.
// Note: In HDF5 v4 layout, chunk dimensions include an extra dimension for element size.
// The chunkDims passed should be the user-facing chunk dimensions (without element size).
// elementSize is the size of each element in bytes (e.g., 4 for int32).
func NewChunkedLayout(chunkDims []uint32, elementSize uint32, indexType ChunkIndexType) *DataLayout {
	// The HDF5 format notes: "The number of elements in the Chunk Dimension Sizes field is one
	// greater than the number of dimensions in the dataset's dataspace"
	// The extra dimension is the element size in bytes.
	allDims := make([]uint32, len(chunkDims)+1)
	copy(allDims, chunkDims)
	allDims[len(chunkDims)] = elementSize

	// Choose optimal dimension size encoding
	var dimSizeBytes uint8 = 1
	for _, d := range allDims {
		if d > 0xFF && dimSizeBytes < 2 {
			dimSizeBytes = 2
		}
		if d > 0xFFFF && dimSizeBytes < 4 {
			dimSizeBytes = 4
		}
	}

	layout := &DataLayout{
		Version:            4,
		Class:              LayoutChunked,
		ChunkDims:          allDims,
		ChunkIndexType:     indexType,
		DimensionSizeBytes: dimSizeBytes,
	}
	switch indexType {
	case ChunkIndexFixedArray:
		layout.PageBits = 10
	case ChunkIndexExtensibleArray:
		layout.MaxBits = 32
		layout.IndexElements = 4
		layout.MinPointers = 4
		layout.MinElements = 16
		layout.ExtensiblePageBits = 10
	case ChunkIndexBTreeV2:
		layout.NodeSize = 2048
		layout.SplitPercent = 100
		layout.MergePercent = 40
	}
	return layout
}

// serializeChunkedV3 writes the chunked body of a version 3 message:
// dimensionality, the v1 B-tree address and 4-byte dimension sizes.
func (m *DataLayout) serializeChunkedV3(w *binary.Writer) error {
	if err := w.WriteUint8(uint8(len(m.ChunkDims))); err != nil {
		return err
	}
	if err := w.WriteOffset(m.ChunkIndexAddr); err != nil {
		return err
	}
	for _, dim := range m.ChunkDims {
		if err := w.WriteUint32(dim); err != nil {
			return err
		}
	}
	return nil
}

// NewChunkedLayoutV3 creates a version 3 chunked layout message, whose
// chunks are always indexed by a v1 B-tree.
func NewChunkedLayoutV3(chunkDims []uint32, elementSize uint32) *DataLayout {
	allDims := append(append([]uint32(nil), chunkDims...), elementSize)
	return &DataLayout{
		Version:            3,
		Class:              LayoutChunked,
		ChunkDims:          allDims,
		ChunkIndexType:     ChunkIndexBTreeV1,
		DimensionSizeBytes: 4,
	}
}

// SetFilteredSingleChunk records the stored size and filter mask of a
// filtered single chunk.
func (m *DataLayout) SetFilteredSingleChunk(size uint64, mask uint32) {
	m.ChunkFlags |= LayoutFlagSingleIndexWithFilter
	m.FilteredChunkSize = size
	m.SingleFilterMask = mask
}

package layout

import (
	"fmt"
	"sort"

	"github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/btree"
	"github.com/robert-malhotra/h5zarr/internal/filter"
	"github.com/robert-malhotra/h5zarr/internal/grid"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// unlimited is the dataspace maximum for extendible dimensions.
const unlimited = ^uint64(0)

// Chunked represents chunked storage layout.
type Chunked struct {
	layout    *message.DataLayout
	dataspace *message.Dataspace
	datatype  *message.Datatype
	pipeline  *filter.Pipeline
	pipeErr   error
	fill      []byte
	reader    *binary.Reader
}

// NewChunked creates a new chunked layout handler. A filter pipeline that
// cannot be built does not fail construction: the chunk index stays
// readable and the error is returned when a chunk is decoded.
func NewChunked(
	layout *message.DataLayout,
	dataspace *message.Dataspace,
	datatype *message.Datatype,
	filterPipeline *message.FilterPipeline,
	fill *message.FillValue,
	reader *binary.Reader,
) *Chunked {
	c := &Chunked{
		layout:    layout,
		dataspace: dataspace,
		datatype:  datatype,
		fill:      fillPattern(fill, datatype),
		reader:    reader,
	}
	if filterPipeline != nil {
		c.pipeline, c.pipeErr = filter.NewPipeline(filterPipeline)
		if c.pipeErr != nil {
			c.pipeErr = fmt.Errorf("creating filter pipeline: %w", c.pipeErr)
		}
	}
	return c
}

func (c *Chunked) Class() message.LayoutClass {
	return message.LayoutChunked
}

// IndexType returns the kind of chunk index. Layout messages before
// version 4 always use a v1 B-tree.
func (c *Chunked) IndexType() message.ChunkIndexType {
	if c.layout.Version < 4 {
		return message.ChunkIndexBTreeV1
	}
	return c.layout.ChunkIndexType
}

// dims returns the dataset dimensions; rank 0 is treated as one element.
func (c *Chunked) dims() []uint64 {
	if len(c.dataspace.Dimensions) == 0 {
		return []uint64{1}
	}
	return c.dataspace.Dimensions
}

// ChunkDims returns the chunk shape in elements, without the trailing
// element size entry of the layout message.
func (c *Chunked) ChunkDims() []uint64 {
	n := len(c.dims())
	out := make([]uint64, 0, n)
	for i := 0; i < n && i < len(c.layout.ChunkDims); i++ {
		out = append(out, uint64(c.layout.ChunkDims[i]))
	}
	return out
}

// ChunkBytes returns the uncompressed size of one chunk.
func (c *Chunked) ChunkBytes() uint64 {
	return grid.NumElements(c.ChunkDims()) * uint64(c.datatype.Size)
}

// Filtered reports whether chunks pass through a filter pipeline.
func (c *Chunked) Filtered() bool {
	return c.pipeErr != nil || (c.pipeline != nil && !c.pipeline.Empty())
}

// indexGrid returns the number of chunks per dimension used to linearize
// chunk indices. Fixed dimensions use their maximum size, so arrays that
// may still grow keep stable positions.
func (c *Chunked) indexGrid() []uint64 {
	return IndexGrid(c.dims(), c.dataspace.MaxDims, c.ChunkDims())
}

// unlimitedDim returns the first extendible dimension, or -1.
func (c *Chunked) unlimitedDim() int {
	for d, m := range c.dataspace.MaxDims {
		if m == unlimited {
			return d
		}
	}
	return -1
}

// chunkOffset converts a linear index position to element offsets.
// When swizzle >= 0 that dimension is the slowest varying one, as the
// extensible array index orders its elements.
func (c *Chunked) chunkOffset(linear uint64, counts []uint64, swizzle int) []uint64 {
	chunkDims := c.ChunkDims()
	n := len(counts)
	idx := make([]uint64, n)
	rem := linear
	for d := n - 1; d >= 0; d-- {
		if d == swizzle || counts[d] == 0 {
			continue
		}
		idx[d] = rem % counts[d]
		rem /= counts[d]
	}
	if swizzle >= 0 {
		idx[swizzle] = rem
	}
	for d := range idx {
		idx[d] *= chunkDims[d]
	}
	return idx
}

// Chunks enumerates every allocated chunk in the index, sorted by offset.
// Entry sizes are the stored (possibly filtered) sizes.
func (c *Chunked) Chunks() ([]btree.ChunkEntry, error) {
	chunkDims := c.ChunkDims()
	if len(chunkDims) != len(c.dims()) {
		return nil, fmt.Errorf("chunked layout has %d chunk dimensions for %d dataset dimensions",
			len(chunkDims), len(c.dims()))
	}
	for _, cd := range chunkDims {
		if cd == 0 {
			return nil, fmt.Errorf("chunked layout has a zero chunk dimension")
		}
	}

	addr := c.layout.ChunkIndexAddr
	if c.reader.IsUndefinedOffset(addr) {
		return nil, nil
	}

	var entries []btree.ChunkEntry
	var err error
	switch c.IndexType() {
	case message.ChunkIndexSingleChunk:
		entry := btree.ChunkEntry{
			Offset:  make([]uint64, len(chunkDims)),
			Address: addr,
			Size:    uint32(c.ChunkBytes()),
		}
		if c.layout.HasFilteredSingleChunk() {
			entry.Size = uint32(c.layout.FilteredChunkSize)
			entry.FilterMask = c.layout.SingleFilterMask
		}
		entries = []btree.ChunkEntry{entry}

	case message.ChunkIndexImplicit:
		counts := c.indexGrid()
		total := grid.NumElements(counts)
		size := c.ChunkBytes()
		for i := uint64(0); i < total; i++ {
			off := c.chunkOffset(i, counts, -1)
			if !c.inBounds(off) {
				continue
			}
			entries = append(entries, btree.ChunkEntry{
				Offset:  off,
				Address: addr + i*size,
				Size:    uint32(size),
			})
		}

	case message.ChunkIndexFixedArray:
		entries, err = c.readFixedArray()

	case message.ChunkIndexExtensibleArray:
		entries, err = c.readExtensibleArray()

	case message.ChunkIndexBTreeV1:
		var idx *btree.ChunkIndex
		idx, err = btree.ReadChunkIndex(c.reader, addr, len(chunkDims))
		if idx != nil {
			entries = idx.Entries
		}

	case message.ChunkIndexBTreeV2:
		var idx *btree.ChunkIndex
		idx, err = btree.ReadChunkIndexV2(c.reader, addr, chunkDims)
		if idx != nil {
			entries = idx.Entries
			for i := range entries {
				if entries[i].Size == 0 {
					entries[i].Size = uint32(c.ChunkBytes())
				}
			}
		}

	default:
		return nil, fmt.Errorf("unsupported chunk index type: %s", c.IndexType())
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s chunk index: %w", c.IndexType(), err)
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Offset, entries[j].Offset
		for d := range a {
			if a[d] != b[d] {
				return a[d] < b[d]
			}
		}
		return false
	})
	return entries, nil
}

// inBounds reports whether a chunk starting at off overlaps the dataset.
func (c *Chunked) inBounds(off []uint64) bool {
	for d, size := range c.dims() {
		if off[d] >= size {
			return false
		}
	}
	return true
}

// ReadChunk reads the stored bytes of a chunk.
func (c *Chunked) ReadChunk(entry btree.ChunkEntry) ([]byte, error) {
	if c.reader.IsUndefinedOffset(entry.Address) {
		return nil, fmt.Errorf("invalid chunk address")
	}
	return c.reader.At(int64(entry.Address)).ReadBytes(int(entry.Size))
}

// DecodeChunk runs stored chunk bytes back through the filter pipeline.
func (c *Chunked) DecodeChunk(data []byte, filterMask uint32) ([]byte, error) {
	if c.pipeErr != nil {
		return nil, c.pipeErr
	}
	if c.pipeline == nil || c.pipeline.Empty() {
		return data, nil
	}
	return c.pipeline.Decode(data, filterMask)
}

func (c *Chunked) Read() ([]byte, error) {
	dims := c.dims()
	return c.ReadSlice(make([]uint64, len(dims)), dims)
}

// ReadSlice reads a hyperslab from chunked storage. Regions not covered
// by an allocated chunk read back as the fill value.
func (c *Chunked) ReadSlice(start, count []uint64) ([]byte, error) {
	dims := c.dims()
	if len(c.dataspace.Dimensions) == 0 && len(start) == 0 && len(count) == 0 {
		start, count = []uint64{0}, []uint64{1}
	}
	if err := checkSlice(dims, start, count); err != nil {
		return nil, err
	}

	elemSize := uint64(c.datatype.Size)
	output := make([]byte, grid.NumElements(count)*elemSize)
	if len(output) == 0 {
		return output, nil
	}
	grid.Fill(output, c.fill)

	entries, err := c.Chunks()
	if err != nil {
		return nil, err
	}

	chunkDims := c.ChunkDims()
	chunkBytes := c.ChunkBytes()
	selEnd := make([]uint64, len(dims))
	for d := range dims {
		selEnd[d] = start[d] + count[d]
	}
	dst := grid.Block{Data: output, Origin: start, Shape: count}

	for _, entry := range entries {
		chunkEnd := make([]uint64, len(dims))
		for d := range dims {
			chunkEnd[d] = entry.Offset[d] + chunkDims[d]
		}
		lo, hi, ok := grid.Intersect(start, selEnd, entry.Offset, chunkEnd)
		if !ok {
			continue
		}

		raw, err := c.ReadChunk(entry)
		if err != nil {
			return nil, fmt.Errorf("reading chunk at offset %v: %w", entry.Offset, err)
		}
		data, err := c.DecodeChunk(raw, entry.FilterMask)
		if err != nil {
			return nil, fmt.Errorf("decoding chunk at offset %v: %w", entry.Offset, err)
		}
		if uint64(len(data)) < chunkBytes {
			return nil, fmt.Errorf("chunk at offset %v decoded to %d bytes, expected %d",
				entry.Offset, len(data), chunkBytes)
		}

		grid.Copy(dst, grid.Block{Data: data, Origin: entry.Offset, Shape: chunkDims}, lo, hi, elemSize)
	}

	return output, nil
}

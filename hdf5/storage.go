package hdf5

import (
	"fmt"

	"github.com/robert-malhotra/h5zarr/internal/btree"
	"github.com/robert-malhotra/h5zarr/internal/filter"
	"github.com/robert-malhotra/h5zarr/internal/layout"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// Unlimited is the maximum dimension size of an extendible dimension.
const Unlimited = ^uint64(0)

// ChunkInfo describes one stored chunk of a chunked dataset.
type ChunkInfo struct {
	// Offset is the element coordinate of the chunk's first element.
	Offset []uint64

	// Address is the file offset of the stored chunk bytes.
	Address uint64

	// Size is the stored (possibly filtered) size in bytes.
	Size uint64

	// FilterMask has bit i set when filter i was skipped for this chunk.
	FilterMask uint32
}

// Address returns the file address of the dataset's object header.
func (d *Dataset) Address() uint64 {
	if d.header != nil {
		return d.header.Address
	}
	return d.addr
}

// Datatype returns the dataset's datatype message.
func (d *Dataset) Datatype() *message.Datatype {
	return d.datatype
}

// Dataspace returns the dataset's dataspace message.
func (d *Dataset) Dataspace() *message.Dataspace {
	return d.dataspace
}

// LayoutClass returns the storage layout class.
func (d *Dataset) LayoutClass() message.LayoutClass {
	return d.layoutMsg.Class
}

// ChunkShape returns the chunk dimensions, or nil when the dataset is not
// chunked.
func (d *Dataset) ChunkShape() []uint64 {
	c, ok := d.layout.(*layout.Chunked)
	if !ok {
		return nil
	}
	return c.ChunkDims()
}

// ChunkIndex returns the kind of chunk index of a chunked dataset.
func (d *Dataset) ChunkIndex() (message.ChunkIndexType, bool) {
	c, ok := d.layout.(*layout.Chunked)
	if !ok {
		return 0, false
	}
	return c.IndexType(), true
}

// Filters returns the filter pipeline in the order filters are applied
// when writing.
func (d *Dataset) Filters() []message.FilterInfo {
	if d.filters == nil {
		return nil
	}
	return d.filters.Filters
}

// FilterName returns a readable name for a filter ID.
func FilterName(id uint16) string {
	return filter.Name(id)
}

// FillValue returns the bytes of one fill element, or nil when the file
// leaves the fill value undefined (zeros).
func (d *Dataset) FillValue() []byte {
	if d.fill == nil || !d.fill.IsDefined || len(d.fill.Value) != int(d.datatype.Size) {
		return nil
	}
	return d.fill.Value
}

// Chunks returns every stored chunk of a chunked dataset, sorted by offset.
func (d *Dataset) Chunks() ([]ChunkInfo, error) {
	c, ok := d.layout.(*layout.Chunked)
	if !ok {
		return nil, fmt.Errorf("dataset %s is not chunked: %w", d.path, ErrUnsupported)
	}
	entries, err := c.Chunks()
	if err != nil {
		return nil, fmt.Errorf("dataset %s: %w", d.path, err)
	}
	chunks := make([]ChunkInfo, len(entries))
	for i, e := range entries {
		chunks[i] = ChunkInfo{
			Offset:     e.Offset,
			Address:    e.Address,
			Size:       uint64(e.Size),
			FilterMask: e.FilterMask,
		}
	}
	return chunks, nil
}

// ReadChunk reads a chunk and runs it back through the filter pipeline.
// The result is one full chunk in row-major order, including padding.
func (d *Dataset) ReadChunk(ci ChunkInfo) ([]byte, error) {
	c, ok := d.layout.(*layout.Chunked)
	if !ok {
		return nil, fmt.Errorf("dataset %s is not chunked: %w", d.path, ErrUnsupported)
	}
	entry := btree.ChunkEntry{Offset: ci.Offset, Address: ci.Address, Size: uint32(ci.Size), FilterMask: ci.FilterMask}
	raw, err := c.ReadChunk(entry)
	if err != nil {
		return nil, err
	}
	return c.DecodeChunk(raw, ci.FilterMask)
}

// Contiguous returns the address and size of contiguous storage. ok is
// false for other layouts and for storage that was never allocated.
func (d *Dataset) Contiguous() (addr, size uint64, ok bool) {
	c, isContig := d.layout.(*layout.Contiguous)
	if !isContig || !c.Allocated() {
		return 0, 0, false
	}
	return c.Address(), c.Size(), true
}

// CompactData returns the raw bytes of a compact dataset, or nil.
func (d *Dataset) CompactData() []byte {
	if d.layoutMsg.Class != message.LayoutCompact {
		return nil
	}
	return append([]byte(nil), d.layoutMsg.CompactData...)
}

// ReadSlice reads the hyperslab [start, start+count) as raw bytes in
// row-major order.
func (d *Dataset) ReadSlice(start, count []uint64) ([]byte, error) {
	return d.layout.ReadSlice(start, count)
}

// Package layout provides storage layout handlers for reading HDF5 dataset data.
package layout

import (
	"fmt"

	"github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/grid"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// Layout is the interface for reading dataset data from various storage layouts.
type Layout interface {
	// Read reads all data from the layout.
	Read() ([]byte, error)

	// ReadSlice reads a hyperslab (rectangular selection) of the dataset.
	// start specifies the starting coordinates, count specifies elements per dimension.
	// Returns the raw bytes for the selected region in row-major order.
	ReadSlice(start, count []uint64) ([]byte, error)

	// Class returns the layout class.
	Class() message.LayoutClass
}

// New creates a Layout from a DataLayout message. fill may be nil.
func New(
	layout *message.DataLayout,
	dataspace *message.Dataspace,
	datatype *message.Datatype,
	filterPipeline *message.FilterPipeline,
	fill *message.FillValue,
	reader *binary.Reader,
) (Layout, error) {
	if layout == nil {
		return nil, fmt.Errorf("nil layout message")
	}

	switch layout.Class {
	case message.LayoutCompact:
		return NewCompact(layout, dataspace, datatype), nil

	case message.LayoutContiguous:
		return NewContiguous(layout, dataspace, datatype, fill, reader), nil

	case message.LayoutChunked:
		return NewChunked(layout, dataspace, datatype, filterPipeline, fill, reader), nil

	default:
		return nil, fmt.Errorf("unsupported layout class: %s", layout.Class)
	}
}

// calculateDataSize calculates the total size of data in bytes.
func calculateDataSize(dataspace *message.Dataspace, datatype *message.Datatype) uint64 {
	if dataspace == nil || datatype == nil {
		return 0
	}
	return dataspace.NumElements() * uint64(datatype.Size)
}

// fillPattern returns the bytes of one fill element, or nil for zeros.
func fillPattern(fill *message.FillValue, datatype *message.Datatype) []byte {
	if fill == nil || !fill.IsDefined || datatype == nil {
		return nil
	}
	if len(fill.Value) != int(datatype.Size) {
		return nil
	}
	return fill.Value
}

// checkSlice validates a hyperslab selection against dims.
func checkSlice(dims, start, count []uint64) error {
	if len(start) != len(dims) || len(count) != len(dims) {
		return fmt.Errorf("start and count must have %d dimensions, got %d and %d",
			len(dims), len(start), len(count))
	}
	for d := range dims {
		if start[d]+count[d] > dims[d] {
			return fmt.Errorf("slice out of bounds: dimension %d, start=%d, count=%d, size=%d",
				d, start[d], count[d], dims[d])
		}
	}
	return nil
}

// extractHyperslab extracts a rectangular region from data stored in row-major order.
// dims is the full dataset dimensions, start and count specify the selection.
func extractHyperslab(data []byte, dims []uint64, start, count []uint64, elementSize uint64) ([]byte, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("cannot extract hyperslab from scalar dataset")
	}
	if uint64(len(data)) < grid.NumElements(dims)*elementSize {
		return nil, fmt.Errorf("data holds %d bytes, dataset needs %d", len(data), grid.NumElements(dims)*elementSize)
	}

	result := make([]byte, grid.NumElements(count)*elementSize)
	if len(result) == 0 {
		return result, nil
	}

	hi := make([]uint64, len(dims))
	for d := range dims {
		hi[d] = start[d] + count[d]
	}
	grid.Copy(
		grid.Block{Data: result, Origin: start, Shape: count},
		grid.Block{Data: data, Origin: make([]uint64, len(dims)), Shape: dims},
		start, hi, elementSize,
	)
	return result, nil
}

package layout

import (
	"fmt"

	"github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/grid"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// Contiguous represents contiguous storage layout.
// Data is stored in a single contiguous block in the file.
type Contiguous struct {
	address   uint64
	size      uint64
	dataspace *message.Dataspace
	datatype  *message.Datatype
	fill      []byte
	reader    *binary.Reader
}

// NewContiguous creates a new contiguous layout handler.
func NewContiguous(
	layout *message.DataLayout,
	dataspace *message.Dataspace,
	datatype *message.Datatype,
	fill *message.FillValue,
	reader *binary.Reader,
) *Contiguous {
	size := layout.Size
	if size == 0 {
		size = calculateDataSize(dataspace, datatype)
	}

	return &Contiguous{
		address:   layout.Address,
		size:      size,
		dataspace: dataspace,
		datatype:  datatype,
		fill:      fillPattern(fill, datatype),
		reader:    reader,
	}
}

func (c *Contiguous) Class() message.LayoutClass {
	return message.LayoutContiguous
}

// Allocated reports whether storage was ever allocated for the data.
func (c *Contiguous) Allocated() bool {
	return !c.reader.IsUndefinedOffset(c.address)
}

// Read reads all data from contiguous storage. Unallocated storage reads
// back as the fill value.
func (c *Contiguous) Read() ([]byte, error) {
	if !c.Allocated() {
		out := make([]byte, calculateDataSize(c.dataspace, c.datatype))
		grid.Fill(out, c.fill)
		return out, nil
	}

	if c.size == 0 {
		return []byte{}, nil
	}

	r := c.reader.At(int64(c.address))
	data, err := r.ReadBytes(int(c.size))
	if err != nil {
		return nil, fmt.Errorf("reading contiguous data: %w", err)
	}

	return data, nil
}

// ReadSlice reads a hyperslab from contiguous storage, one row of the
// innermost dimension at a time.
func (c *Contiguous) ReadSlice(start, count []uint64) ([]byte, error) {
	dims := c.dataspace.Dimensions
	if len(dims) == 0 {
		if len(start) != 0 || len(count) != 0 {
			return nil, fmt.Errorf("cannot slice scalar dataset with non-empty start/count")
		}
		return c.Read()
	}
	if err := checkSlice(dims, start, count); err != nil {
		return nil, err
	}

	elemSize := uint64(c.datatype.Size)
	out := make([]byte, grid.NumElements(count)*elemSize)
	if len(out) == 0 {
		return out, nil
	}
	if !c.Allocated() {
		grid.Fill(out, c.fill)
		return out, nil
	}

	n := len(dims)
	srcStrides := grid.Strides(dims, elemSize, false)
	rowBytes := count[n-1] * elemSize
	rows := make([]uint64, n-1)
	copy(rows, count[:n-1])

	var dst uint64
	err := grid.Each(make([]uint64, n-1), rows, func(idx []uint64) error {
		off := start[n-1] * elemSize
		for d := 0; d < n-1; d++ {
			off += (start[d] + idx[d]) * srcStrides[d]
		}
		row, err := c.reader.At(int64(c.address + off)).ReadBytes(int(rowBytes))
		if err != nil {
			return fmt.Errorf("reading contiguous row at %d: %w", off, err)
		}
		copy(out[dst:], row)
		dst += rowBytes
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Address returns the data address.
func (c *Contiguous) Address() uint64 {
	return c.address
}

// Size returns the data size in bytes.
func (c *Contiguous) Size() uint64 {
	return c.size
}

package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/h5zarr/internal/dtype"
	"github.com/robert-malhotra/h5zarr/internal/layout"
	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/internal/object"
)

// Dataset represents an HDF5 dataset.
type Dataset struct {
	file      *File
	path      string
	header    *object.Header
	addr      uint64
	dataspace *message.Dataspace
	datatype  *message.Datatype
	layoutMsg *message.DataLayout
	filters   *message.FilterPipeline
	fill      *message.FillValue
	layout    layout.Layout
}

// newDataset creates a Dataset from an object header.
func newDataset(f *File, path string, header *object.Header) (*Dataset, error) {
	ds := &Dataset{
		file:   f,
		path:   path,
		header: header,
	}

	// Get dataspace
	ds.dataspace = header.Dataspace()
	if ds.dataspace == nil {
		return nil, fmt.Errorf("dataset missing dataspace message")
	}

	// Get datatype
	ds.datatype = header.Datatype()
	if ds.datatype == nil {
		return nil, fmt.Errorf("dataset missing datatype message")
	}

	// Get layout
	layoutMsg := header.DataLayout()
	if layoutMsg == nil {
		return nil, fmt.Errorf("dataset missing layout message")
	}

	ds.layoutMsg = layoutMsg
	ds.filters = header.FilterPipeline()
	ds.fill = header.FillValue()

	// Create layout handler
	var err error
	ds.layout, err = layout.New(layoutMsg, ds.dataspace, ds.datatype, ds.filters, ds.fill, f.reader)
	if err != nil {
		return nil, fmt.Errorf("creating layout: %w", err)
	}

	return ds, nil
}

// Name returns the dataset name (last component of path).
func (d *Dataset) Name() string {
	return path.Base(d.path)
}

// Path returns the full path to this dataset.
func (d *Dataset) Path() string {
	return d.path
}

// Shape returns the dimensions of the dataset.
func (d *Dataset) Shape() []uint64 {
	if d.dataspace.IsScalar() {
		return nil
	}
	return d.dataspace.Dimensions
}

// Rank returns the number of dimensions.
func (d *Dataset) Rank() int {
	return d.dataspace.Rank
}

// NumElements returns the total number of elements.
func (d *Dataset) NumElements() uint64 {
	return d.dataspace.NumElements()
}

// IsScalar returns true if the dataset is a scalar (single value).
func (d *Dataset) IsScalar() bool {
	return d.dataspace.IsScalar()
}

// ReadRaw reads all data from the dataset as raw bytes, with filters
// undone and unwritten chunks filled.
func (d *Dataset) ReadRaw() ([]byte, error) {
	return d.layout.Read()
}

// ReadString reads a fixed or variable-length string dataset.
func (d *Dataset) ReadString() ([]string, error) {
	raw, err := d.layout.Read()
	if err != nil {
		return nil, fmt.Errorf("reading data: %w", err)
	}
	return dtype.Strings(d.datatype, raw, d.dataspace.NumElements(), d.file.reader)
}

// Attrs returns the dataset's attribute names.
func (d *Dataset) Attrs() []string {
	return attrNames(d.header)
}

// Attr returns the named attribute, or nil.
func (d *Dataset) Attr(name string) *Attribute {
	return findAttr(d.file, d.header, name)
}

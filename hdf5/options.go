package hdf5

import (
	"fmt"

	"github.com/robert-malhotra/h5zarr/internal/message"
)

// FileOption configures file creation options.
type FileOption func(*fileOptions)

type fileOptions struct {
	offsetSize int
	lengthSize int
}

func defaultFileOptions() *fileOptions {
	return &fileOptions{
		offsetSize: 8,
		lengthSize: 8,
	}
}

// WithOffsetSize sets the size in bytes for file offsets (2, 4, or 8).
func WithOffsetSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.offsetSize = size
		}
	}
}

// WithLengthSize sets the size in bytes for lengths (2, 4, or 8).
func WithLengthSize(size int) FileOption {
	return func(o *fileOptions) {
		if size == 2 || size == 4 || size == 8 {
			o.lengthSize = size
		}
	}
}

// DatasetOption configures dataset creation options.
type DatasetOption func(*datasetOptions)

// attrDef holds an attribute definition for creation.
type attrDef struct {
	name  string
	value interface{}
}

// compressor is the compression filter chosen for a dataset.
type compressor struct {
	id     uint16
	params []uint32

	// stored filters are recorded but not run by the writer
	stored bool
}

type datasetOptions struct {
	chunks     []uint64
	maxDims    []uint64
	shape      []uint64
	compressor *compressor
	shuffle    bool
	fletcher32 bool
	fill       interface{}
	index      *message.ChunkIndexType
	compact    bool
	scalar     bool
	attributes []attrDef
	rawAttrs   []*message.Attribute
}

func defaultDatasetOptions() *datasetOptions {
	return &datasetOptions{}
}

// WithChunks sets the chunk dimensions for a chunked dataset.
// Required for resizable datasets and compression.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.chunks = dims
	}
}

// WithMaxDims sets the maximum dimensions for a resizable dataset.
// Use 0 (or Unlimited) for an unlimited dimension.
func WithMaxDims(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.maxDims = dims
	}
}

// WithShape gives flat data an N-dimensional shape.
func WithShape(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) {
		o.shape = dims
	}
}

// WithScalar stores a single value in a scalar dataspace.
func WithScalar() DatasetOption {
	return func(o *datasetOptions) {
		o.scalar = true
	}
}

// WithCompression enables the deflate filter at the given level
// (1-9, 0 = none).
func WithCompression(level int) DatasetOption {
	return func(o *datasetOptions) {
		if level > 0 && level <= 9 {
			o.compressor = &compressor{id: message.FilterDeflate, params: []uint32{uint32(level)}}
		} else if level == 0 {
			o.compressor = nil
		}
	}
}

// WithZstd enables the Zstandard filter (32015).
func WithZstd(level int) DatasetOption {
	return func(o *datasetOptions) {
		o.compressor = &compressor{id: message.FilterZstd, params: []uint32{uint32(int32(level))}}
	}
}

// WithBZip2 enables the bzip2 filter (307) with a block size level of 1-9.
func WithBZip2(level int) DatasetOption {
	return func(o *datasetOptions) {
		if level < 1 || level > 9 {
			level = 9
		}
		o.compressor = &compressor{id: message.FilterBZIP2, params: []uint32{uint32(level)}}
	}
}

// WithLZ4 enables the LZ4 filter (32004). A block size of 0 uses the
// filter default.
func WithLZ4(blockSize int) DatasetOption {
	return func(o *datasetOptions) {
		o.compressor = &compressor{id: message.FilterLZ4, params: []uint32{uint32(blockSize)}}
	}
}

// WithStoredFilter records filter id in the pipeline without running
// it. Chunks are written as given, so the data must already be in the
// filter's encoded form. Use it for filters this package cannot encode.
func WithStoredFilter(id uint16, clientData ...uint32) DatasetOption {
	return func(o *datasetOptions) {
		o.compressor = &compressor{id: id, params: clientData, stored: true}
	}
}

// WithShuffle enables the shuffle filter (improves compression).
func WithShuffle() DatasetOption {
	return func(o *datasetOptions) {
		o.shuffle = true
	}
}

// WithFletcher32 enables Fletcher32 checksum validation.
func WithFletcher32() DatasetOption {
	return func(o *datasetOptions) {
		o.fletcher32 = true
	}
}

// WithFillValue sets the fill value. The value must be encodable with the
// dataset's datatype.
func WithFillValue(v interface{}) DatasetOption {
	return func(o *datasetOptions) {
		o.fill = v
	}
}

// WithChunkIndex forces a chunk index type instead of the one the library
// would pick for the dataset's shape. ChunkIndexBTreeV1 writes a version 3
// layout message.
func WithChunkIndex(t message.ChunkIndexType) DatasetOption {
	return func(o *datasetOptions) {
		o.index = &t
	}
}

// WithCompact stores the data inside the object header.
func WithCompact() DatasetOption {
	return func(o *datasetOptions) {
		o.compact = true
	}
}

// WithAttribute adds an attribute to the dataset.
// The value can be a scalar or slice of: int, int8-64, uint, uint8-64, float32, float64, string.
// Multiple WithAttribute options can be used to add multiple attributes.
func WithAttribute(name string, value interface{}) DatasetOption {
	return func(o *datasetOptions) {
		o.attributes = append(o.attributes, attrDef{name: name, value: value})
	}
}

// WithRawAttribute adds an attribute from already encoded bytes, for
// datatypes without a Go equivalent. A nil shape makes it scalar.
func WithRawAttribute(name string, dt *message.Datatype, shape []uint64, data []byte) DatasetOption {
	return func(o *datasetOptions) {
		o.rawAttrs = append(o.rawAttrs, rawAttribute(name, dt, shape, data))
	}
}

func rawAttribute(name string, dt *message.Datatype, shape []uint64, data []byte) *message.Attribute {
	dataspace := message.NewScalarDataspace()
	if shape != nil {
		dataspace = message.NewDataspace(shape, nil)
	}
	return message.NewAttribute(name, dt, dataspace, data)
}

// filtered reports whether any filter was requested.
func (o *datasetOptions) filtered() bool {
	return o.compressor != nil || o.shuffle || o.fletcher32
}

// filterPipeline builds the pipeline in write order: shuffle, the
// compressor, then fletcher32.
func (o *datasetOptions) filterPipeline(elementSize uint32) *message.FilterPipeline {
	if !o.filtered() {
		return nil
	}
	var filters []message.FilterInfo
	if o.shuffle {
		filters = append(filters, message.FilterInfo{ID: message.FilterShuffle, ClientData: []uint32{elementSize}})
	}
	if o.compressor != nil {
		filters = append(filters, message.FilterInfo{ID: o.compressor.id, ClientData: o.compressor.params})
	}
	if o.fletcher32 {
		filters = append(filters, message.FilterInfo{ID: message.FilterFletcher32})
	}
	return message.NewFilterPipeline(filters...)
}

// storedFilter is the id of the filter the writer records without
// running, or 0.
func (o *datasetOptions) storedFilter() uint16 {
	if o.compressor == nil || !o.compressor.stored {
		return 0
	}
	return o.compressor.id
}

// resolvedMaxDims maps 0 to Unlimited. nil means fixed size.
func (o *datasetOptions) resolvedMaxDims(rank int) ([]uint64, error) {
	if o.maxDims == nil {
		return nil, nil
	}
	if len(o.maxDims) != rank {
		return nil, fmt.Errorf("max dims rank %d does not match dataset rank %d", len(o.maxDims), rank)
	}
	max := make([]uint64, rank)
	for i, d := range o.maxDims {
		if d == 0 {
			d = Unlimited
		}
		max[i] = d
	}
	return max, nil
}

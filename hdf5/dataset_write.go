package hdf5

import (
	"fmt"
	"path"
	"reflect"

	"github.com/robert-malhotra/h5zarr/internal/dtype"
	"github.com/robert-malhotra/h5zarr/internal/filter"
	"github.com/robert-malhotra/h5zarr/internal/heap"
	"github.com/robert-malhotra/h5zarr/internal/layout"
	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/internal/object"
)

// CreateDataset creates a new dataset holding data. The datatype is
// inferred from the Go element type and the shape from nested slices (or
// WithShape for flat data). Strings are stored as variable-length strings.
func (g *Group) CreateDataset(name string, data interface{}, opts ...DatasetOption) (*Dataset, error) {
	if !g.file.writable {
		return nil, ErrReadOnly
	}

	options := defaultDatasetOptions()
	for _, opt := range opts {
		opt(options)
	}

	dataVal := reflect.ValueOf(data)
	if dataVal.Kind() == reflect.Ptr {
		dataVal = dataVal.Elem()
	}

	dims, elemType, err := inferDimensionsAndType(dataVal)
	if err != nil {
		return nil, fmt.Errorf("inferring dimensions: %w", err)
	}

	datatype, err := dtype.GoTypeToDatatype(elemType)
	if err != nil {
		return nil, fmt.Errorf("creating datatype: %w", err)
	}

	flat := flatten(dataVal, elemType)
	if options.shape != nil {
		if n := numElements(options.shape); n != uint64(flat.Len()) {
			return nil, fmt.Errorf("shape %v holds %d elements, data has %d", options.shape, n, flat.Len())
		}
		dims = options.shape
	} else if n := numElements(dims); n != uint64(flat.Len()) {
		return nil, fmt.Errorf("ragged data: shape %v holds %d elements, data has %d", dims, n, flat.Len())
	}

	var rawData []byte
	if datatype.IsVarLenString {
		strs := make([]string, flat.Len())
		for i := range strs {
			strs[i] = flat.Index(i).String()
		}
		rawData, err = g.file.writeVarLenStrings(strs)
	} else {
		rawData, err = dtype.Encode(datatype, flat.Interface())
	}
	if err != nil {
		return nil, fmt.Errorf("encoding data: %w", err)
	}

	return g.createDataset(name, dims, datatype, rawData, options)
}

// CreateDatasetRaw creates a dataset from already encoded element bytes in
// row-major order. It is the way to store datatypes without a Go
// equivalent, such as compounds or big-endian integers.
func (g *Group) CreateDatasetRaw(name string, dims []uint64, dt *message.Datatype, raw []byte, opts ...DatasetOption) (*Dataset, error) {
	if !g.file.writable {
		return nil, ErrReadOnly
	}
	options := defaultDatasetOptions()
	for _, opt := range opts {
		opt(options)
	}
	n := numElements(dims)
	if options.scalar {
		n = 1
	}
	if want := dtype.DataSize(dt, n); uint64(len(raw)) != want {
		return nil, fmt.Errorf("raw data is %d bytes, expected %d", len(raw), want)
	}
	return g.createDataset(name, dims, dt, raw, options)
}

// createDataset stores encoded data with the layout the options select and
// links the new dataset into g.
func (g *Group) createDataset(name string, dims []uint64, datatype *message.Datatype, rawData []byte, options *datasetOptions) (*Dataset, error) {
	if name == "" {
		return nil, fmt.Errorf("dataset name cannot be empty")
	}

	var dataspace *message.Dataspace
	var maxDims []uint64
	if options.scalar {
		if uint64(len(rawData)) != uint64(datatype.Size) {
			return nil, fmt.Errorf("scalar dataset needs exactly one element")
		}
		if options.chunks != nil || options.maxDims != nil {
			return nil, fmt.Errorf("scalar datasets cannot be chunked")
		}
		dataspace = message.NewScalarDataspace()
		dims = nil
	} else {
		var err error
		if maxDims, err = options.resolvedMaxDims(len(dims)); err != nil {
			return nil, err
		}
		dataspace = message.NewDataspace(dims, maxDims)
	}

	var fillBytes []byte
	if options.fill != nil {
		if datatype.IsVarLenString {
			return nil, fmt.Errorf("fill values are not supported for variable-length strings")
		}
		var err error
		if fillBytes, err = dtype.Encode(datatype, options.fill); err != nil {
			return nil, fmt.Errorf("encoding fill value: %w", err)
		}
	}

	pipeline := options.filterPipeline(datatype.Size)

	var dataLayout *message.DataLayout
	switch {
	case options.compact:
		if options.chunks != nil || pipeline != nil {
			return nil, fmt.Errorf("compact datasets cannot be chunked or filtered")
		}
		if len(rawData) > maxCompactSize {
			return nil, fmt.Errorf("compact data is %d bytes, limit is %d", len(rawData), maxCompactSize)
		}
		dataLayout = message.NewCompactLayout(rawData)

	case options.chunks != nil || pipeline != nil || hasUnlimited(maxDims):
		if options.chunks == nil {
			return nil, fmt.Errorf("filters and unlimited dimensions require WithChunks")
		}
		var err error
		dataLayout, err = g.file.writeChunked(dims, maxDims, options.chunks, datatype, rawData, fillBytes, pipeline, options.storedFilter(), options.index)
		if err != nil {
			return nil, err
		}

	default:
		if len(rawData) == 0 {
			dataLayout = message.NewContiguousLayout(g.file.writer.UndefinedOffset(), 0)
			break
		}
		dataAddr := g.file.allocate(int64(len(rawData)))
		if err := g.file.writer.At(int64(dataAddr)).WriteBytes(rawData); err != nil {
			return nil, fmt.Errorf("writing data: %w", err)
		}
		dataLayout = message.NewContiguousLayout(dataAddr, uint64(len(rawData)))
	}

	var fillMsg *message.FillValue
	if fillBytes != nil {
		fillMsg = message.NewFillValue(fillBytes)
	}
	messages := object.DatasetMessages(dataspace, datatype, dataLayout, pipeline, fillMsg)

	for _, attr := range options.attributes {
		attrMsg, err := createAttributeMessage(attr.name, attr.value, g.file.writer.OffsetSize())
		if err != nil {
			return nil, fmt.Errorf("creating attribute %q: %w", attr.name, err)
		}
		messages = append(messages, attrMsg)
	}
	for _, attrMsg := range options.rawAttrs {
		messages = append(messages, attrMsg)
	}

	datasetAddr, err := g.file.writeHeader(messages, 0)
	if err != nil {
		return nil, fmt.Errorf("writing dataset header: %w", err)
	}

	link := message.NewHardLink(name, datasetAddr)
	if err := g.addLink(link); err != nil {
		return nil, fmt.Errorf("adding link to parent: %w", err)
	}

	return &Dataset{
		file:      g.file,
		path:      childPath(g.path, name),
		addr:      datasetAddr,
		dataspace: dataspace,
		datatype:  datatype,
		layoutMsg: dataLayout,
		filters:   pipeline,
		fill:      fillMsg,
	}, nil
}

// maxCompactSize is the largest raw data a compact layout message holds.
const maxCompactSize = 64*1024 - 1024

// writeChunked splits rawData into chunks, stores them through the filter
// pipeline and writes the chunk index. It returns the layout message
// describing the result.
func (f *File) writeChunked(dims, maxDims, chunks []uint64, datatype *message.Datatype, rawData, fill []byte, pipeline *message.FilterPipeline, stored uint16, forced *message.ChunkIndexType) (*message.DataLayout, error) {
	if len(chunks) != len(dims) {
		return nil, fmt.Errorf("chunk rank %d does not match dataset rank %d", len(chunks), len(dims))
	}
	chunkDims := make([]uint32, len(chunks))
	for i, c := range chunks {
		if c == 0 || c > 0xFFFFFFFF {
			return nil, fmt.Errorf("invalid chunk dimension %d", c)
		}
		if maxDims != nil && maxDims[i] != Unlimited && c > maxDims[i] && maxDims[i] > 0 {
			return nil, fmt.Errorf("chunk dimension %d exceeds maximum dimension %d", c, maxDims[i])
		}
		chunkDims[i] = uint32(c)
	}

	cw := layout.NewChunkWriter(f.writer, chunkDims, datatype.Size, f.allocate)
	if pipeline != nil {
		p, err := encodePipeline(pipeline, stored)
		if err != nil {
			return nil, fmt.Errorf("building filter pipeline: %w", err)
		}
		cw.SetPipeline(p)
	}

	bounds := maxDims
	if bounds == nil {
		bounds = dims
	}
	counts := layout.IndexGrid(dims, bounds, chunks)
	index := chooseChunkIndex(bounds, counts, forced)

	pieces := layout.SplitIntoChunks(rawData, dims, chunkDims, datatype.Size, fill)

	var dl *message.DataLayout
	if index == message.ChunkIndexBTreeV1 {
		dl = message.NewChunkedLayoutV3(chunkDims, datatype.Size)
	} else {
		dl = message.NewChunkedLayout(chunkDims, datatype.Size, index)
	}
	dl.ChunkIndexAddr = f.writer.UndefinedOffset()

	if index == message.ChunkIndexImplicit {
		if len(pieces) == 0 {
			return dl, nil
		}
		addr, err := cw.WriteImplicitChunks(pieces, counts)
		if err != nil {
			return nil, fmt.Errorf("writing chunks: %w", err)
		}
		dl.ChunkIndexAddr = addr
		return dl, nil
	}

	entries, err := cw.WriteChunks(pieces)
	if err != nil {
		return nil, fmt.Errorf("writing chunks: %w", err)
	}

	switch index {
	case message.ChunkIndexSingleChunk:
		if len(entries) != 1 {
			return dl, nil
		}
		dl.ChunkIndexAddr = entries[0].Address
		if cw.Filtered() {
			dl.SetFilteredSingleChunk(uint64(entries[0].Size), entries[0].FilterMask)
		}
	case message.ChunkIndexFixedArray:
		dl.ChunkIndexAddr, dl.PageBits, err = cw.WriteFixedArrayIndex(entries, counts)
	case message.ChunkIndexExtensibleArray:
		var p layout.EAParams
		dl.ChunkIndexAddr, p, err = cw.WriteExtensibleArrayIndex(entries, counts, unlimitedDim(bounds))
		dl.MaxBits, dl.IndexElements, dl.MinPointers, dl.MinElements, dl.ExtensiblePageBits =
			p.MaxBits, p.IndexElements, p.MinPointers, p.MinElements, p.PageBits
	case message.ChunkIndexBTreeV1:
		if len(entries) > 0 {
			dl.ChunkIndexAddr, err = cw.WriteBTreeV1Index(entries)
		}
	case message.ChunkIndexBTreeV2:
		if len(entries) > 0 {
			dl.ChunkIndexAddr, dl.NodeSize, err = cw.WriteBTreeV2Index(entries)
		}
	default:
		err = fmt.Errorf("chunk index %s: %w", index, ErrUnsupported)
	}
	if err != nil {
		return nil, fmt.Errorf("writing chunk index: %w", err)
	}
	return dl, nil
}

// encodePipeline builds the writer's pipeline. The filter with id stored
// passes chunks through unchanged.
func encodePipeline(fp *message.FilterPipeline, stored uint16) (*filter.Pipeline, error) {
	filters := make([]filter.Filter, 0, len(fp.Filters))
	for _, info := range fp.Filters {
		if stored != 0 && info.ID == stored {
			filters = append(filters, filter.Stored(info.ID))
			continue
		}
		f, err := filter.New(info)
		if err != nil {
			return nil, err
		}
		if f == nil {
			return nil, fmt.Errorf("optional filter %d is not available for encoding", info.ID)
		}
		filters = append(filters, f)
	}
	return filter.NewPipelineOf(filters...), nil
}

// chooseChunkIndex picks the index the library would use for a dataset:
// an extensible array for one unlimited dimension, a v2 B-tree for more,
// otherwise a single chunk or a fixed array.
func chooseChunkIndex(maxDims, counts []uint64, forced *message.ChunkIndexType) message.ChunkIndexType {
	if forced != nil {
		return *forced
	}
	nUnlimited := 0
	for _, m := range maxDims {
		if m == Unlimited {
			nUnlimited++
		}
	}
	switch {
	case nUnlimited == 1:
		return message.ChunkIndexExtensibleArray
	case nUnlimited > 1:
		return message.ChunkIndexBTreeV2
	case numElements(counts) == 1:
		return message.ChunkIndexSingleChunk
	default:
		return message.ChunkIndexFixedArray
	}
}

func hasUnlimited(maxDims []uint64) bool {
	return unlimitedDim(maxDims) >= 0
}

func unlimitedDim(maxDims []uint64) int {
	for d, m := range maxDims {
		if m == Unlimited {
			return d
		}
	}
	return -1
}

func numElements(dims []uint64) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return path.Join(parent, name)
}

// writeVarLenStrings stores strs in a global heap collection and returns
// the encoded references: length, collection address, object index.
func (f *File) writeVarLenStrings(strs []string) ([]byte, error) {
	offsetSize := f.writer.OffsetSize()
	refSize := 4 + offsetSize + 4
	out := make([]byte, len(strs)*refSize)
	if len(strs) == 0 {
		return out, nil
	}

	ghw := heap.NewGlobalHeapWriter(f.writer, f.allocate)
	indices := make([]uint16, len(strs))
	for i, s := range strs {
		indices[i] = ghw.AddString(s)
	}
	_, ids, err := ghw.Write()
	if err != nil {
		return nil, fmt.Errorf("writing global heap: %w", err)
	}

	order := f.writer.ByteOrder()
	for i, s := range strs {
		id := ids[indices[i]]
		ref := out[i*refSize:]
		order.PutUint32(ref, uint32(len(s)))
		for b := 0; b < offsetSize; b++ {
			ref[4+b] = byte(id.CollectionAddress >> (8 * b))
		}
		order.PutUint32(ref[4+offsetSize:], id.ObjectIndex)
	}
	return out, nil
}

// flatten collects the elements of nested slices in row-major order.
func flatten(val reflect.Value, elemType reflect.Type) reflect.Value {
	out := reflect.MakeSlice(reflect.SliceOf(elemType), 0, 0)
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		if v.Type() != elemType && (v.Kind() == reflect.Slice || v.Kind() == reflect.Array) {
			for i := 0; i < v.Len(); i++ {
				walk(v.Index(i))
			}
			return
		}
		out = reflect.Append(out, v)
	}
	walk(val)
	return out
}

// inferDimensionsAndType infers the dimensions and element type from a Go value.
func inferDimensionsAndType(val reflect.Value) ([]uint64, reflect.Type, error) {
	var dims []uint64
	current := val

	// Traverse nested slices/arrays to find dimensions
	for {
		switch current.Kind() {
		case reflect.Slice, reflect.Array:
			dims = append(dims, uint64(current.Len()))
			if current.Len() == 0 {
				// Empty slice - get element type from type
				return dims, current.Type().Elem(), nil
			}
			current = current.Index(0)
		default:
			// Reached the element type
			if len(dims) == 0 {
				// Scalar value
				dims = []uint64{1}
			}
			return dims, current.Type(), nil
		}
	}
}

// createAttributeMessage creates an attribute message from a name and value.
// Object references are stored with offsetSize bytes.
func createAttributeMessage(name string, value interface{}, offsetSize int) (*message.Attribute, error) {
	switch v := value.(type) {
	case ObjectRef:
		return createReferenceAttribute(name, []ObjectRef{v}, true, offsetSize), nil
	case []ObjectRef:
		return createReferenceAttribute(name, v, false, offsetSize), nil
	}

	// Get the value and type
	val := reflect.ValueOf(value)
	if val.Kind() == reflect.Ptr {
		val = val.Elem()
	}

	// Check if this is a string type
	if val.Kind() == reflect.String {
		return createStringAttribute(name, val.String())
	}

	// Check if this is a slice of strings
	if val.Kind() == reflect.Slice && val.Type().Elem().Kind() == reflect.String {
		return createStringArrayAttribute(name, val)
	}

	// Determine if scalar or array
	var dims []uint64
	var elemType reflect.Type

	switch val.Kind() {
	case reflect.Slice, reflect.Array:
		dims = []uint64{uint64(val.Len())}
		if val.Len() > 0 {
			elemType = val.Index(0).Type()
		} else {
			elemType = val.Type().Elem()
		}
	default:
		// Scalar
		dims = nil // scalar dataspace
		elemType = val.Type()
	}

	// Create datatype from element type
	datatype, err := dtype.GoTypeToDatatype(elemType)
	if err != nil {
		return nil, fmt.Errorf("unsupported attribute type %v: %w", elemType, err)
	}

	// Create dataspace
	var dataspace *message.Dataspace
	if dims == nil {
		dataspace = message.NewScalarDataspace()
	} else {
		dataspace = message.NewDataspace(dims, nil)
	}

	// Encode the value to bytes
	data, err := dtype.Encode(datatype, value)
	if err != nil {
		return nil, fmt.Errorf("encoding attribute value: %w", err)
	}

	return message.NewAttribute(name, datatype, dataspace, data), nil
}

// createStringAttribute creates an attribute with a fixed-length string value.
func createStringAttribute(name string, s string) (*message.Attribute, error) {
	// Use fixed-length string (add 1 for null terminator)
	strLen := len(s) + 1

	// Create fixed-length string datatype
	datatype := message.NewStringDatatype(uint32(strLen), message.PadNullTerm, message.CharsetASCII)

	// Create scalar dataspace
	dataspace := message.NewScalarDataspace()

	// Encode string with null terminator
	data := make([]byte, strLen)
	copy(data, s)
	data[len(s)] = 0

	return message.NewAttribute(name, datatype, dataspace, data), nil
}

// createStringArrayAttribute creates an attribute with an array of fixed-length strings.
func createStringArrayAttribute(name string, val reflect.Value) (*message.Attribute, error) {
	n := val.Len()
	if n == 0 {
		return nil, fmt.Errorf("empty string array not supported")
	}

	// Find maximum string length
	maxLen := 0
	for i := 0; i < n; i++ {
		s := val.Index(i).String()
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}

	// Add 1 for null terminator
	strLen := maxLen + 1

	// Create fixed-length string datatype
	datatype := message.NewStringDatatype(uint32(strLen), message.PadNullTerm, message.CharsetASCII)

	// Create 1D dataspace
	dataspace := message.NewDataspace([]uint64{uint64(n)}, nil)

	// Encode all strings
	data := make([]byte, n*strLen)
	for i := 0; i < n; i++ {
		s := val.Index(i).String()
		offset := i * strLen
		copy(data[offset:], s)
		data[offset+len(s)] = 0
	}

	return message.NewAttribute(name, datatype, dataspace, data), nil
}

// createReferenceAttribute creates an object reference attribute.
func createReferenceAttribute(name string, refs []ObjectRef, scalar bool, offsetSize int) *message.Attribute {
	data := make([]byte, len(refs)*offsetSize)
	for i, r := range refs {
		for b := 0; b < offsetSize; b++ {
			data[i*offsetSize+b] = byte(uint64(r) >> (8 * b))
		}
	}
	dataspace := message.NewScalarDataspace()
	if !scalar {
		dataspace = message.NewDataspace([]uint64{uint64(len(refs))}, nil)
	}
	return message.NewAttribute(name, message.NewReferenceDatatype(offsetSize), dataspace, data)
}

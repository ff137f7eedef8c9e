package h5zarr

import (
	"fmt"

	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/codec"
	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/internal/grid"
	h5msg "github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/zarr"
)

// ChunkRecord is one stored chunk of a translated dataset. Index is the
// chunk's position in the chunk grid and Codec the id of the array's
// compressor, empty when the chunks are stored uncompressed. Offset,
// Size and Mask come from the manifest entry.
type ChunkRecord struct {
	Key   string
	Index []uint64
	Codec string
	zarr.ChunkRef
}

// Translation is the Zarr description of one dataset: its array document
// and the location of every stored chunk.
type Translation struct {
	// Source is the absolute HDF5 path of the dataset.
	Source   string
	Meta     *zarr.ArrayMeta
	Manifest *zarr.Manifest

	// Rechunked is set when stored chunks were split to honor
	// MaxChunkBytes. Declined holds the reason when they could not be.
	Rechunked bool
	Declined  string
}

// Records returns the chunk records in key order.
func (t *Translation) Records() ([]ChunkRecord, error) {
	keys := t.Manifest.Keys()
	records := make([]ChunkRecord, len(keys))
	for i, k := range keys {
		idx, err := zarr.ParseChunkKey(k, len(t.Meta.Shape), t.Meta.DimensionSeparator)
		if err != nil {
			return nil, &StructureError{Path: t.Source, Err: err}
		}
		records[i] = ChunkRecord{Key: k, Index: idx, Codec: t.Meta.Compressor.ID(), ChunkRef: t.Manifest.Chunks[k]}
	}
	return records, nil
}

// Translate describes ds as a Zarr array whose chunks are byte ranges of
// f. The dataset is addressed in errors by its HDF5 path.
func Translate(f *hdf5.File, ds *hdf5.Dataset, opts ...Option) (*Translation, error) {
	o := NewOptions(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return newTranslator(f, o).dataset(ds.Path(), ds)
}

type translator struct {
	opts     *Options
	uri      string
	fileSize uint64
}

func newTranslator(f *hdf5.File, o *Options) *translator {
	uri := o.SourceURI
	if uri == "" {
		uri = f.Path()
	}
	return &translator{opts: o, uri: uri, fileSize: f.Size()}
}

func (t *translator) dataset(path string, ds *hdf5.Dataset) (*Translation, error) {
	dt := ds.Datatype()
	if dt == nil {
		return nil, structureErr(path, errors.New("dataset has no datatype"))
	}
	if dt.Class == h5msg.ClassVarLen && dt.IsVarLenString {
		return t.strings(path, ds)
	}

	ztype, extra, err := zarrType(dt)
	if err != nil {
		return nil, &StructureError{Path: path, Err: err, Unsupported: true}
	}
	compressor, filters, err := translateFilters(path, ds.Filters())
	if err != nil {
		return nil, err
	}
	fill, err := fillValue(ztype, ds.FillValue())
	if err != nil {
		return nil, structureErr(path, errors.Wrap(err, "fill value"))
	}

	shape := append(append([]uint64{}, ds.Shape()...), extra...)
	meta := &zarr.ArrayMeta{
		ZarrFormat: zarr.Format,
		Shape:      shape,
		DType:      ztype,
		Compressor: compressor,
		FillValue:  fill,
		Order:      zarr.OrderC,
		Filters:    filters,
	}
	if t.opts.DimensionSeparator != zarr.DefaultSep {
		meta.DimensionSeparator = t.opts.DimensionSeparator
	}
	manifest := zarr.NewManifest(zarr.Source{URI: t.uri, ArrayName: ds.Path()})

	switch ds.LayoutClass() {
	case h5msg.LayoutChunked:
		meta.Chunks = append(append([]uint64{}, ds.ChunkShape()...), extra...)
		if err := t.chunked(path, ds, meta, manifest, len(extra)); err != nil {
			return nil, err
		}
	case h5msg.LayoutContiguous:
		meta.Chunks = wholeChunk(shape)
		if addr, size, ok := ds.Contiguous(); ok && grid.NumElements(shape) > 0 {
			if err := manifest.Add(meta.ChunkKey(make([]uint64, len(shape))), zarr.ChunkRef{Offset: addr, Size: size}); err != nil {
				return nil, structureErr(path, err)
			}
		}
	case h5msg.LayoutCompact:
		meta.Chunks = wholeChunk(shape)
		if data := ds.CompactData(); len(data) > 0 && grid.NumElements(shape) > 0 {
			ref := zarr.ChunkRef{Size: uint64(len(data)), Data: data}
			if err := manifest.Add(meta.ChunkKey(make([]uint64, len(shape))), ref); err != nil {
				return nil, structureErr(path, err)
			}
		}
	default:
		return nil, unsupportedErr(path, "layout class %d is not supported", ds.LayoutClass())
	}

	if err := meta.Validate(); err != nil {
		return nil, structureErr(path, err)
	}
	if t.fileSize > 0 {
		if err := manifest.ValidateBounds(t.fileSize); err != nil {
			return nil, structureErr(path, err)
		}
	}

	tr := &Translation{Source: ds.Path(), Meta: meta, Manifest: manifest}
	if limit := t.opts.MaxChunkBytes; limit > 0 && meta.ChunkBytes() > uint64(limit) {
		if err := t.rechunk(path, tr, uint64(limit)); err != nil {
			return nil, err
		}
	}
	return tr, nil
}

// chunked records every stored chunk of a chunked dataset. Chunks that
// lie wholly outside the current shape are left out.
func (t *translator) chunked(path string, ds *hdf5.Dataset, meta *zarr.ArrayMeta, m *zarr.Manifest, extra int) error {
	chunks, err := ds.Chunks()
	if err != nil {
		return structureErr(path, err)
	}
	rank := len(meta.Shape) - extra
	for _, c := range chunks {
		if len(c.Offset) < rank {
			return structureErr(path, errors.Errorf("chunk at %d has rank %d offset", c.Address, len(c.Offset)))
		}
		idx := make([]uint64, len(meta.Shape))
		outside := false
		for d := 0; d < rank; d++ {
			if c.Offset[d] >= meta.Shape[d] {
				outside = true
			}
			idx[d] = c.Offset[d] / meta.Chunks[d]
		}
		if outside {
			continue
		}
		ref := zarr.ChunkRef{Offset: c.Address, Size: c.Size, Mask: c.FilterMask}
		if err := m.Add(meta.ChunkKey(idx), ref); err != nil {
			return structureErr(path, err)
		}
	}
	return nil
}

// strings stores a variable-length string dataset inline as one
// vlen-utf8 chunk.
func (t *translator) strings(path string, ds *hdf5.Dataset) (*Translation, error) {
	shape := append([]uint64{}, ds.Shape()...)
	filters := []codec.Config{codec.NewConfig(codec.VLenUTF8ID)}
	meta := &zarr.ArrayMeta{
		ZarrFormat: zarr.Format,
		Shape:      shape,
		Chunks:     wholeChunk(shape),
		DType:      zarr.Simple("|O"),
		Order:      zarr.OrderC,
		Filters:    filters,
	}
	if t.opts.DimensionSeparator != zarr.DefaultSep {
		meta.DimensionSeparator = t.opts.DimensionSeparator
	}
	manifest := zarr.NewManifest(zarr.Source{URI: t.uri, ArrayName: ds.Path()})

	if grid.NumElements(shape) > 0 {
		values, err := ds.ReadString()
		if err != nil {
			return nil, structureErr(path, errors.Wrap(err, "reading strings"))
		}
		chain, err := codec.NewChain(nil, filters)
		if err != nil {
			return nil, structureErr(path, err)
		}
		data, err := chain.EncodeStrings(values)
		if err != nil {
			return nil, structureErr(path, err)
		}
		ref := zarr.ChunkRef{Size: uint64(len(data)), Data: data}
		if err := manifest.Add(meta.ChunkKey(make([]uint64, len(shape))), ref); err != nil {
			return nil, structureErr(path, err)
		}
	}
	return &Translation{Source: ds.Path(), Meta: meta, Manifest: manifest}, nil
}

// rechunk splits oversized chunks into contiguous sub-chunks when the
// stored bytes are plain, and declines otherwise.
func (t *translator) rechunk(path string, tr *Translation, limit uint64) error {
	meta := tr.Meta
	decline := func(reason string) error {
		tr.Declined = reason
		if t.opts.Strict {
			return structureErr(path, errors.Errorf("chunk of %d bytes exceeds %d: %s", meta.ChunkBytes(), limit, reason))
		}
		t.opts.Logger.Warning(message.Fields{
			"message":     "keeping native chunks above max chunk size",
			"path":        path,
			"chunk_bytes": meta.ChunkBytes(),
			"limit":       limit,
			"reason":      reason,
		})
		return nil
	}

	if meta.Compressor != nil || len(meta.Filters) > 0 {
		return decline("chunks are filtered")
	}
	itemSize := uint64(meta.DType.ItemSize())
	sub, ok := subChunkShape(meta.Chunks, itemSize, limit)
	if !ok {
		return decline("no sub-chunk fits")
	}
	chunkBytes := meta.ChunkBytes()
	for _, k := range tr.Manifest.Keys() {
		if tr.Manifest.Chunks[k].Size != chunkBytes {
			return decline(fmt.Sprintf("chunk %s is not stored at full size", k))
		}
	}

	out, err := subdivide(meta, tr.Manifest, sub)
	if err != nil {
		return structureErr(path, err)
	}
	meta.Chunks = sub
	tr.Manifest = out
	tr.Rechunked = true
	t.opts.Logger.Debug(message.Fields{
		"message": "split chunks",
		"path":    path,
		"chunks":  sub,
		"records": out.Len(),
	})
	return nil
}

// subChunkShape returns the largest C-contiguous block of chunk that fits
// limit bytes: ones up to dimension d, a divisor k of chunk[d], then the
// full trailing dimensions. d is the outermost dimension whose trailing
// product fits.
func subChunkShape(chunk []uint64, itemSize, limit uint64) ([]uint64, bool) {
	n := len(chunk)
	if n == 0 || itemSize == 0 || itemSize > limit {
		return nil, false
	}
	tails := make([]uint64, n)
	tail := itemSize
	for d := n - 1; d >= 0; d-- {
		tails[d] = tail
		tail *= chunk[d]
	}
	d := 0
	for tails[d] > limit {
		d++
	}
	k := limit / tails[d]
	if k > chunk[d] {
		k = chunk[d]
	}
	for chunk[d]%k != 0 {
		k--
	}
	sub := make([]uint64, n)
	for i := range sub {
		switch {
		case i < d:
			sub[i] = 1
		case i == d:
			sub[i] = k
		default:
			sub[i] = chunk[i]
		}
	}
	return sub, true
}

// subdivide maps every record of m onto the finer grid sub. Each piece
// is a byte sub-range of its stored chunk. Pieces past the array edge
// are dropped.
func subdivide(meta *zarr.ArrayMeta, m *zarr.Manifest, sub []uint64) (*zarr.Manifest, error) {
	n := len(sub)
	itemSize := uint64(meta.DType.ItemSize())
	strides := grid.Strides(meta.Chunks, itemSize, false)
	pieces := make([]uint64, n)
	for i := range sub {
		pieces[i] = meta.Chunks[i] / sub[i]
	}
	pieceBytes := grid.NumElements(sub) * itemSize
	sep := meta.Separator()

	out := zarr.NewManifest(m.Source)
	for _, key := range m.Keys() {
		ref := m.Chunks[key]
		idx, err := zarr.ParseChunkKey(key, n, sep)
		if err != nil {
			return nil, err
		}
		err = grid.Each(make([]uint64, n), pieces, func(j []uint64) error {
			newIdx := make([]uint64, n)
			var off uint64
			for i := range j {
				newIdx[i] = idx[i]*pieces[i] + j[i]
				if newIdx[i]*sub[i] >= meta.Shape[i] {
					return nil
				}
				off += j[i] * sub[i] * strides[i]
			}
			piece := zarr.ChunkRef{Offset: ref.Offset + off, Size: pieceBytes}
			if ref.Inline() {
				piece = zarr.ChunkRef{Size: pieceBytes, Data: ref.Data[off : off+pieceBytes]}
			}
			return out.Add(zarr.ChunkKey(newIdx, sep), piece)
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// wholeChunk is the chunk shape of unchunked storage: the dataset shape,
// with empty dimensions given length 1.
func wholeChunk(shape []uint64) []uint64 {
	chunks := make([]uint64, len(shape))
	for i, s := range shape {
		chunks[i] = max(s, 1)
	}
	return chunks
}

// translateFilters maps an HDF5 filter pipeline to numcodecs configs. A
// trailing compressor becomes the array compressor; everything else is
// listed as filters in pipeline order.
func translateFilters(path string, pipeline []h5msg.FilterInfo) (codec.Config, []codec.Config, error) {
	var configs []codec.Config
	for _, f := range pipeline {
		cfg, ok := filterConfig(f)
		if !ok {
			return nil, nil, &UnsupportedCodecError{Path: path, FilterID: f.ID, Name: hdf5.FilterName(f.ID)}
		}
		configs = append(configs, cfg)
	}
	if n := len(configs); n > 0 && codec.IsCompressor(configs[n-1].ID()) {
		return configs[n-1], configs[:n-1], nil
	}
	return nil, configs, nil
}

var bloscNames = []string{"blosclz", "lz4", "lz4hc", "snappy", "zlib", "zstd"}

func filterConfig(f h5msg.FilterInfo) (codec.Config, bool) {
	param := func(i int, def int) int {
		if i < len(f.ClientData) {
			return int(int32(f.ClientData[i]))
		}
		return def
	}
	switch f.ID {
	case h5msg.FilterDeflate:
		return codec.NewConfig(codec.ZlibID, "level", param(0, 6)), true
	case h5msg.FilterShuffle:
		return codec.NewConfig(codec.ShuffleID, "elementsize", param(0, 1)), true
	case h5msg.FilterFletcher32:
		return codec.NewConfig(codec.Fletcher32ID), true
	case h5msg.FilterBZIP2:
		return codec.NewConfig(codec.BZ2ID, "level", param(0, 9)), true
	case h5msg.FilterZstd:
		return codec.NewConfig(codec.ZstdID, "level", param(0, 3)), true
	case h5msg.FilterLZ4:
		return codec.NewConfig(codec.LZ4H5ID), true
	case h5msg.FilterBlosc:
		cname := "blosclz"
		if c := param(6, 0); c >= 0 && c < len(bloscNames) {
			cname = bloscNames[c]
		}
		return codec.NewConfig(codec.BloscID,
			"cname", cname,
			"clevel", param(4, 5),
			"shuffle", param(5, 1),
			"blocksize", 0,
		), true
	}
	return nil, false
}

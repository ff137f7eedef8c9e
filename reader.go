package h5zarr

import (
	"context"
	"strings"
	"sync"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/h5zarr/codec"
	"github.com/robert-malhotra/h5zarr/internal/grid"
	"github.com/robert-malhotra/h5zarr/internal/metrics"
	"github.com/robert-malhotra/h5zarr/source"
	"github.com/robert-malhotra/h5zarr/zarr"
)

// ErrChunkTooLarge is wrapped by RangeUnavailableError when a chunk is
// larger than MaxChunkBytes.
var ErrChunkTooLarge = errors.New("chunk exceeds max chunk size")

// Range is the half-open interval [Start, Stop) along one dimension.
type Range struct {
	Start, Stop uint64
}

// Reader reads array regions straight from the source file, using the
// chunk manifests of a consolidated document.
type Reader struct {
	doc  *zarr.Consolidated
	src  source.RangeSource
	opts *Options

	mu     sync.Mutex
	arrays map[string]*arrayState
}

type arrayState struct {
	path     string
	meta     *zarr.ArrayMeta
	manifest *zarr.Manifest
	chain    *codec.Chain
	fill     []byte

	// pipeline is filters then compressor, the order a chunk filter mask
	// refers to.
	pipeline []codec.Config
}

// NewReader returns a Reader over src. Fetches are bounded by
// FetchTimeout and run Concurrency at a time.
func NewReader(doc *zarr.Consolidated, src source.RangeSource, opts ...Option) (*Reader, error) {
	o := NewOptions(opts...)
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	if o.FetchTimeout > 0 {
		src = source.WithTimeout(src, o.FetchTimeout)
	}
	return &Reader{doc: doc, src: src, opts: o, arrays: map[string]*arrayState{}}, nil
}

// Metadata returns the document the reader was built from.
func (r *Reader) Metadata() *zarr.Consolidated {
	return r.doc
}

func (r *Reader) array(path string) (*arrayState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.arrays[path]; ok {
		return st, nil
	}

	meta, err := r.doc.Array(path)
	if err != nil {
		return nil, errors.Wrapf(err, "array %q", path)
	}
	manifest, err := r.doc.Manifest(path)
	if err != nil {
		return nil, errors.Wrapf(err, "array %q", path)
	}
	chain, err := codec.NewChain(meta.Compressor, meta.Filters)
	if err != nil {
		return nil, &CodecError{Path: path, Err: err}
	}
	fill, err := fillBytes(meta.DType, meta.FillValue)
	if err != nil {
		return nil, errors.Wrapf(err, "array %q", path)
	}
	st := &arrayState{
		path:     path,
		meta:     meta,
		manifest: manifest,
		chain:    chain,
		fill:     fill,
		pipeline: append([]codec.Config{}, meta.Filters...),
	}
	if meta.Compressor != nil {
		st.pipeline = append(st.pipeline, meta.Compressor)
	}
	r.arrays[path] = st
	return st, nil
}

// Read returns the region sel of the array at path, one Range per
// dimension; a nil sel reads the whole array. Only chunks that intersect
// the region are fetched. On failure no data is returned.
func (r *Reader) Read(ctx context.Context, path string, sel []Range) (*Array, error) {
	path = strings.Trim(path, "/")
	st, err := r.array(path)
	if err != nil {
		return nil, err
	}
	meta := st.meta
	rank := len(meta.Shape)

	if sel == nil {
		sel = make([]Range, rank)
		for d, s := range meta.Shape {
			sel[d] = Range{0, s}
		}
	}
	if len(sel) != rank {
		return nil, errors.Errorf("array %q has %d dimensions, selection has %d", path, rank, len(sel))
	}
	lo := make([]uint64, rank)
	hi := make([]uint64, rank)
	shape := make([]uint64, rank)
	for d, s := range sel {
		if s.Start > s.Stop || s.Stop > meta.Shape[d] {
			return nil, errors.Errorf("array %q: selection [%d, %d) out of bounds for dimension %d of length %d", path, s.Start, s.Stop, d, meta.Shape[d])
		}
		lo[d], hi[d], shape[d] = s.Start, s.Stop, s.Stop-s.Start
	}

	out := newArray(path, meta.DType, shape, st.fill)
	if out.Len() == 0 {
		return out, nil
	}

	first, last := grid.Covering(lo, hi, meta.Chunks)
	var keys []string
	var boxes [][]uint64
	_ = grid.Each(first, last, func(idx []uint64) error {
		if key := meta.ChunkKey(idx); hasChunk(st.manifest, key) {
			keys = append(keys, key)
			boxes = append(boxes, idx)
		}
		return nil
	})

	catcher := grip.NewBasicCatcher()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Concurrency)
	for i := range keys {
		key, idx := keys[i], boxes[i]
		g.Go(func() error {
			err := r.readChunk(gctx, st, key, idx, lo, hi, out)
			if err != nil && !(ctx.Err() == nil && gctx.Err() != nil && errors.Is(err, context.Canceled)) {
				catcher.Add(err)
			}
			return err
		})
	}
	_ = g.Wait()

	if catcher.HasErrors() {
		errs := catcher.Errors()
		r.opts.Logger.Error(message.Fields{
			"message": "read failed",
			"path":    path,
			"chunks":  len(keys),
			"failed":  len(errs),
			"errors":  catcher.Resolve().Error(),
		})
		if len(errs) == 1 {
			return nil, errs[0]
		}
		return nil, errors.WithMessagef(errs[0], "%d of %d chunk reads failed", len(errs), len(keys))
	}
	return out, nil
}

func (r *Reader) readChunk(ctx context.Context, st *arrayState, key string, idx, lo, hi []uint64, out *Array) error {
	ref := st.manifest.Chunks[key]
	raw, err := r.fetch(ctx, st, key, ref)
	if err != nil {
		return err
	}

	meta := st.meta
	origin := make([]uint64, len(idx))
	end := make([]uint64, len(idx))
	for d := range idx {
		origin[d] = idx[d] * meta.Chunks[d]
		end[d] = origin[d] + meta.Chunks[d]
	}
	rlo, rhi, ok := grid.Intersect(origin, end, lo, hi)
	if !ok && len(idx) > 0 {
		return nil
	}

	chain, err := st.chainFor(ref.Mask)
	if err != nil {
		return &CodecError{Path: st.path, Chunk: key, Err: err}
	}
	fortran := meta.Order == zarr.OrderF

	if meta.DType.IsObject() {
		values, err := chain.DecodeStrings(raw)
		if err != nil {
			metrics.CounterChunkDecodeErrors.Inc()
			return &CodecError{Path: st.path, Chunk: key, Err: err}
		}
		if uint64(len(values)) != meta.ChunkElements() {
			metrics.CounterChunkDecodeErrors.Inc()
			return &CodecError{Path: st.path, Chunk: key, Err: errors.Errorf("decoded %d strings, want %d", len(values), meta.ChunkElements())}
		}
		copyStrings(out.strs, values, out.block(lo), origin, meta.Chunks, fortran, rlo, rhi)
		return nil
	}

	data, err := chain.Decode(raw)
	if err != nil {
		metrics.CounterChunkDecodeErrors.Inc()
		return &CodecError{Path: st.path, Chunk: key, Err: err}
	}
	if uint64(len(data)) != meta.ChunkBytes() {
		metrics.CounterChunkDecodeErrors.Inc()
		return &CodecError{Path: st.path, Chunk: key, Err: errors.Errorf("decoded %d bytes, want %d", len(data), meta.ChunkBytes())}
	}
	src := grid.Block{Data: data, Origin: origin, Shape: meta.Chunks, Fortran: fortran}
	grid.Copy(out.block(lo), src, rlo, rhi, uint64(meta.DType.ItemSize()))
	return nil
}

func (r *Reader) fetch(ctx context.Context, st *arrayState, key string, ref zarr.ChunkRef) ([]byte, error) {
	// the limit applies to the stored bytes and to the decoded chunk
	if limit := r.opts.MaxChunkBytes; limit > 0 {
		if size := max(ref.Size, st.meta.ChunkBytes()); size > uint64(limit) {
			return nil, &RangeUnavailableError{Path: st.path, Chunk: key, Err: errors.Wrapf(ErrChunkTooLarge, "%d > %d bytes", size, limit)}
		}
	}
	if ref.Inline() {
		return ref.Data, nil
	}
	data, err := r.src.ReadRange(ctx, int64(ref.Offset), int64(ref.Size))
	if err != nil {
		return nil, &RangeUnavailableError{Path: st.path, Chunk: key, Err: err}
	}
	return data, nil
}

// chainFor returns the codec chain of a chunk, leaving out the filters
// its mask marks as skipped.
func (st *arrayState) chainFor(mask uint32) (*codec.Chain, error) {
	if mask == 0 {
		return st.chain, nil
	}
	var kept []codec.Config
	for i, cfg := range st.pipeline {
		if i < 32 && mask&(1<<uint(i)) != 0 {
			continue
		}
		kept = append(kept, cfg)
	}
	return codec.NewChain(nil, kept)
}

// ChunkKeys returns the keys of the stored chunks that intersect sel,
// the set of fetches a Read of sel performs.
func (r *Reader) ChunkKeys(path string, sel []Range) ([]string, error) {
	st, err := r.array(strings.Trim(path, "/"))
	if err != nil {
		return nil, err
	}
	meta := st.meta
	if len(sel) != len(meta.Shape) {
		return nil, errors.Errorf("array %q has %d dimensions, selection has %d", path, len(meta.Shape), len(sel))
	}
	lo := make([]uint64, len(sel))
	hi := make([]uint64, len(sel))
	for d, s := range sel {
		if s.Start >= s.Stop {
			return nil, nil
		}
		lo[d], hi[d] = s.Start, min(s.Stop, meta.Shape[d])
	}
	first, last := grid.Covering(lo, hi, meta.Chunks)
	var keys []string
	_ = grid.Each(first, last, func(idx []uint64) error {
		if key := meta.ChunkKey(idx); hasChunk(st.manifest, key) {
			keys = append(keys, key)
		}
		return nil
	})
	return keys, nil
}

func hasChunk(m *zarr.Manifest, key string) bool {
	_, ok := m.Chunks[key]
	return ok
}

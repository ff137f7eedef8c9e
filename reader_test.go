package h5zarr

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/source"
	"github.com/robert-malhotra/h5zarr/store"
	"github.com/robert-malhotra/h5zarr/zarr"
)

// readerFor consolidates the file at path and returns a reader over a
// counting source of the same file.
func readerFor(t *testing.T, path string, opts ...Option) (*Reader, *countingSource) {
	t.Helper()
	_, doc, err := Consolidate(context.Background(), openFile(t, path), store.NewMemory(), opts...)
	require.NoError(t, err)
	src := &countingSource{RangeSource: openSource(t, path)}
	r, err := NewReader(doc, src, opts...)
	require.NoError(t, err)
	return r, src
}

// direct reads the hyperslab [start, start+count) with the hdf5 package.
func direct(t *testing.T, path, name string, start, count []uint64) []byte {
	t.Helper()
	ds, err := openFile(t, path).OpenDataset(name)
	require.NoError(t, err)
	data, err := ds.ReadSlice(start, count)
	require.NoError(t, err)
	return data
}

func selection(start, count []uint64) []Range {
	sel := make([]Range, len(start))
	for i := range start {
		sel[i] = Range{start[i], start[i] + count[i]}
	}
	return sel
}

func TestReadPartialChunkMinimality(t *testing.T) {
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", sequence(1000), hdf5.WithChunks(100))
		return err
	})
	r, src := readerFor(t, path)

	sel := []Range{{250, 260}}
	keys, err := r.ChunkKeys("data", sel)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, keys)

	out, err := r.Read(context.Background(), "data", sel)
	require.NoError(t, err)
	assert.Equal(t, 1, src.count())
	assert.Equal(t, []uint64{10}, out.Shape)

	values, err := out.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{250, 251, 252, 253, 254, 255, 256, 257, 258, 259}, values)
	assert.Equal(t, direct(t, path, "data", []uint64{250}, []uint64{10}), out.Data)
}

func TestReadTouchesOnlyCoveringChunks(t *testing.T) {
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("grid", sequence(400), hdf5.WithShape(20, 20), hdf5.WithChunks(5, 5), hdf5.WithCompression(3))
		return err
	})
	r, src := readerFor(t, path)

	tests := []struct {
		start, count []uint64
		fetches      int
	}{
		{[]uint64{0, 0}, []uint64{5, 5}, 1},
		{[]uint64{3, 3}, []uint64{4, 4}, 4},
		{[]uint64{0, 0}, []uint64{20, 20}, 16},
		{[]uint64{7, 1}, []uint64{1, 18}, 4},
		{[]uint64{19, 19}, []uint64{1, 1}, 1},
	}
	for _, tt := range tests {
		before := src.count()
		sel := selection(tt.start, tt.count)
		keys, err := r.ChunkKeys("grid", sel)
		require.NoError(t, err)
		assert.Len(t, keys, tt.fetches)

		out, err := r.Read(context.Background(), "grid", sel)
		require.NoError(t, err)
		assert.Equal(t, tt.fetches, src.count()-before, "%v+%v", tt.start, tt.count)
		assert.Equal(t, direct(t, path, "grid", tt.start, tt.count), out.Data, "%v+%v", tt.start, tt.count)
	}
}

func TestReadCodecs(t *testing.T) {
	tests := map[string][]hdf5.DatasetOption{
		"none":                       nil,
		"deflate":                    {hdf5.WithCompression(6)},
		"shuffle deflate":            {hdf5.WithShuffle(), hdf5.WithCompression(6)},
		"shuffle deflate fletcher32": {hdf5.WithShuffle(), hdf5.WithCompression(6), hdf5.WithFletcher32()},
		"fletcher32":                 {hdf5.WithFletcher32()},
		"zstd":                       {hdf5.WithZstd(3)},
		"bzip2":                      {hdf5.WithBZip2(9)},
		"lz4":                        {hdf5.WithLZ4(0)},
		"shuffle lz4":                {hdf5.WithShuffle(), hdf5.WithLZ4(0)},
	}
	values := make([]float64, 300)
	for i := range values {
		values[i] = float64(i) / 4
	}
	for name, opts := range tests {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, func(root *hdf5.Group) error {
				_, err := root.CreateDataset("data", values, append([]hdf5.DatasetOption{hdf5.WithChunks(64)}, opts...)...)
				return err
			})
			r, _ := readerFor(t, path)

			out, err := r.Read(context.Background(), "data", nil)
			require.NoError(t, err)
			got, err := out.Float64s()
			require.NoError(t, err)
			assert.Equal(t, values, got)

			part, err := r.Read(context.Background(), "data", []Range{{60, 70}})
			require.NoError(t, err)
			got, err = part.Float64s()
			require.NoError(t, err)
			assert.Equal(t, values[60:70], got)
		})
	}
}

func TestReadRechunkedMatchesDirect(t *testing.T) {
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("grid", sequence(600), hdf5.WithShape(12, 50), hdf5.WithChunks(6, 50))
		return err
	})
	r, src := readerFor(t, path, WithMaxChunkBytes(256))

	meta, err := r.Metadata().Array("grid")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 50}, meta.Chunks)

	regions := [][2][]uint64{
		{{0, 0}, {12, 50}},
		{{5, 10}, {3, 7}},
		{{11, 49}, {1, 1}},
		{{2, 0}, {1, 50}},
	}
	for _, reg := range regions {
		before := src.count()
		out, err := r.Read(context.Background(), "grid", selection(reg[0], reg[1]))
		require.NoError(t, err)
		assert.Equal(t, direct(t, path, "grid", reg[0], reg[1]), out.Data, "%v", reg)
		assert.Equal(t, int(reg[1][0]), src.count()-before, "one fetch per row for %v", reg)
	}
}

func TestReadMissingChunksUseFillValue(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", []float64{1, 2, 3, 4, 5, 6}, hdf5.WithChunks(2), hdf5.WithFillValue(-1.5))
		return err
	})
	_, doc, err := Consolidate(ctx, openFile(t, path), store.NewMemory())
	require.NoError(t, err)

	m, err := doc.Manifest("data")
	require.NoError(t, err)
	delete(m.Chunks, "1")
	require.NoError(t, doc.Set(zarr.Key("data", zarr.ManifestKey), m))

	src := &countingSource{RangeSource: openSource(t, path)}
	r, err := NewReader(doc, src)
	require.NoError(t, err)
	out, err := r.Read(ctx, "data", nil)
	require.NoError(t, err)
	got, err := out.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, -1.5, -1.5, 5, 6}, got)
	assert.Equal(t, 2, src.count())
}

func TestReadTimeout(t *testing.T) {
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", sequence(100), hdf5.WithChunks(10))
		return err
	})
	_, doc, err := Consolidate(context.Background(), openFile(t, path), store.NewMemory())
	require.NoError(t, err)

	r, err := NewReader(doc, stalledSource{openSource(t, path)}, WithFetchTimeout(20*time.Millisecond))
	require.NoError(t, err)

	start := time.Now()
	out, err := r.Read(context.Background(), "data", []Range{{5, 15}})
	assert.Nil(t, out)
	var unavailable *RangeUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "data", unavailable.Path)
	assert.True(t, errors.Is(err, source.ErrTimeout))
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestReadCancelled(t *testing.T) {
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", sequence(100), hdf5.WithChunks(10))
		return err
	})
	_, doc, err := Consolidate(context.Background(), openFile(t, path), store.NewMemory())
	require.NoError(t, err)
	r, err := NewReader(doc, stalledSource{openSource(t, path)}, WithFetchTimeout(-1))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	out, err := r.Read(ctx, "data", nil)
	assert.Nil(t, out)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReadMaxChunkBytes(t *testing.T) {
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", sequence(100), hdf5.WithChunks(50))
		return err
	})
	_, doc, err := Consolidate(context.Background(), openFile(t, path), store.NewMemory())
	require.NoError(t, err)

	r, err := NewReader(doc, openSource(t, path), WithMaxChunkBytes(100))
	require.NoError(t, err)
	_, err = r.Read(context.Background(), "data", []Range{{0, 1}})
	var unavailable *RangeUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.True(t, errors.Is(err, ErrChunkTooLarge))
}

func TestReadMaxChunkBytesCountsDecodedSize(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", make([]int32, 2000), hdf5.WithChunks(2000), hdf5.WithCompression(6))
		return err
	})
	_, doc, err := Consolidate(ctx, openFile(t, path), store.NewMemory())
	require.NoError(t, err)
	m, err := doc.Manifest("data")
	require.NoError(t, err)
	require.Less(t, m.Chunks["0"].Size, uint64(1000), "zeros compress below the limit")

	src := &countingSource{RangeSource: openSource(t, path)}
	r, err := NewReader(doc, src, WithMaxChunkBytes(1000))
	require.NoError(t, err)
	out, err := r.Read(ctx, "data", []Range{{0, 10}})
	assert.Nil(t, out)
	var unavailable *RangeUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, "0", unavailable.Chunk)
	assert.True(t, errors.Is(err, ErrChunkTooLarge))
	assert.Zero(t, src.count())
}

func TestReadCorruptChunk(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", sequence(100), hdf5.WithChunks(50), hdf5.WithCompression(6))
		return err
	})
	_, doc, err := Consolidate(ctx, openFile(t, path), store.NewMemory())
	require.NoError(t, err)

	m, err := doc.Manifest("data")
	require.NoError(t, err)
	ref := m.Chunks["1"]
	m.Chunks["1"] = zarr.ChunkRef{Size: ref.Size, Data: make([]byte, ref.Size)}
	require.NoError(t, doc.Set(zarr.Key("data", zarr.ManifestKey), m))

	r, err := NewReader(doc, openSource(t, path))
	require.NoError(t, err)

	out, err := r.Read(ctx, "data", []Range{{0, 10}})
	require.NoError(t, err)
	assert.Equal(t, 10, out.Len())

	_, err = r.Read(ctx, "data", []Range{{40, 60}})
	var codecErr *CodecError
	require.True(t, errors.As(err, &codecErr))
	assert.Equal(t, "1", codecErr.Chunk)
}

func TestReadStringsAndScalars(t *testing.T) {
	path := writeFile(t, func(root *hdf5.Group) error {
		if _, err := root.CreateDataset("names", []string{"alpha", "beta", "gamma", "delta"}); err != nil {
			return err
		}
		_, err := root.CreateDataset("answer", []int64{42}, hdf5.WithScalar())
		return err
	})
	r, src := readerFor(t, path)

	out, err := r.Read(context.Background(), "names", []Range{{1, 3}})
	require.NoError(t, err)
	values, err := out.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"beta", "gamma"}, values)
	assert.Nil(t, out.Data)

	scalar, err := r.Read(context.Background(), "answer", nil)
	require.NoError(t, err)
	assert.Empty(t, scalar.Shape)
	ints, err := scalar.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, ints)
	assert.Equal(t, 1, src.count())
}

func TestReadSelectionErrors(t *testing.T) {
	path := writeFile(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", sequence(10))
		return err
	})
	r, src := readerFor(t, path)
	ctx := context.Background()

	_, err := r.Read(ctx, "data", []Range{{0, 11}})
	assert.Error(t, err)
	_, err = r.Read(ctx, "data", []Range{{0, 1}, {0, 1}})
	assert.Error(t, err)
	_, err = r.Read(ctx, "missing", nil)
	assert.Error(t, err)

	empty, err := r.Read(ctx, "data", []Range{{4, 4}})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 0, src.count())
}

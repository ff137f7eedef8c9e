package h5zarr

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/h5zarr/codec"
	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/zarr"
)

func translate(t *testing.T, build func(root *hdf5.Group) error, name string, opts ...Option) *Translation {
	t.Helper()
	f := openFile(t, writeFile(t, build))
	ds, err := f.OpenDataset(name)
	require.NoError(t, err)
	tr, err := Translate(f, ds, opts...)
	require.NoError(t, err)
	return tr
}

func TestTranslateChunked(t *testing.T) {
	tr := translate(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", sequence(1000), hdf5.WithChunks(100), hdf5.WithCompression(4))
		return err
	}, "data")

	meta := tr.Meta
	assert.Equal(t, "/data", tr.Source)
	assert.Equal(t, []uint64{1000}, meta.Shape)
	assert.Equal(t, []uint64{100}, meta.Chunks)
	assert.Equal(t, "<i4", meta.DType.String())
	assert.Equal(t, zarr.OrderC, meta.Order)
	assert.EqualValues(t, 0, meta.FillValue)
	require.NotNil(t, meta.Compressor)
	assert.Equal(t, codec.ZlibID, meta.Compressor.ID())
	assert.Equal(t, 4, meta.Compressor.Int("level", 0))
	assert.Empty(t, meta.Filters)

	assert.Equal(t, 10, tr.Manifest.Len())
	records, err := tr.Records()
	require.NoError(t, err)
	require.Len(t, records, 10)
	for i, r := range records {
		assert.Equal(t, []uint64{uint64(i)}, r.Index, r.Key)
		assert.Equal(t, codec.ZlibID, r.Codec, r.Key)
		assert.False(t, r.Inline(), r.Key)
		assert.NotZero(t, r.Offset, r.Key)
		assert.NotZero(t, r.Size, r.Key)
		assert.Zero(t, r.Mask, r.Key)
	}
	assert.Equal(t, "/data", tr.Manifest.Source.ArrayName)
}

func TestTranslateFilterOrder(t *testing.T) {
	tests := []struct {
		name       string
		opts       []hdf5.DatasetOption
		compressor string
		filters    []string
	}{
		{"shuffle deflate", []hdf5.DatasetOption{hdf5.WithShuffle(), hdf5.WithCompression(6)}, codec.ZlibID, []string{codec.ShuffleID}},
		{"deflate fletcher32", []hdf5.DatasetOption{hdf5.WithCompression(6), hdf5.WithFletcher32()}, "", []string{codec.ZlibID, codec.Fletcher32ID}},
		{"shuffle deflate fletcher32", []hdf5.DatasetOption{hdf5.WithShuffle(), hdf5.WithCompression(6), hdf5.WithFletcher32()}, "", []string{codec.ShuffleID, codec.ZlibID, codec.Fletcher32ID}},
		{"zstd", []hdf5.DatasetOption{hdf5.WithZstd(5)}, codec.ZstdID, nil},
		{"bzip2", []hdf5.DatasetOption{hdf5.WithBZip2(7)}, codec.BZ2ID, nil},
		{"lz4", []hdf5.DatasetOption{hdf5.WithLZ4(0)}, codec.LZ4H5ID, nil},
		{"fletcher32 only", []hdf5.DatasetOption{hdf5.WithFletcher32()}, "", []string{codec.Fletcher32ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := translate(t, func(root *hdf5.Group) error {
				opts := append([]hdf5.DatasetOption{hdf5.WithChunks(16)}, tt.opts...)
				_, err := root.CreateDataset("data", sequence(64), opts...)
				return err
			}, "data")

			if tt.compressor == "" {
				assert.Nil(t, tr.Meta.Compressor)
			} else {
				require.NotNil(t, tr.Meta.Compressor)
				assert.Equal(t, tt.compressor, tr.Meta.Compressor.ID())
			}
			var ids []string
			for _, f := range tr.Meta.Filters {
				ids = append(ids, f.ID())
			}
			assert.Equal(t, tt.filters, ids)
		})
	}
}

func TestTranslateFilterParameters(t *testing.T) {
	tr := translate(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", []float64{1, 2, 3, 4}, hdf5.WithChunks(2), hdf5.WithShuffle(), hdf5.WithZstd(9))
		return err
	}, "data")
	require.Len(t, tr.Meta.Filters, 1)
	assert.Equal(t, 8, tr.Meta.Filters[0].Int("elementsize", 0))
	assert.Equal(t, 9, tr.Meta.Compressor.Int("level", 0))
}

func TestTranslateContiguousAndCompact(t *testing.T) {
	build := func(root *hdf5.Group) error {
		if _, err := root.CreateDataset("plain", []float32{1, 2, 3}); err != nil {
			return err
		}
		_, err := root.CreateDataset("small", []int16{4, 5, 6}, hdf5.WithCompact())
		return err
	}

	plain := translate(t, build, "plain")
	assert.Equal(t, []uint64{3}, plain.Meta.Chunks)
	assert.Equal(t, "<f4", plain.Meta.DType.String())
	require.Equal(t, 1, plain.Manifest.Len())
	ref := plain.Manifest.Chunks["0"]
	assert.False(t, ref.Inline())
	assert.EqualValues(t, 12, ref.Size)

	small := translate(t, build, "small")
	require.Equal(t, 1, small.Manifest.Len())
	ref = small.Manifest.Chunks["0"]
	assert.True(t, ref.Inline())
	assert.Equal(t, []byte{4, 0, 5, 0, 6, 0}, ref.Data)
	assert.EqualValues(t, 6, ref.Size)
}

func TestTranslateFillValue(t *testing.T) {
	tr := translate(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("data", []float64{1, 2, 3}, hdf5.WithChunks(2), hdf5.WithFillValue(-1.5))
		return err
	}, "data")
	assert.EqualValues(t, -1.5, tr.Meta.FillValue)
}

func TestTranslateVarLenStrings(t *testing.T) {
	tr := translate(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("names", []string{"alpha", "", "gamma"})
		return err
	}, "names")

	assert.Equal(t, "|O", tr.Meta.DType.String())
	require.Len(t, tr.Meta.Filters, 1)
	assert.Equal(t, codec.VLenUTF8ID, tr.Meta.Filters[0].ID())
	assert.Nil(t, tr.Meta.Compressor)
	require.Equal(t, 1, tr.Manifest.Len())

	chain, err := codec.NewChain(nil, tr.Meta.Filters)
	require.NoError(t, err)
	values, err := chain.DecodeStrings(tr.Manifest.Chunks["0"].Data)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "", "gamma"}, values)
}

func TestTranslateDimensionSeparator(t *testing.T) {
	tr := translate(t, func(root *hdf5.Group) error {
		_, err := root.CreateDataset("grid", sequence(24), hdf5.WithShape(4, 6), hdf5.WithChunks(2, 3))
		return err
	}, "grid", WithDimensionSeparator("/"))

	assert.Equal(t, "/", tr.Meta.DimensionSeparator)
	assert.Equal(t, []string{"0/0", "0/1", "1/0", "1/1"}, tr.Manifest.Keys())

	records, err := tr.Records()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, []uint64{1, 0}, records[2].Index)
	assert.Empty(t, records[2].Codec)
	assert.EqualValues(t, 2*3*4, records[2].Size)
}

func TestTranslateRechunk(t *testing.T) {
	build := func(root *hdf5.Group) error {
		if _, err := root.CreateDataset("plain", sequence(200), hdf5.WithShape(10, 20), hdf5.WithChunks(10, 20)); err != nil {
			return err
		}
		_, err := root.CreateDataset("packed", sequence(200), hdf5.WithShape(10, 20), hdf5.WithChunks(10, 20), hdf5.WithCompression(1))
		return err
	}

	// 10x20 int32 chunks are 800 bytes; at most 200 bytes gives 2x20.
	plain := translate(t, build, "plain", WithMaxChunkBytes(200))
	assert.True(t, plain.Rechunked)
	assert.Empty(t, plain.Declined)
	assert.Equal(t, []uint64{2, 20}, plain.Meta.Chunks)
	require.Equal(t, 5, plain.Manifest.Len())
	first := plain.Manifest.Chunks["0.0"]
	second := plain.Manifest.Chunks["1.0"]
	assert.EqualValues(t, 160, first.Size)
	assert.Equal(t, first.Offset+160, second.Offset)

	sender, logger := captureLogger(t)
	packed := translate(t, build, "packed", WithMaxChunkBytes(200), logger)
	assert.False(t, packed.Rechunked)
	assert.Equal(t, "chunks are filtered", packed.Declined)
	assert.Equal(t, []uint64{10, 20}, packed.Meta.Chunks)
	msgs := drain(sender)
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[len(msgs)-1], "path='/packed'")

	f := openFile(t, writeFile(t, build))
	ds, err := f.OpenDataset("packed")
	require.NoError(t, err)
	_, err = Translate(f, ds, WithMaxChunkBytes(200), WithStrict())
	var structErr *StructureError
	require.True(t, errors.As(err, &structErr))
	assert.Equal(t, "/packed", structErr.Path)
}

func TestSubChunkShape(t *testing.T) {
	tests := []struct {
		chunk []uint64
		item  uint64
		limit uint64
		want  []uint64
		ok    bool
	}{
		{[]uint64{100}, 4, 100, []uint64{25}, true},
		{[]uint64{100}, 4, 120, []uint64{25}, true},
		{[]uint64{10, 20}, 4, 200, []uint64{2, 20}, true},
		{[]uint64{10, 20}, 4, 40, []uint64{1, 10}, true},
		{[]uint64{4, 5, 6}, 8, 48, []uint64{1, 1, 6}, true},
		{[]uint64{7}, 4, 8, []uint64{1}, true},
		{[]uint64{10}, 8, 4, nil, false},
	}
	for _, tt := range tests {
		got, ok := subChunkShape(tt.chunk, tt.item, tt.limit)
		assert.Equal(t, tt.ok, ok, "%v", tt.chunk)
		assert.Equal(t, tt.want, got, "%v", tt.chunk)
	}
}

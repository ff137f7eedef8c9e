package zarr

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/h5zarr/codec"
)

func sampleArray() *ArrayMeta {
	return &ArrayMeta{
		ZarrFormat: Format,
		Shape:      []uint64{1000, 20},
		Chunks:     []uint64{100, 20},
		DType:      Simple("<f8"),
		Compressor: codec.NewConfig(codec.ZlibID, "level", 4),
		FillValue:  Float(math.NaN()),
		Order:      OrderC,
	}
}

func TestChunkKey(t *testing.T) {
	assert.Equal(t, "0", ChunkKey(nil, "."))
	assert.Equal(t, "3", ChunkKey([]uint64{3}, "."))
	assert.Equal(t, "1.2.3", ChunkKey([]uint64{1, 2, 3}, ""))
	assert.Equal(t, "1/2/3", ChunkKey([]uint64{1, 2, 3}, "/"))

	idx, err := ParseChunkKey("1/2/3", 3, "/")
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, idx)

	idx, err = ParseChunkKey("0", 0, ".")
	require.NoError(t, err)
	assert.Empty(t, idx)

	_, err = ParseChunkKey("1.2", 3, ".")
	assert.Error(t, err)
	_, err = ParseChunkKey("1.x", 2, ".")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, ".zgroup", Key("", GroupKey))
	assert.Equal(t, "a/b/.zarray", Key("/a/b/", ArrayKey))
	assert.Equal(t, "a/b", Key("a/b", ""))

	p, name := SplitKey("a/b/.zarray")
	assert.Equal(t, "a/b", p)
	assert.Equal(t, ".zarray", name)
	p, name = SplitKey(".zgroup")
	assert.Equal(t, "", p)
	assert.Equal(t, ".zgroup", name)
}

func TestArrayMeta(t *testing.T) {
	m := sampleArray()
	require.NoError(t, m.Validate())
	assert.Equal(t, []uint64{10, 1}, m.Grid())
	assert.Equal(t, uint64(10), m.NumChunks())
	assert.Equal(t, uint64(2000*8), m.ChunkBytes())
	assert.Equal(t, "9.0", m.ChunkKey([]uint64{9, 0}))

	m.DimensionSeparator = "/"
	assert.Equal(t, "9/0", m.ChunkKey([]uint64{9, 0}))

	scalar := &ArrayMeta{ZarrFormat: Format, DType: Simple("<i4"), Order: OrderC}
	require.NoError(t, scalar.Validate())
	assert.Equal(t, uint64(1), scalar.NumChunks())
	assert.Equal(t, uint64(4), scalar.ChunkBytes())

	empty := &ArrayMeta{ZarrFormat: Format, Shape: []uint64{0}, Chunks: []uint64{1}, DType: Simple("<i4"), Order: OrderC}
	assert.Equal(t, uint64(0), empty.NumChunks())

	for name, mutate := range map[string]func(*ArrayMeta){
		"format":    func(m *ArrayMeta) { m.ZarrFormat = 3 },
		"rank":      func(m *ArrayMeta) { m.Chunks = []uint64{10} },
		"zeroChunk": func(m *ArrayMeta) { m.Chunks = []uint64{0, 1} },
		"order":     func(m *ArrayMeta) { m.Order = "K" },
		"dtype":     func(m *ArrayMeta) { m.DType = DType{} },
		"separator": func(m *ArrayMeta) { m.DimensionSeparator = "-" },
	} {
		t.Run(name, func(t *testing.T) {
			m := sampleArray()
			mutate(m)
			assert.Error(t, m.Validate())
		})
	}
}

func TestArrayMetaJSON(t *testing.T) {
	data, err := Marshal(sampleArray())
	require.NoError(t, err)

	expected := `{
  "chunks": [
    100,
    20
  ],
  "compressor": {
    "id": "zlib",
    "level": 4
  },
  "dtype": "<f8",
  "fill_value": "NaN",
  "filters": null,
  "order": "C",
  "shape": [
    1000,
    20
  ],
  "zarr_format": 2
}
`
	assert.Equal(t, expected, string(data))

	var back ArrayMeta
	require.NoError(t, Unmarshal(data, &back))
	assert.Equal(t, "zlib", back.Compressor.ID())
	assert.Equal(t, 4, back.Compressor.Int("level", 0))
	f, err := ParseFloat(back.FillValue)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(f))
	assert.Nil(t, back.Filters)
}

func TestMarshalCanonical(t *testing.T) {
	doc := map[string]interface{}{
		"z":     []interface{}{1, 2.5, "x<y"},
		"a":     map[string]interface{}{"b": 1, "a": uint64(math.MaxUint64)},
		"float": 1e-7,
	}
	first, err := Marshal(doc)
	require.NoError(t, err)
	second, err := Marshal(doc)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	s := string(first)
	assert.True(t, bytes.HasSuffix(first, []byte("}\n")))
	assert.Contains(t, s, "18446744073709551615")
	assert.Contains(t, s, `"x<y"`)
	assert.Less(t, bytes.Index(first, []byte(`"a"`)), bytes.Index(first, []byte(`"float"`)))
	assert.Less(t, bytes.Index(first, []byte(`"float"`)), bytes.Index(first, []byte(`"z"`)))

	var back map[string]interface{}
	require.NoError(t, Unmarshal(first, &back))
	assert.Equal(t, json.Number("18446744073709551615"), back["a"].(map[string]interface{})["a"])
}

func TestFloat(t *testing.T) {
	for _, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1), 0, -2.5} {
		got, err := ParseFloat(Float(f))
		require.NoError(t, err)
		if math.IsNaN(f) {
			assert.True(t, math.IsNaN(got))
		} else {
			assert.Equal(t, f, got)
		}
	}
	got, err := ParseFloat(json.Number("3.25"))
	require.NoError(t, err)
	assert.Equal(t, 3.25, got)

	_, err = ParseFloat("nope")
	assert.Error(t, err)
}

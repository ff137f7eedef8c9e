package h5zarr

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/zarr"
)

func TestZarrType(t *testing.T) {
	tests := []struct {
		name  string
		dt    *message.Datatype
		want  string
		extra []uint64
	}{
		{"int8", message.NewFixedPointDatatype(1, true, message.OrderLE), "|i1", nil},
		{"uint16be", message.NewFixedPointDatatype(2, false, message.OrderBE), ">u2", nil},
		{"int64", message.NewFixedPointDatatype(8, true, message.OrderLE), "<i8", nil},
		{"half", message.NewFloatDatatype(2, message.OrderLE), "<f2", nil},
		{"double", message.NewFloatDatatype(8, message.OrderBE), ">f8", nil},
		{"bitfield", message.NewBitfieldDatatype(4, message.OrderLE), "<u4", nil},
		{"fixed string", message.NewStringDatatype(7, message.PadNullTerm, message.CharsetASCII), "|S7", nil},
		{"vlen string", message.NewVarLenStringDatatype(message.CharsetUTF8), "|O", nil},
		{"opaque", message.NewOpaqueDatatype(5, "blob"), "|V5", nil},
		{"array", message.NewArrayDatatype([]uint32{2, 3}, message.NewFloatDatatype(4, message.OrderLE)), "<f4", []uint64{2, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, extra, err := zarrType(tt.dt)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
			assert.Equal(t, tt.extra, extra)
		})
	}
}

func TestZarrTypeCompound(t *testing.T) {
	got, extra, err := zarrType(pairType())
	require.NoError(t, err)
	assert.Nil(t, extra)
	assert.True(t, got.IsStructured())
	assert.Equal(t, 12, got.ItemSize())

	padded := message.NewCompoundDatatype(16, []message.CompoundMember{
		{Name: "id", ByteOffset: 0, Type: message.NewFixedPointDatatype(4, true, message.OrderLE)},
		{Name: "value", ByteOffset: 8, Type: message.NewFloatDatatype(8, message.OrderLE)},
	})
	_, _, err = zarrType(padded)
	assert.Error(t, err)
}

func TestFillValueRoundTrip(t *testing.T) {
	le := binary.LittleEndian
	be := binary.BigEndian
	half := make([]byte, 2)
	le.PutUint16(half, 0x3e00) // 1.5

	tests := []struct {
		dtype string
		raw   []byte
		json  interface{}
	}{
		{"<i4", le.AppendUint32(nil, uint32(0xfffffffe)), int64(-2)},
		{">u2", be.AppendUint16(nil, 513), uint64(513)},
		{"<f8", le.AppendUint64(nil, math.Float64bits(-0.25)), -0.25},
		{"<f2", half, 1.5},
		{"<f4", le.AppendUint32(nil, math.Float32bits(float32(math.Inf(1)))), "Infinity"},
		{"|S3", []byte("ab\x00"), "YWIA"},
		{"|V2", []byte{1, 2}, "AQI="},
	}
	for _, tt := range tests {
		t.Run(tt.dtype, func(t *testing.T) {
			dt := zarr.Simple(tt.dtype)
			v, err := fillValue(dt, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.json, v)

			// fill values come back from JSON as json.Number.
			doc, err := zarr.Marshal(map[string]interface{}{"v": v})
			require.NoError(t, err)
			var back map[string]interface{}
			require.NoError(t, zarr.Unmarshal(doc, &back))
			b, err := fillBytes(dt, back["v"])
			require.NoError(t, err)
			assert.Equal(t, tt.raw, b)
		})
	}
}

func TestFillValueDefaults(t *testing.T) {
	for dtype, want := range map[string]interface{}{
		"<i4": 0,
		"<f8": 0,
		"|S4": "",
		"|V2": "AAA=",
		"|O":  nil,
	} {
		v, err := fillValue(zarr.Simple(dtype), nil)
		require.NoError(t, err)
		assert.Equal(t, want, v, dtype)
	}

	b, err := fillBytes(zarr.Simple("<i2"), json.Number("-1"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xff, 0xff}, b)
	b, err = fillBytes(zarr.Simple("<f4"), nil)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 4), b)
	_, err = fillBytes(zarr.Simple("<i4"), "x")
	assert.Error(t, err)
}

func TestHalfFloat(t *testing.T) {
	for _, f := range []float64{0, 1, -2, 0.5, 65504, 1.0 / 1024} {
		assert.Equal(t, f, halfToFloat(floatToHalf(f)), "%v", f)
	}
	assert.True(t, math.IsInf(halfToFloat(floatToHalf(1e6)), 1))
	assert.True(t, math.IsNaN(halfToFloat(floatToHalf(math.NaN()))))
}

func TestReadBigEndianAndCompound(t *testing.T) {
	be := make([]byte, 12)
	for i, v := range []int32{-1, 2, 300} {
		binary.BigEndian.PutUint32(be[i*4:], uint32(v))
	}
	pairs := append(append(pair(1, 0.5), pair(2, 1.5)...), pair(3, 2.5)...)
	path := writeFile(t, func(root *hdf5.Group) error {
		if _, err := root.CreateDatasetRaw("be", []uint64{3}, message.NewFixedPointDatatype(4, true, message.OrderBE), be); err != nil {
			return err
		}
		_, err := root.CreateDatasetRaw("pairs", []uint64{3}, pairType(), pairs, hdf5.WithChunks(2))
		return err
	})
	r, _ := readerFor(t, path)

	out, err := r.Read(context.Background(), "be", nil)
	require.NoError(t, err)
	assert.Equal(t, ">i4", out.DType.String())
	values, err := out.Int64s()
	require.NoError(t, err)
	assert.Equal(t, []int64{-1, 2, 300}, values)
	floats, err := out.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, 2, 300}, floats)

	rec, err := r.Read(context.Background(), "pairs", []Range{{1, 3}})
	require.NoError(t, err)
	assert.Equal(t, pairs[12:], rec.Data)
	_, err = rec.Float64s()
	assert.Error(t, err)
}

func TestArrayStrings(t *testing.T) {
	fixed := &Array{DType: zarr.Simple("|S3"), Shape: []uint64{2}, Data: []byte("ab\x00xyz")}
	got, err := fixed.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"ab", "xyz"}, got)

	data := make([]byte, 16)
	for i, r := range []rune{'h', 'é', 0, 0} {
		binary.LittleEndian.PutUint32(data[i*4:], uint32(r))
	}
	wide := &Array{DType: zarr.Simple("<U2"), Shape: []uint64{2}, Data: data}
	got, err = wide.Strings()
	require.NoError(t, err)
	assert.Equal(t, []string{"hé", ""}, got)

	_, err = (&Array{DType: zarr.Simple("<i4"), Shape: []uint64{1}, Data: make([]byte, 4)}).Strings()
	assert.Error(t, err)
}

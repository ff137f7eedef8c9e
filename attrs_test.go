package h5zarr

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/store"
)

func pairType() *message.Datatype {
	return message.NewCompoundDatatype(12, []message.CompoundMember{
		{Name: "id", ByteOffset: 0, Type: message.NewFixedPointDatatype(4, true, message.OrderLE)},
		{Name: "value", ByteOffset: 4, Type: message.NewFloatDatatype(8, message.OrderLE)},
	})
}

func pair(id int32, value float64) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint32(b, uint32(id))
	binary.LittleEndian.PutUint64(b[4:], math.Float64bits(value))
	return b
}

func TestAttributeConversion(t *testing.T) {
	path := writeFile(t, func(root *hdf5.Group) error {
		target, err := root.CreateDataset("target", []int32{1})
		if err != nil {
			return err
		}
		other, err := root.CreateDataset("other", []int32{2})
		if err != nil {
			return err
		}
		g, err := root.CreateGroup("meta")
		if err != nil {
			return err
		}
		for name, v := range map[string]interface{}{
			"float":   2.5,
			"int":     int32(-7),
			"uint":    uint16(9),
			"floats":  []float64{1, 2, 3},
			"text":    "note",
			"texts":   []string{"a", "bc"},
			"ref":     hdf5.ObjectRef(target.Address()),
			"refs":    []hdf5.ObjectRef{hdf5.ObjectRef(other.Address()), hdf5.ObjectRef(target.Address())},
			"nan":     math.NaN(),
			"missing": hdf5.ObjectRef(1 << 40),
		} {
			if err := g.SetAttr(name, v); err != nil {
				return err
			}
		}
		return g.SetRawAttr("pair", pairType(), nil, pair(4, 0.25))
	})

	res, err := Walk(context.Background(), openFile(t, path))
	require.NoError(t, err)
	node := res.Node("meta")
	require.NotNil(t, node)
	attrs := node.Attrs

	assert.EqualValues(t, 2.5, attrs["float"])
	assert.EqualValues(t, -7, attrs["int"])
	assert.EqualValues(t, 9, attrs["uint"])
	assert.Equal(t, []interface{}{1.0, 2.0, 3.0}, attrs["floats"])
	assert.Equal(t, "note", attrs["text"])
	assert.Equal(t, []interface{}{"a", "bc"}, attrs["texts"])
	assert.Equal(t, "/target", attrs["ref"])
	assert.Equal(t, []interface{}{"/other", "/target"}, attrs["refs"])
	assert.Equal(t, "NaN", attrs["nan"])
	assert.Nil(t, attrs["missing"])
	assert.Contains(t, attrs, "missing")

	p, ok := attrs["pair"].(map[string]interface{})
	require.True(t, ok, "compound attribute becomes an object")
	assert.EqualValues(t, 4, p["id"])
	assert.EqualValues(t, 0.25, p["value"])
}

func TestAttributesAreCanonicalJSON(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, func(root *hdf5.Group) error {
		g, err := root.CreateGroup("g")
		if err != nil {
			return err
		}
		for _, name := range []string{"zeta", "alpha", "mid"} {
			if err := g.SetAttr(name, int64(len(name))); err != nil {
				return err
			}
		}
		return nil
	})
	st := store.NewMemory()
	_, _, err := Consolidate(ctx, openFile(t, path), st)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"alpha\": 5,\n  \"mid\": 3,\n  \"zeta\": 4\n}\n", string(mustGet(t, st, "g/.zattrs")))
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "abc", cleanString("abc\x00\x00"))
	assert.Equal(t, "a�b", cleanString("a\xffb"))
	assert.Equal(t, "", cleanString("\x00x"))
}

func TestNest(t *testing.T) {
	values := []interface{}{1, 2, 3, 4, 5, 6}
	assert.Equal(t, []interface{}{
		[]interface{}{1, 2, 3},
		[]interface{}{4, 5, 6},
	}, nest(values, []uint64{2, 3}))
	assert.Equal(t, values, nest(values, []uint64{6}))
	assert.Equal(t, []interface{}{}, nest(nil, []uint64{0}))
}

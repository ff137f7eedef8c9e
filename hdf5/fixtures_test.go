package hdf5

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/robert-malhotra/h5zarr/internal/message"
)

// buildFixture writes the named test file into a temporary directory with
// the package's own writer and returns its path.
//
//	minimal.h5        /data int64[10], /group
//	groups.h5         /group1/data, /group1/sub/deep, /group2, group attrs
//	scalar.h5         /scalar int64 scalar 42
//	empty.h5          /empty int64[0]
//	attributes.h5     /data with float_attr, string_attr, int_attr, array_attr
//	compound_attrs.h5 /data with a compound attribute
func buildFixture(t *testing.T, name string) string {
	t.Helper()

	build, ok := fixtures[name]
	if !ok {
		t.Fatalf("unknown fixture %q", name)
	}
	path := filepath.Join(t.TempDir(), name)
	f, err := Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := build(f.Root()); err != nil {
		f.Close()
		t.Fatalf("building %s: %v", name, err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return path
}

var fixtures = map[string]func(root *Group) error{
	"minimal.h5": func(root *Group) error {
		if _, err := root.CreateDataset("data", []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}); err != nil {
			return err
		}
		_, err := root.CreateGroup("group")
		return err
	},

	"groups.h5": func(root *Group) error {
		g1, err := root.CreateGroup("group1")
		if err != nil {
			return err
		}
		if _, err := g1.CreateDataset("data", []float64{1.5, 2.5, 3.5}); err != nil {
			return err
		}
		sub, err := g1.CreateGroup("sub")
		if err != nil {
			return err
		}
		if _, err := sub.CreateDataset("deep", []int32{7, 8}); err != nil {
			return err
		}
		if err := g1.SetAttr("title", "first"); err != nil {
			return err
		}
		g2, err := root.CreateGroup("group2")
		if err != nil {
			return err
		}
		return g2.SetAttr("count", int64(2))
	},

	"scalar.h5": func(root *Group) error {
		_, err := root.CreateDataset("scalar", int64(42), WithScalar())
		return err
	},

	"empty.h5": func(root *Group) error {
		_, err := root.CreateDataset("empty", []int64{})
		return err
	},

	"attributes.h5": func(root *Group) error {
		_, err := root.CreateDataset("data", []float32{1, 2, 3},
			WithAttribute("float_attr", 3.14),
			WithAttribute("string_attr", "hello"),
			WithAttribute("int_attr", int64(-7)),
			WithAttribute("array_attr", []int32{1, 2, 3}),
		)
		return err
	},

	"compound_attrs.h5": func(root *Group) error {
		dt := message.NewCompoundDatatype(12, []message.CompoundMember{
			{Name: "x", ByteOffset: 0, Type: message.NewFloatDatatype(8, message.OrderLE)},
			{Name: "n", ByteOffset: 8, Type: message.NewFixedPointDatatype(4, true, message.OrderLE)},
		})
		data := make([]byte, 12)
		binary.LittleEndian.PutUint64(data, math.Float64bits(0.5))
		binary.LittleEndian.PutUint32(data[8:], 3)
		_, err := root.CreateDataset("data", []int64{1},
			WithRawAttribute("point", dt, nil, data))
		return err
	},
}

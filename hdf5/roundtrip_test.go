package hdf5

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/robert-malhotra/h5zarr/internal/message"
)

func TestOpenRejectsInvalidFiles(t *testing.T) {
	valid, err := os.ReadFile(buildFixture(t, "minimal.h5"))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	tests := []struct {
		name    string
		content []byte
	}{
		{"empty", nil},
		{"not hdf5", []byte("this is a plain text file, not an HDF5 container")},
		{"truncated", valid[:32]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := OpenReader(bytes.NewReader(tt.content), tt.name); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := OpenReader(bytes.NewReader(make([]byte, 4096)), "zeros"); !errors.Is(err, ErrNotHDF5) {
		t.Errorf("zeros: got %v, want ErrNotHDF5", err)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.h5")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestMinimalFile(t *testing.T) {
	f, err := Open(buildFixture(t, "minimal.h5"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if f.Version() < 0 || f.Size() == 0 {
		t.Errorf("superblock v%d, size %d", f.Version(), f.Size())
	}

	members, err := f.Root().Members()
	if err != nil {
		t.Fatalf("Members failed: %v", err)
	}
	sort.Strings(members)
	if !reflect.DeepEqual(members, []string{"data", "group"}) {
		t.Errorf("members: got %v", members)
	}

	ds, err := f.OpenDataset("/data")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	if ds.Name() != "data" || ds.Path() != "/data" || ds.Rank() != 1 || ds.NumElements() != 10 {
		t.Errorf("dataset %s (%s): rank %d, %d elements", ds.Name(), ds.Path(), ds.Rank(), ds.NumElements())
	}
	checkData(t, ds, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})

	if _, err := f.OpenGroup("data"); err == nil {
		t.Error("opened a dataset as a group")
	}
	if _, err := f.OpenDataset("group"); err == nil {
		t.Error("opened a group as a dataset")
	}
	if _, err := f.OpenDataset("nope"); err == nil {
		t.Error("opened a missing dataset")
	}

	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestScalarAndEmptyDatasets(t *testing.T) {
	f, err := Open(buildFixture(t, "scalar.h5"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	ds, err := f.OpenDataset("scalar")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	if !ds.IsScalar() || ds.Shape() != nil || ds.NumElements() != 1 {
		t.Errorf("scalar: shape %v, %d elements", ds.Shape(), ds.NumElements())
	}
	checkData(t, ds, int64(42))

	e, err := Open(buildFixture(t, "empty.h5"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer e.Close()
	empty, err := e.OpenDataset("empty")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	if empty.IsScalar() || !reflect.DeepEqual(empty.Shape(), []uint64{0}) || empty.NumElements() != 0 {
		t.Errorf("empty: shape %v, %d elements", empty.Shape(), empty.NumElements())
	}
}

func TestDatasetAttributes(t *testing.T) {
	f, err := Open(buildFixture(t, "attributes.h5"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	ds, err := f.OpenDataset("data")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}

	names := ds.Attrs()
	sort.Strings(names)
	if want := []string{"array_attr", "float_attr", "int_attr", "string_attr"}; !reflect.DeepEqual(names, want) {
		t.Errorf("attrs: got %v, want %v", names, want)
	}
	if ds.Attr("missing") != nil {
		t.Error("found a missing attribute")
	}

	fa := ds.Attr("float_attr")
	if !fa.IsScalar() || fa.Datatype().Class != message.ClassFloatPoint {
		t.Errorf("float_attr: scalar %v, class %v", fa.IsScalar(), fa.Datatype().Class)
	}
	if got := math.Float64frombits(binary.LittleEndian.Uint64(fa.Data())); got != 3.14 {
		t.Errorf("float_attr: got %v", got)
	}

	if got := int64(binary.LittleEndian.Uint64(ds.Attr("int_attr").Data())); got != -7 {
		t.Errorf("int_attr: got %d", got)
	}

	arr := ds.Attr("array_attr")
	if !reflect.DeepEqual(arr.Shape(), []uint64{3}) || arr.NumElements() != 3 {
		t.Errorf("array_attr: shape %v", arr.Shape())
	}
	if got := arr.Data(); !bytes.Equal(got, []byte{1, 0, 0, 0, 2, 0, 0, 0, 3, 0, 0, 0}) {
		t.Errorf("array_attr: got %v", got)
	}

	s, err := ds.Attr("string_attr").ReadString()
	if err != nil || !reflect.DeepEqual(s, []string{"hello"}) {
		t.Errorf("string_attr: %q, %v", s, err)
	}
	if _, err := fa.ReadString(); err == nil {
		t.Error("read a float attribute as a string")
	}
}

func TestCompoundAttribute(t *testing.T) {
	f, err := Open(buildFixture(t, "compound_attrs.h5"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	ds, err := f.OpenDataset("data")
	if err != nil {
		t.Fatalf("OpenDataset failed: %v", err)
	}
	attr := ds.Attr("point")
	if attr == nil {
		t.Fatal("point attribute not found")
	}
	dt := attr.Datatype()
	if dt.Class != message.ClassCompound || dt.Size != 12 || len(dt.Members) != 2 {
		t.Fatalf("compound datatype: %+v", dt)
	}
	if dt.Members[0].Name != "x" || dt.Members[1].Name != "n" || dt.Members[1].ByteOffset != 8 {
		t.Errorf("members: %+v", dt.Members)
	}
	data := attr.Data()
	if math.Float64frombits(binary.LittleEndian.Uint64(data)) != 0.5 || binary.LittleEndian.Uint32(data[8:]) != 3 {
		t.Errorf("compound value: %v", data)
	}
}

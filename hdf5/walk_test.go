package hdf5

import (
	"strings"
	"testing"
)

func TestJoinAttrPath(t *testing.T) {
	tests := []struct {
		objectPath string
		attrName   string
		want       string
	}{
		{"/", "attr", "/@attr"},
		{"/data", "units", "/data@units"},
		{"/group/dataset", "calibration", "/group/dataset@calibration"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := JoinAttrPath(tt.objectPath, tt.attrName)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWalkOrder(t *testing.T) {
	f, err := Open(buildFixture(t, "groups.h5"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()

	var got []string
	err = Walk(f.Root(), func(v Visit) error {
		if v.Err != nil {
			return v.Err
		}
		switch v.Object.(type) {
		case *Group:
			got = append(got, "G "+v.Path)
		case *Dataset:
			got = append(got, "D "+v.Path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	want := []string{
		"G /",
		"G /group1",
		"D /group1/data",
		"G /group1/sub",
		"D /group1/sub/deep",
		"G /group2",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("walk order:\ngot  %v\nwant %v", got, want)
	}
}

func TestWalkLinksAndSkip(t *testing.T) {
	f := writeAndReopen(t, func(root *Group) {
		g, err := root.CreateGroup("grp")
		if err != nil {
			t.Fatalf("CreateGroup failed: %v", err)
		}
		mustCreate(t, g, "target", []int64{1, 2})
		if err := root.CreateSoftLink("alias", "/grp"); err != nil {
			t.Fatalf("CreateSoftLink failed: %v", err)
		}
		if err := root.CreateSoftLink("dangling", "/nowhere"); err != nil {
			t.Fatalf("CreateSoftLink failed: %v", err)
		}
		if err := root.CreateExternalLink("ext", "other.h5", "/data"); err != nil {
			t.Fatalf("CreateExternalLink failed: %v", err)
		}
	})

	visits := map[string]Visit{}
	err := Walk(f.Root(), func(v Visit) error {
		visits[v.Path] = v
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}

	if v := visits["/alias"]; v.Link.Kind != LinkSoft || v.Err != nil {
		t.Errorf("alias: kind %v, err %v", v.Link.Kind, v.Err)
	} else if _, ok := v.Object.(*Group); !ok {
		t.Errorf("alias resolved to %T", v.Object)
	}
	if _, ok := visits["/alias/target"]; ok {
		t.Error("walk descended into a soft-linked group")
	}
	if v := visits["/dangling"]; v.Err == nil {
		t.Error("dangling soft link reported no error")
	}
	if v := visits["/ext"]; v.Link.Kind != LinkExternal || v.Object != nil || v.Link.File != "other.h5" {
		t.Errorf("ext: %+v", v)
	}
	if _, ok := visits["/grp/target"]; !ok {
		t.Error("walk missed /grp/target")
	}

	visited := 0
	err = Walk(f.Root(), func(v Visit) error {
		visited++
		if v.Path == "/grp" {
			return SkipChildren
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk failed: %v", err)
	}
	if visited != len(visits)-1 {
		t.Errorf("SkipChildren: visited %d of %d", visited, len(visits))
	}
}

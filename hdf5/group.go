package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/h5zarr/internal/btree"
	"github.com/robert-malhotra/h5zarr/internal/heap"
	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/internal/object"
)

// Group is an HDF5 group.
type Group struct {
	file   *File
	path   string
	header *object.Header
	addr   uint64

	// set on groups created through the writer
	parent       *Group
	pendingLinks []*message.Link
	pendingAttrs []*message.Attribute
}

// target is the object a link resolves to.
type target struct {
	file      *File
	addr      uint64
	isDataset bool
}

// Name returns the last component of the group's path.
func (g *Group) Name() string {
	if g.path == "/" {
		return "/"
	}
	return path.Base(g.path)
}

func (g *Group) Path() string {
	return g.path
}

// OpenGroup opens a group below g. Soft and external links are followed.
func (g *Group) OpenGroup(relativePath string) (*Group, error) {
	obj, err := g.open(relativePath)
	if err != nil {
		return nil, err
	}
	group, ok := obj.(*Group)
	if !ok {
		return nil, ErrNotGroup
	}
	return group, nil
}

// OpenDataset opens a dataset below g. Soft and external links are followed.
func (g *Group) OpenDataset(relativePath string) (*Dataset, error) {
	obj, err := g.open(relativePath)
	if err != nil {
		return nil, err
	}
	ds, ok := obj.(*Dataset)
	if !ok {
		return nil, ErrNotDataset
	}
	return ds, nil
}

func (g *Group) open(relativePath string) (interface{}, error) {
	parts := splitPath(relativePath)
	current := g
	seen := make(map[string]bool)

	for i, name := range parts {
		t, err := current.lookup(name, seen)
		if err != nil {
			return nil, fmt.Errorf("finding %q: %w", name, err)
		}
		p := path.Join(current.path, name)
		if t.isDataset {
			if i < len(parts)-1 {
				return nil, fmt.Errorf("%q is not a group", p)
			}
			return t.file.openDatasetAt(t.addr, p)
		}
		if current, err = t.file.openGroupAt(t.addr, p); err != nil {
			return nil, err
		}
	}
	return current, nil
}

// lookup resolves the member name of g. seen holds the soft and external
// link targets already followed while resolving the current path.
func (g *Group) lookup(name string, seen map[string]bool) (target, error) {
	links, err := g.Links()
	if err != nil {
		return target{}, err
	}
	for _, l := range links {
		if l.Name == name {
			return g.file.follow(l, seen)
		}
	}
	return target{}, ErrNotFound
}

// Members returns the names of the group's members in storage order.
func (g *Group) Members() ([]string, error) {
	links, err := g.Links()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(links))
	for i, l := range links {
		names[i] = l.Name
	}
	return names, nil
}

func (g *Group) symbolTableEntries(symTable *message.SymbolTable) ([]btree.GroupEntry, error) {
	localHeap, err := heap.ReadLocalHeap(g.file.reader, symTable.LocalHeapAddress)
	if err != nil {
		return nil, fmt.Errorf("reading local heap: %w", err)
	}
	return btree.ReadGroupEntries(g.file.reader, symTable.BTreeAddress, localHeap)
}

// Attrs returns the group's attribute names.
func (g *Group) Attrs() []string {
	return attrNames(g.header)
}

// Attr returns the named attribute, or nil.
func (g *Group) Attr(name string) *Attribute {
	return findAttr(g.file, g.header, name)
}

func attrNames(h *object.Header) []string {
	var names []string
	for _, msg := range h.GetMessages(message.TypeAttribute) {
		names = append(names, msg.(*message.Attribute).Name)
	}
	return names
}

func findAttr(f *File, h *object.Header, name string) *Attribute {
	for _, msg := range h.GetMessages(message.TypeAttribute) {
		if attr := msg.(*message.Attribute); attr.Name == name {
			return &Attribute{msg: attr, reader: f.reader}
		}
	}
	return nil
}

package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/internal/object"
)

// CreateGroup creates an empty subgroup called name.
func (g *Group) CreateGroup(name string) (*Group, error) {
	if !g.file.writable {
		return nil, ErrReadOnly
	}
	if name == "" {
		return nil, fmt.Errorf("group name cannot be empty")
	}

	addr, err := g.file.writeHeader(object.GroupMessages(nil, nil), 0)
	if err != nil {
		return nil, fmt.Errorf("writing group header: %w", err)
	}
	if err := g.addLink(message.NewHardLink(name, addr)); err != nil {
		return nil, fmt.Errorf("adding link to parent: %w", err)
	}
	return &Group{
		file:         g.file,
		path:         path.Join(g.path, name),
		addr:         addr,
		parent:       g,
		pendingLinks: []*message.Link{},
	}, nil
}

// CreateSoftLink adds a soft link named name pointing at the absolute
// path target.
func (g *Group) CreateSoftLink(name, target string) error {
	if name == "" {
		return fmt.Errorf("link name cannot be empty")
	}
	return g.addLink(message.NewSoftLink(name, target))
}

// CreateExternalLink adds a link to the object at objPath in another file.
func (g *Group) CreateExternalLink(name, file, objPath string) error {
	if name == "" {
		return fmt.Errorf("link name cannot be empty")
	}
	return g.addLink(message.NewExternalLink(name, file, objPath))
}

// SetAttr adds or replaces an attribute on the group. Values follow the
// rules of WithAttribute; ObjectRef values become object references.
func (g *Group) SetAttr(name string, value interface{}) error {
	if !g.file.writable {
		return ErrReadOnly
	}
	attr, err := createAttributeMessage(name, value, g.file.writer.OffsetSize())
	if err != nil {
		return fmt.Errorf("creating attribute %q: %w", name, err)
	}
	return g.setAttrMessage(attr)
}

// SetRawAttr adds or replaces an attribute from already encoded bytes.
// A nil shape makes it scalar.
func (g *Group) SetRawAttr(name string, dt *message.Datatype, shape []uint64, data []byte) error {
	if !g.file.writable {
		return ErrReadOnly
	}
	return g.setAttrMessage(rawAttribute(name, dt, shape, data))
}

func (g *Group) setAttrMessage(attr *message.Attribute) error {
	g.loadPending()
	for i, a := range g.pendingAttrs {
		if a.Name == attr.Name {
			g.pendingAttrs[i] = attr
			return g.rewriteHeader()
		}
	}
	g.pendingAttrs = append(g.pendingAttrs, attr)
	return g.rewriteHeader()
}

func (g *Group) addLink(link *message.Link) error {
	if !g.file.writable {
		return ErrReadOnly
	}
	g.loadPending()
	g.pendingLinks = append(g.pendingLinks, link)
	return g.rewriteHeader()
}

// loadPending seeds the pending links and attributes from the group's
// header on first modification. Groups without a readable header start
// empty.
func (g *Group) loadPending() {
	if g.pendingLinks != nil {
		return
	}
	g.pendingLinks = []*message.Link{}
	if g.header == nil && g.file.reader != nil {
		if h, err := object.Read(g.file.reader, g.addr); err == nil {
			g.header = h
		}
	}
	if g.header == nil {
		return
	}
	for _, msg := range g.header.GetMessages(message.TypeLink) {
		if l, ok := msg.(*message.Link); ok {
			g.pendingLinks = append(g.pendingLinks, l)
		}
	}
	for _, msg := range g.header.GetMessages(message.TypeAttribute) {
		if a, ok := msg.(*message.Attribute); ok {
			g.pendingAttrs = append(g.pendingAttrs, a)
		}
	}
}

// rewriteHeader writes the group's header at a new address and repoints
// the parent's link, or the superblock for the root group. Headers are
// never resized in place.
func (g *Group) rewriteHeader() error {
	messages := object.GroupMessages(g.pendingLinks, g.pendingAttrs)
	addr, err := g.file.writeHeader(messages, object.MinGroupChunkSize)
	if err != nil {
		return err
	}
	g.addr = addr

	if g.path == "/" {
		g.file.superblock.RootGroupAddress = addr
		return nil
	}
	parent := g.parent
	if parent == nil {
		if path.Dir(g.path) != "/" {
			return nil
		}
		parent = g.file.root
	}
	parent.loadPending()
	name := path.Base(g.path)
	for _, l := range parent.pendingLinks {
		if l.Name == name {
			l.ObjectAddress = addr
			break
		}
	}
	return parent.rewriteHeader()
}

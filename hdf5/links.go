package hdf5

import (
	"fmt"
	"path"

	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/internal/object"
)

// LinkKind identifies how a group member is linked.
type LinkKind int

const (
	LinkHard LinkKind = iota
	LinkSoft
	LinkExternal
)

func (k LinkKind) String() string {
	switch k {
	case LinkHard:
		return "hard"
	case LinkSoft:
		return "soft"
	case LinkExternal:
		return "external"
	default:
		return fmt.Sprintf("LinkKind(%d)", int(k))
	}
}

// LinkInfo describes one member of a group without resolving it.
type LinkInfo struct {
	Name string
	Kind LinkKind

	// Address is the object header address of a hard link target.
	Address uint64

	// Target is the path of a soft link, or the object path inside
	// File for an external link.
	Target string
	File   string
}

// Address returns the file address of the group's object header.
func (g *Group) Address() uint64 {
	if g.header != nil {
		return g.header.Address
	}
	return g.addr
}

// Links returns the group's members in storage order, without following
// soft or external links.
func (g *Group) Links() ([]LinkInfo, error) {
	var links []LinkInfo
	for _, msg := range g.header.GetMessages(message.TypeLink) {
		link := msg.(*message.Link)
		info := LinkInfo{Name: link.Name}
		switch {
		case link.IsHard():
			info.Kind = LinkHard
			info.Address = link.ObjectAddress
		case link.IsSoft():
			info.Kind = LinkSoft
			info.Target = link.SoftLinkValue
		case link.IsExternal():
			info.Kind = LinkExternal
			info.File = link.ExternalFile
			info.Target = link.ExternalPath
		default:
			return nil, fmt.Errorf("link %q: unknown link type %d", link.Name, link.LinkType)
		}
		links = append(links, info)
	}
	if len(links) > 0 {
		return links, nil
	}

	symTable := g.symbolTable()
	if symTable == nil {
		return nil, nil
	}
	entries, err := g.symbolTableEntries(symTable)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		info := LinkInfo{Name: e.Name, Address: e.ObjectAddress}
		if e.LinkType == 1 {
			info.Kind = LinkSoft
			info.Target = e.SoftLinkValue
		}
		links = append(links, info)
	}
	return links, nil
}

// symbolTable returns the v1 symbol table of the group, falling back to
// the superblock's cached copy for the root group.
func (g *Group) symbolTable() *message.SymbolTable {
	if msg := g.header.GetMessage(message.TypeSymbolTable); msg != nil {
		return msg.(*message.SymbolTable)
	}
	if g.path == "/" && g.file.superblock.RootGroupBTreeAddress != 0 {
		return &message.SymbolTable{
			BTreeAddress:     g.file.superblock.RootGroupBTreeAddress,
			LocalHeapAddress: g.file.superblock.RootGroupLocalHeapAddress,
		}
	}
	return nil
}

// OpenLink opens the target of a hard link found by Links. The result is
// a *Group or a *Dataset.
func (g *Group) OpenLink(link LinkInfo) (interface{}, error) {
	if link.Kind != LinkHard {
		return g.open(link.Name)
	}
	return g.file.OpenObjectAt(link.Address, path.Join(g.path, link.Name))
}

// OpenObjectAt opens the group or dataset whose object header is at addr,
// naming it p.
func (f *File) OpenObjectAt(addr uint64, p string) (interface{}, error) {
	header, err := object.Read(f.reader, addr)
	if err != nil {
		return nil, fmt.Errorf("reading object header at %d: %w", addr, err)
	}
	if header.GetMessage(message.TypeDataspace) != nil {
		return f.openDatasetAt(addr, p)
	}
	return f.openGroupAt(addr, p)
}

package h5zarr

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/hdf5"
)

// NodeKind tells groups from arrays.
type NodeKind int

const (
	GroupNode NodeKind = iota
	ArrayNode
)

func (k NodeKind) String() string {
	switch k {
	case GroupNode:
		return "group"
	case ArrayNode:
		return "array"
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// Node is one group or array of the Zarr hierarchy.
type Node struct {
	// Path is the logical path below the Zarr root, "" for the root.
	Path string
	Kind NodeKind

	// Source is the absolute HDF5 path of the object.
	Source string

	Attrs map[string]interface{}

	// Array is set for array nodes.
	Array *Translation
}

// Skip records an object or attribute left out of the hierarchy.
type Skip struct {
	Path   string
	Reason string
}

// Result is the outcome of a walk: every node in visit order plus the
// objects that were skipped and the datasets whose rechunk plan was
// declined.
type Result struct {
	Nodes   []*Node
	Skipped []Skip
	Rechunk []Skip
}

// Node returns the node at path, or nil.
func (r *Result) Node(path string) *Node {
	for _, n := range r.Nodes {
		if n.Path == path {
			return n
		}
	}
	return nil
}

// Count returns the number of nodes of kind k.
func (r *Result) Count(k NodeKind) int {
	n := 0
	for _, node := range r.Nodes {
		if node.Kind == k {
			n++
		}
	}
	return n
}

// Walk enumerates the groups and datasets of f below RootGroup and
// translates every dataset. Members are visited in byte-wise name order,
// parents first, so the result is the same on every run.
func Walk(ctx context.Context, f *hdf5.File, opts ...Option) (*Result, error) {
	o := NewOptions(opts...)
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return walk(ctx, f, o)
}

func walk(ctx context.Context, f *hdf5.File, o *Options) (*Result, error) {
	start := f.Root()
	if o.RootGroup != "" && o.RootGroup != "/" {
		g, err := f.OpenGroup(o.RootGroup)
		if err != nil {
			return nil, structureErr(o.RootGroup, err)
		}
		start = g
	}

	refs, err := addressIndex(f.Root())
	if err != nil {
		return nil, structureErr("/", err)
	}

	w := &walker{
		ctx:   ctx,
		opts:  o,
		start: start.Path(),
		tr:    newTranslator(f, o),
		conv:  &attrConverter{refs: refs},
		res:   &Result{},
	}
	if err := hdf5.Walk(start, w.visit); err != nil {
		return nil, err
	}
	return w.res, nil
}

// addressIndex maps the object header address of every object reachable
// through hard links to its first path.
func addressIndex(root *hdf5.Group) (map[uint64]string, error) {
	index := map[uint64]string{}
	err := hdf5.Walk(root, func(v hdf5.Visit) error {
		if v.Err != nil || v.Link.Kind != hdf5.LinkHard {
			return nil
		}
		var addr uint64
		switch o := v.Object.(type) {
		case *hdf5.Group:
			addr = o.Address()
		case *hdf5.Dataset:
			addr = o.Address()
		}
		if _, ok := index[addr]; !ok {
			index[addr] = v.Path
		}
		return nil
	})
	return index, err
}

type walker struct {
	ctx   context.Context
	opts  *Options
	start string
	tr    *translator
	conv  *attrConverter
	res   *Result
}

func (w *walker) logical(p string) string {
	return strings.Trim(strings.TrimPrefix(p, w.start), "/")
}

func (w *walker) skip(path, reason string) {
	w.res.Skipped = append(w.res.Skipped, Skip{Path: path, Reason: reason})
	w.opts.Logger.Warning(message.Fields{
		"message": "skipping object",
		"path":    path,
		"reason":  reason,
	})
}

func (w *walker) visit(v hdf5.Visit) error {
	if err := w.ctx.Err(); err != nil {
		return err
	}
	rel := w.logical(v.Path)

	switch {
	case v.Link.Kind == hdf5.LinkExternal:
		w.skip(rel, fmt.Sprintf("external link to %s:%s", v.Link.File, v.Link.Target))
		return nil
	case v.Err != nil && v.Link.Kind == hdf5.LinkSoft:
		w.skip(rel, fmt.Sprintf("unresolved soft link to %s", v.Link.Target))
		return nil
	case v.Err != nil && errors.Is(v.Err, hdf5.ErrCycle):
		w.skip(rel, "hard link cycle")
		return hdf5.SkipChildren
	case v.Err != nil:
		return structureErr(v.Path, v.Err)
	}

	switch o := v.Object.(type) {
	case *hdf5.Group:
		node := &Node{Path: rel, Kind: GroupNode, Source: o.Path(), Attrs: map[string]interface{}{}}
		if v.Link.Kind == hdf5.LinkSoft {
			w.res.Nodes = append(w.res.Nodes, node)
			return hdf5.SkipChildren
		}
		attrs, err := w.attrs(rel, v.Path, o)
		if err != nil {
			return err
		}
		node.Attrs = attrs
		w.res.Nodes = append(w.res.Nodes, node)
	case *hdf5.Dataset:
		return w.dataset(rel, v.Path, o)
	}
	return nil
}

func (w *walker) dataset(rel, h5path string, ds *hdf5.Dataset) error {
	tr, err := w.tr.dataset(h5path, ds)
	if err != nil {
		var codecErr *UnsupportedCodecError
		var structErr *StructureError
		switch {
		case errors.As(err, &codecErr) && !w.opts.Strict:
			w.skip(rel, codecErr.Error())
			return nil
		case errors.As(err, &structErr) && structErr.Unsupported && w.opts.SkipUnsupported:
			w.skip(rel, structErr.Error())
			return nil
		}
		return err
	}
	if tr.Declined != "" {
		w.res.Rechunk = append(w.res.Rechunk, Skip{Path: rel, Reason: tr.Declined})
	}

	attrs, err := w.attrs(rel, h5path, ds)
	if err != nil {
		return err
	}
	w.res.Nodes = append(w.res.Nodes, &Node{
		Path:   rel,
		Kind:   ArrayNode,
		Source: ds.Path(),
		Attrs:  attrs,
		Array:  tr,
	})
	return nil
}

func (w *walker) attrs(rel, h5path string, h attributeHolder) (map[string]interface{}, error) {
	attrs, failed := w.conv.attrs(h)
	names := make([]string, 0, len(failed))
	for name := range failed {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if w.opts.Strict {
			return nil, structureErr(hdf5.JoinAttrPath(h5path, name), failed[name])
		}
		w.skip(rel, fmt.Sprintf("attribute %q: %v", name, failed[name]))
	}
	return attrs, nil
}

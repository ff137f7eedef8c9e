package hdf5

import (
	"errors"
	"fmt"
	"path"
	"sort"
)

// Visit describes one object reached by Walk.
type Visit struct {
	// Path is the object's path, built from the link names that led to it.
	Path string

	// Link is the link that reached the object. It is the zero LinkInfo
	// for the starting group.
	Link LinkInfo

	// Object is a *Group or *Dataset. It is nil for external links and
	// when Err is set.
	Object interface{}

	// Err is the error opening the object.
	Err error
}

// WalkFunc is called for each object during traversal. Returning
// SkipChildren from a group visit skips its members; any other error
// stops the walk and is returned by Walk.
type WalkFunc func(v Visit) error

// SkipChildren tells Walk not to descend into the visited group.
var SkipChildren = errors.New("skip children")

// ErrCycle is reported for a hard link back to a group on the current
// path.
var ErrCycle = errors.New("hard link cycle")

// Walk visits g and every object below it. Parents come before their
// members and members are visited in byte-wise name order. Soft links
// are resolved but their targets are not descended into; external links
// are reported without opening the other file.
//
// Example:
//
//	Walk(root, func(v Visit) error {
//	    if v.Err != nil {
//	        return v.Err
//	    }
//	    switch o := v.Object.(type) {
//	    case *Group:
//	        fmt.Println("Group:", v.Path)
//	    case *Dataset:
//	        fmt.Println("Dataset:", v.Path, "shape:", o.Shape())
//	    }
//	    return nil
//	})
func Walk(g *Group, fn WalkFunc) error {
	err := fn(Visit{Path: g.Path(), Object: g})
	if err == SkipChildren {
		return nil
	}
	if err != nil {
		return err
	}
	return walkGroup(g, map[uint64]bool{g.Address(): true}, fn)
}

// walkGroup visits the members of g. onPath holds the addresses of the
// groups between the start and g.
func walkGroup(g *Group, onPath map[uint64]bool, fn WalkFunc) error {
	links, err := g.Links()
	if err != nil {
		return fmt.Errorf("listing %s: %w", g.Path(), err)
	}
	sort.Slice(links, func(i, j int) bool { return links[i].Name < links[j].Name })

	for _, link := range links {
		v := Visit{Path: path.Join(g.Path(), link.Name), Link: link}
		if link.Kind != LinkExternal {
			v.Object, v.Err = g.OpenLink(link)
		}
		child, isGroup := v.Object.(*Group)
		if isGroup && link.Kind == LinkHard && onPath[child.Address()] {
			v.Object, v.Err = nil, fmt.Errorf("%s: %w", v.Path, ErrCycle)
			isGroup = false
		}

		err := fn(v)
		if err == SkipChildren {
			continue
		}
		if err != nil {
			return err
		}
		if !isGroup || link.Kind != LinkHard {
			continue
		}

		onPath[child.Address()] = true
		err = walkGroup(child, onPath, fn)
		delete(onPath, child.Address())
		if err != nil {
			return err
		}
	}
	return nil
}

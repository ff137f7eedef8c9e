package zarr

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ErrNoDocument is returned when a consolidated document has no entry for
// the requested key.
var ErrNoDocument = errors.New("no such metadata document")

// Consolidated is a consolidated metadata document: every .zgroup,
// .zarray, .zattrs and .zchunkstore document of a hierarchy under one key.
type Consolidated struct {
	Metadata               map[string]json.RawMessage `json:"metadata"`
	ZarrConsolidatedFormat int                        `json:"zarr_consolidated_format"`
}

// NewConsolidated returns an empty consolidated document.
func NewConsolidated() *Consolidated {
	return &Consolidated{
		Metadata:               make(map[string]json.RawMessage),
		ZarrConsolidatedFormat: consolidatedV1,
	}
}

// Set stores doc under key, replacing any previous document.
func (c *Consolidated) Set(key string, doc interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	c.Metadata[key] = raw
	return nil
}

// Has reports whether key is present.
func (c *Consolidated) Has(key string) bool {
	_, ok := c.Metadata[key]
	return ok
}

// Raw returns the canonical encoding of the document under key.
func (c *Consolidated) Raw(key string) ([]byte, error) {
	raw, ok := c.Metadata[key]
	if !ok {
		return nil, errors.Wrap(ErrNoDocument, key)
	}
	return Marshal(raw)
}

// Keys returns every document key in sorted order.
func (c *Consolidated) Keys() []string {
	keys := make([]string, 0, len(c.Metadata))
	for k := range c.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Consolidated) decode(key string, v interface{}) error {
	raw, ok := c.Metadata[key]
	if !ok {
		return errors.Wrap(ErrNoDocument, key)
	}
	return errors.Wrapf(Unmarshal(raw, v), "decoding %s", key)
}

// Array returns the array document of the node at path.
func (c *Consolidated) Array(path string) (*ArrayMeta, error) {
	var meta ArrayMeta
	if err := c.decode(Key(path, ArrayKey), &meta); err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, errors.Wrapf(err, "array %q", path)
	}
	return &meta, nil
}

// Attrs returns the attributes of the node at path. Nodes without an
// attribute document have no attributes.
func (c *Consolidated) Attrs(path string) (map[string]interface{}, error) {
	attrs := map[string]interface{}{}
	key := Key(path, AttrsKey)
	if !c.Has(key) {
		return attrs, nil
	}
	if err := c.decode(key, &attrs); err != nil {
		return nil, err
	}
	return attrs, nil
}

// Manifest returns the chunk manifest of the array at path.
func (c *Consolidated) Manifest(path string) (*Manifest, error) {
	var m Manifest
	if err := c.decode(Key(path, ManifestKey), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// IsGroup reports whether path names a group.
func (c *Consolidated) IsGroup(path string) bool {
	return c.Has(Key(path, GroupKey))
}

// IsArray reports whether path names an array.
func (c *Consolidated) IsArray(path string) bool {
	return c.Has(Key(path, ArrayKey))
}

// Groups returns the paths of all groups in sorted order.
func (c *Consolidated) Groups() []string {
	return c.nodes(GroupKey)
}

// Arrays returns the paths of all arrays in sorted order.
func (c *Consolidated) Arrays() []string {
	return c.nodes(ArrayKey)
}

func (c *Consolidated) nodes(doc string) []string {
	var paths []string
	for _, k := range c.Keys() {
		if p, name := SplitKey(k); name == doc {
			paths = append(paths, p)
		}
	}
	return paths
}

// Children returns the names of the direct children of the group at path,
// in sorted order.
func (c *Consolidated) Children(path string) []string {
	prefix := Key(path, "")
	if prefix != "" {
		prefix += "/"
	}
	seen := map[string]bool{}
	var names []string
	for _, k := range c.Keys() {
		p, _ := SplitKey(k)
		if p == "" || !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if rest == "" || strings.Contains(rest, "/") || seen[rest] {
			continue
		}
		seen[rest] = true
		names = append(names, rest)
	}
	return names
}

// Validate checks that the document is well formed: the format version
// is known, the root is a group, every array has a valid array document
// and a manifest, and every node's parent is a group.
func (c *Consolidated) Validate() error {
	if c.ZarrConsolidatedFormat != consolidatedV1 {
		return errors.Errorf("unsupported zarr_consolidated_format %d", c.ZarrConsolidatedFormat)
	}
	if !c.IsGroup("") {
		return errors.New("consolidated metadata has no root group")
	}
	for _, p := range c.Arrays() {
		if c.IsGroup(p) {
			return errors.Errorf("%q is both a group and an array", p)
		}
		if _, err := c.Array(p); err != nil {
			return err
		}
		if _, err := c.Manifest(p); err != nil {
			return errors.Wrapf(err, "array %q", p)
		}
	}
	for _, p := range append(c.Groups(), c.Arrays()...) {
		if p == "" {
			continue
		}
		parent, _ := SplitKey(p)
		if !c.IsGroup(parent) {
			return errors.Errorf("parent of %q is not a group", p)
		}
	}
	return nil
}

// Encode writes the canonical encoding of the document to w.
func (c *Consolidated) Encode(w io.Writer) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return errors.Wrap(err, "writing consolidated metadata")
}

// DecodeConsolidated reads a consolidated document from r.
func DecodeConsolidated(r io.Reader) (*Consolidated, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading consolidated metadata")
	}
	return ParseConsolidated(data)
}

// ParseConsolidated parses a consolidated document.
func ParseConsolidated(data []byte) (*Consolidated, error) {
	c := &Consolidated{}
	if err := json.Unmarshal(data, c); err != nil {
		return nil, errors.Wrap(err, "parsing consolidated metadata")
	}
	if c.Metadata == nil {
		return nil, errors.New("consolidated metadata has no metadata object")
	}
	return c, nil
}

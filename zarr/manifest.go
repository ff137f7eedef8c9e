package zarr

import (
	"encoding/json"
	"sort"

	"github.com/pkg/errors"
)

// SourceKey is the manifest entry naming the file the chunks live in.
const SourceKey = "source"

// Source identifies the file and the dataset a manifest points into.
type Source struct {
	URI       string `json:"uri"`
	ArrayName string `json:"array_name"`
}

// ChunkRef locates one stored chunk.
type ChunkRef struct {
	// Offset and Size give the byte range in the source file.
	Offset uint64 `json:"offset"`
	Size   uint64 `json:"size"`

	// Mask is the HDF5 filter mask; bit i set means filter i was skipped.
	Mask uint32 `json:"mask,omitempty"`

	// Data holds the encoded chunk when it is inlined in the manifest
	// rather than read from the source. Offset is 0 and Size is len(Data).
	Data []byte `json:"data,omitempty"`
}

// Inline reports whether the chunk bytes are carried in the manifest.
func (r ChunkRef) Inline() bool {
	return r.Data != nil
}

// Manifest is the content of a .zchunkstore document: the location of
// every stored chunk of one array, keyed by chunk key.
type Manifest struct {
	Source Source
	Chunks map[string]ChunkRef
}

// NewManifest returns an empty manifest for the given source.
func NewManifest(src Source) *Manifest {
	return &Manifest{Source: src, Chunks: make(map[string]ChunkRef)}
}

// Add records a chunk, failing if key is already present.
func (m *Manifest) Add(key string, ref ChunkRef) error {
	if key == SourceKey {
		return errors.Errorf("chunk key %q is reserved", key)
	}
	if _, ok := m.Chunks[key]; ok {
		return errors.Errorf("duplicate chunk key %q", key)
	}
	m.Chunks[key] = ref
	return nil
}

// Keys returns the chunk keys in sorted order.
func (m *Manifest) Keys() []string {
	keys := make([]string, 0, len(m.Chunks))
	for k := range m.Chunks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of chunks.
func (m *Manifest) Len() int {
	return len(m.Chunks)
}

// StoredBytes returns the total size of all chunks.
func (m *Manifest) StoredBytes() uint64 {
	var n uint64
	for _, r := range m.Chunks {
		n += r.Size
	}
	return n
}

// ValidateBounds checks that every non-inline chunk lies within a file of
// the given size.
func (m *Manifest) ValidateBounds(fileSize uint64) error {
	for _, k := range m.Keys() {
		r := m.Chunks[k]
		if r.Inline() {
			continue
		}
		if r.Offset > fileSize || r.Size > fileSize-r.Offset {
			return errors.Errorf("chunk %q [%d, %d) exceeds file size %d", k, r.Offset, r.Offset+r.Size, fileSize)
		}
	}
	return nil
}

// MarshalJSON writes the chunk entries and the source entry into one flat
// object.
func (m Manifest) MarshalJSON() ([]byte, error) {
	doc := make(map[string]interface{}, len(m.Chunks)+1)
	for k, r := range m.Chunks {
		doc[k] = r
	}
	doc[SourceKey] = m.Source
	return json.Marshal(doc)
}

// UnmarshalJSON reads the flat object form written by MarshalJSON.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, "manifest")
	}
	src, ok := doc[SourceKey]
	if !ok {
		return errors.New("manifest has no source entry")
	}
	out := Manifest{Chunks: make(map[string]ChunkRef, len(doc))}
	if err := json.Unmarshal(src, &out.Source); err != nil {
		return errors.Wrap(err, "manifest source")
	}
	for k, raw := range doc {
		if k == SourceKey {
			continue
		}
		var ref struct {
			Offset *uint64 `json:"offset"`
			Size   *uint64 `json:"size"`
			Mask   uint32  `json:"mask"`
			Data   []byte  `json:"data"`
		}
		if err := json.Unmarshal(raw, &ref); err != nil {
			return errors.Wrapf(err, "chunk %q", k)
		}
		if ref.Offset == nil || ref.Size == nil {
			return errors.Errorf("chunk %q: incomplete location", k)
		}
		out.Chunks[k] = ChunkRef{Offset: *ref.Offset, Size: *ref.Size, Mask: ref.Mask, Data: ref.Data}
	}
	*m = out
	return nil
}

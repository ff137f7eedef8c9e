package h5zarr

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/source"
	"github.com/robert-malhotra/h5zarr/store"
	"github.com/robert-malhotra/h5zarr/zarr"
)

// ChunkStore is a read-only store.Store of the encoded chunks listed in
// the manifests of a consolidated document. Keys are "<array>/<chunk>".
// Values are served from the manifest for inline chunks and from the
// source for the rest.
type ChunkStore struct {
	src  source.RangeSource
	refs map[string]zarr.ChunkRef
	keys []string
}

// NewChunkStore indexes the chunk manifests of doc.
func NewChunkStore(doc *zarr.Consolidated, src source.RangeSource) (*ChunkStore, error) {
	cs := &ChunkStore{src: src, refs: map[string]zarr.ChunkRef{}}
	for _, path := range doc.Arrays() {
		m, err := doc.Manifest(path)
		if err != nil {
			return nil, errors.Wrapf(err, "array %q", path)
		}
		for key, ref := range m.Chunks {
			k := zarr.Key(path, key)
			cs.refs[k] = ref
			cs.keys = append(cs.keys, k)
		}
	}
	sort.Strings(cs.keys)
	return cs, nil
}

// Len returns the number of chunks.
func (cs *ChunkStore) Len() int {
	return len(cs.keys)
}

func (cs *ChunkStore) Get(ctx context.Context, key string) ([]byte, error) {
	key = strings.Trim(key, "/")
	ref, ok := cs.refs[key]
	if !ok {
		return nil, errors.Wrap(store.ErrKeyNotFound, key)
	}
	if ref.Inline() {
		return append([]byte(nil), ref.Data...), nil
	}
	path, chunk := zarr.SplitKey(key)
	data, err := cs.src.ReadRange(ctx, int64(ref.Offset), int64(ref.Size))
	if err != nil {
		return nil, &RangeUnavailableError{Path: path, Chunk: chunk, Err: err}
	}
	return data, nil
}

func (cs *ChunkStore) Has(_ context.Context, key string) (bool, error) {
	_, ok := cs.refs[strings.Trim(key, "/")]
	return ok, nil
}

func (cs *ChunkStore) Set(_ context.Context, key string, _ []byte) error {
	return errors.Wrap(store.ErrReadOnly, key)
}

func (cs *ChunkStore) ListKeys(context.Context) ([]string, error) {
	return append([]string(nil), cs.keys...), nil
}

package zarr

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ChunkKey formats a chunk grid index as a Zarr chunk key. Indices are
// joined with sep; a rank 0 array has the single chunk "0".
func ChunkKey(idx []uint64, sep string) string {
	if len(idx) == 0 {
		return "0"
	}
	if sep == "" {
		sep = DefaultSep
	}
	var b strings.Builder
	for i, v := range idx {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(strconv.FormatUint(v, 10))
	}
	return b.String()
}

// ParseChunkKey parses a chunk key of an array with the given rank.
func ParseChunkKey(key string, rank int, sep string) ([]uint64, error) {
	if sep == "" {
		sep = DefaultSep
	}
	if rank == 0 {
		if key != "0" {
			return nil, errors.Errorf("invalid chunk key %q for rank 0 array", key)
		}
		return []uint64{}, nil
	}
	parts := strings.Split(key, sep)
	if len(parts) != rank {
		return nil, errors.Errorf("chunk key %q has %d indices, want %d", key, len(parts), rank)
	}
	idx := make([]uint64, rank)
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "chunk key %q", key)
		}
		idx[i] = v
	}
	return idx, nil
}

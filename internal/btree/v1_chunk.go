package btree

import (
	"fmt"
	"sort"

	"github.com/robert-malhotra/h5zarr/internal/binary"
)

// ChunkEntry represents a chunk in the B-tree index.
type ChunkEntry struct {
	// Offset contains the chunk coordinates in dataset element space.
	// For a 2D dataset with chunks [10,10], chunk at offset [20,30]
	// covers elements [20:30, 30:40].
	Offset []uint64

	// FilterMask indicates which filters were disabled for this chunk.
	// Bit i = 1 means filter i was skipped.
	FilterMask uint32

	// Size is the size of the chunk data on disk (possibly compressed).
	Size uint32

	// Address is the file offset where chunk data is stored.
	Address uint64
}

// ChunkIndex contains all chunks for a dataset.
type ChunkIndex struct {
	// NDims is the number of dimensions (including the extra +1 for chunked storage).
	NDims int

	// Entries contains all chunk entries.
	Entries []ChunkEntry
}

// ReadChunkIndex reads a v1 B-tree chunk index.
// ndims is the number of dataset dimensions (not including the +1 used in B-tree keys).
func ReadChunkIndex(r *binary.Reader, btreeAddr uint64, ndims int) (*ChunkIndex, error) {
	index := &ChunkIndex{
		NDims: ndims,
	}

	entries, err := readChunkBTreeNode(r, btreeAddr, ndims)
	if err != nil {
		return nil, err
	}
	index.Entries = entries

	return index, nil
}

func readChunkBTreeNode(r *binary.Reader, address uint64, ndims int) ([]ChunkEntry, error) {
	nr := r.At(int64(address))

	// Check signature
	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading btree signature: %w", err)
	}
	if string(sig) != "TREE" {
		return nil, fmt.Errorf("invalid B-tree signature: got %q, expected \"TREE\"", string(sig))
	}

	// Node type (1 byte): 0 = group, 1 = chunk
	nodeType, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if nodeType != 1 {
		return nil, fmt.Errorf("unexpected B-tree node type: %d (expected 1 for chunk)", nodeType)
	}

	// Node level (1 byte): 0 = leaf
	nodeLevel, err := nr.ReadUint8()
	if err != nil {
		return nil, err
	}

	// Entries used (2 bytes)
	entriesUsed, err := nr.ReadUint16()
	if err != nil {
		return nil, err
	}

	// Left sibling address
	_, err = nr.ReadOffset()
	if err != nil {
		return nil, err
	}

	// Right sibling address
	_, err = nr.ReadOffset()
	if err != nil {
		return nil, err
	}

	var entries []ChunkEntry

	if nodeLevel == 0 {
		// Leaf node - contains actual chunk entries
		// Key layout for chunked data (HDF5 format):
		// - Chunk size in bytes (4 bytes)
		// - Filter mask (4 bytes)
		// - Chunk offsets (ndims+1 values, each 8 bytes)
		// Child pointer:
		// - Address of chunk data (offset-sized)

		for i := uint16(0); i <= entriesUsed; i++ {
			// Read key
			chunkSize, err := nr.ReadUint32()
			if err != nil {
				return nil, fmt.Errorf("reading chunk size: %w", err)
			}

			filterMask, err := nr.ReadUint32()
			if err != nil {
				return nil, fmt.Errorf("reading filter mask: %w", err)
			}

			// Chunk offsets - HDF5 uses ndims+1 dimensions in the B-tree
			// The last dimension is typically the element size
			offsets := make([]uint64, ndims+1)
			for j := 0; j <= ndims; j++ {
				offsets[j], err = nr.ReadUint64()
				if err != nil {
					return nil, fmt.Errorf("reading chunk offset %d: %w", j, err)
				}
			}

			// For the last entry (i == entriesUsed), we only read the key
			// to know the upper bound, but there's no child pointer
			if i == entriesUsed {
				break
			}

			// Read child pointer (chunk data address)
			chunkAddr, err := nr.ReadOffset()
			if err != nil {
				return nil, fmt.Errorf("reading chunk address: %w", err)
			}

			// Only include chunks that have valid addresses
			if chunkAddr != 0xFFFFFFFFFFFFFFFF && chunkSize > 0 {
				entry := ChunkEntry{
					Offset:     offsets[:ndims], // Exclude the last dimension (element size)
					FilterMask: filterMask,
					Size:       chunkSize,
					Address:    chunkAddr,
				}
				entries = append(entries, entry)
			}
		}
	} else {
		// Internal node - recurse into children
		for i := uint16(0); i <= entriesUsed; i++ {
			// Read key (same format as leaf)
			_, err := nr.ReadUint32() // chunk size
			if err != nil {
				return nil, err
			}
			_, err = nr.ReadUint32() // filter mask
			if err != nil {
				return nil, err
			}
			for j := 0; j <= ndims; j++ {
				_, err = nr.ReadUint64() // offset
				if err != nil {
					return nil, err
				}
			}

			// For the last entry, no child pointer
			if i == entriesUsed {
				break
			}

			// Child pointer - address of child B-tree node
			childAddr, err := nr.ReadOffset()
			if err != nil {
				return nil, err
			}

			childEntries, err := readChunkBTreeNode(r, childAddr, ndims)
			if err != nil {
				return nil, err
			}
			entries = append(entries, childEntries...)
		}
	}

	return entries, nil
}

// ChunkBTreeK is the half capacity of v1 chunk B-tree nodes used by the
// writer, matching the library default for indexed storage.
const ChunkBTreeK = 32

// v1Item is a key plus the child it precedes: a chunk address at level 0
// or a node address above.
type v1Item struct {
	size   uint32
	mask   uint32
	offset []uint64
	child  uint64
}

// WriteChunkIndex writes entries (element offsets) as a v1 B-tree and
// returns the root node address. Nodes hold at most 2K children and
// upper levels are added until a single root remains.
func WriteChunkIndex(w *binary.Writer, alloc func(int64) uint64, entries []ChunkEntry, chunkDims []uint64) (uint64, error) {
	ndims := len(chunkDims)
	items := make([]v1Item, len(entries))
	for i, e := range entries {
		items[i] = v1Item{size: e.Size, mask: e.FilterMask, offset: e.Offset, child: e.Address}
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].offset, items[j].offset
		for d := range a {
			if a[d] != b[d] {
				return a[d] < b[d]
			}
		}
		return false
	})

	// The right-most key bounds the last chunk.
	end := make([]uint64, ndims)
	if n := len(items); n > 0 {
		copy(end, items[n-1].offset)
		end[0] += chunkDims[0]
	}

	level := uint8(0)
	for {
		var parents []v1Item
		for start := 0; start < len(items) || start == 0; start += 2 * ChunkBTreeK {
			stop := min(start+2*ChunkBTreeK, len(items))
			upper := end
			if stop < len(items) {
				upper = items[stop].offset
			}
			addr, err := writeChunkNode(w, alloc, level, items[start:stop], upper, ndims)
			if err != nil {
				return 0, err
			}
			first := v1Item{offset: make([]uint64, ndims), child: addr}
			if start < len(items) {
				first.offset = items[start].offset
				first.size = items[start].size
			}
			parents = append(parents, first)
			if stop >= len(items) {
				break
			}
		}
		if len(parents) == 1 {
			return parents[0].child, nil
		}
		items = parents
		level++
	}
}

func writeChunkNode(w *binary.Writer, alloc func(int64) uint64, level uint8, items []v1Item, upper []uint64, ndims int) (uint64, error) {
	offsetSize := w.OffsetSize()
	keySize := 8 + 8*(ndims+1)
	nodeSize := 4 + 1 + 1 + 2 + 2*offsetSize + (2*ChunkBTreeK+1)*keySize + 2*ChunkBTreeK*offsetSize
	addr := alloc(int64(nodeSize))

	buf := make([]byte, nodeSize)
	idx := copy(buf, "TREE")
	buf[idx] = 1 // chunked raw data node
	buf[idx+1] = level
	idx += 2
	putUint(buf[idx:], uint64(len(items)), 2)
	idx += 2
	putUint(buf[idx:], w.UndefinedOffset(), offsetSize)
	idx += offsetSize
	putUint(buf[idx:], w.UndefinedOffset(), offsetSize)
	idx += offsetSize

	putKey := func(size, mask uint32, offset []uint64) {
		putUint(buf[idx:], uint64(size), 4)
		putUint(buf[idx+4:], uint64(mask), 4)
		idx += 8
		for d := 0; d < ndims; d++ {
			putUint(buf[idx:], offset[d], 8)
			idx += 8
		}
		putUint(buf[idx:], 0, 8)
		idx += 8
	}
	for _, it := range items {
		putKey(it.size, it.mask, it.offset)
		putUint(buf[idx:], it.child, offsetSize)
		idx += offsetSize
	}
	putKey(0, 0, upper)

	if err := w.At(int64(addr)).WriteBytes(buf); err != nil {
		return 0, err
	}
	return addr, nil
}

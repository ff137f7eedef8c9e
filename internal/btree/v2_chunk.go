package btree

import (
	"fmt"
	"math/bits"
	"sort"

	"github.com/robert-malhotra/h5zarr/internal/binary"
)

// B-tree v2 types for chunked storage
const (
	// BTreeV2TypeChunkNoFilter is type 10: Chunk records without filter info
	BTreeV2TypeChunkNoFilter uint8 = 10
	// BTreeV2TypeChunkWithFilter is type 11: Chunk records with filter info
	BTreeV2TypeChunkWithFilter uint8 = 11
)

// v2PrefixSize is signature, version, type and checksum of every node.
const v2PrefixSize = 10

// btreeV2Header represents a B-tree v2 header (BTHD).
type btreeV2Header struct {
	Version        uint8
	Type           uint8
	NodeSize       uint32
	RecordSize     uint16
	Depth          uint16
	SplitPercent   uint8
	MergePercent   uint8
	RootAddr       uint64
	NumRootRecords uint16
	TotalRecords   uint64
}

// v2NodeInfo holds the derived capacity of nodes at one depth.
type v2NodeInfo struct {
	maxRec        uint64
	cumMaxRec     uint64
	cumMaxRecSize int
}

// v2Tree carries what node readers need to decode records and child pointers.
type v2Tree struct {
	r          *binary.Reader
	header     *btreeV2Header
	chunkDims  []uint64
	filtered   bool
	sizeLen    int
	nodes      []v2NodeInfo
	maxNrecLen int
}

// ReadChunkIndexV2 reads a v2 B-tree chunk index. Records store chunk
// offsets scaled by the chunk dimensions; the returned entries carry
// element offsets like the v1 index.
func ReadChunkIndexV2(r *binary.Reader, btreeAddr uint64, chunkDims []uint64) (*ChunkIndex, error) {
	header, err := readBTreeV2Header(r, btreeAddr)
	if err != nil {
		return nil, fmt.Errorf("reading B-tree v2 header: %w", err)
	}

	if header.Type != BTreeV2TypeChunkNoFilter && header.Type != BTreeV2TypeChunkWithFilter {
		return nil, fmt.Errorf("unexpected B-tree v2 type: %d (expected 10 or 11 for chunks)", header.Type)
	}

	ndims := len(chunkDims)
	index := &ChunkIndex{NDims: ndims}
	if header.TotalRecords == 0 {
		return index, nil
	}

	t := &v2Tree{
		r:         r,
		header:    header,
		chunkDims: chunkDims,
		filtered:  header.Type == BTreeV2TypeChunkWithFilter,
	}
	if t.filtered {
		t.sizeLen = int(header.RecordSize) - r.OffsetSize() - 4 - 8*ndims
		if t.sizeLen < 1 || t.sizeLen > 8 {
			return nil, fmt.Errorf("B-tree v2 record size %d does not fit %d dimensions", header.RecordSize, ndims)
		}
	} else if int(header.RecordSize) != r.OffsetSize()+8*ndims {
		return nil, fmt.Errorf("B-tree v2 record size %d does not fit %d dimensions", header.RecordSize, ndims)
	}
	t.computeNodeInfo()

	if header.Depth == 0 {
		index.Entries, err = t.readLeaf(header.RootAddr, int(header.NumRootRecords))
	} else {
		index.Entries, err = t.readInternal(header.RootAddr, int(header.NumRootRecords), int(header.Depth))
	}
	if err != nil {
		return nil, err
	}

	return index, nil
}

// computeNodeInfo derives per-depth record capacities from the node and
// record sizes, which determine the width of child record counts.
func (t *v2Tree) computeNodeInfo() {
	h := t.header
	offsetSize := uint64(t.r.OffsetSize())
	t.nodes = make([]v2NodeInfo, int(h.Depth)+1)

	leafMax := (uint64(h.NodeSize) - v2PrefixSize) / uint64(h.RecordSize)
	t.nodes[0] = v2NodeInfo{maxRec: leafMax, cumMaxRec: leafMax}
	t.maxNrecLen = log2Floor(leafMax)/8 + 1

	for u := 1; u <= int(h.Depth); u++ {
		ptr := offsetSize + uint64(t.maxNrecLen)
		if u > 1 {
			ptr += uint64(t.nodes[u-1].cumMaxRecSize)
		}
		maxRec := (uint64(h.NodeSize) - v2PrefixSize - ptr) / (uint64(h.RecordSize) + ptr)
		cum := (maxRec+1)*t.nodes[u-1].cumMaxRec + maxRec
		t.nodes[u] = v2NodeInfo{
			maxRec:        maxRec,
			cumMaxRec:     cum,
			cumMaxRecSize: log2Floor(cum)/8 + 1,
		}
	}
}

func log2Floor(n uint64) int {
	if n == 0 {
		return 0
	}
	return bits.Len64(n) - 1
}

// readBTreeV2Header reads the BTHD header.
func readBTreeV2Header(r *binary.Reader, address uint64) (*btreeV2Header, error) {
	nr := r.At(int64(address))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading signature: %w", err)
	}
	if string(sig) != "BTHD" {
		return nil, fmt.Errorf("invalid B-tree v2 signature: %q (expected BTHD)", string(sig))
	}

	header := &btreeV2Header{}

	header.Version, err = nr.ReadUint8()
	if err != nil {
		return nil, err
	}
	if header.Version != 0 {
		return nil, fmt.Errorf("unsupported B-tree v2 version: %d", header.Version)
	}

	if header.Type, err = nr.ReadUint8(); err != nil {
		return nil, err
	}
	if header.NodeSize, err = nr.ReadUint32(); err != nil {
		return nil, err
	}
	if header.RecordSize, err = nr.ReadUint16(); err != nil {
		return nil, err
	}
	if header.Depth, err = nr.ReadUint16(); err != nil {
		return nil, err
	}
	if header.SplitPercent, err = nr.ReadUint8(); err != nil {
		return nil, err
	}
	if header.MergePercent, err = nr.ReadUint8(); err != nil {
		return nil, err
	}
	if header.RootAddr, err = nr.ReadOffset(); err != nil {
		return nil, err
	}
	if header.NumRootRecords, err = nr.ReadUint16(); err != nil {
		return nil, err
	}
	if header.TotalRecords, err = nr.ReadLength(); err != nil {
		return nil, err
	}

	// Checksum is not verified.
	return header, nil
}

// nodePrefix checks the signature and version of a leaf or internal node.
func nodePrefix(nr *binary.Reader, want string) error {
	sig, err := nr.ReadBytes(4)
	if err != nil {
		return fmt.Errorf("reading node signature: %w", err)
	}
	if string(sig) != want {
		return fmt.Errorf("invalid B-tree v2 node signature: %q (expected %s)", string(sig), want)
	}
	version, err := nr.ReadUint8()
	if err != nil {
		return err
	}
	if version != 0 {
		return fmt.Errorf("unsupported B-tree v2 node version: %d", version)
	}
	_, err = nr.ReadUint8() // type, same as header
	return err
}

// readLeaf reads chunk records from a leaf node.
func (t *v2Tree) readLeaf(address uint64, numRecords int) ([]ChunkEntry, error) {
	nr := t.r.At(int64(address))
	if err := nodePrefix(nr, "BTLF"); err != nil {
		return nil, err
	}

	entries := make([]ChunkEntry, 0, numRecords)
	for i := 0; i < numRecords; i++ {
		entry, err := t.readRecord(nr)
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", i, err)
		}
		if !t.r.IsUndefinedOffset(entry.Address) {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

// readInternal reads an internal node. Internal nodes hold records of
// their own followed by numRecords+1 child pointers.
func (t *v2Tree) readInternal(address uint64, numRecords, depth int) ([]ChunkEntry, error) {
	nr := t.r.At(int64(address))
	if err := nodePrefix(nr, "BTIN"); err != nil {
		return nil, err
	}

	entries := make([]ChunkEntry, 0, numRecords)
	for i := 0; i < numRecords; i++ {
		entry, err := t.readRecord(nr)
		if err != nil {
			return nil, fmt.Errorf("reading record %d: %w", i, err)
		}
		if !t.r.IsUndefinedOffset(entry.Address) {
			entries = append(entries, entry)
		}
	}

	for i := 0; i <= numRecords; i++ {
		childAddr, err := nr.ReadOffset()
		if err != nil {
			return nil, fmt.Errorf("reading child pointer %d: %w", i, err)
		}
		childRecords, err := nr.ReadUintN(t.maxNrecLen)
		if err != nil {
			return nil, fmt.Errorf("reading child record count %d: %w", i, err)
		}
		if depth > 1 {
			// Total records beneath the child.
			if _, err := nr.ReadUintN(t.nodes[depth-1].cumMaxRecSize); err != nil {
				return nil, err
			}
		}

		var child []ChunkEntry
		if depth == 1 {
			child, err = t.readLeaf(childAddr, int(childRecords))
		} else {
			child, err = t.readInternal(childAddr, int(childRecords), depth-1)
		}
		if err != nil {
			return nil, fmt.Errorf("reading child node %d: %w", i, err)
		}
		entries = append(entries, child...)
	}

	return entries, nil
}

// readRecord reads a single chunk record.
// Type 10: address, scaled offsets.
// Type 11: address, chunk size, filter mask, scaled offsets.
func (t *v2Tree) readRecord(nr *binary.Reader) (ChunkEntry, error) {
	var entry ChunkEntry
	var err error

	if entry.Address, err = nr.ReadOffset(); err != nil {
		return entry, err
	}
	if t.filtered {
		size, err := nr.ReadUintN(t.sizeLen)
		if err != nil {
			return entry, err
		}
		entry.Size = uint32(size)
		if entry.FilterMask, err = nr.ReadUint32(); err != nil {
			return entry, err
		}
	}

	entry.Offset = make([]uint64, len(t.chunkDims))
	for d := range t.chunkDims {
		scaled, err := nr.ReadUint64()
		if err != nil {
			return entry, err
		}
		entry.Offset[d] = scaled * t.chunkDims[d]
	}
	return entry, nil
}

// ChunkIndexV2Writer builds a depth-0 v2 B-tree chunk index: a header and
// a single leaf holding every record.
type ChunkIndexV2Writer struct {
	// ChunkSizeLen is the width of the stored chunk size for filtered
	// records. Zero writes type 10 records without filter information.
	ChunkSizeLen int
	SplitPercent uint8
	MergePercent uint8
}

// WriteChunkIndexV2 writes entries (element offsets) as a v2 B-tree and
// returns the header address and the node size used.
func (cw ChunkIndexV2Writer) WriteChunkIndexV2(w *binary.Writer, alloc func(int64) uint64,
	entries []ChunkEntry, chunkDims []uint64) (uint64, uint32, error) {

	ndims := len(chunkDims)
	offsetSize := w.OffsetSize()
	recType := BTreeV2TypeChunkNoFilter
	recordSize := offsetSize + 8*ndims
	if cw.ChunkSizeLen > 0 {
		recType = BTreeV2TypeChunkWithFilter
		recordSize += cw.ChunkSizeLen + 4
	}
	if len(entries) > 0xFFFF {
		return 0, 0, fmt.Errorf("too many chunks for a single B-tree v2 leaf: %d", len(entries))
	}

	nodeSize := uint32(2048)
	if need := uint32(v2PrefixSize + len(entries)*recordSize); need > nodeSize {
		nodeSize = need
	}
	split, merge := cw.SplitPercent, cw.MergePercent
	if split == 0 {
		split = 100
	}
	if merge == 0 {
		merge = 40
	}

	sorted := make([]ChunkEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		a, b := sorted[i].Offset, sorted[j].Offset
		for d := range a {
			if a[d] != b[d] {
				return a[d] < b[d]
			}
		}
		return false
	})

	leafAddr := alloc(int64(nodeSize))
	leaf := make([]byte, nodeSize)
	idx := copy(leaf, "BTLF")
	leaf[idx] = 0
	leaf[idx+1] = recType
	idx += 2
	for _, e := range sorted {
		putUint(leaf[idx:], e.Address, offsetSize)
		idx += offsetSize
		if cw.ChunkSizeLen > 0 {
			putUint(leaf[idx:], uint64(e.Size), cw.ChunkSizeLen)
			idx += cw.ChunkSizeLen
			putUint(leaf[idx:], uint64(e.FilterMask), 4)
			idx += 4
		}
		for d := 0; d < ndims; d++ {
			putUint(leaf[idx:], e.Offset[d]/chunkDims[d], 8)
			idx += 8
		}
	}
	putUint(leaf[idx:], uint64(binary.Lookup3Checksum(leaf[:idx])), 4)
	if err := w.At(int64(leafAddr)).WriteBytes(leaf); err != nil {
		return 0, 0, err
	}

	lengthSize := w.LengthSize()
	hdrSize := 4 + 1 + 1 + 4 + 2 + 2 + 1 + 1 + offsetSize + 2 + lengthSize + 4
	hdrAddr := alloc(int64(hdrSize))
	hdr := make([]byte, hdrSize)
	idx = copy(hdr, "BTHD")
	hdr[idx] = 0
	hdr[idx+1] = recType
	idx += 2
	putUint(hdr[idx:], uint64(nodeSize), 4)
	idx += 4
	putUint(hdr[idx:], uint64(recordSize), 2)
	idx += 2
	putUint(hdr[idx:], 0, 2) // depth
	idx += 2
	hdr[idx] = split
	hdr[idx+1] = merge
	idx += 2
	putUint(hdr[idx:], leafAddr, offsetSize)
	idx += offsetSize
	putUint(hdr[idx:], uint64(len(sorted)), 2)
	idx += 2
	putUint(hdr[idx:], uint64(len(sorted)), lengthSize)
	idx += lengthSize
	putUint(hdr[idx:], uint64(binary.Lookup3Checksum(hdr[:idx])), 4)
	if err := w.At(int64(hdrAddr)).WriteBytes(hdr); err != nil {
		return 0, 0, err
	}

	return hdrAddr, nodeSize, nil
}

func putUint(b []byte, v uint64, size int) {
	for i := 0; i < size; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

package btree

import (
	"bytes"
	"io"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/robert-malhotra/h5zarr/internal/binary"
)

// memFile is a growable in-memory file for index round trips.
type memFile struct {
	buf []byte
}

func (m *memFile) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	return copy(m.buf[off:], p), nil
}

func (m *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// allocator hands out consecutive addresses after a reserved prefix.
func (m *memFile) allocator() func(int64) uint64 {
	next := uint64(64)
	return func(size int64) uint64 {
		addr := next
		next += uint64(size)
		return addr
	}
}

func sortEntries(entries []ChunkEntry) {
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Offset, entries[j].Offset
		for d := range a {
			if a[d] != b[d] {
				return a[d] < b[d]
			}
		}
		return false
	})
}

func v2Header(recType uint8, recordSize uint16, depth uint16, root uint64, rootRecs uint16, total uint64) []byte {
	buf := bytes.NewBuffer(nil)
	buf.WriteString("BTHD")
	buf.WriteByte(0)
	buf.WriteByte(recType)
	buf.Write([]byte{100, 0, 0, 0}) // node size
	buf.Write([]byte{byte(recordSize), byte(recordSize >> 8)})
	buf.Write([]byte{byte(depth), byte(depth >> 8)})
	buf.WriteByte(100)
	buf.WriteByte(40)
	for i := 0; i < 8; i++ {
		buf.WriteByte(byte(root >> (8 * i)))
	}
	buf.Write([]byte{byte(rootRecs), byte(rootRecs >> 8)})
	for i := 0; i < 8; i++ {
		buf.WriteByte(byte(total >> (8 * i)))
	}
	buf.Write(make([]byte, 4)) // checksum
	return buf.Bytes()
}

func TestChunkIndexV2HeaderErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"signature", []byte("XXXX"), "invalid B-tree v2 signature"},
		{"version", append([]byte("BTHD"), 1), "unsupported B-tree v2 version"},
		{"type", v2Header(5, 24, 0, 0, 0, 1), "unexpected B-tree v2 type"},
		{"record size", v2Header(10, 20, 0, 0, 1, 1), "does not fit"},
		{"truncated", []byte("BTHD\x00\x0a"), "reading B-tree v2 header"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := binary.NewReader(bytes.NewReader(tt.data), binary.DefaultConfig())
			_, err := ReadChunkIndexV2(r, 0, []uint64{4, 4})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestChunkIndexV2NodeErrors(t *testing.T) {
	for _, tc := range []struct {
		depth uint16
		node  string
		want  string
	}{
		{0, "XXXX", "invalid B-tree v2 node signature"},
		{0, "BTLF\x05", "unsupported B-tree v2 node version"},
		{1, "XXXX", "invalid B-tree v2 node signature"},
		{1, "BTIN\x05", "unsupported B-tree v2 node version"},
	} {
		data := v2Header(10, 24, tc.depth, 100, 1, 1)
		data = append(data, make([]byte, 100-len(data))...)
		data = append(data, tc.node...)
		data = append(data, make([]byte, 64)...)

		r := binary.NewReader(bytes.NewReader(data), binary.DefaultConfig())
		_, err := ReadChunkIndexV2(r, 0, []uint64{4, 4})
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("depth %d node %q: got %v, want %q", tc.depth, tc.node, err, tc.want)
		}
	}
}

func TestChunkIndexV2EmptyAtOffset(t *testing.T) {
	data := append(make([]byte, 256), v2Header(10, 24, 0, 0, 0, 0)...)
	r := binary.NewReader(bytes.NewReader(data), binary.DefaultConfig())
	idx, err := ReadChunkIndexV2(r, 256, []uint64{4, 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(idx.Entries) != 0 {
		t.Errorf("expected no entries, got %d", len(idx.Entries))
	}
}

func TestChunkIndexV2WriteRead(t *testing.T) {
	chunkDims := []uint64{10, 5}
	entries := []ChunkEntry{
		{Offset: []uint64{10, 0}, Address: 3000, Size: 200},
		{Offset: []uint64{0, 5}, Address: 2000, Size: 180},
		{Offset: []uint64{0, 0}, Address: 1000, Size: 150, FilterMask: 1},
	}

	for _, sizeLen := range []int{0, 2} {
		f := &memFile{}
		w := binary.NewWriter(f, binary.DefaultConfig())
		addr, nodeSize, err := ChunkIndexV2Writer{ChunkSizeLen: sizeLen}.WriteChunkIndexV2(w, f.allocator(), entries, chunkDims)
		if err != nil {
			t.Fatalf("write (size len %d): %v", sizeLen, err)
		}
		if nodeSize != 2048 {
			t.Errorf("node size = %d, want 2048", nodeSize)
		}

		r := binary.NewReader(bytes.NewReader(f.buf), binary.DefaultConfig())
		idx, err := ReadChunkIndexV2(r, addr, chunkDims)
		if err != nil {
			t.Fatalf("read (size len %d): %v", sizeLen, err)
		}
		if len(idx.Entries) != len(entries) {
			t.Fatalf("got %d entries, want %d", len(idx.Entries), len(entries))
		}

		want := make([]ChunkEntry, len(entries))
		copy(want, entries)
		sortEntries(want)
		for i := range want {
			if sizeLen == 0 {
				want[i].Size = 0
				want[i].FilterMask = 0
			}
			if !reflect.DeepEqual(idx.Entries[i], want[i]) {
				t.Errorf("size len %d entry %d: got %+v, want %+v", sizeLen, i, idx.Entries[i], want[i])
			}
		}
	}
}

// TestChunkIndexV2Depth1 reads a hand-built tree whose root is an internal
// node holding one record between two leaves.
func TestChunkIndexV2Depth1(t *testing.T) {
	// Node size 100 and 16-byte records: leaves hold up to 5 records, so
	// child record counts take one byte.
	rec := func(addr, scaled uint64) []byte {
		b := make([]byte, 16)
		putUint(b, addr, 8)
		putUint(b[8:], scaled, 8)
		return b
	}
	leaf := func(recs ...[]byte) []byte {
		b := []byte("BTLF\x00\x0a")
		for _, r := range recs {
			b = append(b, r...)
		}
		return append(b, 0, 0, 0, 0)
	}

	const rootAddr, leftAddr, rightAddr = 200, 300, 400
	data := make([]byte, 512)
	copy(data, v2Header(10, 16, 1, rootAddr, 1, 5))

	root := []byte("BTIN\x00\x0a")
	root = append(root, rec(5020, 2)...)
	child := make([]byte, 9)
	putUint(child, leftAddr, 8)
	child[8] = 2
	root = append(root, child...)
	child = make([]byte, 9)
	putUint(child, rightAddr, 8)
	child[8] = 2
	root = append(root, child...)
	copy(data[rootAddr:], root)
	copy(data[leftAddr:], leaf(rec(5000, 0), rec(5010, 1)))
	copy(data[rightAddr:], leaf(rec(5030, 3), rec(5040, 4)))

	r := binary.NewReader(bytes.NewReader(data), binary.DefaultConfig())
	idx, err := ReadChunkIndexV2(r, 0, []uint64{100})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	sortEntries(idx.Entries)
	if len(idx.Entries) != 5 {
		t.Fatalf("got %d entries, want 5", len(idx.Entries))
	}
	for i, e := range idx.Entries {
		if e.Offset[0] != uint64(i)*100 || e.Address != 5000+uint64(i)*10 {
			t.Errorf("entry %d: offset %v address %d", i, e.Offset, e.Address)
		}
	}
}

func TestChunkIndexV1WriteRead(t *testing.T) {
	chunkDims := []uint64{4}
	var entries []ChunkEntry
	// More than 2K entries forces a two-level tree.
	for i := uint64(0); i < 3*ChunkBTreeK; i++ {
		entries = append(entries, ChunkEntry{
			Offset:  []uint64{i * 4},
			Address: 10000 + i*32,
			Size:    32,
		})
	}

	f := &memFile{}
	w := binary.NewWriter(f, binary.DefaultConfig())
	root, err := WriteChunkIndex(w, f.allocator(), entries, chunkDims)
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	r := binary.NewReader(bytes.NewReader(f.buf), binary.DefaultConfig())
	idx, err := ReadChunkIndex(r, root, 1)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(idx.Entries, entries) {
		t.Errorf("entries differ after round trip: got %d entries", len(idx.Entries))
	}
}

func TestBTreeV2TypeConstants(t *testing.T) {
	if BTreeV2TypeChunkNoFilter != 10 {
		t.Errorf("BTreeV2TypeChunkNoFilter should be 10, got %d", BTreeV2TypeChunkNoFilter)
	}
	if BTreeV2TypeChunkWithFilter != 11 {
		t.Errorf("BTreeV2TypeChunkWithFilter should be 11, got %d", BTreeV2TypeChunkWithFilter)
	}
}

package layout

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	binpkg "github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/btree"
	"github.com/robert-malhotra/h5zarr/internal/filter"
	"github.com/robert-malhotra/h5zarr/internal/grid"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

type bytesReaderAt []byte

func (b bytesReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(b)) {
		return 0, nil
	}
	n := copy(p, b[off:])
	return n, nil
}

// memFile is a growable in-memory file for index round trips.
type memFile struct {
	buf  []byte
	next uint64
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

func (m *memFile) alloc(size int64) uint64 {
	if m.next == 0 {
		m.next = 64
	}
	addr := m.next
	m.next += uint64(size)
	return addr
}

var fillBytes = []byte{0xFF, 0xFF, 0xFF, 0xFF}

// sequence returns n uint32 values 0..n-1 in little-endian order.
func sequence(n uint64) []byte {
	out := make([]byte, n*4)
	for i := uint64(0); i < n; i++ {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(i))
	}
	return out
}

type chunkedCase struct {
	dims     []uint64
	maxDims  []uint64
	chunk    []uint32
	index    message.ChunkIndexType
	filtered bool
	// omit reports chunks that are never written.
	omit func(offset []uint64) bool
}

// build writes the dataset through ChunkWriter and returns a reader for
// it together with the expected dataset bytes.
func (tc chunkedCase) build(t *testing.T) (*Chunked, []byte) {
	t.Helper()

	mf := &memFile{}
	w := binpkg.NewWriter(mf, binpkg.DefaultConfig())
	data := sequence(grid.NumElements(tc.dims))
	chunkDims := make([]uint64, len(tc.chunk))
	for i, c := range tc.chunk {
		chunkDims[i] = uint64(c)
	}

	expected := append([]byte(nil), data...)
	var kept []Chunk
	for _, c := range SplitIntoChunks(data, tc.dims, tc.chunk, 4, fillBytes) {
		if tc.omit != nil && tc.omit(c.Offset) {
			hi := make([]uint64, len(tc.dims))
			for d := range hi {
				hi[d] = min(c.Offset[d]+chunkDims[d], tc.dims[d])
			}
			grid.Copy(
				grid.Block{Data: expected, Origin: make([]uint64, len(tc.dims)), Shape: tc.dims},
				grid.Block{Data: bytes.Repeat(fillBytes, int(grid.NumElements(chunkDims))), Origin: c.Offset, Shape: chunkDims},
				c.Offset, hi, 4)
			continue
		}
		kept = append(kept, c)
	}

	var fpMsg *message.FilterPipeline
	cw := NewChunkWriter(w, tc.chunk, 4, mf.alloc)
	if tc.filtered {
		fpMsg = &message.FilterPipeline{Version: 2, Filters: []message.FilterInfo{
			{ID: message.FilterShuffle, ClientData: []uint32{4}},
			{ID: message.FilterDeflate, ClientData: []uint32{6}},
		}}
		p, err := filter.NewPipeline(fpMsg)
		if err != nil {
			t.Fatalf("NewPipeline: %v", err)
		}
		cw.SetPipeline(p)
	}

	lm := &message.DataLayout{
		Version:        4,
		Class:          message.LayoutChunked,
		ChunkDims:      append(append([]uint32(nil), tc.chunk...), 4),
		ChunkIndexType: tc.index,
	}
	maxDims := tc.maxDims
	if maxDims == nil {
		maxDims = tc.dims
	}
	counts := IndexGrid(tc.dims, maxDims, chunkDims)

	writeAll := func() []btree.ChunkEntry {
		entries, err := cw.WriteChunks(kept)
		if err != nil {
			t.Fatalf("WriteChunks: %v", err)
		}
		return entries
	}

	var err error
	switch tc.index {
	case message.ChunkIndexSingleChunk:
		entries := writeAll()
		lm.ChunkIndexAddr = entries[0].Address
		if cw.Filtered() {
			lm.SetFilteredSingleChunk(uint64(entries[0].Size), 0)
		}
	case message.ChunkIndexImplicit:
		lm.ChunkIndexAddr, err = cw.WriteImplicitChunks(kept, counts)
	case message.ChunkIndexFixedArray:
		lm.ChunkIndexAddr, lm.PageBits, err = cw.WriteFixedArrayIndex(writeAll(), counts)
	case message.ChunkIndexExtensibleArray:
		unlim := -1
		for d, m := range maxDims {
			if m == unlimited {
				unlim = d
				break
			}
		}
		var p EAParams
		lm.ChunkIndexAddr, p, err = cw.WriteExtensibleArrayIndex(writeAll(), counts, unlim)
		lm.MaxBits, lm.IndexElements, lm.MinPointers, lm.MinElements, lm.ExtensiblePageBits =
			p.MaxBits, p.IndexElements, p.MinPointers, p.MinElements, p.PageBits
	case message.ChunkIndexBTreeV1:
		lm.Version = 3
		lm.ChunkIndexAddr, err = cw.WriteBTreeV1Index(writeAll())
	case message.ChunkIndexBTreeV2:
		lm.ChunkIndexAddr, lm.NodeSize, err = cw.WriteBTreeV2Index(writeAll())
	}
	if err != nil {
		t.Fatalf("writing %s index: %v", tc.index, err)
	}

	ds := &message.Dataspace{
		SpaceType:  message.DataspaceSimple,
		Rank:       len(tc.dims),
		Dimensions: tc.dims,
		MaxDims:    tc.maxDims,
	}
	dt := &message.Datatype{Class: message.ClassFixedPoint, Size: 4}
	fill := &message.FillValue{IsDefined: true, Size: 4, Value: fillBytes}
	r := binpkg.NewReader(mf, binpkg.DefaultConfig())
	return NewChunked(lm, ds, dt, fpMsg, fill, r), expected
}

func TestChunkedRoundTrip(t *testing.T) {
	everyThird := func(off []uint64) bool { return (off[0]/2)%3 == 1 }

	tests := []struct {
		name string
		tc   chunkedCase
	}{
		{"single", chunkedCase{dims: []uint64{5, 3}, chunk: []uint32{5, 3}, index: message.ChunkIndexSingleChunk}},
		{"single filtered", chunkedCase{dims: []uint64{5, 3}, chunk: []uint32{5, 3}, index: message.ChunkIndexSingleChunk, filtered: true}},
		{"implicit", chunkedCase{dims: []uint64{7, 5}, chunk: []uint32{2, 2}, index: message.ChunkIndexImplicit}},
		{"fixed array", chunkedCase{dims: []uint64{9, 6}, chunk: []uint32{2, 4}, index: message.ChunkIndexFixedArray, omit: everyThird}},
		{"fixed array filtered", chunkedCase{dims: []uint64{9, 6}, chunk: []uint32{2, 4}, index: message.ChunkIndexFixedArray, filtered: true}},
		{"fixed array paged", chunkedCase{dims: []uint64{40, 40}, chunk: []uint32{1, 1}, index: message.ChunkIndexFixedArray,
			omit: func(off []uint64) bool { return off[0] == 30 }}},
		{"extensible array", chunkedCase{dims: []uint64{10, 3}, maxDims: []uint64{unlimited, 3}, chunk: []uint32{2, 3},
			index: message.ChunkIndexExtensibleArray}},
		{"extensible array super blocks", chunkedCase{dims: []uint64{300, 2}, maxDims: []uint64{unlimited, 2}, chunk: []uint32{1, 2},
			index: message.ChunkIndexExtensibleArray, filtered: true, omit: func(off []uint64) bool { return off[0]%7 == 3 }}},
		{"extensible array second dim", chunkedCase{dims: []uint64{3, 20}, maxDims: []uint64{3, unlimited}, chunk: []uint32{2, 3},
			index: message.ChunkIndexExtensibleArray}},
		{"btree v1", chunkedCase{dims: []uint64{20, 20}, chunk: []uint32{2, 2}, index: message.ChunkIndexBTreeV1, omit: everyThird}},
		{"btree v1 filtered", chunkedCase{dims: []uint64{12, 8}, chunk: []uint32{5, 3}, index: message.ChunkIndexBTreeV1, filtered: true}},
		{"btree v2", chunkedCase{dims: []uint64{6, 8}, maxDims: []uint64{unlimited, unlimited}, chunk: []uint32{4, 3},
			index: message.ChunkIndexBTreeV2, omit: everyThird}},
		{"btree v2 filtered", chunkedCase{dims: []uint64{6, 8}, maxDims: []uint64{unlimited, unlimited}, chunk: []uint32{4, 3},
			index: message.ChunkIndexBTreeV2, filtered: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, expected := tt.tc.build(t)

			if c.IndexType() != tt.tc.index {
				t.Errorf("IndexType = %s, want %s", c.IndexType(), tt.tc.index)
			}
			if c.Filtered() != tt.tc.filtered {
				t.Errorf("Filtered = %v, want %v", c.Filtered(), tt.tc.filtered)
			}

			got, err := c.Read()
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !bytes.Equal(got, expected) {
				t.Fatalf("data mismatch (%d bytes vs %d)", len(got), len(expected))
			}

			start := make([]uint64, len(tt.tc.dims))
			count := make([]uint64, len(tt.tc.dims))
			for d, n := range tt.tc.dims {
				start[d] = n / 3
				count[d] = n - n/3 - n/4
			}
			slice, err := c.ReadSlice(start, count)
			if err != nil {
				t.Fatalf("ReadSlice: %v", err)
			}
			want, err := extractHyperslab(expected, tt.tc.dims, start, count, 4)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(slice, want) {
				t.Errorf("slice %v+%v mismatch", start, count)
			}
		})
	}
}

func TestChunkedEntries(t *testing.T) {
	tc := chunkedCase{
		dims:    []uint64{6, 4},
		maxDims: []uint64{unlimited, 4},
		chunk:   []uint32{2, 2},
		index:   message.ChunkIndexExtensibleArray,
		omit:    func(off []uint64) bool { return off[0] == 2 && off[1] == 2 },
	}
	c, _ := tc.build(t)

	entries, err := c.Chunks()
	if err != nil {
		t.Fatalf("Chunks: %v", err)
	}
	want := [][]uint64{{0, 0}, {0, 2}, {2, 0}, {4, 0}, {4, 2}}
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, e := range entries {
		if e.Offset[0] != want[i][0] || e.Offset[1] != want[i][1] {
			t.Errorf("entry %d offset %v, want %v", i, e.Offset, want[i])
		}
		if e.Size != 16 {
			t.Errorf("entry %d size %d, want 16", i, e.Size)
		}
		raw, err := c.ReadChunk(e)
		if err != nil {
			t.Fatalf("ReadChunk: %v", err)
		}
		if len(raw) != 16 {
			t.Errorf("ReadChunk returned %d bytes", len(raw))
		}
	}
}

func TestChunkedUnsupportedFilter(t *testing.T) {
	tc := chunkedCase{dims: []uint64{4}, chunk: []uint32{2}, index: message.ChunkIndexFixedArray}
	c, _ := tc.build(t)
	c.pipeline, c.pipeErr = filter.NewPipeline(&message.FilterPipeline{Filters: []message.FilterInfo{{ID: message.FilterSZIP}}})
	if c.pipeErr == nil {
		t.Fatal("expected SZIP pipeline to fail")
	}

	if _, err := c.Chunks(); err != nil {
		t.Errorf("Chunks should not depend on the pipeline: %v", err)
	}
	if !c.Filtered() {
		t.Error("a failed pipeline should still report the dataset as filtered")
	}
	if _, err := c.Read(); err == nil {
		t.Error("expected decode error")
	}
}

func TestChunkedUnallocated(t *testing.T) {
	lm := &message.DataLayout{
		Version:        4,
		Class:          message.LayoutChunked,
		ChunkDims:      []uint32{2, 2, 4},
		ChunkIndexType: message.ChunkIndexFixedArray,
		ChunkIndexAddr: ^uint64(0),
	}
	ds := &message.Dataspace{SpaceType: message.DataspaceSimple, Rank: 2, Dimensions: []uint64{3, 3}}
	dt := &message.Datatype{Class: message.ClassFixedPoint, Size: 4}
	fill := &message.FillValue{IsDefined: true, Size: 4, Value: []byte{1, 0, 0, 0}}
	c := NewChunked(lm, ds, dt, nil, fill, binpkg.NewReader(bytesReaderAt{}, binpkg.DefaultConfig()))

	got, err := c.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, bytes.Repeat([]byte{1, 0, 0, 0}, 9)) {
		t.Errorf("expected fill value, got %v", got)
	}
}

func TestExtensibleArrayPagingRejected(t *testing.T) {
	// With the default parameters, super block 13 holds data blocks of
	// 2048 elements, two pages each.
	tc := chunkedCase{
		dims:    []uint64{1 << 18},
		maxDims: []uint64{unlimited},
		chunk:   []uint32{1},
	}
	mf := &memFile{}
	w := binpkg.NewWriter(mf, binpkg.DefaultConfig())
	cw := NewChunkWriter(w, tc.chunk, 4, mf.alloc)
	entries := []btree.ChunkEntry{{Offset: []uint64{tc.dims[0] - 1}, Address: 64, Size: 4}}
	if _, _, err := cw.WriteExtensibleArrayIndex(entries, []uint64{tc.dims[0]}, 0); err == nil {
		t.Error("expected error for paged data blocks")
	}
}

func TestEAGeometry(t *testing.T) {
	g, err := newEAGeometry(DefaultEAParams)
	if err != nil {
		t.Fatal(err)
	}
	if g.ndblkAddrs != 6 {
		t.Errorf("ndblkAddrs = %d, want 6", g.ndblkAddrs)
	}
	if g.iblkSblks != 4 {
		t.Errorf("iblkSblks = %d, want 4", g.iblkSblks)
	}
	if len(g.sblks) != 29 {
		t.Errorf("super block levels = %d, want 29", len(g.sblks))
	}
	if g.nsblkAddrs != 25 {
		t.Errorf("nsblkAddrs = %d, want 25", g.nsblkAddrs)
	}
	if s := g.sblks[4]; s.startIdx != 240 || s.ndblks != 4 || s.dblkElems != 64 {
		t.Errorf("super block 4 = %+v", s)
	}
	if _, err := newEAGeometry(EAParams{}); err == nil {
		t.Error("expected error for zero parameters")
	}
}

func TestChunkSizeLen(t *testing.T) {
	tests := []struct {
		bytes uint64
		want  int
	}{
		{1, 2},
		{255, 1 + (7+8)/8},
		{256, 1 + (8+8)/8},
		{1 << 20, 1 + (20+8)/8},
		{1 << 62, 8},
	}
	for _, tt := range tests {
		if got := ChunkSizeLen(tt.bytes); got != tt.want {
			t.Errorf("ChunkSizeLen(%d) = %d, want %d", tt.bytes, got, tt.want)
		}
	}
}

func TestSplitIntoChunks(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9}
	chunks := SplitIntoChunks(data, []uint64{3, 3}, []uint32{2, 2}, 1, []byte{0xEE})

	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
	want := []struct {
		off  []uint64
		data []byte
	}{
		{[]uint64{0, 0}, []byte{1, 2, 4, 5}},
		{[]uint64{0, 2}, []byte{3, 0xEE, 6, 0xEE}},
		{[]uint64{2, 0}, []byte{7, 8, 0xEE, 0xEE}},
		{[]uint64{2, 2}, []byte{9, 0xEE, 0xEE, 0xEE}},
	}
	for i, w := range want {
		c := chunks[i]
		if c.Offset[0] != w.off[0] || c.Offset[1] != w.off[1] {
			t.Errorf("chunk %d offset %v, want %v", i, c.Offset, w.off)
		}
		if !bytes.Equal(c.Data, w.data) {
			t.Errorf("chunk %d data %v, want %v", i, c.Data, w.data)
		}
	}
}

func TestCompactRead(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	layoutMsg := &message.DataLayout{
		Class:       message.LayoutCompact,
		CompactData: data,
	}
	ds := &message.Dataspace{SpaceType: message.DataspaceSimple, Rank: 2, Dimensions: []uint64{2, 4}}
	dt := &message.Datatype{Class: message.ClassFixedPoint, Size: 1}

	compact := NewCompact(layoutMsg, ds, dt)

	if compact.Class() != message.LayoutCompact {
		t.Errorf("expected compact class, got %d", compact.Class())
	}

	if compact.Size() != len(data) {
		t.Errorf("expected size %d, got %d", len(data), compact.Size())
	}

	result, err := compact.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if !bytes.Equal(result, data) {
		t.Errorf("data mismatch: got %v, want %v", result, data)
	}

	// Verify it returns a copy
	result[0] = 0xFF
	result2, _ := compact.Read()
	if result2[0] == 0xFF {
		t.Error("Read should return a copy, not the original slice")
	}

	slice, err := compact.ReadSlice([]uint64{1, 1}, []uint64{1, 2})
	if err != nil {
		t.Fatalf("ReadSlice failed: %v", err)
	}
	if !bytes.Equal(slice, []byte{6, 7}) {
		t.Errorf("slice mismatch: got %v", slice)
	}
	if _, err := compact.ReadSlice([]uint64{1, 3}, []uint64{1, 2}); err == nil {
		t.Error("expected out of bounds error")
	}
}

func TestContiguousRead(t *testing.T) {
	// Create fake file data with contiguous storage
	fileData := make(bytesReaderAt, 1024)
	// Put data at offset 100
	dataOffset := int64(100)
	testData := []byte{10, 20, 30, 40, 50, 60, 70, 80}
	copy(fileData[dataOffset:], testData)

	reader := binpkg.NewReader(fileData, binpkg.DefaultConfig())

	layoutMsg := &message.DataLayout{
		Class:   message.LayoutContiguous,
		Address: uint64(dataOffset),
		Size:    uint64(len(testData)),
	}

	dataspace := &message.Dataspace{
		SpaceType:  message.DataspaceSimple,
		Rank:       2,
		Dimensions: []uint64{2, 4},
	}

	datatype := &message.Datatype{
		Class: message.ClassFixedPoint,
		Size:  1,
	}

	contiguous := NewContiguous(layoutMsg, dataspace, datatype, nil, reader)

	if contiguous.Class() != message.LayoutContiguous {
		t.Errorf("expected contiguous class, got %d", contiguous.Class())
	}

	if contiguous.Address() != uint64(dataOffset) {
		t.Errorf("expected address %d, got %d", dataOffset, contiguous.Address())
	}

	if contiguous.Size() != uint64(len(testData)) {
		t.Errorf("expected size %d, got %d", len(testData), contiguous.Size())
	}

	result, err := contiguous.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if !bytes.Equal(result, testData) {
		t.Errorf("data mismatch: got %v, want %v", result, testData)
	}

	slice, err := contiguous.ReadSlice([]uint64{0, 1}, []uint64{2, 2})
	if err != nil {
		t.Fatalf("ReadSlice failed: %v", err)
	}
	if !bytes.Equal(slice, []byte{20, 30, 60, 70}) {
		t.Errorf("slice mismatch: got %v", slice)
	}
}

func TestContiguousUnallocated(t *testing.T) {
	reader := binpkg.NewReader(bytesReaderAt{}, binpkg.DefaultConfig())
	layoutMsg := &message.DataLayout{Class: message.LayoutContiguous, Address: ^uint64(0)}
	dataspace := &message.Dataspace{SpaceType: message.DataspaceSimple, Rank: 1, Dimensions: []uint64{3}}
	datatype := &message.Datatype{Class: message.ClassFixedPoint, Size: 2}
	fill := &message.FillValue{IsDefined: true, Size: 2, Value: []byte{7, 0}}

	contiguous := NewContiguous(layoutMsg, dataspace, datatype, fill, reader)
	if contiguous.Allocated() {
		t.Error("expected unallocated storage")
	}

	result, err := contiguous.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if !bytes.Equal(result, []byte{7, 0, 7, 0, 7, 0}) {
		t.Errorf("expected fill value, got %v", result)
	}
	slice, err := contiguous.ReadSlice([]uint64{1}, []uint64{1})
	if err != nil {
		t.Fatalf("ReadSlice failed: %v", err)
	}
	if !bytes.Equal(slice, []byte{7, 0}) {
		t.Errorf("expected fill value, got %v", slice)
	}
}

func TestContiguousSizeFromDataspace(t *testing.T) {
	fileData := make(bytesReaderAt, 1024)

	reader := binpkg.NewReader(fileData, binpkg.DefaultConfig())

	// Layout with no explicit size
	layoutMsg := &message.DataLayout{
		Class:   message.LayoutContiguous,
		Address: 100,
		Size:    0, // Will be calculated
	}

	dataspace := &message.Dataspace{
		SpaceType:  message.DataspaceSimple,
		Rank:       1,
		Dimensions: []uint64{10},
	}

	datatype := &message.Datatype{
		Class: message.ClassFixedPoint,
		Size:  4, // 4 bytes per element
	}

	contiguous := NewContiguous(layoutMsg, dataspace, datatype, nil, reader)

	// Size should be calculated as 10 * 4 = 40
	if contiguous.Size() != 40 {
		t.Errorf("expected size 40, got %d", contiguous.Size())
	}
}

func TestCalculateDataSize(t *testing.T) {
	tests := []struct {
		name      string
		dataspace *message.Dataspace
		datatype  *message.Datatype
		expected  uint64
	}{
		{
			name:      "nil dataspace",
			dataspace: nil,
			datatype:  &message.Datatype{Size: 4},
			expected:  0,
		},
		{
			name:      "nil datatype",
			dataspace: &message.Dataspace{SpaceType: message.DataspaceSimple, Dimensions: []uint64{10}},
			datatype:  nil,
			expected:  0,
		},
		{
			name:      "scalar",
			dataspace: &message.Dataspace{SpaceType: message.DataspaceScalar},
			datatype:  &message.Datatype{Size: 8},
			expected:  8,
		},
		{
			name:      "2D",
			dataspace: &message.Dataspace{SpaceType: message.DataspaceSimple, Dimensions: []uint64{10, 20}},
			datatype:  &message.Datatype{Size: 8},
			expected:  1600,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := calculateDataSize(tt.dataspace, tt.datatype)
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

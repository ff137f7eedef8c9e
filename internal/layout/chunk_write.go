package layout

import (
	"fmt"

	"github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/btree"
	"github.com/robert-malhotra/h5zarr/internal/filter"
	"github.com/robert-malhotra/h5zarr/internal/grid"
)

// DefaultFixedArrayPageBits is log2 of the entries per fixed array page.
const DefaultFixedArrayPageBits uint8 = 10

// Chunk is one chunk's element offset and uncompressed bytes.
type Chunk struct {
	Offset []uint64
	Data   []byte
}

// ChunkWriter handles writing chunked dataset data and indices.
type ChunkWriter struct {
	w           *binary.Writer
	chunkDims   []uint64
	elementSize uint32
	pipeline    *filter.Pipeline
	allocator   func(size int64) uint64
}

// NewChunkWriter creates a new chunk writer.
func NewChunkWriter(w *binary.Writer, chunkDims []uint32, elementSize uint32, allocator func(size int64) uint64) *ChunkWriter {
	dims := make([]uint64, len(chunkDims))
	for i, d := range chunkDims {
		dims[i] = uint64(d)
	}
	return &ChunkWriter{
		w:           w,
		chunkDims:   dims,
		elementSize: elementSize,
		allocator:   allocator,
	}
}

// SetPipeline makes the writer encode every chunk through p.
func (cw *ChunkWriter) SetPipeline(p *filter.Pipeline) {
	cw.pipeline = p
}

// Filtered reports whether chunks are encoded through a filter pipeline.
func (cw *ChunkWriter) Filtered() bool {
	return cw.pipeline != nil && !cw.pipeline.Empty()
}

// ChunkSize returns the size in bytes of one uncompressed chunk.
func (cw *ChunkWriter) ChunkSize() uint64 {
	return grid.NumElements(cw.chunkDims) * uint64(cw.elementSize)
}

func (cw *ChunkWriter) codec() elementCodec {
	ec := elementCodec{
		offsetSize: cw.w.OffsetSize(),
		filtered:   cw.Filtered(),
		chunkBytes: cw.ChunkSize(),
	}
	if ec.filtered {
		ec.sizeLen = ChunkSizeLen(ec.chunkBytes)
	}
	return ec
}

func (cw *ChunkWriter) clientID() uint8 {
	if cw.Filtered() {
		return clientFiltered
	}
	return clientUnfiltered
}

// WriteChunk encodes and stores one chunk and returns its index entry.
func (cw *ChunkWriter) WriteChunk(c Chunk) (btree.ChunkEntry, error) {
	data := c.Data
	if cw.Filtered() {
		var err error
		if data, err = cw.pipeline.Encode(data); err != nil {
			return btree.ChunkEntry{}, fmt.Errorf("encoding chunk at %v: %w", c.Offset, err)
		}
	}
	if uint64(len(data)) > 0xFFFFFFFF {
		return btree.ChunkEntry{}, fmt.Errorf("chunk at %v exceeds 4 GiB", c.Offset)
	}

	addr := cw.allocator(int64(len(data)))
	if err := cw.w.At(int64(addr)).WriteBytes(data); err != nil {
		return btree.ChunkEntry{}, err
	}
	return btree.ChunkEntry{Offset: c.Offset, Address: addr, Size: uint32(len(data))}, nil
}

// WriteChunks writes multiple chunks and returns their entries.
func (cw *ChunkWriter) WriteChunks(chunks []Chunk) ([]btree.ChunkEntry, error) {
	entries := make([]btree.ChunkEntry, len(chunks))
	for i, c := range chunks {
		e, err := cw.WriteChunk(c)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}

// WriteImplicitChunks stores unfiltered chunks back to back in index
// order, so addresses follow from the base address. Returns the base.
func (cw *ChunkWriter) WriteImplicitChunks(chunks []Chunk, counts []uint64) (uint64, error) {
	if cw.Filtered() {
		return 0, fmt.Errorf("implicit chunk index cannot hold filtered chunks")
	}
	size := cw.ChunkSize()
	base := cw.allocator(int64(grid.NumElements(counts) * size))
	for _, c := range chunks {
		lin := linearIndex(c.Offset, cw.chunkDims, counts, -1)
		if err := cw.w.At(int64(base + lin*size)).WriteBytes(c.Data); err != nil {
			return 0, err
		}
	}
	return base, nil
}

// linearIndex is the inverse of Chunked.chunkOffset.
func linearIndex(offset, chunkDims, counts []uint64, swizzle int) uint64 {
	var lin uint64
	if swizzle >= 0 {
		lin = offset[swizzle] / chunkDims[swizzle]
	}
	for d := range counts {
		if d == swizzle {
			continue
		}
		lin = lin*counts[d] + offset[d]/chunkDims[d]
	}
	return lin
}

// elements lays out entries by linear index in an array of n slots.
func (cw *ChunkWriter) elements(entries []btree.ChunkEntry, counts []uint64, swizzle int, n uint64) []element {
	elems := make([]element, n)
	for i := range elems {
		elems[i].addr = cw.w.UndefinedOffset()
	}
	for _, e := range entries {
		lin := linearIndex(e.Offset, cw.chunkDims, counts, swizzle)
		elems[lin] = element{addr: e.Address, size: e.Size, mask: e.FilterMask}
	}
	return elems
}

func (cw *ChunkWriter) writeBlock(addr uint64, buf []byte) error {
	return cw.w.At(int64(addr)).WriteBytes(buf)
}

// sealed appends the Jenkins lookup3 checksum of buf.
func sealed(buf []byte) []byte {
	var sum [4]byte
	putUint32LE(sum[:], binary.Lookup3Checksum(buf))
	return append(buf, sum[:]...)
}

// WriteFixedArrayIndex writes a fixed array chunk index with one entry per
// position of the chunk grid counts. Returns the header address and the
// page bits recorded in it.
func (cw *ChunkWriter) WriteFixedArrayIndex(entries []btree.ChunkEntry, counts []uint64) (uint64, uint8, error) {
	n := grid.NumElements(counts)
	ec := cw.codec()
	entrySize := ec.entrySize()
	offsetSize := cw.w.OffsetSize()
	lengthSize := cw.w.LengthSize()
	pageBits := DefaultFixedArrayPageBits
	pageSize := uint64(1) << pageBits

	headerSize := 4 + 4 + lengthSize + offsetSize + 4
	headerAddr := cw.allocator(int64(headerSize))
	elems := cw.elements(entries, counts, -1, n)

	dblk := make([]byte, 0, 4+2+offsetSize+int(n)*entrySize+4)
	dblk = append(dblk, "FADB"...)
	dblk = append(dblk, 0, cw.clientID())
	dblk = appendUint(dblk, headerAddr, offsetSize)

	if n <= pageSize {
		for _, e := range elems {
			dblk = appendElement(dblk, ec, e)
		}
		dblk = sealed(dblk)
	} else {
		npages := (n + pageSize - 1) / pageSize
		bitmap := make([]byte, (npages+7)/8)
		for p := uint64(0); p < npages; p++ {
			bitmap[p/8] |= 0x80 >> (p % 8)
		}
		dblk = sealed(append(dblk, bitmap...))
		for p := uint64(0); p < npages; p++ {
			page := make([]byte, 0, int(pageSize)*entrySize+4)
			for i := p * pageSize; i < min((p+1)*pageSize, n); i++ {
				page = appendElement(page, ec, elems[i])
			}
			dblk = append(dblk, sealed(page)...)
		}
	}
	dblkAddr := cw.allocator(int64(len(dblk)))
	if err := cw.writeBlock(dblkAddr, dblk); err != nil {
		return 0, 0, err
	}

	hdr := make([]byte, 0, headerSize)
	hdr = append(hdr, "FAHD"...)
	hdr = append(hdr, 0, cw.clientID(), uint8(entrySize), pageBits)
	hdr = appendUint(hdr, n, lengthSize)
	hdr = appendUint(hdr, dblkAddr, offsetSize)
	if err := cw.writeBlock(headerAddr, sealed(hdr)); err != nil {
		return 0, 0, err
	}

	return headerAddr, pageBits, nil
}

// WriteExtensibleArrayIndex writes an extensible array chunk index for a
// dataset whose dimension unlim is extendible. Elements go to the index
// block first, then to data blocks owned by the index block or by super
// blocks. Returns the header address and the parameters used.
func (cw *ChunkWriter) WriteExtensibleArrayIndex(entries []btree.ChunkEntry, counts []uint64, unlim int) (uint64, EAParams, error) {
	params := DefaultEAParams
	g, err := newEAGeometry(params)
	if err != nil {
		return 0, params, err
	}

	var n uint64
	for _, e := range entries {
		n = max(n, linearIndex(e.Offset, cw.chunkDims, counts, unlim)+1)
	}
	elems := cw.elements(entries, counts, unlim, n)

	ec := cw.codec()
	entrySize := ec.entrySize()
	offsetSize := cw.w.OffsetSize()
	lengthSize := cw.w.LengthSize()
	undef := cw.w.UndefinedOffset()

	headerSize := 4 + 8 + 6*lengthSize + offsetSize + 4
	headerAddr := cw.allocator(int64(headerSize))

	elemAt := func(i uint64) element {
		if i < n {
			return elems[i]
		}
		return element{addr: undef}
	}

	nIdx := uint64(params.IndexElements)
	dblkAddrs := make([]uint64, g.ndblkAddrs)
	sblkAddrs := make([]uint64, g.nsblkAddrs)
	for i := range dblkAddrs {
		dblkAddrs[i] = undef
	}
	for i := range sblkAddrs {
		sblkAddrs[i] = undef
	}

	var nsblks, sblkBytes, ndblks, dblkBytes uint64
	realized := nIdx
	writeDblk := func(info sblkInfo, base uint64) (uint64, error) {
		buf := make([]byte, 0, 4+2+offsetSize+g.arrOffSize+int(info.dblkElems)*entrySize+4)
		buf = append(buf, "EADB"...)
		buf = append(buf, 0, cw.clientID())
		buf = appendUint(buf, headerAddr, offsetSize)
		buf = appendUint(buf, base, g.arrOffSize)
		for i := uint64(0); i < info.dblkElems; i++ {
			buf = appendElement(buf, ec, elemAt(nIdx+base+i))
		}
		buf = sealed(buf)
		addr := cw.allocator(int64(len(buf)))
		ndblks++
		dblkBytes += uint64(len(buf))
		realized += info.dblkElems
		return addr, cw.writeBlock(addr, buf)
	}

	remaining := uint64(0)
	if n > nIdx {
		remaining = n - nIdx
	}
	for _, info := range g.sblks {
		if info.startIdx >= remaining {
			break
		}
		if g.dblkPages(info) > 0 {
			return 0, params, fmt.Errorf("extensible array with %d chunks needs paged data blocks", n)
		}
	}
	for s, info := range g.sblks {
		if info.startIdx >= remaining {
			break
		}
		if s < g.iblkSblks {
			for k := uint64(0); k < info.ndblks; k++ {
				base := info.startIdx + k*info.dblkElems
				if base >= remaining {
					break
				}
				addr, err := writeDblk(info, base)
				if err != nil {
					return 0, params, err
				}
				dblkAddrs[info.startDblk+k] = addr
			}
			continue
		}

		addrs := make([]uint64, info.ndblks)
		for k := range addrs {
			addrs[k] = undef
			base := info.startIdx + uint64(k)*info.dblkElems
			if base >= remaining {
				continue
			}
			if addrs[k], err = writeDblk(info, base); err != nil {
				return 0, params, err
			}
		}
		buf := make([]byte, 0, 4+2+offsetSize+g.arrOffSize+len(addrs)*offsetSize+4)
		buf = append(buf, "EASB"...)
		buf = append(buf, 0, cw.clientID())
		buf = appendUint(buf, headerAddr, offsetSize)
		buf = appendUint(buf, info.startIdx, g.arrOffSize)
		for _, a := range addrs {
			buf = appendUint(buf, a, offsetSize)
		}
		buf = sealed(buf)
		saddr := cw.allocator(int64(len(buf)))
		if err := cw.writeBlock(saddr, buf); err != nil {
			return 0, params, err
		}
		sblkAddrs[s-g.iblkSblks] = saddr
		nsblks++
		sblkBytes += uint64(len(buf))
	}

	iblkAddr := undef
	if n > 0 {
		buf := make([]byte, 0, 4+2+offsetSize+int(nIdx)*entrySize+(g.ndblkAddrs+g.nsblkAddrs)*offsetSize+4)
		buf = append(buf, "EAIB"...)
		buf = append(buf, 0, cw.clientID())
		buf = appendUint(buf, headerAddr, offsetSize)
		for i := uint64(0); i < nIdx; i++ {
			buf = appendElement(buf, ec, elemAt(i))
		}
		for _, a := range dblkAddrs {
			buf = appendUint(buf, a, offsetSize)
		}
		for _, a := range sblkAddrs {
			buf = appendUint(buf, a, offsetSize)
		}
		buf = sealed(buf)
		iblkAddr = cw.allocator(int64(len(buf)))
		if err := cw.writeBlock(iblkAddr, buf); err != nil {
			return 0, params, err
		}
	} else {
		realized = 0
	}

	hdr := make([]byte, 0, headerSize)
	hdr = append(hdr, "EAHD"...)
	hdr = append(hdr, 0, cw.clientID(), uint8(entrySize),
		params.MaxBits, params.IndexElements, params.MinElements, params.MinPointers, params.PageBits)
	for _, v := range []uint64{nsblks, sblkBytes, ndblks, dblkBytes, n, realized} {
		hdr = appendUint(hdr, v, lengthSize)
	}
	hdr = appendUint(hdr, iblkAddr, offsetSize)
	if err := cw.writeBlock(headerAddr, sealed(hdr)); err != nil {
		return 0, params, err
	}

	return headerAddr, params, nil
}

// WriteBTreeV1Index writes a v1 B-tree chunk index and returns its root.
func (cw *ChunkWriter) WriteBTreeV1Index(entries []btree.ChunkEntry) (uint64, error) {
	return btree.WriteChunkIndex(cw.w, cw.allocator, entries, cw.chunkDims)
}

// WriteBTreeV2Index writes a v2 B-tree chunk index and returns its header
// address and node size.
func (cw *ChunkWriter) WriteBTreeV2Index(entries []btree.ChunkEntry) (uint64, uint32, error) {
	bw := btree.ChunkIndexV2Writer{}
	if cw.Filtered() {
		bw.ChunkSizeLen = ChunkSizeLen(cw.ChunkSize())
	}
	return bw.WriteChunkIndexV2(cw.w, cw.allocator, entries, cw.chunkDims)
}

func appendUint(b []byte, v uint64, size int) []byte {
	for i := 0; i < size; i++ {
		b = append(b, byte(v>>(8*i)))
	}
	return b
}

func appendElement(b []byte, ec elementCodec, e element) []byte {
	start := len(b)
	b = append(b, make([]byte, ec.entrySize())...)
	ec.encode(b[start:], e)
	return b
}

func putUint64LE(b []byte, v uint64, size int) {
	for i := 0; i < size; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// IndexGrid returns the chunk counts per dimension that index arrays are
// laid out over: fixed dimensions use their maximum size.
func IndexGrid(dims, maxDims, chunkDims []uint64) []uint64 {
	bound := make([]uint64, len(dims))
	for d := range dims {
		bound[d] = dims[d]
		if d < len(maxDims) && maxDims[d] != unlimited && maxDims[d] > dims[d] {
			bound[d] = maxDims[d]
		}
	}
	return grid.ChunkCounts(bound, chunkDims)
}

// SplitIntoChunks splits row-major data into full-size chunks in row-major
// chunk order. Edge chunks are padded with the fill pattern (zeros when
// fill is nil), as the library stores them.
func SplitIntoChunks(data []byte, dims []uint64, chunkDims []uint32, elementSize uint32, fill []byte) []Chunk {
	if len(dims) == 0 {
		return []Chunk{{Offset: []uint64{}, Data: data}}
	}

	cd := make([]uint64, len(chunkDims))
	for i, d := range chunkDims {
		cd[i] = uint64(d)
	}
	elem := uint64(elementSize)
	chunkBytes := grid.NumElements(cd) * elem
	src := grid.Block{Data: data, Origin: make([]uint64, len(dims)), Shape: dims}
	counts := grid.ChunkCounts(dims, cd)

	var chunks []Chunk
	_ = grid.Each(make([]uint64, len(dims)), counts, func(idx []uint64) error {
		origin := make([]uint64, len(dims))
		hi := make([]uint64, len(dims))
		for d := range dims {
			origin[d] = idx[d] * cd[d]
			hi[d] = min(origin[d]+cd[d], dims[d])
		}
		buf := make([]byte, chunkBytes)
		grid.Fill(buf, fill)
		grid.Copy(grid.Block{Data: buf, Origin: origin, Shape: cd}, src, origin, hi, elem)
		chunks = append(chunks, Chunk{Offset: origin, Data: buf})
		return nil
	})
	return chunks
}

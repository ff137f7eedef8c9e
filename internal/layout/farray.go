package layout

import (
	"fmt"
	"math/bits"

	"github.com/robert-malhotra/h5zarr/internal/btree"
)

// Array client IDs shared by the fixed and extensible array indices.
const (
	clientUnfiltered uint8 = 0
	clientFiltered   uint8 = 1
)

// ChunkSizeLen returns the width of the stored chunk size in filtered
// index entries for chunks of chunkBytes uncompressed bytes.
func ChunkSizeLen(chunkBytes uint64) int {
	n := 1 + (log2Floor(chunkBytes)+8)/8
	if n > 8 {
		n = 8
	}
	return n
}

func log2Floor(n uint64) int {
	if n == 0 {
		return 0
	}
	return bits.Len64(n) - 1
}

// element is one decoded index array entry.
type element struct {
	addr uint64
	size uint32
	mask uint32
}

// elementCodec decodes and encodes index array entries: an address,
// followed for filtered chunks by the stored size and filter mask.
type elementCodec struct {
	offsetSize int
	sizeLen    int
	filtered   bool
	chunkBytes uint64
}

func (ec elementCodec) entrySize() int {
	if ec.filtered {
		return ec.offsetSize + ec.sizeLen + 4
	}
	return ec.offsetSize
}

func (ec elementCodec) decode(b []byte) element {
	e := element{addr: getUint(b, ec.offsetSize), size: uint32(ec.chunkBytes)}
	if ec.filtered {
		e.size = uint32(getUint(b[ec.offsetSize:], ec.sizeLen))
		e.mask = uint32(getUint(b[ec.offsetSize+ec.sizeLen:], 4))
	}
	return e
}

func (ec elementCodec) encode(b []byte, e element) {
	putUint64LE(b, e.addr, ec.offsetSize)
	if ec.filtered {
		putUint64LE(b[ec.offsetSize:], uint64(e.size), ec.sizeLen)
		putUint32LE(b[ec.offsetSize+ec.sizeLen:], e.mask)
	}
}

func getUint(b []byte, size int) uint64 {
	var v uint64
	for i := 0; i < size; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}

// bitSet reports whether bit i of a most-significant-first bitmap is set.
func bitSet(bitmap []byte, i uint64) bool {
	return bitmap[i/8]&(0x80>>(i%8)) != 0
}

// codecFor builds the entry codec from the client ID and entry size
// found in an array header.
func (c *Chunked) codecFor(clientID uint8, entrySize int) (elementCodec, error) {
	ec := elementCodec{
		offsetSize: c.reader.OffsetSize(),
		filtered:   clientID == clientFiltered,
		chunkBytes: c.ChunkBytes(),
	}
	switch clientID {
	case clientUnfiltered:
		if entrySize != ec.offsetSize {
			return ec, fmt.Errorf("unfiltered entry size %d, expected %d", entrySize, ec.offsetSize)
		}
	case clientFiltered:
		ec.sizeLen = entrySize - ec.offsetSize - 4
		if ec.sizeLen < 1 || ec.sizeLen > 8 {
			return ec, fmt.Errorf("invalid filtered entry size %d", entrySize)
		}
	default:
		return ec, fmt.Errorf("unknown array client ID %d", clientID)
	}
	return ec, nil
}

// readFixedArray reads chunk entries from a fixed array index (FAHD and
// FADB), including paged data blocks.
func (c *Chunked) readFixedArray() ([]btree.ChunkEntry, error) {
	nr := c.reader.At(int64(c.layout.ChunkIndexAddr))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading fixed array signature: %w", err)
	}
	if string(sig) != "FAHD" {
		return nil, fmt.Errorf("invalid fixed array signature: got %q, expected \"FAHD\"", string(sig))
	}
	hdr, err := nr.ReadBytes(4)
	if err != nil {
		return nil, err
	}
	if hdr[0] != 0 {
		return nil, fmt.Errorf("unsupported fixed array version: %d", hdr[0])
	}
	clientID, entrySize, pageBits := hdr[1], int(hdr[2]), hdr[3]

	numEntries, err := nr.ReadLength()
	if err != nil {
		return nil, err
	}
	dblkAddr, err := nr.ReadOffset()
	if err != nil {
		return nil, err
	}
	if c.reader.IsUndefinedOffset(dblkAddr) || numEntries == 0 {
		return nil, nil
	}

	ec, err := c.codecFor(clientID, entrySize)
	if err != nil {
		return nil, err
	}

	dr := c.reader.At(int64(dblkAddr))
	sig, err = dr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading fixed array data block signature: %w", err)
	}
	if string(sig) != "FADB" {
		return nil, fmt.Errorf("invalid fixed array data block signature: got %q, expected \"FADB\"", string(sig))
	}
	prefix := int64(4 + 2 + c.reader.OffsetSize())

	counts := c.indexGrid()
	var entries []btree.ChunkEntry
	add := func(i uint64, raw []byte) {
		e := ec.decode(raw)
		if e.addr == 0 || c.reader.IsUndefinedOffset(e.addr) {
			return
		}
		entries = append(entries, btree.ChunkEntry{
			Offset:     c.chunkOffset(i, counts, -1),
			Address:    e.addr,
			Size:       e.size,
			FilterMask: e.mask,
		})
	}

	pageSize := uint64(1) << pageBits
	if numEntries <= pageSize {
		raw, err := c.reader.At(int64(dblkAddr) + prefix).ReadBytes(int(numEntries) * entrySize)
		if err != nil {
			return nil, fmt.Errorf("reading fixed array entries: %w", err)
		}
		for i := uint64(0); i < numEntries; i++ {
			add(i, raw[int(i)*entrySize:])
		}
		return entries, nil
	}

	npages := (numEntries + pageSize - 1) / pageSize
	bitmap, err := c.reader.At(int64(dblkAddr) + prefix).ReadBytes(int((npages + 7) / 8))
	if err != nil {
		return nil, fmt.Errorf("reading fixed array page bitmap: %w", err)
	}
	pageStart := uint64(dblkAddr) + uint64(prefix) + uint64(len(bitmap)) + 4
	pageBytes := pageSize*uint64(entrySize) + 4
	for p := uint64(0); p < npages; p++ {
		if !bitSet(bitmap, p) {
			continue
		}
		n := min(pageSize, numEntries-p*pageSize)
		raw, err := c.reader.At(int64(pageStart + p*pageBytes)).ReadBytes(int(n) * entrySize)
		if err != nil {
			return nil, fmt.Errorf("reading fixed array page %d: %w", p, err)
		}
		for i := uint64(0); i < n; i++ {
			add(p*pageSize+i, raw[int(i)*entrySize:])
		}
	}
	return entries, nil
}

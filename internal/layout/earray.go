package layout

import (
	"fmt"

	"github.com/robert-malhotra/h5zarr/internal/btree"
)

// EAParams are the creation parameters of an extensible array, stored in
// both the layout message and the array header.
type EAParams struct {
	MaxBits       uint8 // log2 of the maximum number of elements
	IndexElements uint8 // elements stored directly in the index block
	MinPointers   uint8 // minimum data block pointers in a super block
	MinElements   uint8 // minimum elements per data block
	PageBits      uint8 // log2 of elements per data block page
}

// DefaultEAParams matches the library defaults for chunk indices.
var DefaultEAParams = EAParams{MaxBits: 32, IndexElements: 4, MinPointers: 4, MinElements: 16, PageBits: 10}

// sblkInfo describes one super block level of an extensible array.
type sblkInfo struct {
	ndblks    uint64 // data blocks in the super block
	dblkElems uint64 // elements per data block
	startIdx  uint64 // first element index, after the index block elements
	startDblk uint64 // index of the first data block
}

// eaGeometry is the block structure derived from EAParams.
type eaGeometry struct {
	p          EAParams
	sblks      []sblkInfo
	iblkSblks  int // super block levels whose data blocks hang off the index block
	ndblkAddrs int
	nsblkAddrs int
	arrOffSize int
	pageElems  uint64
}

func newEAGeometry(p EAParams) (*eaGeometry, error) {
	if p.MinElements == 0 || p.MinPointers == 0 || p.MaxBits == 0 {
		return nil, fmt.Errorf("invalid extensible array parameters %+v", p)
	}
	minBits := log2Floor(uint64(p.MinElements))
	if int(p.MaxBits) < minBits {
		return nil, fmt.Errorf("extensible array max bits %d below data block size", p.MaxBits)
	}
	g := &eaGeometry{
		p:          p,
		iblkSblks:  2 * log2Floor(uint64(p.MinPointers)),
		ndblkAddrs: 2 * (int(p.MinPointers) - 1),
		arrOffSize: (int(p.MaxBits) + 7) / 8,
		pageElems:  uint64(1) << p.PageBits,
	}
	nsblks := 1 + int(p.MaxBits) - minBits
	g.sblks = make([]sblkInfo, nsblks)
	var startIdx, startDblk uint64
	for u := range g.sblks {
		info := sblkInfo{
			ndblks:    uint64(1) << (u / 2),
			dblkElems: (uint64(1) << ((u + 1) / 2)) * uint64(p.MinElements),
			startIdx:  startIdx,
			startDblk: startDblk,
		}
		g.sblks[u] = info
		startIdx += info.ndblks * info.dblkElems
		startDblk += info.ndblks
	}
	g.nsblkAddrs = nsblks - g.iblkSblks
	if g.nsblkAddrs < 0 {
		g.nsblkAddrs = 0
	}
	return g, nil
}

// dblkPages returns the number of pages of a data block, or 0 when the
// block is not paged.
func (g *eaGeometry) dblkPages(info sblkInfo) uint64 {
	if info.dblkElems <= g.pageElems {
		return 0
	}
	return info.dblkElems / g.pageElems
}

// readExtensibleArray reads chunk entries from an extensible array index:
// the header, the index block, its data blocks and any super blocks.
func (c *Chunked) readExtensibleArray() ([]btree.ChunkEntry, error) {
	nr := c.reader.At(int64(c.layout.ChunkIndexAddr))

	sig, err := nr.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading extensible array signature: %w", err)
	}
	if string(sig) != "EAHD" {
		return nil, fmt.Errorf("invalid extensible array signature: got %q, expected \"EAHD\"", string(sig))
	}
	hdr, err := nr.ReadBytes(8)
	if err != nil {
		return nil, err
	}
	if hdr[0] != 0 {
		return nil, fmt.Errorf("unsupported extensible array version: %d", hdr[0])
	}
	clientID, entrySize := hdr[1], int(hdr[2])
	params := EAParams{
		MaxBits:       hdr[3],
		IndexElements: hdr[4],
		MinElements:   hdr[5],
		MinPointers:   hdr[6],
		PageBits:      hdr[7],
	}

	// Statistics: super blocks, their size, data blocks, their size.
	for i := 0; i < 4; i++ {
		if _, err := nr.ReadLength(); err != nil {
			return nil, err
		}
	}
	maxIdxSet, err := nr.ReadLength()
	if err != nil {
		return nil, err
	}
	if _, err := nr.ReadLength(); err != nil { // realized elements
		return nil, err
	}
	iblkAddr, err := nr.ReadOffset()
	if err != nil {
		return nil, err
	}
	if c.reader.IsUndefinedOffset(iblkAddr) || maxIdxSet == 0 {
		return nil, nil
	}

	ec, err := c.codecFor(clientID, entrySize)
	if err != nil {
		return nil, err
	}
	g, err := newEAGeometry(params)
	if err != nil {
		return nil, err
	}

	counts := c.indexGrid()
	swizzle := c.unlimitedDim()
	var entries []btree.ChunkEntry
	add := func(i uint64, raw []byte) {
		e := ec.decode(raw)
		if e.addr == 0 || c.reader.IsUndefinedOffset(e.addr) {
			return
		}
		entries = append(entries, btree.ChunkEntry{
			Offset:     c.chunkOffset(i, counts, swizzle),
			Address:    e.addr,
			Size:       e.size,
			FilterMask: e.mask,
		})
	}

	// Index block.
	ir := c.reader.At(int64(iblkAddr))
	sig, err = ir.ReadBytes(4)
	if err != nil {
		return nil, fmt.Errorf("reading extensible array index block signature: %w", err)
	}
	if string(sig) != "EAIB" {
		return nil, fmt.Errorf("invalid extensible array index block signature: got %q, expected \"EAIB\"", string(sig))
	}
	ir.Skip(int64(2 + c.reader.OffsetSize()))

	nIdx := uint64(params.IndexElements)
	raw, err := ir.ReadBytes(int(nIdx) * entrySize)
	if err != nil {
		return nil, fmt.Errorf("reading index block elements: %w", err)
	}
	for i := uint64(0); i < nIdx && i < maxIdxSet; i++ {
		add(i, raw[int(i)*entrySize:])
	}
	dblkAddrs := make([]uint64, g.ndblkAddrs)
	for i := range dblkAddrs {
		if dblkAddrs[i], err = ir.ReadOffset(); err != nil {
			return nil, err
		}
	}
	sblkAddrs := make([]uint64, g.nsblkAddrs)
	for i := range sblkAddrs {
		if sblkAddrs[i], err = ir.ReadOffset(); err != nil {
			return nil, err
		}
	}
	if maxIdxSet <= nIdx {
		return entries, nil
	}
	remaining := maxIdxSet - nIdx

	readDblk := func(addr uint64, info sblkInfo, base uint64, pageInit []byte) error {
		if c.reader.IsUndefinedOffset(addr) {
			return nil
		}
		dr := c.reader.At(int64(addr))
		sig, err := dr.ReadBytes(4)
		if err != nil {
			return err
		}
		if string(sig) != "EADB" {
			return fmt.Errorf("invalid extensible array data block signature: got %q, expected \"EADB\"", string(sig))
		}
		prefix := uint64(4 + 2 + c.reader.OffsetSize() + g.arrOffSize)
		n := min(info.dblkElems, remaining-base)

		npages := g.dblkPages(info)
		if npages == 0 {
			raw, err := c.reader.At(int64(addr + prefix)).ReadBytes(int(n) * entrySize)
			if err != nil {
				return err
			}
			for i := uint64(0); i < n; i++ {
				add(nIdx+base+i, raw[int(i)*entrySize:])
			}
			return nil
		}

		pageBytes := g.pageElems*uint64(entrySize) + 4
		start := addr + prefix + 4
		for p := uint64(0); p < npages && p*g.pageElems < n; p++ {
			if pageInit != nil && !bitSet(pageInit, p) {
				continue
			}
			m := min(g.pageElems, n-p*g.pageElems)
			raw, err := c.reader.At(int64(start + p*pageBytes)).ReadBytes(int(m) * entrySize)
			if err != nil {
				return err
			}
			for i := uint64(0); i < m; i++ {
				add(nIdx+base+p*g.pageElems+i, raw[int(i)*entrySize:])
			}
		}
		return nil
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
				if err := readDblk(dblkAddrs[info.startDblk+k], info, base, nil); err != nil {
					return nil, fmt.Errorf("reading data block %d: %w", info.startDblk+k, err)
				}
			}
			continue
		}

		saddr := sblkAddrs[s-g.iblkSblks]
		if c.reader.IsUndefinedOffset(saddr) {
			continue
		}
		sr := c.reader.At(int64(saddr))
		sig, err := sr.ReadBytes(4)
		if err != nil {
			return nil, err
		}
		if string(sig) != "EASB" {
			return nil, fmt.Errorf("invalid extensible array super block signature: got %q, expected \"EASB\"", string(sig))
		}
		sr.Skip(int64(2 + c.reader.OffsetSize() + g.arrOffSize))

		var bitmaps []byte
		bitmapLen := 0
		if npages := g.dblkPages(info); npages > 0 {
			bitmapLen = int((npages + 7) / 8)
			if bitmaps, err = sr.ReadBytes(int(info.ndblks) * bitmapLen); err != nil {
				return nil, err
			}
		}
		for k := uint64(0); k < info.ndblks; k++ {
			daddr, err := sr.ReadOffset()
			if err != nil {
				return nil, err
			}
			base := info.startIdx + k*info.dblkElems
			if base >= remaining {
				break
			}
			var pageInit []byte
			if bitmapLen > 0 {
				pageInit = bitmaps[int(k)*bitmapLen : int(k+1)*bitmapLen]
			}
			if err := readDblk(daddr, info, base, pageInit); err != nil {
				return nil, fmt.Errorf("reading super block %d data block %d: %w", s, k, err)
			}
		}
	}
	return entries, nil
}

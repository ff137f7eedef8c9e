// Package grid holds the index arithmetic shared by chunked readers:
// chunk grids, region intersection and strided block copies in C or
// Fortran order.
package grid

// Strides returns the byte stride of each dimension of a block with the
// given shape. In C order the last dimension is contiguous; in Fortran
// order the first one is.
func Strides(shape []uint64, elemSize uint64, fortran bool) []uint64 {
	n := len(shape)
	strides := make([]uint64, n)
	if n == 0 {
		return strides
	}
	if fortran {
		strides[0] = elemSize
		for d := 1; d < n; d++ {
			strides[d] = strides[d-1] * shape[d-1]
		}
		return strides
	}
	strides[n-1] = elemSize
	for d := n - 2; d >= 0; d-- {
		strides[d] = strides[d+1] * shape[d+1]
	}
	return strides
}

// NumElements returns the product of shape (1 for rank 0).
func NumElements(shape []uint64) uint64 {
	n := uint64(1)
	for _, s := range shape {
		n *= s
	}
	return n
}

// ChunkCounts returns the number of chunks along each dimension.
func ChunkCounts(shape, chunks []uint64) []uint64 {
	counts := make([]uint64, len(shape))
	for d := range shape {
		if chunks[d] == 0 {
			continue
		}
		counts[d] = (shape[d] + chunks[d] - 1) / chunks[d]
	}
	return counts
}

// Unravel converts a row-major linear index into coordinates.
func Unravel(linear uint64, counts []uint64) []uint64 {
	idx := make([]uint64, len(counts))
	for d := len(counts) - 1; d >= 0; d-- {
		if counts[d] == 0 {
			continue
		}
		idx[d] = linear % counts[d]
		linear /= counts[d]
	}
	return idx
}

// Intersect returns the overlap of the half-open boxes [aLo,aHi) and
// [bLo,bHi), and whether it is non-empty.
func Intersect(aLo, aHi, bLo, bHi []uint64) (lo, hi []uint64, ok bool) {
	n := len(aLo)
	lo = make([]uint64, n)
	hi = make([]uint64, n)
	for d := 0; d < n; d++ {
		lo[d] = max(aLo[d], bLo[d])
		hi[d] = min(aHi[d], bHi[d])
		if lo[d] >= hi[d] {
			return nil, nil, false
		}
	}
	return lo, hi, true
}

// Covering returns, per dimension, the first and one-past-last chunk
// index touched by the region [lo,hi).
func Covering(lo, hi, chunks []uint64) (first, last []uint64) {
	n := len(lo)
	first = make([]uint64, n)
	last = make([]uint64, n)
	for d := 0; d < n; d++ {
		first[d] = lo[d] / chunks[d]
		last[d] = (hi[d] + chunks[d] - 1) / chunks[d]
	}
	return first, last
}

// Each calls fn for every index in the box [first,last) in row-major
// order. Rank 0 visits the single empty index once. Iteration stops at
// the first error.
func Each(first, last []uint64, fn func(idx []uint64) error) error {
	n := len(first)
	for d := 0; d < n; d++ {
		if first[d] >= last[d] {
			return nil
		}
	}
	idx := append([]uint64(nil), first...)
	for {
		if err := fn(append([]uint64(nil), idx...)); err != nil {
			return err
		}
		d := n - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < last[d] {
				break
			}
			idx[d] = first[d]
		}
		if d < 0 {
			return nil
		}
	}
}

// Block describes a buffer holding a box of a larger array.
type Block struct {
	Data    []byte
	Origin  []uint64 // global coordinate of the first element
	Shape   []uint64 // extent of the buffer, including any padding
	Fortran bool
}

// Copy copies the global region [lo,hi) from src into dst. Both blocks
// must contain the region. Rows along the contiguous dimension are moved
// with a single copy when both blocks share the same order.
func Copy(dst, src Block, lo, hi []uint64, elemSize uint64) {
	n := len(lo)
	if n == 0 {
		copy(dst.Data[:elemSize], src.Data[:elemSize])
		return
	}

	c := copier{
		dst:        dst,
		src:        src,
		lo:         lo,
		hi:         hi,
		elemSize:   elemSize,
		dstStrides: Strides(dst.Shape, elemSize, dst.Fortran),
		srcStrides: Strides(src.Shape, elemSize, src.Fortran),
		order:      make([]int, n),
		rows:       dst.Fortran == src.Fortran,
	}
	// Dimensions are visited from the slowest varying to the contiguous one.
	for i := range c.order {
		if dst.Fortran {
			c.order[i] = n - 1 - i
		} else {
			c.order[i] = i
		}
	}
	c.walk(0, 0, 0)
}

type copier struct {
	dst, src               Block
	lo, hi                 []uint64
	elemSize               uint64
	dstStrides, srcStrides []uint64
	order                  []int
	rows                   bool
}

func (c *copier) walk(pos int, dstOff, srcOff uint64) {
	d := c.order[pos]
	last := pos == len(c.order)-1

	if last && c.rows {
		n := (c.hi[d] - c.lo[d]) * c.elemSize
		ds := dstOff + (c.lo[d]-c.dst.Origin[d])*c.dstStrides[d]
		ss := srcOff + (c.lo[d]-c.src.Origin[d])*c.srcStrides[d]
		copy(c.dst.Data[ds:ds+n], c.src.Data[ss:ss+n])
		return
	}

	for i := c.lo[d]; i < c.hi[d]; i++ {
		do := dstOff + (i-c.dst.Origin[d])*c.dstStrides[d]
		so := srcOff + (i-c.src.Origin[d])*c.srcStrides[d]
		if last {
			copy(c.dst.Data[do:do+c.elemSize], c.src.Data[so:so+c.elemSize])
			continue
		}
		c.walk(pos+1, do, so)
	}
}

// Fill writes pattern repeatedly over dst. An empty pattern zeroes dst.
func Fill(dst, pattern []byte) {
	if len(pattern) == 0 {
		clear(dst)
		return
	}
	for i := 0; i < len(dst); i += len(pattern) {
		copy(dst[i:], pattern)
	}
}

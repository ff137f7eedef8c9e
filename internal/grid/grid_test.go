package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// iota8 returns n one-byte elements 0..n-1.
func iota8(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i)
	}
	return out
}

func TestStrides(t *testing.T) {
	assert.Equal(t, []uint64{48, 8}, Strides([]uint64{4, 6}, 8, false))
	assert.Equal(t, []uint64{8, 32}, Strides([]uint64{4, 6}, 8, true))
	assert.Empty(t, Strides(nil, 8, false))
}

func TestChunkCountsAndUnravel(t *testing.T) {
	counts := ChunkCounts([]uint64{1000, 7}, []uint64{100, 3})
	assert.Equal(t, []uint64{10, 3}, counts)
	assert.Equal(t, []uint64{2, 1}, Unravel(7, counts))
	assert.Equal(t, uint64(21), NumElements([]uint64{7, 3}))
	assert.Equal(t, uint64(1), NumElements(nil))
}

func TestCovering(t *testing.T) {
	first, last := Covering([]uint64{250}, []uint64{260}, []uint64{100})
	assert.Equal(t, []uint64{2}, first)
	assert.Equal(t, []uint64{3}, last)

	first, last = Covering([]uint64{99, 0}, []uint64{201, 5}, []uint64{100, 5})
	assert.Equal(t, []uint64{0, 0}, first)
	assert.Equal(t, []uint64{3, 1}, last)
}

func TestIntersect(t *testing.T) {
	lo, hi, ok := Intersect([]uint64{0, 0}, []uint64{10, 10}, []uint64{5, 8}, []uint64{20, 9})
	require.True(t, ok)
	assert.Equal(t, []uint64{5, 8}, lo)
	assert.Equal(t, []uint64{10, 9}, hi)

	_, _, ok = Intersect([]uint64{0}, []uint64{10}, []uint64{10}, []uint64{20})
	assert.False(t, ok)
}

func TestEach(t *testing.T) {
	var seen [][]uint64
	require.NoError(t, Each([]uint64{1, 0}, []uint64{3, 2}, func(idx []uint64) error {
		seen = append(seen, idx)
		return nil
	}))
	assert.Equal(t, [][]uint64{{1, 0}, {1, 1}, {2, 0}, {2, 1}}, seen)

	count := 0
	require.NoError(t, Each(nil, nil, func([]uint64) error { count++; return nil }))
	assert.Equal(t, 1, count)

	count = 0
	require.NoError(t, Each([]uint64{2}, []uint64{2}, func([]uint64) error { count++; return nil }))
	assert.Zero(t, count)
}

func TestCopyC(t *testing.T) {
	// A 4x6 chunk at origin (4,6) of a larger array; copy [5,7)x[7,10).
	src := Block{Data: iota8(24), Origin: []uint64{4, 6}, Shape: []uint64{4, 6}}
	dst := Block{Data: make([]byte, 6), Origin: []uint64{5, 7}, Shape: []uint64{2, 3}}
	Copy(dst, src, []uint64{5, 7}, []uint64{7, 10}, 1)
	assert.Equal(t, []byte{7, 8, 9, 13, 14, 15}, dst.Data)
}

func TestCopyFortranDestination(t *testing.T) {
	src := Block{Data: iota8(6), Origin: []uint64{0, 0}, Shape: []uint64{2, 3}}
	dst := Block{Data: make([]byte, 6), Origin: []uint64{0, 0}, Shape: []uint64{2, 3}, Fortran: true}
	Copy(dst, src, []uint64{0, 0}, []uint64{2, 3}, 1)
	// Column-major: (0,0) (1,0) (0,1) (1,1) (0,2) (1,2)
	assert.Equal(t, []byte{0, 3, 1, 4, 2, 5}, dst.Data)
}

func TestCopyFortranBoth(t *testing.T) {
	src := Block{Data: iota8(12), Origin: []uint64{0, 0}, Shape: []uint64{3, 4}, Fortran: true}
	dst := Block{Data: make([]byte, 4), Origin: []uint64{1, 1}, Shape: []uint64{2, 2}, Fortran: true}
	Copy(dst, src, []uint64{1, 1}, []uint64{3, 3}, 1)
	// src(i,j) = i + 3j
	assert.Equal(t, []byte{4, 5, 7, 8}, dst.Data)
}

func TestCopyScalarAndWideElements(t *testing.T) {
	dst := Block{Data: make([]byte, 2)}
	Copy(dst, Block{Data: []byte{9, 8}}, nil, nil, 2)
	assert.Equal(t, []byte{9, 8}, dst.Data)

	src := Block{Data: iota8(8), Origin: []uint64{0}, Shape: []uint64{4}}
	out := Block{Data: make([]byte, 4), Origin: []uint64{1}, Shape: []uint64{2}}
	Copy(out, src, []uint64{1}, []uint64{3}, 2)
	assert.Equal(t, []byte{2, 3, 4, 5}, out.Data)
}

func TestFill(t *testing.T) {
	buf := make([]byte, 7)
	Fill(buf, []byte{1, 2})
	assert.Equal(t, []byte{1, 2, 1, 2, 1, 2, 1}, buf)
	Fill(buf, nil)
	assert.Equal(t, make([]byte, 7), buf)
}

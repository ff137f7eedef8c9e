package h5zarr

import (
	"encoding/binary"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/internal/grid"
	"github.com/robert-malhotra/h5zarr/zarr"
)

// Array is a region read from an array. Elements are in C order.
type Array struct {
	Path  string
	DType zarr.DType
	Shape []uint64

	// Data holds the raw element bytes in the array's byte order. It is
	// nil for object arrays.
	Data []byte

	strs []string
}

// newArray returns an array of the given shape with every element set
// to fill. Object arrays start as empty strings.
func newArray(path string, t zarr.DType, shape []uint64, fill []byte) *Array {
	a := &Array{Path: path, DType: t, Shape: shape}
	n := grid.NumElements(shape)
	if t.IsObject() {
		a.strs = make([]string, n)
		return a
	}
	a.Data = make([]byte, n*uint64(t.ItemSize()))
	grid.Fill(a.Data, fill)
	return a
}

// Len returns the number of elements.
func (a *Array) Len() int {
	return int(grid.NumElements(a.Shape))
}

func (a *Array) block(origin []uint64) grid.Block {
	return grid.Block{Data: a.Data, Origin: origin, Shape: a.Shape}
}

// copyStrings copies the region [lo,hi) of a decoded object chunk into
// dst, the string buffer of the block described by out.
func copyStrings(dst, src []string, out grid.Block, origin, chunk []uint64, fortran bool, lo, hi []uint64) {
	if len(lo) == 0 {
		dst[0] = src[0]
		return
	}
	dstStrides := grid.Strides(out.Shape, 1, false)
	srcStrides := grid.Strides(chunk, 1, fortran)
	_ = grid.Each(lo, hi, func(idx []uint64) error {
		var d, s uint64
		for i, v := range idx {
			d += (v - out.Origin[i]) * dstStrides[i]
			s += (v - origin[i]) * srcStrides[i]
		}
		dst[d] = src[s]
		return nil
	})
}

// Float64s converts numeric elements to float64.
func (a *Array) Float64s() ([]float64, error) {
	size := a.DType.ItemSize()
	kind := a.DType.Kind()
	switch kind {
	case 'i', 'u', 'b', 'f':
	default:
		return nil, errors.Errorf("%s is not numeric", a.DType)
	}
	out := make([]float64, a.Len())
	order := a.DType.Order()
	for i := range out {
		b := a.Data[i*size : (i+1)*size]
		switch kind {
		case 'f':
			out[i] = decodeFloat(order, b)
		case 'i':
			out[i] = float64(decodeInt(order, b))
		default:
			out[i] = float64(decodeUint(order, b))
		}
	}
	return out, nil
}

// Int64s converts integer elements to int64.
func (a *Array) Int64s() ([]int64, error) {
	size := a.DType.ItemSize()
	kind := a.DType.Kind()
	if kind != 'i' && kind != 'u' && kind != 'b' {
		return nil, errors.Errorf("%s is not an integer type", a.DType)
	}
	out := make([]int64, a.Len())
	order := a.DType.Order()
	for i := range out {
		b := a.Data[i*size : (i+1)*size]
		if kind == 'i' {
			out[i] = decodeInt(order, b)
		} else {
			out[i] = int64(decodeUint(order, b))
		}
	}
	return out, nil
}

// Strings returns the elements of object, byte string and unicode arrays.
// Byte strings lose their null padding.
func (a *Array) Strings() ([]string, error) {
	switch a.DType.Kind() {
	case 'O':
		return append([]string(nil), a.strs...), nil
	case 'S':
		size := a.DType.ItemSize()
		out := make([]string, a.Len())
		for i := range out {
			out[i] = strings.TrimRight(string(a.Data[i*size:(i+1)*size]), "\x00")
		}
		return out, nil
	case 'U':
		size := a.DType.ItemSize()
		order := a.DType.Order()
		out := make([]string, a.Len())
		for i := range out {
			var sb strings.Builder
			for j := i * size; j < (i+1)*size; j += 4 {
				r := rune(order.Uint32(a.Data[j:]))
				if r == 0 {
					break
				}
				if !utf8.ValidRune(r) {
					r = utf8.RuneError
				}
				sb.WriteRune(r)
			}
			out[i] = sb.String()
		}
		return out, nil
	}
	return nil, errors.Errorf("%s is not a string type", a.DType)
}

func decodeUint(order binary.ByteOrder, b []byte) uint64 {
	switch len(b) {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(order.Uint16(b))
	case 4:
		return uint64(order.Uint32(b))
	}
	return order.Uint64(b)
}

func decodeInt(order binary.ByteOrder, b []byte) int64 {
	shift := 64 - 8*uint(len(b))
	return int64(decodeUint(order, b)<<shift) >> shift
}

func decodeFloat(order binary.ByteOrder, b []byte) float64 {
	switch len(b) {
	case 2:
		return halfToFloat(order.Uint16(b))
	case 4:
		return float64(math.Float32frombits(order.Uint32(b)))
	}
	return math.Float64frombits(order.Uint64(b))
}

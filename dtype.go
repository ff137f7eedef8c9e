package h5zarr

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/zarr"
)

// zarrType maps an HDF5 datatype to a zarr dtype. An array datatype maps
// to its base type, and its dimensions are returned as extra trailing
// array dimensions.
func zarrType(dt *message.Datatype) (zarr.DType, []uint64, error) {
	if dt.Class == message.ClassArray {
		if dt.BaseType == nil {
			return zarr.DType{}, nil, errors.New("array datatype without base type")
		}
		base, err := simpleType(dt.BaseType)
		if err != nil {
			return zarr.DType{}, nil, err
		}
		dims := make([]uint64, len(dt.ArrayDims))
		for i, d := range dt.ArrayDims {
			dims[i] = uint64(d)
		}
		return base, dims, nil
	}
	t, err := simpleType(dt)
	return t, nil, err
}

func simpleType(dt *message.Datatype) (zarr.DType, error) {
	switch dt.Class {
	case message.ClassFixedPoint:
		if dt.Signed {
			return numericType('i', dt)
		}
		return numericType('u', dt)
	case message.ClassBitfield:
		return numericType('u', dt)
	case message.ClassFloatPoint:
		return numericType('f', dt)
	case message.ClassEnum:
		if dt.BaseType == nil {
			return zarr.DType{}, errors.New("enum datatype without base type")
		}
		return simpleType(dt.BaseType)
	case message.ClassString:
		return zarr.Simple(fmt.Sprintf("|S%d", dt.Size)), nil
	case message.ClassVarLen:
		if dt.IsVarLenString {
			return zarr.Simple("|O"), nil
		}
		return zarr.DType{}, errors.New("variable-length sequences are not supported")
	case message.ClassOpaque:
		return zarr.Simple(fmt.Sprintf("|V%d", dt.Size)), nil
	case message.ClassCompound:
		return compoundType(dt)
	}
	return zarr.DType{}, errors.Errorf("datatype class %d is not supported", dt.Class)
}

func numericType(kind byte, dt *message.Datatype) (zarr.DType, error) {
	switch dt.Size {
	case 1, 2, 4, 8:
	default:
		return zarr.DType{}, errors.Errorf("%d-byte numeric type is not supported", dt.Size)
	}
	if kind == 'f' && dt.Size == 1 {
		return zarr.DType{}, errors.New("1-byte float is not supported")
	}
	order := byte('<')
	switch {
	case dt.Size == 1:
		order = '|'
	case dt.ByteOrder == message.OrderBE:
		order = '>'
	case dt.ByteOrder != message.OrderLE:
		return zarr.DType{}, errors.Errorf("byte order %d is not supported", dt.ByteOrder)
	}
	return zarr.Simple(fmt.Sprintf("%c%c%d", order, kind, dt.Size)), nil
}

// compoundType maps a packed compound to a structured dtype. Padding
// between members cannot be expressed as a list of fields.
func compoundType(dt *message.Datatype) (zarr.DType, error) {
	members := append([]message.CompoundMember(nil), dt.Members...)
	sort.SliceStable(members, func(i, j int) bool { return members[i].ByteOffset < members[j].ByteOffset })

	var fields []zarr.Field
	offset := uint32(0)
	for _, m := range members {
		if m.Type == nil {
			return zarr.DType{}, errors.Errorf("member %q has no datatype", m.Name)
		}
		if m.ByteOffset != offset {
			return zarr.DType{}, errors.Errorf("member %q at offset %d, expected %d: padded compounds are not supported", m.Name, m.ByteOffset, offset)
		}
		t, dims, err := zarrType(m.Type)
		if err != nil {
			return zarr.DType{}, errors.Wrapf(err, "member %q", m.Name)
		}
		if t.IsObject() {
			return zarr.DType{}, errors.Errorf("member %q: variable-length members are not supported", m.Name)
		}
		fields = append(fields, zarr.Field{Name: m.Name, DType: t, Shape: dims})
		offset += m.Type.Size
	}
	if len(fields) == 0 {
		return zarr.DType{}, errors.New("compound without members")
	}
	if offset != dt.Size {
		return zarr.DType{}, errors.Errorf("compound size %d, members cover %d: padded compounds are not supported", dt.Size, offset)
	}
	return zarr.Structured(fields...), nil
}

// decodeNumber decodes one numeric element of the given kind and size.
// Integers become int64 or uint64 and floats become JSON-safe values.
func decodeNumber(kind byte, order binary.ByteOrder, b []byte) (interface{}, error) {
	var bits uint64
	switch len(b) {
	case 1:
		bits = uint64(b[0])
	case 2:
		bits = uint64(order.Uint16(b))
	case 4:
		bits = uint64(order.Uint32(b))
	case 8:
		bits = order.Uint64(b)
	default:
		return nil, errors.Errorf("%d-byte number", len(b))
	}
	switch kind {
	case 'i':
		shift := 64 - 8*uint(len(b))
		return int64(bits<<shift) >> shift, nil
	case 'u', 'b':
		return bits, nil
	case 'f':
		switch len(b) {
		case 2:
			return zarr.Float(halfToFloat(uint16(bits))), nil
		case 4:
			return zarr.Float(float64(math.Float32frombits(uint32(bits)))), nil
		case 8:
			return zarr.Float(math.Float64frombits(bits)), nil
		}
	}
	return nil, errors.Errorf("cannot decode %d-byte %c", len(b), kind)
}

// fillValue returns the fill_value of an array with dtype t. raw is one
// element of the HDF5 fill value or nil when the file leaves it undefined.
func fillValue(t zarr.DType, raw []byte) (interface{}, error) {
	if t.IsObject() {
		return nil, nil
	}
	size := t.ItemSize()
	switch t.Kind() {
	case 'i', 'u', 'f', 'b':
		if raw == nil {
			return 0, nil
		}
		return decodeNumber(t.Kind(), t.Order(), raw[:size])
	case 'S':
		if raw == nil {
			return "", nil
		}
		return base64.StdEncoding.EncodeToString(raw[:size]), nil
	}
	if raw == nil {
		raw = make([]byte, size)
	}
	return base64.StdEncoding.EncodeToString(raw[:size]), nil
}

// fillBytes encodes one element of the fill value of an array. A null
// fill value reads as zeros.
func fillBytes(t zarr.DType, v interface{}) ([]byte, error) {
	size := t.ItemSize()
	out := make([]byte, size)
	if v == nil || t.IsObject() {
		return out, nil
	}
	order := t.Order()
	switch k := t.Kind(); k {
	case 'i', 'u', 'b':
		var bits uint64
		switch x := v.(type) {
		case json.Number:
			if n, err := strconv.ParseInt(string(x), 10, 64); err == nil {
				bits = uint64(n)
			} else if u, err := strconv.ParseUint(string(x), 10, 64); err == nil {
				bits = u
			} else if f, err := x.Float64(); err == nil {
				bits = uint64(int64(f))
			} else {
				return nil, errors.Errorf("fill value %q is not an integer", x)
			}
		case bool:
			if x {
				bits = 1
			}
		case int:
			bits = uint64(x)
		default:
			return nil, errors.Errorf("fill value %v is not an integer", v)
		}
		putBits(out, order, bits)
	case 'f':
		f, err := zarr.ParseFloat(v)
		if err != nil {
			return nil, err
		}
		switch size {
		case 2:
			putBits(out, order, uint64(floatToHalf(f)))
		case 4:
			putBits(out, order, uint64(math.Float32bits(float32(f))))
		case 8:
			putBits(out, order, math.Float64bits(f))
		default:
			return nil, errors.Errorf("%d-byte float", size)
		}
	default:
		s, ok := v.(string)
		if !ok {
			return nil, errors.Errorf("fill value %v of %s is not base64", v, t)
		}
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, errors.Wrapf(err, "fill value %q", s)
		}
		copy(out, b)
	}
	return out, nil
}

func putBits(b []byte, order binary.ByteOrder, bits uint64) {
	switch len(b) {
	case 1:
		b[0] = byte(bits)
	case 2:
		order.PutUint16(b, uint16(bits))
	case 4:
		order.PutUint32(b, uint32(bits))
	case 8:
		order.PutUint64(b, bits)
	}
}

// halfToFloat converts IEEE 754 binary16 bits.
func halfToFloat(h uint16) float64 {
	sign := 1.0
	if h&0x8000 != 0 {
		sign = -1
	}
	exp := int(h>>10) & 0x1f
	frac := float64(h & 0x3ff)
	switch exp {
	case 0:
		return sign * math.Ldexp(frac, -24)
	case 0x1f:
		if frac != 0 {
			return math.NaN()
		}
		return math.Inf(int(sign))
	}
	return sign * math.Ldexp(1+frac/1024, exp-15)
}

// floatToHalf converts to IEEE 754 binary16, truncating the mantissa.
func floatToHalf(f float64) uint16 {
	bits := math.Float32bits(float32(f))
	sign := uint16(bits>>16) & 0x8000
	exp := int(bits>>23&0xff) - 127 + 15
	frac := bits & 0x7fffff
	switch {
	case math.IsNaN(f):
		return 0x7e00
	case exp >= 0x1f:
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}
		frac |= 0x800000
		return sign | uint16(frac>>uint(14-exp))
	}
	return sign | uint16(exp)<<10 | uint16(frac>>13)
}

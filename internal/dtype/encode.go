package dtype

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"

	"github.com/robert-malhotra/h5zarr/internal/message"
)

// Encode packs a slice, array or single value of Go numbers or strings into
// raw elements of dt.
func Encode(dt *message.Datatype, src interface{}) ([]byte, error) {
	if dt == nil {
		return nil, fmt.Errorf("nil datatype")
	}
	v := reflect.ValueOf(src)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if k := v.Kind(); k != reflect.Slice && k != reflect.Array {
		one := reflect.MakeSlice(reflect.SliceOf(v.Type()), 1, 1)
		one.Index(0).Set(v)
		v = one
	}

	var put func(buf []byte, e reflect.Value) error
	switch dt.Class {
	case message.ClassFixedPoint:
		put = numberEncoder(dt, false)
	case message.ClassFloatPoint:
		put = numberEncoder(dt, true)
	case message.ClassString:
		put = func(buf []byte, e reflect.Value) error {
			if e.Kind() != reflect.String {
				return fmt.Errorf("cannot encode %v as string", e.Kind())
			}
			n := copy(buf, e.String())
			if dt.StringPadding == message.PadSpacePad {
				for i := n; i < len(buf); i++ {
					buf[i] = ' '
				}
			}
			return nil
		}
	default:
		return nil, fmt.Errorf("unsupported datatype class for encoding: %d", dt.Class)
	}

	size := int(dt.Size)
	out := make([]byte, v.Len()*size)
	for i := 0; i < v.Len(); i++ {
		if err := put(out[i*size:(i+1)*size], v.Index(i)); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func numberEncoder(dt *message.Datatype, float bool) func([]byte, reflect.Value) error {
	var order binary.ByteOrder = binary.LittleEndian
	if dt.ByteOrder == message.OrderBE {
		order = binary.BigEndian
	}
	store := func(buf []byte, bits uint64) {
		switch len(buf) {
		case 1:
			buf[0] = byte(bits)
		case 2:
			order.PutUint16(buf, uint16(bits))
		case 4:
			order.PutUint32(buf, uint32(bits))
		default:
			order.PutUint64(buf, bits)
		}
	}

	return func(buf []byte, e reflect.Value) error {
		switch {
		case float:
			if k := e.Kind(); k != reflect.Float32 && k != reflect.Float64 {
				return fmt.Errorf("cannot encode %v as float", k)
			}
			if len(buf) == 4 {
				store(buf, uint64(math.Float32bits(float32(e.Float()))))
			} else {
				store(buf, math.Float64bits(e.Float()))
			}
		case e.CanInt():
			store(buf, uint64(e.Int()))
		case e.CanUint():
			store(buf, e.Uint())
		default:
			return fmt.Errorf("cannot encode %v as fixed-point", e.Kind())
		}
		return nil
	}
}

var goDatatypes = map[reflect.Kind]func() *message.Datatype{
	reflect.Int8:    func() *message.Datatype { return message.NewFixedPointDatatype(1, true, message.OrderLE) },
	reflect.Int16:   func() *message.Datatype { return message.NewFixedPointDatatype(2, true, message.OrderLE) },
	reflect.Int32:   func() *message.Datatype { return message.NewFixedPointDatatype(4, true, message.OrderLE) },
	reflect.Int64:   func() *message.Datatype { return message.NewFixedPointDatatype(8, true, message.OrderLE) },
	reflect.Int:     func() *message.Datatype { return message.NewFixedPointDatatype(8, true, message.OrderLE) },
	reflect.Uint8:   func() *message.Datatype { return message.NewFixedPointDatatype(1, false, message.OrderLE) },
	reflect.Uint16:  func() *message.Datatype { return message.NewFixedPointDatatype(2, false, message.OrderLE) },
	reflect.Uint32:  func() *message.Datatype { return message.NewFixedPointDatatype(4, false, message.OrderLE) },
	reflect.Uint64:  func() *message.Datatype { return message.NewFixedPointDatatype(8, false, message.OrderLE) },
	reflect.Uint:    func() *message.Datatype { return message.NewFixedPointDatatype(8, false, message.OrderLE) },
	reflect.Float32: func() *message.Datatype { return message.NewFloatDatatype(4, message.OrderLE) },
	reflect.Float64: func() *message.Datatype { return message.NewFloatDatatype(8, message.OrderLE) },
	reflect.String:  func() *message.Datatype { return message.NewVarLenStringDatatype(message.CharsetUTF8) },
}

// GoTypeToDatatype maps a Go element type, or a pointer, slice or array
// of one, to a little-endian datatype. Strings become variable-length.
func GoTypeToDatatype(t reflect.Type) (*message.Datatype, error) {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	mk, ok := goDatatypes[t.Kind()]
	if !ok {
		return nil, fmt.Errorf("unsupported Go type: %v", t)
	}
	return mk(), nil
}

// DataSize is the byte size of n elements of dt.
func DataSize(dt *message.Datatype, n uint64) uint64 {
	return uint64(dt.Size) * n
}

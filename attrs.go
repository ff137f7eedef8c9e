package h5zarr

import (
	"encoding/base64"
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"

	"github.com/robert-malhotra/h5zarr/hdf5"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// attributeHolder is a group or dataset.
type attributeHolder interface {
	Attrs() []string
	Attr(name string) *hdf5.Attribute
}

// attrConverter turns attribute values into JSON values. Object
// references resolve through refs, which maps object header addresses to
// absolute paths.
type attrConverter struct {
	refs map[uint64]string
}

// attrs converts every attribute of h. Attributes that cannot be
// represented are returned in failed with the reason.
func (c *attrConverter) attrs(h attributeHolder) (map[string]interface{}, map[string]error) {
	out := map[string]interface{}{}
	var failed map[string]error
	for _, name := range h.Attrs() {
		a := h.Attr(name)
		if a == nil {
			continue
		}
		v, err := c.convert(a)
		if err != nil {
			if failed == nil {
				failed = map[string]error{}
			}
			failed[name] = err
			continue
		}
		out[name] = v
	}
	return out, failed
}

func (c *attrConverter) convert(a *hdf5.Attribute) (interface{}, error) {
	dt := a.Datatype()
	if dt == nil {
		return nil, errors.New("attribute has no datatype")
	}

	var values []interface{}
	switch {
	case dt.Class == message.ClassReference:
		refs, err := a.ReadReferences()
		if err != nil {
			return nil, err
		}
		for _, r := range refs {
			values = append(values, c.ref(uint64(r)))
		}
	case dt.Class == message.ClassString, dt.Class == message.ClassVarLen && dt.IsVarLenString:
		strs, err := a.ReadString()
		if err != nil {
			return nil, err
		}
		for _, s := range strs {
			values = append(values, cleanString(s))
		}
	default:
		n := int(a.NumElements())
		size := int(dt.Size)
		data := a.Data()
		if len(data) < n*size {
			return nil, errors.Errorf("%d bytes for %d elements of %d bytes", len(data), n, size)
		}
		for i := 0; i < n; i++ {
			v, err := c.element(dt, data[i*size:(i+1)*size])
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
	}

	if a.IsScalar() {
		if len(values) == 0 {
			return nil, nil
		}
		return values[0], nil
	}
	return nest(values, a.Shape()), nil
}

func (c *attrConverter) ref(addr uint64) interface{} {
	if p, ok := c.refs[addr]; ok {
		return p
	}
	return nil
}

// element decodes one value of type dt from b.
func (c *attrConverter) element(dt *message.Datatype, b []byte) (interface{}, error) {
	order := byteOrder(dt)
	switch dt.Class {
	case message.ClassFixedPoint:
		if dt.Signed {
			return decodeNumber('i', order, b)
		}
		return decodeNumber('u', order, b)
	case message.ClassBitfield:
		return decodeNumber('u', order, b)
	case message.ClassFloatPoint:
		return decodeNumber('f', order, b)
	case message.ClassEnum:
		if dt.BaseType == nil {
			return nil, errors.New("enum without base type")
		}
		return c.element(dt.BaseType, b)
	case message.ClassString:
		return cleanString(string(b)), nil
	case message.ClassOpaque:
		return map[string]interface{}{"base64": base64.StdEncoding.EncodeToString(b)}, nil
	case message.ClassReference:
		if len(b) < 8 {
			return nil, errors.Errorf("%d-byte reference", len(b))
		}
		return c.ref(binary.LittleEndian.Uint64(b)), nil
	case message.ClassCompound:
		obj := make(map[string]interface{}, len(dt.Members))
		for _, m := range dt.Members {
			end := int(m.ByteOffset) + int(m.Type.Size)
			if end > len(b) {
				return nil, errors.Errorf("member %q overruns compound", m.Name)
			}
			v, err := c.element(m.Type, b[m.ByteOffset:end])
			if err != nil {
				return nil, errors.Wrapf(err, "member %q", m.Name)
			}
			obj[m.Name] = v
		}
		return obj, nil
	case message.ClassArray:
		if dt.BaseType == nil {
			return nil, errors.New("array without base type")
		}
		shape := make([]uint64, len(dt.ArrayDims))
		n := 1
		for i, d := range dt.ArrayDims {
			shape[i] = uint64(d)
			n *= int(d)
		}
		size := int(dt.BaseType.Size)
		if n*size > len(b) {
			return nil, errors.New("array overruns element")
		}
		values := make([]interface{}, n)
		for i := range values {
			v, err := c.element(dt.BaseType, b[i*size:(i+1)*size])
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		return nest(values, shape), nil
	}
	return nil, errors.Errorf("datatype class %d cannot be represented in JSON", dt.Class)
}

func byteOrder(dt *message.Datatype) binary.ByteOrder {
	if dt.ByteOrder == message.OrderBE {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// cleanString drops null padding and replaces invalid UTF-8.
func cleanString(s string) string {
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return strings.ToValidUTF8(s, "�")
}

// nest shapes a flat row-major list into nested lists.
func nest(values []interface{}, shape []uint64) interface{} {
	if len(shape) <= 1 {
		if values == nil {
			return []interface{}{}
		}
		return values
	}
	stride := 1
	for _, d := range shape[1:] {
		stride *= int(d)
	}
	out := make([]interface{}, shape[0])
	for i := range out {
		lo, hi := i*stride, (i+1)*stride
		if hi > len(values) {
			out[i] = nest(nil, shape[1:])
			continue
		}
		out[i] = nest(values[lo:hi], shape[1:])
	}
	return out
}

package message

import (
	"fmt"

	"github.com/robert-malhotra/h5zarr/internal/binary"
)

// ieeeProperties holds the 12 property bytes of the IEEE float layouts:
// bit offset, precision, exponent location and size, mantissa location
// and size, exponent bias.
var ieeeProperties = map[uint32][]byte{
	4: {0, 0, 32, 0, 23, 8, 0, 23, 127, 0, 0, 0},
	8: {0, 0, 64, 0, 52, 11, 0, 52, 0xff, 0x03, 0, 0},
}

// Serialize writes the Datatype to the writer. Compound types use
// version 3, arrays version 2 and everything else version 1.
func (m *Datatype) Serialize(w *binary.Writer) error {
	version := uint32(1)
	switch m.Class {
	case ClassCompound:
		version = 3
	case ClassArray:
		version = 2
	}
	// class and version share the first byte, the class bit field the next three
	head := uint32(m.Class) | version<<4 | m.ClassBits<<8
	if err := w.WriteUint32(head); err != nil {
		return err
	}
	if err := w.WriteUint32(m.Size); err != nil {
		return err
	}

	switch m.Class {
	case ClassFixedPoint, ClassBitfield:
		if err := w.WriteUint16(m.BitOffset); err != nil {
			return err
		}
		return w.WriteUint16(m.BitPrecision)

	case ClassFloatPoint:
		props := m.Properties
		if len(props) < 12 {
			props = ieeeProperties[m.Size]
		}
		if props == nil {
			return w.WriteZeros(12)
		}
		return w.WriteBytes(props[:12])

	case ClassCompound:
		width := memberOffsetSize(m.Size)
		for _, member := range m.Members {
			if err := w.WriteBytes(append([]byte(member.Name), 0)); err != nil {
				return err
			}
			if err := w.WriteUintN(uint64(member.ByteOffset), width); err != nil {
				return err
			}
			if member.Type == nil {
				continue
			}
			if err := member.Type.Serialize(w); err != nil {
				return err
			}
		}

	case ClassArray:
		if err := w.WriteUint32(uint32(len(m.ArrayDims))); err != nil {
			return err
		}
		for _, dim := range m.ArrayDims {
			if err := w.WriteUint32(dim); err != nil {
				return err
			}
		}
		if m.BaseType != nil {
			return m.BaseType.Serialize(w)
		}

	case ClassVarLen:
		if m.VarLenType != nil {
			return m.VarLenType.Serialize(w)
		}

	case ClassOpaque:
		return writePadded(w, m.Tag)

	case ClassEnum:
		if m.BaseType == nil {
			return fmt.Errorf("enum datatype without base type")
		}
		if err := m.BaseType.Serialize(w); err != nil {
			return err
		}
		for _, em := range m.EnumMembers {
			if err := writePadded(w, em.Name); err != nil {
				return err
			}
		}
		for _, em := range m.EnumMembers {
			value := make([]byte, m.BaseType.Size)
			copy(value, em.Value)
			if err := w.WriteBytes(value); err != nil {
				return err
			}
		}
	}
	return nil
}

// writePadded writes s null-terminated and zero-padded to a multiple of 8.
func writePadded(w *binary.Writer, s string) error {
	buf := make([]byte, (len(s)+8)&^7)
	copy(buf, s)
	return w.WriteBytes(buf)
}

// SerializedSize is the number of bytes Serialize writes.
func (m *Datatype) SerializedSize(w *binary.Writer) int {
	return measure(w, m.Serialize)
}

// memberOffsetSize is the width of a compound member's byte offset.
func memberOffsetSize(compoundSize uint32) int {
	switch {
	case compoundSize <= 0xff:
		return 1
	case compoundSize <= 0xffff:
		return 2
	}
	return 4
}

// NewFixedPointDatatype returns an integer datatype of size bytes.
func NewFixedPointDatatype(size uint32, signed bool, byteOrder ByteOrder) *Datatype {
	bits := uint32(byteOrder)
	if signed {
		bits |= 0x08
	}
	return &Datatype{Class: ClassFixedPoint, ClassBits: bits, Size: size, ByteOrder: byteOrder,
		BitPrecision: uint16(size * 8), Signed: signed}
}

// NewFloatDatatype returns an IEEE float datatype of 4 or 8 bytes. The
// class bits carry the byte order, normalized mantissa and sign position.
func NewFloatDatatype(size uint32, byteOrder ByteOrder) *Datatype {
	sign := size*8 - 1
	return &Datatype{Class: ClassFloatPoint, ClassBits: uint32(byteOrder) | 1<<5 | sign<<8,
		Size: size, ByteOrder: byteOrder, Properties: append([]byte(nil), ieeeProperties[size]...)}
}

func NewStringDatatype(size uint32, padding StringPadding, charset CharacterSet) *Datatype {
	return &Datatype{Class: ClassString, ClassBits: uint32(padding) | uint32(charset)<<4,
		Size: size, StringPadding: padding, CharSet: charset}
}

// NewVarLenStringDatatype returns a variable-length string datatype. Its
// elements are 16-byte heap references.
func NewVarLenStringDatatype(charset CharacterSet) *Datatype {
	base := NewStringDatatype(1, PadNullTerm, charset)
	return &Datatype{Class: ClassVarLen, ClassBits: 1 | uint32(charset)<<4, Size: 16,
		VarLenType: base, IsVarLenString: true}
}

func NewCompoundDatatype(size uint32, members []CompoundMember) *Datatype {
	return &Datatype{Class: ClassCompound, ClassBits: uint32(len(members)), Size: size, Members: members}
}

// NewArrayDatatype returns a fixed-shape array of baseType.
func NewArrayDatatype(dims []uint32, baseType *Datatype) *Datatype {
	size := baseType.Size
	for _, d := range dims {
		size *= d
	}
	return &Datatype{Class: ClassArray, Size: size, ArrayDims: dims, BaseType: baseType}
}

func NewBitfieldDatatype(size uint32, byteOrder ByteOrder) *Datatype {
	return &Datatype{Class: ClassBitfield, ClassBits: uint32(byteOrder) & 0x01, Size: size,
		ByteOrder: byteOrder, BitPrecision: uint16(size * 8)}
}

func NewOpaqueDatatype(size uint32, tag string) *Datatype {
	return &Datatype{Class: ClassOpaque, Size: size, Tag: tag}
}

// NewReferenceDatatype returns an object reference datatype; references
// are file addresses of offsetSize bytes.
func NewReferenceDatatype(offsetSize int) *Datatype {
	return &Datatype{Class: ClassReference, Size: uint32(offsetSize)}
}

// NewEnumDatatype returns an enumeration over an integer base type.
func NewEnumDatatype(base *Datatype, members []EnumMember) *Datatype {
	return &Datatype{Class: ClassEnum, ClassBits: uint32(len(members)), Size: base.Size,
		ByteOrder: base.ByteOrder, BaseType: base, EnumMembers: members}
}

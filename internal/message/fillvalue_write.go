package message

import (
	"github.com/robert-malhotra/h5zarr/internal/binary"
)

// Fill value allocation and write times.
const (
	FillAllocEarly       uint8 = 1
	FillAllocLate        uint8 = 2
	FillAllocIncremental uint8 = 3

	FillWriteOnAlloc uint8 = 0
	FillWriteNever   uint8 = 1
	FillWriteIfSet   uint8 = 2
)

// NewFillValue creates a version 3 fill value message holding value.
// A nil value produces a message with the fill value undefined.
func NewFillValue(value []byte) *FillValue {
	return &FillValue{
		Version:        3,
		SpaceAllocTime: FillAllocIncremental,
		FillWriteTime:  FillWriteIfSet,
		IsDefined:      value != nil,
		Size:           uint32(len(value)),
		Value:          value,
	}
}

// Serialize writes the FillValue in version 3 format.
func (m *FillValue) Serialize(w *binary.Writer) error {
	if err := w.WriteUint8(3); err != nil {
		return err
	}

	flags := m.SpaceAllocTime&0x03 | (m.FillWriteTime&0x03)<<2
	if !m.IsDefined {
		flags |= 1 << 4
	} else if m.Value != nil {
		flags |= 1 << 5
	}
	if err := w.WriteUint8(flags); err != nil {
		return err
	}

	if m.IsDefined && m.Value != nil {
		if err := w.WriteUint32(uint32(len(m.Value))); err != nil {
			return err
		}
		return w.WriteBytes(m.Value)
	}
	return nil
}

// SerializedSize is the number of bytes Serialize writes.
func (m *FillValue) SerializedSize(w *binary.Writer) int {
	return measure(w, m.Serialize)
}

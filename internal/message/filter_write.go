package message

import (
	"github.com/robert-malhotra/h5zarr/internal/binary"
)

// NewFilterPipeline creates a version 2 filter pipeline message.
// Filters are listed in the order they are applied when writing.
func NewFilterPipeline(filters ...FilterInfo) *FilterPipeline {
	return &FilterPipeline{
		Version: 2,
		Filters: filters,
	}
}

// Serialize writes the FilterPipeline in version 2 format.
func (m *FilterPipeline) Serialize(w *binary.Writer) error {
	if err := w.WriteUint8(2); err != nil {
		return err
	}
	if err := w.WriteUint8(uint8(len(m.Filters))); err != nil {
		return err
	}

	for _, f := range m.Filters {
		if err := w.WriteUint16(f.ID); err != nil {
			return err
		}
		// Version 2 only has a name field for non-library filters.
		if f.ID >= 256 {
			if err := w.WriteUint16(filterNameLen(f)); err != nil {
				return err
			}
		}
		if err := w.WriteUint16(f.Flags); err != nil {
			return err
		}
		if err := w.WriteUint16(uint16(len(f.ClientData))); err != nil {
			return err
		}
		if f.ID >= 256 && f.Name != "" {
			name := make([]byte, filterNameLen(f))
			copy(name, f.Name)
			if err := w.WriteBytes(name); err != nil {
				return err
			}
		}
		for _, cd := range f.ClientData {
			if err := w.WriteUint32(cd); err != nil {
				return err
			}
		}
	}

	return nil
}

// SerializedSize is the number of bytes Serialize writes.
func (m *FilterPipeline) SerializedSize(w *binary.Writer) int {
	return measure(w, m.Serialize)
}

// filterNameLen returns the null-terminated name length.
func filterNameLen(f FilterInfo) uint16 {
	if f.Name == "" {
		return 0
	}
	return uint16(len(f.Name) + 1)
}

package message

import (
	"github.com/robert-malhotra/h5zarr/internal/binary"
)

// Serialize writes a version 1 link message. The link type field is only
// present for soft and external links.
func (m *Link) Serialize(w *binary.Writer) error {
	nameLen := uint64(len(m.Name))
	var sizeBits uint8
	switch {
	case nameLen > 0xFFFFFFFF:
		sizeBits = 3
	case nameLen > 0xFFFF:
		sizeBits = 2
	case nameLen > 0xFF:
		sizeBits = 1
	}
	flags := sizeBits
	if m.LinkType != LinkTypeHard {
		flags |= 0x08
	}

	var payload []byte
	switch m.LinkType {
	case LinkTypeSoft:
		payload = []byte(m.SoftLinkValue)
	case LinkTypeExternal:
		// version/flags byte, then two NUL terminated strings
		payload = append([]byte{0}, m.ExternalFile...)
		payload = append(payload, 0)
		payload = append(payload, m.ExternalPath...)
		payload = append(payload, 0)
	}

	hdr := []byte{1, flags}
	if m.LinkType != LinkTypeHard {
		hdr = append(hdr, uint8(m.LinkType))
	}
	if err := w.WriteBytes(hdr); err != nil {
		return err
	}
	if err := w.WriteUintN(nameLen, 1<<sizeBits); err != nil {
		return err
	}
	if err := w.WriteBytes([]byte(m.Name)); err != nil {
		return err
	}
	if m.LinkType == LinkTypeHard {
		return w.WriteOffset(m.ObjectAddress)
	}
	if err := w.WriteUint16(uint16(len(payload))); err != nil {
		return err
	}
	return w.WriteBytes(payload)
}

// SerializedSize is the number of bytes Serialize writes.
func (m *Link) SerializedSize(w *binary.Writer) int {
	return measure(w, m.Serialize)
}

// NewHardLink creates a new hard link message.
func NewHardLink(name string, objectAddress uint64) *Link {
	return &Link{
		Version:       1,
		LinkType:      LinkTypeHard,
		Name:          name,
		ObjectAddress: objectAddress,
	}
}

// NewSoftLink creates a new soft link message.
func NewSoftLink(name string, targetPath string) *Link {
	return &Link{
		Version:       1,
		LinkType:      LinkTypeSoft,
		Name:          name,
		SoftLinkValue: targetPath,
	}
}

// NewExternalLink creates a new external link message.
func NewExternalLink(name string, externalFile, externalPath string) *Link {
	return &Link{
		Version:      1,
		LinkType:     LinkTypeExternal,
		Name:         name,
		ExternalFile: externalFile,
		ExternalPath: externalPath,
	}
}

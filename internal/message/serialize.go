package message

import (
	"github.com/robert-malhotra/h5zarr/internal/binary"
)

// Serializable is a message the writer can emit.
type Serializable interface {
	Message
	Serialize(w *binary.Writer) error
	SerializedSize(w *binary.Writer) int
}

// Serialize writes msg if it is Serializable.
func Serialize(msg Message, w *binary.Writer) error {
	if s, ok := msg.(Serializable); ok {
		return s.Serialize(w)
	}
	return nil
}

// SerializedSize is the encoded size of msg, or 0 if it cannot be written.
func SerializedSize(msg Message, w *binary.Writer) int {
	if s, ok := msg.(Serializable); ok {
		return s.SerializedSize(w)
	}
	return 0
}

type discard struct{}

func (discard) WriteAt(p []byte, _ int64) (int, error) { return len(p), nil }

// measure runs serialize against a writer that drops its output and
// returns the byte count. A nil w measures with the default widths.
func measure(w *binary.Writer, serialize func(*binary.Writer) error) int {
	cfg := binary.DefaultConfig()
	if w != nil {
		cfg = binary.Config{ByteOrder: w.ByteOrder(), OffsetSize: w.OffsetSize(), LengthSize: w.LengthSize()}
	}
	m := binary.NewWriter(discard{}, cfg)
	if err := serialize(m); err != nil {
		return 0
	}
	return int(m.Pos())
}

package binary

import (
	"encoding/binary"
	"io"
)

// Writer is the write-side counterpart of Reader.
type Writer struct {
	w   io.WriterAt
	cfg Config
	pos int64
}

func NewWriter(w io.WriterAt, cfg Config) *Writer {
	return &Writer{w: w, cfg: cfg}
}

// At returns a writer over the same target positioned at offset.
func (w *Writer) At(offset int64) *Writer {
	return &Writer{w: w.w, cfg: w.cfg, pos: offset}
}

func (w *Writer) Pos() int64 { return w.pos }

func (w *Writer) Skip(n int64) { w.pos += n }

// Align moves forward to the next multiple of alignment without writing.
func (w *Writer) Align(alignment int64) {
	if alignment > 1 && w.pos%alignment != 0 {
		w.pos += alignment - w.pos%alignment
	}
}

func (w *Writer) WriteBytes(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	n, err := w.w.WriteAt(data, w.pos)
	w.pos += int64(n)
	return err
}

// WriteZeros writes n zero bytes.
func (w *Writer) WriteZeros(n int) error {
	if n <= 0 {
		return nil
	}
	return w.WriteBytes(make([]byte, n))
}

// WriteUintN writes v as an n-byte unsigned integer.
func (w *Writer) WriteUintN(v uint64, n int) error {
	buf := make([]byte, n)
	order := w.cfg.ByteOrder
	switch n {
	case 1:
		buf[0] = uint8(v)
	case 2:
		order.PutUint16(buf, uint16(v))
	case 4:
		order.PutUint32(buf, uint32(v))
	case 8:
		order.PutUint64(buf, v)
	default:
		for i := range buf {
			buf[i] = byte(v >> (8 * i))
		}
	}
	return w.WriteBytes(buf)
}

func (w *Writer) WriteUint8(v uint8) error { return w.WriteUintN(uint64(v), 1) }

func (w *Writer) WriteUint16(v uint16) error { return w.WriteUintN(uint64(v), 2) }

func (w *Writer) WriteUint32(v uint32) error { return w.WriteUintN(uint64(v), 4) }

func (w *Writer) WriteUint64(v uint64) error { return w.WriteUintN(v, 8) }

func (w *Writer) WriteOffset(v uint64) error { return w.WriteUintN(v, w.cfg.OffsetSize) }

func (w *Writer) WriteLength(v uint64) error { return w.WriteUintN(v, w.cfg.LengthSize) }

// UndefinedOffset is the all-ones "no address" value at this offset width.
func (w *Writer) UndefinedOffset() uint64 { return undefined(w.cfg.OffsetSize) }

// WriteUndefinedLength writes an all-ones length field.
func (w *Writer) WriteUndefinedLength() error {
	return w.WriteLength(undefined(w.cfg.LengthSize))
}

func (w *Writer) OffsetSize() int { return w.cfg.OffsetSize }

func (w *Writer) LengthSize() int { return w.cfg.LengthSize }

func (w *Writer) ByteOrder() binary.ByteOrder { return w.cfg.ByteOrder }

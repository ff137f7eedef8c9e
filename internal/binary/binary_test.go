package binary

import (
	"bytes"
	"encoding/binary"
	"testing"
)

type memWriterAt struct{ buf []byte }

func (m *memWriterAt) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	return copy(m.buf[off:], p), nil
}

func TestLookup3(t *testing.T) {
	if got := Lookup3Checksum(nil); got != 0xdeadbeef {
		t.Errorf("empty input: got %#x", got)
	}
	if got := Lookup3Checksum([]byte("Four score and seven years ago")); got != 0x17770551 {
		t.Errorf("got %#x, want 0x17770551", got)
	}
	if got := Lookup3Checksum([]byte("abc")); got == Lookup3Checksum([]byte("abd")) {
		t.Errorf("tail bytes ignored: %#x", got)
	}
}

func TestFletcher32(t *testing.T) {
	// words 0x0102 and 0x0304
	if got := Fletcher32([]byte{1, 2, 3, 4}); got != 0x05080406 {
		t.Errorf("got %#x, want 0x05080406", got)
	}
	for _, data := range [][]byte{{1, 2, 3, 4}, {1, 2, 3, 4, 5}, bytes.Repeat([]byte{0xff}, 1000)} {
		sum := Fletcher32(data)
		mod := append([]byte(nil), data...)
		mod[0] ^= 0x10
		if Fletcher32(mod) == sum {
			t.Errorf("%d bytes: corrupted data verified", len(data))
		}
	}
}

func TestReadWriteSizes(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		for _, size := range []int{2, 4, 8} {
			cfg := Config{ByteOrder: order, OffsetSize: size, LengthSize: size}
			m := &memWriterAt{}
			w := NewWriter(m, cfg)
			if err := w.WriteUint8(7); err != nil {
				t.Fatalf("WriteUint8 failed: %v", err)
			}
			if err := w.WriteOffset(0x1234); err != nil {
				t.Fatalf("WriteOffset failed: %v", err)
			}
			if err := w.WriteUndefinedLength(); err != nil {
				t.Fatalf("WriteUndefinedLength failed: %v", err)
			}
			if err := w.WriteUint32(0xcafef00d); err != nil {
				t.Fatalf("WriteUint32 failed: %v", err)
			}
			if want := int64(1 + 2*size + 4); w.Pos() != want {
				t.Errorf("pos: got %d, want %d", w.Pos(), want)
			}

			r := NewReader(bytes.NewReader(m.buf), cfg)
			if v, err := r.ReadUint8(); err != nil || v != 7 {
				t.Errorf("ReadUint8: %d, %v", v, err)
			}
			if v, err := r.ReadOffset(); err != nil || v != 0x1234 {
				t.Errorf("size %d: ReadOffset: %#x, %v", size, v, err)
			}
			if v, err := r.ReadLength(); err != nil || !r.IsUndefinedLength(v) {
				t.Errorf("size %d: expected undefined length, got %#x, %v", size, v, err)
			}
			if v, err := r.ReadUint32(); err != nil || v != 0xcafef00d {
				t.Errorf("ReadUint32: %#x, %v", v, err)
			}
			if _, err := r.ReadBytes(1); err == nil {
				t.Error("expected an error reading past the end")
			}
		}
	}
}

func TestReaderAtAndAlign(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}), DefaultConfig())
	sub := r.At(3)
	b, err := sub.Peek(2)
	if err != nil || !bytes.Equal(b, []byte{3, 4}) {
		t.Fatalf("Peek: %v, %v", b, err)
	}
	if sub.Pos() != 3 {
		t.Errorf("Peek moved the position to %d", sub.Pos())
	}
	sub.Align(8)
	if v, _ := sub.ReadUint8(); v != 8 {
		t.Errorf("after Align(8): got %d", v)
	}
	if r.Pos() != 0 {
		t.Errorf("At changed the parent position to %d", r.Pos())
	}
	if v, err := r.WithSizes(3, 8).ReadOffset(); err != nil || v != 0x020100 {
		t.Errorf("3-byte offset: %#x, %v", v, err)
	}
}

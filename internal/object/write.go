package object

import (
	"github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// MinGroupChunkSize is the smallest chunk written for group headers. The
// reference library reserves this much so links can be added in place.
const MinGroupChunkSize = 120

// EncodeHeader returns a version 2 object header holding messages. The
// chunk is padded with a NIL message up to minChunk bytes. The chunk size
// field counts messages and padding but not the trailing checksum.
func EncodeHeader(w *binary.Writer, messages []message.Message, minChunk int) ([]byte, error) {
	var body int
	for _, msg := range messages {
		if s, ok := msg.(message.Serializable); ok {
			n := s.SerializedSize(w)
			body += messagePrefixSize(n) + n
		}
	}
	chunk := max(body, minChunk)
	width := chunkSizeFieldBytes(int64(chunk))

	buf := &buffer{}
	bw := binary.NewWriter(buf, binary.Config{ByteOrder: w.ByteOrder(), OffsetSize: w.OffsetSize(), LengthSize: w.LengthSize()})
	_ = bw.WriteBytes(SignatureV2)
	_ = bw.WriteUint8(2)
	_ = bw.WriteUint8(uint8(width - 1))
	_ = bw.WriteUintN(uint64(chunk), width)

	for _, msg := range messages {
		s, ok := msg.(message.Serializable)
		if !ok {
			continue
		}
		n := s.SerializedSize(w)
		if n > 0xffff {
			_ = bw.WriteUint8(0xff)
			_ = bw.WriteUint8(uint8(msg.Type()))
			_ = bw.WriteUint32(uint32(n))
		} else {
			_ = bw.WriteUint8(uint8(msg.Type()))
			_ = bw.WriteUint16(uint16(n))
		}
		_ = bw.WriteUint8(0)
		if err := s.Serialize(bw); err != nil {
			return nil, err
		}
	}

	if pad := chunk - body; pad > 0 {
		// NIL message: type, size, flags, then pad-4 zero bytes
		_ = bw.WriteUint8(0)
		_ = bw.WriteUint16(uint16(max(pad-4, 0)))
		_ = bw.WriteUint8(0)
		_ = bw.WriteZeros(pad - 4)
	}
	_ = bw.WriteUint32(binary.Lookup3Checksum(buf.b))
	return buf.b, nil
}

// messagePrefixSize is 4 bytes (type, size, flags) or 7 when the size
// needs the extended 0xff form.
func messagePrefixSize(size int) int {
	if size > 0xffff {
		return 7
	}
	return 4
}

func chunkSizeFieldBytes(size int64) int {
	switch {
	case size <= 0xff:
		return 1
	case size <= 0xffff:
		return 2
	case size <= 0xffffffff:
		return 4
	}
	return 8
}

// buffer is a growable in-memory io.WriterAt.
type buffer struct{ b []byte }

func (b *buffer) WriteAt(p []byte, off int64) (int, error) {
	if end := int(off) + len(p); end > len(b.b) {
		b.b = append(b.b, make([]byte, end-len(b.b))...)
	}
	return copy(b.b[off:], p), nil
}

// GroupMessages returns the messages of a group header: link info, group
// info, then links and attributes.
func GroupMessages(links []*message.Link, attrs []*message.Attribute) []message.Message {
	messages := []message.Message{message.NewLinkInfo(), message.NewGroupInfo()}
	for _, l := range links {
		messages = append(messages, l)
	}
	for _, a := range attrs {
		messages = append(messages, a)
	}
	return messages
}

// DatasetMessages returns the messages of a dataset header. Nil optional
// messages are dropped.
func DatasetMessages(dataspace *message.Dataspace, datatype *message.Datatype, layout *message.DataLayout, pipeline *message.FilterPipeline, fill *message.FillValue) []message.Message {
	messages := []message.Message{dataspace, datatype, layout}
	if pipeline != nil {
		messages = append(messages, pipeline)
	}
	if fill != nil {
		messages = append(messages, fill)
	}
	return messages
}

package codec

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/pkg/errors"
)

// VLenUTF8 is the numcodecs vlen-utf8 object codec: a 4-byte little-endian
// item count, then per item a 4-byte little-endian length and the UTF-8
// bytes.
type VLenUTF8 struct{}

func (VLenUTF8) ID() string { return VLenUTF8ID }

func (VLenUTF8) EncodeStrings(values []string) ([]byte, error) {
	size := 4
	for _, v := range values {
		size += 4 + len(v)
	}
	out := make([]byte, 4, size)
	binary.LittleEndian.PutUint32(out, uint32(len(values)))
	var hdr [4]byte
	for _, v := range values {
		if !utf8.ValidString(v) {
			return nil, errors.Errorf("vlen-utf8: invalid UTF-8 in %q", v)
		}
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(v)))
		out = append(out, hdr[:]...)
		out = append(out, v...)
	}
	return out, nil
}

func (VLenUTF8) DecodeStrings(src []byte) ([]string, error) {
	if len(src) < 4 {
		return nil, errors.New("vlen-utf8: input too short for item count")
	}
	n := int(binary.LittleEndian.Uint32(src))
	pos := 4
	values := make([]string, 0, n)
	for i := 0; i < n; i++ {
		if pos+4 > len(src) {
			return nil, errors.Errorf("vlen-utf8: truncated length of item %d", i)
		}
		l := int(binary.LittleEndian.Uint32(src[pos:]))
		pos += 4
		if pos+l > len(src) {
			return nil, errors.Errorf("vlen-utf8: truncated item %d", i)
		}
		values = append(values, string(src[pos:pos+l]))
		pos += l
	}
	return values, nil
}

package codec

import (
	"encoding/binary"

	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// LZ4 is the numcodecs lz4 codec: a 4-byte little-endian decoded size
// followed by one LZ4 block.
type LZ4 struct{}

func newLZ4(Config) (Codec, error) { return LZ4{}, nil }

func (LZ4) ID() string { return LZ4ID }

func (LZ4) Encode(src []byte) ([]byte, error) {
	block, err := compressBlock(src)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 4+len(block))
	binary.LittleEndian.PutUint32(out, uint32(len(src)))
	copy(out[4:], block)
	return out, nil
}

func (LZ4) Decode(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, errors.New("lz4: input too short for size header")
	}
	size := int(binary.LittleEndian.Uint32(src))
	if size > maxExpansion(len(src)-4) {
		return nil, errors.Errorf("lz4: header size %d impossible for %d input bytes", size, len(src))
	}
	out := make([]byte, size)
	if size == 0 {
		return out, nil
	}
	n, err := lz4.UncompressBlock(src[4:], out)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 decompress")
	}
	if n != size {
		return nil, errors.Errorf("lz4: decoded %d bytes, header says %d", n, size)
	}
	return out, nil
}

// LZ4H5 is the framing of the HDF5 lz4 filter (32004), exposed in
// numcodecs as imagecodecs_lz4h5: an 8-byte big-endian decoded size, a
// 4-byte big-endian block size, then per block a 4-byte big-endian stored
// size and the block. A block whose stored size equals its decoded size
// is stored raw.
type LZ4H5 struct {
	BlockSize int
}

// DefaultLZ4H5BlockSize is the block size the HDF5 filter uses when none
// is configured.
const DefaultLZ4H5BlockSize = 1 << 30

func newLZ4H5(cfg Config) (Codec, error) {
	return &LZ4H5{BlockSize: cfg.Int("blocksize", 0)}, nil
}

func (c *LZ4H5) ID() string { return LZ4H5ID }

func (c *LZ4H5) Encode(src []byte) ([]byte, error) {
	blockSize := c.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultLZ4H5BlockSize
	}
	if blockSize > len(src) {
		blockSize = len(src)
	}

	out := make([]byte, 12, 12+lz4.CompressBlockBound(len(src))+4)
	binary.BigEndian.PutUint64(out[0:], uint64(len(src)))
	binary.BigEndian.PutUint32(out[8:], uint32(blockSize))

	for off := 0; off < len(src); off += blockSize {
		end := off + blockSize
		if end > len(src) {
			end = len(src)
		}
		block := src[off:end]

		buf := make([]byte, lz4.CompressBlockBound(len(block)))
		n, err := lz4.CompressBlock(block, buf, nil)
		if err != nil {
			return nil, errors.Wrap(err, "lz4 compress")
		}
		stored := buf[:n]
		if n == 0 || n >= len(block) {
			stored = block
		}

		var hdr [4]byte
		binary.BigEndian.PutUint32(hdr[:], uint32(len(stored)))
		out = append(out, hdr[:]...)
		out = append(out, stored...)
	}
	return out, nil
}

func (c *LZ4H5) Decode(src []byte) ([]byte, error) {
	if len(src) < 12 {
		return nil, errors.New("lz4h5: input too short for header")
	}
	total := binary.BigEndian.Uint64(src[0:])
	blockSize := uint64(binary.BigEndian.Uint32(src[8:]))
	if total > 0 && blockSize == 0 {
		return nil, errors.New("lz4h5: zero block size")
	}
	if total > uint64(maxExpansion(len(src))) {
		return nil, errors.Errorf("lz4h5: header size %d impossible for %d input bytes", total, len(src))
	}

	out := make([]byte, total)
	pos := 12
	for done := uint64(0); done < total; {
		want := blockSize
		if total-done < want {
			want = total - done
		}
		if pos+4 > len(src) {
			return nil, errors.New("lz4h5: truncated block header")
		}
		stored := int(binary.BigEndian.Uint32(src[pos:]))
		pos += 4
		if pos+stored > len(src) {
			return nil, errors.New("lz4h5: truncated block")
		}
		dst := out[done : done+want]
		if uint64(stored) == want {
			copy(dst, src[pos:pos+stored])
		} else {
			n, err := lz4.UncompressBlock(src[pos:pos+stored], dst)
			if err != nil {
				return nil, errors.Wrap(err, "lz4h5 decompress")
			}
			if uint64(n) != want {
				return nil, errors.Errorf("lz4h5: block decoded to %d bytes, expected %d", n, want)
			}
		}
		pos += stored
		done += want
	}
	return out, nil
}

// compressBlock returns an LZ4 block for src. Incompressible input is
// emitted as a single literal run, which every LZ4 decoder accepts.
func compressBlock(src []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(src)))
	n, err := lz4.CompressBlock(src, buf, nil)
	if err != nil {
		return nil, errors.Wrap(err, "lz4 compress")
	}
	if n > 0 {
		return buf[:n], nil
	}
	return literalBlock(src), nil
}

func literalBlock(src []byte) []byte {
	out := make([]byte, 0, len(src)+len(src)/255+2)
	l := len(src)
	if l < 15 {
		out = append(out, byte(l<<4))
	} else {
		out = append(out, 0xF0)
		rest := l - 15
		for rest >= 255 {
			out = append(out, 255)
			rest -= 255
		}
		out = append(out, byte(rest))
	}
	return append(out, src...)
}

// maxExpansion bounds the decoded size of n bytes of LZ4 input; a match
// sequence cannot expand by more than 255 times.
func maxExpansion(n int) int {
	return 255*n + 16
}

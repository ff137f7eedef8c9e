package dtype

import (
	"fmt"

	"github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/heap"
	"github.com/robert-malhotra/h5zarr/internal/message"
)

// Strings decodes n string elements. A fixed-size string ends at its first
// NUL, and space padding is trimmed. Variable-length strings are looked up
// in the global heap through reader; a null heap reference decodes as "".
func Strings(dt *message.Datatype, data []byte, n uint64, reader *binary.Reader) ([]string, error) {
	if dt == nil {
		return nil, fmt.Errorf("nil datatype")
	}
	switch {
	case dt.Class == message.ClassString:
		return fixedStrings(dt, data, n)
	case dt.Class == message.ClassVarLen && dt.IsVarLenString:
		return varLenStrings(data, n, reader)
	}
	return nil, fmt.Errorf("datatype class %d is not a string", dt.Class)
}

func fixedStrings(dt *message.Datatype, data []byte, n uint64) ([]string, error) {
	size := int(dt.Size)
	if uint64(len(data)) < n*uint64(size) {
		return nil, fmt.Errorf("%d bytes for %d strings of %d bytes", len(data), n, size)
	}
	out := make([]string, n)
	for i := range out {
		s := data[i*size : (i+1)*size]
		end := len(s)
		for j, c := range s {
			if c == 0 {
				end = j
				break
			}
		}
		if dt.StringPadding == message.PadSpacePad {
			for end > 0 && s[end-1] == ' ' {
				end--
			}
		}
		out[i] = string(s[:end])
	}
	return out, nil
}

// varLenStrings resolves references of the form: 4-byte length, collection
// address, 4-byte object index.
func varLenStrings(data []byte, n uint64, reader *binary.Reader) ([]string, error) {
	offsetSize := 8
	if reader != nil {
		offsetSize = reader.OffsetSize()
	}
	refSize := 4 + offsetSize + 4
	if uint64(len(data)) < n*uint64(refSize) {
		return nil, fmt.Errorf("%d bytes for %d string references", len(data), n)
	}

	heaps := make(map[uint64]*heap.GlobalHeap)
	out := make([]string, n)
	for i := range out {
		ref := data[i*refSize : (i+1)*refSize]
		id, err := heap.ParseGlobalHeapID(ref[4:], offsetSize)
		if err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
		if id.CollectionAddress == 0 {
			continue
		}
		if reader == nil {
			return nil, fmt.Errorf("string %d: global heap at 0x%x needs a file reader", i, id.CollectionAddress)
		}
		gh, ok := heaps[id.CollectionAddress]
		if !ok {
			if gh, err = heap.ReadGlobalHeap(reader, id.CollectionAddress); err != nil {
				return nil, fmt.Errorf("reading global heap at 0x%x: %w", id.CollectionAddress, err)
			}
			heaps[id.CollectionAddress] = gh
		}
		if out[i], err = gh.GetString(uint16(id.ObjectIndex)); err != nil {
			return nil, fmt.Errorf("string %d: %w", i, err)
		}
	}
	return out, nil
}

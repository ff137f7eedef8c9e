package hdf5

import (
	"encoding/binary"
	"os"

	"github.com/robert-malhotra/h5zarr/internal/alloc"
	binpkg "github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/internal/object"
	"github.com/robert-malhotra/h5zarr/internal/superblock"
)

// Create creates a new HDF5 file at path with a version 2 superblock and
// an empty root group. Objects are written through the returned File and
// the superblock is finalized on Close.
func Create(path string, opts ...FileOption) (*File, error) {
	options := defaultFileOptions()
	for _, opt := range opts {
		opt(options)
	}

	osFile, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	writer := binpkg.NewWriter(osFile, binpkg.Config{
		ByteOrder:  binary.LittleEndian,
		OffsetSize: options.offsetSize,
		LengthSize: options.lengthSize,
	})

	sb := superblock.NewSuperblock()
	sb.OffsetSize = uint8(options.offsetSize)
	sb.LengthSize = uint8(options.lengthSize)
	sb.RootGroupAddress = uint64(sb.Size())

	root, err := object.EncodeHeader(writer, object.GroupMessages(nil, nil), object.MinGroupChunkSize)
	if err == nil {
		sb.EOFAddress = sb.RootGroupAddress + uint64(len(root))
		if _, err = sb.Write(writer); err == nil {
			err = writer.At(int64(sb.RootGroupAddress)).WriteBytes(root)
		}
	}
	if err != nil {
		osFile.Close()
		os.Remove(path)
		return nil, err
	}

	f := &File{
		path:       path,
		file:       osFile,
		superblock: sb,
		writable:   true,
		writer:     writer,
		allocator:  alloc.New(sb.EOFAddress),
	}
	f.root = &Group{file: f, path: "/", addr: sb.RootGroupAddress}
	return f, nil
}

// writeHeader encodes an object header into newly allocated space and
// returns its address.
func (f *File) writeHeader(messages []message.Message, minChunk int) (uint64, error) {
	buf, err := object.EncodeHeader(f.writer, messages, minChunk)
	if err != nil {
		return 0, err
	}
	addr := f.allocator.Alloc(uint64(len(buf)))
	return addr, f.writer.At(int64(addr)).WriteBytes(buf)
}

// flush records the final end of file in the superblock and syncs the
// file to disk.
func (f *File) flush() error {
	f.superblock.EOFAddress = f.allocator.EOFAddr()
	if _, err := f.superblock.Write(f.writer.At(0)); err != nil {
		return err
	}
	return f.file.Sync()
}

// allocate reserves size bytes and returns their address.
func (f *File) allocate(size int64) uint64 {
	return f.allocator.Alloc(uint64(size))
}

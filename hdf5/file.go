package hdf5

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/robert-malhotra/h5zarr/internal/alloc"
	"github.com/robert-malhotra/h5zarr/internal/binary"
	"github.com/robert-malhotra/h5zarr/internal/message"
	"github.com/robert-malhotra/h5zarr/internal/object"
	"github.com/robert-malhotra/h5zarr/internal/superblock"
)

// File represents an open HDF5 file.
type File struct {
	path          string
	file          *os.File
	reader        *binary.Reader
	superblock    *superblock.Superblock
	root          *Group
	closed        bool
	externalFiles map[string]*File // Cache of opened external files

	// Write support fields
	writable  bool
	writer    *binary.Writer
	allocator *alloc.Allocator // Space allocator for writing
}

// Open opens an HDF5 file for reading.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}

	hdf, err := open(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	hdf.file = f
	return hdf, nil
}

// OpenReader opens an HDF5 file from any random access source, such as a
// ranged object store reader. name is used for error messages and to
// resolve external links; Close does not close r.
func OpenReader(r io.ReaderAt, name string) (*File, error) {
	return open(r, name)
}

func open(r io.ReaderAt, path string) (*File, error) {
	// Parse superblock
	sb, err := superblock.Read(r)
	if errors.Is(err, superblock.ErrNotHDF5) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotHDF5)
	}
	if err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}

	// Create reader with correct configuration
	reader := binary.NewReader(r, sb.ReaderConfig())

	hdf := &File{
		path:       path,
		reader:     reader,
		superblock: sb,
	}

	// Load root group
	root, err := hdf.openGroupAt(sb.RootGroupAddress, "/")
	if err != nil {
		return nil, fmt.Errorf("opening root group: %w", err)
	}
	hdf.root = root

	return hdf, nil
}

// Close closes the HDF5 file and all opened external files.
func (f *File) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	// Handle writable file finalization
	if f.writable {
		if err := f.flush(); err != nil {
			f.file.Close()
			return err
		}
	}

	// Close all external files
	for _, extFile := range f.externalFiles {
		extFile.Close()
	}
	f.externalFiles = nil

	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

// Size returns the end-of-file address recorded in the superblock, the
// logical size of the file in bytes.
func (f *File) Size() uint64 {
	return f.superblock.EOFAddress
}

// Root returns the root group of the file.
func (f *File) Root() *Group {
	return f.root
}

// Path returns the file path.
func (f *File) Path() string {
	return f.path
}

// Version returns the superblock version.
func (f *File) Version() int {
	return int(f.superblock.Version)
}

// OpenGroup opens a group by path.
func (f *File) OpenGroup(path string) (*Group, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenGroup(path)
}

// OpenDataset opens a dataset by path.
func (f *File) OpenDataset(path string) (*Dataset, error) {
	if f.closed {
		return nil, ErrClosed
	}
	return f.root.OpenDataset(path)
}

// openGroupAt opens a group at the given address.
func (f *File) openGroupAt(address uint64, path string) (*Group, error) {
	header, err := object.Read(f.reader, address)
	if err != nil {
		return nil, fmt.Errorf("reading object header: %w", err)
	}

	return &Group{
		file:   f,
		path:   path,
		header: header,
	}, nil
}

// openDatasetAt opens a dataset at the given address.
func (f *File) openDatasetAt(address uint64, path string) (*Dataset, error) {
	header, err := object.Read(f.reader, address)
	if err != nil {
		return nil, fmt.Errorf("reading object header: %w", err)
	}

	return newDataset(f, path, header)
}

// splitPath returns the non-empty components of p.
func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// follow resolves a link found in f. Soft link targets are absolute paths
// in f; external targets are absolute paths in a file next to f.
func (f *File) follow(l LinkInfo, seen map[string]bool) (target, error) {
	if l.Kind == LinkHard {
		header, err := object.Read(f.reader, l.Address)
		if err != nil {
			return target{}, err
		}
		isDataset := header.GetMessage(message.TypeDataspace) != nil
		return target{file: f, addr: l.Address, isDataset: isDataset}, nil
	}

	key := l.Target
	if l.Kind == LinkExternal {
		key = l.File + ":" + l.Target
	}
	if len(seen) >= MaxLinkDepth {
		return target{}, ErrLinkDepth
	}
	if seen[key] {
		return target{}, fmt.Errorf("circular %s link: %s", l.Kind, key)
	}
	seen[key] = true

	if l.Kind == LinkSoft {
		return f.resolve(l.Target, seen)
	}
	ext, err := f.openExternalFile(l.File)
	if err != nil {
		return target{}, err
	}
	t, err := ext.resolve(l.Target, seen)
	if err != nil {
		return target{}, fmt.Errorf("resolving %q in external file %q: %w", l.Target, l.File, err)
	}
	return t, nil
}

// resolve walks an absolute path from the root group of f.
func (f *File) resolve(absPath string, seen map[string]bool) (target, error) {
	parts := splitPath(absPath)
	t := target{file: f, addr: f.superblock.RootGroupAddress}
	current := f.root
	for i, name := range parts {
		next, err := current.lookup(name, seen)
		if err != nil {
			return target{}, fmt.Errorf("resolving %q in path %s: %w", name, absPath, err)
		}
		t = next
		if i == len(parts)-1 {
			break
		}
		if t.isDataset {
			return target{}, fmt.Errorf("%q is not a group in path %s", name, absPath)
		}
		if current, err = t.file.openGroupAt(t.addr, path.Join(current.path, name)); err != nil {
			return target{}, err
		}
	}
	return t, nil
}

// openExternalFile opens filename relative to the directory of f. Opened
// files are cached and closed with f.
func (f *File) openExternalFile(filename string) (*File, error) {
	if ext, ok := f.externalFiles[filename]; ok {
		return ext, nil
	}
	extPath := filepath.Join(filepath.Dir(f.path), filename)
	ext, err := Open(extPath)
	if err != nil {
		return nil, fmt.Errorf("opening external file %q: %w", extPath, err)
	}
	if f.externalFiles == nil {
		f.externalFiles = make(map[string]*File)
	}
	f.externalFiles[filename] = ext
	return ext, nil
}

// Package hdf5 reads the object tree, datasets and storage layout of HDF5
// files, and writes the subset of the format needed to build test files.
package hdf5

import "errors"

var (
	ErrNotHDF5     = errors.New("not an HDF5 file")
	ErrNotFound    = errors.New("object not found")
	ErrNotDataset  = errors.New("object is not a dataset")
	ErrNotGroup    = errors.New("object is not a group")
	ErrUnsupported = errors.New("unsupported feature")
	ErrClosed      = errors.New("file is closed")
	ErrLinkDepth   = errors.New("maximum link depth exceeded")
	ErrReadOnly    = errors.New("file is not writable")
)

// MaxLinkDepth bounds the soft and external links followed while
// resolving one path.
const MaxLinkDepth = 100

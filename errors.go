package h5zarr

import (
	"fmt"

	"github.com/pkg/errors"
)

// StructureError reports an HDF5 object that cannot be described in Zarr:
// a malformed or truncated structure, a chunk outside the file, or an
// unsupported datatype or layout.
type StructureError struct {
	Path string
	Err  error

	// Unsupported is set when the object is well formed but has no Zarr
	// equivalent. Such objects may be skipped instead of failing the walk.
	Unsupported bool
}

func (e *StructureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *StructureError) Unwrap() error { return e.Err }
func (e *StructureError) Cause() error  { return e.Err }

func structureErr(path string, err error) error {
	return &StructureError{Path: path, Err: err}
}

func unsupportedErr(path string, format string, args ...interface{}) error {
	return &StructureError{Path: path, Err: errors.Errorf(format, args...), Unsupported: true}
}

// UnsupportedCodecError reports a filter with no numcodecs equivalent.
type UnsupportedCodecError struct {
	Path     string
	FilterID uint16
	Name     string
}

func (e *UnsupportedCodecError) Error() string {
	return fmt.Sprintf("%s: filter %s (id %d) has no zarr codec", e.Path, e.Name, e.FilterID)
}

// StoreConflictError reports a key that already exists in a store opened
// in a create-only mode.
type StoreConflictError struct {
	Key string
}

func (e *StoreConflictError) Error() string {
	return fmt.Sprintf("store key %q already exists", e.Key)
}

// RangeUnavailableError reports a chunk whose bytes could not be fetched:
// the fetch failed, timed out or was cancelled.
type RangeUnavailableError struct {
	Path  string
	Chunk string
	Err   error
}

func (e *RangeUnavailableError) Error() string {
	return fmt.Sprintf("%s: chunk %s unavailable: %v", e.Path, e.Chunk, e.Err)
}

func (e *RangeUnavailableError) Unwrap() error { return e.Err }
func (e *RangeUnavailableError) Cause() error  { return e.Err }

// CodecError reports a chunk that was fetched but failed to decode.
type CodecError struct {
	Path  string
	Chunk string
	Err   error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("%s: chunk %s: %v", e.Path, e.Chunk, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }
func (e *CodecError) Cause() error  { return e.Err }

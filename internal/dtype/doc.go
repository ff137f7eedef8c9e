// Package dtype encodes Go values into HDF5 element bytes for the writer
// and decodes the string elements the reader hands back as Go strings.
// Numeric elements are left as raw bytes for the caller to interpret.
package dtype

// Package filter runs the HDF5 filter pipeline in both directions. Filters
// are looked up by their registered id; a chunk's filter mask disables
// individual stages.
package filter

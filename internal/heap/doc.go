// Package heap reads the local heaps that hold version 1 group member
// names and the global heap collections that hold variable-length data.
package heap

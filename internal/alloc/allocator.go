// Package alloc hands out file space to the HDF5 writer. Blocks are only
// ever appended at the end of the file.
package alloc

import "sync"

// Allocator tracks the end of a file being written.
type Allocator struct {
	mu  sync.Mutex
	eof uint64
}

// New returns an allocator whose first block starts at eof.
func New(eof uint64) *Allocator {
	return &Allocator{eof: eof}
}

// Alloc reserves size bytes and returns their address. A zero size
// returns the current end without reserving anything.
func (a *Allocator) Alloc(size uint64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	addr := a.eof
	a.eof += size
	return addr
}

// EOFAddr returns the address one past the last reserved byte.
func (a *Allocator) EOFAddr() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.eof
}

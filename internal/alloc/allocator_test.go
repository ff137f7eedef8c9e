package alloc

import (
	"sync"
	"testing"
)

func TestAllocAppends(t *testing.T) {
	a := New(48)
	if got := a.Alloc(16); got != 48 {
		t.Errorf("first block at %d, want 48", got)
	}
	if got := a.Alloc(0); got != 64 {
		t.Errorf("empty block at %d, want 64", got)
	}
	if got := a.Alloc(8); got != 64 {
		t.Errorf("second block at %d, want 64", got)
	}
	if got := a.EOFAddr(); got != 72 {
		t.Errorf("eof %d, want 72", got)
	}
}

func TestAllocConcurrent(t *testing.T) {
	a := New(0)
	seen := make(chan uint64, 100)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- a.Alloc(4)
		}()
	}
	wg.Wait()
	close(seen)

	addrs := map[uint64]bool{}
	for addr := range seen {
		if addr%4 != 0 || addrs[addr] {
			t.Fatalf("overlapping block at %d", addr)
		}
		addrs[addr] = true
	}
	if a.EOFAddr() != 400 {
		t.Errorf("eof %d, want 400", a.EOFAddr())
	}
}

package bitalloc

import "sync/atomic"

// Handle owns one allocated bit until Release is called.
type Handle struct {
	alloc    *Allocator
	index    uint64
	released atomic.Bool
}

// Acquire allocates a bit and wraps it in a Handle. It returns ErrFull when
// no bit is free.
func (a *Allocator) Acquire() (*Handle, error) {
	idx, ok := a.AllocBit()
	if !ok {
		return nil, ErrFull
	}
	return &Handle{alloc: a, index: idx}, nil
}

// Index returns the bit owned by the handle.
func (h *Handle) Index() uint64 {
	return h.index
}

// Release returns the bit to the allocator. Only the first call frees it,
// later calls return ErrReleased.
func (h *Handle) Release() error {
	if h.released.Swap(true) {
		return ErrReleased
	}
	return h.alloc.ClearBit(h.index)
}

package bitalloc

import (
	"errors"
	"fmt"
)

var (
	// ErrOutOfRange indicates the bit index is beyond the allocator's length
	ErrOutOfRange = errors.New("bit index out of range")
	// ErrNotAllocated indicates an attempt to release a bit that wasn't allocated
	ErrNotAllocated = errors.New("bit not allocated")
	// ErrFull indicates no free bits remain
	ErrFull = errors.New("bitmap is full")
	// ErrReleased indicates a handle was released more than once
	ErrReleased = errors.New("handle already released")
	// ErrInvalidSnapshot indicates a snapshot that cannot be restored
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// IndexError reports an index outside [0, Len).
//
// It matches ErrOutOfRange with errors.Is.
type IndexError struct {
	Index uint64
	Len   uint64
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("bit index %d out of range [0, %d)", e.Index, e.Len)
}

func (e *IndexError) Unwrap() error { return ErrOutOfRange }

// Package bitalloc provides a lock-free bit allocator.
// A fixed-size bitmap is split into words (32, 64 or 128 bits) and every bit is a slot
// that concurrent callers claim with AllocBit and give back with ClearBit. Words are only
// changed through compare-and-swap, and a shared search hint lets each scan start past the
// words already known to be full. The allocator never blocks: a lost race is retried on the
// spot and a full bitmap is reported, not waited on.
//
// Example:
//
//	import "github.com/yago-123/bitalloc"
//
//	// Create an allocator for 1000 slots (rounded up to 1024)
//	alloc := bitalloc.New(1000)
//	defer alloc.Close()
//
//	// Claim a slot
//	idx, ok := alloc.AllocBit()
//	if !ok {
//	    log.Fatal("no free slots")
//	}
//
//	// Take a snapshot of the allocator state
//	snap := alloc.Snapshot()
//
//	// Release the slot
//	if err := alloc.ClearBit(idx); err != nil {
//	    log.Fatal(err)
//	}
//
// // Restore the allocator from snapshot
// restored, err := bitalloc.NewFromSnapshot(snap)
package bitalloc

package bitalloc

import "sync/atomic"

// Stats are cumulative counters for an Allocator.
type Stats struct {
	Allocs        uint64 // AllocBit calls
	Exhausted     uint64 // AllocBit calls that found no free bit
	WordsExamined uint64 // words visited by all AllocBit scans
	Clears        uint64 // successful ClearBit calls
	Retries       uint64 // failed compare-and-swaps on bitmap words
	HintMisses    uint64 // search hint advances lost to a concurrent update
}

// ScanRatio returns words examined per allocation attempt, or 0 before the
// first attempt.
func (s Stats) ScanRatio() float64 {
	if s.Allocs == 0 {
		return 0
	}
	return float64(s.WordsExamined) / float64(s.Allocs)
}

type counters struct {
	allocs     atomic.Uint64
	exhausted  atomic.Uint64
	examined   atomic.Uint64
	clears     atomic.Uint64
	retries    atomic.Uint64
	hintMisses atomic.Uint64
}

// Stats returns the current counters. Each counter is read atomically, the
// set as a whole is not.
func (a *Allocator) Stats() Stats {
	return Stats{
		Allocs:        a.stats.allocs.Load(),
		Exhausted:     a.stats.exhausted.Load(),
		WordsExamined: a.stats.examined.Load(),
		Clears:        a.stats.clears.Load(),
		Retries:       a.stats.retries.Load(),
		HintMisses:    a.stats.hintMisses.Load(),
	}
}

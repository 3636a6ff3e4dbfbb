package bitalloc

import "sync/atomic"

// Op names the operation that hit a compare-and-swap race.
type Op string

const (
	OpAlloc Op = "alloc"
	OpClear Op = "clear"
)

// MetricsCollector receives per-operation events from an Allocator.
// Implementations must be safe for concurrent use.
type MetricsCollector interface {
	// RecordAlloc is called after each AllocBit. examined is the number of
	// words visited, ok is false when no free bit was found.
	RecordAlloc(examined int, ok bool)

	// RecordClear is called after each ClearBit with its result.
	RecordClear(err error)

	// RecordRetry is called for every failed compare-and-swap on a word.
	RecordRetry(op Op)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordAlloc(int, bool) {}
func (NoopMetricsCollector) RecordClear(error)     {}
func (NoopMetricsCollector) RecordRetry(Op)        {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	AllocCount    atomic.Int64
	AllocMisses   atomic.Int64
	WordsExamined atomic.Int64
	ClearCount    atomic.Int64
	ClearErrors   atomic.Int64
	AllocRetries  atomic.Int64
	ClearRetries  atomic.Int64
}

// RecordAlloc implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAlloc(examined int, ok bool) {
	b.AllocCount.Add(1)
	b.WordsExamined.Add(int64(examined))
	if !ok {
		b.AllocMisses.Add(1)
	}
}

// RecordClear implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClear(err error) {
	b.ClearCount.Add(1)
	if err != nil {
		b.ClearErrors.Add(1)
	}
}

// RecordRetry implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRetry(op Op) {
	switch op {
	case OpAlloc:
		b.AllocRetries.Add(1)
	case OpClear:
		b.ClearRetries.Add(1)
	}
}

// BasicMetricsStats is a point-in-time copy of BasicMetricsCollector.
type BasicMetricsStats struct {
	AllocCount    int64
	AllocMisses   int64
	WordsExamined int64
	ClearCount    int64
	ClearErrors   int64
	AllocRetries  int64
	ClearRetries  int64
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		AllocCount:    b.AllocCount.Load(),
		AllocMisses:   b.AllocMisses.Load(),
		WordsExamined: b.WordsExamined.Load(),
		ClearCount:    b.ClearCount.Load(),
		ClearErrors:   b.ClearErrors.Load(),
		AllocRetries:  b.AllocRetries.Load(),
		ClearRetries:  b.ClearRetries.Load(),
	}
}

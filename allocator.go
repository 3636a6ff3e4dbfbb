package bitalloc

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	// hintWordBits is the share of the packed search hint holding the word
	// index. The remaining high bits hold the release epoch.
	hintWordBits = 40
	hintWordMask = 1<<hintWordBits - 1

	maxWords = 1 << hintWordBits
)

// Allocator hands out bits of a fixed-size bitmap to concurrent callers
// without locks. Every word is updated through compare-and-swap and a shared
// search hint keeps scans from revisiting full words.
type Allocator struct {
	words    wordStore
	width    WordWidth
	full     uint128
	capacity uint64 // requested bits, before rounding up to a whole word
	length   uint64 // addressable bits

	// hint packs epoch<<hintWordBits | word. The word is never above the
	// index of any word holding a free bit. Every release bumps the epoch,
	// so an advance computed from a stale scan fails its compare-and-swap.
	// The epoch is 24 bits and wraps after 2^24 releases; a scan that spans
	// exactly a multiple of that many releases could still advance stale.
	hint atomic.Uint64

	stats counters

	logger     *Logger
	metrics    MetricsCollector
	yieldAfter int
	retryLog   rate.Sometimes
	logging    atomic.Bool // set while one caller is inside retryLog
	closed     atomic.Bool
}

// New creates an Allocator with room for at least capacity bits, all free.
// The capacity is rounded up to a whole number of words.
func New(capacity uint64, opts ...Option) *Allocator {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	width := uint64(o.width)
	n := wordCount(capacity, o.width)
	if n > maxWords {
		panic(fmt.Sprintf("bitalloc: capacity %d needs %d words, limit is %d", capacity, n, uint64(maxWords)))
	}

	return &Allocator{
		words:      newWordStore(o.width, int(n)),
		width:      o.width,
		full:       fullWord(uint(o.width)),
		capacity:   capacity,
		length:     n * width,
		logger:     o.logger,
		metrics:    o.metricsCollector,
		yieldAfter: o.yieldAfter,
		retryLog:   rate.Sometimes{First: 10, Interval: time.Second},
	}
}

// Len returns the number of addressable bits. It may exceed the requested
// capacity by up to one word.
func (a *Allocator) Len() uint64 {
	return a.length
}

// Capacity returns the bit count requested at construction.
func (a *Allocator) Capacity() uint64 {
	return a.capacity
}

// WordWidth returns the bitmap word width.
func (a *Allocator) WordWidth() WordWidth {
	return a.width
}

// GetBit reports whether the bit at index is allocated. Indices at or past
// Len report false. The read may be stale relative to concurrent writers.
func (a *Allocator) GetBit(index uint64) bool {
	if index >= a.length {
		return false
	}
	w, bit := a.locate(index)
	return a.words.load(w).bit(bit)
}

// Count returns the number of allocated bits, summed word by word.
func (a *Allocator) Count() uint64 {
	var n uint64
	for w := range a.words.count() {
		n += uint64(a.words.load(w).onesCount())
	}
	return n
}

// AllocBit claims the lowest free bit at or after the search hint and returns
// its index. It returns false when the bitmap is full.
func (a *Allocator) AllocBit() (uint64, bool) {
	a.stats.allocs.Add(1)

	h := a.hint.Load()
	start := hintWord(h)
	examined := 0

	for w := start; w < a.words.count(); w++ {
		examined++
		for attempt := 1; ; attempt++ {
			v := a.words.load(w)
			if v == a.full {
				break
			}

			// Lowest free bit in the word wins
			bit := v.trailingOnes()
			if a.words.compareAndSwap(w, v, v.setBit(bit)) {
				a.stats.examined.Add(uint64(examined))
				a.advanceHint(h, w)
				a.metrics.RecordAlloc(examined, true)
				return uint64(w)*uint64(a.width) + uint64(bit), true
			}

			// Another caller changed this word, look at it again
			a.retried(OpAlloc, w, attempt)
		}
	}

	a.stats.examined.Add(uint64(examined))
	a.stats.exhausted.Add(1)
	a.metrics.RecordAlloc(examined, false)
	return 0, false
}

// ClearBit releases an allocated bit so it can be handed out again.
// It returns an *IndexError for indices at or past Len and ErrNotAllocated
// when the bit is already free; neither case changes any state.
func (a *Allocator) ClearBit(index uint64) error {
	if index >= a.length {
		err := &IndexError{Index: index, Len: a.length}
		a.metrics.RecordClear(err)
		return err
	}

	w, bit := a.locate(index)
	for attempt := 1; ; attempt++ {
		v := a.words.load(w)
		if !v.bit(bit) {
			err := fmt.Errorf("%w: bit %d", ErrNotAllocated, index)
			a.metrics.RecordClear(err)
			return err
		}
		if a.words.compareAndSwap(w, v, v.clearBit(bit)) {
			break
		}
		a.retried(OpClear, w, attempt)
	}

	a.stats.clears.Add(1)
	a.retreatHint(w)
	a.metrics.RecordClear(nil)
	return nil
}

// Close logs the final statistics. It holds no other resources, so the
// allocator remains usable afterwards; repeated calls log nothing.
func (a *Allocator) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	a.logger.LogStats(a.Stats())
	return nil
}

// locate returns the word and bit offset for an index below Len
func (a *Allocator) locate(index uint64) (int, uint) {
	width := uint64(a.width)
	return int(index / width), uint(index % width)
}

// advanceHint moves the hint to word, unless anything changed it since the
// scan read h. Losing that race only costs a longer scan later.
func (a *Allocator) advanceHint(h uint64, word int) {
	start := hintWord(h)
	if word == start {
		return
	}
	if !a.hint.CompareAndSwap(h, packHint(word, hintEpoch(h))) {
		a.stats.hintMisses.Add(1)
		a.debugf(func() {
			a.logger.LogHintMiss(start, word)
		})
	}
}

// retreatHint lowers the hint to word if it is above it and bumps the epoch
func (a *Allocator) retreatHint(word int) {
	for {
		h := a.hint.Load()
		if a.hint.CompareAndSwap(h, packHint(min(hintWord(h), word), hintEpoch(h)+1)) {
			return
		}
	}
}

// retried records a failed compare-and-swap and backs off if configured
func (a *Allocator) retried(op Op, word, attempt int) {
	a.stats.retries.Add(1)
	a.metrics.RecordRetry(op)
	a.debugf(func() {
		a.logger.LogRetry(op, word, attempt)
	})
	if a.yieldAfter > 0 && attempt >= a.yieldAfter {
		runtime.Gosched()
	}
}

// debugf runs f under the retry log throttle. Callers that find another
// caller already logging skip instead of waiting for it.
func (a *Allocator) debugf(f func()) {
	if !a.logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	if !a.logging.CompareAndSwap(false, true) {
		return
	}
	defer a.logging.Store(false)
	a.retryLog.Do(f)
}

// wordCount returns the number of words needed for capacity bits
func wordCount(capacity uint64, width WordWidth) uint64 {
	n := capacity / uint64(width)
	if capacity%uint64(width) != 0 {
		n++
	}
	return n
}

func packHint(word int, epoch uint64) uint64 {
	return epoch<<hintWordBits | uint64(word)&hintWordMask
}

func hintWord(h uint64) int {
	return int(h & hintWordMask)
}

func hintEpoch(h uint64) uint64 {
	return h >> hintWordBits
}

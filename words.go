package bitalloc

import "sync/atomic"

// wordStore is the bitmap storage: a fixed array of words, each updated only
// through compare-and-swap. Values are zero-extended into uint128.
type wordStore interface {
	count() int
	load(i int) uint128
	// compareAndSwap only supports transitions that flip a single bit.
	compareAndSwap(i int, old, next uint128) bool
	// store is for initialization before the allocator is shared.
	store(i int, v uint128)
}

func newWordStore(width WordWidth, words int) wordStore {
	switch width {
	case Word32:
		return make(words32, words)
	case Word128:
		return make(words128, 2*words)
	default:
		return make(words64, words)
	}
}

type words32 []atomic.Uint32

func (w words32) count() int { return len(w) }

func (w words32) load(i int) uint128 { return uint128{Lo: uint64(w[i].Load())} }

func (w words32) compareAndSwap(i int, old, next uint128) bool {
	return w[i].CompareAndSwap(uint32(old.Lo), uint32(next.Lo))
}

func (w words32) store(i int, v uint128) { w[i].Store(uint32(v.Lo)) }

type words64 []atomic.Uint64

func (w words64) count() int { return len(w) }

func (w words64) load(i int) uint128 { return uint128{Lo: w[i].Load()} }

func (w words64) compareAndSwap(i int, old, next uint128) bool {
	return w[i].CompareAndSwap(old.Lo, next.Lo)
}

func (w words64) store(i int, v uint128) { w[i].Store(v.Lo) }

// words128 keeps each 128-bit word as two adjacent 64-bit lanes, low lane
// first. A load is not atomic across lanes; a CAS touches only the lane that
// holds the flipped bit.
type words128 []atomic.Uint64

func (w words128) count() int { return len(w) / 2 }

func (w words128) load(i int) uint128 {
	return uint128{Lo: w[2*i].Load(), Hi: w[2*i+1].Load()}
}

func (w words128) compareAndSwap(i int, old, next uint128) bool {
	if old.Lo != next.Lo {
		return w[2*i].CompareAndSwap(old.Lo, next.Lo)
	}
	return w[2*i+1].CompareAndSwap(old.Hi, next.Hi)
}

func (w words128) store(i int, v uint128) {
	w[2*i].Store(v.Lo)
	w[2*i+1].Store(v.Hi)
}

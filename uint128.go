package bitalloc

import "math/bits"

// uint128 holds one bitmap word of up to 128 bits as two 64-bit halves.
// 32 and 64 bit words only use Lo.
type uint128 struct {
	Hi, Lo uint64
}

// fullWord returns the all-ones value for a word of the given width.
func fullWord(width uint) uint128 {
	switch {
	case width >= 128:
		return uint128{Hi: ^uint64(0), Lo: ^uint64(0)}
	case width == 64:
		return uint128{Lo: ^uint64(0)}
	default:
		return uint128{Lo: 1<<width - 1}
	}
}

// trailingOnes returns the offset of the lowest zero bit
func (x uint128) trailingOnes() uint {
	if x.Lo != ^uint64(0) {
		return uint(bits.TrailingZeros64(^x.Lo))
	}
	return 64 + uint(bits.TrailingZeros64(^x.Hi))
}

// bit reports whether bit n is set
func (x uint128) bit(n uint) bool {
	if n < 64 {
		return x.Lo>>n&1 == 1
	}
	return x.Hi>>(n-64)&1 == 1
}

// setBit returns x with bit n set
func (x uint128) setBit(n uint) uint128 {
	if n < 64 {
		x.Lo |= 1 << n
	} else {
		x.Hi |= 1 << (n - 64)
	}
	return x
}

// clearBit returns x with bit n cleared
func (x uint128) clearBit(n uint) uint128 {
	if n < 64 {
		x.Lo &^= 1 << n
	} else {
		x.Hi &^= 1 << (n - 64)
	}
	return x
}

// onesCount returns the number of set bits
func (x uint128) onesCount() int {
	return bits.OnesCount64(x.Hi) + bits.OnesCount64(x.Lo)
}

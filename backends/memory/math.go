package memory

import (
	"math"
	"math/bits"
	"time"
)

// refill computes the post-refill token count without consuming. All math is
// integer-only: floating point under-represents refill rates smaller than
// 2^-52, so tokens are derived as floor(elapsed * capacity / window) using
// 128-bit intermediates.
func refill(tokens, lastRefillNanos, nowNanos, capacity, windowNanos int64) int64 {
	elapsed := nowNanos - lastRefillNanos
	if elapsed <= 0 {
		// Negative elapsed clamps store-clock resets.
		return tokens
	}
	if elapsed >= windowNanos {
		return capacity
	}
	return min(capacity, tokens+floorMulDiv(elapsed, capacity, windowNanos))
}

// resetTimeMillis computes the epoch millisecond at which the bucket would be
// full again.
func resetTimeMillis(nowNanos, tokens, capacity, windowNanos int64) int64 {
	return (nowNanos + ceilMulDiv(capacity-tokens, windowNanos, capacity)) / int64(time.Millisecond)
}

// expirationSeconds returns the per-key TTL in seconds: 110% of the window,
// capped at one day, floored at one second.
func expirationSeconds(windowNanos int64) int64 {
	ttl := ceilMulDiv(windowNanos, 11, 10*int64(time.Second))
	if ttl > 86400 {
		return 86400
	}
	if ttl < 1 {
		return 1
	}
	return ttl
}

// floorMulDiv returns floor(a*b/c) for non-negative a, b and positive c,
// using a 128-bit intermediate product. Saturates at MaxInt64.
func floorMulDiv(a, b, c int64) int64 {
	if a == 0 || b == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	if hi >= uint64(c) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// ceilMulDiv returns ceil(a*b/c) for non-negative a, b and positive c,
// using a 128-bit intermediate product. Saturates at MaxInt64.
func ceilMulDiv(a, b, c int64) int64 {
	if a <= 0 || b == 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	add := uint64(c) - 1
	carry := uint64(0)
	lo, carry = bits.Add64(lo, add, 0)
	hi, _ = bits.Add64(hi, 0, carry)
	if hi >= uint64(c) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(c))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

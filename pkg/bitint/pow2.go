// SPDX-License-Identifier: MIT

/*
Package bitint provides the power-of-two helpers used when sizing the
analysis buffers. Both transforms are planned for power-of-two lengths, so
buffer lengths are validated once at configuration time and never again on
the audio path.

Design Principles:
- Zero Allocations: all operations use stack memory only
- Real-Time Safe: no locks, syscalls, or blocking operations

Usage:

	// Reject a fine buffer length that cannot be planned.
	if !bitint.IsPowerOfTwo(cfg.FineSize) { ... }

	// Suggest the nearest valid length in an error message.
	hint := bitint.NextPowerOfTwo(cfg.FineSize) // 1000 -> 1024
*/
package bitint

import "math/bits"

// NextPowerOfTwo returns the next power of 2 >= size.
//
// The subtraction (size-1) keeps exact powers of two unchanged: for 8,
// bits.Len(7) = 3 and 1<<3 = 8, whereas bits.Len(8) would give 16.
//
//	Input  Output
//	4      4
//	5      8
//	0      1
//	-1     1
func NextPowerOfTwo(size int) int {
	if size <= 0 {
		return 1
	}
	return 1 << bits.Len(uint(size-1))
}

// IsPowerOfTwo checks if n is a power of 2. Powers of two have exactly one
// bit set, so n&(n-1) clears it and leaves zero.
//
//	Input  Output  Binary
//	8      true    1000 & 0111 = 0000
//	7      false   0111 & 0110 = 0110
//	0      false   not positive
func IsPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}

// Log2 returns log2(n) for a power of two n, and -1 otherwise.
func Log2(n int) int {
	if !IsPowerOfTwo(n) {
		return -1
	}
	return bits.TrailingZeros(uint(n))
}

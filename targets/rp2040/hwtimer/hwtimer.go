// Package hwtimer locates the 64-bit microsecond timer of the RP2040 and
// RP2350 and reads it consistently across the two 32-bit halves.
package hwtimer

// Chip selects the register map
type Chip uint8

const (
	RP2040 Chip = iota
	RP2350
)

// Timer block base addresses. RP2350 TIMER0 moved from the RP2040 address.
const (
	rp2040Base = 0x40054000
	rp2350Base = 0x400B0000
)

// Unlatched raw words, the same offsets on both chips
const (
	offRawHigh = 0x24
	offRawLow  = 0x28
)

// RawAddrs returns the addresses of the raw high and low timer words
func RawAddrs(c Chip) (high, low uintptr) {
	base := uintptr(rp2040Base)
	if c == RP2350 {
		base = rp2350Base
	}
	return base + offRawHigh, base + offRawLow
}

// Uptime combines the halves. The high word is read on both sides of the
// low word and the read is retried when a carry happened in between.
func Uptime(high, low func() uint32) uint64 {
	for {
		h1 := high()
		l := low()
		if h2 := high(); h1 == h2 {
			return uint64(h1)<<32 | uint64(l)
		}
	}
}

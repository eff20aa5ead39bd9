// Package rudp implements a reliable, connection-oriented byte-stream
// transport layered on UDP: handshake, sliding-window flow control,
// retransmission and duplicate-ACK fast retransmit, modeled loosely on TCP
// but with a wire format and state machine of its own.
//
// The root package holds the primitives every layer depends on: wrapped
// 32-bit sequence arithmetic, the one's-complement checksum, and the
// four-tuple connection identity. Protocol layers live in subpackages:
// segment (wire codec), ccb (connection control block), demux
// (socket multiplexing) and appio (length-prefixed message framing).
package rudp

// Seq is a 32-bit sequence or acknowledgement number that wraps around at
// 2^32. Comparisons between two Seq values are only meaningful relative to
// a window; use InWrappedRange rather than the built-in < and > operators.
type Seq uint32

// Add returns s+n, wrapping around at 2^32.
func (s Seq) Add(n uint32) Seq { return Seq(uint32(s) + n) }

// Minus returns s-n, wrapping around at 2^32.
func (s Seq) Minus(n uint32) Seq { return Seq(uint32(s) - n) }

// Sub returns s-other as an unsigned distance, wrapping around at 2^32.
// It is only meaningful when other is known to precede s in sequence space.
func (s Seq) Sub(other Seq) uint32 { return uint32(s) - uint32(other) }

// InWrappedRange reports whether n lies in the half-open interval [lo, hi)
// walking forward through sequence space, correctly handling hi<lo wrap.
func InWrappedRange(lo, hi, n Seq) bool {
	l, h, v := uint32(lo), uint32(hi), uint32(n)
	if h < l {
		return v >= l || v < h
	}
	return v >= l && v < h
}

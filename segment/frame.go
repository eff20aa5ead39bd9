// Package segment implements the wire codec for this transport's fixed
// 20-byte segment header, modeled structurally on lneto's tcp.Frame
// (tcp/frame.go): a thin wrapper around a raw []byte exposing big-endian
// field accessors. The flag bits occupy the upper three bits of the flag
// word and the checksum sits at a different offset than RFC 9293's TCP
// header, so this codec is its own layout, not a TCP reimplementation.
package segment

import (
	"encoding/binary"
	"errors"

	"rudp"
)

// HeaderLen is the fixed segment header size in bytes.
const HeaderLen = 20

var (
	// ErrShortBuffer is returned by New/Decode when given fewer than
	// HeaderLen bytes.
	ErrShortBuffer = errors.New("segment: buffer shorter than header")
)

// RejectError represents a segment that could not be admitted by a
// demultiplexer or connection control block: the segment decoded, but
// the layer handling it refused to act on it (bad checksum at the
// datagram level, sequence number outside the receive window, and so on). Mirrors lneto's tcp.RejectError
// (tcp/definitions.go), constructed by each package's own unexported
// sentinel errors rather than a shared var block, since the rejection
// reasons differ by layer.
type RejectError struct {
	reason string
}

// NewRejectError builds a RejectError carrying reason as its message.
func NewRejectError(reason string) *RejectError {
	return &RejectError{reason: reason}
}

func (e *RejectError) Error() string { return "reject segment: " + e.reason }

// Flag is a bit in the segment's 16-bit flag word. The three
// flag bits occupy the most significant bits of the word; all others are
// reserved and must be zero on send.
type Flag uint16

const (
	FlagFIN Flag = 1 << 13
	FlagACK Flag = 1 << 14
	FlagSYN Flag = 1 << 15

	flagMask Flag = FlagSYN | FlagACK | FlagFIN
)

func (f Flag) String() string {
	if f&flagMask == 0 {
		return "[]"
	}
	s := "["
	first := true
	add := func(name string) {
		if !first {
			s += ","
		}
		s += name
		first = false
	}
	if f&FlagSYN != 0 {
		add("SYN")
	}
	if f&FlagACK != 0 {
		add("ACK")
	}
	if f&FlagFIN != 0 {
		add("FIN")
	}
	return s + "]"
}

// Frame encapsulates the raw bytes of one segment and provides accessors
// for each header field. The zero value is not usable; construct one with
// New, Decode or Build.
type Frame struct {
	buf []byte
}

// New wraps buf, which must already hold at least HeaderLen bytes, as a
// Frame. Like Decode, New does not copy buf.
func New(buf []byte) (Frame, error) {
	if len(buf) < HeaderLen {
		return Frame{}, ErrShortBuffer
	}
	return Frame{buf: buf}, nil
}

// Decode parses raw as a Frame. The payload is taken to be
// whatever bytes follow the 20-byte header in raw — the header's own
// segment-size field is not trusted, so a segment whose declared size
// disagrees with 20+len(payload) is still accepted; Validate is the sole
// integrity gate.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < HeaderLen {
		return Frame{}, ErrShortBuffer
	}
	return Frame{buf: raw}, nil
}

// Build constructs a new segment with the given fields and an immediately
// consistent checksum, the common case for segments generated by the CCB.
// Use the low-level setters (SetSeq, Set, SetPayload, ...) instead when a
// test needs to observe intermediate checksum recomputation.
func Build(srcPort, dstPort uint16, seq, ack rudp.Seq, flags Flag, payload []byte) Frame {
	buf := make([]byte, HeaderLen+len(payload))
	f := Frame{buf: buf}
	f.SetSourcePort(srcPort)
	f.SetDestinationPort(dstPort)
	f.setSegmentSize(uint32(HeaderLen + len(payload)))
	f.SetSeq(seq)
	f.SetAck(ack)
	f.SetFlags(flags)
	copy(f.buf[HeaderLen:], payload)
	f.recomputeChecksum()
	return f
}

// RawData returns the underlying encoded bytes, header followed by
// payload. This is the wire representation; Build and every setter keep
// it, checksum included, up to date, so there is no separate encode step.
func (f Frame) RawData() []byte { return f.buf }

func (f Frame) SourcePort() uint16 { return binary.BigEndian.Uint16(f.buf[0:2]) }

func (f Frame) SetSourcePort(v uint16) {
	binary.BigEndian.PutUint16(f.buf[0:2], v)
	f.recomputeChecksum()
}

func (f Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(f.buf[2:4]) }

func (f Frame) SetDestinationPort(v uint16) {
	binary.BigEndian.PutUint16(f.buf[2:4], v)
	f.recomputeChecksum()
}

// SegmentSize returns the header's declared total-size field. This is informational only; decoders derive the real payload
// length from the datagram length instead.
func (f Frame) SegmentSize() uint32 { return binary.BigEndian.Uint32(f.buf[4:8]) }

func (f Frame) setSegmentSize(v uint32) {
	binary.BigEndian.PutUint32(f.buf[4:8], v)
}

// Seq returns the sequence number of the first payload octet (or, for a
// SYN, the initial sequence number).
func (f Frame) Seq() rudp.Seq { return rudp.Seq(binary.BigEndian.Uint32(f.buf[8:12])) }

func (f Frame) SetSeq(v rudp.Seq) {
	binary.BigEndian.PutUint32(f.buf[8:12], uint32(v))
	f.recomputeChecksum()
}

// Ack returns the next sequence number the sender of this segment expects
// to receive, meaningful when the ACK flag is set.
func (f Frame) Ack() rudp.Seq { return rudp.Seq(binary.BigEndian.Uint32(f.buf[12:16])) }

func (f Frame) SetAck(v rudp.Seq) {
	binary.BigEndian.PutUint32(f.buf[12:16], uint32(v))
	f.recomputeChecksum()
}

func (f Frame) flagsRaw() Flag { return Flag(binary.BigEndian.Uint16(f.buf[16:18])) }

// SetFlags overwrites the entire flag word, clearing all reserved bits.
func (f Frame) SetFlags(flags Flag) {
	binary.BigEndian.PutUint16(f.buf[16:18], uint16(flags&flagMask))
	f.recomputeChecksum()
}

// Get reports whether all bits of mask are set.
func (f Frame) Get(mask Flag) bool { return f.flagsRaw()&mask == mask }

// Set raises the bits of mask, recomputing the checksum.
func (f Frame) Set(mask Flag) {
	f.SetFlags(f.flagsRaw() | mask)
}

// Unset clears the bits of mask, recomputing the checksum.
func (f Frame) Unset(mask Flag) {
	f.SetFlags(f.flagsRaw() &^ mask)
}

// Checksum returns the stored checksum field.
func (f Frame) Checksum() uint16 { return binary.BigEndian.Uint16(f.buf[18:20]) }

func (f Frame) setChecksum(v uint16) { binary.BigEndian.PutUint16(f.buf[18:20], v) }

// Payload returns the segment's payload bytes, i.e. everything after the
// fixed 20-byte header.
func (f Frame) Payload() []byte { return f.buf[HeaderLen:] }

// SetPayload replaces the payload, updates the segment-size header field
// to 20+len(p), and recomputes the checksum. It grows or shrinks the
// frame's underlying buffer as needed.
func (f *Frame) SetPayload(p []byte) {
	buf := make([]byte, HeaderLen+len(p))
	copy(buf, f.buf[:HeaderLen])
	copy(buf[HeaderLen:], p)
	f.buf = buf
	f.setSegmentSize(uint32(HeaderLen + len(p)))
	f.recomputeChecksum()
}

// recomputeChecksum sets the checksum field to zero, sums the whole
// encoded segment, and stores the one's complement (substituting 0xFFFF
// for a would-be-zero result), per the checksum algorithm.
func (f Frame) recomputeChecksum() {
	f.setChecksum(0)
	var c rudp.Checksum
	c.Write(f.buf)
	f.setChecksum(c.Sum16())
}

// Validate recomputes the one's-complement sum over the full encoded
// segment, stored checksum field included, and reports whether it equals
// 0xFFFF. This is the only integrity gate; a mismatched SegmentSize field
// does not by itself invalidate a segment.
func (f Frame) Validate() bool { return rudp.Verify(f.buf) }

func (f Frame) String() string {
	return "segment " + f.flagsRaw().String() +
		" seq=" + itoa(uint32(f.Seq())) + " ack=" + itoa(uint32(f.Ack())) +
		" len=" + itoa(uint32(len(f.Payload())))
}

func itoa(v uint32) string {
	return string(appendUint(nil, uint64(v)))
}

func appendUint(b []byte, v uint64) []byte {
	if v == 0 {
		return append(b, '0')
	}
	var tmp [20]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(b, tmp[i:]...)
}

package segment

import (
	"testing"

	"rudp"
)

func TestBuildValidates(t *testing.T) {
	f := Build(1234, 5678, rudp.Seq(100), rudp.Seq(200), FlagACK, []byte("payload"))
	if !f.Validate() {
		t.Fatalf("freshly built segment must validate")
	}
	if f.SourcePort() != 1234 || f.DestinationPort() != 5678 {
		t.Fatalf("port mismatch: %d %d", f.SourcePort(), f.DestinationPort())
	}
	if f.Seq() != 100 || f.Ack() != 200 {
		t.Fatalf("seq/ack mismatch: %d %d", f.Seq(), f.Ack())
	}
	if !f.Get(FlagACK) || f.Get(FlagSYN) || f.Get(FlagFIN) {
		t.Fatalf("flag mismatch: %v", f.flagsRaw())
	}
	if string(f.Payload()) != "payload" {
		t.Fatalf("payload mismatch: %q", f.Payload())
	}
}

func TestCorruptionDetected(t *testing.T) {
	f := Build(1, 2, rudp.Seq(0), rudp.Seq(0), FlagSYN, nil)
	raw := f.RawData()
	raw[0] ^= 0xFF
	if f.Validate() {
		t.Fatalf("corrupted segment must not validate")
	}
}

func TestSetterRecomputesChecksum(t *testing.T) {
	f := Build(1, 2, rudp.Seq(0), rudp.Seq(0), 0, nil)
	before := f.Checksum()
	f.SetSeq(rudp.Seq(77))
	after := f.Checksum()
	if before == after {
		t.Fatalf("checksum did not change after SetSeq")
	}
	if !f.Validate() {
		t.Fatalf("segment must still validate after SetSeq")
	}
}

func TestFlagSetUnsetRoundTrip(t *testing.T) {
	f := Build(1, 2, rudp.Seq(0), rudp.Seq(0), 0, nil)
	f.Set(FlagSYN)
	if !f.Get(FlagSYN) {
		t.Fatalf("SYN not set")
	}
	if !f.Validate() {
		t.Fatalf("must validate after Set")
	}
	f.Unset(FlagSYN)
	if f.Get(FlagSYN) {
		t.Fatalf("SYN still set after Unset")
	}
	f.Set(FlagACK | FlagFIN)
	if !f.Get(FlagACK) || !f.Get(FlagFIN) || f.Get(FlagSYN) {
		t.Fatalf("combined flag set wrong: %v", f.flagsRaw())
	}
}

func TestDecodeIgnoresDeclaredSize(t *testing.T) {
	f := Build(1, 2, rudp.Seq(0), rudp.Seq(0), FlagACK, []byte("abcd"))
	raw := f.RawData()
	// Corrupt the declared segment-size field without touching the
	// checksum: decode must still report the true payload length taken
	// from len(raw).
	raw[7] = 99
	dec, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(dec.Payload()) != 4 {
		t.Fatalf("want payload len 4, got %d", len(dec.Payload()))
	}
}

func TestSetPayloadResizesAndValidates(t *testing.T) {
	f := Build(1, 2, rudp.Seq(10), rudp.Seq(20), FlagACK, []byte("ab"))
	f.SetPayload([]byte("a longer payload"))
	if string(f.Payload()) != "a longer payload" {
		t.Fatalf("payload not replaced: %q", f.Payload())
	}
	if !f.Validate() {
		t.Fatalf("must validate after SetPayload")
	}
	f.SetPayload(nil)
	if len(f.Payload()) != 0 {
		t.Fatalf("want empty payload, got %q", f.Payload())
	}
	if !f.Validate() {
		t.Fatalf("must validate after SetPayload(nil)")
	}
}

func TestDecodeShortBuffer(t *testing.T) {
	if _, err := Decode(make([]byte, 10)); err != ErrShortBuffer {
		t.Fatalf("want ErrShortBuffer, got %v", err)
	}
}

func TestZeroChecksumSubstitutedWithAllOnes(t *testing.T) {
	// A segment whose natural one's-complement sum is zero must store
	// 0xFFFF instead, never 0x0000, so Validate continues to treat
	// "checksum present" as the common case. Source port 0xFFEB plus the
	// segment-size word 0x0014 sums to 0xFFFF, whose complement is zero.
	f := Build(0xFFEB, 0, rudp.Seq(0), rudp.Seq(0), 0, nil)
	if f.Checksum() != 0xFFFF {
		t.Fatalf("checksum field must be 0xFFFF when the complement is zero, got %#04x", f.Checksum())
	}
	if !f.Validate() {
		t.Fatalf("segment with substituted checksum must validate")
	}
}

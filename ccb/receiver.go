package ccb

import (
	"log/slog"

	"rudp"
	"rudp/segment"
)

// errSegNotInWindow rejects a payload segment whose sequence number falls
// outside the receive window entirely. errOutOfOrder rejects one that is
// in-window but not the next contiguous byte, so it's buffered rather
// than delivered. Mirrors lneto's tcp.errSeqNotInWindow/
// errRequireSequential (tcp/definitions.go), declared per package rather
// than shared since the rejection reasons are CCB-specific.
var (
	errSegNotInWindow = segment.NewRejectError("seq not in window")
	errOutOfOrder     = segment.NewRejectError("seq != ack_base (require sequential segments)")
)

// handleSegment dispatches one inbound, already-validated segment through
// the sender-side ack bookkeeping, the handshake state machine and the
// receiver-side payload reassembly, in that order, matching
// original_source/src/tcp.rs's handle_seg.
func (c *CCB) handleSegment(seg segment.Frame) {
	c.handleAcks(seg)
	c.handleShake(seg)
	c.handlePayload(seg)
	if seg.Get(segment.FlagFIN) {
		c.handleClose()
	}
}

// handleShake advances the handshake state machine. Implements the three-way handshake.
func (c *CCB) handleShake(seg segment.Frame) {
	switch c.state {
	case StateListen:
		if seg.Get(segment.FlagSYN) {
			c.setState(StateSynRecd)
			c.ackBase = seg.Seq().Add(1)
			synack := c.makeSegment()
			synack.Set(segment.FlagSYN | segment.FlagACK)
			synack.SetSeq(c.seqBase)
			synack.SetAck(c.ackBase)
			c.sendSegment(synack)
		}
	case StateSynSent:
		if seg.Get(segment.FlagSYN) && seg.Get(segment.FlagACK) {
			c.setState(StateEstab)
			c.ackBase = seg.Seq().Add(1)
			ack := c.makeSegment()
			ack.Set(segment.FlagACK)
			ack.SetAck(c.ackBase)
			c.sendAck(ack)
			c.fillSendWindow()
		}
	case StateSynRecd:
		if seg.Get(segment.FlagACK) {
			c.setState(StateEstab)
			c.fillSendWindow()
		}
	case StateEstab, StateClosed:
		// no-op
	}
}

// handlePayload reassembles payload bytes into the receive window,
// delivers the contiguous prefix starting at ackBase to Output, and acks
// the new ackBase. Ported from original_source/src/tcp.rs's handle_payload.
func (c *CCB) handlePayload(seg segment.Frame) {
	if c.state != StateEstab {
		return
	}
	seqLB := c.ackBase
	seqUB := seqLB.Add(uint32(c.cfg.WindowSize))
	if rudp.InWrappedRange(seqLB, seqUB, seg.Seq()) {
		base := int(seg.Seq().Sub(c.ackBase))
		for i, b := range seg.Payload() {
			if base+i < c.recv.size() {
				c.recv.Put(base+i, b)
			}
		}
	} else if len(seg.Payload()) > 0 {
		c.log.Debug("dropping segment",
			slog.Any("err", errSegNotInWindow),
			slog.Uint64("seq", uint64(seg.Seq())), slog.Uint64("expected", uint64(c.ackBase)))
	}

	if seg.Seq() == c.ackBase {
		drained := c.recv.DrainContiguous()
		if len(drained) > 0 {
			c.ackBase = c.ackBase.Add(uint32(len(drained)))
			c.outbox = append(c.outbox, drained)
		}
		ack := c.makeSegment()
		ack.Set(segment.FlagACK)
		ack.SetAck(c.ackBase)
		c.sendAck(ack)
	} else if !seg.Get(segment.FlagACK) {
		c.log.Debug("dropping segment",
			slog.Any("err", errOutOfOrder),
			slog.Uint64("seq", uint64(seg.Seq())), slog.Uint64("expected", uint64(c.ackBase)))
	}
}

// handleClose reacts to an inbound FIN by closing immediately: this
// transport has no half-close, so receiving a FIN ends the connection on
// both sides' view of it at once.
func (c *CCB) handleClose() {
	c.setState(StateClosed)
}

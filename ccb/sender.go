package ccb

import (
	"log/slog"

	"rudp"
	"rudp/segment"
)

// makeSegment builds an empty segment addressed to this connection's
// tuple, with no flags, no payload, ack 0 — callers fill in the rest.
func (c *CCB) makeSegment() segment.Frame {
	return segment.Build(c.cfg.Tuple.Local.Port(), c.cfg.Tuple.Remote.Port(), 0, 0, 0, nil)
}

// sendSyn transitions a LISTEN-state CCB into the active opener role.
func (c *CCB) sendSyn() {
	syn := c.makeSegment()
	syn.Set(segment.FlagSYN)
	syn.SetSeq(c.seqBase)
	c.sendSegment(syn)
	c.setState(StateSynSent)
}

// fillSendWindow moves as much data as fits from sendBuffer into
// sendWindow and transmits it, respecting WindowSize. It is a no-op
// outside ESTAB, matching original_source/src/tcp.rs's fill_send_window.
func (c *CCB) fillSendWindow() {
	if c.state != StateEstab {
		return
	}
	origWindowLen := c.sendWindow.Len()
	sendAmt := c.cfg.WindowSize - origWindowLen
	if avail := c.sendBuffer.Len(); sendAmt > avail {
		sendAmt = avail
	}
	if sendAmt <= 0 {
		return
	}
	data := c.sendBuffer.PopFront(sendAmt)
	c.sendWindow.PushBack(data)
	nextSeq := c.seqBase.Add(uint32(origWindowLen))
	c.sendData(data, nextSeq)
}

// sendData fragments data into MaxPayloadSize segments starting at seq and
// transmits each.
func (c *CCB) sendData(data []byte, seq rudp.Seq) {
	sent := 0
	for sent < len(data) {
		size := c.cfg.MaxPayloadSize
		if rem := len(data) - sent; size > rem {
			size = rem
		}
		seg := c.makeSegment()
		seg.SetSeq(seq.Add(uint32(sent)))
		seg.SetPayload(data[sent : sent+size])
		c.sendSegment(seg)
		sent += size
	}
}

// sendSegment transmits seg and records it as unacknowledged.
func (c *CCB) sendSegment(seg segment.Frame) {
	c.transmit(seg)
	c.unacked = append(c.unacked, seg)
}

// sendAck transmits seg (an ACK-only segment) without adding it
// to the unacked queue: pure acknowledgments are never individually
// retransmitted, only implied by a resend of the segment they ack.
func (c *CCB) sendAck(seg segment.Frame) {
	c.transmit(seg)
}

func (c *CCB) transmit(seg segment.Frame) {
	c.Stats.segmentsSent.Add(1)
	c.log.Trace("send", slog.String("tuple", c.cfg.Tuple.String()), slog.String("seg", seg.String()))
	if err := c.transport.SendTo(c.cfg.Tuple, seg.RawData()); err != nil {
		c.log.Error("send failed", slog.String("tuple", c.cfg.Tuple.String()), slog.Any("err", err))
	}
}

// sendClose transmits a FIN and moves straight to CLOSED: this transport
// has no half-close or TIME_WAIT, so a local close is unconditional.
func (c *CCB) sendClose() {
	fin := c.makeSegment()
	fin.Set(segment.FlagFIN)
	fin.SetSeq(c.seqBase)
	c.sendSegment(fin)
	c.setState(StateClosed)
}

// handleResend retransmits the oldest unacknowledged segment, if any. The
// timeout path always calls this at most once per cfg.Timeout, but the
// fast-retransmit path (handleAcks, on a triple duplicate ACK) can call it
// far more often under sustained loss; resendLimiter caps the combined
// rate so a flaky link cannot turn fast retransmit into a self-inflicted
// flood.
func (c *CCB) handleResend() {
	if len(c.unacked) == 0 {
		return
	}
	if !c.resendLimiter.Allow() {
		c.log.Debug("retransmit suppressed by rate limiter", slog.String("tuple", c.cfg.Tuple.String()))
		return
	}
	c.Stats.retransmits.Add(1)
	c.transmit(c.unacked[0])
}

// handleAcks updates seqBase and the unacked/send-window state from an
// incoming ACK, and detects triple duplicate ACKs to trigger a fast
// retransmit. Ported from original_source/src/tcp.rs's handle_acks.
func (c *CCB) handleAcks(seg segment.Frame) {
	ackLB := c.seqBase.Add(1)
	ackUB := ackLB.Add(uint32(c.cfg.WindowSize))
	if seg.Get(segment.FlagACK) && rudp.InWrappedRange(ackLB, ackUB, seg.Ack()) {
		kept := c.unacked[:0]
		for _, u := range c.unacked {
			lo := seg.Ack()
			hi := lo.Add(uint32(c.cfg.WindowSize))
			if rudp.InWrappedRange(lo, hi, u.Seq()) {
				kept = append(kept, u)
			}
		}
		c.unacked = kept

		numAcked := seg.Ack().Sub(c.seqBase)
		c.seqBase = seg.Ack()

		if c.state == StateEstab {
			c.sendWindow.PopFront(int(numAcked))
			c.fillSendWindow()
		}
	}

	dupLB := c.seqBase.Minus(uint32(c.cfg.WindowSize - 1))
	dupUB := dupLB.Add(uint32(c.cfg.WindowSize))
	if c.state == StateEstab && seg.Get(segment.FlagACK) && rudp.InWrappedRange(dupLB, dupUB, seg.Seq()) {
		c.dupAcks++
		c.Stats.dupAckEvents.Add(1)
		if c.dupAcks >= 3 {
			c.handleResend()
			c.dupAcks = 0
			c.log.Debug("triple duplicate ack, fast retransmit", slog.String("tuple", c.cfg.Tuple.String()))
		}
	}
}

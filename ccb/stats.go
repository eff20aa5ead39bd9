package ccb

import "sync/atomic"

// Stats holds counters exported by a CCB for metrics scraping. All fields
// are safe for concurrent access; callers read a point-in-time Snapshot.
type Stats struct {
	segmentsSent     atomic.Uint64
	segmentsReceived atomic.Uint64
	retransmits      atomic.Uint64
	dupAckEvents     atomic.Uint64
}

// Snapshot is an immutable copy of a Stats at one moment.
type Snapshot struct {
	SegmentsSent     uint64
	SegmentsReceived uint64
	Retransmits      uint64
	DupAckEvents     uint64
}

// Snapshot reads all counters.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		SegmentsSent:     s.segmentsSent.Load(),
		SegmentsReceived: s.segmentsReceived.Load(),
		Retransmits:      s.retransmits.Load(),
		DupAckEvents:     s.dupAckEvents.Load(),
	}
}

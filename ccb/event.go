package ccb

import "rudp/segment"

// EventKind identifies the kind of Event fed into a CCB's input channel.
// Mirrors the four TCBInput variants this package's control block is
// grounded on (original_source/src/tcp.rs's TCBInput enum).
type EventKind int

const (
	// EventSendSyn asks a LISTEN-state CCB to become the active opener.
	EventSendSyn EventKind = iota
	// EventReceive carries a segment that arrived off the wire for this
	// connection's four-tuple.
	EventReceive
	// EventSend carries application bytes to be queued for transmission.
	EventSend
	// EventClose requests a graceful FIN-based shutdown.
	EventClose
)

// Event is one input to a CCB's event loop.
type Event struct {
	Kind    EventKind
	Segment segment.Frame // valid when Kind == EventReceive
	Data    []byte        // valid when Kind == EventSend
}

// SendSyn builds an EventSendSyn event.
func SendSyn() Event { return Event{Kind: EventSendSyn} }

// Receive builds an EventReceive event.
func Receive(f segment.Frame) Event { return Event{Kind: EventReceive, Segment: f} }

// Send builds an EventSend event.
func Send(data []byte) Event { return Event{Kind: EventSend, Data: data} }

// Close builds an EventClose event.
func Close() Event { return Event{Kind: EventClose} }

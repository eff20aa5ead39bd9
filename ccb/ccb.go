// Package ccb implements the connection control block: the per-connection
// state machine and actor loop driving the handshake, sliding-window data
// transfer, retransmission and graceful close this transport defines.
// Grounded on original_source/src/tcp.rs's TCB, restructured as a
// goroutine-per-connection event loop the way that file's own test harness
// (run_e2e_pair, spawning one OS thread per TCB) already treats a
// connection: one thread, one channel of inputs, one channel of output
// bytes. lneto's tcp.Conn informs the Go surface (Config struct, embedded
// logger, sentinel errors) though its ControlBlock itself is a polled
// value type rather than an actor; the actor shape here comes from the
// Rust source instead.
package ccb

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"golang.org/x/time/rate"

	"rudp"
	"rudp/internal/ring"
	"rudp/internal/slogx"
	"rudp/segment"
)

// Transport sends an already-encoded segment to the connection's peer. A
// demultiplexer implements this over its single shared UDP socket; CCBs
// never open sockets themselves.
type Transport interface {
	SendTo(tuple rudp.Tuple, raw []byte) error
}

// Config parametrizes a CCB. WindowSize, MaxPayloadSize and Timeout
// default to this transport's production values (4096, 1024, 500ms) when
// zero; tests that want to exercise windowing/fragmentation/retransmit
// behavior with small, literal numbers should set these fields
// explicitly rather than relying on the default.
type Config struct {
	Tuple          rudp.Tuple
	WindowSize     int
	MaxPayloadSize int
	Timeout        time.Duration
	Log            *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.WindowSize <= 0 {
		c.WindowSize = 4096
	}
	if c.MaxPayloadSize <= 0 {
		c.MaxPayloadSize = 1024
	}
	if c.Timeout <= 0 {
		c.Timeout = 500 * time.Millisecond
	}
	return c
}

// CCB is one connection's control block and event loop driver. Exactly one
// goroutine, running Run, ever touches a CCB's unexported state; all other
// interaction happens through the channels returned by Events, Output and
// Done, per this transport's actor discipline.
type CCB struct {
	cfg       Config
	transport Transport
	log       slogx.Logger
	traceID   xid.ID // correlates this connection's log lines across its lifetime

	state       State
	stateAtomic atomic.Int32 // mirrors state for State(), safe to read from any goroutine

	sendBuffer ring.Queue // bytes queued by the application, not yet windowed
	sendWindow ring.Queue // bytes currently in flight, windowed

	recv *recvWindow

	seqBase rudp.Seq // lowest unacknowledged sequence number we've sent
	ackBase rudp.Seq // next sequence number we expect to receive

	unacked       []segment.Frame
	dupAcks       int
	resendLimiter *rate.Limiter // caps combined timeout + fast-retransmit rate

	events chan Event
	output chan []byte
	outbox [][]byte // chunks waiting to be delivered on output
	done   chan struct{}

	Stats Stats
}

// New constructs a CCB in LISTEN state. Callers that want to actively open
// a connection send an EventSendSyn on the returned Events channel.
func New(cfg Config, transport Transport) *CCB {
	cfg = cfg.withDefaults()
	traceID := xid.New()
	c := &CCB{
		cfg:           cfg,
		transport:     transport,
		log:           slogx.Logger{Log: cfg.Log},
		traceID:       traceID,
		resendLimiter: rate.NewLimiter(rate.Every(cfg.Timeout/4), 4),
		recv:          newRecvWindow(cfg.WindowSize),
		seqBase:   1,
		ackBase:   1,
		events:    make(chan Event, 32),
		output:    make(chan []byte, 32),
		done:      make(chan struct{}),
	}
	c.log.Debug("connection control block created",
		slog.String("trace_id", traceID.String()),
		slog.String("tuple", cfg.Tuple.String()))
	return c
}

// TraceID identifies this connection across its lifetime for log
// correlation, independent of its four-tuple which a NAT or reconnect can
// change out from under an observer.
func (c *CCB) TraceID() string { return c.traceID.String() }

// Events returns the channel callers use to feed this CCB input. It is
// never closed by the CCB; stop sending to it once Done fires.
func (c *CCB) Events() chan<- Event { return c.events }

// Output returns the channel of contiguous, in-order application bytes
// this connection has received. Each send is a chunk, not necessarily
// aligned to any message boundary; appio reassembles chunks into framed
// messages.
func (c *CCB) Output() <-chan []byte { return c.output }

// Done is closed when Run returns, i.e. once the connection reaches
// CLOSED. A demultiplexer selects on Done alongside its own event sends to
// know when to evict this CCB from its connection table.
func (c *CCB) Done() <-chan struct{} { return c.done }

// State returns the CCB's current state and is safe to call from any
// goroutine.
func (c *CCB) State() State { return State(c.stateAtomic.Load()) }

// setState updates both the event loop's working copy of state and the
// atomically readable mirror observed by State().
func (c *CCB) setState(s State) {
	c.state = s
	c.stateAtomic.Store(int32(s))
	c.log.Debug("state transition",
		slog.String("trace_id", c.traceID.String()),
		slog.String("tuple", c.cfg.Tuple.String()),
		slog.String("state", s.String()))
}

// Run drives the event loop until the connection closes. It blocks until
// either an event arrives or cfg.Timeout elapses with nothing to do, in
// which case it resends the oldest unacknowledged segment, mirroring
// original_source/src/tcp.rs's recv_timeout-driven retransmit loop.
func (c *CCB) Run() {
	defer close(c.done)
	timer := time.NewTimer(c.cfg.Timeout)
	defer timer.Stop()
	for c.state != StateClosed || len(c.outbox) > 0 {
		var outCh chan []byte
		var head []byte
		if len(c.outbox) > 0 {
			outCh = c.output
			head = c.outbox[0]
		}
		select {
		case ev := <-c.events:
			c.handleEvent(ev)
		case <-timer.C:
			c.handleResend()
		case outCh <- head:
			c.outbox = c.outbox[1:]
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(c.cfg.Timeout)
	}
}

func (c *CCB) handleEvent(ev Event) {
	switch ev.Kind {
	case EventSendSyn:
		c.sendSyn()
	case EventReceive:
		c.Stats.segmentsReceived.Add(1)
		c.handleSegment(ev.Segment)
	case EventSend:
		c.sendBuffer.PushBack(ev.Data)
		c.fillSendWindow()
	case EventClose:
		c.sendClose()
	}
}

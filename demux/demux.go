// Package demux implements the demultiplexer: the component that owns a
// shared UDP socket, decodes and validates inbound datagrams, and routes
// each one by four-tuple to its connection control block, spawning a new
// one on first contact. Grounded on
// original_source/src/lib.rs's multiplexed_receive/run_server, restructured
// around lneto's tcp.Listener (tcp/listener.go) for the Go socket-binding
// idiom: net.ListenConfig with a Control hook for socket tuning, plus a
// logger embed and Prometheus-friendly counters. The read syscall itself
// runs on its own goroutine so Serve's connection-table goroutine can also
// select on per-connection eviction signals, something a single blocking
// recv loop cannot do.
package demux

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"golang.org/x/net/ipv4"

	"rudp"
	"rudp/ccb"
	"rudp/internal/slogx"
	"rudp/internal/sockopt"
	"rudp/metrics"
	"rudp/segment"
)

// AcceptFunc starts whatever application logic should run against a newly
// accepted connection. It is invoked in its own goroutine; it should
// return once the connection is done with, typically by observing
// c.Done().
type AcceptFunc func(c *ccb.CCB, tuple rudp.Tuple)

// errBadChecksum rejects a datagram whose segment checksum does not
// verify, before it is ever attributed to a tuple or a CCB.
var errBadChecksum = segment.NewRejectError("checksum mismatch")

// Config parametrizes a Demux.
type Config struct {
	ListenAddr     string
	WindowSize     int
	MaxPayloadSize int
	Timeout        time.Duration
	Accept         AcceptFunc
	Log            *slog.Logger
	Metrics        *metrics.Collectors

	// TOS, if non-zero, is set as the IPv4 type-of-service/DSCP byte on
	// the bound socket via golang.org/x/net/ipv4, so this transport's
	// traffic can be prioritized by a DSCP-aware router the way
	// interactive UDP tunnels conventionally mark themselves.
	TOS int
}

type datagram struct {
	raw    []byte
	remote netip.AddrPort
}

type registration struct {
	tuple rudp.Tuple
	c     *ccb.CCB
}

// Demux binds one UDP socket and fans inbound datagrams out to connection
// control blocks, one per remote four-tuple. The connection table is
// owned exclusively by the goroutine running Serve; nothing else may
// touch it, matching this transport's single-owner rule for
// multiplexer state. A separate reader goroutine feeds Serve over a
// channel so the table goroutine can also react to connection eviction
// without blocking on the socket read.
type Demux struct {
	cfg  Config
	conn *net.UDPConn
	log  slogx.Logger

	table     map[rudp.Tuple]*ccb.CCB
	datagrams chan datagram
	evict     chan rudp.Tuple
	register  chan registration
	readErr   chan error
}

// New constructs a Demux. Call Bind before Serve.
func New(cfg Config) *Demux {
	return &Demux{
		cfg:       cfg,
		log:       slogx.Logger{Log: cfg.Log},
		table:     make(map[rudp.Tuple]*ccb.CCB),
		datagrams: make(chan datagram, 256),
		evict:     make(chan rudp.Tuple, 16),
		register:  make(chan registration),
		readErr:   make(chan error, 1),
	}
}

// Bind opens the shared UDP socket, tuning its kernel buffers via
// sockopt.Control.
func (d *Demux) Bind(ctx context.Context) error {
	lc := net.ListenConfig{Control: sockopt.Control}
	pc, err := lc.ListenPacket(ctx, "udp", d.cfg.ListenAddr)
	if err != nil {
		return err
	}
	d.conn = pc.(*net.UDPConn)
	if d.cfg.TOS != 0 {
		if err := ipv4.NewConn(d.conn).SetTOS(d.cfg.TOS); err != nil {
			d.log.Debug("setting TOS failed", slog.Int("tos", d.cfg.TOS), slog.Any("err", err))
		}
	}
	return nil
}

// LocalAddr returns the bound socket's local address. Valid only after
// Bind succeeds.
func (d *Demux) LocalAddr() net.Addr { return d.conn.LocalAddr() }

// Open creates and registers a CCB for an actively-opened connection to
// remote, the client role in the handshake. The caller is responsible for
// sending the initial EventSendSyn. Serve must already be running; Open
// blocks until its registration is consumed by the Serve goroutine.
func (d *Demux) Open(remote netip.AddrPort) *ccb.CCB {
	tuple := rudp.Tuple{Local: d.conn.LocalAddr().(*net.UDPAddr).AddrPort(), Remote: remote}
	c := ccb.New(ccb.Config{
		Tuple:          tuple,
		WindowSize:     d.cfg.WindowSize,
		MaxPayloadSize: d.cfg.MaxPayloadSize,
		Timeout:        d.cfg.Timeout,
		Log:            d.cfg.Log,
	}, d)
	d.register <- registration{tuple: tuple, c: c}
	return c
}

// SendTo implements ccb.Transport over the shared socket. It is called
// concurrently by every CCB's own goroutine; *net.UDPConn is safe for
// concurrent use.
func (d *Demux) SendTo(tuple rudp.Tuple, raw []byte) error {
	_, err := d.conn.WriteToUDPAddrPort(raw, tuple.Remote)
	return err
}

// Serve runs until ctx is done or the socket errors. It is the only
// goroutine that ever reads or writes d.table.
func (d *Demux) Serve(ctx context.Context) error {
	readCtx, cancelRead := context.WithCancel(ctx)
	defer cancelRead()
	go d.readLoop(readCtx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-d.readErr:
			return err
		case dg := <-d.datagrams:
			d.handleDatagram(dg.raw, dg.remote)
		case reg := <-d.register:
			d.admit(reg.tuple, reg.c, nil)
		case tuple := <-d.evict:
			if _, ok := d.table[tuple]; ok {
				delete(d.table, tuple)
				d.log.Debug("evicted connection", slog.String("tuple", tuple.String()))
			}
		}
	}
}

// readLoop is the only goroutine that calls ReadFromUDPAddrPort. It never
// touches the connection table.
func (d *Demux) readLoop(ctx context.Context) {
	buf := make([]byte, 1<<16)
	for {
		n, remote, err := d.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() == nil {
				d.readErr <- err
			}
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case d.datagrams <- datagram{raw: cp, remote: remote}:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Demux) handleDatagram(raw []byte, remote netip.AddrPort) {
	f, err := segment.Decode(raw)
	if err != nil {
		d.dropped("short")
		d.log.Debug("dropping datagram", slog.Any("err", err), slog.String("remote", remote.String()))
		return
	}
	if !f.Validate() {
		d.dropped("checksum")
		d.log.Debug("dropping datagram", slog.Any("err", errBadChecksum), slog.String("remote", remote.String()))
		return
	}

	local := d.conn.LocalAddr().(*net.UDPAddr).AddrPort()
	tuple := rudp.Tuple{Local: local, Remote: remote}

	c, ok := d.table[tuple]
	if !ok {
		if !f.Get(segment.FlagSYN) {
			d.dropped("no-such-connection")
			return
		}
		c = d.accept(tuple)
	}

	select {
	case c.Events() <- ccb.Receive(f):
	case <-c.Done():
		delete(d.table, tuple)
		d.dropped("stale-connection")
	}
}

// accept constructs and admits a new CCB for an inbound SYN to an unknown
// tuple, the server role in the handshake, and starts the configured
// application handler against it.
func (d *Demux) accept(tuple rudp.Tuple) *ccb.CCB {
	c := ccb.New(ccb.Config{
		Tuple:          tuple,
		WindowSize:     d.cfg.WindowSize,
		MaxPayloadSize: d.cfg.MaxPayloadSize,
		Timeout:        d.cfg.Timeout,
		Log:            d.cfg.Log,
	}, d)
	return d.admit(tuple, c, d.cfg.Accept)
}

// admit registers c under tuple, starts its event loop, and arranges for
// its eventual eviction once it closes. Eviction itself happens back on
// Serve's goroutine via d.evict, never directly from the watcher
// goroutine spawned here. Only called from the Serve goroutine.
func (d *Demux) admit(tuple rudp.Tuple, c *ccb.CCB, accept AcceptFunc) *ccb.CCB {
	d.table[tuple] = c
	d.log.Debug("new connection", slog.String("tuple", tuple.String()), slog.String("trace_id", c.TraceID()))
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.ConnectionsActive.Inc()
		d.cfg.Metrics.ConnectionsTotal.Inc()
	}

	go c.Run()
	go func() {
		<-c.Done()
		if d.cfg.Metrics != nil {
			d.cfg.Metrics.ConnectionsActive.Dec()
			s := c.Stats.Snapshot()
			d.cfg.Metrics.SegmentsSent.Add(float64(s.SegmentsSent))
			d.cfg.Metrics.SegmentsReceived.Add(float64(s.SegmentsReceived))
			d.cfg.Metrics.Retransmits.Add(float64(s.Retransmits))
			d.cfg.Metrics.DupAckEvents.Add(float64(s.DupAckEvents))
		}
		d.evict <- tuple
	}()
	if accept != nil {
		go accept(c, tuple)
	}
	return c
}

func (d *Demux) dropped(reason string) {
	if d.cfg.Metrics != nil {
		d.cfg.Metrics.SegmentsDropped.WithLabelValues(reason).Inc()
	}
}

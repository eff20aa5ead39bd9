package ccb

import (
	"net/netip"
	"testing"
	"time"

	"rudp"
	"rudp/segment"
)

// loopbackTransport wires two CCBs directly together, decoding and
// re-injecting segments as Receive events, standing in for a
// demultiplexer + UDP socket in these tests.
type loopbackTransport struct {
	peer *CCB
}

func (t *loopbackTransport) SendTo(_ rudp.Tuple, raw []byte) error {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	f, err := segment.Decode(cp)
	if err != nil {
		return err
	}
	t.peer.Events() <- Receive(f)
	return nil
}

func addr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func newPair(t *testing.T) (server, client *CCB) {
	t.Helper()
	serverTuple := rudp.Tuple{Local: addr(9000), Remote: addr(9001)}
	clientTuple := rudp.Tuple{Local: addr(9001), Remote: addr(9000)}

	server = New(Config{Tuple: serverTuple, Timeout: 50 * time.Millisecond}, nil)
	client = New(Config{Tuple: clientTuple, Timeout: 50 * time.Millisecond}, nil)
	server.transport = &loopbackTransport{peer: client}
	client.transport = &loopbackTransport{peer: server}

	go server.Run()
	go client.Run()
	return server, client
}

func TestHandshake(t *testing.T) {
	server, client := newPair(t)
	client.Events() <- SendSyn()
	waitEstab(t, server, client)
}

func TestDataTransfer(t *testing.T) {
	server, client := newPair(t)
	client.Events() <- SendSyn()

	waitEstab(t, server, client)

	msg := []byte("hello world")
	server.Events() <- Send(msg)

	got := make([]byte, 0, len(msg))
	deadline := time.After(3 * time.Second)
	for len(got) < len(msg) {
		select {
		case chunk := <-client.Output():
			got = append(got, chunk...)
		case <-deadline:
			t.Fatalf("did not receive full message, got %q", got)
		}
	}
	if string(got) != string(msg) {
		t.Fatalf("got %q want %q", got, msg)
	}
}

func TestGracefulClose(t *testing.T) {
	server, client := newPair(t)
	client.Events() <- SendSyn()
	waitEstab(t, server, client)

	client.Events() <- Close()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("close did not propagate: server=%v client=%v", server.State(), client.State())
		default:
		}
		time.Sleep(2 * time.Millisecond)
		if server.State() == StateClosed && client.State() == StateClosed {
			return
		}
	}
}

func waitEstab(t *testing.T, server, client *CCB) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("did not reach ESTAB: server=%v client=%v", server.State(), client.State())
		default:
		}
		time.Sleep(2 * time.Millisecond)
		if server.State() == StateEstab && client.State() == StateEstab {
			return
		}
	}
}

func TestInWrappedRangeWraps(t *testing.T) {
	if !rudp.InWrappedRange(rudp.Seq(0xFFFFFFFE), rudp.Seq(2), rudp.Seq(0xFFFFFFFF)) {
		t.Fatalf("expected wraparound membership to hold")
	}
	if rudp.InWrappedRange(rudp.Seq(0xFFFFFFFE), rudp.Seq(2), rudp.Seq(3)) {
		t.Fatalf("expected 3 to fall outside the wrapped range")
	}
}

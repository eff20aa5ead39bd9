package appio

import (
	"net/netip"
	"testing"
	"time"

	"rudp"
	"rudp/ccb"
	"rudp/segment"
)

// loopbackTransport feeds encoded segments straight into a peer CCB's
// event channel instead of going over a socket. peer is set once both
// ends of a pair exist, after construction.
type loopbackTransport struct{ peer *ccb.CCB }

func (t *loopbackTransport) SendTo(_ rudp.Tuple, raw []byte) error {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	f, err := segment.Decode(cp)
	if err != nil {
		return err
	}
	t.peer.Events() <- ccb.Receive(f)
	return nil
}

func addr(port uint16) netip.AddrPort {
	return netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), port)
}

func newEstablishedPair(t *testing.T) (server, client *ccb.CCB) {
	t.Helper()
	serverTuple := rudp.Tuple{Local: addr(9100), Remote: addr(9101)}
	clientTuple := rudp.Tuple{Local: addr(9101), Remote: addr(9100)}

	serverTransport := &loopbackTransport{}
	clientTransport := &loopbackTransport{}
	server = ccb.New(ccb.Config{Tuple: serverTuple, Timeout: 50 * time.Millisecond}, serverTransport)
	client = ccb.New(ccb.Config{Tuple: clientTuple, Timeout: 50 * time.Millisecond}, clientTransport)
	serverTransport.peer = client
	clientTransport.peer = server

	go server.Run()
	go client.Run()
	client.Events() <- ccb.SendSyn()

	deadline := time.After(2 * time.Second)
	for server.State() != ccb.StateEstab || client.State() != ccb.StateEstab {
		select {
		case <-deadline:
			t.Fatalf("handshake did not complete")
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}
	return server, client
}

func TestWriteReadMessageRoundTrip(t *testing.T) {
	server, client := newEstablishedPair(t)
	sc := New(server)
	cc := New(client)

	if err := sc.WriteMessage([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	got, err := cc.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestReadMessageAfterClose(t *testing.T) {
	server, client := newEstablishedPair(t)
	sc := New(server)
	cc := New(client)

	server.Events() <- ccb.Close()
	deadline := time.After(2 * time.Second)
	for server.State() != ccb.StateClosed {
		select {
		case <-deadline:
			t.Fatal("close never completed")
		default:
			time.Sleep(2 * time.Millisecond)
		}
	}

	if _, err := cc.ReadMessage(); err == nil {
		t.Fatal("expected error reading from a closed connection with no pending data")
	}
	_ = sc
}

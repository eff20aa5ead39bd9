package echofile

import (
	"net/netip"
	"os"
	"testing"
	"time"

	"rudp"
	"rudp/appio"
	"rudp/ccb"
	"rudp/segment"
)

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

func TestServeSendsExistingContentsThenEchoes(t *testing.T) {
	dir := t.TempDir()

	serverTuple := rudp.Tuple{Local: addr(9200), Remote: addr(9201)}
	clientTuple := rudp.Tuple{Local: addr(9201), Remote: addr(9200)}

	serverTransport := &loopbackTransport{}
	clientTransport := &loopbackTransport{}
	server := ccb.New(ccb.Config{Tuple: serverTuple, Timeout: 50 * time.Millisecond}, serverTransport)
	client := ccb.New(ccb.Config{Tuple: clientTuple, Timeout: 50 * time.Millisecond}, clientTransport)
	serverTransport.peer = client
	clientTransport.peer = server

	// Seed the backing file so the first message the client receives
	// should be this prior content, not an echo.
	path := filepath(dir, serverTuple)
	if err := os.WriteFile(path, []byte("seed"), 0o644); err != nil {
		t.Fatalf("seeding file: %v", err)
	}

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

	go Serve(server, serverTuple, dir, nil)

	cc := appio.New(client)

	first, err := cc.ReadMessage()
	if err != nil {
		t.Fatalf("reading seeded contents: %v", err)
	}
	if string(first) != "seed" {
		t.Fatalf("got %q want %q", first, "seed")
	}

	if err := cc.WriteMessage([]byte("hi")); err != nil {
		t.Fatalf("writing message: %v", err)
	}
	echoed, err := cc.ReadMessage()
	if err != nil {
		t.Fatalf("reading echo: %v", err)
	}
	if string(echoed) != "hi" {
		t.Fatalf("got %q want %q", echoed, "hi")
	}

	appended, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading backing file: %v", err)
	}
	if string(appended) != "seedhi" {
		t.Fatalf("got %q want %q", appended, "seedhi")
	}
}

func filepath(dir string, tuple rudp.Tuple) string {
	return dir + "/" + filename(tuple)
}

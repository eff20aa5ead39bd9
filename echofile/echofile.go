// Package echofile implements the reference server application: for each
// new connection it opens (creating if absent) a file named after the
// connection's tuple, sends the file's current contents to the peer, then
// appends and echoes back every further message it receives until the
// connection closes. Ported from original_source/src/lib.rs's
// tuple_to_filename/get_file/run_server_tcb.
package echofile

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"rudp"
	"rudp/appio"
	"rudp/ccb"
)

// filename derives a deterministic, collision-resistant filename from a
// connection's tuple: destination first, so a server listening on one
// fixed port groups files by which client reached it.
func filename(t rudp.Tuple) string {
	return t.Local.Addr().String() + "." + itoa(t.Local.Port()) + "." +
		t.Remote.Addr().String() + "." + itoa(t.Remote.Port())
}

func itoa(v uint16) string {
	if v == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// Serve runs the echo-file application against one established connection
// until it closes or the file cannot be opened. It is meant to be run in
// its own goroutine, one per accepted connection, alongside the CCB's own
// Run goroutine.
func Serve(c *ccb.CCB, tuple rudp.Tuple, dir string, log *slog.Logger) {
	path := filepath.Join(dir, filename(tuple))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		if log != nil {
			log.Error("echofile: cannot open backing file", slog.String("path", path), slog.Any("err", err))
		}
		c.Events() <- ccb.Close()
		return
	}
	defer f.Close()

	conn := appio.New(c)

	existing, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		existing = nil
	}
	if err := conn.WriteMessage(existing); err != nil {
		return
	}

	for {
		msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if _, err := f.Write(msg); err != nil {
			if log != nil {
				log.Error("echofile: write failed", slog.String("path", path), slog.Any("err", err))
			}
			return
		}
		if err := conn.WriteMessage(msg); err != nil {
			return
		}
	}
}

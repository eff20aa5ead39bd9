//go:build linux

// Package sockopt tunes the shared UDP socket's kernel buffers before the
// demultiplexer's read loop starts, the way a production datagram listener
// handling many connections' worth of traffic needs to: a default receive
// buffer is routinely too small for a busy four-tuple fan-in.
package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// Control is passed as a net.ListenConfig.Control func. It enables
// SO_REUSEADDR (so a restarted server can rebind promptly) and raises
// SO_RCVBUF, returning the first setsockopt error encountered, if any.
func Control(_, _ string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			serr = err
			return
		}
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, 1<<20); err != nil {
			serr = err
			return
		}
	})
	if err != nil {
		return err
	}
	return serr
}

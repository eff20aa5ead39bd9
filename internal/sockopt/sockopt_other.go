//go:build !linux

package sockopt

import "syscall"

// Control is a no-op outside Linux; the SO_RCVBUF/SO_REUSEADDR tuning in
// sockopt_linux.go is a kernel-buffer optimization, not a correctness
// requirement.
func Control(_, _ string, _ syscall.RawConn) error { return nil }

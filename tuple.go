package rudp

import "net/netip"

// Tuple identifies a connection by its (local, remote) address pair.
// Tuple is comparable and is used directly as a map key by the
// demultiplexer, matching lneto's use of net/netip throughout
// (tcp.Conn.OpenActive, examples/tcpclient).
type Tuple struct {
	Local  netip.AddrPort
	Remote netip.AddrPort
}

func (t Tuple) String() string {
	return t.Local.String() + "->" + t.Remote.String()
}

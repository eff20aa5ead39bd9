package ccb

// State is the connection control block's position in the handshake/close
// state machine. Names and transitions follow original_source/src/tcp.rs's
// TCBState, trimmed to five states covering connect, transfer and close
// (no TIME_WAIT, no half-close substates).
type State int

const (
	StateListen State = iota
	StateSynSent
	StateSynRecd
	StateEstab
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN_SENT"
	case StateSynRecd:
		return "SYN_RECD"
	case StateEstab:
		return "ESTAB"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

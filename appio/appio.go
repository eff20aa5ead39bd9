// Package appio implements the length-prefixed message framing that sits
// on top of a raw CCB byte stream, the same framing
// original_source/src/lib.rs's send_str/recv_str use: a 4-byte big-endian
// length prefix followed by that many bytes of message body.
package appio

import (
	"encoding/binary"
	"errors"
	"io"

	"rudp/ccb"
	"rudp/internal/ring"
)

// LengthPrefixLen is the size, in bytes, of the prefix preceding every
// framed message.
const LengthPrefixLen = 4

// ErrClosed is returned by WriteMessage once the underlying CCB's Done
// channel has closed, and by ReadMessage once Done closes before a full
// message prefix and body were received.
var ErrClosed = errors.New("appio: connection closed mid-message")

// Conn wraps a CCB's raw byte channels with message framing.
type Conn struct {
	c   *ccb.CCB
	buf ring.Queue
}

// New wraps c for length-prefixed message I/O.
func New(c *ccb.CCB) *Conn { return &Conn{c: c} }

// WriteMessage queues a length-prefixed message for transmission. It
// returns as soon as the bytes are handed to the CCB's event queue, before
// they are necessarily on the wire.
func (conn *Conn) WriteMessage(msg []byte) error {
	framed := make([]byte, LengthPrefixLen+len(msg))
	binary.BigEndian.PutUint32(framed, uint32(len(msg)))
	copy(framed[LengthPrefixLen:], msg)
	select {
	case conn.c.Events() <- ccb.Send(framed):
		return nil
	case <-conn.c.Done():
		return ErrClosed
	}
}

// ReadMessage blocks until one complete length-prefixed message has been
// received, or the connection closes first.
func (conn *Conn) ReadMessage() ([]byte, error) {
	header, err := conn.readExactly(LengthPrefixLen)
	if err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header)
	body, err := conn.readExactly(int(size))
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (conn *Conn) readExactly(n int) ([]byte, error) {
	for conn.buf.Len() < n {
		select {
		case chunk, ok := <-conn.c.Output():
			if !ok {
				return nil, io.ErrUnexpectedEOF
			}
			conn.buf.PushBack(chunk)
		case <-conn.c.Done():
			// Chunks delivered just before Done closed can still sit in
			// Output's buffer; take them before giving up.
			select {
			case chunk, ok := <-conn.c.Output():
				if ok {
					conn.buf.PushBack(chunk)
					continue
				}
			default:
			}
			if conn.buf.Len() < n {
				return nil, ErrClosed
			}
		}
	}
	return conn.buf.PopFront(n), nil
}

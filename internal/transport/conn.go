package transport

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"clocksim/internal/wire"
)

// Direction tells which side of the handshake created a connection.
type Direction int

const (
	// Outbound connections were dialed by this node.
	Outbound Direction = iota
	// Inbound connections were accepted by this node.
	Inbound
)

// String returns the string representation of Direction.
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "outbound"
	case Inbound:
		return "inbound"
	default:
		return "unknown"
	}
}

// Conn is a connection handle owned by exactly one node.
// Send and Read may run concurrently; Close is idempotent.
type Conn struct {
	conn      net.Conn
	peer      string
	dir       Direction
	closeOnce sync.Once
	closed    atomic.Bool
}

// NewConn wraps an established connection to the named peer.
func NewConn(c net.Conn, peer string, dir Direction) *Conn {
	return &Conn{
		conn: c,
		peer: peer,
		dir:  dir,
	}
}

// Peer returns the presentable name of the remote node.
func (c *Conn) Peer() string {
	return c.peer
}

// Direction returns whether this node dialed or accepted the connection.
func (c *Conn) Direction() Direction {
	return c.dir
}

// RemoteAddr returns the remote network address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Send writes the encoded message. On failure the connection is closed and a
// *SendError is returned. There is no write timeout in steady state.
func (c *Conn) Send(msg wire.Message) error {
	if _, err := c.conn.Write(msg.Encode()); err != nil {
		c.Close()
		return &SendError{Peer: c.peer, Err: err}
	}
	return nil
}

// Read performs one blocking read.
func (c *Conn) Read(buf []byte) (int, error) {
	return c.conn.Read(buf)
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}

// Close shuts the connection down. Errors from an already broken socket are
// ignored and repeated calls are no-ops.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if tcp, ok := c.conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
		_ = c.conn.Close()
	})
	return nil
}

// interruptRead unblocks an in-flight Read without closing the socket.
func (c *Conn) interruptRead() {
	_ = c.conn.SetReadDeadline(time.Now())
}

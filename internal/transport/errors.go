package transport

import (
	"fmt"
)

// ConnectionError reports a failed listen, accept or dial.
// It is fatal for the node; nothing is retried.
type ConnectionError struct {
	Op   string // "listen", "accept" or "dial"
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SendError reports a write on a broken connection.
// The connection is already closed when it is returned.
type SendError struct {
	Peer string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("failed to send to %s: %v", e.Peer, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ReceiveError reports a read failure on a connection. The listener that hit
// it closes the connection and exits; the node keeps running without it.
type ReceiveError struct {
	Peer string
	Err  error
}

func (e *ReceiveError) Error() string {
	return fmt.Sprintf("failed to receive from %s: %v", e.Peer, e.Err)
}

func (e *ReceiveError) Unwrap() error {
	return e.Err
}

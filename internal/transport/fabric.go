package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"clocksim/internal/ring"
)

// Link holds the two long-lived connections of a node.
type Link struct {
	Inbound  *Conn
	Outbound *Conn
}

// Close closes both connections, tolerating either being broken already.
func (l *Link) Close() {
	if l.Inbound != nil {
		l.Inbound.Close()
	}
	if l.Outbound != nil {
		l.Outbound.Close()
	}
}

// EstablishOptions configures the handshake of one ring node.
type EstablishOptions struct {
	Ring           *ring.Ring
	Index          int
	SettleDelay    time.Duration
	ConnectTimeout time.Duration
	Logger         *logrus.Entry
}

// PeerName returns the presentable label of a ring position.
func PeerName(index int) string {
	return fmt.Sprintf("VM%d", index)
}

// Bind starts listening on the node's own address.
func Bind(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "listen", Addr: addr, Err: err}
	}
	return ln, nil
}

// Accept waits for exactly one inbound connection. The wait is bounded by
// timeout and by ctx.
func Accept(ctx context.Context, ln net.Listener, timeout time.Duration) (net.Conn, error) {
	if dl, ok := ln.(interface{ SetDeadline(time.Time) error }); ok && timeout > 0 {
		_ = dl.SetDeadline(time.Now().Add(timeout))
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &ConnectionError{Op: "accept", Addr: ln.Addr().String(), Err: err}
	}
	return conn, nil
}

// Dial connects to a peer that must already be listening. A refused
// connection fails immediately; it is not retried.
func Dial(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	return conn, nil
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// Establish performs the listen-then-dial handshake.
//
// The node binds its port and starts accepting in the background, waits the
// settle delay so every peer is listening, dials its outbound peer and only
// then waits for the inbound accept. Doing the accept first would let every
// node block on a peer that never listens.
func Establish(ctx context.Context, opts EstablishOptions) (*Link, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	self, ok := opts.Ring.Node(opts.Index)
	if !ok {
		return nil, fmt.Errorf("index %d not in ring of %d", opts.Index, opts.Ring.Size())
	}
	out := opts.Ring.Outbound(opts.Index)
	in := opts.Ring.Inbound(opts.Index)

	ln, err := Bind(self.Addr)
	if err != nil {
		return nil, err
	}

	acceptCh := make(chan acceptResult, 1)
	go func() {
		conn, err := Accept(ctx, ln, opts.ConnectTimeout)
		// Only one inbound peer exists, stop listening once it arrived.
		ln.Close()
		acceptCh <- acceptResult{conn: conn, err: err}
	}()
	log.WithField("addr", self.Addr).Info("Listening")

	if err := sleepCtx(ctx, opts.SettleDelay); err != nil {
		ln.Close()
		<-acceptCh
		return nil, &ConnectionError{Op: "dial", Addr: out.Addr, Err: err}
	}

	outConn, err := Dial(ctx, out.Addr, opts.ConnectTimeout)
	if err != nil {
		log.WithError(err).WithField("peer", PeerName(out.Index)).Error("Failed to connect")
		ln.Close()
		if res := <-acceptCh; res.conn != nil {
			res.conn.Close()
		}
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"peer": PeerName(out.Index),
		"addr": out.Addr,
	}).Info("Connected to outbound peer")

	res := <-acceptCh
	if res.err != nil {
		log.WithError(res.err).WithField("peer", PeerName(in.Index)).Error("Failed to accept")
		outConn.Close()
		return nil, res.err
	}
	log.WithFields(logrus.Fields{
		"peer": PeerName(in.Index),
		"addr": res.conn.RemoteAddr().String(),
	}).Info("Accepted inbound peer")

	return &Link{
		Inbound:  NewConn(res.conn, PeerName(in.Index), Inbound),
		Outbound: NewConn(outConn, PeerName(out.Index), Outbound),
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package transport

import (
	"context"

	"github.com/sirupsen/logrus"

	"clocksim/internal/mailbox"
	"clocksim/internal/wire"
)

// Listen copies every non-empty read from conn into q until ctx is done or
// the connection fails. A cancelled ctx unblocks the in-flight read and
// returns nil. A read error closes conn and returns a *ReceiveError.
func Listen(ctx context.Context, conn *Conn, q mailbox.Queue, log *logrus.Entry) error {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	stop := context.AfterFunc(ctx, conn.interruptRead)
	defer stop()

	buf := make([]byte, wire.MaxReadSize)
	for ctx.Err() == nil {
		n, err := conn.Read(buf)
		if n > 0 {
			entry := string(buf[:n])
			q.Put(entry)
			log.WithFields(logrus.Fields{
				"peer": conn.Peer(),
				"msg":  entry,
			}).Debug("Pulled message")
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			conn.Close()
			return &ReceiveError{Peer: conn.Peer(), Err: err}
		}
	}
	return nil
}

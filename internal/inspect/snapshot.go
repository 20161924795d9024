package inspect

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

// Snapshot is the observable state of a node at one instant.
type Snapshot struct {
	Name       string
	Index      int
	TickRate   int
	State      string
	Clock      uint64
	QueueDepth int
	Ticks      int64
	Received   int64
	Sent       int64
	Broadcasts int64
	Internal   int64
	Overruns   int64
	Malformed  int64
	Uptime     time.Duration
}

// Source provides snapshots of a node.
type Source interface {
	Snapshot() Snapshot
}

// toProto converts the snapshot into a Struct message.
func (s Snapshot) toProto() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"name":           s.Name,
		"index":          s.Index,
		"tick_rate":      s.TickRate,
		"state":          s.State,
		"clock":          s.Clock,
		"queue_depth":    s.QueueDepth,
		"ticks":          s.Ticks,
		"received":       s.Received,
		"sent":           s.Sent,
		"broadcasts":     s.Broadcasts,
		"internal":       s.Internal,
		"overruns":       s.Overruns,
		"malformed":      s.Malformed,
		"uptime_seconds": s.Uptime.Seconds(),
	})
}

// snapshotFromProto converts a Struct message back into a Snapshot.
func snapshotFromProto(pb *structpb.Struct) (Snapshot, error) {
	if pb == nil {
		return Snapshot{}, fmt.Errorf("empty snapshot")
	}
	f := pb.GetFields()
	num := func(key string) float64 { return f[key].GetNumberValue() }
	return Snapshot{
		Name:       f["name"].GetStringValue(),
		Index:      int(num("index")),
		TickRate:   int(num("tick_rate")),
		State:      f["state"].GetStringValue(),
		Clock:      uint64(num("clock")),
		QueueDepth: int(num("queue_depth")),
		Ticks:      int64(num("ticks")),
		Received:   int64(num("received")),
		Sent:       int64(num("sent")),
		Broadcasts: int64(num("broadcasts")),
		Internal:   int64(num("internal")),
		Overruns:   int64(num("overruns")),
		Malformed:  int64(num("malformed")),
		Uptime:     time.Duration(num("uptime_seconds") * float64(time.Second)),
	}, nil
}

package events

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind classifies what a tick did.
type Kind string

const (
	KindReceived  Kind = "received"
	KindSent      Kind = "sent"
	KindBroadcast Kind = "broadcast"
	KindInternal  Kind = "internal"
)

// Event is the record emitted for one logical event of a node.
// A tick that drained a message emits a received event followed by the
// event of its action.
type Event struct {
	Node       string
	Tick       int
	Kind       Kind
	Clock      uint64        // clock value when the event was recorded
	QueueDepth int           // entries left in the mailbox, received events only
	Elapsed    time.Duration // wall-clock time since the run started
	Message    string        // raw received entry or sent payload
	Peers      []string      // destinations of sent and broadcast events
}

// Sink receives event records.
type Sink interface {
	Record(ev Event)
}

// LogSink writes every event as a structured logrus entry.
type LogSink struct {
	log *logrus.Entry
}

// NewLogSink creates a sink backed by the given logger.
func NewLogSink(log *logrus.Entry) *LogSink {
	return &LogSink{log: log}
}

// Record logs the event at info level.
func (s *LogSink) Record(ev Event) {
	fields := logrus.Fields{
		"tick":    ev.Tick,
		"kind":    string(ev.Kind),
		"clock":   ev.Clock,
		"elapsed": ev.Elapsed.Round(time.Millisecond).Seconds(),
	}
	if ev.Message != "" {
		fields["payload"] = ev.Message
	}
	if len(ev.Peers) > 0 {
		fields["peer"] = strings.Join(ev.Peers, ",")
	}

	var msg string
	switch ev.Kind {
	case KindReceived:
		fields["queue_depth"] = ev.QueueDepth
		msg = "Received message"
	case KindSent:
		msg = "Sent message"
	case KindBroadcast:
		msg = "Broadcast message"
	default:
		msg = "Internal event"
	}
	s.log.WithFields(fields).Info(msg)
}

// Recorder keeps events in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends the event.
func (r *Recorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of the given kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

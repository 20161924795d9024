package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Separator splits the sender label from the clock value.
const Separator = ":"

// MaxReadSize is the number of bytes a listener reads per call.
const MaxReadSize = 1024

// ErrMalformed is returned when a received entry carries no parseable clock.
var ErrMalformed = errors.New("malformed message")

// Message is a timestamped message from one node to a neighbour.
type Message struct {
	Sender string
	Time   uint64
}

// Encode returns the wire form of the message.
func (m Message) Encode() []byte {
	return []byte(m.String())
}

// String returns "<sender>:<time>".
func (m Message) String() string {
	return m.Sender + Separator + strconv.FormatUint(m.Time, 10)
}

// Decode parses a raw entry into a Message.
// The sender is everything before the last separator.
func Decode(raw string) (Message, error) {
	idx := strings.LastIndex(raw, Separator)
	if idx < 0 {
		return Message{}, fmt.Errorf("%w: no separator in %q", ErrMalformed, raw)
	}
	t, err := ParseClock(raw)
	if err != nil {
		return Message{}, err
	}
	return Message{Sender: raw[:idx], Time: t}, nil
}

// ParseClock extracts the clock value after the last separator.
// An entry without a separator is parsed whole, which matches how a
// bare clock value would be read.
func ParseClock(raw string) (uint64, error) {
	s := raw
	if idx := strings.LastIndex(raw, Separator); idx >= 0 {
		s = raw[idx+len(Separator):]
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty clock in %q", ErrMalformed, raw)
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformed, raw, err)
	}
	return v, nil
}

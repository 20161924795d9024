package engine

import (
	"encoding/binary"
	"math/rand"
	"sync"

	"golang.org/x/crypto/sha3"
)

// Action is what a tick does after the receive check.
type Action int

const (
	// SendOutbound sends to the peer this node dialed. Probability 1/10.
	SendOutbound Action = iota
	// SendInbound sends back to the peer that dialed this node. Probability 1/10.
	SendInbound
	// Broadcast sends to both peers concurrently. Probability 1/10.
	Broadcast
	// Internal touches no connection. Probability 7/10.
	Internal
)

// String returns the string representation of Action.
func (a Action) String() string {
	switch a {
	case SendOutbound:
		return "send-outbound"
	case SendInbound:
		return "send-inbound"
	case Broadcast:
		return "broadcast"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// ActionFromDraw maps a uniform draw in [1, 10] to an action.
func ActionFromDraw(n int) Action {
	switch n {
	case 1:
		return SendOutbound
	case 2:
		return SendInbound
	case 3:
		return Broadcast
	default:
		return Internal
	}
}

// Selector picks the action of each tick.
type Selector interface {
	Next() Action
}

// RandomSelector draws actions uniformly from [1, 10].
type RandomSelector struct {
	rng *rand.Rand
}

// NewRandomSelector creates a selector seeded with seed.
func NewRandomSelector(seed int64) *RandomSelector {
	return &RandomSelector{rng: rand.New(rand.NewSource(seed))}
}

// Next returns the action for the next tick.
func (s *RandomSelector) Next() Action {
	return ActionFromDraw(s.rng.Intn(10) + 1)
}

// DeriveSeed returns a per-node seed from an experiment-wide seed, so one
// seed reproduces every node's action sequence without the nodes sharing it.
func DeriveSeed(base int64, index int) int64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(base))
	binary.BigEndian.PutUint64(buf[8:], uint64(index))
	h := sha3.Sum256(buf[:])
	return int64(binary.BigEndian.Uint64(h[:8]))
}

// ScriptedSelector replays a fixed sequence of actions and then returns
// Internal forever.
type ScriptedSelector struct {
	mu      sync.Mutex
	actions []Action
	next    int
}

// Script creates a selector that replays actions in order.
func Script(actions ...Action) *ScriptedSelector {
	return &ScriptedSelector{actions: actions}
}

// Next returns the next scripted action.
func (s *ScriptedSelector) Next() Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.actions) {
		return Internal
	}
	a := s.actions[s.next]
	s.next++
	return a
}

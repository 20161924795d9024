package config

import (
	"fmt"
	"strings"
	"time"

	"clocksim/internal/ring"
)

const (
	// DefaultDuration is how long a node runs its event loop.
	DefaultDuration = 60 * time.Second
	// DefaultSettleDelay separates starting the accept from dialing out, so
	// every peer is listening before anyone connects.
	DefaultSettleDelay = 3 * time.Second
	// DefaultConnectTimeout bounds both the outbound dial and the inbound accept.
	DefaultConnectTimeout = 5 * time.Minute
	// MaxTickRate keeps the tick period well above timer resolution.
	MaxTickRate = 1000
)

// Log formats understood by events.NewLogger.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Node holds the configuration of a single ring member.
type Node struct {
	Index          int
	ListenAddr     string
	Peers          []string // every node address in ring order, self included
	TickRate       int      // ticks per wall-clock second
	Duration       time.Duration
	SettleDelay    time.Duration
	ConnectTimeout time.Duration
	InspectAddr    string // optional gRPC inspection endpoint
	Seed           int64  // 0 means seed from the wall clock
	LogDir         string // optional; empty logs to stderr only
	LogFormat      string
}

// Name returns the presentable node name used as the message sender label.
func (c *Node) Name() string {
	return NodeName(c.Index, c.TickRate)
}

// NodeName formats the name of the node at index running at tickRate.
func NodeName(index, tickRate int) string {
	return fmt.Sprintf("VM%d_cr%d", index, tickRate)
}

// TotalTicks returns duration × tick rate, truncated to whole ticks.
func (c *Node) TotalTicks() int {
	return int(int64(c.Duration) * int64(c.TickRate) / int64(time.Second))
}

// TickPeriod returns the wall-clock budget of a single tick.
func (c *Node) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}

// ApplyDefaults fills zero-valued durations and the log format.
func (c *Node) ApplyDefaults() {
	if c.Duration == 0 {
		c.Duration = DefaultDuration
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.LogFormat == "" {
		c.LogFormat = LogFormatText
	}
}

// Validate checks the configuration before anything binds a port.
func (c *Node) Validate() error {
	if len(c.Peers) < ring.MinNodes {
		return fmt.Errorf("need at least %d peers, got %d", ring.MinNodes, len(c.Peers))
	}
	if c.Index < 0 || c.Index >= len(c.Peers) {
		return fmt.Errorf("index %d out of range for %d peers", c.Index, len(c.Peers))
	}
	if c.ListenAddr == "" {
		c.ListenAddr = c.Peers[c.Index]
	}
	if c.ListenAddr != c.Peers[c.Index] {
		return fmt.Errorf("listen address %s does not match peer %d (%s)", c.ListenAddr, c.Index, c.Peers[c.Index])
	}
	if c.TickRate <= 0 || c.TickRate > MaxTickRate {
		return fmt.Errorf("tick rate must be in [1, %d], got %d", MaxTickRate, c.TickRate)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration cannot be negative: %s", c.Duration)
	}
	if c.SettleDelay < 0 || c.ConnectTimeout < 0 {
		return fmt.Errorf("settle delay and connect timeout cannot be negative")
	}
	switch c.LogFormat {
	case "", LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// BuildRing converts the peer list into a ring.
func (c *Node) BuildRing() (*ring.Ring, error) {
	return ring.NewRing(c.Peers)
}

// ParsePeers parses a comma-separated list of addresses in ring order:
// "127.0.0.1:4096,127.0.0.1:4097,127.0.0.1:4098"
func ParsePeers(peersStr string) ([]string, error) {
	if peersStr == "" {
		return []string{}, nil
	}

	parts := strings.Split(peersStr, ",")
	peers := make([]string, 0, len(parts))

	for _, part := range parts {
		addr := strings.TrimSpace(part)
		if addr == "" {
			continue
		}
		if !strings.Contains(addr, ":") {
			return nil, fmt.Errorf("invalid peer address: %s (expected host:port)", addr)
		}
		peers = append(peers, addr)
	}

	return peers, nil
}

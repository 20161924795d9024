package ring

import (
	"errors"
	"fmt"
)

// MinNodes is the smallest ring that gives every node two distinct handles.
const MinNodes = 2

// ErrTooSmall is returned when a ring has fewer than MinNodes members.
var ErrTooSmall = errors.New("ring needs at least 2 nodes")

// Node represents a single position on the ring.
type Node struct {
	Index int
	Addr  string
}

// Ring is an immutable, ordered list of node addresses.
type Ring struct {
	nodes []Node
}

// NewRing builds a ring from addresses given in ring order.
// Addresses must be non-empty and unique.
func NewRing(addrs []string) (*Ring, error) {
	if len(addrs) < MinNodes {
		return nil, fmt.Errorf("%w: got %d", ErrTooSmall, len(addrs))
	}

	seen := make(map[string]int, len(addrs))
	nodes := make([]Node, 0, len(addrs))
	for i, addr := range addrs {
		if addr == "" {
			return nil, fmt.Errorf("empty address at ring position %d", i)
		}
		if prev, exists := seen[addr]; exists {
			return nil, fmt.Errorf("duplicate address %s at ring positions %d and %d", addr, prev, i)
		}
		seen[addr] = i
		nodes = append(nodes, Node{Index: i, Addr: addr})
	}

	return &Ring{nodes: nodes}, nil
}

// Size returns the number of nodes in the ring.
func (r *Ring) Size() int {
	return len(r.nodes)
}

// Node returns the node at the given index.
// Returns (Node, true) if found, (Node{}, false) if the index is out of range.
func (r *Ring) Node(index int) (Node, bool) {
	if index < 0 || index >= len(r.nodes) {
		return Node{}, false
	}
	return r.nodes[index], true
}

// Outbound returns the peer that the node at index dials.
func (r *Ring) Outbound(index int) Node {
	return r.nodes[OutboundIndex(index, len(r.nodes))]
}

// Inbound returns the peer that dials into the node at index.
func (r *Ring) Inbound(index int) Node {
	return r.nodes[InboundIndex(index, len(r.nodes))]
}

// GetNodes returns a copy of all nodes in ring order.
func (r *Ring) GetNodes() []Node {
	nodes := make([]Node, len(r.nodes))
	copy(nodes, r.nodes)
	return nodes
}

// OutboundIndex returns (index+1) mod n.
func OutboundIndex(index, n int) int {
	return mod(index+1, n)
}

// InboundIndex returns (index-1) mod n, always in [0, n).
func InboundIndex(index, n int) int {
	return mod(index-1, n)
}

func mod(a, n int) int {
	m := a % n
	if m < 0 {
		m += n
	}
	return m
}

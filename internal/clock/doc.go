// Package clock provides the Lamport logical clock kept by every node.
// Local events advance the clock by one and received timestamps are merged
// with the max-rule, giving a partial causal ordering of events across the
// ring.
package clock

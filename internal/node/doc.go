// Package node is the lifecycle controller of a single ring member.
//
// A node moves through unconnected, connected, running and stopped. Run
// performs the ring handshake, starts one listener per connection, drives
// the clock engine for the configured duration and finally closes both
// connections. An optional inspection endpoint reports the node's state
// while it runs.
package node

// Package ring describes the directed ring the nodes are wired into.
// Node i dials node (i+1) mod N and accepts a connection from node
// (i-1) mod N, so the outbound edges form a single cycle through all nodes.
package ring

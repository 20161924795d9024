// Package mailbox provides the internal queue that sits between a node's
// listener goroutines (producers) and its clock engine (sole consumer).
// Entries are raw received strings kept in arrival order.
package mailbox

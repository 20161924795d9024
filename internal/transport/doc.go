// Package transport implements the connection fabric of a ring node: the
// listen-then-dial handshake that yields one inbound and one outbound TCP
// connection, the connection handle used to send messages, and the listener
// task that copies every read into the node's mailbox.
//
// Reads are not framed. Each non-empty read becomes one mailbox entry even
// if the stream coalesced several messages into it.
package transport

// Package wire defines the text message exchanged between ring neighbours.
//
// A message is the UTF-8 line "<sender>:<clock>" without a trailing newline.
// Receivers only use the decimal value after the last ':'.
//
// Framing is best effort: the transport does not delimit messages, so one
// read may carry a partial message or several messages back to back. Such a
// read is still handed to ParseClock as a single entry; concatenated messages
// yield the clock of the last one and split messages may fail to parse.
package wire

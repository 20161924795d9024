// Package events carries the per-tick event records a node emits and the
// logrus plumbing they are written through. The node treats every sink as
// write-only.
package events

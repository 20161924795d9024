// Package engine implements the fixed-rate clock engine of a ring node.
//
// Every tick the engine drains at most one mailbox entry and applies the
// Lamport max-rule, picks an action (send to one peer, broadcast to both, or
// an internal event), advances the clock by exactly one and sleeps for the
// rest of the tick period. Ticks that overrun their period are not made up,
// so a slow node visibly falls behind its configured rate.
package engine

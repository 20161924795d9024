package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestActionFromDraw(t *testing.T) {
	tests := []struct {
		draw int
		want Action
	}{
		{1, SendOutbound},
		{2, SendInbound},
		{3, Broadcast},
		{4, Internal},
		{7, Internal},
		{10, Internal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ActionFromDraw(tt.draw), "draw %d", tt.draw)
	}
}

func TestRandomSelector_Distribution(t *testing.T) {
	sel := NewRandomSelector(1)
	counts := make(map[Action]int)
	const n = 100000
	for i := 0; i < n; i++ {
		counts[sel.Next()]++
	}

	for _, a := range []Action{SendOutbound, SendInbound, Broadcast} {
		frac := float64(counts[a]) / n
		assert.InDelta(t, 0.1, frac, 0.01, "%s", a)
	}
	assert.InDelta(t, 0.7, float64(counts[Internal])/n, 0.01)
}

func TestRandomSelector_SeedReproducible(t *testing.T) {
	a := NewRandomSelector(99)
	b := NewRandomSelector(99)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}

func TestDeriveSeed(t *testing.T) {
	assert.Equal(t, DeriveSeed(42, 0), DeriveSeed(42, 0))
	assert.NotEqual(t, DeriveSeed(42, 0), DeriveSeed(42, 1))
	assert.NotEqual(t, DeriveSeed(42, 0), DeriveSeed(43, 0))
}

func TestScript(t *testing.T) {
	s := Script(Broadcast, SendInbound)
	assert.Equal(t, Broadcast, s.Next())
	assert.Equal(t, SendInbound, s.Next())
	assert.Equal(t, Internal, s.Next())
	assert.Equal(t, Internal, s.Next())
}

func TestAction_String(t *testing.T) {
	assert.Equal(t, "broadcast", Broadcast.String())
	assert.Equal(t, "unknown", Action(42).String())
}

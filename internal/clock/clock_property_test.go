package clock

import (
	"math/rand"
	"sync"
	"testing"
)

// TestLamport_Property_NeverDecreases drives random observe/tick sequences and
// checks the clock is monotonic.
func TestLamport_Property_NeverDecreases(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	c := New()
	prev := c.Value()

	for i := 0; i < 10000; i++ {
		if rng.Intn(2) == 0 {
			c.Observe(uint64(rng.Intn(20000)))
		} else {
			c.Tick()
		}
		if c.Value() < prev {
			t.Fatalf("Clock decreased from %d to %d at step %d", prev, c.Value(), i)
		}
		prev = c.Value()
	}
}

// TestLamport_Property_OneUnitPerTick checks that a full tick (optional
// observe followed by a tick) ends at max(before, received)+1.
func TestLamport_Property_OneUnitPerTick(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	c := New()

	for i := 0; i < 5000; i++ {
		before := c.Value()
		want := before
		if rng.Intn(3) == 0 {
			received := uint64(rng.Intn(int(before) + 50))
			c.Observe(received)
			if received > want {
				want = received
			}
		}
		want++
		if got := c.Tick(); got != want {
			t.Fatalf("Step %d: expected %d, got %d", i, want, got)
		}
	}
}

// TestLamport_Property_ObserveIsIdempotent checks that observing the same
// value twice does not change the clock.
func TestLamport_Property_ObserveIsIdempotent(t *testing.T) {
	c := New()
	c.Observe(9)
	first := c.Value()
	c.Observe(9)
	if c.Value() != first {
		t.Errorf("Observing the same value twice changed the clock: %d -> %d", first, c.Value())
	}
}

// TestLamport_Property_ConcurrentReaders checks that readers see a
// non-decreasing sequence while the single owner keeps ticking.
func TestLamport_Property_ConcurrentReaders(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	done := make(chan struct{})

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var last uint64
			for {
				select {
				case <-done:
					return
				default:
				}
				v := c.Value()
				if v < last {
					t.Errorf("Reader saw clock go backwards: %d -> %d", last, v)
					return
				}
				last = v
			}
		}()
	}

	for i := 0; i < 10000; i++ {
		c.Tick()
	}
	close(done)
	wg.Wait()

	if c.Value() != 10000 {
		t.Errorf("Expected 10000, got %d", c.Value())
	}
}

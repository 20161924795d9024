package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"clocksim/internal/clock"
	"clocksim/internal/events"
	"clocksim/internal/mailbox"
	"clocksim/internal/wire"
)

// Sender is one of the node's two connections as seen by the engine.
type Sender interface {
	Send(msg wire.Message) error
	Peer() string
}

// Config wires an engine to its collaborators.
type Config struct {
	Name       string
	TickRate   int // ticks per wall-clock second
	TotalTicks int
	Clock      *clock.Lamport
	Queue      mailbox.Queue
	Outbound   Sender
	Inbound    Sender
	Selector   Selector
	Sink       events.Sink
	Logger     *logrus.Entry
	// OnStop runs once when Run returns, to stop the listeners.
	OnStop func()
}

// Stats is a point-in-time view of the engine's counters.
type Stats struct {
	Ticks      int64
	Received   int64
	Sent       int64
	Broadcasts int64
	Internal   int64
	Overruns   int64
	Malformed  int64
	Clock      uint64
	QueueDepth int
}

type counters struct {
	ticks      atomic.Int64
	received   atomic.Int64
	sent       atomic.Int64
	broadcasts atomic.Int64
	internal   atomic.Int64
	overruns   atomic.Int64
	malformed  atomic.Int64
}

// Engine runs the per-node event loop. Run and Step must only be called from
// one goroutine, which then owns the clock.
type Engine struct {
	cfg    Config
	period time.Duration
	stats  counters
	start  time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an engine. Clock, Queue and Selector get defaults when nil.
func New(cfg Config) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Queue == nil {
		cfg.Queue = mailbox.NewInMemoryQueue()
	}
	if cfg.Selector == nil {
		cfg.Selector = NewRandomSelector(time.Now().UnixNano())
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = 1
	}

	return &Engine{
		cfg:    cfg,
		period: time.Second / time.Duration(cfg.TickRate),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

// Clock returns the clock driven by this engine.
func (e *Engine) Clock() *clock.Lamport {
	return e.cfg.Clock
}

// Stats returns the current counters. Safe to call concurrently with Run.
func (e *Engine) Stats() Stats {
	return Stats{
		Ticks:      e.stats.ticks.Load(),
		Received:   e.stats.received.Load(),
		Sent:       e.stats.sent.Load(),
		Broadcasts: e.stats.broadcasts.Load(),
		Internal:   e.stats.internal.Load(),
		Overruns:   e.stats.overruns.Load(),
		Malformed:  e.stats.malformed.Load(),
		Clock:      e.cfg.Clock.Value(),
		QueueDepth: e.cfg.Queue.Size(),
	}
}

// Run executes TotalTicks ticks at TickRate and then stops the listeners.
// It returns early with ctx's error when cancelled, or with the send error
// that ended the node.
func (e *Engine) Run(ctx context.Context) error {
	if e.cfg.OnStop != nil {
		defer e.cfg.OnStop()
	}

	e.start = e.now()
	e.cfg.Logger.WithFields(logrus.Fields{
		"tick_rate":   e.cfg.TickRate,
		"total_ticks": e.cfg.TotalTicks,
	}).Info("Clock engine started")

	for tick := 1; tick <= e.cfg.TotalTicks; tick++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		wake := e.now()
		if err := e.Step(tick); err != nil {
			return err
		}

		// No catch-up: an overrun tick simply starts the next one late.
		elapsed := e.now().Sub(wake)
		if elapsed > e.period {
			e.stats.overruns.Add(1)
		}
		if elapsed < e.period {
			if err := e.sleep(ctx, e.period-elapsed); err != nil {
				return err
			}
		}
	}

	e.cfg.Logger.WithFields(logrus.Fields{
		"clock":    e.cfg.Clock.Value(),
		"overruns": e.stats.overruns.Load(),
	}).Info("Clock engine finished")
	return nil
}

// Step executes one tick: receive check, action, clock advance.
// A failed send is returned unchanged and the clock is not advanced.
func (e *Engine) Step(tick int) error {
	if entry, depth, ok := e.cfg.Queue.TryTake(); ok {
		e.receive(tick, entry, depth)
	}

	msg := wire.Message{Sender: e.cfg.Name, Time: e.cfg.Clock.Value()}

	var err error
	switch action := e.cfg.Selector.Next(); action {
	case SendOutbound:
		err = e.sendOne(tick, e.cfg.Outbound, msg)
	case SendInbound:
		err = e.sendOne(tick, e.cfg.Inbound, msg)
	case Broadcast:
		err = e.broadcast(tick, msg)
	default:
		e.stats.internal.Add(1)
		e.record(events.Event{Tick: tick, Kind: events.KindInternal, Clock: msg.Time})
	}
	if err != nil {
		return err
	}

	e.cfg.Clock.Tick()
	e.stats.ticks.Add(1)
	return nil
}

func (e *Engine) receive(tick int, entry string, depth int) {
	e.stats.received.Add(1)

	v, err := wire.ParseClock(entry)
	if err != nil {
		e.stats.malformed.Add(1)
		e.cfg.Logger.WithError(err).WithField("payload", entry).Warn("Ignoring clock of malformed message")
	} else {
		e.cfg.Clock.Observe(v)
	}

	e.record(events.Event{
		Tick:       tick,
		Kind:       events.KindReceived,
		Clock:      e.cfg.Clock.Value(),
		QueueDepth: depth,
		Message:    entry,
	})
}

func (e *Engine) sendOne(tick int, to Sender, msg wire.Message) error {
	if to == nil {
		return fmt.Errorf("no connection to send %s on", msg)
	}
	e.stats.sent.Add(1)
	e.record(events.Event{
		Tick:    tick,
		Kind:    events.KindSent,
		Clock:   msg.Time,
		Message: msg.String(),
		Peers:   []string{to.Peer()},
	})
	return to.Send(msg)
}

// broadcast issues both sends concurrently and waits for both.
func (e *Engine) broadcast(tick int, msg wire.Message) error {
	if e.cfg.Outbound == nil || e.cfg.Inbound == nil {
		return fmt.Errorf("broadcast needs both connections")
	}
	e.stats.broadcasts.Add(1)
	e.record(events.Event{
		Tick:    tick,
		Kind:    events.KindBroadcast,
		Clock:   msg.Time,
		Message: msg.String(),
		Peers:   []string{e.cfg.Outbound.Peer(), e.cfg.Inbound.Peer()},
	})

	var (
		wg   sync.WaitGroup
		errs [2]error
	)
	for i, to := range []Sender{e.cfg.Outbound, e.cfg.Inbound} {
		wg.Add(1)
		go func(i int, to Sender) {
			defer wg.Done()
			errs[i] = to.Send(msg)
		}(i, to)
	}
	wg.Wait()

	return errors.Join(errs[0], errs[1])
}

func (e *Engine) record(ev events.Event) {
	if e.cfg.Sink == nil {
		return
	}
	ev.Node = e.cfg.Name
	ev.Elapsed = e.now().Sub(e.start)
	e.cfg.Sink.Record(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

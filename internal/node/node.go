package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"clocksim/internal/clock"
	"clocksim/internal/config"
	"clocksim/internal/engine"
	"clocksim/internal/events"
	"clocksim/internal/inspect"
	"clocksim/internal/mailbox"
	"clocksim/internal/transport"
)

// State is the lifecycle phase of a node.
type State int32

const (
	Unconnected State = iota
	Connected
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Unconnected:
		return "unconnected"
	case Connected:
		return "connected"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("node already ran")

// Option customizes a Node.
type Option func(*Node)

// WithLogger makes the node log to log instead of building its own logger
// from the configuration.
func WithLogger(log *logrus.Entry) Option {
	return func(n *Node) { n.log = log }
}

// WithSink records tick events to sink instead of the node's logger.
func WithSink(sink events.Sink) Option {
	return func(n *Node) { n.sink = sink }
}

// WithSelector overrides the random action selector.
func WithSelector(sel engine.Selector) Option {
	return func(n *Node) { n.selector = sel }
}

// Node represents a single ring member.
type Node struct {
	cfg  config.Node
	name string

	log      *logrus.Entry
	sink     events.Sink
	selector engine.Selector

	clock *clock.Lamport
	queue *mailbox.InMemoryQueue

	ran       atomic.Bool
	state     atomic.Int32
	startedAt atomic.Int64
	engine    atomic.Pointer[engine.Engine]

	inspectMu   sync.Mutex
	inspectAddr net.Addr
}

// New validates cfg and creates an unconnected node.
func New(cfg config.Node, opts ...Option) (*Node, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node config: %w", err)
	}

	n := &Node{
		cfg:   cfg,
		name:  cfg.Name(),
		clock: clock.New(),
		queue: mailbox.NewInMemoryQueue(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.selector == nil {
		seed := time.Now().UnixNano()
		if cfg.Seed != 0 {
			seed = engine.DeriveSeed(cfg.Seed, cfg.Index)
		}
		n.selector = engine.NewRandomSelector(seed)
	}
	return n, nil
}

// Name returns the node's presentable name.
func (n *Node) Name() string {
	return n.name
}

// State returns the current lifecycle phase.
func (n *Node) State() State {
	return State(n.state.Load())
}

// Clock returns the current Lamport clock value.
func (n *Node) Clock() uint64 {
	return n.clock.Value()
}

// Stats returns the engine counters, zero before the node is running.
func (n *Node) Stats() engine.Stats {
	if eng := n.engine.Load(); eng != nil {
		return eng.Stats()
	}
	return engine.Stats{Clock: n.clock.Value(), QueueDepth: n.queue.Size()}
}

// InspectAddr returns the bound inspection address, or nil when the
// endpoint is disabled or not started yet.
func (n *Node) InspectAddr() net.Addr {
	n.inspectMu.Lock()
	defer n.inspectMu.Unlock()
	return n.inspectAddr
}

// Snapshot implements inspect.Source.
func (n *Node) Snapshot() inspect.Snapshot {
	st := n.Stats()
	var uptime time.Duration
	if started := n.startedAt.Load(); started != 0 {
		uptime = time.Since(time.Unix(0, started))
	}
	return inspect.Snapshot{
		Name:       n.name,
		Index:      n.cfg.Index,
		TickRate:   n.cfg.TickRate,
		State:      n.State().String(),
		Clock:      st.Clock,
		QueueDepth: st.QueueDepth,
		Ticks:      st.Ticks,
		Received:   st.Received,
		Sent:       st.Sent,
		Broadcasts: st.Broadcasts,
		Internal:   st.Internal,
		Overruns:   st.Overruns,
		Malformed:  st.Malformed,
		Uptime:     uptime,
	}
}

// Run connects the node into the ring and runs its event loop for the
// configured duration. Connection and send failures are returned; the
// node never retries them.
func (n *Node) Run(ctx context.Context) error {
	if !n.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	defer n.setState(Stopped)

	log := n.log
	if log == nil {
		l, closer, err := events.NewLogger(events.LoggerOptions{
			Name:   n.name,
			Dir:    n.cfg.LogDir,
			Format: n.cfg.LogFormat,
		})
		if err != nil {
			return err
		}
		defer closer.Close()
		log = l
	}
	sink := n.sink
	if sink == nil {
		sink = events.NewLogSink(log)
	}

	rng, err := n.cfg.BuildRing()
	if err != nil {
		return err
	}

	var inspector *inspect.Server
	if n.cfg.InspectAddr != "" {
		inspector = inspect.NewServer(n, log)
		addr, err := inspector.Start(n.cfg.InspectAddr)
		if err != nil {
			return err
		}
		defer inspector.Stop()
		n.inspectMu.Lock()
		n.inspectAddr = addr
		n.inspectMu.Unlock()
	}

	log.WithFields(logrus.Fields{
		"index":     n.cfg.Index,
		"tick_rate": n.cfg.TickRate,
		"ring_size": rng.Size(),
	}).Info("Starting node")

	link, err := transport.Establish(ctx, transport.EstablishOptions{
		Ring:           rng,
		Index:          n.cfg.Index,
		SettleDelay:    n.cfg.SettleDelay,
		ConnectTimeout: n.cfg.ConnectTimeout,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	n.setState(Connected)

	listenCtx, stopListeners := context.WithCancel(ctx)
	defer stopListeners()

	var wg sync.WaitGroup
	for _, conn := range []*transport.Conn{link.Outbound, link.Inbound} {
		wg.Add(1)
		go func(conn *transport.Conn) {
			defer wg.Done()
			if err := transport.Listen(listenCtx, conn, n.queue, log); err != nil {
				log.WithError(err).WithField("peer", conn.Peer()).Warn("Listener stopped")
			}
		}(conn)
	}

	eng := engine.New(engine.Config{
		Name:       n.name,
		TickRate:   n.cfg.TickRate,
		TotalTicks: n.cfg.TotalTicks(),
		Clock:      n.clock,
		Queue:      n.queue,
		Outbound:   link.Outbound,
		Inbound:    link.Inbound,
		Selector:   n.selector,
		Sink:       sink,
		Logger:     log,
		OnStop:     stopListeners,
	})
	n.engine.Store(eng)
	n.startedAt.Store(time.Now().UnixNano())
	n.setState(Running)
	if inspector != nil {
		inspector.SetServing(true)
	}

	runErr := eng.Run(ctx)

	wg.Wait()
	link.Close()
	if inspector != nil {
		inspector.SetServing(false)
	}

	st := eng.Stats()
	fields := logrus.Fields{
		"clock":    st.Clock,
		"ticks":    st.Ticks,
		"received": st.Received,
		"sent":     st.Sent,
		"overruns": st.Overruns,
		"backlog":  st.QueueDepth,
	}
	if runErr != nil {
		log.WithError(runErr).WithFields(fields).Error("Node stopped")
		return runErr
	}
	log.WithFields(fields).Info("Node stopped")
	return nil
}

func (n *Node) setState(s State) {
	n.state.Store(int32(s))
}

package node

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clocksim/internal/config"
	"clocksim/internal/engine"
	"clocksim/internal/events"
	"clocksim/internal/inspect"
	"clocksim/internal/transport"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(l)
}

func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs = append(addrs, ln.Addr().String())
		require.NoError(t, ln.Close())
	}
	return addrs
}

func nodeConfig(peers []string, index, rate int, d time.Duration) config.Node {
	return config.Node{
		Index:          index,
		Peers:          peers,
		TickRate:       rate,
		Duration:       d,
		SettleDelay:    200 * time.Millisecond,
		ConnectTimeout: 5 * time.Second,
	}
}

// runAll runs every node concurrently and returns their errors by index.
func runAll(ctx context.Context, nodes []*Node) []error {
	errs := make([]error, len(nodes))
	var wg sync.WaitGroup
	for i, n := range nodes {
		wg.Add(1)
		go func(i int, n *Node) {
			defer wg.Done()
			errs[i] = n.Run(ctx)
		}(i, n)
	}
	wg.Wait()
	return errs
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(config.Node{Index: 0, Peers: []string{"127.0.0.1:1"}, TickRate: 1})
	assert.Error(t, err, "single node ring")

	_, err = New(config.Node{Index: 0, Peers: []string{"127.0.0.1:1", "127.0.0.1:2"}, TickRate: 0})
	assert.Error(t, err, "zero tick rate")
}

func TestNew_InitialState(t *testing.T) {
	n, err := New(nodeConfig([]string{"127.0.0.1:4096", "127.0.0.1:4097"}, 1, 3, time.Second))
	require.NoError(t, err)

	assert.Equal(t, "VM1_cr3", n.Name())
	assert.Equal(t, Unconnected, n.State())
	assert.Equal(t, uint64(0), n.Clock())
	assert.Nil(t, n.InspectAddr())

	snap := n.Snapshot()
	assert.Equal(t, "unconnected", snap.State)
	assert.Equal(t, 3, snap.TickRate)
	assert.Zero(t, snap.Uptime)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unconnected", Unconnected.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "stopped", Stopped.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestRun_ThreeNodeRing(t *testing.T) {
	peers := freeAddrs(t, 3)
	rates := []int{20, 10, 5}

	nodes := make([]*Node, 3)
	recorders := make([]*events.Recorder, 3)
	for i := range nodes {
		recorders[i] = events.NewRecorder()
		n, err := New(nodeConfig(peers, i, rates[i], time.Second),
			WithLogger(testLogger()),
			WithSink(recorders[i]),
			WithSelector(engine.NewRandomSelector(engine.DeriveSeed(7, i))),
		)
		require.NoError(t, err)
		nodes[i] = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	errs := runAll(ctx, nodes)

	for i, n := range nodes {
		assert.Equal(t, Stopped, n.State())

		st := n.Stats()
		assert.GreaterOrEqual(t, n.Clock(), uint64(st.Ticks), "clock never falls behind local ticks")

		if errs[i] != nil {
			// A node that outlived a neighbour may fail its last send.
			var sendErr *transport.SendError
			assert.True(t, errors.As(errs[i], &sendErr), "node %d: %v", i, errs[i])
			continue
		}
		assert.Equal(t, int64(rates[i]), st.Ticks)
		rec := recorders[i]
		acted := rec.Count(events.KindSent) + rec.Count(events.KindBroadcast) + rec.Count(events.KindInternal)
		assert.Equal(t, rates[i], acted, "one action per tick")
	}
}

func TestRun_MessageCarriesClockAcrossRing(t *testing.T) {
	peers := freeAddrs(t, 2)

	// Node 0 ticks fast and sends its clock once it reached 30.
	script := make([]engine.Action, 0, 31)
	for i := 0; i < 30; i++ {
		script = append(script, engine.Internal)
	}
	script = append(script, engine.SendOutbound)

	fastRec := events.NewRecorder()
	fast, err := New(nodeConfig(peers, 0, 50, time.Second),
		WithLogger(testLogger()), WithSink(fastRec), WithSelector(engine.Script(script...)))
	require.NoError(t, err)

	slowRec := events.NewRecorder()
	slow, err := New(nodeConfig(peers, 1, 5, 2*time.Second),
		WithLogger(testLogger()), WithSink(slowRec), WithSelector(engine.Script()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	errs := runAll(ctx, []*Node{fast, slow})
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	sent := fastRec.Events()
	var payload string
	for _, ev := range sent {
		if ev.Kind == events.KindSent {
			payload = ev.Message
			assert.Equal(t, []string{"VM1"}, ev.Peers)
		}
	}
	assert.Equal(t, "VM0_cr50:30", payload)

	require.Equal(t, 1, slowRec.Count(events.KindReceived))
	for _, ev := range slowRec.Events() {
		if ev.Kind == events.KindReceived {
			assert.Equal(t, payload, ev.Message)
			assert.Equal(t, uint64(30), ev.Clock, "max-rule adopts the sender's clock")
		}
	}
	assert.Greater(t, slow.Clock(), uint64(30))
	assert.Equal(t, int64(10), slow.Stats().Ticks)
}

func TestRun_ConnectionErrorIsFatal(t *testing.T) {
	peers := freeAddrs(t, 2)
	cfg := nodeConfig(peers, 0, 5, time.Second)
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.ConnectTimeout = time.Second

	n, err := New(cfg, WithLogger(testLogger()))
	require.NoError(t, err)

	err = n.Run(context.Background())
	var connErr *transport.ConnectionError
	require.True(t, errors.As(err, &connErr), "got %v", err)
	assert.Equal(t, "dial", connErr.Op)
	assert.Equal(t, Stopped, n.State())
	assert.Zero(t, n.Stats().Ticks)
}

func TestRun_OnlyOnce(t *testing.T) {
	peers := freeAddrs(t, 2)
	cfg := nodeConfig(peers, 0, 5, time.Second)
	cfg.SettleDelay = 10 * time.Millisecond
	cfg.ConnectTimeout = time.Second

	n, err := New(cfg, WithLogger(testLogger()))
	require.NoError(t, err)

	_ = n.Run(context.Background())
	assert.ErrorIs(t, n.Run(context.Background()), ErrAlreadyRun)
}

func TestRun_InspectorReportsRunningNode(t *testing.T) {
	peers := freeAddrs(t, 2)

	cfg0 := nodeConfig(peers, 0, 10, 2*time.Second)
	cfg0.InspectAddr = "127.0.0.1:0"
	n0, err := New(cfg0, WithLogger(testLogger()), WithSink(events.NewRecorder()))
	require.NoError(t, err)
	n1, err := New(nodeConfig(peers, 1, 10, 2*time.Second), WithLogger(testLogger()), WithSink(events.NewRecorder()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan []error, 1)
	go func() { done <- runAll(ctx, []*Node{n0, n1}) }()

	require.Eventually(t, func() bool { return n0.InspectAddr() != nil }, 5*time.Second, 10*time.Millisecond)

	client, err := inspect.Dial(n0.InspectAddr().String())
	require.NoError(t, err)
	defer client.Close()

	require.Eventually(t, func() bool {
		reqCtx, reqCancel := context.WithTimeout(ctx, time.Second)
		defer reqCancel()
		serving, err := client.Serving(reqCtx)
		return err == nil && serving
	}, 5*time.Second, 20*time.Millisecond)

	reqCtx, reqCancel := context.WithTimeout(ctx, time.Second)
	snap, err := client.Snapshot(reqCtx)
	reqCancel()
	require.NoError(t, err)
	assert.Equal(t, "VM0_cr10", snap.Name)
	assert.Equal(t, "running", snap.State)
	assert.Equal(t, 10, snap.TickRate)

	errs := <-done
	for _, err := range errs {
		if err != nil {
			var sendErr *transport.SendError
			assert.True(t, errors.As(err, &sendErr), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, Stopped, n0.State())
}

package it

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"clocksim/internal/config"
	"clocksim/internal/driver"
	"clocksim/internal/inspect"
)

// Ring represents a set of clocksim node processes forming one ring
type Ring struct {
	nodes      []*Node
	logDir     string
	binaryPath string
	mu         sync.Mutex
}

// Node represents a single node process in the ring
type Node struct {
	Index       int
	Name        string
	Addr        string
	InspectAddr string
	cmd         *exec.Cmd
	logFile     *os.File
	client      *inspect.Client
	done        chan struct{}
	exitErr     error
}

// NewRing creates a new ring harness
func NewRing(binaryPath, logDir string) (*Ring, error) {
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("binary not found at %s, build it first with 'go build -o clocksim ./cmd/clocksim'", binaryPath)
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	return &Ring{
		logDir:     logDir,
		binaryPath: binaryPath,
	}, nil
}

// FreeAddrs returns n loopback addresses nothing is listening on
func FreeAddrs(n int) ([]string, error) {
	addrs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, ln.Addr().String())
		ln.Close()
	}
	return addrs, nil
}

// Start launches one node process per tick rate and waits until every
// inspector reports the node as running
func (r *Ring) Start(ctx context.Context, rates []int, duration time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	addrs, err := FreeAddrs(2 * len(rates))
	if err != nil {
		return fmt.Errorf("failed to reserve ports: %w", err)
	}
	peers, inspectAddrs := addrs[:len(rates)], addrs[len(rates):]

	for i, rate := range rates {
		cfg := config.Node{
			Index:          i,
			Peers:          peers,
			TickRate:       rate,
			Duration:       duration,
			SettleDelay:    500 * time.Millisecond,
			ConnectTimeout: 10 * time.Second,
			InspectAddr:    inspectAddrs[i],
			LogDir:         r.logDir,
		}
		if err := r.startNode(cfg); err != nil {
			r.stopLocked()
			return err
		}
	}

	for _, n := range r.nodes {
		if err := waitForRunning(ctx, n, 15*time.Second); err != nil {
			r.stopLocked()
			return fmt.Errorf("node %s failed to start running: %w", n.Name, err)
		}
	}
	return nil
}

func (r *Ring) startNode(cfg config.Node) error {
	logFile, err := os.Create(filepath.Join(r.logDir, cfg.Name()+".out"))
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	cmd := exec.Command(r.binaryPath, driver.NodeArgs(cfg)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("failed to start node %s: %w", cfg.Name(), err)
	}

	client, err := inspect.Dial(cfg.InspectAddr)
	if err != nil {
		cmd.Process.Kill()
		cmd.Wait()
		logFile.Close()
		return fmt.Errorf("failed to dial node %s: %w", cfg.Name(), err)
	}

	n := &Node{
		Index:       cfg.Index,
		Name:        cfg.Name(),
		Addr:        cfg.Peers[cfg.Index],
		InspectAddr: cfg.InspectAddr,
		cmd:         cmd,
		logFile:     logFile,
		client:      client,
		done:        make(chan struct{}),
	}
	go func() {
		n.exitErr = cmd.Wait()
		close(n.done)
	}()

	r.nodes = append(r.nodes, n)
	return nil
}

// waitForRunning polls the node's health until it reports SERVING
func waitForRunning(ctx context.Context, n *Node, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-n.done:
			return fmt.Errorf("process exited: %v", n.exitErr)
		case <-ticker.C:
			if time.Now().After(deadline) {
				return fmt.Errorf("timeout waiting for node %s", n.Name)
			}

			checkCtx, cancel := context.WithTimeout(ctx, time.Second)
			serving, err := n.client.Serving(checkCtx)
			cancel()

			if err == nil && serving {
				return nil
			}
		}
	}
}

// Nodes returns the started nodes in ring order
func (r *Ring) Nodes() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Node(nil), r.nodes...)
}

// Wait blocks until every node process exited or ctx is done
func (r *Ring) Wait(ctx context.Context) error {
	for _, n := range r.Nodes() {
		select {
		case <-n.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop kills every node process still running
func (r *Ring) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

func (r *Ring) stopLocked() {
	for _, n := range r.nodes {
		n.Stop()
	}
	r.nodes = nil
}

// Snapshot fetches the node's current inspection snapshot
func (n *Node) Snapshot(ctx context.Context) (inspect.Snapshot, error) {
	return n.client.Snapshot(ctx)
}

// ExitErr returns the process exit error once the node exited
func (n *Node) ExitErr() error {
	<-n.done
	return n.exitErr
}

// LogPath returns the node's own log file
func (n *Node) LogPath(logDir string) string {
	return filepath.Join(logDir, n.Name+".log")
}

// Stop kills the node process
func (n *Node) Stop() {
	select {
	case <-n.done:
	default:
		n.cmd.Process.Kill()
		<-n.done
	}
	n.client.Close()
	n.logFile.Close()
}

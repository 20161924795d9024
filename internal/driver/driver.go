package driver

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sugawarayuuta/sonnet"

	"clocksim/internal/config"
	"clocksim/internal/inspect"
)

const (
	// DefaultPollInterval is how often running nodes are inspected.
	DefaultPollInterval = time.Second
	pollTimeout         = 500 * time.Millisecond
)

// Stop reasons reported in Result.
const (
	StopFinished    = "finished"
	StopDeadline    = "deadline"
	StopInterrupted = "interrupted"
)

// Options configures Run.
type Options struct {
	Binary       string // path of the clocksim executable
	Experiment   *config.Experiment
	Logger       *logrus.Entry
	PollInterval time.Duration
	Rand         *rand.Rand

	// Command builds the child process; defaults to exec.Command.
	Command func(name string, args ...string) *exec.Cmd
}

// NodeResult summarizes one node process after the run.
type NodeResult struct {
	Name      string `json:"name"`
	Index     int    `json:"index"`
	Addr      string `json:"addr"`
	TickRate  int    `json:"tick_rate"`
	Killed    bool   `json:"killed"`
	ExitError string `json:"exit_error,omitempty"`
	LastState string `json:"last_state,omitempty"`
	LastClock uint64 `json:"last_clock"`
	LastQueue int    `json:"last_queue_depth"`
	Overruns  int64  `json:"overruns"`
	Polls     int    `json:"polls"`
}

// Result is written to <folder>/summary.json when the run ends.
type Result struct {
	RunID   string       `json:"run_id"`
	Folder  string       `json:"folder"`
	Reason  string       `json:"reason"`
	Started time.Time    `json:"started"`
	Elapsed string       `json:"elapsed"`
	Nodes   []NodeResult `json:"nodes"`
}

type process struct {
	cfg    config.Node
	cmd    *exec.Cmd
	done   chan struct{}
	err    error
	killed bool
	last   *inspect.Snapshot
	polls  int
}

// Run launches the experiment and blocks until every node process has
// exited, the run duration plus grace has passed, or ctx is cancelled.
// Processes still alive at that point are killed.
func Run(ctx context.Context, opts Options) (*Result, error) {
	exp := opts.Experiment
	if exp == nil {
		return nil, fmt.Errorf("no experiment")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	rnd := opts.Rand
	if rnd == nil {
		seed := exp.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rnd = rand.New(rand.NewSource(seed))
	}
	command := opts.Command
	if command == nil {
		command = exec.Command
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	started := time.Now()
	plan := NewPlan(exp, rnd, started)
	if err := os.MkdirAll(plan.Folder, 0755); err != nil {
		return nil, fmt.Errorf("failed to create experiment folder: %w", err)
	}
	if err := writeJSON(filepath.Join(plan.Folder, "plan.json"), plan); err != nil {
		return nil, err
	}
	log = log.WithField("run_id", plan.RunID)
	log.WithFields(logrus.Fields{
		"folder": plan.Folder,
		"nodes":  len(plan.Nodes),
	}).Info("Starting experiment")

	procs := make([]*process, 0, len(plan.Nodes))
	for _, cfg := range plan.Nodes {
		p, err := startProcess(command, opts.Binary, cfg, plan.Folder)
		if err != nil {
			terminate(procs)
			return nil, err
		}
		log.WithFields(logrus.Fields{
			"node":      cfg.Name(),
			"tick_rate": cfg.TickRate,
			"pid":       p.cmd.Process.Pid,
		}).Info("Started node")
		procs = append(procs, p)
	}

	allDone := make(chan struct{})
	go func() {
		for _, p := range procs {
			<-p.done
		}
		close(allDone)
	}()

	pool := inspect.NewPool()
	defer pool.Close()

	deadline := time.NewTimer(exp.RunDuration() + exp.GraceDuration())
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var reason string
	for reason == "" {
		select {
		case <-allDone:
			reason = StopFinished
		case <-deadline.C:
			reason = StopDeadline
		case <-ctx.Done():
			reason = StopInterrupted
		case <-ticker.C:
			poll(ctx, pool, procs, log)
		}
	}

	terminate(procs)

	res := &Result{
		RunID:   plan.RunID,
		Folder:  plan.Folder,
		Reason:  reason,
		Started: started,
		Elapsed: time.Since(started).Round(time.Millisecond).String(),
	}
	for _, p := range procs {
		res.Nodes = append(res.Nodes, p.result())
	}
	if err := writeJSON(filepath.Join(plan.Folder, "summary.json"), res); err != nil {
		log.WithError(err).Warn("Failed to write summary")
	}
	log.WithFields(logrus.Fields{
		"reason":  reason,
		"elapsed": res.Elapsed,
	}).Info("Experiment finished")

	if reason == StopInterrupted {
		return res, ctx.Err()
	}
	return res, nil
}

func startProcess(command func(string, ...string) *exec.Cmd, binary string, cfg config.Node, folder string) (*process, error) {
	out, err := os.Create(filepath.Join(folder, cfg.Name()+".out"))
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	cmd := command(binary, NodeArgs(cfg)...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		out.Close()
		return nil, fmt.Errorf("failed to start node %s: %w", cfg.Name(), err)
	}

	p := &process{cfg: cfg, cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		out.Close()
		close(p.done)
	}()
	return p, nil
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// terminate kills every process still running and waits for all of them.
func terminate(procs []*process) {
	for _, p := range procs {
		if !p.exited() {
			if err := p.cmd.Process.Kill(); err == nil {
				p.killed = true
			}
		}
	}
	for _, p := range procs {
		<-p.done
	}
}

// poll inspects every running node concurrently and logs its progress.
func poll(ctx context.Context, pool *inspect.Pool, procs []*process, log *logrus.Entry) {
	var wg sync.WaitGroup
	for _, p := range procs {
		if p.cfg.InspectAddr == "" || p.exited() {
			continue
		}
		wg.Add(1)
		go func(p *process) {
			defer wg.Done()
			client, err := pool.Get(p.cfg.InspectAddr)
			if err != nil {
				log.WithError(err).WithField("node", p.cfg.Name()).Debug("Inspector unavailable")
				return
			}
			pollCtx, cancel := context.WithTimeout(ctx, pollTimeout)
			defer cancel()
			snap, err := client.Snapshot(pollCtx)
			if err != nil {
				log.WithError(err).WithField("node", p.cfg.Name()).Debug("Snapshot failed")
				return
			}
			p.last = &snap
			p.polls++
			log.WithFields(logrus.Fields{
				"node":        snap.Name,
				"state":       snap.State,
				"clock":       snap.Clock,
				"queue_depth": snap.QueueDepth,
				"overruns":    snap.Overruns,
			}).Info("Node progress")
		}(p)
	}
	wg.Wait()
}

func (p *process) result() NodeResult {
	r := NodeResult{
		Name:     p.cfg.Name(),
		Index:    p.cfg.Index,
		Addr:     p.cfg.ListenAddr,
		TickRate: p.cfg.TickRate,
		Killed:   p.killed,
		Polls:    p.polls,
	}
	if p.err != nil {
		r.ExitError = p.err.Error()
	}
	if p.last != nil {
		r.LastState = p.last.State
		r.LastClock = p.last.Clock
		r.LastQueue = p.last.QueueDepth
		r.Overruns = p.last.Overruns
	}
	return r
}

func writeJSON(path string, v any) error {
	data, err := sonnet.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// ExperimentNode describes one node of an experiment file.
type ExperimentNode struct {
	Addr        string `json:"addr"`
	InspectAddr string `json:"inspect_addr,omitempty"`
	TickRate    int    `json:"tick_rate,omitempty"` // 0 draws a random rate
}

// Experiment describes a full ring run launched by the driver.
type Experiment struct {
	Nodes       []ExperimentNode `json:"nodes"`
	Duration    string           `json:"duration,omitempty"`
	Grace       string           `json:"grace,omitempty"`
	MinTickRate int              `json:"min_tick_rate,omitempty"`
	MaxTickRate int              `json:"max_tick_rate,omitempty"`
	Seed        int64            `json:"seed,omitempty"`
	LogDir      string           `json:"log_dir,omitempty"`
	LogFormat   string           `json:"log_format,omitempty"`

	duration time.Duration
	grace    time.Duration
}

// DefaultExperiment returns the three-node local ring: ports 4096-4098,
// random tick rates in [1, 6], a 60s run and a 10s grace period.
func DefaultExperiment() *Experiment {
	e := &Experiment{
		Nodes: []ExperimentNode{
			{Addr: "127.0.0.1:4096", InspectAddr: "127.0.0.1:5096"},
			{Addr: "127.0.0.1:4097", InspectAddr: "127.0.0.1:5097"},
			{Addr: "127.0.0.1:4098", InspectAddr: "127.0.0.1:5098"},
		},
		Duration:    "60s",
		Grace:       "10s",
		MinTickRate: 1,
		MaxTickRate: 6,
		LogDir:      "logs",
		LogFormat:   LogFormatText,
	}
	// Defaults are known-good.
	_ = e.Validate()
	return e
}

// LoadExperiment reads and validates a JSON experiment file.
func LoadExperiment(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read experiment file: %w", err)
	}
	return ParseExperiment(data)
}

// ParseExperiment decodes and validates experiment JSON.
func ParseExperiment(data []byte) (*Experiment, error) {
	e := &Experiment{}
	if err := sonnet.Unmarshal(data, e); err != nil {
		return nil, fmt.Errorf("failed to parse experiment: %w", err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate fills defaults and checks ranges.
func (e *Experiment) Validate() error {
	if len(e.Nodes) < 2 {
		return fmt.Errorf("experiment needs at least 2 nodes, got %d", len(e.Nodes))
	}
	if e.MinTickRate == 0 {
		e.MinTickRate = 1
	}
	if e.MaxTickRate == 0 {
		e.MaxTickRate = 6
	}
	if e.MinTickRate < 1 || e.MaxTickRate < e.MinTickRate || e.MaxTickRate > MaxTickRate {
		return fmt.Errorf("invalid tick rate range [%d, %d]", e.MinTickRate, e.MaxTickRate)
	}
	for i, n := range e.Nodes {
		if n.Addr == "" {
			return fmt.Errorf("node %d has no address", i)
		}
		if n.TickRate < 0 || n.TickRate > MaxTickRate {
			return fmt.Errorf("node %d tick rate %d out of range", i, n.TickRate)
		}
	}

	var err error
	e.duration = DefaultDuration
	if e.Duration != "" {
		if e.duration, err = time.ParseDuration(e.Duration); err != nil {
			return fmt.Errorf("invalid duration %q: %w", e.Duration, err)
		}
	}
	e.grace = 10 * time.Second
	if e.Grace != "" {
		if e.grace, err = time.ParseDuration(e.Grace); err != nil {
			return fmt.Errorf("invalid grace %q: %w", e.Grace, err)
		}
	}
	if e.duration <= 0 || e.grace < 0 {
		return fmt.Errorf("duration must be positive and grace non-negative")
	}
	if e.LogFormat == "" {
		e.LogFormat = LogFormatText
	}
	return nil
}

// RunDuration returns the parsed node run duration.
func (e *Experiment) RunDuration() time.Duration {
	return e.duration
}

// GraceDuration returns how long the driver waits past the run duration
// before terminating the node processes.
func (e *Experiment) GraceDuration() time.Duration {
	return e.grace
}

// Addrs returns every node address in ring order.
func (e *Experiment) Addrs() []string {
	addrs := make([]string, 0, len(e.Nodes))
	for _, n := range e.Nodes {
		addrs = append(addrs, n.Addr)
	}
	return addrs
}

// NodeConfig builds the configuration of the node at index.
func (e *Experiment) NodeConfig(index, tickRate int, logDir string) Node {
	return Node{
		Index:       index,
		ListenAddr:  e.Nodes[index].Addr,
		Peers:       e.Addrs(),
		TickRate:    tickRate,
		Duration:    e.duration,
		InspectAddr: e.Nodes[index].InspectAddr,
		Seed:        e.Seed,
		LogDir:      logDir,
		LogFormat:   e.LogFormat,
	}
}

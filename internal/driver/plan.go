package driver

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"clocksim/internal/config"
)

// Plan is the resolved layout of one experiment run.
type Plan struct {
	RunID  string        `json:"run_id"`
	Folder string        `json:"folder"`
	Nodes  []config.Node `json:"nodes"`
}

// NewPlan draws a tick rate for every node that has none fixed and names
// the experiment folder <log_dir>/<timestamp>-<run id>.
func NewPlan(exp *config.Experiment, rnd *rand.Rand, now time.Time) Plan {
	runID := uuid.New().String()
	folder := filepath.Join(exp.LogDir, fmt.Sprintf("%s-%s", now.Format("20060102-150405"), runID[:8]))

	nodes := make([]config.Node, 0, len(exp.Nodes))
	for i, n := range exp.Nodes {
		rate := n.TickRate
		if rate == 0 {
			rate = exp.MinTickRate + rnd.Intn(exp.MaxTickRate-exp.MinTickRate+1)
		}
		nodes = append(nodes, exp.NodeConfig(i, rate, folder))
	}

	return Plan{RunID: runID, Folder: folder, Nodes: nodes}
}

// NodeArgs returns the command line that starts cfg as a node process.
func NodeArgs(cfg config.Node) []string {
	args := []string{
		"node",
		"--index", strconv.Itoa(cfg.Index),
		"--peers", strings.Join(cfg.Peers, ","),
		"--tick-rate", strconv.Itoa(cfg.TickRate),
		"--duration", cfg.Duration.String(),
	}
	if cfg.SettleDelay > 0 {
		args = append(args, "--settle", cfg.SettleDelay.String())
	}
	if cfg.ConnectTimeout > 0 {
		args = append(args, "--connect-timeout", cfg.ConnectTimeout.String())
	}
	if cfg.InspectAddr != "" {
		args = append(args, "--inspect", cfg.InspectAddr)
	}
	if cfg.Seed != 0 {
		args = append(args, "--seed", strconv.FormatInt(cfg.Seed, 10))
	}
	if cfg.LogDir != "" {
		args = append(args, "--log-dir", cfg.LogDir)
	}
	if cfg.LogFormat != "" {
		args = append(args, "--log-format", cfg.LogFormat)
	}
	return args
}


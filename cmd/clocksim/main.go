// Command clocksim runs Lamport-clock ring nodes.
//
//	clocksim node --index 0 --peers 127.0.0.1:4096,127.0.0.1:4097,127.0.0.1:4098 --tick-rate 3
//	clocksim run [--config experiment.json]
//
// "node" runs a single ring member in the foreground. "run" launches one
// node process per configured address with random tick rates and collects
// their logs in a fresh experiment folder.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"clocksim/internal/config"
	"clocksim/internal/driver"
	"clocksim/internal/events"
	"clocksim/internal/node"
)

const usage = `usage: clocksim <command> [flags]

commands:
  node   run a single ring node
  run    launch a full ring experiment
`

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "node":
		err = runNode(ctx, args[1:], stderr)
	case "run":
		err = runExperiment(ctx, args[1:], stderr)
	case "-h", "--help", "help":
		fmt.Fprint(stderr, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "clocksim: %v\n", err)
		return 1
	}
}

// parseNodeFlags builds a node configuration from command-line flags.
func parseNodeFlags(args []string, stderr io.Writer) (config.Node, error) {
	fs := flag.NewFlagSet("node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var cfg config.Node
	var peers string
	fs.IntVar(&cfg.Index, "index", 0, "position of this node in the peer list")
	fs.StringVar(&cfg.ListenAddr, "listen", "", "listen address (defaults to the peer list entry at --index)")
	fs.StringVar(&peers, "peers", "", "comma-separated node addresses in ring order, self included")
	fs.IntVar(&cfg.TickRate, "tick-rate", 1, "ticks per second")
	fs.DurationVar(&cfg.Duration, "duration", config.DefaultDuration, "how long the event loop runs")
	fs.DurationVar(&cfg.SettleDelay, "settle", config.DefaultSettleDelay, "delay between listening and dialing the outbound peer")
	fs.DurationVar(&cfg.ConnectTimeout, "connect-timeout", config.DefaultConnectTimeout, "dial and accept timeout")
	fs.StringVar(&cfg.InspectAddr, "inspect", "", "gRPC inspection address (disabled when empty)")
	fs.Int64Var(&cfg.Seed, "seed", 0, "action seed shared by the experiment (0 seeds from the clock)")
	fs.StringVar(&cfg.LogDir, "log-dir", "", "directory for the node log file")
	fs.StringVar(&cfg.LogFormat, "log-format", config.LogFormatText, "log format: text or json")

	if err := fs.Parse(args); err != nil {
		return config.Node{}, err
	}

	var err error
	if cfg.Peers, err = config.ParsePeers(peers); err != nil {
		return config.Node{}, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return config.Node{}, err
	}
	return cfg, nil
}

func runNode(ctx context.Context, args []string, stderr io.Writer) error {
	cfg, err := parseNodeFlags(args, stderr)
	if err != nil {
		return err
	}

	n, err := node.New(cfg)
	if err != nil {
		return err
	}
	return n.Run(ctx)
}

func runExperiment(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("config", "", "experiment JSON file (defaults to a local three-node ring)")
	duration := fs.Duration("duration", 0, "override the experiment run duration")
	logFormat := fs.String("log-format", config.LogFormatText, "driver log format: text or json")
	if err := fs.Parse(args); err != nil {
		return err
	}

	exp := config.DefaultExperiment()
	if *path != "" {
		var err error
		if exp, err = config.LoadExperiment(*path); err != nil {
			return err
		}
	}
	if *duration > 0 {
		exp.Duration = duration.String()
		if err := exp.Validate(); err != nil {
			return err
		}
	}

	binary, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate clocksim binary: %w", err)
	}

	log, closer, err := events.NewLogger(events.LoggerOptions{
		Name:   "driver",
		Format: *logFormat,
		Level:  logrus.InfoLevel,
		Stderr: stderr,
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	res, err := driver.Run(ctx, driver.Options{
		Binary:       binary,
		Experiment:   exp,
		Logger:       log,
		PollInterval: time.Second,
	})
	if err != nil && res == nil {
		return err
	}
	for _, n := range res.Nodes {
		log.WithFields(logrus.Fields{
			"name":       n.Name,
			"tick_rate":  n.TickRate,
			"last_clock": n.LastClock,
			"backlog":    n.LastQueue,
			"killed":     n.Killed,
		}).Info("Node summary")
	}
	return err
}

package it

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugawarayuuta/sonnet"

	"clocksim/internal/driver"
)

const binaryPath = "./clocksim"

func requireBinary(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if _, err := os.Stat(binaryPath); os.IsNotExist(err) {
		t.Skip("Binary not found, skipping integration test. Build with: go build -o internal/it/clocksim ./cmd/clocksim")
	}
}

func TestSmoke_ThreeNodeRing(t *testing.T) {
	requireBinary(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	logDir := t.TempDir()
	ring, err := NewRing(binaryPath, logDir)
	require.NoError(t, err)
	defer ring.Stop()

	err = ring.Start(ctx, []int{6, 3, 1}, 5*time.Second)
	require.NoError(t, err, "Failed to start ring")

	nodes := ring.Nodes()
	require.Len(t, nodes, 3)

	// Clocks only move forward while the ring runs
	first := make([]uint64, len(nodes))
	for i, n := range nodes {
		snapCtx, snapCancel := context.WithTimeout(ctx, 2*time.Second)
		snap, err := n.Snapshot(snapCtx)
		snapCancel()
		require.NoError(t, err)
		assert.Equal(t, n.Name, snap.Name)
		assert.Equal(t, "running", snap.State)
		first[i] = snap.Clock
	}

	time.Sleep(1500 * time.Millisecond)

	for i, n := range nodes {
		snapCtx, snapCancel := context.WithTimeout(ctx, 2*time.Second)
		snap, err := n.Snapshot(snapCtx)
		snapCancel()
		if err != nil {
			// The node may already have finished.
			continue
		}
		assert.Greater(t, snap.Clock, first[i], "clock of %s advances", n.Name)
		assert.GreaterOrEqual(t, snap.Clock, uint64(snap.Ticks))
	}

	require.NoError(t, ring.Wait(ctx))

	for _, n := range nodes {
		data, err := os.ReadFile(n.LogPath(logDir))
		require.NoError(t, err)
		assert.Contains(t, string(data), "Clock engine started")
	}
}

func TestSmoke_ExperimentDriver(t *testing.T) {
	requireBinary(t)

	addrs, err := FreeAddrs(4)
	require.NoError(t, err)

	logDir := t.TempDir()
	exp := map[string]any{
		"nodes": []map[string]any{
			{"addr": addrs[0], "inspect_addr": addrs[2]},
			{"addr": addrs[1], "inspect_addr": addrs[3], "tick_rate": 2},
		},
		"duration": "4s",
		"grace":    "10s",
		"seed":     11,
		"log_dir":  logDir,
	}
	data, err := sonnet.Marshal(exp)
	require.NoError(t, err)
	expPath := filepath.Join(t.TempDir(), "experiment.json")
	require.NoError(t, os.WriteFile(expPath, data, 0644))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	out, err := exec.CommandContext(ctx, binaryPath, "run", "--config", expPath).CombinedOutput()
	require.NoError(t, err, string(out))

	summaries, err := filepath.Glob(filepath.Join(logDir, "*", "summary.json"))
	require.NoError(t, err)
	require.Len(t, summaries, 1)

	raw, err := os.ReadFile(summaries[0])
	require.NoError(t, err)
	var res driver.Result
	require.NoError(t, sonnet.Unmarshal(raw, &res))

	assert.Equal(t, driver.StopFinished, res.Reason)
	require.Len(t, res.Nodes, 2)
	assert.Equal(t, 2, res.Nodes[1].TickRate)
	for _, n := range res.Nodes {
		assert.False(t, n.Killed)
		assert.Greater(t, n.Polls, 0, "driver inspected %s", n.Name)
	}
}

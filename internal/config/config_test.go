// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultFillsEveryField(t *testing.T) {
	cfg := Default()
	require.Equal(t, "/tmp/ghostwire.sock", cfg.SocketPath)
	require.Equal(t, "127.0.0.1:4242", cfg.MetricsAddr)
	require.Equal(t, 60*time.Second, cfg.Maintenance())
	require.Equal(t, 100000, cfg.Datapath.MaxFlows)
	require.Equal(t, 100000, cfg.Datapath.MaxRatelimitEntries)
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghostwire.hcl")
	writeFile(t, path, `
socket_path = "/run/ghostwire/ctl.sock"
metrics_addr = "0.0.0.0:9090"
maintenance_interval = "30s"
interface = "eth0"
rules_file = "/etc/ghostwire/rules.yaml"

datapath {
  max_flows = 5000
  max_ratelimit_entries = 2500
}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/run/ghostwire/ctl.sock", cfg.SocketPath)
	require.Equal(t, "0.0.0.0:9090", cfg.MetricsAddr)
	require.Equal(t, 30*time.Second, cfg.Maintenance())
	require.Equal(t, "eth0", cfg.Interface)
	require.Equal(t, "/etc/ghostwire/rules.yaml", cfg.RulesFile)
	require.Equal(t, 5000, cfg.Datapath.MaxFlows)
	require.Equal(t, 2500, cfg.Datapath.MaxRatelimitEntries)
}

func TestLoadFillsMissingFieldsWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ghostwire.hcl")
	writeFile(t, path, `interface = "eth1"`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "eth1", cfg.Interface)
	require.Equal(t, "/tmp/ghostwire.sock", cfg.SocketPath)
	require.Equal(t, "127.0.0.1:4242", cfg.MetricsAddr)
	require.Equal(t, 100000, cfg.Datapath.MaxFlows)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}

func TestMaintenanceFallsBackOnMalformedDuration(t *testing.T) {
	cfg := &Config{MaintenanceInterval: "not-a-duration"}
	require.Equal(t, 60*time.Second, cfg.Maintenance())
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

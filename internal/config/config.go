// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package config decodes the process's HCL configuration file: the
// management socket path, the metrics bind address, the maintenance
// interval, an optional startup interface and rule file path, and the
// datapath table capacities. It carries no rules itself: rules come from
// the rule file named by rules_file at startup, or from RULES requests on
// the management socket.
package config

import (
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/packetware/ghostwire/internal/errors"
)

// Config is the top-level process configuration.
type Config struct {
	// Path to the management Unix domain socket.
	// @default: "/tmp/ghostwire.sock"
	SocketPath string `hcl:"socket_path,optional" json:"socket_path,omitempty"`

	// Bind address for the Prometheus metrics endpoint.
	// @default: "127.0.0.1:4242"
	MetricsAddr string `hcl:"metrics_addr,optional" json:"metrics_addr,omitempty"`

	// How often the ratelimit window is reset, as a Go duration string.
	// @default: "60s"
	MaintenanceInterval string `hcl:"maintenance_interval,optional" json:"maintenance_interval,omitempty"`

	// Interface to attach to on startup when an interface isn't supplied
	// over the management socket's ENABLE request. Empty means the
	// firewall starts disabled and waits for an ENABLE request.
	Interface string `hcl:"interface,optional" json:"interface,omitempty"`

	// Rule file to load once attached to Interface at startup. Ignored if
	// Interface is empty.
	RulesFile string `hcl:"rules_file,optional" json:"rules_file,omitempty"`

	Datapath *DatapathConfig `hcl:"datapath,block" json:"datapath,omitempty"`
}

// DatapathConfig controls the capacity of the in-process tables backing
// the holepunch and ratelimit maps.
type DatapathConfig struct {
	// Maximum tracked outbound flows in the holepunch table (C2).
	// @default: 100000
	MaxFlows int `hcl:"max_flows,optional" json:"max_flows,omitempty"`

	// Maximum tracked (src_ip, rule_id) ratelimit counters (C4).
	// @default: 100000
	MaxRatelimitEntries int `hcl:"max_ratelimit_entries,optional" json:"max_ratelimit_entries,omitempty"`
}

// Default returns the configuration used when no config file is supplied.
func Default() *Config {
	return &Config{
		SocketPath:          "/tmp/ghostwire.sock",
		MetricsAddr:         "127.0.0.1:4242",
		MaintenanceInterval: "60s",
		Datapath: &DatapathConfig{
			MaxFlows:            100000,
			MaxRatelimitEntries: 100000,
		},
	}
}

// Load decodes an HCL config file at path, filling in defaults for any
// field the file leaves unset.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := hclsimple.DecodeFile(path, nil, cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindInternal, "decode config file")
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = "/tmp/ghostwire.sock"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = "127.0.0.1:4242"
	}
	if cfg.MaintenanceInterval == "" {
		cfg.MaintenanceInterval = "60s"
	}
	if cfg.Datapath == nil {
		cfg.Datapath = &DatapathConfig{MaxFlows: 100000, MaxRatelimitEntries: 100000}
	}
	if cfg.Datapath.MaxFlows == 0 {
		cfg.Datapath.MaxFlows = 100000
	}
	if cfg.Datapath.MaxRatelimitEntries == 0 {
		cfg.Datapath.MaxRatelimitEntries = 100000
	}
	return cfg, nil
}

// Maintenance parses MaintenanceInterval, falling back to 60s on an empty
// or malformed value.
func (c *Config) Maintenance() time.Duration {
	if c.MaintenanceInterval == "" {
		return 60 * time.Second
	}
	d, err := time.ParseDuration(c.MaintenanceInterval)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command ghostwire runs the firewall's server (the management socket,
// metrics exporter, and maintenance loop) or acts as a thin client against
// an already-running server's management socket.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/packetware/ghostwire/internal/config"
	"github.com/packetware/ghostwire/internal/ctlplane"
	"github.com/packetware/ghostwire/internal/ebpf/analytics"
	"github.com/packetware/ghostwire/internal/ebpf/engine"
	"github.com/packetware/ghostwire/internal/ebpf/flow"
	"github.com/packetware/ghostwire/internal/ebpf/metrics"
	"github.com/packetware/ghostwire/internal/ebpf/programs"
	"github.com/packetware/ghostwire/internal/ebpf/ratelimit"
	"github.com/packetware/ghostwire/internal/ebpf/rules"
	"github.com/packetware/ghostwire/internal/logging"
	"github.com/packetware/ghostwire/internal/rulefile"
)

func main() {
	configPath := flag.String("config", "", "Path to an HCL config file (defaults applied when omitted)")
	socketPath := flag.String("socket", "", "Path to the management socket (overrides the config file)")
	metricsAddr := flag.String("metrics-addr", "", "Bind address for the Prometheus metrics endpoint (overrides the config file)")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "ghostwire:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	args := flag.Args()
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
	}

	var err error
	switch subcmd {
	case "", "server":
		err = runServer(cfg)
	case "status":
		err = runStatus(cfg.SocketPath)
	case "disable":
		err = runDisable(cfg.SocketPath)
	case "enable":
		err = runEnable(cfg.SocketPath, args[1:])
	case "load":
		err = runLoad(cfg.SocketPath, args[1:])
	default:
		err = fmt.Errorf("unknown command: %s", subcmd)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "ghostwire:", err)
		os.Exit(1)
	}
}

func runServer(cfg *config.Config) error {
	logger := logging.Default()

	state := ctlplane.New(logger)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go ctlplane.RunMaintenance(ctx, state, cfg.Maintenance(), logger)

	metricsServer := metrics.NewServer(cfg.MetricsAddr, analyticsSourceFor(state), logger)
	go func() {
		if err := metricsServer.ListenAndServe(ctx); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()

	attacher := attacherFor(cfg)
	if cfg.Interface != "" {
		if err := enableAtStartup(state, cfg, attacher, logger); err != nil {
			logger.Error("startup enable failed", "interface", cfg.Interface, "error", err)
		}
	}

	sockServer := ctlplane.NewServer(cfg.SocketPath, state, attacher, logger)
	return sockServer.ListenAndServe(ctx)
}

// enableAtStartup brings the firewall up on cfg.Interface, optionally
// loading cfg.RulesFile, before the management socket starts accepting
// connections. It mirrors what an operator would otherwise have to do by
// hand with "ghostwire enable" followed by "ghostwire load".
func enableAtStartup(state *ctlplane.OverallState, cfg *config.Config, attacher ctlplane.Attacher, logger *logging.Logger) error {
	var initial []rules.Rule
	if cfg.RulesFile != "" {
		data, err := os.ReadFile(cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("read %s: %w", cfg.RulesFile, err)
		}
		parsed, _, err := rulefile.Parse(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", cfg.RulesFile, err)
		}
		initial = parsed
	}
	return state.Enable(cfg.Interface, initial, attacher)
}

// analyticsSourceFor returns a metrics.Source that looks up whatever is
// currently loaded at sample time, so the metrics server can start once up
// front and still report live data across enable/disable cycles rather
// than being torn down and rebuilt each time the firewall is reloaded.
func analyticsSourceFor(state *ctlplane.OverallState) metrics.Source {
	return func() *analytics.Tables {
		_, loaded := state.Snapshot()
		if loaded == nil {
			return nil
		}
		return loaded.Analytics
	}
}

// attacherFor returns the ctlplane.Attacher used by the server: it loads
// and attaches the compiled XDP/TC collection, then wires the Go-native
// tables that back both the kernel-shared maps and the userspace mirror
// in internal/ebpf/engine, sized per cfg.Datapath. Each table is bound to
// its corresponding kernel map (RULES, HOLEPUNCHED, RATELIMITING,
// RULE_EVALUATED, RULE_PASSED, XDP_ACTION_ANALYTICS, TC_ACTION_ANALYTICS)
// so a RULES load, a ratelimit window reset, or a metrics sample reaches
// or reads from the datapath this Program actually attached, rather than
// a disconnected simulation the kernel never sees.
func attacherFor(cfg *config.Config) ctlplane.Attacher {
	return func(iface string, initial []rules.Rule) (*ctlplane.LoadedState, error) {
		logger := logging.Default()

		prog, err := programs.Load(logger)
		if err != nil {
			return nil, err
		}
		if err := prog.Attach(iface); err != nil {
			prog.Close()
			return nil, err
		}

		flows, err := flow.NewTable(&flow.Config{MaxFlows: cfg.Datapath.MaxFlows}, logger)
		if err != nil {
			prog.Close()
			return nil, err
		}
		flows.Bind(prog.Map("HOLEPUNCHED"))

		rl, err := ratelimit.NewTable(&ratelimit.Config{MaxEntries: cfg.Datapath.MaxRatelimitEntries})
		if err != nil {
			prog.Close()
			return nil, err
		}
		rl.Bind(prog.Map("RATELIMITING"))

		ruleTable := rules.New()
		ruleTable.Bind(prog.Map("RULES"))
		ruleTable.Replace(initial)

		an := analytics.New()
		an.Bind(prog.Map("RULE_EVALUATED"), prog.Map("RULE_PASSED"), prog.Map("XDP_ACTION_ANALYTICS"), prog.Map("TC_ACTION_ANALYTICS"))

		return &ctlplane.LoadedState{
			Interface:  iface,
			Rules:      ruleTable,
			Ratelimits: rl,
			Flows:      flows,
			Analytics:  an,
			Ingress:    &engine.Ingress{Flows: flows, Rules: ruleTable, Ratelimits: rl, Analytics: an},
			Egress:     &engine.Egress{Flows: flows, Analytics: an},
			Close:      prog.Close,
		}, nil
	}
}

func runStatus(socketPath string) error {
	resp, err := sendMessage(socketPath, ctlplane.ClientMessage{ReqType: ctlplane.ReqStatus})
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}

func runDisable(socketPath string) error {
	resp, err := sendMessage(socketPath, ctlplane.ClientMessage{ReqType: ctlplane.ReqDisable})
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}

func runEnable(socketPath string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ghostwire enable <interface>")
	}
	iface := args[0]
	resp, err := sendMessage(socketPath, ctlplane.ClientMessage{ReqType: ctlplane.ReqEnable, Interface: &iface})
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}

func runLoad(socketPath string, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: ghostwire load <file>")
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read %s: %w", args[0], err)
	}

	parsedRules, iface, err := rulefile.Parse(data)
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}

	resp, err := sendMessage(socketPath, ctlplane.ClientMessage{
		ReqType:   ctlplane.ReqRules,
		Interface: &iface,
		Rules:     parsedRules,
	})
	if err != nil {
		return err
	}
	fmt.Println(resp)
	return nil
}

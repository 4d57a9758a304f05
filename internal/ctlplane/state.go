// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ctlplane implements the control plane (C8/C9): the enabled/loaded
// state machine and the Unix-domain management socket that drives it.
package ctlplane

import (
	"fmt"
	"sync"

	"github.com/packetware/ghostwire/internal/ebpf/analytics"
	"github.com/packetware/ghostwire/internal/ebpf/engine"
	"github.com/packetware/ghostwire/internal/ebpf/flow"
	"github.com/packetware/ghostwire/internal/ebpf/ratelimit"
	"github.com/packetware/ghostwire/internal/ebpf/rules"
	"github.com/packetware/ghostwire/internal/errors"
	"github.com/packetware/ghostwire/internal/logging"
)

// LoadedState is everything that exists only while the firewall is loaded
// onto an interface: the attached datapath plus its tables. It is built by
// an Attacher and torn down by OverallState.Disable through its Close
// func, never constructed directly by a handler.
type LoadedState struct {
	Interface string

	Rules      *rules.Table
	Ratelimits *ratelimit.Table
	Flows      *flow.Table
	Analytics  *analytics.Tables

	Ingress *engine.Ingress
	Egress  *engine.Egress

	// Close detaches the XDP/TC programs this LoadedState was built
	// against. It is nil in tests that never attach a real datapath.
	Close func() error
}

// Attacher builds and attaches a LoadedState for iface, returning it once
// the kernel-side attach has succeeded. It is supplied by the caller
// (cmd/ghostwire) so this package stays free of any direct dependency on
// the programs package, keeping the enable/disable handshake testable
// without real kernel capabilities.
type Attacher func(iface string, initial []rules.Rule) (*LoadedState, error)

// OverallState is the single process-wide firewall state: whether it is
// enabled, and if so, what it is loaded against. It mirrors the shape the
// control plane this was distilled from used — an enabled flag alongside
// an optional loaded state — and the same two-phase locking discipline:
// a state transition flips the cheap in-memory flag before the lock is
// released, then
// performs the slow kernel attach/detach outside the lock, only taking the
// lock again to commit or roll back the result. A STATUS request arriving
// mid-transition sees the flag flip immediately rather than blocking
// behind the attach.
type OverallState struct {
	mu      sync.RWMutex
	enabled bool
	loaded  *LoadedState

	logger *logging.Logger
}

// New returns a disabled, unloaded OverallState.
func New(logger *logging.Logger) *OverallState {
	if logger == nil {
		logger = logging.Default()
	}
	return &OverallState{logger: logger}
}

// Enable attaches the datapath to iface with the given rule set and marks
// the firewall enabled. If it is already enabled, Enable fails outright —
// callers must Disable first, matching the distilled source's refusal to
// silently replace one interface's attachment with another's.
func (s *OverallState) Enable(iface string, initial []rules.Rule, attach Attacher) error {
	s.mu.Lock()
	if s.enabled {
		s.mu.Unlock()
		return fmt.Errorf("ghostwire is already enabled")
	}
	s.enabled = true
	s.mu.Unlock()

	loaded, err := attach(iface, initial)
	if err != nil {
		s.mu.Lock()
		s.enabled = false
		s.mu.Unlock()
		return errors.Wrapf(err, errors.KindDatapath, "attach %s", iface)
	}

	s.mu.Lock()
	s.loaded = loaded
	s.mu.Unlock()
	s.logger.Info("ghostwire enabled", "interface", iface, "rules", len(initial))
	return nil
}

// Disable detaches the datapath and marks the firewall disabled. Disabling
// an already-disabled firewall is a no-op success, matching STATUS-style
// idempotence expected of a control-plane command.
func (s *OverallState) Disable() error {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return nil
	}
	loaded := s.loaded
	s.enabled = false
	s.loaded = nil
	s.mu.Unlock()

	if loaded != nil && loaded.Close != nil {
		if err := loaded.Close(); err != nil {
			return errors.Wrapf(err, errors.KindDatapath, "detach %s", loaded.Interface)
		}
	}
	s.logger.Info("ghostwire disabled")
	return nil
}

// ReplaceRules swaps the loaded rule table. It requires the firewall to
// currently be enabled and loaded.
func (s *OverallState) ReplaceRules(rs []rules.Rule) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()

	if loaded == nil {
		return fmt.Errorf("ghostwire is not enabled")
	}
	loaded.Rules.Replace(rs)
	return nil
}

// Snapshot returns whether the firewall is enabled and its loaded state,
// if any. The returned *LoadedState must be treated as read-only by the
// caller: mutating it directly bypasses the lock that protects transitions.
func (s *OverallState) Snapshot() (bool, *LoadedState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled, s.loaded
}

// Summary renders the same human-readable status line the distilled
// source's Display impl produced: "Ghostwire is enabled on interface eth0
// with 3 rules", "Ghostwire is enabled" (enabled, but the attach has not
// yet produced a loaded state), or "Ghostwire is disabled".
func (s *OverallState) Summary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.enabled {
		return "Ghostwire is disabled"
	}
	if s.loaded == nil {
		return "Ghostwire is enabled"
	}
	return fmt.Sprintf("Ghostwire is enabled on interface %s with %d rules", s.loaded.Interface, s.loaded.Rules.Size())
}

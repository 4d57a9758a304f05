// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics implements the Prometheus exporter (C11): per-rule
// evaluated/passed counters and the aggregate XDP/TC verdict counters,
// sampled off internal/ebpf/analytics on a fixed cadence.
//
// Every counter family here is delta-tracked against the last sample
// before being added to the exported CounterVec. The source this was
// distilled from only delta-tracked rule_evaluated/rule_passed and called
// inc_by with the raw cumulative value for xdp_action/tc_action, which
// double-counts on every tick after the first; this exporter applies the
// same subtract-then-add treatment to all four families.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/packetware/ghostwire/internal/ebpf/analytics"
	"github.com/packetware/ghostwire/internal/ebpf/types"
)

// Source returns the analytics.Tables to sample, or nil when nothing is
// currently loaded.
type Source func() *analytics.Tables

// Exporter samples a Source and exposes the deltas as Prometheus counters.
type Exporter struct {
	mu       sync.Mutex
	registry *prometheus.Registry
	source   Source

	ruleEvaluated *prometheus.CounterVec
	rulePassed    *prometheus.CounterVec
	xdpAction     *prometheus.CounterVec
	tcAction      *prometheus.CounterVec

	lastRuleEvaluated map[uint32]uint64
	lastRulePassed    map[uint32]uint64
	lastXDPAction     map[types.XDPVerdict]uint64
	lastTCAction      map[types.EgressVerdict]uint64
}

// NewExporter builds an Exporter sampling whatever source returns at each
// Sample call, registered on a fresh Registry so tests don't collide with
// the process-wide default registry.
func NewExporter(source Source) *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		source:   source,

		ruleEvaluated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gw_rule_evaluated_total",
			Help: "Packets evaluated against a rule, by rule id.",
		}, []string{"rule_id"}),
		rulePassed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gw_rule_passed_total",
			Help: "Packets passed by a rule, by rule id.",
		}, []string{"rule_id"}),
		xdpAction: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gw_xdp_action_total",
			Help: "Aggregate ingress verdicts, by verdict.",
		}, []string{"verdict"}),
		tcAction: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gw_tc_action_total",
			Help: "Aggregate egress verdicts, by verdict.",
		}, []string{"verdict"}),

		lastRuleEvaluated: make(map[uint32]uint64),
		lastRulePassed:    make(map[uint32]uint64),
		lastXDPAction:     make(map[types.XDPVerdict]uint64),
		lastTCAction:      make(map[types.EgressVerdict]uint64),
	}

	e.registry.MustRegister(e.ruleEvaluated, e.rulePassed, e.xdpAction, e.tcAction)
	return e
}

// Registry returns the registry the exporter's metrics live in, for an
// HTTP handler to serve.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Sample reads the current analytics snapshot and adds the delta since
// the last Sample call to each exported counter. It is a no-op when the
// source currently returns nil, e.g. while the firewall is disabled.
func (e *Exporter) Sample() {
	e.mu.Lock()
	defer e.mu.Unlock()

	source := e.source()
	if source == nil {
		return
	}

	for id, ra := range source.RuleSnapshot() {
		label := strconv.FormatUint(uint64(id), 10)
		addDelta(e.ruleEvaluated.WithLabelValues(label), e.lastRuleEvaluated, id, counterLo(ra.Evaluated))
		addDelta(e.rulePassed.WithLabelValues(label), e.lastRulePassed, id, counterLo(ra.Passed))
	}

	for v, c := range source.XDPVerdictSnapshot() {
		addDelta(e.xdpAction.WithLabelValues(v.String()), e.lastXDPAction, v, counterLo(c))
	}

	for v, c := range source.EgressVerdictSnapshot() {
		addDelta(e.tcAction.WithLabelValues(v.String()), e.lastTCAction, v, counterLo(c))
	}
}

// addDelta adds the increase in current since the last call for key to
// counter, then records current as the new baseline. Generic over the map
// key type (rule id or verdict) so the same subtract-then-add logic backs
// all four counter families uniformly.
func addDelta[K comparable](counter prometheus.Counter, last map[K]uint64, key K, current uint64) {
	if current >= last[key] {
		if delta := current - last[key]; delta > 0 {
			counter.Add(float64(delta))
		}
	}
	last[key] = current
}

// counterLo takes the low 64 bits of a Counter128 as the exported value.
// The high word only ever becomes nonzero after roughly 2^64 packets on a
// single counter, a scale at which a float64 Prometheus counter has
// already lost single-packet precision; tracking Lo alone keeps the delta
// arithmetic simple without a meaningful loss of accuracy in practice.
func counterLo(c types.Counter128) uint64 {
	return c.Lo
}

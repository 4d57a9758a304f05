// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package analytics implements C5: per-rule evaluated/passed counters and
// the aggregate XDP/egress verdict counters. All writes come from the
// datapath; reads come from the metrics sampler (C11). Updates are
// read-modify-write with last-writer-wins semantics; undercounting under
// a race is acceptable, since these are statistics rather than a ledger.
package analytics

import (
	"sync"

	"github.com/cilium/ebpf"

	"github.com/packetware/ghostwire/internal/ebpf/types"
)

// Tables bundles the three analytics maps described by the data model:
// rule_analytics, xdp_verdict_counts, and egress_verdict_counts.
type Tables struct {
	mu sync.Mutex

	byRule      map[uint32]*types.RuleAnalytics
	xdpVerdicts map[types.XDPVerdict]*types.Counter128
	tcVerdicts  map[types.EgressVerdict]*types.Counter128

	ruleEvaluated *ebpf.Map
	rulePassed    *ebpf.Map
	xdpAnalytics  *ebpf.Map
	tcAnalytics   *ebpf.Map
}

// New creates an empty set of analytics tables.
func New() *Tables {
	return &Tables{
		byRule:      make(map[uint32]*types.RuleAnalytics),
		xdpVerdicts: make(map[types.XDPVerdict]*types.Counter128),
		tcVerdicts:  make(map[types.EgressVerdict]*types.Counter128),
	}
}

// Bind attaches the kernel RULE_EVALUATED, RULE_PASSED,
// XDP_ACTION_ANALYTICS, and TC_ACTION_ANALYTICS maps. Once bound, the
// snapshot methods report what the real XDP/TC datapath counted, merged
// over whatever the userspace engine mirror bumped locally, rather than
// just the local bumps alone.
func (t *Tables) Bind(ruleEvaluated, rulePassed, xdpAnalytics, tcAnalytics *ebpf.Map) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ruleEvaluated = ruleEvaluated
	t.rulePassed = rulePassed
	t.xdpAnalytics = xdpAnalytics
	t.tcAnalytics = tcAnalytics
}

// BumpEvaluated increments rule_analytics[id].evaluated.
func (t *Tables) BumpEvaluated(ruleID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ruleLocked(ruleID).Evaluated.Add(1)
}

// BumpPassed increments rule_analytics[id].passed.
func (t *Tables) BumpPassed(ruleID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ruleLocked(ruleID).Passed.Add(1)
}

// ruleLocked returns the RuleAnalytics entry for id, creating it if absent.
// Callers must hold t.mu.
func (t *Tables) ruleLocked(ruleID uint32) *types.RuleAnalytics {
	ra, ok := t.byRule[ruleID]
	if !ok {
		ra = &types.RuleAnalytics{RuleID: ruleID}
		t.byRule[ruleID] = ra
	}
	return ra
}

// RuleSnapshot returns a copy of the per-rule analytics, keyed by rule id,
// overlaid with the bound kernel counters, if any.
func (t *Tables) RuleSnapshot() map[uint32]types.RuleAnalytics {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[uint32]types.RuleAnalytics, len(t.byRule))
	for id, ra := range t.byRule {
		out[id] = *ra
	}

	merge := func(m *ebpf.Map, assign func(*types.RuleAnalytics, types.Counter128)) {
		if m == nil {
			return
		}
		var id uint32
		var c types.Counter128
		it := m.Iterate()
		for it.Next(&id, &c) {
			ra := out[id]
			ra.RuleID = id
			assign(&ra, c)
			out[id] = ra
		}
	}
	merge(t.ruleEvaluated, func(ra *types.RuleAnalytics, c types.Counter128) { ra.Evaluated = c })
	merge(t.rulePassed, func(ra *types.RuleAnalytics, c types.Counter128) { ra.Passed = c })

	return out
}

// BumpXDPVerdict increments the aggregate ingress verdict counter.
func (t *Tables) BumpXDPVerdict(v types.XDPVerdict) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.xdpVerdicts[v]
	if !ok {
		c = &types.Counter128{}
		t.xdpVerdicts[v] = c
	}
	c.Add(1)
}

// BumpEgressVerdict increments the aggregate egress verdict counter.
func (t *Tables) BumpEgressVerdict(v types.EgressVerdict) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.tcVerdicts[v]
	if !ok {
		c = &types.Counter128{}
		t.tcVerdicts[v] = c
	}
	c.Add(1)
}

// XDPVerdictSnapshot returns a copy of the aggregate ingress verdict counts,
// overlaid with the bound XDP_ACTION_ANALYTICS map, if any.
func (t *Tables) XDPVerdictSnapshot() map[types.XDPVerdict]types.Counter128 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.XDPVerdict]types.Counter128, len(t.xdpVerdicts))
	for v, c := range t.xdpVerdicts {
		out[v] = *c
	}
	if t.xdpAnalytics == nil {
		return out
	}
	var key uint32
	var c types.Counter128
	it := t.xdpAnalytics.Iterate()
	for it.Next(&key, &c) {
		out[types.XDPVerdict(key)] = c
	}
	return out
}

// EgressVerdictSnapshot returns a copy of the aggregate egress verdict
// counts, overlaid with the bound TC_ACTION_ANALYTICS map, if any.
func (t *Tables) EgressVerdictSnapshot() map[types.EgressVerdict]types.Counter128 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[types.EgressVerdict]types.Counter128, len(t.tcVerdicts))
	for v, c := range t.tcVerdicts {
		out[v] = *c
	}
	if t.tcAnalytics == nil {
		return out
	}
	var key uint32
	var c types.Counter128
	it := t.tcAnalytics.Iterate()
	for it.Next(&key, &c) {
		out[types.EgressVerdict(int32(key))] = c
	}
	return out
}

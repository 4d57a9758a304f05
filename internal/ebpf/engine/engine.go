// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package engine composes the flow table (C2), rule table (C3), ratelimit
// table (C4) and analytics (C5) into the ingress decision engine (C6) and
// the egress flow recorder (C7).
package engine

import (
	"github.com/packetware/ghostwire/internal/ebpf/analytics"
	"github.com/packetware/ghostwire/internal/ebpf/flow"
	"github.com/packetware/ghostwire/internal/ebpf/parser"
	"github.com/packetware/ghostwire/internal/ebpf/ratelimit"
	"github.com/packetware/ghostwire/internal/ebpf/rules"
	"github.com/packetware/ghostwire/internal/ebpf/types"
)

// Ingress is the ingress decision engine (C6).
type Ingress struct {
	Flows      *flow.Table
	Rules      *rules.Table
	Ratelimits *ratelimit.Table
	Analytics  *analytics.Tables
}

// Evaluate decodes frame and produces one of {PASS, DROP, ABORTED}.
//
// Order: parse, then conntrack (C2) before rule lookup (C3) — a hit refreshes
// the flow's timestamp and returns PASS unconditionally, since stateful
// return traffic for a connection this host initiated is always allowed
// regardless of what the current rule set says. Only a conntrack miss falls
// through to the rule table; a rule miss there is a DROP (default-drop).
func (e *Ingress) Evaluate(frame []byte) types.XDPVerdict {
	pkt := parser.Parse(frame)

	switch pkt.Kind {
	case parser.KindNonIPv4:
		return e.finish(types.XDPPass)
	case parser.KindMalformed:
		return e.finish(types.XDPAborted)
	case parser.KindUnsupportedTransport:
		return e.finish(types.XDPPass)
	}

	// Key the flow in the egress orientation (src=local, dst=remote) so a
	// reply matches the entry Egress.Record made for the outbound packet.
	fk := types.FlowKey{SrcIP: pkt.DstIP, SrcPort: pkt.DstPort, DstIP: pkt.SrcIP, DstPort: pkt.SrcPort, Proto: pkt.Proto}
	if e.Flows.CheckAndRefresh(fk.Hash()) {
		return e.finish(types.XDPPass)
	}

	rv, ok := e.Rules.Lookup(pkt.SrcIP, pkt.DstIP, pkt.Proto, pkt.DstPort)
	if !ok {
		return e.finish(types.XDPDrop)
	}

	e.Analytics.BumpEvaluated(rv.ID)

	if rv.RatelimitPerMinute > 0 {
		key := ratelimit.Key(pkt.SrcIP, rv.ID)
		if e.Ratelimits.Increment(key) > uint64(rv.RatelimitPerMinute) {
			return e.finish(types.XDPDrop)
		}
	}

	e.Analytics.BumpPassed(rv.ID)
	return e.finish(types.XDPPass)
}

func (e *Ingress) finish(v types.XDPVerdict) types.XDPVerdict {
	e.Analytics.BumpXDPVerdict(v)
	return v
}

// Egress is the egress flow recorder (C7). Egress never blocks traffic —
// every frame returns EgressOK — but TCP/UDP/ICMP flows are holepunched so
// the corresponding ingress traffic can return without a matching rule.
type Egress struct {
	Flows     *flow.Table
	Analytics *analytics.Tables
}

// Record decodes frame in the egress orientation (src=local, dst=remote)
// and updates the holepunch table. A TCP RST evicts the flow immediately;
// everything else — including a TCP FIN — upserts it. See flow.Table.Remove
// for why FIN doesn't evict: the original this system was distilled from
// claims FIN eviction in its comments but its code never evicts at all,
// which is itself a latent bug; the corrected behavior here evicts only on
// RST, which is pinned by a regression test.
func (e *Egress) Record(frame []byte) types.EgressVerdict {
	pkt := parser.Parse(frame)

	switch pkt.Kind {
	case parser.KindNonIPv4, parser.KindMalformed, parser.KindUnsupportedTransport:
		return e.finish(types.EgressOK)
	}

	fk := types.FlowKey{SrcIP: pkt.SrcIP, SrcPort: pkt.SrcPort, DstIP: pkt.DstIP, DstPort: pkt.DstPort, Proto: pkt.Proto}
	key := fk.Hash()

	if pkt.Kind == parser.KindTCP && pkt.TCPRST {
		e.Flows.Remove(key)
		return e.finish(types.EgressOK)
	}

	e.Flows.Upsert(key)
	return e.finish(types.EgressOK)
}

func (e *Egress) finish(v types.EgressVerdict) types.EgressVerdict {
	e.Analytics.BumpEgressVerdict(v)
	return v
}

// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package analytics

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/packetware/ghostwire/internal/ebpf/types"
)

func TestBumpEvaluatedAndPassed(t *testing.T) {
	tbl := New()
	tbl.BumpEvaluated(1)
	tbl.BumpEvaluated(1)
	tbl.BumpPassed(1)

	snap := tbl.RuleSnapshot()
	require.Equal(t, uint64(2), snap[1].Evaluated.Lo)
	require.Equal(t, uint64(1), snap[1].Passed.Lo)
}

func TestRuleSnapshotIsolation(t *testing.T) {
	tbl := New()
	tbl.BumpEvaluated(1)

	snap := tbl.RuleSnapshot()
	tbl.BumpEvaluated(1)

	require.Equal(t, uint64(1), snap[1].Evaluated.Lo)
}

func TestVerdictCounters(t *testing.T) {
	tbl := New()
	tbl.BumpXDPVerdict(types.XDPPass)
	tbl.BumpXDPVerdict(types.XDPPass)
	tbl.BumpXDPVerdict(types.XDPDrop)
	tbl.BumpEgressVerdict(types.EgressOK)

	xdp := tbl.XDPVerdictSnapshot()
	require.Equal(t, uint64(2), xdp[types.XDPPass].Lo)
	require.Equal(t, uint64(1), xdp[types.XDPDrop].Lo)

	tc := tbl.EgressVerdictSnapshot()
	require.Equal(t, uint64(1), tc[types.EgressOK].Lo)
}

// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/packetware/ghostwire/internal/ebpf/analytics"
	"github.com/packetware/ghostwire/internal/ebpf/types"
)

func TestSampleExportsDeltaNotCumulative(t *testing.T) {
	source := analytics.New()
	exp := NewExporter(func() *analytics.Tables { return source })

	source.BumpEvaluated(1)
	source.BumpEvaluated(1)
	source.BumpPassed(1)
	exp.Sample()

	require.InDelta(t, 2, testutil.ToFloat64(exp.ruleEvaluated.WithLabelValues("1")), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(exp.rulePassed.WithLabelValues("1")), 0.001)

	source.BumpEvaluated(1)
	exp.Sample()

	// A second sample must add only the delta (1 more), not the new
	// cumulative total (3) on top of what's already exported.
	require.InDelta(t, 3, testutil.ToFloat64(exp.ruleEvaluated.WithLabelValues("1")), 0.001)
}

func TestSampleExportsAggregateVerdicts(t *testing.T) {
	source := analytics.New()
	exp := NewExporter(func() *analytics.Tables { return source })

	source.BumpXDPVerdict(types.XDPDrop)
	source.BumpXDPVerdict(types.XDPDrop)
	source.BumpEgressVerdict(types.EgressOK)
	exp.Sample()

	require.InDelta(t, 2, testutil.ToFloat64(exp.xdpAction.WithLabelValues(types.XDPDrop.String())), 0.001)
	require.InDelta(t, 1, testutil.ToFloat64(exp.tcAction.WithLabelValues(types.EgressOK.String())), 0.001)

	source.BumpXDPVerdict(types.XDPDrop)
	exp.Sample()
	require.InDelta(t, 3, testutil.ToFloat64(exp.xdpAction.WithLabelValues(types.XDPDrop.String())), 0.001)
}

func TestSampleWithNoActivityAddsNothing(t *testing.T) {
	source := analytics.New()
	exp := NewExporter(func() *analytics.Tables { return source })
	exp.Sample()
	exp.Sample()
	require.Equal(t, float64(0), testutil.ToFloat64(exp.xdpAction.WithLabelValues(types.XDPPass.String())))
}

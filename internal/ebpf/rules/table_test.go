// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/packetware/ghostwire/internal/ebpf/types"
)

func ip4(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

func TestLookupMissOnEmptyTable(t *testing.T) {
	tbl := New()
	_, ok := tbl.Lookup(ip4(10, 1, 2, 3), ip4(10, 0, 0, 1), types.ProtoTCP, 22)
	require.False(t, ok)
}

func TestLPMSpecificityPrefersMoreSpecificRule(t *testing.T) {
	tbl := New()
	// R1: wildcard src/dst, tcp/22, ratelimit 0
	r1 := Rule{
		Key:   types.RuleKey{Proto: types.ProtoTCP, ProtoSet: true, DstPort: 22, PortSet: true},
		Value: types.RuleValue{ID: 1, RatelimitPerMinute: 0},
	}
	// R2: 10.0.0.0/8 src, wildcard dst, tcp/22, ratelimit 100
	r2 := Rule{
		Key:   types.RuleKey{SrcIP: ip4(10, 0, 0, 0), SrcBits: 8, Proto: types.ProtoTCP, ProtoSet: true, DstPort: 22, PortSet: true},
		Value: types.RuleValue{ID: 2, RatelimitPerMinute: 100},
	}
	tbl.Replace([]Rule{r1, r2})

	v, ok := tbl.Lookup(ip4(10, 1, 2, 3), ip4(8, 8, 8, 8), types.ProtoTCP, 22)
	require.True(t, ok)
	require.Equal(t, uint32(2), v.ID)
}

func TestTieBreakPrefersLowerID(t *testing.T) {
	tbl := New()
	key := types.RuleKey{
		SrcIP: ip4(192, 168, 1, 1), SrcBits: 32,
		DstIP: ip4(192, 168, 1, 2), DstBits: 32,
		Proto: types.ProtoTCP, ProtoSet: true,
		DstPort: 443, PortSet: true,
	}
	higher := Rule{Key: key, Value: types.RuleValue{ID: 9}}
	lower := Rule{Key: key, Value: types.RuleValue{ID: 3}}
	tbl.Replace([]Rule{higher, lower})

	v, ok := tbl.Lookup(ip4(192, 168, 1, 1), ip4(192, 168, 1, 2), types.ProtoTCP, 443)
	require.True(t, ok)
	require.Equal(t, uint32(3), v.ID)
}

func TestReplaceIsAtomicSwap(t *testing.T) {
	tbl := New()
	key := types.RuleKey{Proto: types.ProtoTCP, ProtoSet: true, DstPort: 80, PortSet: true}
	tbl.Replace([]Rule{{Key: key, Value: types.RuleValue{ID: 1}}})
	require.Equal(t, 1, tbl.Size())

	tbl.Replace([]Rule{})
	require.Equal(t, 0, tbl.Size())
}

func TestReplaceKeepsNonContiguousWildcardViaOverflow(t *testing.T) {
	tbl := New()
	// proto unset but port set: can't be embedded as a single dst- or
	// src-trailing prefix, but must still be kept and enforced.
	bad := types.RuleKey{PortSet: true, DstPort: 53}
	tbl.Replace([]Rule{{Key: bad, Value: types.RuleValue{ID: 1}}})
	require.Equal(t, 1, tbl.Size())

	v, ok := tbl.Lookup(ip4(10, 1, 2, 3), ip4(8, 8, 8, 8), types.ProtoUDP, 53)
	require.True(t, ok)
	require.Equal(t, uint32(1), v.ID)
}

func TestReplaceAllowsIndependentSrcAndDstCIDRs(t *testing.T) {
	tbl := New()
	// src /24 and dst /32 simultaneously narrowed: not representable under
	// the dst-trailing order, so it lands in the src-trailing trie (dst
	// fully specified, src trailing) rather than being silently dropped.
	rule := Rule{
		Key: types.RuleKey{
			SrcIP: ip4(10, 0, 0, 0), SrcBits: 24,
			DstIP: ip4(192, 168, 1, 5), DstBits: 32,
			Proto: types.ProtoTCP, ProtoSet: true,
			DstPort: 443, PortSet: true,
		},
		Value: types.RuleValue{ID: 7},
	}
	tbl.Replace([]Rule{rule})
	require.Equal(t, 1, tbl.Size())

	v, ok := tbl.Lookup(ip4(10, 0, 0, 200), ip4(192, 168, 1, 5), types.ProtoTCP, 443)
	require.True(t, ok)
	require.Equal(t, uint32(7), v.ID)

	_, ok = tbl.Lookup(ip4(10, 1, 0, 200), ip4(192, 168, 1, 5), types.ProtoTCP, 443)
	require.False(t, ok, "address outside the /24 must not match")
}

func TestReplaceAllowsDstTrailingAndSrcTrailingSimultaneously(t *testing.T) {
	tbl := New()
	// R1 fits only the src-trailing order (dst fully specified, src
	// partial). R2 fits only the dst-trailing order (src fully specified,
	// dst partial). Both must be enforced.
	r1 := Rule{
		Key: types.RuleKey{
			SrcIP: ip4(10, 0, 0, 0), SrcBits: 16,
			DstIP: ip4(192, 168, 1, 5), DstBits: 32,
			Proto: types.ProtoTCP, ProtoSet: true,
			DstPort: 22, PortSet: true,
		},
		Value: types.RuleValue{ID: 1},
	}
	r2 := Rule{
		Key: types.RuleKey{
			SrcIP: ip4(172, 16, 0, 9), SrcBits: 32,
			DstIP: ip4(192, 168, 0, 0), DstBits: 16,
			Proto: types.ProtoTCP, ProtoSet: true,
			DstPort: 22, PortSet: true,
		},
		Value: types.RuleValue{ID: 2},
	}
	tbl.Replace([]Rule{r1, r2})

	v, ok := tbl.Lookup(ip4(10, 0, 5, 5), ip4(192, 168, 1, 5), types.ProtoTCP, 22)
	require.True(t, ok)
	require.Equal(t, uint32(1), v.ID)

	v, ok = tbl.Lookup(ip4(172, 16, 0, 9), ip4(192, 168, 9, 9), types.ProtoTCP, 22)
	require.True(t, ok)
	require.Equal(t, uint32(2), v.ID)
}

// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package types holds the wire-level data model shared by the ingress and
// egress datapaths and the control plane: flow keys, the LPM rule key, rule
// values, analytics counters, and the verdict enums for both hook points.
package types

import "encoding/binary"

// XDPVerdict is the result of the ingress decision engine (C6).
type XDPVerdict uint32

const (
	XDPAborted  XDPVerdict = 0
	XDPDrop     XDPVerdict = 1
	XDPPass     XDPVerdict = 2
	XDPTx       XDPVerdict = 3
	XDPRedirect XDPVerdict = 4
)

func (v XDPVerdict) String() string {
	switch v {
	case XDPAborted:
		return "ABORTED"
	case XDPDrop:
		return "DROP"
	case XDPPass:
		return "PASS"
	case XDPTx:
		return "TX"
	case XDPRedirect:
		return "REDIRECT"
	default:
		return "UNKNOWN"
	}
}

// EgressVerdict is the result of the egress flow recorder (C7). Egress never
// blocks traffic; this enum exists for the TC classifier's return code, not
// as a filtering decision.
type EgressVerdict int32

const (
	EgressOK   EgressVerdict = 0
	EgressShot EgressVerdict = 2
	EgressPipe EgressVerdict = 3
)

func (v EgressVerdict) String() string {
	switch v {
	case EgressOK:
		return "OK"
	case EgressShot:
		return "SHOT"
	case EgressPipe:
		return "PIPE"
	default:
		return "UNKNOWN"
	}
}

// IP protocol numbers used throughout the rule and flow model.
const (
	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

// FlowKey is the 4-tuple identifying a tracked connection. Addresses and
// ports hold their numeric values as decoded from the big-endian wire
// bytes; Hash serializes them back in big-endian order. Ports are zero for
// ICMP, which has no port space.
type FlowKey struct {
	SrcIP   uint32
	SrcPort uint16
	DstIP   uint32
	DstPort uint16
	Proto   uint8
}

// Hash reduces the FlowKey to an opaque 64-bit map key. The source
// implementation this system was distilled from folds the tuple additively
// (src_ip + src_port + dst_ip + dst_port), which collides cheaply — two
// flows with swapped ports or addresses that happen to sum identically
// collapse onto the same bucket. This uses FNV-1a over the tuple's raw
// bytes, which avoids that structural weakness.
func (k FlowKey) Hash() uint64 {
	var buf [13]byte
	binary.BigEndian.PutUint32(buf[0:4], k.SrcIP)
	binary.BigEndian.PutUint16(buf[4:6], k.SrcPort)
	binary.BigEndian.PutUint32(buf[6:10], k.DstIP)
	binary.BigEndian.PutUint16(buf[10:12], k.DstPort)
	buf[12] = k.Proto

	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, b := range buf {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}

// RuleKey is the 88-bit composite LPM key: src_ipv4(32) || dst_ipv4(32) ||
// proto(8) || dport(16), matching the field layout of the original rule
// record. Significance is tracked per field rather than as one scalar
// prefix length: SrcBits/DstBits are the number of leading CIDR bits that
// matter for that field (0 for a wildcard, 32 for an exact host), and
// ProtoSet/PortSet say whether the all-or-nothing proto and port fields
// participate at all. A single summed "prefix length" can't round-trip
// back into per-field significance once a field in the middle of the
// layout is wildcarded while a later one isn't — see the rules package for
// how this is embedded into an actual LPM trie.
type RuleKey struct {
	SrcIP    uint32
	SrcBits  uint8
	DstIP    uint32
	DstBits  uint8
	Proto    uint8
	ProtoSet bool
	DstPort  uint16
	PortSet  bool
}

// Specificity returns the total number of significant bits across all
// fields, used for human-readable reporting and as the tie-break input
// alongside rule id.
func (k RuleKey) Specificity() int {
	n := int(k.SrcBits) + int(k.DstBits)
	if k.ProtoSet {
		n += 8
	}
	if k.PortSet {
		n += 16
	}
	return n
}

// RuleValue is the payload a RULES lookup returns.
type RuleValue struct {
	ID                 uint32
	RatelimitPerMinute uint32 // 0 means unlimited
}

// Counter128 is a 128-bit monotonically non-decreasing counter, split into
// two 64-bit halves since Go has no native 128-bit integer. Overflow of Lo
// carries into Hi. In practice these counters track packet/evaluation
// counts that would take centuries to overflow even Lo alone; the split
// exists to honor the data model's width, not because Lo realistically
// wraps.
type Counter128 struct {
	Hi uint64
	Lo uint64
}

// Add increments the counter by n, carrying into Hi on Lo overflow.
func (c *Counter128) Add(n uint64) {
	sum := c.Lo + n
	if sum < c.Lo {
		c.Hi++
	}
	c.Lo = sum
}

// RuleAnalytics holds the monotonically non-decreasing per-rule counters.
type RuleAnalytics struct {
	RuleID    uint32
	Evaluated Counter128
	Passed    Counter128
}

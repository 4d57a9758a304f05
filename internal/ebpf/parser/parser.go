// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package parser implements C1: a bounded, explicit-bounds-checked decode of
// an Ethernet/IPv4/{TCP,UDP,ICMP} frame directly over a raw byte slice.
//
// This deliberately does not use a generic packet-decoding library. The
// eBPF verifier requires every pointer dereference in the real kernel-side
// program to be preceded by an explicit bounds check against the packet's
// data_end; this package mirrors that discipline in the userspace mirror of
// the datapath so the two stay behaviorally aligned, and so every access
// pattern here has a literal bounds check a reviewer can point at.
package parser

import "encoding/binary"

const (
	ethHeaderLen  = 14
	ethTypeIPv4   = 0x0800
	ipv4MinHeader = 20
	tcpMinHeader  = 20
	udpHeaderLen  = 8
	icmpMinHeader = 4
)

// TCP flag bits within the 13th byte of the TCP header.
const (
	tcpFlagFIN = 0x01
	tcpFlagRST = 0x04
)

// ErrMalformed describes a frame that claims to carry a protocol but is
// too short to hold that protocol's header. Parse does not return it; it
// reports such frames as KindMalformed.
type ErrMalformed struct{ Reason string }

func (e *ErrMalformed) Error() string { return "malformed frame: " + e.Reason }

// Kind classifies what Parse found, mirroring the ingress algorithm's
// first step: non-IPv4 frames pass through untouched, malformed IPv4
// aborts, and unsupported transports still pass (only TCP/UDP/ICMP carry
// rule-table semantics).
type Kind int

const (
	KindNonIPv4 Kind = iota
	KindMalformed
	KindUnsupportedTransport
	KindTCP
	KindUDP
	KindICMP
)

// Packet is the decoded subset of a frame the datapath needs: the IPv4
// addresses, the transport protocol and ports, and (for TCP) the flags
// relevant to conntrack eviction.
type Packet struct {
	Kind Kind

	SrcIP uint32
	DstIP uint32
	Proto uint8

	SrcPort uint16
	DstPort uint16

	TCPRST bool
	TCPFIN bool
}

// Parse decodes an Ethernet frame. It never panics on short or malformed
// input — every slice access is preceded by a length check, and a short
// frame for a protocol that was already identified as IPv4 is reported as
// KindMalformed rather than causing a panic.
func Parse(frame []byte) Packet {
	if len(frame) < ethHeaderLen {
		return Packet{Kind: KindNonIPv4}
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])
	if etherType != ethTypeIPv4 {
		return Packet{Kind: KindNonIPv4}
	}

	ip := frame[ethHeaderLen:]
	if len(ip) < ipv4MinHeader {
		return Packet{Kind: KindMalformed}
	}

	versionIHL := ip[0]
	version := versionIHL >> 4
	if version != 4 {
		return Packet{Kind: KindMalformed}
	}
	ihl := int(versionIHL&0x0f) * 4
	if ihl < ipv4MinHeader || len(ip) < ihl {
		return Packet{Kind: KindMalformed}
	}

	proto := ip[9]
	srcIP := binary.BigEndian.Uint32(ip[12:16])
	dstIP := binary.BigEndian.Uint32(ip[16:20])

	transport := ip[ihl:]

	switch proto {
	case 6: // TCP
		if len(transport) < tcpMinHeader {
			return Packet{Kind: KindMalformed}
		}
		srcPort := binary.BigEndian.Uint16(transport[0:2])
		dstPort := binary.BigEndian.Uint16(transport[2:4])
		flags := transport[13]
		return Packet{
			Kind:    KindTCP,
			SrcIP:   srcIP,
			DstIP:   dstIP,
			Proto:   proto,
			SrcPort: srcPort,
			DstPort: dstPort,
			TCPRST:  flags&tcpFlagRST != 0,
			TCPFIN:  flags&tcpFlagFIN != 0,
		}
	case 17: // UDP
		if len(transport) < udpHeaderLen {
			return Packet{Kind: KindMalformed}
		}
		srcPort := binary.BigEndian.Uint16(transport[0:2])
		dstPort := binary.BigEndian.Uint16(transport[2:4])
		return Packet{Kind: KindUDP, SrcIP: srcIP, DstIP: dstIP, Proto: proto, SrcPort: srcPort, DstPort: dstPort}
	case 1: // ICMP
		if len(transport) < icmpMinHeader {
			return Packet{Kind: KindMalformed}
		}
		// ICMP has no port space; ports stay zero per the flow-key model.
		return Packet{Kind: KindICMP, SrcIP: srcIP, DstIP: dstIP, Proto: proto}
	default:
		return Packet{Kind: KindUnsupportedTransport, SrcIP: srcIP, DstIP: dstIP, Proto: proto}
	}
}

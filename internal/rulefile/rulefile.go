// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rulefile parses the YAML rule file format read by the load
// subcommand and by the server's startup rules_file: a top-level interface
// name plus a list of rules expressed as CIDR ranges, an optional protocol
// name, an optional port, and an optional per-minute ratelimit. The
// management socket's RULES request does not carry this format; the CLI
// converts it to rules.Rule before sending.
package rulefile

import (
	"fmt"
	"net/netip"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/packetware/ghostwire/internal/ebpf/rules"
	"github.com/packetware/ghostwire/internal/ebpf/types"
)

// Rule is the wire/file representation of a rule: human-readable CIDR
// ranges and protocol names, rather than the packed LPM key the rule table
// actually matches against.
type Rule struct {
	SourceIPRange      string  `json:"source_ip_range" yaml:"source_ip_range"`
	DestinationIPRange string  `json:"destination_ip_range" yaml:"destination_ip_range"`
	Protocol           *string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Port               *uint16 `json:"port,omitempty" yaml:"port,omitempty"`
	Ratelimit          *uint32 `json:"ratelimit,omitempty" yaml:"ratelimit,omitempty"`
}

type document struct {
	Interface string `yaml:"interface"`
	Rules     []Rule `yaml:"rules"`
}

// Parse decodes a YAML rule file into the engine's rule table format plus
// the interface it should be loaded against.
func Parse(data []byte) ([]rules.Rule, string, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, "", fmt.Errorf("rulefile: decode yaml: %w", err)
	}
	if doc.Interface == "" {
		return nil, "", fmt.Errorf("rulefile: interface not provided")
	}

	out := make([]rules.Rule, 0, len(doc.Rules))
	for i, r := range doc.Rules {
		converted, err := Convert(r, uint32(i))
		if err != nil {
			return nil, "", fmt.Errorf("rulefile: rule %d: %w", i, err)
		}
		out = append(out, converted)
	}
	return out, doc.Interface, nil
}

// Convert turns one file-format rule into the engine's packed RuleKey,
// assigning it id. The field order it populates (src, dst, proto, port)
// matches the declaration order in this struct, not the bit order the rule
// table packs them in. That reordering, and which of its three match
// buckets (and therefore whether the rule reaches the kernel map) a given
// combination of fields ends up in, is entirely the rule table's concern.
func Convert(r Rule, id uint32) (rules.Rule, error) {
	var key types.RuleKey

	srcIP, srcBits, err := parseIPRange(r.SourceIPRange)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("source_ip_range: %w", err)
	}
	key.SrcIP, key.SrcBits = srcIP, srcBits

	dstIP, dstBits, err := parseIPRange(r.DestinationIPRange)
	if err != nil {
		return rules.Rule{}, fmt.Errorf("destination_ip_range: %w", err)
	}
	key.DstIP, key.DstBits = dstIP, dstBits

	if r.Protocol != nil {
		proto, err := protocolNumber(*r.Protocol)
		if err != nil {
			return rules.Rule{}, err
		}
		key.Proto, key.ProtoSet = proto, true
	}

	if r.Port != nil {
		if !key.ProtoSet {
			return rules.Rule{}, fmt.Errorf("port provided without protocol")
		}
		key.DstPort, key.PortSet = *r.Port, true
	}

	var ratelimit uint32
	if r.Ratelimit != nil {
		ratelimit = *r.Ratelimit
	}

	return rules.Rule{
		Key:   key,
		Value: types.RuleValue{ID: id, RatelimitPerMinute: ratelimit},
	}, nil
}

func protocolNumber(name string) (uint8, error) {
	switch strings.ToLower(name) {
	case "icmp":
		return types.ProtoICMP, nil
	case "tcp":
		return types.ProtoTCP, nil
	case "udp":
		return types.ProtoUDP, nil
	default:
		return 0, fmt.Errorf("invalid protocol %q", name)
	}
}

// parseIPRange parses CIDR notation into a base IPv4 address (host byte
// order, masked to the prefix) and the prefix length. A bare address with
// no "/" is treated as a /32. "0.0.0.0/0" is the full wildcard: 0 bits.
func parseIPRange(ipRange string) (uint32, uint8, error) {
	if ipRange == "0.0.0.0/0" {
		return 0, 0, nil
	}

	addrPart, bitsPart, hasSlash := strings.Cut(ipRange, "/")
	addr, err := netip.ParseAddr(addrPart)
	if err != nil || !addr.Is4() {
		return 0, 0, fmt.Errorf("invalid IPv4 address %q", addrPart)
	}

	bits := 32
	if hasSlash {
		prefix, err := netip.ParsePrefix(ipRange)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid prefix length in %q", ipRange)
		}
		bits = prefix.Bits()
	}

	b := addr.As4()
	ip := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	if bits < 32 {
		mask := ^uint32(0) << (32 - bits)
		ip &= mask
	}
	return ip, uint8(bits), nil
}

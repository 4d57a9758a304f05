// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package rulefile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/packetware/ghostwire/internal/ebpf/types"
)

func u16(v uint16) *uint16 { return &v }
func u32(v uint32) *uint32 { return &v }
func str(v string) *string { return &v }

func TestParseWildcardRange(t *testing.T) {
	ip, bits, err := parseIPRange("0.0.0.0/0")
	require.NoError(t, err)
	require.Equal(t, uint32(0), ip)
	require.Equal(t, uint8(0), bits)
}

func TestParseBareAddressIsSlash32(t *testing.T) {
	ip, bits, err := parseIPRange("10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, uint8(32), bits)
	require.Equal(t, uint32(10)<<24|1, ip)
}

func TestParseRangeMasksHostBits(t *testing.T) {
	ip, bits, err := parseIPRange("10.1.2.3/8")
	require.NoError(t, err)
	require.Equal(t, uint8(8), bits)
	require.Equal(t, uint32(10)<<24, ip)
}

func TestConvertFullySpecifiedRule(t *testing.T) {
	r := Rule{
		SourceIPRange:      "10.0.0.0/8",
		DestinationIPRange: "0.0.0.0/0",
		Protocol:           str("tcp"),
		Port:               u16(22),
		Ratelimit:          u32(100),
	}
	out, err := Convert(r, 5)
	require.NoError(t, err)
	require.Equal(t, uint32(5), out.Value.ID)
	require.Equal(t, uint32(100), out.Value.RatelimitPerMinute)
	require.Equal(t, uint8(8), out.Key.SrcBits)
	require.Equal(t, uint8(0), out.Key.DstBits)
	require.True(t, out.Key.ProtoSet)
	require.Equal(t, uint8(types.ProtoTCP), out.Key.Proto)
	require.True(t, out.Key.PortSet)
	require.Equal(t, uint16(22), out.Key.DstPort)
}

func TestConvertPortWithoutProtocolErrors(t *testing.T) {
	r := Rule{SourceIPRange: "0.0.0.0/0", DestinationIPRange: "0.0.0.0/0", Port: u16(53)}
	_, err := Convert(r, 0)
	require.Error(t, err)
}

func TestConvertInvalidProtocolErrors(t *testing.T) {
	r := Rule{SourceIPRange: "0.0.0.0/0", DestinationIPRange: "0.0.0.0/0", Protocol: str("sctp")}
	_, err := Convert(r, 0)
	require.Error(t, err)
}

func TestParseDocument(t *testing.T) {
	doc := []byte(`
interface: eth0
rules:
  - source_ip_range: 10.0.0.0/8
    destination_ip_range: 0.0.0.0/0
    protocol: tcp
    port: 443
  - source_ip_range: 0.0.0.0/0
    destination_ip_range: 0.0.0.0/0
`)
	parsed, iface, err := Parse(doc)
	require.NoError(t, err)
	require.Equal(t, "eth0", iface)
	require.Len(t, parsed, 2)
	require.Equal(t, uint32(0), parsed[0].Value.ID)
	require.Equal(t, uint32(1), parsed[1].Value.ID)
}

func TestParseMissingInterfaceErrors(t *testing.T) {
	_, _, err := Parse([]byte(`rules: []`))
	require.Error(t, err)
}

// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package rules implements the RULES table (C3): the longest-prefix-match
// rule set consulted by the ingress engine for every packet that misses the
// holepunch table.
package rules

import (
	"encoding/binary"
	"net/netip"
	"sort"
	"sync"

	"github.com/cilium/ebpf"
	"github.com/gaissmai/bart"

	"github.com/packetware/ghostwire/internal/ebpf/types"
	"github.com/packetware/ghostwire/internal/logging"
)

// Rule pairs an LPM key with the value a hit on it returns.
type Rule struct {
	Key   types.RuleKey
	Value types.RuleValue
}

// Table is the rule set. A single proto||port||src||dst byte order can only
// ever express one field as "the last one, possibly wildcarded"; anything
// after the first wildcarded field in that order has to be fully
// wildcarded too, which is exactly the shape the kernel's RULES map (a
// BPF_MAP_TYPE_LPM_TRIE keyed the same way) supports. A rule such as {src:
// 10.0.0.0/24, dst: 192.168.1.5/32, proto: tcp, port: 443} does not fit
// that order, only its mirror image (proto||port||dst||src), and a rule
// with both src and dst partial, such as {src: 10.0.0.0/24, dst:
// 192.168.1.0/24}, fits neither, so the table keeps three buckets instead
// of one: a trie for
// rules where dst may trail a fully-specified src, a second trie for rules
// where src may trail a fully-specified dst, and a linear bucket for the
// remainder, where both fields are simultaneously partial. Lookup checks
// all three and picks the most specific hit.
type Table struct {
	mu sync.RWMutex

	dstTrailing *bart.Table[types.RuleValue]
	srcTrailing *bart.Table[types.RuleValue]
	overflow    []Rule

	logger *logging.Logger
	kmap   *ebpf.Map
}

// New returns an empty rule table logging through logging.Default().
func New() *Table {
	return NewWithLogger(logging.Default())
}

// NewWithLogger returns an empty rule table logging through l.
func NewWithLogger(l *logging.Logger) *Table {
	return &Table{
		dstTrailing: &bart.Table[types.RuleValue]{},
		srcTrailing: &bart.Table[types.RuleValue]{},
		logger:      l,
	}
}

// Bind attaches the kernel RULES map so every Replace keeps the datapath's
// LPM_TRIE in sync with the subset of the table able to represent it. An
// unbound table (the zero value of kmap) never touches the kernel, which
// is what the test tables want.
func (t *Table) Bind(m *ebpf.Map) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kmap = m
}

// region is the bit width of the fixed marker prefix ahead of the 88-bit
// packed key inside the synthetic IPv6 address bart.Table keys on. It
// exists purely to keep these addresses out of any address space a real
// caller could construct.
const region = 40

func packAddr(data [11]byte) netip.Addr {
	var b [16]byte
	copy(b[5:], data[:])
	return netip.AddrFrom16(b)
}

func toPrefix(data [11]byte, bits int) netip.Prefix {
	return netip.PrefixFrom(packAddr(data), region+bits).Masked()
}

func toLookupPrefix(data [11]byte) netip.Prefix {
	return netip.PrefixFrom(packAddr(data), region+88)
}

// packDstTrailing packs proto(8) || port(16) || src(32) || dst(32), the
// order the kernel's build_rule_lookup_key uses.
func packDstTrailing(key types.RuleKey) [11]byte {
	var data [11]byte
	data[0] = key.Proto
	binary.BigEndian.PutUint16(data[1:3], key.DstPort)
	binary.BigEndian.PutUint32(data[3:7], key.SrcIP)
	binary.BigEndian.PutUint32(data[7:11], key.DstIP)
	return data
}

// packSrcTrailing packs proto(8) || port(16) || dst(32) || src(32), the
// mirror image used for rules where src, not dst, is the trailing field.
func packSrcTrailing(key types.RuleKey) [11]byte {
	var data [11]byte
	data[0] = key.Proto
	binary.BigEndian.PutUint16(data[1:3], key.DstPort)
	binary.BigEndian.PutUint32(data[3:7], key.DstIP)
	binary.BigEndian.PutUint32(data[7:11], key.SrcIP)
	return data
}

// validateDstTrailing reports whether key can be embedded as a single
// proto||port||src||dst prefix: once a field earlier in that order is
// wildcarded, every field after it must be too.
func validateDstTrailing(key types.RuleKey) bool {
	if !key.ProtoSet {
		return !key.PortSet && key.SrcBits == 0 && key.DstBits == 0
	}
	if !key.PortSet {
		return key.SrcBits == 0 && key.DstBits == 0
	}
	if key.SrcBits != 32 {
		return key.DstBits == 0
	}
	return true
}

// validateSrcTrailing is validateDstTrailing's mirror image, for the
// proto||port||dst||src order: dst may lead a fully-specified src.
func validateSrcTrailing(key types.RuleKey) bool {
	if !key.ProtoSet {
		return !key.PortSet && key.DstBits == 0 && key.SrcBits == 0
	}
	if !key.PortSet {
		return key.DstBits == 0 && key.SrcBits == 0
	}
	if key.DstBits != 32 {
		return key.SrcBits == 0
	}
	return true
}

// prefixMatch reports whether addr falls within base/bits, treating bits
// == 0 as a wildcard.
func prefixMatch(base uint32, bits uint8, addr uint32) bool {
	if bits == 0 {
		return true
	}
	mask := ^uint32(0) << (32 - bits)
	return addr&mask == base&mask
}

// matchesOverflow reports whether an overflow-bucket rule matches the
// given 4-tuple, checking each field independently rather than relying on
// any single-prefix encoding.
func matchesOverflow(k types.RuleKey, srcIP, dstIP uint32, proto uint8, dport uint16) bool {
	if k.ProtoSet && k.Proto != proto {
		return false
	}
	if k.PortSet && k.DstPort != dport {
		return false
	}
	if !prefixMatch(k.SrcIP, k.SrcBits, srcIP) {
		return false
	}
	if !prefixMatch(k.DstIP, k.DstBits, dstIP) {
		return false
	}
	return true
}

// better reports whether a candidate with (spec, id) beats the current
// best (bestSpec, bestID); ties go to the lower rule id.
func better(found bool, bestSpec int, bestID uint32, spec int, id uint32) bool {
	if !found {
		return true
	}
	if spec != bestSpec {
		return spec > bestSpec
	}
	return id < bestID
}

// Lookup returns the highest-specificity rule matching the 4-tuple,
// checking the dst-trailing trie, the src-trailing trie, and the linear
// overflow bucket, and keeping the best hit across all three.
func (t *Table) Lookup(srcIP, dstIP uint32, proto uint8, dport uint16) (types.RuleValue, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	full := types.RuleKey{
		SrcIP: srcIP, SrcBits: 32,
		DstIP: dstIP, DstBits: 32,
		Proto: proto, ProtoSet: true,
		DstPort: dport, PortSet: true,
	}

	var (
		best     types.RuleValue
		bestSpec int
		found    bool
	)
	consider := func(v types.RuleValue, spec int) {
		if better(found, bestSpec, best.ID, spec, v.ID) {
			best, bestSpec, found = v, spec, true
		}
	}

	if lpmPfx, v, ok := t.dstTrailing.LookupPrefixLPM(toLookupPrefix(packDstTrailing(full))); ok {
		consider(v, lpmPfx.Bits()-region)
	}
	if lpmPfx, v, ok := t.srcTrailing.LookupPrefixLPM(toLookupPrefix(packSrcTrailing(full))); ok {
		consider(v, lpmPfx.Bits()-region)
	}
	for _, r := range t.overflow {
		if matchesOverflow(r.Key, srcIP, dstIP, proto, dport) {
			consider(r.Value, r.Key.Specificity())
		}
	}

	return best, found
}

// Replace atomically swaps the rule set, classifying every rule into
// whichever of the three buckets can represent it, and syncs the
// dst-trailing bucket (the shape the kernel's single LPM_TRIE map
// supports) through to the bound kernel map, if any.
func (t *Table) Replace(rulesIn []Rule) {
	var dstRules, srcRules, overflow []Rule
	for _, r := range rulesIn {
		switch {
		case validateDstTrailing(r.Key):
			dstRules = append(dstRules, r)
		case validateSrcTrailing(r.Key):
			srcRules = append(srcRules, r)
		default:
			overflow = append(overflow, r)
		}
	}

	// Insert highest id first so that among exact-duplicate prefixes
	// within a bucket, the lowest id is the one left standing.
	byIDDescending := func(rs []Rule) {
		sort.Slice(rs, func(i, j int) bool { return rs[i].Value.ID > rs[j].Value.ID })
	}
	byIDDescending(dstRules)
	byIDDescending(srcRules)
	byIDDescending(overflow)

	nextDst := &bart.Table[types.RuleValue]{}
	for _, r := range dstRules {
		nextDst.Insert(toPrefix(packDstTrailing(r.Key), r.Key.Specificity()), r.Value)
	}
	nextSrc := &bart.Table[types.RuleValue]{}
	for _, r := range srcRules {
		nextSrc.Insert(toPrefix(packSrcTrailing(r.Key), r.Key.Specificity()), r.Value)
	}

	t.mu.Lock()
	t.dstTrailing = nextDst
	t.srcTrailing = nextSrc
	t.overflow = overflow
	t.mu.Unlock()

	t.syncKernel(dstRules)
}

// kernelRuleKey mirrors struct rule_key in c/ghostwire.c: a bpf_lpm_trie_key
// header (the significant bit count) followed by the packed data bytes.
type kernelRuleKey struct {
	Prefixlen uint32
	Data      [11]byte
}

// kernelRuleValue mirrors struct rule_value in c/ghostwire.c.
type kernelRuleValue struct {
	ID                 uint32
	RatelimitPerMinute uint32
}

// syncKernel replaces the bound kernel RULES map's contents with dstRules,
// the only bucket representable as a single LPM_TRIE entry. Rules enforced
// only via the src-trailing trie or the overflow bucket are never written
// to the kernel map: the real XDP/TC datapath doesn't see them, only the
// userspace engine mirror does. See DESIGN.md for why ghostwire.c's map
// layout isn't also restructured to close that gap.
func (t *Table) syncKernel(dstRules []Rule) {
	t.mu.RLock()
	m := t.kmap
	t.mu.RUnlock()
	if m == nil {
		return
	}

	var existing []kernelRuleKey
	var key kernelRuleKey
	var val kernelRuleValue
	it := m.Iterate()
	for it.Next(&key, &val) {
		existing = append(existing, key)
	}
	if err := it.Err(); err != nil {
		t.logger.Warn("iterate kernel rule map failed", "error", err)
	}
	for i := range existing {
		if err := m.Delete(&existing[i]); err != nil {
			t.logger.Warn("delete kernel rule entry failed", "error", err)
		}
	}

	for _, r := range dstRules {
		bits := r.Key.Specificity()
		masked := toPrefix(packDstTrailing(r.Key), bits).Addr().As16()

		var kk kernelRuleKey
		kk.Prefixlen = uint32(bits)
		copy(kk.Data[:], masked[16-11:])
		kv := kernelRuleValue{ID: r.Value.ID, RatelimitPerMinute: r.Value.RatelimitPerMinute}
		if err := m.Put(&kk, &kv); err != nil {
			t.logger.Warn("install kernel rule entry failed", "rule_id", r.Value.ID, "error", err)
		}
	}
}

// Size returns the number of rules held across all three buckets.
func (t *Table) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.dstTrailing.Size() + t.srcTrailing.Size() + len(t.overflow)
}

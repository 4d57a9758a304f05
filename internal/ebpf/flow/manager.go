// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package flow implements the HOLEPUNCHED table (C2): an LRU mapping from a
// flow-key hash to the last-seen timestamp of an outbound flow, consulted by
// the ingress engine to let return traffic back in without a matching rule.
package flow

import (
	"sync"

	"github.com/cilium/ebpf"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/packetware/ghostwire/internal/ktime"
	"github.com/packetware/ghostwire/internal/logging"
)

// Config controls the flow table's capacity.
type Config struct {
	MaxFlows int
}

// DefaultConfig returns the default flow table configuration.
func DefaultConfig() *Config {
	return &Config{MaxFlows: 100000}
}

// Table is the holepunch table. It is safe for concurrent use: the
// underlying LRU cache is internally synchronized, so callers from the
// egress recorder and the ingress engine may call it from separate
// goroutines without additional locking.
type Table struct {
	cache  *lru.Cache[uint64, uint64]
	logger *logging.Logger
	config *Config

	mu   sync.Mutex
	kmap *ebpf.Map
}

// NewTable creates a holepunch table with the given capacity.
func NewTable(config *Config, logger *logging.Logger) (*Table, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cache, err := lru.New[uint64, uint64](config.MaxFlows)
	if err != nil {
		return nil, err
	}
	return &Table{cache: cache, logger: logger, config: config}, nil
}

// Bind attaches the kernel HOLEPUNCHED map so Upsert/Remove/Purge keep the
// datapath's LRU hash in sync with this table's view.
func (t *Table) Bind(m *ebpf.Map) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kmap = m
}

func (t *Table) kernelMap() *ebpf.Map {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.kmap
}

// CheckAndRefresh reports whether key is present. If it is, its last-seen
// timestamp is bumped to now as a side effect: this is the conntrack hit
// path, where stateful return traffic for a flow this host initiated always
// refreshes the window before being passed.
func (t *Table) CheckAndRefresh(key uint64) bool {
	if !t.cache.Contains(key) {
		return false
	}
	now := ktime.Now()
	t.cache.Add(key, now)
	t.putKernel(key, now)
	return true
}

// Upsert inserts or refreshes key's last-seen timestamp to now. Used by the
// egress recorder for every TCP/UDP/ICMP flow observed outbound, except a
// TCP segment carrying RST, which calls Remove instead.
func (t *Table) Upsert(key uint64) {
	now := ktime.Now()
	t.cache.Add(key, now)
	t.putKernel(key, now)
}

// Remove evicts key, e.g. on observing a TCP RST on egress. The table
// deliberately does NOT evict on FIN: a graceful close still needs ingress
// traffic (the final ACKs) to traverse the holepunch, and issuing an evict
// on FIN reopens that window while the peer is still finishing the
// handshake. Only an abrupt RST means no further return traffic should be
// expected.
func (t *Table) Remove(key uint64) {
	t.cache.Remove(key)
	if m := t.kernelMap(); m != nil {
		if err := m.Delete(&key); err != nil && t.logger != nil {
			t.logger.Warn("delete kernel holepunch entry failed", "error", err)
		}
	}
}

// Len returns the number of tracked flows.
func (t *Table) Len() int {
	return t.cache.Len()
}

// Purge clears the table, used when the firewall is disabled.
func (t *Table) Purge() {
	t.cache.Purge()
	if t.logger != nil {
		t.logger.Debug("holepunch table purged")
	}

	m := t.kernelMap()
	if m == nil {
		return
	}
	var keys []uint64
	var key, val uint64
	it := m.Iterate()
	for it.Next(&key, &val) {
		keys = append(keys, key)
	}
	for i := range keys {
		if err := m.Delete(&keys[i]); err != nil && t.logger != nil {
			t.logger.Warn("delete kernel holepunch entry failed", "error", err)
		}
	}
}

func (t *Table) putKernel(key, value uint64) {
	m := t.kernelMap()
	if m == nil {
		return
	}
	if err := m.Put(&key, &value); err != nil && t.logger != nil {
		t.logger.Warn("install kernel holepunch entry failed", "error", err)
	}
}

// Copyright (C) 2026 The Ghostwire Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package ratelimit implements the RATELIMITING table (C4): an LRU counter
// map keyed by hash(src_ip, rule_id), counting packets seen in the current
// window. The window is reset wholesale by the periodic maintenance task.
package ratelimit

import (
	"encoding/binary"
	"sync"

	"github.com/cilium/ebpf"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config controls the ratelimit table's capacity.
type Config struct {
	MaxEntries int
}

// DefaultConfig returns the default ratelimit table configuration.
func DefaultConfig() *Config {
	return &Config{MaxEntries: 100000}
}

// Table is the per-(src_ip, rule_id) counter table.
type Table struct {
	mu     sync.Mutex
	cache  *lru.Cache[uint64, uint64]
	config *Config
	kmap   *ebpf.Map
}

// NewTable creates a ratelimit table with the given capacity.
func NewTable(config *Config) (*Table, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cache, err := lru.New[uint64, uint64](config.MaxEntries)
	if err != nil {
		return nil, err
	}
	return &Table{cache: cache, config: config}, nil
}

// Bind attaches the kernel RATELIMITING map so Increment/ClearAll keep the
// datapath's LRU hash in sync with this table's counters.
func (t *Table) Bind(m *ebpf.Map) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.kmap = m
}

// Key combines a source address and rule id into the table's lookup key.
// This uses the same FNV-1a mix as types.FlowKey.Hash rather than the
// additive combination the source used, for the same collision-resistance
// reason: two (src_ip, rule_id) pairs should not cheaply collide.
func Key(srcIP uint32, ruleID uint32) uint64 {
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[0:4], srcIP)
	binary.BigEndian.PutUint32(buf[4:8], ruleID)

	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, b := range buf {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}

// Increment bumps the counter for key and returns its new value. The
// increment and read must be atomic with respect to concurrent callers:
// without the lock two ingress goroutines racing on the same key could
// both observe the pre-increment value and both pass a packet that should
// have tipped the ceiling.
func (t *Table) Increment(key uint64) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, _ := t.cache.Get(key)
	next := current + 1
	t.cache.Add(key, next)
	if t.kmap != nil {
		t.kmap.Put(&key, &next)
	}
	return next
}

// ClearAll resets every counter, invoked by the periodic maintenance task
// at the configured window cadence.
func (t *Table) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Purge()

	if t.kmap == nil {
		return
	}
	var keys []uint64
	var key, val uint64
	it := t.kmap.Iterate()
	for it.Next(&key, &val) {
		keys = append(keys, key)
	}
	for i := range keys {
		t.kmap.Delete(&keys[i])
	}
}

// Len returns the number of tracked (src_ip, rule_id) pairs.
func (t *Table) Len() int {
	return t.cache.Len()
}

// Package cache implements the handle-based object cache (C7): an
// in-process map from opaque uint32 handles to live *connection.Connection
// values, with cache-level + per-entry locking so callers get safe
// concurrent mutation without holding one lock across a blocking network
// call (spec.md §5).
package cache

import (
	"sync"
	"sync/atomic"

	"github.com/findy-network/findy-agent-conn/connection"
	"github.com/findy-network/findy-agent-conn/connerr"
)

type entry struct {
	mu   sync.RWMutex
	conn *connection.Connection
}

// Cache is the process-wide handle table. It is named at construction
// purely for telemetry (spec.md §4.7).
type Cache struct {
	name string

	mu      sync.RWMutex
	entries map[uint32]*entry
	next    uint32
}

// New returns an empty Cache identified by name.
func New(name string) *Cache {
	return &Cache{name: name, entries: make(map[uint32]*entry)}
}

// Name reports the cache's telemetry name.
func (c *Cache) Name() string { return c.name }

// Add stores conn under a freshly minted handle, unique within this
// Cache's lifetime until released.
func (c *Cache) Add(conn *connection.Connection) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := atomic.AddUint32(&c.next, 1)
	c.entries[h] = &entry{conn: conn}
	return h
}

// Get acquires shared access to the Connection at h and runs f against
// it. The cache-level lock is released before f runs, so f may safely
// perform blocking I/O; f must not call back into this Cache under the
// same handle (reentrancy is forbidden, spec.md §5).
func (c *Cache) Get(h uint32, f func(*connection.Connection) error) error {
	e, err := c.lookup(h)
	if err != nil {
		return err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := f(e.conn); err != nil {
		return err
	}
	return nil
}

// GetMut acquires exclusive access to the Connection at h and runs f
// against it, under the same reentrancy restriction as Get.
func (c *Cache) GetMut(h uint32, f func(*connection.Connection) error) error {
	e, err := c.lookup(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := f(e.conn); err != nil {
		return err
	}
	return nil
}

func (c *Cache) lookup(h uint32) (*entry, error) {
	c.mu.RLock()
	e, ok := c.entries[h]
	c.mu.RUnlock()
	if !ok {
		return nil, connerr.Newf(connerr.InvalidHandle, "unknown handle %d", h)
	}
	return e, nil
}

// Release drops h from the cache. A later Release of h returns
// InvalidConnectionHandle; a later Get or GetMut returns InvalidHandle.
func (c *Cache) Release(h uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[h]; !ok {
		return connerr.Newf(connerr.InvalidConnectionHandle, "unknown handle %d", h)
	}
	delete(c.entries, h)
	return nil
}

// ReleaseAll drops every entry from the cache. Equivalent to Drain.
func (c *Cache) ReleaseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint32]*entry)
}

// Drain is an alias for ReleaseAll (spec.md §4.7 names both).
func (c *Cache) Drain() { c.ReleaseAll() }

// Len reports the number of live handles, for telemetry/tests.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

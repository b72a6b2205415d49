// Package dedup implements the reply cache that backs at-most-once
// invocation semantics (spec §4.4, component C4).
//
// Entries are keyed by (peer address string, requestId) and expire 60
// seconds after insertion, mirroring the original implementation's
// unordered_map<string, DedupEntry> with a per-iteration sweep — adapted
// from the TTL-lease idea in the teacher's etcd registry (grant a lease,
// expire on timeout), reimplemented in-memory since etcd-backed durability
// is explicitly out of scope for this runtime (spec §1 non-goals).
package dedup

import "time"

// TTL is how long a cached reply survives after insertion.
const TTL = 60 * time.Second

// Key identifies a single (peer, requestId) pair.
type Key struct {
	Peer      string
	RequestID uint64
}

type entry struct {
	reply     []byte
	expiresAt time.Time
}

// Cache is the reference C4 implementation: a plain map, only ever touched
// from the dispatcher goroutine (spec §5 — no locking required).
type Cache struct {
	entries map[Key]entry
}

// New returns an empty dedup cache.
func New() *Cache {
	return &Cache{entries: make(map[Key]entry)}
}

// Get returns the cached reply bytes for key, if present and unexpired.
// The caller is responsible for calling Sweep periodically; Get does not
// itself check expiry against "now" beyond what Sweep has already removed,
// matching the reference implementation's cleanup-once-per-iteration shape.
func (c *Cache) Get(key Key) ([]byte, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return e.reply, true
}

// Put inserts or replaces the cached reply for key, expiring TTL from now.
func (c *Cache) Put(key Key, reply []byte, now time.Time) {
	c.entries[key] = entry{reply: reply, expiresAt: now.Add(TTL)}
}

// Sweep removes every entry whose TTL has elapsed as of now.
func (c *Cache) Sweep(now time.Time) {
	for k, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, k)
		}
	}
}

// Len reports the number of cached entries (diagnostics/tests).
func (c *Cache) Len() int {
	return len(c.entries)
}

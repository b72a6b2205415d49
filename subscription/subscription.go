// Package subscription tracks callback listeners for the bank RPC server
// (spec §4.3, component C3).
//
// The shape mirrors the teacher's registry.Registry interface — a small
// set of lifecycle operations over TTL-bearing entries — but the entries
// are per-process callback subscribers instead of etcd-backed service
// instances: dynamic service discovery is an explicit spec non-goal, while
// time-bounded callback fan-out is the whole point of MONITOR_REGISTER.
package subscription

import (
	"net"
	"time"
)

// Entry is a single active subscription.
type Entry struct {
	Peer      *net.UDPAddr
	ExpiresAt time.Time
}

// Registry is the interface the dispatcher consumes. Implementations must
// be safe to call only from a single goroutine — the dispatcher never
// calls it concurrently, matching spec §5's single-threaded ownership rule.
type Registry interface {
	// Add registers peer for ttl from now.
	Add(peer *net.UDPAddr, ttl time.Duration, now time.Time)
	// Sweep removes entries whose expiry has passed as of now.
	Sweep(now time.Time)
	// Broadcast invokes send for every live subscriber, in insertion order.
	// A failing send does not abort the fan-out and does not mutate the
	// registry.
	Broadcast(body []byte, send func(peer *net.UDPAddr, body []byte) error)
	// Len reports the number of live subscriptions (for diagnostics/tests).
	Len() int
}

// InMemory is the reference Registry: an ordered slice of live
// subscriptions, grounded on the original C++ `std::vector<MonitorEntry>`
// with `std::remove_if` sweeping and a for-range broadcast.
type InMemory struct {
	entries []Entry
}

// NewInMemory returns an empty subscription registry.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (r *InMemory) Add(peer *net.UDPAddr, ttl time.Duration, now time.Time) {
	r.entries = append(r.entries, Entry{
		Peer:      peer,
		ExpiresAt: now.Add(ttl),
	})
}

func (r *InMemory) Sweep(now time.Time) {
	live := r.entries[:0]
	for _, e := range r.entries {
		if e.ExpiresAt.After(now) {
			live = append(live, e)
		}
	}
	r.entries = live
}

func (r *InMemory) Broadcast(body []byte, send func(peer *net.UDPAddr, body []byte) error) {
	for _, e := range r.entries {
		// Best-effort: one subscriber's failure never blocks the others,
		// and the registry itself is never mutated by a send failure.
		_ = send(e.Peer, body)
	}
}

func (r *InMemory) Len() int {
	return len(r.entries)
}

var _ Registry = (*InMemory)(nil)

package dedup

import (
	"testing"
	"time"
)

func TestPutGetHit(t *testing.T) {
	c := New()
	now := time.Now()
	key := Key{Peer: "127.0.0.1:5000", RequestID: 42}

	c.Put(key, []byte("reply-bytes"), now)

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(got) != "reply-bytes" {
		t.Errorf("got %q, want %q", got, "reply-bytes")
	}
}

func TestGetMiss(t *testing.T) {
	c := New()
	if _, ok := c.Get(Key{Peer: "x", RequestID: 1}); ok {
		t.Fatal("expected cache miss on empty cache")
	}
}

func TestSweepExpiresAfterTTL(t *testing.T) {
	c := New()
	now := time.Now()
	key := Key{Peer: "127.0.0.1:5000", RequestID: 1}
	c.Put(key, []byte("x"), now)

	c.Sweep(now.Add(TTL - time.Second))
	if _, ok := c.Get(key); !ok {
		t.Fatal("entry swept before TTL elapsed")
	}

	c.Sweep(now.Add(TTL + time.Second))
	if _, ok := c.Get(key); ok {
		t.Fatal("entry survived past TTL")
	}
}

func TestDifferentPeersDoNotCollide(t *testing.T) {
	c := New()
	now := time.Now()
	c.Put(Key{Peer: "a", RequestID: 1}, []byte("a-reply"), now)
	c.Put(Key{Peer: "b", RequestID: 1}, []byte("b-reply"), now)

	a, _ := c.Get(Key{Peer: "a", RequestID: 1})
	b, _ := c.Get(Key{Peer: "b", RequestID: 1})
	if string(a) != "a-reply" || string(b) != "b-reply" {
		t.Errorf("cross-peer collision: a=%q b=%q", a, b)
	}
}

package cache

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyAndPrefix(t *testing.T) {
	if got := Key("acme", "technical"); got != "claimcheck:v1:acme:technical" {
		t.Errorf("unexpected key: %s", got)
	}
	if got := Prefix("acme"); got != "claimcheck:v1:acme:" {
		t.Errorf("unexpected prefix: %s", got)
	}
	if got := Prefix(); got != "claimcheck:v1:" {
		t.Errorf("unexpected root prefix: %s", got)
	}
}

func TestContentHash_Stable(t *testing.T) {
	a := ContentHash([]byte(`{"x":1}`))
	b := ContentHash([]byte(`{"x":1}`))
	c := ContentHash([]byte(`{"x":2}`))
	if a != b {
		t.Error("expected identical input to hash identically")
	}
	if a == c {
		t.Error("expected different input to hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestMemoryCache_GetSetDelete(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)

	if _, found := c.Get("missing"); found {
		t.Fatal("expected miss on empty cache")
	}

	entry := &Entry{Hash: "h1", Value: 42}
	c.Set("k", entry, 0)

	got, found := c.Get("k")
	if !found {
		t.Fatal("expected hit after Set")
	}
	if got != entry {
		t.Error("expected the same entry pointer back")
	}

	c.Delete("k")
	if _, found := c.Get("k"); found {
		t.Error("expected miss after Delete")
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	c := NewMemoryCache(time.Minute, time.Minute)
	c.Set("short", &Entry{Hash: "h"}, 20*time.Millisecond)

	time.Sleep(50 * time.Millisecond)

	if _, found := c.Get("short"); found {
		t.Error("expected entry to expire")
	}
}

func TestMemoryCache_DeletePrefix(t *testing.T) {
	c := NewMemoryCache(0, time.Minute)
	c.Set(Key("acme", "technical"), &Entry{}, 0)
	c.Set(Key("acme", "medical"), &Entry{}, 0)
	c.Set(Key("globex", "technical"), &Entry{}, 0)

	removed := c.DeletePrefix(Prefix("acme"))
	if removed != 2 {
		t.Errorf("expected 2 entries removed, got %d", removed)
	}
	if _, found := c.Get(Key("globex", "technical")); !found {
		t.Error("expected other tenant to survive prefix delete")
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d", c.Len())
	}
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var active, maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("same")
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("expected at most 1 holder per key, saw %d", maxActive)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	unlockA := km.Lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key should not block")
	}
}

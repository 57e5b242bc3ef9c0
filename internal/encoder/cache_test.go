package encoder

import (
	"fmt"
	"sync"
	"testing"
)

func TestCache_GetSet(t *testing.T) {
	c := NewCache(2)
	if _, ok := c.Get("missing"); ok {
		t.Error("empty cache should miss")
	}
	c.Set("a", []float32{1})
	if v, ok := c.Get("a"); !ok || v[0] != 1 {
		t.Error("expected cached value for a")
	}
}

func TestCache_EvictsOldest(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("b", []float32{2})
	c.Get("a") // refresh a, b becomes oldest
	c.Set("c", []float32{3})
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Error("a was refreshed and should survive")
	}
	if _, ok := c.Get("c"); !ok {
		t.Error("c was just inserted and should be present")
	}
}

func TestCache_EmptyKeyIgnored(t *testing.T) {
	c := NewCache(1)
	c.Set("", []float32{1})
	if _, ok := c.Get(""); ok {
		t.Error("empty key must not be stored")
	}
	c.Set("a", []float32{1})
	if _, ok := c.Get("a"); !ok {
		t.Error("empty-key set must not consume capacity")
	}
}

// Get reorders the recency list, so concurrent readers must serialize.
// Run with -race to catch regressions.
func TestCache_ConcurrentAccess(t *testing.T) {
	c := NewCache(16)
	for i := 0; i < 16; i++ {
		c.Set(fmt.Sprintf("k%d", i), []float32{float32(i)})
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k%d", (g+i)%16)
				if v, ok := c.Get(key); ok && v[0] != float32((g+i)%16) {
					t.Errorf("value for %s = %v", key, v[0])
				}
				if i%10 == 0 {
					c.Set(key, []float32{float32((g + i) % 16)})
				}
			}
		}(g)
	}
	wg.Wait()
}

func TestCache_UpdateExisting(t *testing.T) {
	c := NewCache(2)
	c.Set("a", []float32{1})
	c.Set("a", []float32{9})
	if v, _ := c.Get("a"); v[0] != 9 {
		t.Errorf("value = %v, want updated 9", v[0])
	}
}

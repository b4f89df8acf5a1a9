package bufferpool

import (
	"sync"
	"testing"

	"github.com/upe-project/upe/pkg/packet"
)

func TestAllocFreeRoundTrip(t *testing.T) {
	p, err := New(16)
	if err != nil {
		t.Fatal(err)
	}
	c := NewLocalCache(p)

	b := c.Alloc()
	if b == nil {
		t.Fatal("expected a buffer")
	}
	b.SetLen(10)
	c.Free(b)
}

func TestExhaustionReturnsNil(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	c := NewLocalCache(p)

	var got []*packet.Buffer
	for i := 0; i < 4; i++ {
		b := c.Alloc()
		if b == nil {
			t.Fatalf("unexpected nil at allocation %d", i)
		}
		got = append(got, b)
	}
	if b := c.Alloc(); b != nil {
		t.Fatal("expected nil on exhaustion")
	}
	for _, b := range got {
		c.Free(b)
	}
}

func TestFreeNilIsNoOp(t *testing.T) {
	p, _ := New(4)
	c := NewLocalCache(p)
	c.Free(nil) // must not panic
}

// TestPoolConservation checks that for any sequence of alloc/free
// across goroutines, free + held == N at quiescence.
func TestPoolConservation(t *testing.T) {
	const n = 256
	const goroutines = 8
	const rounds = 2000

	p, err := New(n)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewLocalCache(p)
			held := make([]*packet.Buffer, 0, 8)
			for i := 0; i < rounds; i++ {
				if len(held) < 4 {
					if b := c.Alloc(); b != nil {
						held = append(held, b)
					}
				} else {
					c.Free(held[len(held)-1])
					held = held[:len(held)-1]
				}
			}
			for _, b := range held {
				c.Free(b)
			}
			// Drain the cache back to the global stack so quiescence
			// accounting below sees every handle.
			c.Drain()
		}()
	}
	wg.Wait()

	if got := p.Available(); got != n {
		t.Fatalf("pool conservation violated: available=%d, want %d", got, n)
	}
}

// TestPoolUniqueness checks that no two concurrent allocations return
// the same handle.
func TestPoolUniqueness(t *testing.T) {
	const n = 512
	p, err := New(n)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	seen := make(map[*packet.Buffer]bool, n)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := NewLocalCache(p)
			for {
				b := c.Alloc()
				if b == nil {
					return
				}
				mu.Lock()
				if seen[b] {
					mu.Unlock()
					t.Errorf("handle %p allocated twice concurrently", b)
					return
				}
				seen[b] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected exactly %d distinct handles, got %d", n, len(seen))
	}
}

func TestPoolSwitchDrainsCache(t *testing.T) {
	p1, _ := New(8)
	p2, _ := New(8)
	c := NewLocalCache(p1)

	for i := 0; i < 3; i++ {
		c.Alloc()
	}
	if c.Len() == 0 {
		t.Skip("cache fast path never populated under this allocation count")
	}

	c.Rebind(p2)
	if c.Pool() != p2 {
		t.Fatal("expected cache bound to p2 after rebind")
	}
	if c.Len() != 0 {
		t.Fatalf("expected drained cache after rebind, got %d items", c.Len())
	}
}

// BenchmarkLocalCacheAllocFree exercises scaling under
// `go test -bench . -cpu 1,2,4,8`: the per-goroutine cache should
// absorb most of the traffic, keeping per-goroutine throughput close
// to flat as parallelism increases.
func BenchmarkLocalCacheAllocFree(b *testing.B) {
	p, err := New(4096)
	if err != nil {
		b.Fatal(err)
	}
	b.RunParallel(func(pb *testing.PB) {
		c := NewLocalCache(p)
		for pb.Next() {
			buf := c.Alloc()
			if buf == nil {
				continue
			}
			c.Free(buf)
		}
	})
}

func TestBackingKindString(t *testing.T) {
	p, err := New(4)
	if err != nil {
		t.Fatal(err)
	}
	switch p.Backing() {
	case BackingHugePages, BackingAnonymousMmap, BackingHeap:
	default:
		t.Fatalf("unexpected backing kind %v", p.Backing())
	}
	if err := p.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
}

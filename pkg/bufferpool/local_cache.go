package bufferpool

import "github.com/upe-project/upe/pkg/packet"

// LocalCache is a per-goroutine, per-pool LIFO of up to LocalCap
// handles. It carries the identity of the pool it is bound to;
// rebinding to a different pool first drains the cache back to the
// previous pool.
//
// A LocalCache must not be shared between goroutines: it has no
// internal locking, by design.
type LocalCache struct {
	pool  *Pool
	items []*packet.Buffer // index 0 = bottom (oldest), last = top (most recent)
}

// NewLocalCache creates a cache bound to pool.
func NewLocalCache(pool *Pool) *LocalCache {
	return &LocalCache{
		pool:  pool,
		items: make([]*packet.Buffer, 0, LocalCap),
	}
}

// Rebind switches the cache to a new pool, first draining every
// handle it currently holds back to the old pool.
func (c *LocalCache) Rebind(pool *Pool) {
	if c.pool != nil && c.pool != pool && len(c.items) > 0 {
		c.pool.pushGlobal(c.items)
		c.items = c.items[:0]
	}
	c.pool = pool
}

// Alloc returns a fresh *packet.Buffer, or nil if both the local cache
// and the global stack are exhausted.
func (c *LocalCache) Alloc() *packet.Buffer {
	if n := len(c.items); n > 0 {
		b := c.items[n-1]
		c.items = c.items[:n-1]
		return b
	}

	// Slow path: reserve up to xferBurst handles from the global stack.
	buf := make([]*packet.Buffer, xferBurst)
	got := c.pool.popGlobal(xferBurst, buf)
	if got == 0 {
		return nil
	}
	c.items = append(c.items, buf[:got]...)
	n := len(c.items)
	b := c.items[n-1]
	c.items = c.items[:n-1]
	return b
}

// Free returns b to the cache, or to the global stack if the cache is
// already full. Freeing a nil handle is a documented no-op.
func (c *LocalCache) Free(b *packet.Buffer) {
	if b == nil {
		return
	}
	b.Reset()

	if len(c.items) < LocalCap {
		c.items = append(c.items, b)
		return
	}

	// Slow path: flush xferBurst handles from the bottom of the cache
	// to the global stack, then make room for the new one.
	flushed := append([]*packet.Buffer(nil), c.items[:xferBurst]...)
	c.pool.pushGlobal(flushed)
	remaining := len(c.items) - xferBurst
	copy(c.items, c.items[xferBurst:])
	c.items = append(c.items[:remaining], b)
}

// Drain pushes every handle currently parked in the cache back to the
// bound pool's global stack, leaving the cache empty. Used when a
// goroutine is shutting down and must not leak handles into its own
// stack frame.
func (c *LocalCache) Drain() {
	if len(c.items) == 0 {
		return
	}
	c.pool.pushGlobal(c.items)
	c.items = c.items[:0]
}

// Len returns the number of handles currently parked in the cache.
func (c *LocalCache) Len() int {
	return len(c.items)
}

// Pool returns the pool this cache is currently bound to.
func (c *LocalCache) Pool() *Pool {
	return c.pool
}

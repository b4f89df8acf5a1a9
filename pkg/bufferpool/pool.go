// Package bufferpool implements a two-tier lock-free packet-buffer
// pool: a process-wide lock-free stack of free handles backing a
// per-goroutine LIFO cache. Go has no real thread-local storage, so
// the per-thread cache is realized as a *LocalCache value a worker
// goroutine creates once and owns exclusively for its lifetime.
package bufferpool

import (
	"fmt"
	"sync/atomic"

	"github.com/upe-project/upe/pkg/packet"
)

// LocalCap is the recommended per-goroutine cache size.
const LocalCap = 64

// xferBurst is the burst transfer size between a LocalCache and the
// global stack: LocalCap / 2.
const xferBurst = LocalCap / 2

// BackingKind records which backing-memory strategy a Pool ended up
// using, for diagnostics.
type BackingKind int

const (
	BackingHugePages BackingKind = iota
	BackingAnonymousMmap
	BackingHeap
)

func (k BackingKind) String() string {
	switch k {
	case BackingHugePages:
		return "hugepages"
	case BackingAnonymousMmap:
		return "mmap"
	case BackingHeap:
		return "heap"
	default:
		return "unknown"
	}
}

// Pool is a bounded, lock-free stack of N packet.Buffer handles, plus
// the storage array those handles point into. It is safe for
// concurrent Alloc/Free from many goroutines each holding their own
// LocalCache; it is not safe to Destroy concurrently with any user.
type Pool struct {
	storage []packet.Buffer
	handles []*packet.Buffer // the free-stack array; handles[0:top] are free
	top     atomic.Uint32

	capacity uint32
	backing  BackingKind
	raw      []byte // non-nil when storage is backed by an mmap'd region
}

// New allocates a pool of n buffers. It tries huge-page mmap, then
// plain anonymous mmap, then a heap slice, recording which succeeded.
func New(n int) (*Pool, error) {
	if n <= 0 {
		return nil, fmt.Errorf("bufferpool: capacity must be positive, got %d", n)
	}
	storage, raw, backing, err := allocateStorage(n)
	if err != nil {
		return nil, fmt.Errorf("bufferpool: %w", err)
	}

	p := &Pool{
		storage:  storage,
		handles:  make([]*packet.Buffer, n),
		capacity: uint32(n),
		backing:  backing,
		raw:      raw,
	}
	for i := range p.storage {
		p.handles[i] = &p.storage[i]
	}
	p.top.Store(uint32(n))
	return p, nil
}

// Capacity returns N, the total number of buffers owned by the pool.
func (p *Pool) Capacity() int {
	return int(p.capacity)
}

// Backing reports which backing-memory strategy this pool is using.
func (p *Pool) Backing() BackingKind {
	return p.backing
}

// Available returns the current free-stack height. Advisory only: by
// the time the caller reads it, concurrent allocators may have
// changed it.
func (p *Pool) Available() int {
	return int(p.top.Load())
}

// popGlobal reserves up to want handles from the top of the global
// stack in one CAS. The CAS is on the top index alone since the stack
// is a pre-allocated array, not a linked list of nodes, so there is no
// node-reuse/ABA hazard.
func (p *Pool) popGlobal(want int, out []*packet.Buffer) int {
	for {
		oldTop := p.top.Load()
		if oldTop == 0 {
			return 0
		}
		k := uint32(want)
		if k > oldTop {
			k = oldTop
		}
		newTop := oldTop - k
		if p.top.CompareAndSwap(oldTop, newTop) {
			// We now exclusively own handles[newTop:oldTop]: any other
			// popper that raced us either got a disjoint range below
			// newTop or retried against a different oldTop.
			copy(out[:k], p.handles[newTop:oldTop])
			return int(k)
		}
		// Lost the race; reread top and retry.
	}
}

// pushGlobal returns handles to the global stack. It writes the
// handles into their slots *before* advancing top: advancing top
// first would expose uninitialized slots to a concurrent popper. On
// CAS failure the writes are simply redone at the new top.
func (p *Pool) pushGlobal(handles []*packet.Buffer) {
	k := uint32(len(handles))
	if k == 0 {
		return
	}
	for {
		oldTop := p.top.Load()
		newTop := oldTop + k
		if newTop > p.capacity {
			// Should not happen if callers only ever return handles
			// they previously allocated; treat as a caller bug rather
			// than silently corrupting the stack.
			panic("bufferpool: pushGlobal would exceed capacity")
		}
		copy(p.handles[oldTop:newTop], handles)
		if p.top.CompareAndSwap(oldTop, newTop) {
			return
		}
		// Lost the race: the writes above are harmless (they sit above
		// the old top, invisible to anyone), redo them at the new top.
	}
}

// Destroy releases the pool's backing memory. It is not concurrent
// safe: the caller must quiesce every allocator and every LocalCache
// bound to this pool first. Handles still parked in a LocalCache at
// the time of a Destroy are leaked into the destroyed storage — a
// documented caveat, not a bug this package guards against.
func (p *Pool) Destroy() error {
	if p.raw != nil {
		return unmapStorage(p.raw)
	}
	return nil
}

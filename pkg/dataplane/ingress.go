package dataplane

import (
	"sync/atomic"
	"time"

	"github.com/upe-project/upe/pkg/bufferpool"
	"github.com/upe-project/upe/pkg/flowhash"
	"github.com/upe-project/upe/pkg/packet"
	"github.com/upe-project/upe/pkg/parser"
)

// ingressLoop is the sole producer on every worker ring. It allocates
// a buffer, reads one frame into it, picks a destination ring by flow
// hash (falling back to round-robin for anything unparseable), and
// pushes the buffer's handle. On pool exhaustion the frame is dropped;
// on ring-full the buffer is returned to the pool.
func (m *Manager) ingressLoop() {
	cache := bufferpool.NewLocalCache(m.pool)
	var roundRobin uint32
	var scratch [packet.Capacity]byte
	mask := uint32(len(m.rings) - 1)

	for {
		if m.stop.Load() {
			return
		}

		buf := cache.Alloc()
		if buf == nil {
			// Pool exhausted: drain the frame into scratch space and
			// drop it rather than stalling the capture source.
			if _, err := m.cfg.Source.ReadFrame(scratch[:]); err != nil {
				return
			}
			time.Sleep(time.Microsecond)
			continue
		}

		n, err := m.cfg.Source.ReadFrame(buf.Bytes())
		if err != nil {
			cache.Free(buf)
			return
		}
		buf.SetLen(n)
		buf.Timestamp = time.Now()

		idx := m.selectRing(buf.Data(), mask, &roundRobin)
		if !m.rings[idx].Push(buf) {
			cache.Free(buf)
		}
	}
}

func (m *Manager) selectRing(frame []byte, mask uint32, roundRobin *uint32) uint32 {
	if key, err := parser.Parse(frame); err == nil {
		return flowhash.Compute(key) & mask
	}
	n := atomic.AddUint32(roundRobin, 1)
	return n & mask
}

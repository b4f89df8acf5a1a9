// Package packet defines the fixed-size owned frame storage that flows
// through the dataplane: the pool, the rings, and the workers all pass
// around *Buffer values rather than copying frame bytes.
package packet

import "time"

// Capacity is the fixed payload capacity of every Buffer, in bytes.
// 2 KiB comfortably covers standard Ethernet MTUs with room for a
// handful of stacked headers; jumbo frames are out of scope.
const Capacity = 2048

// Buffer is a fixed-capacity owned frame. At any moment it belongs to
// exactly one holder: the pool's free stack, a thread-local cache, a
// ring slot, a worker, or a worker's TX batch. Ownership transfers are
// explicit: alloc/free calls and ring push/pop calls are the only
// points where a Buffer changes hands, and there is no shared
// ownership at any point.
type Buffer struct {
	data [Capacity]byte
	// Len is the number of valid bytes at the front of data.
	Len int
	// Timestamp is the ingress time, set by the capture source. It is
	// optional; the zero Time means "not recorded".
	Timestamp time.Time
}

// Data returns the valid portion of the buffer.
func (b *Buffer) Data() []byte {
	return b.data[:b.Len]
}

// Bytes returns the full backing array as a slice, for writers that
// need to fill the buffer before calling SetLen.
func (b *Buffer) Bytes() []byte {
	return b.data[:]
}

// SetLen records how many bytes of Bytes() are valid. It panics if n
// exceeds Capacity: that would mean the caller wrote past the owned
// storage, which is always a caller bug, never a runtime condition.
func (b *Buffer) SetLen(n int) {
	if n < 0 || n > Capacity {
		panic("packet: length out of range")
	}
	b.Len = n
}

// Reset clears length and timestamp so the buffer looks freshly
// allocated. It deliberately does not zero the data array: the next
// writer overwrites exactly Len bytes before anyone reads them, and
// zeroing 2 KiB on every free would cost real throughput for no
// observable benefit.
func (b *Buffer) Reset() {
	b.Len = 0
	b.Timestamp = time.Time{}
}

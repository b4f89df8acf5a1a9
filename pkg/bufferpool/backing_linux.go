package bufferpool

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/upe-project/upe/pkg/packet"
)

const hugePageSize = 2 << 20 // 2 MiB

// allocateStorage picks a backing strategy for n packet.Buffer values:
// a single huge-page mapping (rounded up to 2 MiB) first, then a plain
// anonymous mapping, then a heap slice as the final fallback. It
// returns the typed storage slice, the raw byte slice backing it when
// mmap succeeded (nil for the heap fallback, so Destroy knows not to
// munmap a GC-owned slice), and which strategy won.
func allocateStorage(n int) ([]packet.Buffer, []byte, BackingKind, error) {
	size := n * int(unsafe.Sizeof(packet.Buffer{}))

	if raw, err := mmapAnonymous(size, true); err == nil {
		return bytesToBuffers(raw, n), raw, BackingHugePages, nil
	}
	if raw, err := mmapAnonymous(size, false); err == nil {
		return bytesToBuffers(raw, n), raw, BackingAnonymousMmap, nil
	}
	return make([]packet.Buffer, n), nil, BackingHeap, nil
}

func mmapAnonymous(size int, huge bool) ([]byte, error) {
	mapSize := size
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if huge {
		mapSize = roundUp(size, hugePageSize)
		flags |= unix.MAP_HUGETLB
	}
	raw, err := unix.Mmap(-1, 0, mapSize, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("mmap(huge=%v, size=%d): %w", huge, mapSize, err)
	}
	return raw[:size], nil
}

func unmapStorage(raw []byte) error {
	return unix.Munmap(raw)
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return (n/multiple + 1) * multiple
}

// bytesToBuffers reinterprets a raw mmap'd byte slice as a slice of n
// packet.Buffer values sitting contiguously in that mapping. The
// underlying memory is zeroed by the kernel on mmap, matching the
// zero-value state the heap fallback (make) would produce.
func bytesToBuffers(raw []byte, n int) []packet.Buffer {
	return unsafe.Slice((*packet.Buffer)(unsafe.Pointer(&raw[0])), n)
}

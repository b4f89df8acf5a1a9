package ring

import (
	"sync"
	"testing"
	"time"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	if _, err := New[int](100); err != ErrNotPowerOfTwo {
		t.Fatalf("capacity 100: expected ErrNotPowerOfTwo, got %v", err)
	}
	if _, err := New[int](4); err != nil {
		t.Fatalf("capacity 4: expected success, got %v", err)
	}
	if _, err := New[int](0); err != ErrNotPowerOfTwo {
		t.Fatalf("capacity 0: expected ErrNotPowerOfTwo, got %v", err)
	}
}

func TestPushPopFIFO(t *testing.T) {
	r, err := New[int](8)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if !r.Push(i) {
			t.Fatalf("push %d failed", i)
		}
	}
	for i := 0; i < 5; i++ {
		v, ok := r.Pop()
		if !ok || v != i {
			t.Fatalf("pop %d: got %d, %v", i, v, ok)
		}
	}
	if _, ok := r.Pop(); ok {
		t.Fatal("expected empty ring")
	}
}

func TestCapacityNeverExceeded(t *testing.T) {
	r, err := New[int](4)
	if err != nil {
		t.Fatal(err)
	}
	items := []int{1, 2, 3, 4, 5, 6}
	n := r.PushBurst(items)
	if n != 4 {
		t.Fatalf("expected to push exactly capacity (4), got %d", n)
	}
	out := make([]int, 10)
	k := r.PopBurst(out)
	if k != 4 {
		t.Fatalf("expected to pop exactly 4, got %d", k)
	}
	for i := 0; i < 4; i++ {
		if out[i] != items[i] {
			t.Fatalf("out[%d] = %d, want %d", i, out[i], items[i])
		}
	}
}

func TestSingleProducerSingleConsumerUnderLoad(t *testing.T) {
	const n = 100000
	r, err := New[int](1024)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		i := 0
		for i < n {
			if r.Push(i) {
				i++
			}
		}
	}()

	received := make([]int, 0, n)
	go func() {
		defer wg.Done()
		for len(received) < n {
			v, ok := r.Pop()
			if !ok {
				time.Sleep(time.Microsecond)
				continue
			}
			received = append(received, v)
		}
	}()

	wg.Wait()

	if len(received) != n {
		t.Fatalf("expected %d items, got %d", n, len(received))
	}
	for i, v := range received {
		if v != i {
			t.Fatalf("out of order or duplicate/gap at index %d: got %d", i, v)
		}
	}
}

func TestPopBurstNeverExceedsAvailable(t *testing.T) {
	r, err := New[int](16)
	if err != nil {
		t.Fatal(err)
	}
	r.PushBurst([]int{1, 2, 3})
	out := make([]int, 10)
	k := r.PopBurst(out)
	if k != 3 {
		t.Fatalf("expected 3, got %d", k)
	}
}

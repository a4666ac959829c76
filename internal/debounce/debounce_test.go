package debounce

import (
	"sync"
	"testing"
	"time"
)

func TestCoalescesBurst(t *testing.T) {
	var mu sync.Mutex
	var batches [][]string

	d := New[string](
		WithDelay[string](30*time.Millisecond),
		WithOnFlush[string](func(items []string) {
			mu.Lock()
			batches = append(batches, items)
			mu.Unlock()
		}),
	)
	defer d.Stop()

	d.Enqueue("a")
	d.Enqueue("b")
	d.Enqueue("c")

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(batches) != 1 {
		t.Fatalf("expected 1 coalesced batch, got %d", len(batches))
	}
	if len(batches[0]) != 3 {
		t.Errorf("expected all 3 items in batch, got %v", batches[0])
	}
}

func TestKeysFlushIndependently(t *testing.T) {
	var mu sync.Mutex
	flushed := map[string]int{}

	d := New[string](
		WithDelay[string](20*time.Millisecond),
		WithKey[string](func(s string) string { return s }),
		WithOnFlush[string](func(items []string) {
			mu.Lock()
			flushed[items[0]]++
			mu.Unlock()
		}),
	)
	defer d.Stop()

	d.Enqueue("x")
	d.Enqueue("y")
	if d.Pending() != 2 {
		t.Errorf("Pending = %d, want 2", d.Pending())
	}

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if flushed["x"] != 1 || flushed["y"] != 1 {
		t.Errorf("each key should flush once: %v", flushed)
	}
}

func TestManualFlush(t *testing.T) {
	var mu sync.Mutex
	count := 0

	d := New[int](
		WithDelay[int](time.Hour),
		WithOnFlush[int](func(items []int) {
			mu.Lock()
			count += len(items)
			mu.Unlock()
		}),
	)
	defer d.Stop()

	d.Enqueue(1)
	d.Enqueue(2)
	d.Flush("default")

	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("manual flush delivered %d items, want 2", count)
	}
}

func TestStopDropsPending(t *testing.T) {
	var mu sync.Mutex
	count := 0

	d := New[int](
		WithDelay[int](10*time.Millisecond),
		WithOnFlush[int](func(items []int) {
			mu.Lock()
			count += len(items)
			mu.Unlock()
		}),
	)

	d.Enqueue(1)
	d.Stop()
	d.Enqueue(2)

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 0 {
		t.Errorf("stopped debouncer flushed %d items", count)
	}
}

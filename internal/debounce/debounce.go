// Package debounce provides a keyed debouncer for coalescing bursts of
// events, such as the rapid write sequences editors produce when saving
// a watched file.
package debounce

import (
	"sync"
	"time"
)

// buffer holds pending items and their flush timer for one key.
type buffer[T any] struct {
	items []T
	timer *time.Timer
}

// Debouncer batches items by key and flushes each batch once the key
// has been quiet for the configured delay. New items reset the timer.
type Debouncer[T any] struct {
	mu      sync.Mutex
	buffers map[string]*buffer[T]
	stopped bool

	delay   time.Duration
	key     func(item T) string
	onFlush func(items []T)
}

// Option configures a Debouncer.
type Option[T any] func(*Debouncer[T])

// WithDelay sets the quiet period before a batch flushes.
func WithDelay[T any](d time.Duration) Option[T] {
	return func(db *Debouncer[T]) {
		if d < 0 {
			d = 0
		}
		db.delay = d
	}
}

// WithKey sets the grouping function. Items with equal keys coalesce
// into one batch.
func WithKey[T any](fn func(item T) string) Option[T] {
	return func(db *Debouncer[T]) {
		db.key = fn
	}
}

// WithOnFlush sets the callback invoked with each flushed batch.
func WithOnFlush[T any](fn func(items []T)) Option[T] {
	return func(db *Debouncer[T]) {
		db.onFlush = fn
	}
}

// New creates a Debouncer with the given options.
func New[T any](opts ...Option[T]) *Debouncer[T] {
	d := &Debouncer[T]{
		buffers: make(map[string]*buffer[T]),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.key == nil {
		d.key = func(T) string { return "default" }
	}
	if d.onFlush == nil {
		d.onFlush = func([]T) {}
	}
	return d
}

// Enqueue adds an item. With a zero delay the item flushes immediately.
func (d *Debouncer[T]) Enqueue(item T) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}

	key := d.key(item)
	if d.delay == 0 {
		buf := d.buffers[key]
		var items []T
		if buf != nil {
			items = buf.items
			d.removeLocked(key, buf)
		}
		d.mu.Unlock()
		d.onFlush(append(items, item))
		return
	}

	if buf, ok := d.buffers[key]; ok {
		buf.items = append(buf.items, item)
		buf.timer.Stop()
		buf.timer = time.AfterFunc(d.delay, func() { d.Flush(key) })
		d.mu.Unlock()
		return
	}

	buf := &buffer[T]{items: []T{item}}
	buf.timer = time.AfterFunc(d.delay, func() { d.Flush(key) })
	d.buffers[key] = buf
	d.mu.Unlock()
}

// Flush immediately delivers any pending batch for key.
func (d *Debouncer[T]) Flush(key string) {
	d.mu.Lock()
	buf, ok := d.buffers[key]
	if !ok || d.stopped {
		d.mu.Unlock()
		return
	}
	items := buf.items
	d.removeLocked(key, buf)
	d.mu.Unlock()

	if len(items) > 0 {
		d.onFlush(items)
	}
}

func (d *Debouncer[T]) removeLocked(key string, buf *buffer[T]) {
	delete(d.buffers, key)
	if buf.timer != nil {
		buf.timer.Stop()
		buf.timer = nil
	}
}

// Stop cancels all pending timers and drops buffered items. Further
// Enqueue calls become no-ops.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for key, buf := range d.buffers {
		if buf.timer != nil {
			buf.timer.Stop()
		}
		delete(d.buffers, key)
	}
}

// Pending returns the number of keys with buffered items.
func (d *Debouncer[T]) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

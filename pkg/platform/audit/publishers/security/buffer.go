package security

import (
	"sync"

	audit "credence/pkg/platform/audit"
)

const defaultCapacity = 10_000

// RingBuffer holds security events awaiting persistence. It is bounded: once
// full, the oldest event is discarded and counted in Dropped.
type RingBuffer struct {
	mu      sync.Mutex
	slots   []audit.SecurityEvent
	start   int
	size    int
	dropped int64
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &RingBuffer{slots: make([]audit.SecurityEvent, capacity)}
}

// Enqueue appends event, overwriting the oldest one when full.
func (b *RingBuffer) Enqueue(event audit.SecurityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == len(b.slots) {
		b.slots[b.start] = event
		b.start = b.index(1)
		b.dropped++
		return
	}
	b.slots[b.index(b.size)] = event
	b.size++
}

// Requeue puts events that failed to persist back at the front, keeping their
// order. Events that no longer fit are dropped; newer events win.
func (b *RingBuffer) Requeue(events []audit.SecurityEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := len(events) - 1; i >= 0; i-- {
		if b.size == len(b.slots) {
			b.dropped += int64(i + 1)
			return
		}
		b.start = b.index(-1)
		b.slots[b.start] = events[i]
		b.size++
	}
}

// DequeueBatch removes up to n of the oldest events.
func (b *RingBuffer) DequeueBatch(n int) []audit.SecurityEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	n = min(n, b.size)
	if n <= 0 {
		return nil
	}
	out := make([]audit.SecurityEvent, n)
	for i := range out {
		out[i] = b.slots[b.start]
		b.slots[b.start] = audit.SecurityEvent{}
		b.start = b.index(1)
	}
	b.size -= n
	return out
}

func (b *RingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *RingBuffer) Dropped() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// index maps an offset from start onto the backing slice.
func (b *RingBuffer) index(offset int) int {
	n := len(b.slots)
	return ((b.start+offset)%n + n) % n
}

// Package reassembly implements the reassembly stage (spec.md §4.4,
// [MODULE] C4) and the single-slot mailbox handoff to the decompress stage
// described in spec.md §5. The mailbox shape (one mutex, two condition
// variables, a poison message) is this package's reading of spec.md
// §9's "Coroutine-shaped producer/consumer handoff" design note; it is
// grounded on the producer/consumer discipline in
// zalo-moonparty/moonlight-common-go/video/stream.go's decoderLoop, which
// hands off one completed frame at a time to a single decode goroutine.
package reassembly

import "sync"

// Mailbox is a bounded, one-item handoff between the reassembly task (the
// producer) and the decompress task (the consumer). Put blocks while the
// slot is occupied; Take blocks while it is empty. Close delivers a poison
// value and wakes both sides so they can shut down in order.
type Mailbox[T any] struct {
	mu     sync.Mutex
	full   *sync.Cond
	empty  *sync.Cond
	item   T
	hasVal bool
	closed bool
}

// NewMailbox creates an empty Mailbox.
func NewMailbox[T any]() *Mailbox[T] {
	m := &Mailbox[T]{}
	m.full = sync.NewCond(&m.mu)
	m.empty = sync.NewCond(&m.mu)
	return m
}

// Put blocks until the slot is empty (or the mailbox is closed), then
// stores v. Returns false if the mailbox was closed before the item could
// be delivered.
func (m *Mailbox[T]) Put(v T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.hasVal && !m.closed {
		m.empty.Wait()
	}
	if m.closed {
		return false
	}
	m.item = v
	m.hasVal = true
	m.full.Signal()
	return true
}

// Take blocks until an item is available (or the mailbox is closed), then
// removes and returns it. ok is false once the mailbox is closed and
// drained.
func (m *Mailbox[T]) Take() (v T, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for !m.hasVal && !m.closed {
		m.full.Wait()
	}
	if !m.hasVal {
		var zero T
		return zero, false
	}
	v = m.item
	m.hasVal = false
	m.empty.Signal()
	return v, true
}

// Close marks the mailbox closed and wakes any blocked Put/Take, so that
// the reassembly -> decompress shutdown ordering in spec.md §5 can proceed:
// callers close the mailbox the reassembly task writes to first, letting
// the decompress task drain the last item (if any) and exit.
func (m *Mailbox[T]) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.full.Broadcast()
	m.empty.Broadcast()
}

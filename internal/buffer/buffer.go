// internal/buffer/buffer.go
package buffer

import (
	"sync"
	"time"

	"github.com/solatis/busprobe/internal/types"
)

/*
 * Shared message buffer between transports and awaiters.
 *
 * Transports Append decoded envelopes; awaiters take a Snapshot, evaluate
 * it without holding any lock, and claim a match with Remove. Remove is a
 * compare-and-remove by pointer identity: when two awaiters race for the
 * same document exactly one gets true, the other treats it as not found
 * and keeps polling.
 *
 * Key functions:
 *   - Append: assign Seq and ReceivedAt, store, evict oldest when full
 *   - Snapshot: isolated copy of the current contents, oldest first
 *   - Remove: claim a document by identity
 *   - Clear: drop everything (between scenarios)
 */

// Buffer is a bounded, concurrency-safe message store.
type Buffer struct {
	mu      sync.RWMutex
	docs    []*types.Document
	seq     uint64
	maxSize int
	evicted uint64
	closed  bool
	now     func() time.Time
}

// New creates a buffer. maxSize <= 0 means unbounded.
func New(maxSize int) *Buffer {
	return &Buffer{maxSize: maxSize, now: time.Now}
}

// Append stores doc, assigning its Seq and ReceivedAt.
// The caller must not mutate doc afterwards.
func (b *Buffer) Append(doc *types.Document) (*types.Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, types.ErrBufferClosed
	}

	b.seq++
	doc.Seq = b.seq
	doc.ReceivedAt = b.now()
	b.docs = append(b.docs, doc)

	if b.maxSize > 0 && len(b.docs) > b.maxSize {
		drop := len(b.docs) - b.maxSize
		clear(b.docs[:drop])
		b.docs = b.docs[drop:]
		b.evicted += uint64(drop)
	}
	return doc, nil
}

// AppendBody wraps body in a Document from source and appends it.
func (b *Buffer) AppendBody(source string, body any) (*types.Document, error) {
	return b.Append(&types.Document{Source: source, Body: body})
}

// Snapshot returns the buffered documents, oldest first.
// The slice is a copy; later appends and removals do not affect it.
func (b *Buffer) Snapshot() []*types.Document {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*types.Document, len(b.docs))
	copy(out, b.docs)
	return out
}

// Remove deletes doc (by identity) and reports whether it was present.
func (b *Buffer) Remove(doc *types.Document) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, d := range b.docs {
		if d == doc {
			b.docs = append(b.docs[:i], b.docs[i+1:]...)
			return true
		}
	}
	return false
}

// Clear drops all buffered documents. Sequence numbers keep increasing.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.docs = nil
}

// Len returns the number of buffered documents.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.docs)
}

// Evicted returns how many documents were dropped because the buffer was full.
func (b *Buffer) Evicted() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.evicted
}

// Close rejects further appends. Buffered documents stay readable.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
}

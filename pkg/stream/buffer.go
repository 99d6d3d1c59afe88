// Package stream accumulates text fragments arriving from a provider
// stream into one growing string and fans each fragment out to observers
// so partial text is visible before completion.
package stream

import (
	"errors"
	"sync"

	"github.com/valyala/bytebufferpool"
)

// ErrFinalized is recorded when a fragment arrives after Finalize.
var ErrFinalized = errors.New("stream already finalized")

// Observer receives each appended fragment together with the accumulated
// text so far. Observers run synchronously under the buffer lock; keep
// them cheap (hand off to a channel for slow consumers).
type Observer func(fragment, total string)

// maxPooledBuffer controls the largest buffer that is returned to the
// pool. Larger buffers are dropped so a single huge response does not pin
// resident memory.
var maxPooledBuffer = 256 * 1024

// SetMaxPooledBuffer overrides the pooled-buffer cap. Call before any
// streams start; it is not synchronized with in-flight buffers.
func SetMaxPooledBuffer(n int) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

// Buffer accumulates an ordered sequence of fragments for exactly one
// in-flight response. All methods are safe for concurrent use; appends
// are applied atomically in call order.
type Buffer struct {
	mu        sync.Mutex
	buf       *bytebufferpool.ByteBuffer
	final     string
	done      bool
	err       error
	observers []Observer
}

// New returns an empty buffer backed by a pooled byte buffer.
func New() *Buffer {
	return &Buffer{buf: bytebufferpool.Get()}
}

// Subscribe registers an observer for subsequent appends.
func (b *Buffer) Subscribe(fn Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers = append(b.observers, fn)
}

// Append concatenates fragment after everything appended before it and
// returns the current accumulated text. Appends after Finalize are
// discarded; the final text is returned unchanged.
func (b *Buffer) Append(fragment string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		staleFragments.Inc()
		return b.final
	}
	b.buf.B = append(b.buf.B, fragment...)
	fragmentsIngested.Inc()
	bytesIngested.Add(float64(len(fragment)))
	total := string(b.buf.B)
	for _, fn := range b.observers {
		fn(fragment, total)
	}
	return total
}

// Finalize marks the stream complete and returns the final text. It is
// idempotent; a second call returns the same text.
func (b *Buffer) Finalize() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return b.final
	}
	b.seal()
	streamsFinalized.Inc()
	return b.final
}

// Fail marks the stream complete with an explicit error marker while
// preserving whatever text was accumulated so far. Idempotent; the first
// recorded error wins.
func (b *Buffer) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.err = err
	b.seal()
	streamsFailed.Inc()
}

// seal snapshots the accumulated text and releases the pooled buffer.
// Caller must hold b.mu.
func (b *Buffer) seal() {
	b.final = string(b.buf.B)
	b.done = true
	if cap(b.buf.B) <= maxPooledBuffer {
		bytebufferpool.Put(b.buf)
	}
	b.buf = nil
}

// Text returns the accumulated text so far (final text once sealed).
func (b *Buffer) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return b.final
	}
	return string(b.buf.B)
}

// Err returns the recorded error marker, nil unless Fail was called.
func (b *Buffer) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done reports whether the stream was finalized or failed.
func (b *Buffer) Done() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

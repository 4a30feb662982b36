package index

import (
	"context"
	"sync"
	"time"

	"github.com/forwardimpact/monorepo-sub001/internal/storage"
)

// BufferedIndexOption configures a BufferedIndex.
type BufferedIndexOption func(*BufferedIndex)

// WithMaxBufferSize sets the buffer size that triggers an automatic
// flush. Defaults to 100.
func WithMaxBufferSize(n int) BufferedIndexOption {
	return func(b *BufferedIndex) { b.maxBufferSize = n }
}

// WithFlushInterval sets the time-based automatic flush trigger.
// Defaults to 5s.
func WithFlushInterval(d time.Duration) BufferedIndexOption {
	return func(b *BufferedIndex) { b.flushInterval = d }
}

// BufferedIndex defers persistence: Add updates the in-memory map
// immediately so queries observe it right away, but enqueues the
// record for a later batched Append, flushed when the buffer reaches
// maxBufferSize, on flushInterval, or on explicit Flush/Shutdown.
type BufferedIndex struct {
	*Index

	maxBufferSize int
	flushInterval time.Duration

	mu     sync.Mutex
	buffer []Entry

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBuffered constructs a BufferedIndex over the given backend/key.
func NewBuffered(name string, backend storage.Backend, key string, opts ...BufferedIndexOption) *BufferedIndex {
	b := &BufferedIndex{
		Index:         New(name, backend, key),
		maxBufferSize: 100,
		flushInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Start launches the background flush-on-timer loop. Call Shutdown to
// stop it and flush synchronously.
func (b *BufferedIndex) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.wg.Add(1)
	go b.flushLoop(ctx)
}

func (b *BufferedIndex) flushLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = b.Flush(ctx)
		}
	}
}

// Add updates the in-memory map and enqueues entry into the buffer.
// It does not persist synchronously; call Flush (or wait for the
// automatic trigger) to make it durable.
func (b *BufferedIndex) Add(ctx context.Context, entry Entry) error {
	if err := b.Index.ensureLoaded(ctx); err != nil {
		return err
	}

	b.Index.mu.Lock()
	if _, exists := b.Index.entries[entry.ID]; !exists {
		b.Index.order = append(b.Index.order, entry.ID)
	}
	b.Index.entries[entry.ID] = entry
	b.Index.mu.Unlock()

	b.mu.Lock()
	b.buffer = append(b.buffer, entry)
	shouldFlush := len(b.buffer) >= b.maxBufferSize
	b.mu.Unlock()

	if shouldFlush {
		return b.Flush(ctx)
	}
	return nil
}

// Flush drains the buffer with a single Append per entry, in buffer
// order. (A genuinely single batched write would require a bulk
// storage API this backend doesn't expose; draining sequentially
// preserves append order, which is the invariant that matters.)
func (b *BufferedIndex) Flush(ctx context.Context) error {
	b.mu.Lock()
	pending := b.buffer
	b.buffer = nil
	b.mu.Unlock()

	for i, e := range pending {
		if err := b.Index.backend.Append(ctx, b.Index.key, e); err != nil {
			// Put back what we couldn't persist, preserving order,
			// so a later Flush retries them.
			b.mu.Lock()
			b.buffer = append(pending[i:], b.buffer...)
			b.mu.Unlock()
			return err
		}
	}
	return nil
}

// Shutdown stops the background loop and flushes synchronously.
func (b *BufferedIndex) Shutdown(ctx context.Context) error {
	if b.cancel != nil {
		b.cancel()
		b.wg.Wait()
	}
	return b.Flush(ctx)
}

// PendingCount returns the number of entries currently buffered and
// not yet persisted. Exposed for tests and observability.
func (b *BufferedIndex) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}

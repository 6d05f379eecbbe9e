package store

import (
	"context"
	"log/slog"
	"sync"
	"time"

	evbus "github.com/vardius/message-bus"
)

// TopicUsersChanged wakes the writer after a snapshot has been staged.
const TopicUsersChanged = "users:changed"

// SaveHook is called after every save attempt with the snapshot size, the
// time the backend took and the save error, if any.
type SaveHook func(records int, took time.Duration, err error)

type flushWaiter struct {
	gen  uint64
	done chan struct{}
}

// Persister writes collection snapshots to a Backend off the request path.
// Only the latest snapshot is kept while a write is in progress, so Persist
// never waits for the backend and the last write always holds the newest
// state.
type Persister struct {
	bus     evbus.MessageBus
	backend Backend
	hook    SaveHook

	mu      sync.Mutex
	pending []Record
	staged  uint64 // generation of the newest snapshot handed to Persist
	written uint64 // generation of the newest snapshot the writer attempted
	woken   bool   // a wake-up is queued on the bus and not yet consumed
	waiters []flushWaiter
	closed  bool
}

// PersisterOption configures a Persister.
type PersisterOption func(*Persister)

// WithSaveHook registers a callback invoked after every save attempt.
func WithSaveHook(hook SaveHook) PersisterOption {
	return func(p *Persister) {
		p.hook = hook
	}
}

// NewPersister starts the writer goroutine for backend.
func NewPersister(backend Backend, opts ...PersisterOption) (*Persister, error) {
	p := &Persister{
		// At most one wake-up is ever queued, so Publish never blocks.
		bus:     evbus.New(1),
		backend: backend,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.bus.Subscribe(TopicUsersChanged, p.writePending); err != nil {
		return nil, err
	}
	return p, nil
}

// Persist stages a snapshot for writing and returns immediately. A snapshot
// staged while an earlier one is still waiting replaces it. The slice and
// the records in it must not be modified afterwards.
func (p *Persister) Persist(records []Record) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		slog.Warn("persister closed, dropping snapshot", "records", len(records))
		return
	}
	p.pending = records
	p.staged++
	if !p.woken {
		p.woken = true
		p.bus.Publish(TopicUsersChanged)
	}
}

// Flush blocks until the newest snapshot staged before the call has been
// written, or ctx is done.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.written >= p.staged {
		p.mu.Unlock()
		return nil
	}
	done := make(chan struct{})
	p.waiters = append(p.waiters, flushWaiter{gen: p.staged, done: done})
	p.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer. A snapshot still waiting is written before the
// writer goroutine exits; later calls to Persist are dropped.
func (p *Persister) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.bus.Close(TopicUsersChanged)
}

func (p *Persister) writePending() {
	p.mu.Lock()
	records, gen := p.pending, p.staged
	p.pending = nil
	p.woken = false
	p.mu.Unlock()

	start := time.Now()
	err := p.backend.Save(records)
	took := time.Since(start)
	if err != nil {
		slog.Error("failed to persist users", "records", len(records), "error", err)
	} else {
		slog.Debug("persisted users", "records", len(records), "duration", took)
	}
	if p.hook != nil {
		p.hook(len(records), took, err)
	}

	p.mu.Lock()
	p.written = gen
	kept := p.waiters[:0]
	for _, w := range p.waiters {
		if w.gen <= gen {
			close(w.done)
			continue
		}
		kept = append(kept, w)
	}
	p.waiters = kept
	p.mu.Unlock()
}

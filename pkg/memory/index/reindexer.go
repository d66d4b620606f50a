package index

import (
	"context"
	"sync"
)

// Reindexer indexes day notes in the background, off the conversation's
// critical path. Repeated requests for a date are coalesced.
type Reindexer struct {
	ix *Index

	mu      sync.Mutex
	pending map[string]bool
	order   []string

	wake  chan struct{}
	flush chan chan struct{}
	done  chan struct{}

	startOnce sync.Once
	started   bool
	cancel    context.CancelFunc
}

// NewReindexer creates a Reindexer for ix. Call Start to run the worker.
func NewReindexer(ix *Index) *Reindexer {
	return &Reindexer{
		ix:      ix,
		pending: make(map[string]bool),
		wake:    make(chan struct{}, 1),
		flush:   make(chan chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start launches the worker. It is a no-op for a disabled index.
func (r *Reindexer) Start(ctx context.Context) {
	if !r.ix.Enabled() {
		return
	}
	r.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		r.mu.Lock()
		r.started = true
		r.cancel = cancel
		r.mu.Unlock()
		go r.run(ctx)
	})
}

// Schedule requests a reindex of date. It never blocks.
func (r *Reindexer) Schedule(date string) {
	if !r.ix.Enabled() {
		return
	}
	r.mu.Lock()
	if !r.pending[date] {
		r.pending[date] = true
		r.order = append(r.order, date)
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of dates waiting to be indexed.
func (r *Reindexer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order)
}

// Flush waits until every date scheduled before the call is indexed.
func (r *Reindexer) Flush(ctx context.Context) error {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}

	reply := make(chan struct{})
	select {
	case r.flush <- reply:
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the worker. Dates still pending are dropped; they are
// picked up again by the next reindex of their day.
func (r *Reindexer) Close() {
	r.mu.Lock()
	started, cancel := r.started, r.cancel
	r.mu.Unlock()
	if !started {
		return
	}
	cancel()
	<-r.done
}

func (r *Reindexer) next() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return "", false
	}
	date := r.order[0]
	r.order = r.order[1:]
	delete(r.pending, date)
	return date, true
}

func (r *Reindexer) drain(ctx context.Context) {
	for ctx.Err() == nil {
		date, ok := r.next()
		if !ok {
			return
		}
		if err := r.ix.ReindexDate(ctx, date); err != nil {
			indexLog.Errorf("background reindex of %s failed: %v", date, err)
		}
	}
}

func (r *Reindexer) run(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.wake:
			r.drain(ctx)
		case reply := <-r.flush:
			r.drain(ctx)
			close(reply)
		}
	}
}

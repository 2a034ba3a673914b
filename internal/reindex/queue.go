// Package reindex coalesces resource change signals into batches. A single
// worker goroutine waits for the queue to become dirty, lets bursts of
// activity settle, then hands the collected resources to a processor.
package reindex

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

const (
	// DefaultWindow is the default stability window.
	DefaultWindow = 100 * time.Millisecond

	// DefaultCapacity is the default bound on stability rounds before a
	// batch is forced.
	DefaultCapacity = 500000
)

// Processor rebuilds a batch of resources. It runs on the worker goroutine.
type Processor func(ctx context.Context, resources []rdf.Term) error

// Config configures a Queue.
type Config struct {
	// Window is how long the worker waits for further activity before it
	// processes the pending resources. Each activity restarts the wait.
	Window time.Duration

	// Capacity bounds how many times activity may restart the wait.
	// Zero means DefaultCapacity and a negative capacity never forces a batch.
	Capacity int

	// OnError receives failed batches. The worker keeps running.
	OnError func(err error, resources []rdf.Term)

	Logger *slog.Logger
}

// Queue is the dirty set and its worker.
type Queue struct {
	process  Processor
	window   time.Duration
	capacity int
	onError  func(error, []rdf.Term)
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]rdf.Term
	stopped bool

	wake     chan struct{}
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	started  bool
}

// New creates a queue. Call Start to run its worker.
func New(process Processor, cfg Config) *Queue {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}
	capacity := cfg.Capacity
	if capacity == 0 {
		capacity = DefaultCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		process:  process,
		window:   window,
		capacity: capacity,
		onError:  cfg.OnError,
		logger:   logger.With("component", "reindex"),
		pending:  make(map[string]rdf.Term),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start runs the worker until Stop is called or ctx is done.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true
	go q.run(ctx)
}

// Schedule marks resources for rebuilding. It never blocks on the worker.
func (q *Queue) Schedule(resources ...rdf.Term) {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		q.logger.Debug("queue stopped, dropping resources", "count", len(resources))
		return
	}
	for _, r := range resources {
		q.pending[r.String()] = r
	}
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of resources waiting for the next batch.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Flush processes everything pending on the calling goroutine and returns
// the processor's error.
func (q *Queue) Flush(ctx context.Context) error {
	batch := q.drain()
	if len(batch) == 0 {
		return nil
	}
	return q.process(ctx, batch)
}

// Stop asks the worker to exit and waits for it. A batch in flight runs to
// completion and resources still pending are processed in one last batch.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		q.stopped = true
		started := q.started
		q.mu.Unlock()

		close(q.done)
		if started {
			<-q.exited
		}
	})
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.exited)
	q.logger.Info("reindex worker started", "window", q.window, "capacity", q.capacity)

	for {
		if !q.waitForDirty(ctx) {
			break
		}
		q.logger.Debug("registered write, waiting for more writes to follow")
		stopping := q.waitUntilStable(ctx)
		q.processBatch(ctx, q.drain())
		if stopping {
			break
		}
	}

	if batch := q.drain(); len(batch) > 0 {
		q.processBatch(context.WithoutCancel(ctx), batch)
	}
	q.logger.Info("reindex worker stopped")
}

// waitForDirty blocks until something is pending. It returns false when the
// worker must stop.
func (q *Queue) waitForDirty(ctx context.Context) bool {
	for {
		if q.Pending() > 0 {
			return true
		}
		select {
		case <-q.wake:
		case <-q.done:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// waitUntilStable waits until a full window passes without activity or the
// capacity of restarts is exceeded. It returns true when the worker must
// stop after this batch.
func (q *Queue) waitUntilStable(ctx context.Context) bool {
	timer := time.NewTimer(q.window)
	defer timer.Stop()

	rounds := 0
	for {
		select {
		case <-q.wake:
			rounds++
			if q.capacity >= 0 && rounds > q.capacity {
				q.logger.Debug("capacity reached, indexing", "rounds", rounds)
				return false
			}
			timer.Reset(q.window)
		case <-timer.C:
			return false
		case <-q.done:
			return true
		case <-ctx.Done():
			return true
		}
	}
}

// drain snapshots and clears the pending set.
func (q *Queue) drain() []rdf.Term {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}
	keys := make([]string, 0, len(q.pending))
	for k := range q.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := make([]rdf.Term, len(keys))
	for i, k := range keys {
		batch[i] = q.pending[k]
	}
	clear(q.pending)
	return batch
}

func (q *Queue) processBatch(ctx context.Context, batch []rdf.Term) {
	if len(batch) == 0 {
		return
	}
	start := time.Now()
	if err := q.process(ctx, batch); err != nil {
		q.logger.Error("reindex batch failed", "resources", len(batch), "error", err)
		if q.onError != nil {
			q.onError(err, batch)
		}
		return
	}
	q.logger.Debug("reindexed batch", "resources", len(batch), "duration", time.Since(start))
}

// Package indexer keeps a full-text index synchronized with a graph. It
// listens to graph mutations, schedules affected resources on a debounced
// queue and rebuilds their documents in batches.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aleksaelezovic/trindex/internal/definition"
	"github.com/aleksaelezovic/trindex/internal/graph"
	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/metrics"
	"github.com/aleksaelezovic/trindex/internal/notify"
	"github.com/aleksaelezovic/trindex/internal/reindex"
	"github.com/aleksaelezovic/trindex/internal/vprop"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// ErrClosed is returned by operations on a closed indexer.
var ErrClosed = errors.New("graph indexer is closed")

// DefaultMaxHits bounds the hits considered by one search.
const DefaultMaxHits = 100000

// State is the lifecycle state of an Indexer.
type State int32

const (
	Initializing State = iota
	Ready
	Closed
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Config configures an Indexer.
type Config struct {
	// MaxHits bounds the hits considered by one search. Zero means
	// DefaultMaxHits.
	MaxHits int

	// Window and Capacity configure the reindex queue.
	Window   time.Duration
	Capacity int

	Logger   *slog.Logger
	Notifier notify.Notifier
}

// Indexer is the graph indexer.
type Indexer struct {
	graph    *graph.Graph
	store    *index.Store
	source   definition.Source
	registry *definition.Registry
	queue    *reindex.Queue
	logger   *slog.Logger
	notifier notify.Notifier
	maxHits  int

	state atomic.Int32

	// serializes batches and full reindexes, the index writer has one owner
	writeMu sync.Mutex

	subs         []*graph.Subscription
	stopWorker   context.CancelFunc
	optimizeMu   sync.Mutex
	optimizeStop chan struct{}
	optimizeWG   sync.WaitGroup
}

// New loads the definitions from source, subscribes to g and rebuilds the
// whole index before returning. Once New succeeds the indexer owns store
// and closes it.
func New(ctx context.Context, g *graph.Graph, store *index.Store, source definition.Source, cfg Config) (*Indexer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	maxHits := cfg.MaxHits
	if maxHits <= 0 {
		maxHits = DefaultMaxHits
	}

	ix := &Indexer{
		graph:    g,
		store:    store,
		source:   source,
		registry: definition.NewRegistry(),
		logger:   logger.With("component", "indexer"),
		notifier: notifier,
		maxHits:  maxHits,
	}
	ix.state.Store(int32(Initializing))

	defs, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load index definitions: %w", err)
	}
	if err := ix.registry.Replace(defs); err != nil {
		return nil, err
	}

	ix.subscribe()

	ix.queue = reindex.New(ix.processBatch, reindex.Config{
		Window:   cfg.Window,
		Capacity: cfg.Capacity,
		OnError:  ix.batchFailed,
		Logger:   logger,
	})
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ix.stopWorker = cancel
	ix.queue.Start(workerCtx)

	if err := ix.rebuildAll(ctx); err != nil {
		_ = ix.shutdown()
		return nil, err
	}

	ix.state.Store(int32(Ready))
	ix.logger.Info("graph indexer ready", "types", len(ix.registry.Snapshot().Types()))
	return ix, nil
}

// State returns the lifecycle state.
func (ix *Indexer) State() State {
	return State(ix.state.Load())
}

func (ix *Indexer) ready() error {
	if ix.State() != Ready {
		return ErrClosed
	}
	return nil
}

// Definitions returns the registered index definitions ordered by type.
func (ix *Indexer) Definitions() []definition.Definition {
	return ix.registry.Snapshot().Definitions()
}

// Property finds an indexed virtual property by key.
func (ix *Indexer) Property(key string) (vprop.VirtualProperty, bool) {
	return ix.registry.Snapshot().Property(key)
}

// Pending returns the number of resources waiting to be rebuilt.
func (ix *Indexer) Pending() int {
	return ix.queue.Pending()
}

// Flush rebuilds the pending resources now instead of waiting for the
// worker.
func (ix *Indexer) Flush(ctx context.Context) error {
	if err := ix.ready(); err != nil {
		return err
	}
	return ix.queue.Flush(ctx)
}

// Define stores def in the definition source, registers it and schedules
// every instance of its type for rebuilding.
func (ix *Indexer) Define(ctx context.Context, def definition.Definition) error {
	if err := ix.ready(); err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if err := ix.source.Save(ctx, def); err != nil {
		return fmt.Errorf("failed to save definition of %s: %w", def.Type, err)
	}
	if err := ix.registry.Define(def); err != nil {
		return err
	}
	ix.logger.Info("index definition registered", "type", def.Type.IRI, "properties", len(def.Properties))
	return ix.scheduleInstances(def.Type)
}

// Remove deletes the definition of typ. Documents of its instances are
// dropped by the next batch.
func (ix *Indexer) Remove(ctx context.Context, typ *rdf.NamedNode) error {
	if err := ix.ready(); err != nil {
		return err
	}
	if err := ix.source.Delete(ctx, typ); err != nil {
		return fmt.Errorf("failed to delete definition of %s: %w", typ, err)
	}
	if !ix.registry.Remove(typ) {
		return nil
	}
	ix.logger.Info("index definition removed", "type", typ.IRI)
	return ix.scheduleInstances(typ)
}

// ReindexAll reloads the definitions and rebuilds the whole index. Every
// document is deleted first.
func (ix *Indexer) ReindexAll(ctx context.Context) error {
	if err := ix.ready(); err != nil {
		return err
	}
	defs, err := ix.source.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load index definitions: %w", err)
	}
	if err := ix.registry.Replace(defs); err != nil {
		return err
	}
	return ix.rebuildAll(ctx)
}

// Close detaches the listeners, stops the worker after it processed what is
// pending and closes the index store.
func (ix *Indexer) Close() error {
	if !ix.state.CompareAndSwap(int32(Ready), int32(Closed)) {
		return nil
	}
	err := ix.shutdown()
	ix.logger.Info("graph indexer closed")
	return err
}

func (ix *Indexer) shutdown() error {
	ix.state.Store(int32(Closed))
	for _, sub := range ix.subs {
		ix.graph.Unsubscribe(sub)
	}
	ix.subs = nil

	ix.CancelOptimize()
	ix.optimizeWG.Wait()

	ix.queue.Stop()
	ix.stopWorker()
	return ix.store.Close()
}

func (ix *Indexer) schedule(resources ...rdf.Term) {
	if len(resources) == 0 {
		return
	}
	ix.queue.Schedule(resources...)
	metrics.QueueDepth.Set(float64(ix.queue.Pending()))
}

func (ix *Indexer) scheduleInstances(typ *rdf.NamedNode) error {
	instances, err := ix.graph.Subjects(rdf.RDFType, typ)
	if err != nil {
		return fmt.Errorf("failed to list instances of %s: %w", typ, err)
	}
	ix.schedule(instances...)
	return nil
}

func (ix *Indexer) batchFailed(err error, resources []rdf.Term) {
	ev := notify.NewEvent(notify.KindBatchFailed, "reindex batch failed", err)
	for _, r := range resources {
		ev.Resources = append(ev.Resources, r.String())
	}
	if nerr := ix.notifier.Notify(context.Background(), ev); nerr != nil {
		ix.logger.Warn("failed to notify operators", "error", nerr)
	}
}

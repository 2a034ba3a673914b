// Package graph provides a mutable, observable triple collection on top of
// the badger-backed triple store.
package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/aleksaelezovic/trindex/internal/encoding"
	"github.com/aleksaelezovic/trindex/internal/storage"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
	"github.com/aleksaelezovic/trindex/pkg/store"
	"github.com/zeebo/xxh3"
)

const lockStripes = 256

// Event describes one triple added to or removed from the graph.
type Event struct {
	Triple *rdf.Triple
	Added  bool
}

// Filter selects the events a subscription receives. It runs on the
// mutating goroutine for every event.
type Filter func(*rdf.Triple) bool

// Listener receives the filtered events of one mutation call.
type Listener func(events []Event)

// Subscription is a registered listener.
type Subscription struct {
	id       uint64
	filter   Filter
	listener Listener
}

// Graph is a mutable triple collection with per-node read locks and
// synchronous change notification.
type Graph struct {
	store  *store.TripleStore
	locks  [lockStripes]sync.RWMutex
	logger *slog.Logger

	// serializes store transactions, badger rejects conflicting writers
	writeMu sync.Mutex

	subMu  sync.RWMutex
	subs   []*Subscription
	nextID atomic.Uint64
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the graph logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		g.logger = logger
	}
}

// New wraps an existing triple store.
func New(ts *store.TripleStore, opts ...Option) *Graph {
	g := &Graph{
		store:  ts,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open opens a badger-backed graph at path. An empty path keeps the graph in
// memory.
func Open(path string, opts ...Option) (*Graph, error) {
	g := New(nil, opts...)
	st, err := storage.Open(storage.Options{
		Path:     path,
		InMemory: path == "",
		Logger:   g.logger,
	})
	if err != nil {
		return nil, err
	}
	g.store = store.NewTripleStore(st, encoding.NewTermEncoder(), encoding.NewTermDecoder())
	return g, nil
}

// Close closes the underlying store.
func (g *Graph) Close() error {
	return g.store.Close()
}

// Add inserts triples. Listeners are notified of the triples that were not
// already present.
func (g *Graph) Add(triples ...*rdf.Triple) error {
	g.writeMu.Lock()
	unlock := g.lockNodes(triples)
	added, err := g.store.InsertTriples(triples)
	unlock()
	g.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to add triples: %w", err)
	}
	g.logger.Debug("triples added", "requested", len(triples), "added", len(added))

	g.dispatch(added, true)
	return nil
}

// Remove deletes triples. Listeners are notified of the triples that were
// actually present.
func (g *Graph) Remove(triples ...*rdf.Triple) error {
	g.writeMu.Lock()
	unlock := g.lockNodes(triples)
	removed, err := g.store.DeleteTriples(triples)
	unlock()
	g.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to remove triples: %w", err)
	}
	g.logger.Debug("triples removed", "requested", len(triples), "removed", len(removed))

	g.dispatch(removed, false)
	return nil
}

// RemoveMatching deletes every triple matching the pattern and returns how
// many were removed.
func (g *Graph) RemoveMatching(subject rdf.Term, predicate *rdf.NamedNode, object rdf.Term) (int, error) {
	triples, err := g.Filter(subject, predicate, object)
	if err != nil {
		return 0, err
	}
	if len(triples) == 0 {
		return 0, nil
	}
	if err := g.Remove(triples...); err != nil {
		return 0, err
	}
	return len(triples), nil
}

// Clear removes every triple.
func (g *Graph) Clear() error {
	_, err := g.RemoveMatching(nil, nil, nil)
	return err
}

// Filter returns the triples matching the pattern. Nil positions match any
// term.
func (g *Graph) Filter(subject rdf.Term, predicate *rdf.NamedNode, object rdf.Term) ([]*rdf.Triple, error) {
	pattern := &store.Pattern{Subject: subject, Object: object}
	if predicate != nil {
		pattern.Predicate = predicate
	}
	return g.store.Match(pattern)
}

// Objects returns the objects of subject's predicate edges, holding the
// subject's read lock while reading.
func (g *Graph) Objects(subject rdf.Term, predicate *rdf.NamedNode) ([]rdf.Term, error) {
	g.RLockNode(subject)
	defer g.RUnlockNode(subject)

	triples, err := g.Filter(subject, predicate, nil)
	if err != nil {
		return nil, err
	}
	objects := make([]rdf.Term, 0, len(triples))
	for _, t := range triples {
		objects = append(objects, t.Object)
	}
	return objects, nil
}

// Subjects returns the subjects pointing to object via predicate, holding
// the object's read lock while reading.
func (g *Graph) Subjects(predicate *rdf.NamedNode, object rdf.Term) ([]rdf.Term, error) {
	g.RLockNode(object)
	defer g.RUnlockNode(object)

	triples, err := g.Filter(nil, predicate, object)
	if err != nil {
		return nil, err
	}
	subjects := make([]rdf.Term, 0, len(triples))
	for _, t := range triples {
		subjects = append(subjects, t.Subject)
	}
	return subjects, nil
}

// Types returns the rdf:type IRIs of a resource.
func (g *Graph) Types(resource rdf.Term) ([]*rdf.NamedNode, error) {
	objects, err := g.Objects(resource, rdf.RDFType)
	if err != nil {
		return nil, err
	}
	var types []*rdf.NamedNode
	for _, o := range objects {
		if n, ok := o.(*rdf.NamedNode); ok {
			types = append(types, n)
		}
	}
	return types, nil
}

// Contains reports whether the triple is in the graph.
func (g *Graph) Contains(triple *rdf.Triple) (bool, error) {
	return g.store.ContainsTriple(triple)
}

// Count returns the number of triples.
func (g *Graph) Count() (int64, error) {
	return g.store.Count()
}

// RLockNode acquires the read lock of a node. Locks are striped, so callers
// must not hold more than one node lock at a time.
func (g *Graph) RLockNode(node rdf.Term) {
	g.locks[stripe(node)].RLock()
}

// RUnlockNode releases a lock taken with RLockNode.
func (g *Graph) RUnlockNode(node rdf.Term) {
	g.locks[stripe(node)].RUnlock()
}

func stripe(node rdf.Term) uint64 {
	return xxh3.HashString(node.String()) % lockStripes
}

// lockNodes write-locks the stripes of every subject and object touched by
// the triples, in stripe order.
func (g *Graph) lockNodes(triples []*rdf.Triple) func() {
	stripes := make([]uint64, 0, 2*len(triples))
	for _, t := range triples {
		stripes = append(stripes, stripe(t.Subject), stripe(t.Object))
	}
	slices.Sort(stripes)
	stripes = slices.Compact(stripes)

	for _, s := range stripes {
		g.locks[s].Lock()
	}
	return func() {
		for i := len(stripes) - 1; i >= 0; i-- {
			g.locks[stripes[i]].Unlock()
		}
	}
}

// Subscribe registers a listener for the events accepted by filter. A nil
// filter accepts every event.
func (g *Graph) Subscribe(filter Filter, listener Listener) *Subscription {
	sub := &Subscription{
		id:       g.nextID.Add(1),
		filter:   filter,
		listener: listener,
	}

	g.subMu.Lock()
	g.subs = append(g.subs, sub)
	g.subMu.Unlock()

	return sub
}

// Unsubscribe removes a subscription. Removing an unknown subscription is a
// no-op.
func (g *Graph) Unsubscribe(sub *Subscription) {
	g.subMu.Lock()
	defer g.subMu.Unlock()

	g.subs = slices.DeleteFunc(g.subs, func(s *Subscription) bool {
		return s.id == sub.id
	})
}

func (g *Graph) dispatch(triples []*rdf.Triple, added bool) {
	if len(triples) == 0 {
		return
	}

	g.subMu.RLock()
	subs := slices.Clone(g.subs)
	g.subMu.RUnlock()

	for _, sub := range subs {
		var events []Event
		for _, t := range triples {
			if sub.filter == nil || sub.filter(t) {
				events = append(events, Event{Triple: t, Added: added})
			}
		}
		if len(events) > 0 {
			sub.listener(events)
		}
	}
}

// MatchPattern builds a filter accepting triples that match the given terms.
// Nil positions match anything.
func MatchPattern(subject rdf.Term, predicate *rdf.NamedNode, object rdf.Term) Filter {
	return func(t *rdf.Triple) bool {
		if subject != nil && !subject.Equals(t.Subject) {
			return false
		}
		if predicate != nil && !predicate.Equals(t.Predicate) {
			return false
		}
		if object != nil && !object.Equals(t.Object) {
			return false
		}
		return true
	}
}

package indexer

import (
	"github.com/aleksaelezovic/trindex/internal/definition"
	"github.com/aleksaelezovic/trindex/internal/graph"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// subscribe registers the type and property listeners. Both filters read
// the registry snapshot current at the time of each event.
func (ix *Indexer) subscribe() {
	ix.subs = append(ix.subs,
		ix.graph.Subscribe(graph.MatchPattern(nil, rdf.RDFType, nil), ix.typeChanged),
		ix.graph.Subscribe(ix.indexedPredicate, ix.propertyChanged),
	)
}

func (ix *Indexer) typeChanged(events []graph.Event) {
	snap := ix.registry.Snapshot()
	for _, ev := range events {
		typ, ok := ev.Triple.Object.(*rdf.NamedNode)
		if !ok || !snap.Watched(typ.IRI) {
			continue
		}
		ix.logger.Debug("type change", "resource", ev.Triple.Subject.String(), "type", typ.IRI, "added", ev.Added)
		ix.schedule(ev.Triple.Subject)
	}
}

func (ix *Indexer) indexedPredicate(t *rdf.Triple) bool {
	return len(ix.registry.Snapshot().Dependents(t.Predicate)) > 0
}

func (ix *Indexer) propertyChanged(events []graph.Event) {
	snap := ix.registry.Snapshot()
	for _, ev := range events {
		predicate := ev.Triple.Predicate

		var candidates []rdf.Term
		for _, vp := range snap.Dependents(predicate) {
			candidates = ix.followInversePaths(ev.Triple.Subject, vp.PathToIndexedResource(predicate), candidates)
		}

		seen := make(map[string]bool, len(candidates))
		for _, c := range candidates {
			key := c.String()
			if seen[key] {
				continue
			}
			seen[key] = true
			if ix.hasWatchedType(snap, c) {
				ix.schedule(c)
			}
		}
	}
}

// followInversePaths walks path backwards from node and appends every
// resource reached at its end. Each step reads one node's incoming edges
// under that node's read lock.
func (ix *Indexer) followInversePaths(node rdf.Term, path []*rdf.NamedNode, out []rdf.Term) []rdf.Term {
	if len(path) == 0 {
		return append(out, node)
	}
	predecessors, err := ix.graph.Subjects(path[0], node)
	if err != nil {
		ix.logger.Warn("failed to follow inverse path", "node", node.String(), "predicate", path[0].IRI, "error", err)
		return out
	}
	for _, p := range predecessors {
		out = ix.followInversePaths(p, path[1:], out)
	}
	return out
}

func (ix *Indexer) hasWatchedType(snap *definition.Snapshot, resource rdf.Term) bool {
	types, err := ix.graph.Types(resource)
	if err != nil {
		ix.logger.Warn("failed to read types", "resource", resource.String(), "error", err)
		return false
	}
	for _, t := range types {
		if snap.Watched(t.IRI) {
			return true
		}
	}
	return false
}

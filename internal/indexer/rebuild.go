package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/aleksaelezovic/trindex/internal/definition"
	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/metrics"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// processBatch rebuilds the documents of resources and commits once.
func (ix *Indexer) processBatch(ctx context.Context, resources []rdf.Term) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	metrics.QueueDepth.Set(float64(ix.queue.Pending()))
	start := time.Now()
	err := ix.rebuildBatch(ctx, ix.registry.Snapshot(), resources)
	metrics.BatchDuration.Observe(time.Since(start).Seconds())
	metrics.BatchesProcessed.WithLabelValues(metrics.Outcome(err)).Inc()
	if err != nil {
		return err
	}
	ix.logger.Info("indexed resources", "count", len(resources), "duration", time.Since(start))
	return nil
}

// rebuildAll deletes every document and rebuilds every instance of every
// watched type.
func (ix *Indexer) rebuildAll(ctx context.Context) error {
	ix.writeMu.Lock()
	defer ix.writeMu.Unlock()

	start := time.Now()
	snap := ix.registry.Snapshot()

	err := ix.store.DeleteAll(ctx)
	if err == nil {
		var instances []rdf.Term
		instances, err = ix.instances(snap)
		if err == nil {
			err = ix.rebuildBatch(ctx, snap, instances)
		}
		if err == nil {
			ix.logger.Info("rebuilt index", "types", len(snap.Types()), "resources", len(instances), "duration", time.Since(start))
		}
	}
	if err != nil {
		ix.store.Discard()
	}
	metrics.FullReindexes.WithLabelValues(metrics.Outcome(err)).Inc()
	return err
}

// instances lists the distinct resources carrying a watched type.
func (ix *Indexer) instances(snap *definition.Snapshot) ([]rdf.Term, error) {
	seen := make(map[string]bool)
	var instances []rdf.Term
	for _, typeIRI := range snap.Types() {
		subjects, err := ix.graph.Subjects(rdf.RDFType, rdf.NewNamedNode(typeIRI))
		if err != nil {
			return nil, fmt.Errorf("failed to list instances of %s: %w", typeIRI, err)
		}
		for _, s := range subjects {
			if key := s.String(); !seen[key] {
				seen[key] = true
				instances = append(instances, s)
			}
		}
	}
	return instances, nil
}

// rebuildBatch stages the documents of resources and commits them. Staged
// writes are discarded on failure. Must be called with writeMu held.
func (ix *Indexer) rebuildBatch(ctx context.Context, snap *definition.Snapshot, resources []rdf.Term) error {
	for _, r := range resources {
		if err := ix.rebuild(ctx, snap, r); err != nil {
			ix.store.Discard()
			return fmt.Errorf("failed to index %s: %w", r, err)
		}
	}
	if err := ix.store.Commit(); err != nil {
		return err
	}
	metrics.ResourcesReindexed.Add(float64(len(resources)))
	return nil
}

// rebuild replaces the documents of one resource with one document per
// watched type it currently has.
func (ix *Indexer) rebuild(ctx context.Context, snap *definition.Snapshot, resource rdf.Term) error {
	node, ok := resource.(*rdf.NamedNode)
	if !ok {
		ix.logger.Warn("only named resources can be indexed, skipping", "resource", resource.String())
		metrics.BlankNodesSkipped.Inc()
		return nil
	}

	if err := ix.store.DeleteByIdentifier(ctx, node.IRI); err != nil {
		return err
	}

	types, err := ix.graph.Types(node)
	if err != nil {
		return err
	}
	for _, typ := range types {
		if !snap.Watched(typ.IRI) {
			continue
		}
		doc, err := ix.document(snap, node, typ)
		if err != nil {
			return err
		}
		if err := ix.store.AddDocument(doc); err != nil {
			return err
		}
		metrics.DocumentsWritten.Inc()
	}
	return nil
}

func (ix *Indexer) document(snap *definition.Snapshot, node, typ *rdf.NamedNode) (*index.Document, error) {
	doc := index.NewDocument(node.IRI, typ.IRI)
	for _, vp := range snap.Properties(typ.IRI) {
		values, err := vp.Value(ix.graph, node)
		if err != nil {
			return nil, fmt.Errorf("failed to evaluate %s: %w", vp, err)
		}
		doc.Add(vp.Key(), values)
	}
	ix.logger.Debug("built document", "resource", node.IRI, "type", typ.IRI, "fields", len(doc.Fields))
	return doc, nil
}

package indexer

import (
	"context"
	"math"
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/metrics"
	"github.com/aleksaelezovic/trindex/internal/query"
	"github.com/aleksaelezovic/trindex/internal/vprop"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// Request describes a search.
type Request struct {
	// Conditions must all hold. No conditions match every document.
	Conditions []query.Condition

	// Sort orders the hits. Nil or empty sorts by relevance.
	Sort *query.SortSpecification

	// Facets collect over every hit, not only the returned window.
	Facets []query.FacetCollector

	// From is the first hit returned, To the hit after the last one. From
	// floors at 0 and To at From+1, so a zero Request returns one hit. Use
	// AllHits to return every hit up to the hit limit.
	From int
	To   int
}

// AllHits is a To that never ends the window before the hit limit.
const AllHits = math.MaxInt

// window clamps the requested hit range.
func (r *Request) window() (from, to int) {
	from, to = r.From, r.To
	if from < 0 {
		from = 0
	}
	if to <= from {
		to = from + 1
	}
	return from, to
}

// Find returns the resources of the hits in the requested window. A
// resource indexed for several matching types appears once per document.
func (ix *Indexer) Find(ctx context.Context, req Request) ([]*rdf.NamedNode, error) {
	if err := ix.ready(); err != nil {
		return nil, err
	}

	start := time.Now()
	resources, err := ix.find(ctx, req)
	metrics.SearchLatency.Observe(time.Since(start).Seconds())
	metrics.Searches.WithLabelValues(metrics.Outcome(err)).Inc()
	return resources, err
}

func (ix *Indexer) find(ctx context.Context, req Request) ([]*rdf.NamedNode, error) {
	q, err := query.Compile(req.Conditions)
	if err != nil {
		return nil, err
	}

	from, to := req.window()
	size := to
	if len(req.Facets) > 0 || size > ix.maxHits {
		size = ix.maxHits
	}

	sr := bleve.NewSearchRequestOptions(q, size, 0, false)
	sr.Fields = []string{index.URIField}
	for _, c := range req.Facets {
		for _, vp := range c.Properties() {
			sr.Fields = append(sr.Fields, index.SortField(vp.Key()))
		}
	}
	if req.Sort != nil && req.Sort.Len() > 0 {
		sr.SortByCustom(req.Sort.SortOrder())
	}

	searcher, err := ix.store.AcquireSearcher()
	if err != nil {
		return nil, err
	}
	res, err := searcher.Search(ctx, sr)
	if err != nil {
		return nil, err
	}

	var resources []*rdf.NamedNode
	for i, hit := range res.Hits {
		for _, c := range req.Facets {
			for _, vp := range c.Properties() {
				c.Collect(vp, index.FieldValues(hit.Fields[index.SortField(vp.Key())]))
			}
		}
		if i < from || i >= to {
			continue
		}
		if uris := index.FieldValues(hit.Fields[index.URIField]); len(uris) > 0 {
			resources = append(resources, rdf.NewNamedNode(uris[0]))
		}
	}
	for _, c := range req.Facets {
		c.PostProcess()
	}
	return resources, nil
}

// FindByProperty returns the resources whose predicate values match a
// wildcard pattern.
func (ix *Indexer) FindByProperty(ctx context.Context, predicate *rdf.NamedNode, pattern string, facets ...query.FacetCollector) ([]*rdf.NamedNode, error) {
	vp, err := vprop.NewPropertyHolder(predicate)
	if err != nil {
		return nil, err
	}
	return ix.FindByVirtualProperty(ctx, vp, pattern, facets...)
}

// FindByVirtualProperty returns the resources whose property values match a
// wildcard pattern.
func (ix *Indexer) FindByVirtualProperty(ctx context.Context, vp vprop.VirtualProperty, pattern string, facets ...query.FacetCollector) ([]*rdf.NamedNode, error) {
	return ix.Find(ctx, Request{
		Conditions: []query.Condition{query.NewWildcardCondition(vp, pattern)},
		Facets:     facets,
		To:         AllHits,
	})
}

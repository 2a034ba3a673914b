package server

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trindex/internal/indexer"
	"github.com/aleksaelezovic/trindex/internal/query"
	"github.com/aleksaelezovic/trindex/internal/vprop"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// SearchParams is a search as sent in a query string or a JSON body.
//
// Properties are given as an indexed property key or a predicate IRI. Sort
// entries read "[-]property[@type]", with "relevance" and "index" for the
// fixed orders.
type SearchParams struct {
	Properties   []string `schema:"property" json:"property"`
	Query        string   `schema:"q" json:"q"`
	Pattern      string   `schema:"pattern" json:"pattern"`
	Exact        string   `schema:"exact" json:"exact"`
	Lower        string   `schema:"lower" json:"lower"`
	Upper        string   `schema:"upper" json:"upper"`
	ExcludeLower bool     `schema:"exclude_lower" json:"exclude_lower"`
	ExcludeUpper bool     `schema:"exclude_upper" json:"exclude_upper"`
	Sort         []string `schema:"sort" json:"sort"`
	Facets       []string `schema:"facet" json:"facet"`
	FacetOrder   string   `schema:"facet_order" json:"facet_order"` // count (default) or value
	From         int      `schema:"from" json:"from"`
	To           int      `schema:"to" json:"to"` // unset: every hit up to the hit limit
}

type facetBinding struct {
	name      string
	property  vprop.VirtualProperty
	collector interface {
		query.FacetCollector
		Facets(vprop.VirtualProperty) []query.Facet
	}
}

// Search runs p against ix.
func Search(ctx context.Context, ix *indexer.Indexer, p SearchParams) (SearchResponse, error) {
	b := builder{ix: ix}
	req, facets, err := b.request(p)
	if err != nil {
		return SearchResponse{}, err
	}
	resources, err := ix.Find(ctx, req)
	if err != nil {
		return SearchResponse{}, err
	}

	res := SearchResponse{Resources: make([]string, 0, len(resources))}
	for _, n := range resources {
		res.Resources = append(res.Resources, n.IRI)
	}
	if len(facets) > 0 {
		res.Facets = make(map[string][]query.Facet, len(facets))
		for _, f := range facets {
			res.Facets[f.name] = f.collector.Facets(f.property)
		}
	}
	return res, nil
}

type builder struct {
	ix *indexer.Indexer
}

// property resolves a key of an indexed property, falling back to a plain
// predicate.
func (b builder) property(name string) (vprop.VirtualProperty, error) {
	if name == "" {
		return nil, badRequest("empty property")
	}
	if vp, ok := b.ix.Property(name); ok {
		return vp, nil
	}
	return vprop.NewPropertyHolder(rdf.NewNamedNode(name))
}

func (b builder) request(p SearchParams) (indexer.Request, []facetBinding, error) {
	req := indexer.Request{From: p.From, To: p.To}
	if p.To <= 0 {
		req.To = indexer.AllHits
	}

	props := make([]vprop.VirtualProperty, 0, len(p.Properties))
	for _, name := range p.Properties {
		vp, err := b.property(name)
		if err != nil {
			return req, nil, err
		}
		props = append(props, vp)
	}

	if p.Query != "" {
		if len(props) == 0 {
			return req, nil, badRequest("q needs at least one property")
		}
		req.Conditions = append(req.Conditions, query.NewGenericCondition(p.Query, props...))
	}

	ranged := p.Lower != "" || p.Upper != ""
	if p.Pattern != "" || p.Exact != "" || ranged {
		if len(props) != 1 {
			return req, nil, badRequest("pattern, exact and range need exactly one property")
		}
		vp := props[0]
		if p.Pattern != "" {
			req.Conditions = append(req.Conditions, query.NewWildcardCondition(vp, p.Pattern))
		}
		if p.Exact != "" {
			req.Conditions = append(req.Conditions, query.NewExactCondition(vp, p.Exact))
		}
		if ranged {
			req.Conditions = append(req.Conditions,
				query.NewTermRangeCondition(vp, p.Lower, p.Upper, !p.ExcludeLower, !p.ExcludeUpper))
		}
	}

	if len(p.Sort) > 0 {
		spec := query.NewSortSpecification()
		for _, entry := range p.Sort {
			e, err := b.sortEntry(entry)
			if err != nil {
				return req, nil, err
			}
			spec.AddEntry(e)
		}
		req.Sort = spec
	}

	facets, err := b.facets(p)
	if err != nil {
		return req, nil, err
	}
	for _, f := range facets {
		req.Facets = append(req.Facets, f.collector)
	}
	return req, facets, nil
}

func (b builder) sortEntry(entry string) (query.SortEntry, error) {
	switch strings.ToLower(entry) {
	case "relevance":
		return query.Relevance, nil
	case "index":
		return query.IndexOrder, nil
	}

	reverse := strings.HasPrefix(entry, "-")
	entry = strings.TrimPrefix(entry, "-")

	t := query.String
	if i := strings.LastIndex(entry, "@"); i >= 0 {
		if parsed, err := query.ParseValueType(entry[i+1:]); err == nil {
			t, entry = parsed, entry[:i]
		}
	}
	vp, err := b.property(entry)
	if err != nil {
		return query.SortEntry{}, err
	}
	return query.NewSortEntry(vp, t, reverse), nil
}

func (b builder) facets(p SearchParams) ([]facetBinding, error) {
	if len(p.Facets) == 0 {
		return nil, nil
	}
	var byValue bool
	switch strings.ToLower(p.FacetOrder) {
	case "", "count":
	case "value":
		byValue = true
	default:
		return nil, badRequest("unknown facet_order %q", p.FacetOrder)
	}

	bindings := make([]facetBinding, 0, len(p.Facets))
	for _, name := range p.Facets {
		vp, err := b.property(name)
		if err != nil {
			return nil, err
		}
		fb := facetBinding{name: name, property: vp}
		if byValue {
			fb.collector = query.NewCountFacetCollector(vp)
		} else {
			fb.collector = query.NewSortedCountFacetCollector(vp)
		}
		bindings = append(bindings, fb)
	}
	return bindings, nil
}

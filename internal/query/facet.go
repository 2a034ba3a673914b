package query

import (
	"slices"
	"strings"

	"github.com/aleksaelezovic/trindex/internal/vprop"
)

// FacetCollector accumulates property values over the hits of one search.
type FacetCollector interface {
	// Properties lists the properties whose values are collected.
	Properties() []vprop.VirtualProperty

	// Collect records the values one hit document has for property.
	Collect(property vprop.VirtualProperty, values []string)

	// PostProcess runs once after every hit has been collected.
	PostProcess()
}

// Facet is a value and the number of hits that have it.
type Facet struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// CountFacetCollector counts, per property, how many hits carry each value.
type CountFacetCollector struct {
	properties []vprop.VirtualProperty
	counts     map[string]map[string]int
}

// NewCountFacetCollector creates a collector for properties.
func NewCountFacetCollector(properties ...vprop.VirtualProperty) *CountFacetCollector {
	c := &CountFacetCollector{counts: make(map[string]map[string]int)}
	for _, vp := range properties {
		c.AddProperty(vp)
	}
	return c
}

// AddProperty registers property for collection.
func (c *CountFacetCollector) AddProperty(property vprop.VirtualProperty) {
	if _, ok := c.counts[property.Key()]; ok {
		return
	}
	c.properties = append(c.properties, property)
	c.counts[property.Key()] = make(map[string]int)
}

func (c *CountFacetCollector) Properties() []vprop.VirtualProperty {
	return c.properties
}

// Collect counts each distinct value once for the document.
func (c *CountFacetCollector) Collect(property vprop.VirtualProperty, values []string) {
	counts, ok := c.counts[property.Key()]
	if !ok {
		return
	}
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		counts[v]++
	}
}

func (c *CountFacetCollector) PostProcess() {}

// Counts returns the value counts of property. The map must not be modified.
func (c *CountFacetCollector) Counts(property vprop.VirtualProperty) map[string]int {
	return c.counts[property.Key()]
}

// Facets returns the value counts of property ordered by value.
func (c *CountFacetCollector) Facets(property vprop.VirtualProperty) []Facet {
	counts := c.counts[property.Key()]
	facets := make([]Facet, 0, len(counts))
	for v, n := range counts {
		facets = append(facets, Facet{Value: v, Count: n})
	}
	slices.SortFunc(facets, func(a, b Facet) int { return strings.Compare(a.Value, b.Value) })
	return facets
}

// SortedCountFacetCollector orders the counted facets by count, breaking
// ties by value. Each direction can be reversed on its own.
type SortedCountFacetCollector struct {
	*CountFacetCollector

	reverseKeys   bool
	reverseValues bool
	sorted        map[string][]Facet
}

// NewSortedCountFacetCollector creates a collector ordering facets by
// descending count, then ascending value.
func NewSortedCountFacetCollector(properties ...vprop.VirtualProperty) *SortedCountFacetCollector {
	return NewSortedCountFacetCollectorOrder(false, true, properties...)
}

// NewSortedCountFacetCollectorOrder creates a collector with explicit key
// (value string) and value (count) directions.
func NewSortedCountFacetCollectorOrder(reverseKeys, reverseValues bool, properties ...vprop.VirtualProperty) *SortedCountFacetCollector {
	return &SortedCountFacetCollector{
		CountFacetCollector: NewCountFacetCollector(properties...),
		reverseKeys:         reverseKeys,
		reverseValues:       reverseValues,
	}
}

// KeysReversed reports whether ties are broken by descending value string.
func (c *SortedCountFacetCollector) KeysReversed() bool { return c.reverseKeys }

// ValuesReversed reports whether counts are ordered descending.
func (c *SortedCountFacetCollector) ValuesReversed() bool { return c.reverseValues }

func (c *SortedCountFacetCollector) PostProcess() {
	c.CountFacetCollector.PostProcess()

	c.sorted = make(map[string][]Facet, len(c.properties))
	for _, vp := range c.properties {
		counts := c.counts[vp.Key()]
		facets := make([]Facet, 0, len(counts))
		for v, n := range counts {
			facets = append(facets, Facet{Value: v, Count: n})
		}
		slices.SortFunc(facets, c.compare)
		c.sorted[vp.Key()] = facets
	}
}

// Facets returns the ordered facets of property. It is empty until
// PostProcess has run.
func (c *SortedCountFacetCollector) Facets(property vprop.VirtualProperty) []Facet {
	return c.sorted[property.Key()]
}

func (c *SortedCountFacetCollector) compare(a, b Facet) int {
	key1, key2 := a.Value, b.Value
	if c.reverseKeys {
		key1, key2 = key2, key1
	}
	val1, val2 := a.Count, b.Count
	if c.reverseValues {
		val1, val2 = val2, val1
	}

	if key1 == key2 {
		return 0
	}
	switch {
	case val1 < val2:
		return -1
	case val1 > val2:
		return 1
	}
	return strings.Compare(key1, key2)
}

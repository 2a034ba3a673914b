package query

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2/search"

	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/vprop"
)

// ValueType tells how a property's values are compared when sorting.
type ValueType int

const (
	String ValueType = iota
	StringCompare
	Byte
	Short
	Int
	Long
	Float
	Double
)

var valueTypeNames = map[ValueType]string{
	String:        "string",
	StringCompare: "string-compare",
	Byte:          "byte",
	Short:         "short",
	Int:           "int",
	Long:          "long",
	Float:         "float",
	Double:        "double",
}

func (t ValueType) String() string {
	if name, ok := valueTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ValueType(%d)", int(t))
}

// Numeric reports whether values are compared as numbers.
func (t ValueType) Numeric() bool {
	return t != String && t != StringCompare
}

// ParseValueType parses the name of a value type. The empty string is String.
func ParseValueType(s string) (ValueType, error) {
	if s == "" {
		return String, nil
	}
	for t, name := range valueTypeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown sort value type %q", s)
}

type entryKind uint8

const (
	fieldEntry entryKind = iota
	indexOrderEntry
	relevanceEntry
)

// SortEntry is one sort criterion. Entries are comparable with ==.
type SortEntry struct {
	kind      entryKind
	key       string
	valueType ValueType
	reverse   bool
}

var (
	// IndexOrder sorts by document identifier.
	IndexOrder = SortEntry{kind: indexOrderEntry}

	// Relevance sorts by score, best match first.
	Relevance = SortEntry{kind: relevanceEntry}
)

// NewSortEntry sorts by the values of property.
func NewSortEntry(property vprop.VirtualProperty, t ValueType, reverse bool) SortEntry {
	return SortEntry{kind: fieldEntry, key: property.Key(), valueType: t, reverse: reverse}
}

func (e SortEntry) String() string {
	switch e.kind {
	case indexOrderEntry:
		return "_index"
	case relevanceEntry:
		return "_score"
	}
	dir := "asc"
	if e.reverse {
		dir = "desc"
	}
	return e.key + ":" + e.valueType.String() + ":" + dir
}

func (e SortEntry) compile() search.SearchSort {
	switch e.kind {
	case indexOrderEntry:
		return &search.SortDocID{}
	case relevanceEntry:
		return &search.SortScore{Desc: true}
	}
	if e.valueType.Numeric() {
		return &search.SortField{
			Field: index.NumericField(e.key),
			Type:  search.SortFieldAsNumber,
			Desc:  e.reverse,
		}
	}
	return &search.SortField{
		Field: index.SortField(e.key),
		Type:  search.SortFieldAsString,
		Desc:  e.reverse,
	}
}

// SortSpecification is an ordered list of distinct sort entries. The first
// entry has the highest priority.
type SortSpecification struct {
	entries []SortEntry
}

// NewSortSpecification creates a specification with the given entries.
func NewSortSpecification(entries ...SortEntry) *SortSpecification {
	s := &SortSpecification{}
	for _, e := range entries {
		s.AddEntry(e)
	}
	return s
}

// Add appends a sort on property unless an equal entry is present.
func (s *SortSpecification) Add(property vprop.VirtualProperty, t ValueType, reverse bool) {
	s.AddEntry(NewSortEntry(property, t, reverse))
}

// AddEntry appends e unless an equal entry is present.
func (s *SortSpecification) AddEntry(e SortEntry) {
	for _, existing := range s.entries {
		if existing == e {
			return
		}
	}
	s.entries = append(s.entries, e)
}

// Remove drops the sort on property with exactly this type and direction.
func (s *SortSpecification) Remove(property vprop.VirtualProperty, t ValueType, reverse bool) {
	s.RemoveEntry(NewSortEntry(property, t, reverse))
}

// RemoveEntry drops every entry equal to e.
func (s *SortSpecification) RemoveEntry(e SortEntry) {
	kept := s.entries[:0]
	for _, existing := range s.entries {
		if existing != e {
			kept = append(kept, existing)
		}
	}
	s.entries = kept
}

// Clear drops all entries.
func (s *SortSpecification) Clear() {
	s.entries = nil
}

// Len returns the number of entries.
func (s *SortSpecification) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the entries in priority order.
func (s *SortSpecification) Entries() []SortEntry {
	return append([]SortEntry(nil), s.entries...)
}

func (s *SortSpecification) cacheKey() string {
	parts := make([]string, len(s.entries))
	for i, e := range s.entries {
		parts[i] = e.String()
	}
	return strings.Join(parts, "|")
}

var sortCache = struct {
	sync.RWMutex
	orders map[string]search.SortOrder
}{orders: make(map[string]search.SortOrder)}

// SortOrder returns the compiled sort for the current entries. Compiled
// sorts are shared by every specification with the same entry list; each
// call returns a private copy because bleve sorts keep per-search state.
func (s *SortSpecification) SortOrder() search.SortOrder {
	key := s.cacheKey()

	sortCache.RLock()
	order, ok := sortCache.orders[key]
	sortCache.RUnlock()

	if !ok {
		order = make(search.SortOrder, len(s.entries))
		for i, e := range s.entries {
			order[i] = e.compile()
		}
		sortCache.Lock()
		if cached, exists := sortCache.orders[key]; exists {
			order = cached
		} else {
			sortCache.orders[key] = order
		}
		sortCache.Unlock()
	}

	out := make(search.SortOrder, len(order))
	for i, so := range order {
		out[i] = so.Copy()
	}
	return out
}

// Package query compiles search conditions, sort specifications and facet
// collectors into bleve requests over documents written by the index store.
package query

import (
	"errors"
	"fmt"
	"regexp/syntax"
	"strings"

	"github.com/blevesearch/bleve/v2"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/vprop"
)

// ErrQueryParse is returned when a free-text query cannot be parsed.
var ErrQueryParse = errors.New("query parse error")

// Condition is one clause of a search. All conditions of a search must hold.
type Condition interface {
	Query() (blevequery.Query, error)
}

// Compile ANDs conds into one query. No conditions match every document.
func Compile(conds []Condition) (blevequery.Query, error) {
	if len(conds) == 0 {
		return bleve.NewMatchAllQuery(), nil
	}
	queries := make([]blevequery.Query, 0, len(conds))
	for _, c := range conds {
		q, err := c.Query()
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if len(queries) == 1 {
		return queries[0], nil
	}
	return bleve.NewConjunctionQuery(queries...), nil
}

// GenericCondition matches a free-text query string against one or more
// properties. Terms without an explicit field are searched in every given
// property and a document matches when any property matches.
type GenericCondition struct {
	Properties []vprop.VirtualProperty
	Text       string
}

// NewGenericCondition creates a generic condition over properties.
func NewGenericCondition(text string, properties ...vprop.VirtualProperty) *GenericCondition {
	return &GenericCondition{Properties: properties, Text: text}
}

func (c *GenericCondition) Query() (blevequery.Query, error) {
	if len(c.Properties) == 0 {
		return nil, fmt.Errorf("%w: no properties to search", ErrQueryParse)
	}
	disjuncts := make([]blevequery.Query, 0, len(c.Properties))
	for _, vp := range c.Properties {
		parsed, err := bleve.NewQueryStringQuery(c.Text).Parse()
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrQueryParse, c.Text, err)
		}
		if err := validate(parsed); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrQueryParse, c.Text, err)
		}
		scope(parsed, index.SearchField(vp.Key()))
		disjuncts = append(disjuncts, parsed)
	}
	if len(disjuncts) == 1 {
		return disjuncts[0], nil
	}
	return bleve.NewDisjunctionQuery(disjuncts...), nil
}

// walk calls fn on every leaf of q.
func walk(q blevequery.Query, fn func(blevequery.Query) error) error {
	switch q := q.(type) {
	case nil:
		return nil
	case *blevequery.BooleanQuery:
		for _, sub := range []blevequery.Query{q.Must, q.Should, q.MustNot} {
			if err := walk(sub, fn); err != nil {
				return err
			}
		}
		return nil
	case *blevequery.ConjunctionQuery:
		for _, c := range q.Conjuncts {
			if err := walk(c, fn); err != nil {
				return err
			}
		}
		return nil
	case *blevequery.DisjunctionQuery:
		for _, d := range q.Disjuncts {
			if err := walk(d, fn); err != nil {
				return err
			}
		}
		return nil
	}
	return fn(q)
}

// scope sets field on every leaf of q that has no field of its own.
func scope(q blevequery.Query, field string) {
	_ = walk(q, func(leaf blevequery.Query) error {
		if fq, ok := leaf.(blevequery.FieldableQuery); ok && fq.Field() == "" {
			fq.SetField(field)
		}
		return nil
	})
}

// wildcardReplacer turns a wildcard pattern into the regular expression the
// engine runs.
var wildcardReplacer = strings.NewReplacer(
	"+", `\+`, "(", `\(`, ")", `\)`, "^", `\^`, "$", `\$`, ".", `\.`,
	"{", `\{`, "}", `\}`, "[", `\[`, "]", `\]`, "|", `\|`, `\`, `\\`,
	"*", ".*", "?", ".",
)

// validate rejects regular expression and wildcard leaves the engine could
// not compile.
func validate(q blevequery.Query) error {
	return walk(q, func(leaf blevequery.Query) error {
		var expr string
		switch leaf := leaf.(type) {
		case *blevequery.RegexpQuery:
			expr = leaf.Regexp
		case *blevequery.WildcardQuery:
			expr = wildcardReplacer.Replace(leaf.Wildcard)
		default:
			return nil
		}
		if _, err := syntax.Parse(expr, syntax.Perl); err != nil {
			return err
		}
		return nil
	})
}

// WildcardCondition matches a pattern where ? stands for one character and
// * for any number of characters. Leading wildcards are allowed.
type WildcardCondition struct {
	Property vprop.VirtualProperty
	Pattern  string
}

// NewWildcardCondition creates a wildcard condition on property.
func NewWildcardCondition(property vprop.VirtualProperty, pattern string) *WildcardCondition {
	return &WildcardCondition{Property: property, Pattern: pattern}
}

func (c *WildcardCondition) Query() (blevequery.Query, error) {
	q := bleve.NewWildcardQuery(c.Pattern)
	q.SetField(index.SearchField(c.Property.Key()))
	if err := validate(q); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrQueryParse, c.Pattern, err)
	}
	return q, nil
}

// TermRangeCondition matches whole values between two bounds in
// lexicographic order. An empty bound is open.
type TermRangeCondition struct {
	Property     vprop.VirtualProperty
	Lower        string
	Upper        string
	IncludeLower bool
	IncludeUpper bool
}

// NewTermRangeCondition creates a range condition on property.
func NewTermRangeCondition(property vprop.VirtualProperty, lower, upper string, includeLower, includeUpper bool) *TermRangeCondition {
	return &TermRangeCondition{
		Property:     property,
		Lower:        lower,
		Upper:        upper,
		IncludeLower: includeLower,
		IncludeUpper: includeUpper,
	}
}

func (c *TermRangeCondition) Query() (blevequery.Query, error) {
	if c.Lower == "" && c.Upper == "" {
		return nil, fmt.Errorf("%w: range without bounds", ErrQueryParse)
	}
	lower, upper := c.IncludeLower, c.IncludeUpper
	q := bleve.NewTermRangeInclusiveQuery(c.Lower, c.Upper, &lower, &upper)
	q.SetField(index.SortField(c.Property.Key()))
	return q, nil
}

// ExactCondition matches documents having value as one of the property's
// whole values.
type ExactCondition struct {
	Property vprop.VirtualProperty
	Value    string
}

// NewExactCondition creates an exact-match condition on property.
func NewExactCondition(property vprop.VirtualProperty, value string) *ExactCondition {
	return &ExactCondition{Property: property, Value: value}
}

func (c *ExactCondition) Query() (blevequery.Query, error) {
	q := bleve.NewTermQuery(c.Value)
	q.SetField(index.SortField(c.Property.Key()))
	return q, nil
}

// Package vprop turns graph traversals into flat, indexable string values.
//
// A VirtualProperty is a pure computation over a resource. Three variants
// compose: PropertyHolder reads one predicate, PathVirtualProperty follows a
// chain of predicates and JoinVirtualProperty concatenates its children.
package vprop

import (
	"encoding/hex"
	"errors"
	"slices"
	"strings"

	"github.com/aleksaelezovic/trindex/internal/encoding"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

var (
	ErrNilPredicate = errors.New("virtual property predicate is nil")
	ErrEmptyPath    = errors.New("path virtual property needs at least one predicate")
	ErrEmptyJoin    = errors.New("join virtual property needs at least one child")
)

// Source is the read access a VirtualProperty needs from the graph.
type Source interface {
	Objects(subject rdf.Term, predicate *rdf.NamedNode) ([]rdf.Term, error)
}

// VirtualProperty computes zero or more string values for a resource.
type VirtualProperty interface {
	// Key is a stable content-derived identifier; equal computations have
	// equal keys.
	Key() string

	// BaseProperties lists the predicates the computation reads, without
	// duplicates, in first-use order.
	BaseProperties() []*rdf.NamedNode

	// Value evaluates the property. Missing path elements yield no values.
	Value(src Source, resource rdf.Term) ([]string, error)

	// PathToIndexedResource returns the predicates to follow backwards from
	// the subject of a changed predicate to reach the indexed resource.
	PathToIndexedResource(predicate *rdf.NamedNode) []*rdf.NamedNode

	String() string

	canonical() string
}

func keyOf(canonical string) string {
	sum := encoding.Hash128(canonical)
	return "vp" + hex.EncodeToString(sum[:])
}

func sameAs(predicate *rdf.NamedNode) func(*rdf.NamedNode) bool {
	return func(p *rdf.NamedNode) bool {
		return p.IRI == predicate.IRI
	}
}

// Equal reports whether two virtual properties compute the same thing.
func Equal(a, b VirtualProperty) bool {
	return a.Key() == b.Key()
}

// DependsOn reports whether vp reads predicate.
func DependsOn(vp VirtualProperty, predicate *rdf.NamedNode) bool {
	return slices.ContainsFunc(vp.BaseProperties(), sameAs(predicate))
}

// PropertyHolder wraps a single predicate.
type PropertyHolder struct {
	Property *rdf.NamedNode
	key      string
}

// NewPropertyHolder creates a virtual property reading one predicate.
func NewPropertyHolder(property *rdf.NamedNode) (*PropertyHolder, error) {
	if property == nil {
		return nil, ErrNilPredicate
	}
	p := &PropertyHolder{Property: property}
	p.key = keyOf(p.canonical())
	return p, nil
}

func (p *PropertyHolder) Key() string { return p.key }

func (p *PropertyHolder) BaseProperties() []*rdf.NamedNode {
	return []*rdf.NamedNode{p.Property}
}

// Value returns the literal text or IRI of every object. Blank node objects
// have no text and are skipped.
func (p *PropertyHolder) Value(src Source, resource rdf.Term) ([]string, error) {
	objects, err := src.Objects(resource, p.Property)
	if err != nil {
		return nil, err
	}
	values := make([]string, 0, len(objects))
	for _, o := range objects {
		if text, ok := rdf.Text(o); ok {
			values = append(values, text)
		}
	}
	return values, nil
}

// PathToIndexedResource is always empty: the holder reads the indexed
// resource itself.
func (p *PropertyHolder) PathToIndexedResource(*rdf.NamedNode) []*rdf.NamedNode {
	return nil
}

func (p *PropertyHolder) String() string { return p.Property.String() }

func (p *PropertyHolder) canonical() string { return "P" + p.Property.String() }

// PathVirtualProperty follows an ordered list of predicates.
type PathVirtualProperty struct {
	Path []*rdf.NamedNode
	key  string
	base []*rdf.NamedNode
}

// NewPathVirtualProperty creates a path over the given predicates.
func NewPathVirtualProperty(path ...*rdf.NamedNode) (*PathVirtualProperty, error) {
	if len(path) == 0 {
		return nil, ErrEmptyPath
	}
	if slices.Contains(path, nil) {
		return nil, ErrNilPredicate
	}

	p := &PathVirtualProperty{Path: slices.Clone(path)}
	p.base = uniquePredicates(p.Path)
	p.key = keyOf(p.canonical())
	return p, nil
}

func (p *PathVirtualProperty) Key() string { return p.key }

func (p *PathVirtualProperty) BaseProperties() []*rdf.NamedNode { return p.base }

// Value returns the lexical form of every literal reached at the end of the
// path. Intermediate hops only continue through resources.
func (p *PathVirtualProperty) Value(src Source, resource rdf.Term) ([]string, error) {
	nodes := []rdf.Term{resource}
	last := len(p.Path) - 1

	for i, predicate := range p.Path {
		var next []rdf.Term
		for _, node := range nodes {
			objects, err := src.Objects(node, predicate)
			if err != nil {
				return nil, err
			}
			for _, o := range objects {
				_, isLiteral := o.(*rdf.Literal)
				if isLiteral == (i == last) {
					next = append(next, o)
				}
			}
		}
		if len(next) == 0 {
			return nil, nil
		}
		nodes = next
	}

	values := make([]string, 0, len(nodes))
	for _, n := range nodes {
		values = append(values, n.(*rdf.Literal).Value)
	}
	return values, nil
}

// PathToIndexedResource returns the predicates preceding the first
// occurrence of predicate, in reverse order. Predicates from the match
// point onwards are dropped.
func (p *PathVirtualProperty) PathToIndexedResource(predicate *rdf.NamedNode) []*rdf.NamedNode {
	idx := slices.IndexFunc(p.Path, sameAs(predicate))
	if idx <= 0 {
		return nil
	}
	reverse := slices.Clone(p.Path[:idx])
	slices.Reverse(reverse)
	return reverse
}

func (p *PathVirtualProperty) String() string {
	parts := make([]string, len(p.Path))
	for i, predicate := range p.Path {
		parts[i] = predicate.String()
	}
	return "path(" + strings.Join(parts, "/") + ")"
}

func (p *PathVirtualProperty) canonical() string {
	parts := make([]string, len(p.Path))
	for i, predicate := range p.Path {
		parts[i] = predicate.String()
	}
	return "path(" + strings.Join(parts, ",") + ")"
}

// JoinVirtualProperty concatenates the values of its children.
type JoinVirtualProperty struct {
	Children []VirtualProperty
	key      string
	base     []*rdf.NamedNode
}

// NewJoinVirtualProperty creates a join over the given children.
func NewJoinVirtualProperty(children ...VirtualProperty) (*JoinVirtualProperty, error) {
	if len(children) == 0 {
		return nil, ErrEmptyJoin
	}

	j := &JoinVirtualProperty{Children: slices.Clone(children)}
	var all []*rdf.NamedNode
	for _, child := range j.Children {
		if child == nil {
			return nil, ErrEmptyJoin
		}
		all = append(all, child.BaseProperties()...)
	}
	j.base = uniquePredicates(all)
	j.key = keyOf(j.canonical())
	return j, nil
}

func (j *JoinVirtualProperty) Key() string { return j.key }

func (j *JoinVirtualProperty) BaseProperties() []*rdf.NamedNode { return j.base }

// Value returns a single string: every child's values in child order,
// joined by spaces. It is empty when no child has a value.
func (j *JoinVirtualProperty) Value(src Source, resource rdf.Term) ([]string, error) {
	var parts []string
	for _, child := range j.Children {
		values, err := child.Value(src, resource)
		if err != nil {
			return nil, err
		}
		parts = append(parts, values...)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return []string{strings.Join(parts, " ")}, nil
}

// PathToIndexedResource picks the longest reverse path among the children
// reading predicate. The first child wins among paths of equal length.
func (j *JoinVirtualProperty) PathToIndexedResource(predicate *rdf.NamedNode) []*rdf.NamedNode {
	var (
		best  []*rdf.NamedNode
		found bool
	)
	for _, child := range j.Children {
		if !DependsOn(child, predicate) {
			continue
		}
		candidate := child.PathToIndexedResource(predicate)
		if !found || len(candidate) > len(best) {
			best = candidate
			found = true
		}
	}
	return best
}

func (j *JoinVirtualProperty) String() string {
	parts := make([]string, len(j.Children))
	for i, child := range j.Children {
		parts[i] = child.String()
	}
	return "join(" + strings.Join(parts, ", ") + ")"
}

func (j *JoinVirtualProperty) canonical() string {
	parts := make([]string, len(j.Children))
	for i, child := range j.Children {
		parts[i] = child.canonical()
	}
	return "join(" + strings.Join(parts, ",") + ")"
}

func uniquePredicates(predicates []*rdf.NamedNode) []*rdf.NamedNode {
	seen := make(map[string]struct{}, len(predicates))
	result := make([]*rdf.NamedNode, 0, len(predicates))
	for _, p := range predicates {
		if _, ok := seen[p.IRI]; ok {
			continue
		}
		seen[p.IRI] = struct{}{}
		result = append(result, p)
	}
	return result
}

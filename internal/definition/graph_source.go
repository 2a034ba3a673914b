package definition

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aleksaelezovic/trindex/internal/graph"
	"github.com/aleksaelezovic/trindex/internal/vprop"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
	"github.com/google/uuid"
)

// GraphSource stores definitions as triples using the cris vocabulary:
//
//	_:d a cris:IndexDefinition ;
//	    cris:indexedType foaf:Person ;
//	    cris:indexedProperty foaf:name, _:join .
//	_:join a cris:JoinVirtualProperty ;
//	    cris:propertyList ( foaf:firstName foaf:lastName ) .
//
// Path properties list predicates; join properties list nested properties.
type GraphSource struct {
	graph *graph.Graph
}

// NewGraphSource creates a source over a definition graph.
func NewGraphSource(g *graph.Graph) *GraphSource {
	return &GraphSource{graph: g}
}

// Load reads every cris:IndexDefinition in the graph.
func (s *GraphSource) Load(context.Context) ([]Definition, error) {
	nodes, err := s.graph.Subjects(rdf.RDFType, CRISIndexDefinition)
	if err != nil {
		return nil, err
	}

	var defs []Definition
	for _, node := range nodes {
		def, err := s.readDefinition(node)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Import reads definitions written in Turtle with the cris vocabulary and
// saves each one, replacing stored definitions of the same types.
func (s *GraphSource) Import(ctx context.Context, r io.Reader) ([]Definition, error) {
	triples, err := rdf.ParseTurtle(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDefinition, err)
	}

	scratch, err := graph.Open("")
	if err != nil {
		return nil, err
	}
	defer scratch.Close()
	if err := scratch.Add(triples...); err != nil {
		return nil, err
	}
	defs, err := NewGraphSource(scratch).Load(ctx)
	if err != nil {
		return nil, err
	}

	for _, def := range defs {
		if err := s.Save(ctx, def); err != nil {
			return nil, fmt.Errorf("save definition of %s: %w", def.Type, err)
		}
	}
	return defs, nil
}

// ImportFile imports the Turtle definitions file at path.
func (s *GraphSource) ImportFile(ctx context.Context, path string) ([]Definition, error) {
	f, err := os.Open(path) // #nosec G304 - path comes from the configuration
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return s.Import(ctx, f)
}

func (s *GraphSource) readDefinition(node rdf.Term) (Definition, error) {
	types, err := s.graph.Objects(node, CRISIndexedType)
	if err != nil {
		return Definition{}, err
	}
	if len(types) != 1 {
		return Definition{}, fmt.Errorf("%w: %s has %d indexed types", ErrInvalidDefinition, node, len(types))
	}
	typ, ok := types[0].(*rdf.NamedNode)
	if !ok {
		return Definition{}, fmt.Errorf("%w: indexed type %s is not an IRI", ErrInvalidDefinition, types[0])
	}

	props, err := s.graph.Objects(node, CRISIndexedProperty)
	if err != nil {
		return Definition{}, err
	}

	def := Definition{Type: typ}
	for _, p := range props {
		vp, err := s.readProperty(p)
		if err != nil {
			return Definition{}, fmt.Errorf("definition of %s: %w", typ, err)
		}
		def.Properties = append(def.Properties, vp)
	}
	return def, nil
}

func (s *GraphSource) readProperty(node rdf.Term) (vprop.VirtualProperty, error) {
	types, err := s.graph.Types(node)
	if err != nil {
		return nil, err
	}

	for _, t := range types {
		switch t.IRI {
		case CRISJoinVirtualProperty.IRI:
			items, err := s.readList(node)
			if err != nil {
				return nil, err
			}
			children := make([]vprop.VirtualProperty, 0, len(items))
			for _, item := range items {
				child, err := s.readProperty(item)
				if err != nil {
					return nil, err
				}
				children = append(children, child)
			}
			return vprop.NewJoinVirtualProperty(children...)

		case CRISPathVirtualProperty.IRI:
			items, err := s.readList(node)
			if err != nil {
				return nil, err
			}
			path := make([]*rdf.NamedNode, 0, len(items))
			for _, item := range items {
				predicate, ok := item.(*rdf.NamedNode)
				if !ok {
					return nil, fmt.Errorf("%w: path element %s is not an IRI", ErrInvalidDefinition, item)
				}
				path = append(path, predicate)
			}
			return vprop.NewPathVirtualProperty(path...)
		}
	}

	predicate, ok := node.(*rdf.NamedNode)
	if !ok {
		return nil, fmt.Errorf("%w: property %s is neither an IRI nor a join or path", ErrInvalidDefinition, node)
	}
	return vprop.NewPropertyHolder(predicate)
}

func (s *GraphSource) readList(node rdf.Term) ([]rdf.Term, error) {
	heads, err := s.graph.Objects(node, CRISPropertyList)
	if err != nil {
		return nil, err
	}
	if len(heads) != 1 {
		return nil, fmt.Errorf("%w: %s needs exactly one %s", ErrInvalidDefinition, node, Label(CRISPropertyList))
	}

	var items []rdf.Term
	seen := make(map[string]bool)
	for current := heads[0]; !current.Equals(rdf.RDFNil); {
		if seen[current.String()] {
			return nil, fmt.Errorf("%w: cyclic list at %s", ErrInvalidDefinition, current)
		}
		seen[current.String()] = true

		first, err := s.graph.Objects(current, rdf.RDFFirst)
		if err != nil {
			return nil, err
		}
		rest, err := s.graph.Objects(current, rdf.RDFRest)
		if err != nil {
			return nil, err
		}
		if len(first) != 1 || len(rest) != 1 {
			return nil, fmt.Errorf("%w: malformed list node %s", ErrInvalidDefinition, current)
		}
		items = append(items, first[0])
		current = rest[0]
	}
	return items, nil
}

// Save replaces the stored definition of def.Type.
func (s *GraphSource) Save(ctx context.Context, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	if err := s.Delete(ctx, def.Type); err != nil {
		return err
	}

	node := newBlankNode()
	triples := []*rdf.Triple{
		rdf.NewTriple(node, rdf.RDFType, CRISIndexDefinition),
		rdf.NewTriple(node, CRISIndexedType, def.Type),
	}
	for _, vp := range def.Properties {
		object, propTriples := propertyTriples(vp)
		triples = append(triples, propTriples...)
		triples = append(triples, rdf.NewTriple(node, CRISIndexedProperty, object))
	}
	return s.graph.Add(triples...)
}

// Delete removes every definition node of the type with its nested nodes.
func (s *GraphSource) Delete(_ context.Context, typ *rdf.NamedNode) error {
	nodes, err := s.graph.Subjects(CRISIndexedType, typ)
	if err != nil {
		return err
	}

	var doomed []*rdf.Triple
	for _, node := range nodes {
		collected, err := s.collectTree(node, make(map[string]bool))
		if err != nil {
			return err
		}
		doomed = append(doomed, collected...)
	}
	if len(doomed) == 0 {
		return nil
	}
	return s.graph.Remove(doomed...)
}

// collectTree gathers the triples of node and, recursively, of the blank
// nodes it points to.
func (s *GraphSource) collectTree(node rdf.Term, visited map[string]bool) ([]*rdf.Triple, error) {
	if visited[node.String()] {
		return nil, nil
	}
	visited[node.String()] = true

	triples, err := s.graph.Filter(node, nil, nil)
	if err != nil {
		return nil, err
	}
	result := triples
	for _, t := range triples {
		if _, ok := t.Object.(*rdf.BlankNode); ok {
			nested, err := s.collectTree(t.Object, visited)
			if err != nil {
				return nil, err
			}
			result = append(result, nested...)
		}
	}
	return result, nil
}

func propertyTriples(vp vprop.VirtualProperty) (rdf.Term, []*rdf.Triple) {
	switch p := vp.(type) {
	case *vprop.PropertyHolder:
		return p.Property, nil

	case *vprop.PathVirtualProperty:
		node := newBlankNode()
		items := make([]rdf.Term, len(p.Path))
		for i, predicate := range p.Path {
			items[i] = predicate
		}
		head, list := listTriples(items)
		return node, append(list,
			rdf.NewTriple(node, rdf.RDFType, CRISPathVirtualProperty),
			rdf.NewTriple(node, CRISPropertyList, head))

	case *vprop.JoinVirtualProperty:
		node := newBlankNode()
		var triples []*rdf.Triple
		items := make([]rdf.Term, len(p.Children))
		for i, child := range p.Children {
			object, childTriples := propertyTriples(child)
			items[i] = object
			triples = append(triples, childTriples...)
		}
		head, list := listTriples(items)
		triples = append(triples, list...)
		return node, append(triples,
			rdf.NewTriple(node, rdf.RDFType, CRISJoinVirtualProperty),
			rdf.NewTriple(node, CRISPropertyList, head))
	}
	panic(fmt.Sprintf("unknown virtual property %T", vp))
}

func listTriples(items []rdf.Term) (rdf.Term, []*rdf.Triple) {
	var head rdf.Term = rdf.RDFNil
	var triples []*rdf.Triple
	for i := len(items) - 1; i >= 0; i-- {
		node := newBlankNode()
		triples = append(triples,
			rdf.NewTriple(node, rdf.RDFFirst, items[i]),
			rdf.NewTriple(node, rdf.RDFRest, head))
		head = node
	}
	return head, triples
}

func newBlankNode() *rdf.BlankNode {
	return rdf.NewBlankNode(uuid.NewString())
}

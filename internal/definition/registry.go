// Package definition holds index definitions: which virtual properties are
// indexed for which resource types, and where those definitions come from.
package definition

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/aleksaelezovic/trindex/internal/vprop"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

var ErrInvalidDefinition = errors.New("invalid index definition")

// Definition associates a resource type with the virtual properties indexed
// for resources of that type.
type Definition struct {
	Type       *rdf.NamedNode
	Properties []vprop.VirtualProperty
}

// Validate checks a definition before it is registered or stored.
func (d Definition) Validate() error {
	if d.Type == nil || d.Type.IRI == "" {
		return fmt.Errorf("%w: missing type", ErrInvalidDefinition)
	}
	for i, p := range d.Properties {
		if p == nil {
			return fmt.Errorf("%w: property %d of %s is nil", ErrInvalidDefinition, i, d.Type)
		}
	}
	return nil
}

// Snapshot is an immutable view of the registry and its derived indexes.
type Snapshot struct {
	definitions map[string]Definition
	// base predicate IRI -> virtual properties reading it
	byBase map[string][]vprop.VirtualProperty
	// virtual property key -> type IRIs indexing it
	typesByProperty map[string][]string
}

// Properties returns the virtual properties indexed for a type.
func (s *Snapshot) Properties(typeIRI string) []vprop.VirtualProperty {
	return s.definitions[typeIRI].Properties
}

// Watched reports whether an index definition exists for the type.
func (s *Snapshot) Watched(typeIRI string) bool {
	_, ok := s.definitions[typeIRI]
	return ok
}

// Dependents returns the virtual properties that read predicate and are
// indexed for at least one type.
func (s *Snapshot) Dependents(predicate *rdf.NamedNode) []vprop.VirtualProperty {
	var result []vprop.VirtualProperty
	for _, vp := range s.byBase[predicate.IRI] {
		if len(s.typesByProperty[vp.Key()]) > 0 {
			result = append(result, vp)
		}
	}
	return result
}

// TypesOf returns the types indexing a virtual property.
func (s *Snapshot) TypesOf(vp vprop.VirtualProperty) []string {
	return s.typesByProperty[vp.Key()]
}

// Types returns every watched type, sorted.
func (s *Snapshot) Types() []string {
	types := make([]string, 0, len(s.definitions))
	for t := range s.definitions {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Definitions returns every definition ordered by type.
func (s *Snapshot) Definitions() []Definition {
	defs := make([]Definition, 0, len(s.definitions))
	for _, t := range s.Types() {
		defs = append(defs, s.definitions[t])
	}
	return defs
}

// Property finds an indexed virtual property by key.
func (s *Snapshot) Property(key string) (vprop.VirtualProperty, bool) {
	for _, def := range s.definitions {
		for _, vp := range def.Properties {
			if vp.Key() == key {
				return vp, true
			}
		}
	}
	return nil, false
}

func buildSnapshot(defs map[string]Definition) *Snapshot {
	s := &Snapshot{
		definitions:     defs,
		byBase:          make(map[string][]vprop.VirtualProperty),
		typesByProperty: make(map[string][]string),
	}

	seen := make(map[string]bool)
	for _, typeIRI := range s.Types() {
		for _, vp := range defs[typeIRI].Properties {
			s.typesByProperty[vp.Key()] = append(s.typesByProperty[vp.Key()], typeIRI)
			if seen[vp.Key()] {
				continue
			}
			seen[vp.Key()] = true
			for _, base := range vp.BaseProperties() {
				s.byBase[base.IRI] = append(s.byBase[base.IRI], vp)
			}
		}
	}
	return s
}

// Registry maps watched types to their virtual properties. Mutations are
// serialized and publish a new Snapshot; readers never block.
type Registry struct {
	mu   sync.Mutex
	defs map[string]Definition
	snap atomic.Pointer[Snapshot]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	r.snap.Store(buildSnapshot(map[string]Definition{}))
	return r
}

// Snapshot returns the current registry view.
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Define registers the properties of a type, replacing any prior definition.
// Duplicate properties are dropped.
func (r *Registry) Define(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.defs[def.Type.IRI] = normalize(def)
	r.publish()
	return nil
}

// Remove drops the definition of a type and reports whether one existed.
func (r *Registry) Remove(typ *rdf.NamedNode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.defs[typ.IRI]; !ok {
		return false
	}
	delete(r.defs, typ.IRI)
	r.publish()
	return true
}

// Replace swaps the whole registry content in one step.
func (r *Registry) Replace(defs []Definition) error {
	next := make(map[string]Definition, len(defs))
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return err
		}
		next[def.Type.IRI] = normalize(def)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.defs = next
	r.publish()
	return nil
}

// Properties returns the virtual properties indexed for a type.
func (r *Registry) Properties(typ *rdf.NamedNode) []vprop.VirtualProperty {
	return r.Snapshot().Properties(typ.IRI)
}

// publish must be called with mu held.
func (r *Registry) publish() {
	copied := make(map[string]Definition, len(r.defs))
	for k, v := range r.defs {
		copied[k] = v
	}
	r.snap.Store(buildSnapshot(copied))
}

func normalize(def Definition) Definition {
	props := make([]vprop.VirtualProperty, 0, len(def.Properties))
	for _, p := range def.Properties {
		if !slices.ContainsFunc(props, func(q vprop.VirtualProperty) bool { return vprop.Equal(p, q) }) {
			props = append(props, p)
		}
	}
	return Definition{Type: def.Type, Properties: props}
}

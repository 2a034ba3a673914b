package definition

import (
	"context"
	"sync"

	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// Source stores index definitions outside the registry.
type Source interface {
	// Load enumerates every stored definition.
	Load(ctx context.Context) ([]Definition, error)

	// Save stores a definition, replacing any previous one for its type.
	Save(ctx context.Context, def Definition) error

	// Delete removes the definition of a type.
	Delete(ctx context.Context, typ *rdf.NamedNode) error
}

// MemorySource keeps definitions in memory.
type MemorySource struct {
	mu   sync.Mutex
	defs []Definition
}

// NewMemorySource creates a source holding the given definitions.
func NewMemorySource(defs ...Definition) *MemorySource {
	return &MemorySource{defs: defs}
}

func (s *MemorySource) Load(context.Context) ([]Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Definition(nil), s.defs...), nil
}

func (s *MemorySource) Save(_ context.Context, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.defs {
		if d.Type.IRI == def.Type.IRI {
			s.defs[i] = def
			return nil
		}
	}
	s.defs = append(s.defs, def)
	return nil
}

func (s *MemorySource) Delete(_ context.Context, typ *rdf.NamedNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, d := range s.defs {
		if d.Type.IRI == typ.IRI {
			s.defs = append(s.defs[:i], s.defs[i+1:]...)
			return nil
		}
	}
	return nil
}

package definition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aleksaelezovic/trindex/internal/vprop"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
	"gopkg.in/yaml.v3"
)

// FileDocument is the YAML layout of a definitions file:
//
//	prefixes:
//	  foaf: http://xmlns.com/foaf/0.1/
//	definitions:
//	  - type: foaf:Person
//	    properties:
//	      - foaf:name
//	      - path: [ex:worksFor, foaf:name]
//	      - join: [foaf:firstName, foaf:lastName]
type FileDocument struct {
	Prefixes    map[string]string `yaml:"prefixes,omitempty"`
	Definitions []FileDefinition  `yaml:"definitions"`
}

// FileDefinition is one entry of a definitions file.
type FileDefinition struct {
	Type       string         `yaml:"type"`
	Properties []PropertySpec `yaml:"properties"`
}

// PropertySpec is a property written either as a plain (prefixed) IRI, a
// path of IRIs or a join of nested specs.
type PropertySpec struct {
	Property string         `yaml:"-"`
	Path     []string       `yaml:"path,omitempty"`
	Join     []PropertySpec `yaml:"join,omitempty"`
}

type propertySpecFields struct {
	Path []string       `yaml:"path,omitempty"`
	Join []PropertySpec `yaml:"join,omitempty"`
}

func (p *PropertySpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		p.Property = value.Value
		return nil
	}
	var fields propertySpecFields
	if err := value.Decode(&fields); err != nil {
		return err
	}
	p.Path, p.Join = fields.Path, fields.Join
	return nil
}

func (p PropertySpec) MarshalYAML() (any, error) {
	if p.Property != "" {
		return p.Property, nil
	}
	return propertySpecFields{Path: p.Path, Join: p.Join}, nil
}

// ParseFileDocument decodes a definitions document and resolves it into
// validated definitions.
func ParseFileDocument(r io.Reader) ([]Definition, error) {
	var doc FileDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to decode definitions: %w", err)
	}
	return doc.Resolve()
}

// Resolve expands prefixes and builds the virtual properties.
func (d *FileDocument) Resolve() ([]Definition, error) {
	defs := make([]Definition, 0, len(d.Definitions))
	for _, fd := range d.Definitions {
		typeIRI, err := d.expand(fd.Type)
		if err != nil {
			return nil, err
		}
		def := Definition{Type: rdf.NewNamedNode(typeIRI)}
		for _, spec := range fd.Properties {
			vp, err := d.build(spec)
			if err != nil {
				return nil, fmt.Errorf("definition of %s: %w", typeIRI, err)
			}
			def.Properties = append(def.Properties, vp)
		}
		if err := def.Validate(); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}

func (d *FileDocument) build(spec PropertySpec) (vprop.VirtualProperty, error) {
	switch {
	case spec.Property != "":
		iri, err := d.expand(spec.Property)
		if err != nil {
			return nil, err
		}
		return vprop.NewPropertyHolder(rdf.NewNamedNode(iri))

	case spec.Path != nil:
		path := make([]*rdf.NamedNode, 0, len(spec.Path))
		for _, s := range spec.Path {
			iri, err := d.expand(s)
			if err != nil {
				return nil, err
			}
			path = append(path, rdf.NewNamedNode(iri))
		}
		return vprop.NewPathVirtualProperty(path...)

	case spec.Join != nil:
		children := make([]vprop.VirtualProperty, 0, len(spec.Join))
		for _, s := range spec.Join {
			child, err := d.build(s)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		return vprop.NewJoinVirtualProperty(children...)
	}
	return nil, fmt.Errorf("%w: empty property specification", ErrInvalidDefinition)
}

// expand turns prefix:local into a full IRI. Values already holding a
// scheme separator that is not a known prefix are returned unchanged.
func (d *FileDocument) expand(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty IRI", ErrInvalidDefinition)
	}
	prefix, local, ok := strings.Cut(s, ":")
	if !ok {
		return "", fmt.Errorf("%w: %q is not an IRI", ErrInvalidDefinition, s)
	}
	if ns, known := d.Prefixes[prefix]; known {
		return ns + local, nil
	}
	return s, nil
}

// SpecOf converts a virtual property back into its file form.
func SpecOf(vp vprop.VirtualProperty) PropertySpec {
	switch p := vp.(type) {
	case *vprop.PropertyHolder:
		return PropertySpec{Property: p.Property.IRI}
	case *vprop.PathVirtualProperty:
		path := make([]string, len(p.Path))
		for i, predicate := range p.Path {
			path[i] = predicate.IRI
		}
		return PropertySpec{Path: path}
	case *vprop.JoinVirtualProperty:
		join := make([]PropertySpec, len(p.Children))
		for i, child := range p.Children {
			join[i] = SpecOf(child)
		}
		return PropertySpec{Join: join}
	}
	return PropertySpec{}
}

// EncodeDefinitions writes definitions in file form.
func EncodeDefinitions(w io.Writer, defs []Definition) error {
	doc := FileDocument{}
	for _, def := range defs {
		fd := FileDefinition{Type: def.Type.IRI}
		for _, vp := range def.Properties {
			fd.Properties = append(fd.Properties, SpecOf(vp))
		}
		doc.Definitions = append(doc.Definitions, fd)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return err
	}
	return enc.Close()
}

// FileSource keeps definitions in a YAML file.
type FileSource struct {
	path string
	mu   sync.Mutex
}

// NewFileSource creates a source backed by the file at path. A missing file
// holds no definitions.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Path returns the definitions file location.
func (s *FileSource) Path() string {
	return s.path
}

func (s *FileSource) Load(context.Context) ([]Definition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *FileSource) load() ([]Definition, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ParseFileDocument(f)
}

func (s *FileSource) Save(_ context.Context, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	return s.update(func(defs []Definition) []Definition {
		for i, d := range defs {
			if d.Type.IRI == def.Type.IRI {
				defs[i] = def
				return defs
			}
		}
		return append(defs, def)
	})
}

func (s *FileSource) Delete(_ context.Context, typ *rdf.NamedNode) error {
	return s.update(func(defs []Definition) []Definition {
		result := defs[:0]
		for _, d := range defs {
			if d.Type.IRI != typ.IRI {
				result = append(result, d)
			}
		}
		return result
	})
}

// update rewrites the file through a temporary file and a rename.
func (s *FileSource) update(change func([]Definition) []Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	defs, err := s.load()
	if err != nil {
		return err
	}
	defs = change(defs)

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".definitions-*.yaml")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := EncodeDefinitions(tmp, defs); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

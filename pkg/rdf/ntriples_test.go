package rdf

import (
	"bytes"
	"strings"
	"testing"
)

func TestNTriplesParser_Parse(t *testing.T) {
	input := `# people
<http://example.org/alice> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://xmlns.com/foaf/0.1/Person> .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice \"A\" Smith" .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/nick> "ali"@en .
<http://example.org/alice> <http://example.org/age> "30"^^<http://www.w3.org/2001/XMLSchema#integer> .
_:pet1 <http://xmlns.com/foaf/0.1/name> "Fifi\u00e9" .
`
	triples, err := NewNTriplesParser(input).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(triples) != 5 {
		t.Fatalf("Expected 5 triples, got %d", len(triples))
	}

	if !triples[0].Predicate.Equals(RDFType) {
		t.Errorf("Expected rdf:type predicate, got %s", triples[0].Predicate)
	}
	if lit := triples[1].Object.(*Literal); lit.Value != `Alice "A" Smith` {
		t.Errorf("Unexpected literal value %q", lit.Value)
	}
	if lit := triples[2].Object.(*Literal); lit.Language != "en" {
		t.Errorf("Expected language en, got %q", lit.Language)
	}
	if lit := triples[3].Object.(*Literal); !lit.Datatype.Equals(XSDInteger) {
		t.Errorf("Expected xsd:integer, got %v", lit.Datatype)
	}
	if b, ok := triples[4].Subject.(*BlankNode); !ok || b.ID != "pet1" {
		t.Errorf("Expected blank node pet1, got %v", triples[4].Subject)
	}
	if lit := triples[4].Object.(*Literal); lit.Value != "Fifié" {
		t.Errorf("Expected unicode escape to be decoded, got %q", lit.Value)
	}
}

func TestNTriplesParser_Errors(t *testing.T) {
	inputs := []string{
		`<http://example.org/a> <http://example.org/p> "unterminated .`,
		`"lit" <http://example.org/p> <http://example.org/o> .`,
		`<http://example.org/a> _:p <http://example.org/o> .`,
		`<http://example.org/a> <http://example.org/p> <http://example.org/o>`,
		`<relative> <http://example.org/p> <http://example.org/o> .`,
	}
	for _, input := range inputs {
		if _, err := NewNTriplesParser(input).Parse(); err == nil {
			t.Errorf("Expected error for %q", input)
		}
	}
}

func TestWriteNTriples_RoundTrip(t *testing.T) {
	original := []*Triple{
		NewTriple(NewNamedNode("http://example.org/a"), NewNamedNode("http://example.org/p"), NewLiteral("line\nbreak")),
		NewTriple(NewBlankNode("b0"), NewNamedNode("http://example.org/p"), NewNamedNode("http://example.org/o")),
	}

	var buf bytes.Buffer
	if err := WriteNTriples(&buf, original); err != nil {
		t.Fatalf("WriteNTriples failed: %v", err)
	}

	parsed, err := ParseNTriples(strings.NewReader(buf.String()))
	if err != nil {
		t.Fatalf("ParseNTriples failed: %v", err)
	}
	if len(parsed) != len(original) {
		t.Fatalf("Expected %d triples, got %d", len(original), len(parsed))
	}
	for i := range original {
		if !original[i].Equals(parsed[i]) {
			t.Errorf("Triple %d: expected %s, got %s", i, original[i], parsed[i])
		}
	}
}

package rdf

import (
	"strings"
	"testing"
)

func objectsOf(triples []*Triple, subject Term, predicate *NamedNode) []Term {
	var objects []Term
	for _, t := range triples {
		if t.Subject.Equals(subject) && t.Predicate.Equals(predicate) {
			objects = append(objects, t.Object)
		}
	}
	return objects
}

func TestTurtleParser_Parse(t *testing.T) {
	input := `@prefix ex: <http://example.org/> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
# people
ex:alice a ex:Person ;
    ex:name "Alice", 'Ali'@en ;
    ex:age 30 ;
    ex:height 1.68 ;
    ex:score -2.5e3 ;
    ex:active true ;
    ex:born "1990-01-01"^^xsd:date ;
    ex:bio """Line one
said "hi" """ .
`
	triples, err := NewTurtleParser(input).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(triples) != 9 {
		t.Fatalf("Expected 9 triples, got %d", len(triples))
	}

	if !triples[0].Predicate.Equals(RDFType) || !triples[0].Object.Equals(NewNamedNode("http://example.org/Person")) {
		t.Errorf("Expected rdf:type ex:Person, got %s", triples[0])
	}
	if lit := triples[2].Object.(*Literal); lit.Value != "Ali" || lit.Language != "en" {
		t.Errorf("Unexpected literal %s", lit)
	}

	typed := []struct {
		value    string
		datatype *NamedNode
	}{
		{"30", XSDInteger},
		{"1.68", XSDDecimal},
		{"-2.5e3", XSDDouble},
		{"true", XSDBoolean},
		{"1990-01-01", XSDDate},
	}
	for i, want := range typed {
		lit := triples[3+i].Object.(*Literal)
		if lit.Value != want.value || !lit.Datatype.Equals(want.datatype) {
			t.Errorf("Triple %d: expected %q^^%s, got %s", 3+i, want.value, want.datatype, lit)
		}
	}
	if lit := triples[8].Object.(*Literal); lit.Value != "Line one\nsaid \"hi\" " {
		t.Errorf("Unexpected long literal %q", lit.Value)
	}
}

func TestTurtleParser_BlankNodesAndCollections(t *testing.T) {
	input := `@prefix ex: <http://example.org/> .
ex:alice ex:knows [ ex:name "Bob" ] ;
    ex:tags ( "x" ex:y ) .
[ ex:name "Anon" ] .
`
	triples, err := NewTurtleParser(input).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(triples) != 8 {
		t.Fatalf("Expected 8 triples, got %d", len(triples))
	}

	alice := NewNamedNode("http://example.org/alice")
	name := NewNamedNode("http://example.org/name")

	known := objectsOf(triples, alice, NewNamedNode("http://example.org/knows"))
	if len(known) != 1 {
		t.Fatalf("Expected one known resource, got %d", len(known))
	}
	if _, ok := known[0].(*BlankNode); !ok {
		t.Fatalf("Expected a blank node, got %s", known[0])
	}
	if names := objectsOf(triples, known[0], name); len(names) != 1 || names[0].(*Literal).Value != "Bob" {
		t.Errorf("Expected the blank node to be named Bob, got %v", names)
	}

	var items []string
	heads := objectsOf(triples, alice, NewNamedNode("http://example.org/tags"))
	for node := heads[0]; !node.Equals(RDFNil); {
		first := objectsOf(triples, node, RDFFirst)
		rest := objectsOf(triples, node, RDFRest)
		if len(first) != 1 || len(rest) != 1 {
			t.Fatalf("Malformed list node %s", node)
		}
		items = append(items, first[0].String())
		node = rest[0]
	}
	if got := strings.Join(items, " "); got != `"x" <http://example.org/y>` {
		t.Errorf("Unexpected list items %s", got)
	}

	if last := triples[7]; last.Object.(*Literal).Value != "Anon" {
		t.Errorf("Expected the standalone property list last, got %s", last)
	}
}

func TestTurtleParser_BaseAndSPARQLDirectives(t *testing.T) {
	input := `BASE <http://example.org/base/>
PREFIX ex: <http://example.org/>
<alice> ex:friend <../bob> .
`
	triples, err := NewTurtleParser(input).Parse()
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("Expected 1 triple, got %d", len(triples))
	}
	if s := triples[0].Subject.(*NamedNode).IRI; s != "http://example.org/base/alice" {
		t.Errorf("Unexpected subject %s", s)
	}
	if o := triples[0].Object.(*NamedNode).IRI; o != "http://example.org/bob" {
		t.Errorf("Unexpected object %s", o)
	}
}

func TestTurtleParser_AcceptsNTriples(t *testing.T) {
	input := `<http://example.org/alice> <http://xmlns.com/foaf/0.1/name> "Alice \"A\" Smith" .
<http://example.org/alice> <http://xmlns.com/foaf/0.1/nick> "ali"@en .
_:pet1 <http://xmlns.com/foaf/0.1/name> "Fifié" .
`
	want, err := NewNTriplesParser(input).Parse()
	if err != nil {
		t.Fatalf("N-Triples parse failed: %v", err)
	}
	got, err := NewTurtleParser(input).Parse()
	if err != nil {
		t.Fatalf("Turtle parse failed: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d triples, got %d", len(want), len(got))
	}
	for i := range want {
		if !got[i].Equals(want[i]) {
			t.Errorf("Triple %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestTurtleParser_Errors(t *testing.T) {
	tests := map[string]string{
		"undefined prefix":   `ex:a ex:b ex:c .`,
		"missing dot":        `<http://e/a> <http://e/b> <http://e/c>`,
		"literal subject":    `"lit" <http://e/b> <http://e/c> .`,
		"relative IRI":       `<a> <http://e/b> <http://e/c> .`,
		"unclosed literal":   `<http://e/a> <http://e/b> "open .`,
		"unclosed list":      `<http://e/a> <http://e/b> ( "x" .`,
		"missing prefix dot": `@prefix ex: <http://example.org/>`,
	}
	for name, input := range tests {
		if _, err := NewTurtleParser(input).Parse(); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestFormats(t *testing.T) {
	if f := FormatForPath("data/people.NT"); f != FormatNTriples {
		t.Errorf("Expected n-triples for .NT, got %s", f)
	}
	if f := FormatForPath("data/people.ttl"); f != FormatTurtle {
		t.Errorf("Expected turtle for .ttl, got %s", f)
	}

	contentTypes := map[string]Format{
		"":                                   FormatTurtle,
		"text/turtle; charset=utf-8":         FormatTurtle,
		"text/plain":                         FormatTurtle,
		"application/n-triples":              FormatNTriples,
		"application/n-triples;charset=utf8": FormatNTriples,
	}
	for ct, want := range contentTypes {
		got, err := FormatForContentType(ct)
		if err != nil || got != want {
			t.Errorf("%q: expected %s, got %s (%v)", ct, want, got, err)
		}
	}
	if _, err := FormatForContentType("application/json"); err == nil {
		t.Error("Expected application/json to be rejected")
	}

	triples, err := ParseTriples(strings.NewReader(`<http://e/a> <http://e/b> 1 .`), FormatTurtle)
	if err != nil || len(triples) != 1 {
		t.Fatalf("ParseTriples failed: %v", err)
	}
	if _, err := ParseTriples(strings.NewReader(""), Format("rdf/xml")); err == nil {
		t.Error("Expected an unknown format to be rejected")
	}
}

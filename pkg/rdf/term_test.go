package rdf

import (
	"testing"
)

// ===== NamedNode Tests =====

func TestNamedNode_String(t *testing.T) {
	node := NewNamedNode("http://example.org/resource")
	expected := "<http://example.org/resource>"
	if node.String() != expected {
		t.Errorf("Expected %s, got %s", expected, node.String())
	}
}

func TestNamedNode_Equals(t *testing.T) {
	node1 := NewNamedNode("http://example.org/resource")
	node2 := NewNamedNode("http://example.org/resource")
	node3 := NewNamedNode("http://example.org/different")

	if !node1.Equals(node2) {
		t.Error("Expected equal NamedNodes to be equal")
	}
	if node1.Equals(node3) {
		t.Error("Expected different NamedNodes to not be equal")
	}
	if node1.Equals(NewLiteral("test")) {
		t.Error("NamedNode should not equal Literal")
	}
}

// ===== BlankNode Tests =====

func TestBlankNode_Equals(t *testing.T) {
	node1 := NewBlankNode("b1")
	if !node1.Equals(NewBlankNode("b1")) {
		t.Error("Expected equal BlankNodes to be equal")
	}
	if node1.Equals(NewBlankNode("b2")) {
		t.Error("Expected different BlankNodes to not be equal")
	}
	if node1.String() != "_:b1" {
		t.Errorf("Expected _:b1, got %s", node1.String())
	}
}

// ===== Literal Tests =====

func TestLiteral_String(t *testing.T) {
	tests := []struct {
		name     string
		literal  *Literal
		expected string
	}{
		{"plain", NewLiteral("hello"), `"hello"`},
		{"language", NewLiteralWithLanguage("hallo", "de"), `"hallo"@de`},
		{"typed", NewIntegerLiteral(42), `"42"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"escaped", NewLiteral("say \"hi\"\n"), `"say \"hi\"\n"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.literal.String(); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestLiteral_Equals(t *testing.T) {
	if !NewLiteral("a").Equals(NewLiteral("a")) {
		t.Error("Expected equal plain literals to be equal")
	}
	if NewLiteral("a").Equals(NewLiteralWithLanguage("a", "en")) {
		t.Error("Language tag should distinguish literals")
	}
	if NewIntegerLiteral(1).Equals(NewLiteral("1")) {
		t.Error("Datatype should distinguish literals")
	}
	if !NewDoubleLiteral(1.5).Equals(NewLiteralWithDatatype("1.5", XSDDouble)) {
		t.Error("Expected equal typed literals to be equal")
	}
}

func TestText(t *testing.T) {
	if s, ok := Text(NewLiteral("Alice")); !ok || s != "Alice" {
		t.Errorf("Expected literal text Alice, got %q", s)
	}
	if s, ok := Text(NewNamedNode("http://example.org/a")); !ok || s != "http://example.org/a" {
		t.Errorf("Expected IRI text, got %q", s)
	}
	if _, ok := Text(NewBlankNode("b")); ok {
		t.Error("Blank nodes should have no text")
	}
}

func TestTriple_Equals(t *testing.T) {
	s := NewNamedNode("http://example.org/s")
	p := NewNamedNode("http://example.org/p")
	t1 := NewTriple(s, p, NewLiteral("o"))
	t2 := NewTriple(s, p, NewLiteral("o"))
	t3 := NewTriple(s, p, NewLiteral("x"))

	if !t1.Equals(t2) {
		t.Error("Expected equal triples to be equal")
	}
	if t1.Equals(t3) {
		t.Error("Expected different triples to not be equal")
	}
}

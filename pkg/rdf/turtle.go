package rdf

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
)

// TurtleParser parses Turtle documents: prefix and base directives,
// predicate and object lists, blank node property lists, collections and
// the numeric and boolean shorthands. Every N-Triples document is valid
// Turtle.
type TurtleParser struct {
	NTriplesParser
	prefixes map[string]string
	base     *url.URL
	triples  []*Triple
}

// NewTurtleParser creates a new Turtle parser
func NewTurtleParser(input string) *TurtleParser {
	return &TurtleParser{
		NTriplesParser: NTriplesParser{input: input, length: len(input)},
		prefixes:       make(map[string]string),
	}
}

// ParseTurtle reads a whole Turtle document from r.
func ParseTurtle(r io.Reader) ([]*Triple, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read turtle: %w", err)
	}
	return NewTurtleParser(string(data)).Parse()
}

// SetBaseURI sets the base URI for resolving relative IRIs
func (p *TurtleParser) SetBaseURI(baseURI string) error {
	base, err := url.Parse(baseURI)
	if err != nil || !base.IsAbs() {
		return fmt.Errorf("invalid base IRI %q", baseURI)
	}
	p.base = base
	return nil
}

// Parse parses the document and returns its triples in statement order.
func (p *TurtleParser) Parse() ([]*Triple, error) {
	p.triples = nil
	for p.pos < p.length {
		p.skipWhitespaceAndComments()
		if p.pos >= p.length {
			break
		}
		if err := p.parseStatement(); err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line(), err)
		}
	}
	return p.triples, nil
}

func (p *TurtleParser) parseStatement() error {
	switch {
	case p.matchKeyword("@prefix", true):
		return p.parsePrefix(true)
	case p.matchKeyword("PREFIX", false):
		return p.parsePrefix(false)
	case p.matchKeyword("@base", true):
		return p.parseBase(true)
	case p.matchKeyword("BASE", false):
		return p.parseBase(false)
	}
	return p.parseTripleBlock()
}

// matchKeyword consumes keyword when it is not followed by a name
// character. A following '.' closes the statement. SPARQL style keywords
// match case-insensitively.
func (p *TurtleParser) matchKeyword(keyword string, exact bool) bool {
	end := p.pos + len(keyword)
	if end > p.length {
		return false
	}
	word := p.input[p.pos:end]
	if exact && word != keyword || !exact && !strings.EqualFold(word, keyword) {
		return false
	}
	if end < p.length {
		if r, _ := utf8.DecodeRuneInString(p.input[end:]); isNameRune(r) && r != '.' || r == ':' {
			return false
		}
	}
	p.pos = end
	return true
}

func (p *TurtleParser) parsePrefix(turtleStyle bool) error {
	p.skipWhitespaceAndComments()

	start := p.pos
	for p.pos < p.length && p.input[p.pos] != ':' && !isSpace(p.input[p.pos]) {
		p.pos++
	}
	prefix := p.input[start:p.pos]
	if p.pos >= p.length || p.input[p.pos] != ':' {
		return fmt.Errorf("expected ':' after prefix name %q", prefix)
	}
	p.pos++

	p.skipWhitespaceAndComments()
	if p.pos >= p.length || p.input[p.pos] != '<' {
		return fmt.Errorf("expected IRI for prefix %q", prefix)
	}
	iri, err := p.parseRelativeIRI()
	if err != nil {
		return fmt.Errorf("failed to parse prefix IRI: %w", err)
	}
	p.prefixes[prefix] = iri
	return p.endDirective(turtleStyle)
}

func (p *TurtleParser) parseBase(turtleStyle bool) error {
	p.skipWhitespaceAndComments()
	if p.pos >= p.length || p.input[p.pos] != '<' {
		return fmt.Errorf("expected IRI after base")
	}
	iri, err := p.parseRelativeIRI()
	if err != nil {
		return fmt.Errorf("failed to parse base IRI: %w", err)
	}
	if err := p.SetBaseURI(iri); err != nil {
		return err
	}
	return p.endDirective(turtleStyle)
}

// endDirective consumes the '.' closing an @prefix or @base directive.
// SPARQL style directives have none.
func (p *TurtleParser) endDirective(turtleStyle bool) error {
	if !turtleStyle {
		return nil
	}
	p.skipWhitespaceAndComments()
	if p.pos >= p.length || p.input[p.pos] != '.' {
		return fmt.Errorf("expected '.' after directive")
	}
	p.pos++
	return nil
}

// parseTripleBlock parses: subject predicateObjectList '.' where a blank
// node property list may stand alone.
func (p *TurtleParser) parseTripleBlock() error {
	standalone := p.peek() == '['
	subject, err := p.parseSubject()
	if err != nil {
		return fmt.Errorf("error parsing subject: %w", err)
	}

	p.skipWhitespaceAndComments()
	if !(standalone && p.peek() == '.') {
		if err := p.parsePredicateObjectList(subject); err != nil {
			return err
		}
		p.skipWhitespaceAndComments()
	}

	if p.peek() != '.' {
		return fmt.Errorf("expected '.' at end of triple")
	}
	p.pos++
	return nil
}

func (p *TurtleParser) parseSubject() (Term, error) {
	switch p.peek() {
	case '[':
		return p.parseBlankNodePropertyList()
	case '(':
		return p.parseCollection()
	case '"', '\'':
		return nil, fmt.Errorf("literal not allowed as subject")
	}
	return p.parseResource()
}

func (p *TurtleParser) parsePredicateObjectList(subject Term) error {
	for {
		predicate, err := p.parseVerb()
		if err != nil {
			return fmt.Errorf("error parsing predicate: %w", err)
		}
		if err := p.parseObjectList(subject, predicate); err != nil {
			return err
		}

		p.skipWhitespaceAndComments()
		if p.peek() != ';' {
			return nil
		}
		for p.peek() == ';' {
			p.pos++
			p.skipWhitespaceAndComments()
		}
		if c := p.peek(); c == '.' || c == ']' || c == 0 {
			return nil
		}
	}
}

func (p *TurtleParser) parseVerb() (*NamedNode, error) {
	if p.matchKeyword("a", true) {
		p.skipWhitespaceAndComments()
		return RDFType, nil
	}
	term, err := p.parseResource()
	if err != nil {
		return nil, err
	}
	predicate, ok := term.(*NamedNode)
	if !ok {
		return nil, fmt.Errorf("predicate must be an IRI, got %s", term)
	}
	p.skipWhitespaceAndComments()
	return predicate, nil
}

func (p *TurtleParser) parseObjectList(subject Term, predicate *NamedNode) error {
	for {
		object, err := p.parseObject()
		if err != nil {
			return fmt.Errorf("error parsing object: %w", err)
		}
		p.triples = append(p.triples, NewTriple(subject, predicate, object))

		p.skipWhitespaceAndComments()
		if p.peek() != ',' {
			return nil
		}
		p.pos++
		p.skipWhitespaceAndComments()
	}
}

func (p *TurtleParser) parseObject() (Term, error) {
	switch c := p.peek(); {
	case c == 0:
		return nil, fmt.Errorf("unexpected end of input")
	case c == '[':
		return p.parseBlankNodePropertyList()
	case c == '(':
		return p.parseCollection()
	case c == '"' || c == '\'':
		return p.parseTurtleLiteral()
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	case p.matchKeyword("true", true):
		return NewBooleanLiteral(true), nil
	case p.matchKeyword("false", true):
		return NewBooleanLiteral(false), nil
	}
	return p.parseResource()
}

// parseResource parses an IRI, a prefixed name or a blank node label.
func (p *TurtleParser) parseResource() (Term, error) {
	switch p.peek() {
	case 0:
		return nil, fmt.Errorf("unexpected end of input")
	case '<':
		iri, err := p.parseRelativeIRI()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	case '_':
		if p.pos+1 < p.length && p.input[p.pos+1] == ':' {
			p.pos += 2
			label := p.readName()
			if label == "" {
				return nil, fmt.Errorf("empty blank node label")
			}
			return NewBlankNode(label), nil
		}
	}
	return p.parsePrefixedName()
}

// parseRelativeIRI parses an IRI reference and resolves it against the
// base.
func (p *TurtleParser) parseRelativeIRI() (string, error) {
	iri, err := p.readIRI()
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(iri)
	if err != nil {
		return "", fmt.Errorf("invalid IRI %q: %w", iri, err)
	}
	if ref.IsAbs() {
		return iri, nil
	}
	if p.base == nil {
		return "", fmt.Errorf("relative IRI without base: %s", iri)
	}
	return p.base.ResolveReference(ref).String(), nil
}

func (p *TurtleParser) parsePrefixedName() (Term, error) {
	start := p.pos
	for p.pos < p.length && p.input[p.pos] != ':' {
		r, size := utf8.DecodeRuneInString(p.input[p.pos:])
		if !isNameRune(r) {
			break
		}
		p.pos += size
	}
	if p.pos >= p.length || p.input[p.pos] != ':' {
		p.pos = start
		r, _ := utf8.DecodeRuneInString(p.input[p.pos:])
		return nil, fmt.Errorf("unexpected character at position %d: %q", p.pos, r)
	}
	prefix := p.input[start:p.pos]
	p.pos++

	ns, ok := p.prefixes[prefix]
	if !ok {
		return nil, fmt.Errorf("undefined prefix %q", prefix)
	}
	return NewNamedNode(ns + p.readName()), nil
}

// readName reads the local part of a prefixed name or a blank node label.
// A trailing '.' ends the statement and is left in place.
func (p *TurtleParser) readName() string {
	var name strings.Builder
	for p.pos < p.length {
		if p.input[p.pos] == '\\' && p.pos+1 < p.length {
			name.WriteByte(p.input[p.pos+1])
			p.pos += 2
			continue
		}
		r, size := utf8.DecodeRuneInString(p.input[p.pos:])
		if !isNameRune(r) && r != ':' && r != '%' {
			break
		}
		name.WriteRune(r)
		p.pos += size
	}

	out := name.String()
	for strings.HasSuffix(out, ".") {
		out = out[:len(out)-1]
		p.pos--
	}
	return out
}

func isNameRune(r rune) bool {
	return r == '_' || r == '-' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func (p *TurtleParser) parseBlankNodePropertyList() (Term, error) {
	p.pos++ // skip '['
	node := newGeneratedBlankNode()

	p.skipWhitespaceAndComments()
	if p.peek() != ']' {
		if err := p.parsePredicateObjectList(node); err != nil {
			return nil, err
		}
		p.skipWhitespaceAndComments()
	}
	if p.peek() != ']' {
		return nil, fmt.Errorf("expected ']' at end of blank node property list")
	}
	p.pos++
	return node, nil
}

// parseCollection parses ( item* ) into an rdf:List and returns its head.
func (p *TurtleParser) parseCollection() (Term, error) {
	p.pos++ // skip '('

	var items []Term
	for {
		p.skipWhitespaceAndComments()
		if p.pos >= p.length {
			return nil, fmt.Errorf("unexpected end of input in collection")
		}
		if p.input[p.pos] == ')' {
			p.pos++
			break
		}
		item, err := p.parseObject()
		if err != nil {
			return nil, fmt.Errorf("failed to parse collection item: %w", err)
		}
		items = append(items, item)
	}

	var head Term = RDFNil
	for i := len(items) - 1; i >= 0; i-- {
		node := newGeneratedBlankNode()
		p.triples = append(p.triples,
			NewTriple(node, RDFFirst, items[i]),
			NewTriple(node, RDFRest, head))
		head = node
	}
	return head, nil
}

// parseTurtleLiteral parses a short or long string in single or double
// quotes followed by an optional language tag or datatype.
func (p *TurtleParser) parseTurtleLiteral() (Term, error) {
	quote := p.input[p.pos : p.pos+1]
	if strings.HasPrefix(p.input[p.pos:], strings.Repeat(quote, 3)) {
		quote = strings.Repeat(quote, 3)
	}
	p.pos += len(quote)

	var value strings.Builder
	for {
		if p.pos >= p.length {
			return nil, fmt.Errorf("unclosed string literal")
		}
		if strings.HasPrefix(p.input[p.pos:], quote) {
			p.pos += len(quote)
			break
		}
		ch := p.input[p.pos]
		if ch == '\\' {
			if err := p.readEscape(&value); err != nil {
				return nil, err
			}
			continue
		}
		if len(quote) == 1 && (ch == '\n' || ch == '\r') {
			return nil, fmt.Errorf("line break in short string literal")
		}
		value.WriteByte(ch)
		p.pos++
	}

	switch {
	case p.peek() == '@':
		p.pos++
		start := p.pos
		for p.pos < p.length {
			ch := p.input[p.pos]
			if !(ch == '-' || ch >= 'a' && ch <= 'z' || ch >= 'A' && ch <= 'Z' || ch >= '0' && ch <= '9') {
				break
			}
			p.pos++
		}
		if p.pos == start {
			return nil, fmt.Errorf("empty language tag")
		}
		return NewLiteralWithLanguage(value.String(), p.input[start:p.pos]), nil

	case strings.HasPrefix(p.input[p.pos:], "^^"):
		p.pos += 2
		datatype, err := p.parseResource()
		if err != nil {
			return nil, fmt.Errorf("error parsing datatype: %w", err)
		}
		dt, ok := datatype.(*NamedNode)
		if !ok {
			return nil, fmt.Errorf("datatype must be an IRI, got %s", datatype)
		}
		return NewLiteralWithDatatype(value.String(), dt), nil
	}
	return NewLiteral(value.String()), nil
}

// parseNumber parses the integer, decimal and double shorthands, keeping
// the lexical form.
func (p *TurtleParser) parseNumber() (Term, error) {
	start := p.pos
	if c := p.peek(); c == '+' || c == '-' {
		p.pos++
	}
	intDigits := p.skipDigits()

	datatype := XSDInteger
	// a '.' not followed by a digit or exponent ends the statement
	if p.peek() == '.' && p.pos+1 < p.length {
		next := p.input[p.pos+1]
		if next >= '0' && next <= '9' || intDigits > 0 && (next == 'e' || next == 'E') {
			p.pos++
			p.skipDigits()
			datatype = XSDDecimal
		}
	}
	if intDigits == 0 && datatype != XSDDecimal {
		p.pos = start
		return nil, fmt.Errorf("expected digits in number at position %d", p.pos)
	}

	if c := p.peek(); c == 'e' || c == 'E' {
		p.pos++
		if c := p.peek(); c == '+' || c == '-' {
			p.pos++
		}
		if p.skipDigits() == 0 {
			return nil, fmt.Errorf("expected digits in exponent")
		}
		datatype = XSDDouble
	}
	return NewLiteralWithDatatype(p.input[start:p.pos], datatype), nil
}

func (p *TurtleParser) skipDigits() int {
	n := 0
	for p.pos < p.length && p.input[p.pos] >= '0' && p.input[p.pos] <= '9' {
		p.pos++
		n++
	}
	return n
}

// peek returns the current byte, or 0 at the end of the input.
func (p *TurtleParser) peek() byte {
	if p.pos >= p.length {
		return 0
	}
	return p.input[p.pos]
}

// newGeneratedBlankNode labels anonymous nodes uniquely so that nodes from
// separately loaded documents never merge.
func newGeneratedBlankNode() *BlankNode {
	return NewBlankNode(uuid.NewString())
}

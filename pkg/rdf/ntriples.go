package rdf

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// NTriplesParser parses the N-Triples line format:
// <subject> <predicate> <object> .
type NTriplesParser struct {
	input  string
	pos    int
	length int
}

// NewNTriplesParser creates a new N-Triples parser
func NewNTriplesParser(input string) *NTriplesParser {
	return &NTriplesParser{
		input:  input,
		length: len(input),
	}
}

// ParseNTriples reads a whole N-Triples document from r.
func ParseNTriples(r io.Reader) ([]*Triple, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read n-triples: %w", err)
	}
	return NewNTriplesParser(string(data)).Parse()
}

// Parse parses the document and returns its triples
func (p *NTriplesParser) Parse() ([]*Triple, error) {
	var triples []*Triple

	for p.pos < p.length {
		p.skipWhitespaceAndComments()
		if p.pos >= p.length {
			break
		}

		triple, err := p.parseTriple()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", p.line(), err)
		}
		triples = append(triples, triple)
	}

	return triples, nil
}

func (p *NTriplesParser) line() int {
	return strings.Count(p.input[:min(p.pos, p.length)], "\n") + 1
}

// skipWhitespaceAndComments skips whitespace and comments
func (p *NTriplesParser) skipWhitespaceAndComments() {
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			p.pos++
			continue
		}
		if ch == '#' {
			for p.pos < p.length && p.input[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		break
	}
}

// parseTriple parses: subject predicate object .
func (p *NTriplesParser) parseTriple() (*Triple, error) {
	subject, err := p.parseTerm()
	if err != nil {
		return nil, fmt.Errorf("error parsing subject: %w", err)
	}
	if _, ok := subject.(*Literal); ok {
		return nil, fmt.Errorf("literal not allowed as subject")
	}

	p.skipWhitespaceAndComments()

	predicate, err := p.parseTerm()
	if err != nil {
		return nil, fmt.Errorf("error parsing predicate: %w", err)
	}
	pred, ok := predicate.(*NamedNode)
	if !ok {
		return nil, fmt.Errorf("predicate must be an IRI, got %s", predicate)
	}

	p.skipWhitespaceAndComments()

	object, err := p.parseTerm()
	if err != nil {
		return nil, fmt.Errorf("error parsing object: %w", err)
	}

	p.skipWhitespaceAndComments()

	if p.pos >= p.length || p.input[p.pos] != '.' {
		return nil, fmt.Errorf("expected '.' at end of triple")
	}
	p.pos++

	return NewTriple(subject, pred, object), nil
}

// parseTerm parses an RDF term (IRI, blank node or literal)
func (p *NTriplesParser) parseTerm() (Term, error) {
	if p.pos >= p.length {
		return nil, fmt.Errorf("unexpected end of input")
	}

	switch ch := p.input[p.pos]; ch {
	case '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	case '_':
		return p.parseBlankNode()
	case '"':
		return p.parseLiteral()
	default:
		return nil, fmt.Errorf("unexpected character at position %d: %c", p.pos, ch)
	}
}

// parseIRI parses an absolute IRI enclosed in < >
func (p *NTriplesParser) parseIRI() (string, error) {
	iri, err := p.readIRI()
	if err != nil {
		return "", err
	}
	if !strings.Contains(iri, ":") {
		return "", fmt.Errorf("relative IRI not allowed: %s", iri)
	}
	return iri, nil
}

// readIRI reads the text between < and >, decoding escapes.
func (p *NTriplesParser) readIRI() (string, error) {
	p.pos++ // skip '<'

	var result strings.Builder
	for p.pos < p.length && p.input[p.pos] != '>' {
		ch := p.input[p.pos]

		if ch == '\\' {
			escaped, err := p.processUnicodeEscape()
			if err != nil {
				return "", err
			}
			result.WriteString(escaped)
			continue
		}

		// IRIs cannot contain space, <, ", {, }, |, ^, ` or control characters
		if ch == ' ' || ch == '<' || ch == '"' || ch == '{' || ch == '}' ||
			ch == '|' || ch == '^' || ch == '`' || ch <= 0x1F {
			return "", fmt.Errorf("invalid character in IRI: %q at position %d", ch, p.pos)
		}

		result.WriteByte(ch)
		p.pos++
	}

	if p.pos >= p.length {
		return "", fmt.Errorf("unclosed IRI")
	}
	p.pos++ // skip '>'
	return result.String(), nil
}

// parseBlankNode parses a blank node label
func (p *NTriplesParser) parseBlankNode() (Term, error) {
	if p.pos+1 >= p.length || p.input[p.pos+1] != ':' {
		return nil, fmt.Errorf("expected ':' after '_' in blank node")
	}
	p.pos += 2

	start := p.pos
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '<' {
			break
		}
		// a trailing '.' terminates the statement, not the label
		if ch == '.' && (p.pos+1 >= p.length || isSpace(p.input[p.pos+1])) {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return nil, fmt.Errorf("empty blank node label")
	}

	return NewBlankNode(p.input[start:p.pos]), nil
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// parseLiteral parses a quoted literal with optional language tag or datatype
func (p *NTriplesParser) parseLiteral() (Term, error) {
	p.pos++ // skip opening '"'

	var value strings.Builder
	for p.pos < p.length && p.input[p.pos] != '"' {
		ch := p.input[p.pos]
		if ch != '\\' {
			value.WriteByte(ch)
			p.pos++
			continue
		}
		if err := p.readEscape(&value); err != nil {
			return nil, err
		}
	}

	if p.pos >= p.length {
		return nil, fmt.Errorf("unclosed string literal")
	}
	p.pos++ // skip closing '"'

	if p.pos < p.length && p.input[p.pos] == '@' {
		p.pos++
		start := p.pos
		for p.pos < p.length {
			ch := p.input[p.pos]
			if isSpace(ch) || ch == '.' {
				break
			}
			p.pos++
		}
		if p.pos == start {
			return nil, fmt.Errorf("empty language tag")
		}
		return NewLiteralWithLanguage(value.String(), p.input[start:p.pos]), nil
	}

	if p.pos+1 < p.length && p.input[p.pos] == '^' && p.input[p.pos+1] == '^' {
		p.pos += 2
		if p.pos >= p.length || p.input[p.pos] != '<' {
			return nil, fmt.Errorf("expected datatype IRI after '^^'")
		}
		datatype, err := p.parseIRI()
		if err != nil {
			return nil, fmt.Errorf("error parsing datatype: %w", err)
		}
		return NewLiteralWithDatatype(value.String(), NewNamedNode(datatype)), nil
	}

	return NewLiteral(value.String()), nil
}

// readEscape decodes the string escape sequence at the current position.
func (p *NTriplesParser) readEscape(value *strings.Builder) error {
	if p.pos+1 >= p.length {
		return fmt.Errorf("unexpected end of input in escape sequence")
	}
	switch esc := p.input[p.pos+1]; esc {
	case 'n':
		value.WriteByte('\n')
	case 't':
		value.WriteByte('\t')
	case 'r':
		value.WriteByte('\r')
	case 'b':
		value.WriteByte('\b')
	case 'f':
		value.WriteByte('\f')
	case '"':
		value.WriteByte('"')
	case '\'':
		value.WriteByte('\'')
	case '\\':
		value.WriteByte('\\')
	case 'u', 'U':
		escaped, err := p.processUnicodeEscape()
		if err != nil {
			return err
		}
		value.WriteString(escaped)
		return nil
	default:
		return fmt.Errorf("invalid escape sequence \\%c at position %d", esc, p.pos)
	}
	p.pos += 2
	return nil
}

// processUnicodeEscape processes \uXXXX or \UXXXXXXXX escape sequences
func (p *NTriplesParser) processUnicodeEscape() (string, error) {
	if p.pos+1 >= p.length {
		return "", fmt.Errorf("unexpected end of input in Unicode escape")
	}

	var hexDigits int
	switch p.input[p.pos+1] {
	case 'u':
		hexDigits = 4
	case 'U':
		hexDigits = 8
	default:
		return "", fmt.Errorf("invalid escape sequence at position %d", p.pos)
	}
	p.pos += 2

	if p.pos+hexDigits > p.length {
		return "", fmt.Errorf("incomplete Unicode escape sequence")
	}
	hexStr := p.input[p.pos : p.pos+hexDigits]
	p.pos += hexDigits

	codePoint, err := strconv.ParseUint(hexStr, 16, 32)
	if err != nil {
		return "", fmt.Errorf("invalid hex digits in Unicode escape: %s", hexStr)
	}
	return string(rune(codePoint)), nil
}

// WriteNTriples serializes triples one per line.
func WriteNTriples(w io.Writer, triples []*Triple) error {
	for _, t := range triples {
		if _, err := io.WriteString(w, t.String()+"\n"); err != nil {
			return err
		}
	}
	return nil
}

package encoding

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/aleksaelezovic/trindex/pkg/rdf"
	"github.com/aleksaelezovic/trindex/pkg/store"
	"github.com/zeebo/xxh3"
)

const (
	// Maximum size for inline strings (16 bytes of UTF-8)
	MaxInlineStringSize = 16

	// separates the lexical form from the datatype IRI in id2str entries
	datatypeSeparator = "\x00"
)

// TermEncoder encodes RDF terms into fixed-size keys
type TermEncoder struct{}

func NewTermEncoder() *TermEncoder {
	return &TermEncoder{}
}

// Hash128 computes a 128-bit xxhash3 hash of the input string
func Hash128(s string) [16]byte {
	hash := xxh3.HashString128(s)
	var result [16]byte
	binary.BigEndian.PutUint64(result[0:8], hash.Hi)
	binary.BigEndian.PutUint64(result[8:16], hash.Lo)
	return result
}

// EncodeTerm encodes an RDF term into a fixed-size byte array
// Returns the encoded term and optionally a string to store in id2str table
func (e *TermEncoder) EncodeTerm(term rdf.Term) (store.EncodedTerm, *string, error) {
	switch t := term.(type) {
	case *rdf.NamedNode:
		return hashed(rdf.TermTypeNamedNode, t.IRI)
	case *rdf.BlankNode:
		return hashed(rdf.TermTypeBlankNode, t.ID)
	case *rdf.Literal:
		return e.encodeLiteral(t)
	default:
		var encoded store.EncodedTerm
		return encoded, nil, fmt.Errorf("unknown term type: %T", term)
	}
}

func hashed(termType rdf.TermType, s string) (store.EncodedTerm, *string, error) {
	var encoded store.EncodedTerm
	encoded[0] = byte(termType)
	hash := Hash128(s)
	copy(encoded[1:], hash[:])
	return encoded, &s, nil
}

func (e *TermEncoder) encodeLiteral(lit *rdf.Literal) (store.EncodedTerm, *string, error) {
	if lit.Language != "" {
		// value@language, split on the last '@' when decoding
		return hashed(rdf.TermTypeLangStringLiteral, lit.Value+"@"+lit.Language)
	}

	if lit.Datatype != nil && lit.Datatype.IRI != rdf.XSDString.IRI {
		return hashed(rdf.TermTypeTypedLiteral, lit.Value+datatypeSeparator+lit.Datatype.IRI)
	}

	// Inline values are zero padded, so a NUL would be indistinguishable
	// from padding.
	if len(lit.Value) > MaxInlineStringSize || strings.IndexByte(lit.Value, 0) >= 0 {
		return hashed(rdf.TermTypeStringLiteral, lit.Value)
	}

	// Inline small strings
	var encoded store.EncodedTerm
	encoded[0] = byte(rdf.TermTypeStringLiteral)
	copy(encoded[1:], lit.Value)
	return encoded, nil, nil
}

// EncodeKey concatenates encoded terms into an index key
func (e *TermEncoder) EncodeKey(terms ...store.EncodedTerm) []byte {
	result := make([]byte, 0, len(terms)*store.EncodedTermSize)
	for _, term := range terms {
		result = append(result, term[:]...)
	}
	return result
}

package encoding

import (
	"testing"

	"github.com/aleksaelezovic/trindex/pkg/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewTermEncoder()
	dec := NewTermDecoder()

	terms := []rdf.Term{
		rdf.NewNamedNode("http://example.org/alice"),
		rdf.NewBlankNode("b42"),
		rdf.NewLiteral("short"),
		rdf.NewLiteral("a literal that is longer than sixteen bytes"),
		rdf.NewLiteralWithLanguage("bonjour", "fr"),
		rdf.NewIntegerLiteral(-7),
		rdf.NewLiteralWithDatatype("2024-01-02", rdf.XSDDate),
	}

	for _, term := range terms {
		encoded, str, err := enc.EncodeTerm(term)
		require.NoError(t, err)

		decoded, err := dec.DecodeTerm(encoded, str)
		require.NoError(t, err)
		assert.True(t, term.Equals(decoded), "expected %s, got %s", term, decoded)
	}
}

func TestEncodeTerm_InlineShortStrings(t *testing.T) {
	enc := NewTermEncoder()

	_, str, err := enc.EncodeTerm(rdf.NewLiteral("Alice"))
	require.NoError(t, err)
	assert.Nil(t, str, "short plain literals are stored inline")

	_, str, err = enc.EncodeTerm(rdf.NewLiteral("Alice in Wonderland"))
	require.NoError(t, err)
	assert.NotNil(t, str)
}

func TestEncodeTerm_DistinctTypesDistinctKeys(t *testing.T) {
	enc := NewTermEncoder()

	iri, _, err := enc.EncodeTerm(rdf.NewNamedNode("x:y"))
	require.NoError(t, err)
	bnode, _, err := enc.EncodeTerm(rdf.NewBlankNode("x:y"))
	require.NoError(t, err)

	assert.NotEqual(t, iri, bnode)
	assert.Equal(t, rdf.TermTypeNamedNode, iri.TermType())
}

func TestEncodeTerm_TrailingNULDoesNotCollide(t *testing.T) {
	enc := NewTermEncoder()
	dec := NewTermDecoder()

	plain, str, err := enc.EncodeTerm(rdf.NewLiteral("a"))
	require.NoError(t, err)
	assert.Nil(t, str)

	withNUL, str, err := enc.EncodeTerm(rdf.NewLiteral("a\x00"))
	require.NoError(t, err)
	require.NotNil(t, str, "values containing NUL are hashed")
	assert.NotEqual(t, plain, withNUL)

	decoded, err := dec.DecodeTerm(withNUL, str)
	require.NoError(t, err)
	assert.Equal(t, "a\x00", decoded.(*rdf.Literal).Value)
}

package vprop

import (
	"testing"

	"github.com/aleksaelezovic/trindex/pkg/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ex = "http://example.org/"

var (
	alice     = rdf.NewNamedNode(ex + "alice")
	acme      = rdf.NewNamedNode(ex + "acme")
	name      = rdf.NewNamedNode(ex + "name")
	firstName = rdf.NewNamedNode(ex + "firstName")
	lastName  = rdf.NewNamedNode(ex + "lastName")
	worksFor  = rdf.NewNamedNode(ex + "worksFor")
	locatedIn = rdf.NewNamedNode(ex + "locatedIn")
	ownsPet   = rdf.NewNamedNode(ex + "ownsPet")
)

// tripleSource is an in-memory Source over a fixed triple list.
type tripleSource []*rdf.Triple

func (s tripleSource) Objects(subject rdf.Term, predicate *rdf.NamedNode) ([]rdf.Term, error) {
	var objects []rdf.Term
	for _, t := range s {
		if t.Subject.Equals(subject) && t.Predicate.Equals(predicate) {
			objects = append(objects, t.Object)
		}
	}
	return objects, nil
}

func sampleSource() tripleSource {
	pet := rdf.NewBlankNode("pet")
	return tripleSource{
		rdf.NewTriple(alice, firstName, rdf.NewLiteral("Alice")),
		rdf.NewTriple(alice, lastName, rdf.NewLiteral("Smith")),
		rdf.NewTriple(alice, name, rdf.NewLiteral("Alice Smith")),
		rdf.NewTriple(alice, worksFor, acme),
		rdf.NewTriple(alice, ownsPet, pet),
		rdf.NewTriple(alice, ownsPet, rdf.NewNamedNode(ex+"rex")),
		rdf.NewTriple(pet, name, rdf.NewLiteral("Fifi")),
		rdf.NewTriple(acme, name, rdf.NewLiteral("Acme Inc")),
		rdf.NewTriple(acme, locatedIn, rdf.NewLiteral("Zurich")),
	}
}

func mustHolder(t *testing.T, p *rdf.NamedNode) *PropertyHolder {
	t.Helper()
	h, err := NewPropertyHolder(p)
	require.NoError(t, err)
	return h
}

func mustPath(t *testing.T, path ...*rdf.NamedNode) *PathVirtualProperty {
	t.Helper()
	p, err := NewPathVirtualProperty(path...)
	require.NoError(t, err)
	return p
}

func TestPropertyHolder_Value(t *testing.T) {
	src := sampleSource()

	values, err := mustHolder(t, firstName).Value(src, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice"}, values)

	// IRIs are indexed by their text, blank nodes are skipped
	values, err = mustHolder(t, ownsPet).Value(src, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{ex + "rex"}, values)

	values, err = mustHolder(t, locatedIn).Value(src, alice)
	require.NoError(t, err)
	assert.Empty(t, values)

	assert.Empty(t, mustHolder(t, name).PathToIndexedResource(name))
}

func TestPathVirtualProperty_Value(t *testing.T) {
	src := sampleSource()

	values, err := mustPath(t, worksFor, name).Value(src, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Inc"}, values)

	values, err = mustPath(t, ownsPet, name).Value(src, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"Fifi"}, values)

	// missing intermediate node
	values, err = mustPath(t, worksFor, worksFor, name).Value(src, alice)
	require.NoError(t, err)
	assert.Empty(t, values)

	// a literal mid-path does not continue the walk
	values, err = mustPath(t, name, name).Value(src, alice)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestPathVirtualProperty_PathToIndexedResource(t *testing.T) {
	p := mustPath(t, ownsPet, worksFor, locatedIn)

	assert.Empty(t, p.PathToIndexedResource(ownsPet))
	assert.Equal(t, []*rdf.NamedNode{ownsPet}, p.PathToIndexedResource(worksFor))
	assert.Equal(t, []*rdf.NamedNode{worksFor, ownsPet}, p.PathToIndexedResource(locatedIn))
	assert.Empty(t, p.PathToIndexedResource(name))
}

func TestPathVirtualProperty_BasePropertiesAreUnique(t *testing.T) {
	p := mustPath(t, worksFor, worksFor, name)
	assert.Equal(t, []*rdf.NamedNode{worksFor, name}, p.BaseProperties())
}

func TestJoinVirtualProperty_Value(t *testing.T) {
	src := sampleSource()

	join, err := NewJoinVirtualProperty(mustHolder(t, firstName), mustHolder(t, lastName))
	require.NoError(t, err)
	values, err := join.Value(src, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice Smith"}, values)

	join, err = NewJoinVirtualProperty(mustHolder(t, locatedIn), mustPath(t, worksFor, name))
	require.NoError(t, err)
	values, err = join.Value(src, alice)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme Inc"}, values)

	join, err = NewJoinVirtualProperty(mustHolder(t, locatedIn))
	require.NoError(t, err)
	values, err = join.Value(src, alice)
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestJoinVirtualProperty_PathToIndexedResource(t *testing.T) {
	short := mustPath(t, worksFor, name)
	long := mustPath(t, ownsPet, worksFor, name)
	join, err := NewJoinVirtualProperty(mustHolder(t, name), short, long)
	require.NoError(t, err)

	// longest candidate wins
	assert.Equal(t, []*rdf.NamedNode{worksFor, ownsPet}, join.PathToIndexedResource(name))

	// first found wins on equal length
	other := mustPath(t, locatedIn, name)
	join, err = NewJoinVirtualProperty(short, other)
	require.NoError(t, err)
	assert.Equal(t, []*rdf.NamedNode{worksFor}, join.PathToIndexedResource(name))

	assert.Equal(t, []*rdf.NamedNode{worksFor, name, ownsPet, locatedIn},
		mustJoin(t, short, long, other).BaseProperties())
}

func mustJoin(t *testing.T, children ...VirtualProperty) *JoinVirtualProperty {
	t.Helper()
	j, err := NewJoinVirtualProperty(children...)
	require.NoError(t, err)
	return j
}

func TestKeys(t *testing.T) {
	a := mustPath(t, worksFor, name)
	b := mustPath(t, worksFor, name)
	c := mustPath(t, name, worksFor)

	assert.True(t, Equal(a, b))
	assert.False(t, Equal(a, c))
	assert.False(t, Equal(mustHolder(t, name), mustPath(t, name)))
	assert.True(t, Equal(mustJoin(t, a, mustHolder(t, name)), mustJoin(t, b, mustHolder(t, name))))
	assert.Regexp(t, `^vp[0-9a-f]{32}$`, a.Key())
}

func TestDefinitionErrors(t *testing.T) {
	_, err := NewPropertyHolder(nil)
	assert.ErrorIs(t, err, ErrNilPredicate)

	_, err = NewPathVirtualProperty()
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = NewPathVirtualProperty(name, nil)
	assert.ErrorIs(t, err, ErrNilPredicate)

	_, err = NewJoinVirtualProperty()
	assert.ErrorIs(t, err, ErrEmptyJoin)
}

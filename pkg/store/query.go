package store

import (
	"fmt"

	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// Pattern represents a triple pattern. A nil position matches any term.
type Pattern struct {
	Subject   rdf.Term
	Predicate rdf.Term
	Object    rdf.Term
}

// TripleIterator iterates over triples matching a pattern
type TripleIterator interface {
	Next() bool
	Triple() (*rdf.Triple, error)
	Close() error
}

// Query executes a pattern match and returns matching triples
func (s *TripleStore) Query(pattern *Pattern) (TripleIterator, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return nil, err
	}

	// Select the best index based on bound positions
	table, keyPattern := selectIndex(pattern)

	prefix, err := s.buildScanPrefix(pattern, keyPattern)
	if err != nil {
		_ = txn.Rollback()
		return nil, err
	}

	it, err := txn.Scan(table, prefix)
	if err != nil {
		_ = txn.Rollback()
		return nil, err
	}

	return &tripleIterator{
		store:      s,
		txn:        txn,
		it:         it,
		keyPattern: keyPattern,
	}, nil
}

// Match collects every triple matching the pattern
func (s *TripleStore) Match(pattern *Pattern) ([]*rdf.Triple, error) {
	iter, err := s.Query(pattern)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var triples []*rdf.Triple
	for iter.Next() {
		triple, err := iter.Triple()
		if err != nil {
			return nil, err
		}
		triples = append(triples, triple)
	}
	return triples, nil
}

// selectIndex chooses the best index based on which positions are bound.
// The key pattern maps each key slot to a position: 0=S, 1=P, 2=O.
func selectIndex(pattern *Pattern) (Table, []int) {
	sBound := pattern.Subject != nil
	pBound := pattern.Predicate != nil
	oBound := pattern.Object != nil

	switch {
	case sBound && pBound:
		return TableSPO, []int{0, 1, 2}
	case pBound && oBound:
		return TablePOS, []int{1, 2, 0}
	case oBound && sBound:
		return TableOSP, []int{2, 0, 1}
	case sBound:
		return TableSPO, []int{0, 1, 2}
	case pBound:
		return TablePOS, []int{1, 2, 0}
	case oBound:
		return TableOSP, []int{2, 0, 1}
	default:
		return TableSPO, []int{0, 1, 2}
	}
}

// buildScanPrefix builds a key prefix for scanning based on bound positions
func (s *TripleStore) buildScanPrefix(pattern *Pattern, keyPattern []int) ([]byte, error) {
	positions := []rdf.Term{pattern.Subject, pattern.Predicate, pattern.Object}

	var prefix []byte
	for _, idx := range keyPattern {
		term := positions[idx]
		if term == nil {
			// Stop at first unbound position
			break
		}

		encoded, _, err := s.encoder.EncodeTerm(term)
		if err != nil {
			return nil, err
		}
		prefix = append(prefix, encoded[:]...)
	}

	return prefix, nil
}

// tripleIterator implements TripleIterator
type tripleIterator struct {
	store      *TripleStore
	txn        Transaction
	it         Iterator
	keyPattern []int
	closed     bool
}

func (ti *tripleIterator) Next() bool {
	if ti.closed {
		return false
	}
	return ti.it.Next()
}

func (ti *tripleIterator) Triple() (*rdf.Triple, error) {
	if ti.closed {
		return nil, fmt.Errorf("iterator closed")
	}

	key := ti.it.Key()
	if len(key) < len(ti.keyPattern)*EncodedTermSize {
		return nil, fmt.Errorf("invalid key length: %d", len(key))
	}

	// Map key slots back to S, P, O positions
	var positions [3]EncodedTerm
	for i, idx := range ti.keyPattern {
		offset := i * EncodedTermSize
		copy(positions[idx][:], key[offset:offset+EncodedTermSize])
	}

	var terms [3]rdf.Term
	for i, encoded := range positions {
		term, err := ti.store.decodeTerm(ti.txn, encoded)
		if err != nil {
			return nil, fmt.Errorf("failed to decode term %d: %w", i, err)
		}
		terms[i] = term
	}

	predicate, ok := terms[1].(*rdf.NamedNode)
	if !ok {
		return nil, fmt.Errorf("predicate is not an IRI: %s", terms[1])
	}

	return rdf.NewTriple(terms[0], predicate, terms[2]), nil
}

func (ti *tripleIterator) Close() error {
	if ti.closed {
		return nil
	}
	ti.closed = true
	_ = ti.it.Close()
	return ti.txn.Rollback()
}

// decodeTerm decodes an encoded term, looking up its string when stored
func (s *TripleStore) decodeTerm(txn Transaction, encoded EncodedTerm) (rdf.Term, error) {
	// Inline literals have no id2str entry and decode from the key itself
	var stringValue *string
	str, err := txn.Get(TableID2Str, encoded[1:])
	if err == nil {
		strVal := string(str)
		stringValue = &strVal
	}

	return s.decoder.DecodeTerm(encoded, stringValue)
}

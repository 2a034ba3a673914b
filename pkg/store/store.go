package store

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

// TripleStore manages RDF triples over three permutation indexes
type TripleStore struct {
	storage Storage
	encoder TermEncoder
	decoder TermDecoder
}

// NewTripleStore creates a new triplestore
func NewTripleStore(storage Storage, encoder TermEncoder, decoder TermDecoder) *TripleStore {
	return &TripleStore{
		storage: storage,
		encoder: encoder,
		decoder: decoder,
	}
}

// Close closes the triplestore
func (s *TripleStore) Close() error {
	return s.storage.Close()
}

type encodedTriple struct {
	s, p, o EncodedTerm
}

func (s *TripleStore) encodeTriple(txn Transaction, triple *rdf.Triple, storeStrings bool) (encodedTriple, error) {
	var et encodedTriple
	positions := []struct {
		term rdf.Term
		out  *EncodedTerm
		name string
	}{
		{triple.Subject, &et.s, "subject"},
		{triple.Predicate, &et.p, "predicate"},
		{triple.Object, &et.o, "object"},
	}

	for _, pos := range positions {
		encoded, str, err := s.encoder.EncodeTerm(pos.term)
		if err != nil {
			return et, fmt.Errorf("failed to encode %s: %w", pos.name, err)
		}
		if storeStrings {
			if err := s.storeString(txn, encoded, str); err != nil {
				return et, err
			}
		}
		*pos.out = encoded
	}
	return et, nil
}

// InsertTriples inserts triples in a single transaction and returns the
// triples that were not already present
func (s *TripleStore) InsertTriples(triples []*rdf.Triple) ([]*rdf.Triple, error) {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	var added []*rdf.Triple
	for _, triple := range triples {
		et, err := s.encodeTriple(txn, triple, true)
		if err != nil {
			return nil, err
		}

		spo := s.encoder.EncodeKey(et.s, et.p, et.o)
		exists, err := s.exists(txn, spo)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		emptyValue := []byte{}
		if err := txn.Set(TableSPO, spo, emptyValue); err != nil {
			return nil, err
		}
		if err := txn.Set(TablePOS, s.encoder.EncodeKey(et.p, et.o, et.s), emptyValue); err != nil {
			return nil, err
		}
		if err := txn.Set(TableOSP, s.encoder.EncodeKey(et.o, et.s, et.p), emptyValue); err != nil {
			return nil, err
		}
		added = append(added, triple)
	}

	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

// DeleteTriples removes triples in a single transaction and returns the
// triples that were actually present
func (s *TripleStore) DeleteTriples(triples []*rdf.Triple) ([]*rdf.Triple, error) {
	txn, err := s.storage.Begin(true)
	if err != nil {
		return nil, err
	}
	defer txn.Rollback()

	var removed []*rdf.Triple
	for _, triple := range triples {
		et, err := s.encodeTriple(txn, triple, false)
		if err != nil {
			return nil, err
		}

		spo := s.encoder.EncodeKey(et.s, et.p, et.o)
		exists, err := s.exists(txn, spo)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}

		if err := txn.Delete(TableSPO, spo); err != nil {
			return nil, err
		}
		if err := txn.Delete(TablePOS, s.encoder.EncodeKey(et.p, et.o, et.s)); err != nil {
			return nil, err
		}
		if err := txn.Delete(TableOSP, s.encoder.EncodeKey(et.o, et.s, et.p)); err != nil {
			return nil, err
		}
		removed = append(removed, triple)
	}

	// Note: id2str entries are kept, they may be referenced by other triples

	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *TripleStore) exists(txn Transaction, spo []byte) (bool, error) {
	_, err := txn.Get(TableSPO, spo)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// storeString stores a string in the id2str table if provided
func (s *TripleStore) storeString(txn Transaction, encoded EncodedTerm, str *string) error {
	if str == nil {
		return nil
	}

	// Use the hash portion of the encoded term as the key
	key := encoded[1:]
	value := []byte(*str)

	existing, err := txn.Get(TableID2Str, key)
	if err == nil && bytes.Equal(existing, value) {
		return nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	return txn.Set(TableID2Str, key, value)
}

// ContainsTriple checks if a triple exists in the store
func (s *TripleStore) ContainsTriple(triple *rdf.Triple) (bool, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return false, err
	}
	defer txn.Rollback()

	et, err := s.encodeTriple(txn, triple, false)
	if err != nil {
		return false, err
	}
	return s.exists(txn, s.encoder.EncodeKey(et.s, et.p, et.o))
}

// Count returns the number of triples in the store
func (s *TripleStore) Count() (int64, error) {
	txn, err := s.storage.Begin(false)
	if err != nil {
		return 0, err
	}
	defer txn.Rollback()

	it, err := txn.Scan(TableSPO, nil)
	if err != nil {
		return 0, err
	}
	defer it.Close()

	count := int64(0)
	for it.Next() {
		count++
	}

	return count, nil
}

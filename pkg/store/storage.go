package store

import (
	"errors"
)

var (
	ErrNotFound      = errors.New("key not found")
	ErrTransactionRO = errors.New("transaction is read-only")
)

// Storage is the key-value engine under the triple store.
type Storage interface {
	// Begin starts a transaction with snapshot isolation.
	Begin(writable bool) (Transaction, error)
	Close() error
	Sync() error
}

// Transaction reads and writes keys of the logical tables.
type Transaction interface {
	Get(table Table, key []byte) ([]byte, error)
	Set(table Table, key, value []byte) error
	Delete(table Table, key []byte) error

	// Scan iterates, in key order, over the keys of table starting with
	// prefix. A nil prefix scans the whole table.
	Scan(table Table, prefix []byte) (Iterator, error)

	Commit() error
	Rollback() error
}

// Iterator walks the result of a scan. Keys exclude the table prefix.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Close() error
}

// Table is a logical keyspace inside the storage.
type Table byte

const (
	// TableID2Str maps term hashes back to their serialized terms.
	TableID2Str Table = iota

	// One table per triple permutation.
	TableSPO
	TablePOS
	TableOSP

	TableCount
)

var tableNames = [TableCount]string{
	TableID2Str: "id2str",
	TableSPO:    "spo",
	TablePOS:    "pos",
	TableOSP:    "osp",
}

func (t Table) String() string {
	if t < TableCount {
		return tableNames[t]
	}
	return "unknown"
}

// TablePrefix returns the key prefix namespacing table.
func TablePrefix(table Table) []byte {
	return []byte{byte(table)}
}

// PrefixKey returns key inside table.
func PrefixKey(table Table, key []byte) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, byte(table))
	return append(out, key...)
}

// Package storage implements the graph key-value storage on badger.
package storage

import (
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/aleksaelezovic/trindex/pkg/store"
)

// Options configures a BadgerStorage.
type Options struct {
	// Path of the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// SyncWrites makes every commit durable before it returns.
	SyncWrites bool

	// Logger receives badger's own warnings and errors. Nil silences them.
	Logger *slog.Logger
}

// BadgerStorage implements store.Storage using BadgerDB
type BadgerStorage struct {
	db       *badger.DB
	inMemory bool
}

// Open opens or creates a badger database.
func Open(opts Options) (*BadgerStorage, error) {
	bo := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bo = badger.DefaultOptions("").WithInMemory(true)
	}
	bo = bo.WithSyncWrites(opts.SyncWrites).WithLogger(nil)
	if opts.Logger != nil {
		bo = bo.WithLogger(&badgerLogger{logger: opts.Logger.With("component", "badger")})
	}

	db, err := badger.Open(bo)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &BadgerStorage{db: db, inMemory: opts.InMemory}, nil
}

// NewBadgerStorage opens the on-disk database at path.
func NewBadgerStorage(path string) (*BadgerStorage, error) {
	return Open(Options{Path: path})
}

// NewInMemoryBadgerStorage creates a database that is discarded on Close.
func NewInMemoryBadgerStorage() (*BadgerStorage, error) {
	return Open(Options{InMemory: true})
}

func (s *BadgerStorage) Begin(writable bool) (store.Transaction, error) {
	return &badgerTxn{txn: s.db.NewTransaction(writable), writable: writable}, nil
}

func (s *BadgerStorage) Close() error {
	return s.db.Close()
}

// Sync flushes writes to disk. It is a no-op in memory.
func (s *BadgerStorage) Sync() error {
	if s.inMemory {
		return nil
	}
	return s.db.Sync()
}

type badgerTxn struct {
	txn      *badger.Txn
	writable bool
}

func (t *badgerTxn) Get(table store.Table, key []byte) ([]byte, error) {
	item, err := t.txn.Get(store.PrefixKey(table, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get from %s: %w", table, err)
	}
	return item.ValueCopy(nil)
}

func (t *badgerTxn) Set(table store.Table, key, value []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return t.txn.Set(store.PrefixKey(table, key), value)
}

func (t *badgerTxn) Delete(table store.Table, key []byte) error {
	if !t.writable {
		return store.ErrTransactionRO
	}
	return t.txn.Delete(store.PrefixKey(table, key))
}

func (t *badgerTxn) Scan(table store.Table, prefix []byte) (store.Iterator, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = store.PrefixKey(table, prefix)
	return &badgerIterator{
		it:      t.txn.NewIterator(opts),
		seek:    opts.Prefix,
		tableLn: len(store.TablePrefix(table)),
	}, nil
}

func (t *badgerTxn) Commit() error {
	return t.txn.Commit()
}

func (t *badgerTxn) Rollback() error {
	t.txn.Discard()
	return nil
}

// badgerIterator walks the keys under one prefix. Keys are returned without
// the table prefix.
type badgerIterator struct {
	it      *badger.Iterator
	seek    []byte
	tableLn int
	started bool
}

func (i *badgerIterator) Next() bool {
	if i.started {
		i.it.Next()
	} else {
		i.it.Seek(i.seek)
		i.started = true
	}
	return i.it.ValidForPrefix(i.seek)
}

func (i *badgerIterator) valid() bool {
	return i.started && i.it.ValidForPrefix(i.seek)
}

func (i *badgerIterator) Key() []byte {
	if !i.valid() {
		return nil
	}
	return i.it.Item().KeyCopy(nil)[i.tableLn:]
}

func (i *badgerIterator) Value() ([]byte, error) {
	if !i.valid() {
		return nil, store.ErrNotFound
	}
	return i.it.Item().ValueCopy(nil)
}

func (i *badgerIterator) Close() error {
	i.it.Close()
	return nil
}

// badgerLogger routes badger's printf-style logging to slog. Badger is
// chatty at info level, so info and debug lines are logged at debug.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(trimNewline(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(trimNewline(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(trimNewline(fmt.Sprintf(format, args...)))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(trimNewline(fmt.Sprintf(format, args...)))
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		return s[:n-1]
	}
	return s
}

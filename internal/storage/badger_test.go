package storage

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/aleksaelezovic/trindex/internal/encoding"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
	"github.com/aleksaelezovic/trindex/pkg/store"
)

var (
	alice = rdf.NewNamedNode("http://example.org/alice")
	bob   = rdf.NewNamedNode("http://example.org/bob")
	name  = rdf.NewNamedNode("http://xmlns.com/foaf/0.1/name")
	knows = rdf.NewNamedNode("http://xmlns.com/foaf/0.1/knows")
	age   = rdf.NewNamedNode("http://xmlns.com/foaf/0.1/age")
)

func newTestStore(t *testing.T) *store.TripleStore {
	t.Helper()

	storage, err := NewBadgerStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	return store.NewTripleStore(storage, encoding.NewTermEncoder(), encoding.NewTermDecoder())
}

func TestBatchInsertAndQuery(t *testing.T) {
	tripleStore := newTestStore(t)

	triples := []*rdf.Triple{
		rdf.NewTriple(alice, name, rdf.NewLiteral("Alice")),
		rdf.NewTriple(bob, name, rdf.NewLiteral("Bob")),
		rdf.NewTriple(alice, knows, bob),
		rdf.NewTriple(alice, name, rdf.NewLiteral("Alice")), // duplicate
	}

	added, err := tripleStore.InsertTriples(triples)
	if err != nil {
		t.Fatalf("failed to batch insert: %v", err)
	}
	if len(added) != 3 {
		t.Errorf("expected 3 added triples, got %d", len(added))
	}

	count, err := tripleStore.Count()
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}

	// Re-inserting reports nothing new
	added, err = tripleStore.InsertTriples(triples[:1])
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if len(added) != 0 {
		t.Errorf("expected no new triples, got %d", len(added))
	}
}

func TestQueryByBoundPositions(t *testing.T) {
	tripleStore := newTestStore(t)

	_, err := tripleStore.InsertTriples([]*rdf.Triple{
		rdf.NewTriple(alice, name, rdf.NewLiteral("Alice")),
		rdf.NewTriple(alice, age, rdf.NewIntegerLiteral(30)),
		rdf.NewTriple(alice, knows, bob),
		rdf.NewTriple(bob, name, rdf.NewLiteral("Bob, who has a rather long name")),
	})
	if err != nil {
		t.Fatalf("failed to insert: %v", err)
	}

	tests := []struct {
		name     string
		pattern  *store.Pattern
		expected int
	}{
		{"subject and predicate", &store.Pattern{Subject: alice, Predicate: name}, 1},
		{"subject only", &store.Pattern{Subject: alice}, 3},
		{"predicate only", &store.Pattern{Predicate: name}, 2},
		{"predicate and object", &store.Pattern{Predicate: knows, Object: bob}, 1},
		{"object only", &store.Pattern{Object: bob}, 1},
		{"subject and object", &store.Pattern{Subject: alice, Object: bob}, 1},
		{"all bound", &store.Pattern{Subject: alice, Predicate: age, Object: rdf.NewIntegerLiteral(30)}, 1},
		{"nothing bound", &store.Pattern{}, 4},
		{"no match", &store.Pattern{Subject: bob, Predicate: knows}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triples, err := tripleStore.Match(tt.pattern)
			if err != nil {
				t.Fatalf("failed to query: %v", err)
			}
			if len(triples) != tt.expected {
				t.Errorf("expected %d triples, got %d", tt.expected, len(triples))
			}
		})
	}

	triples, err := tripleStore.Match(&store.Pattern{Subject: bob, Predicate: name})
	if err != nil {
		t.Fatalf("failed to query: %v", err)
	}
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %d", len(triples))
	}
	literal, ok := triples[0].Object.(*rdf.Literal)
	if !ok || literal.Value != "Bob, who has a rather long name" {
		t.Errorf("unexpected object %v", triples[0].Object)
	}
}

func TestBatchDeleteAndQuery(t *testing.T) {
	tripleStore := newTestStore(t)

	triples := []*rdf.Triple{
		rdf.NewTriple(alice, name, rdf.NewLiteral("Alice")),
		rdf.NewTriple(bob, name, rdf.NewLiteral("Bob")),
	}
	if _, err := tripleStore.InsertTriples(triples); err != nil {
		t.Fatalf("failed to batch insert: %v", err)
	}

	removed, err := tripleStore.DeleteTriples([]*rdf.Triple{triples[0], rdf.NewTriple(alice, knows, bob)})
	if err != nil {
		t.Fatalf("failed to batch delete: %v", err)
	}
	if len(removed) != 1 {
		t.Errorf("expected 1 removed triple, got %d", len(removed))
	}

	contains, err := tripleStore.ContainsTriple(triples[0])
	if err != nil {
		t.Fatalf("failed to check triple: %v", err)
	}
	if contains {
		t.Error("Alice should be deleted")
	}

	remaining, err := tripleStore.Match(&store.Pattern{Predicate: name})
	if err != nil {
		t.Fatalf("failed to query after delete: %v", err)
	}
	if len(remaining) != 1 || !remaining[0].Subject.Equals(bob) {
		t.Errorf("expected only Bob to remain, got %v", remaining)
	}
}

func TestInMemoryStorage(t *testing.T) {
	storage, err := NewInMemoryBadgerStorage()
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer storage.Close()

	tripleStore := store.NewTripleStore(storage, encoding.NewTermEncoder(), encoding.NewTermDecoder())
	if _, err := tripleStore.InsertTriples([]*rdf.Triple{rdf.NewTriple(alice, knows, bob)}); err != nil {
		t.Fatalf("failed to insert: %v", err)
	}
	if err := storage.Sync(); err != nil {
		t.Fatalf("sync failed: %v", err)
	}

	count, err := tripleStore.Count()
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 triple, got %d", count)
	}
}

func TestScanPrefix(t *testing.T) {
	storage, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	defer storage.Close()

	txn, err := storage.Begin(true)
	if err != nil {
		t.Fatalf("failed to begin: %v", err)
	}
	for _, k := range []string{"ab", "aa", "b", "abc"} {
		if err := txn.Set(store.TableSPO, []byte(k), []byte("v"+k)); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	if err := txn.Set(store.TablePOS, []byte("a"), nil); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	ro, _ := storage.Begin(false)
	defer ro.Rollback()
	if err := ro.Set(store.TableSPO, []byte("x"), nil); err != store.ErrTransactionRO {
		t.Errorf("expected ErrTransactionRO, got %v", err)
	}
	if _, err := ro.Get(store.TableSPO, []byte("missing")); err != store.ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	scan := func(prefix []byte) []string {
		it, err := ro.Scan(store.TableSPO, prefix)
		if err != nil {
			t.Fatalf("scan failed: %v", err)
		}
		defer it.Close()
		var keys []string
		for it.Next() {
			v, err := it.Value()
			if err != nil {
				t.Fatalf("value failed: %v", err)
			}
			keys = append(keys, string(it.Key())+"="+string(v))
		}
		return keys
	}

	if got := strings.Join(scan([]byte("a")), ","); got != "aa=vaa,ab=vab,abc=vabc" {
		t.Errorf("unexpected prefix scan: %s", got)
	}
	if got := len(scan(nil)); got != 4 {
		t.Errorf("expected 4 keys in table, got %d", got)
	}
}

func TestBadgerLogger(t *testing.T) {
	var buf bytes.Buffer
	l := &badgerLogger{logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))}

	l.Infof("opened %d tables\n", 3)
	l.Warningf("value log %s is big\n", "000001.vlog")

	out := buf.String()
	if strings.Contains(out, "opened") {
		t.Errorf("info lines should be logged at debug level: %s", out)
	}
	if !strings.Contains(out, `msg="value log 000001.vlog is big"`) {
		t.Errorf("unexpected warning line: %s", out)
	}
}

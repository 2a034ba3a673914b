// Package index adapts a bleve full-text index to the document model used by
// the graph indexer. Writes are buffered in a batch until Commit and searches
// go through searchers tagged with the commit generation they were acquired
// at.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"
	"github.com/blevesearch/bleve/v2/search/query"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("index store is closed")

	// ErrSearcherClosed is returned by a searcher that has been released.
	ErrSearcherClosed = errors.New("searcher has been released")

	// ErrOptimizeInProgress is returned when an optimization is already running.
	ErrOptimizeInProgress = errors.New("optimization already in progress")
)

// StoreError wraps a failure of the underlying engine with the operation
// that caused it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("index %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// DefaultSearcherGrace is how long a superseded searcher keeps accepting
// searches.
const DefaultSearcherGrace = 5 * time.Second

const deletePageSize = 1000

// Config configures a Store.
type Config struct {
	// Path of the on-disk index. Empty keeps the index in memory.
	Path string

	// SearcherGrace is the delay before a superseded searcher is released.
	SearcherGrace time.Duration

	Logger *slog.Logger
}

// forceMerger is implemented by index engines that can merge their segments.
type forceMerger interface {
	ForceMerge(ctx context.Context, mo *mergeplan.MergePlanOptions) error
}

// Store is the index store adapter.
type Store struct {
	idx       bleve.Index
	analyzers analyzers
	logger    *slog.Logger
	grace     time.Duration

	writeMu sync.Mutex
	batch   *bleve.Batch
	pending map[string][]string
	closed  bool

	generation atomic.Uint64
	readerMu   sync.Mutex
	current    *Searcher

	optimizing atomic.Bool
	optimizeWG sync.WaitGroup
}

// Open opens the index at cfg.Path, creating it when it does not exist.
func Open(cfg Config) (*Store, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	grace := cfg.SearcherGrace
	if grace <= 0 {
		grace = DefaultSearcherGrace
	}

	idx, err := openOrCreate(cfg.Path)
	if err != nil {
		return nil, &StoreError{Op: "open", Err: err}
	}

	m := idx.Mapping()
	s := &Store{
		idx: idx,
		analyzers: analyzers{
			keyword:  m.AnalyzerNamed(keyword.Name),
			standard: m.AnalyzerNamed(standard.Name),
		},
		logger:  logger.With("component", "index"),
		grace:   grace,
		batch:   idx.NewBatch(),
		pending: make(map[string][]string),
	}
	s.generation.Store(1)
	return s, nil
}

func openOrCreate(path string) (bleve.Index, error) {
	mapping := bleve.NewIndexMapping()
	mapping.DefaultAnalyzer = standard.Name
	if path == "" {
		return bleve.NewMemOnly(mapping)
	}
	idx, err := bleve.Open(path)
	if err == nil {
		return idx, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		return nil, err
	}
	return bleve.New(path, mapping)
}

// AddDocument stages doc for the next commit.
func (s *Store) AddDocument(doc *Document) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := s.batch.IndexAdvanced(doc.build(s.analyzers)); err != nil {
		return &StoreError{Op: "add", Err: err}
	}
	s.pending[doc.URI] = append(s.pending[doc.URI], doc.ID())
	return nil
}

// DeleteByIdentifier stages the removal of every document whose resource
// identifier is uri, including documents staged but not yet committed.
func (s *Store) DeleteByIdentifier(ctx context.Context, uri string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for _, id := range s.pending[uri] {
		s.batch.Delete(id)
	}
	delete(s.pending, uri)

	q := bleve.NewTermQuery(uri)
	q.SetField(URIField)
	ids, err := s.collectIDs(ctx, q)
	if err != nil {
		return &StoreError{Op: "delete", Err: err}
	}
	for _, id := range ids {
		s.batch.Delete(id)
	}
	return nil
}

// DeleteAll stages the removal of every document and drops staged writes.
func (s *Store) DeleteAll(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrClosed
	}

	s.batch.Reset()
	clear(s.pending)

	ids, err := s.collectIDs(ctx, bleve.NewMatchAllQuery())
	if err != nil {
		return &StoreError{Op: "delete all", Err: err}
	}
	for _, id := range ids {
		s.batch.Delete(id)
	}
	return nil
}

// collectIDs returns the ids of committed documents matching q.
// Must be called with writeMu held so no commit moves the pages.
func (s *Store) collectIDs(ctx context.Context, q query.Query) ([]string, error) {
	var ids []string
	for from := 0; ; from += deletePageSize {
		req := bleve.NewSearchRequestOptions(q, deletePageSize, from, false)
		req.SortBy([]string{"_id"})
		res, err := s.idx.SearchInContext(ctx, req)
		if err != nil {
			return nil, err
		}
		for _, hit := range res.Hits {
			ids = append(ids, hit.ID)
		}
		if len(res.Hits) < deletePageSize {
			return ids, nil
		}
	}
}

// Commit applies staged writes. Staged writes are discarded whether or not
// the commit succeeds; on failure the committed state is unchanged and the
// error is returned.
func (s *Store) Commit() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.batch.Size() == 0 {
		return nil
	}

	ops := s.batch.Size()
	err := s.idx.Batch(s.batch)
	s.batch.Reset()
	clear(s.pending)
	if err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	s.generation.Add(1)
	s.logger.Debug("committed batch", "operations", ops)
	return nil
}

// Discard drops staged writes.
func (s *Store) Discard() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.closed {
		return
	}
	s.batch.Reset()
	clear(s.pending)
}

// AcquireSearcher returns the searcher of the current commit generation,
// creating one when a commit happened since the last call. Every searcher
// queries the live index, so it sees all writes committed up to the moment a
// search runs, including commits after its own generation. It is not a
// snapshot. The previous searcher keeps accepting searches for the grace
// period and returns ErrSearcherClosed afterwards.
func (s *Store) AcquireSearcher() (*Searcher, error) {
	s.readerMu.Lock()
	defer s.readerMu.Unlock()

	s.writeMu.Lock()
	closed := s.closed
	s.writeMu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	gen := s.generation.Load()
	if s.current != nil && s.current.generation == gen {
		return s.current, nil
	}
	if old := s.current; old != nil {
		time.AfterFunc(s.grace, old.release)
	}
	s.current = &Searcher{idx: s.idx, generation: gen}
	return s.current, nil
}

// Optimize merges index segments when the engine supports it. Only one
// optimization runs at a time and Close waits for it to finish.
func (s *Store) Optimize(ctx context.Context) error {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return ErrClosed
	}
	if !s.optimizing.CompareAndSwap(false, true) {
		s.writeMu.Unlock()
		return ErrOptimizeInProgress
	}
	s.optimizeWG.Add(1)
	s.writeMu.Unlock()

	defer func() {
		s.optimizing.Store(false)
		s.optimizeWG.Done()
	}()

	internal, err := s.idx.Advanced()
	if err != nil {
		return &StoreError{Op: "optimize", Err: err}
	}
	merger, ok := internal.(forceMerger)
	if !ok {
		s.logger.Debug("index engine does not support merging")
		return nil
	}

	start := time.Now()
	if err := merger.ForceMerge(ctx, &mergeplan.SingleSegmentMergePlanOptions); err != nil {
		return &StoreError{Op: "optimize", Err: err}
	}
	s.logger.Info("optimized index", "duration", time.Since(start))
	return nil
}

// Optimizing reports whether an optimization is running.
func (s *Store) Optimizing() bool {
	return s.optimizing.Load()
}

// DocCount returns the number of committed documents.
func (s *Store) DocCount() (uint64, error) {
	n, err := s.idx.DocCount()
	if err != nil {
		return 0, &StoreError{Op: "count", Err: err}
	}
	return n, nil
}

// StoredDocument is a committed document as read back from the index.
type StoredDocument struct {
	ID     string
	Fields map[string][]string
}

// Lookup returns the committed documents of a resource, ordered by id.
func (s *Store) Lookup(ctx context.Context, uri string) ([]StoredDocument, error) {
	q := bleve.NewTermQuery(uri)
	q.SetField(URIField)
	req := bleve.NewSearchRequestOptions(q, deletePageSize, 0, false)
	req.Fields = []string{"*"}
	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, &StoreError{Op: "lookup", Err: err}
	}

	docs := make([]StoredDocument, 0, len(res.Hits))
	for _, hit := range res.Hits {
		fields := make(map[string][]string, len(hit.Fields))
		for name, v := range hit.Fields {
			fields[name] = FieldValues(v)
		}
		docs = append(docs, StoredDocument{ID: hit.ID, Fields: fields})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// FieldValues flattens a stored field value returned by a search hit.
func FieldValues(v interface{}) []string {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		return []string{v}
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}

// Close releases the index. Staged writes that were never committed are lost.
func (s *Store) Close() error {
	s.writeMu.Lock()
	if s.closed {
		s.writeMu.Unlock()
		return nil
	}
	s.closed = true
	s.writeMu.Unlock()

	s.optimizeWG.Wait()

	s.readerMu.Lock()
	if s.current != nil {
		s.current.release()
		s.current = nil
	}
	s.readerMu.Unlock()

	if err := s.idx.Close(); err != nil {
		return &StoreError{Op: "close", Err: err}
	}
	return nil
}

// Searcher runs queries against the live index. Its generation records the
// commit it was acquired at and does not pin the index contents.
type Searcher struct {
	idx        bleve.Index
	generation uint64
	released   atomic.Bool
}

// Generation is the commit count at acquisition.
func (s *Searcher) Generation() uint64 {
	return s.generation
}

// Search executes req.
func (s *Searcher) Search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	if s.released.Load() {
		return nil, ErrSearcherClosed
	}
	res, err := s.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, &StoreError{Op: "search", Err: err}
	}
	return res, nil
}

func (s *Searcher) release() {
	s.released.Store(true)
}

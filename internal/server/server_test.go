package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksaelezovic/trindex/internal/definition"
	"github.com/aleksaelezovic/trindex/internal/graph"
	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/indexer"
	"github.com/aleksaelezovic/trindex/internal/query"
	"github.com/aleksaelezovic/trindex/internal/vprop"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

const (
	ex       = "http://example.org/"
	nameIRI  = ex + "name"
	cityIRI  = ex + "city"
	personNT = "<http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://example.org/Person> .\n"
)

const people = `<http://example.org/alice> ` + personNT + `
<http://example.org/alice> <http://example.org/name> "Alice" .
<http://example.org/alice> <http://example.org/city> "Berlin" .
<http://example.org/bob> ` + personNT + `
<http://example.org/bob> <http://example.org/name> "Bob" .
<http://example.org/bob> <http://example.org/city> "Berlin" .
<http://example.org/carol> ` + personNT + `
<http://example.org/carol> <http://example.org/name> "Carol" .
<http://example.org/carol> <http://example.org/city> "Paris" .
`

type testServer struct {
	ix      *indexer.Indexer
	handler http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	g, err := graph.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	store, err := index.Open(index.Config{SearcherGrace: time.Millisecond})
	require.NoError(t, err)

	var props []vprop.VirtualProperty
	for _, iri := range []string{nameIRI, cityIRI} {
		vp, err := vprop.NewPropertyHolder(rdf.NewNamedNode(iri))
		require.NoError(t, err)
		props = append(props, vp)
	}
	source := definition.NewMemorySource(definition.Definition{
		Type:       rdf.NewNamedNode(ex + "Person"),
		Properties: props,
	})

	ix, err := indexer.New(context.Background(), g, store, source, indexer.Config{
		Window:   time.Hour,
		Capacity: -1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Close() })

	return &testServer{ix: ix, handler: New(ix, g, Config{}).Handler()}
}

func (ts *testServer) do(t *testing.T, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) load(t *testing.T) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/data?flush=true", people, "Content-Type", "application/n-triples")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (ts *testServer) search(t *testing.T, params url.Values) SearchResponse {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/search?"+params.Encode(), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

func TestSearch(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t)

	tests := []struct {
		name   string
		params url.Values
		want   []string
	}{
		{
			name:   "wildcard",
			params: url.Values{"property": {nameIRI}, "pattern": {"Al*"}},
			want:   []string{ex + "alice"},
		},
		{
			name:   "exact sorted descending",
			params: url.Values{"property": {cityIRI}, "exact": {"Berlin"}, "sort": {"-" + nameIRI}},
			want:   []string{ex + "bob", ex + "alice"},
		},
		{
			name:   "range",
			params: url.Values{"property": {nameIRI}, "lower": {"Bob"}, "sort": {nameIRI + "@string"}},
			want:   []string{ex + "bob", ex + "carol"},
		},
		{
			name:   "window",
			params: url.Values{"sort": {nameIRI}, "from": {"1"}, "to": {"2"}},
			want:   []string{ex + "bob"},
		},
		{
			name:   "query string",
			params: url.Values{"property": {nameIRI, cityIRI}, "q": {"paris"}},
			want:   []string{ex + "carol"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ts.search(t, tt.params).Resources)
		})
	}
}

func TestSearchFacets(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t)

	res := ts.search(t, url.Values{"facet": {cityIRI}, "to": {"1"}})
	assert.Len(t, res.Resources, 1)
	assert.Equal(t, []query.Facet{{Value: "Berlin", Count: 2}, {Value: "Paris", Count: 1}}, res.Facets[cityIRI])

	res = ts.search(t, url.Values{"facet": {nameIRI}, "facet_order": {"value"}})
	assert.Equal(t, []query.Facet{{Value: "Alice", Count: 1}, {Value: "Bob", Count: 1}, {Value: "Carol", Count: 1}}, res.Facets[nameIRI])
}

func TestSearchPost(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t)

	rec := ts.do(t, http.MethodPost, "/search", `{"property":["`+nameIRI+`"],"q":"carol"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"resources":["http://example.org/carol"]}`, rec.Body.String())
}

func TestSearchCSV(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t)

	rec := ts.do(t, http.MethodGet, "/search?sort="+url.QueryEscape(nameIRI), "", "Accept", "text/csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "resource\nhttp://example.org/alice\nhttp://example.org/bob\nhttp://example.org/carol\n", rec.Body.String())
}

func TestSearchErrors(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"pattern without property", http.MethodGet, "/search?pattern=x", "", http.StatusBadRequest},
		{"q without property", http.MethodGet, "/search?q=x", "", http.StatusBadRequest},
		{"parse error", http.MethodGet, "/search?property=" + url.QueryEscape(nameIRI) + "&q=" + url.QueryEscape(`"unterminated`), "", http.StatusBadRequest},
		{"bad regexp", http.MethodGet, "/search?property=" + url.QueryEscape(nameIRI) + "&q=" + url.QueryEscape("/[/"), "", http.StatusBadRequest},
		{"facet order", http.MethodGet, "/search?facet=x&facet_order=size", "", http.StatusBadRequest},
		{"bad number", http.MethodGet, "/search?from=first", "", http.StatusBadRequest},
		{"unknown body field", http.MethodPost, "/search", `{"limit":3}`, http.StatusBadRequest},
		{"method", http.MethodPut, "/search", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestDataDelete(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t)

	rec := ts.do(t, http.MethodDelete, "/data?flush=true", "<http://example.org/alice> "+personNT)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := ts.search(t, url.Values{"property": {nameIRI}, "pattern": {"Al*"}})
	assert.Empty(t, res.Resources)
}

func TestDataErrors(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/data", "not a triple", "Content-Type", "application/n-triples")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/data", people, "Content-Type", "application/json")
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	rec = ts.do(t, http.MethodPost, "/data", "ex:a ex:b ex:c .", "Content-Type", "text/turtle")
	assert.Equal(t, http.StatusBadRequest, rec.Code, "undefined prefix")

	rec = ts.do(t, http.MethodGet, "/data", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDataTurtle(t *testing.T) {
	ts := newTestServer(t)

	body := `@prefix ex: <http://example.org/> .
ex:dora a ex:Person ;
    ex:name "Dora" ;
    ex:city "Paris Town" .
`
	rec := ts.do(t, http.MethodPost, "/data?flush=true", body, "Content-Type", "text/turtle; charset=utf-8")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := ts.search(t, url.Values{"property": {cityIRI}, "exact": {"Paris Town"}})
	assert.Equal(t, []string{ex + "dora"}, res.Resources)
}

func TestDataWithoutFlushIsPending(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/data", people)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, ts.ix.Pending())
	assert.Empty(t, ts.search(t, url.Values{}).Resources)
}

func TestDefinitions(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t)

	list := func() []DefinitionView {
		rec := ts.do(t, http.MethodGet, "/definitions", "", "Accept", "application/json")
		require.Equal(t, http.StatusOK, rec.Code)
		var views []DefinitionView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
		return views
	}

	views := list()
	require.Len(t, views, 1)
	assert.Equal(t, ex+"Person", views[0].Type)
	assert.Len(t, views[0].Properties, 2)

	rec := ts.do(t, http.MethodGet, "/definitions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "type: "+ex+"Person")

	yamlDoc := `prefixes:
  ex: http://example.org/
definitions:
  - type: ex:City
    properties:
      - ex:label
`
	rec = ts.do(t, http.MethodPut, "/definitions", yamlDoc)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, list(), 2)

	rec = ts.do(t, http.MethodDelete, "/definitions?type="+url.QueryEscape(ex+"City"), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, list(), 1)

	rec = ts.do(t, http.MethodDelete, "/definitions", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPut, "/definitions", "definitions: [{type: City}]")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReindexAndOptimize(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t)

	rec := ts.do(t, http.MethodPost, "/reindex", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, ts.search(t, url.Values{}).Resources, 3)

	rec = ts.do(t, http.MethodPost, "/optimize", "")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/reindex", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.load(t)
	ts.search(t, url.Values{})

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"state":"ready","pending":0}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trindex_searches_total")

	require.NoError(t, ts.ix.Close())

	rec = ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(t, http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStartShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t)
	s := New(ts.ix, nil, Config{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

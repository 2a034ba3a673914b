package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aleksaelezovic/trindex/internal/definition"
	"github.com/aleksaelezovic/trindex/internal/indexer"
	"github.com/aleksaelezovic/trindex/pkg/rdf"
)

const maxBodySize = 32 << 20

// handleSearch runs a search given as query parameters (GET) or a JSON body
// (POST).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var params SearchParams
	switch r.Method {
	case http.MethodGet:
		if err := s.decoder.Decode(&params, r.URL.Query()); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid parameters: %v", err))
			return
		}
	case http.MethodPost:
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&params); err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid body: %v", err))
			return
		}
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use GET or POST")
		return
	}

	res, err := Search(r.Context(), s.indexer, params)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeSearchResult(w, negotiateFormat(r.Header.Get("Accept")), res)
}

// handleData adds (POST) or removes (DELETE) Turtle or N-Triples. With
// flush=true the affected documents are rebuilt before the response is
// written.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodDelete {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use POST or DELETE")
		return
	}
	format, err := rdf.FormatForContentType(r.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, http.StatusUnsupportedMediaType,
			fmt.Sprintf("%v. Use text/turtle or application/n-triples", err))
		return
	}

	startTime := time.Now()
	triples, err := rdf.ParseTriples(http.MaxBytesReader(w, r.Body, maxBodySize), format)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Parse error: %v", err))
		return
	}

	if r.Method == http.MethodPost {
		err = s.graph.Add(triples...)
	} else {
		err = s.graph.Remove(triples...)
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Sprintf("Graph update failed: %v", err))
		return
	}

	if r.URL.Query().Get("flush") == "true" {
		if err := s.indexer.Flush(r.Context()); err != nil {
			s.writeFailure(w, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"statistics": map[string]any{
			"triples":    len(triples),
			"pending":    s.indexer.Pending(),
			"durationMs": time.Since(startTime).Milliseconds(),
		},
	})
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use POST")
		return
	}
	startTime := time.Now()
	if err := s.indexer.ReindexAll(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"durationMs": time.Since(startTime).Milliseconds(),
	})
}

func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use POST")
		return
	}
	if err := s.indexer.Optimize(r.Context()); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleDefinitions lists (GET), adds (PUT, definitions file YAML) or
// removes (DELETE ?type=) index definitions. GET answers YAML unless JSON
// is accepted.
func (s *Server) handleDefinitions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		defs := s.indexer.Definitions()
		if negotiateFormat(r.Header.Get("Accept")) == "json" {
			views := make([]DefinitionView, 0, len(defs))
			for _, def := range defs {
				v := DefinitionView{Type: def.Type.IRI}
				for _, vp := range def.Properties {
					v.Properties = append(v.Properties, propertyView(vp))
				}
				views = append(views, v)
			}
			s.writeJSON(w, http.StatusOK, views)
			return
		}
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := definition.EncodeDefinitions(w, defs); err != nil {
			s.logger.Warn("failed to write response", "error", err)
		}

	case http.MethodPut:
		defs, err := definition.ParseFileDocument(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, def := range defs {
			if err := s.indexer.Define(r.Context(), def); err != nil {
				s.writeFailure(w, err)
				return
			}
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true, "defined": len(defs)})

	case http.MethodDelete:
		typ := r.URL.Query().Get("type")
		if typ == "" {
			s.writeError(w, http.StatusBadRequest, "Missing 'type' parameter")
			return
		}
		if err := s.indexer.Remove(r.Context(), rdf.NewNamedNode(typ)); err != nil {
			s.writeFailure(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"success": true})

	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use GET, PUT or DELETE")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.indexer.State()
	status := http.StatusOK
	if state != indexer.Ready {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, map[string]any{
		"state":   state.String(),
		"pending": s.indexer.Pending(),
	})
}

package server

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aleksaelezovic/trindex/internal/index"
	"github.com/aleksaelezovic/trindex/internal/indexer"
	"github.com/aleksaelezovic/trindex/internal/query"
	"github.com/aleksaelezovic/trindex/internal/vprop"
)

// SearchResponse is the JSON body of a search.
type SearchResponse struct {
	Resources []string                 `json:"resources"`
	Facets    map[string][]query.Facet `json:"facets,omitempty"`
}

// DefinitionView describes one registered definition.
type DefinitionView struct {
	Type       string         `json:"type"`
	Properties []PropertyView `json:"properties"`
}

// PropertyView describes an indexed property and the key to search it by.
type PropertyView struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

func propertyView(vp vprop.VirtualProperty) PropertyView {
	return PropertyView{Key: vp.Key(), Description: vp.String()}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	if statusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", statusCode, "error", message)
	} else {
		s.logger.Debug("request rejected", "status", statusCode, "error", message)
	}
	s.writeJSON(w, statusCode, errorBody{Error: errorDetail{Code: statusCode, Message: message}})
}

// writeFailure maps err to a status code.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, query.ErrQueryParse), errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, index.ErrOptimizeInProgress):
		status = http.StatusConflict
	case errors.Is(err, indexer.ErrClosed), errors.Is(err, index.ErrClosed):
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

// negotiateFormat determines the response format based on Accept header
func negotiateFormat(acceptHeader string) string {
	accept := strings.ToLower(acceptHeader)
	switch {
	case strings.Contains(accept, "application/json"):
		return "json"
	case strings.Contains(accept, "text/csv"):
		return "csv"
	case strings.Contains(accept, "yaml"):
		return "yaml"
	}
	return ""
}

// writeSearchResult writes resources as JSON or, when asked for, as a one
// column CSV. Facets are only part of the JSON form.
func (s *Server) writeSearchResult(w http.ResponseWriter, format string, res SearchResponse) {
	if format != "csv" {
		s.writeJSON(w, http.StatusOK, res)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"resource"})
	for _, r := range res.Resources {
		_ = cw.Write([]string{r})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}

package server

import (
	"errors"
	"net/http"
	"strings"

	"formless/internal/matching"
	"formless/pkg/formless"
)

type matchRequest struct {
	FieldNames    []string          `json:"field_names"`
	MemoryIntents []string          `json:"memory_intents"`
	Context       string            `json:"context"`
	UserOutlines  map[string]string `json:"user_outlines"`
}

type matchResponse struct {
	MatchedFields map[string]string `json:"matched_fields"`
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.FieldNames) == 0 {
		writeError(w, http.StatusBadRequest, "field_names must not be empty")
		return
	}

	matched, err := s.matcher.Match(r.Context(), matching.BatchRequest{
		FieldNames:       req.FieldNames,
		CandidateIntents: req.MemoryIntents,
		Context:          req.Context,
		UserOutlines:     req.UserOutlines,
	})
	if err != nil {
		switch {
		case errors.Is(err, formless.ErrNoCandidates):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, formless.ErrResolveFailed):
			s.logger.Error("match batch resolution failed", "error", err)
			writeError(w, http.StatusBadGateway, "field resolution failed")
		case strings.Contains(err.Error(), "empty field names"):
			// Whitespace-only field names collapse to an empty batch.
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("match batch failed", "error", err)
			writeError(w, http.StatusInternalServerError, "match batch failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, matchResponse{MatchedFields: matched})
}

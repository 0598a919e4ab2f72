package server

import (
	"errors"
	"net/http"

	"formless/pkg/formless"
)

func (s *Server) handleListMemories(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListAll(r.Context())
	if err != nil {
		s.logger.Error("list memories failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list memories failed")
		return
	}

	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCreateMemory(w http.ResponseWriter, r *http.Request) {
	var draft formless.MemoryDraft
	if err := decodeBody(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := draft.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := s.store.Create(r.Context(), draft)
	if err != nil {
		if errors.Is(err, formless.ErrDuplicateIntent) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.logger.Error("create memory failed", "intent", draft.Intent, "error", err)
		writeError(w, http.StatusInternalServerError, "create memory failed")
		return
	}

	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	item, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, formless.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("get memory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "get memory failed")
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleUpdateMemory(w http.ResponseWriter, r *http.Request) {
	var draft formless.MemoryDraft
	if err := decodeBody(r, &draft); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if err := draft.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := s.store.Update(r.Context(), r.PathValue("id"), draft)
	if err != nil {
		switch {
		case errors.Is(err, formless.ErrItemNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, formless.ErrDuplicateIntent):
			writeError(w, http.StatusConflict, err.Error())
		default:
			s.logger.Error("update memory failed", "error", err)
			writeError(w, http.StatusInternalServerError, "update memory failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleDeleteMemory(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, formless.ErrItemNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("delete memory failed", "error", err)
		writeError(w, http.StatusInternalServerError, "delete memory failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Package server exposes the memory store and the matching pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"formless/internal/matching"
	"formless/pkg/formless"
)

// Matcher runs one form batch end to end.
type Matcher interface {
	Match(ctx context.Context, req matching.BatchRequest) (map[string]string, error)
}

// Config wires one HTTP server.
type Config struct {
	// Store backs the memory management endpoints.
	Store formless.MemoryStore
	// Matcher serves the batch matching endpoint.
	Matcher Matcher
	// Logger receives request and failure records.
	Logger *slog.Logger
	// AllowedOrigins is the CORS allow-list. "*" allows any origin.
	AllowedOrigins []string
	// Version is reported by the banner endpoint.
	Version string
}

// Server is the HTTP surface of the application.
type Server struct {
	store          formless.MemoryStore
	matcher        Matcher
	logger         *slog.Logger
	allowedOrigins []string
	version        string
}

// New builds one HTTP server.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("new server: nil store")
	}
	if cfg.Matcher == nil {
		return nil, fmt.Errorf("new server: nil matcher")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("new server: nil logger")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("new server: empty allowed origins")
	}

	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	return &Server{
		store:          cfg.Store,
		matcher:        cfg.Matcher,
		logger:         cfg.Logger,
		allowedOrigins: append([]string(nil), cfg.AllowedOrigins...),
		version:        version,
	}, nil
}

// Handler builds the route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleBanner)
	mux.HandleFunc("GET /api/memories", s.handleListMemories)
	mux.HandleFunc("POST /api/memories", s.handleCreateMemory)
	mux.HandleFunc("GET /api/memories/{id}", s.handleGetMemory)
	mux.HandleFunc("PUT /api/memories/{id}", s.handleUpdateMemory)
	mux.HandleFunc("DELETE /api/memories/{id}", s.handleDeleteMemory)
	mux.HandleFunc("POST /api/matching", s.handleMatch)

	return s.withRequestLog(s.withCORS(mux))
}

type bannerResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
}

func (s *Server) handleBanner(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bannerResponse{
		Message: "formless is running",
		Version: s.version,
	})
}

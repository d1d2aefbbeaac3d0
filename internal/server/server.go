// Package server exposes the retrieval engine over HTTP: query and build
// endpoints plus a WebSocket stream of build progress events.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/kgfoundry/graphrag/internal/config"
	"github.com/kgfoundry/graphrag/internal/engine"
	"github.com/kgfoundry/graphrag/internal/llm"
	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// RAGService is the engine surface the server exposes. *engine.Engine
// satisfies it; tests substitute fakes.
type RAGService interface {
	Search(ctx context.Context, query string, useGraph bool, topK int, template string) (*types.QueryResult, error)
	Compare(ctx context.Context, query string, topK int, template string) (*types.QueryResult, *types.QueryResult, error)
	BuildFromText(ctx context.Context, text string) (*types.BuildReport, error)
	BuildFromFiles(ctx context.Context, paths []string) []types.FileResult
	Stats(ctx context.Context) (*storage.GraphStats, error)
}

// Server is the HTTP front end.
type Server struct {
	cfg     *config.Config
	service RAGService
	hub     *ProgressHub
	limiter *rate.Limiter
}

// New creates a server over the given service. The returned hub must be
// wired into the engine's progress callback by the caller.
func New(cfg *config.Config, service RAGService) *Server {
	return &Server{
		cfg:     cfg,
		service: service,
		hub:     NewProgressHub(),
		// 10 req/sec sustained, burst of 20.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

// Hub returns the progress hub for broadcast wiring.
func (s *Server) Hub() *ProgressHub {
	return s.hub
}

// Handler builds the route table with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/search", s.handleSearch)
	mux.HandleFunc("/api/compare", s.handleCompare)
	mux.HandleFunc("/api/build", s.handleBuild)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.Handle("/ws", s.hub)
	return s.rateLimit(securityHeaders(mux))
}

// Start listens on the configured address and serves until ctx is
// cancelled. It returns the actual listen address, useful with port 0 in
// tests.
func (s *Server) Start(ctx context.Context) (string, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: listening on %s: %w", addr, err)
	}

	go s.hub.Run()

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
		s.hub.Stop()
	}()

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: serve error: %v", err)
		}
	}()

	log.Printf("server: listening on %s", listener.Addr())
	return listener.Addr().String(), nil
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type searchRequest struct {
	Query    string `json:"query"`
	UseGraph *bool  `json:"use_graph,omitempty"`
	TopK     int    `json:"top_k,omitempty"`
	Template string `json:"template,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	useGraph := true
	if req.UseGraph != nil {
		useGraph = *req.UseGraph
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.Retrieval.TopK
	}

	result, err := s.service.Search(r.Context(), req.Query, useGraph, req.TopK, req.Template)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.Retrieval.TopK
	}

	baseline, enhanced, err := s.service.Compare(r.Context(), req.Query, req.TopK, req.Template)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*types.QueryResult{
		"vector_only":    baseline,
		"graph_enhanced": enhanced,
	})
}

type buildRequest struct {
	Text  string   `json:"text,omitempty"`
	Paths []string `json:"paths,omitempty"`
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "POST required")
		return
	}

	var req buildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch {
	case req.Text != "":
		report, err := s.service.BuildFromText(r.Context(), req.Text)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	case len(req.Paths) > 0:
		results := s.service.BuildFromFiles(r.Context(), req.Paths)
		out := make([]map[string]interface{}, len(results))
		for i, result := range results {
			entry := map[string]interface{}{
				"file":   result.File,
				"report": result.Report,
			}
			if result.Err != nil {
				entry["error"] = result.Err.Error()
			}
			out[i] = entry
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeError(w, http.StatusBadRequest, "text or paths is required")
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "GET required")
		return
	}

	stats, err := s.service.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// writeServiceError maps engine errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidArgument), errors.Is(err, engine.ErrTemplate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrRetrievalTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.Is(err, llm.ErrUnavailable), errors.Is(err, storage.ErrUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("server: encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

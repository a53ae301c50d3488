package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MikeSquared-Agency/scribe/internal/correlate"
	"github.com/MikeSquared-Agency/scribe/internal/store"
	"github.com/MikeSquared-Agency/scribe/internal/summary"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	store      store.DataStore
	orch       *summary.Orchestrator
	correlator *correlate.Correlator
	router     chi.Router
	port       int
}

func NewServer(s store.DataStore, o *summary.Orchestrator, c *correlate.Correlator, port int) *Server {
	srv := &Server{
		store:      s,
		orch:       o,
		correlator: c,
		port:       port,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", srv.handleHealth)
		r.Get("/sessions/{sessionID}", srv.handleGetSession)
		r.Get("/sessions/{sessionID}/summary", srv.handleGetSummary)
		r.Post("/sessions/{sessionID}/summary", srv.handleEnsureSummary)
		r.Post("/sessions/{sessionID}/resummarize", srv.handleResummarize)
		r.Post("/sessions/{sessionID}/correlate", srv.handleCorrelate)
		r.Get("/sessions/{sessionID}/chunks", srv.handleGetChunks)
	})

	srv.router = r
	return srv
}

func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	slog.Info("starting HTTP API", "addr", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "scribe",
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		slog.Error("get session failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, sess)
}

// handleGetSummary is a pure read: it reports whatever summary exists,
// partial or complete, and never triggers provider calls.
func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sum, err := s.orch.GetSummary(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		slog.Error("get summary failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleEnsureSummary(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	text, err := s.orch.EnsureSummary(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		var perr *summary.PipelineError
		if errors.As(err, &perr) {
			// Checkpoints persisted so far survive; the caller can retry.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":        perr.Error(),
				"chunks_done":  perr.ChunksDone,
				"chunks_total": perr.ChunksTotal,
			})
			return
		}
		slog.Error("ensure summary failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"summary":    text,
		"complete":   true,
	})
}

type resummarizeRequest struct {
	Reset     bool `json:"reset"`
	ChunkSize int  `json:"chunk_size"`
}

func (s *Server) handleResummarize(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req resummarizeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	opts := summary.ResummarizeOptions{Reset: req.Reset, ChunkSize: req.ChunkSize}
	if err := s.orch.Resummarize(r.Context(), sessionID, opts); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		var perr *summary.PipelineError
		if errors.As(err, &perr) {
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error":        perr.Error(),
				"chunks_done":  perr.ChunksDone,
				"chunks_total": perr.ChunksTotal,
			})
			return
		}
		if req.ChunkSize > 0 && !req.Reset {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		slog.Error("resummarize failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID, "status": "ok"})
}

func (s *Server) handleCorrelate(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	commitID, err := s.correlator.CorrelateSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
			return
		}
		slog.Error("correlate failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"commit_id":  commitID,
		"linked":     commitID != "",
	})
}

func (s *Server) handleGetChunks(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	chunks, err := s.store.GetChunks(r.Context(), sessionID)
	if err != nil {
		slog.Error("get chunks failed", "session_id", sessionID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, chunks)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/hermes"
	"github.com/xdevplatform/Gnip-Filter-Optimization/internal/store"
)

const recentLimit = 50

// RunReader is the read side of the run store.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*store.RunRow, error)
	RunPrecision(ctx context.Context, id uuid.UUID) (map[string]float64, error)
}

type Server struct {
	router *chi.Mux
	http   *http.Server
	runs   RunReader

	mu     sync.Mutex
	recent []hermes.RunCompleted
}

// NewServer exposes stored runs. runs may be nil, in which case only health
// and the recent-run feed are served.
func NewServer(port int, apiToken string, runs RunReader) *Server {
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		runs: runs,
	}

	router.Get("/health", s.health)
	router.Route("/api/v1/runs", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(apiToken))
		r.Get("/recent", s.recentRuns)
		r.Get("/{id}", s.getRun)
	})

	return s
}

// Start serves until Shutdown is called, which makes it return nil.
func (s *Server) Start() error {
	slog.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// HandleRunCompleted records a completion event for the recent-run feed. It
// matches the hermes subscription handler signature.
func (s *Server) HandleRunCompleted(_ string, data []byte) {
	var ev hermes.RunCompleted
	if err := json.Unmarshal(data, &ev); err != nil {
		slog.Warn("invalid run completed event", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent = append(s.recent, ev)
	if len(s.recent) > recentLimit {
		s.recent = s.recent[len(s.recent)-recentLimit:]
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recentRuns(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]hermes.RunCompleted, len(s.recent))
	// Newest first.
	for i, ev := range s.recent {
		out[len(s.recent)-1-i] = ev
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"runs": out, "count": len(out)})
}

type runResponse struct {
	*store.RunRow
	Precision map[string]float64 `json:"precision"`
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run store not configured")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run id")
		return
	}

	run, err := s.runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		slog.Error("get run failed", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}

	prec, err := s.runs.RunPrecision(r.Context(), id)
	if err != nil {
		slog.Error("run precision failed", "run_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "run precision failed")
		return
	}

	writeJSON(w, http.StatusOK, runResponse{RunRow: run, Precision: prec})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// File path: internal/api/server.go
package api

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/repolens/repolens/internal/analysis"
	"github.com/repolens/repolens/internal/common"
	"github.com/repolens/repolens/internal/repo"
)

type Server struct {
	router       chi.Router
	orchestrator *analysis.Orchestrator

	jobCounter atomic.Uint64
}

func NewServer(orch *analysis.Orchestrator) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	s := &Server{
		router:       chi.NewRouter(),
		orchestrator: orch,
	}
	s.routes()
	common.Logger().Info("api: server ready")
	return s, nil
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(requestLogger)
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Post("/v1/analyses", s.handleStartAnalysis)
	s.router.Get("/v1/analyses", s.handleListAnalyses)
	s.router.Get("/v1/analyses/{id}", s.handleGetAnalysis)
	s.router.Delete("/v1/analyses/{id}", s.handleDeleteAnalysis)
	s.router.Get("/v1/search", s.handleSearch)
	s.router.Get("/v1/summary", s.handleSummary)
	s.router.Get("/v1/logs", s.handleLogs)
}

func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// newAnalysisID derives a readable, collision-resistant identifier from the
// repository and submission time.
func (s *Server) newAnalysisID(repoURL string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(repoURL))
	return fmt.Sprintf("an-%x-%d", h.Sum64(), s.jobCounter.Add(1))
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		common.Logger().Debug("api: request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func normalizeRepoParam(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("repo"))
	if raw == "" {
		return "", fmt.Errorf("repo query parameter required")
	}
	owner, name, err := repo.ParseURL(raw)
	if err != nil {
		return "", err
	}
	return repo.ID(owner, name), nil
}

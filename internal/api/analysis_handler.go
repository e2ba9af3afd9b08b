// File path: internal/api/analysis_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/repolens/repolens/internal/analysis"
	"github.com/repolens/repolens/internal/common"
)

type startAnalysisRequest struct {
	RepoURL   string `json:"repo_url"`
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id"`
}

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	var req startAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.RepoURL) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("repo_url required"))
		return
	}
	analysisID := s.newAnalysisID(req.RepoURL)
	status, err := s.orchestrator.StartAnalysis(req.RepoURL, req.UserID, analysisID, req.ProjectID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	common.Logger().Info("api: analysis started", "analysis_id", status.ID, "repo", status.RepoID)
	writeJSON(w, http.StatusAccepted, status)
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": s.orchestrator.GetAllAnalyses(),
	})
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	status, err := s.orchestrator.GetAnalysisStatus(id)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orchestrator.DeleteAnalysis(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	query := r.URL.Query().Get("q")
	if query == "" {
		logger.Warn("api: search missing query parameter")
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing q parameter"))
		return
	}
	repoID, err := normalizeRepoParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	logger.Info("api: search request", "query", query, "limit", limit, "repo", repoID)
	response, err := s.orchestrator.SearchRepository(r.Context(), repoID, query, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	repoID, err := normalizeRepoParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	summary, err := s.orchestrator.GetRepositorySummary(r.Context(), repoID)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Errorf("no completed analysis for %s", repoID))
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs": common.LogEntries(),
	})
}

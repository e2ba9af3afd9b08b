// File path: internal/analysis/orchestrator.go
package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/repolens/repolens/internal/chunker"
	"github.com/repolens/repolens/internal/common"
	"github.com/repolens/repolens/internal/devops"
	"github.com/repolens/repolens/internal/repo"
	"github.com/repolens/repolens/internal/vector"
)

// Fetcher retrieves repository files and metadata.
type Fetcher interface {
	Fetch(ctx context.Context, owner, name, token string) ([]repo.File, *repo.Metadata, error)
}

// Analyzer scores the repository's operational readiness.
type Analyzer interface {
	Analyze(ctx context.Context, repoID string, meta *repo.Metadata, files []repo.File) (*devops.Result, error)
}

// TokenSource resolves a user's stored access token, still encrypted.
type TokenSource interface {
	EncryptedToken(ctx context.Context, userID string) (string, error)
}

// TokenDecrypter recovers the plaintext token from its stored form.
type TokenDecrypter interface {
	Decrypt(encrypted string) (string, error)
}

// ErrNotFound is returned by lookups that address no known analysis or
// repository.
var ErrNotFound = errors.New("analysis not found")

// Orchestrator drives analysis jobs through the pipeline: fetch, chunk,
// embed, analyze. Each job runs in its own goroutine and reports through
// the status registry.
type Orchestrator struct {
	fetcher   Fetcher
	chunker   *chunker.Chunker
	index     *vector.Index
	analyzer  Analyzer
	tokens    TokenSource
	decrypter TokenDecrypter
	registry  *registry
	timeout   time.Duration
}

// Option configures optional Orchestrator collaborators.
type Option func(*Orchestrator)

// WithTokenSource wires per-user token lookup for private repositories.
func WithTokenSource(tokens TokenSource, decrypter TokenDecrypter) Option {
	return func(o *Orchestrator) {
		o.tokens = tokens
		o.decrypter = decrypter
	}
}

// WithJobTimeout bounds how long a single analysis may run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

func NewOrchestrator(fetcher Fetcher, ck *chunker.Chunker, index *vector.Index, analyzer Analyzer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		fetcher:  fetcher,
		chunker:  ck,
		index:    index,
		analyzer: analyzer,
		registry: newRegistry(),
		timeout:  30 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartAnalysis validates the repository URL, records a pending job, and
// launches the pipeline in the background. URL validation is the only
// synchronous failure; everything after is reported through the status
// record.
func (o *Orchestrator) StartAnalysis(repoURL, userID, analysisID, projectID string) (*Status, error) {
	owner, name, err := repo.ParseURL(repoURL)
	if err != nil {
		return nil, fmt.Errorf("invalid repository URL: %w", err)
	}
	repoID := repo.ID(owner, name)
	status := &Status{
		ID:          analysisID,
		RepoID:      repoID,
		RepoURL:     repoURL,
		UserID:      userID,
		ProjectID:   projectID,
		State:       StatePending,
		CurrentStep: "queued",
		StartedAt:   time.Now().UTC(),
	}
	o.registry.create(status)
	common.Logger().Info("analysis: job queued", "analysis_id", analysisID, "repo", repoID)
	go o.runAnalysis(analysisID, owner, name, repoID, userID)
	return status.clone(), nil
}

func (o *Orchestrator) runAnalysis(analysisID, owner, name, repoID, userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()
	logger := common.Logger()
	if err := o.runPipeline(ctx, analysisID, owner, name, repoID, userID); err != nil {
		logger.Error("analysis: job failed", "analysis_id", analysisID, "repo", repoID, "error", err)
		o.registry.setFailed(analysisID, err.Error())
		return
	}
	o.registry.setCompleted(analysisID)
	logger.Info("analysis: job completed", "analysis_id", analysisID, "repo", repoID)
}

func (o *Orchestrator) runPipeline(ctx context.Context, analysisID, owner, name, repoID, userID string) error {
	logger := common.Logger()

	o.registry.setStage(analysisID, StateFetching, "fetching repository", 10)
	token := o.resolveToken(ctx, userID)
	files, meta, err := o.fetcher.Fetch(ctx, owner, name, token)
	if err != nil {
		return fmt.Errorf("fetch repository: %w", err)
	}
	o.registry.update(analysisID, func(status *Status) {
		status.Metadata = meta
		status.Stats.FileCount = len(files)
	})
	o.registry.setStage(analysisID, StateFetching, "repository fetched", 25)

	if err := o.index.InitializeCollection(ctx, repoID); err != nil {
		return fmt.Errorf("initialize collection: %w", err)
	}
	o.registry.setStage(analysisID, StateChunking, "collection initialized", 30)

	o.registry.setStage(analysisID, StateChunking, "chunking files", 35)
	chunks := o.chunker.ChunkFiles(files, repoID)
	stats := chunker.ComputeStats(chunks)
	o.registry.update(analysisID, func(status *Status) {
		status.Stats.ChunkCount = stats.TotalChunks
	})
	o.registry.setStage(analysisID, StateChunking, "chunking complete", 50)
	logger.Info("analysis: chunking complete", "analysis_id", analysisID,
		"chunks", stats.TotalChunks, "avg_size", stats.AverageSize)

	o.registry.setStage(analysisID, StateEmbedding, "generating embeddings", 55)
	err = o.index.AddChunks(ctx, repoID, chunks, func(batch, total int) {
		progress := 55 + int(math.Round(float64(batch)/float64(total)*20))
		o.registry.setStage(analysisID, StateEmbedding, fmt.Sprintf("embedded batch %d/%d", batch, total), progress)
	})
	if err != nil {
		return fmt.Errorf("generate embeddings: %w", err)
	}
	o.registry.update(analysisID, func(status *Status) {
		status.Stats.EmbeddingsGenerated = len(chunks)
	})
	o.registry.setStage(analysisID, StateEmbedding, "embeddings stored", 75)

	o.registry.setStage(analysisID, StateAnalyzing, "running devops analysis", 80)
	result, err := o.analyzer.Analyze(ctx, repoID, meta, files)
	if err != nil {
		return fmt.Errorf("devops analysis: %w", err)
	}
	o.registry.update(analysisID, func(status *Status) {
		status.DevOpsResult = result
		status.Stats.AnalysisScore = result.OverallScore
	})
	o.registry.setStage(analysisID, StateAnalyzing, "analysis complete", 95)

	// Final store stats are best-effort; the running counters stand if the
	// lookup fails.
	if vectorStats := o.index.Stats(ctx, repoID); vectorStats.Count > 0 {
		o.registry.update(analysisID, func(status *Status) {
			status.Stats.EmbeddingsGenerated = vectorStats.Count
		})
	}
	return nil
}

// resolveToken fetches and decrypts the user's access token. All failures
// here are soft: the pipeline proceeds unauthenticated and public
// repositories still work.
func (o *Orchestrator) resolveToken(ctx context.Context, userID string) string {
	if o.tokens == nil || userID == "" {
		return ""
	}
	logger := common.Logger()
	encrypted, err := o.tokens.EncryptedToken(ctx, userID)
	if err != nil {
		logger.Warn("analysis: token lookup failed, proceeding unauthenticated", "user_id", userID, "error", err)
		return ""
	}
	if encrypted == "" {
		return ""
	}
	if o.decrypter == nil {
		return encrypted
	}
	token, err := o.decrypter.Decrypt(encrypted)
	if err != nil {
		logger.Warn("analysis: token decryption failed, proceeding unauthenticated", "user_id", userID, "error", err)
		return ""
	}
	return token
}

// GetAnalysisStatus returns a copy of the job record.
func (o *Orchestrator) GetAnalysisStatus(analysisID string) (*Status, error) {
	status, ok := o.registry.get(analysisID)
	if !ok {
		return nil, ErrNotFound
	}
	return status, nil
}

// GetAllAnalyses lists every known job, newest first.
func (o *Orchestrator) GetAllAnalyses() []*Status {
	statuses := o.registry.all()
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].StartedAt.After(statuses[j].StartedAt)
	})
	return statuses
}

// DeleteAnalysis removes the job record and drops the repository's vector
// collection. Deleting an unknown analysis is a silent no-op.
func (o *Orchestrator) DeleteAnalysis(ctx context.Context, analysisID string) error {
	status, ok := o.registry.get(analysisID)
	if !ok {
		return nil
	}
	if err := o.index.DeleteCollection(ctx, status.RepoID); err != nil {
		common.Logger().Warn("analysis: collection cleanup failed", "analysis_id", analysisID, "error", err)
	}
	o.registry.remove(analysisID)
	common.Logger().Info("analysis: job deleted", "analysis_id", analysisID, "repo", status.RepoID)
	return nil
}

// SearchMatch is one similarity hit, flattened for API consumers.
type SearchMatch struct {
	Content   string  `json:"content"`
	FilePath  string  `json:"file_path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Language  string  `json:"language,omitempty"`
	Score     float64 `json:"score"`
}

// SearchResponse is the result set for a repository search.
type SearchResponse struct {
	RepoID  string        `json:"repo_id"`
	Query   string        `json:"query"`
	Results []SearchMatch `json:"results"`
	Total   int           `json:"total"`
}

// SearchRepository runs a similarity query against an analyzed repository.
func (o *Orchestrator) SearchRepository(ctx context.Context, repoID, query string, limit int) (*SearchResponse, error) {
	results, err := o.index.SearchSimilar(ctx, repoID, query, limit)
	if err != nil {
		return nil, err
	}
	matches := make([]SearchMatch, len(results))
	for i, result := range results {
		meta := result.Chunk.Metadata
		matches[i] = SearchMatch{
			Content:   result.Chunk.Content,
			FilePath:  meta.FilePath,
			StartLine: meta.StartLine,
			EndLine:   meta.EndLine,
			Language:  meta.Language,
			Score:     result.Score,
		}
	}
	return &SearchResponse{RepoID: repoID, Query: query, Results: matches, Total: len(matches)}, nil
}

// Summary describes the most recent completed analysis of a repository.
type Summary struct {
	RepoID       string                 `json:"repo_id"`
	AnalysisID   string                 `json:"analysis_id"`
	Metadata     *repo.Metadata         `json:"metadata,omitempty"`
	DevOpsResult *devops.Result         `json:"devops_result,omitempty"`
	Stats        Stats                  `json:"stats"`
	VectorStats  vector.CollectionStats `json:"vector_stats"`
	CompletedAt  *time.Time             `json:"completed_at,omitempty"`
}

// GetRepositorySummary returns the latest completed analysis for the
// repository, by start time, together with the live collection stats.
// ErrNotFound if none has completed.
func (o *Orchestrator) GetRepositorySummary(ctx context.Context, repoID string) (*Summary, error) {
	var latest *Status
	for _, status := range o.registry.all() {
		if status.RepoID != repoID || status.State != StateCompleted {
			continue
		}
		if latest == nil || status.StartedAt.After(latest.StartedAt) {
			latest = status
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return &Summary{
		RepoID:       latest.RepoID,
		AnalysisID:   latest.ID,
		Metadata:     latest.Metadata,
		DevOpsResult: latest.DevOpsResult,
		Stats:        latest.Stats,
		VectorStats:  o.index.Stats(ctx, repoID),
		CompletedAt:  latest.CompletedAt,
	}, nil
}

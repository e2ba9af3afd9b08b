// File path: internal/analysis/orchestrator_test.go
package analysis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/repolens/repolens/internal/chunker"
	"github.com/repolens/repolens/internal/devops"
	"github.com/repolens/repolens/internal/llm/providers"
	"github.com/repolens/repolens/internal/repo"
	"github.com/repolens/repolens/internal/vector"
)

type fakeFetcher struct {
	files []repo.File
	meta  *repo.Metadata
	err   error

	lastToken string
}

func (f *fakeFetcher) Fetch(ctx context.Context, owner, name, token string) ([]repo.File, *repo.Metadata, error) {
	f.lastToken = token
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.files, f.meta, nil
}

type fakeAnalyzer struct {
	result *devops.Result
	err    error
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, repoID string, meta *repo.Metadata, files []repo.File) (*devops.Result, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

type fakeTokenSource struct {
	token string
	err   error
}

func (s *fakeTokenSource) EncryptedToken(ctx context.Context, userID string) (string, error) {
	return s.token, s.err
}

type fakeDecrypter struct {
	err error
}

func (d *fakeDecrypter) Decrypt(encrypted string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	return "plain:" + encrypted, nil
}

func testIndex() *vector.Index {
	cfg := vector.Config{Backend: vector.BackendMemory, BatchSize: 10, BatchDelay: time.Millisecond}
	return vector.NewIndex(vector.NewMemoryStore(), providers.NewLocalProvider(), cfg)
}

func healthyFetcher() *fakeFetcher {
	return &fakeFetcher{
		files: []repo.File{
			{Path: "main.go", Content: "package main\n\nfunc main() {}\n", Language: "go"},
			{Path: "README.md", Content: "# App\n\nA service.\n", Language: "markdown"},
		},
		meta: &repo.Metadata{
			Owner: "octo", Name: "app", FullName: "octo/app", DefaultBranch: "main",
		},
	}
}

func healthyAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{result: &devops.Result{
		OverallScore:    40,
		Recommendations: []string{"Add a CI pipeline"},
		Summary:         "basic project",
	}}
}

func waitForTerminal(t *testing.T, orch *Orchestrator, id string) *Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := orch.GetAnalysisStatus(id)
		if err != nil {
			t.Fatalf("status lookup: %v", err)
		}
		if status.State.terminal() {
			return status
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("analysis %s did not finish", id)
	return nil
}

func TestStartAnalysisRejectsBadURL(t *testing.T) {
	orch := NewOrchestrator(healthyFetcher(), chunker.New(), testIndex(), healthyAnalyzer())
	if _, err := orch.StartAnalysis("not a repository", "", "an-1", ""); err == nil {
		t.Fatalf("expected error for invalid url")
	}
	if _, err := orch.GetAnalysisStatus("an-1"); err == nil {
		t.Fatalf("no status should exist for a rejected submission")
	}
	if len(orch.GetAllAnalyses()) != 0 {
		t.Fatalf("rejected submission must not be recorded")
	}
}

func TestAnalysisRunsToCompletion(t *testing.T) {
	fetcher := healthyFetcher()
	orch := NewOrchestrator(fetcher, chunker.New(), testIndex(), healthyAnalyzer())
	status, err := orch.StartAnalysis("https://github.com/octo/app", "user-1", "an-1", "proj-1")
	if err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	if status.State != StatePending {
		t.Fatalf("expected pending state, got %s", status.State)
	}
	if status.RepoID != "octo/app" {
		t.Fatalf("unexpected repo id: %q", status.RepoID)
	}

	final := waitForTerminal(t, orch, "an-1")
	if final.State != StateCompleted {
		t.Fatalf("expected completed, got %s (error %q)", final.State, final.Error)
	}
	if final.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", final.Progress)
	}
	if final.CompletedAt == nil {
		t.Fatalf("completed analysis missing completion time")
	}
	if final.Stats.FileCount != 2 {
		t.Fatalf("expected 2 files, got %d", final.Stats.FileCount)
	}
	if final.Stats.ChunkCount == 0 || final.Stats.EmbeddingsGenerated != final.Stats.ChunkCount {
		t.Fatalf("inconsistent chunk stats: %+v", final.Stats)
	}
	if final.Stats.AnalysisScore != 40 {
		t.Fatalf("expected analysis score 40, got %f", final.Stats.AnalysisScore)
	}
	if final.DevOpsResult == nil || final.DevOpsResult.Summary != "basic project" {
		t.Fatalf("devops result not recorded: %+v", final.DevOpsResult)
	}
	if final.Metadata == nil || final.Metadata.FullName != "octo/app" {
		t.Fatalf("metadata not recorded: %+v", final.Metadata)
	}

	// Embedded chunks are searchable once the job completes.
	search, err := orch.SearchRepository(context.Background(), "octo/app", "func main", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if search.Total == 0 {
		t.Fatalf("expected search results after completion")
	}
	if search.Results[0].FilePath == "" {
		t.Fatalf("search result missing file path: %+v", search.Results[0])
	}
}

func TestAnalysisFailureResetsProgress(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("repository unreachable")}
	orch := NewOrchestrator(fetcher, chunker.New(), testIndex(), healthyAnalyzer())
	if _, err := orch.StartAnalysis("octo/app", "", "an-1", ""); err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	final := waitForTerminal(t, orch, "an-1")
	if final.State != StateFailed {
		t.Fatalf("expected failed, got %s", final.State)
	}
	if final.Progress != 0 {
		t.Fatalf("failed analysis must reset progress, got %d", final.Progress)
	}
	if final.Error == "" {
		t.Fatalf("failed analysis missing error message")
	}
	if final.CompletedAt == nil {
		t.Fatalf("failed analysis missing completion time")
	}
}

func TestAnalyzerFailureFailsJob(t *testing.T) {
	analyzer := &fakeAnalyzer{err: fmt.Errorf("model unavailable")}
	orch := NewOrchestrator(healthyFetcher(), chunker.New(), testIndex(), analyzer)
	if _, err := orch.StartAnalysis("octo/app", "", "an-1", ""); err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	final := waitForTerminal(t, orch, "an-1")
	if final.State != StateFailed {
		t.Fatalf("expected failed, got %s", final.State)
	}
	if final.Progress != 0 {
		t.Fatalf("expected progress reset, got %d", final.Progress)
	}
}

func TestTokenResolution(t *testing.T) {
	fetcher := healthyFetcher()
	orch := NewOrchestrator(fetcher, chunker.New(), testIndex(), healthyAnalyzer(),
		WithTokenSource(&fakeTokenSource{token: "enc-abc"}, &fakeDecrypter{}))
	if _, err := orch.StartAnalysis("octo/app", "user-1", "an-1", ""); err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	waitForTerminal(t, orch, "an-1")
	if fetcher.lastToken != "plain:enc-abc" {
		t.Fatalf("expected decrypted token, got %q", fetcher.lastToken)
	}
}

func TestTokenDecryptionFailureIsSoft(t *testing.T) {
	fetcher := healthyFetcher()
	orch := NewOrchestrator(fetcher, chunker.New(), testIndex(), healthyAnalyzer(),
		WithTokenSource(&fakeTokenSource{token: "enc-abc"}, &fakeDecrypter{err: fmt.Errorf("bad key")}))
	if _, err := orch.StartAnalysis("octo/app", "user-1", "an-1", ""); err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	final := waitForTerminal(t, orch, "an-1")
	if final.State != StateCompleted {
		t.Fatalf("decryption failure must not fail the job, got %s", final.State)
	}
	if fetcher.lastToken != "" {
		t.Fatalf("expected unauthenticated fetch, got token %q", fetcher.lastToken)
	}
}

func TestDeleteAnalysis(t *testing.T) {
	orch := NewOrchestrator(healthyFetcher(), chunker.New(), testIndex(), healthyAnalyzer())
	if _, err := orch.StartAnalysis("octo/app", "", "an-1", ""); err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	waitForTerminal(t, orch, "an-1")

	if err := orch.DeleteAnalysis(context.Background(), "an-1"); err != nil {
		t.Fatalf("delete analysis: %v", err)
	}
	if _, err := orch.GetAnalysisStatus("an-1"); err == nil {
		t.Fatalf("expected not found after delete")
	}
	if _, err := orch.SearchRepository(context.Background(), "octo/app", "main", 5); err == nil {
		t.Fatalf("expected search failure after collection drop")
	}

	// Deleting twice, or deleting an unknown id, is a silent no-op.
	if err := orch.DeleteAnalysis(context.Background(), "an-1"); err != nil {
		t.Fatalf("repeated delete: %v", err)
	}
	if err := orch.DeleteAnalysis(context.Background(), "never-existed"); err != nil {
		t.Fatalf("unknown delete: %v", err)
	}
}

func TestGetRepositorySummary(t *testing.T) {
	orch := NewOrchestrator(healthyFetcher(), chunker.New(), testIndex(), healthyAnalyzer())
	ctx := context.Background()
	if _, err := orch.GetRepositorySummary(ctx, "octo/app"); err == nil {
		t.Fatalf("expected not found before any analysis")
	}
	if _, err := orch.StartAnalysis("octo/app", "", "an-1", ""); err != nil {
		t.Fatalf("start analysis: %v", err)
	}
	final := waitForTerminal(t, orch, "an-1")

	summary, err := orch.GetRepositorySummary(ctx, "octo/app")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.AnalysisID != "an-1" {
		t.Fatalf("unexpected analysis id: %q", summary.AnalysisID)
	}
	if summary.DevOpsResult == nil || summary.Stats.FileCount != 2 {
		t.Fatalf("summary incomplete: %+v", summary)
	}
	if summary.VectorStats.Count != final.Stats.ChunkCount {
		t.Fatalf("vector stats count %d does not match chunk count %d",
			summary.VectorStats.Count, final.Stats.ChunkCount)
	}
}

func TestGetAllAnalysesNewestFirst(t *testing.T) {
	orch := NewOrchestrator(healthyFetcher(), chunker.New(), testIndex(), healthyAnalyzer())
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("an-%d", i)
		if _, err := orch.StartAnalysis("octo/app", "", id, ""); err != nil {
			t.Fatalf("start analysis %s: %v", id, err)
		}
		waitForTerminal(t, orch, id)
		time.Sleep(2 * time.Millisecond)
	}
	all := orch.GetAllAnalyses()
	if len(all) != 3 {
		t.Fatalf("expected 3 analyses, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].StartedAt.After(all[i-1].StartedAt) {
			t.Fatalf("analyses not sorted newest first")
		}
	}
}

func TestRegistryUpdateAfterTerminalIsNoOp(t *testing.T) {
	reg := newRegistry()
	reg.create(&Status{ID: "an-1", State: StatePending, StartedAt: time.Now()})
	reg.setFailed("an-1", "boom")
	reg.setStage("an-1", StateEmbedding, "late update", 60)

	status, ok := reg.get("an-1")
	if !ok {
		t.Fatalf("status missing")
	}
	if status.State != StateFailed || status.Progress != 0 {
		t.Fatalf("terminal state mutated: %+v", status)
	}

	// Updates addressed to removed records are dropped.
	reg.remove("an-1")
	reg.setStage("an-1", StateFetching, "ghost", 10)
	if _, ok := reg.get("an-1"); ok {
		t.Fatalf("removed record resurrected")
	}
}

// File path: internal/devops/analyzer_test.go
package devops

import (
	"context"
	"testing"

	"github.com/repolens/repolens/internal/llm/providers"
	"github.com/repolens/repolens/internal/repo"
)

func TestHeuristicResultScoresSignals(t *testing.T) {
	files := []repo.File{
		{Path: ".github/workflows/ci.yaml"},
		{Path: "Dockerfile"},
		{Path: "main.go"},
		{Path: "main_test.go"},
		{Path: "README.md"},
	}
	result := heuristicResult("octo/app", files)
	// ci(25) + container(20) + tests(25) + docs(15); no IaC.
	if result.OverallScore != 85 {
		t.Fatalf("expected score 85, got %f", result.OverallScore)
	}
	if len(result.Recommendations) != 1 {
		t.Fatalf("expected 1 recommendation, got %v", result.Recommendations)
	}
	if result.Summary == "" {
		t.Fatalf("expected non-empty summary")
	}
}

func TestHeuristicResultEmptyRepo(t *testing.T) {
	result := heuristicResult("", nil)
	if result.OverallScore != 0 {
		t.Fatalf("expected zero score, got %f", result.OverallScore)
	}
	if len(result.Recommendations) != len(signals) {
		t.Fatalf("expected %d recommendations, got %d", len(signals), len(result.Recommendations))
	}
}

func TestParseResult(t *testing.T) {
	result, err := parseResult(`Here you go:
{"overall_score": 72.5, "recommendations": ["add tests"], "summary": "decent"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.OverallScore != 72.5 || result.Summary != "decent" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Recommendations) != 1 || result.Recommendations[0] != "add tests" {
		t.Fatalf("unexpected recommendations: %v", result.Recommendations)
	}
}

func TestParseResultClampsScore(t *testing.T) {
	result, err := parseResult(`{"overall_score": 250, "summary": "x"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if result.OverallScore != 100 {
		t.Fatalf("expected clamp to 100, got %f", result.OverallScore)
	}
	if _, err := parseResult("no json here"); err == nil {
		t.Fatalf("expected error for non-JSON response")
	}
}

func TestLLMAnalyzerFallsBackOnUnparseableResponse(t *testing.T) {
	// The local provider echoes the prompt, which is not JSON, so the
	// analyzer must fall back to heuristic scoring instead of erroring.
	analyzer := NewLLMAnalyzer(providers.NewLocalProvider())
	files := []repo.File{{Path: "Dockerfile"}, {Path: "main.go"}}
	result, err := analyzer.Analyze(context.Background(), "octo/app", &repo.Metadata{FullName: "octo/app"}, files)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if result.OverallScore != 20 {
		t.Fatalf("expected heuristic container score 20, got %f", result.OverallScore)
	}
}

// File path: internal/devops/analyzer.go
package devops

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/repolens/repolens/internal/common"
	"github.com/repolens/repolens/internal/llm"
	"github.com/repolens/repolens/internal/repo"
)

// Result is the outcome of a repository maturity assessment.
type Result struct {
	OverallScore    float64  `json:"overall_score"`
	Recommendations []string `json:"recommendations"`
	Summary         string   `json:"summary"`
}

// Analyzer scores a repository's operational readiness from its file set.
type Analyzer interface {
	Analyze(ctx context.Context, repoID string, meta *repo.Metadata, files []repo.File) (*Result, error)
}

// LLMAnalyzer asks the chat provider to score the repository, falling back
// to rule-based scoring when the response is not parseable.
type LLMAnalyzer struct {
	provider llm.Provider
}

func NewLLMAnalyzer(provider llm.Provider) *LLMAnalyzer {
	return &LLMAnalyzer{provider: provider}
}

const analysisSystemPrompt = `You are a DevOps maturity reviewer. Given a repository file inventory,
respond with a single JSON object: {"overall_score": <0-100>, "recommendations": [..], "summary": ".."}.
Score CI/CD, containerization, infrastructure-as-code, testing, and documentation.`

func (a *LLMAnalyzer) Analyze(ctx context.Context, repoID string, meta *repo.Metadata, files []repo.File) (*Result, error) {
	logger := common.Logger()
	inventory := buildInventory(repoID, meta, files)
	response, err := a.provider.Chat(ctx, []llm.Message{
		{Role: "system", Content: analysisSystemPrompt},
		{Role: "user", Content: inventory},
	})
	if err != nil {
		logger.Warn("devops: chat analysis failed, using heuristic scoring", "repo", repoID, "error", err)
		return heuristicResult(repoID, files), nil
	}
	result, err := parseResult(response)
	if err != nil {
		logger.Warn("devops: unparseable analysis response, using heuristic scoring", "repo", repoID, "error", err)
		return heuristicResult(repoID, files), nil
	}
	return result, nil
}

func buildInventory(repoID string, meta *repo.Metadata, files []repo.File) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Repository: %s\n", repoID)
	if meta != nil {
		if meta.Description != "" {
			fmt.Fprintf(&sb, "Description: %s\n", meta.Description)
		}
		if meta.Language != "" {
			fmt.Fprintf(&sb, "Primary language: %s\n", meta.Language)
		}
	}
	fmt.Fprintf(&sb, "Files (%d):\n", len(files))
	for _, file := range files {
		fmt.Fprintf(&sb, "- %s (%s, %d bytes)\n", file.Path, file.Language, len(file.Content))
	}
	return sb.String()
}

func parseResult(response string) (*Result, error) {
	trimmed := strings.TrimSpace(response)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	var result Result
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), &result); err != nil {
		return nil, fmt.Errorf("decode analysis result: %w", err)
	}
	if result.OverallScore < 0 {
		result.OverallScore = 0
	}
	if result.OverallScore > 100 {
		result.OverallScore = 100
	}
	return &result, nil
}

type signal struct {
	name   string
	weight float64
	match  func(path string) bool
	advice string
}

var signals = []signal{
	{
		name:   "ci",
		weight: 25,
		match: func(p string) bool {
			return strings.HasPrefix(p, ".github/workflows/") ||
				strings.HasSuffix(p, ".gitlab-ci.yml") ||
				strings.EqualFold(baseName(p), "jenkinsfile")
		},
		advice: "Add a CI pipeline (GitHub Actions, GitLab CI, or Jenkins) that builds and tests on every push.",
	},
	{
		name:   "container",
		weight: 20,
		match: func(p string) bool {
			base := strings.ToLower(baseName(p))
			return base == "dockerfile" || strings.HasPrefix(base, "dockerfile.") ||
				strings.HasPrefix(base, "docker-compose")
		},
		advice: "Containerize the service with a Dockerfile so builds are reproducible.",
	},
	{
		name:   "iac",
		weight: 15,
		match: func(p string) bool {
			lower := strings.ToLower(p)
			return strings.HasSuffix(lower, ".tf") ||
				strings.Contains(lower, "k8s/") || strings.Contains(lower, "kubernetes/") ||
				strings.Contains(lower, "helm/")
		},
		advice: "Describe deployment infrastructure as code (Terraform, Kubernetes manifests, or Helm charts).",
	},
	{
		name:   "tests",
		weight: 25,
		match: func(p string) bool {
			lower := strings.ToLower(p)
			return strings.Contains(lower, "_test.") || strings.Contains(lower, ".test.") ||
				strings.Contains(lower, ".spec.") || strings.Contains(lower, "/tests/") ||
				strings.HasPrefix(lower, "tests/")
		},
		advice: "Add automated tests; no test files were found in the repository.",
	},
	{
		name:   "docs",
		weight: 15,
		match: func(p string) bool {
			base := strings.ToLower(baseName(p))
			return strings.HasPrefix(base, "readme") || strings.HasPrefix(p, "docs/")
		},
		advice: "Add a README and documentation describing setup and operations.",
	},
}

// heuristicResult is the deterministic fallback: weighted presence checks
// over well-known operational files.
func heuristicResult(repoID string, files []repo.File) *Result {
	score := 0.0
	var recommendations []string
	found := 0
	for _, sig := range signals {
		matched := false
		for _, file := range files {
			if sig.match(file.Path) {
				matched = true
				break
			}
		}
		if matched {
			score += sig.weight
			found++
		} else {
			recommendations = append(recommendations, sig.advice)
		}
	}
	name := repoID
	if name == "" {
		name = "repository"
	}
	summary := fmt.Sprintf("Heuristic assessment of %s: %d of %d operational signals present across %d files.",
		name, found, len(signals), len(files))
	return &Result{OverallScore: score, Recommendations: recommendations, Summary: summary}
}

func baseName(p string) string {
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

var _ Analyzer = (*LLMAnalyzer)(nil)

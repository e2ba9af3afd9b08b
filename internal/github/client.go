// File path: internal/github/client.go
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/repolens/repolens/internal/common"
	"github.com/repolens/repolens/internal/repo"
)

// Fetcher retrieves a repository's files and metadata. The token is optional;
// when empty, only public repositories are reachable and the unauthenticated
// rate limit applies.
type Fetcher interface {
	Fetch(ctx context.Context, owner, name, token string) ([]repo.File, *repo.Metadata, error)
}

// ErrNotFound is returned when the repository does not exist or the token
// cannot see it.
var ErrNotFound = errors.New("repository not found")

const (
	defaultBaseURL     = "https://api.github.com"
	defaultMaxFiles    = 500
	defaultMaxFileSize = 512 * 1024
	maxResponseBytes   = 32 << 20
)

// Client is the REST implementation of Fetcher.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxFiles    int
	maxFileSize int64
}

func NewClient() *Client {
	baseURL := strings.TrimSpace(os.Getenv("GITHUB_API_URL"))
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxFiles := defaultMaxFiles
	if raw := strings.TrimSpace(os.Getenv("GITHUB_MAX_FILES")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			maxFiles = parsed
		}
	}
	transport := &http.Transport{
		MaxIdleConns:        32,
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 60 * time.Second, Transport: transport},
		maxFiles:    maxFiles,
		maxFileSize: defaultMaxFileSize,
	}
}

type repoResponse struct {
	Name          string `json:"name"`
	FullName      string `json:"full_name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	Stars         int    `json:"stargazers_count"`
	Language      string `json:"language"`
	Owner         struct {
		Login string `json:"login"`
	} `json:"owner"`
}

type treeResponse struct {
	Truncated bool `json:"truncated"`
	Tree      []struct {
		Path string `json:"path"`
		Type string `json:"type"`
		Size int64  `json:"size"`
	} `json:"tree"`
}

// Fetch loads repository metadata, walks the default branch tree, and
// downloads the text files worth indexing. Binary and oversized files are
// skipped; individual download failures are logged and skipped so one bad
// blob does not abort the whole fetch.
func (c *Client) Fetch(ctx context.Context, owner, name, token string) ([]repo.File, *repo.Metadata, error) {
	meta, err := c.fetchMetadata(ctx, owner, name, token)
	if err != nil {
		return nil, nil, err
	}
	tree, err := c.fetchTree(ctx, owner, name, meta.DefaultBranch, token)
	if err != nil {
		return nil, nil, err
	}
	logger := common.Logger()
	if tree.Truncated {
		logger.Warn("github: tree listing truncated", "repo", meta.FullName)
	}
	files := make([]repo.File, 0, len(tree.Tree))
	for _, entry := range tree.Tree {
		if entry.Type != "blob" {
			continue
		}
		if entry.Size > c.maxFileSize {
			continue
		}
		language, ok := detectLanguage(entry.Path)
		if !ok {
			continue
		}
		if len(files) >= c.maxFiles {
			logger.Warn("github: file cap reached", "repo", meta.FullName, "cap", c.maxFiles)
			break
		}
		content, err := c.fetchContent(ctx, owner, name, entry.Path, meta.DefaultBranch, token)
		if err != nil {
			logger.Warn("github: skipping file", "path", entry.Path, "error", err)
			continue
		}
		files = append(files, repo.File{Path: entry.Path, Content: content, Language: language})
	}
	logger.Info("github: fetch complete", "repo", meta.FullName, "files", len(files))
	return files, meta, nil
}

func (c *Client) fetchMetadata(ctx context.Context, owner, name, token string) (*repo.Metadata, error) {
	body, err := c.doRequest(ctx, fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, name), token, "")
	if err != nil {
		return nil, err
	}
	var resp repoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode repository metadata: %w", err)
	}
	branch := resp.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return &repo.Metadata{
		Owner:         resp.Owner.Login,
		Name:          resp.Name,
		FullName:      resp.FullName,
		Description:   resp.Description,
		DefaultBranch: branch,
		Stars:         resp.Stars,
		Language:      resp.Language,
	}, nil
}

func (c *Client) fetchTree(ctx context.Context, owner, name, branch, token string) (*treeResponse, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		c.baseURL, owner, name, url.PathEscape(branch))
	body, err := c.doRequest(ctx, endpoint, token, "")
	if err != nil {
		return nil, err
	}
	var resp treeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode repository tree: %w", err)
	}
	return &resp, nil
}

func (c *Client) fetchContent(ctx context.Context, owner, name, filePath, branch, token string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.baseURL, owner, name, escapePath(filePath), url.QueryEscape(branch))
	body, err := c.doRequest(ctx, endpoint, token, "application/vnd.github.raw+json")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) doRequest(ctx context.Context, endpoint, token, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read github response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("github access denied (status %d)", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("github returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

var languagesByExtension = map[string]string{
	".go":         "go",
	".py":         "python",
	".js":         "javascript",
	".jsx":        "javascript",
	".ts":         "typescript",
	".tsx":        "typescript",
	".java":       "java",
	".rb":         "ruby",
	".rs":         "rust",
	".md":         "markdown",
	".yaml":       "yaml",
	".yml":        "yaml",
	".json":       "json",
	".sh":         "shell",
	".bash":       "shell",
	".tf":         "terraform",
	".toml":       "toml",
	".sql":        "sql",
	".html":       "html",
	".css":        "css",
	".txt":        "text",
	".cfg":        "config",
	".ini":        "config",
	".properties": "config",
}

var specialFiles = map[string]string{
	"dockerfile":     "dockerfile",
	"makefile":       "makefile",
	"jenkinsfile":    "groovy",
	".gitignore":     "config",
	".dockerignore":  "config",
	".editorconfig":  "config",
	"docker-compose": "yaml",
}

// detectLanguage classifies a path by extension, falling back to well-known
// filenames like Dockerfile. Unknown paths are treated as binary and skipped.
func detectLanguage(filePath string) (string, bool) {
	base := strings.ToLower(path.Base(filePath))
	if lang, ok := specialFiles[base]; ok {
		return lang, true
	}
	for prefix, lang := range specialFiles {
		if strings.HasPrefix(base, prefix+".") {
			return lang, true
		}
	}
	ext := strings.ToLower(path.Ext(base))
	if lang, ok := languagesByExtension[ext]; ok {
		return lang, true
	}
	return "", false
}

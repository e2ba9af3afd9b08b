// File path: internal/github/client_test.go
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func fakeGitHub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/app", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
                        "name": "app",
                        "full_name": "octo/app",
                        "description": "demo service",
                        "default_branch": "main",
                        "stargazers_count": 12,
                        "language": "Go",
                        "owner": {"login": "octo"}
                }`)
	})
	mux.HandleFunc("/repos/octo/app/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
                        "truncated": false,
                        "tree": [
                                {"path": "main.go", "type": "blob", "size": 30},
                                {"path": "vendor", "type": "tree", "size": 0},
                                {"path": "logo.png", "type": "blob", "size": 100},
                                {"path": "Dockerfile", "type": "blob", "size": 20}
                        ]
                }`)
	})
	mux.HandleFunc("/repos/octo/app/contents/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "main.go"):
			fmt.Fprint(w, "package main\n")
		case strings.HasSuffix(r.URL.Path, "Dockerfile"):
			fmt.Fprint(w, "FROM golang:1.24\n")
		default:
			http.NotFound(w, r)
		}
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestFetchFiltersAndDownloads(t *testing.T) {
	server := fakeGitHub(t)
	t.Setenv("GITHUB_API_URL", server.URL)

	files, meta, err := NewClient().Fetch(context.Background(), "octo", "app", "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if meta.FullName != "octo/app" || meta.DefaultBranch != "main" || meta.Stars != 12 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	// The tree entry and the binary png are filtered out.
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d: %+v", len(files), files)
	}
	byPath := map[string]string{}
	for _, file := range files {
		byPath[file.Path] = file.Language
	}
	if byPath["main.go"] != "go" {
		t.Fatalf("main.go language: %q", byPath["main.go"])
	}
	if byPath["Dockerfile"] != "dockerfile" {
		t.Fatalf("Dockerfile language: %q", byPath["Dockerfile"])
	}
}

func TestFetchAuthorizationHeader(t *testing.T) {
	var sawToken string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawToken = r.Header.Get("Authorization")
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)
	t.Setenv("GITHUB_API_URL", server.URL)

	_, _, err := NewClient().Fetch(context.Background(), "octo", "private", "secret-token")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if sawToken != "Bearer secret-token" {
		t.Fatalf("expected bearer token header, got %q", sawToken)
	}
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(server.Close)
	t.Setenv("GITHUB_API_URL", server.URL)

	_, _, err := NewClient().Fetch(context.Background(), "octo", "missing", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		path string
		lang string
		ok   bool
	}{
		{"cmd/server/main.go", "go", true},
		{"scripts/deploy.sh", "shell", true},
		{"Dockerfile", "dockerfile", true},
		{"Dockerfile.dev", "dockerfile", true},
		{"docker-compose.yml", "yaml", true},
		{"Makefile", "makefile", true},
		{"infra/main.tf", "terraform", true},
		{"logo.png", "", false},
		{"bin/app", "", false},
	}
	for _, tc := range cases {
		lang, ok := detectLanguage(tc.path)
		if ok != tc.ok || lang != tc.lang {
			t.Fatalf("detect %q: got (%q, %v), want (%q, %v)", tc.path, lang, ok, tc.lang, tc.ok)
		}
	}
}

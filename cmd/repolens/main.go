// File path: cmd/repolens/main.go
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/repolens/repolens/internal/analysis"
	"github.com/repolens/repolens/internal/api"
	"github.com/repolens/repolens/internal/chunker"
	"github.com/repolens/repolens/internal/common"
	"github.com/repolens/repolens/internal/devops"
	"github.com/repolens/repolens/internal/github"
	"github.com/repolens/repolens/internal/llm"
	"github.com/repolens/repolens/internal/vector"
)

func main() {
	logger := common.Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn("repolens: .env file not loaded", "error", err)
	} else {
		logger.Info("repolens: environment loaded from .env")
	}

	addr := flag.String("addr", ":8080", "listen address")
	backend := flag.String("vector-backend", "", "vector store backend (memory or sqlite)")
	sqlitePath := flag.String("vector-sqlite", "", "path to the SQLite vector database")
	jobTimeout := flag.String("job-timeout", "", "maximum duration for a single analysis (e.g. 10m)")
	flag.Parse()

	logger.Info("repolens: startup initiated", "addr", *addr)

	vectorCfg, err := vector.LoadConfig()
	if err != nil {
		logger.Error("repolens: vector config load failed", "error", err)
		fmt.Println("vector config error:", err)
		os.Exit(1)
	}
	if trimmed := strings.TrimSpace(*backend); trimmed != "" {
		vectorCfg.Backend = trimmed
	}
	if trimmed := strings.TrimSpace(*sqlitePath); trimmed != "" {
		vectorCfg.SQLitePath = trimmed
	}

	store, err := buildStore(vectorCfg)
	if err != nil {
		logger.Error("repolens: vector store initialization failed", "error", err)
		fmt.Println("vector store error:", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("repolens: vector store ready", "backend", vectorCfg.Backend)

	provider := llm.NewProvider()
	logger.Info("repolens: llm provider ready", "provider", provider.Name())

	index := vector.NewIndex(store, provider, vectorCfg)
	fetcher := github.NewClient()
	analyzer := devops.NewLLMAnalyzer(provider)

	var opts []analysis.Option
	if trimmed := strings.TrimSpace(*jobTimeout); trimmed != "" {
		dur, err := time.ParseDuration(trimmed)
		if err != nil {
			logger.Error("repolens: invalid job timeout", "value", trimmed, "error", err)
			fmt.Println("job timeout error:", err)
			os.Exit(1)
		}
		opts = append(opts, analysis.WithJobTimeout(dur))
	}
	orch := analysis.NewOrchestrator(fetcher, chunker.New(), index, analyzer, opts...)

	server, err := api.NewServer(orch)
	if err != nil {
		logger.Error("repolens: server construction failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	logger.Info("repolens: server listening", "addr", *addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	if err := http.ListenAndServe(*addr, server); err != nil {
		logger.Error("repolens: server stopped", "error", err)
		fmt.Println("server stopped:", err)
		os.Exit(1)
	}
}

func buildStore(cfg vector.Config) (vector.Store, error) {
	switch cfg.Backend {
	case vector.BackendSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return vector.OpenSQLite(cfg.SQLitePath)
	case vector.BackendMemory, "":
		return vector.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Backend)
	}
}

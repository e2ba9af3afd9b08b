// File path: internal/vector/config.go
package vector

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
)

type Config struct {
	Backend    string `json:"backend"`
	SQLitePath string `json:"sqlite_path"`

	BatchSize int `json:"batch_size"`

	BatchDelay       time.Duration `json:"-"`
	BatchDelayString string        `json:"batch_delay"`
}

func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.Backend) != "" {
		result.Backend = strings.TrimSpace(override.Backend)
	}
	if strings.TrimSpace(override.SQLitePath) != "" {
		result.SQLitePath = strings.TrimSpace(override.SQLitePath)
	}
	if override.BatchSize > 0 {
		result.BatchSize = override.BatchSize
	}
	if override.BatchDelay > 0 {
		result.BatchDelay = override.BatchDelay
	}
	if strings.TrimSpace(override.BatchDelayString) != "" {
		result.BatchDelayString = strings.TrimSpace(override.BatchDelayString)
	}
	return result
}

func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("VECTOR_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadConfigEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Backend) == "" {
		c.Backend = BackendMemory
	}
	if strings.TrimSpace(c.SQLitePath) == "" {
		c.SQLitePath = filepath.Join("data", "vectors.db")
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.BatchDelay <= 0 {
		if c.BatchDelayString != "" {
			if parsed, err := time.ParseDuration(c.BatchDelayString); err == nil {
				c.BatchDelay = parsed
			}
		}
		if c.BatchDelay <= 0 {
			c.BatchDelay = time.Second
		}
	}
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read vector config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse vector config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() (Config, error) {
	cfg := Config{}
	if backend := strings.TrimSpace(os.Getenv("VECTOR_BACKEND")); backend != "" {
		cfg.Backend = backend
	}
	if path := strings.TrimSpace(os.Getenv("VECTOR_SQLITE_PATH")); path != "" {
		cfg.SQLitePath = path
	}
	if size := strings.TrimSpace(os.Getenv("EMBED_BATCH_SIZE")); size != "" {
		value, err := strconv.Atoi(size)
		if err != nil {
			return Config{}, fmt.Errorf("parse EMBED_BATCH_SIZE: %w", err)
		}
		if value > 0 {
			cfg.BatchSize = value
		}
	}
	if delay := strings.TrimSpace(os.Getenv("EMBED_BATCH_DELAY")); delay != "" {
		cfg.BatchDelayString = delay
		if parsed, err := time.ParseDuration(delay); err == nil {
			cfg.BatchDelay = parsed
		}
	}
	return cfg, nil
}

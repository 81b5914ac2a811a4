// Package config loads and validates swarmmem configuration.
//
// Configuration is applied in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/swarmmem/config.yaml)
//  3. Store config (.swarmmem.yaml in the data directory's parent)
//  4. Environment variables (SWARMMEM_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete swarmmem configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Retention  RetentionConfig  `yaml:"retention" json:"retention"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures where the store keeps its data.
type PathsConfig struct {
	// DataDir is the directory holding the SQLite database and lock file.
	// Defaults to ~/.swarmmem.
	DataDir string `yaml:"data_dir" json:"data_dir"`
}

// EmbeddingsConfig configures the embedding backends.
type EmbeddingsConfig struct {
	// Provider selects the default backend: "static" or "ollama".
	Provider string `yaml:"provider" json:"provider"`
	// Model is the model identifier for remote providers.
	Model string `yaml:"model" json:"model"`
	// Dimensions pins the embedding dimension. 0 means auto-detect
	// (remote) or the backend's fixed dimension (static).
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	// BatchSize is texts per embedding request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
	// Timeout is the per-request embedding timeout.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// CacheSize is the number of query embeddings kept in the LRU cache.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// IngestConfig configures the ingestion pipeline and backfill workers.
type IngestConfig struct {
	// DedupWindow is how long an idempotency key maps to its doc id.
	DedupWindow time.Duration `yaml:"dedup_window" json:"dedup_window"`
	// BackfillWorkers bounds concurrent embedding backfill.
	BackfillWorkers int `yaml:"backfill_workers" json:"backfill_workers"`
	// MaxAttempts is the backfill attempt ceiling before a document is
	// marked embedding_failed.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// RetryInitialDelay is the first backoff delay.
	RetryInitialDelay time.Duration `yaml:"retry_initial_delay" json:"retry_initial_delay"`
	// RetryMaxDelay caps exponential backoff.
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" json:"retry_max_delay"`
	// RetryMultiplier is the backoff growth factor.
	RetryMultiplier float64 `yaml:"retry_multiplier" json:"retry_multiplier"`
}

// RetentionConfig configures lifecycle cleanup thresholds.
type RetentionConfig struct {
	// MaxAgeDays removes documents older than this many days. 0 disables.
	MaxAgeDays int `yaml:"max_age_days" json:"max_age_days"`
	// MaxCount keeps at most this many documents. 0 disables.
	MaxCount int `yaml:"max_count" json:"max_count"`
}

// ServerConfig configures the MCP server surface.
type ServerConfig struct {
	Transport string `yaml:"transport" json:"transport"`
	LogLevel  string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "static",
			Model:      "nomic-embed-text",
			Dimensions: 0,
			BatchSize:  32,
			OllamaHost: "http://localhost:11434",
			Timeout:    60 * time.Second,
			CacheSize:  1000,
		},
		Ingest: IngestConfig{
			DedupWindow:       10 * time.Minute,
			BackfillWorkers:   4,
			MaxAttempts:       8,
			RetryInitialDelay: 1 * time.Second,
			RetryMaxDelay:     5 * time.Minute,
			RetryMultiplier:   2.0,
		},
		Retention: RetentionConfig{
			MaxAgeDays: 0,
			MaxCount:   0,
		},
		Server: ServerConfig{
			Transport: "stdio",
			LogLevel:  "info",
		},
	}
}

// defaultDataDir returns ~/.swarmmem, falling back to the temp dir.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".swarmmem")
	}
	return filepath.Join(home, ".swarmmem")
}

// GetUserConfigPath returns the path to the user/global configuration file,
// following the XDG Base Directory specification.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "swarmmem", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "swarmmem", "config.yaml")
	}
	return filepath.Join(home, ".config", "swarmmem", "config.yaml")
}

// Load loads configuration rooted at dir (the store directory).
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromDir(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromDir attempts to load .swarmmem.yaml or .swarmmem.yml from dir.
func (c *Config) loadFromDir(dir string) error {
	for _, name := range []string{".swarmmem.yaml", ".swarmmem.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	// No config file is fine, defaults apply
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Paths.DataDir != "" {
		c.Paths.DataDir = other.Paths.DataDir
	}
	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}
	if other.Embeddings.Timeout != 0 {
		c.Embeddings.Timeout = other.Embeddings.Timeout
	}
	if other.Embeddings.CacheSize != 0 {
		c.Embeddings.CacheSize = other.Embeddings.CacheSize
	}
	if other.Ingest.DedupWindow != 0 {
		c.Ingest.DedupWindow = other.Ingest.DedupWindow
	}
	if other.Ingest.BackfillWorkers != 0 {
		c.Ingest.BackfillWorkers = other.Ingest.BackfillWorkers
	}
	if other.Ingest.MaxAttempts != 0 {
		c.Ingest.MaxAttempts = other.Ingest.MaxAttempts
	}
	if other.Ingest.RetryInitialDelay != 0 {
		c.Ingest.RetryInitialDelay = other.Ingest.RetryInitialDelay
	}
	if other.Ingest.RetryMaxDelay != 0 {
		c.Ingest.RetryMaxDelay = other.Ingest.RetryMaxDelay
	}
	if other.Ingest.RetryMultiplier != 0 {
		c.Ingest.RetryMultiplier = other.Ingest.RetryMultiplier
	}
	if other.Retention.MaxAgeDays != 0 {
		c.Retention.MaxAgeDays = other.Retention.MaxAgeDays
	}
	if other.Retention.MaxCount != 0 {
		c.Retention.MaxCount = other.Retention.MaxCount
	}
	if other.Server.Transport != "" {
		c.Server.Transport = other.Server.Transport
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies SWARMMEM_* environment variables, which take
// precedence over all file-based configuration.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SWARMMEM_DATA_DIR"); v != "" {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("SWARMMEM_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("SWARMMEM_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("SWARMMEM_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("SWARMMEM_EMBED_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("SWARMMEM_DEDUP_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Ingest.DedupWindow = d
		}
	}
	if v := os.Getenv("SWARMMEM_BACKFILL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.BackfillWorkers = n
		}
	}
	if v := os.Getenv("SWARMMEM_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Embeddings.Provider {
	case "static", "ollama":
	default:
		return fmt.Errorf("unknown embeddings provider %q (use static or ollama)", c.Embeddings.Provider)
	}

	if c.Embeddings.Dimensions < 0 {
		return fmt.Errorf("embeddings dimensions must be >= 0, got %d", c.Embeddings.Dimensions)
	}
	if c.Embeddings.BatchSize < 1 || c.Embeddings.BatchSize > 256 {
		return fmt.Errorf("embeddings batch_size must be 1-256, got %d", c.Embeddings.BatchSize)
	}
	if c.Ingest.BackfillWorkers < 1 {
		return fmt.Errorf("ingest backfill_workers must be >= 1, got %d", c.Ingest.BackfillWorkers)
	}
	if c.Ingest.MaxAttempts < 1 {
		return fmt.Errorf("ingest max_attempts must be >= 1, got %d", c.Ingest.MaxAttempts)
	}
	if c.Ingest.RetryMultiplier < 1.0 {
		return fmt.Errorf("ingest retry_multiplier must be >= 1.0, got %v", c.Ingest.RetryMultiplier)
	}
	if c.Retention.MaxAgeDays < 0 || c.Retention.MaxCount < 0 {
		return fmt.Errorf("retention thresholds must be >= 0")
	}
	if c.Server.Transport != "stdio" {
		return fmt.Errorf("unknown server transport %q (supported: stdio)", c.Server.Transport)
	}
	return nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

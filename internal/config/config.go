// Package config provides configuration loading and structs for the Gazou server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Encoder EncoderConfig `yaml:"encoder"`
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the saved system, catalog and keyword index.
type StorageConfig struct {
	// SystemPrefix is the artifact prefix for the saved vector index and
	// config (prefix.vec, prefix_metadata.gob, prefix_config.json).
	SystemPrefix string `yaml:"system_prefix"`
	DatabasePath string `yaml:"database_path"`
	KeywordPath  string `yaml:"keyword_path"`
}

// EncoderConfig holds encoder strategy settings. The API key for the remote
// strategy comes from the environment, never from the file.
type EncoderConfig struct {
	Type       string `yaml:"type"`
	ModelName  string `yaml:"model_name"`
	ModelDir   string `yaml:"model_dir"`
	BaseURL    string `yaml:"base_url"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
	FailFast   bool   `yaml:"fail_fast"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Type string `yaml:"type"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultTopK   int  `yaml:"default_top_k"`
	MaxTopK       int  `yaml:"max_top_k"`
	DefaultHybrid bool `yaml:"default_hybrid"`
	BatchSize     int  `yaml:"batch_size"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ApplyDefaults fills zero values with working defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8086
	}
	if cfg.Storage.SystemPrefix == "" {
		cfg.Storage.SystemPrefix = "./data/index/gazou"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "./data/db/images.db"
	}
	if cfg.Storage.KeywordPath == "" {
		cfg.Storage.KeywordPath = "./data/index/keyword.bleve"
	}
	if cfg.Encoder.Type == "" {
		cfg.Encoder.Type = "clip"
	}
	if cfg.Encoder.CacheSize == 0 {
		cfg.Encoder.CacheSize = 4096
	}
	if cfg.Index.Type == "" {
		cfg.Index.Type = "flat"
	}
	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 5
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}
	if cfg.Search.BatchSize == 0 {
		cfg.Search.BatchSize = 32
	}
	if len(cfg.Watch.Extensions) == 0 {
		cfg.Watch.Extensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".webp"}
	}
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.SystemPrefix = expandPath(cfg.Storage.SystemPrefix, configDir)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordPath = expandPath(cfg.Storage.KeywordPath, configDir)
	if cfg.Encoder.ModelDir != "" {
		cfg.Encoder.ModelDir = expandPath(cfg.Encoder.ModelDir, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

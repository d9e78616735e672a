// Package config loads the datacenter configuration: the top-level YAML
// document describing sources, collection tuning, storage, cache, and
// logging (spec.md section 6.1).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// SourceSettings describes one upstream data source entry under
// DatacenterConfig.Sources.
type SourceSettings struct {
	Enabled    bool              `yaml:"enabled"`
	BaseURL    string            `yaml:"base_url"`
	APIKey     string            `yaml:"api_key"`
	Timeout    int               `yaml:"timeout"`
	RetryCount int               `yaml:"retry_count"`
	RateLimit  float64           `yaml:"rate_limit"`
	Headers    map[string]string `yaml:"headers"`
}

// CollectionConfig tunes batch collection behavior process-wide.
type CollectionConfig struct {
	BatchSize        int     `yaml:"batch_size"`
	MaxConcurrent    int     `yaml:"max_concurrent"`
	QualityThreshold float64 `yaml:"quality_threshold"`
}

// StorageConfig describes the persistence backend connection.
type StorageConfig struct {
	DatabaseURL     string `yaml:"database_url"`
	PoolSize        int    `yaml:"pool_size"`
	EchoSQL         bool   `yaml:"echo_sql"`
	BatchInsertSize int    `yaml:"batch_insert_size"`
	Timezone        string `yaml:"timezone"`
}

// CacheConfig describes the optional caching layer.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Backend  string `yaml:"backend"`
	TTL      int    `yaml:"ttl"`
	MaxSize  int    `yaml:"max_size"`
	RedisURL string `yaml:"redis_url"`
}

// LoggingConfig controls application-wide logging, mirrored into
// internal/logging.Config at startup.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LOG_LEVEL"`
	Format     string `yaml:"format" env:"LOG_FORMAT"`
	Output     string `yaml:"output" env:"LOG_OUTPUT"`
	File       string `yaml:"file" env:"LOG_FILE"`
	FilePrefix string `yaml:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// DatacenterConfig is the top-level configuration document (spec.md 6.1).
type DatacenterConfig struct {
	Version    string                    `yaml:"version"`
	Sources    map[string]SourceSettings `yaml:"sources"`
	Collection CollectionConfig          `yaml:"collection"`
	Storage    StorageConfig             `yaml:"storage"`
	Cache      CacheConfig               `yaml:"cache"`
	Logging    LoggingConfig             `yaml:"logging"`
}

// New returns a DatacenterConfig populated with defaults, mirroring the
// teacher's config.New().
func New() *DatacenterConfig {
	return &DatacenterConfig{
		Version: "1.0",
		Sources: map[string]SourceSettings{},
		Collection: CollectionConfig{
			BatchSize:        500,
			MaxConcurrent:    5,
			QualityThreshold: 0.8,
		},
		Storage: StorageConfig{
			PoolSize:        10,
			BatchInsertSize: 500,
			Timezone:        "UTC",
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     300,
			MaxSize: 10000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stdout",
			FilePrefix: "datahub",
		},
	}
}

// Load loads configuration with the same precedence as the teacher's
// config.Load: godotenv, then a YAML file (CONFIG_FILE env var or the
// conventional default path), then environment-variable overrides.
func Load() (*DatacenterConfig, error) {
	_ = godotenv.Load()

	cfg := New()

	path := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if path == "" {
		path = "configs/datacenter.yaml"
	}
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	cfg.expandRefs()
	return cfg, nil
}

// LoadFile reads configuration from a specific YAML file, applying the same
// environment-variable expansion as Load but skipping envdecode overrides.
func LoadFile(path string) (*DatacenterConfig, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.expandRefs()
	return cfg, nil
}

func loadFromFile(path string, cfg *DatacenterConfig) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// expandRefs resolves ${NAME}/$NAME environment references in every string
// field reachable from the config that plausibly carries a secret.
func (c *DatacenterConfig) expandRefs() {
	for id, s := range c.Sources {
		s.APIKey = ExpandEnvRefs(s.APIKey)
		s.BaseURL = ExpandEnvRefs(s.BaseURL)
		for k, v := range s.Headers {
			s.Headers[k] = ExpandEnvRefs(v)
		}
		c.Sources[id] = s
	}
	c.Storage.DatabaseURL = ExpandEnvRefs(c.Storage.DatabaseURL)
	c.Cache.RedisURL = ExpandEnvRefs(c.Cache.RedisURL)
}

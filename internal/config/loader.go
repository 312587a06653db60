package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"inferd/pkg/types"
)

// PreloadModel names a model to load at startup.
type PreloadModel struct {
	Name              string `json:"name" yaml:"name" toml:"name"`
	types.ModelConfig `yaml:",inline"`
}

// CORSConfig enables cross-origin access to the diagnostics endpoints.
type CORSConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins" toml:"allowed_origins"`
	AllowedMethods []string `json:"allowed_methods" yaml:"allowed_methods" toml:"allowed_methods"`
	AllowedHeaders []string `json:"allowed_headers" yaml:"allowed_headers" toml:"allowed_headers"`
}

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr                   string         `json:"addr" yaml:"addr" toml:"addr"`
	Engine                 string         `json:"engine" yaml:"engine" toml:"engine"`
	ModelsDir              string         `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Preload                []PreloadModel `json:"preload" yaml:"preload" toml:"preload"`
	MemoryLimitMB          int            `json:"memory_limit_mb" yaml:"memory_limit_mb" toml:"memory_limit_mb"`
	MaxContextsPerModel    int            `json:"max_contexts_per_model" yaml:"max_contexts_per_model" toml:"max_contexts_per_model"`
	ContextTTLSeconds      int            `json:"context_ttl_seconds" yaml:"context_ttl_seconds" toml:"context_ttl_seconds"`
	JanitorIntervalSeconds int            `json:"janitor_interval_seconds" yaml:"janitor_interval_seconds" toml:"janitor_interval_seconds"`
	DrainTimeoutSeconds    int            `json:"drain_timeout_seconds" yaml:"drain_timeout_seconds" toml:"drain_timeout_seconds"`
	StreamWorkers          int            `json:"stream_workers" yaml:"stream_workers" toml:"stream_workers"`
	BatchWorkers           int            `json:"batch_workers" yaml:"batch_workers" toml:"batch_workers"`
	BatchQueueDepth        int            `json:"batch_queue_depth" yaml:"batch_queue_depth" toml:"batch_queue_depth"`
	LogLevel               string         `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORS                   CORSConfig     `json:"cors" yaml:"cors" toml:"cors"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

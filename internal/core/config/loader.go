package config

import (
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(data))
}

func Parse(data string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration for runs without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}
	if cfg.Analysis.Workers <= 0 {
		cfg.Analysis.Workers = runtime.GOMAXPROCS(0)
	}
	if len(cfg.Paths.Roots) == 0 {
		cfg.Paths.Roots = []string{"."}
	}
	if cfg.Paths.ExcludeDirs == nil {
		cfg.Paths.ExcludeDirs = []string{".git", "__pycache__", ".venv", "venv", "node_modules", ".tox"}
	}
	if strings.TrimSpace(cfg.Store.Path) == "" {
		cfg.Store.Path = "data/callmap.db"
	}
	if strings.TrimSpace(cfg.Observability.ServiceName) == "" {
		cfg.Observability.ServiceName = "callmap"
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
	if cfg.Watch.MaxRebuildsPerSecond <= 0 {
		cfg.Watch.MaxRebuildsPerSecond = 2
	}
}

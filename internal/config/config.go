// Package config loads and validates .erlscope.toml.
package config

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/erlscope/erlscope/internal/debug"
	"github.com/erlscope/erlscope/internal/errors"
	"github.com/erlscope/erlscope/internal/types"
)

// FileName is the per-project configuration file.
const FileName = ".erlscope.toml"

// Config is the full configuration tree.
type Config struct {
	Project  ProjectConfig  `toml:"project"`
	Analysis AnalysisConfig `toml:"analysis"`
	Search   SearchConfig   `toml:"search"`
	Watch    WatchConfig    `toml:"watch"`
}

// ProjectConfig scopes the workspace.
type ProjectConfig struct {
	Root         string   `toml:"root"`
	Include      []string `toml:"include"`
	Exclude      []string `toml:"exclude"`
	UseGitignore bool     `toml:"use_gitignore"`
}

// AnalysisConfig tunes the analysis engine.
type AnalysisConfig struct {
	MaxFileSize    int      `toml:"max_file_size"`
	MaxCachedNodes int      `toml:"max_cached_nodes"`
	DisabledPasses []string `toml:"disabled_passes"`
}

// SearchConfig tunes workspace symbol search.
type SearchConfig struct {
	MaxResults     int     `toml:"max_results"`
	MinScore       float64 `toml:"min_score"`
	FuzzyThreshold float64 `toml:"fuzzy_threshold"`
}

// WatchConfig tunes the file watcher.
type WatchConfig struct {
	Enabled    bool `toml:"enabled"`
	DebounceMs int  `toml:"debounce_ms"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Project: ProjectConfig{
			Root:         ".",
			UseGitignore: true,
		},
		Analysis: AnalysisConfig{
			MaxFileSize:    types.DefaultMaxFileSize,
			MaxCachedNodes: 0,
		},
		Search: SearchConfig{
			MaxResults:     50,
			MinScore:       0.2,
			FuzzyThreshold: 0.82,
		},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: 250,
		},
	}
}

// Load reads a config file, layering it over defaults. A missing file is
// not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.NewConfigError("file", path, "check TOML syntax")
	}
	debug.Logf("loaded config from %s", path)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFromDir finds and loads .erlscope.toml in dir.
func LoadFromDir(dir string) (Config, error) {
	return Load(filepath.Join(dir, FileName))
}

// Validate checks ranges and reports the first problem with a suggested
// fix.
func (c *Config) Validate() error {
	if c.Analysis.MaxFileSize < 0 {
		return errors.NewConfigError("analysis.max_file_size", c.Analysis.MaxFileSize,
			"use 0 for the default or a positive byte count")
	}
	if c.Analysis.MaxCachedNodes < 0 {
		return errors.NewConfigError("analysis.max_cached_nodes", c.Analysis.MaxCachedNodes,
			"use 0 for unbounded or a positive node count")
	}
	if c.Search.MinScore < 0 || c.Search.MinScore > 1 {
		return errors.NewConfigError("search.min_score", c.Search.MinScore,
			"scores run from 0.0 to 1.0")
	}
	if c.Search.FuzzyThreshold < 0 || c.Search.FuzzyThreshold > 1 {
		return errors.NewConfigError("search.fuzzy_threshold", c.Search.FuzzyThreshold,
			"thresholds run from 0.0 to 1.0")
	}
	if c.Search.MaxResults < 0 {
		return errors.NewConfigError("search.max_results", c.Search.MaxResults,
			"use 0 for the default or a positive count")
	}
	if c.Watch.DebounceMs < 0 {
		return errors.NewConfigError("watch.debounce_ms", c.Watch.DebounceMs,
			"use a non-negative millisecond value")
	}
	return nil
}

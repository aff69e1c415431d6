// Package config loads git-ast settings. Sources are layered, later ones
// winning: built-in defaults, gitast.yaml, .env, GITAST_* environment
// variables, then command-line flags.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/lo"
	"github.com/spf13/pflag"
)

const envPrefix = "GITAST_"

// FileNames are looked up in the working directory when no file is given.
var FileNames = []string{"gitast.yaml", "gitast.yml", ".gitast.yaml"}

type Config struct {
	Log struct {
		Level  string `koanf:"level"`
		Format string `koanf:"format"` // console or json
	} `koanf:"log"`
	Filter FilterConfig `koanf:"filter"`
	Diff   DiffConfig   `koanf:"diff"`
	Merge  MergeConfig  `koanf:"merge"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

type FilterConfig struct {
	OnParseError         string   `koanf:"on_parse_error"` // fail or passthrough
	MaxFileSize          int64    `koanf:"max_file_size"`  // bytes, 0 disables the limit
	RequiredCapabilities []string `koanf:"required_capabilities"`
}

type DiffConfig struct {
	MinSubtreeSize      int     `koanf:"min_subtree_size"`
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	Format              string  `koanf:"format"` // text, yaml or json
	Color               string  `koanf:"color"`  // auto, always or never
	Context             int     `koanf:"context"`
}

type MergeConfig struct {
	MarkerSize int    `koanf:"marker_size"`
	OnConflict string `koanf:"on_conflict"` // markers or abort
}

// Defaults are the values used when no source sets a key.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"log.level":                    "info",
		"log.format":                   "console",
		"filter.on_parse_error":        "fail",
		"filter.max_file_size":         int64(10 * 1024 * 1024),
		"filter.required_capabilities": []string{"clean", "smudge"},
		"diff.min_subtree_size":        2,
		"diff.similarity_threshold":    0.5,
		"diff.format":                  "text",
		"diff.color":                   "auto",
		"diff.context":                 3,
		"merge.marker_size":            7,
		"merge.on_conflict":            "markers",
	}
}

// FlagKeys maps command-line flag names to config keys.
var FlagKeys = map[string]string{
	"log-level":      "log.level",
	"log-format":     "log.format",
	"on-parse-error": "filter.on_parse_error",
	"max-file-size":  "filter.max_file_size",
	"format":         "diff.format",
	"color":          "diff.color",
	"context":        "diff.context",
	"min-subtree":    "diff.min_subtree_size",
	"similarity":     "diff.similarity_threshold",
	"on-conflict":    "merge.on_conflict",
}

// Load reads the configuration. path may be empty, in which case FileNames
// are tried; flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path, _ = lo.Find(FileNames, func(name string) bool {
			_, err := os.Stat(name)
			return err == nil
		})
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// GITAST_FILTER__MAX_FILE_SIZE -> filter.max_file_size
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := FlagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = path
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var result *multierror.Error
	oneOf := func(key, v string, allowed ...string) {
		if !lo.Contains(allowed, v) {
			result = multierror.Append(result, fmt.Errorf("%s: %q is not one of %s", key, v, strings.Join(allowed, ", ")))
		}
	}

	oneOf("log.format", c.Log.Format, "console", "json")
	oneOf("filter.on_parse_error", c.Filter.OnParseError, "fail", "passthrough")
	oneOf("diff.format", c.Diff.Format, "text", "yaml", "json")
	oneOf("diff.color", c.Diff.Color, "auto", "always", "never")
	oneOf("merge.on_conflict", c.Merge.OnConflict, "markers", "abort")
	for _, capability := range c.Filter.RequiredCapabilities {
		oneOf("filter.required_capabilities", capability, "clean", "smudge")
	}

	if c.Filter.MaxFileSize < 0 {
		result = multierror.Append(result, fmt.Errorf("filter.max_file_size: must not be negative"))
	}
	if c.Diff.MinSubtreeSize < 1 {
		result = multierror.Append(result, fmt.Errorf("diff.min_subtree_size: must be at least 1"))
	}
	if c.Diff.SimilarityThreshold < 0 || c.Diff.SimilarityThreshold > 1 {
		result = multierror.Append(result, fmt.Errorf("diff.similarity_threshold: must be within [0, 1]"))
	}
	if c.Diff.Context < 0 {
		result = multierror.Append(result, fmt.Errorf("diff.context: must not be negative"))
	}
	if c.Merge.MarkerSize < 1 {
		result = multierror.Append(result, fmt.Errorf("merge.marker_size: must be positive"))
	}
	return result.ErrorOrNil()
}

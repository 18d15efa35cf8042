// Package config loads objindex configuration.
//
// Configuration precedence (highest to lowest):
//  1. Command line flags, passed to Load as overrides
//  2. Environment variables with the OBJINDEX_ prefix
//  3. YAML config file
//  4. Defaults
//
// Environment variables map onto keys by stripping the prefix and
// lowercasing. Names starting with a section name become nested keys:
//
//	OBJINDEX_MAX_SIZE_MB  -> max_size_mb
//	OBJINDEX_SCRATCH_DIR  -> scratch.dir
//	OBJINDEX_LOG_LEVEL    -> log.level
//
// List values such as exclude_suffixes are comma separated in the
// environment.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/pkg/types"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "OBJINDEX_"

const maxConfigFileSize = 1024 * 1024 // 1MB

// sections are the nested key groups recognized in environment names.
var sections = []string{"scratch", "ledger", "log", "metrics"}

// Config is the complete configuration of the objindex binary.
type Config struct {
	InputRoot       string   `koanf:"input_root"`
	OutputRoot      string   `koanf:"output_root"`
	MaxSizeMB       float64  `koanf:"max_size_mb"`
	Workers         int      `koanf:"workers"`
	Reversed        bool     `koanf:"reversed"`
	ExcludeSuffixes []string `koanf:"exclude_suffixes"`
	MaxAttempts     int      `koanf:"max_attempts"`
	IndexSuffix     string   `koanf:"index_suffix"`

	// Engine is the argv of an external indexing engine. Empty selects the
	// built-in archive indexer.
	Engine []string `koanf:"engine"`

	Scratch ScratchConfig  `koanf:"scratch"`
	Ledger  LedgerConfig   `koanf:"ledger"`
	Metrics MetricsConfig  `koanf:"metrics"`
	Log     logging.Config `koanf:"log"`
}

// ScratchConfig configures the engine working space.
type ScratchConfig struct {
	Dir        string  `koanf:"dir"`
	Multiplier float64 `koanf:"multiplier"`
}

// LedgerConfig configures the run history database.
type LedgerConfig struct {
	Path string `koanf:"path"` // empty disables the ledger
}

// MetricsConfig configures metrics output.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"` // node_exporter textfile path, empty disables
}

// Defaults returns the default key values.
func Defaults() map[string]any {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return map[string]any{
		"max_size_mb":        500.0,
		"workers":            runtime.NumCPU(),
		"reversed":           false,
		"exclude_suffixes":   []string{".elf"},
		"max_attempts":       1,
		"index_suffix":       types.DefaultIndexSuffix,
		"scratch.dir":        filepath.Join(os.TempDir(), "objindex"),
		"scratch.multiplier": 2.0,
		"ledger.path":        filepath.Join(home, ".objindex", "ledger.db"),
		"log.level":          "info",
		"log.format":         "json",
		"log.fields.service": "objindex",
	}
}

// DefaultPath returns the config file read when no path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "objindex", "config.yaml")
}

// Load builds the configuration. An explicit configPath must exist; the
// default path is read only if present. overrides are koanf keys set by the
// caller, typically from flags the user changed.
func Load(configPath string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	for key, v := range Defaults() {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("failed to set default %s: %w", key, err)
		}
	}

	explicit := configPath != ""
	if !explicit {
		configPath = DefaultPath()
	}
	if configPath != "" {
		content, err := readConfigFile(configPath)
		switch {
		case err == nil:
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, err
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	for key, v := range overrides {
		if err := k.Set(key, v); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// envKey maps OBJINDEX_SCRATCH_DIR to scratch.dir and OBJINDEX_MAX_SIZE_MB
// to max_size_mb.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

// Validate checks the settings that do not depend on a particular run.
// Input and output roots are checked by RunConfig.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("%w: log: %v", types.ErrInvalidConfig, err)
	}
	if c.MaxSizeMB <= 0 {
		return fmt.Errorf("%w: max_size_mb must be > 0", types.ErrInvalidConfig)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: workers must be > 0", types.ErrInvalidConfig)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max_attempts must be >= 1", types.ErrInvalidConfig)
	}
	if c.Scratch.Multiplier < 0 {
		return fmt.Errorf("%w: scratch.multiplier must be >= 0", types.ErrInvalidConfig)
	}
	return nil
}

// RunConfig returns the validated run configuration with paths made
// absolute.
func (c *Config) RunConfig() (*types.RunConfig, error) {
	rc := &types.RunConfig{
		MaxSizeMB:            c.MaxSizeMB,
		Workers:              c.Workers,
		Reversed:             c.Reversed,
		ScratchMultiplier:    c.Scratch.Multiplier,
		ExtraExcludeSuffixes: c.ExcludeSuffixes,
		MaxAttempts:          c.MaxAttempts,
		IndexSuffix:          c.IndexSuffix,
	}

	var err error
	if rc.InputRoot, err = absPath(c.InputRoot); err != nil {
		return nil, err
	}
	if rc.OutputRoot, err = absPath(c.OutputRoot); err != nil {
		return nil, err
	}
	if rc.ScratchDir, err = absPath(c.Scratch.Dir); err != nil {
		return nil, err
	}

	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return rc, nil
}

// LedgerPath returns the expanded ledger path, or "" when disabled.
func (c *Config) LedgerPath() (string, error) {
	return absPath(c.Ledger.Path)
}

// absPath expands a leading ~ and makes path absolute. Empty stays empty.
func absPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}

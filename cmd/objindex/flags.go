package main

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/dshills/objindex/internal/config"
	"github.com/dshills/objindex/internal/logging"
	"github.com/dshills/objindex/internal/metrics"
	"github.com/dshills/objindex/internal/pipeline"
	"github.com/dshills/objindex/internal/storage"
)

// configFlag names the config file flag. It is not a config key.
const configFlag = "config"

// flagKeys maps each config flag onto its koanf key.
var flagKeys = map[string]string{
	"input":              "input_root",
	"output":             "output_root",
	"max-size-mb":        "max_size_mb",
	"workers":            "workers",
	"reversed":           "reversed",
	"exclude":            "exclude_suffixes",
	"max-attempts":       "max_attempts",
	"index-suffix":       "index_suffix",
	"engine":             "engine",
	"scratch-dir":        "scratch.dir",
	"scratch-multiplier": "scratch.multiplier",
	"ledger":             "ledger.path",
	"metrics-file":       "metrics.textfile",
	"log-level":          "log.level",
	"log-format":         "log.format",
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String(configFlag, "", "config file (default ~/.config/objindex/config.yaml)")
	fs.StringP("input", "i", "", "input root containing project directories")
	fs.StringP("output", "o", "", "output root for index archives")
	fs.Float64("max-size-mb", 500, "skip objects larger than this many MiB")
	fs.IntP("workers", "j", 0, "parallel indexing jobs (default number of CPUs)")
	fs.Bool("reversed", false, "dispatch projects in descending name order")
	fs.StringSlice("exclude", nil, "file name suffixes to skip, in addition to engine sidecars")
	fs.Int("max-attempts", 1, "attempts per job before it is reported failed")
	fs.String("index-suffix", "", "suffix appended to archive names (default .zip)")
	fs.StringArray("engine", nil, "external engine argv, one flag per argument")
	fs.String("scratch-dir", "", "engine scratch directory")
	fs.Float64("scratch-multiplier", 2, "scratch bytes required per worker, as a multiple of --max-size-mb")
	fs.String("ledger", "", "run ledger database path, \"off\" disables it")
	fs.String("metrics-file", "", "write Prometheus metrics to this textfile after each run")
	fs.String("log-level", "", "log level (trace, debug, info, warn, error)")
	fs.String("log-format", "", "log format (json, console)")
}

// flagOverrides returns the koanf overrides for the flags the user set.
// Unset flags leave the file, environment and defaults in charge.
func flagOverrides(fs *pflag.FlagSet) (map[string]any, error) {
	overrides := make(map[string]any)
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed || err != nil {
			return
		}
		var v any
		switch f.Value.Type() {
		case "string":
			v, err = fs.GetString(f.Name)
		case "int":
			v, err = fs.GetInt(f.Name)
		case "float64":
			v, err = fs.GetFloat64(f.Name)
		case "bool":
			v, err = fs.GetBool(f.Name)
		case "stringSlice":
			v, err = fs.GetStringSlice(f.Name)
		case "stringArray":
			v, err = fs.GetStringArray(f.Name)
		default:
			err = fmt.Errorf("unsupported flag type %s for --%s", f.Value.Type(), f.Name)
		}
		if err == nil {
			overrides[key] = v
		}
	})
	if err != nil {
		return nil, err
	}

	if path, ok := overrides["ledger.path"]; ok && path == "off" {
		overrides["ledger.path"] = ""
	}
	return overrides, nil
}

// app holds what every command needs.
type app struct {
	config *config.Config
	logger *logging.Logger
	ledger storage.Storage // nil when disabled
	runner *pipeline.Runner
}

// setup loads configuration and builds the shared components.
func setup(fs *pflag.FlagSet) (*app, error) {
	overrides, err := flagOverrides(fs)
	if err != nil {
		return nil, err
	}
	configPath, err := fs.GetString(configFlag)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configPath, overrides)
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{config: cfg, logger: logger}

	ledgerPath, err := cfg.LedgerPath()
	if err != nil {
		return nil, err
	}
	if ledgerPath != "" {
		s, err := storage.NewSQLiteStorage(ledgerPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		a.ledger = s
	}

	var m *metrics.Metrics
	if cfg.Metrics.Textfile != "" {
		m = metrics.New()
	}
	a.runner = pipeline.NewRunner(pipeline.Options{
		Engine:          cfg.Engine,
		Ledger:          a.ledger,
		Metrics:         m,
		MetricsTextfile: cfg.Metrics.Textfile,
		Logger:          logger,
	})
	return a, nil
}

func (a *app) Close() {
	if a.ledger != nil {
		_ = a.ledger.Close()
	}
	_ = a.logger.Sync()
}

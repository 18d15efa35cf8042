// Package logging provides structured logging for objindex.
//
// The package wraps Zap with context-aware methods so that every line logged
// during a run carries the run ID without threading a child logger through
// every component:
//
//	ctx = logging.WithRunID(ctx, runID)
//	logger.Info(ctx, "planning complete", zap.Int("planned", n))
//
// Output is JSON by default (one object per line, ISO8601 timestamps) or a
// human readable console format:
//
//	cfg := logging.NewDefaultConfig()
//	cfg.Format = "console"
//	logger, err := logging.NewLogger(cfg)
//
// Tests use NewTestLogger, which records entries in memory for assertions.
package logging

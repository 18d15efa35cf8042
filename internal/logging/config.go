package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  string            `koanf:"level"`
	Format string            `koanf:"format"`
	Caller bool              `koanf:"caller"`
	Fields map[string]string `koanf:"fields"`
}

// NewDefaultConfig returns config with production defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Caller: false,
		Fields: map[string]string{
			"service": "objindex",
		},
	}
}

// Validate checks config for errors.
func (c *Config) Validate() error {
	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("format must be 'json' or 'console', got %q", c.Format)
	}
	if _, err := LevelFromString(c.Level); err != nil {
		return fmt.Errorf("invalid level %q: %w", c.Level, err)
	}
	for k := range c.Fields {
		if k == "" {
			return fmt.Errorf("field key cannot be empty")
		}
	}
	return nil
}

// zapLevel returns the parsed level. Validate must have succeeded.
func (c *Config) zapLevel() zapcore.Level {
	l, _ := LevelFromString(c.Level)
	return l
}

// sink is where log lines go. Logs share stderr with the progress bar so
// stdout stays free for command output and the MCP protocol.
var sink zapcore.WriteSyncer = zapcore.Lock(os.Stderr)

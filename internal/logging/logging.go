// Package logging builds the zap logger used across herald.
package logging

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Output formats.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// ErrInvalidFormat is returned for an unknown output format.
var ErrInvalidFormat = errors.New("invalid log format")

// Settings selects the level and encoding of the logger.
type Settings struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// DefaultSettings returns info-level JSON logging.
func DefaultSettings() Settings {
	return Settings{Level: "info", Format: FormatJSON}
}

// ParseLevel parses debug, info, warn or error.
func ParseLevel(s string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// Validate checks the level and format.
func (s Settings) Validate() error {
	if _, err := ParseLevel(s.Level); err != nil {
		return err
	}
	switch strings.ToLower(s.Format) {
	case "", FormatJSON, FormatConsole:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFormat, s.Format)
	}
}

// New builds a logger writing to stderr. JSON output uses the production
// encoder; console output uses the development encoder with colored levels.
func New(s Settings) (*zap.Logger, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	lvl, _ := ParseLevel(s.Level)

	var cfg zap.Config
	if strings.ToLower(s.Format) == FormatConsole {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	return cfg.Build()
}

// Must is New that panics on error.
func Must(s Settings) *zap.Logger {
	l, err := New(s)
	if err != nil {
		panic(err)
	}
	return l
}

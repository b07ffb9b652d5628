// Package logging is the structured logger every pipeline stage takes.
// Only this package imports zap; components see the Logger interface.
package logging

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/turtacn/lsoma/pkg/errors"
)

// Level names accepted by LogConfig.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Formats accepted by LogConfig.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Logger is what components log through.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal exits the process after logging; main only.
	Fatal(msg string, fields ...Field)

	With(fields ...Field) Logger
	// Named appends name to the logger name with a '.' separator.
	Named(name string) Logger
	Sync() error
}

// LogConfig is the "log" section of the configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	// OutputPaths are zap sink URLs or file paths; results go to stdout, so
	// entries default to stderr.
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate rejects unknown levels and formats.  Empty values mean the
// defaults.
func (c LogConfig) Validate() error {
	if _, err := ParseLevel(c.Level); err != nil {
		return err
	}
	switch c.Format {
	case "", FormatJSON, FormatConsole:
		return nil
	}
	return errors.New(errors.ErrCodeConfigInvalid, "unknown log format").WithDetailf("format=%s", c.Format)
}

// ParseLevel maps a level name, case-insensitively, to a zap level.  The
// empty name is info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case LevelDebug:
		return zapcore.DebugLevel, nil
	case "", LevelInfo:
		return zapcore.InfoLevel, nil
	case LevelWarn:
		return zapcore.WarnLevel, nil
	case LevelError:
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, errors.New(errors.ErrCodeConfigInvalid, "unknown log level").WithDetailf("level=%s", s)
}

// NewLogger builds a zap logger writing ISO-8601 timestamps under "ts".
func NewLogger(cfg LogConfig) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputPaths == nil {
		cfg.OutputPaths = []string{"stderr"}
	}
	if len(cfg.OutputPaths) == 0 {
		return nil, errors.New(errors.ErrCodeConfigInvalid, "log output_paths is empty")
	}
	if len(cfg.ErrorOutputPaths) == 0 {
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	console := cfg.Format == FormatConsole
	enc := zap.NewProductionEncoderConfig()
	encoding := FormatJSON
	if console {
		enc = zap.NewDevelopmentEncoderConfig()
		encoding = FormatConsole
	}
	enc.TimeKey = "ts"
	enc.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      console,
		Encoding:         encoding,
		EncoderConfig:    enc,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
	}.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "building logger")
	}
	return &zapLogger{z: z}, nil
}

// NewLoggerFromCore wraps core, typically an observer or buffer in tests.
func NewLoggerFromCore(core zapcore.Core) Logger {
	return &zapLogger{z: zap.New(core, zap.AddCallerSkip(1))}
}

type zapLogger struct{ z *zap.Logger }

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZap(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZap(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZap(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, toZap(fields)...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, toZap(fields)...) }
func (l *zapLogger) With(fields ...Field) Logger       { return &zapLogger{z: l.z.With(toZap(fields)...)} }
func (l *zapLogger) Named(name string) Logger          { return &zapLogger{z: l.z.Named(name)} }
func (l *zapLogger) Sync() error                       { return l.z.Sync() }

type nopLogger struct{}

// NewNopLogger discards everything.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...Field) {}
func (nopLogger) Info(string, ...Field)  {}
func (nopLogger) Warn(string, ...Field)  {}
func (nopLogger) Error(string, ...Field) {}
func (nopLogger) Fatal(string, ...Field) {}
func (n nopLogger) With(...Field) Logger { return n }
func (n nopLogger) Named(string) Logger  { return n }
func (nopLogger) Sync() error            { return nil }

var (
	defaultMu sync.RWMutex
	current   Logger = nopLogger{}
)

// SetDefault installs l as the process logger; nil is ignored.
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	current = l
}

// Default returns the process logger, a no-op until SetDefault.
func Default() Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return current
}

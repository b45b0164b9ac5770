// Package logging wraps zap with console+file output, log rotation and
// automatic redaction of API keys.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls how NewLogger builds its cores.
type Config struct {
	// Development selects colored console output and, with Level unset,
	// debug verbosity.
	Development bool

	// Level overrides the mode's default minimum level.
	Level *zapcore.Level

	// FilePath is the rotated JSON log file. Empty keeps logs on the console.
	FilePath string
	File     FileWriterConfig

	// Console replaces stdout.
	Console zapcore.WriteSyncer
}

func (c Config) level() zapcore.Level {
	switch {
	case c.Level != nil:
		return *c.Level
	case c.Development:
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func (c Config) fileSink() (zapcore.WriteSyncer, error) {
	if c.FilePath == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(c.FilePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rotation := c.File
	if rotation == (FileWriterConfig{}) {
		rotation = DefaultFileWriterConfig()
	}
	return NewFileWriterWithConfig(c.FilePath, rotation), nil
}

// Logger is the service-wide structured logger. It tees to the console and
// the rotated file (MultiCore, FileWriter) and runs every field through the
// sensitive filter before it is encoded, so API keys and their hashes never
// reach either sink.
//
//	logger, err := logging.NewLogger(logging.Config{Development: true, FilePath: "logs/stylizer.log"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	logger.Named("api").Info("listening", zap.String("addr", addr))
type Logger struct {
	zap  *zap.Logger
	dev  bool
	file string
}

// NewLogger builds a Logger from cfg, creating the log directory if needed.
func NewLogger(cfg Config) (*Logger, error) {
	console := cfg.Console
	if console == nil {
		console = zapcore.Lock(os.Stdout)
	}
	file, err := cfg.fileSink()
	if err != nil {
		return nil, err
	}

	z := zap.New(NewMultiCore(cfg.level(), console, file, cfg.Development),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)
	return &Logger{zap: z, dev: cfg.Development, file: cfg.FilePath}, nil
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return FromZap(zap.NewNop())
}

// FromZap wraps z, typically an observer-backed logger in tests.
func FromZap(z *zap.Logger) *Logger {
	return &Logger{zap: z}
}

func (l *Logger) derive(z *zap.Logger) *Logger {
	return &Logger{zap: z, dev: l.dev, file: l.file}
}

// Sync flushes buffered entries. It is safe on a nil Logger.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, redactFields(fields)...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, redactFields(fields)...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, redactFields(fields)...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, redactFields(fields)...) }

// Infow logs loosely typed key/value pairs, redacting values whose key is
// sensitive.
//
//	logger.Infow("upload stored", "path", path, "bytes", n)
func (l *Logger) Infow(msg string, keysAndValues ...any) {
	l.zap.Sugar().Infow(msg, redactKeysAndValues(keysAndValues)...)
}

// With returns a child that adds fields to every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return l.derive(l.zap.With(redactFields(fields)...))
}

// Named returns a child scoped to one subsystem, e.g. "api" or "history".
func (l *Logger) Named(name string) *Logger {
	return l.derive(l.zap.Named(name))
}

// Zap exposes the underlying logger for packages that take a *zap.Logger.
// Fields logged through it skip redaction.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

func (l *Logger) IsDevelopment() bool { return l.dev }

// LogFilePath is the rotated file, or "" when logging to the console only.
func (l *Logger) LogFilePath() string { return l.file }

func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		switch {
		case IsSensitiveField(f.Key):
			out[i] = zap.String(f.Key, RedactedPlaceholder)
		case f.Type == zapcore.StringType:
			out[i] = zap.String(f.Key, RedactSensitiveData(f.String))
		default:
			out[i] = f
		}
	}
	return out
}

// redactKeysAndValues treats even positions as keys and odd ones as values.
func redactKeysAndValues(kv []any) []any {
	out := append([]any(nil), kv...)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if IsSensitiveField(key) {
			out[i+1] = RedactedPlaceholder
		} else if s, ok := out[i+1].(string); ok {
			out[i+1] = RedactSensitiveData(s)
		}
	}
	return out
}

package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// bufferSyncer is a concurrency-safe in-memory WriteSyncer.
type bufferSyncer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *bufferSyncer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *bufferSyncer) Sync() error { return nil }

func (b *bufferSyncer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func readJSONLines(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("log line is not JSON: %q", scanner.Text())
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestNewLogger_WritesConsoleAndFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "stylizer.log")
	console := &bufferSyncer{}

	logger, err := NewLogger(Config{Development: false, FilePath: logPath, Console: console})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("server started", zap.Int("port", 5000))
	logger.Debug("hidden at info level")
	_ = logger.Sync()

	if !strings.Contains(console.String(), `"message":"server started"`) {
		t.Errorf("console output missing JSON entry: %s", console.String())
	}

	entries := readJSONLines(t, logPath)
	if len(entries) != 1 {
		t.Fatalf("expected 1 file entry, got %d", len(entries))
	}
	if entries[0][FieldMessage] != "server started" || entries[0]["port"] != float64(5000) {
		t.Errorf("unexpected entry %v", entries[0])
	}
	if entries[0][FieldLevel] != "info" {
		t.Errorf("level = %v", entries[0][FieldLevel])
	}
	if logger.LogFilePath() != logPath {
		t.Errorf("LogFilePath() = %q", logger.LogFilePath())
	}
}

func TestNewLogger_DevelopmentIsDebugAndReadable(t *testing.T) {
	console := &bufferSyncer{}
	logger, err := NewLogger(Config{Development: true, Console: console})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Debug("conditioning ready", zap.Int("width", 1365))

	out := console.String()
	if !strings.Contains(out, "conditioning ready") {
		t.Errorf("debug entry missing: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("development console output should not be JSON: %q", out)
	}
	if !logger.IsDevelopment() {
		t.Error("IsDevelopment() = false")
	}
}

func TestNewLogger_ExplicitLevel(t *testing.T) {
	console := &bufferSyncer{}
	level := zapcore.WarnLevel
	logger, err := NewLogger(Config{Development: true, Level: &level, Console: console})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept")

	out := console.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "kept") {
		t.Errorf("level not applied: %q", out)
	}
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core))

	logger.Info("auth configured",
		zap.String("api_key", "super-secret-value"),
		zap.String("note", "header x-api-key: abcdefgh12345"),
		zap.String("prompt", "a red barn"),
	)
	logger.Infow("hash loaded", "API_KEY_HASH", "$2a$10$abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	fields := entries[0].ContextMap()
	if fields["api_key"] != RedactedPlaceholder {
		t.Errorf("api_key not redacted: %v", fields["api_key"])
	}
	if strings.Contains(fields["note"].(string), "abcdefgh12345") {
		t.Errorf("header value leaked: %v", fields["note"])
	}
	if fields["prompt"] != "a red barn" {
		t.Errorf("prompt should be untouched: %v", fields["prompt"])
	}
	if entries[1].ContextMap()["API_KEY_HASH"] != RedactedPlaceholder {
		t.Errorf("hash not redacted: %v", entries[1].ContextMap())
	}
}

func TestLogger_WithAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := FromZap(zap.New(core)).Named("http").With(zap.String("generation_id", "g-1"))

	logger.Info("request complete")

	entry := logs.All()[0]
	if entry.LoggerName != "http" {
		t.Errorf("LoggerName = %q", entry.LoggerName)
	}
	if entry.ContextMap()["generation_id"] != "g-1" {
		t.Errorf("missing inherited field: %v", entry.ContextMap())
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Info("ignored")
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}

	var nilLogger *Logger
	if err := nilLogger.Sync(); err != nil {
		t.Errorf("nil Sync() error = %v", err)
	}
}

func TestNewMultiCore_ConsoleOnly(t *testing.T) {
	console := &bufferSyncer{}
	logger := zap.New(NewMultiCore(zapcore.InfoLevel, console, nil, false))
	logger.Info("console only")

	if !strings.Contains(console.String(), "console only") {
		t.Errorf("missing entry: %q", console.String())
	}
}

func TestApplyFileWriterDefaults(t *testing.T) {
	cfg := applyFileWriterDefaults(FileWriterConfig{MaxSizeMB: 10})
	if cfg.MaxSizeMB != 10 || cfg.MaxBackups != DefaultMaxBackups || cfg.MaxAgeDays != DefaultMaxAgeDays {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestGenerationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	logger.Info("generation complete", Generation(GenerationFields{
		ID:       "abc",
		Style:    "animated",
		Width:    1365,
		Height:   768,
		Base:     1500 * time.Millisecond,
		Duration: 3 * time.Second,
		Status:   "success",
	}))

	gen, ok := logs.All()[0].ContextMap()["generation"].(map[string]interface{})
	if !ok {
		t.Fatalf("generation field not an object: %v", logs.All()[0].ContextMap())
	}
	if gen["id"] != "abc" || gen["style"] != "animated" || gen["status"] != "success" {
		t.Errorf("unexpected fields %v", gen)
	}
	if gen["base_ms"] != int64(1500) || gen["duration_ms"] != int64(3000) {
		t.Errorf("durations not in ms: %v", gen)
	}
	if _, present := gen["failure_kind"]; present {
		t.Error("empty failure_kind should be omitted")
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stylizer/core"
	"stylizer/db"
	"stylizer/metrics"
	"stylizer/sdruntime"
	"stylizer/shutdown"
)

const testKey = "test-api-key"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	mu      sync.Mutex
	result  *sdruntime.Result
	err     error
	calls   int
	lastReq sdruntime.Request
}

func (g *fakeGenerator) Generate(_ context.Context, req sdruntime.Request) (*sdruntime.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

func (g *fakeGenerator) Waiting() int64 { return 2 }
func (g *fakeGenerator) Busy() bool     { return true }

type fakePipelines struct{}

func (fakePipelines) State() sdruntime.State   { return sdruntime.StateReady }
func (fakePipelines) Device() sdruntime.Device { return sdruntime.Device("cuda") }
func (fakePipelines) Loads() int64             { return 1 }

type fakeHistory struct {
	mu      sync.Mutex
	records []db.GenerationRecord
}

func (h *fakeHistory) InsertGeneration(_ context.Context, rec db.GenerationRecord) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return int64(len(h.records)), nil
}

func (h *fakeHistory) ListRecent(_ context.Context, limit int) ([]db.GenerationRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]db.GenerationRecord, 0, limit)
	for i := len(h.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, h.records[i])
	}
	return out, nil
}

type fakeOperations struct {
	shuttingDown bool
}

func (o *fakeOperations) WrapOperation(ctx context.Context, _ string, fn func(context.Context) error) error {
	if o.shuttingDown {
		return shutdown.ErrTrackerClosed
	}
	return fn(ctx)
}

func (o *fakeOperations) IsShuttingDown() bool { return o.shuttingDown }

type testEnv struct {
	server    *Server
	cfg       *core.Config
	generator *fakeGenerator
	history   *fakeHistory
	metrics   *metrics.Store
	ops       *fakeOperations
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	cfg := &core.Config{
		ServerIP:         "127.0.0.1",
		ServerPort:       0,
		MaxContentLength: 1 << 20,
		CertsFolder:      filepath.Join(root, "certs"),
		InputFolder:      filepath.Join(root, "in"),
		OutputFolder:     filepath.Join(root, "out"),
		AnimationFolder:  filepath.Join(root, "anim"),
		Defaults:         sdruntime.DefaultRequest(),
	}
	require.NoError(t, cfg.EnsureFolders())

	verifier, err := NewKeyVerifier(testKey, "")
	require.NoError(t, err)

	env := &testEnv{
		cfg: cfg,
		generator: &fakeGenerator{result: &sdruntime.Result{
			Image:          solidImage(8, 8, color.RGBA{R: 200, A: 255}),
			Width:          8,
			Height:         8,
			Prompt:         "a cat, animated style",
			NegativePrompt: "blurry",
			Seed:           42,
			Timings:        sdruntime.Timings{Wait: time.Millisecond, Total: 5 * time.Millisecond},
		}},
		history: &fakeHistory{},
		metrics: metrics.NewStore(metrics.StoreConfig{Version: "1.0.0"}, time.Now()),
		ops:     &fakeOperations{},
	}

	env.server, err = NewServer(cfg, Deps{
		Generator:  env.generator,
		Pipelines:  fakePipelines{},
		Metrics:    env.metrics,
		Verifier:   verifier,
		Limiter:    NewFailureLimiter(3, time.Minute, time.Minute),
		History:    env.history,
		Operations: env.ops,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return env
}

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solidImage(16, 16, color.RGBA{B: 200, A: 255})))
	return buf.Bytes()
}

// multipartBody builds a /generate body. An empty filename omits the
// image part.
func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" || data != nil {
		part, err := w.CreateFormFile(FieldImage, filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func (env *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func generateRequest(t *testing.T, filename string, data []byte, fields map[string]string) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, filename, data, fields)
	req := httptest.NewRequest(http.MethodPost, "/generate", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(APIKeyHeader, testKey)
	return req
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestNewServer_RequiresDeps(t *testing.T) {
	_, err := NewServer(nil, Deps{}, nil)
	assert.Error(t, err)

	_, err = NewServer(&core.Config{}, Deps{}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	env.ops.shuttingDown = true
	rec = env.do(t, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGenerate_Auth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("missing key", func(t *testing.T) {
		req := generateRequest(t, "in.png", pngBytes(t), map[string]string{FieldPrompt: "a cat"})
		req.Header.Del(APIKeyHeader)

		rec := env.do(t, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "API key missing", errorBody(t, rec))
	})

	t.Run("invalid key", func(t *testing.T) {
		req := generateRequest(t, "in.png", pngBytes(t), map[string]string{FieldPrompt: "a cat"})
		req.Header.Set(APIKeyHeader, "not-the-key")

		rec := env.do(t, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Invalid API key", errorBody(t, rec))
	})

	t.Run("blocked after repeated failures", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			req := generateRequest(t, "in.png", pngBytes(t), map[string]string{FieldPrompt: "a cat"})
			req.Header.Set(APIKeyHeader, "wrong")
			env.do(t, req)
		}

		rec := env.do(t, generateRequest(t, "in.png", pngBytes(t), map[string]string{FieldPrompt: "a cat"}))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	assert.Zero(t, env.generator.calls)
}

func TestGenerate_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		fields   map[string]string
		want     string
	}{
		{"no image part", "", nil, map[string]string{FieldPrompt: "a cat"}, "No image part"},
		{"part without filename", "", []byte("x"), map[string]string{FieldPrompt: "a cat"}, "No image part"},
		{"bad extension", "notes.txt", []byte("x"), map[string]string{FieldPrompt: "a cat"}, "Invalid file type"},
		{"no prompt", "in.png", []byte("x"), map[string]string{}, "No prompt provided"},
		{"sensitivity out of range", "in.png", []byte("x"), map[string]string{FieldPrompt: "a cat", FieldSensitivity: "1.5"}, ""},
		{"bad steps", "in.png", []byte("x"), map[string]string{FieldPrompt: "a cat", FieldSteps: "many"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rec := env.do(t, generateRequest(t, tt.filename, tt.data, tt.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			if tt.want != "" {
				assert.Equal(t, tt.want, errorBody(t, rec))
			}
			assert.Zero(t, env.generator.calls)
		})
	}
}

func TestGenerate_TooLarge(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.MaxContentLength = 64
	env.server.router = env.server.routes()

	rec := env.do(t, generateRequest(t, "in.png", pngBytes(t), map[string]string{FieldPrompt: "a cat"}))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, "File too large", errorBody(t, rec))
}

func TestGenerate_Success(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, generateRequest(t, "My Photo.PNG", pngBytes(t), map[string]string{
		FieldPrompt:      "a cat",
		FieldStyle:       "animated",
		FieldSensitivity: "0.4",
		FieldSeed:        "42",
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), OutputFilename)
	id := rec.Header().Get(GenerationIDHeader)
	assert.NotEmpty(t, id)
	assert.Empty(t, rec.Header().Get(AnimationFileHeader))

	_, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	assert.NoError(t, err)

	assert.Equal(t, "a cat", env.generator.lastReq.Prompt)
	assert.Equal(t, "animated", env.generator.lastReq.Style)
	assert.InDelta(t, 0.4, env.generator.lastReq.ConditioningScale, 1e-9)
	assert.NotEmpty(t, env.generator.lastReq.ImageData)

	outputs, _ := filepath.Glob(filepath.Join(env.cfg.OutputFolder, "*.png"))
	assert.Len(t, outputs, 1)

	uploads, _ := filepath.Glob(filepath.Join(env.cfg.InputFolder, shutdown.UploadPattern))
	assert.Empty(t, uploads, "upload should be removed after the request")

	m := env.metrics.GetGenerationMetrics()
	assert.EqualValues(t, 1, m.TotalSuccess)

	require.Len(t, env.history.records, 1)
	hist := env.history.records[0]
	assert.Equal(t, id, hist.GenerationID)
	assert.Equal(t, db.StatusSuccess, hist.Status)
	assert.Equal(t, "a cat, animated style", hist.Prompt)
	assert.Equal(t, outputs[0], hist.OutputFile)
}

func TestGenerate_OutputNameCollision(t *testing.T) {
	env := newTestEnv(t)
	fixed := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)
	env.server.now = func() time.Time { return fixed }

	for i := 0; i < 2; i++ {
		rec := env.do(t, generateRequest(t, "in.png", pngBytes(t), map[string]string{FieldPrompt: "a cat"}))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	outputs, _ := filepath.Glob(filepath.Join(env.cfg.OutputFolder, "*.png"))
	assert.Len(t, outputs, 2)
	_, err := os.Stat(filepath.Join(env.cfg.OutputFolder, "20260301_123045.png"))
	assert.NoError(t, err)
}

func TestGenerate_Animate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, generateRequest(t, "in.png", pngBytes(t), map[string]string{
		FieldPrompt:  "a cat",
		FieldAnimate: "true",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	name := rec.Header().Get(AnimationFileHeader)
	require.NotEmpty(t, name)
	_, err := os.Stat(filepath.Join(env.cfg.AnimationFolder, name))
	assert.NoError(t, err)
	assert.Equal(t, filepath.Join(env.cfg.AnimationFolder, name), env.history.records[0].AnimationFile)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"not initialized", sdruntime.ErrNotInitialized, http.StatusServiceUnavailable, "initialization"},
		{"invalid params", fmt.Errorf("%w: steps out of range", sdruntime.ErrInvalidParams), http.StatusBadRequest, "invalid_parameter"},
		{"unreadable image", sdruntime.ErrInvalidImage, http.StatusBadRequest, "input_conditioning"},
		{"out of memory", sdruntime.ErrOutOfVRAM, http.StatusInternalServerError, "inference_runtime"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.generator.err = tt.err

			rec := env.do(t, generateRequest(t, "in.png", pngBytes(t), map[string]string{FieldPrompt: "a cat"}))
			assert.Equal(t, tt.code, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(GenerationIDHeader))

			recent := env.metrics.GetRecentGenerations(1)
			require.Len(t, recent, 1)
			assert.Equal(t, metrics.StatusError, recent[0].Status)
			assert.Equal(t, tt.kind, recent[0].FailureKind)

			require.Len(t, env.history.records, 1)
			assert.Equal(t, db.StatusError, env.history.records[0].Status)

			outputs, _ := filepath.Glob(filepath.Join(env.cfg.OutputFolder, "*.png"))
			assert.Empty(t, outputs)
		})
	}
}

func TestGenerate_ShuttingDown(t *testing.T) {
	env := newTestEnv(t)
	env.ops.shuttingDown = true

	rec := env.do(t, generateRequest(t, "in.png", pngBytes(t), map[string]string{FieldPrompt: "a cat"}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "Server is shutting down", errorBody(t, rec))
	assert.Zero(t, env.generator.calls)
}

func TestStatus(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, req).Code)

	req.Header.Set(APIKeyHeader, testKey)
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1.0.0", resp.Version)
	assert.Equal(t, metrics.SystemHealthRunning, resp.Health)
	assert.Equal(t, "ready", resp.Pipeline.State)
	assert.Equal(t, "cuda", resp.Pipeline.Device)
	assert.True(t, resp.Busy)
	assert.EqualValues(t, 2, resp.Waiting)
}

func TestGenerations(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		rec := env.do(t, generateRequest(t, "in.png", pngBytes(t), map[string]string{FieldPrompt: "a cat"}))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/generations?limit=2", nil)
	req.Header.Set(APIKeyHeader, testKey)
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Source      string                `json:"source"`
		Generations []db.GenerationRecord `json:"generations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "database", resp.Source)
	assert.Len(t, resp.Generations, 2)

	req = httptest.NewRequest(http.MethodGet, "/api/generations?limit=zero", nil)
	req.Header.Set(APIKeyHeader, testKey)
	assert.Equal(t, http.StatusBadRequest, env.do(t, req).Code)
}

func TestGenerations_MemoryFallback(t *testing.T) {
	env := newTestEnv(t)
	env.server.deps.History = nil
	env.metrics.RecordGeneration(metrics.GenerationRecord{ID: "abc", Status: metrics.StatusSuccess})

	req := httptest.NewRequest(http.MethodGet, "/api/generations", nil)
	req.Header.Set(APIKeyHeader, testKey)
	rec := env.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Source      string                     `json:"source"`
		Generations []metrics.GenerationRecord `json:"generations"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "memory", resp.Source)
	require.Len(t, resp.Generations, 1)
	assert.Equal(t, "abc", resp.Generations[0].ID)
}

package sdruntime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"
)

// ModelConfig names the weights the runtime loads for a pipeline pair.
type ModelConfig struct {
	BaseModel       string `json:"base_model"`
	ControlNetModel string `json:"controlnet_model"`
	VAEModel        string `json:"vae_model"`
	RefinerModel    string `json:"refiner_model"`
	SchedulerModel  string `json:"scheduler_model"`
	DType           string `json:"dtype"`
}

// RemoteRuntime talks to a diffusers worker over HTTP. Images travel as
// base64-encoded PNG inside JSON bodies.
type RemoteRuntime struct {
	baseURL string
	client  *http.Client
	models  ModelConfig
}

// NewRemoteRuntime creates a client for the worker at baseURL. A nil client
// gets a default with the given timeout.
func NewRemoteRuntime(baseURL string, models ModelConfig, client *http.Client, timeout time.Duration) *RemoteRuntime {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &RemoteRuntime{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		models:  models,
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type deviceResponse struct {
	Accelerator string `json:"accelerator"`
	Name        string `json:"name"`
}

type loadRequest struct {
	ModelConfig
	Device string `json:"device"`
}

type loadResponse struct {
	PipelineID string `json:"pipeline_id"`
	Device     string `json:"device"`
}

type baseRequest struct {
	Prompt             string  `json:"prompt"`
	NegativePrompt     string  `json:"negative_prompt"`
	Image              string  `json:"image"`
	ConditioningScale  float64 `json:"controlnet_conditioning_scale"`
	GuidanceScale      float64 `json:"guidance_scale"`
	ControlGuidanceEnd float64 `json:"control_guidance_end"`
	Width              int     `json:"width"`
	Height             int     `json:"height"`
	Steps              int     `json:"num_inference_steps"`
	Seed               int64   `json:"seed"`
}

type refineRequest struct {
	Prompt         string   `json:"prompt"`
	NegativePrompt string   `json:"negative_prompt"`
	Images         []string `json:"images"`
	Steps          int      `json:"num_inference_steps"`
	Seed           int64    `json:"seed"`
}

type imagesResponse struct {
	Images []string `json:"images"`
}

// Ping checks if the runtime is healthy.
func (r *RemoteRuntime) Ping(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, "/health", nil, nil)
}

// WaitUntilReady polls the health endpoint until it answers or ctx ends.
func (r *RemoteRuntime) WaitUntilReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := r.Ping(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
		case <-ticker.C:
		}
	}
}

// CUDAAvailable implements DeviceProbe.
func (r *RemoteRuntime) CUDAAvailable(ctx context.Context) (bool, error) {
	var resp deviceResponse
	if err := r.do(ctx, http.MethodGet, "/v1/device", nil, &resp); err != nil {
		return false, err
	}
	return strings.EqualFold(resp.Accelerator, string(DeviceCUDA)), nil
}

// Load implements Loader: it asks the runtime to build the base, ControlNet,
// VAE, scheduler and refiner stack on device.
func (r *RemoteRuntime) Load(ctx context.Context, device Device) (*ModelPair, error) {
	var resp loadResponse
	err := r.do(ctx, http.MethodPost, "/v1/pipelines", loadRequest{ModelConfig: r.models, Device: string(device)}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.PipelineID == "" {
		return nil, errors.New("runtime returned an empty pipeline id")
	}

	if resp.Device != "" {
		device = Device(resp.Device)
	}
	handle := &remotePipeline{runtime: r, id: resp.PipelineID}
	return &ModelPair{
		Base:     handle,
		Refiner:  handle,
		Releaser: handle,
		Device:   device,
	}, nil
}

var _ Loader = (*RemoteRuntime)(nil).Load

// remotePipeline is one loaded pipeline pair on the runtime.
type remotePipeline struct {
	runtime *RemoteRuntime
	id      string
}

func (p *remotePipeline) path(op string) string {
	return "/v1/pipelines/" + p.id + "/" + op
}

func (p *remotePipeline) GenerateBase(ctx context.Context, in BaseInput) ([]image.Image, error) {
	cond, err := encodeImageBase64(in.Conditioning)
	if err != nil {
		return nil, err
	}

	var resp imagesResponse
	err = p.runtime.do(ctx, http.MethodPost, p.path("base"), baseRequest{
		Prompt:             in.Prompt,
		NegativePrompt:     in.NegativePrompt,
		Image:              cond,
		ConditioningScale:  in.ConditioningScale,
		GuidanceScale:      in.GuidanceScale,
		ControlGuidanceEnd: in.ControlGuidanceEnd,
		Width:              in.Width,
		Height:             in.Height,
		Steps:              in.Steps,
		Seed:               in.Seed,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return decodeImages(resp.Images)
}

func (p *remotePipeline) Refine(ctx context.Context, in RefineInput) (image.Image, error) {
	encoded := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		s, err := encodeImageBase64(img)
		if err != nil {
			return nil, err
		}
		encoded = append(encoded, s)
	}

	var resp imagesResponse
	err := p.runtime.do(ctx, http.MethodPost, p.path("refine"), refineRequest{
		Prompt:         in.Prompt,
		NegativePrompt: in.NegativePrompt,
		Images:         encoded,
		Steps:          in.Steps,
		Seed:           in.Seed,
	}, &resp)
	if err != nil {
		return nil, err
	}

	images, err := decodeImages(resp.Images)
	if err != nil {
		return nil, err
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: refiner returned no images", ErrGenerationFailed)
	}
	return images[0], nil
}

func (p *remotePipeline) ReleaseMemory(ctx context.Context) error {
	return p.runtime.do(ctx, http.MethodPost, p.path("release"), nil, nil)
}

func decodeImages(encoded []string) ([]image.Image, error) {
	images := make([]image.Image, 0, len(encoded))
	for i, s := range encoded {
		img, err := decodeImageBase64(s)
		if err != nil {
			return nil, fmt.Errorf("%w: image %d: %w", ErrGenerationFailed, i, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// do sends a JSON request and decodes a JSON response into out (if non-nil).
func (r *RemoteRuntime) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuntimeUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(path, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response from %s: %v", ErrGenerationFailed, path, err)
	}
	return nil
}

// statusError maps a runtime error response onto a sentinel.
func statusError(path string, resp *http.Response) error {
	var er errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(data, &er); err != nil || er.Error == "" {
		er.Error = strings.TrimSpace(string(data))
	}
	msg := fmt.Sprintf("%s returned %d: %s", path, resp.StatusCode, er.Error)

	switch {
	case resp.StatusCode == http.StatusInsufficientStorage || er.Code == "out_of_memory":
		return fmt.Errorf("%w: %s", ErrOutOfVRAM, msg)
	case er.Code == "cuda_unavailable":
		return fmt.Errorf("%w: %s", ErrCUDANotAvailable, msg)
	case resp.StatusCode == http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %s", ErrRuntimeUnavailable, msg)
	case resp.StatusCode == http.StatusNotFound && path == "/v1/pipelines":
		return fmt.Errorf("%w: %s", ErrModelNotFound, msg)
	case resp.StatusCode == http.StatusNotFound:
		// The worker restarted and forgot the pipeline id.
		return fmt.Errorf("%w: %w: %s", ErrRuntimeUnavailable, ErrPipelineLost, msg)
	default:
		return fmt.Errorf("%w: %s", ErrGenerationFailed, msg)
	}
}

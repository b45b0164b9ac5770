package validation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"stylizer/core"
)

// ConnectivityResult is the outcome of one runtime health request.
type ConnectivityResult struct {
	Reachable  bool
	StatusCode int
	Message    string
	Latency    time.Duration
	Error      error
}

// ConnectivityChecker asks the diffusion runtime whether it is serving.
type ConnectivityChecker struct {
	timeout time.Duration
	client  *http.Client
}

// NewConnectivityChecker allows ten seconds per request.
func NewConnectivityChecker() *ConnectivityChecker {
	return &ConnectivityChecker{timeout: 10 * time.Second, client: http.DefaultClient}
}

func (c *ConnectivityChecker) WithTimeout(timeout time.Duration) *ConnectivityChecker {
	c.timeout = timeout
	return c
}

// CheckRuntime calls GET {runtimeURL}/health. A 2xx answer means the worker
// can take pipeline loads; any other status means it is up but not serving.
func (c *ConnectivityChecker) CheckRuntime(ctx context.Context, runtimeURL string) ConnectivityResult {
	if err := core.ValidateRuntimeURL(runtimeURL); err != nil {
		return ConnectivityResult{Message: "Invalid URL format", Error: core.ErrInvalidRuntimeURL(runtimeURL, err.Error())}
	}
	unreachable := func(msg, reason string, latency time.Duration) ConnectivityResult {
		return ConnectivityResult{Message: msg, Latency: latency, Error: core.ErrRuntimeUnreachable(runtimeURL, reason)}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(runtimeURL, "/")+"/health", nil)
	if err != nil {
		return unreachable("Failed to create request", err.Error(), 0)
	}

	began := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(began)
	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return unreachable("Connection timed out", fmt.Sprintf("no answer within %v", c.timeout), latency)
	case err != nil:
		return unreachable("Connection failed", err.Error(), latency)
	}
	resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		res := unreachable(fmt.Sprintf("Runtime not ready (status: %d)", resp.StatusCode), resp.Status, latency)
		res.StatusCode = resp.StatusCode
		return res
	}
	return ConnectivityResult{
		Reachable:  true,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("Runtime healthy (status: %d)", resp.StatusCode),
		Latency:    latency,
	}
}

package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// httpAdapter is the http tool kind: POST {base}/{capability} with a JSON
// body, carrying a per-tool *http.Client whose timeout follows the
// configured request deadline — the same header/bearer-token plumbing the
// teacher's outbound gateway calls use.
type httpAdapter struct {
	baseURL string
	token   string
	headers map[string]string
	client  *http.Client
}

// NewHTTP builds an http adapter. defaultTimeout is used for health
// checks and as the client's base timeout; per-call deadlines still come
// from the request's context.
func NewHTTP(baseURL, token string, headers map[string]string, defaultTimeout time.Duration) Adapter {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &httpAdapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		headers: headers,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

func (h *httpAdapter) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
}

func (h *httpAdapter) Execute(ctx context.Context, req Request) Result {
	start := time.Now()
	body, err := json.Marshal(req.Input)
	if err != nil {
		return Result{OK: false, ErrorCode: ErrExecutionError, Error: err.Error(), Duration: time.Since(start)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/"+req.Capability, bytes.NewReader(body))
	if err != nil {
		return Result{OK: false, ErrorCode: ErrExecutionError, Error: err.Error(), Duration: time.Since(start)}
	}
	h.applyHeaders(httpReq)

	resp, err := h.client.Do(httpReq)
	dur := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return Result{OK: false, ErrorCode: ErrTimeout, Error: err.Error(), Duration: dur}
		}
		return Result{OK: false, ErrorCode: ErrExecutionError, Error: err.Error(), Duration: dur}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		snippet := string(respBody)
		if len(snippet) > 500 {
			snippet = snippet[:500]
		}
		return Result{OK: false, ErrorCode: ErrExecutionError, Error: fmt.Sprintf("http %d: %s", resp.StatusCode, snippet), Duration: dur}
	}

	var data any
	if jsonErr := json.Unmarshal(respBody, &data); jsonErr == nil {
		return Result{OK: true, Data: data, Duration: dur}
	}
	return Result{OK: true, Data: string(respBody), Duration: dur}
}

func (h *httpAdapter) HealthCheck(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+"/health", nil)
	if err != nil {
		return Health{Healthy: false, Message: err.Error()}
	}
	h.applyHeaders(req)
	resp, err := h.client.Do(req)
	if err != nil {
		return Health{Healthy: false, Message: err.Error()}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Health{Healthy: false, Message: fmt.Sprintf("status %d", resp.StatusCode)}
	}
	return Health{Healthy: true, Message: "200"}
}

func (h *httpAdapter) ValidateInput(capability string, input map[string]any) []error {
	return nil
}

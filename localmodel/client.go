// Package localmodel implements the Local Model Service Manager (C3)
// and Local Model Client (C4): lifecycle control and HTTP access for
// a locally running Ollama-compatible inference server.
package localmodel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/pulse/core"
	"github.com/itsneelabh/pulse/execution"
)

const (
	defaultBaseURL            = "http://localhost:11434"
	defaultHealthCheckInterval = 30 * time.Second
	defaultTimeout             = 30 * time.Second
	defaultConnectTimeout      = 5 * time.Second
	// forceCPUThresholdGB forces CPU-only inference below this much free
	// memory, grounded on OllamaClient._should_force_cpu.
	forceCPUThresholdGB = 6.0
)

// Client talks to a single local Ollama-compatible server, grounded on
// original_source/utils/ollama_manager.py's OllamaClient.
type Client struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	forceCPU     bool
	logger       core.Logger

	mu              sync.Mutex
	lastHealthCheck time.Time
	isHealthy       bool
	availableModels []string
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

func WithForceCPU(force bool) ClientOption {
	return func(c *Client) { c.forceCPU = force }
}

func WithClientLogger(logger core.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

func NewClient(memStats MemoryStats, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:      defaultBaseURL,
		defaultModel: "mistral",
		httpClient:   &http.Client{Timeout: defaultTimeout},
		logger:       &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if memStats != nil {
		if free, err := memStats.FreeGB(); err == nil && free < forceCPUThresholdGB {
			c.logger.Warn("localmodel: low memory detected, forcing CPU mode", map[string]interface{}{"free_gb": free})
			c.forceCPU = true
		}
	}
	return c
}

// RefreshModels implements OllamaClient.refresh_models via GET /api/tags.
func (c *Client) RefreshModels(ctx context.Context) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return c.cachedModels()
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("localmodel: refresh_models failed", map[string]interface{}{"error": err.Error()})
		return c.cachedModels()
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.cachedModels()
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return c.cachedModels()
	}

	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}

	c.mu.Lock()
	c.availableModels = names
	c.mu.Unlock()
	return names
}

func (c *Client) cachedModels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.availableModels...)
}

// CheckHealth implements OllamaClient.check_health: a cached
// within-interval result is reused unless force is set, and the probe
// is skipped entirely (returning false) when offlineMode is disabled
// and force is not set — matching the gating semantics in
// check_status()/check_health() (spec.md §4.3 offline gating).
func (c *Client) CheckHealth(ctx context.Context, force bool, offlineMode bool) bool {
	c.mu.Lock()
	now := time.Now()

	if !offlineMode && !force {
		c.lastHealthCheck = now
		c.isHealthy = false
		c.mu.Unlock()
		return false
	}

	if !force && now.Sub(c.lastHealthCheck) < defaultHealthCheckInterval {
		healthy := c.isHealthy
		c.mu.Unlock()
		return healthy
	}
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/version", nil)
	healthy := false
	if err == nil {
		resp, err := c.httpClient.Do(req)
		if err == nil {
			healthy = resp.StatusCode == http.StatusOK
			resp.Body.Close()
		}
	}

	c.mu.Lock()
	c.isHealthy = healthy
	c.lastHealthCheck = time.Now()
	c.mu.Unlock()

	if healthy {
		c.RefreshModels(ctx)
	}
	return healthy
}

type generateRequest struct {
	Model       string                 `json:"model"`
	Prompt      string                 `json:"prompt"`
	System      string                 `json:"system,omitempty"`
	Temperature float32                `json:"temperature"`
	MaxTokens   int                    `json:"max_tokens"`
	Options     map[string]interface{} `json:"options,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// Generate implements OllamaClient.generate via POST /api/generate,
// normalizing success and failure into execution.Outcome so the
// Execution Flow can treat remote and local attempts uniformly.
func (c *Client) Generate(ctx context.Context, model, prompt, systemPrompt string, temperature float32, maxTokens int) (*execution.Outcome, error) {
	reqBody := generateRequest{
		Model:       model,
		Prompt:      prompt,
		System:      systemPrompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}
	if c.forceCPU {
		reqBody.Options = map[string]interface{}{"num_gpu": 0}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &execution.Outcome{
			Success:     false,
			Model:       model,
			Kind:        core.ErrorKindNetwork,
			ErrorDetail: err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &execution.Outcome{Success: false, Model: model, Kind: core.ErrorKindNetwork, ErrorDetail: err.Error()}, nil
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("localmodel: generate failed", map[string]interface{}{"status": resp.StatusCode, "body": string(body)})
		return &execution.Outcome{
			Success:     false,
			Model:       model,
			Kind:        core.ClassifyStatusCode(resp.StatusCode),
			ErrorDetail: string(body),
			StatusCode:  resp.StatusCode,
		}, nil
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return &execution.Outcome{Success: false, Model: model, Kind: core.ErrorKindUnknown, ErrorDetail: err.Error()}, nil
	}

	return &execution.Outcome{
		Success: true,
		Content: parsed.Response,
		Model:   model,
		Usage: core.TokenUsage{
			PromptTokens:     parsed.PromptEvalCount,
			CompletionTokens: parsed.EvalCount,
			TotalTokens:      parsed.PromptEvalCount + parsed.EvalCount,
		},
		ResponseKind: core.ResponseKindLocal,
	}, nil
}

// NormalizeModelName defaults greeting-like "model" values to phi,
// grounded on OllamaManager.generate's defensive input check against
// classifier misroutes that hand a raw user query where a model
// identifier was expected.
func NormalizeModelName(model string) string {
	switch strings.ToLower(strings.TrimSpace(model)) {
	case "hi", "hello", "hey", "what's up", "how are you":
		return "phi"
	default:
		return model
	}
}

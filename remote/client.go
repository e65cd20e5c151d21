// Package remote implements the Remote Aggregator Client (C2): an
// HTTP client for a single upstream aggregator exposing many model
// identifiers behind one /chat/completions endpoint.
package remote

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/pulse/core"
)

const (
	defaultTotalTimeout  = 60 * time.Second
	defaultConnectTimeout = 5 * time.Second
)

// Message is one entry of the ordered {role, content} sequence spec.md §4.2 describes.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseKind is the closed set from spec.md §3's ModelResponse.kind,
// defined in core so execution can tag a synthesized/cached Outcome
// without importing remote.
type ResponseKind = core.ResponseKind

const (
	ResponseKindRemote    = core.ResponseKindRemote
	ResponseKindLocal     = core.ResponseKindLocal
	ResponseKindSimulated = core.ResponseKindSimulated
)

// ModelResponse is spec.md §3's normalized response shape, shared by
// the remote and local clients.
type ModelResponse struct {
	Success     bool
	Content     string
	Model       string
	Kind        ResponseKind
	Usage       core.TokenUsage
	Error       core.ErrorKind
	ErrorDetail string
	ElapsedMS   int64
}

// Client is the Remote Aggregator Client. Grounded on
// ai/client.go's OpenAIClient (request/response shape) and
// ai/providers/base.go's ExecuteWithRetry/HandleError (status-code
// classification), adapted to spec.md's aggregator contract and
// ModelResponse normalization instead of a single-provider AIResponse.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

func NewClient(apiKey, baseURL string, logger core.Logger) *Client {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTotalTimeout,
		},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float32   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type chatResponseError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Type    string `json:"type"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *chatResponseError `json:"error"`
}

// Chat implements spec.md §4.2's chat(model_id, messages, ...) contract.
// Non-streaming path: POST JSON, parse on 200, return a normalized
// ModelResponse. Errors may arrive as HTTP non-200 or as HTTP 200 with
// an embedded {error:{...}} — both are treated as failures (spec.md §6).
func (c *Client) Chat(ctx context.Context, modelID string, messages []Message, temperature float32, maxTokens int) (*ModelResponse, error) {
	start := time.Now()

	reqBody := chatRequest{Model: modelID, Messages: messages, Temperature: temperature, MaxTokens: maxTokens}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("remote: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return &ModelResponse{
			Success:     false,
			Model:       modelID,
			Kind:        ResponseKindRemote,
			Error:       core.ErrorKindNetwork,
			ErrorDetail: err.Error(),
			ElapsedMS:   elapsed,
		}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ModelResponse{
			Success:     false,
			Model:       modelID,
			Kind:        ResponseKindRemote,
			Error:       core.ErrorKindNetwork,
			ErrorDetail: err.Error(),
			ElapsedMS:   elapsed,
		}, nil
	}

	var parsed chatResponse
	_ = json.Unmarshal(body, &parsed)

	if resp.StatusCode != http.StatusOK {
		kind := core.ClassifyStatusCode(resp.StatusCode)
		detail := string(body)
		if parsed.Error != nil && parsed.Error.Message != "" {
			detail = parsed.Error.Message
			if msgKind := core.ClassifyMessage(detail); msgKind != core.ErrorKindUnknown {
				kind = msgKind
			}
		}
		return &ModelResponse{
			Success:     false,
			Model:       modelID,
			Kind:        ResponseKindRemote,
			Error:       kind,
			ErrorDetail: detail,
			ElapsedMS:   elapsed,
		}, nil
	}

	// HTTP 200 with an embedded error object is still a failure (spec.md §6).
	if parsed.Error != nil && parsed.Error.Message != "" {
		kind := core.ClassifyMessage(parsed.Error.Message)
		return &ModelResponse{
			Success:     false,
			Model:       modelID,
			Kind:        ResponseKindRemote,
			Error:       kind,
			ErrorDetail: parsed.Error.Message,
			ElapsedMS:   elapsed,
		}, nil
	}

	if len(parsed.Choices) == 0 {
		return &ModelResponse{
			Success:     false,
			Model:       modelID,
			Kind:        ResponseKindRemote,
			Error:       core.ErrorKindUnknown,
			ErrorDetail: "no choices returned",
			ElapsedMS:   elapsed,
		}, nil
	}

	return &ModelResponse{
		Success: true,
		Content: parsed.Choices[0].Message.Content,
		Model:   firstNonEmpty(parsed.Model, modelID),
		Kind:    ResponseKindRemote,
		Usage: core.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		ElapsedMS: elapsed,
	}, nil
}

// StreamDelta is one SSE-style chunk in the streaming path.
type StreamDelta struct {
	Content string
	Done    bool
	Err     error
}

// ChatStream opens the streaming path: SSE lines `data: {...}`
// terminated by `data: [DONE]` (spec.md §6), returning a channel of
// deltas. The caller may aggregate via ProcessStream.
func (c *Client) ChatStream(ctx context.Context, modelID string, messages []Message, temperature float32, maxTokens int) (<-chan StreamDelta, error) {
	reqBody := chatRequest{Model: modelID, Messages: messages, Temperature: temperature, MaxTokens: maxTokens, Stream: true}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("remote: marshal stream request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("remote: build stream request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: stream request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("remote: stream error (status %d): %s", resp.StatusCode, string(body))
	}

	out := make(chan StreamDelta)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				out <- StreamDelta{Done: true}
				return
			}

			var chunk chatResponse
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) > 0 {
				out <- StreamDelta{Content: chunk.Choices[0].Message.Content}
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case out <- StreamDelta{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return out, nil
}

// ProcessStream concatenates deltas into a single string, per spec.md §4.2.
func ProcessStream(ctx context.Context, deltas <-chan StreamDelta) (string, error) {
	var b strings.Builder
	for {
		select {
		case d, ok := <-deltas:
			if !ok {
				return b.String(), nil
			}
			if d.Err != nil {
				return b.String(), d.Err
			}
			if d.Done {
				return b.String(), nil
			}
			b.WriteString(d.Content)
		case <-ctx.Done():
			return b.String(), ctx.Err()
		}
	}
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// GetAvailableModels lists ids the upstream exposes; used by the
// Routing Table to refresh its alias map on startup. Best-effort:
// missing data does not fail startup (spec.md §4.2).
func (c *Client) GetAvailableModels(ctx context.Context) []string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return nil
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("remote: get_available_models failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var parsed modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil
	}
	ids := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		ids = append(ids, m.ID)
	}
	return ids
}

// MultiModelQuery launches one concurrent goroutine per alias, awaits
// all, and returns alias -> ModelResponse. Individual failures become
// error-shaped responses, not panics/errors (spec.md §4.2, invariant 8).
// Per-alias options are never shared across goroutines (grounded on
// ai/chain_client.go's cloneAIOptions pattern, preventing mutation
// bleed between concurrent attempts).
func (c *Client) MultiModelQuery(ctx context.Context, prompt string, models map[string]string, systemPrompt string, temperature float32, maxTokens int) map[string]*ModelResponse {
	messages := buildMessages(systemPrompt, prompt)

	results := make(map[string]*ModelResponse, len(models))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for alias, modelID := range models {
		wg.Add(1)
		go func(alias, modelID string) {
			defer wg.Done()
			msgsCopy := append([]Message(nil), messages...)
			resp, err := c.Chat(ctx, modelID, msgsCopy, temperature, maxTokens)
			if err != nil {
				resp = &ModelResponse{
					Success:     false,
					Model:       modelID,
					Kind:        ResponseKindRemote,
					Error:       core.ErrorKindUnknown,
					ErrorDetail: err.Error(),
				}
			}
			mu.Lock()
			results[alias] = resp
			mu.Unlock()
		}(alias, modelID)
	}

	wg.Wait()
	return results
}

func buildMessages(systemPrompt, prompt string) []Message {
	var messages []Message
	if systemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, Message{Role: "user", Content: prompt})
	return messages
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

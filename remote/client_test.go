package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/itsneelabh/pulse/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Chat_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatResponse{
			Model: "gpt-premium",
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{{Message: struct {
				Content string `json:"content"`
			}{Content: "hello there"}}},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, nil)
	resp, err := c.Chat(context.Background(), "gpt-premium", []Message{{Role: "user", Content: "hi"}}, 0.7, 256)
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, ResponseKindRemote, resp.Kind)
}

func TestClient_Chat_NonOKStatus_ClassifiesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "rate limit exceeded"},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, nil)
	resp, err := c.Chat(context.Background(), "gpt-premium", []Message{{Role: "user", Content: "hi"}}, 0.7, 256)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, core.ErrorKindRateLimit, resp.Error)
}

func TestClient_Chat_200WithEmbeddedError_IsTreatedAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]interface{}{"message": "context length exceeded for this model"},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, nil)
	resp, err := c.Chat(context.Background(), "gpt-premium", []Message{{Role: "user", Content: "hi"}}, 0.7, 256)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, core.ErrorKindContextLength, resp.Error)
}

func TestClient_Chat_NetworkFailure(t *testing.T) {
	c := NewClient("test-key", "http://127.0.0.1:1", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	resp, err := c.Chat(ctx, "gpt-premium", []Message{{Role: "user", Content: "hi"}}, 0.7, 256)
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, core.ErrorKindNetwork, resp.Error)
}

// TestClient_MultiModelQuery_CompletenessWithOneFailure covers spec.md
// invariant 8 and scenario S5: the result map always has exactly one
// entry per requested alias, even when one member fails.
func TestClient_MultiModelQuery_CompletenessWithOneFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Model == "broken-model" {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{"message": "internal server error"},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{
			Model: req.Model,
			Choices: []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			}{{Message: struct {
				Content string `json:"content"`
			}{Content: "ok from " + req.Model}}},
		})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, nil)
	models := map[string]string{
		"premium":  "good-model",
		"standard": "good-model-2",
		"broken":   "broken-model",
	}
	results := c.MultiModelQuery(context.Background(), "hi", models, "", 0.7, 256)

	require.Len(t, results, len(models))
	for alias := range models {
		require.Contains(t, results, alias)
	}
	assert.True(t, results["premium"].Success)
	assert.True(t, results["standard"].Success)
	assert.False(t, results["broken"].Success)
	assert.Equal(t, core.ErrorKindServer, results["broken"].Error)
}

func TestClient_ChatStream_AggregatesDeltasUntilDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{"Hello", ", ", "world"}
		for _, chunk := range chunks {
			payload, _ := json.Marshal(chatResponse{
				Choices: []struct {
					Message struct {
						Content string `json:"content"`
					} `json:"message"`
				}{{Message: struct {
					Content string `json:"content"`
				}{Content: chunk}}},
			})
			_, _ = w.Write([]byte("data: " + string(payload) + "\n\n"))
			flusher.Flush()
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, nil)
	deltas, err := c.ChatStream(context.Background(), "gpt-premium", []Message{{Role: "user", Content: "hi"}}, 0.7, 256)
	require.NoError(t, err)

	content, err := ProcessStream(context.Background(), deltas)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", content)
}

func TestClient_GetAvailableModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(modelsResponse{Data: []struct {
			ID string `json:"id"`
		}{{ID: "model-a"}, {ID: "model-b"}}})
	}))
	defer srv.Close()

	c := NewClient("test-key", srv.URL, nil)
	ids := c.GetAvailableModels(context.Background())
	assert.ElementsMatch(t, []string{"model-a", "model-b"}, ids)
}

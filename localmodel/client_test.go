package localmodel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMemStats struct {
	freeGB      float64
	percentUsed float64
	procGB      float64
}

func (f fakeMemStats) FreeGB() (float64, error)                      { return f.freeGB, nil }
func (f fakeMemStats) PercentUsed() (float64, error)                 { return f.percentUsed, nil }
func (f fakeMemStats) ProcessMemoryGB(nameSubstr string) (float64, error) { return f.procGB, nil }

func TestNewClient_ForcesCPUWhenMemoryLow(t *testing.T) {
	c := NewClient(fakeMemStats{freeGB: 2.0})
	assert.True(t, c.forceCPU)
}

func TestNewClient_DoesNotForceCPUWhenMemoryPlentiful(t *testing.T) {
	c := NewClient(fakeMemStats{freeGB: 16.0})
	assert.False(t, c.forceCPU)
}

func TestClient_Generate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "hi there", PromptEvalCount: 3, EvalCount: 4})
	}))
	defer srv.Close()

	c := NewClient(fakeMemStats{freeGB: 16.0}, WithBaseURL(srv.URL))
	outcome, err := c.Generate(context.Background(), "phi", "hello", "", 0.7, 256)
	require.NoError(t, err)
	assert.True(t, outcome.Success)
	assert.Equal(t, "hi there", outcome.Content)
	assert.Equal(t, 7, outcome.Usage.TotalTokens)
}

func TestClient_Generate_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := NewClient(fakeMemStats{freeGB: 16.0}, WithBaseURL(srv.URL))
	outcome, err := c.Generate(context.Background(), "phi", "hello", "", 0.7, 256)
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestClient_CheckHealth_OfflineModeGatesProbe(t *testing.T) {
	probed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probed = true
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(fakeMemStats{freeGB: 16.0}, WithBaseURL(srv.URL))
	healthy := c.CheckHealth(context.Background(), false, false)
	assert.False(t, healthy)
	assert.False(t, probed, "health probe must be skipped when offline mode is disabled and force is false")
}

func TestClient_CheckHealth_ForceBypassesOfflineGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(fakeMemStats{freeGB: 16.0}, WithBaseURL(srv.URL))
	healthy := c.CheckHealth(context.Background(), true, false)
	assert.True(t, healthy)
}

func TestNormalizeModelName_DefaultsGreetingsToPhi(t *testing.T) {
	assert.Equal(t, "phi", NormalizeModelName("Hello"))
	assert.Equal(t, "mistral", NormalizeModelName("mistral"))
}

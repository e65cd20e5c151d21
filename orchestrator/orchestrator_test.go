package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/pulse/cache"
	"github.com/itsneelabh/pulse/classifier"
	"github.com/itsneelabh/pulse/command"
	"github.com/itsneelabh/pulse/execution"
	"github.com/itsneelabh/pulse/localmodel"
	"github.com/itsneelabh/pulse/remote"
	"github.com/itsneelabh/pulse/routing"
)

type fakeMemStats struct{}

func (fakeMemStats) FreeGB() (float64, error)                  { return 16.0, nil }
func (fakeMemStats) PercentUsed() (float64, error)              { return 30.0, nil }
func (fakeMemStats) ProcessMemoryGB(string) (float64, error)     { return 0.1, nil }

func newTestOrchestrator(t *testing.T, remoteSrv *httptest.Server) *Orchestrator {
	t.Helper()
	c := cache.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	clsfr := classifier.New(nil, nil)
	table := routing.New(routing.DefaultConfig(), nil)
	rc := remote.NewClient("test-key", remoteSrv.URL, nil)
	lc := localmodel.NewClient(fakeMemStats{})

	return New(Deps{
		Cache:      c,
		Classifier: clsfr,
		Table:      table,
		Remote:     rc,
		Local:      lc,
	})
}

func TestProcessInput_DirectCommandShortCircuitsClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("remote should never be called for a direct command")
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	resp := o.ProcessInput(context.Background(), "help")
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Content)
}

func TestProcessInput_ExecutesPrimaryModelOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"42"}}],"model":"openai/gpt-3.5-turbo"}`))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	resp := o.ProcessInput(context.Background(), "tell me a joke")
	require.True(t, resp.Success)
	assert.Equal(t, "42", resp.Content)
}

func TestProcessInput_CachesSuccessfulResponse(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"cached answer"}}],"model":"openai/gpt-3.5-turbo"}`))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	first := o.ProcessInput(context.Background(), "what is the meaning of life")
	second := o.ProcessInput(context.Background(), "what is the meaning of life")

	require.True(t, first.Success)
	assert.False(t, first.CacheHit)
	assert.True(t, second.CacheHit)
	assert.Equal(t, 1, calls)
}

func TestProcessInput_AskModelOverridesRoutedPrimary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}],"model":"custom-model"}`))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	resp := o.ProcessInput(context.Background(), "ask custom-model what is the weather")
	require.True(t, resp.Success)
	assert.Equal(t, command.TypeAskModel, resp.Command)
}

func TestProcessInput_AllAttemptsFailedReturnsFailureResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"server error"}}`))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	resp := o.ProcessInput(context.Background(), "debug this crash for me please")
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.ErrorDetail)
}

// TestProcessInput_SimulateNeverCallsRemote covers spec.md §6/§9's
// SIMULATE=1 path threaded all the way from orchestrator construction.
func TestProcessInput_SimulateNeverCallsRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("remote should never be called when Simulate is set")
	}))
	defer srv.Close()

	c := cache.Open(filepath.Join(t.TempDir(), "cache.db"), nil)
	clsfr := classifier.New(nil, nil)
	table := routing.New(routing.DefaultConfig(), nil)
	rc := remote.NewClient("test-key", srv.URL, nil)
	lc := localmodel.NewClient(fakeMemStats{})

	execCfg := execution.DefaultConfig()
	execCfg.Simulate = true

	o := New(Deps{Cache: c, Classifier: clsfr, Table: table, Remote: rc, Local: lc, ExecConfig: execCfg})
	resp := o.ProcessInput(context.Background(), "tell me a joke")
	require.True(t, resp.Success)
	assert.Contains(t, resp.Content, "simulated")
}

// TestProcessMultiModel_FansOutToEveryRequestedAlias exercises
// spec.md §4.7's multi_model_query entry point end to end, the CLI
// surface that makes remote.Client.MultiModelQuery reachable.
func TestProcessMultiModel_FansOutToEveryRequestedAlias(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"content":"hi"}}],"model":"openai/gpt-3.5-turbo"}`))
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv)
	result := o.ProcessMultiModel(context.Background(), "hello", []string{"gpt-3.5-turbo", "claude-3-sonnet"})

	require.Len(t, result.Results, 2)
	assert.True(t, result.Results["gpt-3.5-turbo"].Success)
	assert.True(t, result.Results["claude-3-sonnet"].Success)
}

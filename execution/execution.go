// Package execution implements the Execution Flow (C7): cascading
// fallback with exponential-backoff retries on the primary model,
// followed by one attempt per entry in an ordered fallback chain.
package execution

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/itsneelabh/pulse/core"
)

// Outcome is the normalized result of one model attempt, shared by the
// remote and local clients (spec.md §9's ModelClient duck-typing,
// expressed here as a plain struct instead of an interface hierarchy).
type Outcome struct {
	Success     bool
	Content     string
	Model       string
	Usage       core.TokenUsage
	Kind        core.ErrorKind
	ErrorDetail string
	StatusCode  int

	// ResponseKind tags provenance (remote/local/simulated) per
	// spec.md §3's ModelResponse.kind, independent of Kind above (which
	// only classifies errors); Execute tags a cache hit as remote. Left
	// empty by callers that don't care.
	ResponseKind core.ResponseKind
}

// ModelFn performs one attempt against modelID. It must never panic;
// transport and protocol failures are reported via Outcome.Success=false,
// matching the remote and local clients' own normalization.
type ModelFn func(ctx context.Context, modelID string) (*Outcome, error)

// CacheStore is the subset of cache.Cache that execute_query and
// multi_model_query need — duck-typed so this package never imports
// cache directly (cache has no reason to know about execution).
type CacheStore interface {
	Get(ctx context.Context, key interface{}) ([]byte, bool)
	Set(ctx context.Context, key interface{}, payload []byte, ttl time.Duration)
}

// Config tunes the cascading fallback described in spec.md §4.7.
type Config struct {
	MaxRetries      int           // inclusive of the first attempt (invariant 3)
	InitialInterval time.Duration
	MaxInterval     time.Duration
	JitterFraction  float64 // ±20% default, matching spec.md §4.7

	// Telemetry traces each attempt when set; nil disables tracing
	// entirely rather than falling back to a no-op span per attempt.
	Telemetry core.Telemetry

	// Simulate forces execute_query/multi_model_query to synthesize a
	// deterministic response instead of calling ModelFn at all, per
	// spec.md §6/§9's SIMULATE=1 test-only path. The synthesized
	// response is still cached, so a second call against the same
	// fingerprint hits the cache like any real response would.
	Simulate bool

	// Cache, when set, makes Execute consult and populate the response
	// cache at the C7 boundary itself (spec.md §4.7's execute_query
	// cache contract) rather than leaving callers to do it themselves.
	// CacheKey is the fingerprint to hash; CacheTTL falls back to
	// cache.DefaultTTL when zero.
	Cache    CacheStore
	CacheKey interface{}
	CacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		JitterFraction:  0.2,
	}
}

// Result carries both the final outcome (nil on total exhaustion) and
// a trace of every attempt made, for logging/telemetry and for
// ErrorTaxonomy.Record calls at the caller's boundary.
type Result struct {
	Outcome  *Outcome
	Attempts []AttemptTrace
	CacheHit bool
}

const defaultCacheTTL = 3600 * time.Second

type AttemptTrace struct {
	Model    string
	IsRetry  bool
	Fallback bool
	Err      error
	Outcome  *Outcome
}

// Execute runs primaryModel up to cfg.MaxRetries times with exponential
// backoff and jitter (grounded on resilience/retry.go's Retry, ported
// to github.com/cenkalti/backoff/v5 for the backoff primitive itself),
// then tries each entry of fallbackChain exactly once in order
// (grounded on ai/chain_client.go's GenerateResponse loop). Returns an
// error wrapping core.ErrAllAttemptsFailed, with the last primary error
// in its message, only when every attempt — primary retries plus every
// fallback — failed.
func Execute(ctx context.Context, primaryModel string, fallbackChain []string, cfg Config, call ModelFn) (*Result, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}

	if cfg.Cache != nil && cfg.CacheKey != nil {
		if cached, ok := cfg.Cache.Get(ctx, cfg.CacheKey); ok {
			return &Result{
				Outcome:  &Outcome{Success: true, Content: string(cached), Model: primaryModel, ResponseKind: core.ResponseKindRemote},
				CacheHit: true,
			}, nil
		}
	}

	result := &Result{}

	if cfg.Telemetry != nil {
		var span core.Span
		ctx, span = cfg.Telemetry.StartSpan(ctx, "pulse.execution.execute")
		span.SetAttribute("model.primary", primaryModel)
		defer span.End()
	}

	if cfg.Simulate {
		outcome := synthesizeOutcome(primaryModel)
		result.Outcome = outcome
		result.Attempts = append(result.Attempts, AttemptTrace{Model: primaryModel, Outcome: outcome})
		cfg.storeInCache(ctx, outcome.Content)
		return result, nil
	}

	outcome, err := retryPrimary(ctx, primaryModel, cfg, call, result)
	if err == nil {
		cfg.storeInCache(ctx, outcome.Content)
		return result, nil
	}
	primaryErr := err

	for _, fallbackModel := range fallbackChain {
		o, attemptErr := callWithSpan(ctx, cfg, fallbackModel, true, call)
		trace := AttemptTrace{Model: fallbackModel, Fallback: true, Err: attemptErr, Outcome: o}
		result.Attempts = append(result.Attempts, trace)

		if attemptErr == nil && o != nil && o.Success {
			result.Outcome = o
			cfg.storeInCache(ctx, o.Content)
			return result, nil
		}
	}

	if cfg.Telemetry != nil {
		cfg.Telemetry.RecordMetric("pulse.execution.exhausted", 1, map[string]string{"model": primaryModel})
	}
	return result, fmt.Errorf("%w: last primary error: %v", core.ErrAllAttemptsFailed, primaryErr)
}

// storeInCache writes content under cfg.CacheKey when a cache is
// configured — the "on success, cache and return" step of
// spec.md §4.7's execute_query contract.
func (cfg Config) storeInCache(ctx context.Context, content string) {
	if cfg.Cache == nil || cfg.CacheKey == nil {
		return
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cfg.Cache.Set(ctx, cfg.CacheKey, []byte(content), ttl)
}

// synthesizeOutcome builds the deterministic response SIMULATE=1
// produces instead of calling a real model — spec.md §6/§9's
// test-only path, grounded on legacy_mvp/skills/agent.py's
// simulate_responses short-circuit (the original's exact synthesized
// payload lives in a model_interface.py not carried into this corpus,
// so the format here is invented rather than ported).
func synthesizeOutcome(model string) *Outcome {
	return &Outcome{
		Success:      true,
		Content:      fmt.Sprintf("[simulated response from %s]", model),
		Model:        model,
		ResponseKind: core.ResponseKindSimulated,
	}
}

func callWithSpan(ctx context.Context, cfg Config, model string, fallback bool, call ModelFn) (*Outcome, error) {
	if cfg.Telemetry == nil {
		return call(ctx, model)
	}
	spanCtx, span := cfg.Telemetry.StartSpan(ctx, "pulse.execution.attempt")
	span.SetAttribute("model", model)
	span.SetAttribute("fallback", fallback)
	defer span.End()
	o, err := call(spanCtx, model)
	if err != nil {
		span.RecordError(err)
	}
	return o, err
}

func retryPrimary(ctx context.Context, model string, cfg Config, call ModelFn, result *Result) (*Outcome, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialInterval
	b.MaxInterval = cfg.MaxInterval
	b.RandomizationFactor = cfg.JitterFraction
	b.Multiplier = 2.0

	attemptIndex := 0
	outcome, err := backoff.Retry(ctx, func() (*Outcome, error) {
		isRetry := attemptIndex > 0
		attemptIndex++

		o, callErr := callWithSpan(ctx, cfg, model, false, call)
		trace := AttemptTrace{Model: model, IsRetry: isRetry, Err: callErr, Outcome: o}
		result.Attempts = append(result.Attempts, trace)

		if callErr != nil {
			return nil, callErr
		}
		if o != nil && o.Success {
			return o, nil
		}
		if o != nil && !core.IsRetryable(o.Kind, o.StatusCode) {
			return nil, backoff.Permanent(&outcomeError{o})
		}
		return nil, &outcomeError{o}
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(cfg.MaxRetries)),
	)
	if err != nil {
		return nil, err
	}
	result.Outcome = outcome
	return outcome, nil
}

// MultiModelQuery is the cache-gated C7 boundary for spec.md §4.7's
// multi_model_query: a fingerprint lookup under cfg.CacheKey, and on a
// miss, one call to fan. fan does the actual concurrent dispatch (in
// the orchestrator's case, remote.Client.MultiModelQuery for every
// aggregator-backed alias and a direct local-server call for "local"),
// so this function owns only the cache contract, not the fan-out
// strategy — individual model failures are fan's responsibility to
// shape as error Outcomes, not this function's. The aggregate is
// cached even when some models in it failed.
func MultiModelQuery(ctx context.Context, models []string, cfg Config, fan func(ctx context.Context, models []string) map[string]*Outcome) (map[string]*Outcome, bool) {
	if cfg.Cache != nil && cfg.CacheKey != nil {
		if cached, ok := cfg.Cache.Get(ctx, cfg.CacheKey); ok {
			var out map[string]*Outcome
			if err := json.Unmarshal(cached, &out); err == nil {
				return out, true
			}
		}
	}

	var results map[string]*Outcome
	if cfg.Simulate {
		results = make(map[string]*Outcome, len(models))
		for _, m := range models {
			results[m] = synthesizeOutcome(m)
		}
	} else {
		results = fan(ctx, models)
	}

	if payload, err := json.Marshal(results); err == nil {
		cfg.storeInCache(ctx, string(payload))
	}

	return results, false
}

// outcomeError lets a failed-but-non-panicking Outcome flow through
// backoff.Retry's error channel without inventing a fake Go error
// message; Error() renders the error kind for logging purposes only.
type outcomeError struct {
	outcome *Outcome
}

func (e *outcomeError) Error() string {
	if e.outcome == nil {
		return "model attempt failed"
	}
	return string(e.outcome.Kind) + ": " + e.outcome.ErrorDetail
}

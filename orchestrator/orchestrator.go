// Package orchestrator implements the Orchestrator (C10): the public
// façade that composes command parsing, intent classification, routing,
// and cascading execution into a single process_input operation,
// grounded on the teacher's agent.go/framework.go composition-root
// pattern (spawn every dependency once in a constructor, drive the
// request through it).
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/pulse/cache"
	"github.com/itsneelabh/pulse/classifier"
	"github.com/itsneelabh/pulse/command"
	"github.com/itsneelabh/pulse/core"
	"github.com/itsneelabh/pulse/errtaxonomy"
	"github.com/itsneelabh/pulse/execution"
	"github.com/itsneelabh/pulse/localmodel"
	"github.com/itsneelabh/pulse/remote"
	"github.com/itsneelabh/pulse/routing"
)

// Response is what process_input ultimately returns: either a direct
// command response, or a model-execution outcome, plus the resolved
// intent and routing trail for observability.
type Response struct {
	Command     command.Type
	Intent      classifier.IntentLabel
	ModelUsed   string
	Content     string
	Success     bool
	CacheHit    bool
	Attempts    []execution.AttemptTrace
	ErrorDetail string
}

// Orchestrator wires C1-C9 behind a single entry point.
type Orchestrator struct {
	cache      *cache.Cache
	classifier *classifier.Classifier
	table      *routing.Table
	remote     *remote.Client
	local      *localmodel.Client
	manager    *localmodel.Manager
	monitor    *errtaxonomy.Monitor
	execCfg    execution.Config
	logger     core.Logger
}

// Deps bundles every pre-constructed dependency the Orchestrator needs.
// Cache, Classifier, Table, Remote and Local are required. Logger
// defaults to a no-op logger and Monitor to a fresh ring-buffer monitor
// with a no-op notifier; a nil Manager means always online, and
// the system-status command then reports the manager as not configured; a zero ExecConfig takes execution's defaults;
// Telemetry is used only when ExecConfig carries none.
type Deps struct {
	Cache      *cache.Cache
	Classifier *classifier.Classifier
	Table      *routing.Table
	Remote     *remote.Client
	Local      *localmodel.Client
	Manager    *localmodel.Manager
	Monitor    *errtaxonomy.Monitor
	ExecConfig execution.Config
	Logger     core.Logger
	Telemetry  core.Telemetry
}

func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = &core.NoOpLogger{}
	}
	if deps.Monitor == nil {
		deps.Monitor = errtaxonomy.NewMonitor(errtaxonomy.DefaultRingSize, errtaxonomy.NoOpNotifier{}, deps.Logger)
	}
	cfg := deps.ExecConfig
	if cfg.MaxRetries == 0 {
		defaults := execution.DefaultConfig()
		cfg.MaxRetries = defaults.MaxRetries
		cfg.InitialInterval = defaults.InitialInterval
		cfg.MaxInterval = defaults.MaxInterval
		cfg.JitterFraction = defaults.JitterFraction
	}
	if cfg.Telemetry == nil && deps.Telemetry != nil {
		cfg.Telemetry = deps.Telemetry
	}
	return &Orchestrator{
		cache:      deps.Cache,
		classifier: deps.Classifier,
		table:      deps.Table,
		remote:     deps.Remote,
		local:      deps.Local,
		manager:    deps.Manager,
		monitor:    deps.Monitor,
		execCfg:    cfg,
		logger:     deps.Logger,
	}
}

// fingerprint is the request shape hashed into the cache key (spec.md
// §4.1 Hashing); cache.HashKey JSON-encodes it with fields in
// declaration order, so equal requests always hash the same.
type fingerprint struct {
	Kind         string  `json:"kind"`
	Prompt       string  `json:"prompt"`
	Model        string  `json:"model"`
	SystemPrompt string  `json:"system_prompt"`
	Temperature  float32 `json:"temperature"`
	MaxTokens    int     `json:"max_tokens"`
}

// ProcessInput is the single public entry point: command parsing short
// circuits known command shapes; everything else is classified, routed,
// and executed with cascading fallback (spec.md §4.10).
func (o *Orchestrator) ProcessInput(ctx context.Context, text string) Response {
	cmd := command.Parse(text)
	if cmd.Type != command.TypeUnknown && cmd.Type != command.TypeAskModel {
		return Response{Command: cmd.Type, Success: true, Content: o.renderCommand(cmd)}
	}

	prompt := text
	if cmd.Type == command.TypeAskModel {
		prompt = cmd.Params["query"]
	}

	online := o.manager == nil || !o.manager.IsOfflineMode()
	intent := o.classifier.Classify(ctx, prompt, online)

	if intent == classifier.IntentTime && cmd.Type != command.TypeAskModel {
		return Response{Command: cmd.Type, Intent: intent, Success: true, Content: time.Now().Format(time.RFC1123)}
	}

	primary, fallbacks := o.table.PrimaryAndFallbacks(intent, online)
	if cmd.Type == command.TypeAskModel && cmd.Params["model"] != "" {
		primary = cmd.Params["model"]
	}

	temperature := float32(0.7)
	maxTokens := 1024

	fp := fingerprint{Kind: "chat", Prompt: prompt, Model: primary, Temperature: temperature, MaxTokens: maxTokens}
	cfg := o.execCfg
	cfg.Cache = o.cache
	cfg.CacheKey = fp
	cfg.CacheTTL = cache.DefaultTTL

	result, err := execution.Execute(ctx, primary, fallbacks, cfg, o.modelFn(prompt))
	if err != nil {
		o.recordFailure(primary, err)
		return Response{Command: cmd.Type, Intent: intent, Success: false, ErrorDetail: err.Error()}
	}

	resp := Response{
		Command:   cmd.Type,
		Intent:    intent,
		ModelUsed: result.Outcome.Model,
		Success:   result.Outcome.Success,
		CacheHit:  result.CacheHit,
		Content:   result.Outcome.Content,
		Attempts:  result.Attempts,
	}
	if !resp.Success {
		resp.ErrorDetail = result.Outcome.ErrorDetail
		o.recordFailure(result.Outcome.Model, fmt.Errorf("%s: %s", result.Outcome.Kind, result.Outcome.ErrorDetail))
		return resp
	}

	return resp
}

// MultiResult is ProcessMultiModel's return shape: one Outcome per
// requested model alias, keyed the same way the caller requested it.
type MultiResult struct {
	Results  map[string]*execution.Outcome
	CacheHit bool
}

// multiModelFingerprint is the multi_model_query cache key shape,
// distinguished from fingerprint's "chat" kind per spec.md §4.7.
type multiModelFingerprint struct {
	Kind         string   `json:"kind"`
	Prompt       string   `json:"prompt"`
	Models       []string `json:"models"`
	SystemPrompt string   `json:"system_prompt"`
	Temperature  float32  `json:"temperature"`
	MaxTokens    int      `json:"max_tokens"`
}

// ProcessMultiModel is the multi_model_query entry point (spec.md
// §4.7): fan a prompt out to every named model alias. The "local" and
// "ollama" aliases are sent to the local server one at a time first;
// every other alias is handed to remote.Client.MultiModelQuery, which
// does the actual concurrent dispatch and per-alias error shaping.
func (o *Orchestrator) ProcessMultiModel(ctx context.Context, prompt string, aliases []string) MultiResult {
	cfg := o.execCfg
	cfg.Cache = o.cache
	cfg.CacheKey = multiModelFingerprint{Kind: "multi", Prompt: prompt, Models: append([]string(nil), aliases...), Temperature: 0.7, MaxTokens: 1024}
	cfg.CacheTTL = cache.DefaultTTL

	results, cacheHit := execution.MultiModelQuery(ctx, aliases, cfg, func(ctx context.Context, aliases []string) map[string]*execution.Outcome {
		return o.fanOutMultiModel(ctx, prompt, aliases)
	})
	return MultiResult{Results: results, CacheHit: cacheHit}
}

// fanOutMultiModel partitions aliases between the local server and the
// remote aggregator, dispatching the remote subset through
// remote.Client.MultiModelQuery's own concurrent fan-out.
func (o *Orchestrator) fanOutMultiModel(ctx context.Context, prompt string, aliases []string) map[string]*execution.Outcome {
	results := make(map[string]*execution.Outcome, len(aliases))
	remoteModels := make(map[string]string)

	for _, alias := range aliases {
		if alias == "local" || alias == "ollama" {
			outcome, err := o.local.Generate(ctx, localmodel.NormalizeModelName(alias), prompt, "", 0.7, 1024)
			if err != nil {
				outcome = &execution.Outcome{Success: false, Model: alias, Kind: core.ErrorKindUnknown, ErrorDetail: err.Error()}
			}
			results[alias] = outcome
			continue
		}
		remoteModels[alias] = o.table.ResolveAlias(alias)
	}

	if len(remoteModels) > 0 {
		for alias, resp := range o.remote.MultiModelQuery(ctx, prompt, remoteModels, "", 0.7, 1024) {
			results[alias] = remoteToOutcome(resp)
		}
	}

	return results
}

// modelFn adapts the routing table's resolved aliases to an
// execution.ModelFn, dispatching to the remote aggregator for
// provider-qualified aliases and to the local server for the
// well-known local alias.
func (o *Orchestrator) modelFn(prompt string) execution.ModelFn {
	return func(ctx context.Context, modelID string) (*execution.Outcome, error) {
		if modelID == "local" || modelID == "ollama" {
			return o.local.Generate(ctx, localmodel.NormalizeModelName(modelID), prompt, "", 0.7, 1024)
		}
		resolved := o.table.ResolveAlias(modelID)
		resp, err := o.remote.Chat(ctx, resolved, []remote.Message{{Role: "user", Content: prompt}}, 0.7, 1024)
		if err != nil {
			return nil, err
		}
		return remoteToOutcome(resp), nil
	}
}

func remoteToOutcome(resp *remote.ModelResponse) *execution.Outcome {
	return &execution.Outcome{
		Success:      resp.Success,
		Content:      resp.Content,
		Model:        resp.Model,
		Usage:        resp.Usage,
		Kind:         resp.Error,
		ErrorDetail:  resp.ErrorDetail,
		ResponseKind: resp.Kind,
	}
}

func (o *Orchestrator) recordFailure(model string, err error) {
	kind := core.ClassifyMessage(err.Error())
	rec := errtaxonomy.NewRecord(core.ErrorSourceRemote, "process_input:"+model, kind, err.Error(), "Something went wrong, please try again.", core.SeverityError, 0)
	o.monitor.Record(rec)
}

func (o *Orchestrator) renderCommand(cmd command.Command) string {
	switch cmd.Type {
	case command.TypeTime:
		return time.Now().Format(time.RFC1123)
	case command.TypeDate:
		return time.Now().Format("2006-01-02")
	case command.TypeHelp:
		return "Available commands: help, exit, time, date, timezone, github info/issues/commit, notion document/journal, ask <model> <query>, workflow, system status."
	case command.TypeSystemStatus:
		if o.manager == nil {
			return "local model manager not configured"
		}
		status := o.manager.CheckStatus(context.Background(), false)
		return fmt.Sprintf("local model: %s, offline=%v, free=%.1fGB", status.State, status.OfflineMode, status.FreeMemoryGB)
	default:
		return fmt.Sprintf("command %q recognized, no handler wired for this core", cmd.Type)
	}
}

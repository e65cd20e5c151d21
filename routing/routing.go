// Package routing implements the Routing Table (C6): the layer that
// turns an IntentLabel and a requested fallback tier into a concrete
// ordered list of model aliases for execution.
package routing

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/itsneelabh/pulse/classifier"
	"github.com/itsneelabh/pulse/core"
)

// ChainName identifies one of the named fallback chains (spec.md §4.6).
type ChainName string

const (
	ChainPremium   ChainName = "premium"
	ChainStandard  ChainName = "standard"
	ChainEfficient ChainName = "efficient"
	ChainCode      ChainName = "code"
)

// Online/offline aliases for the general intent, and the sentinel that
// keeps time entirely in-process — spec.md §4.6's mandatory routing
// gate: "general -> main_brain when online / phi when offline" and
// "time -> local, never routed to a model".
const (
	aliasMainBrain = "main_brain"
	aliasPhi       = "phi"
	aliasLocal     = "local"
)

// Config is the on-disk shape of a routing table file, loaded via
// gopkg.in/yaml.v3 the same way the teacher loads workflow definitions
// in pkg/routing/workflow.go.
type Config struct {
	IntentToChain map[classifier.IntentLabel]ChainName `yaml:"intent_to_chain"`
	Chains        map[ChainName][]string               `yaml:"chains"`
	Aliases       map[string]string                     `yaml:"aliases"`
}

// DefaultConfig mirrors the original system's static routing table
// (original_source/config/model_routing.py), trimmed to the closed
// intent set.
func DefaultConfig() Config {
	return Config{
		IntentToChain: map[classifier.IntentLabel]ChainName{
			classifier.IntentCode:         ChainCode,
			classifier.IntentDebug:        ChainCode,
			classifier.IntentTroubleshoot: ChainCode,
			classifier.IntentReasoning:    ChainPremium,
			classifier.IntentMath:         ChainPremium,
			classifier.IntentBrainstorm:   ChainPremium,
			classifier.IntentEthics:       ChainPremium,
			classifier.IntentTime:         ChainEfficient,
			classifier.IntentSystem:       ChainEfficient,
			classifier.IntentOllama:       ChainEfficient,
			classifier.IntentPersonality:  ChainEfficient,
		},
		Chains: map[ChainName][]string{
			ChainPremium:   {"gpt-4-turbo", "claude-3-opus", "gpt-4"},
			ChainStandard:  {"gpt-3.5-turbo", "claude-3-sonnet", "mistral-large"},
			ChainEfficient: {"gpt-3.5-turbo", "mistral-small", "phi-3"},
			ChainCode:      {"claude-3-sonnet", "gpt-4-turbo", "codellama"},
		},
		Aliases: map[string]string{
			"gpt-4-turbo":     "openai/gpt-4-turbo",
			"gpt-4":           "openai/gpt-4",
			"gpt-3.5-turbo":   "openai/gpt-3.5-turbo",
			"claude-3-opus":   "anthropic/claude-3-opus",
			"claude-3-sonnet": "anthropic/claude-3-sonnet",
			"mistral-large":   "mistralai/mistral-large",
			"mistral-small":   "mistralai/mistral-small",
			"phi-3":           "microsoft/phi-3-mini",
			"codellama":       "meta-llama/codellama-34b",
			aliasMainBrain:    "openai/gpt-4-turbo",
			aliasPhi:          "microsoft/phi-3-mini",
		},
	}
}

// LoadConfig reads a YAML routing table from path, falling back to
// DefaultConfig on any error (spec.md's ambient "missing config does
// not fail startup" posture, mirrored from C3's missing-data handling).
func LoadConfig(path string) Config {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg
	}
	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return cfg
	}
	if len(loaded.IntentToChain) > 0 {
		cfg.IntentToChain = loaded.IntentToChain
	}
	if len(loaded.Chains) > 0 {
		cfg.Chains = loaded.Chains
	}
	if len(loaded.Aliases) > 0 {
		cfg.Aliases = loaded.Aliases
	}
	return cfg
}

// AvailableModelsSource is implemented by remote.Client; kept as a
// narrow interface to avoid routing depending on remote's transport
// types.
type AvailableModelsSource interface {
	GetAvailableModels(ctx context.Context) []string
}

// Table is the Routing Table (C6): intent -> chain -> ordered model
// aliases, with an alias -> provider-model-id map that RefreshAliases
// updates when called.
type Table struct {
	mu      sync.RWMutex
	cfg     Config
	logger  core.Logger
}

// New builds a Table from cfg.
func New(cfg Config, logger core.Logger) *Table {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Table{cfg: cfg, logger: logger}
}

// ChainFor resolves the ordered model-alias list for an intent, gated by
// whether the system is currently online (spec.md §4.6's mandatory
// routing gate). "time" never reaches a model — it resolves to the
// local sentinel alone, handled entirely in-process by the caller.
// "general" resolves to main_brain online or phi offline, bypassing
// the chain table. Every other intent resolves via IntentToChain as
// before; unknown intents and intents absent from IntentToChain
// resolve to "standard" (spec.md §4.6 default tier).
func (t *Table) ChainFor(label classifier.IntentLabel, online bool) []string {
	if label == classifier.IntentTime {
		return []string{aliasLocal}
	}
	if label == classifier.IntentGeneral {
		if online {
			return []string{aliasMainBrain}
		}
		return []string{aliasPhi}
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	chain, ok := t.cfg.IntentToChain[label]
	if !ok {
		chain = ChainStandard
	}
	models, ok := t.cfg.Chains[chain]
	if !ok {
		models = t.cfg.Chains[ChainStandard]
	}
	out := make([]string, len(models))
	copy(out, models)
	return out
}

// PrimaryAndFallbacks splits ChainFor's result into a primary model and
// its ordered fallback chain, the shape execution.Execute expects.
func (t *Table) PrimaryAndFallbacks(label classifier.IntentLabel, online bool) (primary string, fallbacks []string) {
	models := t.ChainFor(label, online)
	if len(models) == 0 {
		return "", nil
	}
	return models[0], models[1:]
}

// ResolveAlias maps a chain entry (e.g. "gpt-4-turbo") to the
// provider-qualified model ID the aggregator expects (e.g.
// "openai/gpt-4-turbo"). Returns the alias unchanged if unmapped.
func (t *Table) ResolveAlias(alias string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id, ok := t.cfg.Aliases[alias]; ok {
		return id
	}
	return alias
}

// RefreshAliases updates alias -> provider-model-id entries from a list
// of provider-qualified model IDs fetched from the aggregator
// (spec.md §4.6, grounded on ai/registry.go's priority-sorted candidate
// refresh). Only known aliases whose provider family still appears in
// models are kept pointed at the best (alphabetically first, stable)
// match; unmatched aliases are left untouched.
func (t *Table) RefreshAliases(models []string) {
	if len(models) == 0 {
		return
	}
	sorted := append([]string(nil), models...)
	sort.Strings(sorted)

	t.mu.Lock()
	defer t.mu.Unlock()
	for alias, current := range t.cfg.Aliases {
		family := providerFamily(current)
		for _, m := range sorted {
			if providerFamily(m) == family {
				t.cfg.Aliases[alias] = m
				break
			}
		}
	}
}

func providerFamily(modelID string) string {
	for i, r := range modelID {
		if r == '/' {
			return modelID[:i]
		}
	}
	return modelID
}

// Stats reports the current table shape for diagnostics.
type Stats struct {
	IntentMappings int
	Chains         int
	Aliases        int
}

func (t *Table) Stats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Stats{
		IntentMappings: len(t.cfg.IntentToChain),
		Chains:         len(t.cfg.Chains),
		Aliases:        len(t.cfg.Aliases),
	}
}

// ValidateChains returns an error describing any chain referenced by
// IntentToChain but absent from Chains — a config-loading sanity check
// grounded on the teacher's own workflow-validation pass in
// pkg/routing/workflow.go.
func (t *Table) ValidateChains() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for intent, chain := range t.cfg.IntentToChain {
		if _, ok := t.cfg.Chains[chain]; !ok {
			return fmt.Errorf("routing: intent %q maps to undefined chain %q", intent, chain)
		}
	}
	return nil
}

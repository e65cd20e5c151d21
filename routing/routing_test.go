package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/pulse/classifier"
)

func TestChainFor_KnownIntentResolvesToMappedChain(t *testing.T) {
	table := New(DefaultConfig(), nil)
	models := table.ChainFor(classifier.IntentCode, true)
	assert.Equal(t, DefaultConfig().Chains[ChainCode], models)
}

func TestChainFor_UnknownIntentFallsBackToStandard(t *testing.T) {
	table := New(DefaultConfig(), nil)
	models := table.ChainFor(classifier.IntentVisual, true)
	assert.Equal(t, DefaultConfig().Chains[ChainStandard], models)
}

func TestChainFor_TimeNeverReachesAModelRegardlessOfOnlineState(t *testing.T) {
	table := New(DefaultConfig(), nil)
	assert.Equal(t, []string{"local"}, table.ChainFor(classifier.IntentTime, true))
	assert.Equal(t, []string{"local"}, table.ChainFor(classifier.IntentTime, false))
}

func TestChainFor_GeneralRoutesToMainBrainWhenOnline(t *testing.T) {
	table := New(DefaultConfig(), nil)
	assert.Equal(t, []string{"main_brain"}, table.ChainFor(classifier.IntentGeneral, true))
}

func TestChainFor_GeneralRoutesToPhiWhenOffline(t *testing.T) {
	table := New(DefaultConfig(), nil)
	assert.Equal(t, []string{"phi"}, table.ChainFor(classifier.IntentGeneral, false))
}

func TestPrimaryAndFallbacks_SplitsOrderedChain(t *testing.T) {
	table := New(DefaultConfig(), nil)
	primary, fallbacks := table.PrimaryAndFallbacks(classifier.IntentCode, true)
	expected := DefaultConfig().Chains[ChainCode]
	assert.Equal(t, expected[0], primary)
	assert.Equal(t, expected[1:], fallbacks)
}

func TestPrimaryAndFallbacks_GeneralHasNoFallbacks(t *testing.T) {
	table := New(DefaultConfig(), nil)
	primary, fallbacks := table.PrimaryAndFallbacks(classifier.IntentGeneral, true)
	assert.Equal(t, "main_brain", primary)
	assert.Empty(t, fallbacks)
}

func TestResolveAlias_KnownAliasMapsToProviderID(t *testing.T) {
	table := New(DefaultConfig(), nil)
	assert.Equal(t, "openai/gpt-4-turbo", table.ResolveAlias("gpt-4-turbo"))
}

func TestResolveAlias_UnknownAliasReturnsUnchanged(t *testing.T) {
	table := New(DefaultConfig(), nil)
	assert.Equal(t, "some-custom-model", table.ResolveAlias("some-custom-model"))
}

func TestRefreshAliases_UpdatesToNewProviderModelInSameFamily(t *testing.T) {
	table := New(DefaultConfig(), nil)
	table.RefreshAliases([]string{"openai/gpt-4-turbo-2026-01", "anthropic/claude-3-opus"})
	assert.Equal(t, "openai/gpt-4-turbo-2026-01", table.ResolveAlias("gpt-4-turbo"))
}

func TestValidateChains_DetectsUndefinedChainReference(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IntentToChain[classifier.IntentVisual] = ChainName("nonexistent")
	table := New(cfg, nil)
	err := table.ValidateChains()
	require.Error(t, err)
}

func TestLoadConfig_FallsBackToDefaultOnMissingFile(t *testing.T) {
	cfg := LoadConfig("/nonexistent/path/routing.yaml")
	assert.Equal(t, DefaultConfig().Chains, cfg.Chains)
}

func TestStats_ReportsConfigShape(t *testing.T) {
	table := New(DefaultConfig(), nil)
	stats := table.Stats()
	assert.Equal(t, len(DefaultConfig().Chains), stats.Chains)
	assert.Equal(t, len(DefaultConfig().Aliases), stats.Aliases)
}

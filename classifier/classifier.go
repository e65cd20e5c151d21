package classifier

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/itsneelabh/pulse/core"
)

// Embedder produces a fixed-length embedding for a piece of text.
// Actual model inference is out of scope for this core (spec.md §4.5);
// production wiring calls out to whatever embedding service or local
// model exposes this shape.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// JudgeFn sends a strict classification prompt to a model and returns
// its raw reply, grounded on pkg/routing/autonomous.go's
// call-model-then-parse-response shape.
type JudgeFn func(ctx context.Context, prompt string) (string, error)

// MemoryPressureSource reports free-memory percentage used, reused
// from C3's memory helper (spec.md §4.5 Dynamic threshold).
type MemoryPressureSource interface {
	PercentUsed() (float64, error)
}

const (
	defaultEmbedThreshold     = 0.65
	highPressurePercentUsed   = 85.0
	pressureRecheckInterval   = 60 * time.Second
	judgeCacheTTL             = time.Hour
)

// LabelDescription pairs an IntentLabel with the text whose embedding
// represents it (spec.md §4.5 Tier 1: "an embedding of the label name
// or description is precomputed at startup").
type LabelDescription struct {
	Label       IntentLabel
	Description string
}

// DefaultLabelDescriptions mirrors MiniLMClassifier's default intents
// dict, trimmed to the closed set in labels.go.
var DefaultLabelDescriptions = []LabelDescription{
	{IntentTime, "check the time or date"},
	{IntentTask, "manage a task or to-do item"},
	{IntentGitHub, "GitHub repository operations"},
	{IntentNotion, "Notion page or database operations"},
	{IntentAIQuery, "ask a model a general question"},
	{IntentSystem, "check system status or health"},
	{IntentPersonality, "change assistant personality or tone"},
	{IntentMemory, "search or save to memory"},
	{IntentOllama, "control the local Ollama service"},
	{IntentCode, "programming related queries"},
	{IntentDebug, "debugging and troubleshooting code"},
	{IntentTroubleshoot, "troubleshooting requests"},
	{IntentDocs, "technical documentation"},
	{IntentExplain, "explain a concept"},
	{IntentTrends, "trend analysis"},
	{IntentContent, "content creation"},
	{IntentTechnical, "technical explanation"},
	{IntentBrainstorm, "creative ideation"},
	{IntentEthics, "ethical considerations"},
	{IntentAutomate, "task automation"},
	{IntentVisual, "image or diagram related request"},
	{IntentReasoning, "logical reasoning"},
	{IntentMath, "mathematical calculation"},
	{IntentGeneral, "general conversation"},
	{IntentOther, "anything that does not fit another category"},
}

type explicitPattern struct {
	label   IntentLabel
	pattern *regexp.Regexp
}

// defaultExplicitPatterns implements Tier 0 (spec.md §4.5).
var defaultExplicitPatterns = []explicitPattern{
	{IntentAIQuery, regexp.MustCompile(`(?i)^(ask|query|use)\s+\S+`)},
	{IntentSystem, regexp.MustCompile(`(?i)^(launch|open|show)\s+(cli|ui|dashboard)`)},
	{IntentMemory, regexp.MustCompile(`(?i)^(search|save to|recall)\s+memory`)},
	{IntentPersonality, regexp.MustCompile(`(?i)\b(be more|act like|personality)\b`)},
	{IntentSystem, regexp.MustCompile(`(?i)^(status|version|uptime)\b`)},
	{IntentOllama, regexp.MustCompile(`(?i)\b(ollama|offline mode|local model)\b`)},
}

type judgeCacheEntry struct {
	label    IntentLabel
	storedAt time.Time
}

// Classifier is the hybrid Intent Classifier (C5).
type Classifier struct {
	patterns      []explicitPattern
	embedder      Embedder
	labelEmbeds   map[IntentLabel][]float64
	remoteJudge   JudgeFn
	localJudge    JudgeFn
	keywordScorer *KeywordScorer
	memSource     MemoryPressureSource
	logger        core.Logger

	mu              sync.Mutex
	judgeCache      map[string]judgeCacheEntry
	embedThreshold  float64
	lastPressureAt  time.Time
	highPressure    bool
}

type Option func(*Classifier)

func WithExplicitPatterns(patterns []explicitPattern) Option {
	return func(c *Classifier) { c.patterns = patterns }
}

func WithRemoteJudge(fn JudgeFn) Option {
	return func(c *Classifier) { c.remoteJudge = fn }
}

func WithLocalJudge(fn JudgeFn) Option {
	return func(c *Classifier) { c.localJudge = fn }
}

func WithKeywordTable(table map[IntentLabel][]string) Option {
	return func(c *Classifier) { c.keywordScorer = NewKeywordScorer(table) }
}

func WithLogger(logger core.Logger) Option {
	return func(c *Classifier) { c.logger = logger }
}

// New builds a Classifier. embedder and memSource may be nil (Tier 1
// and dynamic-threshold adjustment are then skipped gracefully).
func New(embedder Embedder, memSource MemoryPressureSource, opts ...Option) *Classifier {
	c := &Classifier{
		patterns:       defaultExplicitPatterns,
		embedder:       embedder,
		memSource:      memSource,
		keywordScorer:  NewKeywordScorer(nil),
		logger:         &core.NoOpLogger{},
		judgeCache:     make(map[string]judgeCacheEntry),
		embedThreshold: defaultEmbedThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.embedder != nil {
		c.labelEmbeds = make(map[IntentLabel][]float64, len(DefaultLabelDescriptions))
		for _, ld := range DefaultLabelDescriptions {
			if vec, err := embedder.Embed(context.Background(), ld.Description); err == nil {
				c.labelEmbeds[ld.Label] = vec
			}
		}
	}
	return c
}

// Classify resolves text to a single IntentLabel, never empty
// (invariant 6). online gates Tier 2 (remote judge).
func (c *Classifier) Classify(ctx context.Context, text string, online bool) IntentLabel {
	if label, ok := c.tier0Explicit(text); ok {
		return label
	}

	c.refreshPressure()

	if label, ok := c.tier1Embedding(ctx, text); ok {
		return label
	}

	if online && c.remoteJudge != nil {
		if label, ok := c.tierJudge(ctx, text, c.remoteJudge); ok {
			return label
		}
	}

	if c.localJudge != nil {
		if label, ok := c.tierJudge(ctx, text, c.localJudge); ok {
			return label
		}
	}

	return c.keywordScorer.Classify(text)
}

func (c *Classifier) tier0Explicit(text string) (IntentLabel, bool) {
	for _, p := range c.patterns {
		if p.pattern.MatchString(text) {
			return p.label, true
		}
	}
	return "", false
}

func (c *Classifier) tier1Embedding(ctx context.Context, text string) (IntentLabel, bool) {
	if c.embedder == nil || len(c.labelEmbeds) == 0 {
		return "", false
	}
	queryVec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		c.logger.Warn("classifier: embed failed", map[string]interface{}{"error": err.Error()})
		return "", false
	}

	labels := make([]IntentLabel, 0, len(c.labelEmbeds))
	for label := range c.labelEmbeds {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	var best IntentLabel
	bestScore := -1.0
	for _, label := range labels {
		score := cosineSimilarity(queryVec, c.labelEmbeds[label])
		if score > bestScore {
			bestScore = score
			best = label
		}
	}

	threshold := c.currentThreshold()
	if bestScore >= threshold {
		return best, true
	}
	return "", false
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// currentThreshold applies the dynamic-threshold rule: under high
// memory pressure, lower θ_embed so more requests resolve at Tier 1
// instead of invoking a judge model (spec.md §4.5 Dynamic threshold).
func (c *Classifier) currentThreshold() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.highPressure {
		return c.embedThreshold * 0.85
	}
	return c.embedThreshold
}

func (c *Classifier) refreshPressure() {
	if c.memSource == nil {
		return
	}
	c.mu.Lock()
	if time.Since(c.lastPressureAt) < pressureRecheckInterval {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	percentUsed, err := c.memSource.PercentUsed()
	c.mu.Lock()
	c.lastPressureAt = time.Now()
	if err == nil {
		c.highPressure = percentUsed >= highPressurePercentUsed
	}
	c.mu.Unlock()
}

const judgePromptTemplate = "Classify the following request into exactly one of these intents: " +
	"time, task, github, notion, ai_query, system, personality, memory, ollama, code, debug, " +
	"troubleshoot, docs, explain, trends, content, technical, brainstorm, ethics, automate, " +
	"visual, reasoning, math, general, other.\nReply with a single word, the intent label only.\n\nRequest: "

func (c *Classifier) tierJudge(ctx context.Context, text string, judge JudgeFn) (IntentLabel, bool) {
	if label, ok := c.cachedJudgment(text); ok {
		return label, true
	}

	reply, err := judge(ctx, judgePromptTemplate+text)
	if err != nil {
		c.logger.Warn("classifier: judge call failed", map[string]interface{}{"error": err.Error()})
		return "", false
	}

	fields := strings.Fields(strings.TrimSpace(reply))
	if len(fields) == 0 {
		c.logger.Warn("classifier: judge returned blank reply", nil)
		return "", false
	}

	label := IntentLabel(strings.ToLower(fields[0]))
	if !IsValid(label) {
		return "", false
	}

	c.mu.Lock()
	c.judgeCache[cacheKey(text)] = judgeCacheEntry{label: label, storedAt: time.Now()}
	c.mu.Unlock()

	return label, true
}

func (c *Classifier) cachedJudgment(text string) (IntentLabel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, found := c.judgeCache[cacheKey(text)]
	if !found {
		return "", false
	}
	if time.Since(entry.storedAt) > judgeCacheTTL {
		delete(c.judgeCache, cacheKey(text))
		return "", false
	}
	return entry.label, true
}

func cacheKey(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

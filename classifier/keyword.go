package classifier

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
)

var tokenPattern = regexp.MustCompile(`\b\w+\b`)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
	"at": {}, "to": {}, "for": {}, "with": {}, "is": {}, "am": {}, "are": {}, "was": {},
	"were": {}, "be": {}, "been": {}, "being": {}, "have": {}, "has": {}, "had": {},
	"do": {}, "does": {}, "did": {}, "i": {}, "you": {}, "he": {}, "she": {}, "it": {},
	"we": {}, "they": {}, "my": {}, "your": {}, "his": {}, "her": {}, "its": {},
	"our": {}, "their": {}, "me": {}, "him": {}, "us": {}, "them": {},
}

// DefaultKeywordTable maps an IntentLabel to the keywords that score it,
// grounded on original_source/models/keyword_classifier/classifier.py's
// keywords.json (a handful of representative defaults; NewKeywordScorer
// uses it when given a nil table, and callers with a fuller table pass
// it to NewKeywordScorer instead).
var DefaultKeywordTable = map[IntentLabel][]string{
	IntentTime:         {"time", "clock", "date", "today", "now"},
	IntentGitHub:       {"github", "repo", "repository", "pull", "commit", "issue"},
	IntentNotion:       {"notion", "page", "database", "note"},
	IntentCode:         {"code", "function", "bug", "compile", "program", "script"},
	IntentDebug:        {"debug", "error", "exception", "stacktrace", "crash"},
	IntentTroubleshoot: {"troubleshoot", "fix", "broken", "issue", "problem"},
	IntentDocs:         {"document", "documentation", "readme", "spec"},
	IntentExplain:      {"explain", "what", "how", "why", "understand"},
	IntentTrends:       {"trend", "trending", "forecast", "market"},
	IntentContent:      {"write", "blog", "post", "content", "article"},
	IntentBrainstorm:   {"brainstorm", "idea", "ideas", "creative"},
	IntentEthics:       {"ethics", "ethical", "moral", "bias"},
	IntentAutomate:     {"automate", "automation", "schedule", "workflow"},
	IntentVisual:       {"image", "picture", "diagram", "visual"},
	IntentReasoning:    {"reason", "logic", "prove", "deduce"},
	IntentMath:         {"math", "calculate", "equation", "sum", "solve"},
	IntentMemory:       {"remember", "recall", "memory", "save", "search memory"},
	IntentSystem:       {"status", "version", "uptime", "health"},
	IntentOllama:       {"ollama", "local model", "offline"},
	IntentPersonality:  {"personality", "mood", "tone", "persona"},
}

// KeywordScorer implements Tier 4: exact-match counts plus fuzzy-match
// similarity over tokens, minus stopwords, argmax label or "other" if
// every score is zero.
type KeywordScorer struct {
	table map[IntentLabel][]string
}

func NewKeywordScorer(table map[IntentLabel][]string) *KeywordScorer {
	if table == nil {
		table = DefaultKeywordTable
	}
	return &KeywordScorer{table: table}
}

// Classify implements the keyword tier. An exact token match scores a
// full point; an inexact match whose levenshtein.Match ratio is at or
// above fuzzyThreshold adds that ratio, and weaker matches add nothing.
const fuzzyThreshold = 0.82

func (k *KeywordScorer) Classify(text string) IntentLabel {
	tokens := tokenize(text)

	// Iterate labels in a fixed order so ties resolve the same way on
	// every call — k.table is a map and Go randomizes range order,
	// which previously let two equally-scored labels (e.g. "issue"
	// shared by github and troubleshoot) flip nondeterministically.
	labels := make([]IntentLabel, 0, len(k.table))
	for label := range k.table {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	var best IntentLabel = IntentOther
	bestScore := 0.0

	for _, label := range labels {
		keywords := k.table[label]
		score := 0.0
		for token := range tokens {
			for _, kw := range keywords {
				if token == kw {
					score += 1.0
					continue
				}
				ratio := levenshtein.Match(token, kw, nil)
				if ratio >= fuzzyThreshold {
					score += ratio
				}
			}
		}
		if score > bestScore {
			bestScore = score
			best = label
		}
	}

	if bestScore == 0 {
		return IntentOther
	}
	return best
}

func tokenize(text string) map[string]struct{} {
	matches := tokenPattern.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, stop := stopwords[m]; stop {
			continue
		}
		set[m] = struct{}{}
	}
	return set
}

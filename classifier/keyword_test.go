package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestKeywordScorer_TiedLabelsAreDeterministic covers spec.md §8
// invariant 7: DefaultKeywordTable deliberately shares "issue" between
// IntentGitHub and IntentTroubleshoot, so a tied score must resolve the
// same way on every call instead of varying with Go's randomized map
// iteration order.
func TestKeywordScorer_TiedLabelsAreDeterministic(t *testing.T) {
	scorer := NewKeywordScorer(DefaultKeywordTable)

	var first IntentLabel
	for i := 0; i < 50; i++ {
		label := scorer.Classify("there's an issue")
		if i == 0 {
			first = label
		}
		assert.Equal(t, first, label)
	}
	assert.Equal(t, IntentGitHub, first, "alphabetically-first label wins ties")
}

func TestKeywordScorer_ExactMatchScoresFullPoint(t *testing.T) {
	scorer := NewKeywordScorer(DefaultKeywordTable)
	assert.Equal(t, IntentTime, scorer.Classify("check the time"))
}

func TestKeywordScorer_NoMatchReturnsOther(t *testing.T) {
	scorer := NewKeywordScorer(DefaultKeywordTable)
	assert.Equal(t, IntentOther, scorer.Classify("zzz qqq wwq"))
}

package classifier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rapport/internal/models"
)

func entry(topicID int, keywords ...models.TopicKeyword) TopicEntry {
	return TopicEntry{
		Topic:    models.Topic{ID: topicID, Name: "Topic", IsActive: true},
		Keywords: keywords,
	}
}

func kw(keyword string, weight float64) models.TopicKeyword {
	return models.TopicKeyword{Keyword: keyword, Weight: weight}
}

func TestScoreKeyword_ExactMatchWithRepeatBonus(t *testing.T) {
	email := EmailFeatures{
		Subject: "Contract renewal",
		Body:    "please review the contract terms in the contract",
	}
	scores := scoreKeyword(email, []TopicEntry{entry(1, kw("contract", 1.0))})

	// 3 occurrences: 1.0 base + 2*0.1 repeat bonus, one matched keyword out
	// of 7 meaningful words, capped at score/10
	require.Contains(t, scores, 1)
	assert.InDelta(t, 1.2*(1+1.0/7)/10, scores[1], 1e-9)
}

func TestScoreKeyword_MultiWordPhrase(t *testing.T) {
	email := EmailFeatures{Subject: "Contract renewal discussion"}
	scores := scoreKeyword(email, []TopicEntry{entry(1, kw("contract renewal", 1.0))})

	// exact phrase plus the all-words-present partial credit
	require.Contains(t, scores, 1)
	assert.InDelta(t, 1.7*(1+1.0/3)/10, scores[1], 1e-9)
}

func TestScoreKeyword_WordsWithoutPhraseScoreNothing(t *testing.T) {
	// both words appear but never as the phrase; without an exact match the
	// topic is not reported
	email := EmailFeatures{Subject: "renewal of the customer contract"}
	scores := scoreKeyword(email, []TopicEntry{entry(1, kw("contract renewal", 1.0))})
	assert.NotContains(t, scores, 1)
}

func TestScoreKeyword_NoMatches(t *testing.T) {
	email := EmailFeatures{Subject: "weekly sync notes"}
	scores := scoreKeyword(email, []TopicEntry{entry(1, kw("invoice", 1.0))})
	assert.Empty(t, scores)
}

func TestScoreKeyword_EmptyEmail(t *testing.T) {
	scores := scoreKeyword(EmailFeatures{}, []TopicEntry{entry(1, kw("invoice", 1.0))})
	assert.Empty(t, scores)
}

func TestScoreEmbedding_ConfidenceWeightedAverage(t *testing.T) {
	emailVec := []float64{1, 0}
	vectors := map[int][]WeightedVector{
		1: {
			{Vector: []float64{1, 0}, Confidence: 3},
			{Vector: []float64{0, 1}, Confidence: 1},
		},
	}

	scores := scoreEmbedding(emailVec, vectors)
	require.Contains(t, scores, 1)
	assert.InDelta(t, 0.75, scores[1], 1e-9)
}

func TestScoreEmbedding_SkipsZeroConfidence(t *testing.T) {
	scores := scoreEmbedding([]float64{1, 0}, map[int][]WeightedVector{
		1: {{Vector: []float64{1, 0}, Confidence: 0}},
	})
	assert.Empty(t, scores)

	assert.Empty(t, scoreEmbedding(nil, map[int][]WeightedVector{
		1: {{Vector: []float64{1, 0}, Confidence: 1}},
	}))
}

func TestScoreContext_SenderHistoryWithBoosts(t *testing.T) {
	now := time.Now()
	email := EmailFeatures{
		Subject:        "Re: renewal status",
		SenderEmail:    "csm@wiredtriangle.com",
		RecipientEmail: "cto@acme.io",
		Date:           now.Add(-24 * time.Hour),
	}
	entries := []TopicEntry{entry(1), entry(3)}
	history := []TopicConfidence{
		{TopicID: 1, Confidence: 0.8},
		{TopicID: 1, Confidence: 0.6},
	}

	scores := scoreContext(email, entries, history, []string{"wiredtriangle.com"}, now)
	require.Contains(t, scores, 1)
	require.Contains(t, scores, 3)

	// boosts: internal sender 0.2, threaded subject 0.3, sent yesterday 0.2,
	// external recipient 0.1
	boost := 0.1 * (0.2 + 0.3 + 0.2 + 0.1)
	// topic 1 adds its halved average history confidence on top
	assert.InDelta(t, 0.7*0.5+boost, scores[1], 1e-9)
	// topic 3 has no history with this sender but still gets the flat boost
	assert.InDelta(t, boost, scores[3], 1e-9)
}

func TestScoreContext_NoHistoryBoostsEveryTopic(t *testing.T) {
	now := time.Now()
	email := EmailFeatures{Subject: "quarterly report", Date: now}

	scores := scoreContext(email, []TopicEntry{entry(1), entry(2)}, nil, nil, now)
	require.Len(t, scores, 2)

	// addressless sender and recipient 0.1 each, plain subject 0.1, fresh 0.2
	boost := 0.1 * (0.1 + 0.1 + 0.2 + 0.1)
	assert.InDelta(t, boost, scores[1], 1e-9)
	assert.InDelta(t, boost, scores[2], 1e-9)
}

func TestScoreContext_NoTopics(t *testing.T) {
	scores := scoreContext(EmailFeatures{}, nil, nil, nil, time.Now())
	assert.Empty(t, scores)
}

func TestScoreContext_OldUnthreadedExternal(t *testing.T) {
	now := time.Now()
	email := EmailFeatures{
		Subject:        "quarterly report",
		SenderEmail:    "someone@acme.io",
		RecipientEmail: "other@acme.io",
		Date:           now.AddDate(0, -6, 0),
	}
	history := []TopicConfidence{{TopicID: 2, Confidence: 1.0}}

	scores := scoreContext(email, []TopicEntry{entry(2)}, history, []string{"wiredtriangle.com"}, now)
	require.Contains(t, scores, 2)
	assert.InDelta(t, 0.5+0.1*(0.1+0.1+0+0.1), scores[2], 1e-9)
}

func TestScoreFrequency_CappedShare(t *testing.T) {
	scores := scoreFrequency(map[int]int{1: 9, 2: 1})
	require.Len(t, scores, 2)
	assert.InDelta(t, 0.5, scores[1], 1e-9) // 1.8 capped
	assert.InDelta(t, 0.2, scores[2], 1e-9)
}

func TestScoreFrequency_NoAssignments(t *testing.T) {
	assert.Empty(t, scoreFrequency(nil))
	assert.Empty(t, scoreFrequency(map[int]int{1: 0}))
}

func TestCombineScores_RenormalizesOverMethodsThatRan(t *testing.T) {
	combined, breakdown := combineScores(map[string]map[int]float64{
		models.MethodKeyword:   {1: 0.6, 2: 0.5},
		models.MethodEmbedding: {1: 0.8},
	})

	// topic 1: (0.6*0.4 + 0.8*0.6) / (0.4 + 0.6)
	assert.InDelta(t, 0.72, combined[1], 1e-9)
	// topic 2 saw only the keyword method, but both methods ran, so the
	// embedding weight still divides its score: 0.5*0.4 / (0.4 + 0.6)
	assert.InDelta(t, 0.2, combined[2], 1e-9)

	assert.Equal(t, map[string]float64{
		models.MethodKeyword:   0.6,
		models.MethodEmbedding: 0.8,
	}, breakdown[1])
}

func TestCombineScores_SingleScoringMethodIsDiluted(t *testing.T) {
	combined, _ := combineScores(map[string]map[int]float64{
		models.MethodKeyword:   {1: 0.35},
		models.MethodFrequency: {2: 0.05},
	})

	// keyword and frequency both ran, so topic 1 combines to
	// 0.35*0.4 / (0.4 + 0.2), not the raw keyword score
	assert.InDelta(t, 0.35*0.4/0.6, combined[1], 1e-9)
	assert.InDelta(t, 0.05*0.2/0.6, combined[2], 1e-9)
}

func TestCombineScores_EmptyMethodStillCountsItsWeight(t *testing.T) {
	// frequency ran and scored nothing; its weight dilutes topic 1 anyway
	combined, _ := combineScores(map[string]map[int]float64{
		models.MethodKeyword:   {1: 0.6},
		models.MethodFrequency: {},
	})
	assert.InDelta(t, 0.6*0.4/0.6, combined[1], 1e-9)
}

func TestCombineScores_Empty(t *testing.T) {
	combined, breakdown := combineScores(nil)
	assert.Empty(t, combined)
	assert.Empty(t, breakdown)
}

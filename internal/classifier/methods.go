package classifier

import (
	"strings"
	"time"

	"rapport/internal/embeddings"
	"rapport/internal/models"
	"rapport/internal/utils"
)

// Per-method weights used when combining scores. The combined confidence is
// renormalized over the weight of every method that ran, so a method that ran
// but produced no score for a topic still dilutes that topic's confidence.
const (
	weightKeyword   = 0.4
	weightEmbedding = 0.6
	weightContext   = 0.3
	weightFrequency = 0.2
)

// ConfidenceThreshold is the minimum combined confidence for a topic to be
// reported or persisted
const ConfidenceThreshold = 0.3

// maxAssignmentVectors caps how many prior assignment embeddings represent a
// topic in the embedding method
const maxAssignmentVectors = 20

// EmailFeatures is the classification input extracted from one email
type EmailFeatures struct {
	ID             int
	CustomerID     int
	Subject        string
	Body           string
	SenderEmail    string
	RecipientEmail string
	Date           time.Time
}

// TopicEntry is an active topic with its weighted keywords
type TopicEntry struct {
	Topic    models.Topic
	Keywords []models.TopicKeyword
}

// WeightedVector is a prior assignment's embedding with its confidence
type WeightedVector struct {
	Vector     []float64
	Confidence float64
}

// TopicConfidence is one historical assignment used by the context method
type TopicConfidence struct {
	TopicID    int     `db:"topic_id"`
	Confidence float64 `db:"confidence_score"`
}

// scoreKeyword matches each topic's keywords against the email text. Exact
// substring matches earn the keyword's weight plus a small bonus per repeat
// occurrence; a multi-word keyword whose words all appear individually earns
// a partial credit. Topics with no matches are absent from the result.
func scoreKeyword(email EmailFeatures, entries []TopicEntry) map[int]float64 {
	text := strings.ToLower(email.Subject + " " + email.Body)
	wordCount := len(utils.ExtractWords(text, 2))
	if wordCount == 0 {
		return nil
	}

	scores := make(map[int]float64)
	for _, entry := range entries {
		var score float64
		matches := 0

		for _, kw := range entry.Keywords {
			keyword := strings.ToLower(kw.Keyword)
			if keyword == "" {
				continue
			}

			if strings.Contains(text, keyword) {
				matches++
				score += kw.Weight
				if occurrences := strings.Count(text, keyword); occurrences > 1 {
					score += float64(occurrences-1) * kw.Weight * 0.1
				}
			}

			parts := strings.Fields(keyword)
			if len(parts) > 1 {
				allPresent := true
				for _, part := range parts {
					if !strings.Contains(text, part) {
						allPresent = false
						break
					}
				}
				if allPresent {
					score += kw.Weight * 0.7
				}
			}
		}

		if matches == 0 {
			continue
		}

		score *= 1 + float64(matches)/float64(wordCount)
		score = score / 10
		if score > 1 {
			score = 1
		}
		scores[entry.Topic.ID] = score
	}

	return scores
}

// scoreEmbedding compares the email's embedding against each topic's prior
// assignment embeddings and takes the confidence-weighted mean similarity.
// Topics with no embedded assignments are absent from the result.
func scoreEmbedding(emailVec []float64, topicVectors map[int][]WeightedVector) map[int]float64 {
	if len(emailVec) == 0 {
		return nil
	}

	scores := make(map[int]float64)
	for topicID, vectors := range topicVectors {
		if len(vectors) > maxAssignmentVectors {
			vectors = vectors[:maxAssignmentVectors]
		}

		var weightedSum, confidenceSum float64
		for _, wv := range vectors {
			weightedSum += embeddings.Similarity(emailVec, wv.Vector) * wv.Confidence
			confidenceSum += wv.Confidence
		}
		if confidenceSum == 0 {
			continue
		}

		score := weightedSum / confidenceSum
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		scores[topicID] = score
	}

	return scores
}

// Thread reply/forward markers checked by the context method
var threadPrefixes = []string{"re:", "fwd:", "fw:", "reply:", "forward:"}

// scoreContext scores every supplied topic from the sender's assignment
// history plus flat email-shape factors: sender domain, threaded subject,
// recency, and recipient domain. Topics the history never surfaced still
// receive the flat boost, so context nudges every topic's confidence without
// reordering topics the sender has no record with.
func scoreContext(email EmailFeatures, entries []TopicEntry, history []TopicConfidence, internalDomains []string, now time.Time) map[int]float64 {
	if len(entries) == 0 {
		return nil
	}

	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, h := range history {
		sums[h.TopicID] += h.Confidence
		counts[h.TopicID]++
	}

	boost := contextBoost(email, internalDomains, now)

	scores := make(map[int]float64, len(entries))
	for _, entry := range entries {
		topicID := entry.Topic.ID
		score := boost
		if counts[topicID] > 0 {
			score += (sums[topicID] / float64(counts[topicID])) * 0.5
		}
		if score > 1 {
			score = 1
		}
		scores[topicID] = score
	}

	return scores
}

func contextBoost(email EmailFeatures, internalDomains []string, now time.Time) float64 {
	domainFactor := func(address string) float64 {
		at := strings.LastIndex(address, "@")
		if at < 0 {
			return 0.1
		}
		domain := strings.ToLower(address[at+1:])
		for _, internal := range internalDomains {
			if domain == internal {
				return 0.2
			}
		}
		return 0.1
	}

	subjectFactor := 0.1
	subject := strings.ToLower(strings.TrimSpace(email.Subject))
	for _, prefix := range threadPrefixes {
		if strings.HasPrefix(subject, prefix) {
			subjectFactor = 0.3
			break
		}
	}

	recencyFactor := 0.0
	age := now.Sub(email.Date)
	switch {
	case age <= 7*24*time.Hour:
		recencyFactor = 0.2
	case age <= 30*24*time.Hour:
		recencyFactor = 0.1
	}

	return 0.1 * (domainFactor(email.SenderEmail) + subjectFactor + recencyFactor + domainFactor(email.RecipientEmail))
}

// scoreFrequency favors topics that dominated the customer's recent
// assignments. The share is doubled and capped so frequency alone can never
// clear the confidence threshold by much.
func scoreFrequency(assignmentCounts map[int]int) map[int]float64 {
	total := 0
	for _, count := range assignmentCounts {
		total += count
	}
	if total == 0 {
		return nil
	}

	scores := make(map[int]float64, len(assignmentCounts))
	for topicID, count := range assignmentCounts {
		if count == 0 {
			continue
		}
		score := float64(count) / float64(total) * 2
		if score > 0.5 {
			score = 0.5
		}
		scores[topicID] = score
	}

	return scores
}

var methodWeights = map[string]float64{
	models.MethodKeyword:   weightKeyword,
	models.MethodEmbedding: weightEmbedding,
	models.MethodContext:   weightContext,
	models.MethodFrequency: weightFrequency,
}

// combineScores merges per-method scores into one confidence per topic,
// dividing each topic's weighted sum by the total weight of every method
// present in methodScores. A method that ran but scored nothing for a topic
// therefore dilutes that topic's confidence instead of being ignored. Also
// returns the per-topic method breakdown.
func combineScores(methodScores map[string]map[int]float64) (map[int]float64, map[int]map[string]float64) {
	var totalWeight float64
	for method := range methodScores {
		totalWeight += methodWeights[method]
	}

	combined := make(map[int]float64)
	breakdown := make(map[int]map[string]float64)
	if totalWeight == 0 {
		return combined, breakdown
	}

	for method, scores := range methodScores {
		weight := methodWeights[method]
		for topicID, score := range scores {
			combined[topicID] += score * weight
			if breakdown[topicID] == nil {
				breakdown[topicID] = make(map[string]float64)
			}
			breakdown[topicID][method] = score
		}
	}
	for topicID := range combined {
		combined[topicID] /= totalWeight
	}

	return combined, breakdown
}

// Package classifier assigns topics to emails by combining keyword,
// embedding, context, and frequency evidence.
package classifier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"rapport/internal/embeddings"
	"rapport/internal/models"
	"rapport/internal/topics"
	"rapport/internal/utils"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrEmailNotFound is returned when the email to classify does not exist
var ErrEmailNotFound = errors.New("email not found")

const (
	// minClusterSize is the minimum number of unclassified emails before
	// topic suggestions are attempted, and the minimum word recurrence for
	// a suggestion
	minClusterSize = 3

	// defaultBatchLimit bounds one auto-classification run
	defaultBatchLimit = 50
)

// Classifier scores emails against the active topic hierarchy
type Classifier struct {
	db              *sqlx.DB
	store           *topics.Store
	embedder        *embeddings.Service
	internalDomains []string
	logger          zerolog.Logger
	now             func() time.Time
}

// New creates a classifier
func New(db *sqlx.DB, store *topics.Store, embedder *embeddings.Service, internalDomains []string, logger zerolog.Logger) *Classifier {
	return &Classifier{
		db:              db,
		store:           store,
		embedder:        embedder,
		internalDomains: internalDomains,
		logger:          logger.With().Str("component", "classifier").Logger(),
		now:             time.Now,
	}
}

// allMethods is the default method selection, in reporting order
var allMethods = []string{models.MethodKeyword, models.MethodEmbedding, models.MethodContext, models.MethodFrequency}

// ClassifyEmail scores one email against every active topic using the
// requested methods; an empty selection means all four. The embedding method
// only participates when the email has a stored embedding, and the final
// confidence is renormalized over the methods that actually ran.
func (c *Classifier) ClassifyEmail(ctx context.Context, emailID int, methods []string) (*models.ClassificationResult, error) {
	if len(methods) == 0 {
		methods = allMethods
	}
	requested := make(map[string]bool, len(methods))
	for _, method := range methods {
		requested[method] = true
	}

	email, err := c.loadEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}

	entries, err := c.loadTopicEntries(ctx)
	if err != nil {
		return nil, err
	}

	// Every method that ran gets an entry, even with no scores, so its weight
	// counts toward the renormalization.
	methodScores := make(map[string]map[int]float64)

	if requested[models.MethodKeyword] {
		methodScores[models.MethodKeyword] = scoreKeyword(*email, entries)
	}

	if requested[models.MethodEmbedding] {
		emailVec, err := c.embedder.LoadEmailEmbedding(ctx, emailID)
		if err != nil {
			c.logger.Warn().Err(err).Int("email_id", emailID).Msg("skipping embedding method")
		} else if len(emailVec) > 0 {
			topicVectors, err := c.loadTopicVectors(ctx)
			if err != nil {
				return nil, err
			}
			methodScores[models.MethodEmbedding] = scoreEmbedding(emailVec, topicVectors)
		}
	}

	if requested[models.MethodContext] {
		history, err := c.loadSenderHistory(ctx, email)
		if err != nil {
			return nil, err
		}
		methodScores[models.MethodContext] = scoreContext(*email, entries, history, c.internalDomains, c.now())
	}

	if requested[models.MethodFrequency] {
		counts, err := c.loadRecentAssignmentCounts(ctx, email)
		if err != nil {
			return nil, err
		}
		methodScores[models.MethodFrequency] = scoreFrequency(counts)
	}

	combined, breakdown := combineScores(methodScores)

	methodsUsed := make([]string, 0, len(methodScores))
	for _, method := range allMethods {
		if _, ran := methodScores[method]; ran {
			methodsUsed = append(methodsUsed, method)
		}
	}

	names := make(map[int]string, len(entries))
	for _, entry := range entries {
		names[entry.Topic.ID] = entry.Topic.Name
	}

	var classifications []models.TopicScore
	for topicID, score := range combined {
		if score < ConfidenceThreshold {
			continue
		}
		classifications = append(classifications, models.TopicScore{
			TopicID:         topicID,
			TopicName:       names[topicID],
			ConfidenceScore: score,
			MethodBreakdown: breakdown[topicID],
		})
	}
	sort.Slice(classifications, func(i, j int) bool {
		if classifications[i].ConfidenceScore != classifications[j].ConfidenceScore {
			return classifications[i].ConfidenceScore > classifications[j].ConfidenceScore
		}
		return classifications[i].TopicID < classifications[j].TopicID
	})

	return &models.ClassificationResult{
		EmailID:               emailID,
		Classifications:       classifications,
		MethodsUsed:           methodsUsed,
		TotalTopicsConsidered: len(entries),
		ConfidentTopics:       len(classifications),
	}, nil
}

// ClassifyBatch classifies a customer's unclassified emails, most recent
// first. Per-email failures are recorded and the batch continues; confident
// topics are persisted as auto_classification assignments.
func (c *Classifier) ClassifyBatch(ctx context.Context, customerID, limit int, forceReclassify bool) (*models.BatchClassificationResult, error) {
	if limit <= 0 {
		limit = defaultBatchLimit
	}

	emails, err := c.loadBatchEmails(ctx, customerID, limit, forceReclassify)
	if err != nil {
		return nil, err
	}

	result := &models.BatchClassificationResult{}
	if len(emails) == 0 {
		result.Message = "No unclassified emails found"
		return result, nil
	}

	for _, email := range emails {
		classification, err := c.ClassifyEmail(ctx, email.ID, nil)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("email %d: %v", email.ID, err))
			continue
		}
		result.Processed++

		if len(classification.Classifications) == 0 {
			result.Skipped++
			continue
		}

		summary := models.EmailClassification{EmailID: email.ID, Subject: email.Subject}
		persisted := 0
		for _, topicScore := range classification.Classifications {
			err := c.store.AssignTopicToEmail(ctx, email.ID, topicScore.TopicID,
				topicScore.ConfidenceScore, models.MethodAutoClassification, "system")
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("email %d topic %d: %v", email.ID, topicScore.TopicID, err))
				continue
			}
			persisted++
			summary.Topics = append(summary.Topics, models.AssignedSummary{
				TopicName:  topicScore.TopicName,
				Confidence: topicScore.ConfidenceScore,
			})
		}

		if persisted > 0 {
			result.Classified++
			result.Classifications = append(result.Classifications, summary)
		} else {
			result.Skipped++
		}
	}

	c.logger.Info().
		Int("customer_id", customerID).
		Int("processed", result.Processed).
		Int("classified", result.Classified).
		Int("skipped", result.Skipped).
		Msg("batch classification complete")

	return result, nil
}

// SuggestTopics mines recurring subject words from a customer's unclassified
// emails and proposes them as topic names. Needs at least a handful of
// unclassified emails before any suggestion is made.
func (c *Classifier) SuggestTopics(ctx context.Context, customerID int) ([]models.TopicSuggestion, error) {
	var emails []models.EmailThread
	query := c.db.Rebind(`
		SELECT e.id, e.customer_id, e.subject, e.date
		FROM email_threads e
		WHERE e.customer_id = ?
		  AND NOT EXISTS (SELECT 1 FROM email_topics et WHERE et.email_id = e.id)
		ORDER BY e.date DESC`)
	if err := c.db.SelectContext(ctx, &emails, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to load unclassified emails: %w", err)
	}

	if len(emails) < minClusterSize {
		return nil, nil
	}

	wordCounts := make(map[string]int)
	wordSubjects := make(map[string][]string)
	for _, email := range emails {
		for word := range utils.WordSet(3, email.Subject) {
			wordCounts[word]++
			if len(wordSubjects[word]) < 3 {
				wordSubjects[word] = append(wordSubjects[word], email.Subject)
			}
		}
	}

	words := make([]string, 0, len(wordCounts))
	for word, count := range wordCounts {
		if count >= minClusterSize {
			words = append(words, word)
		}
	}
	sort.Slice(words, func(i, j int) bool {
		if wordCounts[words[i]] != wordCounts[words[j]] {
			return wordCounts[words[i]] > wordCounts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > 20 {
		words = words[:20]
	}

	titler := cases.Title(language.English)
	suggestions := make([]models.TopicSuggestion, 0, len(words))
	for _, word := range words {
		confidence := float64(wordCounts[word]) / 10
		if confidence > 1 {
			confidence = 1
		}
		suggestions = append(suggestions, models.TopicSuggestion{
			SuggestedName:  titler.String(word),
			EmailCount:     wordCounts[word],
			SampleSubjects: wordSubjects[word],
			Confidence:     confidence,
		})
	}

	return suggestions, nil
}

// MaterializeClusters turns embedding clusters into real topics and
// assignments. Existing topics with the cluster name are reused; new ones are
// created at the root level. Per-cluster failures are recorded without
// aborting the run.
func (c *Classifier) MaterializeClusters(ctx context.Context, clusters []embeddings.ClusterTopic) (*models.ClusterMaterializationResult, error) {
	result := &models.ClusterMaterializationResult{Clusters: len(clusters)}
	createdBy := "system"

	for _, cluster := range clusters {
		topic, err := c.store.FindTopicByName(ctx, cluster.Name)
		if errors.Is(err, topics.ErrNotFound) {
			topic, err = c.store.CreateTopic(ctx, topics.CreateTopicRequest{
				Name:          cluster.Name,
				CreatedBy:     &createdBy,
				AutoGenerated: true,
				Confidence:    cluster.Confidence,
			})
			if err == nil {
				result.TopicsCreated++
			}
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("cluster %q: %v", cluster.Name, err))
			continue
		}

		for _, emailID := range cluster.EmailIDs {
			if err := c.store.AssignTopicToEmail(ctx, emailID, topic.ID, cluster.Confidence, models.MethodEmbeddingClustering, createdBy); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("email %d: %v", emailID, err))
				continue
			}
			result.EmailsAssigned++
		}
	}

	if err := c.store.UpdateTopicStatistics(ctx); err != nil {
		return nil, fmt.Errorf("failed to refresh topic statistics: %w", err)
	}
	return result, nil
}

func (c *Classifier) loadEmail(ctx context.Context, emailID int) (*EmailFeatures, error) {
	var email models.EmailThread
	query := c.db.Rebind(`
		SELECT id, customer_id, subject, date, sender_email, recipient_email, body_preview, body_full
		FROM email_threads WHERE id = ?`)
	if err := c.db.GetContext(ctx, &email, query, emailID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEmailNotFound
		}
		return nil, fmt.Errorf("failed to load email %d: %w", emailID, err)
	}

	features := &EmailFeatures{
		ID:         email.ID,
		CustomerID: email.CustomerID,
		Subject:    email.Subject,
		Body:       email.Body(),
		Date:       email.Date,
	}
	if email.SenderEmail != nil {
		features.SenderEmail = *email.SenderEmail
	}
	if email.RecipientEmail != nil {
		features.RecipientEmail = *email.RecipientEmail
	}
	return features, nil
}

func (c *Classifier) loadTopicEntries(ctx context.Context) ([]TopicEntry, error) {
	var allTopics []models.Topic
	if err := c.db.SelectContext(ctx, &allTopics,
		`SELECT * FROM topics WHERE is_active = TRUE`); err != nil {
		return nil, fmt.Errorf("failed to load topics: %w", err)
	}

	var keywords []models.TopicKeyword
	if err := c.db.SelectContext(ctx, &keywords,
		`SELECT * FROM topic_keywords ORDER BY topic_id, weight DESC`); err != nil {
		return nil, fmt.Errorf("failed to load keywords: %w", err)
	}

	byTopic := make(map[int][]models.TopicKeyword)
	for _, kw := range keywords {
		byTopic[kw.TopicID] = append(byTopic[kw.TopicID], kw)
	}

	entries := make([]TopicEntry, 0, len(allTopics))
	for _, topic := range allTopics {
		entries = append(entries, TopicEntry{Topic: topic, Keywords: byTopic[topic.ID]})
	}
	return entries, nil
}

func (c *Classifier) loadTopicVectors(ctx context.Context) (map[int][]WeightedVector, error) {
	var rows []struct {
		TopicID    int     `db:"topic_id"`
		Confidence float64 `db:"confidence_score"`
		Embedding  string  `db:"embedding"`
	}
	query := `
		SELECT et.topic_id, et.confidence_score, e.embedding
		FROM email_topics et
		JOIN email_threads e ON e.id = et.email_id
		WHERE e.has_embedding = TRUE AND e.embedding IS NOT NULL
		ORDER BY et.topic_id, et.confidence_score DESC`
	if err := c.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to load topic assignment embeddings: %w", err)
	}

	vectors := make(map[int][]WeightedVector)
	for _, row := range rows {
		if len(vectors[row.TopicID]) >= maxAssignmentVectors {
			continue
		}
		vec, err := embeddings.DecodeVector(row.Embedding)
		if err != nil {
			continue
		}
		vectors[row.TopicID] = append(vectors[row.TopicID], WeightedVector{Vector: vec, Confidence: row.Confidence})
	}
	return vectors, nil
}

func (c *Classifier) loadSenderHistory(ctx context.Context, email *EmailFeatures) ([]TopicConfidence, error) {
	if email.SenderEmail == "" {
		return nil, nil
	}

	var history []TopicConfidence
	query := c.db.Rebind(`
		SELECT et.topic_id, et.confidence_score
		FROM email_topics et
		JOIN email_threads e ON e.id = et.email_id
		WHERE e.customer_id = ? AND e.sender_email = ? AND e.id != ?
		ORDER BY e.date DESC
		LIMIT 10`)
	if err := c.db.SelectContext(ctx, &history, query, email.CustomerID, email.SenderEmail, email.ID); err != nil {
		return nil, fmt.Errorf("failed to load sender history: %w", err)
	}
	return history, nil
}

func (c *Classifier) loadRecentAssignmentCounts(ctx context.Context, email *EmailFeatures) (map[int]int, error) {
	since := c.now().AddDate(0, -1, 0)

	var rows []struct {
		TopicID int `db:"topic_id"`
		Count   int `db:"assignment_count"`
	}
	query := c.db.Rebind(`
		SELECT et.topic_id, COUNT(*) AS assignment_count
		FROM email_topics et
		JOIN email_threads e ON e.id = et.email_id
		WHERE e.customer_id = ? AND e.date >= ?
		GROUP BY et.topic_id`)
	if err := c.db.SelectContext(ctx, &rows, query, email.CustomerID, since); err != nil {
		return nil, fmt.Errorf("failed to load recent assignment counts: %w", err)
	}

	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.TopicID] = row.Count
	}
	return counts, nil
}

func (c *Classifier) loadBatchEmails(ctx context.Context, customerID, limit int, forceReclassify bool) ([]models.EmailThread, error) {
	var emails []models.EmailThread
	var query string
	if forceReclassify {
		query = c.db.Rebind(`
			SELECT e.id, e.customer_id, e.subject, e.date
			FROM email_threads e
			WHERE e.customer_id = ?
			ORDER BY e.date DESC
			LIMIT ?`)
	} else {
		query = c.db.Rebind(`
			SELECT e.id, e.customer_id, e.subject, e.date
			FROM email_threads e
			WHERE e.customer_id = ?
			  AND NOT EXISTS (SELECT 1 FROM email_topics et WHERE et.email_id = e.id)
			ORDER BY e.date DESC
			LIMIT ?`)
	}
	if err := c.db.SelectContext(ctx, &emails, query, customerID, limit); err != nil {
		return nil, fmt.Errorf("failed to load batch emails: %w", err)
	}
	return emails, nil
}

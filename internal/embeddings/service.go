package embeddings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rapport/internal/models"
	"rapport/internal/openai"
	"rapport/internal/utils"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	remoteBatchSize  = 20
	localBatchSize   = 100
	clusterThreshold = 0.8
	minClusterSize   = 3
)

// Service generates, stores, and compares embeddings for emails.
// When no remote provider is configured every call transparently uses the
// local hash embedding, so the rest of the system never branches on provider
// availability.
type Service struct {
	client *openai.Client // nil when remote embeddings are unavailable
	db     *sqlx.DB
	logger zerolog.Logger
}

// NewService creates an embedding service. client may be nil.
func NewService(client *openai.Client, db *sqlx.DB, logger zerolog.Logger) *Service {
	if client == nil {
		logger.Info().Msg("remote embeddings unavailable, using local fallback")
	} else {
		logger.Info().Str("model", client.Model()).Msg("remote embeddings enabled")
	}
	return &Service{
		client: client,
		db:     db,
		logger: logger.With().Str("component", "embeddings").Logger(),
	}
}

// RemoteEnabled reports whether a remote provider is configured
func (s *Service) RemoteEnabled() bool {
	return s.client != nil
}

// Embed produces an embedding for text and reports the model that made it.
// Remote failures fall back to the local embedding rather than erroring.
func (s *Service) Embed(ctx context.Context, text string) ([]float64, string) {
	if s.client != nil {
		vecs, err := s.client.CreateEmbeddings(ctx, []string{text})
		if err == nil && len(vecs) == 1 {
			return Float32To64(vecs[0]), s.client.Model()
		}
		s.logger.Warn().Err(err).Msg("remote embedding failed, falling back to local")
	}
	return LocalEmbed(text), LocalModel
}

// EmbedBatch embeds texts in order, returning one vector and one model name
// per text. One remote call covers the whole batch; any text the remote call
// did not cover gets the local embedding instead, so a partial remote response
// never loses positions.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float64, []string) {
	var remote [][]float64
	remoteModel := LocalModel
	if s.client != nil {
		vecs, err := s.client.CreateEmbeddings(ctx, texts)
		if err != nil {
			s.logger.Warn().Err(err).Msg("remote batch embedding failed, falling back to local")
		} else {
			remote = make([][]float64, len(vecs))
			for i, v := range vecs {
				remote[i] = Float32To64(v)
			}
			remoteModel = s.client.Model()
		}
	}
	return fillMissingVectors(texts, remote, remoteModel)
}

// fillMissingVectors substitutes the local embedding for every position the
// remote response left empty or missing
func fillMissingVectors(texts []string, remote [][]float64, remoteModel string) ([][]float64, []string) {
	vectors := make([][]float64, len(texts))
	modelNames := make([]string, len(texts))
	for i, text := range texts {
		if i < len(remote) && len(remote[i]) > 0 {
			vectors[i] = remote[i]
			modelNames[i] = remoteModel
			continue
		}
		vectors[i] = LocalEmbed(text)
		modelNames[i] = LocalModel
	}
	return vectors, modelNames
}

// EmailEmbedding pairs an email id with its decoded vector
type EmailEmbedding struct {
	EmailID int
	Vector  []float64
}

// LoadEmailEmbedding fetches and decodes the stored embedding for one email.
// Returns nil when the email has no embedding yet.
func (s *Service) LoadEmailEmbedding(ctx context.Context, emailID int) ([]float64, error) {
	var raw *string
	query := s.db.Rebind(`SELECT embedding FROM email_threads WHERE id = ? AND has_embedding = TRUE`)
	if err := s.db.GetContext(ctx, &raw, query, emailID); err != nil {
		return nil, nil
	}
	if raw == nil || *raw == "" {
		return nil, nil
	}
	vec, err := DecodeVector(*raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedding for email %d: %w", emailID, err)
	}
	return vec, nil
}

// BackfillEmailEmbeddings embeds every email of a customer that does not have
// one yet. Batches are sized for the active provider, and per-email storage
// failures are counted instead of aborting the run.
func (s *Service) BackfillEmailEmbeddings(ctx context.Context, customerID int) (*models.EmbeddingBackfillResult, error) {
	var emails []models.EmailThread
	query := s.db.Rebind(`
		SELECT id, customer_id, subject, date, body_preview, body_full
		FROM email_threads
		WHERE customer_id = ? AND has_embedding = FALSE
		ORDER BY date DESC`)
	if err := s.db.SelectContext(ctx, &emails, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to load emails for backfill: %w", err)
	}

	result := &models.EmbeddingBackfillResult{Total: len(emails)}
	if len(emails) == 0 {
		return result, nil
	}

	batchSize := localBatchSize
	if s.client != nil {
		batchSize = remoteBatchSize
	}

	for start := 0; start < len(emails); start += batchSize {
		end := start + batchSize
		if end > len(emails) {
			end = len(emails)
		}
		batch := emails[start:end]

		texts := make([]string, len(batch))
		for i, email := range batch {
			texts[i] = email.Subject + "\n" + email.Body()
		}

		vectors, modelNames := s.EmbedBatch(ctx, texts)

		for i, email := range batch {
			encoded, err := EncodeVector(vectors[i])
			if err != nil {
				result.Errors++
				continue
			}
			_, err = s.db.ExecContext(ctx, s.db.Rebind(`
				UPDATE email_threads
				SET embedding = ?, embedding_model = ?, has_embedding = TRUE, embedding_processed_at = ?
				WHERE id = ?`),
				encoded, modelNames[i], time.Now().UTC(), email.ID)
			if err != nil {
				s.logger.Warn().Err(err).Int("email_id", email.ID).Msg("failed to store embedding")
				result.Errors++
				continue
			}
			result.Processed++
		}
	}

	s.logger.Info().
		Int("customer_id", customerID).
		Int("processed", result.Processed).
		Int("errors", result.Errors).
		Msg("embedding backfill complete")

	return result, nil
}

// ClusterTopic is a topic candidate mined from embedding clusters
type ClusterTopic struct {
	Name           string   `json:"name"`
	EmailIDs       []int    `json:"email_ids"`
	Confidence     float64  `json:"confidence"`
	SampleSubjects []string `json:"sample_subjects"`
}

// ExtractTopicsFromEmbeddings groups a customer's embedded emails into
// clusters of mutually similar messages and names each cluster from its most
// common subject words. Greedy single-pass assignment: each email joins the
// first existing cluster whose seed scores above the similarity threshold.
func (s *Service) ExtractTopicsFromEmbeddings(ctx context.Context, customerID int) ([]ClusterTopic, error) {
	var emails []models.EmailThread
	query := s.db.Rebind(`
		SELECT id, customer_id, subject, date, embedding
		FROM email_threads
		WHERE customer_id = ? AND has_embedding = TRUE
		ORDER BY date DESC`)
	if err := s.db.SelectContext(ctx, &emails, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to load embedded emails: %w", err)
	}

	type cluster struct {
		seed   []float64
		emails []models.EmailThread
	}
	var clusters []*cluster

	for _, email := range emails {
		if email.Embedding == nil {
			continue
		}
		vec, err := DecodeVector(*email.Embedding)
		if err != nil {
			continue
		}

		placed := false
		for _, c := range clusters {
			if Similarity(vec, c.seed) > clusterThreshold {
				c.emails = append(c.emails, email)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, &cluster{seed: vec, emails: []models.EmailThread{email}})
		}
	}

	titler := cases.Title(language.English)
	var topics []ClusterTopic
	for _, c := range clusters {
		if len(c.emails) < minClusterSize {
			continue
		}

		name := clusterName(c.emails, titler)
		if name == "" {
			continue
		}

		confidence := 0.7
		if len(c.emails) >= 5 {
			confidence = 0.8
		}

		topic := ClusterTopic{
			Name:       name,
			Confidence: confidence,
		}
		for _, email := range c.emails {
			topic.EmailIDs = append(topic.EmailIDs, email.ID)
			if len(topic.SampleSubjects) < 3 {
				topic.SampleSubjects = append(topic.SampleSubjects, email.Subject)
			}
		}
		topics = append(topics, topic)
	}

	sort.Slice(topics, func(i, j int) bool {
		return len(topics[i].EmailIDs) > len(topics[j].EmailIDs)
	})

	return topics, nil
}

// clusterName joins the three most common subject words, title-cased
func clusterName(emails []models.EmailThread, titler cases.Caser) string {
	counts := make(map[string]int)
	for _, email := range emails {
		for word := range utils.WordSet(3, email.Subject) {
			counts[word]++
		}
	}
	if len(counts) == 0 {
		return ""
	}

	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > 3 {
		words = words[:3]
	}
	return titler.String(strings.Join(words, " "))
}

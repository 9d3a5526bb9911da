// Package correlation links customer files to the emails that discuss them
// and scores each file's importance from those links.
package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"rapport/internal/embeddings"
	"rapport/internal/models"
	"rapport/internal/utils"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Correlation heuristic tags, comma-joined into correlation_type
const (
	tagSubjectMention = "subject_mention"
	tagBodyMention    = "body_mention"
	tagKeywordMatch   = "keyword_match"
	tagTemporal24h    = "temporal_24h"
	tagTemporal7d     = "temporal_7d"
	tagTopicMatch     = "topic_match"
	tagSemantic       = "semantic_similarity"
)

// minPersistScore is the floor below which a correlation is considered noise
// and not stored
const minPersistScore = 0.1

// Engine computes file/email correlations
type Engine struct {
	db     *sqlx.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewEngine creates a correlation engine
func NewEngine(db *sqlx.DB, logger zerolog.Logger) *Engine {
	return &Engine{
		db:     db,
		logger: logger.With().Str("component", "correlation").Logger(),
		now:    time.Now,
	}
}

// Result summarizes one correlation run
type Result struct {
	FilesProcessed      int `json:"files_processed"`
	CorrelationsCreated int `json:"correlations_created"`
}

// scoreFileEmail applies every correlation heuristic to one (file, email)
// pair. Returns the clamped score and the tags of the heuristics that fired.
func scoreFileEmail(file *models.FileReference, fileVec []float64, fileKeywords []string, email *models.EmailThread, emailVec []float64) (float64, []string) {
	var score float64
	var tags []string

	fileName := strings.ToLower(file.FileName)
	subject := strings.ToLower(email.Subject)
	body := strings.ToLower(email.Body())

	if fileName != "" && strings.Contains(subject, fileName) {
		score += 0.8
		tags = append(tags, tagSubjectMention)
	}
	if fileName != "" && strings.Contains(body, fileName) {
		score += 0.6
		tags = append(tags, tagBodyMention)
	}

	if len(fileKeywords) > 0 && body != "" {
		matched := 0
		for _, keyword := range fileKeywords {
			if utils.ContainsFold(body, keyword) {
				matched++
			}
		}
		fraction := float64(matched) / float64(len(fileKeywords))
		if fraction > 0.2 {
			score += fraction * 0.5
			tags = append(tags, tagKeywordMatch)
		}
	}

	if file.LastModified != nil {
		gap := file.LastModified.Sub(email.Date)
		if gap < 0 {
			gap = -gap
		}
		if gap < 24*time.Hour {
			score += 0.3
			tags = append(tags, tagTemporal24h)
		} else if gap < 7*24*time.Hour {
			score += 0.1
			tags = append(tags, tagTemporal7d)
		}
	}

	if file.Topic != nil && *file.Topic != "" && utils.ContainsFold(subject, *file.Topic) {
		score += 0.2
		tags = append(tags, tagTopicMatch)
	}

	if len(fileVec) > 0 && len(emailVec) > 0 {
		if sim := embeddings.Similarity(fileVec, emailVec); sim > 0.7 {
			score += sim * 0.4
			tags = append(tags, tagSemantic)
		}
	}

	if score > 1 {
		score = 1
	}
	return score, tags
}

// CorrelateCustomerFiles rescans a customer's processed files against the
// customer's emails. A non-nil fileID limits the scan to that one file. Each
// file's correlations are fully replaced, and only pairs scoring above the
// noise floor are stored.
func (e *Engine) CorrelateCustomerFiles(ctx context.Context, customerID int, fileID *int) (*Result, error) {
	fileQuery := `SELECT * FROM file_references WHERE customer_id = ? AND processing_status = 'completed'`
	fileArgs := []interface{}{customerID}
	if fileID != nil {
		fileQuery += ` AND id = ?`
		fileArgs = append(fileArgs, *fileID)
	}
	var files []models.FileReference
	if err := e.db.SelectContext(ctx, &files, e.db.Rebind(fileQuery), fileArgs...); err != nil {
		return nil, fmt.Errorf("failed to load files: %w", err)
	}

	var emails []models.EmailThread
	query := e.db.Rebind(`
		SELECT id, customer_id, subject, date, body_preview, body_full, embedding, has_embedding
		FROM email_threads WHERE customer_id = ?`)
	if err := e.db.SelectContext(ctx, &emails, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to load emails: %w", err)
	}

	emailVectors := make(map[int][]float64, len(emails))
	for _, email := range emails {
		if email.HasEmbedding && email.Embedding != nil {
			if vec, err := embeddings.DecodeVector(*email.Embedding); err == nil {
				emailVectors[email.ID] = vec
			}
		}
	}

	result := &Result{}
	now := e.now().UTC()

	for i := range files {
		file := &files[i]
		fileVec := decodeFileVector(file)
		fileKeywords := decodeFileKeywords(file)

		type scored struct {
			emailID int
			score   float64
			tags    []string
		}
		var kept []scored
		for j := range emails {
			email := &emails[j]
			score, tags := scoreFileEmail(file, fileVec, fileKeywords, email, emailVectors[email.ID])
			if score > minPersistScore {
				kept = append(kept, scored{emailID: email.ID, score: score, tags: tags})
			}
		}

		tx, err := e.db.BeginTxx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to begin correlation transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`DELETE FROM file_email_correlations WHERE file_id = ?`), file.ID); err != nil {
			tx.Rollback()
			return nil, fmt.Errorf("failed to clear correlations for file %d: %w", file.ID, err)
		}

		for _, s := range kept {
			if _, err := tx.ExecContext(ctx, tx.Rebind(`
				INSERT INTO file_email_correlations (file_id, email_id, correlation_score, correlation_type, created_at)
				VALUES (?, ?, ?, ?, ?)`),
				file.ID, s.emailID, s.score, strings.Join(s.tags, ","), now); err != nil {
				tx.Rollback()
				return nil, fmt.Errorf("failed to store correlation: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit correlations for file %d: %w", file.ID, err)
		}

		result.FilesProcessed++
		result.CorrelationsCreated += len(kept)
	}

	e.logger.Info().
		Int("customer_id", customerID).
		Int("files", result.FilesProcessed).
		Int("correlations", result.CorrelationsCreated).
		Msg("file correlation complete")

	return result, nil
}

func decodeFileVector(file *models.FileReference) []float64 {
	if file.Embedding == nil || *file.Embedding == "" {
		return nil
	}
	vec, err := embeddings.DecodeVector(*file.Embedding)
	if err != nil {
		return nil
	}
	return vec
}

func decodeFileKeywords(file *models.FileReference) []string {
	if file.Keywords == nil || *file.Keywords == "" {
		return nil
	}
	var keywords []string
	if err := json.Unmarshal([]byte(*file.Keywords), &keywords); err != nil {
		return nil
	}
	return keywords
}

// importanceScore blends how connected, how strongly connected, how recently
// discussed, and how fresh a file is. Rounded to three decimals for stable
// dashboard display.
func importanceScore(correlationScores []float64, recent30 int, fileAge time.Duration) float64 {
	connectivity := float64(len(correlationScores)) / 10
	if connectivity > 1 {
		connectivity = 1
	}

	var avg float64
	if len(correlationScores) > 0 {
		var sum float64
		for _, s := range correlationScores {
			sum += s
		}
		avg = sum / float64(len(correlationScores))
	}

	recency := float64(recent30) / 5
	if recency > 1 {
		recency = 1
	}

	var freshness float64
	switch {
	case fileAge < 7*24*time.Hour:
		freshness = 0.3
	case fileAge < 30*24*time.Hour:
		freshness = 0.2
	case fileAge < 90*24*time.Hour:
		freshness = 0.1
	}

	score := connectivity*0.3 + avg*0.3 + recency*0.2 + freshness*0.2
	return math.Round(score*1000) / 1000
}

// UpdateImportanceScores recomputes importance_score for every file of a
// customer from its stored correlations
func (e *Engine) UpdateImportanceScores(ctx context.Context, customerID int) (int, error) {
	var files []models.FileReference
	if err := e.db.SelectContext(ctx, &files,
		e.db.Rebind(`SELECT id, customer_id, file_name, last_modified, created_at FROM file_references WHERE customer_id = ?`),
		customerID); err != nil {
		return 0, fmt.Errorf("failed to load files: %w", err)
	}

	now := e.now()
	updated := 0
	for _, file := range files {
		var rows []struct {
			Score     float64   `db:"correlation_score"`
			EmailDate time.Time `db:"date"`
		}
		query := e.db.Rebind(`
			SELECT c.correlation_score, e.date
			FROM file_email_correlations c
			JOIN email_threads e ON e.id = c.email_id
			WHERE c.file_id = ?`)
		if err := e.db.SelectContext(ctx, &rows, query, file.ID); err != nil {
			return updated, fmt.Errorf("failed to load correlations for file %d: %w", file.ID, err)
		}

		scores := make([]float64, len(rows))
		recent30 := 0
		for i, row := range rows {
			scores[i] = row.Score
			if now.Sub(row.EmailDate) <= 30*24*time.Hour {
				recent30++
			}
		}

		age := now.Sub(file.CreatedAt)
		if file.LastModified != nil {
			age = now.Sub(*file.LastModified)
		}

		score := importanceScore(scores, recent30, age)
		if _, err := e.db.ExecContext(ctx,
			e.db.Rebind(`UPDATE file_references SET importance_score = ? WHERE id = ?`),
			score, file.ID); err != nil {
			return updated, fmt.Errorf("failed to update importance for file %d: %w", file.ID, err)
		}
		updated++
	}

	return updated, nil
}

// GetFileTimeline returns the customer's files with dates, importance, and
// correlation counts for the activity heatmap, most recent first. A non-empty
// emailFilter keeps only files correlated to at least one email whose subject
// or body preview contains the text.
func (e *Engine) GetFileTimeline(ctx context.Context, customerID int, emailFilter string) ([]models.FileTimelineEntry, error) {
	var rows []struct {
		FileID       int        `db:"id"`
		FileName     string     `db:"file_name"`
		LastModified *time.Time `db:"last_modified"`
		CreatedAt    time.Time  `db:"created_at"`
		Importance   float64    `db:"importance_score"`
		Topic        *string    `db:"topic"`
		Correlations int        `db:"correlation_count"`
	}
	query := `
		SELECT f.id, f.file_name, f.last_modified, f.created_at, f.importance_score, f.topic,
			(SELECT COUNT(*) FROM file_email_correlations c WHERE c.file_id = f.id) AS correlation_count
		FROM file_references f
		WHERE f.customer_id = ?`
	args := []interface{}{customerID}
	if emailFilter != "" {
		query += `
		AND EXISTS (
			SELECT 1 FROM file_email_correlations fc
			JOIN email_threads e ON e.id = fc.email_id
			WHERE fc.file_id = f.id
			AND (LOWER(e.subject) LIKE ? OR LOWER(COALESCE(e.body_preview, '')) LIKE ?))`
		pattern := "%" + strings.ToLower(emailFilter) + "%"
		args = append(args, pattern, pattern)
	}
	query += `
		ORDER BY COALESCE(f.last_modified, f.created_at) DESC`
	if err := e.db.SelectContext(ctx, &rows, e.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load file timeline: %w", err)
	}

	timeline := make([]models.FileTimelineEntry, 0, len(rows))
	for _, row := range rows {
		date := row.CreatedAt
		if row.LastModified != nil {
			date = *row.LastModified
		}
		topic := ""
		if row.Topic != nil {
			topic = *row.Topic
		}
		timeline = append(timeline, models.FileTimelineEntry{
			FileID:       row.FileID,
			FileName:     row.FileName,
			Date:         date,
			Importance:   row.Importance,
			Topic:        topic,
			Correlations: row.Correlations,
		})
	}

	return timeline, nil
}

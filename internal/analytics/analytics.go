// Package analytics aggregates classification quality statistics for the
// dashboard.
package analytics

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"rapport/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Service computes classification analytics
type Service struct {
	db     *sqlx.DB
	logger zerolog.Logger
}

// NewService creates an analytics service
func NewService(db *sqlx.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "analytics").Logger(),
	}
}

type assignmentRow struct {
	Confidence float64 `db:"confidence_score"`
	Method     *string `db:"classification_method"`
	IsVerified bool    `db:"is_verified"`
	TopicName  string  `db:"topic_name"`
}

// GetClassificationAnalytics summarizes a customer's topic assignments:
// how they were made, how confident they are, which topics dominate, and
// how many a human has verified.
func (s *Service) GetClassificationAnalytics(ctx context.Context, customerID int) (*models.ClassificationAnalytics, error) {
	var rows []assignmentRow
	query := s.db.Rebind(`
		SELECT et.confidence_score, et.classification_method, et.is_verified, t.name AS topic_name
		FROM email_topics et
		JOIN email_threads e ON e.id = et.email_id
		JOIN topics t ON t.id = et.topic_id
		WHERE e.customer_id = ?`)
	if err := s.db.SelectContext(ctx, &rows, query, customerID); err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	result := &models.ClassificationAnalytics{
		TotalAssignments:       len(rows),
		MethodBreakdown:        make(map[string]int),
		ConfidenceDistribution: make(map[string]int),
		TopicUsage:             make(map[string]int),
	}

	verified := 0
	for _, row := range rows {
		method := "unknown"
		if row.Method != nil && *row.Method != "" {
			method = *row.Method
		}
		result.MethodBreakdown[method]++

		bucket := strconv.FormatFloat(math.Round(row.Confidence*10)/10, 'f', 1, 64)
		result.ConfidenceDistribution[bucket]++

		result.TopicUsage[row.TopicName]++

		if row.IsVerified {
			verified++
		}
	}

	result.VerificationStats.Verified = verified
	result.VerificationStats.Unverified = len(rows) - verified
	if len(rows) > 0 {
		result.VerificationStats.VerificationRate = float64(verified) / float64(len(rows))
	}

	return result, nil
}

// Package topics manages the 3-level topic hierarchy, email assignments,
// weighted keywords, and cached pairwise similarities.
package topics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"rapport/internal/config"
	"rapport/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Store provides topic hierarchy persistence
type Store struct {
	db     *sqlx.DB
	cfg    *config.Config
	logger zerolog.Logger
}

// NewStore creates a topic store
func NewStore(db *sqlx.DB, cfg *config.Config, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		cfg:    cfg,
		logger: logger.With().Str("component", "topics").Logger(),
	}
}

// CreateTopicRequest carries the inputs for creating a topic. Level only
// applies to parentless topics; Color and Keywords are optional, with the
// color falling back to the level palette.
type CreateTopicRequest struct {
	Name          string   `json:"name"`
	Description   *string  `json:"description,omitempty"`
	ParentID      *int     `json:"parent_id,omitempty"`
	Level         *int     `json:"level,omitempty"`
	Color         string   `json:"color,omitempty"`
	Keywords      []string `json:"keywords,omitempty"`
	CreatedBy     *string  `json:"created_by,omitempty"`
	AutoGenerated bool     `json:"auto_generated"`
	Confidence    float64  `json:"confidence_score"`
}

func (s *Store) capForLevel(level int) int {
	switch level {
	case 0:
		return s.cfg.MaxMainTopics
	case 1:
		return s.cfg.MaxSubTopics
	default:
		return s.cfg.MaxMicroTopics
	}
}

// CreateTopic inserts a topic under the optional parent. A parent overrides
// any requested level, each level has a hard cap, and without an explicit
// color the level's palette cycles.
func (s *Store) CreateTopic(ctx context.Context, req CreateTopicRequest) (*models.Topic, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("topic name is required")
	}
	if req.Level != nil && (*req.Level < 0 || *req.Level > 2) {
		return nil, fmt.Errorf("level must be between 0 and 2")
	}

	level := 0
	if req.Level != nil {
		level = *req.Level
	}
	if req.ParentID != nil {
		parent, err := s.GetTopic(ctx, *req.ParentID)
		if err != nil {
			return nil, err
		}
		level = parent.Level + 1
	}
	if level > 2 {
		return nil, fmt.Errorf("maximum hierarchy depth is 3 levels")
	}

	var existing int
	countQuery := s.db.Rebind(`SELECT COUNT(*) FROM topics WHERE level = ? AND is_active = TRUE`)
	if err := s.db.GetContext(ctx, &existing, countQuery, level); err != nil {
		return nil, fmt.Errorf("failed to count topics at level %d: %w", level, err)
	}
	if existing >= s.capForLevel(level) {
		return nil, fmt.Errorf("%w: level %d allows at most %d topics", ErrCapacityExceeded, level, s.capForLevel(level))
	}

	color := req.Color
	if color == "" {
		color = colorForLevel(level, existing)
	}

	now := time.Now().UTC()
	topic := &models.Topic{
		Name:            req.Name,
		Description:     req.Description,
		ParentID:        req.ParentID,
		Level:           level,
		Color:           color,
		AutoGenerated:   req.AutoGenerated,
		ConfidenceScore: req.Confidence,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       req.CreatedBy,
	}

	id, err := s.insertReturningID(ctx, s.db.Rebind(`
		INSERT INTO topics (name, description, parent_id, level, color, auto_generated,
			confidence_score, email_count, is_active, created_at, updated_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, TRUE, ?, ?, ?)`),
		topic.Name, topic.Description, topic.ParentID, topic.Level, topic.Color,
		topic.AutoGenerated, topic.ConfidenceScore, topic.CreatedAt, topic.UpdatedAt, topic.CreatedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}
	topic.ID = id

	createdBy := ""
	if req.CreatedBy != nil {
		createdBy = *req.CreatedBy
	}
	for _, keyword := range req.Keywords {
		if err := s.AddKeyword(ctx, id, keyword, 1.0, createdBy); err != nil {
			return nil, fmt.Errorf("failed to seed keyword %q: %w", keyword, err)
		}
	}

	s.logger.Info().Int("topic_id", id).Str("name", topic.Name).Int("level", level).Msg("topic created")
	return topic, nil
}

// insertReturningID papers over the MySQL/PostgreSQL difference in obtaining
// the generated primary key
func (s *Store) insertReturningID(ctx context.Context, query string, args ...interface{}) (int, error) {
	if s.db.DriverName() == "postgres" {
		var id int
		err := s.db.QueryRowxContext(ctx, query+" RETURNING id", args...).Scan(&id)
		return id, err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// GetTopic fetches one active topic by id
func (s *Store) GetTopic(ctx context.Context, id int) (*models.Topic, error) {
	var topic models.Topic
	query := s.db.Rebind(`SELECT * FROM topics WHERE id = ? AND is_active = TRUE`)
	if err := s.db.GetContext(ctx, &topic, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get topic %d: %w", id, err)
	}
	return &topic, nil
}

// FindTopicByName fetches one active topic by exact name
func (s *Store) FindTopicByName(ctx context.Context, name string) (*models.Topic, error) {
	var topic models.Topic
	query := s.db.Rebind(`SELECT * FROM topics WHERE name = ? AND is_active = TRUE`)
	if err := s.db.GetContext(ctx, &topic, query, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find topic %q: %w", name, err)
	}
	return &topic, nil
}

// GetTopicsByLevel lists active topics at one hierarchy level. A non-nil
// parentID restricts to that parent's children; a non-nil customerID restricts
// to topics assigned to the customer's emails.
func (s *Store) GetTopicsByLevel(ctx context.Context, level int, parentID, customerID *int) ([]models.Topic, error) {
	query := `SELECT t.* FROM topics t`
	conds := []string{`t.level = ?`, `t.is_active = TRUE`}
	args := []interface{}{level}
	if customerID != nil {
		query += ` JOIN customer_topics ct ON ct.topic_id = t.id`
		conds = append(conds, `ct.customer_id = ?`)
		args = append(args, *customerID)
	}
	if parentID != nil {
		conds = append(conds, `t.parent_id = ?`)
		args = append(args, *parentID)
	}
	query += ` WHERE ` + strings.Join(conds, ` AND `) + ` ORDER BY t.name`

	var result []models.Topic
	if err := s.db.SelectContext(ctx, &result, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list topics at level %d: %w", level, err)
	}
	return result, nil
}

// HierarchyFilter scopes the topic tree. A non-nil CustomerID keeps only
// topics assigned to that customer's emails; IncludeInactive keeps merged-away
// and deactivated topics in the tree.
type HierarchyFilter struct {
	CustomerID      *int
	IncludeInactive bool
}

// GetHierarchy returns the topic tree under the given filter. Topics whose
// parent is missing or filtered out are promoted to the root rather than
// dropped.
func (s *Store) GetHierarchy(ctx context.Context, filter HierarchyFilter) ([]*models.TopicNode, error) {
	query := `SELECT t.* FROM topics t`
	var conds []string
	var args []interface{}
	if filter.CustomerID != nil {
		query += ` JOIN customer_topics ct ON ct.topic_id = t.id`
		conds = append(conds, `ct.customer_id = ?`)
		args = append(args, *filter.CustomerID)
	}
	if !filter.IncludeInactive {
		conds = append(conds, `t.is_active = TRUE`)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY t.level, t.name`

	var all []models.Topic
	if err := s.db.SelectContext(ctx, &all, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load topic hierarchy: %w", err)
	}

	nodes := make(map[int]*models.TopicNode, len(all))
	for _, topic := range all {
		nodes[topic.ID] = &models.TopicNode{Topic: topic}
	}

	var roots []*models.TopicNode
	for _, topic := range all {
		node := nodes[topic.ID]
		if topic.ParentID != nil {
			if parent, ok := nodes[*topic.ParentID]; ok {
				parent.Children = append(parent.Children, node)
				continue
			}
		}
		roots = append(roots, node)
	}

	return roots, nil
}

// AssignTopicToEmail records an (email, topic) assignment. Re-assigning an
// existing pair updates its confidence and method instead of duplicating the
// row. The email's customer is linked to the topic for scoped hierarchy
// reads, then the topic's usage statistics are refreshed.
func (s *Store) AssignTopicToEmail(ctx context.Context, emailID, topicID int, confidence float64, method string, assignedBy string) error {
	if _, err := s.GetTopic(ctx, topicID); err != nil {
		return err
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE email_topics
		SET confidence_score = ?, classification_method = ?, assigned_at = ?, assigned_by = ?
		WHERE email_id = ? AND topic_id = ?`),
		confidence, method, now, assignedBy, emailID, topicID)
	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		_, err = s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO email_topics (email_id, topic_id, confidence_score, classification_method, assigned_at, assigned_by, is_verified)
			VALUES (?, ?, ?, ?, ?, ?, FALSE)`),
			emailID, topicID, confidence, method, now, assignedBy)
		if err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
	}

	if err := s.linkCustomerTopic(ctx, emailID, topicID); err != nil {
		return err
	}

	return s.refreshTopicUsage(ctx, topicID)
}

// linkCustomerTopic records that the email's customer uses the topic. The
// membership outlives individual assignments; it is only cleaned up when the
// topic itself is deleted.
func (s *Store) linkCustomerTopic(ctx context.Context, emailID, topicID int) error {
	var customerID int
	err := s.db.GetContext(ctx, &customerID,
		s.db.Rebind(`SELECT customer_id FROM email_threads WHERE id = ?`), emailID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("failed to resolve email customer: %w", err)
	}

	var existing int
	err = s.db.GetContext(ctx, &existing,
		s.db.Rebind(`SELECT COUNT(*) FROM customer_topics WHERE customer_id = ? AND topic_id = ?`),
		customerID, topicID)
	if err != nil {
		return fmt.Errorf("failed to check customer topic link: %w", err)
	}
	if existing > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO customer_topics (customer_id, topic_id, created_at) VALUES (?, ?, ?)`),
		customerID, topicID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to link customer topic: %w", err)
	}
	return nil
}

// RemoveTopicFromEmail deletes an assignment. Returns false when no such
// assignment existed.
func (s *Store) RemoveTopicFromEmail(ctx context.Context, emailID, topicID int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM email_topics WHERE email_id = ? AND topic_id = ?`),
		emailID, topicID)
	if err != nil {
		return false, fmt.Errorf("failed to remove assignment: %w", err)
	}

	rows, _ := res.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	if err := s.refreshTopicUsage(ctx, topicID); err != nil {
		return true, err
	}
	return true, nil
}

// VerifyAssignment marks an assignment as human-verified. Returns false when
// the assignment does not exist.
func (s *Store) VerifyAssignment(ctx context.Context, emailID, topicID int, verifiedBy string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE email_topics
		SET is_verified = TRUE, verified_at = ?, verified_by = ?
		WHERE email_id = ? AND topic_id = ?`),
		time.Now().UTC(), verifiedBy, emailID, topicID)
	if err != nil {
		return false, fmt.Errorf("failed to verify assignment: %w", err)
	}

	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// GetEmailTopics lists an email's topic assignments with the topic resolved
func (s *Store) GetEmailTopics(ctx context.Context, emailID int) ([]models.EmailTopicDetail, error) {
	var result []models.EmailTopicDetail
	query := s.db.Rebind(`
		SELECT et.*, t.name AS topic_name, t.color, t.level
		FROM email_topics et
		JOIN topics t ON t.id = et.topic_id
		WHERE et.email_id = ? AND t.is_active = TRUE
		ORDER BY et.confidence_score DESC`)
	if err := s.db.SelectContext(ctx, &result, query, emailID); err != nil {
		return nil, fmt.Errorf("failed to list email topics: %w", err)
	}
	return result, nil
}

// GetTopicEmails lists the emails assigned to a topic, most confident first
func (s *Store) GetTopicEmails(ctx context.Context, topicID int) ([]models.TopicEmail, error) {
	if _, err := s.GetTopic(ctx, topicID); err != nil {
		return nil, err
	}

	var result []models.TopicEmail
	query := s.db.Rebind(`
		SELECT e.*, et.confidence_score AS assignment_confidence, et.assigned_at
		FROM email_threads e
		JOIN email_topics et ON et.email_id = e.id
		WHERE et.topic_id = ?
		ORDER BY et.confidence_score DESC, e.date DESC`)
	if err := s.db.SelectContext(ctx, &result, query, topicID); err != nil {
		return nil, fmt.Errorf("failed to list topic emails: %w", err)
	}
	return result, nil
}

// refreshTopicUsage recomputes a topic's email_count and last_used from its
// assignments. The count naturally floors at zero when the last assignment
// is removed.
func (s *Store) refreshTopicUsage(ctx context.Context, topicID int) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE topics
		SET email_count = (SELECT COUNT(*) FROM email_topics WHERE email_topics.topic_id = topics.id),
			last_used = (SELECT MAX(assigned_at) FROM email_topics WHERE email_topics.topic_id = topics.id),
			updated_at = ?
		WHERE id = ?`),
		time.Now().UTC(), topicID)
	if err != nil {
		return fmt.Errorf("failed to refresh topic usage: %w", err)
	}
	return nil
}

// AddKeyword attaches a weighted keyword to a topic. Re-adding an existing
// keyword updates its weight.
func (s *Store) AddKeyword(ctx context.Context, topicID int, keyword string, weight float64, createdBy string) error {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	if keyword == "" {
		return fmt.Errorf("keyword is required")
	}
	if _, err := s.GetTopic(ctx, topicID); err != nil {
		return err
	}
	if weight <= 0 {
		weight = 1.0
	}

	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE topic_keywords SET weight = ? WHERE topic_id = ? AND keyword = ?`),
		weight, topicID, keyword)
	if err != nil {
		return fmt.Errorf("failed to update keyword: %w", err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		_, err = s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO topic_keywords (topic_id, keyword, weight, created_at, created_by)
			VALUES (?, ?, ?, ?, ?)`),
			topicID, keyword, weight, time.Now().UTC(), createdBy)
		if err != nil {
			return fmt.Errorf("failed to insert keyword: %w", err)
		}
	}

	return nil
}

// RemoveKeyword detaches a keyword from a topic. Returns false when the
// keyword was not attached.
func (s *Store) RemoveKeyword(ctx context.Context, topicID int, keyword string) (bool, error) {
	keyword = strings.ToLower(strings.TrimSpace(keyword))
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`DELETE FROM topic_keywords WHERE topic_id = ? AND keyword = ?`),
		topicID, keyword)
	if err != nil {
		return false, fmt.Errorf("failed to remove keyword: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// GetKeywords lists a topic's keywords ordered by weight
func (s *Store) GetKeywords(ctx context.Context, topicID int) ([]models.TopicKeyword, error) {
	var result []models.TopicKeyword
	query := s.db.Rebind(`SELECT * FROM topic_keywords WHERE topic_id = ? ORDER BY weight DESC, keyword`)
	if err := s.db.SelectContext(ctx, &result, query, topicID); err != nil {
		return nil, fmt.Errorf("failed to list keywords: %w", err)
	}
	return result, nil
}

// Similarity calculation methods
const (
	SimilarityCooccurrence = "cooccurrence"
	SimilarityKeyword      = "keyword"
)

// CalculateSimilarity computes the Jaccard similarity of two topics and
// caches it. "cooccurrence" compares the topics' email sets, "keyword"
// compares their keyword sets; any other method scores 0.
func (s *Store) CalculateSimilarity(ctx context.Context, topic1ID, topic2ID int, method string) (float64, error) {
	if _, err := s.GetTopic(ctx, topic1ID); err != nil {
		return 0, err
	}
	if _, err := s.GetTopic(ctx, topic2ID); err != nil {
		return 0, err
	}

	var score float64
	var err error
	switch method {
	case SimilarityCooccurrence:
		score, err = s.emailJaccard(ctx, topic1ID, topic2ID)
	case SimilarityKeyword:
		score, err = s.keywordJaccard(ctx, topic1ID, topic2ID)
	default:
		score = 0
	}
	if err != nil {
		return 0, err
	}

	if err := s.storeSimilarity(ctx, topic1ID, topic2ID, score, method); err != nil {
		return 0, err
	}
	return score, nil
}

func (s *Store) emailJaccard(ctx context.Context, topic1ID, topic2ID int) (float64, error) {
	var counts struct {
		Both  int `db:"both_count"`
		Total int `db:"total_count"`
	}
	query := s.db.Rebind(`
		SELECT
			COUNT(CASE WHEN topic_count = 2 THEN 1 END) AS both_count,
			COUNT(*) AS total_count
		FROM (
			SELECT email_id, COUNT(DISTINCT topic_id) AS topic_count
			FROM email_topics
			WHERE topic_id IN (?, ?)
			GROUP BY email_id
		) joined`)
	if err := s.db.GetContext(ctx, &counts, query, topic1ID, topic2ID); err != nil {
		return 0, fmt.Errorf("failed to compute email overlap: %w", err)
	}
	if counts.Total == 0 {
		return 0, nil
	}
	return float64(counts.Both) / float64(counts.Total), nil
}

func (s *Store) keywordJaccard(ctx context.Context, topic1ID, topic2ID int) (float64, error) {
	kw1, err := s.GetKeywords(ctx, topic1ID)
	if err != nil {
		return 0, err
	}
	kw2, err := s.GetKeywords(ctx, topic2ID)
	if err != nil {
		return 0, err
	}

	set1 := make(map[string]struct{}, len(kw1))
	for _, kw := range kw1 {
		set1[kw.Keyword] = struct{}{}
	}

	intersection := 0
	union := len(set1)
	seen2 := make(map[string]struct{}, len(kw2))
	for _, kw := range kw2 {
		if _, dup := seen2[kw.Keyword]; dup {
			continue
		}
		seen2[kw.Keyword] = struct{}{}
		if _, ok := set1[kw.Keyword]; ok {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0, nil
	}
	return float64(intersection) / float64(union), nil
}

// storeSimilarity upserts the pair in normalized order so (a,b) and (b,a)
// share one row
func (s *Store) storeSimilarity(ctx context.Context, topic1ID, topic2ID int, score float64, method string) error {
	lo, hi := topic1ID, topic2ID
	if lo > hi {
		lo, hi = hi, lo
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE topic_similarities
		SET similarity_score = ?, calculation_method = ?, calculated_at = ?
		WHERE topic1_id = ? AND topic2_id = ?`),
		score, method, now, lo, hi)
	if err != nil {
		return fmt.Errorf("failed to update similarity: %w", err)
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		_, err = s.db.ExecContext(ctx, s.db.Rebind(`
			INSERT INTO topic_similarities (topic1_id, topic2_id, similarity_score, calculation_method, calculated_at)
			VALUES (?, ?, ?, ?, ?)`),
			lo, hi, score, method, now)
		if err != nil {
			return fmt.Errorf("failed to insert similarity: %w", err)
		}
	}

	return nil
}

// GetSimilarTopics lists the cached similarities involving a topic, resolved
// to the other topic, highest score first
func (s *Store) GetSimilarTopics(ctx context.Context, topicID, limit int) ([]models.SimilarTopic, error) {
	if limit <= 0 {
		limit = 10
	}

	var rows []models.TopicSimilarity
	query := s.db.Rebind(`
		SELECT * FROM topic_similarities
		WHERE topic1_id = ? OR topic2_id = ?
		ORDER BY similarity_score DESC`)
	if err := s.db.SelectContext(ctx, &rows, query, topicID, topicID); err != nil {
		return nil, fmt.Errorf("failed to list similarities: %w", err)
	}

	result := make([]models.SimilarTopic, 0, limit)
	for _, row := range rows {
		if len(result) >= limit {
			break
		}
		otherID := row.Topic1ID
		if otherID == topicID {
			otherID = row.Topic2ID
		}
		other, err := s.GetTopic(ctx, otherID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		result = append(result, models.SimilarTopic{
			Topic:             *other,
			SimilarityScore:   row.SimilarityScore,
			CalculationMethod: row.CalculationMethod,
		})
	}

	return result, nil
}

// MergeTopics moves every assignment and keyword from source onto target and
// deactivates source. Assignments and keywords target already has are dropped
// from source instead of duplicated. Returns false when either topic is
// missing.
func (s *Store) MergeTopics(ctx context.Context, sourceID, targetID int) (bool, error) {
	if sourceID == targetID {
		return false, fmt.Errorf("cannot merge a topic into itself")
	}
	if _, err := s.GetTopic(ctx, sourceID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.GetTopic(ctx, targetID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin merge transaction: %w", err)
	}
	defer tx.Rollback()

	var targetEmails []int
	if err := tx.SelectContext(ctx, &targetEmails,
		tx.Rebind(`SELECT email_id FROM email_topics WHERE topic_id = ?`), targetID); err != nil {
		return false, fmt.Errorf("failed to load target assignments: %w", err)
	}
	targetSet := make(map[int]struct{}, len(targetEmails))
	for _, id := range targetEmails {
		targetSet[id] = struct{}{}
	}

	var sourceEmails []int
	if err := tx.SelectContext(ctx, &sourceEmails,
		tx.Rebind(`SELECT email_id FROM email_topics WHERE topic_id = ?`), sourceID); err != nil {
		return false, fmt.Errorf("failed to load source assignments: %w", err)
	}

	for _, emailID := range sourceEmails {
		if _, exists := targetSet[emailID]; exists {
			_, err = tx.ExecContext(ctx,
				tx.Rebind(`DELETE FROM email_topics WHERE email_id = ? AND topic_id = ?`),
				emailID, sourceID)
		} else {
			_, err = tx.ExecContext(ctx,
				tx.Rebind(`UPDATE email_topics SET topic_id = ? WHERE email_id = ? AND topic_id = ?`),
				targetID, emailID, sourceID)
		}
		if err != nil {
			return false, fmt.Errorf("failed to move assignment: %w", err)
		}
	}

	var targetKeywords []string
	if err := tx.SelectContext(ctx, &targetKeywords,
		tx.Rebind(`SELECT keyword FROM topic_keywords WHERE topic_id = ?`), targetID); err != nil {
		return false, fmt.Errorf("failed to load target keywords: %w", err)
	}
	keywordSet := make(map[string]struct{}, len(targetKeywords))
	for _, kw := range targetKeywords {
		keywordSet[kw] = struct{}{}
	}

	var sourceKeywords []string
	if err := tx.SelectContext(ctx, &sourceKeywords,
		tx.Rebind(`SELECT keyword FROM topic_keywords WHERE topic_id = ?`), sourceID); err != nil {
		return false, fmt.Errorf("failed to load source keywords: %w", err)
	}

	for _, keyword := range sourceKeywords {
		if _, exists := keywordSet[keyword]; exists {
			_, err = tx.ExecContext(ctx,
				tx.Rebind(`DELETE FROM topic_keywords WHERE topic_id = ? AND keyword = ?`),
				sourceID, keyword)
		} else {
			_, err = tx.ExecContext(ctx,
				tx.Rebind(`UPDATE topic_keywords SET topic_id = ? WHERE topic_id = ? AND keyword = ?`),
				targetID, sourceID, keyword)
		}
		if err != nil {
			return false, fmt.Errorf("failed to move keyword: %w", err)
		}
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE topics
		SET email_count = (SELECT COUNT(*) FROM email_topics WHERE email_topics.topic_id = topics.id),
			last_used = (SELECT MAX(assigned_at) FROM email_topics WHERE email_topics.topic_id = topics.id),
			updated_at = ?
		WHERE id = ?`), now, targetID); err != nil {
		return false, fmt.Errorf("failed to refresh target usage: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE topics SET is_active = FALSE, updated_at = ? WHERE id = ?`),
		now, sourceID); err != nil {
		return false, fmt.Errorf("failed to deactivate source topic: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit merge: %w", err)
	}

	s.logger.Info().Int("source_id", sourceID).Int("target_id", targetID).Msg("topics merged")
	return true, nil
}

// DeleteTopic removes a topic and all rows referencing it. A topic with
// children is refused unless force is set, in which case the subtree is
// deleted children-first.
func (s *Store) DeleteTopic(ctx context.Context, id int, force bool) error {
	if _, err := s.GetTopic(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.deleteTopicTx(ctx, tx, id, force); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}

	s.logger.Info().Int("topic_id", id).Bool("force", force).Msg("topic deleted")
	return nil
}

func (s *Store) deleteTopicTx(ctx context.Context, tx *sqlx.Tx, id int, force bool) error {
	var children []int
	if err := tx.SelectContext(ctx, &children,
		tx.Rebind(`SELECT id FROM topics WHERE parent_id = ?`), id); err != nil {
		return fmt.Errorf("failed to list children: %w", err)
	}

	if len(children) > 0 {
		if !force {
			return fmt.Errorf("%w: topic %d has %d children", ErrHasChildren, id, len(children))
		}
		for _, childID := range children {
			if err := s.deleteTopicTx(ctx, tx, childID, true); err != nil {
				return err
			}
		}
	}

	cleanups := []string{
		`DELETE FROM email_topics WHERE topic_id = ?`,
		`DELETE FROM topic_keywords WHERE topic_id = ?`,
		`DELETE FROM customer_topics WHERE topic_id = ?`,
	}
	for _, query := range cleanups {
		if _, err := tx.ExecContext(ctx, tx.Rebind(query), id); err != nil {
			return fmt.Errorf("failed to delete topic references: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM topic_similarities WHERE topic1_id = ? OR topic2_id = ?`),
		id, id); err != nil {
		return fmt.Errorf("failed to delete topic similarities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM topics WHERE id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete topic: %w", err)
	}

	return nil
}

// UpdateTopicStatistics recomputes email_count and last_used for every topic.
// Safe to run repeatedly.
func (s *Store) UpdateTopicStatistics(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE topics
		SET email_count = (SELECT COUNT(*) FROM email_topics WHERE email_topics.topic_id = topics.id),
			last_used = (SELECT MAX(assigned_at) FROM email_topics WHERE email_topics.topic_id = topics.id),
			updated_at = ?`),
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update topic statistics: %w", err)
	}
	return nil
}

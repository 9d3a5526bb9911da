package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// CreateCoreTables creates the topic hierarchy and correlation tables.
// The UNIQUE constraints on email_topic(email_id, topic_id) and
// topic_similarity(topic1_id, topic2_id) back the upsert semantics the
// services rely on; without them concurrent writers could insert duplicates.
func CreateCoreTables(db *sqlx.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL,
			company VARCHAR(100),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS email_threads (
			id SERIAL PRIMARY KEY,
			customer_id INT NOT NULL REFERENCES customers(id),
			subject VARCHAR(500) NOT NULL DEFAULT '',
			date TIMESTAMP NOT NULL,
			sender_name VARCHAR(100),
			sender_email VARCHAR(100),
			recipient_name VARCHAR(100),
			recipient_email VARCHAR(100),
			body_preview TEXT,
			body_full TEXT,
			message_id VARCHAR(200) UNIQUE,
			embedding TEXT,
			embedding_model VARCHAR(100),
			has_embedding BOOLEAN DEFAULT FALSE,
			embedding_processed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS topics (
			id SERIAL PRIMARY KEY,
			name VARCHAR(200) NOT NULL,
			description TEXT,
			parent_id INT REFERENCES topics(id),
			level INT DEFAULT 0,
			color VARCHAR(7) DEFAULT '#6B7280',
			auto_generated BOOLEAN DEFAULT FALSE,
			confidence_score REAL DEFAULT 0.0,
			email_count INT DEFAULT 0,
			last_used TIMESTAMP,
			is_active BOOLEAN DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_by VARCHAR(100)
		)`,
		`CREATE TABLE IF NOT EXISTS email_topics (
			id SERIAL PRIMARY KEY,
			email_id INT NOT NULL REFERENCES email_threads(id),
			topic_id INT NOT NULL REFERENCES topics(id),
			confidence_score REAL DEFAULT 0.0,
			classification_method VARCHAR(50),
			assigned_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			assigned_by VARCHAR(100),
			is_verified BOOLEAN DEFAULT FALSE,
			verified_at TIMESTAMP,
			verified_by VARCHAR(100),
			UNIQUE(email_id, topic_id)
		)`,
		`CREATE TABLE IF NOT EXISTS topic_keywords (
			id SERIAL PRIMARY KEY,
			topic_id INT NOT NULL REFERENCES topics(id),
			keyword VARCHAR(100) NOT NULL,
			weight REAL DEFAULT 1.0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			created_by VARCHAR(100),
			match_count INT DEFAULT 0,
			last_matched TIMESTAMP,
			UNIQUE(topic_id, keyword)
		)`,
		`CREATE TABLE IF NOT EXISTS topic_similarities (
			id SERIAL PRIMARY KEY,
			topic1_id INT NOT NULL REFERENCES topics(id),
			topic2_id INT NOT NULL REFERENCES topics(id),
			similarity_score REAL NOT NULL,
			calculation_method VARCHAR(50),
			calculated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(topic1_id, topic2_id)
		)`,
		`CREATE TABLE IF NOT EXISTS customer_topics (
			customer_id INT NOT NULL REFERENCES customers(id),
			topic_id INT NOT NULL REFERENCES topics(id),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (customer_id, topic_id)
		)`,
		`CREATE TABLE IF NOT EXISTS file_references (
			id SERIAL PRIMARY KEY,
			customer_id INT NOT NULL REFERENCES customers(id),
			drive_id VARCHAR(200),
			file_name VARCHAR(500) NOT NULL,
			file_path VARCHAR(1000),
			mime_type VARCHAR(100),
			size_bytes BIGINT,
			last_modified TIMESTAMP,
			content_hash VARCHAR(64),
			topic VARCHAR(200),
			importance_score REAL DEFAULT 0.0,
			embedding TEXT,
			summary TEXT,
			keywords TEXT,
			processing_status VARCHAR(50) DEFAULT 'pending',
			processed_at TIMESTAMP,
			error_message TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS file_email_correlations (
			id SERIAL PRIMARY KEY,
			file_id INT NOT NULL REFERENCES file_references(id),
			email_id INT NOT NULL REFERENCES email_threads(id),
			correlation_score REAL,
			correlation_type VARCHAR(200),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_parent ON topics(parent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_level ON topics(level)`,
		`CREATE INDEX IF NOT EXISTS idx_topics_active ON topics(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_email_topics_email ON email_topics(email_id)`,
		`CREATE INDEX IF NOT EXISTS idx_email_topics_topic ON email_topics(topic_id)`,
		`CREATE INDEX IF NOT EXISTS idx_email_topics_confidence ON email_topics(confidence_score)`,
		`CREATE INDEX IF NOT EXISTS idx_topic_keywords_topic ON topic_keywords(topic_id)`,
		`CREATE INDEX IF NOT EXISTS idx_topic_similarities_score ON topic_similarities(similarity_score)`,
		`CREATE INDEX IF NOT EXISTS idx_correlations_file ON file_email_correlations(file_id)`,
		`CREATE INDEX IF NOT EXISTS idx_correlations_email ON file_email_correlations(email_id)`,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to create core tables: %w", err)
		}
	}

	return nil
}

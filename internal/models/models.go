package models

import "time"

// Topic classification methods recorded on EmailTopic rows
const (
	MethodManual              = "manual"
	MethodKeyword             = "keyword"
	MethodEmbedding           = "embedding"
	MethodEmbeddingClustering = "embedding_clustering"
	MethodContext             = "context"
	MethodFrequency           = "frequency"
	MethodAutoClassification  = "auto_classification"
)

// File processing states
const (
	FileStatusPending    = "pending"
	FileStatusProcessing = "processing"
	FileStatusCompleted  = "completed"
	FileStatusError      = "error"
)

// Customer represents a customer account whose communications we analyze
type Customer struct {
	ID        int       `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Company   *string   `db:"company" json:"company,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EmailThread represents a normalized email record produced by ingestion
type EmailThread struct {
	ID             int        `db:"id" json:"id"`
	CustomerID     int        `db:"customer_id" json:"customer_id"`
	Subject        string     `db:"subject" json:"subject"`
	Date           time.Time  `db:"date" json:"date"`
	SenderName     *string    `db:"sender_name" json:"sender_name,omitempty"`
	SenderEmail    *string    `db:"sender_email" json:"sender_email,omitempty"`
	RecipientName  *string    `db:"recipient_name" json:"recipient_name,omitempty"`
	RecipientEmail *string    `db:"recipient_email" json:"recipient_email,omitempty"`
	BodyPreview    *string    `db:"body_preview" json:"body_preview,omitempty"`
	BodyFull       *string    `db:"body_full" json:"body_full,omitempty"`
	MessageID      *string    `db:"message_id" json:"message_id,omitempty"`
	Embedding      *string    `db:"embedding" json:"-"` // JSON array of floats
	EmbeddingModel *string    `db:"embedding_model" json:"embedding_model,omitempty"`
	HasEmbedding   bool       `db:"has_embedding" json:"has_embedding"`
	EmbeddedAt     *time.Time `db:"embedding_processed_at" json:"embedding_processed_at,omitempty"`
}

// Body returns the best available body text for scoring
func (e *EmailThread) Body() string {
	if e.BodyFull != nil && *e.BodyFull != "" {
		return *e.BodyFull
	}
	if e.BodyPreview != nil {
		return *e.BodyPreview
	}
	return ""
}

// Topic is a node in the 3-level topic hierarchy (0=main, 1=sub, 2=micro)
type Topic struct {
	ID              int        `db:"id" json:"id"`
	Name            string     `db:"name" json:"name"`
	Description     *string    `db:"description" json:"description,omitempty"`
	ParentID        *int       `db:"parent_id" json:"parent_id,omitempty"`
	Level           int        `db:"level" json:"level"`
	Color           string     `db:"color" json:"color"`
	AutoGenerated   bool       `db:"auto_generated" json:"auto_generated"`
	ConfidenceScore float64    `db:"confidence_score" json:"confidence_score"`
	EmailCount      int        `db:"email_count" json:"email_count"`
	LastUsed        *time.Time `db:"last_used" json:"last_used,omitempty"`
	IsActive        bool       `db:"is_active" json:"is_active"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
	CreatedBy       *string    `db:"created_by" json:"created_by,omitempty"`
}

// TopicNode is a Topic with its resolved children, used for hierarchy responses
type TopicNode struct {
	Topic
	Children []*TopicNode `json:"children,omitempty"`
}

// EmailTopic is the unique (email, topic) assignment with confidence scoring
type EmailTopic struct {
	ID                   int        `db:"id" json:"id"`
	EmailID              int        `db:"email_id" json:"email_id"`
	TopicID              int        `db:"topic_id" json:"topic_id"`
	ConfidenceScore      float64    `db:"confidence_score" json:"confidence_score"`
	ClassificationMethod string     `db:"classification_method" json:"classification_method"`
	AssignedAt           time.Time  `db:"assigned_at" json:"assigned_at"`
	AssignedBy           *string    `db:"assigned_by" json:"assigned_by,omitempty"`
	IsVerified           bool       `db:"is_verified" json:"is_verified"`
	VerifiedAt           *time.Time `db:"verified_at" json:"verified_at,omitempty"`
	VerifiedBy           *string    `db:"verified_by" json:"verified_by,omitempty"`
}

// TopicKeyword is a weighted keyword used as a classification signal
type TopicKeyword struct {
	ID          int        `db:"id" json:"id"`
	TopicID     int        `db:"topic_id" json:"topic_id"`
	Keyword     string     `db:"keyword" json:"keyword"`
	Weight      float64    `db:"weight" json:"weight"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	CreatedBy   *string    `db:"created_by" json:"created_by,omitempty"`
	MatchCount  int        `db:"match_count" json:"match_count"`
	LastMatched *time.Time `db:"last_matched" json:"last_matched,omitempty"`
}

// TopicSimilarity is a symmetric pairwise score, stored with topic1_id < topic2_id
type TopicSimilarity struct {
	ID                int       `db:"id" json:"id"`
	Topic1ID          int       `db:"topic1_id" json:"topic1_id"`
	Topic2ID          int       `db:"topic2_id" json:"topic2_id"`
	SimilarityScore   float64   `db:"similarity_score" json:"similarity_score"`
	CalculationMethod string    `db:"calculation_method" json:"calculation_method"`
	CalculatedAt      time.Time `db:"calculated_at" json:"calculated_at"`
}

// FileReference is a file record produced by ingestion (directory or Drive scan)
type FileReference struct {
	ID               int        `db:"id" json:"id"`
	CustomerID       int        `db:"customer_id" json:"customer_id"`
	DriveID          *string    `db:"drive_id" json:"drive_id,omitempty"`
	FileName         string     `db:"file_name" json:"file_name"`
	FilePath         *string    `db:"file_path" json:"file_path,omitempty"`
	MimeType         *string    `db:"mime_type" json:"mime_type,omitempty"`
	SizeBytes        *int64     `db:"size_bytes" json:"size_bytes,omitempty"`
	LastModified     *time.Time `db:"last_modified" json:"last_modified,omitempty"`
	ContentHash      *string    `db:"content_hash" json:"content_hash,omitempty"`
	Topic            *string    `db:"topic" json:"topic,omitempty"`
	ImportanceScore  float64    `db:"importance_score" json:"importance_score"`
	Embedding        *string    `db:"embedding" json:"-"` // JSON array of floats
	Summary          *string    `db:"summary" json:"summary,omitempty"`
	Keywords         *string    `db:"keywords" json:"-"` // JSON array of strings
	ProcessingStatus string     `db:"processing_status" json:"processing_status"`
	ProcessedAt      *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	ErrorMessage     *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
}

// FileEmailCorrelation links a file to an email with a heuristic score.
// CorrelationType is a comma-joined list of the contributing heuristic tags.
type FileEmailCorrelation struct {
	ID               int       `db:"id" json:"id"`
	FileID           int       `db:"file_id" json:"file_id"`
	EmailID          int       `db:"email_id" json:"email_id"`
	CorrelationScore float64   `db:"correlation_score" json:"correlation_score"`
	CorrelationType  string    `db:"correlation_type" json:"correlation_type"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

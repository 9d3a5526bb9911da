package models

import "time"

// TopicScore is one topic's result inside a classification
type TopicScore struct {
	TopicID         int                `json:"topic_id"`
	TopicName       string             `json:"topic_name"`
	ConfidenceScore float64            `json:"confidence_score"`
	MethodBreakdown map[string]float64 `json:"method_breakdown"`
}

// ClassificationResult is the outcome of classifying a single email
type ClassificationResult struct {
	EmailID               int          `json:"email_id"`
	Classifications       []TopicScore `json:"classifications"`
	MethodsUsed           []string     `json:"methods_used"`
	TotalTopicsConsidered int          `json:"total_topics_considered"`
	ConfidentTopics       int          `json:"confident_topics"`
}

// EmailClassification summarizes the topics persisted for one email in a batch run
type EmailClassification struct {
	EmailID int               `json:"email_id"`
	Subject string            `json:"subject"`
	Topics  []AssignedSummary `json:"topics"`
}

// AssignedSummary is a (topic, confidence) pair persisted during batch classification
type AssignedSummary struct {
	TopicName  string  `json:"topic_name"`
	Confidence float64 `json:"confidence"`
}

// BatchClassificationResult aggregates a batch auto-classification run.
// Individual failures are recorded in Errors; they never abort the batch.
type BatchClassificationResult struct {
	Processed       int                   `json:"processed"`
	Classified      int                   `json:"classified"`
	Skipped         int                   `json:"skipped"`
	Errors          []string              `json:"errors,omitempty"`
	Classifications []EmailClassification `json:"classifications,omitempty"`
	Message         string                `json:"message,omitempty"`
}

// TopicSuggestion proposes a new topic mined from unclassified emails
type TopicSuggestion struct {
	SuggestedName  string   `json:"suggested_name"`
	EmailCount     int      `json:"email_count"`
	SampleSubjects []string `json:"sample_subjects"`
	Confidence     float64  `json:"confidence"`
}

// VerificationStats summarizes assignment verification coverage
type VerificationStats struct {
	Verified         int     `json:"verified"`
	Unverified       int     `json:"unverified"`
	VerificationRate float64 `json:"verification_rate"`
}

// ClassificationAnalytics aggregates assignment statistics
type ClassificationAnalytics struct {
	TotalAssignments       int               `json:"total_assignments"`
	MethodBreakdown        map[string]int    `json:"method_breakdown"`
	ConfidenceDistribution map[string]int    `json:"confidence_distribution"`
	TopicUsage             map[string]int    `json:"topic_usage"`
	VerificationStats      VerificationStats `json:"verification_stats"`
}

// SimilarTopic is a cached similarity row resolved to the other topic
type SimilarTopic struct {
	Topic             Topic   `json:"topic"`
	SimilarityScore   float64 `json:"similarity_score"`
	CalculationMethod string  `json:"calculation_method"`
}

// EmbeddingBackfillResult aggregates an embedding backfill run
type EmbeddingBackfillResult struct {
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}

// FileTimelineEntry is one heatmap cell of the file importance timeline
type FileTimelineEntry struct {
	FileID       int       `json:"file_id"`
	FileName     string    `json:"file_name"`
	Date         time.Time `json:"date"`
	Importance   float64   `json:"importance"`
	Topic        string    `json:"topic"`
	Correlations int       `json:"correlations"`
}

// SearchMatch is an email matched by an insights query
type SearchMatch struct {
	Email       EmailThread `json:"email"`
	Score       float64     `json:"score"`
	Matches     []string    `json:"matches"`
	DirectMatch bool        `json:"direct_match"`
}

// KeyMessage is a high-scoring match with a contextual excerpt
type KeyMessage struct {
	ID        int       `json:"id"`
	Date      time.Time `json:"date"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Excerpt   string    `json:"excerpt"`
	Score     float64   `json:"score"`
}

// InsightsReport is the full answer to an insights query
type InsightsReport struct {
	Query       string        `json:"query"`
	Mode        string        `json:"mode"`
	Narrative   string        `json:"narrative"`
	KeyMessages []KeyMessage  `json:"key_messages"`
	Timeline    []SearchMatch `json:"timeline"`
}

// EmailTopicDetail is an assignment row resolved with its topic
type EmailTopicDetail struct {
	EmailTopic
	TopicName string `db:"topic_name" json:"topic_name"`
	Color     string `db:"color" json:"color"`
	Level     int    `db:"level" json:"level"`
}

// TopicEmail is an email row paired with its assignment confidence
type TopicEmail struct {
	EmailThread
	AssignmentConfidence float64   `db:"assignment_confidence" json:"assignment_confidence"`
	AssignedAt           time.Time `db:"assigned_at" json:"assigned_at"`
}

// ClusterMaterializationResult aggregates an embedding-clustering run that
// turned clusters into real topics and assignments
type ClusterMaterializationResult struct {
	Clusters       int      `json:"clusters"`
	TopicsCreated  int      `json:"topics_created"`
	EmailsAssigned int      `json:"emails_assigned"`
	Errors         []string `json:"errors,omitempty"`
}

// HealthResponse is the basic health check payload
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// DBHealthResponse is the database health check payload
type DBHealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Connected bool          `json:"connected"`
	Latency   time.Duration `json:"latency_ns"`
	Error     string        `json:"error,omitempty"`
}

// ErrorResponse is the generic error payload for single-item endpoints
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

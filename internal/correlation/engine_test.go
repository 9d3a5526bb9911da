package correlation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rapport/internal/embeddings"
	"rapport/internal/models"
)

func strPtr(s string) *string        { return &s }
func timePtr(t time.Time) *time.Time { return &t }

func TestScoreFileEmail_SubjectMentionAndTemporal(t *testing.T) {
	sent := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	file := &models.FileReference{
		FileName:     "invoice_march.pdf",
		LastModified: timePtr(sent.Add(6 * time.Hour)),
	}
	email := &models.EmailThread{
		Subject: "Please review invoice_march.pdf",
		Date:    sent,
	}

	score, tags := scoreFileEmail(file, nil, nil, email, nil)

	// 0.8 + 0.3 clamps to 1.0
	assert.InDelta(t, 1.0, score, 1e-9)
	assert.Equal(t, []string{tagSubjectMention, tagTemporal24h}, tags)
}

func TestScoreFileEmail_BodyMentionAndWeekTemporal(t *testing.T) {
	sent := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	body := "attached you will find report_q1.xlsx for review"
	file := &models.FileReference{
		FileName:     "report_q1.xlsx",
		LastModified: timePtr(sent.Add(3 * 24 * time.Hour)),
	}
	email := &models.EmailThread{Subject: "Quarterly numbers", Date: sent, BodyFull: &body}

	score, tags := scoreFileEmail(file, nil, nil, email, nil)

	assert.InDelta(t, 0.7, score, 1e-9)
	assert.Equal(t, []string{tagBodyMention, tagTemporal7d}, tags)
}

func TestScoreFileEmail_KeywordFraction(t *testing.T) {
	body := "the invoice covers march payment for services"
	file := &models.FileReference{FileName: "unrelated.bin"}
	email := &models.EmailThread{Subject: "Billing", Date: time.Now(), BodyFull: &body}

	keywords := []string{"invoice", "march", "payment", "total", "due"}
	score, tags := scoreFileEmail(file, nil, keywords, email, nil)

	// 3 of 5 keywords present, fraction 0.6 weighted by 0.5
	assert.InDelta(t, 0.3, score, 1e-9)
	assert.Equal(t, []string{tagKeywordMatch}, tags)
}

func TestScoreFileEmail_KeywordFractionBelowFloor(t *testing.T) {
	body := "the invoice is attached"
	file := &models.FileReference{FileName: "unrelated.bin"}
	email := &models.EmailThread{Subject: "Billing", Date: time.Now(), BodyFull: &body}

	// 1 of 5 keywords is a 0.2 fraction, which does not clear the cutoff
	keywords := []string{"invoice", "march", "payment", "total", "due"}
	score, tags := scoreFileEmail(file, nil, keywords, email, nil)

	assert.Zero(t, score)
	assert.Empty(t, tags)
}

func TestScoreFileEmail_TopicAndSemantic(t *testing.T) {
	vec := embeddings.LocalEmbed("contract renewal terms attached")
	file := &models.FileReference{
		FileName: "contract_v2.docx",
		Topic:    strPtr("contract"),
	}
	email := &models.EmailThread{
		Subject: "Contract questions",
		Date:    time.Now().AddDate(0, -2, 0),
	}

	score, tags := scoreFileEmail(file, vec, nil, email, vec)

	// topic in subject 0.2, identical embeddings 1.0*0.4
	assert.InDelta(t, 0.6, score, 1e-9)
	assert.Equal(t, []string{tagTopicMatch, tagSemantic}, tags)
}

func TestScoreFileEmail_NoSignals(t *testing.T) {
	file := &models.FileReference{FileName: "notes.txt"}
	email := &models.EmailThread{Subject: "Unrelated", Date: time.Now().AddDate(-1, 0, 0)}

	score, tags := scoreFileEmail(file, nil, nil, email, nil)
	assert.Zero(t, score)
	assert.Empty(t, tags)
}

func TestImportanceScore(t *testing.T) {
	scores := []float64{0.6, 0.6, 0.6, 0.6, 0.6}
	got := importanceScore(scores, 5, 3*24*time.Hour)

	// connectivity 0.5*0.3 + avg 0.6*0.3 + recency 1.0*0.2 + freshness 0.3*0.2
	assert.InDelta(t, 0.59, got, 1e-9)
}

func TestImportanceScore_NoCorrelationsOldFile(t *testing.T) {
	got := importanceScore(nil, 0, 200*24*time.Hour)
	assert.Zero(t, got)
}

func TestImportanceScore_CapsConnectivity(t *testing.T) {
	scores := make([]float64, 40)
	for i := range scores {
		scores[i] = 1.0
	}
	got := importanceScore(scores, 100, time.Hour)
	// every component saturated: 0.3 + 0.3 + 0.2 + 0.06
	assert.InDelta(t, 0.86, got, 1e-9)
}

func TestCorrelateCustomerFiles_ReplacesAndFilters(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "sqlmock")
	engine := NewEngine(db, zerolog.Nop())

	sent := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	fileColumns := []string{
		"id", "customer_id", "drive_id", "file_name", "file_path", "mime_type",
		"size_bytes", "last_modified", "content_hash", "topic", "importance_score",
		"embedding", "summary", "keywords", "processing_status", "processed_at",
		"error_message", "created_at",
	}
	mock.ExpectQuery("SELECT \\* FROM file_references WHERE customer_id = (.+) AND processing_status = 'completed'").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(fileColumns).
			AddRow(1, 7, nil, "invoice_march.pdf", nil, nil, nil, sent.Add(time.Hour), nil, nil, 0.0,
				nil, nil, nil, "completed", nil, nil, sent))

	emailColumns := []string{"id", "customer_id", "subject", "date", "body_preview", "body_full", "embedding", "has_embedding"}
	mock.ExpectQuery("SELECT id, customer_id, subject, date, body_preview, body_full, embedding").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(emailColumns).
			AddRow(10, 7, "Re: invoice_march.pdf", sent, nil, nil, nil, false).
			AddRow(11, 7, "Unrelated note", sent.AddDate(-1, 0, 0), nil, nil, nil, false))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM file_email_correlations").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO file_email_correlations").
		WithArgs(1, 10, 1.0, "subject_mention,temporal_24h", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := engine.CorrelateCustomerFiles(context.Background(), 7, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, result.CorrelationsCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrelateCustomerFiles_SingleFile(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "sqlmock")
	engine := NewEngine(db, zerolog.Nop())

	sent := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	fileColumns := []string{
		"id", "customer_id", "drive_id", "file_name", "file_path", "mime_type",
		"size_bytes", "last_modified", "content_hash", "topic", "importance_score",
		"embedding", "summary", "keywords", "processing_status", "processed_at",
		"error_message", "created_at",
	}
	mock.ExpectQuery("AND processing_status = 'completed' AND id =").
		WithArgs(7, 3).
		WillReturnRows(sqlmock.NewRows(fileColumns).
			AddRow(3, 7, nil, "budget.xlsx", nil, nil, nil, sent.Add(time.Hour), nil, nil, 0.0,
				nil, nil, nil, "completed", nil, nil, sent))

	emailColumns := []string{"id", "customer_id", "subject", "date", "body_preview", "body_full", "embedding", "has_embedding"}
	mock.ExpectQuery("SELECT id, customer_id, subject, date, body_preview, body_full, embedding").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(emailColumns).
			AddRow(10, 7, "Re: budget.xlsx", sent, nil, nil, nil, false))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM file_email_correlations").
		WithArgs(3).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO file_email_correlations").
		WithArgs(3, 10, 1.0, "subject_mention,temporal_24h", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	fileID := 3
	result, err := engine.CorrelateCustomerFiles(context.Background(), 7, &fileID)
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, result.CorrelationsCreated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFileTimeline_EmailTextFilter(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "sqlmock")
	engine := NewEngine(db, zerolog.Nop())

	modified := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	columns := []string{"id", "file_name", "last_modified", "created_at", "importance_score", "topic", "correlation_count"}
	mock.ExpectQuery("LOWER\\(e.subject\\) LIKE (.+) OR LOWER\\(COALESCE\\(e.body_preview, ''\\)\\) LIKE").
		WithArgs(7, "%invoice%", "%invoice%").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "invoice_march.pdf", modified, modified.AddDate(0, -1, 0), 0.6, "billing", 3))

	timeline, err := engine.GetFileTimeline(context.Background(), 7, "Invoice")
	require.NoError(t, err)

	require.Len(t, timeline, 1)
	assert.Equal(t, "invoice_march.pdf", timeline[0].FileName)
	assert.Equal(t, modified, timeline[0].Date)
	assert.Equal(t, 3, timeline[0].Correlations)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFileTimeline_NoFilterSkipsSubquery(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "sqlmock")
	engine := NewEngine(db, zerolog.Nop())

	created := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	columns := []string{"id", "file_name", "last_modified", "created_at", "importance_score", "topic", "correlation_count"}
	mock.ExpectQuery("FROM file_references f").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(2, "notes.txt", nil, created, 0.1, nil, 0))

	timeline, err := engine.GetFileTimeline(context.Background(), 7, "")
	require.NoError(t, err)

	require.Len(t, timeline, 1)
	assert.Equal(t, created, timeline[0].Date)
	assert.Equal(t, "", timeline[0].Topic)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package insights

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rapport/internal/models"
)

func strPtr(s string) *string { return &s }

func email(id int, subject, body string, date time.Time) models.EmailThread {
	e := models.EmailThread{ID: id, Subject: subject, Date: date}
	if body != "" {
		e.BodyFull = &body
	}
	return e
}

func TestSearchEmails_SubjectPhraseOutscoresBodyWord(t *testing.T) {
	now := time.Now()
	emails := []models.EmailThread{
		email(1, "Contract renewal due", "", now),
		email(2, "Status update", "we should discuss the renewal soon", now.Add(-time.Hour)),
		email(3, "Weekly digest", "nothing of note", now.Add(-2*time.Hour)),
	}

	matches := searchEmails(emails, "contract renewal", ModeStrict)
	require.Len(t, matches, 2)

	// exact subject phrase scores 10, single body word scores 2
	assert.Equal(t, 1, matches[0].Email.ID)
	assert.InDelta(t, 10, matches[0].Score, 1e-9)
	assert.True(t, matches[0].DirectMatch)

	assert.Equal(t, 2, matches[1].Email.ID)
	assert.InDelta(t, 2, matches[1].Score, 1e-9)
}

func TestSearchEmails_BodyPhraseRepeatBonusCapped(t *testing.T) {
	now := time.Now()
	body := strings.Repeat("the invoice is overdue. ", 20)
	emails := []models.EmailThread{email(1, "Billing", body, now)}

	matches := searchEmails(emails, "invoice", ModeStrict)
	require.Len(t, matches, 1)

	// phrase in body 5 + repeat bonus capped at 5
	assert.InDelta(t, 10, matches[0].Score, 1e-9)
}

func TestSearchEmails_RelatedModeIsSuperset(t *testing.T) {
	now := time.Now()
	emails := []models.EmailThread{
		email(1, "Contract signed", "", now),
		// no direct "contract" hit, but sibling terms of the contract family
		email(2, "Agreement terms attached", "updated pricing enclosed", now.Add(-time.Hour)),
	}

	strict := searchEmails(emails, "contract", ModeStrict)
	related := searchEmails(emails, "contract", ModeRelated)

	require.Len(t, strict, 1)
	require.Len(t, related, 2)

	var relatedOnly *models.SearchMatch
	for i := range related {
		if related[i].Email.ID == 2 {
			relatedOnly = &related[i]
		}
	}
	require.NotNil(t, relatedOnly)
	// agreement + terms + pricing, 0.5 each
	assert.InDelta(t, 1.5, relatedOnly.Score, 1e-9)
	assert.False(t, relatedOnly.DirectMatch)
	assert.Contains(t, relatedOnly.Matches, "contract")
}

func TestSearchEmails_StrictExcludesIndirect(t *testing.T) {
	now := time.Now()
	emails := []models.EmailThread{
		email(1, "Agreement terms attached", "", now),
	}
	assert.Empty(t, searchEmails(emails, "contract", ModeStrict))
}

func TestBuildNarrative_Empty(t *testing.T) {
	got := buildNarrative("contract", nil, time.Now())
	assert.Equal(t, "No relevant communications found for this query.", got)
}

func TestBuildNarrative_FullReport(t *testing.T) {
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

	march := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	april1 := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	april2 := time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * 24 * time.Hour)

	mk := func(id int, date time.Time, sender string) models.SearchMatch {
		e := email(id, "Contract", "", date)
		e.SenderName = strPtr(sender)
		e.RecipientName = strPtr("Dana")
		return models.SearchMatch{Email: e, Score: 10, Matches: []string{"subject", "contract"}}
	}

	matches := []models.SearchMatch{
		mk(1, recent, "Alex"),
		mk(2, april2, "Alex"),
		mk(3, april1, "Sam"),
		mk(4, march, "Sam"),
	}

	narrative := buildNarrative("contract", matches, now)

	assert.Contains(t, narrative, "Found 4 relevant communications about 'contract'")
	assert.Contains(t, narrative, "spanning from March 10, 2026")
	assert.Contains(t, narrative, "Key participants include: Dana, Alex, Sam.")
	assert.Contains(t, narrative, "contract negotiations")
	assert.Contains(t, narrative, "Activity peaked in April 2026 with 2 messages.")
	assert.Contains(t, narrative, "1 related messages in the past 30 days")
}

func TestExtractExcerpt_AroundTopicTerm(t *testing.T) {
	padding := strings.Repeat("x", 200)
	body := padding + " the agreement was finalized " + padding
	e := email(1, "Update", body, time.Now())

	excerpt := extractExcerpt(&e, []string{"body", "contract"})

	// "contract" is not in the body, so only "agreement" would anchor; with
	// no anchor the leading slice is used
	assert.True(t, strings.HasPrefix(excerpt, "xxx"))
	assert.True(t, strings.HasSuffix(excerpt, "..."))
	assert.Len(t, excerpt, 303)
}

func TestExtractExcerpt_AnchorsEarliestMatch(t *testing.T) {
	padding := strings.Repeat("x", 400)
	body := padding + " delivery milestone reached " + padding
	e := email(1, "Update", body, time.Now())

	excerpt := extractExcerpt(&e, []string{"delivery"})

	assert.True(t, strings.HasPrefix(excerpt, "..."))
	assert.True(t, strings.HasSuffix(excerpt, "..."))
	assert.Contains(t, excerpt, "delivery milestone")
}

func TestExtractExcerpt_ShortBodyAndPreviewFallback(t *testing.T) {
	e := email(1, "Update", "short body", time.Now())
	assert.Equal(t, "short body", extractExcerpt(&e, nil))

	preview := models.EmailThread{ID: 2, BodyPreview: strPtr("preview text")}
	assert.Equal(t, "preview text", extractExcerpt(&preview, nil))

	empty := models.EmailThread{ID: 3}
	assert.Empty(t, extractExcerpt(&empty, nil))
}

func TestExtractKeyMessages_LimitsAndPopulates(t *testing.T) {
	now := time.Now()
	var matches []models.SearchMatch
	for i := 0; i < 15; i++ {
		e := email(i+1, "Contract", "body text", now)
		e.SenderName = strPtr("Alex")
		matches = append(matches, models.SearchMatch{Email: e, Score: float64(15 - i)})
	}

	messages := extractKeyMessages(matches, keyMessageLimit)
	require.Len(t, messages, 10)
	assert.Equal(t, 1, messages[0].ID)
	assert.Equal(t, "Alex", messages[0].Sender)
	assert.InDelta(t, 15, messages[0].Score, 1e-9)
}

// Package insights answers free-text queries about a customer's
// communications with a scored timeline, key messages, and a narrative
// summary.
package insights

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"rapport/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

// Search modes
const (
	ModeStrict  = "strict"
	ModeRelated = "related"
	ModeFuzzy   = "fuzzy"
)

// topicKeywords maps a topic family to terms that signal it. When the query
// itself is one of these terms, sibling terms count as related evidence in
// non-strict modes.
var topicKeywords = map[string][]string{
	"contract":  {"contract", "agreement", "terms", "clause", "negotiation", "pricing", "renewal"},
	"technical": {"bug", "issue", "error", "problem", "fix", "broken", "not working", "crash"},
	"feature":   {"feature", "request", "enhancement", "improvement", "add", "new functionality"},
	"meeting":   {"meeting", "call", "discussion", "agenda", "schedule", "conference"},
	"delivery":  {"delivery", "timeline", "deadline", "milestone", "completion", "progress"},
	"payment":   {"payment", "invoice", "billing", "charge", "fee", "cost"},
}

// Human phrasing of each topic family used in narratives
var topicPhrases = map[string]string{
	"technical": "technical issues",
	"contract":  "contract negotiations",
	"feature":   "feature requests",
	"meeting":   "meetings and discussions",
	"delivery":  "delivery timelines",
	"payment":   "payment matters",
}

const (
	keyMessageLimit = 10
	excerptContext  = 150
	excerptFallback = 300
)

// Service builds insight reports over a customer's email history
type Service struct {
	db     *sqlx.DB
	logger zerolog.Logger
	now    func() time.Time
}

// NewService creates an insights service
func NewService(db *sqlx.DB, logger zerolog.Logger) *Service {
	return &Service{
		db:     db,
		logger: logger.With().Str("component", "insights").Logger(),
		now:    time.Now,
	}
}

// GenerateReport searches a customer's emails for the query and assembles
// the full report. Unknown modes fall back to strict.
func (s *Service) GenerateReport(ctx context.Context, customerID int, query, mode string) (*models.InsightsReport, error) {
	switch mode {
	case ModeStrict, ModeRelated, ModeFuzzy:
	default:
		mode = ModeStrict
	}

	var emails []models.EmailThread
	q := s.db.Rebind(`
		SELECT id, customer_id, subject, date, sender_name, sender_email,
			recipient_name, recipient_email, body_preview, body_full
		FROM email_threads
		WHERE customer_id = ?
		ORDER BY date DESC`)
	if err := s.db.SelectContext(ctx, &emails, q, customerID); err != nil {
		return nil, fmt.Errorf("failed to load emails: %w", err)
	}

	matches := searchEmails(emails, query, mode)
	report := &models.InsightsReport{
		Query:       query,
		Mode:        mode,
		Narrative:   buildNarrative(query, matches, s.now()),
		KeyMessages: extractKeyMessages(matches, keyMessageLimit),
		Timeline:    matches,
	}
	return report, nil
}

// searchEmails scores every email against the query. Subject hits outweigh
// body hits, exact phrases outweigh single words, and repeated body phrases
// earn a capped bonus. Non-strict modes also credit sibling terms of the
// query's topic family.
func searchEmails(emails []models.EmailThread, query, mode string) []models.SearchMatch {
	queryLower := strings.ToLower(query)
	queryWords := strings.Fields(queryLower)

	var result []models.SearchMatch
	for _, email := range emails {
		var score float64
		var matches []string
		directMatch := false

		subjectLower := strings.ToLower(email.Subject)
		if strings.Contains(subjectLower, queryLower) {
			score += 10
			matches = append(matches, "subject")
			directMatch = true
		} else if anyWordIn(subjectLower, queryWords) {
			score += 5
			matches = append(matches, "subject")
			directMatch = true
		}

		var bodyLower string
		if email.BodyFull != nil && *email.BodyFull != "" {
			bodyLower = strings.ToLower(*email.BodyFull)
			if strings.Contains(bodyLower, queryLower) {
				score += 5
				matches = append(matches, "body")
				directMatch = true
				bonus := float64(strings.Count(bodyLower, queryLower)) * 0.5
				if bonus > 5 {
					bonus = 5
				}
				score += bonus
			} else if anyWordIn(bodyLower, queryWords) {
				score += 2
				matches = append(matches, "body")
				directMatch = true
			}
		}

		if mode != ModeStrict {
			for topic, keywords := range topicKeywords {
				if !containsString(keywords, queryLower) {
					continue
				}
				topicTagged := false
				for _, keyword := range keywords {
					if keyword == queryLower {
						continue
					}
					if strings.Contains(subjectLower, keyword) || (bodyLower != "" && strings.Contains(bodyLower, keyword)) {
						score += 0.5
						if !topicTagged && !containsString(matches, topic) {
							matches = append(matches, topic)
							topicTagged = true
						}
					}
				}
			}
		}

		include := false
		switch mode {
		case ModeStrict:
			include = directMatch
		case ModeRelated, ModeFuzzy:
			include = score > 0
		}
		if include {
			result = append(result, models.SearchMatch{
				Email:       email,
				Score:       score,
				Matches:     matches,
				DirectMatch: directMatch,
			})
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].Email.Date.After(result[j].Email.Date)
	})

	return result
}

func anyWordIn(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

func containsString(list []string, target string) bool {
	for _, item := range list {
		if item == target {
			return true
		}
	}
	return false
}

// buildNarrative summarizes the matches: span, key participants, topic
// families touched, the peak month, and recent activity
func buildNarrative(query string, matches []models.SearchMatch, now time.Time) string {
	if len(matches) == 0 {
		return "No relevant communications found for this query."
	}

	monthly := make(map[string]int)
	topicCounts := make(map[string]int)
	participantCounts := make(map[string]int)
	var participantOrder []string

	oldest := matches[0].Email.Date
	newest := matches[0].Email.Date
	recent := 0

	for _, match := range matches {
		email := match.Email
		if email.Date.Before(oldest) {
			oldest = email.Date
		}
		if email.Date.After(newest) {
			newest = email.Date
		}
		monthly[email.Date.Format("2006-01")]++
		if now.Sub(email.Date) < 30*24*time.Hour {
			recent++
		}

		for _, name := range []*string{email.SenderName, email.RecipientName} {
			if name == nil || *name == "" {
				continue
			}
			if participantCounts[*name] == 0 {
				participantOrder = append(participantOrder, *name)
			}
			participantCounts[*name]++
		}

		for _, tag := range match.Matches {
			if tag != "subject" && tag != "body" {
				topicCounts[tag]++
			}
		}
	}

	var parts []string
	parts = append(parts, fmt.Sprintf(
		"Found %d relevant communications about '%s' spanning from %s to %s.",
		len(matches), query, oldest.Format("January 2, 2006"), newest.Format("January 2, 2006")))

	sort.SliceStable(participantOrder, func(i, j int) bool {
		return participantCounts[participantOrder[i]] > participantCounts[participantOrder[j]]
	})
	if len(participantOrder) > 4 {
		participantOrder = participantOrder[:4]
	}
	if len(participantOrder) > 0 {
		parts = append(parts, fmt.Sprintf("Key participants include: %s.", strings.Join(participantOrder, ", ")))
	}

	if len(topicCounts) > 0 {
		topicsByCount := make([]string, 0, len(topicCounts))
		for topic := range topicCounts {
			topicsByCount = append(topicsByCount, topic)
		}
		sort.Slice(topicsByCount, func(i, j int) bool {
			if topicCounts[topicsByCount[i]] != topicCounts[topicsByCount[j]] {
				return topicCounts[topicsByCount[i]] > topicCounts[topicsByCount[j]]
			}
			return topicsByCount[i] < topicsByCount[j]
		})
		var phrases []string
		for _, topic := range topicsByCount {
			if phrase, ok := topicPhrases[topic]; ok {
				phrases = append(phrases, phrase)
			}
		}
		if len(phrases) > 0 {
			parts = append(parts, fmt.Sprintf("The communications cover %s.", strings.Join(phrases, ", ")))
		}
	}

	if len(monthly) > 1 {
		peakMonth := ""
		peakCount := 0
		months := make([]string, 0, len(monthly))
		for month := range monthly {
			months = append(months, month)
		}
		sort.Strings(months)
		for _, month := range months {
			if monthly[month] > peakCount {
				peakMonth = month
				peakCount = monthly[month]
			}
		}
		if peak, err := time.Parse("2006-01", peakMonth); err == nil {
			parts = append(parts, fmt.Sprintf("Activity peaked in %s with %d messages.",
				peak.Format("January 2006"), peakCount))
		}
	}

	if recent > 0 {
		parts = append(parts, fmt.Sprintf("There have been %d related messages in the past 30 days.", recent))
	}

	return strings.Join(parts, " ")
}

// extractKeyMessages turns the top matches into dated excerpts
func extractKeyMessages(matches []models.SearchMatch, limit int) []models.KeyMessage {
	if len(matches) > limit {
		matches = matches[:limit]
	}

	messages := make([]models.KeyMessage, 0, len(matches))
	for _, match := range matches {
		email := match.Email
		msg := models.KeyMessage{
			ID:      email.ID,
			Date:    email.Date,
			Subject: email.Subject,
			Excerpt: extractExcerpt(&email, match.Matches),
			Score:   match.Score,
		}
		if email.SenderName != nil {
			msg.Sender = *email.SenderName
		}
		if email.RecipientName != nil {
			msg.Recipient = *email.RecipientName
		}
		messages = append(messages, msg)
	}
	return messages
}

// extractExcerpt pulls the body text around the earliest topic-term match.
// With no locatable term the leading slice of the body is used instead.
func extractExcerpt(email *models.EmailThread, matches []string) string {
	if email.BodyFull == nil || *email.BodyFull == "" {
		if email.BodyPreview != nil {
			return *email.BodyPreview
		}
		return ""
	}

	body := *email.BodyFull
	bodyLower := strings.ToLower(body)

	bestPos := -1
	for _, match := range matches {
		if match == "subject" || match == "body" {
			continue
		}
		if pos := strings.Index(bodyLower, strings.ToLower(match)); pos != -1 {
			if bestPos == -1 || pos < bestPos {
				bestPos = pos
			}
		}
	}

	if bestPos == -1 {
		if len(body) > excerptFallback {
			return body[:excerptFallback] + "..."
		}
		return body
	}

	start := bestPos - excerptContext
	if start < 0 {
		start = 0
	}
	end := bestPos + excerptContext
	if end > len(body) {
		end = len(body)
	}

	excerpt := body[start:end]
	if start > 0 {
		excerpt = "..." + strings.TrimLeft(excerpt, " \t\n")
	}
	if end < len(body) {
		excerpt = strings.TrimRight(excerpt, " \t\n") + "..."
	}
	return excerpt
}

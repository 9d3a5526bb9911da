package utils

import (
	"regexp"
	"strings"
)

var (
	wordPattern = regexp.MustCompile(`[a-z]+`)
	stopwords   = map[string]struct{}{
		"the": {}, "is": {}, "at": {}, "which": {}, "on": {}, "a": {}, "an": {},
		"and": {}, "or": {}, "but": {}, "in": {}, "with": {}, "to": {}, "for": {},
		"of": {}, "as": {}, "by": {}, "that": {}, "this": {}, "it": {}, "from": {},
		"be": {}, "are": {}, "been": {}, "was": {}, "were": {}, "being": {},
		"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
		"will": {}, "would": {}, "should": {}, "could": {}, "can": {}, "may": {},
		"might": {}, "must": {}, "shall": {},
	}
)

// ExtractWords tokenizes text into lowercase alphabetic words of at least
// minLen characters, dropping stopwords. Duplicates are preserved in order so
// callers can count term frequency.
func ExtractWords(text string, minLen int) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	raw := wordPattern.FindAllString(strings.ToLower(text), -1)
	result := make([]string, 0, len(raw))
	for _, word := range raw {
		if len(word) < minLen {
			continue
		}
		if _, isStopword := stopwords[word]; isStopword {
			continue
		}
		result = append(result, word)
	}
	return result
}

// WordSet builds the unique word set of the provided values.
func WordSet(minLen int, values ...string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, value := range values {
		for _, word := range ExtractWords(value, minLen) {
			set[word] = struct{}{}
		}
	}
	return set
}

// CountOccurrences counts non-overlapping case-insensitive occurrences of
// substr inside text. Empty substrings never match.
func CountOccurrences(text, substr string) int {
	if substr == "" {
		return 0
	}
	return strings.Count(strings.ToLower(text), strings.ToLower(substr))
}

// ContainsFold reports whether text contains substr, ignoring case.
func ContainsFold(text, substr string) bool {
	if substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(substr))
}

// WordCounts returns occurrence counts for every word ExtractWords yields.
func WordCounts(text string, minLen int) map[string]int {
	words := ExtractWords(text, minLen)
	if len(words) == 0 {
		return nil
	}
	counts := make(map[string]int, len(words))
	for _, word := range words {
		counts[word]++
	}
	return counts
}

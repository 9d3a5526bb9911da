package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractWords(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		minLen   int
		expected []string
	}{
		{
			name:     "simple words",
			input:    "Contract renewal discussion",
			minLen:   2,
			expected: []string{"contract", "renewal", "discussion"},
		},
		{
			name:     "stopwords removed",
			input:    "the invoice for the delivery",
			minLen:   2,
			expected: []string{"invoice", "delivery"},
		},
		{
			name:     "auxiliaries and modals removed",
			input:    "we can have the invoice paid and it will arrive",
			minLen:   2,
			expected: []string{"we", "invoice", "paid", "arrive"},
		},
		{
			name:     "punctuation and digits dropped",
			input:    "Re: Q3-2025 payment!",
			minLen:   2,
			expected: []string{"re", "payment"},
		},
		{
			name:     "minimum length enforced",
			input:    "Re: go to the API demo",
			minLen:   3,
			expected: []string{"api", "demo"},
		},
		{
			name:     "duplicates preserved in order",
			input:    "demo demo feedback demo",
			minLen:   2,
			expected: []string{"demo", "demo", "feedback", "demo"},
		},
		{
			name:     "empty string",
			input:    "",
			minLen:   2,
			expected: nil,
		},
		{
			name:     "whitespace only",
			input:    "   \t\n  ",
			minLen:   2,
			expected: nil,
		},
		{
			name:     "mixed case normalized",
			input:    "URGENT Shipment DELAYED",
			minLen:   2,
			expected: []string{"urgent", "shipment", "delayed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractWords(tt.input, tt.minLen)
			if tt.expected == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestWordSet(t *testing.T) {
	set := WordSet(3, "Contract renewal", "renewal terms")
	assert.Len(t, set, 3)
	assert.Contains(t, set, "contract")
	assert.Contains(t, set, "renewal")
	assert.Contains(t, set, "terms")
}

func TestCountOccurrences(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		substr   string
		expected int
	}{
		{"case insensitive", "Invoice INVOICE invoice", "invoice", 3},
		{"no match", "delivery schedule", "invoice", 0},
		{"empty substring", "anything", "", 0},
		{"substring within words", "preconditions and conditions", "condition", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CountOccurrences(tt.text, tt.substr))
		})
	}
}

func TestContainsFold(t *testing.T) {
	assert.True(t, ContainsFold("Invoice March.PDF attached", "invoice march.pdf"))
	assert.False(t, ContainsFold("delivery schedule", "invoice"))
	assert.False(t, ContainsFold("anything", ""))
}

func TestWordCounts(t *testing.T) {
	counts := WordCounts("demo demo feedback", 2)
	assert.Equal(t, map[string]int{"demo": 2, "feedback": 1}, counts)
	assert.Nil(t, WordCounts("", 2))
}

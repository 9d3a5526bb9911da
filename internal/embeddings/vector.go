package embeddings

import (
	"encoding/json"
	"fmt"
	"math"

	"rapport/internal/utils"
)

// LocalDim is the dimensionality of locally generated embeddings
const LocalDim = 100

// LocalModel is the model name recorded for locally generated embeddings
const LocalModel = "local-hash-100"

// EncodeVector serializes a vector as a JSON array for TEXT column storage
func EncodeVector(vec []float64) (string, error) {
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to encode vector: %w", err)
	}
	return string(data), nil
}

// DecodeVector parses a stored vector. Rows written by older importers hold a
// doubly encoded JSON string, so both forms are accepted.
func DecodeVector(raw string) ([]float64, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty vector")
	}

	var vec []float64
	if err := json.Unmarshal([]byte(raw), &vec); err == nil {
		return vec, nil
	}

	var inner string
	if err := json.Unmarshal([]byte(raw), &inner); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	if err := json.Unmarshal([]byte(inner), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vec, nil
}

// Similarity computes the dot product of two vectors. Embeddings are stored
// L2-normalized, so this equals cosine similarity. Mismatched or empty
// vectors score 0.
func Similarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot
}

// LocalEmbed produces a deterministic 100-dimensional embedding without any
// remote provider. Each distinct word is hashed into a bucket and weighted by
// its term frequency, then the vector is L2-normalized. Text with no usable
// words yields the zero vector.
func LocalEmbed(text string) []float64 {
	vec := make([]float64, LocalDim)

	words := utils.ExtractWords(text, 3)
	if len(words) == 0 {
		return vec
	}

	counts := make(map[string]int, len(words))
	for _, word := range words {
		counts[word]++
	}

	total := float64(len(words))
	for word, count := range counts {
		vec[hashBucket(word)] += float64(count) / total
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}

	return vec
}

func hashBucket(word string) int {
	sum := 0
	for i := 0; i < len(word); i++ {
		sum += int(word[i])
	}
	return (sum * 17) % LocalDim
}

// Float32To64 widens a remote provider vector for storage and scoring
func Float32To64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

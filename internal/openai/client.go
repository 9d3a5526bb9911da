// Package openai wraps the OpenAI embeddings API behind a narrow interface.
// Callers decide what to do when the remote provider is unavailable.
package openai

import (
	"context"
	"fmt"
	"time"

	"rapport/internal/config"

	"github.com/sashabaranov/go-openai"
)

// Client is a thin wrapper around the OpenAI API for embedding generation
type Client struct {
	api     *openai.Client
	model   openai.EmbeddingModel
	timeout time.Duration
}

// NewClient creates an OpenAI client from configuration.
// Returns an error when no API key is configured or remote embeddings
// are disabled; callers fall back to local embeddings in that case.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.DisableRemoteEmbeddings {
		return nil, fmt.Errorf("remote embeddings disabled by configuration")
	}
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("no OpenAI provider configured: set OPENAI_API_KEY")
	}

	return &Client{
		api:     openai.NewClient(cfg.OpenAIKey),
		model:   openai.EmbeddingModel(cfg.EmbeddingModel),
		timeout: time.Duration(cfg.OpenAITimeout) * time.Second,
	}, nil
}

// CreateEmbeddings generates embeddings for the given texts, preserving order
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}

	embeddings := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		embeddings[i] = data.Embedding
	}

	return embeddings, nil
}

// Model returns the embedding model name being used
func (c *Client) Model() string {
	return string(c.model)
}

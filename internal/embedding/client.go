// Package embedding generates text embeddings through the OpenAI API, with
// batching and rate-limit backoff.
package embedding

import (
	"fmt"
	"os"

	"github.com/openai/openai-go"
)

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates the OpenAI client. It requires OPENAI_API_KEY in the
// environment and fails fast when it is missing, so a misconfigured service
// dies at startup instead of returning empty results later.
func NewClient() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	// openai-go reads OPENAI_API_KEY from the environment itself.
	client := openai.NewClient()

	return &Client{client: &client}, nil
}

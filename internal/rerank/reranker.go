// Package rerank calls an external pairwise relevance service (a
// cross-encoder behind HTTP) to re-score shortlisted candidates. The service
// is optional: every failure mode degrades to ErrUnavailable so callers fall
// back to composite ordering.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable means the reranker cannot serve scores right now: no
// endpoint configured, the circuit breaker is open, or the call failed.
// Never fatal for a query.
var ErrUnavailable = errors.New("reranker unavailable")

// DefaultTimeout bounds a single scoring call.
const DefaultTimeout = 15 * time.Second

// Client scores (query, candidate) pairs against the rerank endpoint. A nil
// or endpoint-less client reports ErrUnavailable from every call.
type Client struct {
	endpoint string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[[]float64]
}

// NewClient creates a reranker client. An empty endpoint is valid and yields
// a client that is permanently unavailable, which keeps wiring simple when
// the model is not deployed.
func NewClient(endpoint string) *Client {
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: DefaultTimeout},
	}
	c.breaker = gobreaker.NewCircuitBreaker[[]float64](gobreaker.Settings{
		Name:        "reranker",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("reranker breaker state change", "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.endpoint != ""
}

type scoreRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// Score returns one relevance score per document for the given query, in
// input order. Returns ErrUnavailable on any transport or service failure.
func (c *Client) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if !c.Enabled() {
		return nil, ErrUnavailable
	}
	if len(documents) == 0 {
		return nil, nil
	}

	scores, err := c.breaker.Execute(func() ([]float64, error) {
		return c.score(ctx, query, documents)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return scores, nil
}

func (c *Client) score(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(scoreRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("marshal score request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/score", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("score request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("score request returned %d: %s", resp.StatusCode, payload)
	}

	var decoded scoreResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode score response: %w", err)
	}
	if len(decoded.Scores) != len(documents) {
		return nil, fmt.Errorf("score count mismatch: got %d, want %d", len(decoded.Scores), len(documents))
	}
	return decoded.Scores, nil
}

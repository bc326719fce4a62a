package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/score", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var req scoreRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "kafka consumer lag", req.Query)
		require.Len(t, req.Documents, 2)

		json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.91, 0.12}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	scores, err := client.Score(context.Background(), "kafka consumer lag",
		[]string{"consumer group rebalancing", "login page styling"})

	require.NoError(t, err)
	assert.Equal(t, []float64{0.91, 0.12}, scores)
}

func TestScore_NoEndpoint(t *testing.T) {
	client := NewClient("")
	assert.False(t, client.Enabled())

	_, err := client.Score(context.Background(), "q", []string{"doc"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScore_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Score(context.Background(), "q", []string{"doc"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScore_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(scoreResponse{Scores: []float64{0.5}})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Score(context.Background(), "q", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestScore_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := client.Score(ctx, "q", []string{"doc"})
		assert.ErrorIs(t, err, ErrUnavailable)
	}

	// The breaker trips after three consecutive failures; later calls do not
	// reach the server.
	assert.Equal(t, 3, calls)
}

func TestScore_EmptyDocuments(t *testing.T) {
	client := NewClient("http://localhost:0")
	scores, err := client.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Nil(t, scores)
}

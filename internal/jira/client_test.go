package jira

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const issueJSON = `{
	"key": "SHOP-204",
	"fields": {
		"summary": "Checkout fails on large carts",
		"description": "Carts over 50 items fail at checkout.",
		"status": {"name": "Done"},
		"priority": {"name": "Critical"},
		"assignee": {"displayName": "M. Fields"},
		"reporter": {"displayName": "J. Ortiz"},
		"issuetype": {"name": "Bug"},
		"project": {"key": "SHOP"},
		"components": [{"name": "checkout"}, {"name": "cart"}],
		"labels": ["regression"],
		"fixVersions": [{"name": "4.2.1"}],
		"comment": {"comments": [{"body": "Fixed the pagination query."}]}
	}
}`

func TestGetTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/2/issue/SHOP-204", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "svc@example.com", user)
		assert.Equal(t, "token123", pass)
		w.Write([]byte(issueJSON))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "svc@example.com", "token123")
	rec, err := client.GetTicket(context.Background(), "SHOP-204")
	require.NoError(t, err)

	assert.Equal(t, "SHOP-204", rec.Key)
	assert.Equal(t, "Checkout fails on large carts", rec.Summary)
	assert.Equal(t, "Done", rec.Status)
	assert.Equal(t, "Critical", rec.Priority)
	assert.Equal(t, []string{"checkout", "cart"}, rec.Components)
	assert.Equal(t, []string{"regression"}, rec.Labels)
	assert.Equal(t, "4.2.1", rec.FixedVersion)
	assert.Equal(t, []string{"Fixed the pagination query."}, rec.Comments)
}

func TestGetTicket_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errorMessages":["Issue does not exist"]}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "")
	_, err := client.GetTicket(context.Background(), "NOPE-1")
	assert.ErrorIs(t, err, ErrTicketNotFound)
}

func TestGetTicket_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "")
	_, err := client.GetTicket(context.Background(), "ANY-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTicketNotFound)
}

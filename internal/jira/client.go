// Package jira fetches single-ticket details over the tracker's REST API.
// Only the resolution cascade uses it; the general retrieval paths read
// everything from the vector store.
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/combot/ticketsearch/internal/ticket"
)

// ErrTicketNotFound means the tracker has no ticket with the given key.
var ErrTicketNotFound = errors.New("ticket not found")

// DefaultTimeout bounds one detail lookup.
const DefaultTimeout = 15 * time.Second

// Client is a minimal tracker REST client.
type Client struct {
	baseURL string
	email   string
	token   string
	http    *http.Client
}

// NewClient creates a client for the tracker at baseURL, authenticating with
// basic auth (email + API token) when both are set.
func NewClient(baseURL, email, token string) *Client {
	return &Client{
		baseURL: baseURL,
		email:   email,
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
}

// issueResponse mirrors the subset of the tracker's issue payload we read.
type issueResponse struct {
	Key    string `json:"key"`
	Fields struct {
		Summary     string `json:"summary"`
		Description string `json:"description"`
		Status      struct {
			Name string `json:"name"`
		} `json:"status"`
		Priority struct {
			Name string `json:"name"`
		} `json:"priority"`
		Assignee struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Reporter struct {
			DisplayName string `json:"displayName"`
		} `json:"reporter"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
		Components []struct {
			Name string `json:"name"`
		} `json:"components"`
		Labels        []string `json:"labels"`
		FixVersions   []struct {
			Name string `json:"name"`
		} `json:"fixVersions"`
		Created string `json:"created"`
		Updated string `json:"updated"`
		Comment struct {
			Comments []struct {
				Body string `json:"body"`
			} `json:"comments"`
		} `json:"comment"`
	} `json:"fields"`
}

// GetTicket fetches one ticket by key. Returns ErrTicketNotFound for a 404;
// any other failure is a transport error.
func (c *Client) GetTicket(ctx context.Context, key string) (*ticket.Record, error) {
	endpoint := fmt.Sprintf("%s/rest/api/2/issue/%s", c.baseURL, url.PathEscape(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build ticket request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.email != "" && c.token != "" {
		req.SetBasicAuth(c.email, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ticket request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrTicketNotFound, key)
	case resp.StatusCode != http.StatusOK:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ticket request returned %d: %s", resp.StatusCode, payload)
	}

	var issue issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&issue); err != nil {
		return nil, fmt.Errorf("decode ticket response: %w", err)
	}
	return recordFromIssue(issue), nil
}

func recordFromIssue(issue issueResponse) *ticket.Record {
	rec := &ticket.Record{
		Key:         issue.Key,
		Summary:     issue.Fields.Summary,
		Description: issue.Fields.Description,
		Status:      issue.Fields.Status.Name,
		Priority:    issue.Fields.Priority.Name,
		Assignee:    issue.Fields.Assignee.DisplayName,
		Reporter:    issue.Fields.Reporter.DisplayName,
		IssueType:   issue.Fields.IssueType.Name,
		Project:     issue.Fields.Project.Key,
		Labels:      issue.Fields.Labels,
		Created:     issue.Fields.Created,
		Updated:     issue.Fields.Updated,
	}
	for _, comp := range issue.Fields.Components {
		rec.Components = append(rec.Components, comp.Name)
	}
	if len(issue.Fields.FixVersions) > 0 {
		rec.FixedVersion = issue.Fields.FixVersions[0].Name
	}
	for _, cm := range issue.Fields.Comment.Comments {
		rec.Comments = append(rec.Comments, cm.Body)
	}
	return rec
}

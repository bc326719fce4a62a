// Package ingest parses ticket export files and runs the chunk-embed-upsert
// pipeline that feeds the vector store.
package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/combot/ticketsearch/internal/ticket"
)

// nameField accepts both the flat form ("Done") and the tracker export form
// ({"name": "Done"}) for enumerated fields.
type nameField string

func (n *nameField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*n = nameField(s)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*n = nameField(obj.Name)
	return nil
}

// jsonTicket covers the two JSON shapes exports come in: flat objects with
// top-level fields, and tracker exports nesting everything under "fields".
type jsonTicket struct {
	Key              string      `json:"key"`
	Summary          string      `json:"summary"`
	Description      string      `json:"description"`
	Status           nameField   `json:"status"`
	Assignee         nameField   `json:"assignee"`
	Reporter         nameField   `json:"reporter"`
	Priority         nameField   `json:"priority"`
	IssueType        nameField   `json:"issue_type"`
	Project          nameField   `json:"project"`
	Components       []nameField `json:"components"`
	Labels           []string    `json:"labels"`
	Comments         []string    `json:"comments"`
	TriageAnalysis   string      `json:"triage_analysis"`
	EngineerAnalysis string      `json:"engineer_analysis"`
	FixedVersion     string      `json:"fixed_version"`
	Created          string      `json:"created"`
	Updated          string      `json:"updated"`

	Fields *jsonTicket `json:"fields"`
}

func (j jsonTicket) toRecord() ticket.Record {
	// Exports with a "fields" object keep the key at the top level and
	// everything else nested.
	if j.Fields != nil {
		rec := j.Fields.toRecord()
		if rec.Key == "" {
			rec.Key = j.Key
		}
		return rec
	}
	rec := ticket.Record{
		Key:              j.Key,
		Summary:          j.Summary,
		Description:      j.Description,
		Status:           string(j.Status),
		Assignee:         string(j.Assignee),
		Reporter:         string(j.Reporter),
		Priority:         string(j.Priority),
		IssueType:        string(j.IssueType),
		Project:          string(j.Project),
		Labels:           j.Labels,
		Comments:         j.Comments,
		TriageAnalysis:   j.TriageAnalysis,
		EngineerAnalysis: j.EngineerAnalysis,
		FixedVersion:     j.FixedVersion,
		Created:          j.Created,
		Updated:          j.Updated,
	}
	for _, c := range j.Components {
		rec.Components = append(rec.Components, string(c))
	}
	return rec
}

// ParseFile reads one export file into ticket records. JSON files may be a
// plain array or an object with an "issues" array; anything else is treated
// as pipe-separated text. Records without a key are dropped here; other
// malformed-record handling is the pipeline's job.
func ParseFile(path string) ([]ticket.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if strings.EqualFold(filepath.Ext(path), ".json") {
		return parseJSON(data)
	}
	return parsePipeText(string(data)), nil
}

func parseJSON(data []byte) ([]ticket.Record, error) {
	var list []jsonTicket
	if err := json.Unmarshal(data, &list); err == nil {
		return collectRecords(list), nil
	}

	var wrapped struct {
		Issues []jsonTicket `json:"issues"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("unrecognized JSON export shape: %w", err)
	}
	return collectRecords(wrapped.Issues), nil
}

func collectRecords(tickets []jsonTicket) []ticket.Record {
	var records []ticket.Record
	for _, t := range tickets {
		rec := t.toRecord()
		if rec.Key == "" {
			continue
		}
		records = append(records, rec)
	}
	return records
}

// parsePipeText parses KEY|SUMMARY|DESCRIPTION|STATUS|ASSIGNEE|CREATED
// lines. Trailing fields are optional; lines without at least a key and a
// summary are skipped.
func parsePipeText(content string) []ticket.Record {
	var records []ticket.Record
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] == "" || parts[1] == "" {
			continue
		}
		rec := ticket.Record{Key: parts[0], Summary: parts[1]}
		if len(parts) > 2 {
			rec.Description = parts[2]
		}
		if len(parts) > 3 {
			rec.Status = parts[3]
		}
		if len(parts) > 4 {
			rec.Assignee = parts[4]
		}
		if len(parts) > 5 {
			rec.Created = parts[5]
		}
		records = append(records, rec)
	}
	return records
}

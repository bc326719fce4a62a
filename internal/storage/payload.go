package storage

import (
	"github.com/qdrant/go-client/qdrant"

	"github.com/combot/ticketsearch/internal/ticket"
)

// Payload field names. Filterable string fields get keyword indexes in
// EnsureCollection; filter builders must use these constants.
const (
	fieldType             = "type"
	FieldTicketKey        = "ticket_key"
	FieldStatus           = "status"
	FieldIsResolved       = "is_resolved"
	FieldIngestionVersion = "ingestion_version"
	FieldProject          = "project"
	FieldPriority         = "priority"
)

// Point type discriminators within the single collection.
const (
	pointTypeChunk    = "chunk"
	pointTypeManifest = "manifest"
)

// encodeChunkPayload converts a chunk to the Qdrant payload map. All reads
// back out of the store go through decodeChunkPayload so the ranking core
// never touches untyped maps.
func encodeChunkPayload(c ticket.Chunk) map[string]any {
	payload := map[string]any{
		fieldType:             pointTypeChunk,
		FieldTicketKey:        c.Metadata.TicketKey,
		"summary":             c.Metadata.Summary,
		FieldStatus:           c.Metadata.Status,
		FieldIsResolved:       c.Metadata.IsResolved,
		FieldPriority:         c.Metadata.Priority,
		"assignee":            c.Metadata.Assignee,
		"reporter":            c.Metadata.Reporter,
		"issue_type":          c.Metadata.IssueType,
		FieldProject:          c.Metadata.Project,
		"components":          toAnySlice(c.Metadata.Components),
		"labels":              toAnySlice(c.Metadata.Labels),
		FieldIngestionVersion: c.Metadata.IngestionVersion,
		"keywords":            toAnySlice(c.Metadata.Keywords),
		"triage_analysis":     c.Metadata.TriageAnalysis,
		"engineer_analysis":   c.Metadata.EngineerAnalysis,
		"fixed_version":       c.Metadata.FixedVersion,
		"char_count":          int64(c.Metadata.CharCount),
		"word_count":          int64(c.Metadata.WordCount),
		"comment_count":       int64(c.Metadata.CommentCount),
		"chunk_index":         int64(c.Index),
		"chunk_kind":          string(c.Kind),
		"text":                c.Text,
	}
	return payload
}

// decodeChunkPayload rebuilds a typed chunk from a point's payload.
func decodeChunkPayload(id string, payload map[string]*qdrant.Value) ticket.Chunk {
	return ticket.Chunk{
		ID:    id,
		Index: int(payload["chunk_index"].GetIntegerValue()),
		Kind:  ticket.ChunkKind(payload["chunk_kind"].GetStringValue()),
		Text:  payload["text"].GetStringValue(),
		Metadata: ticket.Metadata{
			TicketKey:        payload[FieldTicketKey].GetStringValue(),
			Summary:          payload["summary"].GetStringValue(),
			Status:           payload[FieldStatus].GetStringValue(),
			IsResolved:       payload[FieldIsResolved].GetBoolValue(),
			Priority:         payload[FieldPriority].GetStringValue(),
			Assignee:         payload["assignee"].GetStringValue(),
			Reporter:         payload["reporter"].GetStringValue(),
			IssueType:        payload["issue_type"].GetStringValue(),
			Project:          payload[FieldProject].GetStringValue(),
			Components:       stringList(payload["components"]),
			Labels:           stringList(payload["labels"]),
			IngestionVersion: payload[FieldIngestionVersion].GetStringValue(),
			Keywords:         stringList(payload["keywords"]),
			TriageAnalysis:   payload["triage_analysis"].GetStringValue(),
			EngineerAnalysis: payload["engineer_analysis"].GetStringValue(),
			FixedVersion:     payload["fixed_version"].GetStringValue(),
			CharCount:        int(payload["char_count"].GetIntegerValue()),
			WordCount:        int(payload["word_count"].GetIntegerValue()),
			CommentCount:     int(payload["comment_count"].GetIntegerValue()),
		},
	}
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func stringList(v *qdrant.Value) []string {
	list := v.GetListValue()
	if list == nil {
		return nil
	}
	out := make([]string, 0, len(list.Values))
	for _, item := range list.Values {
		out = append(out, item.GetStringValue())
	}
	return out
}

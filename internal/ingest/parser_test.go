package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseFile_JSONList(t *testing.T) {
	path := writeTemp(t, "export.json", `[
		{
			"key": "PAY-101",
			"summary": "Payment webhook times out",
			"description": "Handler exceeds the gateway limit.",
			"status": "Done",
			"priority": "High",
			"components": ["billing"],
			"labels": ["timeout"],
			"comments": ["Raised the deadline."],
			"engineer_analysis": "Blocking call in the handler."
		},
		{"summary": "record without a key is dropped"}
	]`)

	records, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "PAY-101", rec.Key)
	assert.Equal(t, "Payment webhook times out", rec.Summary)
	assert.Equal(t, "Done", rec.Status)
	assert.Equal(t, []string{"billing"}, rec.Components)
	assert.Equal(t, "Blocking call in the handler.", rec.EngineerAnalysis)
}

func TestParseFile_TrackerExportShape(t *testing.T) {
	path := writeTemp(t, "issues.json", `{
		"issues": [
			{
				"key": "OPS-9",
				"fields": {
					"summary": "Disk alerts firing",
					"description": "Nightly compaction fills the disk.",
					"status": {"name": "In Progress"},
					"priority": {"name": "Medium"},
					"assignee": {"name": "r.chen"},
					"components": [{"name": "storage"}],
					"labels": ["capacity"]
				}
			}
		]
	}`)

	records, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "OPS-9", rec.Key)
	assert.Equal(t, "Disk alerts firing", rec.Summary)
	assert.Equal(t, "In Progress", rec.Status)
	assert.Equal(t, "r.chen", rec.Assignee)
	assert.Equal(t, []string{"storage"}, rec.Components)
}

func TestParseFile_PipeText(t *testing.T) {
	path := writeTemp(t, "export.txt", `# key|summary|description|status|assignee|created
NET-55|Connection resets|Clients observe resets during failover|Open|t.okafor|2025-08-01

malformed line without pipes
|missing key|desc|Open
SHOP-204|Checkout fails on large carts|Carts over 50 items fail|Done`)

	records, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "NET-55", records[0].Key)
	assert.Equal(t, "Connection resets", records[0].Summary)
	assert.Equal(t, "Open", records[0].Status)
	assert.Equal(t, "t.okafor", records[0].Assignee)
	assert.Equal(t, "2025-08-01", records[0].Created)

	assert.Equal(t, "SHOP-204", records[1].Key)
	assert.Equal(t, "Done", records[1].Status)
}

func TestParseFile_MalformedJSON(t *testing.T) {
	path := writeTemp(t, "broken.json", `{"issues": "not an array"`)
	_, err := ParseFile(path)
	assert.Error(t, err)
}

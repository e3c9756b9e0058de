package backendsim

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCaptures(t *testing.T) {
	fs := afero.NewMemMapFs()
	content := `{"timestamp":"2025-01-02T10:00:00Z","message_num":1,"conn_id":"c1","direction":"device->server","message_type":1,"payload_length":20,"payload_ascii":"{\"type\":\"identify\"}"}
{"timestamp":"2025-01-02T10:00:05Z","message_num":2,"conn_id":"c1","device_id":"relay-7","direction":"device->server","message_type":1,"payload_length":16,"payload_ascii":"{\"type\":\"pong\"}"}
{"timestamp":"2025-01-02T10:00:10Z","message_num":3,"conn_id":"c1","device_id":"relay-7","direction":"device->server","message_type":1,"payload_length":16,"payload_ascii":"{\"type\":\"pong\"}"}
{"timestamp":"2025-01-02T10:00:11Z","message_num":4,"conn_id":"c1","device_id":"relay-7","direction":"device->server","message_type":2,"payload_length":2,"payload_hex":"0102","payload_ascii":".."}
{"timestamp":"2025-01-02T10:00:12Z","message_num":5,"conn_id":"c1","device_id":"relay-7","direction":"device->server","message_type":1,"payload_length":5,"payload_ascii":"hello"}
not json

`
	require.NoError(t, afero.WriteFile(fs, "/captures/capture-20250102.jsonl", []byte(content), 0644))

	records, summary, err := ReadCaptures(fs, "/captures/capture-20250102.jsonl")
	require.NoError(t, err)

	assert.Len(t, records, 5)
	assert.Equal(t, 5, summary.Messages)
	assert.Equal(t, 1, summary.Binary)
	assert.Equal(t, 1, summary.Malformed)
	assert.Equal(t, 1, summary.Unparsed)
	assert.Equal(t, map[string]int{"identify": 1, "pong": 2}, summary.ByType)
	assert.Equal(t, map[string]int{"": 1, "relay-7": 4}, summary.ByDevice)
	assert.Equal(t, []string{"pong", "identify"}, summary.Types())
	assert.Equal(t, time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC), summary.First.UTC())
	assert.Equal(t, time.Date(2025, 1, 2, 10, 0, 12, 0, time.UTC), summary.Last.UTC())
}

func TestReadCapturesMissingFile(t *testing.T) {
	_, _, err := ReadCaptures(afero.NewMemMapFs(), "/nope.jsonl")
	assert.Error(t, err)
}

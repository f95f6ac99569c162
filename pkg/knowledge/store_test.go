package knowledge

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/intelcore/internal/rediswrap"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := rediswrap.New(rediswrap.Options{RedisURL: "redis://" + mr.Addr(), DB: 0, Namespace: ""})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return New(client, nil), mr
}

func TestStore_ExportWritesHashFields(t *testing.T) {
	store, mr := newTestStore(t)
	record := Record{
		ID: "rec-1", QueryID: "q1", MergedText: "merged text",
		EmbeddingVector: make([]float32, EmbeddingDim),
		SourceNames:     []string{"exa", "tavily"},
		DepthUsed:       "STANDARD", TotalCostUSD: 0.25,
		Tags: []string{"a", "b"}, Metadata: map[string]interface{}{"k": "v"},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	require.NoError(t, store.Export(context.Background(), record))

	assert.True(t, mr.Exists("council:rec-1"))
	val, err := mr.HGet("council:rec-1", "merged_text")
	require.NoError(t, err)
	assert.Equal(t, "merged text", val)

	sourceNames, err := mr.HGet("council:rec-1", "source_names")
	require.NoError(t, err)
	assert.Equal(t, "exa,tavily", sourceNames)
}

func TestStore_HealthCheck(t *testing.T) {
	store, _ := newTestStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
}

func TestVectorToBytes_RoundTripsViaLittleEndianFloat32(t *testing.T) {
	vec := []float32{1.5, -2.25, 0}
	buf := vectorToBytes(vec)
	assert.Len(t, buf, 12)
	for i, want := range vec {
		got := math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
		assert.Equal(t, want, got)
	}
}

func TestFieldsToRecord_ParsesFlatFieldList(t *testing.T) {
	fields := []interface{}{
		"query_id", "q9",
		"merged_text", "hello world",
		"source_names", "exa,tavily",
		"tags", "",
		"depth_used", "DEEP",
		"total_cost_usd", "0.125",
		"metadata", `{"source":"test"}`,
		"created_at", "2026-01-02T03:04:05Z",
	}

	record := fieldsToRecord(fields)

	assert.Equal(t, "q9", record.QueryID)
	assert.Equal(t, "hello world", record.MergedText)
	assert.Equal(t, []string{"exa", "tavily"}, record.SourceNames)
	assert.Nil(t, record.Tags)
	assert.Equal(t, 0.125, record.TotalCostUSD)
	assert.Equal(t, "test", record.Metadata["source"])
	assert.Equal(t, 2026, record.CreatedAt.Year())
}

func TestParseSearchReply_WalksFlatRESPArray(t *testing.T) {
	reply := []interface{}{
		int64(1),
		"council:rec-1",
		[]interface{}{"query_id", "q1", "merged_text", "hi"},
	}

	records, err := parseSearchReply(reply)

	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "q1", records[0].QueryID)
}

func TestParseSearchReply_EmptyReplyReturnsNoRecords(t *testing.T) {
	records, err := parseSearchReply([]interface{}{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSplitNonEmpty(t *testing.T) {
	assert.Nil(t, splitNonEmpty(""))
	assert.Equal(t, []string{"a", "b"}, splitNonEmpty("a,b"))
}

func TestComposeKeywordQuery_NoTagsReturnsBareQuery(t *testing.T) {
	assert.Equal(t, "quantum computing", composeKeywordQuery("quantum computing", nil))
}

func TestComposeKeywordQuery_AndsEachTagClause(t *testing.T) {
	got := composeKeywordQuery("quantum computing", []string{"physics", "2026"})
	assert.Equal(t, "quantum computing @tags:{physics} @tags:{2026}", got)
}

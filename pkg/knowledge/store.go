package knowledge

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/itsneelabh/intelcore/internal/corelog"
	"github.com/itsneelabh/intelcore/internal/rediswrap"
)

const (
	indexName  = "idx:council"
	keyPrefix  = "council:"
	hnswM      = 16
	hnswEFCons = 200
)

// Store is C11: a Redis-backed knowledge store with a combined full-text
// (on merged_text) and HNSW vector (on embedding_vector) index, grounded on
// original_source/council/manager.py's CouncilManager.
type Store struct {
	client *rediswrap.Client
	logger corelog.Logger
}

// New wires a Store onto a namespaced Redis client dedicated to the
// knowledge domain (distinct DB/namespace from the result cache).
func New(client *rediswrap.Client, logger corelog.Logger) *Store {
	if logger == nil {
		logger = corelog.NoOpLogger{}
	}
	return &Store{client: client, logger: logger}
}

// EnsureIndex creates the combined FTS + HNSW index if it does not already
// exist. Treats "Index already exists" as success, matching the original
// manager's idempotent index creation.
func (s *Store) EnsureIndex(ctx context.Context) error {
	args := []interface{}{
		"FT.CREATE", indexName,
		"ON", "HASH",
		"PREFIX", "1", keyPrefix,
		"SCHEMA",
		"merged_text", "TEXT", "WEIGHT", "1.0",
		"source_names", "TAG",
		"tags", "TAG",
		"depth_used", "TAG",
		"embedding_vector", "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(EmbeddingDim),
		"DISTANCE_METRIC", "COSINE",
		"M", strconv.Itoa(hnswM),
		"EF_CONSTRUCTION", strconv.Itoa(hnswEFCons),
	}

	err := s.client.Raw.Do(ctx, args...).Err()
	if err != nil {
		if strings.Contains(err.Error(), "Index already exists") {
			s.logger.Debug("knowledge index already exists", nil)
			return nil
		}
		return fmt.Errorf("create knowledge index: %w", err)
	}
	s.logger.Info("created knowledge index", map[string]interface{}{"name": indexName})
	return nil
}

// Export persists a Record as a Redis hash under "council:<id>", prefixed
// by the client's namespace when one is set.
func (s *Store) Export(ctx context.Context, record Record) error {
	metadataJSON, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	key := s.client.Key(keyPrefix + record.ID)
	fields := map[string]interface{}{
		"query_id":         record.QueryID,
		"correlation_id":   record.CorrelationID,
		"merged_text":      record.MergedText,
		"embedding_vector": vectorToBytes(record.EmbeddingVector),
		"source_names":     strings.Join(record.SourceNames, ","),
		"depth_used":       record.DepthUsed,
		"total_cost_usd":   strconv.FormatFloat(record.TotalCostUSD, 'f', -1, 64),
		"tags":             strings.Join(record.Tags, ","),
		"metadata":         string(metadataJSON),
		"created_at":       record.CreatedAt.Format(time.RFC3339),
	}

	return s.client.Raw.HSet(ctx, key, fields).Err()
}

// SearchKeyword runs a full-text query against merged_text, optionally
// AND-filtered to records carrying every tag in tags, returning up to limit
// matching records.
func (s *Store) SearchKeyword(ctx context.Context, queryText string, limit int, tags []string) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	args := []interface{}{
		"FT.SEARCH", indexName, composeKeywordQuery(queryText, tags),
		"LIMIT", "0", strconv.Itoa(limit),
	}
	reply, err := s.client.Raw.Do(ctx, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return parseSearchReply(reply)
}

// SearchSemantic embeds queryText and runs a KNN vector search against
// embedding_vector, returning up to limit nearest records.
func (s *Store) SearchSemantic(ctx context.Context, embedder *Embedder, queryText string, limit int, correlationID string) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	vector, err := embedder.Embed(ctx, queryText, correlationID)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	queryStr := fmt.Sprintf("*=>[KNN %d @embedding_vector $vec AS score]", limit)
	args := []interface{}{
		"FT.SEARCH", indexName, queryStr,
		"PARAMS", "2", "vec", vectorToBytes(vector),
		"SORTBY", "score",
		"LIMIT", "0", strconv.Itoa(limit),
		"DIALECT", "2",
	}
	reply, err := s.client.Raw.Do(ctx, args...).Result()
	if err != nil {
		return nil, fmt.Errorf("semantic search: %w", err)
	}
	return parseSearchReply(reply)
}

// composeKeywordQuery appends one @tags:{tag} clause per tag to queryText,
// giving AND semantics across tags (spec §4.9).
func composeKeywordQuery(queryText string, tags []string) string {
	if len(tags) == 0 {
		return queryText
	}
	parts := []string{queryText}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("@tags:{%s}", tag))
	}
	return strings.Join(parts, " ")
}

// vectorToBytes serializes a float32 vector to the little-endian binary
// blob RediSearch's HNSW field expects.
func vectorToBytes(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// parseSearchReply walks an FT.SEARCH reply (a flat RESP array of
// [total, key1, fields1, key2, fields2, ...]) into Records.
func parseSearchReply(reply interface{}) ([]Record, error) {
	items, ok := reply.([]interface{})
	if !ok || len(items) == 0 {
		return nil, nil
	}

	var records []Record
	for i := 1; i+1 < len(items); i += 2 {
		fieldsRaw, ok := items[i+1].([]interface{})
		if !ok {
			continue
		}
		records = append(records, fieldsToRecord(fieldsRaw))
	}
	return records, nil
}

func fieldsToRecord(fields []interface{}) Record {
	m := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, _ := fields[i].(string)
		val, _ := fields[i+1].(string)
		m[key] = val
	}

	var metadata map[string]interface{}
	_ = json.Unmarshal([]byte(m["metadata"]), &metadata)

	totalCost, _ := strconv.ParseFloat(m["total_cost_usd"], 64)
	createdAt, _ := time.Parse(time.RFC3339, m["created_at"])

	return Record{
		QueryID:       m["query_id"],
		CorrelationID: m["correlation_id"],
		MergedText:    m["merged_text"],
		SourceNames:   splitNonEmpty(m["source_names"]),
		DepthUsed:     m["depth_used"],
		TotalCostUSD:  totalCost,
		Tags:          splitNonEmpty(m["tags"]),
		Metadata:      metadata,
		CreatedAt:     createdAt,
	}
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// HealthCheck verifies connectivity to the backing Redis instance.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.HealthCheck(ctx)
}

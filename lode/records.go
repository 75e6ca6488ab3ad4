package lode

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pithecene-io/sluice/search"
	"github.com/pithecene-io/sluice/types"
)

// RecordKind discriminator values. record_kind is also the last
// partition key, so each kind lands in its own partition.
const (
	RecordKindMatch   = "match"
	RecordKindSummary = "summary"
)

// partitionFields returns the Hive partition fields every record carries.
func partitionFields(cfg Config, meta *types.OperationMeta, kind string) map[string]any {
	return map[string]any{
		"record_kind":  kind,
		"source":       cfg.Source,
		"day":          DeriveDay(meta.StartedAt),
		"operation_id": meta.ID,
	}
}

// toMatchRecordMap converts one extracted match to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toMatchRecordMap(cfg Config, meta *types.OperationMeta, m search.ExtractedMatchValue) map[string]any {
	values := make([]any, 0, len(m.Values))
	for _, fm := range m.Values {
		vs := make([]any, len(fm.Values))
		for i, v := range fm.Values {
			vs[i] = v
		}
		values = append(values, map[string]any{"filter": fm.Filter, "values": vs})
	}

	rec := partitionFields(cfg, meta, RecordKindMatch)
	rec["contract_version"] = types.ContractVersion
	rec["kind"] = string(meta.Kind)
	rec["index"] = m.Index
	rec["values"] = values
	if meta.Session != "" {
		rec["session"] = meta.Session
	}
	return rec
}

// toSummaryRecordMap converts an operation summary to a map for Lode storage.
func toSummaryRecordMap(cfg Config, s Summary) map[string]any {
	rec := partitionFields(cfg, s.Meta, RecordKindSummary)
	rec["contract_version"] = types.ContractVersion
	rec["kind"] = string(s.Meta.Kind)
	rec["status"] = string(s.Outcome.Status)
	rec["message"] = s.Outcome.Message
	rec["count"] = s.Count
	rec["started_at"] = s.Meta.StartedAt.UTC().Format(time.RFC3339Nano)
	rec["completed_at"] = s.CompletedAt.UTC().Format(time.RFC3339Nano)
	rec["parser"] = s.Metrics.Parser
	rec["source_kind"] = s.Metrics.SourceKind
	rec["reloads"] = s.Metrics.Reloads
	rec["bytes_loaded"] = s.Metrics.BytesLoaded
	rec["bytes_skipped"] = s.Metrics.BytesSkipped
	rec["items_produced"] = s.Metrics.ItemsProduced
	rec["items_skipped"] = s.Metrics.ItemsSkipped
	rec["items_incomplete"] = s.Metrics.ItemsIncomplete
	rec["messages_written"] = s.Metrics.MessagesWritten
	rec["messages_read"] = s.Metrics.MessagesRead
	rec["matches"] = s.Metrics.Matches
	if s.Meta.Session != "" {
		rec["session"] = s.Meta.Session
	}
	if s.Destination != "" {
		rec["destination"] = s.Destination
		rec["digest"] = fmt.Sprintf("%016x", s.Digest)
	}
	if s.ArtifactPath != "" {
		rec["artifact_path"] = s.ArtifactPath
	}
	return rec
}

// fromMatchRecordMap decodes a match record read back from the JSONL codec,
// where numbers arrive as float64 and slices as []any.
func fromMatchRecordMap(rec map[string]any) (search.ExtractedMatchValue, bool) {
	if rec["record_kind"] != RecordKindMatch {
		return search.ExtractedMatchValue{}, false
	}
	out := search.ExtractedMatchValue{Index: toInt(rec["index"])}
	values, _ := rec["values"].([]any)
	for _, v := range values {
		fm, ok := v.(map[string]any)
		if !ok {
			continue
		}
		m := search.FilterMatches{Filter: toInt(fm["filter"])}
		raw, _ := fm["values"].([]any)
		for _, s := range raw {
			m.Values = append(m.Values, toString(s))
		}
		out.Values = append(out.Values, m)
	}
	return out, true
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case int64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	default:
		return 0
	}
}

package reader

import (
	"encoding/json"
	"errors"
)

// ParseSummaryRecord converts a Lode summary record (map[string]any) to an
// OperationSummary. Handles both int64 (direct writes) and float64 (JSON
// round-trips) for numeric fields.
func ParseSummaryRecord(record map[string]any) (*OperationSummary, error) {
	if record == nil {
		return nil, errors.New("nil record")
	}

	s := &OperationSummary{
		OperationID:  toString(record["operation_id"]),
		Kind:         toString(record["kind"]),
		Status:       toString(record["status"]),
		Message:      toString(record["message"]),
		Count:        toInt64(record["count"]),
		Session:      toString(record["session"]),
		Source:       toString(record["source"]),
		Day:          toString(record["day"]),
		StartedAt:    toString(record["started_at"]),
		CompletedAt:  toString(record["completed_at"]),
		Parser:       toString(record["parser"]),
		SourceKind:   toString(record["source_kind"]),
		Destination:  toString(record["destination"]),
		Digest:       toString(record["digest"]),
		ArtifactPath: toString(record["artifact_path"]),
		Counters: Counters{
			Reloads:         toInt64(record["reloads"]),
			BytesLoaded:     toInt64(record["bytes_loaded"]),
			BytesSkipped:    toInt64(record["bytes_skipped"]),
			ItemsProduced:   toInt64(record["items_produced"]),
			ItemsSkipped:    toInt64(record["items_skipped"]),
			ItemsIncomplete: toInt64(record["items_incomplete"]),
			MessagesWritten: toInt64(record["messages_written"]),
			MessagesRead:    toInt64(record["messages_read"]),
			Matches:         toInt64(record["matches"]),
		},
	}

	// The write path always populates these; missing values indicate
	// a malformed record.
	if s.OperationID == "" {
		return nil, errors.New("summary record missing required field: operation_id")
	}
	if s.Status == "" {
		return nil, errors.New("summary record missing required field: status")
	}

	return s, nil
}

// toInt64 converts numeric types to int64.
// Handles int, int64, float64 (from JSON decode) and json.Number.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

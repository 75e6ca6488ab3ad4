package reader

// OperationSummary is the inspect view of one stored summary record.
type OperationSummary struct {
	OperationID  string `json:"operation_id"`
	Kind         string `json:"kind"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	Count        int64  `json:"count"`
	Session      string `json:"session,omitempty"`
	Source       string `json:"source"`
	Day          string `json:"day"`
	StartedAt    string `json:"started_at"`
	CompletedAt  string `json:"completed_at"`
	Parser       string `json:"parser,omitempty"`
	SourceKind   string `json:"source_kind,omitempty"`
	Destination  string `json:"destination,omitempty"`
	Digest       string `json:"digest,omitempty"`
	ArtifactPath string `json:"artifact_path,omitempty"`

	Counters Counters `json:"counters"`
}

// Counters are the metric totals recorded with a summary.
type Counters struct {
	Reloads         int64 `json:"reloads"`
	BytesLoaded     int64 `json:"bytes_loaded"`
	BytesSkipped    int64 `json:"bytes_skipped"`
	ItemsProduced   int64 `json:"items_produced"`
	ItemsSkipped    int64 `json:"items_skipped"`
	ItemsIncomplete int64 `json:"items_incomplete"`
	MessagesWritten int64 `json:"messages_written"`
	MessagesRead    int64 `json:"messages_read"`
	Matches         int64 `json:"matches"`
}

// Package lode publishes operation output to a Lode store.
//
// Export destinations are uploaded as opaque files under the Hive-partitioned
// files/ prefix. Match records and operation summaries are written as JSONL
// dataset records partitioned by source, day, operation_id and record_kind.
package lode

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/pithecene-io/sluice/metrics"
	"github.com/pithecene-io/sluice/search"
	"github.com/pithecene-io/sluice/types"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "sluice"

// partitionKeys is the Hive layout shared by the write and read paths.
var partitionKeys = []string{"source", "day", "operation_id", "record_kind"}

// DeriveDay derives the day partition key from an operation start time.
// Returns YYYY-MM-DD format in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds Lode publishing configuration.
type Config struct {
	// Dataset is the Lode dataset ID. Empty means DefaultDataset.
	Dataset string
	// Source is the partition key naming where the logs came from
	// (a host, a device, a capture name).
	Source string
}

func (c Config) withDefaults() Config {
	if c.Dataset == "" {
		c.Dataset = DefaultDataset
	}
	if c.Source == "" {
		c.Source = "local"
	}
	return c
}

// Summary is the terminal record of one operation.
type Summary struct {
	Meta    *types.OperationMeta
	Outcome types.Outcome
	Metrics metrics.Snapshot
	// Count is the engine result count (messages written or drained,
	// or matches found).
	Count int
	// Destination is the local export file, empty for extractions.
	Destination string
	// ArtifactPath is the store path of the uploaded destination, if any.
	ArtifactPath string
	// Digest is the xxhash64 of the bytes written by an export.
	Digest      uint64
	CompletedAt time.Time
}

// Publisher abstracts where operation output is published.
// Real implementations write to Lode; stubs are used for testing.
type Publisher interface {
	// PutArtifact uploads r as a file named name in the operation's
	// partition and returns the store path.
	// The name must not contain path separators or "..".
	PutArtifact(ctx context.Context, meta *types.OperationMeta, name string, r io.Reader) (string, error)
	// WriteMatches writes one record per matched message.
	WriteMatches(ctx context.Context, meta *types.OperationMeta, matches []search.ExtractedMatchValue) error
	// WriteSummary writes the operation summary record.
	WriteSummary(ctx context.Context, s Summary) error
	// Close releases resources.
	Close() error
}

// StubPublisher records calls for testing.
type StubPublisher struct {
	mu        sync.Mutex
	Artifacts map[string][]byte
	Matches   []search.ExtractedMatchValue
	Summaries []Summary
	Closed    bool

	// Err, when set, is returned by every call.
	Err error
}

// NewStubPublisher creates a new stub publisher.
func NewStubPublisher() *StubPublisher {
	return &StubPublisher{Artifacts: make(map[string][]byte)}
}

// PutArtifact implements Publisher by recording the file content.
func (p *StubPublisher) PutArtifact(_ context.Context, _ *types.OperationMeta, name string, r io.Reader) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return "", p.Err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	p.Artifacts[name] = data
	return "files/" + name, nil
}

// WriteMatches implements Publisher.
func (p *StubPublisher) WriteMatches(_ context.Context, _ *types.OperationMeta, matches []search.ExtractedMatchValue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Matches = append(p.Matches, matches...)
	return nil
}

// WriteSummary implements Publisher.
func (p *StubPublisher) WriteSummary(_ context.Context, s Summary) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Summaries = append(p.Summaries, s)
	return nil
}

// Close implements Publisher.
func (p *StubPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Verify StubPublisher implements Publisher.
var _ Publisher = (*StubPublisher)(nil)

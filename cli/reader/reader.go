package reader

import (
	"context"
	"errors"
	"fmt"

	lodelib "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/sluice/lode"
	"github.com/pithecene-io/sluice/search"
)

// LodeReader reads operations published to a Lode dataset.
type LodeReader struct {
	ds     lodelib.Dataset
	source string
}

// NewLodeReader creates a reader over ds. A non-empty source restricts
// summaries to that source partition.
func NewLodeReader(ds lodelib.Dataset, source string) *LodeReader {
	return &LodeReader{ds: ds, source: source}
}

// InspectOperation implements Reader.
func (r *LodeReader) InspectOperation(ctx context.Context, operationID string) (*OperationSummary, error) {
	record, err := lode.QueryLatestSummary(ctx, r.ds, operationID, r.source)
	if errors.Is(err, lode.ErrNoSummaryFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, operationID)
	}
	if err != nil {
		return nil, err
	}
	return ParseSummaryRecord(record)
}

// ListMatches implements Reader.
func (r *LodeReader) ListMatches(ctx context.Context, operationID string) ([]search.ExtractedMatchValue, error) {
	return lode.ReadMatches(ctx, r.ds, operationID)
}

var _ Reader = (*LodeReader)(nil)

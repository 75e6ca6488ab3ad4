package reader

import (
	"context"
	"fmt"

	"github.com/pithecene-io/sluice/search"
)

// StubReader serves fixed data. Used by command tests.
type StubReader struct {
	Summaries map[string]*OperationSummary
	Matches   map[string][]search.ExtractedMatchValue
}

// NewStubReader creates an empty stub reader.
func NewStubReader() *StubReader {
	return &StubReader{
		Summaries: make(map[string]*OperationSummary),
		Matches:   make(map[string][]search.ExtractedMatchValue),
	}
}

// InspectOperation implements Reader.
func (s *StubReader) InspectOperation(_ context.Context, operationID string) (*OperationSummary, error) {
	summary, ok := s.Summaries[operationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, operationID)
	}
	return summary, nil
}

// ListMatches implements Reader.
func (s *StubReader) ListMatches(_ context.Context, operationID string) ([]search.ExtractedMatchValue, error) {
	return s.Matches[operationID], nil
}

var _ Reader = (*StubReader)(nil)

// Package reader reads stored operation results back for the inspect command.
package reader

import (
	"context"
	"errors"

	"github.com/pithecene-io/sluice/search"
)

// ErrNotFound is returned when no summary exists for an operation.
var ErrNotFound = errors.New("operation not found")

// Reader abstracts read-only access to published operations.
// Implementations may read a Lode dataset or serve fixed data in tests.
type Reader interface {
	// InspectOperation returns the latest summary of an operation.
	InspectOperation(ctx context.Context, operationID string) (*OperationSummary, error)
	// ListMatches returns the stored matches of an extract operation in
	// stream order.
	ListMatches(ctx context.Context, operationID string) ([]search.ExtractedMatchValue, error)
}

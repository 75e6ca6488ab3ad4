// Package adapter defines the notification boundary for finished operations.
//
// Adapters publish operation completion events to downstream systems
// (a Redis channel, an HTTP endpoint). The operation runner owns adapter
// lifecycle; users provide configuration only.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// EventTypeOperationCompleted is the only event type published.
const EventTypeOperationCompleted = "operation_completed"

// OperationCompletedEvent is the payload published when an export or
// extract operation finishes, whatever its outcome.
type OperationCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "operation_completed"
	OperationID     string `json:"operation_id"`
	Kind            string `json:"kind"` // export, extract
	Session         string `json:"session,omitempty"`
	Source          string `json:"source"`
	Outcome         string `json:"outcome"` // success, canceled, io_error, ...
	Message         string `json:"message,omitempty"`
	Destination     string `json:"destination,omitempty"`
	StoragePath     string `json:"storage_path,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	Count           int    `json:"count"`
	BytesWritten    int64  `json:"bytes_written,omitempty"`
	Digest          string `json:"digest,omitempty"`
	DurationMs      int64  `json:"duration_ms"`
}

// Adapter publishes operation completion events to a downstream system.
type Adapter interface {
	// Publish sends an event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *OperationCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Multi fans an event out to several adapters.
// Every adapter is attempted; failures are joined.
type Multi []Adapter

// Publish sends event to every adapter.
func (m Multi) Publish(ctx context.Context, event *OperationCompletedEvent) error {
	var errs []error
	for _, a := range m {
		if err := a.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every adapter.
func (m Multi) Close() error {
	var errs []error
	for _, a := range m {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Verify Multi implements Adapter.
var _ Adapter = Multi(nil)

// BackoffBase is the delay before the first retry. It doubles per attempt.
var BackoffBase = 500 * time.Millisecond

// PermanentError marks a failure that must not be retried.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Retry runs attempt up to 1+retries times with exponential backoff
// between attempts. A *PermanentError stops immediately. name prefixes
// the returned errors.
func Retry(ctx context.Context, name string, retries int, attempt func(context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BackoffBase
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-timer.C:
			}
		}

		lastErr = attempt(ctx)
		if lastErr == nil {
			return nil
		}

		var permanent *PermanentError
		if errors.As(lastErr, &permanent) {
			return fmt.Errorf("%s: non-retriable error: %w", name, permanent.Err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}

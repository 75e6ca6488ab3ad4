package types

import "time"

// OperationKind identifies what an operation does with a stream.
type OperationKind string

const (
	// OperationExport writes selected messages to a destination file.
	OperationExport OperationKind = "export"
	// OperationExtract collects filter matches in memory.
	OperationExtract OperationKind = "extract"
)

// OperationMeta identifies a single export or extract invocation.
type OperationMeta struct {
	// ID is a unique identifier (uuid) for the invocation.
	ID string `json:"operation_id" msgpack:"operation_id"`
	// Kind is the operation kind.
	Kind OperationKind `json:"kind" msgpack:"kind"`
	// Session optionally groups operations running over the same sources.
	Session string `json:"session,omitempty" msgpack:"session,omitempty"`
	// StartedAt is when the operation was accepted.
	StartedAt time.Time `json:"started_at" msgpack:"started_at"`
}

// OutcomeStatus is the terminal status of an operation.
// Exactly one outcome is reported per invocation.
type OutcomeStatus string

const (
	// OutcomeSuccess indicates the stream was consumed to completion.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeCanceled indicates a cooperative stop.
	OutcomeCanceled OutcomeStatus = "canceled"
	// OutcomeConfigError indicates invalid input detected before streaming.
	OutcomeConfigError OutcomeStatus = "config_error"
	// OutcomeIOError indicates a destination or transport failure.
	OutcomeIOError OutcomeStatus = "io_error"
	// OutcomeParseError indicates the parser failed on the stream.
	OutcomeParseError OutcomeStatus = "parse_error"
)

// IsSuccess returns true for OutcomeSuccess.
func (s OutcomeStatus) IsSuccess() bool {
	return s == OutcomeSuccess
}

// Outcome describes how an operation ended.
type Outcome struct {
	// Status is the outcome status.
	Status OutcomeStatus `json:"status" msgpack:"status"`
	// Message is a human-readable description.
	Message string `json:"message" msgpack:"message"`
}

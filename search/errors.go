package search

import (
	"errors"
	"fmt"
)

// ErrorKind classifies extraction failures.
type ErrorKind int

const (
	// ErrorConfig indicates missing or invalid filters.
	ErrorConfig ErrorKind = iota
	// ErrorIO indicates the target could not be read.
	ErrorIO
	// ErrorCanceled indicates a cooperative stop.
	ErrorCanceled
	// ErrorParse indicates a fatal parser failure surfaced by the stream.
	ErrorParse
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorConfig:
		return "config"
	case ErrorIO:
		return "io"
	case ErrorCanceled:
		return "canceled"
	case ErrorParse:
		return "parse"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the terminal failure of an extraction.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("search %s error: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("search %s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func isKind(err error, kind ErrorKind) bool {
	var searchErr *Error
	if errors.As(err, &searchErr) {
		return searchErr.Kind == kind
	}
	return false
}

// IsConfig returns true if err is a search configuration error.
func IsConfig(err error) bool { return isKind(err, ErrorConfig) }

// IsIO returns true if err is a search I/O error.
func IsIO(err error) bool { return isKind(err, ErrorIO) }

// IsCanceled returns true if err is a search cancellation.
func IsCanceled(err error) bool { return isKind(err, ErrorCanceled) }

// IsParse returns true if err is a parse failure surfaced during search.
func IsParse(err error) bool { return isKind(err, ErrorParse) }

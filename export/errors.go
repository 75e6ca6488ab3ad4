package export

import (
	"errors"
	"fmt"
)

// ErrorKind classifies export failures.
type ErrorKind int

const (
	// ErrorConfig indicates invalid input, detected before the stream is touched.
	ErrorConfig ErrorKind = iota
	// ErrorIO indicates a destination or transport failure.
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

// Error is the single terminal failure of an export call.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("export %s error: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("export %s error: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func isKind(err error, kind ErrorKind) bool {
	var exportErr *Error
	if errors.As(err, &exportErr) {
		return exportErr.Kind == kind
	}
	return false
}

// IsConfig returns true if err is an export configuration error.
func IsConfig(err error) bool { return isKind(err, ErrorConfig) }

// IsIO returns true if err is an export I/O error.
func IsIO(err error) bool { return isKind(err, ErrorIO) }

// IsCanceled returns true if err is an export cancellation.
func IsCanceled(err error) bool { return isKind(err, ErrorCanceled) }

// IsParse returns true if err is a parse failure surfaced during export.
func IsParse(err error) bool { return isKind(err, ErrorParse) }

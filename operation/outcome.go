package operation

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/sluice/export"
	"github.com/pithecene-io/sluice/producer"
	"github.com/pithecene-io/sluice/search"
	"github.com/pithecene-io/sluice/types"
)

// Exit codes of the sluice binary.
const (
	ExitCodeSuccess     = 0
	ExitCodeError       = 1
	ExitCodeConfigError = 2
	ExitCodeCanceled    = 3
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// DetermineOutcome classifies the error an operation ended with.
// A nil error is success.
func DetermineOutcome(err error) types.Outcome {
	switch {
	case err == nil:
		return types.Outcome{Status: types.OutcomeSuccess, Message: "operation completed"}
	case errors.Is(err, ErrInvalidRequest), export.IsConfig(err), search.IsConfig(err):
		return types.Outcome{Status: types.OutcomeConfigError, Message: err.Error()}
	case export.IsCanceled(err), search.IsCanceled(err), producer.IsCanceled(err),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return types.Outcome{Status: types.OutcomeCanceled, Message: err.Error()}
	case export.IsParse(err), search.IsParse(err), producer.IsParse(err):
		return types.Outcome{Status: types.OutcomeParseError, Message: err.Error()}
	default:
		return types.Outcome{Status: types.OutcomeIOError, Message: err.Error()}
	}
}

// ExitCode maps an outcome status to the process exit code.
func ExitCode(status types.OutcomeStatus) int {
	switch status {
	case types.OutcomeSuccess:
		return ExitCodeSuccess
	case types.OutcomeConfigError:
		return ExitCodeConfigError
	case types.OutcomeCanceled:
		return ExitCodeCanceled
	default:
		return ExitCodeError
	}
}

package exitcode

import (
	"os"

	"github.com/castline/castline/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	// Success indicates successful execution, including disabled no-ops
	Success = 0

	// GeneralError indicates a general error condition, including a failed
	// worker job
	GeneralError = 1

	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2

	// Interrupted indicates the run was cancelled by a signal
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError exits with an appropriate code based on error type
func ExitWithError(err error) {
	Exit(DetermineExitCode(err))
}

// DetermineExitCode analyzes an error and returns the appropriate exit code
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodePlanNotFound, errors.ErrCodeRunIDInvalid:
		return UsageError
	default:
		return GeneralError
	}
}

package shared

import "errors"

// Sentinels are wrapped with %w so callers can classify failures with [errors.Is].
var (
	// Configuration and credentials
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrMissingCredentials = errors.New("missing credentials")

	// Source and target platforms, run history
	ErrAPIRequest         = errors.New("API request failed")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrNotFound           = errors.New("resource not found")

	// Command line and request validation
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingArgument = errors.New("missing required argument")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidFlag     = errors.New("invalid flag value")
)

// Process exit codes returned by [ExitCode].
const (
	ExitFailure     = 1
	ExitUsage       = 2
	ExitConfig      = 3
	ExitUnavailable = 4
	ExitNotFound    = 5
)

// ExitCode maps err to the exit status of the command line. nil maps to 0.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrInvalidFlag), errors.Is(err, ErrMissingArgument), errors.Is(err, ErrInvalidArgument):
		return ExitUsage
	case errors.Is(err, ErrInvalidConfig), errors.Is(err, ErrMissingCredentials):
		return ExitConfig
	case errors.Is(err, ErrServiceUnavailable), errors.Is(err, ErrAPIRequest):
		return ExitUnavailable
	case errors.Is(err, ErrNotFound):
		return ExitNotFound
	default:
		return ExitFailure
	}
}

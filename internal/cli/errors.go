package cli

import (
	"errors"
	"fmt"

	mvrperrors "github.com/sufield/mvrp/internal/core/errors"
)

// Sentinel errors for exit code classification
var (
	// ErrUsage indicates invalid command usage, flags, or arguments
	ErrUsage = errors.New("usage error")

	// ErrConfig indicates invalid configuration or unloadable identity files
	ErrConfig = errors.New("configuration error")

	// ErrRuntime indicates failures while serving or sending
	ErrRuntime = errors.New("runtime error")

	// ErrInternal indicates internal system errors
	ErrInternal = errors.New("internal error")
)

// Process exit codes.
const (
	ExitSuccess  = 0
	ExitRuntime  = 1
	ExitUsage    = 2
	ExitConfig   = 3
	ExitInternal = 4
)

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, ErrInternal):
		return ExitInternal
	default:
		return ExitRuntime
	}
}

// classify tags a domain error with the CLI sentinel for its kind. Load and
// configuration failures abort startup; everything else is a runtime error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mvrperrors.ErrLoad) || errors.Is(err, mvrperrors.ErrConfig) {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return fmt.Errorf("%w: %w", ErrRuntime, err)
}

func isClassified(err error) bool {
	return errors.Is(err, ErrUsage) || errors.Is(err, ErrConfig) ||
		errors.Is(err, ErrRuntime) || errors.Is(err, ErrInternal)
}

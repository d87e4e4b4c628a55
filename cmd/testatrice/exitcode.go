package main

import (
	"errors"

	"github.com/cockatrice/testatrice/internal/core/domain"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitConnectivity = 3
	ExitConflict     = 4
	ExitAbsent       = 5
	ExitPortInUse    = 6
)

// ExitCode extracts the process exit code from an error chain.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, domain.ErrConnectivity):
		return ExitConnectivity
	case errors.Is(err, domain.ErrConflict):
		return ExitConflict
	case errors.Is(err, domain.ErrAbsent):
		return ExitAbsent
	case errors.Is(err, domain.ErrPortInUse):
		return ExitPortInUse
	default:
		return ExitGeneralError
	}
}

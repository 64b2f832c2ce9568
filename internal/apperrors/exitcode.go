package apperrors

import "errors"

// Process exit codes, one per outcome kind.
const (
	ExitOK           = 0
	ExitUnexpected   = 1
	ExitConfig       = 2
	ExitPackage      = 3
	ExitTransport    = 4
	ExitAuth         = 5
	ExitLaunch       = 6
	ExitPoll         = 7
	ExitImportFailed = 8
)

// ExitCode maps an error to the process exit code.
// A nil error maps to ExitOK.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrConfig):
		return ExitConfig
	case errors.Is(err, ErrPackage):
		return ExitPackage
	case errors.Is(err, ErrTransport):
		return ExitTransport
	case errors.Is(err, ErrAuth):
		return ExitAuth
	case errors.Is(err, ErrLaunch):
		return ExitLaunch
	case errors.Is(err, ErrPoll):
		return ExitPoll
	case errors.Is(err, ErrImportFailed):
		return ExitImportFailed
	default:
		return ExitUnexpected
	}
}

// Package types defines shared application data types.
package types

// ExitCode represents the application's exit codes.
type ExitCode int

const (
	// ExitSuccess - Execution completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGenericError - Unspecified generic error.
	ExitGenericError ExitCode = 1

	// ExitConfigError - Configuration error.
	ExitConfigError ExitCode = 2

	// ExitCatalogError - The title catalog could not be opened or updated.
	ExitCatalogError ExitCode = 3

	// ExitRemoteError - The remote backend could not be initialized.
	ExitRemoteError ExitCode = 4

	// ExitUsageError - Invalid command-line usage.
	ExitUsageError ExitCode = 5

	// ExitPanicError - Unhandled panic caught.
	ExitPanicError ExitCode = 13
)

// String returns a human-readable description of the exit code.
func (e ExitCode) String() string {
	switch e {
	case ExitSuccess:
		return "success"
	case ExitGenericError:
		return "generic error"
	case ExitConfigError:
		return "configuration error"
	case ExitCatalogError:
		return "catalog error"
	case ExitRemoteError:
		return "remote error"
	case ExitUsageError:
		return "usage error"
	case ExitPanicError:
		return "panic error"
	default:
		return "unknown error"
	}
}

// Int returns the exit code as an integer.
func (e ExitCode) Int() int {
	return int(e)
}

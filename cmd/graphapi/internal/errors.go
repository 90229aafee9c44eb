package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/RoboFinSystems/robosystems-sub012/internal/types"
	"github.com/spf13/cobra"
)

// Exit codes for the CLI
const (
	ExitSuccess   = 0
	ExitError     = 1
	ExitTimeout   = 3
	ExitCancelled = 4

	// ExitConfigError covers unreadable or invalid configuration.
	ExitConfigError = 10
	// ExitBackendError covers engine and pool failures.
	ExitBackendError = 12
	// ExitRejected covers admission rejections; the caller may retry.
	ExitRejected = 13
	// ExitUsageError covers invalid identifiers and arguments.
	ExitUsageError = 14
)

// CLIError represents a CLI-specific error with an exit code
type CLIError struct {
	Code    int
	Message string
	Cause   error
}

// Error implements the error interface
func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause error
func (e *CLIError) Unwrap() error {
	return e.Cause
}

// WrapError creates a new CLIError wrapping an existing error
func WrapError(code int, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Cause: err}
}

// NewCLIError creates a new CLIError with the given code and message
func NewCLIError(code int, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// HandleError prints err to the command's error output and returns the exit
// code for it.
func HandleError(cmd *cobra.Command, err error) int {
	if err == nil {
		return ExitSuccess
	}

	if errors.Is(err, context.Canceled) {
		cmd.PrintErrln("Operation cancelled")
		return ExitCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		cmd.PrintErrln("Operation timed out")
		return ExitTimeout
	}

	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		cmd.PrintErrln("Error:", cliErr.Message)
		if cliErr.Cause != nil && verbose(cmd) {
			cmd.PrintErrln("Cause:", cliErr.Cause)
		}
		return cliErr.Code
	}

	var graphErr *types.GraphError
	if errors.As(err, &graphErr) {
		cmd.PrintErrln("Error:", graphErr.Error())
		if graphErr.Retryable {
			cmd.PrintErrln("The operation may succeed if retried.")
		}
		return ExitCodeFor(graphErr.Code)
	}

	cmd.PrintErrln("Error:", err)
	return ExitError
}

// ExitCodeFor maps a GraphError code to a CLI exit code.
func ExitCodeFor(code types.ErrorCode) int {
	switch code {
	case types.CONFIG_LOAD_FAILED, types.CONFIG_VALIDATION_FAILED:
		return ExitConfigError
	case types.INVALID_IDENTIFIER, types.UNSUPPORTED_OPERATION,
		types.DATABASE_NOT_FOUND, types.DATABASE_EXISTS:
		return ExitUsageError
	case types.ADMISSION_REJECTED, types.PAYLOAD_TOO_LARGE:
		return ExitRejected
	case types.CONNECTION_FAILED, types.ENGINE_OPERATION_FAILED,
		types.POOL_CLOSED, types.POOL_NOT_INITIALIZED, types.POOL_ALREADY_INITIALIZED:
		return ExitBackendError
	default:
		return ExitError
	}
}

func verbose(cmd *cobra.Command) bool {
	flag := cmd.Flag("verbose")
	return flag != nil && flag.Changed
}

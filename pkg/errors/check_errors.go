// pkg/errors/check_errors.go
package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CheckError represents a structured failure raised while running a check.
// It never reaches the process exit path; the scheduler turns it into a
// skipped CheckStats entry in the report.
type CheckError struct {
	CheckName   string                 `json:"check_name"`
	ErrorType   string                 `json:"error_type"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	Severity    Severity               `json:"severity"`
	Recoverable bool                   `json:"recoverable"`
	Cause       error                  `json:"-"`
}

type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
	SeverityInfo   Severity = "info"
)

// Error implements the error interface
func (ce *CheckError) Error() string {
	if ce.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s: %v", ce.CheckName, ce.ErrorType, ce.Message, ce.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", ce.CheckName, ce.ErrorType, ce.Message)
}

// Unwrap returns the underlying cause
func (ce *CheckError) Unwrap() error {
	return ce.Cause
}

// AsCheckError extracts a CheckError from an error chain.
func AsCheckError(err error) (*CheckError, bool) {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// ErrorHandler logs check errors at a level matching their severity.
type ErrorHandler struct {
	logger zerolog.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger zerolog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError logs a check error with its structured context.
func (eh *ErrorHandler) HandleError(err *CheckError) {
	logEvent := eh.getLogEvent(err.Severity).
		Str("check", err.CheckName).
		Str("error_type", err.ErrorType).
		Str("message", err.Message).
		Bool("recoverable", err.Recoverable)

	if err.Details != nil {
		logEvent = logEvent.Interface("details", err.Details)
	}

	if err.Cause != nil {
		logEvent = logEvent.AnErr("cause", err.Cause)
	}

	logEvent.Msg("Check error occurred")
}

// getLogEvent returns the appropriate zerolog event for severity
func (eh *ErrorHandler) getLogEvent(severity Severity) *zerolog.Event {
	switch severity {
	case SeverityHigh:
		return eh.logger.Error()
	case SeverityMedium:
		return eh.logger.Warn()
	case SeverityLow:
		return eh.logger.Info()
	case SeverityInfo:
		return eh.logger.Debug()
	default:
		return eh.logger.Info()
	}
}

// Helper functions for creating common error types

func NewProbeError(checkName string, probe string, cause error) *CheckError {
	return &CheckError{
		CheckName: checkName,
		ErrorType: "probe",
		Message:   fmt.Sprintf("Probe failed: %s", probe),
		Details: map[string]interface{}{
			"probe": probe,
		},
		Timestamp:   time.Now(),
		Severity:    SeverityMedium,
		Recoverable: true,
		Cause:       cause,
	}
}

func NewSnapshotError(checkName string, pattern string, cause error) *CheckError {
	return &CheckError{
		CheckName: checkName,
		ErrorType: "snapshot",
		Message:   fmt.Sprintf("Snapshot unavailable: %s", pattern),
		Details: map[string]interface{}{
			"pattern": pattern,
		},
		Timestamp:   time.Now(),
		Severity:    SeverityLow,
		Recoverable: true,
		Cause:       cause,
	}
}

func NewPermissionError(checkName string, operation string, cause error) *CheckError {
	return &CheckError{
		CheckName: checkName,
		ErrorType: "permission",
		Message:   fmt.Sprintf("Permission denied for operation: %s", operation),
		Details: map[string]interface{}{
			"operation": operation,
		},
		Timestamp:   time.Now(),
		Severity:    SeverityMedium,
		Recoverable: false,
		Cause:       cause,
	}
}

func NewTimeoutError(checkName string, timeout time.Duration, cause error) *CheckError {
	return &CheckError{
		CheckName: checkName,
		ErrorType: "timeout",
		Message:   fmt.Sprintf("Check exceeded its deadline of %s", timeout),
		Details: map[string]interface{}{
			"timeout": timeout.String(),
		},
		Timestamp:   time.Now(),
		Severity:    SeverityHigh,
		Recoverable: true,
		Cause:       cause,
	}
}

func NewPanicError(checkName string, recovered interface{}) *CheckError {
	return &CheckError{
		CheckName:   checkName,
		ErrorType:   "panic",
		Message:     fmt.Sprintf("Check panicked: %v", recovered),
		Timestamp:   time.Now(),
		Severity:    SeverityHigh,
		Recoverable: false,
	}
}

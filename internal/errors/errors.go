// Package errors provides centralized error definitions and error handling utilities
// for agentlab. It defines domain-specific errors, semantic error types,
// error constructors with context wrapping, and error classification helpers.
//
// # Error Types
//
// Domain-specific errors represent failures of specific subsystems:
//   - GatewayError: the text-generation service was unreachable or rejected the request
//   - InputError: a required startup input (PDF, files directory, mode) is missing or invalid
//   - ExecutionError: an execution back end could not be prepared at all
//
// Semantic errors represent common error conditions:
//   - NotFoundError: resource not found
//   - ValidationError: invalid input or state
//   - TimeoutError: operation timed out
//
// Subprocess and scheduler failures are not errors in this taxonomy. They are
// recorded on the execution result and fed back into the repair loop.
//
// # Usage
//
//	err := errors.NewGatewayError("generate failed", errors.ErrGatewayAuth).WithModel("gpt-oss:20b")
//	if errors.IsFatal(err) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that abort the run.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Gateway-related sentinel errors
var (
	// ErrGatewayUnavailable indicates the text-generation service could not be reached.
	ErrGatewayUnavailable = New("gateway unavailable")
	// ErrGatewayAuth indicates the service rejected the credentials.
	ErrGatewayAuth = New("gateway rejected credentials")
	// ErrGatewayStatus indicates the service answered with an unexpected status.
	ErrGatewayStatus = New("gateway returned unexpected status")
	// ErrGatewayResponse indicates the service answered with an undecodable body.
	ErrGatewayResponse = New("gateway returned malformed response")
)

// Input-related sentinel errors
var (
	// ErrInputNotFound indicates a required input file or directory does not exist.
	ErrInputNotFound = New("input not found")
	// ErrInvalidMode indicates the requested pipeline mode is unknown.
	ErrInvalidMode = New("invalid mode")
	// ErrMissingTopic indicates no research topic was supplied.
	ErrMissingTopic = New("topic is required")
)

// Execution-related sentinel errors
var (
	// ErrJobNotFound indicates a batch job is not tracked in the registry.
	ErrJobNotFound = New("job not found")
	// ErrUnsupportedScheduler indicates no submit command is known for a scheduler.
	ErrUnsupportedScheduler = New("unsupported scheduler")
	// ErrWorkspace indicates the working directory could not be prepared.
	ErrWorkspace = New("workspace unavailable")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrCanceled indicates that an operation was canceled.
	ErrCanceled = New("operation canceled")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// LabError is the base interface for all agentlab errors.
type LabError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the operation may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

func formatPrefixed(prefix string, parts []string, message string, cause error) string {
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", prefix, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// GatewayError represents a failure of the text-generation service. These
// errors are fatal: the run aborts because no role can make progress.
//
// Example:
//
//	err := errors.NewGatewayError("generate failed", errors.ErrGatewayAuth).WithStatus(401)
//	fmt.Println(err) // "gateway error [status=401]: generate failed: gateway rejected credentials"
type GatewayError struct {
	baseError
	Model      string
	StatusCode int
	Endpoint   string
}

// NewGatewayError creates a new GatewayError.
func NewGatewayError(message string, cause error) *GatewayError {
	return &GatewayError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithModel adds the model name to the error context.
func (e *GatewayError) WithModel(model string) *GatewayError {
	e.Model = model
	return e
}

// WithStatus adds the HTTP status code to the error context.
func (e *GatewayError) WithStatus(code int) *GatewayError {
	e.StatusCode = code
	return e
}

// WithEndpoint adds the endpoint URL to the error context.
func (e *GatewayError) WithEndpoint(endpoint string) *GatewayError {
	e.Endpoint = endpoint
	return e
}

// Error returns the formatted error message.
func (e *GatewayError) Error() string {
	var parts []string
	if e.Model != "" {
		parts = append(parts, fmt.Sprintf("model=%s", e.Model))
	}
	if e.StatusCode != 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if e.Endpoint != "" {
		parts = append(parts, fmt.Sprintf("endpoint=%s", e.Endpoint))
	}
	return formatPrefixed("gateway error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *GatewayError) Is(target error) bool {
	if _, ok := target.(*GatewayError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// InputError represents a missing or invalid startup input. It is raised
// before any role is invoked.
//
// Example:
//
//	err := errors.NewInputError("PDF file not found", errors.ErrInputNotFound).WithPaths("a.pdf", "b.pdf")
type InputError struct {
	baseError
	Kind  string
	Paths []string
}

// NewInputError creates a new InputError.
func NewInputError(message string, cause error) *InputError {
	return &InputError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityCritical,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithKind adds the input kind (for example "pdf" or "files_dir").
func (e *InputError) WithKind(kind string) *InputError {
	e.Kind = kind
	return e
}

// WithPaths adds the offending paths to the error context.
func (e *InputError) WithPaths(paths ...string) *InputError {
	e.Paths = append(e.Paths, paths...)
	return e
}

// Error returns the formatted error message.
func (e *InputError) Error() string {
	var parts []string
	if e.Kind != "" {
		parts = append(parts, fmt.Sprintf("kind=%s", e.Kind))
	}
	msg := e.message
	if len(e.Paths) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(e.Paths, ", "))
	}
	return formatPrefixed("input error", parts, msg, e.cause)
}

// Is checks if this error matches the target.
func (e *InputError) Is(target error) bool {
	if _, ok := target.(*InputError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ExecutionError represents a back end that could not be prepared, such as an
// unwritable working directory. Ordinary non-zero exits are not ExecutionErrors.
//
// Example:
//
//	err := errors.NewExecutionError("write script", cause).WithBackend("local").WithIteration(1)
type ExecutionError struct {
	baseError
	Backend   string
	Iteration int
	JobID     string
}

// NewExecutionError creates a new ExecutionError.
func NewExecutionError(message string, cause error) *ExecutionError {
	return &ExecutionError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Iteration: -1,
	}
}

// WithBackend adds the back end name to the error context.
func (e *ExecutionError) WithBackend(name string) *ExecutionError {
	e.Backend = name
	return e
}

// WithIteration adds the iteration index to the error context.
func (e *ExecutionError) WithIteration(i int) *ExecutionError {
	e.Iteration = i
	return e
}

// WithJobID adds a batch job id to the error context.
func (e *ExecutionError) WithJobID(id string) *ExecutionError {
	e.JobID = id
	return e
}

// WithRetryable sets whether the error is retryable.
func (e *ExecutionError) WithRetryable(r bool) *ExecutionError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *ExecutionError) Error() string {
	var parts []string
	if e.Backend != "" {
		parts = append(parts, fmt.Sprintf("backend=%s", e.Backend))
	}
	if e.Iteration >= 0 {
		parts = append(parts, fmt.Sprintf("iteration=%d", e.Iteration))
	}
	if e.JobID != "" {
		parts = append(parts, fmt.Sprintf("job=%s", e.JobID))
	}
	return formatPrefixed("execution error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ExecutionError) Is(target error) bool {
	if _, ok := target.(*ExecutionError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// NotFoundError represents a resource that could not be found.
//
// Example:
//
//	err := errors.NewNotFoundError("job", "123.pbs01")
//	fmt.Println(err) // "job '123.pbs01' not found"
type NotFoundError struct {
	baseError
	ResourceType string
	ResourceID   string
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(resourceType, resourceID string) *NotFoundError {
	return &NotFoundError{
		baseError: baseError{
			message:    fmt.Sprintf("%s '%s' not found", resourceType, resourceID),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.ResourceID, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.ResourceID)
}

// Is checks if this error matches the target.
func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("mode must be one of research_only, code_only, both").WithField("mode")
type ValidationError struct {
	baseError
	Field string
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithCause adds a cause to the error.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	msg := e.message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, msg)
	}
	if e.cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return "validation error: " + msg
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidInput) {
		return true
	}
	return e.baseError.Is(target)
}

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("generate", 120*time.Second)
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    fmt.Sprintf("%s timed out after %s", operation, duration),
			severity:   SeverityError,
			retryable:  true,
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var labErr LabError
	if As(err, &labErr) {
		return labErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var labErr LabError
	return As(err, &labErr) && labErr.IsUserFacing()
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement LabError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var labErr LabError
	if As(err, &labErr) {
		return labErr.Severity()
	}
	return SeverityError
}

// IsFatal reports whether the error must abort the run: gateway failures,
// missing startup inputs, and anything marked critical.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var gatewayErr *GatewayError
	var inputErr *InputError
	if As(err, &gatewayErr) || As(err, &inputErr) {
		return true
	}
	return GetSeverity(err) == SeverityCritical
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Package loomerr defines the conversation engine's error taxonomy: the
// fixed set of error categories the Turn Processor and HTTP layer branch on,
// and the classification helpers that map a driver's raw error into one of
// them. Errors are typed with errors.As-friendly Unwrap methods and
// classified by string-pattern matching over the few categories the
// conversation engine actually propagates.
package loomerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationError indicates malformed or semantically invalid caller input
// (e.g. an unknown agent_id, a client-tool result with no pending request).
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
	}
	return "validation: " + e.Message
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// AuthorizationError indicates the caller is not permitted to act on the
// referenced conversation or agent.
type AuthorizationError struct {
	Message string
}

func (e *AuthorizationError) Error() string { return "authorization: " + e.Message }

// NewAuthorizationError constructs an AuthorizationError.
func NewAuthorizationError(message string) *AuthorizationError {
	return &AuthorizationError{Message: message}
}

// BackendKind classifies a BackendError for retry/surface decisions.
type BackendKind string

const (
	BackendUnavailable   BackendKind = "unavailable"
	BackendTimeout       BackendKind = "timeout"
	BackendRateLimited   BackendKind = "rate_limited"
	BackendProtocolError BackendKind = "protocol_error"
	BackendContextOverflow BackendKind = "context_overflow"
	BackendModelNotFound BackendKind = "model_not_found"
)

// BackendError wraps a failure surfaced by a Backend Driver, classified into
// one of the six BackendKind values above. The conversation engine never
// retries a BackendError itself (turns are single-attempt); the kind exists
// so the failure reason recorded on the conversation is meaningful.
type BackendError struct {
	Kind     BackendKind
	Driver   string
	Model    string
	Message  string
	Cause    error
}

func (e *BackendError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	if e.Driver != "" {
		return fmt.Sprintf("backend[%s/%s]: %s: %s", e.Driver, e.Kind, e.Model, msg)
	}
	return fmt.Sprintf("backend[%s]: %s", e.Kind, msg)
}

func (e *BackendError) Unwrap() error { return e.Cause }

// NewBackendError constructs a BackendError, classifying cause by kind if
// kind is empty.
func NewBackendError(driver, model string, kind BackendKind, cause error) *BackendError {
	if kind == "" {
		kind = ClassifyBackendError(cause)
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &BackendError{Kind: kind, Driver: driver, Model: model, Message: msg, Cause: cause}
}

// ClassifyBackendError infers a BackendKind from a raw driver error by
// string-pattern matching over the six categories above.
func ClassifyBackendError(err error) BackendKind {
	if err == nil {
		return BackendUnavailable
	}

	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind
	}

	s := strings.ToLower(err.Error())

	switch {
	case strings.Contains(s, "context_length_exceeded"),
		strings.Contains(s, "context length"),
		strings.Contains(s, "maximum context"),
		strings.Contains(s, "too many tokens"):
		return BackendContextOverflow
	case strings.Contains(s, "model not found"),
		strings.Contains(s, "model_not_found"),
		strings.Contains(s, "no such model"),
		strings.Contains(s, "unknown model"):
		return BackendModelNotFound
	case strings.Contains(s, "rate limit"),
		strings.Contains(s, "rate_limit"),
		strings.Contains(s, "too many requests"),
		strings.Contains(s, "429"):
		return BackendRateLimited
	case strings.Contains(s, "timeout"),
		strings.Contains(s, "deadline exceeded"),
		strings.Contains(s, "context deadline"):
		return BackendTimeout
	case strings.Contains(s, "invalid request"),
		strings.Contains(s, "bad request"),
		strings.Contains(s, "malformed"),
		strings.Contains(s, "400"):
		return BackendProtocolError
	case strings.Contains(s, "connection"),
		strings.Contains(s, "unreachable"),
		strings.Contains(s, "503"),
		strings.Contains(s, "502"),
		strings.Contains(s, "no such host"):
		return BackendUnavailable
	default:
		return BackendUnavailable
	}
}

// ToolExecutionError wraps a failed tool execution. Unlike BackendError,
// this is always contained: the Turn Processor records a failed
// models.ToolResult and lets the turn continue rather than failing the
// conversation.
type ToolExecutionError struct {
	ToolName   string
	ToolCallID string
	Message    string
	Cause      error
}

func (e *ToolExecutionError) Error() string {
	msg := e.Message
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	}
	return fmt.Sprintf("tool[%s]: %s", e.ToolName, msg)
}

func (e *ToolExecutionError) Unwrap() error { return e.Cause }

// NewToolExecutionError constructs a ToolExecutionError.
func NewToolExecutionError(toolName, toolCallID string, cause error) *ToolExecutionError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ToolExecutionError{ToolName: toolName, ToolCallID: toolCallID, Message: msg, Cause: cause}
}

// ContextFilterResolutionFailed indicates the configured context strategy
// could not run (e.g. a malformed context_options value). This fails open:
// the caller logs and falls back to passing all messages through rather
// than failing the turn.
type ContextFilterResolutionFailed struct {
	Strategy string
	Message  string
	Cause    error
}

func (e *ContextFilterResolutionFailed) Error() string {
	return fmt.Sprintf("context filter %q resolution failed: %s", e.Strategy, e.Message)
}

func (e *ContextFilterResolutionFailed) Unwrap() error { return e.Cause }

// NewContextFilterResolutionFailed constructs a ContextFilterResolutionFailed.
func NewContextFilterResolutionFailed(strategy string, cause error) *ContextFilterResolutionFailed {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &ContextFilterResolutionFailed{Strategy: strategy, Message: msg, Cause: cause}
}

// InternalError wraps any unexpected failure not covered by the other
// categories (storage faults, programming errors surfaced at runtime). The
// Turn Processor treats these identically to BackendError: the conversation
// transitions to failed.
type InternalError struct {
	Message string
	Cause   error
}

func (e *InternalError) Error() string {
	if e.Cause != nil {
		return "internal: " + e.Message + ": " + e.Cause.Error()
	}
	return "internal: " + e.Message
}

func (e *InternalError) Unwrap() error { return e.Cause }

// NewInternalError constructs an InternalError.
func NewInternalError(message string, cause error) *InternalError {
	return &InternalError{Message: message, Cause: cause}
}

// ClassifyBackendStatus maps an HTTP status code from a driver's wire call
// to a BackendKind.
func ClassifyBackendStatus(status int) BackendKind {
	switch {
	case status == http.StatusTooManyRequests:
		return BackendRateLimited
	case status == http.StatusBadRequest:
		return BackendProtocolError
	case status == http.StatusNotFound:
		return BackendModelNotFound
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return BackendTimeout
	case status >= 500:
		return BackendUnavailable
	default:
		return BackendUnavailable
	}
}

// IsRetryableBackendKind reports whether a BackendKind would typically
// succeed on a fresh attempt. The conversation engine never acts on this
// itself (turns are single-attempt) but it is surfaced to callers deciding
// whether to let an end user manually retry.
func IsRetryableBackendKind(k BackendKind) bool {
	switch k {
	case BackendUnavailable, BackendTimeout, BackendRateLimited:
		return true
	default:
		return false
	}
}

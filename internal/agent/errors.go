package agent

import (
	"errors"
	"strings"
)

// Sentinel errors surfaced by Driver implementations and the dispatcher.
var (
	ErrToolNotFound = errors.New("tool not found")
	ErrToolTimeout  = errors.New("tool execution timed out")
	ErrToolPanic    = errors.New("tool panicked")
)

// ToolErrorType categorizes a tool execution failure. It feeds the
// models.ToolResult rendered back to the driver, not a retry decision —
// tool calls are single-attempt like everything else in a turn.
type ToolErrorType string

const (
	ToolErrorNotFound     ToolErrorType = "not_found"
	ToolErrorInvalidInput ToolErrorType = "invalid_input"
	ToolErrorTimeout      ToolErrorType = "timeout"
	ToolErrorNetwork      ToolErrorType = "network"
	ToolErrorPermission   ToolErrorType = "permission"
	ToolErrorPanic        ToolErrorType = "panic"
	ToolErrorExecution    ToolErrorType = "execution"
	ToolErrorUnknown      ToolErrorType = "unknown"
)

// classifyToolError determines a ToolErrorType from an error's message
// using a string-pattern classifier.
func classifyToolError(err error) ToolErrorType {
	if err == nil {
		return ToolErrorUnknown
	}
	if errors.Is(err, ErrToolNotFound) {
		return ToolErrorNotFound
	}
	if errors.Is(err, ErrToolTimeout) {
		return ToolErrorTimeout
	}
	if errors.Is(err, ErrToolPanic) {
		return ToolErrorPanic
	}

	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return ToolErrorTimeout
	case strings.Contains(s, "connection"), strings.Contains(s, "network"),
		strings.Contains(s, "dns"), strings.Contains(s, "unreachable"):
		return ToolErrorNetwork
	case strings.Contains(s, "permission"), strings.Contains(s, "forbidden"),
		strings.Contains(s, "unauthorized"), strings.Contains(s, "access denied"):
		return ToolErrorPermission
	case strings.Contains(s, "invalid"), strings.Contains(s, "required"),
		strings.Contains(s, "missing"):
		return ToolErrorInvalidInput
	default:
		return ToolErrorExecution
	}
}

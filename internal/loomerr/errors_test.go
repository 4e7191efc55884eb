package loomerr

import (
	"errors"
	"testing"
)

func TestClassifyBackendError(t *testing.T) {
	tests := []struct {
		name   string
		errMsg string
		want   BackendKind
	}{
		{"context_overflow", "this model's maximum context length is 8192 tokens", BackendContextOverflow},
		{"model_not_found", "model not found: gpt-9", BackendModelNotFound},
		{"rate_limited", "429 too many requests", BackendRateLimited},
		{"timeout", "context deadline exceeded", BackendTimeout},
		{"protocol_error", "400 bad request: malformed payload", BackendProtocolError},
		{"unavailable", "dial tcp: connection refused", BackendUnavailable},
		{"default_unavailable", "something unexpected happened", BackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyBackendError(errors.New(tt.errMsg)); got != tt.want {
				t.Errorf("ClassifyBackendError(%q) = %s, want %s", tt.errMsg, got, tt.want)
			}
		})
	}
}

func TestClassifyBackendError_PreservesExistingKind(t *testing.T) {
	inner := NewBackendError("anthropic", "claude-3", BackendRateLimited, errors.New("429"))
	if got := ClassifyBackendError(inner); got != BackendRateLimited {
		t.Errorf("ClassifyBackendError should preserve wrapped BackendError kind, got %s", got)
	}
}

func TestBackendError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := NewBackendError("openai", "gpt-4o", BackendUnavailable, cause)
	if !errors.Is(err, cause) {
		t.Error("BackendError should unwrap to its cause")
	}
}

func TestIsRetryableBackendKind(t *testing.T) {
	tests := []struct {
		kind BackendKind
		want bool
	}{
		{BackendUnavailable, true},
		{BackendTimeout, true},
		{BackendRateLimited, true},
		{BackendProtocolError, false},
		{BackendContextOverflow, false},
		{BackendModelNotFound, false},
	}
	for _, tt := range tests {
		if got := IsRetryableBackendKind(tt.kind); got != tt.want {
			t.Errorf("IsRetryableBackendKind(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestToolExecutionError(t *testing.T) {
	cause := errors.New("dial tcp timeout")
	err := NewToolExecutionError("web_fetch", "call_1", cause)

	if !errors.Is(err, cause) {
		t.Error("ToolExecutionError should unwrap to its cause")
	}
	if err.Error() == "" {
		t.Error("ToolExecutionError should have a non-empty message")
	}
}

func TestContextFilterResolutionFailed(t *testing.T) {
	cause := errors.New("unknown strategy: bogus")
	err := NewContextFilterResolutionFailed("bogus", cause)
	if !errors.Is(err, cause) {
		t.Error("ContextFilterResolutionFailed should unwrap to its cause")
	}
}

func TestValidationAndAuthorizationErrors(t *testing.T) {
	v := NewValidationError("agent_id", "unknown agent")
	if v.Error() == "" {
		t.Error("ValidationError should have a message")
	}

	a := NewAuthorizationError("user does not own conversation")
	if a.Error() == "" {
		t.Error("AuthorizationError should have a message")
	}
}

package agent

import (
	"errors"
	"testing"
)

func TestClassifyToolError(t *testing.T) {
	tests := []struct {
		name     string
		errMsg   string
		wantType ToolErrorType
	}{
		{"timeout", "context deadline exceeded", ToolErrorTimeout},
		{"network", "connection refused", ToolErrorNetwork},
		{"permission", "permission denied", ToolErrorPermission},
		{"invalid", "invalid input parameter", ToolErrorInvalidInput},
		{"unknown", "some random error", ToolErrorExecution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyToolError(errors.New(tt.errMsg)); got != tt.wantType {
				t.Errorf("classifyToolError(%q) = %s, want %s", tt.errMsg, got, tt.wantType)
			}
		})
	}
}

func TestClassifyToolError_Sentinels(t *testing.T) {
	tests := []struct {
		err      error
		wantType ToolErrorType
	}{
		{ErrToolNotFound, ToolErrorNotFound},
		{ErrToolTimeout, ToolErrorTimeout},
		{ErrToolPanic, ToolErrorPanic},
	}

	for _, tt := range tests {
		if got := classifyToolError(tt.err); got != tt.wantType {
			t.Errorf("classifyToolError(%v) = %s, want %s", tt.err, got, tt.wantType)
		}
	}
}

func TestClassifyToolError_Nil(t *testing.T) {
	if got := classifyToolError(nil); got != ToolErrorUnknown {
		t.Errorf("classifyToolError(nil) = %s, want %s", got, ToolErrorUnknown)
	}
}

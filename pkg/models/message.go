// Package models defines the core data types shared across the conversation
// engine: messages, tool calls, agents, and the conversations that tie them
// together.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the author of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is an immutable record in a Conversation's transcript.
//
// A tool message's Content is the textual rendering of the corresponding
// ToolResult; ToolCallID identifies which ToolCall it answers. ToolCalls is
// only populated on assistant messages.
type ChatMessage struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Images     []string   `json:"images,omitempty"` // base64-encoded
	Thinking   string     `json:"thinking,omitempty"`
	TokenCount int        `json:"token_count,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`

	// Pinned marks a message as exempt from Context Filter eviction.
	Pinned bool `json:"pinned,omitempty"`
}

// ToolCall is the assistant's request to execute a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string         `json:"tool_call_id"`
	Success    bool           `json:"success"`
	Output     string         `json:"output"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// NewToolSuccess constructs a successful ToolResult.
func NewToolSuccess(toolCallID, output string, metadata map[string]any) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Success: true, Output: output, Metadata: metadata}
}

// NewToolFailure constructs a failed ToolResult.
func NewToolFailure(toolCallID, errMsg string, metadata map[string]any) ToolResult {
	return ToolResult{ToolCallID: toolCallID, Success: false, Error: errMsg, Metadata: metadata}
}

// Render returns the textual form stored as a tool ChatMessage's Content.
func (r ToolResult) Render() string {
	if r.Success {
		return r.Output
	}
	if r.Error != "" {
		return r.Error
	}
	return "tool execution failed"
}

// FinishReason describes why an AIResponse ended.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishLength    FinishReason = "length"
	FinishToolCalls FinishReason = "tool_calls"
	FinishError     FinishReason = "error"
)

// TokenUsage reports input/output token counts for a single model call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns the sum of input and output tokens.
func (t TokenUsage) Total() int {
	return t.InputTokens + t.OutputTokens
}

// AIResponse is a Backend Driver's result for one model turn.
type AIResponse struct {
	Content      string         `json:"content"`
	Model        string         `json:"model"`
	TokensUsed   TokenUsage     `json:"tokens_used"`
	FinishReason FinishReason   `json:"finish_reason"`
	ToolCalls    []ToolCall     `json:"tool_calls,omitempty"`
	Thinking     string         `json:"thinking,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// SystemPromptRef is an ordered reference to a named system prompt
// template, carrying per-reference variable overrides.
type SystemPromptRef struct {
	Name             string            `json:"name"`
	Template         string            `json:"template"`
	DefaultValues    map[string]string `json:"default_values,omitempty"`
	VariableOverrides map[string]string `json:"variable_overrides,omitempty"`
}

// ModelConfig is the sparse, agent-authored subset of model parameters.
// Any zero value is "unset" and falls through to driver/global defaults.
type ModelConfig struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	TimeoutSeconds int   `json:"timeout_seconds,omitempty"`
}

// NormalizedModelConfig is the fully resolved configuration a Backend
// Driver is bound to via WithConfig, after defaults and clamping.
type NormalizedModelConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	TopP           float64
	TopK           int
	ContextLength  int
	TimeoutSeconds int

	// Warnings records parameters dropped because the driver doesn't support them.
	Warnings []string
}

// ContextStrategy names a Context Filter strategy.
type ContextStrategy string

const (
	ContextStrategyNoop          ContextStrategy = "noop"
	ContextStrategySlidingWindow ContextStrategy = "sliding_window"
	ContextStrategyTokenBudget   ContextStrategy = "token_budget"
	ContextStrategySummarization ContextStrategy = "summarization"
)

// Agent is a reusable configuration referenced (not owned) by Conversations.
type Agent struct {
	ID               string                 `json:"id"`
	Name             string                 `json:"name"`
	Description      string                 `json:"description,omitempty"`
	AIBackend        string                 `json:"ai_backend"` // driver key: ollama|openai|anthropic|vllm|huggingface
	ModelConfig      ModelConfig            `json:"model_config"`
	ContextStrategy  ContextStrategy        `json:"context_strategy"`
	ContextOptions   map[string]any         `json:"context_options,omitempty"`
	ContextThreshold float64                `json:"context_threshold"` // in [0,1]
	MaxTurns         int                    `json:"max_turns"`
	SystemPrompts    []SystemPromptRef      `json:"system_prompts"`
	ContextVariables map[string]string      `json:"context_variables,omitempty"`
	ClientToolNames  []string               `json:"client_tool_names,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

// ConversationStatus is the persisted state of a Conversation. See
// CanTransition in internal/conversation for the full transition table.
type ConversationStatus string

const (
	StatusActive           ConversationStatus = "active"
	StatusActiveProcessing ConversationStatus = "active-processing"
	StatusPaused           ConversationStatus = "paused"
	StatusCompleted        ConversationStatus = "completed"
	StatusFailed           ConversationStatus = "failed"
	StatusCancelled        ConversationStatus = "cancelled"
)

// IsTerminal reports whether the status is absorbing.
func (s ConversationStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// ClientStatus collapses active/active-processing into "processing" for the
// status polling endpoint.
func (s ConversationStatus) ClientStatus() string {
	switch s {
	case StatusActive, StatusActiveProcessing:
		return "processing"
	case StatusPaused:
		return "waiting_for_tool"
	default:
		return string(s)
	}
}

// PendingToolRequest is the single client-executable tool call awaiting a
// client-submitted result. Its presence is synonymous with status=paused.
type PendingToolRequest struct {
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ClientToolSchema is a tool name the connecting client declares it can
// execute on its own side.
type ClientToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema,omitempty"`
}

// Conversation is the unit of agentic work: a single-writer transcript
// plus its processing state.
type Conversation struct {
	ID        string `json:"id"`
	AgentID   string `json:"agent_id"`
	UserID    string `json:"user_id"`

	Messages []ChatMessage      `json:"messages"`
	Status   ConversationStatus `json:"status"`

	TurnCount   int `json:"turn_count"`
	TotalTokens int `json:"total_tokens"`

	PendingToolRequest *PendingToolRequest `json:"pending_tool_request,omitempty"`
	RemainingToolCalls []ToolCall          `json:"remaining_tool_calls,omitempty"`
	ClientToolSchemas  []ClientToolSchema  `json:"client_tool_schemas,omitempty"`

	// SystemPromptSnapshot is frozen at the first turn and never recomputed.
	SystemPromptSnapshot string `json:"system_prompt_snapshot,omitempty"`
	// ModelConfigSnapshot is frozen alongside the prompt snapshot.
	ModelConfigSnapshot *NormalizedModelConfig `json:"model_config_snapshot,omitempty"`

	LastActivityAt time.Time `json:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at"`
	FailureReason  string    `json:"failure_reason,omitempty"`
}

// LastAssistantMessage returns the most recent assistant message, if any.
func (c *Conversation) LastAssistantMessage() (ChatMessage, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i], true
		}
	}
	return ChatMessage{}, false
}

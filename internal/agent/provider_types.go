// Package agent defines the Backend Driver abstraction: the interface every
// model backend (Anthropic, OpenAI, Ollama, vLLM, HuggingFace) implements,
// and the shared request/response shapes the Turn Processor drives it with.
package agent

import (
	"context"
	"encoding/json"

	"github.com/loomrun/loom/pkg/models"
)

// Driver is the uniform interface the Turn Processor uses to talk to a model
// backend. A Driver is stateless between calls except for the configuration
// bound by WithConfig; a single Driver value may be shared across
// goroutines once configured, but WithConfig itself returns a new bound
// instance rather than mutating in place.
type Driver interface {
	// WithConfig returns a Driver bound to the given resolved configuration.
	// Implementations must not mutate the receiver.
	WithConfig(cfg models.NormalizedModelConfig) Driver

	// Execute performs one non-streaming model call.
	Execute(ctx context.Context, req Request) (models.AIResponse, error)

	// StreamExecute performs one model call, invoking onChunk for each
	// incremental piece of text as it arrives, tagged with its channel. The
	// final models.AIResponse reflects the fully assembled output, including
	// any tool calls. Drivers without a thinking channel never invoke
	// onChunk with ChunkThinking.
	StreamExecute(ctx context.Context, req Request, onChunk func(kind ChunkKind, text string)) (models.AIResponse, error)

	// FormatToolSchemas renders tools into this driver's wire schema format.
	FormatToolSchemas(tools []Tool) (json.RawMessage, error)

	// ParseToolCalls extracts tool calls from a raw provider response. Most
	// drivers populate models.AIResponse.ToolCalls directly during
	// Execute/StreamExecute and never need this separately; it exists for
	// drivers whose wire format defers parsing.
	ParseToolCalls(raw json.RawMessage) ([]models.ToolCall, error)

	// Capabilities reports static properties of the bound model.
	Capabilities() Capabilities

	// CountTokens estimates the token count of a block of text under this
	// driver's tokenizer, used by the Context Filter when a driver exposes a
	// more accurate count than the generic estimator.
	CountTokens(text string) int

	// ContextLimit returns the bound model's context window in tokens.
	ContextLimit() int

	// Disconnect releases any held resources (connection pools, streams).
	// Safe to call on an unconfigured Driver.
	Disconnect() error
}

// ChunkKind distinguishes a streamed delta's channel. The Turn Processor
// forwards content chunks as text_chunk events with kind "content" and
// thinking chunks with kind "thinking"; the two are never concatenated.
type ChunkKind string

const (
	ChunkContent  ChunkKind = "content"
	ChunkThinking ChunkKind = "thinking"
)

// Capabilities describes what a bound Driver supports.
type Capabilities struct {
	SupportsTools     bool
	SupportsVision    bool
	SupportsThinking  bool
	SupportsStreaming bool
}

// Request is everything a Driver needs for one model call.
type Request struct {
	System    string
	Messages  []models.ChatMessage
	Tools     []Tool
	MaxTokens int
}

// Tool is the Backend-Driver-facing tool definition passed to
// FormatToolSchemas. It mirrors the subset of a tool's identity the model
// needs to decide when to call it; execution is the Tool Dispatcher's
// concern, not the Driver's.
type Tool struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ToolResult is a tool's execution outcome in the shape a Driver serializes
// back onto the wire as a tool-result message.
type ToolResult struct {
	Content   string     `json:"content"`
	IsError   bool       `json:"is_error,omitempty"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// Artifact is a file or media payload produced by a tool execution.
type Artifact struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	MimeType string `json:"mime_type"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
}

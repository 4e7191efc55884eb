package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loomrun/loom/internal/agent"
	agentcontext "github.com/loomrun/loom/internal/agent/context"
	"github.com/loomrun/loom/internal/loomerr"
	"github.com/loomrun/loom/pkg/models"
)

// OllamaConfig configures the Ollama driver.
type OllamaConfig struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration
}

// Ollama is the Backend Driver for a local Ollama server's line-delimited
// JSON streaming chat API — a distinct wire format from both the Anthropic
// and OpenAI SDKs, so this driver speaks raw HTTP rather than wrapping a
// client library.
type Ollama struct {
	Base
	client       *http.Client
	baseURL      string
	defaultModel string
	cfg          models.NormalizedModelConfig
}

// NewOllama constructs an unconfigured Ollama driver.
func NewOllama(cfg OllamaConfig) *Ollama {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Ollama{
		Base:         NewBase("ollama"),
		client:       &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		defaultModel: strings.TrimSpace(cfg.DefaultModel),
	}
}

// WithConfig returns a bound copy of the driver.
func (o *Ollama) WithConfig(cfg models.NormalizedModelConfig) agent.Driver {
	bound := *o
	bound.cfg = cfg
	return &bound
}

func (o *Ollama) model() string {
	if o.cfg.Model != "" {
		return o.cfg.Model
	}
	return o.defaultModel
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Tools    []ollamaTool        `json:"tools,omitempty"`
	Stream   bool                `json:"stream"`
	Options  map[string]any      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content,omitempty"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
	ToolName  string           `json:"tool_name,omitempty"`
}

type ollamaChatResponse struct {
	Message         *ollamaChatMessage `json:"message"`
	Done            bool               `json:"done"`
	Error           string             `json:"error"`
	EvalCount       int                `json:"eval_count"`
	PromptEvalCount int                `json:"prompt_eval_count"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolCall struct {
	ID       string             `json:"id,omitempty"`
	Type     string             `json:"type,omitempty"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func (o *Ollama) buildPayload(req agent.Request, stream bool) ollamaChatRequest {
	payload := ollamaChatRequest{
		Model:    o.model(),
		Stream:   stream,
		Messages: o.convertMessages(req.Messages, req.System),
	}
	if len(req.Tools) > 0 {
		payload.Tools = o.convertTools(req.Tools)
	}
	if o.cfg.MaxTokens > 0 {
		payload.Options = map[string]any{"num_predict": o.cfg.MaxTokens}
	}
	return payload
}

func (o *Ollama) do(ctx context.Context, payload ollamaChatRequest) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, loomerr.NewInternalError("marshal ollama request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, o.wrapError(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, o.wrapError(err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, loomerr.NewBackendError(o.Name(), o.model(), loomerr.ClassifyBackendStatus(resp.StatusCode),
			fmt.Errorf("ollama status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))))
	}
	return resp, nil
}

// Execute performs a single non-streaming call by draining the stream.
func (o *Ollama) Execute(ctx context.Context, req agent.Request) (models.AIResponse, error) {
	resp, err := o.do(ctx, o.buildPayload(req, false))
	if err != nil {
		return models.AIResponse{}, err
	}
	return o.consume(ctx, resp.Body, nil)
}

// StreamExecute performs a streaming call, forwarding text deltas to onChunk.
func (o *Ollama) StreamExecute(ctx context.Context, req agent.Request, onChunk func(kind agent.ChunkKind, text string)) (models.AIResponse, error) {
	resp, err := o.do(ctx, o.buildPayload(req, true))
	if err != nil {
		return models.AIResponse{}, err
	}
	return o.consume(ctx, resp.Body, onChunk)
}

func (o *Ollama) consume(ctx context.Context, body io.ReadCloser, onChunk func(kind agent.ChunkKind, text string)) (models.AIResponse, error) {
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var text strings.Builder
	var toolCalls []models.ToolCall
	emitted := map[string]struct{}{}
	usage := models.TokenUsage{}
	finish := models.FinishStop

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return models.AIResponse{}, o.wrapError(ctx.Err())
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			return models.AIResponse{}, loomerr.NewInternalError("decode ollama response", err)
		}
		if chunk.Error != "" {
			return models.AIResponse{}, o.wrapError(fmt.Errorf("%s", chunk.Error))
		}
		if chunk.Message != nil {
			if chunk.Message.Content != "" {
				text.WriteString(chunk.Message.Content)
				if onChunk != nil {
					onChunk(agent.ChunkContent, chunk.Message.Content)
				}
			}
			for _, tc := range chunk.Message.ToolCalls {
				callID := strings.TrimSpace(tc.ID)
				if callID == "" {
					callID = uuid.NewString()
				}
				if _, ok := emitted[callID]; ok {
					continue
				}
				emitted[callID] = struct{}{}
				args := tc.Function.Arguments
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				toolCalls = append(toolCalls, models.ToolCall{
					ID:        callID,
					Name:      strings.TrimSpace(tc.Function.Name),
					Arguments: args,
				})
				finish = models.FinishToolCalls
			}
		}
		if chunk.Done {
			usage = models.TokenUsage{InputTokens: chunk.PromptEvalCount, OutputTokens: chunk.EvalCount}
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return models.AIResponse{}, loomerr.NewInternalError("read ollama stream", err)
	}

	return models.AIResponse{
		Content:      text.String(),
		Model:        o.model(),
		TokensUsed:   usage,
		FinishReason: finish,
		ToolCalls:    toolCalls,
	}, nil
}

func (o *Ollama) convertMessages(messages []models.ChatMessage, system string) []ollamaChatMessage {
	result := make([]ollamaChatMessage, 0, len(messages)+1)
	toolNames := map[string]string{}
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID != "" && tc.Name != "" {
				toolNames[tc.ID] = tc.Name
			}
		}
	}
	if system != "" {
		result = append(result, ollamaChatMessage{Role: "system", Content: system})
	}
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleAssistant:
			out := ollamaChatMessage{Role: "assistant", Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if len(args) == 0 {
					args = json.RawMessage(`{}`)
				}
				out.ToolCalls = append(out.ToolCalls, ollamaToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: ollamaToolFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			result = append(result, out)
		case models.RoleTool:
			result = append(result, ollamaChatMessage{
				Role:     "tool",
				Content:  msg.Content,
				ToolName: toolNames[msg.ToolCallID],
			})
		case models.RoleSystem:
			result = append(result, ollamaChatMessage{Role: "system", Content: msg.Content})
		default:
			result = append(result, ollamaChatMessage{Role: "user", Content: msg.Content})
		}
	}
	return result
}

func (o *Ollama) convertTools(tools []agent.Tool) []ollamaTool {
	result := make([]ollamaTool, 0, len(tools))
	for _, tool := range tools {
		result = append(result, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:      tool.Name,
				Arguments: tool.Schema,
			},
		})
	}
	return result
}

// FormatToolSchemas renders tools into Ollama's function-calling wire format.
func (o *Ollama) FormatToolSchemas(tools []agent.Tool) (json.RawMessage, error) {
	return json.Marshal(o.convertTools(tools))
}

// ParseToolCalls unmarshals a raw Ollama tool_calls array.
func (o *Ollama) ParseToolCalls(raw json.RawMessage) ([]models.ToolCall, error) {
	var calls []ollamaToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, err
	}
	result := make([]models.ToolCall, 0, len(calls))
	for _, c := range calls {
		result = append(result, models.ToolCall{ID: c.ID, Name: c.Function.Name, Arguments: c.Function.Arguments})
	}
	return result, nil
}

// Capabilities reports Ollama's static capabilities. Vision and thinking
// support vary by locally pulled model, so both are reported false; the
// conservative default avoids advertising a capability the bound model may
// not have.
func (o *Ollama) Capabilities() agent.Capabilities {
	return agent.Capabilities{SupportsTools: true, SupportsStreaming: true}
}

// CountTokens falls back to the generic estimator; Ollama exposes no local
// tokenizer over its HTTP API.
func (o *Ollama) CountTokens(text string) int {
	return len(text) / 4
}

// ContextLimit returns a conservative default; local models vary widely and
// Ollama's API does not report a model's context window. The registered
// table catches common pulls (llama3.1, mixtral, ...) by tag prefix.
func (o *Ollama) ContextLimit() int {
	if o.cfg.ContextLength > 0 {
		return o.cfg.ContextLength
	}
	if tokens, ok := agentcontext.ContextWindowForModel(o.model()); ok {
		return tokens
	}
	return 8192
}

// Disconnect is a no-op: the Ollama driver holds no long-lived connections.
func (o *Ollama) Disconnect() error { return nil }

func (o *Ollama) wrapError(err error) error {
	return loomerr.NewBackendError(o.Name(), o.model(), loomerr.ClassifyBackendError(err), err)
}

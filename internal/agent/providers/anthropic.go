package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/loomrun/loom/internal/agent"
	agentcontext "github.com/loomrun/loom/internal/agent/context"
	"github.com/loomrun/loom/internal/loomerr"
	"github.com/loomrun/loom/pkg/models"
)

// AnthropicConfig configures the Anthropic driver.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Anthropic is the Backend Driver for Anthropic's Claude API.
type Anthropic struct {
	Base
	client       anthropic.Client
	defaultModel string
	cfg          models.NormalizedModelConfig
}

// NewAnthropic constructs an unconfigured Anthropic driver.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, loomerr.NewValidationError("api_key", "anthropic driver requires an API key")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "claude-sonnet-4-20250514"
	}

	return &Anthropic{
		Base:         NewBase("anthropic"),
		client:       anthropic.NewClient(opts...),
		defaultModel: defaultModel,
	}, nil
}

// WithConfig returns a bound copy of the driver.
func (a *Anthropic) WithConfig(cfg models.NormalizedModelConfig) agent.Driver {
	bound := *a
	bound.cfg = cfg
	return &bound
}

func (a *Anthropic) model() string {
	if a.cfg.Model != "" {
		return a.cfg.Model
	}
	return a.defaultModel
}

func (a *Anthropic) maxTokens() int64 {
	if a.cfg.MaxTokens > 0 {
		return int64(a.cfg.MaxTokens)
	}
	return 4096
}

func (a *Anthropic) buildParams(req agent.Request) (anthropic.MessageNewParams, error) {
	messages, err := a.convertMessages(req.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model()),
		Messages:  messages,
		MaxTokens: a.maxTokens(),
	}
	if a.cfg.Temperature != 0 {
		params.Temperature = anthropic.Float(a.cfg.Temperature)
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		tools, err := a.convertTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

// Execute performs a single non-streaming call.
func (a *Anthropic) Execute(ctx context.Context, req agent.Request) (models.AIResponse, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return models.AIResponse{}, err
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return models.AIResponse{}, a.wrapError(err)
	}

	return a.assembleResponse(msg), nil
}

// StreamExecute performs a streaming call, forwarding text and thinking
// deltas to onChunk on their respective channels.
func (a *Anthropic) StreamExecute(ctx context.Context, req agent.Request, onChunk func(kind agent.ChunkKind, text string)) (models.AIResponse, error) {
	params, err := a.buildParams(req)
	if err != nil {
		return models.AIResponse{}, err
	}

	stream := a.client.Messages.NewStreaming(ctx, params)

	var text strings.Builder
	var thinking strings.Builder
	var toolCalls []models.ToolCall
	var currentTool *models.ToolCall
	var currentInput strings.Builder
	inThinkingBlock := false
	var usage models.TokenUsage
	finish := models.FinishStop

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			usage.InputTokens = int(ms.Message.Usage.InputTokens)
		case "content_block_start":
			cb := event.AsContentBlockStart().ContentBlock
			switch cb.Type {
			case "thinking":
				inThinkingBlock = true
			case "tool_use":
				tu := cb.AsToolUse()
				currentTool = &models.ToolCall{ID: tu.ID, Name: tu.Name}
				currentInput.Reset()
			}
		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					text.WriteString(delta.Text)
					if onChunk != nil {
						onChunk(agent.ChunkContent, delta.Text)
					}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					thinking.WriteString(delta.Thinking)
					if onChunk != nil {
						onChunk(agent.ChunkThinking, delta.Thinking)
					}
				}
			case "input_json_delta":
				currentInput.WriteString(delta.PartialJSON)
			}
		case "content_block_stop":
			if inThinkingBlock {
				inThinkingBlock = false
			} else if currentTool != nil {
				currentTool.Arguments = json.RawMessage(currentInput.String())
				toolCalls = append(toolCalls, *currentTool)
				currentTool = nil
				finish = models.FinishToolCalls
			}
		case "message_delta":
			md := event.AsMessageDelta()
			usage.OutputTokens = int(md.Usage.OutputTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return models.AIResponse{}, a.wrapError(err)
	}

	return models.AIResponse{
		Content:      text.String(),
		Model:        a.model(),
		TokensUsed:   usage,
		FinishReason: finish,
		ToolCalls:    toolCalls,
		Thinking:     thinking.String(),
	}, nil
}

func (a *Anthropic) assembleResponse(msg *anthropic.Message) models.AIResponse {
	var text strings.Builder
	var toolCalls []models.ToolCall
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.AsText().Text)
		case "tool_use":
			tu := block.AsToolUse()
			toolCalls = append(toolCalls, models.ToolCall{
				ID:        tu.ID,
				Name:      tu.Name,
				Arguments: json.RawMessage(tu.Input),
			})
		}
	}

	finish := models.FinishStop
	if len(toolCalls) > 0 {
		finish = models.FinishToolCalls
	} else if string(msg.StopReason) == "max_tokens" {
		finish = models.FinishLength
	}

	return models.AIResponse{
		Content: text.String(),
		Model:   string(msg.Model),
		TokensUsed: models.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
		FinishReason: finish,
		ToolCalls:    toolCalls,
	}
}

func (a *Anthropic) convertMessages(messages []models.ChatMessage) ([]anthropic.MessageParam, error) {
	var result []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Role == models.RoleSystem {
			continue
		}

		var content []anthropic.ContentBlockParamUnion
		if msg.Content != "" {
			content = append(content, anthropic.NewTextBlock(msg.Content))
		}
		if msg.Role == models.RoleTool {
			content = append(content, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
		}
		for _, call := range msg.ToolCalls {
			var input map[string]any
			if len(call.Arguments) > 0 {
				if err := json.Unmarshal(call.Arguments, &input); err != nil {
					return nil, loomerr.NewInternalError("invalid tool call arguments", err)
				}
			}
			content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
		}

		if len(content) == 0 {
			continue
		}

		if msg.Role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(content...))
		} else {
			result = append(result, anthropic.NewUserMessage(content...))
		}
	}
	return result, nil
}

func (a *Anthropic) convertTools(tools []agent.Tool) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			return nil, loomerr.NewInternalError(fmt.Sprintf("invalid tool schema for %s", tool.Name), err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool != nil {
			param.OfTool.Description = anthropic.String(tool.Description)
		}
		result = append(result, param)
	}
	return result, nil
}

// FormatToolSchemas renders tools into Anthropic's wire schema format.
func (a *Anthropic) FormatToolSchemas(tools []agent.Tool) (json.RawMessage, error) {
	converted, err := a.convertTools(tools)
	if err != nil {
		return nil, err
	}
	return json.Marshal(converted)
}

// ParseToolCalls is a no-op path: Execute/StreamExecute already populate
// models.AIResponse.ToolCalls directly from the SDK's typed content blocks.
func (a *Anthropic) ParseToolCalls(raw json.RawMessage) ([]models.ToolCall, error) {
	var calls []models.ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}

// Capabilities reports Claude's static capabilities.
func (a *Anthropic) Capabilities() agent.Capabilities {
	return agent.Capabilities{
		SupportsTools:     true,
		SupportsVision:    true,
		SupportsThinking:  true,
		SupportsStreaming: true,
	}
}

// CountTokens falls back to the generic estimator; Anthropic's SDK does not
// expose a local tokenizer.
func (a *Anthropic) CountTokens(text string) int {
	return len(text) / 4
}

// ContextLimit returns the bound model's context window: an explicit
// override, then the registered window for the model, then a 200000-token
// default for unrecognized Claude models.
func (a *Anthropic) ContextLimit() int {
	if a.cfg.ContextLength > 0 {
		return a.cfg.ContextLength
	}
	if tokens, ok := agentcontext.ContextWindowForModel(a.model()); ok {
		return tokens
	}
	return 200000
}

// Disconnect is a no-op: the Anthropic SDK client holds no long-lived
// connections to release.
func (a *Anthropic) Disconnect() error { return nil }

func (a *Anthropic) wrapError(err error) error {
	kind := loomerr.ClassifyBackendError(err)
	if apiErr, ok := err.(*anthropic.Error); ok {
		kind = loomerr.ClassifyBackendStatus(apiErr.StatusCode)
	}
	return loomerr.NewBackendError(a.Name(), a.model(), kind, err)
}

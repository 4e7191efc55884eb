package providers

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/loomrun/loom/internal/agent"
	agentcontext "github.com/loomrun/loom/internal/agent/context"
	"github.com/loomrun/loom/internal/loomerr"
	"github.com/loomrun/loom/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI driver (and, via BaseURL, the
// OpenAI-wire-compatible vLLM and HuggingFace TGI drivers).
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// OpenAI is the Backend Driver for OpenAI's Chat Completions API.
type OpenAI struct {
	Base
	client       *openai.Client
	defaultModel string
	cfg          models.NormalizedModelConfig
}

// NewOpenAI constructs an unconfigured OpenAI driver.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, loomerr.NewValidationError("api_key", "openai driver requires an API key")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	defaultModel := cfg.DefaultModel
	if defaultModel == "" {
		defaultModel = "gpt-4o"
	}

	return &OpenAI{
		Base:         NewBase("openai"),
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: defaultModel,
	}, nil
}

// WithConfig returns a bound copy of the driver.
func (o *OpenAI) WithConfig(cfg models.NormalizedModelConfig) agent.Driver {
	bound := *o
	bound.cfg = cfg
	return &bound
}

func (o *OpenAI) model() string {
	if o.cfg.Model != "" {
		return o.cfg.Model
	}
	return o.defaultModel
}

func (o *OpenAI) buildRequest(req agent.Request, stream bool) (openai.ChatCompletionRequest, error) {
	messages, err := o.convertMessages(req.Messages, req.System)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    o.model(),
		Messages: messages,
		Stream:   stream,
	}
	if o.cfg.MaxTokens > 0 {
		chatReq.MaxTokens = o.cfg.MaxTokens
	}
	if o.cfg.Temperature != 0 {
		chatReq.Temperature = float32(o.cfg.Temperature)
	}
	if o.cfg.TopP != 0 {
		chatReq.TopP = float32(o.cfg.TopP)
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = o.convertTools(req.Tools)
	}
	return chatReq, nil
}

// Execute performs a single non-streaming call.
func (o *OpenAI) Execute(ctx context.Context, req agent.Request) (models.AIResponse, error) {
	chatReq, err := o.buildRequest(req, false)
	if err != nil {
		return models.AIResponse{}, err
	}

	resp, err := o.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return models.AIResponse{}, o.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return models.AIResponse{}, loomerr.NewInternalError("openai response had no choices", nil)
	}

	choice := resp.Choices[0]
	return models.AIResponse{
		Content: choice.Message.Content,
		Model:   resp.Model,
		TokensUsed: models.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
		FinishReason: o.convertFinishReason(choice.FinishReason),
		ToolCalls:    o.convertToolCallsFromChoice(choice.Message.ToolCalls),
	}, nil
}

// StreamExecute performs a streaming call, forwarding text deltas to onChunk
// on the content channel. OpenAI's chat-completions wire format has no
// thinking channel, so onChunk is never invoked with agent.ChunkThinking.
func (o *OpenAI) StreamExecute(ctx context.Context, req agent.Request, onChunk func(kind agent.ChunkKind, text string)) (models.AIResponse, error) {
	chatReq, err := o.buildRequest(req, true)
	if err != nil {
		return models.AIResponse{}, err
	}

	stream, err := o.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return models.AIResponse{}, o.wrapError(err)
	}
	defer stream.Close()

	var text strings.Builder
	toolCalls := make(map[int]*models.ToolCall)
	finish := models.FinishStop

	for {
		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			return models.AIResponse{}, o.wrapError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
			if onChunk != nil {
				onChunk(agent.ChunkContent, choice.Delta.Content)
			}
		}
		for _, tc := range choice.Delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			if toolCalls[idx] == nil {
				toolCalls[idx] = &models.ToolCall{}
			}
			if tc.ID != "" {
				toolCalls[idx].ID = tc.ID
			}
			if tc.Function.Name != "" {
				toolCalls[idx].Name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				toolCalls[idx].Arguments = append(toolCalls[idx].Arguments, []byte(tc.Function.Arguments)...)
			}
		}
		if choice.FinishReason != "" {
			finish = o.convertFinishReason(choice.FinishReason)
		}
	}

	var calls []models.ToolCall
	for i := 0; i < len(toolCalls); i++ {
		if tc := toolCalls[i]; tc != nil && tc.ID != "" {
			calls = append(calls, *tc)
		}
	}

	return models.AIResponse{
		Content:      text.String(),
		Model:        o.model(),
		FinishReason: finish,
		ToolCalls:    calls,
	}, nil
}

func (o *OpenAI) convertFinishReason(r openai.FinishReason) models.FinishReason {
	switch r {
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return models.FinishToolCalls
	case openai.FinishReasonLength:
		return models.FinishLength
	case "":
		return models.FinishStop
	default:
		return models.FinishStop
	}
}

func (o *OpenAI) convertToolCallsFromChoice(calls []openai.ToolCall) []models.ToolCall {
	var out []models.ToolCall
	for _, c := range calls {
		out = append(out, models.ToolCall{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: json.RawMessage(c.Function.Arguments),
		})
	}
	return out
}

func (o *OpenAI) convertMessages(messages []models.ChatMessage, system string) ([]openai.ChatCompletionMessage, error) {
	result := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: msg.Content})
		case models.RoleUser:
			result = append(result, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: msg.Content})
		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Content}
			for _, tc := range msg.ToolCalls {
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			result = append(result, oaiMsg)
		case models.RoleTool:
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})
		}
	}
	return result, nil
}

func (o *OpenAI) convertTools(tools []agent.Tool) []openai.Tool {
	result := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.Schema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	return result
}

// FormatToolSchemas renders tools into OpenAI's function-calling wire format.
func (o *OpenAI) FormatToolSchemas(tools []agent.Tool) (json.RawMessage, error) {
	return json.Marshal(o.convertTools(tools))
}

// ParseToolCalls unmarshals a raw OpenAI tool_calls array.
func (o *OpenAI) ParseToolCalls(raw json.RawMessage) ([]models.ToolCall, error) {
	var calls []openai.ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, err
	}
	return o.convertToolCallsFromChoice(calls), nil
}

// Capabilities reports OpenAI's static capabilities.
func (o *OpenAI) Capabilities() agent.Capabilities {
	return agent.Capabilities{SupportsTools: true, SupportsVision: true, SupportsStreaming: true}
}

// CountTokens falls back to the generic estimator.
func (o *OpenAI) CountTokens(text string) int {
	return len(text) / 4
}

// ContextLimit returns the bound model's context window: an explicit
// override, then the registered window for the model, then a
// 128000-token default for unrecognized models (and HuggingFace/vLLM
// endpoints, which wrap this driver).
func (o *OpenAI) ContextLimit() int {
	if o.cfg.ContextLength > 0 {
		return o.cfg.ContextLength
	}
	if tokens, ok := agentcontext.ContextWindowForModel(o.model()); ok {
		return tokens
	}
	return 128000
}

// Disconnect is a no-op: the go-openai client holds no long-lived resources.
func (o *OpenAI) Disconnect() error { return nil }

func (o *OpenAI) wrapError(err error) error {
	if apiErr, ok := err.(*openai.APIError); ok {
		return loomerr.NewBackendError(o.Name(), o.model(), loomerr.ClassifyBackendStatus(apiErr.HTTPStatusCode), err)
	}
	return loomerr.NewBackendError(o.Name(), o.model(), loomerr.ClassifyBackendError(err), err)
}

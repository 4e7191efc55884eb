package providers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/pkg/models"
)

// FakeResponse is one queued reply for Fake.Execute/StreamExecute.
type FakeResponse struct {
	Text      string
	Thinking  string
	ToolCalls []models.ToolCall
	Err       error
}

// Fake is a deterministic Backend Driver for tests: a queue of canned
// responses consumed one per call, falling back to a plain "done" reply
// once exhausted.
type Fake struct {
	Base
	mu        sync.Mutex
	responses []FakeResponse
	calls     int
	caps      agent.Capabilities
	cfg       models.NormalizedModelConfig
}

// NewFake constructs a Fake driver with the given queued responses.
func NewFake(responses ...FakeResponse) *Fake {
	return &Fake{
		Base:      NewBase("fake"),
		responses: responses,
		caps:      agent.Capabilities{SupportsTools: true, SupportsStreaming: true},
	}
}

// WithConfig returns a bound copy; the queue and call count are shared with
// the original so a turn processor rebinding per call still advances
// through the same response sequence.
func (f *Fake) WithConfig(cfg models.NormalizedModelConfig) agent.Driver {
	bound := *f
	bound.cfg = cfg
	return &bound
}

func (f *Fake) next() FakeResponse {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	if idx >= len(f.responses) {
		return FakeResponse{Text: "done"}
	}
	return f.responses[idx]
}

// CallCount reports how many Execute/StreamExecute calls have been made.
func (f *Fake) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Execute returns the next queued response.
func (f *Fake) Execute(ctx context.Context, req agent.Request) (models.AIResponse, error) {
	resp := f.next()
	if resp.Err != nil {
		return models.AIResponse{}, resp.Err
	}
	finish := models.FinishStop
	if len(resp.ToolCalls) > 0 {
		finish = models.FinishToolCalls
	}
	return models.AIResponse{
		Content:      resp.Text,
		Model:        f.model(),
		FinishReason: finish,
		ToolCalls:    resp.ToolCalls,
		Thinking:     resp.Thinking,
	}, nil
}

// StreamExecute returns the next queued response, forwarding its thinking
// (if any) then its full text, each as a single chunk on its own channel.
func (f *Fake) StreamExecute(ctx context.Context, req agent.Request, onChunk func(kind agent.ChunkKind, text string)) (models.AIResponse, error) {
	resp, err := f.Execute(ctx, req)
	if err == nil && onChunk != nil {
		if resp.Thinking != "" {
			onChunk(agent.ChunkThinking, resp.Thinking)
		}
		if resp.Content != "" {
			onChunk(agent.ChunkContent, resp.Content)
		}
	}
	return resp, err
}

func (f *Fake) model() string {
	if f.cfg.Model != "" {
		return f.cfg.Model
	}
	return "fake-model"
}

// FormatToolSchemas marshals tools verbatim; Fake has no wire format of its own.
func (f *Fake) FormatToolSchemas(tools []agent.Tool) (json.RawMessage, error) {
	return json.Marshal(tools)
}

// ParseToolCalls unmarshals a raw []models.ToolCall.
func (f *Fake) ParseToolCalls(raw json.RawMessage) ([]models.ToolCall, error) {
	var calls []models.ToolCall
	if err := json.Unmarshal(raw, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}

// Capabilities returns the driver's configured capabilities (default: tools
// and streaming only). Tests that need vision/thinking set Fake.caps directly.
func (f *Fake) Capabilities() agent.Capabilities { return f.caps }

// WithCapabilities overrides the reported capabilities and returns f.
func (f *Fake) WithCapabilities(caps agent.Capabilities) *Fake {
	f.caps = caps
	return f
}

// CountTokens approximates at 4 characters per token, same as the real drivers.
func (f *Fake) CountTokens(text string) int { return len(text) / 4 }

// ContextLimit returns the bound config's context length, or a 100000 default.
func (f *Fake) ContextLimit() int {
	if f.cfg.ContextLength > 0 {
		return f.cfg.ContextLength
	}
	return 100000
}

// Disconnect is a no-op.
func (f *Fake) Disconnect() error { return nil }

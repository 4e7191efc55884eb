// Package providers implements Backend Drivers for the supported model
// backends: Anthropic, OpenAI, Ollama, vLLM, and HuggingFace.
package providers

// Base holds the identity fields every driver embeds. Turns are
// single-attempt, so there is no retry/backoff state here.
type Base struct {
	name  string
	model string
}

// NewBase constructs a Base with the given driver name.
func NewBase(name string) Base {
	return Base{name: name}
}

// Name returns the driver's identifying name (e.g. "anthropic").
func (b Base) Name() string { return b.name }

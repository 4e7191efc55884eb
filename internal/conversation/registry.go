package conversation

import (
	"fmt"
	"sync"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/internal/loomerr"
)

// DriverRegistry maps an Agent's ai_backend key (ollama|openai|anthropic|
// vllm|huggingface|fake) to its unconfigured Driver instance, constructed
// once at start-up with whatever credentials/base URLs that backend needs.
// It is a name-keyed, mutex-guarded register/lookup table, the same shape
// used elsewhere in this tree for tool registration.
type DriverRegistry struct {
	mu      sync.RWMutex
	drivers map[string]agent.Driver
}

// NewDriverRegistry constructs an empty DriverRegistry.
func NewDriverRegistry() *DriverRegistry {
	return &DriverRegistry{drivers: make(map[string]agent.Driver)}
}

// Register binds a backend key to its unconfigured Driver instance. A
// later call for the same key replaces the earlier one: drivers are
// registered once at start-up, so overwrite-not-error is the convenient
// default for tests that swap in a Fake.
func (r *DriverRegistry) Register(backend string, driver agent.Driver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[backend] = driver
}

// Resolve looks up the unconfigured Driver for an agent's ai_backend.
func (r *DriverRegistry) Resolve(backend string) (agent.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	driver, ok := r.drivers[backend]
	if !ok {
		return nil, loomerr.NewValidationError("ai_backend", fmt.Sprintf("unknown backend %q", backend))
	}
	return driver, nil
}

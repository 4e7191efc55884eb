package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/loomrun/loom/pkg/models"
)

// MemoryAgentStore provides an in-memory AgentStore.
type MemoryAgentStore struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
}

// NewMemoryAgentStore creates an in-memory agent store.
func NewMemoryAgentStore() *MemoryAgentStore {
	return &MemoryAgentStore{agents: make(map[string]*models.Agent)}
}

func (s *MemoryAgentStore) Create(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.ID]; exists {
		return ErrAlreadyExists
	}
	clone := *agent
	s.agents[agent.ID] = &clone
	return nil
}

func (s *MemoryAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *agent
	return &clone, nil
}

func (s *MemoryAgentStore) List(ctx context.Context, limit, offset int) ([]*models.Agent, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agents := make([]*models.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		clone := *agent
		agents = append(agents, &clone)
	}
	sort.Slice(agents, func(i, j int) bool {
		return agents[i].CreatedAt.After(agents[j].CreatedAt)
	})
	return paginate(agents, limit, offset), len(agents), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

func (s *MemoryAgentStore) Update(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[agent.ID]; !exists {
		return ErrNotFound
	}
	clone := *agent
	s.agents[agent.ID] = &clone
	return nil
}

func (s *MemoryAgentStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[id]; !exists {
		return ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

// MemoryConversationStore provides an in-memory ConversationStore.
type MemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
}

// NewMemoryConversationStore creates an in-memory conversation store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{conversations: make(map[string]*models.Conversation)}
}

func (s *MemoryConversationStore) Create(ctx context.Context, conv *models.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[conv.ID]; exists {
		return ErrAlreadyExists
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *MemoryConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(conv), nil
}

func (s *MemoryConversationStore) Update(ctx context.Context, conv *models.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[conv.ID]; !exists {
		return ErrNotFound
	}
	s.conversations[conv.ID] = cloneConversation(conv)
	return nil
}

func (s *MemoryConversationStore) List(ctx context.Context, agentID string, limit, offset int) ([]*models.Conversation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conversations := make([]*models.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		if agentID != "" && conv.AgentID != agentID {
			continue
		}
		conversations = append(conversations, cloneConversation(conv))
	}
	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastActivityAt.After(conversations[j].LastActivityAt)
	})
	return paginate(conversations, limit, offset), len(conversations), nil
}

func (s *MemoryConversationStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.conversations[id]; !exists {
		return ErrNotFound
	}
	delete(s.conversations, id)
	return nil
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	clone := *c
	clone.Messages = append([]models.ChatMessage(nil), c.Messages...)
	clone.RemainingToolCalls = append([]models.ToolCall(nil), c.RemainingToolCalls...)
	clone.ClientToolSchemas = append([]models.ClientToolSchema(nil), c.ClientToolSchemas...)
	if c.PendingToolRequest != nil {
		pending := *c.PendingToolRequest
		clone.PendingToolRequest = &pending
	}
	if c.ModelConfigSnapshot != nil {
		snap := *c.ModelConfigSnapshot
		clone.ModelConfigSnapshot = &snap
	}
	return &clone
}

// NewMemoryStores constructs a StoreSet backed by memory.
func NewMemoryStores() StoreSet {
	return StoreSet{
		Agents:        NewMemoryAgentStore(),
		Conversations: NewMemoryConversationStore(),
	}
}

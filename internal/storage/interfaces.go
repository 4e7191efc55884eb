// Package storage persists Agents and Conversations. Multi-channel delivery
// and user identity are out of scope, so AgentStore and ConversationStore
// are the only two contracts this package exposes.
package storage

import (
	"context"
	"errors"

	"github.com/loomrun/loom/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// AgentStore persists Agent configurations.
type AgentStore interface {
	Create(ctx context.Context, agent *models.Agent) error
	Get(ctx context.Context, id string) (*models.Agent, error)
	List(ctx context.Context, limit, offset int) ([]*models.Agent, int, error)
	Update(ctx context.Context, agent *models.Agent) error
	Delete(ctx context.Context, id string) error
}

// ConversationStore persists Conversations. Update replaces the stored
// record unconditionally; it is the Turn Processor's per-conversation lease,
// not the store, that guarantees only one writer calls Update for a given
// conversation at a time.
type ConversationStore interface {
	Create(ctx context.Context, conv *models.Conversation) error
	Get(ctx context.Context, id string) (*models.Conversation, error)
	Update(ctx context.Context, conv *models.Conversation) error
	List(ctx context.Context, agentID string, limit, offset int) ([]*models.Conversation, int, error)
	Delete(ctx context.Context, id string) error
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Agents        AgentStore
	Conversations ConversationStore
	closer        func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

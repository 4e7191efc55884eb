package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/loomrun/loom/pkg/models"
)

// NewCockroachStoresFromDSN creates Cockroach-backed stores using a DSN.
func NewCockroachStoresFromDSN(dsn string, config *CockroachConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultCockroachConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	stores := StoreSet{
		Agents:        &cockroachAgentStore{db: db},
		Conversations: &cockroachConversationStore{db: db},
		closer:        db.Close,
	}
	return stores, nil
}

type cockroachAgentStore struct {
	db *sql.DB
}

func (s *cockroachAgentStore) Create(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent is required")
	}
	modelConfig, err := json.Marshal(agent.ModelConfig)
	if err != nil {
		return fmt.Errorf("marshal agent model_config: %w", err)
	}
	contextOptions, err := json.Marshal(agent.ContextOptions)
	if err != nil {
		return fmt.Errorf("marshal agent context_options: %w", err)
	}
	systemPrompts, err := json.Marshal(agent.SystemPrompts)
	if err != nil {
		return fmt.Errorf("marshal agent system_prompts: %w", err)
	}
	contextVariables, err := json.Marshal(agent.ContextVariables)
	if err != nil {
		return fmt.Errorf("marshal agent context_variables: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (
			id, name, description, ai_backend, model_config,
			context_strategy, context_options, context_threshold, max_turns,
			system_prompts, context_variables, client_tool_names,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		agent.ID,
		agent.Name,
		agent.Description,
		agent.AIBackend,
		modelConfig,
		string(agent.ContextStrategy),
		contextOptions,
		agent.ContextThreshold,
		agent.MaxTurns,
		systemPrompts,
		contextVariables,
		pq.Array(agent.ClientToolNames),
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create agent: %w", err)
	}
	return nil
}

func (s *cockroachAgentStore) Get(ctx context.Context, id string) (*models.Agent, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, ai_backend, model_config,
			context_strategy, context_options, context_threshold, max_turns,
			system_prompts, context_variables, client_tool_names,
			created_at, updated_at
		 FROM agents WHERE id = $1`, id)
	agent, err := scanAgent(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	return agent, nil
}

func (s *cockroachAgentStore) List(ctx context.Context, limit, offset int) ([]*models.Agent, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM agents").Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count agents: %w", err)
	}

	var args []any
	limitClause := ""
	if limit > 0 {
		args = append(args, limit)
		limitClause = fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		limitClause += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	query := `SELECT id, name, description, ai_backend, model_config,
			context_strategy, context_options, context_threshold, max_turns,
			system_prompts, context_variables, client_tool_names,
			created_at, updated_at
		FROM agents ORDER BY created_at DESC` + limitClause

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	agents := []*models.Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, agent)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list agents: %w", err)
	}
	return agents, total, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows so scanAgent serves both Get
// and List.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*models.Agent, error) {
	var agent models.Agent
	var contextStrategy string
	var modelConfigBytes, contextOptionsBytes, systemPromptsBytes, contextVariablesBytes []byte
	var clientToolNames []string
	if err := row.Scan(
		&agent.ID,
		&agent.Name,
		&agent.Description,
		&agent.AIBackend,
		&modelConfigBytes,
		&contextStrategy,
		&contextOptionsBytes,
		&agent.ContextThreshold,
		&agent.MaxTurns,
		&systemPromptsBytes,
		&contextVariablesBytes,
		pq.Array(&clientToolNames),
		&agent.CreatedAt,
		&agent.UpdatedAt,
	); err != nil {
		return nil, err
	}
	agent.ContextStrategy = models.ContextStrategy(contextStrategy)
	agent.ClientToolNames = clientToolNames
	if len(modelConfigBytes) > 0 {
		if err := json.Unmarshal(modelConfigBytes, &agent.ModelConfig); err != nil {
			return nil, fmt.Errorf("unmarshal model_config: %w", err)
		}
	}
	if len(contextOptionsBytes) > 0 {
		if err := json.Unmarshal(contextOptionsBytes, &agent.ContextOptions); err != nil {
			return nil, fmt.Errorf("unmarshal context_options: %w", err)
		}
	}
	if len(systemPromptsBytes) > 0 {
		if err := json.Unmarshal(systemPromptsBytes, &agent.SystemPrompts); err != nil {
			return nil, fmt.Errorf("unmarshal system_prompts: %w", err)
		}
	}
	if len(contextVariablesBytes) > 0 {
		if err := json.Unmarshal(contextVariablesBytes, &agent.ContextVariables); err != nil {
			return nil, fmt.Errorf("unmarshal context_variables: %w", err)
		}
	}
	return &agent, nil
}

func (s *cockroachAgentStore) Update(ctx context.Context, agent *models.Agent) error {
	if agent == nil || agent.ID == "" {
		return fmt.Errorf("agent is required")
	}
	modelConfig, err := json.Marshal(agent.ModelConfig)
	if err != nil {
		return fmt.Errorf("marshal agent model_config: %w", err)
	}
	contextOptions, err := json.Marshal(agent.ContextOptions)
	if err != nil {
		return fmt.Errorf("marshal agent context_options: %w", err)
	}
	systemPrompts, err := json.Marshal(agent.SystemPrompts)
	if err != nil {
		return fmt.Errorf("marshal agent system_prompts: %w", err)
	}
	contextVariables, err := json.Marshal(agent.ContextVariables)
	if err != nil {
		return fmt.Errorf("marshal agent context_variables: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents
		 SET name = $1, description = $2, ai_backend = $3, model_config = $4,
		     context_strategy = $5, context_options = $6, context_threshold = $7, max_turns = $8,
		     system_prompts = $9, context_variables = $10, client_tool_names = $11, updated_at = $12
		 WHERE id = $13`,
		agent.Name,
		agent.Description,
		agent.AIBackend,
		modelConfig,
		string(agent.ContextStrategy),
		contextOptions,
		agent.ContextThreshold,
		agent.MaxTurns,
		systemPrompts,
		contextVariables,
		pq.Array(agent.ClientToolNames),
		agent.UpdatedAt,
		agent.ID,
	)
	if err != nil {
		return fmt.Errorf("update agent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update agent rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachAgentStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete agent rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// cockroachConversationStore persists Conversations, storing the complex
// fields (transcript, tool state, config snapshot) as JSON columns following
// the agent store's own config-as-JSON convention above.
type cockroachConversationStore struct {
	db *sql.DB
}

func (s *cockroachConversationStore) Create(ctx context.Context, conv *models.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation is required")
	}
	cols, err := marshalConversationColumns(conv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversations (
			id, agent_id, user_id, messages, status, turn_count, total_tokens,
			pending_tool_request, remaining_tool_calls, client_tool_schemas,
			system_prompt_snapshot, model_config_snapshot,
			last_activity_at, created_at, failure_reason
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		conv.ID,
		conv.AgentID,
		conv.UserID,
		cols.messages,
		string(conv.Status),
		conv.TurnCount,
		conv.TotalTokens,
		cols.pendingToolRequest,
		cols.remainingToolCalls,
		cols.clientToolSchemas,
		conv.SystemPromptSnapshot,
		cols.modelConfigSnapshot,
		conv.LastActivityAt,
		conv.CreatedAt,
		conv.FailureReason,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *cockroachConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, agent_id, user_id, messages, status, turn_count, total_tokens,
			pending_tool_request, remaining_tool_calls, client_tool_schemas,
			system_prompt_snapshot, model_config_snapshot,
			last_activity_at, created_at, failure_reason
		 FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}

func (s *cockroachConversationStore) Update(ctx context.Context, conv *models.Conversation) error {
	if conv == nil || conv.ID == "" {
		return fmt.Errorf("conversation is required")
	}
	cols, err := marshalConversationColumns(conv)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations
		 SET agent_id = $1, user_id = $2, messages = $3, status = $4, turn_count = $5, total_tokens = $6,
		     pending_tool_request = $7, remaining_tool_calls = $8, client_tool_schemas = $9,
		     system_prompt_snapshot = $10, model_config_snapshot = $11,
		     last_activity_at = $12, failure_reason = $13
		 WHERE id = $14`,
		conv.AgentID,
		conv.UserID,
		cols.messages,
		string(conv.Status),
		conv.TurnCount,
		conv.TotalTokens,
		cols.pendingToolRequest,
		cols.remainingToolCalls,
		cols.clientToolSchemas,
		conv.SystemPromptSnapshot,
		cols.modelConfigSnapshot,
		conv.LastActivityAt,
		conv.FailureReason,
		conv.ID,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update conversation rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *cockroachConversationStore) List(ctx context.Context, agentID string, limit, offset int) ([]*models.Conversation, int, error) {
	args := []any{}
	hasAgentFilter := agentID != ""
	if hasAgentFilter {
		args = append(args, agentID)
	}

	countQuery := "SELECT count(*) FROM conversations"
	if hasAgentFilter {
		countQuery = "SELECT count(*) FROM conversations WHERE agent_id = $1"
	}
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count conversations: %w", err)
	}

	argsList := append([]any{}, args...)
	limitClause := ""
	if limit > 0 {
		argsList = append(argsList, limit)
		limitClause = fmt.Sprintf(" LIMIT $%d", len(argsList))
	}
	if offset > 0 {
		argsList = append(argsList, offset)
		limitClause += fmt.Sprintf(" OFFSET $%d", len(argsList))
	}

	var queryBuilder strings.Builder
	queryBuilder.WriteString(`SELECT id, agent_id, user_id, messages, status, turn_count, total_tokens,
		pending_tool_request, remaining_tool_calls, client_tool_schemas,
		system_prompt_snapshot, model_config_snapshot,
		last_activity_at, created_at, failure_reason
		FROM conversations`)
	if hasAgentFilter {
		queryBuilder.WriteString(" WHERE agent_id = $1")
	}
	queryBuilder.WriteString(" ORDER BY last_activity_at DESC")
	queryBuilder.WriteString(limitClause)

	rows, err := s.db.QueryContext(ctx, queryBuilder.String(), argsList...)
	if err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := []*models.Conversation{}
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list conversations: %w", err)
	}
	return conversations, total, nil
}

func (s *cockroachConversationStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// conversationColumns holds the JSON-marshaled form of Conversation's
// composite fields, shared by Create and Update.
type conversationColumns struct {
	messages            []byte
	pendingToolRequest   []byte
	remainingToolCalls   []byte
	clientToolSchemas    []byte
	modelConfigSnapshot  []byte
}

func marshalConversationColumns(conv *models.Conversation) (conversationColumns, error) {
	var cols conversationColumns
	var err error
	if cols.messages, err = json.Marshal(conv.Messages); err != nil {
		return cols, fmt.Errorf("marshal messages: %w", err)
	}
	if conv.PendingToolRequest != nil {
		if cols.pendingToolRequest, err = json.Marshal(conv.PendingToolRequest); err != nil {
			return cols, fmt.Errorf("marshal pending_tool_request: %w", err)
		}
	}
	if cols.remainingToolCalls, err = json.Marshal(conv.RemainingToolCalls); err != nil {
		return cols, fmt.Errorf("marshal remaining_tool_calls: %w", err)
	}
	if cols.clientToolSchemas, err = json.Marshal(conv.ClientToolSchemas); err != nil {
		return cols, fmt.Errorf("marshal client_tool_schemas: %w", err)
	}
	if conv.ModelConfigSnapshot != nil {
		if cols.modelConfigSnapshot, err = json.Marshal(conv.ModelConfigSnapshot); err != nil {
			return cols, fmt.Errorf("marshal model_config_snapshot: %w", err)
		}
	}
	return cols, nil
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var conv models.Conversation
	var status string
	var messagesBytes, pendingToolRequestBytes, remainingToolCallsBytes, clientToolSchemasBytes, modelConfigSnapshotBytes []byte
	if err := row.Scan(
		&conv.ID,
		&conv.AgentID,
		&conv.UserID,
		&messagesBytes,
		&status,
		&conv.TurnCount,
		&conv.TotalTokens,
		&pendingToolRequestBytes,
		&remainingToolCallsBytes,
		&clientToolSchemasBytes,
		&conv.SystemPromptSnapshot,
		&modelConfigSnapshotBytes,
		&conv.LastActivityAt,
		&conv.CreatedAt,
		&conv.FailureReason,
	); err != nil {
		return nil, err
	}
	conv.Status = models.ConversationStatus(status)
	if len(messagesBytes) > 0 {
		if err := json.Unmarshal(messagesBytes, &conv.Messages); err != nil {
			return nil, fmt.Errorf("unmarshal messages: %w", err)
		}
	}
	if len(pendingToolRequestBytes) > 0 {
		var pending models.PendingToolRequest
		if err := json.Unmarshal(pendingToolRequestBytes, &pending); err != nil {
			return nil, fmt.Errorf("unmarshal pending_tool_request: %w", err)
		}
		conv.PendingToolRequest = &pending
	}
	if len(remainingToolCallsBytes) > 0 {
		if err := json.Unmarshal(remainingToolCallsBytes, &conv.RemainingToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshal remaining_tool_calls: %w", err)
		}
	}
	if len(clientToolSchemasBytes) > 0 {
		if err := json.Unmarshal(clientToolSchemasBytes, &conv.ClientToolSchemas); err != nil {
			return nil, fmt.Errorf("unmarshal client_tool_schemas: %w", err)
		}
	}
	if len(modelConfigSnapshotBytes) > 0 {
		var snapshot models.NormalizedModelConfig
		if err := json.Unmarshal(modelConfigSnapshotBytes, &snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal model_config_snapshot: %w", err)
		}
		conv.ModelConfigSnapshot = &snapshot
	}
	return &conv, nil
}

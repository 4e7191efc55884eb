package tooldispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/loomrun/loom/internal/agent"
	"github.com/loomrun/loom/pkg/models"
)

// DocumentIndex is a simple in-memory keyword index over models.Document.
// It deliberately implements substring/keyword matching rather than a
// vector-embedding RAG pipeline: no vector store dependency is wired (see
// DESIGN.md).
type DocumentIndex struct {
	mu        sync.RWMutex
	documents map[string]*models.Document
}

// NewDocumentIndex constructs an empty index.
func NewDocumentIndex() *DocumentIndex {
	return &DocumentIndex{documents: make(map[string]*models.Document)}
}

// Add inserts or replaces a document in the index.
func (idx *DocumentIndex) Add(doc *models.Document) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.documents[doc.ID] = doc
}

// Search scores documents by occurrence count of the lowercased query terms
// in their content, returning the top `limit` matches ordered by score.
func (idx *DocumentIndex) Search(req models.DocumentSearchRequest) models.DocumentSearchResponse {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := strings.Fields(strings.ToLower(req.Query))
	limit := req.Limit
	if limit <= 0 {
		limit = 5
	}

	type scored struct {
		doc   *models.Document
		score float32
	}
	var matches []scored

	for _, doc := range idx.documents {
		if req.Scope == models.DocumentScopeAgent && doc.Metadata.AgentID != req.ScopeID {
			continue
		}
		if req.Scope == models.DocumentScopeConversation && doc.Metadata.ConversationID != req.ScopeID {
			continue
		}
		lower := strings.ToLower(doc.Content)
		var hits int
		for _, term := range terms {
			hits += strings.Count(lower, term)
		}
		if hits == 0 {
			continue
		}
		matches = append(matches, scored{doc: doc, score: float32(hits) / float32(len(terms)+1)})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if len(matches) > limit {
		matches = matches[:limit]
	}

	results := make([]*models.DocumentSearchResult, 0, len(matches))
	for _, m := range matches {
		chunk := &models.DocumentChunk{
			ID:         m.doc.ID + ":0",
			DocumentID: m.doc.ID,
			Content:    excerpt(m.doc.Content, 400),
			Metadata:   ChunkMetadataFrom(m.doc),
		}
		results = append(results, &models.DocumentSearchResult{Chunk: chunk, Score: m.score})
	}

	return models.DocumentSearchResponse{Results: results, TotalCount: len(results)}
}

// ChunkMetadataFrom projects a Document's metadata onto a ChunkMetadata for
// a synthetic whole-document "chunk".
func ChunkMetadataFrom(doc *models.Document) models.ChunkMetadata {
	return models.ChunkMetadata{
		DocumentName:   doc.Name,
		DocumentSource: doc.Source,
		AgentID:        doc.Metadata.AgentID,
		ConversationID: doc.Metadata.ConversationID,
		Tags:           doc.Metadata.Tags,
	}
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// DocumentSearchTool is the document_search built-in server tool: a
// prompt-augmentation hook over an in-memory keyword index. Document
// ingestion and embedding-based RAG are treated as an external collaborator;
// this tool is only the engine-side consumer of whatever index it's handed.
type DocumentSearchTool struct {
	index *DocumentIndex
}

// NewDocumentSearchTool constructs a document_search tool over idx.
func NewDocumentSearchTool(idx *DocumentIndex) *DocumentSearchTool {
	return &DocumentSearchTool{index: idx}
}

func (t *DocumentSearchTool) Name() string { return "document_search" }

func (t *DocumentSearchTool) Description() string {
	return "Search indexed documents for passages relevant to a query."
}

func (t *DocumentSearchTool) Schema() json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search query text.",
			},
			"limit": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (default 5).",
			},
		},
		"required": []string{"query"},
	}
	payload, err := json.Marshal(schema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *DocumentSearchTool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var input struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(params, &input); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("invalid parameters: %v", err), IsError: true}, nil
	}
	if strings.TrimSpace(input.Query) == "" {
		return &agent.ToolResult{Content: "query is required", IsError: true}, nil
	}

	resp := t.index.Search(models.DocumentSearchRequest{Query: input.Query, Limit: input.Limit})
	payload, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("encode results: %v", err), IsError: true}, nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}

// Package outbound defines the interfaces for outbound ports (secondary/driven adapters)
// These are the interfaces that the application uses to interact with external systems
package outbound

import (
	"context"

	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
)

// Message is one chat message sent to the completion service
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionService is the language-model collaborator. Stateless,
// synchronous per call, with no guarantee the reply is valid JSON.
type CompletionService interface {
	Complete(ctx context.Context, messages []Message, temperature float64, system string) (string, error)
}

// MetadataFilter is the filter vocabulary the semantic store honors. Values
// are either a plain value (equality) or a RangeOp. The store is best-effort;
// callers must re-check numeric bounds client-side.
type MetadataFilter map[string]any

// RangeOp expresses a numeric bound in store filter syntax.
type RangeOp struct {
	Lte *float64 `json:"$lte,omitempty"`
	Gte *float64 `json:"$gte,omitempty"`
}

// RetrievalService is the semantic recipe store collaborator. Results are
// metadata-level candidates ranked by relevance; dataset-origin recipes carry
// whatever content the store indexed, which may be incomplete.
type RetrievalService interface {
	Search(ctx context.Context, query string, nResults int, filter MetadataFilter) ([]recipe.Candidate, error)
	SearchByID(ctx context.Context, id string) (*recipe.Candidate, error)
}

// RecipeStore is the relational store consulted opportunistically to enrich
// a semantic hit with authoritative ingredients and steps. Returns nil with
// no error when the id does not resolve to a locally-created recipe.
type RecipeStore interface {
	GetRecipe(ctx context.Context, id string) (*recipe.Candidate, error)
}

// ConversationStore persists the per-session append-only turn log. Unlike the
// other collaborators its failures are not degraded away: a failed read or
// write propagates to the caller.
type ConversationStore interface {
	AppendTurn(ctx context.Context, sessionID string, turn conversation.Turn) error
	History(ctx context.Context, sessionID string, limit int) ([]conversation.Turn, error)
}

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}

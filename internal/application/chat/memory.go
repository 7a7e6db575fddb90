package chat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
	"github.com/cookwise/v1/internal/ports/outbound"
	apperrors "github.com/cookwise/v1/pkg/errors"
)

// Memory is the conversation log for a session: an append-only sequence of
// turns, with assistant turns carrying full recipe snapshots. Unlike every
// other collaborator, store failures here propagate: losing history silently
// would corrupt later context analysis.
type Memory struct {
	store        outbound.ConversationStore
	historyLimit int
	logger       *zap.Logger
}

func NewMemory(store outbound.ConversationStore, historyLimit int, logger *zap.Logger) *Memory {
	if historyLimit < 1 {
		historyLimit = 10
	}
	return &Memory{
		store:        store,
		historyLimit: historyLimit,
		logger:       logger.Named("conversation-memory"),
	}
}

// History returns the most recent turns for the session, oldest first.
func (m *Memory) History(ctx context.Context, sessionID string) ([]conversation.Turn, error) {
	turns, err := m.store.History(ctx, sessionID, m.historyLimit)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load conversation history", err)
	}
	return turns, nil
}

// RecordUserTurn appends the user's message with its detected intent.
func (m *Memory) RecordUserTurn(ctx context.Context, sessionID, text string, intent conversation.Intent) error {
	turn := conversation.Turn{
		Role:           conversation.RoleUser,
		Text:           text,
		DetectedIntent: intent,
		CreatedAt:      time.Now().UTC(),
	}
	if err := m.store.AppendTurn(ctx, sessionID, turn); err != nil {
		return apperrors.NewDatabaseError("append user turn", err)
	}
	return nil
}

// RecordAssistantTurn appends the assistant's reply with snapshots of every
// recipe it surfaced, so later turns can resolve references like "the
// second one" without another retrieval round-trip.
func (m *Memory) RecordAssistantTurn(ctx context.Context, sessionID, text string, recipes []recipe.Candidate) error {
	turn := conversation.Turn{
		Role:            conversation.RoleAssistant,
		Text:            text,
		RecipeSnapshots: recipes,
		CreatedAt:       time.Now().UTC(),
	}
	for _, r := range recipes {
		turn.ReferencedRecipeIDs = append(turn.ReferencedRecipeIDs, r.ID)
	}
	if err := m.store.AppendTurn(ctx, sessionID, turn); err != nil {
		return apperrors.NewDatabaseError("append assistant turn", err)
	}
	m.logger.Debug("Recorded assistant turn",
		zap.String("session_id", sessionID),
		zap.Int("snapshots", len(recipes)))
	return nil
}

package gorm

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/ports/outbound"
)

// ConversationRepository implements the ConversationStore interface using GORM.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) outbound.ConversationStore {
	return &ConversationRepository{db: db}
}

// AppendTurn appends one turn to the session's log.
func (r *ConversationRepository) AppendTurn(ctx context.Context, sessionID string, turn conversation.Turn) error {
	model, err := TurnToModel(sessionID, turn)
	if err != nil {
		return err
	}

	if result := r.db.WithContext(ctx).Create(model); result.Error != nil {
		return fmt.Errorf("failed to append turn: %w", result.Error)
	}
	return nil
}

// History returns the session's most recent turns, oldest first.
func (r *ConversationRepository) History(ctx context.Context, sessionID string, limit int) ([]conversation.Turn, error) {
	var models []TurnModel
	result := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load history: %w", result.Error)
	}

	// Query returns newest first; callers expect chronological order.
	turns := make([]conversation.Turn, len(models))
	for i, model := range models {
		turns[len(models)-1-i] = TurnFromModel(model)
	}
	return turns, nil
}

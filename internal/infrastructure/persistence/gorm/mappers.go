package gorm

import (
	"encoding/json"
	"fmt"

	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
)

// TurnToModel converts a domain turn to its persistence model.
func TurnToModel(sessionID string, turn conversation.Turn) (*TurnModel, error) {
	snapshots, err := json.Marshal(turn.RecipeSnapshots)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recipe snapshots: %w", err)
	}

	return &TurnModel{
		SessionID:      sessionID,
		Role:           string(turn.Role),
		Text:           turn.Text,
		DetectedIntent: string(turn.DetectedIntent),
		ReferencedIDs:  StringSlice(turn.ReferencedRecipeIDs),
		Snapshots:      JSONDocument(snapshots),
		CreatedAt:      turn.CreatedAt,
	}, nil
}

// TurnFromModel converts a persistence model back to a domain turn. Snapshot
// payloads that fail to decode are dropped rather than failing the read; the
// turn text itself is still usable history.
func TurnFromModel(model TurnModel) conversation.Turn {
	turn := conversation.Turn{
		Role:                conversation.Role(model.Role),
		Text:                model.Text,
		DetectedIntent:      conversation.Intent(model.DetectedIntent),
		ReferencedRecipeIDs: model.ReferencedIDs,
		CreatedAt:           model.CreatedAt,
	}
	if len(model.Snapshots) > 0 {
		var snapshots []recipe.Candidate
		if err := json.Unmarshal(model.Snapshots, &snapshots); err == nil {
			turn.RecipeSnapshots = snapshots
		}
	}
	return turn
}

// RecipeToModel converts a domain recipe to its persistence model.
func RecipeToModel(cand recipe.Candidate) (*RecipeModel, error) {
	ingredients, err := json.Marshal(cand.Ingredients)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	steps, err := json.Marshal(cand.Steps)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal steps: %w", err)
	}
	nutrition, err := json.Marshal(cand.Nutrition)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal nutrition: %w", err)
	}

	return &RecipeModel{
		ID:          cand.ID,
		Name:        cand.Name,
		Description: cand.Description,
		Servings:    cand.Servings,
		Ingredients: JSONDocument(ingredients),
		Steps:       JSONDocument(steps),
		Nutrition:   JSONDocument(nutrition),
		Tags:        StringSlice(cand.Tags),
		AIGenerated: cand.HasTag("ai-adapted"),
	}, nil
}

// RecipeFromModel converts a persistence model back to a domain recipe.
func RecipeFromModel(model RecipeModel) recipe.Candidate {
	cand := recipe.Candidate{
		ID:          model.ID,
		Name:        model.Name,
		Description: model.Description,
		Servings:    model.Servings,
		Tags:        model.Tags,
	}
	if len(model.Ingredients) > 0 {
		_ = json.Unmarshal(model.Ingredients, &cand.Ingredients)
	}
	if len(model.Steps) > 0 {
		_ = json.Unmarshal(model.Steps, &cand.Steps)
	}
	if len(model.Nutrition) > 0 {
		_ = json.Unmarshal(model.Nutrition, &cand.Nutrition)
	}
	return cand
}

package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cookwise/v1/internal/domain/recipe"
)

// RecipeRepository implements the RecipeStore interface using GORM. It only
// holds locally-created recipes; dataset recipes live in the semantic store.
type RecipeRepository struct {
	db *gorm.DB
}

// NewRecipeRepository creates a new recipe repository
func NewRecipeRepository(db *gorm.DB) *RecipeRepository {
	return &RecipeRepository{db: db}
}

// GetRecipe returns the recipe, or nil without error when the id does not
// resolve to a locally-created recipe.
func (r *RecipeRepository) GetRecipe(ctx context.Context, id string) (*recipe.Candidate, error) {
	var model RecipeModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load recipe: %w", result.Error)
	}

	cand := RecipeFromModel(model)
	return &cand, nil
}

// SaveRecipe upserts a locally-created recipe.
func (r *RecipeRepository) SaveRecipe(ctx context.Context, cand recipe.Candidate) error {
	model, err := RecipeToModel(cand)
	if err != nil {
		return err
	}

	if result := r.db.WithContext(ctx).Save(model); result.Error != nil {
		return fmt.Errorf("failed to save recipe: %w", result.Error)
	}
	return nil
}

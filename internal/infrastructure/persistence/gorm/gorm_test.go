package gorm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	gormlib "gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
)

func openTestDB(t *testing.T) *gormlib.DB {
	t.Helper()
	db, err := gormlib.Open(sqlite.Open(":memory:"), &gormlib.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&TurnModel{}, &RecipeModel{}))
	return db
}

func testCandidate(id string) recipe.Candidate {
	return recipe.Candidate{
		ID:          id,
		Name:        "Vegan Garlic Pasta",
		Description: "Dairy-free take",
		Servings:    2,
		Ingredients: []recipe.Ingredient{{Name: "garlic", Quantity: 2, Unit: "cloves"}},
		Steps:       []recipe.Step{{StepNumber: 1, Instruction: "Cook gently."}},
		Tags:        []string{"vegan", "modified", "ai-adapted"},
		Nutrition:   recipe.Nutrition{Kcal: 390, Protein: 12, Carbs: 44, Fat: 12},
	}
}

func TestTurnMapperRoundTrip(t *testing.T) {
	turn := conversation.Turn{
		Role:                conversation.RoleAssistant,
		Text:                "Here you go!",
		DetectedIntent:      conversation.IntentRecipeSearch,
		ReferencedRecipeIDs: []string{"r1"},
		RecipeSnapshots:     []recipe.Candidate{testCandidate("r1")},
		CreatedAt:           time.Now().UTC().Truncate(time.Second),
	}

	model, err := TurnToModel("s1", turn)
	require.NoError(t, err)
	back := TurnFromModel(*model)

	assert.Equal(t, turn.Role, back.Role)
	assert.Equal(t, turn.Text, back.Text)
	assert.Equal(t, turn.DetectedIntent, back.DetectedIntent)
	assert.Equal(t, []string{"r1"}, back.ReferencedRecipeIDs)
	require.Len(t, back.RecipeSnapshots, 1)
	assert.Equal(t, "Vegan Garlic Pasta", back.RecipeSnapshots[0].Name)
	assert.Equal(t, 390.0, back.RecipeSnapshots[0].Nutrition.Kcal)
}

func TestConversationRepositoryHistoryOrderAndLimit(t *testing.T) {
	repo := NewConversationRepository(openTestDB(t))
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i, text := range []string{"one", "two", "three"} {
		err := repo.AppendTurn(ctx, "s1", conversation.Turn{
			Role:      conversation.RoleUser,
			Text:      text,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	turns, err := repo.History(ctx, "s1", 2)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "two", turns[0].Text, "history is chronological, trimmed from the front")
	assert.Equal(t, "three", turns[1].Text)

	other, err := repo.History(ctx, "s2", 10)
	require.NoError(t, err)
	assert.Empty(t, other, "sessions are isolated")
}

func TestRecipeRepositoryRoundTrip(t *testing.T) {
	repo := NewRecipeRepository(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.SaveRecipe(ctx, testCandidate("modified_s1_1")))

	cand, err := repo.GetRecipe(ctx, "modified_s1_1")
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "Vegan Garlic Pasta", cand.Name)
	assert.Equal(t, []string{"vegan", "modified", "ai-adapted"}, cand.Tags)
	require.Len(t, cand.Ingredients, 1)

	missing, err := repo.GetRecipe(ctx, "not-there")
	require.NoError(t, err)
	assert.Nil(t, missing, "unknown ids resolve to nil without error")
}

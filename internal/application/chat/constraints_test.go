package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestExtractConstraintsParsesReply(t *testing.T) {
	llm := &scriptedLLM{fallback: `Here you go:
{"dietary": ["vegetarian"], "max_calories": 500, "min_protein": 20, "max_carbs": null, "max_fat": null, "quantity": 2, "included_ingredients": ["tofu"], "excluded_ingredients": ["mushrooms"]}`}
	e := NewConstraintExtractor(llm, zap.NewNop())

	set := e.Extract(context.Background(), "2 vegetarian tofu recipes under 500 calories, no mushrooms, 20g+ protein")

	assert.Equal(t, []string{"vegetarian"}, set.Dietary)
	require.NotNil(t, set.MaxCalories)
	assert.Equal(t, 500.0, *set.MaxCalories)
	require.NotNil(t, set.MinProtein)
	assert.Equal(t, 20.0, *set.MinProtein)
	assert.Nil(t, set.MaxCarbs)
	require.NotNil(t, set.Quantity)
	assert.Equal(t, 2, *set.Quantity)
	assert.Equal(t, []string{"tofu"}, set.IncludedIngredients)
	assert.Equal(t, []string{"mushrooms"}, set.ExcludedIngredients)
}

func TestExtractConstraintsRepairsSloppyNumbers(t *testing.T) {
	llm := &scriptedLLM{fallback: `{"dietary": [], "max_calories": 400-500, "quantity": 2-3, "included_ingredients": [], "excluded_ingredients": [],}`}
	e := NewConstraintExtractor(llm, zap.NewNop())

	set := e.Extract(context.Background(), "a few recipes around 400 calories")

	require.NotNil(t, set.MaxCalories)
	assert.Equal(t, 400.0, *set.MaxCalories)
	require.NotNil(t, set.Quantity)
	assert.Equal(t, 2, *set.Quantity)
}

func TestExtractConstraintsModelFailureIsEmptySet(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("model offline")}
	e := NewConstraintExtractor(llm, zap.NewNop())

	set := e.Extract(context.Background(), "vegan dinner under 600 calories")

	assert.True(t, set.IsEmpty())
}

func TestExtractConstraintsGarbageReplyIsEmptySet(t *testing.T) {
	llm := &scriptedLLM{fallback: "I would love to help but cannot produce JSON today."}
	e := NewConstraintExtractor(llm, zap.NewNop())

	set := e.Extract(context.Background(), "vegan dinner")

	assert.True(t, set.IsEmpty())
}

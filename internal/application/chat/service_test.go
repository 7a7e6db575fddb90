package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/application/planner"
	"github.com/cookwise/v1/internal/application/recommend"
	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
)

type serviceFixture struct {
	svc         *Service
	store       *memStore
	llm         *scriptedLLM
	recommender *fixedRecommender
	planner     *fixedPlanner
	saved       *savedRecipes
}

type savedRecipes struct {
	recipes []recipe.Candidate
	err     error
}

func (s *savedRecipes) SaveRecipe(_ context.Context, cand recipe.Candidate) error {
	if s.err != nil {
		return s.err
	}
	s.recipes = append(s.recipes, cand)
	return nil
}

func newServiceFixture(llm *scriptedLLM) *serviceFixture {
	store := newMemStore()
	logger := zap.NewNop()
	rec := &fixedRecommender{rec: recommend.Recommendation{
		Recipes:     []recipe.Candidate{sampleRecipe("r1", "Garlic Pasta")},
		Explanation: "A great garlicky choice!",
	}}
	pl := &fixedPlanner{}
	saved := &savedRecipes{}
	svc := NewService(
		NewMemory(store, 10, logger),
		NewConstraintExtractor(llm, logger),
		NewContextAnalyzer(llm, 8, 300, logger),
		NewIntentClassifier(llm, logger),
		rec,
		pl,
		saved,
		llm,
		Options{DefaultResults: 3, MaxResults: 10},
		logger,
	)
	return &serviceFixture{svc: svc, store: store, llm: llm, recommender: rec, planner: pl, saved: saved}
}

func TestRespondRecipeSearchRecordsTurns(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("Classify this message", `{"intent": "recipe_search", "confidence": 0.9, "reasoning": "search"}`)
	llm.on("Extract recipe constraints", `{"dietary": [], "included_ingredients": [], "excluded_ingredients": []}`)
	f := newServiceFixture(llm)

	reply, err := f.svc.Respond(context.Background(), "s1", "find me pasta")

	require.NoError(t, err)
	assert.Equal(t, "A great garlicky choice!", reply.Reply)
	require.Len(t, reply.SuggestedRecipes, 1)
	assert.Nil(t, reply.WeeklyMenu)

	turns, err := f.store.History(context.Background(), "s1", 10)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, conversation.RoleUser, turns[0].Role)
	assert.Equal(t, conversation.IntentRecipeSearch, turns[0].DetectedIntent)
	assert.Equal(t, conversation.RoleAssistant, turns[1].Role)
	require.Len(t, turns[1].RecipeSnapshots, 1)
	assert.Equal(t, []string{"r1"}, turns[1].ReferencedRecipeIDs)
}

func TestRespondHistoryErrorPropagates(t *testing.T) {
	llm := &scriptedLLM{}
	f := newServiceFixture(llm)
	f.store.loadErr = errors.New("database down")

	_, err := f.svc.Respond(context.Background(), "s1", "find me pasta")

	require.Error(t, err)
}

func TestRespondURLAnalysisDegrades(t *testing.T) {
	llm := &scriptedLLM{}
	f := newServiceFixture(llm)

	reply, err := f.svc.Respond(context.Background(), "s1", "analyze https://example.com/lasagna")

	require.NoError(t, err)
	assert.Contains(t, reply.Reply, "can't fetch recipe pages")
	assert.Empty(t, reply.SuggestedRecipes)
	assert.Empty(t, f.recommender.queries)
}

func TestRespondWeeklyMenu(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("Classify this message", `{"intent": "weekly_menu", "confidence": 0.95, "reasoning": "meal plan"}`)
	llm.on("menu plan shape", `{"days": ["monday", "tuesday"], "meals": ["dinner"]}`)
	llm.on("Extract recipe constraints", `{"dietary": ["vegetarian"], "included_ingredients": [], "excluded_ingredients": []}`)
	f := newServiceFixture(llm)
	f.planner.menu = []recipe.Candidate{
		sampleRecipe("m1", "Lentil Curry").WithSlot("monday", "dinner"),
		sampleRecipe("m2", "Bean Chili").WithSlot("tuesday", "dinner"),
	}

	reply, err := f.svc.Respond(context.Background(), "s1", "plan vegetarian dinners for monday and tuesday")

	require.NoError(t, err)
	require.Len(t, reply.SuggestedRecipes, 2, "the plan arrives as slot-tagged recipes")
	assert.Equal(t, "monday", reply.SuggestedRecipes[0].DayName)
	assert.Nil(t, reply.WeeklyMenu, "weekly_menu stays null on the wire")
	assert.Contains(t, reply.Reply, "Lentil Curry")
	assert.Contains(t, reply.Reply, "Monday")
	assert.Equal(t, []string{"monday", "tuesday"}, f.planner.last.Days)
	assert.Equal(t, []string{"dinner"}, f.planner.last.Meals)
	assert.Equal(t, []string{"vegetarian"}, f.planner.last.Constraints.Dietary)

	turns, _ := f.store.History(context.Background(), "s1", 10)
	require.Len(t, turns, 2)
	assert.Len(t, turns[1].RecipeSnapshots, 2, "menu recipes snapshot into memory")
}

func TestRespondEmptyMenuApologizes(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("Classify this message", `{"intent": "weekly_menu", "confidence": 0.95, "reasoning": "meal plan"}`)
	llm.on("menu plan shape", `{"days": [], "meals": []}`)
	llm.on("Extract recipe constraints", `{"dietary": [], "included_ingredients": [], "excluded_ingredients": []}`)
	f := newServiceFixture(llm)

	reply, err := f.svc.Respond(context.Background(), "s1", "plan my week")

	require.NoError(t, err)
	assert.Nil(t, reply.WeeklyMenu)
	assert.Contains(t, reply.Reply, "relaxing a constraint")
}

func seedHistory(t *testing.T, f *serviceFixture, sessionID string, recipes ...recipe.Candidate) {
	t.Helper()
	turn := conversation.Turn{
		Role:            conversation.RoleAssistant,
		Text:            "Here are some recipes!",
		RecipeSnapshots: recipes,
		CreatedAt:       time.Now(),
	}
	require.NoError(t, f.store.AppendTurn(context.Background(), sessionID, turn))
}

func TestRespondModificationRewritesRecipe(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("how a new message relates",
		`{"action": "modify_previous", "referenced_items": [{"type": "recipe", "name": "Garlic Pasta", "context_text": "make it vegan"}]}`)
	llm.on("Modify this recipe", `{
		"name": "Vegan Garlic Pasta",
		"description": "Dairy-free take",
		"servings": 2,
		"ingredients": [{"name": "olive oil", "quantity": 1, "unit": "tbsp"}, {"name": "garlic", "quantity": 2, "unit": "cloves"}],
		"steps": [{"step_number": 1, "instruction": "Cook gently without butter."}],
		"nutrition_per_serving": {"kcal": 390, "protein": 12, "carbs": 44, "fat": 12},
		"tags": ["vegan"]
	}`)
	f := newServiceFixture(llm)
	seedHistory(t, f, "s1", sampleRecipe("r1", "Garlic Pasta"))

	reply, err := f.svc.Respond(context.Background(), "s1", "make it vegan")

	require.NoError(t, err)
	require.Len(t, reply.SuggestedRecipes, 1)
	mod := reply.SuggestedRecipes[0]
	assert.Equal(t, "Vegan Garlic Pasta", mod.Name)
	assert.Contains(t, mod.ID, "modified_s1_")
	assert.Contains(t, mod.Tags, "vegan")
	assert.Contains(t, mod.Tags, "modified")
	assert.Contains(t, mod.Tags, "ai-adapted")
	require.Len(t, f.saved.recipes, 1, "adapted recipe persists to the recipe store")
	assert.Equal(t, mod.ID, f.saved.recipes[0].ID)
}

func TestRespondModificationSaveFailureStillReplies(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("how a new message relates",
		`{"action": "modify_previous", "referenced_items": [{"type": "recipe", "name": "Garlic Pasta", "context_text": "make it vegan"}]}`)
	llm.on("Modify this recipe", `{
		"name": "Vegan Garlic Pasta",
		"servings": 2,
		"ingredients": [{"name": "olive oil", "quantity": 1, "unit": "tbsp"}],
		"steps": [{"step_number": 1, "instruction": "Cook."}],
		"nutrition_per_serving": {"kcal": 390, "protein": 12, "carbs": 44, "fat": 12},
		"tags": []
	}`)
	f := newServiceFixture(llm)
	f.saved.err = errors.New("disk full")
	seedHistory(t, f, "s1", sampleRecipe("r1", "Garlic Pasta"))

	reply, err := f.svc.Respond(context.Background(), "s1", "make it vegan")

	require.NoError(t, err, "persistence failure for adapted recipes degrades")
	require.Len(t, reply.SuggestedRecipes, 1)
}

func TestRespondModificationUnparseableApologizes(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("how a new message relates",
		`{"action": "modify_previous", "referenced_items": [{"type": "recipe", "name": "Garlic Pasta", "context_text": "make it vegan"}]}`)
	llm.on("Modify this recipe", "sorry, no JSON from me today")
	f := newServiceFixture(llm)
	seedHistory(t, f, "s1", sampleRecipe("r1", "Garlic Pasta"))

	reply, err := f.svc.Respond(context.Background(), "s1", "make it vegan")

	require.NoError(t, err)
	assert.Contains(t, reply.Reply, "couldn't work out that change")
	assert.Empty(t, reply.SuggestedRecipes)
}

func TestRespondModificationWithoutTargetAsksForClarification(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("how a new message relates", `{"action": "modify_previous", "referenced_items": []}`)
	f := newServiceFixture(llm)
	// History exists but holds no recipe snapshots.
	require.NoError(t, f.store.AppendTurn(context.Background(), "s1", conversation.Turn{
		Role: conversation.RoleAssistant, Text: "Hi!", CreatedAt: time.Now(),
	}))

	reply, err := f.svc.Respond(context.Background(), "s1", "swap the sauce")

	require.NoError(t, err)
	assert.Contains(t, reply.Reply, "not sure which recipe")
}

func TestRespondShowPreviousReplaysSnapshot(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("how a new message relates",
		`{"action": "show_previous", "referenced_items": [{"type": "recipe", "name": "Garlic Pasta", "context_text": "show it again"}]}`)
	f := newServiceFixture(llm)
	seedHistory(t, f, "s1", sampleRecipe("r1", "Garlic Pasta"))

	reply, err := f.svc.Respond(context.Background(), "s1", "show me that pasta again")

	require.NoError(t, err)
	require.Len(t, reply.SuggestedRecipes, 1)
	assert.Equal(t, "r1", reply.SuggestedRecipes[0].ID)
	assert.Contains(t, reply.Reply, "Garlic Pasta")
	assert.Contains(t, reply.Reply, "Ingredients:")
	assert.Empty(t, f.llm.promptsMatching("Modify this recipe"))
}

func TestRespondNutritionAnswersFromSnapshot(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("how a new message relates",
		`{"action": "answer_question", "referenced_items": [{"type": "recipe", "name": "Garlic Pasta", "context_text": "calories?"}]}`)
	llm.on("Classify this message", `{"intent": "nutrition", "confidence": 0.9, "reasoning": "macro question"}`)
	f := newServiceFixture(llm)
	seedHistory(t, f, "s1", sampleRecipe("r1", "Garlic Pasta"))

	reply, err := f.svc.Respond(context.Background(), "s1", "how many calories does it have?")

	require.NoError(t, err)
	assert.Contains(t, reply.Reply, "420 kcal")
	assert.Empty(t, f.recommender.queries, "snapshot answers skip retrieval")
}

func TestRespondIngredientsFallsBackToSearch(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("Classify this message", `{"intent": "ingredients", "confidence": 0.8, "reasoning": "shopping"}`)
	llm.on("Extract recipe constraints", `{"dietary": [], "included_ingredients": [], "excluded_ingredients": []}`)
	f := newServiceFixture(llm)

	reply, err := f.svc.Respond(context.Background(), "s1", "what do I need for a stir fry?")

	require.NoError(t, err)
	assert.Len(t, f.recommender.queries, 1, "no prior recipe means ingredients degrade to search")
	assert.Equal(t, "A great garlicky choice!", reply.Reply)
}

func TestRespondIncludeInNewAugmentsQuery(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("how a new message relates",
		`{"action": "include_in_new", "referenced_items": [{"type": "recipe", "name": "Garlic Pasta", "context_text": "build a meal around it"}]}`)
	llm.on("Extract recipe constraints", `{"dietary": [], "included_ingredients": [], "excluded_ingredients": []}`)
	f := newServiceFixture(llm)
	seedHistory(t, f, "s1", sampleRecipe("r1", "Garlic Pasta"))

	_, err := f.svc.Respond(context.Background(), "s1", "build a dinner around it")

	require.NoError(t, err)
	require.Len(t, f.recommender.queries, 1)
	assert.Contains(t, f.recommender.queries[0], "similar to Garlic Pasta")
}

func TestRespondIncludeInNewWithMenuWordsPlansSlot(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("how a new message relates",
		`{"action": "include_in_new", "referenced_items": [{"type": "recipe", "name": "Grilled Chicken Salad", "context_text": "add it to my menu"}]}`)
	llm.on("menu plan shape", `{"days": ["tuesday"], "meals": ["lunch"]}`)
	llm.on("Extract recipe constraints", `{"dietary": [], "included_ingredients": [], "excluded_ingredients": []}`)
	f := newServiceFixture(llm)
	seedHistory(t, f, "s1",
		sampleRecipe("r1", "Garlic Pasta"),
		sampleRecipe("r2", "Grilled Chicken Salad"))
	f.planner.menu = []recipe.Candidate{
		sampleRecipe("r2", "Grilled Chicken Salad").WithSlot("tuesday", "lunch"),
	}

	reply, err := f.svc.Respond(context.Background(), "s1", "add it to my menu for Tuesday lunch")

	require.NoError(t, err)
	require.Len(t, reply.SuggestedRecipes, 1)
	assert.Nil(t, reply.WeeklyMenu)
	assert.Equal(t, []string{"tuesday"}, f.planner.last.Days)
	assert.Equal(t, []string{"lunch"}, f.planner.last.Meals)
	require.NotEmpty(t, f.planner.last.Referenced)
	assert.Equal(t, "r2", f.planner.last.Referenced[0].ID,
		"the referenced recipe leads the reuse pool")
}

func TestRespondMenuModificationPreservesUntouchedSlots(t *testing.T) {
	llm := &scriptedLLM{}
	llm.on("how a new message relates",
		`{"action": "modify_menu", "referenced_items": [{"type": "menu", "name": "weekly menu", "context_text": "swap wednesday"}]}`)
	llm.on("menu slot changes", `[{"day": "wednesday", "meal": "dinner", "query": "salmon"}]`)
	llm.on("Extract recipe constraints", `{"dietary": [], "included_ingredients": [], "excluded_ingredients": []}`)

	store := newMemStore()
	logger := zap.NewNop()
	rec := &fixedRecommender{rec: recommend.Recommendation{
		Recipes:     []recipe.Candidate{sampleRecipe("s9", "Salmon Teriyaki")},
		Explanation: "Fresh catch!",
	}}
	svc := NewService(
		NewMemory(store, 10, logger),
		NewConstraintExtractor(llm, logger),
		NewContextAnalyzer(llm, 8, 300, logger),
		NewIntentClassifier(llm, logger),
		rec,
		planner.NewService(rec, logger),
		&savedRecipes{},
		llm,
		Options{DefaultResults: 3, MaxResults: 10},
		logger,
	)

	days := []string{"monday", "tuesday", "wednesday", "thursday", "friday"}
	menu := make([]recipe.Candidate, 0, len(days))
	for i, day := range days {
		menu = append(menu, sampleRecipe(fmt.Sprintf("m%d", i+1), titleCase(day)+" Dinner").WithSlot(day, "dinner"))
	}
	seedHistory(t, &serviceFixture{store: store}, "s1", menu...)

	reply, err := svc.Respond(context.Background(), "s1", "swap Wednesday's dinner for something with salmon")

	require.NoError(t, err)
	require.Len(t, reply.SuggestedRecipes, 5)
	assert.Nil(t, reply.WeeklyMenu)
	assert.Contains(t, reply.Reply, "updated menu")
	for _, item := range reply.SuggestedRecipes {
		if item.DayName == "wednesday" {
			assert.Equal(t, "s9", item.ID, "the changed slot holds the fresh recipe")
		} else {
			assert.Contains(t, []string{"m1", "m2", "m4", "m5"}, item.ID,
				"untouched slots keep their prior recipes")
		}
	}
}

func TestResultCountClamping(t *testing.T) {
	f := newServiceFixture(&scriptedLLM{})

	two := 2
	many := 50
	zero := 0
	assert.Equal(t, 3, f.svc.resultCount(conversation.ConstraintSet{}))
	assert.Equal(t, 2, f.svc.resultCount(conversation.ConstraintSet{Quantity: &two}))
	assert.Equal(t, 10, f.svc.resultCount(conversation.ConstraintSet{Quantity: &many}))
	assert.Equal(t, 1, f.svc.resultCount(conversation.ConstraintSet{Quantity: &zero}))
}

func TestLastMenuShape(t *testing.T) {
	history := []conversation.Turn{
		{
			Role: conversation.RoleAssistant,
			RecipeSnapshots: []recipe.Candidate{
				sampleRecipe("m1", "Curry").WithSlot("monday", "dinner"),
				sampleRecipe("m2", "Chili").WithSlot("tuesday", "dinner"),
				sampleRecipe("m3", "Oatmeal").WithSlot("monday", "breakfast"),
			},
		},
	}

	days, meals := lastMenuShape(history)

	assert.Equal(t, []string{"monday", "tuesday"}, days)
	assert.Equal(t, []string{"dinner", "breakfast"}, meals)
}

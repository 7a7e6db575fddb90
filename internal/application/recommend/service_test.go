package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
	"github.com/cookwise/v1/internal/ports/outbound"
)

type stubRetrieval struct {
	results []recipe.Candidate
	err     error

	lastQuery    string
	lastNResults int
	lastFilter   outbound.MetadataFilter
}

func (s *stubRetrieval) Search(_ context.Context, query string, nResults int, filter outbound.MetadataFilter) ([]recipe.Candidate, error) {
	s.lastQuery = query
	s.lastNResults = nResults
	s.lastFilter = filter
	return s.results, s.err
}

func (s *stubRetrieval) SearchByID(_ context.Context, id string) (*recipe.Candidate, error) {
	for i := range s.results {
		if s.results[i].ID == id {
			return &s.results[i], nil
		}
	}
	return nil, nil
}

type stubLLM struct {
	reply string
	err   error
	calls int
}

func (s *stubLLM) Complete(_ context.Context, _ []outbound.Message, _ float64, _ string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubStore struct {
	recipes map[string]*recipe.Candidate
}

func (s *stubStore) GetRecipe(_ context.Context, id string) (*recipe.Candidate, error) {
	if s.recipes == nil {
		return nil, nil
	}
	return s.recipes[id], nil
}

func ptr(v float64) *float64 { return &v }

func makeCandidate(id, name string, kcal, protein float64, tags []string, ingredients ...string) recipe.Candidate {
	ings := make([]recipe.Ingredient, 0, len(ingredients))
	for _, n := range ingredients {
		ings = append(ings, recipe.Ingredient{Name: n, Quantity: 1, Unit: "cup"})
	}
	return recipe.Candidate{
		ID:          id,
		Name:        name,
		Servings:    2,
		Ingredients: ings,
		Steps:       []recipe.Step{{StepNumber: 1, Instruction: "Cook it."}},
		Tags:        tags,
		Nutrition:   recipe.Nutrition{Kcal: kcal, Protein: protein, Carbs: 30, Fat: 10},
	}
}

func newTestService(retrieval *stubRetrieval, llm *stubLLM, store outbound.RecipeStore, opts Options) *Service {
	if opts.Seed == 0 {
		opts.Seed = 42
	}
	return NewService(retrieval, store, llm, opts, zap.NewNop())
}

func TestRecommendAppliesMetadataFilter(t *testing.T) {
	retrieval := &stubRetrieval{results: []recipe.Candidate{
		makeCandidate("r1", "Tofu Bowl", 400, 25, []string{"vegan"}, "tofu", "rice"),
	}}
	llm := &stubLLM{reply: "These fit your macros nicely."}
	svc := newTestService(retrieval, llm, nil, Options{CandidateMultiplier: 5})

	rec := svc.Recommend(context.Background(), "high protein dinner", conversation.ConstraintSet{
		MaxCalories: ptr(500),
		MinProtein:  ptr(20),
	}, 3)

	require.Len(t, rec.Recipes, 1)
	assert.Equal(t, 15, retrieval.lastNResults)
	require.NotNil(t, retrieval.lastFilter)

	cal, ok := retrieval.lastFilter["calories"].(outbound.RangeOp)
	require.True(t, ok)
	require.NotNil(t, cal.Lte)
	assert.Equal(t, 500.0, *cal.Lte)

	prot, ok := retrieval.lastFilter["protein"].(outbound.RangeOp)
	require.True(t, ok)
	require.NotNil(t, prot.Gte)
	assert.Equal(t, 20.0, *prot.Gte)
}

func TestRecommendRetrievalFailureDegrades(t *testing.T) {
	retrieval := &stubRetrieval{err: errors.New("connection refused")}
	llm := &stubLLM{}
	svc := newTestService(retrieval, llm, nil, Options{})

	rec := svc.Recommend(context.Background(), "pasta", conversation.ConstraintSet{}, 3)

	assert.Empty(t, rec.Recipes)
	assert.Contains(t, rec.Explanation, "try again")
	assert.Zero(t, llm.calls, "no explanation call on an empty result")
}

func TestRecommendEmptyAfterFiltering(t *testing.T) {
	retrieval := &stubRetrieval{results: []recipe.Candidate{
		makeCandidate("r1", "Cheese Pizza", 900, 20, nil, "flour", "cheese"),
	}}
	llm := &stubLLM{}
	svc := newTestService(retrieval, llm, nil, Options{})

	rec := svc.Recommend(context.Background(), "light dinner", conversation.ConstraintSet{
		MaxCalories: ptr(500),
	}, 3)

	assert.Empty(t, rec.Recipes)
	assert.Contains(t, rec.Explanation, "relaxing a constraint")
}

func TestApplyFiltersQualityGate(t *testing.T) {
	complete := makeCandidate("r1", "Lentil Soup", 300, 15, nil, "lentils")
	noIngredients := recipe.Candidate{
		ID:    "r2",
		Name:  "Mystery Dish",
		Steps: []recipe.Step{{StepNumber: 1, Instruction: "?"}},
	}

	out := ApplyFilters([]recipe.Candidate{complete, noIngredients}, conversation.ConstraintSet{})

	require.Len(t, out, 1)
	assert.Equal(t, "r1", out[0].ID)
}

func TestApplyFiltersNutritionRecheck(t *testing.T) {
	within := makeCandidate("r1", "Grilled Tofu", 350, 28, nil, "tofu")
	tooHeavy := makeCandidate("r2", "Fried Rice", 700, 12, nil, "rice", "egg")
	lowProtein := makeCandidate("r3", "Green Salad", 150, 4, nil, "lettuce")

	out := ApplyFilters([]recipe.Candidate{within, tooHeavy, lowProtein}, conversation.ConstraintSet{
		MaxCalories: ptr(500),
		MinProtein:  ptr(20),
	})

	require.Len(t, out, 1)
	assert.Equal(t, "r1", out[0].ID)
}

func TestApplyFiltersExcludedIngredients(t *testing.T) {
	withMushrooms := makeCandidate("r1", "Mushroom Risotto", 450, 12, nil, "arborio rice", "mushrooms")
	without := makeCandidate("r2", "Tomato Risotto", 430, 11, nil, "arborio rice", "tomatoes")

	out := ApplyFilters([]recipe.Candidate{withMushrooms, without}, conversation.ConstraintSet{
		ExcludedIngredients: []string{"mushroom"},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "r2", out[0].ID)
}

func TestApplyFiltersDietaryTagged(t *testing.T) {
	tagged := makeCandidate("r1", "Veggie Curry", 400, 14, []string{"vegetarian"}, "chickpeas")
	meaty := makeCandidate("r2", "Chicken Curry", 450, 30, nil, "chicken breast", "onion")

	out := ApplyFilters([]recipe.Candidate{tagged, meaty}, conversation.ConstraintSet{
		Dietary: []string{"vegetarian"},
	})

	require.Len(t, out, 1)
	assert.Equal(t, "r1", out[0].ID)
}

func TestApplyFiltersDietaryUntaggedWithoutMeatKept(t *testing.T) {
	untagged := makeCandidate("r1", "Bean Chili", 380, 18, nil, "beans", "tomatoes")

	out := ApplyFilters([]recipe.Candidate{untagged}, conversation.ConstraintSet{
		Dietary: []string{"vegan"},
	})

	require.Len(t, out, 1, "no dietary tag and no meat keywords means not asserted, keep")
}

func TestApplyFiltersNonDietaryTagNotAsserted(t *testing.T) {
	untagged := makeCandidate("r1", "Rice Bowl", 380, 18, nil, "rice", "beans")

	out := ApplyFilters([]recipe.Candidate{untagged}, conversation.ConstraintSet{
		Dietary: []string{"gluten-free"},
	})

	require.Len(t, out, 1)
}

func TestRecommendVarietySamplingBounds(t *testing.T) {
	var results []recipe.Candidate
	for i := 0; i < 12; i++ {
		results = append(results, makeCandidate(
			fmt.Sprintf("r%d", i), fmt.Sprintf("Dish %d", i), 300, 15, nil, "rice"))
	}
	retrieval := &stubRetrieval{results: results}
	llm := &stubLLM{reply: "All solid picks."}
	svc := newTestService(retrieval, llm, nil, Options{Seed: 7})

	rec := svc.Recommend(context.Background(), "dinner", conversation.ConstraintSet{}, 3)

	require.Len(t, rec.Recipes, 3)
	// Every pick must come from the top 2n of the ranked list.
	topSix := map[string]bool{}
	for i := 0; i < 6; i++ {
		topSix[results[i].ID] = true
	}
	for _, r := range rec.Recipes {
		assert.True(t, topSix[r.ID], "sampled recipe %s outside top 2n pool", r.ID)
	}
	// The sample keeps relevance order.
	prev := -1
	for _, r := range rec.Recipes {
		var idx int
		_, err := fmt.Sscanf(r.ID, "r%d", &idx)
		require.NoError(t, err)
		assert.Greater(t, idx, prev)
		prev = idx
	}
}

func TestRecommendExplanationFallback(t *testing.T) {
	retrieval := &stubRetrieval{results: []recipe.Candidate{
		makeCandidate("r1", "Tofu Bowl", 400, 25, nil, "tofu"),
	}}
	llm := &stubLLM{err: errors.New("model timeout")}
	svc := newTestService(retrieval, llm, nil, Options{})

	rec := svc.Recommend(context.Background(), "dinner", conversation.ConstraintSet{}, 3)

	require.Len(t, rec.Recipes, 1)
	assert.Equal(t, "Found 1 recipes matching your request! Check out the details below.", rec.Explanation)
}

func TestRecommendRerankFailureKeepsOrder(t *testing.T) {
	retrieval := &stubRetrieval{results: []recipe.Candidate{
		makeCandidate("r1", "First", 300, 15, nil, "rice"),
		makeCandidate("r2", "Second", 310, 16, nil, "rice"),
	}}
	llm := &stubLLM{err: errors.New("model down")}
	svc := newTestService(retrieval, llm, nil, Options{EnableReranking: true})

	rec := svc.Recommend(context.Background(), "dinner", conversation.ConstraintSet{}, 3)

	require.Len(t, rec.Recipes, 2)
	assert.Equal(t, "r1", rec.Recipes[0].ID)
	assert.Equal(t, "r2", rec.Recipes[1].ID)
}

func TestRecommendRerankReorders(t *testing.T) {
	retrieval := &stubRetrieval{results: []recipe.Candidate{
		makeCandidate("r1", "First", 300, 15, nil, "rice"),
		makeCandidate("r2", "Second", 310, 16, nil, "rice"),
	}}
	llm := &stubLLM{reply: `[{"id": "r2", "score": 9}, {"id": "r1", "score": 4}]`}
	svc := newTestService(retrieval, llm, nil, Options{EnableReranking: true})

	rec := svc.Recommend(context.Background(), "dinner", conversation.ConstraintSet{}, 3)

	require.Len(t, rec.Recipes, 2)
	assert.Equal(t, "r2", rec.Recipes[0].ID)
	assert.Equal(t, "r1", rec.Recipes[1].ID)
}

func TestRecommendEnrichesFromStore(t *testing.T) {
	sparse := recipe.Candidate{
		ID:          "local1",
		Name:        "Adapted Curry",
		Ingredients: []recipe.Ingredient{{Name: "curry paste"}},
		Steps:       []recipe.Step{{StepNumber: 1, Instruction: "Simmer."}},
	}
	full := makeCandidate("local1", "Adapted Coconut Curry", 420, 18, []string{"modified"}, "curry paste", "coconut milk")
	retrieval := &stubRetrieval{results: []recipe.Candidate{sparse}}
	store := &stubStore{recipes: map[string]*recipe.Candidate{"local1": &full}}
	llm := &stubLLM{reply: "A custom favorite."}
	svc := newTestService(retrieval, llm, store, Options{})

	rec := svc.Recommend(context.Background(), "curry", conversation.ConstraintSet{}, 3)

	require.Len(t, rec.Recipes, 1)
	assert.Equal(t, "Adapted Coconut Curry", rec.Recipes[0].Name)
	assert.Equal(t, 420.0, rec.Recipes[0].Nutrition.Kcal)
}

func TestTruncateRunesKeepsValidUTF8(t *testing.T) {
	long := strings.Repeat("é", 200)

	got := truncateRunes(long, 120)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 120, utf8.RuneCountInString(got))
	assert.Equal(t, "short", truncateRunes("short", 120))
}

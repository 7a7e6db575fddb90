package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/cookwise/v1/internal/application/planner"
	"github.com/cookwise/v1/internal/application/recommend"
	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
	"github.com/cookwise/v1/internal/ports/outbound"
)

// scriptedLLM answers each completion call by matching the prompt against
// registered fragments, in registration order. Unmatched prompts get the
// fallback reply, or the error if set.
type scriptedLLM struct {
	rules    []llmRule
	fallback string
	err      error
	prompts  []string
}

type llmRule struct {
	fragment string
	reply    string
}

func (s *scriptedLLM) on(fragment, reply string) *scriptedLLM {
	s.rules = append(s.rules, llmRule{fragment: fragment, reply: reply})
	return s
}

func (s *scriptedLLM) promptsMatching(fragment string) []string {
	var out []string
	for _, p := range s.prompts {
		if strings.Contains(p, fragment) {
			out = append(out, p)
		}
	}
	return out
}

func (s *scriptedLLM) Complete(_ context.Context, messages []outbound.Message, _ float64, _ string) (string, error) {
	prompt := messages[len(messages)-1].Content
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	for _, r := range s.rules {
		if strings.Contains(prompt, r.fragment) {
			return r.reply, nil
		}
	}
	return s.fallback, nil
}

// memStore is an in-memory ConversationStore.
type memStore struct {
	mu        sync.Mutex
	turns     map[string][]conversation.Turn
	appendErr error
	loadErr   error
}

func newMemStore() *memStore {
	return &memStore{turns: map[string][]conversation.Turn{}}
}

func (m *memStore) AppendTurn(_ context.Context, sessionID string, turn conversation.Turn) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns[sessionID] = append(m.turns[sessionID], turn)
	return nil
}

func (m *memStore) History(_ context.Context, sessionID string, limit int) ([]conversation.Turn, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.turns[sessionID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]conversation.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

// fixedRecommender returns the same recommendation for every query.
type fixedRecommender struct {
	rec     recommend.Recommendation
	queries []string
}

func (f *fixedRecommender) Recommend(_ context.Context, query string, _ conversation.ConstraintSet, _ int) recommend.Recommendation {
	f.queries = append(f.queries, query)
	out := f.rec
	out.Query = query
	return out
}

// fixedPlanner returns a canned menu and records the request.
type fixedPlanner struct {
	menu []recipe.Candidate
	last planner.Request
}

func (f *fixedPlanner) Plan(_ context.Context, req planner.Request) []recipe.Candidate {
	f.last = req
	return f.menu
}

func sampleRecipe(id, name string) recipe.Candidate {
	return recipe.Candidate{
		ID:       id,
		Name:     name,
		Servings: 2,
		Ingredients: []recipe.Ingredient{
			{Name: "olive oil", Quantity: 1, Unit: "tbsp"},
			{Name: "garlic", Quantity: 2, Unit: "cloves"},
		},
		Steps:     []recipe.Step{{StepNumber: 1, Instruction: "Cook gently."}},
		Tags:      []string{"vegetarian"},
		Nutrition: recipe.Nutrition{Kcal: 420, Protein: 18, Carbs: 40, Fat: 14},
	}
}

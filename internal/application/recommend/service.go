// Package recommend implements the retrieval orchestrator: semantic search,
// constraint filtering, optional re-ranking and a conversational explanation.
package recommend

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/application/llmjson"
	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
	"github.com/cookwise/v1/internal/ports/outbound"
)

// meatKeywords is the negative-keyword list backing vegetarian/vegan checks
// when a candidate carries no explicit dietary tag.
var meatKeywords = []string{
	"chicken", "beef", "pork", "lamb", "turkey", "bacon",
	"ham", "meat", "fish", "salmon", "shrimp", "seafood",
}

const (
	ingredientPreviewCount = 10
	stepPreviewCount       = 3
)

// Recommendation is the orchestrator's result: the final recipe list and a
// natural-language justification. An empty list with an apologetic
// explanation is a valid outcome, not an error.
type Recommendation struct {
	Query       string             `json:"query"`
	Recipes     []recipe.Candidate `json:"recipes"`
	Explanation string             `json:"explanation"`
}

// Options tunes the orchestrator pipeline.
type Options struct {
	// CandidateMultiplier scales n_results for the initial retrieval.
	CandidateMultiplier int
	// EnableReranking turns the LLM re-ranking pass on.
	EnableReranking bool
	// Seed fixes the variety-sampling source; zero means non-deterministic.
	Seed int64
}

// Service orchestrates retrieval, filtering, re-ranking and explanation.
type Service struct {
	retrieval outbound.RetrievalService
	store     outbound.RecipeStore
	llm       outbound.CompletionService
	logger    *zap.Logger

	multiplier int
	rerank     bool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewService creates the orchestrator. store may be nil when no relational
// enrichment source is available.
func NewService(
	retrieval outbound.RetrievalService,
	store outbound.RecipeStore,
	llm outbound.CompletionService,
	opts Options,
	logger *zap.Logger,
) *Service {
	multiplier := opts.CandidateMultiplier
	if multiplier < 1 {
		multiplier = 5
	}
	var src rand.Source
	if opts.Seed != 0 {
		src = rand.NewSource(opts.Seed)
	} else {
		src = rand.NewSource(rand.Int63())
	}
	return &Service{
		retrieval:  retrieval,
		store:      store,
		llm:        llm,
		logger:     logger.Named("recommend-service"),
		multiplier: multiplier,
		rerank:     opts.EnableReranking,
		rng:        rand.New(src),
	}
}

// Recommend retrieves, filters, optionally re-ranks and explains candidate
// recipes for the query. Retrieval and filtering failures degrade to an empty
// result with an apologetic explanation; the method itself never fails.
func (s *Service) Recommend(ctx context.Context, query string, constraints conversation.ConstraintSet, nResults int) Recommendation {
	if nResults < 1 {
		nResults = 1
	}

	s.logger.Info("Building recommendation",
		zap.String("query", query),
		zap.Int("n_results", nResults))

	candidates, err := s.retrieval.Search(ctx, query, nResults*s.multiplier, buildMetadataFilter(constraints))
	if err != nil {
		s.logger.Warn("Semantic retrieval failed", zap.Error(err))
		return Recommendation{
			Query:       query,
			Recipes:     []recipe.Candidate{},
			Explanation: "I'm sorry, I couldn't reach the recipe library just now. Please try again in a moment!",
		}
	}

	candidates = s.enrich(ctx, candidates)
	survivors := ApplyFilters(candidates, constraints)

	s.logger.Info("Filtered candidates",
		zap.Int("retrieved", len(candidates)),
		zap.Int("surviving", len(survivors)))

	if len(survivors) == 0 {
		return Recommendation{
			Query:       query,
			Recipes:     []recipe.Candidate{},
			Explanation: "I'm sorry, I couldn't find any recipes that satisfy all of your requirements. Try relaxing a constraint or two and I'll take another look!",
		}
	}

	if s.rerank {
		survivors = s.rerankCandidates(ctx, query, survivors)
	}

	final := s.sampleForVariety(survivors, nResults)
	explanation := s.explain(ctx, query, final, constraints)

	return Recommendation{Query: query, Recipes: final, Explanation: explanation}
}

// buildMetadataFilter translates numeric constraints into store filter
// syntax. Best-effort only; ApplyFilters re-checks every bound client-side.
func buildMetadataFilter(c conversation.ConstraintSet) outbound.MetadataFilter {
	filter := outbound.MetadataFilter{}
	if c.MaxCalories != nil {
		filter["calories"] = outbound.RangeOp{Lte: c.MaxCalories}
	}
	if c.MinProtein != nil {
		filter["protein"] = outbound.RangeOp{Gte: c.MinProtein}
	}
	if c.MaxCarbs != nil {
		filter["carbs"] = outbound.RangeOp{Lte: c.MaxCarbs}
	}
	if c.MaxFat != nil {
		filter["fat"] = outbound.RangeOp{Lte: c.MaxFat}
	}
	if len(filter) == 0 {
		return nil
	}
	return filter
}

// enrich replaces metadata-only hits with authoritative relational rows when
// the id resolves to a locally-created recipe.
func (s *Service) enrich(ctx context.Context, candidates []recipe.Candidate) []recipe.Candidate {
	if s.store == nil {
		return candidates
	}
	for i := range candidates {
		full, err := s.store.GetRecipe(ctx, candidates[i].ID)
		if err != nil {
			s.logger.Debug("Recipe store lookup failed",
				zap.String("recipe_id", candidates[i].ID),
				zap.Error(err))
			continue
		}
		if full != nil {
			candidates[i] = *full
		}
	}
	return candidates
}

// ApplyFilters runs the quality gate, the client-side nutrition re-check, the
// ingredient-exclusion filter and the dietary filter, in that order.
func ApplyFilters(candidates []recipe.Candidate, c conversation.ConstraintSet) []recipe.Candidate {
	out := make([]recipe.Candidate, 0, len(candidates))
	for _, cand := range candidates {
		if !cand.IsComplete() {
			continue
		}
		if !passesNutrition(cand, c) {
			continue
		}
		if containsExcluded(cand, c.ExcludedIngredients) {
			continue
		}
		if !passesDietary(cand, c.Dietary) {
			continue
		}
		out = append(out, cand)
	}
	return out
}

func passesNutrition(cand recipe.Candidate, c conversation.ConstraintSet) bool {
	n := cand.Nutrition
	if c.MaxCalories != nil && n.Kcal > *c.MaxCalories {
		return false
	}
	if c.MinProtein != nil && n.Protein < *c.MinProtein {
		return false
	}
	if c.MaxCarbs != nil && n.Carbs > *c.MaxCarbs {
		return false
	}
	if c.MaxFat != nil && n.Fat > *c.MaxFat {
		return false
	}
	return true
}

func containsExcluded(cand recipe.Candidate, excluded []string) bool {
	for _, ex := range excluded {
		if strings.TrimSpace(ex) == "" {
			continue
		}
		if cand.ContainsIngredient(ex) {
			return true
		}
	}
	return false
}

// passesDietary requires each requested tag to be carried by the candidate,
// with a negative meat-keyword check standing in for an absent
// vegetarian/vegan tag. For other tags an absent tag counts as "not
// asserted" and the candidate is kept.
func passesDietary(cand recipe.Candidate, dietary []string) bool {
	for _, tag := range dietary {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if cand.HasTag(tag) {
			continue
		}
		if tag == "vegetarian" || tag == "vegan" {
			if containsMeat(cand) {
				return false
			}
		}
	}
	return true
}

func containsMeat(cand recipe.Candidate) bool {
	for _, kw := range meatKeywords {
		if cand.HasTag(kw) || cand.ContainsIngredient(kw) {
			return true
		}
	}
	return false
}

// rerankCandidates asks the model for a relevance score per candidate id and
// sorts by score descending. Ties and unscored candidates keep their original
// retrieval rank. Any failure keeps the retrieval order.
func (s *Service) rerankCandidates(ctx context.Context, query string, candidates []recipe.Candidate) []recipe.Candidate {
	var b strings.Builder
	b.WriteString("Score each recipe for relevance to the request on a 0-10 scale.\n")
	b.WriteString(fmt.Sprintf("Request: %q\n\nRecipes:\n", query))
	for _, cand := range candidates {
		desc := truncateRunes(cand.Description, 120)
		b.WriteString(fmt.Sprintf("- id=%s name=%q description=%q ingredients=%s\n",
			cand.ID, cand.Name, desc, strings.Join(cand.IngredientNames(5), ", ")))
	}
	b.WriteString("\nRespond with ONLY a JSON array: [{\"id\": \"...\", \"score\": 0}]")

	reply, err := s.llm.Complete(ctx, []outbound.Message{{Role: "user", Content: b.String()}}, 0.1, "")
	if err != nil {
		s.logger.Warn("Re-ranking call failed, keeping retrieval order", zap.Error(err))
		return candidates
	}

	entries, err := llmjson.ExtractArray(reply)
	if err != nil {
		s.logger.Warn("Re-ranking reply unparseable, keeping retrieval order", zap.Error(err))
		return candidates
	}

	scores := make(map[string]float64, len(entries))
	for _, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		id, _ := obj["id"].(string)
		score, _ := obj["score"].(float64)
		if id != "" {
			scores[id] = score
		}
	}

	ranked := make([]recipe.Candidate, len(candidates))
	copy(ranked, candidates)
	// Stable sort: equal scores fall back to original retrieval rank.
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].ID] > scores[ranked[j].ID]
	})
	return ranked
}

// sampleForVariety draws nResults uniformly from the top 2×nResults and
// restores relevance order within the sample, so popular queries do not pin
// the identical top-N forever.
func (s *Service) sampleForVariety(candidates []recipe.Candidate, nResults int) []recipe.Candidate {
	if len(candidates) <= nResults {
		return candidates
	}

	poolSize := 2 * nResults
	if poolSize > len(candidates) {
		poolSize = len(candidates)
	}
	pool := candidates[:poolSize]

	s.mu.Lock()
	picked := s.rng.Perm(poolSize)[:nResults]
	s.mu.Unlock()

	// Re-sort the picked indices so the sample keeps the original
	// relevance order rather than the draw order.
	sort.Ints(picked)

	out := make([]recipe.Candidate, 0, nResults)
	for _, idx := range picked {
		out = append(out, pool[idx])
	}
	return out
}

// explain asks the model for a short conversational justification of the
// final set, falling back to a templated sentence.
func (s *Service) explain(ctx context.Context, query string, recipes []recipe.Candidate, c conversation.ConstraintSet) string {
	fallback := fmt.Sprintf("Found %d recipes matching your request! Check out the details below.", len(recipes))

	var b strings.Builder
	b.WriteString(fmt.Sprintf("The user asked: %q\n", query))
	if text := describeConstraints(c); text != "" {
		b.WriteString("Active constraints: " + text + "\n")
	}
	b.WriteString("\nThese recipes were selected:\n")
	for i, cand := range recipes {
		b.WriteString(fmt.Sprintf("\nRecipe %d: %s\n", i+1, cand.Name))
		b.WriteString(fmt.Sprintf("  Servings: %d | %.0f kcal, %.1fg protein, %.1fg carbs, %.1fg fat per serving\n",
			cand.Servings, cand.Nutrition.Kcal, cand.Nutrition.Protein, cand.Nutrition.Carbs, cand.Nutrition.Fat))
		if len(cand.Tags) > 0 {
			tags := cand.Tags
			if len(tags) > 5 {
				tags = tags[:5]
			}
			b.WriteString("  Tags: " + strings.Join(tags, ", ") + "\n")
		}
		if names := cand.IngredientNames(ingredientPreviewCount); len(names) > 0 {
			b.WriteString("  Ingredients: " + strings.Join(names, ", ") + "\n")
		}
		for j, step := range cand.Steps {
			if j == stepPreviewCount {
				break
			}
			b.WriteString(fmt.Sprintf("  Step %d: %s\n", step.StepNumber, truncateRunes(step.Instruction, 100)))
		}
	}
	b.WriteString("\nIn 2-3 friendly sentences, explain why these recipes match the request and which one you'd pick first.")

	reply, err := s.llm.Complete(ctx, []outbound.Message{{Role: "user", Content: b.String()}}, 0.7, "")
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			s.logger.Warn("Explanation generation failed, using template", zap.Error(err))
		}
		return fallback
	}
	return strings.TrimSpace(reply)
}

// truncateRunes shortens s to at most max runes, never splitting a
// multi-byte character.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func describeConstraints(c conversation.ConstraintSet) string {
	var parts []string
	if len(c.Dietary) > 0 {
		parts = append(parts, "dietary: "+strings.Join(c.Dietary, ", "))
	}
	if c.MaxCalories != nil {
		parts = append(parts, fmt.Sprintf("max %.0f kcal per serving", *c.MaxCalories))
	}
	if c.MinProtein != nil {
		parts = append(parts, fmt.Sprintf("at least %.0fg protein", *c.MinProtein))
	}
	if c.MaxCarbs != nil {
		parts = append(parts, fmt.Sprintf("max %.0fg carbs", *c.MaxCarbs))
	}
	if c.MaxFat != nil {
		parts = append(parts, fmt.Sprintf("max %.0fg fat", *c.MaxFat))
	}
	if len(c.ExcludedIngredients) > 0 {
		parts = append(parts, "without "+strings.Join(c.ExcludedIngredients, ", "))
	}
	if len(c.IncludedIngredients) > 0 {
		parts = append(parts, "featuring "+strings.Join(c.IncludedIngredients, ", "))
	}
	return strings.Join(parts, "; ")
}

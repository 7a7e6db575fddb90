// Package planner fills weekly menu slots, reusing recipes the conversation
// already produced before retrieving anything new.
package planner

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/application/recommend"
	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
)

// Recommender is the retrieval orchestrator the planner defers to for slots
// that history cannot fill.
type Recommender interface {
	Recommend(ctx context.Context, query string, constraints conversation.ConstraintSet, nResults int) recommend.Recommendation
}

// Request describes one menu-planning run.
type Request struct {
	Days        []string
	Meals       []string
	Constraints conversation.ConstraintSet
	// PriorRecipes is recency-first recipe history for reuse.
	PriorRecipes []recipe.Candidate
	// Referenced are recipes the user pointed at in this turn. They lead
	// the reuse pool, and name-based meal inference applies only to them;
	// an untagged search hit from earlier in the conversation is never
	// pulled into a menu on its name alone.
	Referenced []recipe.Candidate
	// ExplicitChanges maps a slot key to a fresh search query, e.g.
	// "tuesday|dinner" -> "fish tacos".
	ExplicitChanges map[string]string
}

// SlotKey is the canonical "day|meal" identity of a menu slot.
func SlotKey(day, meal string) string {
	return strings.ToLower(day) + "|" + strings.ToLower(meal)
}

// Service assigns one recipe per requested slot.
type Service struct {
	recommender Recommender
	logger      *zap.Logger
}

func NewService(recommender Recommender, logger *zap.Logger) *Service {
	return &Service{
		recommender: recommender,
		logger:      logger.Named("menu-planner"),
	}
}

// slot tracks one day+meal cell while the plan is being filled.
type slot struct {
	day      string
	meal     string
	assigned *recipe.Candidate
}

// Plan fills every requested slot, in calendar order, each with a distinct
// recipe. Resolution order per slot: explicit change, then precise reuse
// (same day and meal in history), then loose reuse (matching meal type),
// then deferred fresh retrieval batched per meal type. Slots that still
// cannot be filled are omitted rather than padded.
func (s *Service) Plan(ctx context.Context, req Request) []recipe.Candidate {
	days := req.Days
	if len(days) == 0 {
		days = conversation.DefaultDays
	}
	meals := req.Meals
	if len(meals) == 0 {
		meals = conversation.DefaultMeals
	}

	pool, inferrable := reusePool(req.Referenced, req.PriorRecipes)

	s.logger.Info("Planning weekly menu",
		zap.Strings("days", days),
		zap.Strings("meals", meals),
		zap.Int("prior_recipes", len(pool)),
		zap.Int("referenced", len(req.Referenced)),
		zap.Int("explicit_changes", len(req.ExplicitChanges)))

	slots := make([]*slot, 0, len(days)*len(meals))
	for _, day := range days {
		for _, meal := range meals {
			slots = append(slots, &slot{day: day, meal: meal})
		}
	}

	used := map[string]bool{}
	deferred := map[string][]*slot{}

	for _, sl := range slots {
		if query, ok := req.ExplicitChanges[SlotKey(sl.day, sl.meal)]; ok {
			if cand := s.retrieveOne(ctx, query, sl.meal, req.Constraints, used); cand != nil {
				s.assign(sl, cand, used)
				continue
			}
			s.logger.Warn("Explicit change found no replacement, falling back to reuse",
				zap.String("slot", SlotKey(sl.day, sl.meal)),
				zap.String("query", query))
		}
		if cand := preciseReuse(sl, pool, used); cand != nil {
			s.assign(sl, cand, used)
			continue
		}
		if cand := looseReuse(sl, pool, inferrable, used); cand != nil {
			s.assign(sl, cand, used)
			continue
		}
		deferred[sl.meal] = append(deferred[sl.meal], sl)
	}

	// One retrieval per meal type covers every unfilled slot of that type.
	for meal, empty := range deferred {
		s.fillFresh(ctx, meal, empty, req.Constraints, used)
	}

	menu := make([]recipe.Candidate, 0, len(slots))
	for _, sl := range slots {
		if sl.assigned != nil {
			menu = append(menu, *sl.assigned)
		}
	}

	s.logger.Info("Menu planned",
		zap.Int("requested_slots", len(slots)),
		zap.Int("filled_slots", len(menu)))
	return menu
}

func (s *Service) assign(sl *slot, cand *recipe.Candidate, used map[string]bool) {
	placed := cand.WithSlot(sl.day, sl.meal)
	sl.assigned = &placed
	used[cand.ID] = true
}

// preciseReuse finds an unused prior recipe already pinned to this exact
// day and meal, e.g. a slot carried over from an earlier menu.
func preciseReuse(sl *slot, prior []recipe.Candidate, used map[string]bool) *recipe.Candidate {
	for i := range prior {
		if used[prior[i].ID] {
			continue
		}
		if strings.EqualFold(prior[i].DayName, sl.day) && strings.EqualFold(prior[i].MealType, sl.meal) {
			return &prior[i]
		}
	}
	return nil
}

// reusePool merges referenced recipes ahead of general history, deduplicated
// by id, and records which ids are eligible for name-based meal inference.
func reusePool(referenced, prior []recipe.Candidate) ([]recipe.Candidate, map[string]bool) {
	inferrable := make(map[string]bool, len(referenced))
	pool := make([]recipe.Candidate, 0, len(referenced)+len(prior))
	seen := map[string]bool{}
	for _, r := range referenced {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		inferrable[r.ID] = true
		pool = append(pool, r)
	}
	for _, p := range prior {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		pool = append(pool, p)
	}
	return pool, inferrable
}

// looseReuse finds an unused prior recipe whose meal type fits the slot.
// Untagged recipes fall back to name inference only when the user referenced
// them this turn.
func looseReuse(sl *slot, pool []recipe.Candidate, inferrable, used map[string]bool) *recipe.Candidate {
	for i := range pool {
		if used[pool[i].ID] {
			continue
		}
		mealType := pool[i].MealType
		if mealType == "" && inferrable[pool[i].ID] {
			mealType = conversation.InferMealType(pool[i].Name)
		}
		if strings.EqualFold(mealType, sl.meal) {
			return &pool[i]
		}
	}
	return nil
}

// retrieveOne fetches a single fresh recipe for an explicit slot change.
func (s *Service) retrieveOne(ctx context.Context, query, meal string, constraints conversation.ConstraintSet, used map[string]bool) *recipe.Candidate {
	rec := s.recommender.Recommend(ctx, fmt.Sprintf("%s %s recipe", query, meal), constraints, 3)
	for i := range rec.Recipes {
		if !used[rec.Recipes[i].ID] {
			return &rec.Recipes[i]
		}
	}
	return nil
}

// fillFresh retrieves a batch for one meal type and assigns distinct
// recipes to its empty slots in order. A shortfall leaves trailing slots
// unassigned.
func (s *Service) fillFresh(ctx context.Context, meal string, empty []*slot, constraints conversation.ConstraintSet, used map[string]bool) {
	query := fmt.Sprintf("%s recipes", meal)
	if len(constraints.IncludedIngredients) > 0 {
		query = fmt.Sprintf("%s recipes with %s", meal, strings.Join(constraints.IncludedIngredients, " and "))
	}

	rec := s.recommender.Recommend(ctx, query, constraints, len(empty))
	next := 0
	for _, sl := range empty {
		for next < len(rec.Recipes) && used[rec.Recipes[next].ID] {
			next++
		}
		if next >= len(rec.Recipes) {
			s.logger.Warn("Not enough fresh recipes for meal type, omitting slot",
				zap.String("slot", SlotKey(sl.day, sl.meal)))
			continue
		}
		s.assign(sl, &rec.Recipes[next], used)
		next++
	}
}

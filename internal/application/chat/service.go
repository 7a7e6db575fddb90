package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/application/llmjson"
	"github.com/cookwise/v1/internal/application/planner"
	"github.com/cookwise/v1/internal/application/recommend"
	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
	"github.com/cookwise/v1/internal/ports/outbound"
)

// Recommender is the retrieval orchestrator as the chat layer sees it.
type Recommender interface {
	Recommend(ctx context.Context, query string, constraints conversation.ConstraintSet, nResults int) recommend.Recommendation
}

// MenuPlanner fills weekly menu slots.
type MenuPlanner interface {
	Plan(ctx context.Context, req planner.Request) []recipe.Candidate
}

// RecipeSaver persists locally-created recipes so later retrieval can
// enrich them. Optional; saving failures degrade because conversation
// snapshots already carry the full recipe.
type RecipeSaver interface {
	SaveRecipe(ctx context.Context, cand recipe.Candidate) error
}

// Reply is the assistant's answer to one message. Weekly plans are delivered
// as slot-tagged recipes in SuggestedRecipes; WeeklyMenu stays null on the
// wire and exists only to keep the response shape stable.
type Reply struct {
	Reply            string             `json:"reply"`
	SuggestedRecipes []recipe.Candidate `json:"suggested_recipes"`
	WeeklyMenu       []recipe.Candidate `json:"weekly_menu"`
}

// Options bounds result counts per request.
type Options struct {
	DefaultResults int
	MaxResults     int
}

// Service is the conversational front door: it analyzes context, classifies
// intent and routes to the matching handler. Collaborator failures inside
// handlers degrade to apologetic replies; only conversation-store failures
// surface as errors.
type Service struct {
	memory      *Memory
	constraints *ConstraintExtractor
	contexts    *ContextAnalyzer
	intents     *IntentClassifier
	recommender Recommender
	planner     MenuPlanner
	recipes     RecipeSaver
	llm         outbound.CompletionService
	logger      *zap.Logger

	defaultResults int
	maxResults     int
}

func NewService(
	memory *Memory,
	constraints *ConstraintExtractor,
	contexts *ContextAnalyzer,
	intents *IntentClassifier,
	recommender Recommender,
	menuPlanner MenuPlanner,
	recipes RecipeSaver,
	llm outbound.CompletionService,
	opts Options,
	logger *zap.Logger,
) *Service {
	if opts.DefaultResults < 1 {
		opts.DefaultResults = 3
	}
	if opts.MaxResults < opts.DefaultResults {
		opts.MaxResults = 10
	}
	return &Service{
		memory:         memory,
		constraints:    constraints,
		contexts:       contexts,
		intents:        intents,
		recommender:    recommender,
		planner:        menuPlanner,
		recipes:        recipes,
		llm:            llm,
		logger:         logger.Named("chat-service"),
		defaultResults: opts.DefaultResults,
		maxResults:     opts.MaxResults,
	}
}

// Respond processes one user message end to end.
func (s *Service) Respond(ctx context.Context, sessionID, message string) (Reply, error) {
	history, err := s.memory.History(ctx, sessionID)
	if err != nil {
		return Reply{}, err
	}

	analysis := s.contexts.Analyze(ctx, message, history)
	classification := s.intents.Classify(ctx, message, analysis)

	s.logger.Info("Routing message",
		zap.String("session_id", sessionID),
		zap.String("intent", string(classification.Intent)),
		zap.String("context_action", string(analysis.Action)),
		zap.Float64("confidence", classification.Confidence))

	if err := s.memory.RecordUserTurn(ctx, sessionID, message, classification.Intent); err != nil {
		return Reply{}, err
	}

	var reply Reply
	switch classification.Intent {
	case conversation.IntentURLAnalysis:
		reply = s.handleURLAnalysis()
	case conversation.IntentWeeklyMenu:
		reply = s.handleWeeklyMenu(ctx, message, analysis, history)
	case conversation.IntentModification:
		reply = s.handleModification(ctx, sessionID, message, analysis, history)
	case conversation.IntentNutrition:
		reply = s.handleNutrition(ctx, message, analysis, history)
	case conversation.IntentIngredients:
		reply = s.handleIngredients(ctx, message, analysis, history)
	default:
		reply = s.handleRecipeSearch(ctx, message, analysis)
	}

	if err := s.memory.RecordAssistantTurn(ctx, sessionID, reply.Reply, reply.SuggestedRecipes); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

func (s *Service) handleURLAnalysis() Reply {
	return Reply{
		Reply: "I can't fetch recipe pages from the web yet. Paste the ingredients " +
			"and steps here and I'll happily work with those, or ask me to find " +
			"something similar from my own collection!",
		SuggestedRecipes: []recipe.Candidate{},
	}
}

// handleRecipeSearch covers plain searches and include_in_new follow-ups,
// where a previously shown recipe is folded into the new request.
func (s *Service) handleRecipeSearch(ctx context.Context, message string, analysis conversation.ContextAnalysis) Reply {
	constraints := s.constraints.Extract(ctx, message)
	query := message

	if analysis.Action == conversation.ActionIncludeInNew {
		for _, ref := range analysis.ReferencedItems {
			if ref.MatchedRecipe == nil {
				continue
			}
			query = fmt.Sprintf("%s, similar to %s", message, ref.MatchedRecipe.Name)
			for _, name := range ref.MatchedRecipe.IngredientNames(3) {
				constraints.IncludedIngredients = append(constraints.IncludedIngredients, name)
			}
			break
		}
	}

	rec := s.recommender.Recommend(ctx, query, constraints, s.resultCount(constraints))
	return Reply{
		Reply:            rec.Explanation,
		SuggestedRecipes: rec.Recipes,
	}
}

func (s *Service) resultCount(constraints conversation.ConstraintSet) int {
	n := s.defaultResults
	if constraints.Quantity != nil {
		n = *constraints.Quantity
	}
	if n < 1 {
		n = 1
	}
	if n > s.maxResults {
		n = s.maxResults
	}
	return n
}

func (s *Service) handleWeeklyMenu(ctx context.Context, message string, analysis conversation.ContextAnalysis, history []conversation.Turn) Reply {
	if analysis.Action == conversation.ActionModifyMenu {
		return s.handleMenuModification(ctx, message, history)
	}

	spec := s.parseMenuSpec(ctx, message)
	constraints := s.constraints.Extract(ctx, message)

	menu := s.planner.Plan(ctx, planner.Request{
		Days:         spec.Days,
		Meals:        spec.Meals,
		Constraints:  constraints,
		PriorRecipes: PriorRecipes(history),
		Referenced:   referencedRecipes(analysis),
	})

	if len(menu) == 0 {
		return Reply{
			Reply: "I'm sorry, I couldn't put a menu together that satisfies all " +
				"of your requirements. Try relaxing a constraint or two!",
			SuggestedRecipes: []recipe.Candidate{},
		}
	}
	return Reply{
		Reply:            formatMenu(menu),
		SuggestedRecipes: menu,
	}
}

// referencedRecipes collects the prior recipes the analysis bound by name.
func referencedRecipes(analysis conversation.ContextAnalysis) []recipe.Candidate {
	var out []recipe.Candidate
	for _, ref := range analysis.ReferencedItems {
		if ref.MatchedRecipe != nil {
			out = append(out, *ref.MatchedRecipe)
		}
	}
	return out
}

// handleModification routes the modify/show family of context actions.
// Menu modifications never land here; modify_menu classifies as weekly_menu.
func (s *Service) handleModification(ctx context.Context, sessionID, message string, analysis conversation.ContextAnalysis, history []conversation.Turn) Reply {
	switch analysis.Action {
	case conversation.ActionShowPrevious, conversation.ActionShowRecipe:
		if target := s.resolveTarget(analysis, history); target != nil {
			return Reply{
				Reply:            formatRecipeDetails(*target),
				SuggestedRecipes: []recipe.Candidate{*target},
			}
		}
	}

	target := s.resolveTarget(analysis, history)
	if target == nil {
		return Reply{
			Reply: "I'm not sure which recipe you'd like me to change. Could you " +
				"name it, or ask me to find some recipes first?",
			SuggestedRecipes: []recipe.Candidate{},
		}
	}
	return s.modifyRecipe(ctx, sessionID, message, *target, len(history))
}

func (s *Service) handleMenuModification(ctx context.Context, message string, history []conversation.Turn) Reply {
	prior := PriorRecipes(history)
	days, meals := lastMenuShape(history)
	changes := s.parseMenuChanges(ctx, message)

	menu := s.planner.Plan(ctx, planner.Request{
		Days:            days,
		Meals:           meals,
		Constraints:     s.constraints.Extract(ctx, message),
		PriorRecipes:    prior,
		ExplicitChanges: changes,
	})

	if len(menu) == 0 {
		return Reply{
			Reply:            "I couldn't rebuild the menu with that change. Could you rephrase it?",
			SuggestedRecipes: []recipe.Candidate{},
		}
	}
	return Reply{
		Reply:            "Here's the updated menu!\n\n" + formatMenu(menu),
		SuggestedRecipes: menu,
	}
}

const modifyPrompt = `Modify this recipe as the user asks.

Recipe:
%s

Request: %q

Respond with ONLY a JSON object for the complete modified recipe:
{
  "name": "...",
  "description": "...",
  "servings": 2,
  "ingredients": [{"name": "...", "quantity": 1, "unit": "cup"}],
  "steps": [{"step_number": 1, "instruction": "..."}],
  "nutrition_per_serving": {"kcal": 0, "protein": 0, "carbs": 0, "fat": 0},
  "tags": []
}
Keep everything the user did not ask to change, and update the nutrition
estimate to match the new ingredients.`

// modifyRecipe asks the model for a complete rewritten recipe and registers
// it under a synthetic session-scoped id.
func (s *Service) modifyRecipe(ctx context.Context, sessionID, message string, target recipe.Candidate, turnCount int) Reply {
	apology := Reply{
		Reply: fmt.Sprintf("I'm sorry, I couldn't work out that change to %s just now. "+
			"Could you try describing it differently?", target.Name),
		SuggestedRecipes: []recipe.Candidate{},
	}

	prompt := fmt.Sprintf(modifyPrompt, formatRecipeDetails(target), message)
	reply, err := s.llm.Complete(ctx, []outbound.Message{{Role: "user", Content: prompt}}, 0.3, "")
	if err != nil {
		s.logger.Warn("Recipe modification call failed", zap.Error(err))
		return apology
	}

	var modified recipe.Candidate
	if err := llmjson.Decode(reply, &modified); err != nil {
		s.logger.Warn("Modified recipe unparseable", zap.Error(err))
		return apology
	}
	if modified.Name == "" {
		modified.Name = target.Name
	}
	if !modified.IsComplete() {
		s.logger.Warn("Modified recipe incomplete, refusing to surface it",
			zap.String("recipe", modified.Name))
		return apology
	}

	modified.ID = fmt.Sprintf("modified_%s_%d", sessionID, turnCount)
	modified.Tags = appendMissing(modified.Tags, "modified", "ai-adapted")

	if s.recipes != nil {
		if err := s.recipes.SaveRecipe(ctx, modified); err != nil {
			// Snapshots in conversation memory still carry the recipe.
			s.logger.Warn("Failed to persist adapted recipe", zap.Error(err))
		}
	}

	return Reply{
		Reply:            fmt.Sprintf("Here's your adapted version of %s!\n\n%s", target.Name, formatRecipeDetails(modified)),
		SuggestedRecipes: []recipe.Candidate{modified},
	}
}

func (s *Service) handleNutrition(ctx context.Context, message string, analysis conversation.ContextAnalysis, history []conversation.Turn) Reply {
	target := s.resolveTarget(analysis, history)
	if target == nil {
		// Nothing to report on; treat it as a search with nutrition framing.
		return s.handleRecipeSearch(ctx, message, analysis)
	}
	n := target.Nutrition
	return Reply{
		Reply: fmt.Sprintf("%s has roughly %.0f kcal per serving: %.1fg protein, %.1fg carbs and %.1fg fat (serves %d).",
			target.Name, n.Kcal, n.Protein, n.Carbs, n.Fat, target.Servings),
		SuggestedRecipes: []recipe.Candidate{*target},
	}
}

func (s *Service) handleIngredients(ctx context.Context, message string, analysis conversation.ContextAnalysis, history []conversation.Turn) Reply {
	target := s.resolveTarget(analysis, history)
	if target == nil {
		return s.handleRecipeSearch(ctx, message, analysis)
	}
	var lines []string
	for _, ing := range target.Ingredients {
		if ing.Quantity > 0 && ing.Unit != "" {
			lines = append(lines, fmt.Sprintf("- %g %s %s", ing.Quantity, ing.Unit, ing.Name))
		} else {
			lines = append(lines, "- "+ing.Name)
		}
	}
	return Reply{
		Reply:            fmt.Sprintf("For %s you'll need:\n%s", target.Name, strings.Join(lines, "\n")),
		SuggestedRecipes: []recipe.Candidate{*target},
	}
}

// resolveTarget picks the recipe a message is about: a bound reference
// first, then the most recently shown recipe.
func (s *Service) resolveTarget(analysis conversation.ContextAnalysis, history []conversation.Turn) *recipe.Candidate {
	for _, ref := range analysis.ReferencedItems {
		if ref.MatchedRecipe != nil {
			return ref.MatchedRecipe
		}
	}
	prior := PriorRecipes(history)
	if len(prior) > 0 {
		return &prior[0]
	}
	return nil
}

const menuSpecPrompt = `Extract the menu plan shape from this request.

Request: %q

Respond with ONLY a JSON object:
{"days": [], "meals": []}

days: lowercase day names the user asked for (empty for "the whole week" or
when unspecified). meals: any of "breakfast", "lunch", "dinner" (empty when
unspecified).`

type menuSpec struct {
	Days  []string `json:"days"`
	Meals []string `json:"meals"`
}

// parseMenuSpec extracts requested days and meals, falling back to scanning
// the message for day and meal words.
func (s *Service) parseMenuSpec(ctx context.Context, message string) menuSpec {
	prompt := fmt.Sprintf(menuSpecPrompt, message)
	reply, err := s.llm.Complete(ctx, []outbound.Message{{Role: "user", Content: prompt}}, 0.1, "")
	if err == nil {
		var spec menuSpec
		if err := llmjson.Decode(reply, &spec); err == nil {
			spec.Days = filterValidDays(spec.Days)
			spec.Meals = filterValidMeals(spec.Meals)
			return spec
		}
	} else {
		s.logger.Warn("Menu spec call failed, scanning message", zap.Error(err))
	}
	return scanMenuSpec(message)
}

func scanMenuSpec(message string) menuSpec {
	lower := strings.ToLower(message)
	var spec menuSpec
	for _, day := range conversation.DaysOfWeek {
		if strings.Contains(lower, strings.ToLower(day)) {
			spec.Days = append(spec.Days, strings.ToLower(day))
		}
	}
	for _, meal := range conversation.MealTypes {
		if strings.Contains(lower, meal) {
			spec.Meals = append(spec.Meals, meal)
		}
	}
	return spec
}

func filterValidDays(days []string) []string {
	var out []string
	for _, d := range days {
		if conversation.IsValidDay(d) {
			out = append(out, strings.ToLower(d))
		}
	}
	return out
}

func filterValidMeals(meals []string) []string {
	var out []string
	for _, m := range meals {
		if conversation.IsValidMeal(m) {
			out = append(out, strings.ToLower(m))
		}
	}
	return out
}

const menuChangesPrompt = `Extract the menu slot changes from this request.

Request: %q

Respond with ONLY a JSON array, one entry per slot the user wants changed:
[{"day": "tuesday", "meal": "dinner", "query": "fish tacos"}]

query is what the new recipe should be. Use "dinner" when no meal is named.`

// parseMenuChanges maps a modification request onto explicit slot changes.
// Unparseable replies yield no explicit changes, which re-plans the menu
// from reuse alone.
func (s *Service) parseMenuChanges(ctx context.Context, message string) map[string]string {
	prompt := fmt.Sprintf(menuChangesPrompt, message)
	reply, err := s.llm.Complete(ctx, []outbound.Message{{Role: "user", Content: prompt}}, 0.1, "")
	if err != nil {
		s.logger.Warn("Menu change call failed, re-planning without explicit changes", zap.Error(err))
		return nil
	}

	var entries []struct {
		Day   string `json:"day"`
		Meal  string `json:"meal"`
		Query string `json:"query"`
	}
	if err := llmjson.Decode(reply, &entries); err != nil {
		s.logger.Warn("Menu change reply unparseable", zap.Error(err))
		return nil
	}

	changes := map[string]string{}
	for _, e := range entries {
		if !conversation.IsValidDay(e.Day) || e.Query == "" {
			continue
		}
		meal := strings.ToLower(e.Meal)
		if !conversation.IsValidMeal(meal) {
			meal = "dinner"
		}
		changes[planner.SlotKey(e.Day, meal)] = e.Query
	}
	return changes
}

// lastMenuShape recovers the day/meal grid of the most recent menu the
// assistant produced, so a modification keeps the original shape.
func lastMenuShape(history []conversation.Turn) (days, meals []string) {
	for i := len(history) - 1; i >= 0; i-- {
		var d, m []string
		seenDay := map[string]bool{}
		seenMeal := map[string]bool{}
		for _, snap := range history[i].RecipeSnapshots {
			if snap.DayName == "" {
				continue
			}
			if !seenDay[snap.DayName] {
				seenDay[snap.DayName] = true
				d = append(d, snap.DayName)
			}
			if snap.MealType != "" && !seenMeal[snap.MealType] {
				seenMeal[snap.MealType] = true
				m = append(m, snap.MealType)
			}
		}
		if len(d) > 0 {
			return d, m
		}
	}
	return nil, nil
}

func formatMenu(menu []recipe.Candidate) string {
	var b strings.Builder
	b.WriteString("Here's your menu:\n")
	currentDay := ""
	for _, item := range menu {
		if item.DayName != currentDay {
			currentDay = item.DayName
			b.WriteString("\n" + titleCase(currentDay) + "\n")
		}
		b.WriteString(fmt.Sprintf("  %s: %s (%.0f kcal per serving)\n",
			titleCase(item.MealType), item.Name, item.Nutrition.Kcal))
	}
	return b.String()
}

func formatRecipeDetails(c recipe.Candidate) string {
	var b strings.Builder
	b.WriteString(c.Name + "\n")
	if c.Description != "" {
		b.WriteString(c.Description + "\n")
	}
	b.WriteString(fmt.Sprintf("Serves %d | %.0f kcal, %.1fg protein, %.1fg carbs, %.1fg fat per serving\n",
		c.Servings, c.Nutrition.Kcal, c.Nutrition.Protein, c.Nutrition.Carbs, c.Nutrition.Fat))
	b.WriteString("\nIngredients:\n")
	for _, ing := range c.Ingredients {
		if ing.Quantity > 0 && ing.Unit != "" {
			b.WriteString(fmt.Sprintf("- %g %s %s\n", ing.Quantity, ing.Unit, ing.Name))
		} else {
			b.WriteString("- " + ing.Name + "\n")
		}
	}
	b.WriteString("\nSteps:\n")
	for _, step := range c.Steps {
		b.WriteString(fmt.Sprintf("%d. %s\n", step.StepNumber, step.Instruction))
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func appendMissing(tags []string, extra ...string) []string {
	for _, e := range extra {
		found := false
		for _, t := range tags {
			if strings.EqualFold(t, e) {
				found = true
				break
			}
		}
		if !found {
			tags = append(tags, e)
		}
	}
	return tags
}

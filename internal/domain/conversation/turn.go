// Package conversation defines the conversational domain types: turns,
// intents, context analysis and filtering constraints.
package conversation

import (
	"time"

	"github.com/cookwise/v1/internal/domain/recipe"
)

// Role identifies the author of a turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Intent is one of the fixed conversational intents the router dispatches on
type Intent string

const (
	IntentURLAnalysis  Intent = "url_analysis"
	IntentWeeklyMenu   Intent = "weekly_menu"
	IntentModification Intent = "modification"
	IntentNutrition    Intent = "nutrition"
	IntentIngredients  Intent = "ingredients"
	IntentRecipeSearch Intent = "recipe_search"
)

// ValidIntents lists every intent label the classifier may return.
var ValidIntents = []Intent{
	IntentURLAnalysis,
	IntentWeeklyMenu,
	IntentModification,
	IntentNutrition,
	IntentIngredients,
	IntentRecipeSearch,
}

// Turn is one entry of a session's append-only conversation log. Assistant
// turns that surfaced recipes embed full snapshots so later turns can
// reconstruct recipe content from history alone; the semantic store does not
// hold authoritative content for dataset recipes.
type Turn struct {
	Role               Role               `json:"role"`
	Text               string             `json:"text"`
	DetectedIntent     Intent             `json:"detected_intent,omitempty"`
	ReferencedRecipeIDs []string          `json:"referenced_recipe_ids,omitempty"`
	RecipeSnapshots    []recipe.Candidate `json:"recipe_snapshots,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
}

// ContextAction classifies what a message refers to relative to history
type ContextAction string

const (
	ActionShowPrevious   ContextAction = "show_previous"
	ActionModifyPrevious ContextAction = "modify_previous"
	ActionModifyMenu     ContextAction = "modify_menu"
	ActionIncludeInNew   ContextAction = "include_in_new"
	ActionShowRecipe     ContextAction = "show_recipe"
	ActionAnswerQuestion ContextAction = "answer_question"
	ActionNewRequest     ContextAction = "new_request"
)

// ReferencedItem is one prior recipe or menu the user referred to
type ReferencedItem struct {
	Type          string            `json:"type"` // "recipe" or "menu"
	Name          string            `json:"name"`
	ContextText   string            `json:"context_text"`
	MatchedRecipe *recipe.Candidate `json:"matched_recipe,omitempty"`
}

// ContextAnalysis is the per-turn result of conversation context analysis.
// It lives only for the turn that produced it.
type ContextAnalysis struct {
	Action          ContextAction    `json:"action"`
	ReferencedItems []ReferencedItem `json:"referenced_items"`
}

// ConstraintSet is the typed filter set extracted from a user message.
// Every field is optional; a zero pointer or empty slice means
// "unconstrained", never "zero".
type ConstraintSet struct {
	Dietary             []string `json:"dietary"`
	MaxCalories         *float64 `json:"max_calories,omitempty"`
	MinProtein          *float64 `json:"min_protein,omitempty"`
	MaxCarbs            *float64 `json:"max_carbs,omitempty"`
	MaxFat              *float64 `json:"max_fat,omitempty"`
	Quantity            *int     `json:"quantity,omitempty"`
	IncludedIngredients []string `json:"included_ingredients"`
	ExcludedIngredients []string `json:"excluded_ingredients"`
}

// IsEmpty reports whether no constraint is set at all.
func (c ConstraintSet) IsEmpty() bool {
	return len(c.Dietary) == 0 &&
		c.MaxCalories == nil &&
		c.MinProtein == nil &&
		c.MaxCarbs == nil &&
		c.MaxFat == nil &&
		c.Quantity == nil &&
		len(c.IncludedIngredients) == 0 &&
		len(c.ExcludedIngredients) == 0
}

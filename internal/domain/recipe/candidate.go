// Package recipe defines the recipe domain types shared across the application
package recipe

import "strings"

// Ingredient is one line of a recipe's ingredient list
type Ingredient struct {
	Name     string  `json:"name"`
	Quantity float64 `json:"quantity,omitempty"`
	Unit     string  `json:"unit,omitempty"`
}

// Step is one numbered cooking instruction
type Step struct {
	StepNumber  int    `json:"step_number"`
	Instruction string `json:"instruction"`
}

// Nutrition holds per-serving macro values
type Nutrition struct {
	Kcal    float64 `json:"kcal"`
	Protein float64 `json:"protein"`
	Carbs   float64 `json:"carbs"`
	Fat     float64 `json:"fat"`
}

// Candidate is a recipe as it moves through retrieval, planning and chat.
// The same type covers metadata-only hits from the semantic store and fully
// hydrated recipes from the relational store; IsComplete distinguishes them.
// DayName and MealType are set only when the candidate occupies a slot of a
// realized weekly menu.
type Candidate struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Servings    int          `json:"servings"`
	Ingredients []Ingredient `json:"ingredients"`
	Steps       []Step       `json:"steps"`
	Tags        []string     `json:"tags"`
	Nutrition   Nutrition    `json:"nutrition_per_serving"`
	DayName     string       `json:"day_name,omitempty"`
	MealType    string       `json:"meal_type,omitempty"`
}

// IsComplete reports whether the candidate carries ingredient data.
// Incomplete candidates must never reach the user (quality gate).
func (c *Candidate) IsComplete() bool {
	return len(c.Ingredients) > 0
}

// HasTag reports whether the candidate carries the tag, case-insensitively.
func (c *Candidate) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ContainsIngredient reports whether any ingredient name contains the given
// text, case-insensitively.
func (c *Candidate) ContainsIngredient(text string) bool {
	needle := strings.ToLower(text)
	for _, ing := range c.Ingredients {
		if strings.Contains(strings.ToLower(ing.Name), needle) {
			return true
		}
	}
	return false
}

// IngredientNames returns up to limit ingredient names, used for compact
// summaries sent to the language model.
func (c *Candidate) IngredientNames(limit int) []string {
	names := make([]string, 0, limit)
	for _, ing := range c.Ingredients {
		names = append(names, ing.Name)
		if len(names) == limit {
			break
		}
	}
	return names
}

// WithSlot returns a copy of the candidate stamped with a menu slot.
func (c Candidate) WithSlot(day, meal string) Candidate {
	c.DayName = day
	c.MealType = meal
	return c
}

package conversation

import "strings"

// DaysOfWeek is the canonical ordered day list used by menu planning.
var DaysOfWeek = []string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

// MealTypes is the canonical meal-type list.
var MealTypes = []string{"breakfast", "lunch", "dinner"}

// DefaultDays are the days assumed when a menu request names none.
var DefaultDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// DefaultMeals are the meals assumed when a menu request names none.
var DefaultMeals = []string{"dinner"}

// IsValidDay reports whether the day name is one of the canonical days.
func IsValidDay(day string) bool {
	for _, d := range DaysOfWeek {
		if strings.EqualFold(d, day) {
			return true
		}
	}
	return false
}

// IsValidMeal reports whether the meal type is canonical.
func IsValidMeal(meal string) bool {
	for _, m := range MealTypes {
		if strings.EqualFold(m, meal) {
			return true
		}
	}
	return false
}

// InferMealType guesses a meal type from a recipe name. Used when a
// referenced recipe must be bound to a menu slot and the message names no
// meal. Returns "" when nothing matches.
func InferMealType(recipeName string) string {
	name := strings.ToLower(recipeName)
	breakfastWords := []string{"oatmeal", "pancake", "breakfast", "eggs", "smoothie", "granola"}
	lunchWords := []string{"salad", "sandwich", "lunch", "wrap", "soup"}
	dinnerWords := []string{"dinner", "roast", "casserole", "stew"}
	for _, w := range breakfastWords {
		if strings.Contains(name, w) {
			return "breakfast"
		}
	}
	for _, w := range lunchWords {
		if strings.Contains(name, w) {
			return "lunch"
		}
	}
	for _, w := range dinnerWords {
		if strings.Contains(name, w) {
			return "dinner"
		}
	}
	return ""
}

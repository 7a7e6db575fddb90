package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/application/llmjson"
	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/ports/outbound"
)

const intentPrompt = `Classify this message from a recipe assistant conversation.

Message: %q

Intents:
- "url_analysis": the message contains a URL to a recipe page
- "weekly_menu": asks to plan meals across days (a menu, meal plan, week of dinners)
- "modification": asks to change a recipe or menu already discussed
- "nutrition": asks for nutrition facts of a recipe
- "ingredients": asks what goes into a recipe or what to buy
- "recipe_search": asks for recipe suggestions (the default)

Respond with ONLY a JSON object:
{"intent": "recipe_search", "confidence": 0.9, "reasoning": "..."}`

// Classification is the classifier's full verdict. Confidence and reasoning
// are logged, not acted on.
type Classification struct {
	Intent     conversation.Intent `json:"intent"`
	Confidence float64             `json:"confidence"`
	Reasoning  string              `json:"reasoning"`
}

// IntentClassifier labels a message with one of the fixed intents.
type IntentClassifier struct {
	llm    outbound.CompletionService
	logger *zap.Logger
}

func NewIntentClassifier(llm outbound.CompletionService, logger *zap.Logger) *IntentClassifier {
	return &IntentClassifier{
		llm:    llm,
		logger: logger.Named("intent-classifier"),
	}
}

// Classify resolves the message's intent. Context-derived fast paths skip
// the model entirely; otherwise a model call is tried, with a keyword scan
// over the raw reply as the degraded path. recipe_search is the terminal
// default, so classification never fails.
func (c *IntentClassifier) Classify(ctx context.Context, message string, analysis conversation.ContextAnalysis) Classification {
	if fast, ok := fastPathIntent(message, analysis); ok {
		c.logger.Debug("Intent resolved by fast path", zap.String("intent", string(fast.Intent)))
		return fast
	}

	prompt := fmt.Sprintf(intentPrompt, message)
	reply, err := c.llm.Complete(ctx, []outbound.Message{{Role: "user", Content: prompt}}, 0.1, "")
	if err != nil {
		c.logger.Warn("Intent classification call failed, defaulting to recipe_search", zap.Error(err))
		return Classification{Intent: conversation.IntentRecipeSearch, Confidence: 0.3, Reasoning: "classifier unavailable"}
	}

	var result Classification
	if err := llmjson.Decode(reply, &result); err == nil && isValidIntent(result.Intent) {
		c.logger.Debug("Intent classified",
			zap.String("intent", string(result.Intent)),
			zap.Float64("confidence", result.Confidence))
		return result
	}

	// Parse failed or label unknown: scan the raw reply for an intent label.
	if found, ok := intentFromText(reply); ok {
		c.logger.Debug("Intent recovered from raw reply", zap.String("intent", string(found)))
		return Classification{Intent: found, Confidence: 0.5, Reasoning: "label found in unstructured reply"}
	}

	c.logger.Warn("Intent classification unusable, defaulting to recipe_search",
		zap.Int("reply_len", len(reply)))
	return Classification{Intent: conversation.IntentRecipeSearch, Confidence: 0.3, Reasoning: "unparseable classification"}
}

// fastPathIntent dispatches on signals that make a model call pointless: a
// URL in the message, or a context action that pins the intent.
func fastPathIntent(message string, analysis conversation.ContextAnalysis) (Classification, bool) {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "http://") || strings.Contains(lower, "https://") {
		return Classification{Intent: conversation.IntentURLAnalysis, Confidence: 1.0, Reasoning: "message contains a URL"}, true
	}

	switch analysis.Action {
	case conversation.ActionModifyPrevious, conversation.ActionShowPrevious:
		return Classification{Intent: conversation.IntentModification, Confidence: 1.0, Reasoning: "context action implies modification"}, true
	case conversation.ActionModifyMenu:
		return Classification{Intent: conversation.IntentWeeklyMenu, Confidence: 1.0, Reasoning: "context action targets the weekly menu"}, true
	case conversation.ActionIncludeInNew:
		// "Add it to my Tuesday menu" is a planning request; "find me
		// something like it" is a search.
		if mentionsMenuPlanning(lower) {
			return Classification{Intent: conversation.IntentWeeklyMenu, Confidence: 1.0, Reasoning: "referenced recipe folded into a menu"}, true
		}
		return Classification{Intent: conversation.IntentRecipeSearch, Confidence: 1.0, Reasoning: "context action implies a new search"}, true
	}
	return Classification{}, false
}

func mentionsMenuPlanning(lower string) bool {
	for _, w := range []string{"menu", "meal plan", "plan", "week"} {
		if strings.Contains(lower, w) {
			return true
		}
	}
	for _, day := range conversation.DaysOfWeek {
		if strings.Contains(lower, strings.ToLower(day)) {
			return true
		}
	}
	return false
}

// intentFromText finds the first valid intent label mentioned in free text.
// Longer labels are checked first so "recipe_search" is not shadowed.
func intentFromText(text string) (conversation.Intent, bool) {
	lower := strings.ToLower(text)
	for _, intent := range []conversation.Intent{
		conversation.IntentURLAnalysis,
		conversation.IntentWeeklyMenu,
		conversation.IntentModification,
		conversation.IntentNutrition,
		conversation.IntentIngredients,
		conversation.IntentRecipeSearch,
	} {
		if strings.Contains(lower, string(intent)) {
			return intent, true
		}
	}
	return "", false
}

func isValidIntent(intent conversation.Intent) bool {
	for _, v := range conversation.ValidIntents {
		if intent == v {
			return true
		}
	}
	return false
}

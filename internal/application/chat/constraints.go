package chat

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/application/llmjson"
	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/ports/outbound"
)

const constraintPrompt = `Extract recipe constraints from this message.

Message: %q

Respond with ONLY a JSON object in exactly this shape (use null for anything
the message does not mention):
{
  "dietary": [],
  "max_calories": null,
  "min_protein": null,
  "max_carbs": null,
  "max_fat": null,
  "quantity": null,
  "included_ingredients": [],
  "excluded_ingredients": []
}

Rules:
- dietary: restrictions like "vegetarian", "vegan", "gluten-free"
- max_calories / min_protein / max_carbs / max_fat: numbers per serving
- quantity: how many recipes the user asked for
- excluded_ingredients: ingredients the user wants to avoid
- included_ingredients: ingredients the user wants featured`

// ConstraintExtractor derives a structured constraint set from a free-text
// message with a single low-temperature completion call.
type ConstraintExtractor struct {
	llm    outbound.CompletionService
	logger *zap.Logger
}

func NewConstraintExtractor(llm outbound.CompletionService, logger *zap.Logger) *ConstraintExtractor {
	return &ConstraintExtractor{
		llm:    llm,
		logger: logger.Named("constraint-extractor"),
	}
}

// Extract never fails: any model or parse problem yields the empty
// constraint set, which downstream filters treat as "no restrictions".
func (e *ConstraintExtractor) Extract(ctx context.Context, message string) conversation.ConstraintSet {
	prompt := fmt.Sprintf(constraintPrompt, message)

	reply, err := e.llm.Complete(ctx, []outbound.Message{{Role: "user", Content: prompt}}, 0.1, "")
	if err != nil {
		e.logger.Warn("Constraint extraction call failed, assuming no constraints", zap.Error(err))
		return conversation.ConstraintSet{}
	}

	var set conversation.ConstraintSet
	if err := llmjson.Decode(reply, &set); err != nil {
		e.logger.Warn("Constraint extraction reply unparseable, assuming no constraints",
			zap.Error(err),
			zap.Int("reply_len", len(reply)))
		return conversation.ConstraintSet{}
	}

	e.logger.Debug("Extracted constraints",
		zap.Strings("dietary", set.Dietary),
		zap.Bool("empty", set.IsEmpty()))
	return set
}

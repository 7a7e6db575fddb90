package chat

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cookwise/v1/internal/application/llmjson"
	"github.com/cookwise/v1/internal/domain/conversation"
	"github.com/cookwise/v1/internal/domain/recipe"
	"github.com/cookwise/v1/internal/ports/outbound"
)

const contextPrompt = `You analyze how a new message relates to an ongoing recipe conversation.

Conversation so far:
%s

New message: %q

Classify the message into exactly one action:
- "show_previous": user wants to see a recipe already shown again
- "modify_previous": user wants a change to a recipe already shown
- "modify_menu": user wants a change to a weekly menu already shown
- "include_in_new": user wants a previous recipe folded into a new request
- "show_recipe": user wants the full details of a named recipe
- "answer_question": user asks a question about a recipe already shown
- "new_request": the message stands alone, no reference to history

Respond with ONLY a JSON object:
{"action": "new_request", "referenced_items": [{"type": "recipe", "name": "...", "context_text": "..."}]}

referenced_items must name each previous recipe or menu the message refers
to, using the exact name from the conversation when possible. Use type
"menu" for references to a weekly menu. Leave the list empty for
new_request.`

// modificationVerbs flag messages that ask for a change to something.
var modificationVerbs = []string{"change", "replace", "swap", "modify", "remove", "update"}

// demonstrativePhrases flag messages that lean on a prior recipe.
var demonstrativePhrases = []string{"this", "it", "that", "the recipe", "include it", "add it", "use it"}

// ContextAnalyzer decides how a new message relates to conversation history
// and binds named references back to previously shown recipes.
type ContextAnalyzer struct {
	llm    outbound.CompletionService
	logger *zap.Logger

	transcriptLimit int
	turnTruncateLen int
}

func NewContextAnalyzer(llm outbound.CompletionService, transcriptLimit, turnTruncateLen int, logger *zap.Logger) *ContextAnalyzer {
	if transcriptLimit < 1 {
		transcriptLimit = 8
	}
	if turnTruncateLen < 1 {
		turnTruncateLen = 300
	}
	return &ContextAnalyzer{
		llm:             llm,
		logger:          logger.Named("context-analyzer"),
		transcriptLimit: transcriptLimit,
		turnTruncateLen: turnTruncateLen,
	}
}

// Analyze classifies the message against history. It never fails: model or
// parse errors fall back to keyword heuristics, and the heuristics always
// produce a valid analysis.
func (a *ContextAnalyzer) Analyze(ctx context.Context, message string, history []conversation.Turn) conversation.ContextAnalysis {
	if len(history) == 0 {
		return conversation.ContextAnalysis{Action: conversation.ActionNewRequest}
	}

	prompt := fmt.Sprintf(contextPrompt, a.buildTranscript(history), message)

	reply, err := a.llm.Complete(ctx, []outbound.Message{{Role: "user", Content: prompt}}, 0.1, "")
	if err != nil {
		a.logger.Warn("Context analysis call failed, using heuristics", zap.Error(err))
		return a.heuristicAnalysis(message, history)
	}

	// Some models double every brace when shown literal JSON templates.
	reply = llmjson.CollapseDoubledBraces(reply)

	var raw struct {
		Action          string `json:"action"`
		ReferencedItems []struct {
			Type        string `json:"type"`
			Name        string `json:"name"`
			ContextText string `json:"context_text"`
		} `json:"referenced_items"`
	}
	if err := llmjson.Decode(reply, &raw); err != nil {
		a.logger.Warn("Context analysis reply unparseable, using heuristics",
			zap.Error(err),
			zap.Int("reply_len", len(reply)))
		return a.heuristicAnalysis(message, history)
	}

	action := conversation.ContextAction(raw.Action)
	if !isValidAction(action) {
		a.logger.Warn("Context analysis returned unknown action, using heuristics",
			zap.String("action", raw.Action))
		return a.heuristicAnalysis(message, history)
	}

	analysis := conversation.ContextAnalysis{Action: action}
	prior := PriorRecipes(history)
	for _, item := range raw.ReferencedItems {
		ref := conversation.ReferencedItem{
			Type:        item.Type,
			Name:        item.Name,
			ContextText: item.ContextText,
		}
		if ref.Type != "menu" {
			ref.Type = "recipe"
			ref.MatchedRecipe = matchRecipeByName(item.Name, prior)
		}
		analysis.ReferencedItems = append(analysis.ReferencedItems, ref)
	}

	a.logger.Debug("Context analyzed",
		zap.String("action", string(analysis.Action)),
		zap.Int("referenced_items", len(analysis.ReferencedItems)))
	return analysis
}

// buildTranscript flattens the most recent turns into "role: text" lines,
// truncating long turns so the prompt stays bounded.
func (a *ContextAnalyzer) buildTranscript(history []conversation.Turn) string {
	start := 0
	if len(history) > a.transcriptLimit {
		start = len(history) - a.transcriptLimit
	}
	var lines []string
	for _, turn := range history[start:] {
		text := turn.Text
		if truncated := truncateRunes(text, a.turnTruncateLen); truncated != text {
			text = truncated + "..."
		}
		lines = append(lines, fmt.Sprintf("%s: %s", turn.Role, text))
	}
	return strings.Join(lines, "\n")
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

// heuristicAnalysis is the keyword fallback used when the model cannot be
// consulted. It only distinguishes the references that change routing.
func (a *ContextAnalyzer) heuristicAnalysis(message string, history []conversation.Turn) conversation.ContextAnalysis {
	lower := strings.ToLower(message)
	prior := PriorRecipes(history)

	if ruleMenuModification(lower, history) {
		return conversation.ContextAnalysis{
			Action: conversation.ActionModifyMenu,
			ReferencedItems: []conversation.ReferencedItem{
				{Type: "menu", Name: "weekly menu", ContextText: message},
			},
		}
	}
	if ruleIncludePrevious(lower, prior) {
		items := make([]conversation.ReferencedItem, 0, 1)
		items = append(items, conversation.ReferencedItem{
			Type:          "recipe",
			Name:          prior[0].Name,
			ContextText:   message,
			MatchedRecipe: &prior[0],
		})
		return conversation.ContextAnalysis{
			Action:          conversation.ActionIncludeInNew,
			ReferencedItems: items,
		}
	}
	return conversation.ContextAnalysis{Action: conversation.ActionNewRequest}
}

// ruleMenuModification fires for modification verbs aimed at a day or meal
// slot when the most recent recipe-bearing turn looks like a full menu.
func ruleMenuModification(lower string, history []conversation.Turn) bool {
	if !containsAny(lower, modificationVerbs) {
		return false
	}
	if !mentionsSlot(lower) {
		return false
	}
	return lastRecipeTurnIsMenu(history)
}

// lastRecipeTurnIsMenu reports whether the most recent turn carrying recipe
// snapshots holds a realized menu: more than one recipe, every one pinned to
// a day.
func lastRecipeTurnIsMenu(history []conversation.Turn) bool {
	for i := len(history) - 1; i >= 0; i-- {
		snaps := history[i].RecipeSnapshots
		if len(snaps) == 0 {
			continue
		}
		if len(snaps) < 2 {
			return false
		}
		for _, snap := range snaps {
			if snap.DayName == "" {
				return false
			}
		}
		return true
	}
	return false
}

// ruleIncludePrevious fires for demonstrative phrases when prior recipes
// exist to point at.
func ruleIncludePrevious(lower string, prior []recipe.Candidate) bool {
	if len(prior) == 0 {
		return false
	}
	return containsAny(lower, demonstrativePhrases)
}

func mentionsSlot(lower string) bool {
	for _, day := range conversation.DaysOfWeek {
		if strings.Contains(lower, strings.ToLower(day)) {
			return true
		}
	}
	for _, meal := range conversation.MealTypes {
		if strings.Contains(lower, meal) {
			return true
		}
	}
	return false
}

func containsAny(lower string, words []string) bool {
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func isValidAction(action conversation.ContextAction) bool {
	switch action {
	case conversation.ActionShowPrevious,
		conversation.ActionModifyPrevious,
		conversation.ActionModifyMenu,
		conversation.ActionIncludeInNew,
		conversation.ActionShowRecipe,
		conversation.ActionAnswerQuestion,
		conversation.ActionNewRequest:
		return true
	}
	return false
}

// PriorRecipes collects every recipe snapshot in history, most recent first,
// de-duplicated by id.
func PriorRecipes(history []conversation.Turn) []recipe.Candidate {
	seen := map[string]bool{}
	var out []recipe.Candidate
	for i := len(history) - 1; i >= 0; i-- {
		for _, snap := range history[i].RecipeSnapshots {
			if seen[snap.ID] {
				continue
			}
			seen[snap.ID] = true
			out = append(out, snap)
		}
	}
	return out
}

// matchRecipeByName binds a model-supplied name to a prior recipe. Exact
// match wins, then containment either way, then a shared token longer than
// three characters. prior is recency-first, so ambiguous names bind to the
// most recent mention.
func matchRecipeByName(name string, prior []recipe.Candidate) *recipe.Candidate {
	needle := strings.ToLower(strings.TrimSpace(name))
	if needle == "" {
		return nil
	}
	for i := range prior {
		if strings.ToLower(prior[i].Name) == needle {
			return &prior[i]
		}
	}
	for i := range prior {
		candName := strings.ToLower(prior[i].Name)
		if strings.Contains(candName, needle) || strings.Contains(needle, candName) {
			return &prior[i]
		}
	}
	needleTokens := strings.Fields(needle)
	for i := range prior {
		for _, tok := range strings.Fields(strings.ToLower(prior[i].Name)) {
			if len(tok) <= 3 {
				continue
			}
			for _, nt := range needleTokens {
				if nt == tok {
					return &prior[i]
				}
			}
		}
	}
	return nil
}

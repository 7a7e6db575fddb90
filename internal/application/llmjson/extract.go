// Package llmjson extracts structured JSON from free-form language-model
// output. Model replies are supposed to contain one JSON object or array but
// routinely arrive wrapped in prose, markdown fences, or with near-miss
// literals; every component that parses model output goes through this
// package. All functions are pure and never panic on well-formed non-JSON
// input.
package llmjson

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/cookwise/v1/pkg/errors"
)

// boilerplate lead-ins some models prepend to their JSON payload
var knownPrefixes = []string{
	"Here's the JSON:",
	"Here is the JSON:",
	"The result is:",
	"Result:",
	"Output:",
	"Response:",
}

var (
	fencedJSONRe = regexp.MustCompile("(?s)```json\\s*(.*?)```")
	fencedAnyRe  = regexp.MustCompile("(?s)```\\s*(.*?)```")

	// numeric ranges like `"servings": 2-4` collapse to the first number
	numericRangeRe = regexp.MustCompile(`:\s*(\d+)-\d+(\s*[,}\]])`)
	// fractional ranges like `1/2-1` collapse to the first fraction
	fractionRangeRe = regexp.MustCompile(`:\s*(\d+)/(\d+)-[\d/]+(\s*[,}\]])`)
	// simple fractions like `1/2` become their decimal value
	fractionRe = regexp.MustCompile(`:\s*(\d+)/(\d+)(\s*[,}\]])`)
	// trailing commas before a closing brace or bracket
	trailingCommaRe = regexp.MustCompile(`,(\s*[}\]])`)
)

// Extract parses the first JSON object or array found in text, repairing
// common near-miss output first. It returns a MalformedOutput error when no
// strategy yields valid JSON.
func Extract(text string) (any, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.NewMalformedOutputError("empty response")
	}

	strategies := []func(string) (any, bool){
		extractBracketSpan,
		extractFenced,
		extractBalanced,
		extractPrefixStripped,
		extractArraySpan,
	}

	for _, strategy := range strategies {
		if v, ok := strategy(text); ok {
			return v, nil
		}
	}

	detail := text
	if runes := []rune(detail); len(runes) > 200 {
		detail = string(runes[:200])
	}
	return nil, errors.NewMalformedOutputError("no JSON found in: " + detail)
}

// ExtractWithFallback is Extract with a caller-supplied fallback value used
// when every strategy fails. It never returns an error.
func ExtractWithFallback(text string, fallback any) any {
	v, err := Extract(text)
	if err != nil {
		return fallback
	}
	return v
}

// ExtractArray returns the first JSON array found in text.
func ExtractArray(text string) ([]any, error) {
	if v, ok := extractArraySpan(text); ok {
		if arr, ok := v.([]any); ok {
			return arr, nil
		}
	}
	v, err := Extract(text)
	if err != nil {
		return nil, err
	}
	if arr, ok := v.([]any); ok {
		return arr, nil
	}
	return nil, errors.NewMalformedOutputError("extracted JSON is not an array")
}

// CollapseDoubledBraces rewrites {{ and }} to single braces. Some models
// echo prompt-template escaping back in their replies.
func CollapseDoubledBraces(text string) string {
	text = strings.ReplaceAll(text, "{{", "{")
	text = strings.ReplaceAll(text, "}}", "}")
	return text
}

// Repair fixes the four classes of near-miss output observed from models:
// numeric ranges, simple fractions, fractional ranges, and trailing commas.
func Repair(s string) string {
	s = numericRangeRe.ReplaceAllString(s, ": $1$2")
	s = fractionRangeRe.ReplaceAllStringFunc(s, replaceFraction(fractionRangeRe))
	s = fractionRe.ReplaceAllStringFunc(s, replaceFraction(fractionRe))
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s
}

func replaceFraction(re *regexp.Regexp) func(string) string {
	return func(match string) string {
		groups := re.FindStringSubmatch(match)
		if len(groups) != 4 {
			return match
		}
		num, err1 := strconv.ParseFloat(groups[1], 64)
		den, err2 := strconv.ParseFloat(groups[2], 64)
		if err1 != nil || err2 != nil || den == 0 {
			return match
		}
		return ": " + strconv.FormatFloat(num/den, 'g', -1, 64) + groups[3]
	}
}

func tryParse(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(Repair(s)), &v); err != nil {
		return nil, false
	}
	return v, true
}

// extractBracketSpan takes the substring from the first { to the last }.
func extractBracketSpan(text string) (any, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	return tryParse(text[start : end+1])
}

// extractArraySpan takes the substring from the first [ to the last ].
func extractArraySpan(text string) (any, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, false
	}
	return tryParse(text[start : end+1])
}

// extractFenced pulls the content of a ```json fence, then a generic fence.
func extractFenced(text string) (any, bool) {
	if m := fencedJSONRe.FindStringSubmatch(text); m != nil {
		if v, ok := tryParse(strings.TrimSpace(m[1])); ok {
			return v, true
		}
	}
	if m := fencedAnyRe.FindStringSubmatch(text); m != nil {
		content := strings.TrimSpace(m[1])
		if strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[") {
			if v, ok := tryParse(content); ok {
				return v, true
			}
		}
	}
	return nil, false
}

// extractBalanced walks the text tracking brace depth and parses each span
// whose depth returns to zero. A span that fails to parse does not stop the
// scan; a later complete span may still be the real payload.
func extractBalanced(text string) (any, bool) {
	depth := 0
	start := -1
	for i, ch := range text {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				if v, ok := tryParse(text[start : i+1]); ok {
					return v, true
				}
				start = -1
			}
		}
	}
	return nil, false
}

// extractPrefixStripped removes known boilerplate lead-ins and retries the
// bracket-span strategy on the remainder.
func extractPrefixStripped(text string) (any, bool) {
	cleaned := text
	for _, prefix := range knownPrefixes {
		if idx := strings.Index(cleaned, prefix); idx >= 0 {
			cleaned = cleaned[idx+len(prefix):]
		}
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == text {
		return nil, false
	}
	return extractBracketSpan(cleaned)
}

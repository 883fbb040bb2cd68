package intent

import (
	"context"
	"strings"
)

// KeywordParser is a dependency-free Parser that classifies descriptions
// by keyword matching. It serves as the fallback when no LLM backend is
// configured, and as the offline parser in tests.
type KeywordParser struct {
	table map[string]string
}

// NewKeywordParser creates a keyword parser with the builtin intent table.
func NewKeywordParser() *KeywordParser {
	return &KeywordParser{
		table: map[string]string{
			"caption":   "content_generation",
			"post":      "content_generation",
			"write":     "content_generation",
			"copy":      "content_generation",
			"hashtag":   "content_generation",
			"brief":     "media_brief",
			"image":     "media_brief",
			"video":     "media_brief",
			"visual":    "media_brief",
			"schedule":  "scheduling",
			"remind":    "scheduling",
			"recurring": "scheduling",
		},
	}
}

// Ensure KeywordParser implements Parser.
var _ Parser = (*KeywordParser)(nil)

// Parse classifies the description by scanning for known keywords.
// Confidence scales with the number of matching keywords; no match yields
// the default intent with zero confidence.
func (p *KeywordParser) Parse(ctx context.Context, description string) (*Result, error) {
	if description == "" {
		return nil, ErrEmptyDescription
	}

	lowered := strings.ToLower(description)

	counts := make(map[string]int)
	matched := make([]string, 0, 4)
	for keyword, candidate := range p.table {
		if strings.Contains(lowered, keyword) {
			counts[candidate]++
			matched = append(matched, keyword)
		}
	}

	best := DefaultIntent
	bestCount := 0
	for candidate, count := range counts {
		if count > bestCount {
			best = candidate
			bestCount = count
		}
	}

	confidence := 0.0
	if bestCount > 0 {
		// One keyword is a weak signal, three or more is as sure as
		// keyword matching gets.
		confidence = 0.5 + 0.15*float64(bestCount)
		if confidence > 0.95 {
			confidence = 0.95
		}
	}

	entities := map[string]any{}
	if len(matched) > 0 {
		keywords := make([]any, len(matched))
		for i, k := range matched {
			keywords[i] = k
		}
		entities["keywords"] = keywords
	}

	return &Result{
		Intent:     best,
		Entities:   entities,
		Confidence: confidence,
	}, nil
}

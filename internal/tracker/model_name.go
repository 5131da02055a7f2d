package tracker

import "strings"

// UnknownModel is the series name for missing or non-string model values
const UnknownModel = "unknown"

// modelRule maps a case-insensitive substring to a series name
type modelRule struct {
	match  string
	series string
}

// modelRules is ordered; the first matching rule wins. Series names are also
// palette keys, so changing one changes the color a model is drawn with.
var modelRules = []modelRule{
	{"opus", "opus"},
	{"sonnet", "sonnet"},
	{"haiku", "haiku"},
	{"claude", "claude"},
	{"gpt-5", "gpt-5"},
	{"gpt-4o", "gpt-4o"},
	{"gpt-4", "gpt-4"},
	{"gpt-3.5", "gpt-3.5"},
	{"kimi", "kimi"},
	{"deepseek", "deepseek"},
	{"gemini", "gemini"},
	{"qwen", "qwen"},
	{"yi", "yi"},
	{"llama", "llama"},
	{"mistral", "mistral"},
}

// KnownSeries returns the series names produced by the rule table, in rule order
func KnownSeries() []string {
	series := make([]string, 0, len(modelRules))
	for _, r := range modelRules {
		series = append(series, r.series)
	}
	return series
}

// NormalizeModelName canonicalizes a vendor model identifier into a series name.
//
// Unmatched names are reduced to their first two '-' separated segments after
// dropping any ":tag" suffix, so "foo-bar-2024:latest" becomes "foo-bar".
func NormalizeModelName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" {
		return UnknownModel
	}

	for _, r := range modelRules {
		if strings.Contains(lower, r.match) {
			return r.series
		}
	}

	if i := strings.Index(lower, ":"); i >= 0 {
		lower = strings.TrimSpace(lower[:i])
	}
	parts := strings.Split(lower, "-")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	series := strings.TrimSpace(strings.Join(parts, "-"))
	if series == "" {
		return UnknownModel
	}
	return series
}

func normalizeModelValue(v any) string {
	name, ok := v.(string)
	if !ok {
		return UnknownModel
	}
	return NormalizeModelName(name)
}

package usage

import "hash/fnv"

// OthersName is the synthetic bucket summarizing models ranked past TopN
const OthersName = "Others"

const othersColor = "#9CA3AF"

// seriesColors is keyed by the series names NormalizeModelName produces
var seriesColors = map[string]string{
	"opus":     "#D97757",
	"sonnet":   "#E8A87C",
	"haiku":    "#F2CC8F",
	"claude":   "#C15F3C",
	"gpt-5":    "#10A37F",
	"gpt-4o":   "#19C37D",
	"gpt-4":    "#0E8A6B",
	"gpt-3.5":  "#6BCB77",
	"codex":    "#3B82F6",
	"kimi":     "#8B5CF6",
	"deepseek": "#4D6BFE",
	"gemini":   "#F59E0B",
	"qwen":     "#6366F1",
	"yi":       "#14B8A6",
	"llama":    "#0EA5E9",
	"mistral":  "#F97316",
	"unknown":  "#6B7280",
}

// fallbackColors is used for series outside the rule table
var fallbackColors = []string{
	"#EC4899", "#84CC16", "#06B6D4", "#A855F7", "#EAB308", "#EF4444", "#22C55E", "#0EA5E9",
}

// SeriesColor returns the display color of a series name
func SeriesColor(series string) string {
	if series == OthersName {
		return othersColor
	}
	if c, ok := seriesColors[series]; ok {
		return c
	}
	h := fnv.New32a()
	h.Write([]byte(series))
	return fallbackColors[h.Sum32()%uint32(len(fallbackColors))]
}

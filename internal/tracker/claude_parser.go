package tracker

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// claudeEntry is the subset of a Claude JSONL line needed for usage accounting
type claudeEntry struct {
	Timestamp string         `json:"timestamp"`
	Model     any            `json:"model"`
	Message   *claudeMessage `json:"message"`
}

// claudeMessage holds the nested assistant message
type claudeMessage struct {
	Model any          `json:"model"`
	Usage *claudeUsage `json:"usage"`
}

// claudeUsage accepts both the current and the legacy cache field names.
// The current spelling is read first.
type claudeUsage struct {
	InputTokens              *int64 `json:"input_tokens"`
	OutputTokens             *int64 `json:"output_tokens"`
	CacheReadInputTokens     *int64 `json:"cache_read_input_tokens"`
	CacheReadTokens          *int64 `json:"cache_read_tokens"`
	CacheCreationInputTokens *int64 `json:"cache_creation_input_tokens"`
	CacheCreationTokens      *int64 `json:"cache_creation_tokens"`
}

// ParseClaudeLine turns one Claude log line into a UsageRecord.
// ok is false when the line is malformed or carries no usage object.
func ParseClaudeLine(line string) (record UsageRecord, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return UsageRecord{}, false
	}

	var entry claudeEntry
	if err := sonic.UnmarshalString(line, &entry); err != nil {
		return UsageRecord{}, false
	}
	if entry.Message == nil || entry.Message.Usage == nil {
		return UsageRecord{}, false
	}

	usage := entry.Message.Usage
	rawModel := entry.Message.Model
	if rawModel == nil {
		rawModel = entry.Model
	}

	return UsageRecord{
		Timestamp:   parseTimestamp(entry.Timestamp),
		Model:       normalizeModelValue(rawModel),
		Input:       tokens(usage.InputTokens),
		Output:      tokens(usage.OutputTokens),
		CacheRead:   tokens(firstPresent(usage.CacheReadInputTokens, usage.CacheReadTokens)),
		CacheCreate: tokens(firstPresent(usage.CacheCreationInputTokens, usage.CacheCreationTokens)),
	}, true
}

// parseTimestamp returns the zero time when the value cannot be parsed
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}
		}
	}
	return ts
}

func firstPresent(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// tokens clamps absent or negative counts to zero
func tokens(v *int64) int64 {
	if v == nil || *v < 0 {
		return 0
	}
	return *v
}

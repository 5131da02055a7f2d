package tracker

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// codexEntry is the envelope of a Codex rollout line
type codexEntry struct {
	Timestamp string        `json:"timestamp"`
	Type      string        `json:"type"`
	Payload   *codexPayload `json:"payload"`
}

type codexPayload struct {
	Type string     `json:"type"`
	Info *codexInfo `json:"info"`
}

type codexInfo struct {
	TotalTokenUsage *codexUsage `json:"total_token_usage"`
	LastTokenUsage  *codexUsage `json:"last_token_usage"`
}

// codexUsage mirrors Codex token accounting, where input_tokens already
// includes cached_input_tokens.
type codexUsage struct {
	InputTokens       *int64 `json:"input_tokens"`
	CachedInputTokens *int64 `json:"cached_input_tokens"`
	OutputTokens      *int64 `json:"output_tokens"`
	TotalTokens       *int64 `json:"total_tokens"`
}

var uuidPattern = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)

// parseTokenCount decodes a line and returns its info block when the line is
// an event_msg of type token_count.
func parseTokenCount(line string) (*codexEntry, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, false
	}

	var entry codexEntry
	if err := sonic.UnmarshalString(line, &entry); err != nil {
		return nil, false
	}
	if entry.Type != "event_msg" || entry.Payload == nil || entry.Payload.Type != "token_count" {
		return nil, false
	}
	if entry.Payload.Info == nil {
		return nil, false
	}
	return &entry, true
}

// ParseCodexEventLine reads the per-event last_token_usage of a token_count
// event. Cached input is split out of input so that Total matches the Claude
// formula.
func ParseCodexEventLine(line string) (record UsageRecord, ok bool) {
	entry, ok := parseTokenCount(line)
	if !ok || entry.Payload.Info.LastTokenUsage == nil {
		return UsageRecord{}, false
	}

	last := entry.Payload.Info.LastTokenUsage
	input := tokens(last.InputTokens)
	cached := tokens(last.CachedInputTokens)

	return UsageRecord{
		Timestamp: parseTimestamp(entry.Timestamp),
		Model:     CodexModel,
		Input:     max(0, input-cached),
		Output:    tokens(last.OutputTokens),
		CacheRead: cached,
	}, true
}

// ParseCodexSnapshotLine reads the cumulative total_token_usage of a
// token_count event.
func ParseCodexSnapshotLine(line string) (snapshot CodexSnapshot, ok bool) {
	entry, ok := parseTokenCount(line)
	if !ok || entry.Payload.Info.TotalTokenUsage == nil {
		return CodexSnapshot{}, false
	}

	total := entry.Payload.Info.TotalTokenUsage
	snapshot = CodexSnapshot{
		Timestamp:      parseTimestamp(entry.Timestamp),
		Model:          CodexModel,
		InputTotal:     tokens(total.InputTokens),
		OutputTotal:    tokens(total.OutputTokens),
		CacheReadTotal: tokens(total.CachedInputTokens),
	}
	if total.TotalTokens != nil {
		snapshot.TotalTokens = tokens(total.TotalTokens)
	} else {
		snapshot.TotalTokens = snapshot.InputTotal + snapshot.OutputTotal + snapshot.CacheReadTotal
	}
	return snapshot, true
}

// SessionIDFromPath derives the logical session of a Codex rollout file.
// Rotated files of one session share the trailing UUID in their name; names
// without a UUID fall back to the lower-cased file stem.
func SessionIDFromPath(path string) string {
	base := filepath.Base(path)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	if matches := uuidPattern.FindAllString(stem, -1); len(matches) > 0 {
		if id, err := uuid.Parse(matches[len(matches)-1]); err == nil {
			return id.String()
		}
	}
	return strings.ToLower(stem)
}

// DefaultSessionsDir returns where each source writes its logs by default
func DefaultSessionsDir(source Source) string {
	home, _ := os.UserHomeDir()
	switch source {
	case SourceClaude:
		return filepath.Join(home, ".claude", "projects")
	case SourceCodex:
		return filepath.Join(home, ".codex", "sessions")
	default:
		return ""
	}
}

package tracker

import "time"

// Source identifies which coding assistant produced a log
type Source string

const (
	SourceClaude Source = "claude"
	SourceCodex  Source = "codex"
)

// CodexModel is the series tag used for every record read from Codex logs
const CodexModel = "codex"

// UsageRecord is one discrete usage event. A zero Timestamp means the line
// carried no usable time and the record cannot be placed in any window.
type UsageRecord struct {
	Timestamp   time.Time
	Model       string
	Input       int64
	Output      int64
	CacheRead   int64
	CacheCreate int64
}

// Total returns input + output + cache read + cache creation tokens
func (r UsageRecord) Total() int64 {
	return r.Input + r.Output + r.CacheRead + r.CacheCreate
}

// CodexSnapshot is a cumulative usage reading for one Codex session.
// All token fields are running totals since the session started.
type CodexSnapshot struct {
	Timestamp      time.Time
	Model          string
	InputTotal     int64
	OutputTotal    int64
	CacheReadTotal int64
	TotalTokens    int64
}

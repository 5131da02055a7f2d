package tracker

import "sort"

// SessionState holds the two slots tracked per Codex session during one pass
type SessionState struct {
	BeforeWindow *CodexSnapshot
	InWindow     *CodexSnapshot
}

// SnapshotReducer turns repeated cumulative Codex snapshots into one windowed
// delta per session. Codex re-emits unchanged running totals on every event,
// so summing per-event values would double count; only the largest snapshot
// on each side of the window start is kept.
type SnapshotReducer struct {
	window   Window
	sessions map[string]*SessionState
}

// NewSnapshotReducer creates a reducer for one aggregation window
func NewSnapshotReducer(window Window) *SnapshotReducer {
	return &SnapshotReducer{
		window:   window,
		sessions: make(map[string]*SessionState),
	}
}

// ObserveLine parses a Codex line and observes it as a snapshot of sessionID.
// It returns false when the line is not a cumulative token_count event.
func (r *SnapshotReducer) ObserveLine(sessionID, line string) bool {
	snap, ok := ParseCodexSnapshotLine(line)
	if !ok {
		return false
	}
	r.Observe(sessionID, snap)
	return true
}

// Observe folds one snapshot into its session. Snapshots without a timestamp
// or at/after the window end are ignored.
func (r *SnapshotReducer) Observe(sessionID string, snap CodexSnapshot) {
	if snap.Timestamp.IsZero() || !snap.Timestamp.Before(r.window.End) {
		return
	}

	state, ok := r.sessions[sessionID]
	if !ok {
		state = &SessionState{}
		r.sessions[sessionID] = state
	}

	if snap.Timestamp.Before(r.window.Start) {
		state.BeforeWindow = keepLarger(state.BeforeWindow, snap)
	} else {
		state.InWindow = keepLarger(state.InWindow, snap)
	}
}

// keepLarger keeps the snapshot with more total tokens, preferring the later
// one on a tie.
func keepLarger(current *CodexSnapshot, candidate CodexSnapshot) *CodexSnapshot {
	if current == nil {
		return &candidate
	}
	if candidate.TotalTokens > current.TotalTokens {
		return &candidate
	}
	if candidate.TotalTokens == current.TotalTokens && candidate.Timestamp.After(current.Timestamp) {
		return &candidate
	}
	return current
}

// Sessions returns the number of sessions observed so far
func (r *SnapshotReducer) Sessions() int {
	return len(r.sessions)
}

// State returns the current slots of a session
func (r *SnapshotReducer) State(sessionID string) (SessionState, bool) {
	state, ok := r.sessions[sessionID]
	if !ok {
		return SessionState{}, false
	}
	return *state, true
}

// Records emits one UsageRecord per session that consumed tokens inside the
// window, ordered by session id.
func (r *SnapshotReducer) Records() []UsageRecord {
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	records := make([]UsageRecord, 0, len(ids))
	for _, id := range ids {
		if record, ok := r.sessions[id].delta(); ok {
			records = append(records, record)
		}
	}
	return records
}

// delta subtracts the pre-window baseline from the in-window peak. Codex
// input includes cached input, so the cached part is moved to CacheRead.
func (s *SessionState) delta() (UsageRecord, bool) {
	if s.InWindow == nil {
		return UsageRecord{}, false
	}
	before := CodexSnapshot{}
	if s.BeforeWindow != nil {
		before = *s.BeforeWindow
	}

	inputDelta := max(0, s.InWindow.InputTotal-before.InputTotal)
	outputDelta := max(0, s.InWindow.OutputTotal-before.OutputTotal)
	cacheReadDelta := max(0, s.InWindow.CacheReadTotal-before.CacheReadTotal)

	record := UsageRecord{
		Timestamp: s.InWindow.Timestamp,
		Model:     s.InWindow.Model,
		Input:     max(0, inputDelta-cacheReadDelta),
		Output:    outputDelta,
		CacheRead: cacheReadDelta,
	}
	if record.Model == "" {
		record.Model = CodexModel
	}
	if record.Total() <= 0 {
		return UsageRecord{}, false
	}
	return record, true
}

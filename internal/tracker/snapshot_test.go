package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotAt(ts time.Time, input, output, cacheRead int64) CodexSnapshot {
	return CodexSnapshot{
		Timestamp:      ts,
		Model:          CodexModel,
		InputTotal:     input,
		OutputTotal:    output,
		CacheReadTotal: cacheRead,
		TotalTokens:    input + output,
	}
}

func testWindow() Window {
	start := beijing(2026, 2, 15, 0, 0, 0)
	return Window{Start: start, End: start.Add(11 * time.Hour)}
}

func TestSnapshotReducer_DeduplicatesRepeatedSnapshots(t *testing.T) {
	w := testWindow()
	r := NewSnapshotReducer(w)

	r.Observe("s1", snapshotAt(w.Start.Add(-time.Hour), 60, 10, 30))
	r.Observe("s1", snapshotAt(w.Start.Add(time.Hour), 80, 12, 40))
	r.Observe("s1", snapshotAt(w.Start.Add(2*time.Hour), 95, 15, 60))
	r.Observe("s1", snapshotAt(w.Start.Add(2*time.Hour), 95, 15, 60))

	records := r.Records()
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, int64(5), rec.Input)
	assert.Equal(t, int64(5), rec.Output)
	assert.Equal(t, int64(30), rec.CacheRead)
	assert.Equal(t, int64(0), rec.CacheCreate)
	assert.Equal(t, int64(40), rec.Total())
	assert.Equal(t, CodexModel, rec.Model)
}

func TestSnapshotReducer_OrderInsensitive(t *testing.T) {
	w := testWindow()
	snaps := []CodexSnapshot{
		snapshotAt(w.Start.Add(2*time.Hour), 95, 15, 60),
		snapshotAt(w.Start.Add(-2*time.Hour), 20, 2, 0),
		snapshotAt(w.Start.Add(time.Hour), 80, 12, 40),
		snapshotAt(w.Start.Add(-time.Hour), 60, 10, 30),
	}

	forward := NewSnapshotReducer(w)
	backward := NewSnapshotReducer(w)
	for i := range snaps {
		forward.Observe("s1", snaps[i])
		backward.Observe("s1", snaps[len(snaps)-1-i])
	}

	assert.Equal(t, forward.Records(), backward.Records())
}

func TestSnapshotReducer_TieKeepsLaterTimestamp(t *testing.T) {
	w := testWindow()
	r := NewSnapshotReducer(w)

	later := snapshotAt(w.Start.Add(3*time.Hour), 50, 5, 0)
	r.Observe("s1", later)
	r.Observe("s1", snapshotAt(w.Start.Add(time.Hour), 50, 5, 0))

	state, ok := r.State("s1")
	require.True(t, ok)
	require.NotNil(t, state.InWindow)
	assert.True(t, state.InWindow.Timestamp.Equal(later.Timestamp))
}

func TestSnapshotReducer_NoBaselineUsesZero(t *testing.T) {
	w := testWindow()
	r := NewSnapshotReducer(w)
	r.Observe("fresh", snapshotAt(w.Start.Add(time.Minute), 100, 20, 70))

	records := r.Records()
	require.Len(t, records, 1)
	assert.Equal(t, int64(30), records[0].Input)
	assert.Equal(t, int64(70), records[0].CacheRead)
	assert.Equal(t, int64(20), records[0].Output)
}

func TestSnapshotReducer_RegressionClampsToZero(t *testing.T) {
	w := testWindow()
	r := NewSnapshotReducer(w)

	// in-window totals regressed below the baseline after a logging race
	r.Observe("s1", snapshotAt(w.Start.Add(-time.Hour), 100, 50, 10))
	r.Observe("s1", snapshotAt(w.Start.Add(time.Hour), 90, 40, 5))

	assert.Empty(t, r.Records())
}

func TestSnapshotReducer_IgnoresOutsideAndUntimed(t *testing.T) {
	w := testWindow()
	r := NewSnapshotReducer(w)

	r.Observe("late", snapshotAt(w.End, 100, 10, 0))
	r.Observe("late", snapshotAt(w.End.Add(time.Hour), 200, 10, 0))
	r.Observe("untimed", snapshotAt(time.Time{}, 100, 10, 0))
	r.Observe("before-only", snapshotAt(w.Start.Add(-time.Minute), 100, 10, 0))

	assert.Empty(t, r.Records())
	_, ok := r.State("late")
	assert.False(t, ok)
	assert.Equal(t, 1, r.Sessions())
}

func TestSnapshotReducer_BoundaryAtWindowStartIsInWindow(t *testing.T) {
	w := testWindow()
	r := NewSnapshotReducer(w)
	r.Observe("s1", snapshotAt(w.Start, 10, 1, 0))

	state, ok := r.State("s1")
	require.True(t, ok)
	assert.Nil(t, state.BeforeWindow)
	assert.NotNil(t, state.InWindow)
}

func TestSnapshotReducer_SessionsAreIndependent(t *testing.T) {
	w := testWindow()
	r := NewSnapshotReducer(w)

	r.Observe("b", snapshotAt(w.Start.Add(time.Hour), 10, 0, 0))
	r.Observe("a", snapshotAt(w.Start.Add(time.Hour), 30, 5, 0))
	r.Observe("a", snapshotAt(w.Start.Add(-time.Hour), 20, 5, 0))

	records := r.Records()
	require.Len(t, records, 2)
	assert.Equal(t, int64(10), records[0].Total(), "session a sorts first")
	assert.Equal(t, int64(10), records[1].Total())
}

func TestSnapshotReducer_ObserveLine(t *testing.T) {
	w := testWindow()
	r := NewSnapshotReducer(w)

	inWindow := w.Start.Add(time.Hour).UTC().Format(time.RFC3339)
	assert.True(t, r.ObserveLine("s1", tokenCountLine(inWindow, 10, 4, 2)))
	assert.False(t, r.ObserveLine("s1", "{corrupt"))
	assert.False(t, r.ObserveLine("s1", `{"type":"session_meta"}`))

	records := r.Records()
	require.Len(t, records, 1)
	assert.Equal(t, int64(12), records[0].Total())
}

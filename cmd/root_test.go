package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ari/token-report/internal/tracker"
	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2026-02-15T03:00:00Z is 11:00 in UTC+8
var fixedNow = time.Date(2026, 2, 15, 3, 0, 0, 0, time.UTC)

type testEnv struct {
	configPath string
	claudeDir  string
	codexDir   string
	dbPath     string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	prev := clock
	clock = tracker.ClockFunc(func() time.Time { return fixedNow })
	t.Cleanup(func() { clock = prev })

	dir := t.TempDir()
	env := &testEnv{
		configPath: filepath.Join(dir, "config.toml"),
		claudeDir:  filepath.Join(dir, "claude"),
		codexDir:   filepath.Join(dir, "codex"),
		dbPath:     filepath.Join(dir, "state", "cache.db"),
	}
	content := fmt.Sprintf("database = %q\n\n[sources]\nclaude = %q\ncodex = %q\n", env.dbPath, env.claudeDir, env.codexDir)
	require.NoError(t, os.WriteFile(env.configPath, []byte(content), 0644))
	return env
}

func (e *testEnv) writeLog(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l + "\n")
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
	mt := fixedNow.Add(-time.Hour)
	require.NoError(t, os.Chtimes(path, mt, mt))
}

func (e *testEnv) seed(t *testing.T) {
	e.writeLog(t, filepath.Join(e.claudeDir, "proj", "a.jsonl"),
		`{"timestamp":"2026-02-15T01:00:00Z","message":{"model":"claude-sonnet-4-5","usage":{"input_tokens":100,"output_tokens":50,"cache_read_input_tokens":10}}}`,
		`not json`,
	)
	e.writeLog(t, filepath.Join(e.codexDir, "2026", "02", "15", "rollout-2026-02-15T09-00-00-0b5f2b8e-6a4e-4c53-9d5e-3f0c9a1b2c3d.jsonl"),
		`{"timestamp":"2026-02-15T01:00:00Z","type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":40,"cached_input_tokens":20,"output_tokens":5,"total_tokens":45}}}}`,
		`{"timestamp":"2026-02-15T02:00:00Z","type":"event_msg","payload":{"type":"token_count","info":{"total_token_usage":{"input_tokens":95,"cached_input_tokens":60,"output_tokens":15,"total_tokens":110}}}}`,
	)
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeResult(t *testing.T, out string) jsonResult {
	t.Helper()
	var res jsonResult
	require.NoError(t, sonic.UnmarshalString(out, &res))
	return res
}

func TestReport_JSON(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := env.run(t, "report", "today", "--json")
	require.NoError(t, err)

	res := decodeResult(t, out)
	require.True(t, res.Success, out)
	require.NotNil(t, res.Data)
	assert.Equal(t, tracker.PeriodToday, res.Data.Period)
	assert.Equal(t, int64(160+110), res.Data.Total)
	assert.Equal(t, 2, res.Data.ModelCount)
	assert.Equal(t, "sonnet", res.Data.Models[0].Name)
	assert.Equal(t, "codex", res.Data.Models[1].Name)
	assert.Equal(t, int64(35), res.Data.Models[1].Input)
	assert.Equal(t, int64(60), res.Data.Models[1].CacheRead)
	assert.True(t, res.Data.StartTime.Equal(time.Date(2026, 2, 14, 16, 0, 0, 0, time.UTC)))
	assert.True(t, res.Data.EndTime.Equal(fixedNow))
	assert.NotEmpty(t, res.ComputedAt)
}

func TestReport_PersistedCacheAndRefresh(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.claudeDir, "b.jsonl")
	env.writeLog(t, path,
		`{"timestamp":"2026-02-10T01:00:00Z","message":{"model":"claude-opus-4","usage":{"input_tokens":7,"output_tokens":3}}}`)
	mt := time.Date(2026, 2, 10, 2, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mt, mt))

	out, err := env.run(t, "report", "week", "--json")
	require.NoError(t, err)
	first := decodeResult(t, out)
	require.True(t, first.Success, out)
	assert.Equal(t, int64(10), first.Data.Total)
	assert.Equal(t, "opus", first.Data.Models[0].Name)

	// a new process serves the persisted entry even though the logs are gone
	require.NoError(t, os.RemoveAll(env.claudeDir))
	out, err = env.run(t, "report", "week", "--json")
	require.NoError(t, err)
	assert.Equal(t, int64(10), decodeResult(t, out).Data.Total)

	out, err = env.run(t, "report", "week", "--json", "--refresh")
	require.NoError(t, err)
	refreshed := decodeResult(t, out)
	assert.True(t, refreshed.Success)
	assert.Equal(t, int64(0), refreshed.Data.Total)
}

func TestReport_Text(t *testing.T) {
	env := newTestEnv(t)
	env.seed(t)

	out, err := env.run(t, "report")
	require.NoError(t, err)
	assert.Contains(t, out, "Token Usage - Today")
	assert.Contains(t, out, "sonnet")
	assert.Contains(t, out, "(270)")
}

func TestReport_InvalidPeriod(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.run(t, "report", "year")
	require.Error(t, err)
	assert.ErrorIs(t, err, tracker.ErrInvalidPeriod)
	assert.Contains(t, err.Error(), "use today, week, or month")
}

func TestReport_InvalidPeriodJSON(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "report", "decade", "--json")
	require.NoError(t, err)

	res := decodeResult(t, out)
	assert.False(t, res.Success)
	assert.Nil(t, res.Data)
	assert.Equal(t, "INVALID_PERIOD", res.Code)
	assert.Contains(t, res.Error, "decade")
}

func TestInfo(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "info")
	require.NoError(t, err)
	assert.Contains(t, out, env.claudeDir)
	assert.Contains(t, out, "UTC+8")
	assert.Contains(t, out, "2026-02-15 00:00 → 2026-02-15 11:00")
	assert.Contains(t, out, "2026-02-08 00:00 → 2026-02-15 00:00")
	assert.Contains(t, out, "2026-01-16 00:00 → 2026-02-15 00:00")
}

func TestCacheClear(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.run(t, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "No cache at")

	env.seed(t)
	_, err = env.run(t, "report", "today", "--json")
	require.NoError(t, err)
	_, err = env.run(t, "report", "month", "--json")
	require.NoError(t, err)

	out, err = env.run(t, "cache", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "Cleared 2 cached reports")
}

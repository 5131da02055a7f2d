package refresh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ari/token-report/internal/tracker"
	"github.com/ari/token-report/internal/usage"
	"golang.org/x/sync/singleflight"
)

// Defaults for the staleness rules
const (
	DefaultTodayInterval = 5 * time.Minute
	DefaultDailyGrace    = 5 * time.Minute
)

// ErrRefreshFailed marks a view whose recompute failed
var ErrRefreshFailed = errors.New("refresh failed")

// Aggregator computes a fresh report for a period
type Aggregator interface {
	Aggregate(ctx context.Context, period tracker.Period) (*usage.Report, error)
}

// EntryStore persists entries between processes
type EntryStore interface {
	Load(ctx context.Context) ([]Entry, error)
	Save(ctx context.Context, entry Entry) error
}

// Entry is one cached report with the metadata its staleness rule needs.
// Entries are replaced whole and never mutated after publication.
type Entry struct {
	Period     tracker.Period
	Report     *usage.Report
	ComputedAt time.Time
	// CivilDay is the day a today entry was computed for
	CivilDay string
	// DailyKey is the daily batch a week or month entry belongs to
	DailyKey string
}

// State of one period slot
type State int

const (
	StateStale State = iota
	StateFresh
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateRefreshing:
		return "refreshing"
	default:
		return "stale"
	}
}

// View is what a consumer renders for a period. Report is nil only for a
// placeholder returned by Select before the period was ever computed.
type View struct {
	Period      tracker.Period
	Report      *usage.Report
	ComputedAt  time.Time
	Placeholder bool
	// Stale is set when a previous entry is served after a failed refresh
	Stale bool
	// Err carries the recoverable refresh failure, wrapping ErrRefreshFailed
	Err error
}

// Options configures a Cache
type Options struct {
	TodayInterval time.Duration
	DailyGrace    time.Duration
	Store         EntryStore
	Logger        *slog.Logger
}

// Cache holds one report per period and recomputes each on its own cadence
type Cache struct {
	agg      Aggregator
	calendar *tracker.Calendar
	opts     Options

	mu       sync.RWMutex
	entries  map[tracker.Period]*Entry
	inflight map[tracker.Period]bool

	group singleflight.Group
}

// New creates an empty cache
func New(agg Aggregator, cal *tracker.Calendar, opts Options) *Cache {
	if opts.TodayInterval <= 0 {
		opts.TodayInterval = DefaultTodayInterval
	}
	if opts.DailyGrace <= 0 {
		opts.DailyGrace = DefaultDailyGrace
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		agg:      agg,
		calendar: cal,
		opts:     opts,
		entries:  make(map[tracker.Period]*Entry),
		inflight: make(map[tracker.Period]bool),
	}
}

// Load warms the cache from the configured store. Entries for unknown
// periods or without a report are ignored.
func (c *Cache) Load(ctx context.Context) error {
	if c.opts.Store == nil {
		return nil
	}
	entries, err := c.opts.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load cached entries: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range entries {
		e := entries[i]
		if !e.Period.Valid() || e.Report == nil {
			continue
		}
		if current, ok := c.entries[e.Period]; ok && !e.ComputedAt.After(current.ComputedAt) {
			continue
		}
		c.entries[e.Period] = &e
	}
	return nil
}

// Select returns whatever is cached for period without recomputing
func (c *Cache) Select(period tracker.Period) View {
	entry := c.entry(period)
	if entry == nil {
		return View{Period: period, Placeholder: true}
	}
	return viewOf(entry)
}

// State reports the slot state of period at the current instant
func (c *Cache) State(period tracker.Period) State {
	c.mu.RLock()
	refreshing := c.inflight[period]
	entry := c.entries[period]
	c.mu.RUnlock()

	switch {
	case refreshing:
		return StateRefreshing
	case c.fresh(entry, c.calendar.Now()):
		return StateFresh
	default:
		return StateStale
	}
}

// Invalidate drops the cached entry of period so the next Get recomputes
func (c *Cache) Invalidate(period tracker.Period) {
	c.mu.Lock()
	delete(c.entries, period)
	c.mu.Unlock()
}

// Get returns a fresh view of period, recomputing when the cached entry is
// stale. Concurrent callers for the same period share one recompute. A failed
// recompute still returns a renderable view with Err set. The returned error
// is non-nil only for an invalid period or a cancelled ctx.
func (c *Cache) Get(ctx context.Context, period tracker.Period) (View, error) {
	if !period.Valid() {
		return View{}, fmt.Errorf("%w: %q", tracker.ErrInvalidPeriod, period)
	}

	if entry := c.entry(period); c.fresh(entry, c.calendar.Now()) {
		return viewOf(entry), nil
	}

	// the recompute outlives any single caller that joined it
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(period), func() (any, error) {
		return c.recompute(detached, period)
	})

	select {
	case <-ctx.Done():
		return View{}, ctx.Err()
	case res := <-ch:
		if res.Err == nil {
			return viewOf(res.Val.(*Entry)), nil
		}
		return c.failedView(period, res.Err), nil
	}
}

func (c *Cache) recompute(ctx context.Context, period tracker.Period) (*Entry, error) {
	// a flight that finished between the caller's check and DoChan already
	// published a fresh entry
	if entry := c.entry(period); c.fresh(entry, c.calendar.Now()) {
		return entry, nil
	}

	c.setInflight(period, true)
	defer c.setInflight(period, false)

	report, err := c.agg.Aggregate(ctx, period)
	if err != nil {
		c.opts.Logger.Warn("refresh failed", "period", period, "error", err)
		return nil, err
	}

	now := c.calendar.Now()
	entry := &Entry{
		Period:     period,
		Report:     report,
		ComputedAt: now,
		CivilDay:   c.calendar.CivilDay(now),
		DailyKey:   c.calendar.DailyBatchKey(now, c.opts.DailyGrace),
	}

	c.mu.Lock()
	c.entries[period] = entry
	c.mu.Unlock()

	if c.opts.Store != nil {
		if err := c.opts.Store.Save(ctx, *entry); err != nil {
			c.opts.Logger.Warn("failed to persist cache entry", "period", period, "error", err)
		}
	}
	c.opts.Logger.Info("refreshed", "period", period, "total", report.Total)
	return entry, nil
}

func (c *Cache) failedView(period tracker.Period, err error) View {
	wrapped := fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	if entry := c.entry(period); entry != nil {
		v := viewOf(entry)
		v.Stale = true
		v.Err = wrapped
		return v
	}

	window, werr := c.calendar.Window(period)
	if werr != nil {
		window = tracker.Window{}
	}
	return View{
		Period: period,
		Report: usage.EmptyReport(period, window),
		Err:    wrapped,
	}
}

// fresh applies the period's staleness rule
func (c *Cache) fresh(entry *Entry, now time.Time) bool {
	if entry == nil {
		return false
	}
	switch entry.Period {
	case tracker.PeriodToday:
		return entry.CivilDay == c.calendar.CivilDay(now) && now.Sub(entry.ComputedAt) <= c.opts.TodayInterval
	case tracker.PeriodWeek, tracker.PeriodMonth:
		return entry.DailyKey == c.calendar.DailyBatchKey(now, c.opts.DailyGrace)
	default:
		return false
	}
}

func (c *Cache) entry(period tracker.Period) *Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[period]
}

func (c *Cache) setInflight(period tracker.Period, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if on {
		c.inflight[period] = true
	} else {
		delete(c.inflight, period)
	}
}

func viewOf(entry *Entry) View {
	return View{
		Period:     entry.Period,
		Report:     entry.Report,
		ComputedAt: entry.ComputedAt,
	}
}

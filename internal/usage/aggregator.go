package usage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ari/token-report/internal/scanner"
	"github.com/ari/token-report/internal/tracker"
	"golang.org/x/sync/errgroup"
)

// Scanner returns the candidate log files of one source for a window
type Scanner interface {
	Scan(ctx context.Context, req scanner.Request) (*scanner.Result, error)
}

// Sources are the log roots of the two supported tools
type Sources struct {
	Claude string
	Codex  string
}

// SourceStats describes what one source contributed to a report
type SourceStats struct {
	Files        int  `json:"files"`
	TotalMatched int  `json:"totalMatched"`
	ScannedCount int  `json:"scannedCount"`
	Truncated    bool `json:"truncated"`
	Records      int  `json:"records"`
}

// Report is ViewData plus the window it was computed for
type Report struct {
	ViewData
	Period      tracker.Period                 `json:"period"`
	StartTime   time.Time                      `json:"startTime"`
	EndTime     time.Time                      `json:"endTime"`
	RecordCount int                            `json:"recordCount"`
	Truncated   bool                           `json:"truncated"`
	Sources     map[tracker.Source]SourceStats `json:"sources"`
}

// EmptyReport is the zero-usage report for a window
func EmptyReport(period tracker.Period, window tracker.Window) *Report {
	return &Report{
		ViewData:  BuildView(nil),
		Period:    period,
		StartTime: window.Start,
		EndTime:   window.End,
		Sources:   map[tracker.Source]SourceStats{},
	}
}

// Result is the consumer-facing outcome of one aggregation
type Result struct {
	Success bool    `json:"success"`
	Data    *Report `json:"data,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Aggregator computes windowed usage reports. It keeps no state between calls.
type Aggregator struct {
	scanner  Scanner
	calendar *tracker.Calendar
	sources  Sources
	logger   *slog.Logger
}

// NewAggregator wires an aggregator to its scanner and calendar
func NewAggregator(s Scanner, cal *tracker.Calendar, sources Sources, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Aggregator{scanner: s, calendar: cal, sources: sources, logger: logger}
}

// Calendar returns the calendar windows are computed with
func (a *Aggregator) Calendar() *tracker.Calendar {
	return a.calendar
}

// Run aggregates a period given by name and reports the outcome as a Result
func (a *Aggregator) Run(ctx context.Context, period string) Result {
	p, err := tracker.ParsePeriod(period)
	if err != nil {
		return Result{Error: err.Error()}
	}
	report, err := a.Aggregate(ctx, p)
	if err != nil {
		return Result{Error: err.Error()}
	}
	return Result{Success: true, Data: report}
}

// Aggregate scans both sources and builds the report for period
func (a *Aggregator) Aggregate(ctx context.Context, period tracker.Period) (*Report, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("%w: %q", tracker.ErrInvalidPeriod, period)
	}
	window, err := a.calendar.Window(period)
	if err != nil {
		return nil, err
	}

	var claude, codex *scanner.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := a.scan(gctx, tracker.SourceClaude, a.sources.Claude, window)
		claude = res
		return err
	})
	g.Go(func() error {
		res, err := a.scan(gctx, tracker.SourceCodex, a.sources.Codex, window)
		codex = res
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fromClaude := claudeRecords(claude, window)
	fromCodex := codexRecords(codex, window)

	records := make([]tracker.UsageRecord, 0, len(fromClaude)+len(fromCodex))
	records = append(records, fromClaude...)
	records = append(records, fromCodex...)

	report := &Report{
		ViewData:    BuildView(records),
		Period:      period,
		StartTime:   window.Start,
		EndTime:     window.End,
		RecordCount: len(records),
		Truncated:   claude.Truncated || codex.Truncated,
		Sources: map[tracker.Source]SourceStats{
			tracker.SourceClaude: statsOf(claude, len(fromClaude)),
			tracker.SourceCodex:  statsOf(codex, len(fromCodex)),
		},
	}

	a.logger.Info("aggregated usage",
		"period", period,
		"start", window.Start,
		"end", window.End,
		"records", report.RecordCount,
		"models", report.ModelCount,
		"total", report.Total,
		"truncated", report.Truncated)
	return report, nil
}

func (a *Aggregator) scan(ctx context.Context, source tracker.Source, root string, window tracker.Window) (*scanner.Result, error) {
	if root == "" {
		return &scanner.Result{}, nil
	}
	res, err := a.scanner.Scan(ctx, scanner.Request{SourceRoot: root, WindowStart: window.Start, WindowEnd: window.End})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrScanFailed, source, err)
	}
	if res == nil {
		res = &scanner.Result{}
	}
	if res.Truncated {
		a.logger.Warn("scan truncated, usage may be undercounted",
			"source", source, "matched", res.TotalMatched, "scanned", res.ScannedCount)
	}
	return res, nil
}

// claudeRecords parses every line and keeps records inside the window. The
// scanner only filters by file mtime, which is coarser than line timestamps.
func claudeRecords(res *scanner.Result, window tracker.Window) []tracker.UsageRecord {
	var records []tracker.UsageRecord
	for _, f := range res.Files {
		for _, line := range f.Lines {
			record, ok := tracker.ParseClaudeLine(line)
			if !ok || !window.Contains(record.Timestamp) {
				continue
			}
			records = append(records, record)
		}
	}
	return records
}

// codexRecords reduces cumulative snapshots per logical session, where
// rotated files sharing a session id are folded together.
func codexRecords(res *scanner.Result, window tracker.Window) []tracker.UsageRecord {
	reducer := tracker.NewSnapshotReducer(window)
	for _, f := range res.Files {
		sessionID := tracker.SessionIDFromPath(f.Path)
		for _, line := range f.Lines {
			reducer.ObserveLine(sessionID, line)
		}
	}
	return reducer.Records()
}

func statsOf(res *scanner.Result, records int) SourceStats {
	return SourceStats{
		Files:        len(res.Files),
		TotalMatched: res.TotalMatched,
		ScannedCount: res.ScannedCount,
		Truncated:    res.Truncated,
		Records:      records,
	}
}

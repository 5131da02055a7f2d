package ui

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ari/token-report/internal/refresh"
	"github.com/ari/token-report/internal/tracker"
	"github.com/ari/token-report/internal/usage"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const (
	ruleWidth = 60
	barWidth  = 20
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

var periodTitles = map[tracker.Period]string{
	tracker.PeriodToday: "Today",
	tracker.PeriodWeek:  "Last 7 Days",
	tracker.PeriodMonth: "Last 30 Days",
}

// FormatDuration formats seconds into a human-readable duration
func FormatDuration(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	d := time.Duration(seconds) * time.Second
	h := d.Hours()
	if h >= 1 {
		return fmt.Sprintf("%.1fh", h)
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

// FormatTokens formats token count with K/M suffix
func FormatTokens(tokens int64) string {
	if tokens >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(tokens)/1_000_000)
	}
	if tokens >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(tokens)/1_000)
	}
	return fmt.Sprintf("%d", tokens)
}

// FormatDateTime formats t in loc, or "-" for the zero time
func FormatDateTime(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

// Bar draws a percentage bar
func Bar(percent int, color string) string {
	filled := percent * barWidth / 100
	if filled > barWidth {
		filled = barWidth
	}
	if percent > 0 && filled == 0 {
		filled = 1
	}
	block := lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(strings.Repeat("█", filled))
	return block + mutedStyle.Render(strings.Repeat("░", barWidth-filled))
}

// DisplayReport renders a cached view of one period
func DisplayReport(w io.Writer, v refresh.View, loc *time.Location, now time.Time) {
	title := periodTitles[v.Period]
	if title == "" {
		title = string(v.Period)
	}
	fmt.Fprintf(w, "\n%s\n", titleStyle.Render("Token Usage - "+title))
	fmt.Fprintln(w, strings.Repeat("=", ruleWidth))

	if v.Err != nil {
		msg := "Refresh failed"
		if v.Stale {
			msg += ", showing previous result"
		}
		fmt.Fprintf(w, "%s\n", warnStyle.Render(fmt.Sprintf("%s: %v", msg, v.Err)))
	}

	if v.Placeholder || v.Report == nil {
		fmt.Fprintf(w, "\n  %s\n", mutedStyle.Render("Not computed yet"))
		fmt.Fprintln(w, "\n"+strings.Repeat("=", ruleWidth))
		return
	}
	r := v.Report

	fmt.Fprintf(w, "  Window:   %s → %s\n", FormatDateTime(r.StartTime, loc), FormatDateTime(r.EndTime, loc))
	if !v.ComputedAt.IsZero() {
		age := int64(now.Sub(v.ComputedAt).Seconds())
		if age < 0 {
			age = 0
		}
		fmt.Fprintf(w, "  Computed: %s %s\n", FormatDateTime(v.ComputedAt, loc), mutedStyle.Render("("+FormatDuration(age)+" ago)"))
	}
	if r.Truncated {
		fmt.Fprintf(w, "%s\n", warnStyle.Render("  Scan hit the file limit, older files were skipped"))
	}

	fmt.Fprintf(w, "\n%s\n", sectionStyle.Render("Summary"))
	fmt.Fprintf(w, "  Total Tokens:  %s (%s)\n", FormatTokens(r.Total), humanize.Comma(r.Total))
	fmt.Fprintf(w, "  Input:         %s\n", FormatTokens(r.Input))
	fmt.Fprintf(w, "  Output:        %s\n", FormatTokens(r.Output))
	fmt.Fprintf(w, "  Cache:         %s\n", FormatTokens(r.Cache))
	fmt.Fprintf(w, "  Records:       %s across %d models\n", humanize.Comma(int64(r.RecordCount)), r.ModelCount)

	if len(r.Sources) > 0 {
		fmt.Fprintf(w, "\n%s\n", sectionStyle.Render("Sources"))
		for _, src := range []tracker.Source{tracker.SourceClaude, tracker.SourceCodex} {
			s, ok := r.Sources[src]
			if !ok {
				continue
			}
			line := fmt.Sprintf("  %-8s %d files, %d records", src, s.Files, s.Records)
			if s.Truncated {
				line += warnStyle.Render(fmt.Sprintf(" (limited from %d)", s.TotalMatched))
			}
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintf(w, "\n%s\n", sectionStyle.Render("Models"))
	if len(r.Distribution) == 0 {
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render("No usage in this period"))
	}
	for _, m := range r.Distribution {
		fmt.Fprintf(w, "  %-10s %s %3d%%  %s\n", m.Name, Bar(m.Percent, m.Color), m.Percent, FormatTokens(m.Total))
	}
	if r.IsExtremeScenario {
		fmt.Fprintf(w, "  %s\n", mutedStyle.Render(fmt.Sprintf("%d models, smallest grouped into %s", r.ModelCount, usage.OthersName)))
	}

	if len(r.Models) > 0 {
		displayDetails(w, r.Models)
	}

	fmt.Fprintln(w, "\n"+strings.Repeat("=", ruleWidth))
}

// displayDetails lists every ranked model, including those grouped into Others
func displayDetails(w io.Writer, models []usage.ModelAggregate) {
	fmt.Fprintf(w, "\n%s\n", sectionStyle.Render("Details"))
	fmt.Fprintf(w, "  %-10s %12s %12s %12s %14s\n", "Model", "Input", "Output", "Cache", "Total")
	fmt.Fprintf(w, "  %s\n", strings.Repeat("-", 64))
	for _, m := range models {
		fmt.Fprintf(w, "  %-10s %12s %12s %12s %14s\n",
			m.Name,
			humanize.Comma(m.Input),
			humanize.Comma(m.Output),
			humanize.Comma(m.CacheRead+m.CacheCreate),
			humanize.Comma(m.Total))
	}
}

// ErrorCode returns the stable failure code shown next to an error
func ErrorCode(err error) string {
	if errors.Is(err, refresh.ErrRefreshFailed) {
		return "REFRESH_FAILED"
	}
	return usage.Code(err)
}

// Error displays an error message
func Error(msg string) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+msg))
}

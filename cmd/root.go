package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ari/token-report/internal/config"
	"github.com/ari/token-report/internal/logging"
	"github.com/ari/token-report/internal/refresh"
	"github.com/ari/token-report/internal/scanner"
	"github.com/ari/token-report/internal/store"
	"github.com/ari/token-report/internal/tracker"
	"github.com/ari/token-report/internal/ui"
	"github.com/ari/token-report/internal/usage"
	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
)

// clock is replaced in tests
var clock = tracker.SystemClock

type options struct {
	cfgPath string
	debug   bool
	cfg     *config.Config
	logger  *slog.Logger
	closer  io.Closer
}

// newRootCmd builds the command tree. Each call gets its own flag state.
func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "token-report",
		Short:         "Report AI coding agent token usage",
		Long:          `Aggregates token usage from Claude and Codex session logs into today, week and month reports by model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Skip config loading for help command
			if cmd.Name() == "help" {
				return nil
			}
			return opts.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if opts.closer != nil {
				opts.closer.Close()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.cfgPath, "config", "c", "", "Path to config file (default: ~/.token-report/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Write debug logs")

	rootCmd.AddCommand(newReportCmd(opts))
	rootCmd.AddCommand(newInfoCmd(opts))
	rootCmd.AddCommand(newCacheCmd(opts))
	return rootCmd
}

func (o *options) load() error {
	cfg, err := config.LoadConfig(o.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	o.cfg = cfg

	logger, closer, err := logging.New(logging.Options{
		Debug: o.debug || cfg.Log.Debug,
		File:  cfg.Log.File,
		Dir:   filepath.Join(config.DefaultDir(), "logs"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	o.logger = logger
	o.closer = closer
	return nil
}

// engine is the wired pipeline behind every report
type engine struct {
	calendar *tracker.Calendar
	cache    *refresh.Cache
	store    *store.Store
}

func (o *options) newEngine(ctx context.Context) *engine {
	cal := tracker.NewCalendar(clock, o.cfg.Offset())
	dir := scanner.New(o.cfg.Scanner.MaxFiles, o.cfg.Scanner.Extension, o.logger)
	agg := usage.NewAggregator(dir, cal, usage.Sources{
		Claude: o.cfg.Sources.Claude,
		Codex:  o.cfg.Sources.Codex,
	}, o.logger)

	e := &engine{calendar: cal}
	refreshOpts := refresh.Options{
		TodayInterval: o.cfg.Refresh.TodayInterval,
		DailyGrace:    o.cfg.Refresh.DailyGrace,
		Logger:        o.logger,
	}
	if o.cfg.Cache.Persist {
		s, err := store.New(o.cfg.GetDatabasePath())
		if err != nil {
			// reports still work without persistence
			o.logger.Warn("cache store unavailable", "path", o.cfg.GetDatabasePath(), "error", err)
		} else {
			e.store = s
			refreshOpts.Store = s
		}
	}

	e.cache = refresh.New(agg, cal, refreshOpts)
	if err := e.cache.Load(ctx); err != nil {
		o.logger.Warn("failed to warm cache", "error", err)
	}
	return e
}

func (e *engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

func newReportCmd(opts *options) *cobra.Command {
	var (
		asJSON      bool
		forceReload bool
	)

	cmd := &cobra.Command{
		Use:       "report [today|week|month]",
		Short:     "Show token usage for a period",
		Long:      "Show token usage by model. today runs from local midnight to now, week and month cover the 7 and 30 whole days before today (default: today)",
		Args:      cobra.RangeArgs(0, 1),
		ValidArgs: []string{string(tracker.PeriodToday), string(tracker.PeriodWeek), string(tracker.PeriodMonth)},
		RunE: func(cmd *cobra.Command, args []string) error {
			period := tracker.PeriodToday
			if len(args) > 0 {
				p, err := tracker.ParsePeriod(args[0])
				if err != nil {
					if asJSON {
						return writeJSON(cmd.OutOrStdout(), failureOf(err))
					}
					return err
				}
				period = p
			}

			ctx := cmd.Context()
			e := opts.newEngine(ctx)
			defer e.Close()

			if forceReload {
				e.cache.Invalidate(period)
			}
			view, err := e.cache.Get(ctx, period)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), resultOf(view))
			}
			ui.DisplayReport(cmd.OutOrStdout(), view, e.calendar.Location(), e.calendar.Now())
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVarP(&forceReload, "refresh", "r", false, "Recompute even if the cached report is fresh")
	return cmd
}

// jsonResult is the machine-readable report envelope
type jsonResult struct {
	usage.Result
	Code       string `json:"code,omitempty"`
	Stale      bool   `json:"stale,omitempty"`
	ComputedAt string `json:"computedAt,omitempty"`
}

func resultOf(v refresh.View) jsonResult {
	out := jsonResult{Result: usage.Result{Success: v.Err == nil, Data: v.Report}, Stale: v.Stale}
	if v.Err != nil {
		out.Error = v.Err.Error()
		out.Code = ui.ErrorCode(v.Err)
	}
	if !v.ComputedAt.IsZero() {
		out.ComputedAt = v.ComputedAt.Format(time.RFC3339)
	}
	return out
}

// failureOf is the envelope of a request that produced no report
func failureOf(err error) jsonResult {
	return jsonResult{Result: usage.Result{Error: err.Error()}, Code: ui.ErrorCode(err)}
}

func writeJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newInfoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show loaded configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			cal := tracker.NewCalendar(clock, cfg.Offset())
			w := cmd.OutOrStdout()

			fmt.Fprintf(w, "Config loaded:\n")
			fmt.Fprintf(w, "  Claude:     %s\n", orDisabled(cfg.Sources.Claude))
			fmt.Fprintf(w, "  Codex:      %s\n", orDisabled(cfg.Sources.Codex))
			fmt.Fprintf(w, "  Timezone:   %s\n", cal.Location())
			fmt.Fprintf(w, "  Max files:  %d (%s)\n", cfg.Scanner.MaxFiles, cfg.Scanner.Extension)
			fmt.Fprintf(w, "  Refresh:    today every %s, daily grace %s\n", cfg.Refresh.TodayInterval, cfg.Refresh.DailyGrace)
			if cfg.Cache.Persist {
				fmt.Fprintf(w, "  Database:   %s\n", cfg.GetDatabasePath())
			} else {
				fmt.Fprintf(w, "  Database:   (persistence off)\n")
			}

			fmt.Fprintf(w, "\nWindows:\n")
			for _, p := range tracker.Periods {
				window, err := cal.Window(p)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "  %-6s %s → %s\n", p, ui.FormatDateTime(window.Start, cal.Location()), ui.FormatDateTime(window.End, cal.Location()))
			}
			return nil
		},
	}
}

func orDisabled(path string) string {
	if path == "" {
		return "(disabled)"
	}
	return path
}

func newCacheCmd(opts *options) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage persisted reports",
	}

	cacheCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every persisted report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath := opts.cfg.GetDatabasePath()
			if _, err := os.Stat(dbPath); os.IsNotExist(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "No cache at %s\n", dbPath)
				return nil
			}

			s, err := store.New(dbPath)
			if err != nil {
				return fmt.Errorf("error opening database: %w", err)
			}
			defer s.Close()

			n, err := s.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cached reports\n", n)
			return nil
		},
	})
	return cacheCmd
}

// Execute runs the CLI
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		ui.Error(err.Error())
		os.Exit(1)
	}
}

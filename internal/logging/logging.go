package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
)

// MaxLogFiles is how many per-run log files are kept in the log directory
const MaxLogFiles = 50

// Options configures New
type Options struct {
	Debug bool
	// File is an explicit log file. When empty and Debug is set, a new file
	// is created in Dir for every run.
	File string
	Dir  string
}

// New builds the process logger. Without Debug or File all records are
// discarded. The returned closer releases the log file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	if !opts.Debug && opts.File == "" {
		return Discard(), nopCloser{}, nil
	}

	logFilePath := opts.File
	if logFilePath == "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		if err := rotateLogs(opts.Dir, MaxLogFiles); err != nil {
			// rotation failure shouldn't prevent logging
			fmt.Fprintf(os.Stderr, "Warning: log rotation failed: %v\n", err)
		}
		logFilePath = filepath.Join(opts.Dir, uuid.New().String()+".log")
	} else if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log file: %w", err)
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level}))
	logger.Debug("logging initialized", "log_file", logFilePath)
	return logger, logFile, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Discard returns a logger that drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// rotateLogs removes the oldest .log files so that one more fits under max
func rotateLogs(logDir string, max int) error {
	entries, err := os.ReadDir(logDir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	type logFileInfo struct {
		path    string
		modTime int64
	}
	var logFiles []logFileInfo
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		logFiles = append(logFiles, logFileInfo{
			path:    filepath.Join(logDir, entry.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}

	if len(logFiles) < max {
		return nil
	}

	// oldest first
	sort.Slice(logFiles, func(i, j int) bool {
		return logFiles[i].modTime < logFiles[j].modTime
	})

	for _, f := range logFiles[:len(logFiles)-max+1] {
		if err := os.Remove(f.path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to delete old log file %s: %v\n", f.path, err)
		}
	}
	return nil
}

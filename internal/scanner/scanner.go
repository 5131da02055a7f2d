package scanner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// DefaultMaxFiles caps how many files one scan returns
const DefaultMaxFiles = 2000

// Request asks for the log files under SourceRoot modified in [WindowStart, WindowEnd)
type Request struct {
	SourceRoot  string
	WindowStart time.Time
	WindowEnd   time.Time
}

// File is one matched log file with its content split into lines
type File struct {
	Path    string
	Lines   []string
	ModTime time.Time
}

// Result is a successful scan. When more files matched than the cap allows,
// only the most recently modified ones are returned and Truncated is set.
type Result struct {
	Files        []File
	TotalMatched int
	// ScannedCount is how many files were read, after the cap
	ScannedCount int
	Truncated    bool
}

// Dir scans a directory tree for log files
type Dir struct {
	MaxFiles  int
	Extension string
	Logger    *slog.Logger
}

// New creates a directory scanner for files with the given extension
func New(maxFiles int, extension string, logger *slog.Logger) *Dir {
	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	if extension == "" {
		extension = ".jsonl"
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Dir{MaxFiles: maxFiles, Extension: extension, Logger: logger}
}

type candidate struct {
	path    string
	modTime time.Time
}

// Scan walks the source root. A root that does not exist yields an empty
// result; any other failure to read the root is returned as an error.
func (d *Dir) Scan(ctx context.Context, req Request) (*Result, error) {
	info, err := os.Stat(req.SourceRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.Logger.Debug("source root missing", "root", req.SourceRoot)
			return &Result{}, nil
		}
		return nil, fmt.Errorf("failed to stat source root %s: %w", req.SourceRoot, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root is not a directory: %s", req.SourceRoot)
	}

	var matches []candidate
	err = filepath.WalkDir(req.SourceRoot, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if path == req.SourceRoot {
				return err
			}
			// unreadable subtrees are skipped
			d.Logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(path), d.Extension) {
			return nil
		}
		fi, err := entry.Info()
		if err != nil {
			return nil
		}
		mtime := fi.ModTime()
		if mtime.Before(req.WindowStart) || !mtime.Before(req.WindowEnd) {
			return nil
		}
		matches = append(matches, candidate{path: path, modTime: mtime})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", req.SourceRoot, err)
	}

	// Sort by modification time, newest first
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].modTime.Equal(matches[j].modTime) {
			return matches[i].modTime.After(matches[j].modTime)
		}
		return matches[i].path < matches[j].path
	})

	result := &Result{TotalMatched: len(matches)}
	if len(matches) > d.MaxFiles {
		matches = matches[:d.MaxFiles]
		result.Truncated = true
		d.Logger.Warn("scan truncated", "root", req.SourceRoot, "matched", result.TotalMatched, "kept", d.MaxFiles)
	}

	for _, m := range matches {
		lines, err := readLines(m.path)
		if err != nil {
			d.Logger.Debug("skipping unreadable file", "path", m.path, "error", err)
			continue
		}
		result.Files = append(result.Files, File{Path: m.path, Lines: lines, ModTime: m.modTime})
	}
	// unreadable files were selected but not scanned
	result.ScannedCount = len(result.Files)

	return result, nil
}

// readLines reads every non-empty line. Lines are not length-capped since
// assistant entries with large content still carry usage.
func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	reader := bufio.NewReaderSize(file, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if line = strings.TrimRight(line, "\r\n"); line != "" {
			lines = append(lines, line)
		}
		if err == io.EOF {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
	}
}

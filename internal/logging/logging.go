package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultPrefix        = "quantgemini"
	defaultRetentionDays = 7
	fileDateLayout       = "20060102"
)

const (
	envLogLevel  = "QUANTGEMINI_LOG_LEVEL"
	envLogFormat = "QUANTGEMINI_LOG_FORMAT"
)

// DailyWriter appends to <prefix>-YYYYMMDD.log in dir, opening a new file
// when the date changes and removing files older than the retention window.
type DailyWriter struct {
	dir           string
	prefix        string
	retentionDays int
	now           func() time.Time

	mu          sync.Mutex
	currentDate string
	file        *os.File
}

// NewDailyWriter creates a daily rotating writer with the default prefix.
func NewDailyWriter(dir string, retentionDays int) (*DailyWriter, error) {
	return NewDailyWriterWithPrefix(dir, defaultPrefix, retentionDays)
}

// NewDailyWriterWithPrefix creates a daily rotating writer with a custom prefix.
func NewDailyWriterWithPrefix(dir, prefix string, retentionDays int) (*DailyWriter, error) {
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	w := &DailyWriter{
		dir:           dir,
		prefix:        prefix,
		retentionDays: retentionDays,
		now:           time.Now,
	}
	if err := w.rotateIfNeeded(w.now()); err != nil {
		return nil, err
	}
	return w, nil
}

// Write implements io.Writer.
func (w *DailyWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.rotateIfNeeded(w.now()); err != nil {
		return 0, err
	}
	return w.file.Write(p)
}

// Close closes the current file.
func (w *DailyWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.currentDate = ""
	return err
}

// CurrentPath returns the file being written to.
func (w *DailyWriter) CurrentPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pathFor(w.currentDate)
}

func (w *DailyWriter) pathFor(date string) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.log", w.prefix, date))
}

func (w *DailyWriter) rotateIfNeeded(now time.Time) error {
	date := now.Format(fileDateLayout)
	if date == w.currentDate && w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.pathFor(date), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if w.file != nil {
		_ = w.file.Close()
	}
	w.file = file
	w.currentDate = date
	w.prune(now)
	return nil
}

func (w *DailyWriter) prune(now time.Time) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	cutoff := now.AddDate(0, 0, -w.retentionDays)
	prefix := w.prefix + "-"
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".log") {
			continue
		}
		date, err := time.ParseInLocation(fileDateLayout, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".log"), now.Location())
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			_ = os.Remove(filepath.Join(w.dir, name))
		}
	}
}

// NewLogger creates a slog.Logger writing to stdout and a daily file in
// logDir, and installs it as the default logger. QUANTGEMINI_LOG_LEVEL
// overrides level and QUANTGEMINI_LOG_FORMAT=json switches to JSON output.
func NewLogger(logDir string, level slog.Level) (*slog.Logger, *DailyWriter, error) {
	writer, err := NewDailyWriter(logDir, defaultRetentionDays)
	if err != nil {
		return nil, nil, err
	}
	logger := newServiceLogger(io.MultiWriter(os.Stdout, writer), level)
	slog.SetDefault(logger)
	return logger, writer, nil
}

// NewConsoleLogger creates a logger writing only to w. The CLI uses it with
// stderr so stdout stays clean for command output.
func NewConsoleLogger(w io.Writer, level slog.Level) *slog.Logger {
	return newServiceLogger(w, level)
}

func newServiceLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(newHandler(w, resolveLevel(level))).With("service", defaultPrefix)
}

func resolveLevel(fallback slog.Level) slog.Level {
	value := strings.TrimSpace(os.Getenv(envLogLevel))
	if value == "" {
		return fallback
	}

	switch strings.ToLower(value) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		if i, err := strconv.Atoi(value); err == nil {
			return slog.Level(i)
		}
		return fallback
	}
}

func newHandler(w io.Writer, level slog.Level) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(os.Getenv(envLogFormat)), "json") {
		return slog.NewJSONHandler(w, options)
	}
	return slog.NewTextHandler(w, options)
}

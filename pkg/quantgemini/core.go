package quantgemini

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
	_ "modernc.org/sqlite"
)

const (
	defaultAnalysisTimeout   = 3 * time.Minute
	defaultCallsPerMinute    = 30
	DefaultExtractionRetries = 1
	maxExtractionRetries     = 3
)

// Credentials holds provider API keys. They are never written to the database.
type Credentials struct {
	Gemini    string
	OpenAI    string
	Anthropic string
}

// Options controls Core initialization.
type Options struct {
	DBPath      string
	Logger      *slog.Logger
	Credentials Credentials
	// Settings seeds the defaults used until settings are saved through SetAISettings.
	Settings          AISettings
	History           HistoryOptions
	CallsPerMinute    int
	AnalysisTimeout   time.Duration
	ExtractionRetries int
	Observer          Observer
	// RecentStore replaces the SQLite key-value table as the recency list backend.
	RecentStore KeyValueStore
}

// Core provides access to the analysis pipeline and its storage.
type Core struct {
	db                *sql.DB
	logger            *slog.Logger
	dbPath            string
	credentials       Credentials
	defaults          AISettings
	history           *HistoryGenerator
	limiter           *rate.Limiter
	analysisTimeout   time.Duration
	extractionRetries int
	observer          Observer
	recent            *RecentTickers
	now               func() time.Time
}

// Open initializes a Core using the provided database path.
func Open(dbPath string) (*Core, error) {
	return OpenWithOptions(Options{DBPath: dbPath, ExtractionRetries: DefaultExtractionRetries})
}

// OpenWithOptions initializes a Core using the provided options.
func OpenWithOptions(opts Options) (*Core, error) {
	if opts.DBPath == "" {
		return nil, errors.New("db path is required")
	}
	cleanPath := filepath.Clean(opts.DBPath)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite performs best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Warn("pragma busy_timeout failed", "err", err)
	}

	if err := initDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}

	observer := opts.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	callsPerMinute := defaultInt(opts.CallsPerMinute, defaultCallsPerMinute)
	retries := opts.ExtractionRetries
	if retries < 0 {
		retries = 0
	}
	if retries > maxExtractionRetries {
		retries = maxExtractionRetries
	}

	c := &Core{
		db:                db,
		logger:            logger,
		dbPath:            cleanPath,
		credentials:       opts.Credentials,
		defaults:          normalizeAISettings(opts.Settings, builtinAISettings()),
		history:           NewHistoryGenerator(opts.History),
		limiter:           rate.NewLimiter(rate.Every(time.Minute/time.Duration(callsPerMinute)), 2),
		analysisTimeout:   defaultDuration(opts.AnalysisTimeout, defaultAnalysisTimeout),
		extractionRetries: retries,
		observer:          observer,
		now:               time.Now,
	}

	store := opts.RecentStore
	if store == nil {
		store = &sqliteKVStore{db: db}
	}
	c.recent = NewRecentTickers(store, logger)
	return c, nil
}

// Close releases database resources.
func (c *Core) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DBPath returns the underlying database path.
func (c *Core) DBPath() string {
	return c.dbPath
}

// Logger returns the logger Core was opened with.
func (c *Core) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// History returns the synthetic history generator configured for this Core.
func (c *Core) History() *HistoryGenerator {
	return c.history
}

func defaultDuration(v time.Duration, fallback time.Duration) time.Duration {
	if v <= 0 {
		return fallback
	}
	return v
}

func defaultInt(v int, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

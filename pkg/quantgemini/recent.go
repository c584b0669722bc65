package quantgemini

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const (
	// RecentTickersKey is the storage key holding the JSON array of tickers.
	RecentTickersKey = "recent_tickers"
	MaxRecentTickers = 5
)

// KeyValueStore is the persistence port behind the recency list.
type KeyValueStore interface {
	Get(key string) (value string, found bool, err error)
	Set(key, value string) error
}

// RecentTickers is the most-recent-first list of analyzed tickers.
// Updates are serialized in process; across processes the last writer wins.
type RecentTickers struct {
	mu     sync.Mutex
	store  KeyValueStore
	logger *slog.Logger
}

// NewRecentTickers returns a list backed by store.
func NewRecentTickers(store KeyValueStore, logger *slog.Logger) *RecentTickers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecentTickers{store: store, logger: logger}
}

// List returns the stored tickers, most recent first.
func (r *RecentTickers) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Push moves ticker to the front, dropping duplicates and anything past
// MaxRecentTickers, and returns the new list.
func (r *RecentTickers) Push(ticker string) ([]string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	if symbol == "" {
		return nil, NewError(ErrCodeInvalidInput, "ticker is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.load()
	if err != nil {
		return nil, err
	}
	next := pushRecent(current, symbol, MaxRecentTickers)
	if err := r.save(next); err != nil {
		return nil, err
	}
	return next, nil
}

// Clear empties the list.
func (r *RecentTickers) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.save([]string{})
}

func (r *RecentTickers) load() ([]string, error) {
	raw, found, err := r.store.Get(RecentTickersKey)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "load recent tickers", err)
	}
	if !found || strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	var tickers []string
	if err := json.Unmarshal([]byte(raw), &tickers); err != nil {
		r.logger.Warn("recent tickers value is corrupt, starting empty", "err", err)
		return []string{}, nil
	}
	if tickers == nil {
		tickers = []string{}
	}
	return tickers, nil
}

func (r *RecentTickers) save(tickers []string) error {
	data, err := json.Marshal(tickers)
	if err != nil {
		return WrapError(ErrCodeInternal, "encode recent tickers", err)
	}
	if err := r.store.Set(RecentTickersKey, string(data)); err != nil {
		return WrapError(ErrCodeDatabase, "save recent tickers", err)
	}
	return nil
}

func pushRecent(list []string, ticker string, limit int) []string {
	next := make([]string, 0, limit)
	next = append(next, ticker)
	for _, existing := range list {
		if len(next) == limit {
			break
		}
		if existing == ticker {
			continue
		}
		next = append(next, existing)
	}
	return next
}

// MemoryStore is an in-process KeyValueStore.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

type sqliteKVStore struct {
	db *sql.DB
}

func (s *sqliteKVStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv_store WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query kv_store: %w", err)
	}
	return value, true, nil
}

func (s *sqliteKVStore) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv_store (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("upsert kv_store: %w", err)
	}
	return nil
}

// RecentTickers returns the recency list, most recent first.
func (c *Core) RecentTickers() ([]string, error) {
	return c.recent.List()
}

// ClearRecentTickers empties the recency list.
func (c *Core) ClearRecentTickers() error {
	return c.recent.Clear()
}

// SuggestedTickers returns the quick-pick tickers offered before any search.
func (c *Core) SuggestedTickers() []string {
	out := make([]string, len(SuggestedTickers))
	copy(out, SuggestedTickers)
	return out
}

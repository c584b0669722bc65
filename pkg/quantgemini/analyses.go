package quantgemini

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultAnalysisHistoryLimit = 10
	maxAnalysisHistoryLimit     = 100
	// Fixed width so created_at sorts lexically.
	storedTimestampLayout = "2006-01-02T15:04:05.000000Z"
)

// storedAnalysesPerTicker caps how many analyses are kept for one ticker.
var storedAnalysesPerTicker = 50

func normalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// saveAnalysis stores result and, once stored, sets its id and creation time.
func (c *Core) saveAnalysis(result *AnalysisResult) error {
	createdAt := c.now().UTC()
	stored := *result
	stored.ID = uuid.NewString()
	stored.CreatedAt = createdAt.Format(time.RFC3339)

	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal analysis: %w", err)
	}
	err = c.withTx(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			`INSERT INTO analyses (id, ticker, model, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
			stored.ID,
			stored.Ticker,
			stored.Model,
			string(payload),
			createdAt.Format(storedTimestampLayout),
		); err != nil {
			return WrapError(ErrCodeDatabase, "insert analysis", err)
		}
		// Drop everything past the newest storedAnalysesPerTicker rows.
		if _, err := tx.Exec(`
			DELETE FROM analyses
			WHERE ticker = ? AND rowid NOT IN (
				SELECT rowid FROM analyses WHERE ticker = ?
				ORDER BY created_at DESC, rowid DESC LIMIT ?
			)`, stored.Ticker, stored.Ticker, storedAnalysesPerTicker); err != nil {
			return WrapError(ErrCodeDatabase, "prune analyses", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	*result = stored
	return nil
}

// GetLatestAnalysis returns the most recent stored analysis for ticker, or
// nil when there is none.
func (c *Core) GetLatestAnalysis(ticker string) (*AnalysisResult, error) {
	results, err := c.GetAnalysisHistory(ticker, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// GetAnalysisHistory returns up to limit stored analyses for ticker, newest first.
func (c *Core) GetAnalysisHistory(ticker string, limit int) ([]AnalysisResult, error) {
	symbol := normalizeTicker(ticker)
	if symbol == "" {
		return nil, NewError(ErrCodeInvalidInput, "ticker is required")
	}
	if limit <= 0 {
		limit = defaultAnalysisHistoryLimit
	}
	if limit > maxAnalysisHistoryLimit {
		limit = maxAnalysisHistoryLimit
	}

	rows, err := c.db.Query(
		`SELECT id, payload FROM analyses WHERE ticker = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		symbol, limit,
	)
	if err != nil {
		return nil, WrapError(ErrCodeDatabase, "query analyses", err)
	}
	defer rows.Close()

	results := []AnalysisResult{}
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, WrapError(ErrCodeDatabase, "scan analysis row", err)
		}
		var result AnalysisResult
		if err := json.Unmarshal([]byte(payload), &result); err != nil {
			c.Logger().Warn("skip unreadable stored analysis", "id", id, "err", err)
			continue
		}
		result.ID = id
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, WrapError(ErrCodeDatabase, "iterate analyses", err)
	}
	return results, nil
}

// DeleteAnalyses removes every stored analysis for ticker and returns how many were removed.
func (c *Core) DeleteAnalyses(ticker string) (int64, error) {
	symbol := normalizeTicker(ticker)
	if symbol == "" {
		return 0, NewError(ErrCodeInvalidInput, "ticker is required")
	}
	res, err := c.db.Exec(`DELETE FROM analyses WHERE ticker = ?`, symbol)
	if err != nil {
		return 0, WrapError(ErrCodeDatabase, "delete analyses", err)
	}
	return res.RowsAffected()
}

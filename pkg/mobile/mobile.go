package mobile

import (
	"context"
	"encoding/json"
	"fmt"

	"quantgemini/pkg/quantgemini"
)

// Core wraps the analysis core for gomobile bindings. Every method takes and
// returns plain strings so the generated Swift and Kotlin APIs stay simple.
type Core struct {
	core *quantgemini.Core
}

// Open initializes the core with a database path and no stored API key.
func Open(dbPath string) (*Core, error) {
	return OpenWithKey(dbPath, "")
}

// OpenWithKey initializes the core with a database path and a Gemini API key
// held in memory only.
func OpenWithKey(dbPath, geminiAPIKey string) (*Core, error) {
	core, err := quantgemini.OpenWithOptions(quantgemini.Options{
		DBPath:            dbPath,
		Credentials:       quantgemini.Credentials{Gemini: geminiAPIKey},
		ExtractionRetries: quantgemini.DefaultExtractionRetries,
	})
	if err != nil {
		return nil, err
	}
	return &Core{core: core}, nil
}

// Close releases resources.
func (c *Core) Close() error {
	if c == nil || c.core == nil {
		return nil
	}
	return c.core.Close()
}

// AnalyzeJSON runs an analysis for ticker and returns the result as JSON.
// apiKey overrides the key given to OpenWithKey when not empty.
func (c *Core) AnalyzeJSON(ticker, apiKey string) (string, error) {
	result, err := c.core.Analyze(context.Background(), quantgemini.AnalysisRequest{Ticker: ticker, APIKey: apiKey})
	if err != nil {
		return "", err
	}
	return marshalJSON(result)
}

// RecentTickersJSON returns the recency list as a JSON array.
func (c *Core) RecentTickersJSON() (string, error) {
	tickers, err := c.core.RecentTickers()
	if err != nil {
		return "", err
	}
	return marshalJSON(tickers)
}

// ClearRecentTickers empties the recency list.
func (c *Core) ClearRecentTickers() error {
	return c.core.ClearRecentTickers()
}

// SuggestedTickersJSON returns the quick-pick tickers as a JSON array.
func (c *Core) SuggestedTickersJSON() (string, error) {
	return marshalJSON(c.core.SuggestedTickers())
}

// LatestAnalysisJSON returns the newest stored analysis for ticker, or an
// empty string when there is none.
func (c *Core) LatestAnalysisJSON(ticker string) (string, error) {
	result, err := c.core.GetLatestAnalysis(ticker)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", nil
	}
	return marshalJSON(result)
}

// AnalysisHistoryJSON returns up to limit stored analyses, newest first.
func (c *Core) AnalysisHistoryJSON(ticker string, limit int) (string, error) {
	results, err := c.core.GetAnalysisHistory(ticker, limit)
	if err != nil {
		return "", err
	}
	return marshalJSON(results)
}

// PlaceholderHistoryJSON returns a synthetic chart series for ticker.
func (c *Core) PlaceholderHistoryJSON(ticker, price string) (string, error) {
	points, err := c.core.PlaceholderHistory(ticker, price)
	if err != nil {
		return "", err
	}
	return marshalJSON(points)
}

// ErrorCode returns the structured code of an error returned by this
// package, or an empty string.
func ErrorCode(err error) string {
	code, _ := quantgemini.CodeOf(err)
	return string(code)
}

func marshalJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(data), nil
}

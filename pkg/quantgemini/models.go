package quantgemini

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Enumerations the extraction schema restricts the model to.
var (
	MomentumTrends   = []string{"Bullish", "Bearish", "Neutral"}
	SentimentLabels  = []string{"Positive", "Negative", "Neutral"}
	HeadlineImpacts  = []string{"High", "Medium", "Low"}
	SuggestedTickers = []string{"NVDA", "AAPL", "MSFT", "BTC"}
)

// AnalysisRequest is one submitted ticker.
type AnalysisRequest struct {
	Ticker string
	// APIKey overrides the configured Gemini key for this request only.
	APIKey string
}

// Source is a web citation the grounded call relied on.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Indicators are opaque display strings produced by the model.
type Indicators struct {
	RSI            string `json:"rsi"`
	MACD           string `json:"macd"`
	MovingAverages string `json:"movingAverages"`
	VolumeProfile  string `json:"volumeProfile"`
	ShortInterest  string `json:"shortInterest"`
}

// Momentum is the trend read from price action.
type Momentum struct {
	Trend       string `json:"trend" validate:"required,oneof=Bullish Bearish Neutral"`
	Strength    string `json:"strength"`
	Description string `json:"description"`
}

// Headline is one cited news item behind the sentiment call.
type Headline struct {
	Title  string `json:"title"`
	Source string `json:"source"`
	Date   string `json:"date"`
	Impact string `json:"impact" validate:"omitempty,oneof=High Medium Low"`
}

// SentimentScore is a 0-100 bullishness score. Models return it either as a
// JSON number or as a numeric string.
type SentimentScore float64

// UnmarshalJSON accepts numbers, numeric strings and null.
func (s *SentimentScore) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*s = 0
		return nil
	}
	if trimmed[0] == '"' {
		var raw string
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "%")
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return fmt.Errorf("invalid sentiment score %q", raw)
		}
		*s = SentimentScore(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return err
	}
	*s = SentimentScore(v)
	return nil
}

// Sentiment summarises news tone and the short-term outlook.
type Sentiment struct {
	Score            SentimentScore `json:"score" validate:"gte=0,lte=100"`
	Label            string         `json:"label" validate:"required,oneof=Positive Negative Neutral"`
	Headlines        []Headline     `json:"headlines" validate:"dive"`
	ShortTermOutlook string         `json:"shortTermOutlook"`
}

// Strategy holds the suggested trade levels as display strings.
type Strategy struct {
	EntryPoint   string `json:"entryPoint"`
	TakeProfit   string `json:"takeProfit"`
	StopLoss     string `json:"stopLoss"`
	DownsideExit string `json:"downsideExit"`
	Rationale    string `json:"rationale"`
}

// HistoryPoint is one chart point. Time is a display label such as "Mar 4".
type HistoryPoint struct {
	Time  string `json:"time"`
	Price Amount `json:"price"`
}

// AnalysisResult is the assembled output handed to callers. It is not
// modified after Analyze returns it.
type AnalysisResult struct {
	ID                 string         `json:"id,omitempty"`
	Ticker             string         `json:"ticker"`
	Name               string         `json:"name"`
	CurrentPrice       string         `json:"currentPrice" validate:"required"`
	PriceChange        string         `json:"priceChange"`
	PriceChangePercent string         `json:"priceChangePercent"`
	TechnicalSummary   string         `json:"technicalSummary"`
	Indicators         Indicators     `json:"indicators"`
	Momentum           Momentum       `json:"momentum"`
	Sentiment          Sentiment      `json:"sentiment"`
	Strategy           Strategy       `json:"strategy"`
	Sources            []Source       `json:"sources"`
	History            []HistoryPoint `json:"history"`
	// HistorySynthetic marks a History series fabricated from the current
	// price. It is a placeholder, not market data.
	HistorySynthetic bool   `json:"historySynthetic"`
	Model            string `json:"model,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
}

// IsNegativeChange reports whether the price change is displayed as a loss.
// A leading minus sign is the only negative signal.
func (r *AnalysisResult) IsNegativeChange() bool {
	return strings.HasPrefix(strings.TrimSpace(r.PriceChange), "-")
}

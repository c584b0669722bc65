package api

import "quantgemini/pkg/quantgemini"

type analyzePayload struct {
	Ticker string `json:"ticker"`
	APIKey string `json:"api_key"`
}

type aiSettingsPayload struct {
	Provider        string `json:"provider"`
	BaseURL         string `json:"base_url"`
	GroundingModel  string `json:"grounding_model"`
	ExtractionModel string `json:"extraction_model"`
}

type tickersResponse struct {
	Tickers []string `json:"tickers"`
}

type deleteAnalysesResponse struct {
	Ticker  string `json:"ticker"`
	Deleted int64  `json:"deleted"`
}

type chartResponse struct {
	Ticker           string                     `json:"ticker"`
	History          []quantgemini.HistoryPoint `json:"history"`
	HistorySynthetic bool                       `json:"historySynthetic"`
}

type progressEvent struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

type streamErrorEvent struct {
	Error     string `json:"error"`
	ErrorCode string `json:"error_code,omitempty"`
}

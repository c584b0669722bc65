package quantgemini

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ProgressFunc receives stage names as an analysis advances.
type ProgressFunc func(stage string)

type completionFunc func(context.Context, aiCompletionRequest) (aiCompletionResult, error)

func normalizeAnalysisRequest(req AnalysisRequest) (AnalysisRequest, error) {
	normalized := req
	normalized.Ticker = normalizeTicker(req.Ticker)
	if normalized.Ticker == "" {
		return AnalysisRequest{}, NewError(ErrCodeInvalidInput, "ticker is required")
	}
	normalized.APIKey = strings.TrimSpace(req.APIKey)
	return normalized, nil
}

// Analyze runs the grounded research call and the structured extraction call
// for one ticker and assembles the result. It returns either a complete
// result or an error coded ErrCodeTransport or ErrCodeFormat; stored state
// is only touched on success.
func (c *Core) Analyze(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error) {
	return c.AnalyzeWithProgress(ctx, req, nil)
}

// AnalyzeWithProgress is Analyze with a stage callback.
func (c *Core) AnalyzeWithProgress(ctx context.Context, req AnalysisRequest, onProgress ProgressFunc) (*AnalysisResult, error) {
	started := time.Now()
	result, err := c.analyze(ctx, req, onProgress)
	outcome := AnalysisOutcome(err)
	c.observer.ObserveAnalysis(outcome, time.Since(started))
	if err != nil {
		c.Logger().Warn("analysis failed",
			"ticker", normalizeTicker(req.Ticker),
			"outcome", outcome,
			"duration_ms", time.Since(started).Milliseconds(),
			"err", err,
		)
		return nil, err
	}
	c.Logger().Info("analysis completed",
		"ticker", result.Ticker,
		"model", result.Model,
		"sources", len(result.Sources),
		"history_synthetic", result.HistorySynthetic,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return result, nil
}

func (c *Core) analyze(ctx context.Context, req AnalysisRequest, onProgress ProgressFunc) (*AnalysisResult, error) {
	normalized, err := normalizeAnalysisRequest(req)
	if err != nil {
		return nil, err
	}
	settings, err := c.GetAISettings()
	if err != nil {
		return nil, err
	}

	geminiKey := normalized.APIKey
	if geminiKey == "" {
		geminiKey = strings.TrimSpace(c.credentials.Gemini)
	}
	if geminiKey == "" {
		return nil, NewError(ErrCodeTransport, "gemini api key is not configured")
	}
	extractionKey := c.extractionAPIKey(settings.Provider, geminiKey)
	if extractionKey == "" {
		return nil, NewError(ErrCodeTransport, fmt.Sprintf("%s api key is not configured", settings.Provider))
	}

	ctx, cancel := context.WithTimeout(ctx, c.analysisTimeout)
	defer cancel()

	report(onProgress, StageGrounding)
	groundingBaseURL := ""
	if settings.Provider == ProviderGemini {
		groundingBaseURL = settings.BaseURL
	}
	grounded, err := c.callModel(ctx, StageGrounding, groundedCompletion, aiCompletionRequest{
		Provider:     ProviderGemini,
		BaseURL:      groundingBaseURL,
		APIKey:       geminiKey,
		Model:        settings.GroundingModel,
		SystemPrompt: groundingSystemPrompt,
		UserPrompt:   BuildAnalysisPrompt(normalized.Ticker),
		Logger:       c.Logger(),
	})
	if err != nil {
		return nil, WrapError(ErrCodeTransport, "grounded inference call failed", err)
	}

	report(onProgress, StageExtracting)
	parsed, err := c.extract(ctx, normalized.Ticker, grounded.Content, settings, extractionKey)
	if err != nil {
		return nil, err
	}

	report(onProgress, StageAssembling)
	result := assembleAnalysis(normalized.Ticker, parsed, grounded.Sources, c.history)
	result.Model = grounded.Model

	if err := c.saveAnalysis(result); err != nil {
		c.Logger().Warn("store analysis failed", "ticker", normalized.Ticker, "err", err)
	}
	if _, err := c.recent.Push(normalized.Ticker); err != nil {
		c.Logger().Warn("update recent tickers failed", "ticker", normalized.Ticker, "err", err)
	}
	report(onProgress, StageDone)
	return result, nil
}

// extract runs the structured extraction call, re-asking with the parse error
// up to c.extractionRetries times before giving up with ErrCodeFormat.
func (c *Core) extract(ctx context.Context, ticker, researchText string, settings AISettings, apiKey string) (*AnalysisResult, error) {
	req := aiCompletionRequest{
		Provider:     settings.Provider,
		BaseURL:      settings.BaseURL,
		APIKey:       apiKey,
		Model:        settings.ExtractionModel,
		SystemPrompt: extractionSystemPrompt,
		UserPrompt:   buildExtractionPrompt(ticker, researchText),
		Logger:       c.Logger(),
	}

	var lastErr error
	for attempt := 0; attempt <= c.extractionRetries; attempt++ {
		output, err := c.callModel(ctx, StageExtracting, extractionCompletion, req)
		if err != nil {
			return nil, WrapError(ErrCodeTransport, "structured extraction call failed", err)
		}
		parsed, err := parseAnalysisJSON(output.Content)
		if err == nil {
			return parsed, nil
		}
		lastErr = err
		c.Logger().Warn("extraction output rejected",
			"ticker", ticker,
			"attempt", attempt+1,
			"err", err,
		)
		req.UserPrompt = buildCorrectiveExtractionPrompt(ticker, researchText, output.Content, err)
	}
	return nil, WrapError(ErrCodeFormat, "model output does not match the analysis schema", lastErr)
}

func (c *Core) callModel(ctx context.Context, stage string, call completionFunc, req aiCompletionRequest) (aiCompletionResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return aiCompletionResult{}, fmt.Errorf("wait for model rate limit: %w", err)
	}
	started := time.Now()
	result, err := call(ctx, req)
	c.observer.ObserveModelCall(stage, time.Since(started), err)
	return result, err
}

func (c *Core) extractionAPIKey(provider, geminiKey string) string {
	switch provider {
	case ProviderOpenAI:
		return strings.TrimSpace(c.credentials.OpenAI)
	case ProviderAnthropic:
		return strings.TrimSpace(c.credentials.Anthropic)
	default:
		return geminiKey
	}
}

func report(onProgress ProgressFunc, stage string) {
	if onProgress != nil {
		onProgress(stage)
	}
}

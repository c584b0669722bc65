package quantgemini

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestAnalyzeEndToEnd(t *testing.T) {
	observer := &recordingObserver{}
	core, cleanup := setupTestDBWithOptions(t, Options{Observer: observer, ExtractionRetries: 1})
	defer cleanup()

	var groundedReq aiCompletionRequest
	extraction := &scriptedExtraction{outputs: []string{stubAnalysisJSON}}
	stubModels(t,
		func(_ context.Context, req aiCompletionRequest) (aiCompletionResult, error) {
			groundedReq = req
			return aiCompletionResult{
				Model:   "gemini-3-pro-preview",
				Content: "NVIDIA closed at $123.45 ...",
				Sources: []Source{{Title: "Reuters", URI: "https://reuters.com/nvda"}},
			}, nil
		},
		extraction.call,
	)

	var stages []string
	result, err := core.AnalyzeWithProgress(context.Background(), AnalysisRequest{Ticker: " nvda "}, func(stage string) {
		stages = append(stages, stage)
	})
	assertNoError(t, err, "analyze")

	if groundedReq.Model != DefaultGroundingModel || groundedReq.APIKey != "test-gemini-key" {
		t.Fatalf("unexpected grounded request: %+v", groundedReq)
	}
	if !strings.Contains(groundedReq.UserPrompt, "NVDA") {
		t.Fatalf("prompt must embed the normalized ticker: %q", groundedReq.UserPrompt)
	}
	extractReq := extraction.requests[0]
	if extractReq.Model != DefaultExtractionModel || extractReq.Provider != ProviderGemini {
		t.Fatalf("unexpected extraction request: %+v", extractReq)
	}
	if !strings.Contains(extractReq.UserPrompt, "NVIDIA closed at $123.45") {
		t.Fatal("extraction prompt must carry the grounded text")
	}

	if result.Ticker != "NVDA" || result.CurrentPrice != "$123.45" {
		t.Fatalf("unexpected result identity: %+v", result)
	}
	if len(result.Sources) != 1 || result.Sources[0].Title != "Reuters" {
		t.Fatalf("unexpected sources: %+v", result.Sources)
	}
	if len(result.History) < MinHistoryPoints || !result.HistorySynthetic {
		t.Fatalf("expected synthetic history, got %+v", result.History)
	}
	if result.ID == "" || result.CreatedAt == "" || result.Model != "gemini-3-pro-preview" {
		t.Fatalf("expected stored metadata, got id=%q created=%q model=%q", result.ID, result.CreatedAt, result.Model)
	}
	if !reflect.DeepEqual(stages, []string{StageGrounding, StageExtracting, StageAssembling, StageDone}) {
		t.Fatalf("unexpected progress stages: %v", stages)
	}

	recent, err := core.RecentTickers()
	assertNoError(t, err, "recent")
	if !reflect.DeepEqual(recent, []string{"NVDA"}) {
		t.Fatalf("unexpected recent list %v", recent)
	}
	latest, err := core.GetLatestAnalysis("NVDA")
	assertNoError(t, err, "latest")
	if latest == nil || latest.ID != result.ID {
		t.Fatalf("expected stored analysis %s, got %+v", result.ID, latest)
	}

	if !reflect.DeepEqual(observer.calls, []string{StageGrounding, StageExtracting}) {
		t.Fatalf("unexpected observed calls %v", observer.calls)
	}
	if !reflect.DeepEqual(observer.outcomes, []string{OutcomeSuccess}) {
		t.Fatalf("unexpected observed outcomes %v", observer.outcomes)
	}
}

func TestAnalyzeRetriesMalformedExtractionOnce(t *testing.T) {
	core, cleanup := setupTestDBWithOptions(t, Options{ExtractionRetries: 1})
	defer cleanup()

	extraction := &scriptedExtraction{outputs: []string{"Sorry, here is the data: not json", stubAnalysisJSON}}
	stubModels(t, fixedGrounded("notes"), extraction.call)

	result, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA"})
	assertNoError(t, err, "analyze with retry")
	if result.Name != "NVIDIA Corporation" {
		t.Fatalf("unexpected result %+v", result)
	}
	if extraction.calls() != 2 {
		t.Fatalf("expected 2 extraction calls, got %d", extraction.calls())
	}
	retryPrompt := extraction.requests[1].UserPrompt
	if !strings.Contains(retryPrompt, "could not be used") || !strings.Contains(retryPrompt, "not json") {
		t.Fatalf("retry prompt must name the failure and echo the output: %q", retryPrompt)
	}
}

func TestAnalyzeFormatFailureLeavesStateUntouched(t *testing.T) {
	core, cleanup := setupTestDBWithOptions(t, Options{ExtractionRetries: 1})
	defer cleanup()

	_, err := core.recent.Push("AAPL")
	assertNoError(t, err, "seed recent")

	extraction := &scriptedExtraction{outputs: []string{"not json"}}
	stubModels(t, fixedGrounded("notes"), extraction.call)

	result, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA"})
	assertErrorCode(t, err, ErrCodeFormat)
	if result != nil {
		t.Fatalf("expected no partial result, got %+v", result)
	}
	if extraction.calls() != 2 {
		t.Fatalf("expected original call plus one retry, got %d", extraction.calls())
	}

	recent, err := core.RecentTickers()
	assertNoError(t, err, "recent")
	if !reflect.DeepEqual(recent, []string{"AAPL"}) {
		t.Fatalf("recency list changed on failure: %v", recent)
	}
	latest, err := core.GetLatestAnalysis("NVDA")
	assertNoError(t, err, "latest")
	if latest != nil {
		t.Fatalf("failed analysis must not be stored: %+v", latest)
	}
}

func TestAnalyzeWithoutRetryFailsImmediately(t *testing.T) {
	core, cleanup := setupTestDBWithOptions(t, Options{ExtractionRetries: 0})
	defer cleanup()

	extraction := &scriptedExtraction{outputs: []string{`{"currentPrice": ""}`}}
	stubModels(t, fixedGrounded("notes"), extraction.call)

	_, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA"})
	assertErrorCode(t, err, ErrCodeFormat)
	if extraction.calls() != 1 {
		t.Fatalf("expected a single extraction call, got %d", extraction.calls())
	}
}

func TestAnalyzeTransportFailures(t *testing.T) {
	transportErr := errors.New("503 service unavailable")

	t.Run("grounded", func(t *testing.T) {
		observer := &recordingObserver{}
		core, cleanup := setupTestDBWithOptions(t, Options{Observer: observer})
		defer cleanup()

		extraction := &scriptedExtraction{outputs: []string{stubAnalysisJSON}}
		stubModels(t,
			func(context.Context, aiCompletionRequest) (aiCompletionResult, error) {
				return aiCompletionResult{}, transportErr
			},
			extraction.call,
		)
		_, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA"})
		assertErrorCode(t, err, ErrCodeTransport)
		if !errors.Is(err, transportErr) {
			t.Fatalf("expected cause to be preserved, got %v", err)
		}
		if extraction.calls() != 0 {
			t.Fatal("extraction must not run after grounded failure")
		}
		if !reflect.DeepEqual(observer.outcomes, []string{OutcomeTransportFailure}) {
			t.Fatalf("unexpected outcomes %v", observer.outcomes)
		}
	})

	t.Run("extraction", func(t *testing.T) {
		core, cleanup := setupTestDB(t)
		defer cleanup()

		calls := 0
		stubModels(t, fixedGrounded("notes"), func(context.Context, aiCompletionRequest) (aiCompletionResult, error) {
			calls++
			return aiCompletionResult{}, transportErr
		})
		_, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA"})
		assertErrorCode(t, err, ErrCodeTransport)
		if calls != 1 {
			t.Fatalf("transport failures are not retried, got %d calls", calls)
		}
		recent, _ := core.RecentTickers()
		if len(recent) != 0 {
			t.Fatalf("recency list changed on failure: %v", recent)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		core, cleanup := setupTestDBWithOptions(t, Options{Credentials: Credentials{OpenAI: "only-openai"}})
		defer cleanup()
		stubModels(t, fixedGrounded("notes"), (&scriptedExtraction{outputs: []string{stubAnalysisJSON}}).call)

		_, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA"})
		assertErrorCode(t, err, ErrCodeTransport)

		_, err = core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA", APIKey: "per-request"})
		assertNoError(t, err, "per-request key")
	})

	t.Run("cancelled context", func(t *testing.T) {
		core, cleanup := setupTestDB(t)
		defer cleanup()
		stubModels(t,
			func(ctx context.Context, _ aiCompletionRequest) (aiCompletionResult, error) {
				return aiCompletionResult{}, ctx.Err()
			},
			(&scriptedExtraction{outputs: []string{stubAnalysisJSON}}).call,
		)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := core.Analyze(ctx, AnalysisRequest{Ticker: "NVDA"})
		assertErrorCode(t, err, ErrCodeTransport)
	})
}

func TestAnalyzeRejectsEmptyTicker(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()

	called := false
	stubModels(t,
		func(context.Context, aiCompletionRequest) (aiCompletionResult, error) {
			called = true
			return aiCompletionResult{}, nil
		},
		(&scriptedExtraction{outputs: []string{stubAnalysisJSON}}).call,
	)
	_, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "   "})
	assertErrorCode(t, err, ErrCodeInvalidInput)
	if called {
		t.Fatal("model must not be called for an empty ticker")
	}
}

func TestAnalyzeKeepsModelHistory(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()

	withHistory := strings.Replace(stubAnalysisJSON, `"strategy"`, `"history": [
		{"time": "May 6", "price": 120.5}, {"time": "May 7", "price": 121}, {"time": "May 8", "price": 122.75}
	], "strategy"`, 1)
	stubModels(t, fixedGrounded("notes"), (&scriptedExtraction{outputs: []string{withHistory}}).call)

	result, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA"})
	assertNoError(t, err, "analyze")
	if result.HistorySynthetic || len(result.History) != 3 || result.History[2].Time != "May 8" {
		t.Fatalf("model history must pass through unchanged: %+v", result.History)
	}
}

func TestAnalyzeUsesConfiguredProvider(t *testing.T) {
	core, cleanup := setupTestDBWithOptions(t, Options{
		Credentials: Credentials{Gemini: "g-key", OpenAI: "o-key"},
	})
	defer cleanup()

	_, err := core.SetAISettings(AISettings{Provider: ProviderOpenAI, BaseURL: "https://llm.example.com/v1", ExtractionModel: "gpt-4o-mini"})
	assertNoError(t, err, "set settings")

	var groundedReq aiCompletionRequest
	extraction := &scriptedExtraction{outputs: []string{stubAnalysisJSON}}
	stubModels(t,
		func(_ context.Context, req aiCompletionRequest) (aiCompletionResult, error) {
			groundedReq = req
			return aiCompletionResult{Model: "g", Content: "notes"}, nil
		},
		extraction.call,
	)

	_, err = core.Analyze(context.Background(), AnalysisRequest{Ticker: "MSFT"})
	assertNoError(t, err, "analyze")

	if groundedReq.APIKey != "g-key" || groundedReq.BaseURL != "" || groundedReq.Provider != ProviderGemini {
		t.Fatalf("grounded call must stay on default gemini endpoint: %+v", groundedReq)
	}
	got := extraction.requests[0]
	if got.Provider != ProviderOpenAI || got.APIKey != "o-key" || got.Model != "gpt-4o-mini" || got.BaseURL != "https://llm.example.com/v1" {
		t.Fatalf("unexpected extraction request %+v", got)
	}
}

func TestAnalyzeStoreFailureStillReturnsResult(t *testing.T) {
	core, cleanup := setupTestDBWithOptions(t, Options{RecentStore: failingStore{}})
	defer cleanup()

	stubModels(t, fixedGrounded("notes"), (&scriptedExtraction{outputs: []string{stubAnalysisJSON}}).call)

	result, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA"})
	assertNoError(t, err, "analyze")
	if result == nil || result.Ticker != "NVDA" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAnalyzeTimeoutAppliesToModelCalls(t *testing.T) {
	core, cleanup := setupTestDBWithOptions(t, Options{AnalysisTimeout: 20 * time.Millisecond})
	defer cleanup()

	stubModels(t,
		func(ctx context.Context, _ aiCompletionRequest) (aiCompletionResult, error) {
			<-ctx.Done()
			return aiCompletionResult{}, ctx.Err()
		},
		(&scriptedExtraction{outputs: []string{stubAnalysisJSON}}).call,
	)
	_, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "NVDA"})
	assertErrorCode(t, err, ErrCodeTransport)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestAnalyzeStoresUnderRequestedTicker(t *testing.T) {
	core, cleanup := setupTestDB(t)
	defer cleanup()

	renamed := strings.Replace(stubAnalysisJSON, `"ticker": "NVDA"`, `"ticker": "BRK-B"`, 1)
	stubModels(t, fixedGrounded("notes"), (&scriptedExtraction{outputs: []string{renamed}}).call)

	result, err := core.Analyze(context.Background(), AnalysisRequest{Ticker: "brk.b"})
	assertNoError(t, err, "analyze")
	if result.Ticker != "BRK.B" {
		t.Fatalf("expected requested ticker, got %q", result.Ticker)
	}

	recent, err := core.RecentTickers()
	assertNoError(t, err, "recent")
	if len(recent) != 1 || recent[0] != "BRK.B" {
		t.Fatalf("unexpected recent tickers: %v", recent)
	}
	latest, err := core.GetLatestAnalysis("BRK.B")
	assertNoError(t, err, "latest")
	if latest == nil || latest.ID != result.ID {
		t.Fatalf("expected stored analysis under BRK.B, got %+v", latest)
	}
	other, err := core.GetLatestAnalysis("BRK-B")
	assertNoError(t, err, "latest model ticker")
	if other != nil {
		t.Fatalf("nothing should be stored under the model's spelling, got %+v", other)
	}
}

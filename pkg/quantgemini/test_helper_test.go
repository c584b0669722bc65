package quantgemini

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// setupTestDB creates a temporary database for testing and returns a Core instance.
// The caller should defer cleanup() to remove the temp file.
func setupTestDB(t *testing.T) (*Core, func()) {
	t.Helper()
	return setupTestDBWithOptions(t, Options{})
}

func setupTestDBWithOptions(t *testing.T, opts Options) (*Core, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "quantgemini-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	opts.DBPath = filepath.Join(tmpDir, "test.db")
	if opts.CallsPerMinute == 0 {
		opts.CallsPerMinute = 60000
	}
	if opts.Credentials == (Credentials{}) {
		opts.Credentials = Credentials{Gemini: "test-gemini-key"}
	}
	core, err := OpenWithOptions(opts)
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("failed to open test db: %v", err)
	}

	cleanup := func() {
		core.Close()
		os.RemoveAll(tmpDir)
	}

	return core, cleanup
}

// assertNoError fails the test if err is not nil.
func assertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", msg, err)
	}
}

// assertErrorCode fails the test unless err carries code.
func assertErrorCode(t *testing.T, err error, code ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !IsErrorCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

// stubModels replaces both model calls for the duration of the test.
func stubModels(t *testing.T, grounded, extraction completionFunc) {
	t.Helper()
	origGrounded := groundedCompletion
	origExtraction := extractionCompletion
	groundedCompletion = grounded
	extractionCompletion = extraction
	t.Cleanup(func() {
		groundedCompletion = origGrounded
		extractionCompletion = origExtraction
	})
}

func fixedGrounded(text string, sources ...Source) completionFunc {
	return func(_ context.Context, _ aiCompletionRequest) (aiCompletionResult, error) {
		return aiCompletionResult{Model: "gemini-test-pro", Content: text, Sources: sources}, nil
	}
}

// scriptedExtraction answers successive extraction calls with outputs in
// order and records every request it received.
type scriptedExtraction struct {
	mu       sync.Mutex
	outputs  []string
	requests []aiCompletionRequest
}

func (s *scriptedExtraction) call(_ context.Context, req aiCompletionRequest) (aiCompletionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx >= len(s.outputs) {
		idx = len(s.outputs) - 1
	}
	return aiCompletionResult{Model: "gemini-test-flash", Content: s.outputs[idx]}, nil
}

func (s *scriptedExtraction) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type recordingObserver struct {
	mu       sync.Mutex
	calls    []string
	outcomes []string
}

func (o *recordingObserver) ObserveModelCall(stage string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, stage)
}

func (o *recordingObserver) ObserveAnalysis(outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

const stubAnalysisJSON = `{
  "ticker": "NVDA",
  "name": "NVIDIA Corporation",
  "currentPrice": "$123.45",
  "priceChange": "-2.10",
  "priceChangePercent": "-1.67%",
  "technicalSummary": "Consolidating below the 50-day average.",
  "indicators": {"rsi": "48", "macd": "bearish cross", "movingAverages": "below 50 SMA, above 200 SMA", "volumeProfile": "average", "shortInterest": "1.1%"},
  "momentum": {"trend": "Neutral", "strength": "moderate", "description": "Range bound"},
  "sentiment": {
    "score": 62,
    "label": "Positive",
    "headlines": [{"title": "New GPU launch", "source": "Reuters", "date": "2024-05-01", "impact": "High"}],
    "shortTermOutlook": "Constructive into earnings"
  },
  "strategy": {"entryPoint": "$118", "takeProfit": "$140", "stopLoss": "$110", "downsideExit": "$105", "rationale": "Buy support"}
}`

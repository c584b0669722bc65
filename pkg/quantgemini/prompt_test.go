package quantgemini

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildAnalysisPrompt(t *testing.T) {
	t.Parallel()

	prompt := BuildAnalysisPrompt(" tsla ")
	for _, want := range []string{"TSLA", "RSI", "MACD", "50-day", "200-day", "short interest", "last 5 trading days", "past 7 days", "0 (very bearish) to 100 (very bullish)", "stop-loss", "Google Search"} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if strings.Contains(prompt, "tsla") {
		t.Fatal("ticker must be upper-cased")
	}
}

func TestBuildExtractionPrompts(t *testing.T) {
	t.Parallel()

	prompt := buildExtractionPrompt("msft", "research notes")
	if !strings.Contains(prompt, "MSFT") || !strings.Contains(prompt, "research notes") || !strings.Contains(prompt, `"currentPrice"`) {
		t.Fatalf("unexpected extraction prompt:\n%s", prompt)
	}

	corrective := buildCorrectiveExtractionPrompt("msft", "research notes", "oops", errors.New("unexpected end of JSON input"))
	if !strings.HasPrefix(corrective, prompt) {
		t.Fatal("corrective prompt must repeat the original request")
	}
	if !strings.Contains(corrective, "unexpected end of JSON input") || !strings.Contains(corrective, "oops") {
		t.Fatalf("corrective prompt missing failure details:\n%s", corrective)
	}
}

package observability

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"quantgemini/pkg/quantgemini"
)

var _ quantgemini.Observer = (*Metrics)(nil)

func TestObserveModelCall(t *testing.T) {
	m := NewMetrics()
	m.ObserveModelCall(quantgemini.StageGrounding, 2*time.Second, nil)
	m.ObserveModelCall(quantgemini.StageExtracting, time.Second, errors.New("boom"))
	m.ObserveModelCall(quantgemini.StageExtracting, time.Second, nil)

	if got := testutil.ToFloat64(m.modelCalls.WithLabelValues(quantgemini.StageGrounding, "ok")); got != 1 {
		t.Fatalf("grounding ok = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.modelCalls.WithLabelValues(quantgemini.StageExtracting, "error")); got != 1 {
		t.Fatalf("extracting error = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(m.modelCallDuration); got != 2 {
		t.Fatalf("expected 2 duration series, got %d", got)
	}
}

func TestObserveAnalysis(t *testing.T) {
	m := NewMetrics()
	m.ObserveAnalysis(quantgemini.OutcomeSuccess, 10*time.Second)
	m.ObserveAnalysis(quantgemini.OutcomeFormatFailure, 3*time.Second)
	m.ObserveAnalysis(quantgemini.OutcomeSuccess, 8*time.Second)

	if got := testutil.ToFloat64(m.analyses.WithLabelValues(quantgemini.OutcomeSuccess)); got != 2 {
		t.Fatalf("success = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.analyses.WithLabelValues(quantgemini.OutcomeFormatFailure)); got != 1 {
		t.Fatalf("format failure = %v, want 1", got)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := NewMetrics()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/analyses/{ticker}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, ticker := range []string{"NVDA", "AAPL"} {
		req := httptest.NewRequest(http.MethodGet, "/api/analyses/"+ticker, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/analyses/{ticker}", "404"))
	if got != 2 {
		t.Fatalf("expected 2 requests on the route pattern, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := NewMetrics()
	m.ObserveAnalysis(quantgemini.OutcomeTransportFailure, time.Second)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `quantgemini_analyses_total{outcome="transport_failure"} 1`) {
		t.Fatalf("expected analyses counter in output:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatalf("expected go runtime metrics in output")
	}
}

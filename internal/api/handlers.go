package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"quantgemini/pkg/quantgemini"
)

var stageMessages = map[string]string{
	quantgemini.StageGrounding:  "Searching the web for live market data",
	quantgemini.StageExtracting: "Structuring the research into an analysis",
	quantgemini.StageAssembling: "Assembling the report",
	quantgemini.StageDone:       "Analysis complete",
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) analyze(w http.ResponseWriter, r *http.Request) {
	var payload analyzePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.core.Analyze(r.Context(), quantgemini.AnalysisRequest{
		Ticker: payload.Ticker,
		APIKey: payload.APIKey,
	})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) analyzeStream(w http.ResponseWriter, r *http.Request) {
	var payload analyzePayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(payload.Ticker) == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	initSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	var streamMu sync.Mutex
	writeStreamEvent := func(event string, payload any) error {
		streamMu.Lock()
		defer streamMu.Unlock()
		return writeSSEEvent(w, flusher, event, payload)
	}

	result, err := h.core.AnalyzeWithProgress(r.Context(), quantgemini.AnalysisRequest{
		Ticker: payload.Ticker,
		APIKey: payload.APIKey,
	}, func(stage string) {
		if err := writeStreamEvent("progress", progressEvent{Stage: stage, Message: stageMessages[stage]}); err != nil {
			h.logger.Warn("analysis stream write failed", "stage", stage, "err", err)
		}
	})
	if err != nil {
		_, resp := newErrorResponse(r, err)
		recordErrorMessage(w, err.Error())
		_ = writeStreamEvent("error", streamErrorEvent{Error: resp.Message, ErrorCode: resp.ErrorCode})
		_ = writeStreamEvent("done", map[string]any{"ok": false})
		return
	}

	_ = writeStreamEvent("result", result)
	_ = writeStreamEvent("done", map[string]any{"ok": true})
}

func initSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

func writeSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := w.Write([]byte("event: " + event + "\n")); err != nil {
		return err
	}
	if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (h *handler) getRecent(w http.ResponseWriter, r *http.Request) {
	tickers, err := h.core.RecentTickers()
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickersResponse{Tickers: tickers})
}

func (h *handler) clearRecent(w http.ResponseWriter, r *http.Request) {
	if err := h.core.ClearRecentTickers(); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tickersResponse{Tickers: []string{}})
}

func (h *handler) getSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, tickersResponse{Tickers: h.core.SuggestedTickers()})
}

func (h *handler) getLatestAnalysis(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	result, err := h.core.GetLatestAnalysis(ticker)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	if result == nil {
		writeErrorResponse(w, r, quantgemini.NewError(quantgemini.ErrCodeNotFound, "no analysis stored for "+strings.ToUpper(ticker)))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getAnalysisHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntDefault(r.URL.Query().Get("limit"), 10)
	results, err := h.core.GetAnalysisHistory(chi.URLParam(r, "ticker"), limit)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *handler) deleteAnalyses(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	deleted, err := h.core.DeleteAnalyses(ticker)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteAnalysesResponse{Ticker: strings.ToUpper(strings.TrimSpace(ticker)), Deleted: deleted})
}

func (h *handler) getChart(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "ticker")))
	history, err := h.core.PlaceholderHistory(ticker, r.URL.Query().Get("price"))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chartResponse{Ticker: ticker, History: history, HistorySynthetic: true})
}

func (h *handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.core.GetAISettings()
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *handler) setSettings(w http.ResponseWriter, r *http.Request) {
	var payload aiSettingsPayload
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	settings, err := h.core.SetAISettings(quantgemini.AISettings{
		Provider:        payload.Provider,
		BaseURL:         payload.BaseURL,
		GroundingModel:  payload.GroundingModel,
		ExtractionModel: payload.ExtractionModel,
	})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Helpers.

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

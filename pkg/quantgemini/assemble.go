package quantgemini

// assembleAnalysis merges citations into the parsed object and guarantees a
// plottable history. The requested ticker always wins over the model's spelling
// so stored rows and the recency list share one key. A series shorter than MinHistoryPoints is replaced
// wholesale; a long enough one is kept untouched.
func assembleAnalysis(ticker string, parsed *AnalysisResult, sources []Source, history *HistoryGenerator) *AnalysisResult {
	result := *parsed
	result.Ticker = ticker

	result.Sources = make([]Source, len(sources))
	copy(result.Sources, sources)

	if len(result.History) < MinHistoryPoints {
		result.History = history.Generate(result.CurrentPrice, 0)
		result.HistorySynthetic = true
	}
	if result.Sentiment.Headlines == nil {
		result.Sentiment.Headlines = []Headline{}
	}
	return &result
}

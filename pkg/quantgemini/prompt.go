package quantgemini

import (
	"fmt"
	"strings"
)

const groundingSystemPrompt = `You are an equity research assistant with live web search.
Always search the web for current market data and news before answering.
Report figures exactly as published by the sources you found and say so when a figure could not be found.
Do not promise returns; every trading plan must mention its risks.`

const extractionSystemPrompt = `You convert stock research notes into a single JSON object.
Output JSON only: no markdown, no commentary.
Copy figures from the notes verbatim as display strings. Use "N/A" when a value is missing.
momentum.trend must be one of Bullish, Bearish, Neutral.
sentiment.label must be one of Positive, Negative, Neutral.
sentiment.score must be a number from 0 (very bearish) to 100 (very bullish).
headlines[].impact must be one of High, Medium, Low.
history holds the recent daily closing prices found in the notes, oldest first, with numeric prices.`

// extractionSchemaText describes the target object for providers that do not
// accept a response schema.
const extractionSchemaText = `{
  "ticker": "string",
  "name": "string",
  "currentPrice": "string",
  "priceChange": "string",
  "priceChangePercent": "string",
  "technicalSummary": "string",
  "indicators": {"rsi": "string", "macd": "string", "movingAverages": "string", "volumeProfile": "string", "shortInterest": "string"},
  "momentum": {"trend": "Bullish | Bearish | Neutral", "strength": "string", "description": "string"},
  "sentiment": {
    "score": number,
    "label": "Positive | Negative | Neutral",
    "headlines": [{"title": "string", "source": "string", "date": "string", "impact": "High | Medium | Low"}],
    "shortTermOutlook": "string"
  },
  "strategy": {"entryPoint": "string", "takeProfit": "string", "stopLoss": "string", "downsideExit": "string", "rationale": "string"},
  "history": [{"time": "string", "price": number}]
}`

// BuildAnalysisPrompt returns the grounded research prompt for ticker.
func BuildAnalysisPrompt(ticker string) string {
	symbol := strings.ToUpper(strings.TrimSpace(ticker))
	return fmt.Sprintf(`Perform a comprehensive analysis for the stock ticker: %s.
1. Technicals: search for the latest price and daily change, RSI, MACD, 50-day and 200-day SMA, volume profile and short interest.
2. Price history: list the closing prices of the last 5 trading days with their dates.
3. News sentiment: search for the most recent news (past 7 days).
   - Categorize overall sentiment (Positive/Negative/Neutral).
   - Assign a sentiment score from 0 (very bearish) to 100 (very bullish).
   - Identify the top 3-4 headlines, their publication dates and their likely impact on price (High/Medium/Low).
   - Give a short-term outlook based on this sentiment.
4. Momentum: classify the trend as Bullish, Bearish or Neutral and describe its strength.
5. Strategy: propose an entry point, a take-profit target, a stop-loss, a downside exit level and the rationale.

Return the analysis in a detailed structured format. Use Google Search grounding for real-time news and up-to-date data.`, symbol)
}

func buildExtractionPrompt(ticker, researchText string) string {
	return fmt.Sprintf(`Parse the following analysis of %s into a strict JSON object.

Text:
%s

JSON Schema:
%s`, strings.ToUpper(strings.TrimSpace(ticker)), researchText, extractionSchemaText)
}

func buildCorrectiveExtractionPrompt(ticker, researchText, previousOutput string, parseErr error) string {
	return fmt.Sprintf(`%s

Your previous answer could not be used: %v
Previous answer:
%s

Reply again with only the corrected JSON object.`, buildExtractionPrompt(ticker, researchText), parseErr, previousOutput)
}

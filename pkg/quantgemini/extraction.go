package quantgemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/genai"
)

var analysisValidator = validator.New()

func analysisResponseSchema() *genai.Schema {
	str := func(description string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Description: description}
	}
	enum := func(values []string) *genai.Schema {
		return &genai.Schema{Type: genai.TypeString, Enum: values}
	}

	headline := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":  str("Headline text."),
			"source": str("Publisher name."),
			"date":   str("Publication date as printed by the source."),
			"impact": enum(HeadlineImpacts),
		},
		Required: []string{"title", "impact"},
	}
	point := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"time":  str("Short date label, e.g. Mar 4."),
			"price": {Type: genai.TypeNumber},
		},
		Required: []string{"time", "price"},
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"ticker":             str("Ticker symbol."),
			"name":               str("Company or asset name."),
			"currentPrice":       str("Latest price as a display string, e.g. $123.45."),
			"priceChange":        str("Absolute daily change, negative values start with -."),
			"priceChangePercent": str("Daily change in percent, negative values start with -."),
			"technicalSummary":   str("Executive summary of the technical picture."),
			"indicators": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"rsi":            str(""),
					"macd":           str(""),
					"movingAverages": str(""),
					"volumeProfile":  str(""),
					"shortInterest":  str(""),
				},
			},
			"momentum": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"trend":       enum(MomentumTrends),
					"strength":    str(""),
					"description": str(""),
				},
				Required: []string{"trend"},
			},
			"sentiment": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"score":            {Type: genai.TypeNumber, Description: "0 very bearish, 100 very bullish."},
					"label":            enum(SentimentLabels),
					"headlines":        {Type: genai.TypeArray, Items: headline},
					"shortTermOutlook": str(""),
				},
				Required: []string{"score", "label"},
			},
			"strategy": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"entryPoint":   str(""),
					"takeProfit":   str(""),
					"stopLoss":     str(""),
					"downsideExit": str(""),
					"rationale":    str(""),
				},
			},
			"history": {
				Type:        genai.TypeArray,
				Items:       point,
				Description: "Recent daily closes, oldest first.",
			},
		},
		Required: []string{"ticker", "currentPrice", "momentum", "sentiment", "strategy"},
	}
}

// parseAnalysisJSON decodes and validates the extraction model output.
func parseAnalysisJSON(content string) (*AnalysisResult, error) {
	cleaned := cleanupModelJSON(content)
	if cleaned == "" {
		return nil, errors.New("model returned empty output")
	}
	var parsed AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return nil, fmt.Errorf("model returned invalid JSON: %w", err)
	}

	parsed.Ticker = strings.ToUpper(strings.TrimSpace(parsed.Ticker))
	parsed.CurrentPrice = strings.TrimSpace(parsed.CurrentPrice)
	parsed.Momentum.Trend = canonicalEnum(parsed.Momentum.Trend, MomentumTrends)
	parsed.Sentiment.Label = canonicalEnum(parsed.Sentiment.Label, SentimentLabels)
	for i := range parsed.Sentiment.Headlines {
		parsed.Sentiment.Headlines[i].Impact = canonicalEnum(parsed.Sentiment.Headlines[i].Impact, HeadlineImpacts)
	}

	if err := analysisValidator.Struct(&parsed); err != nil {
		return nil, fmt.Errorf("model JSON failed validation: %w", describeValidationError(err))
	}
	// Fields computed locally never come from the model.
	parsed.ID = ""
	parsed.Sources = nil
	parsed.HistorySynthetic = false
	parsed.Model = ""
	parsed.CreatedAt = ""
	return &parsed, nil
}

// canonicalEnum maps a case-insensitive match onto the allowed spelling.
// Unknown values are returned trimmed so validation can reject them.
func canonicalEnum(value string, allowed []string) string {
	trimmed := strings.TrimSpace(value)
	for _, candidate := range allowed {
		if strings.EqualFold(trimmed, candidate) {
			return candidate
		}
	}
	return trimmed
}

func describeValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Namespace(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s is %s", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(parts, "; "))
}

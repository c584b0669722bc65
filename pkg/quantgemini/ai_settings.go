package quantgemini

import (
	"database/sql"
	"strings"
)

const (
	DefaultGroundingModel  = "gemini-3-pro-preview"
	DefaultExtractionModel = "gemini-3-flash-preview"

	DefaultOpenAIExtractionModel    = "gpt-4o-mini"
	DefaultAnthropicExtractionModel = "claude-haiku-4-5"
)

var validAIProviders = map[string]struct{}{
	ProviderGemini:    {},
	ProviderOpenAI:    {},
	ProviderAnthropic: {},
}

// AISettings are the persisted, non-secret model settings.
type AISettings struct {
	// Provider serves the extraction call. The grounded call always uses Gemini.
	Provider        string `json:"provider"`
	BaseURL         string `json:"base_url"`
	GroundingModel  string `json:"grounding_model"`
	ExtractionModel string `json:"extraction_model"`
}

func builtinAISettings() AISettings {
	return AISettings{
		Provider:        ProviderGemini,
		GroundingModel:  DefaultGroundingModel,
		ExtractionModel: DefaultExtractionModel,
	}
}

func trimTrailingSlash(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.TrimRight(trimmed, "/")
}

// normalizeAISettings cleans settings and fills blanks from defaults.
func normalizeAISettings(settings, defaults AISettings) AISettings {
	normalized := settings
	normalized.BaseURL = trimTrailingSlash(normalized.BaseURL)
	if normalized.BaseURL == "" {
		normalized.BaseURL = defaults.BaseURL
	}
	normalized.GroundingModel = strings.TrimSpace(normalized.GroundingModel)
	if normalized.GroundingModel == "" {
		normalized.GroundingModel = defaults.GroundingModel
	}
	normalized.ExtractionModel = strings.TrimSpace(normalized.ExtractionModel)

	normalized.Provider = strings.ToLower(strings.TrimSpace(normalized.Provider))
	if normalized.Provider == "" {
		model := normalized.ExtractionModel
		if model == "" {
			model = defaults.ExtractionModel
		}
		normalized.Provider = inferProvider(model)
	}
	if _, ok := validAIProviders[normalized.Provider]; !ok {
		normalized.Provider = ProviderGemini
	}
	if normalized.ExtractionModel == "" {
		normalized.ExtractionModel = defaultExtractionModel(normalized.Provider, defaults)
	}
	return normalized
}

// defaultExtractionModel picks the configured default when it belongs to
// provider, and the provider's built-in model otherwise.
func defaultExtractionModel(provider string, defaults AISettings) string {
	if defaults.ExtractionModel != "" && inferProvider(defaults.ExtractionModel) == provider {
		return defaults.ExtractionModel
	}
	return DefaultExtractionModelFor(provider)
}

// DefaultExtractionModelFor returns the built-in extraction model of a
// provider. Unknown or blank providers get the Gemini default.
func DefaultExtractionModelFor(provider string) string {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI:
		return DefaultOpenAIExtractionModel
	case ProviderAnthropic:
		return DefaultAnthropicExtractionModel
	default:
		return DefaultExtractionModel
	}
}

// GetAISettings returns persisted AI settings, or the configured defaults
// when nothing has been saved.
func (c *Core) GetAISettings() (AISettings, error) {
	var settings AISettings
	err := c.db.QueryRow(`
		SELECT provider, base_url, grounding_model, extraction_model
		FROM ai_settings
		WHERE id = 1
	`).Scan(
		&settings.Provider,
		&settings.BaseURL,
		&settings.GroundingModel,
		&settings.ExtractionModel,
	)
	if err == sql.ErrNoRows {
		return c.defaults, nil
	}
	if err != nil {
		return AISettings{}, WrapError(ErrCodeDatabase, "load ai settings", err)
	}
	return normalizeAISettings(settings, c.defaults), nil
}

// SetAISettings persists AI settings. API keys are never stored.
func (c *Core) SetAISettings(settings AISettings) (AISettings, error) {
	normalized := normalizeAISettings(settings, c.defaults)

	_, err := c.db.Exec(`
		INSERT INTO ai_settings (id, provider, base_url, grounding_model, extraction_model, updated_at)
		VALUES (1, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			provider = excluded.provider,
			base_url = excluded.base_url,
			grounding_model = excluded.grounding_model,
			extraction_model = excluded.extraction_model,
			updated_at = CURRENT_TIMESTAMP
	`, normalized.Provider, normalized.BaseURL, normalized.GroundingModel, normalized.ExtractionModel)
	if err != nil {
		return AISettings{}, WrapError(ErrCodeDatabase, "save ai settings", err)
	}
	return normalized, nil
}

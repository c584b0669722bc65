package quantgemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"google.golang.org/genai"
)

const (
	ProviderGemini    = "gemini"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	defaultGeminiBaseURL  = "https://generativelanguage.googleapis.com/v1beta"
	aiMaxOutputTokens     = 8192
	anthropicMaxTokens    = 4096
	aiExtractionMaxTokens = 4096
)

type aiCompletionRequest struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	UserPrompt   string
	Logger       *slog.Logger
}

type aiCompletionResult struct {
	Model   string
	Content string
	// Sources is only filled by the grounded call.
	Sources []Source
}

// Swapped in tests.
var groundedCompletion = requestGroundedCompletion
var extractionCompletion = requestExtractionCompletion

func requestExtractionCompletion(ctx context.Context, req aiCompletionRequest) (aiCompletionResult, error) {
	switch req.Provider {
	case ProviderOpenAI:
		return requestOpenAIExtraction(ctx, req)
	case ProviderAnthropic:
		return requestAnthropicExtraction(ctx, req)
	default:
		return requestGeminiExtraction(ctx, req)
	}
}

func newGeminiClient(ctx context.Context, req aiCompletionRequest) (*genai.Client, error) {
	clientConfig, err := buildGeminiClientConfig(req.BaseURL, req.APIKey)
	if err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client failed: %w", err)
	}
	return client, nil
}

func requestGeminiExtraction(ctx context.Context, req aiCompletionRequest) (aiCompletionResult, error) {
	logAIPromptDebug(req.Logger, req.BaseURL, req.Model, req.SystemPrompt, req.UserPrompt)

	client, err := newGeminiClient(ctx, req)
	if err != nil {
		return aiCompletionResult{}, err
	}
	response, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		},
		Temperature:      genai.Ptr(float32(0)),
		MaxOutputTokens:  aiExtractionMaxTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   analysisResponseSchema(),
	})
	if err != nil {
		return aiCompletionResult{}, fmt.Errorf("gemini generate content failed: %w", err)
	}
	content := strings.TrimSpace(response.Text())
	logAIRawResponseDebug(req.Logger, req.Model, content)
	if content == "" {
		return aiCompletionResult{}, fmt.Errorf("ai response content is empty")
	}
	return aiCompletionResult{Model: modelOrDefault(response.ModelVersion, req.Model), Content: content}, nil
}

func requestOpenAIExtraction(ctx context.Context, req aiCompletionRequest) (aiCompletionResult, error) {
	logAIPromptDebug(req.Logger, req.BaseURL, req.Model, req.SystemPrompt, req.UserPrompt)

	opts := []openaioption.RequestOption{
		openaioption.WithAPIKey(strings.TrimSpace(req.APIKey)),
		openaioption.WithMaxRetries(0),
	}
	if baseURL := trimTrailingSlash(req.BaseURL); baseURL != "" {
		opts = append(opts, openaioption.WithBaseURL(baseURL+"/"))
	}
	client := openai.NewClient(opts...)

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.SystemPrompt),
			openai.UserMessage(req.UserPrompt),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return aiCompletionResult{}, fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return aiCompletionResult{}, fmt.Errorf("ai response has no choices")
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	logAIRawResponseDebug(req.Logger, req.Model, content)
	if content == "" {
		return aiCompletionResult{}, fmt.Errorf("ai response content is empty")
	}
	return aiCompletionResult{Model: modelOrDefault(completion.Model, req.Model), Content: content}, nil
}

func requestAnthropicExtraction(ctx context.Context, req aiCompletionRequest) (aiCompletionResult, error) {
	logAIPromptDebug(req.Logger, req.BaseURL, req.Model, req.SystemPrompt, req.UserPrompt)

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(strings.TrimSpace(req.APIKey)),
		anthropicoption.WithMaxRetries(0),
	}
	if baseURL := trimTrailingSlash(req.BaseURL); baseURL != "" {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL+"/"))
	}
	client := anthropic.NewClient(opts...)

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: anthropicMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	})
	if err != nil {
		return aiCompletionResult{}, fmt.Errorf("anthropic messages request failed: %w", err)
	}
	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	content := strings.TrimSpace(sb.String())
	logAIRawResponseDebug(req.Logger, req.Model, content)
	if content == "" {
		return aiCompletionResult{}, fmt.Errorf("ai response content is empty")
	}
	return aiCompletionResult{Model: modelOrDefault(string(message.Model), req.Model), Content: content}, nil
}

func buildGeminiClientConfig(endpoint, apiKey string) (*genai.ClientConfig, error) {
	baseURL, apiVersion, err := parseGeminiBaseURLAndVersion(endpoint)
	if err != nil {
		return nil, err
	}
	return &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    baseURL,
			APIVersion: apiVersion,
		},
	}, nil
}

func parseGeminiBaseURLAndVersion(endpoint string) (string, string, error) {
	trimmed := strings.TrimSpace(endpoint)
	if trimmed == "" {
		trimmed = defaultGeminiBaseURL
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "https://" + trimmed
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", "", fmt.Errorf("invalid gemini endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", "", fmt.Errorf("invalid gemini endpoint scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", "", fmt.Errorf("invalid gemini endpoint host")
	}

	segments := []string{}
	if path := strings.Trim(parsed.Path, "/"); path != "" {
		segments = strings.Split(path, "/")
	}

	apiVersion := "v1beta"
	prefixSegments := segments
	for idx, segment := range segments {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(segment)), "v1") {
			apiVersion = segment
			prefixSegments = segments[:idx]
			break
		}
	}

	baseURL := fmt.Sprintf("%s://%s/", parsed.Scheme, parsed.Host)
	if basePath := strings.Trim(strings.Join(prefixSegments, "/"), "/"); basePath != "" {
		baseURL += basePath + "/"
	}
	return baseURL, apiVersion, nil
}

// inferProvider picks an extraction provider from a model id when none is configured.
func inferProvider(model string) string {
	modelLower := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(modelLower, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(modelLower, "gpt"), strings.HasPrefix(modelLower, "o1"),
		strings.HasPrefix(modelLower, "o3"), strings.HasPrefix(modelLower, "o4"):
		return ProviderOpenAI
	default:
		return ProviderGemini
	}
}

func modelOrDefault(reported, requested string) string {
	if m := strings.TrimSpace(reported); m != "" {
		return m
	}
	return requested
}

func logAIPromptDebug(logger *slog.Logger, endpoint, model, systemPrompt, userPrompt string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("ai request prompt",
		"endpoint", strings.TrimSpace(endpoint),
		"model", strings.TrimSpace(model),
		"system_prompt", systemPrompt,
		"user_prompt", userPrompt,
	)
}

func logAIRawResponseDebug(logger *slog.Logger, model, content string) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Debug("ai raw response",
		"model", strings.TrimSpace(model),
		"content_bytes", len(content),
		"content", content,
	)
}

func cleanupModelJSON(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "```") {
		lines := strings.Split(trimmed, "\n")
		if len(lines) >= 2 {
			lines = lines[1:]
			if len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "```" {
				lines = lines[:len(lines)-1]
			}
			trimmed = strings.Join(lines, "\n")
		}
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		trimmed = trimmed[start : end+1]
	}
	return strings.TrimSpace(trimmed)
}

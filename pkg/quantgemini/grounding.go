package quantgemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// requestGroundedCompletion runs the reasoning model with Google Search enabled
// and returns its free text together with the web citations it used.
func requestGroundedCompletion(ctx context.Context, req aiCompletionRequest) (aiCompletionResult, error) {
	logAIPromptDebug(req.Logger, req.BaseURL, req.Model, req.SystemPrompt, req.UserPrompt)

	client, err := newGeminiClient(ctx, req)
	if err != nil {
		return aiCompletionResult{}, err
	}

	config := &genai.GenerateContentConfig{
		Tools:           []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		Temperature:     genai.Ptr(float32(0.2)),
		MaxOutputTokens: aiMaxOutputTokens,
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}

	response, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.UserPrompt), config)
	if err != nil {
		return aiCompletionResult{}, fmt.Errorf("gemini grounded generate content failed: %w", err)
	}
	content := strings.TrimSpace(response.Text())
	logAIRawResponseDebug(req.Logger, req.Model, content)
	if content == "" {
		return aiCompletionResult{}, fmt.Errorf("ai response content is empty")
	}
	return aiCompletionResult{
		Model:   modelOrDefault(response.ModelVersion, req.Model),
		Content: content,
		Sources: collectGroundingSources(response),
	}, nil
}

// collectGroundingSources keeps web chunks of the first candidate that carry
// both a title and a URI, in the order the model reported them.
func collectGroundingSources(response *genai.GenerateContentResponse) []Source {
	sources := []Source{}
	if response == nil || len(response.Candidates) == 0 {
		return sources
	}
	candidate := response.Candidates[0]
	if candidate == nil || candidate.GroundingMetadata == nil {
		return sources
	}
	for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
		if chunk == nil || chunk.Web == nil {
			continue
		}
		title := strings.TrimSpace(chunk.Web.Title)
		uri := strings.TrimSpace(chunk.Web.URI)
		if title == "" || uri == "" {
			continue
		}
		sources = append(sources, Source{Title: title, URI: uri})
	}
	return sources
}

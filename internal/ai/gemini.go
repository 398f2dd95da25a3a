package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

// GeminiClient calls Gemini through the official genai SDK.
type GeminiClient struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// NewGeminiClient создает клиент Gemini с заданными параметрами.
func NewGeminiClient(ctx context.Context, apiKey, baseURL, model string, timeout time.Duration, maxTokens int) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini api key is missing")
	}

	config := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}
	if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: strings.TrimRight(trimmed, "/") + "/"}
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, err
	}

	return &GeminiClient{client: client, model: model, maxTokens: maxTokens}, nil
}

// Chat отправляет сообщения в Gemini и возвращает текст ответа и сырой ответ API.
func (c *GeminiClient) Chat(ctx context.Context, messages []Message) (string, []byte, error) {
	systemParts := make([]*genai.Part, 0)
	contents := make([]*genai.Content, 0)

	for _, message := range messages {
		role := strings.ToLower(strings.TrimSpace(message.Role))
		text := strings.TrimSpace(message.Content)
		if text == "" {
			continue
		}

		switch role {
		case "system":
			systemParts = append(systemParts, &genai.Part{Text: text})
		case "assistant", "model":
			contents = append(contents, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}})
		default:
			contents = append(contents, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: text}}})
		}
	}

	if len(contents) == 0 {
		return "", nil, errors.New("gemini request has no user content")
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0.2),
		MaxOutputTokens:  int32(resolveMaxTokens(c.maxTokens)),
		ResponseMIMEType: "application/json",
	}
	if len(systemParts) > 0 {
		config.SystemInstruction = &genai.Content{Parts: systemParts}
	}

	response, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", nil, err
	}

	body, _ := json.Marshal(response)

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil {
		return "", body, errors.New("gemini response missing candidates")
	}

	parts := response.Candidates[0].Content.Parts
	if len(parts) == 0 {
		return "", body, errors.New("gemini response missing content")
	}

	var builder strings.Builder
	for _, part := range parts {
		if part != nil {
			builder.WriteString(part.Text)
		}
	}

	return builder.String(), body, nil
}

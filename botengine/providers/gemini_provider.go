package providers

import (
	"context"
	"fmt"
	"strings"
	"time"

	domainBot "github.com/AzielCF/az-flow/domains/bot"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider is the adapter for the Google Gemini API
type GeminiProvider struct {
	apiKey string
	model  string
}

func NewGeminiProvider(apiKey, model string) *GeminiProvider {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{apiKey: apiKey, model: model}
}

func (p *GeminiProvider) GenerateReply(ctx context.Context, req domainBot.ReplyRequest) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("gemini provider has no API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}

	var cfg *genai.GenerateContentConfig
	if req.SystemPrompt != "" {
		cfg = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(req.SystemPrompt, ""),
		}
	}

	userText := req.Text
	if req.SenderName != "" {
		userText = fmt.Sprintf("%s: %s", req.SenderName, req.Text)
	}
	contents := []*genai.Content{
		genai.NewContentFromText(userText, genai.RoleUser),
	}

	result, err := p.generateContentWithRetry(ctx, client, contents, cfg)
	if err != nil {
		return "", err
	}
	if result == nil || len(result.Candidates) == 0 {
		return "", fmt.Errorf("no response from gemini")
	}

	// Extraer texto manualmente de las partes (más robusto que result.Text())
	var fullText string
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			fullText += part.Text
		}
	}
	return fullText, nil
}

func (p *GeminiProvider) generateContentWithRetry(ctx context.Context, client *genai.Client, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var lastErr error
	for i := 0; i < 3; i++ {
		result, err := client.Models.GenerateContent(ctx, p.model, contents, cfg)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if strings.Contains(err.Error(), "503") {
			select {
			case <-time.After(time.Duration(1<<uint(i)) * time.Second):
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return nil, err
	}
	return nil, lastErr
}

package providers

import (
	"context"
	"fmt"

	domainBot "github.com/AzielCF/az-flow/domains/bot"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider is the adapter for the OpenAI API
type OpenAIProvider struct {
	apiKey string
	model  string
}

func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIProvider{apiKey: apiKey, model: model}
}

func (p *OpenAIProvider) GenerateReply(ctx context.Context, req domainBot.ReplyRequest) (string, error) {
	if p.apiKey == "" {
		return "", fmt.Errorf("openai provider has no API key")
	}

	client := openai.NewClient(
		option.WithAPIKey(p.apiKey),
	)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	userText := req.Text
	if req.SenderName != "" {
		userText = fmt.Sprintf("%s: %s", req.SenderName, req.Text)
	}
	messages = append(messages, openai.UserMessage(userText))

	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: messages,
	})
	if err != nil {
		return "", err
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	logrus.WithFields(logrus.Fields{
		"model":         p.model,
		"input_tokens":  completion.Usage.PromptTokens,
		"output_tokens": completion.Usage.CompletionTokens,
	}).Debug("[OPENAI] Chat completed")

	return completion.Choices[0].Message.Content, nil
}

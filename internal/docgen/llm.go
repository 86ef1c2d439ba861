package docgen

import (
	"context"
	"fmt"
	"strings"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
)

const (
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultAnthropicModel = "claude-sonnet-4-5-20250929"
	maxDraftTokens        = 4000
)

// OpenAIDrafter drafts through any OpenAI-compatible chat completion endpoint.
type OpenAIDrafter struct {
	client *openai.Client
	model  string
}

func NewOpenAIDrafter(apiKey, baseURL, model string) *OpenAIDrafter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAIDrafter{client: openai.NewClientWithConfig(cfg), model: model}
}

func (d *OpenAIDrafter) Name() string { return "openai" }

func (d *OpenAIDrafter) Draft(ctx context.Context, req Request) (string, error) {
	resp, err := d.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     d.model,
		MaxTokens: maxDraftTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt(req)},
		},
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Message.Content, nil
}

type AnthropicDrafter struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicDrafter(apiKey, baseURL, model string) *AnthropicDrafter {
	var opts []anthropic.ClientOption
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(baseURL, "/")))
	}
	if model == "" {
		model = defaultAnthropicModel
	}
	return &AnthropicDrafter{client: anthropic.NewClient(apiKey, opts...), model: model}
}

func (d *AnthropicDrafter) Name() string { return "anthropic" }

func (d *AnthropicDrafter) Draft(ctx context.Context, req Request) (string, error) {
	system := systemPrompt
	user := prompt(req)
	resp, err := d.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(d.model),
		System:    system,
		MaxTokens: maxDraftTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &user},
			}},
		},
	})
	if err != nil {
		return "", err
	}
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text, nil
		}
	}
	return "", fmt.Errorf("no text block in response")
}

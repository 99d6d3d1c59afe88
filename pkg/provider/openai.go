package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider implements Provider using the official OpenAI Go SDK.
// Any OpenAI-compatible endpoint works through BaseURL, which covers
// local inference servers as well.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider creates an OpenAI provider. The API key is required;
// baseURL and model fall back to the SDK default endpoint and gpt-4o-mini.
func NewOpenAIProvider(baseURL, apiKey, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

// Stream implements Provider.Stream over the chat completions API.
func (p *OpenAIProvider) Stream(ctx context.Context, messages []Message, cb StreamCallback) error {
	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(messages),
		Model:    openai.ChatModel(p.model),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if cb != nil {
				if err := cb(chunk.Choices[0].Delta.Content); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("openai streaming error: %w", err)
	}
	return nil
}

// Complete implements Provider.Complete by collecting the stream.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	var b strings.Builder
	err := p.Stream(ctx, messages, func(fragment string) error {
		b.WriteString(fragment)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Model implements Provider.Model.
func (p *OpenAIProvider) Model() string { return p.model }

// Ping implements Provider.Ping by listing models.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	if _, err := p.client.Models.List(ctx); err != nil {
		return fmt.Errorf("openai ping failed: %w", err)
	}
	return nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 4096

// AnthropicProvider implements Provider using the official Anthropic Go SDK.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int
}

// NewAnthropicProvider creates an Anthropic provider. The API key is
// required; model defaults to the current Sonnet release.
func NewAnthropicProvider(baseURL, apiKey, model string, maxTokens int) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	m := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		m = anthropic.Model(model)
	}
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{
		client:    &client,
		model:     m,
		maxTokens: maxTokens,
	}, nil
}

// Stream implements Provider.Stream over the messages API.
func (p *AnthropicProvider) Stream(ctx context.Context, messages []Message, cb StreamCallback) error {
	msgs, system := toAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  msgs,
		MaxTokens: int64(p.maxTokens),
	}
	if len(system) > 0 {
		params.System = system
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if cb != nil {
					if err := cb(deltaVariant.Text); err != nil {
						return err
					}
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic streaming error: %w", err)
	}
	return nil
}

// Complete implements Provider.Complete by collecting the stream.
func (p *AnthropicProvider) Complete(ctx context.Context, messages []Message) (string, error) {
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
func (p *AnthropicProvider) Model() string { return string(p.model) }

// Ping implements Provider.Ping with a minimal single-token request, since
// the API has no dedicated health endpoint.
func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 1,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock("ping")),
		},
	})
	if err != nil {
		return fmt.Errorf("anthropic ping failed: %w", err)
	}
	return nil
}

// toAnthropicMessages splits system prompts out of the message list, since
// the API takes them as a separate parameter.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = append(system, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return out, system
}

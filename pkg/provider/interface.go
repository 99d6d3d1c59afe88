// Package provider abstracts the LLM backends used to generate assistant
// replies. The chat engine and HTTP layer stay provider-agnostic; all
// SDK-specific types live behind the Provider interface.
package provider

import "context"

// StreamCallback receives each text fragment as the provider produces it.
// Returning an error aborts the stream.
type StreamCallback func(fragment string) error

// Provider is the contract all LLM backends implement.
type Provider interface {
	// Stream sends the conversation to the backend and delivers the reply
	// incrementally through the callback. It returns only after the stream
	// finishes or fails.
	Stream(ctx context.Context, messages []Message, cb StreamCallback) error

	// Complete sends the conversation and returns the full reply text.
	Complete(ctx context.Context, messages []Message) (string, error)

	// Model returns the model name requests are issued against.
	Model() string

	// Ping verifies the backend is reachable with the configured credentials.
	Ping(ctx context.Context) error
}

// Message is the provider-agnostic conversation record sent to a backend.
type Message struct {
	Role    string
	Content string
}

// Type identifies the provider implementation.
type Type string

const (
	TypeOpenAI    Type = "openai"
	TypeAnthropic Type = "anthropic"
)

// Config holds provider-specific configuration.
type Config struct {
	Type      Type
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	// RPS and Burst bound outbound request rate; zero disables limiting.
	RPS   float64
	Burst int
}

package provider

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// New creates a provider from configuration. When cfg.RPS is set the
// returned provider is wrapped with an outbound rate limiter.
func New(cfg Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Type {
	case TypeOpenAI:
		p, err = NewOpenAIProvider(cfg.BaseURL, cfg.APIKey, cfg.Model)
	case TypeAnthropic:
		p, err = NewAnthropicProvider(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.MaxTokens)
	default:
		return nil, fmt.Errorf("unknown provider type: %q", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		p = &limited{inner: p, lim: rate.NewLimiter(rate.Limit(cfg.RPS), burst)}
	}
	return p, nil
}

// limited wraps a Provider with a token-bucket limiter on request starts.
type limited struct {
	inner Provider
	lim   *rate.Limiter
}

func (l *limited) Stream(ctx context.Context, messages []Message, cb StreamCallback) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.inner.Stream(ctx, messages, cb)
}

func (l *limited) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := l.lim.Wait(ctx); err != nil {
		return "", err
	}
	return l.inner.Complete(ctx, messages)
}

func (l *limited) Model() string { return l.inner.Model() }

func (l *limited) Ping(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		return err
	}
	return l.inner.Ping(ctx)
}

// Package app wires the server components together and owns their
// lifecycle: store, provider, chat engine, retention and HTTP.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"loom/internal/retention"
	"loom/pkg/chat"
	"loom/pkg/config"
	"loom/pkg/logger"
	"loom/pkg/provider"
	"loom/pkg/state"
	"loom/pkg/store"
	"loom/pkg/stream"
)

// App encapsulates the server components and lifecycle.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	engine *chat.Engine
	prov   provider.Provider

	srv *http.Server
}

// New initializes resources that do not require a running context: the
// state directories, the store, the provider and the chat engine. It
// does not start retention or the HTTP server; call Run for those.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	if n := eff.Config.Stream.MaxPooledBufferBytes.Int64(); n > 0 {
		stream.SetMaxPooledBuffer(int(n))
	}

	if err := state.Init(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to prepare state dirs under %s: %w", eff.DBPath, err)
	}

	if err := store.Open(state.PathsVar.Store); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", state.PathsVar.Store, err)
	}

	p := eff.Config.Provider
	prov, err := provider.New(provider.Config{
		Type:      provider.Type(p.Type),
		BaseURL:   p.BaseURL,
		APIKey:    p.APIKey,
		Model:     p.Model,
		MaxTokens: p.MaxTokens,
		RPS:       p.RPS,
		Burst:     p.Burst,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to build provider: %w", err)
	}

	a := &App{
		eff:       eff,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		prov:      prov,
		engine:    chat.New(prov, eff.Config.Chat.Fallback),
	}
	return a, nil
}

// Run starts retention and the HTTP server, and blocks until ctx is
// canceled or a fatal server error occurs. The store is closed on exit.
func (a *App) Run(ctx context.Context) error {
	stopRetention, err := retention.Start(ctx, a.eff)
	if err != nil {
		return fmt.Errorf("failed to start retention: %w", err)
	}
	defer stopRetention()

	a.printBanner()

	errCh := a.startHTTP()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutCtx); err != nil {
			logger.Log.Warn("http_shutdown_error", zap.Error(err))
		}
		if err := store.Close(); err != nil {
			logger.Log.Warn("store_close_error", zap.Error(err))
		}
		logger.Log.Info("server_stopped")
		return nil
	case err := <-errCh:
		_ = store.Close()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

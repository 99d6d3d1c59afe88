// Package retention purges conversations that have been idle longer
// than the configured period. Runs are scheduled by cron expression.
package retention

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/adhocore/gronx"
	"go.uber.org/zap"

	"loom/pkg/config"
	"loom/pkg/logger"
	"loom/pkg/state"
)

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, eff config.EffectiveConfigResult) (context.CancelFunc, error) {
	ret := eff.Config.Retention
	if !ret.Enabled {
		logger.Log.Info("retention_disabled")
		return func() {}, nil
	}

	retentionPath := state.PathsVar.Retention
	if err := os.MkdirAll(retentionPath, 0o700); err != nil {
		logger.Log.Error("retention_path_create_failed", zap.String("path", retentionPath), zap.Error(err))
		return nil, err
	}

	// empty cron defaults to daily @02:00
	cronExpr := ret.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Log.Error("retention_invalid_cron", zap.String("cron", ret.Cron))
		return nil, fmt.Errorf("invalid retention cron expression: %s", ret.Cron)
	}

	logger.Log.Info("retention_enabled",
		zap.String("cron", cronExpr),
		zap.Duration("period", ret.Period.Duration()),
		zap.Bool("dry_run", ret.DryRun))
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, ret, cronExpr)
	return cancel, nil
}

// runScheduler computes the next tick for the cron expression with gronx
// and sleeps until then, repeating until cancellation.
func runScheduler(ctx context.Context, ret config.RetentionConfig, cronExpr string) {
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Log.Error("retention_nexttick_failed", zap.String("cron", cronExpr), zap.Error(err))
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
			if err := RunOnce(ctx, ret); err != nil {
				logger.Log.Error("retention_run_error", zap.Error(err))
			}
		case <-ctx.Done():
			logger.Log.Info("retention_scheduler_stopping")
			return
		}
	}
}

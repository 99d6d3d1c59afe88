package retention

import (
	"context"
	"time"

	"go.uber.org/zap"

	"loom/pkg/config"
	"loom/pkg/logger"
	"loom/pkg/store"
)

// RunOnce executes a single retention sweep: list conversations, delete
// those idle past the cutoff, in batches with an optional pause between
// batches so large purges do not monopolize the store.
func RunOnce(ctx context.Context, ret config.RetentionConfig) error {
	period := ret.Period.Duration()
	if period <= 0 {
		period = 30 * 24 * time.Hour
	}
	cutoff := time.Now().UTC().Add(-period).UnixNano()

	batchSize := ret.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	batchSleep := time.Duration(ret.BatchSleepMs) * time.Millisecond

	convs, err := store.ListConversations()
	if err != nil {
		return err
	}

	var scanned, purged, inBatch int
	for _, conv := range convs {
		select {
		case <-ctx.Done():
			logger.Log.Info("retention_run_aborted", zap.Int("scanned", scanned), zap.Int("purged", purged))
			return ctx.Err()
		default:
		}
		scanned++
		last := conv.UpdatedTS
		if last == 0 {
			last = conv.CreatedTS
		}
		if last >= cutoff {
			continue
		}
		if ret.DryRun {
			logger.Log.Info("retention_would_purge", zap.String("conversation", conv.ID))
			continue
		}
		if err := store.DeleteConversation(conv.ID); err != nil {
			logger.Log.Error("retention_purge_failed", zap.String("conversation", conv.ID), zap.Error(err))
			continue
		}
		purged++
		inBatch++
		if inBatch >= batchSize {
			inBatch = 0
			if batchSleep > 0 {
				select {
				case <-time.After(batchSleep):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}

	logger.Log.Info("retention_run_complete", zap.Int("scanned", scanned), zap.Int("purged", purged))
	return nil
}

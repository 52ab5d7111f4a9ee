package dataset

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/klimadashboard/klimasync/internal/dashsync"
	"github.com/klimadashboard/klimasync/pkg/slack"
)

// Engine orchestrates dataset sync runs.
type Engine struct {
	deps     Deps
	syncLog  *dashsync.SyncLog
	reg      *Registry
	notifier slack.Notifier
}

// RunOpts configures which datasets to sync and how.
type RunOpts struct {
	Datasets []string // restrict to specific dataset names
	Force    bool     // ignore ShouldRun() scheduling
}

// NewEngine creates a new sync engine.
func NewEngine(deps Deps, syncLog *dashsync.SyncLog, reg *Registry, notifier slack.Notifier) *Engine {
	return &Engine{
		deps:     deps,
		syncLog:  syncLog,
		reg:      reg,
		notifier: notifier,
	}
}

// Run iterates over the selected datasets, checks if each needs syncing,
// and runs the sync. Results are recorded in the sync log and posted to
// Slack.
func (e *Engine) Run(ctx context.Context, opts RunOpts) error {
	log := zap.L().With(zap.String("component", "dataset.engine"))
	now := time.Now().UTC()
	runID := uuid.NewString()

	datasets, err := e.reg.Select(opts.Datasets)
	if err != nil {
		return err
	}

	if len(datasets) == 0 {
		log.Info("no datasets selected")
		return nil
	}

	log.Info("selected datasets", zap.String("run_id", runID), zap.Int("count", len(datasets)))

	var synced, skipped, failed int

	for _, ds := range datasets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		dsLog := log.With(zap.String("dataset", ds.Name()))

		if !opts.Force {
			lastSync, err := e.syncLog.LastSuccess(ctx, ds.Name())
			if err != nil {
				return eris.Wrapf(err, "engine: check last sync for %s", ds.Name())
			}

			if !ds.ShouldRun(now, lastSync) {
				dsLog.Debug("skipping (not due)")
				skipped++
				continue
			}
		}

		dsLog.Info("starting sync")
		syncID, err := e.syncLog.Start(ctx, runID, ds.Name())
		if err != nil {
			return eris.Wrapf(err, "engine: start sync log for %s", ds.Name())
		}

		start := time.Now()
		summary, err := e.syncDataset(ctx, ds)
		elapsed := time.Since(start)

		if err != nil {
			dsLog.Error("sync failed", zap.Error(err), zap.Duration("elapsed", elapsed))
			if logErr := e.syncLog.Fail(ctx, syncID, err.Error()); logErr != nil {
				dsLog.Error("failed to record sync failure", zap.Error(logErr))
			}
			e.notify(ctx, slack.LevelError, fmt.Sprintf("*%s* sync failed: %v", ds.Name(), err))
			failed++
			continue
		}

		if err := e.syncLog.Complete(ctx, syncID, summary); err != nil {
			dsLog.Error("failed to record sync completion", zap.Error(err))
		}

		dsLog.Info("sync complete",
			zap.String("summary", summary.String()),
			zap.Duration("elapsed", elapsed),
		)
		level := slack.LevelSuccess
		if summary.Failed > 0 {
			level = slack.LevelWarning
		}
		e.notify(ctx, level, fmt.Sprintf("*%s* sync complete: %s", ds.Name(), summary))
		synced++
	}

	log.Info("engine run complete",
		zap.String("run_id", runID),
		zap.Int("synced", synced),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return eris.Errorf("engine: %d of %d datasets failed", failed, synced+failed)
	}
	return nil
}

// syncDataset runs one dataset through the record pipeline, or hands
// off to the dataset's own Sync when it implements Syncer.
func (e *Engine) syncDataset(ctx context.Context, ds Dataset) (*dashsync.SyncSummary, error) {
	if syncer, ok := ds.(Syncer); ok {
		return syncer.Sync(ctx, e.deps)
	}

	var opts []dashsync.ReconcilerOption
	if rc, ok := ds.(ReconcilerConfigurer); ok {
		opts = rc.ReconcilerOptions()
	}

	rec := dashsync.NewReconciler(e.deps.Directus, ds.Collection(), opts...)
	job := dashsync.NewJob(ds.Name(), func(ctx context.Context) ([]dashsync.ExternalRecord, error) {
		return ds.Fetch(ctx, e.deps)
	}, ds.Mapping(), rec)

	return job.Run(ctx)
}

func (e *Engine) notify(ctx context.Context, level slack.Level, message string) {
	if err := e.notifier.Notify(ctx, level, message); err != nil {
		zap.L().Warn("slack notification failed", zap.Error(err))
	}
}

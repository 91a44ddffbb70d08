package service

import (
	"context"
	"sync"
	"time"

	"github.com/dafibh/fortuna/fortuna-budget/internal/domain"
	"github.com/rs/zerolog"
)

// RefreshWorker is a background worker that periodically refreshes the Act
// scenarios of every workspace that owns budget scenarios
type RefreshWorker struct {
	refresher *ActualsRefresher
	store     domain.ScenarioReader
	logger    zerolog.Logger
	interval  time.Duration
	stopCh    chan struct{}
	doneCh    chan struct{}
	mu        sync.Mutex
	running   bool
}

// RefreshWorkerConfig holds configuration for the refresh worker
type RefreshWorkerConfig struct {
	Interval time.Duration // How often to refresh all workspaces
}

// DefaultRefreshWorkerConfig returns sensible defaults
func DefaultRefreshWorkerConfig() RefreshWorkerConfig {
	return RefreshWorkerConfig{
		Interval: 6 * time.Hour,
	}
}

// NewRefreshWorker creates a new refresh worker
func NewRefreshWorker(
	refresher *ActualsRefresher,
	store domain.ScenarioReader,
	logger zerolog.Logger,
	config RefreshWorkerConfig,
) *RefreshWorker {
	if config.Interval <= 0 {
		config.Interval = DefaultRefreshWorkerConfig().Interval
	}

	return &RefreshWorker{
		refresher: refresher,
		store:     store,
		logger:    logger.With().Str("component", "refresh_worker").Logger(),
		interval:  config.Interval,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background refresh loop
func (w *RefreshWorker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	w.logger.Info().
		Dur("interval", w.interval).
		Msg("Starting refresh worker")

	go w.run(ctx)
}

// Stop gracefully stops the refresh worker
func (w *RefreshWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	w.logger.Info().Msg("Stopping refresh worker")
	close(w.stopCh)
	<-w.doneCh
	w.logger.Info().Msg("Refresh worker stopped")
}

func (w *RefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	// Run immediately on startup
	w.refreshAllWorkspaces(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.refreshAllWorkspaces(ctx)
		}
	}
}

func (w *RefreshWorker) refreshAllWorkspaces(ctx context.Context) {
	w.logger.Debug().Msg("Starting actuals refresh for all workspaces")
	startTime := time.Now()

	workspaceIDs, err := w.store.ListWorkspaceIDs(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to list workspaces for actuals refresh")
		return
	}

	totalRefreshed := 0
	totalSkipped := 0
	totalErrors := 0

	for _, workspaceID := range workspaceIDs {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Context cancelled, stopping refresh")
			return
		case <-w.stopCh:
			w.logger.Info().Msg("Stop signal received, stopping refresh")
			return
		default:
		}

		result, err := w.refresher.RefreshAll(ctx, workspaceID, domain.SystemActor)
		if err != nil {
			w.logger.Error().
				Err(err).
				Int32("workspace_id", workspaceID).
				Msg("Failed to refresh actuals for workspace")
			totalErrors++
			continue
		}

		totalRefreshed += len(result.Refreshed)
		totalSkipped += len(result.Skipped)
	}

	w.logger.Info().
		Int("workspaces", len(workspaceIDs)).
		Int("total_refreshed", totalRefreshed).
		Int("total_skipped", totalSkipped).
		Int("total_errors", totalErrors).
		Dur("elapsed", time.Since(startTime)).
		Msg("Completed actuals refresh")
}

// SyncWorkspace manually triggers a bulk refresh for one workspace
func (w *RefreshWorker) SyncWorkspace(ctx context.Context, workspaceID int32) (*RefreshResult, error) {
	w.logger.Debug().Int32("workspace_id", workspaceID).Msg("Manual actuals refresh triggered")
	return w.refresher.RefreshAll(ctx, workspaceID, domain.SystemActor)
}

// IsRunning returns whether the worker is currently running
func (w *RefreshWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

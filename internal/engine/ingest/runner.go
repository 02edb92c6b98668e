package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rendis/venuegrid/internal/engine/geo"
	"github.com/rendis/venuegrid/internal/engine/provider"
	"github.com/rendis/venuegrid/internal/engine/storage"
	"github.com/rendis/venuegrid/internal/metrics"
	"github.com/rendis/venuegrid/internal/model"
)

// maxErrorLog caps the per-run error list persisted on the run row.
const maxErrorLog = 100

// ProviderFactory builds the discovery provider for a run config. It runs at
// prepare time, so missing credentials surface as setup errors before the
// run row ever reaches running.
type ProviderFactory func(cfg model.RunConfig) (provider.Provider, error)

// Runner owns the run lifecycle: pending → running → completed|failed, with
// paused settable out-of-band. Tiles are processed strictly sequentially per
// run to respect the provider's rate limit; concurrent runs are independent
// and interact only through the store.
type Runner struct {
	store   *storage.Store
	factory ProviderFactory
	logger  *slog.Logger
}

func NewRunner(store *storage.Store, factory ProviderFactory, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: store, factory: factory, logger: logger}
}

// PreparedRun is a created-but-not-started run: the row exists in pending
// with total_tiles set, and no external call has been made.
type PreparedRun struct {
	ID    int64
	Tiles []model.Tile
	Cfg   model.RunConfig

	prov provider.Provider
}

// Prepare validates the trigger config, resolves the region to a tile grid,
// and creates the pending run row. All failures here are setup errors and
// surface synchronously to the caller.
func (r *Runner) Prepare(ctx context.Context, cfg model.RunConfig) (*PreparedRun, error) {
	prov, err := r.factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("provider setup: %w", err)
	}

	tiles, label, err := geo.GridForRegion(cfg.Region, cfg.StepKm, cfg.RadiusKm)
	if err != nil {
		return nil, fmt.Errorf("resolving region: %w", err)
	}

	cfg.Provider = prov.Name()
	runID, err := r.store.CreateRun(ctx, cfg, label, len(tiles))
	if err != nil {
		return nil, err
	}

	r.logger.Info("run prepared", "run_id", runID, "region", label, "tiles", len(tiles))
	return &PreparedRun{ID: runID, Tiles: tiles, Cfg: cfg, prov: prov}, nil
}

// Launch executes a prepared run on a background goroutine. The caller
// (typically the trigger handler) returns immediately with the run id; the
// run record is the only channel for observing progress and errors.
func (r *Runner) Launch(pr *PreparedRun) {
	go func() {
		if err := r.Execute(context.Background(), pr); err != nil {
			r.logger.Error("run ended with error", "run_id", pr.ID, "err", err)
			r.markFailed(pr.ID)
		}
	}()
}

// markFailed moves a run that died mid-flight to failed. A run stopped by a
// pause keeps its status.
func (r *Runner) markFailed(id int64) {
	ctx := context.Background()
	status, err := r.store.RunStatus(ctx, id)
	if err != nil || status != model.RunRunning {
		return
	}
	if err := r.store.MarkTerminal(ctx, id, model.RunFailed); err != nil {
		r.logger.Error("marking run failed", "run_id", id, "err", err)
	}
}

// Execute runs the tile loop to completion. Per-tile and per-entity errors
// are absorbed into the run's error log; only failing to enter the running
// state is fatal.
func (r *Runner) Execute(ctx context.Context, pr *PreparedRun) error {
	logger := r.logger.With("run_id", pr.ID)

	if err := r.store.MarkRunning(ctx, pr.ID); err != nil {
		return err
	}
	metrics.RunsStarted.Inc()
	logger.Info("run started", "tiles", len(pr.Tiles), "keywords", len(pr.Cfg.Keywords), "enrich", pr.Cfg.Enrich)

	rec := NewReconciler(r.store, pr.prov, pr.Cfg.Enrich, logger)

	var p progress
	for i, tile := range pr.Tiles {
		select {
		case <-ctx.Done():
			// Process termination: the row stays running and an operator
			// decides whether to start a new run.
			return ctx.Err()
		default:
		}

		// Out-of-band pause, checked between tiles only: a tile completes
		// quickly enough that mid-tile checks are not worth the churn.
		status, err := r.store.RunStatus(ctx, pr.ID)
		if err != nil {
			return err
		}
		if status == model.RunPaused {
			logger.Info("run paused, stopping tile loop", "completed_tiles", p.completedTiles)
			return nil
		}

		candidates, err := pr.prov.SearchArea(ctx, tile.Lat, tile.Lng, tile.RadiusM)
		if err != nil {
			// One bad tile never aborts the run: log and move on with the
			// tile counted as processed.
			p.addError(i+1, fmt.Sprintf("search: %v", err))
			logger.Warn("tile search failed", "tile", i+1, "err", err)
		}

		for _, cand := range candidates {
			p.discovered++
			action, uerr := rec.Upsert(ctx, pr.ID, cand)
			switch action {
			case model.ActionInserted:
				p.inserted++
			case model.ActionUpdated:
				p.updated++
			default:
				p.skipped++
			}
			if uerr != nil {
				p.addError(i+1, fmt.Sprintf("upsert %s: %v", cand.ExternalID, uerr))
			}
		}

		p.completedTiles++
		metrics.TilesProcessed.Inc()

		// Durability point: counters survive a crash with at most one
		// tile's work lost.
		if err := r.store.FlushProgress(ctx, pr.ID, p.completedTiles, p.discovered, p.inserted, p.updated, p.skipped, p.errors); err != nil {
			return err
		}
	}

	if err := r.store.MarkTerminal(ctx, pr.ID, model.RunCompleted); err != nil {
		return err
	}
	logger.Info("run completed",
		"tiles", p.completedTiles, "discovered", p.discovered,
		"inserted", p.inserted, "updated", p.updated, "skipped", p.skipped,
		"errors", len(p.errors))
	return nil
}

// progress accumulates a run's monotonically non-decreasing counters between
// flushes.
type progress struct {
	completedTiles int
	discovered     int
	inserted       int
	updated        int
	skipped        int
	errors         []model.RunError
}

func (p *progress) addError(tile int, msg string) {
	if len(p.errors) >= maxErrorLog {
		return
	}
	p.errors = append(p.errors, model.RunError{Tile: tile, Message: msg, At: time.Now().UTC()})
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/venuegrid/internal/model"
)

// CreateRun persists a new run row in the pending state with its tile count
// and full trigger config, and returns the run id.
func (s *Store) CreateRun(ctx context.Context, cfg model.RunConfig, regionLabel string, totalTiles int) (int64, error) {
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return 0, fmt.Errorf("encoding run config: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestion_runs (provider, region_label, status, total_tiles, config)
		VALUES (?,?,?,?,?)`,
		cfg.Provider, regionLabel, model.RunPending, totalTiles, string(cfgJSON))
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}
	return id, nil
}

// MarkRunning transitions a pending run to running and stamps started_at.
func (s *Store) MarkRunning(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_runs SET status = ?, started_at = ?
		WHERE id = ? AND status = ?`,
		model.RunRunning, time.Now().UTC(), id, model.RunPending)
	if err != nil {
		return fmt.Errorf("marking run %d running: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d is not pending", id)
	}
	return nil
}

// MarkTerminal moves a run to completed or failed and stamps completed_at.
func (s *Store) MarkTerminal(ctx context.Context, id int64, status string) error {
	if status != model.RunCompleted && status != model.RunFailed {
		return fmt.Errorf("status %q is not terminal", status)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_runs SET status = ?, completed_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("marking run %d %s: %w", id, status, err)
	}
	return nil
}

// PauseRun sets a pending or running run to paused. The tile loop notices
// between tiles and stops; a paused run is not resumed automatically.
func (s *Store) PauseRun(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE ingestion_runs SET status = ? WHERE id = ? AND status IN (?, ?)`,
		model.RunPaused, id, model.RunPending, model.RunRunning)
	if err != nil {
		return fmt.Errorf("pausing run %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %d is not pausable", id)
	}
	return nil
}

// RunStatus reads just the status column, used by the tile loop's
// between-tile pause check.
func (s *Store) RunStatus(ctx context.Context, id int64) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM ingestion_runs WHERE id = ?`, id).Scan(&status)
	if err != nil {
		return "", fmt.Errorf("reading run %d status: %w", id, err)
	}
	return status, nil
}

// FlushProgress durably writes a run's cumulative counters and bounded error
// log. Called after every tile so a crash loses at most one tile's work.
func (s *Store) FlushProgress(ctx context.Context, id int64, completedTiles, discovered, inserted, updated, skipped int, errs []model.RunError) error {
	if errs == nil {
		errs = []model.RunError{}
	}
	errJSON, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("encoding error log: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE ingestion_runs SET completed_tiles = ?, discovered = ?, inserted = ?,
			updated = ?, skipped = ?, error_log = ?
		WHERE id = ?`,
		completedTiles, discovered, inserted, updated, skipped, string(errJSON), id)
	if err != nil {
		return fmt.Errorf("flushing progress for run %d: %w", id, err)
	}
	return nil
}

// RunByID returns the full run record, or nil when it does not exist.
func (s *Store) RunByID(ctx context.Context, id int64) (*model.Run, error) {
	rows, err := s.db.QueryContext(ctx, runSelect+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying run %d: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	r, err := scanRun(rows)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ListRuns returns runs most-recent-first, bounded by limit.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, runSelect+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

const runSelect = `
	SELECT id, provider, region_label, status, total_tiles, completed_tiles,
	       discovered, inserted, updated, skipped, error_log, config,
	       started_at, completed_at, created_at
	FROM ingestion_runs`

func scanRun(rows *sql.Rows) (*model.Run, error) {
	var r model.Run
	var errLog, cfg string
	var started, completed sql.NullTime
	err := rows.Scan(&r.ID, &r.Provider, &r.RegionLabel, &r.Status, &r.TotalTiles,
		&r.CompletedTiles, &r.Discovered, &r.Inserted, &r.Updated, &r.Skipped,
		&errLog, &cfg, &started, &completed, &r.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if err := json.Unmarshal([]byte(errLog), &r.Errors); err != nil {
		return nil, fmt.Errorf("decoding run %d error log: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(cfg), &r.Config); err != nil {
		return nil, fmt.Errorf("decoding run %d config: %w", r.ID, err)
	}
	if started.Valid {
		r.StartedAt = &started.Time
	}
	if completed.Valid {
		r.CompletedAt = &completed.Time
	}
	return &r, nil
}

// AddAudit appends one run↔venue audit row, exactly one per reconciliation
// outcome. Rows are append-only and never mutated; a venue rediscovered in a
// later tile of the same run gets a second row with its new action.
func (s *Store) AddAudit(ctx context.Context, runID, venueID int64, externalID, action string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO run_venues (run_id, venue_id, external_id, action)
		VALUES (?,?,?,?)`,
		runID, venueID, externalID, action)
	if err != nil {
		return fmt.Errorf("recording audit for run %d venue %d: %w", runID, venueID, err)
	}
	return nil
}

// AuditTrail returns a run's touched venues most-recent-first, joined with
// the venue name and city for display.
func (s *Store) AuditTrail(ctx context.Context, runID int64, limit int) ([]model.RunVenue, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT rv.run_id, rv.venue_id, rv.external_id, rv.action, rv.created_at,
		       COALESCE(v.name, ''), COALESCE(v.city, '')
		FROM run_venues rv
		LEFT JOIN venues v ON v.id = rv.venue_id
		WHERE rv.run_id = ?
		ORDER BY rv.id DESC LIMIT ?`, runID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit trail for run %d: %w", runID, err)
	}
	defer rows.Close()

	var trail []model.RunVenue
	for rows.Next() {
		var rv model.RunVenue
		if err := rows.Scan(&rv.RunID, &rv.VenueID, &rv.ExternalID, &rv.Action, &rv.At, &rv.Name, &rv.City); err != nil {
			return nil, fmt.Errorf("scanning audit row: %w", err)
		}
		trail = append(trail, rv)
	}
	return trail, rows.Err()
}

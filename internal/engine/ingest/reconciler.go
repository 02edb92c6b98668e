package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rendis/venuegrid/internal/engine/provider"
	"github.com/rendis/venuegrid/internal/engine/storage"
	"github.com/rendis/venuegrid/internal/metrics"
	"github.com/rendis/venuegrid/internal/model"
)

// Reconciler decides insert vs update vs skip for each discovered candidate,
// keyed by the provider's external id, and records the run↔venue audit row
// for every outcome.
type Reconciler struct {
	store    *storage.Store
	provider provider.Provider
	enrich   bool
	logger   *slog.Logger
}

func NewReconciler(store *storage.Store, p provider.Provider, enrich bool, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{store: store, provider: p, enrich: enrich, logger: logger}
}

// Upsert reconciles one candidate against the store. The returned action is
// what was audited; the error (if any) accompanies ActionSkipped and is for
// the run's error log — it never aborts the tile.
func (r *Reconciler) Upsert(ctx context.Context, runID int64, cand model.Candidate) (string, error) {
	if cand.ExternalID == "" {
		return model.ActionSkipped, fmt.Errorf("candidate %q has no external id", cand.Name)
	}

	if r.enrich {
		cand = r.enriched(ctx, cand)
	}

	existing, err := r.store.VenueByExternalID(ctx, cand.ExternalID)
	if err != nil {
		return model.ActionSkipped, err
	}

	action := model.ActionInserted
	var venueID int64
	if existing != nil {
		venueID = existing.ID
		action = model.ActionUpdated
		err = r.store.UpdateVenue(ctx, venueID, cand, r.provider.Name())
	} else {
		venueID, err = r.store.InsertVenue(ctx, cand, makeSlug(cand.Name, cand.City), r.provider.Name())
		if errors.Is(err, storage.ErrDuplicateExternalID) {
			// Lost an insert race to a concurrent run: the venue exists
			// now, so fall through to the update path.
			existing, lookupErr := r.store.VenueByExternalID(ctx, cand.ExternalID)
			if lookupErr != nil || existing == nil {
				return model.ActionSkipped, fmt.Errorf("re-lookup after duplicate insert of %q: %w", cand.ExternalID, lookupErr)
			}
			venueID = existing.ID
			action = model.ActionUpdated
			err = r.store.UpdateVenue(ctx, venueID, cand, r.provider.Name())
		}
	}

	if err != nil {
		action = model.ActionSkipped
	}

	metrics.Upserts.WithLabelValues(action).Inc()

	if venueID != 0 {
		if auditErr := r.store.AddAudit(ctx, runID, venueID, cand.ExternalID, action); auditErr != nil {
			r.logger.Error("audit write failed", "run_id", runID, "venue_id", venueID, "err", auditErr)
		}
	}

	return action, err
}

// enriched merges best-effort detail data into the candidate. A nil result
// degrades to the basic candidate unchanged.
func (r *Reconciler) enriched(ctx context.Context, cand model.Candidate) model.Candidate {
	d := r.provider.GetDetails(ctx, cand.ExternalID)
	if d == nil {
		return cand
	}
	if d.Address != "" {
		cand.Address = d.Address
	}
	if d.City != "" {
		cand.City = d.City
	}
	if d.County != "" {
		cand.County = d.County
	}
	if d.Postcode != "" {
		cand.Postcode = d.Postcode
	}
	if d.Phone != "" {
		cand.Phone = d.Phone
	}
	if d.Website != "" {
		cand.Website = d.Website
	}
	if len(d.Hours) > 0 {
		cand.Hours = d.Hours
	}
	return cand
}

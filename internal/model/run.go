package model

import "time"

// Run lifecycle states. Pending runs have not made any external call yet;
// paused is set out-of-band and checked by the tile loop between tiles.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunPaused    = "paused"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Reconciliation outcomes, one audit row recorded per outcome.
const (
	ActionInserted = "inserted"
	ActionUpdated  = "updated"
	ActionSkipped  = "skipped"
)

// RegionDescriptor selects the area a run covers. Exactly one mode applies:
// an explicit bounding box, a named region slug, a named city slug, or a
// point + radius. Resolution to a bounding box is deterministic.
type RegionDescriptor struct {
	MinLat float64 `json:"min_lat,omitempty"`
	MinLng float64 `json:"min_lng,omitempty"`
	MaxLat float64 `json:"max_lat,omitempty"`
	MaxLng float64 `json:"max_lng,omitempty"`

	Region string `json:"region,omitempty"`
	City   string `json:"city,omitempty"`

	Lat      float64 `json:"lat,omitempty"`
	Lng      float64 `json:"lng,omitempty"`
	RadiusKm float64 `json:"radius_km,omitempty"`
}

func (d RegionDescriptor) IsBox() bool {
	return d.MinLat != 0 || d.MinLng != 0 || d.MaxLat != 0 || d.MaxLng != 0
}

func (d RegionDescriptor) IsPointRadius() bool {
	return d.RadiusKm > 0 && (d.Lat != 0 || d.Lng != 0)
}

// RunConfig is the full trigger payload, persisted as JSON on the run row so
// a run can be inspected and re-issued.
type RunConfig struct {
	Provider string           `json:"provider"`
	Region   RegionDescriptor `json:"region"`
	StepKm   float64          `json:"step_km"`
	RadiusKm float64          `json:"radius_km"`
	Keywords []string         `json:"keywords"`
	Enrich   bool             `json:"enrich"`
}

// RunError is one bounded error-log entry on a run.
type RunError struct {
	Tile    int       `json:"tile"` // 1-based tile index, 0 when not tile-scoped
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Run is one execution of the backfill engine over a region. Counters are
// monotonically non-decreasing and flushed after every tile.
type Run struct {
	ID             int64      `json:"id"`
	Provider       string     `json:"provider"`
	RegionLabel    string     `json:"region_label"`
	Status         string     `json:"status"`
	TotalTiles     int        `json:"total_tiles"`
	CompletedTiles int        `json:"completed_tiles"`
	Discovered     int        `json:"discovered_count"`
	Inserted       int        `json:"inserted_count"`
	Updated        int        `json:"updated_count"`
	Skipped        int        `json:"skipped_count"`
	Errors         []RunError `json:"error_log"`
	Config         RunConfig  `json:"config"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// RunVenue is one append-only audit row linking a run to a venue it touched.
type RunVenue struct {
	RunID      int64     `json:"run_id"`
	VenueID    int64     `json:"venue_id"`
	ExternalID string    `json:"external_id"`
	Action     string    `json:"action"`
	Name       string    `json:"name"`
	City       string    `json:"city"`
	At         time.Time `json:"at"`
}

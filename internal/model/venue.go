package model

import "time"

// Tile is a circular search area consumed by the discovery provider.
// Tiles are generated per run and never persisted.
type Tile struct {
	Lat     float64
	Lng     float64
	RadiusM int // search radius in metres
}

// OpeningHours is one open period for a venue. Day follows time.Weekday
// numbering (0 = Sunday).
type OpeningHours struct {
	Day    int    `json:"day"`
	Opens  string `json:"opens"`  // "HHMM"
	Closes string `json:"closes"` // "HHMM"
}

// Candidate is a venue discovered in a provider search, before reconciliation.
// ExternalID is the provider's stable identifier and the sole dedup key.
type Candidate struct {
	ExternalID  string
	Name        string
	Lat         float64
	Lng         float64
	Address     string
	City        string
	County      string
	Postcode    string
	Rating      float64
	RatingCount int
	Categories  []string
	PhotoRefs   []string
	Phone       string
	Website     string
	Hours       []OpeningHours
}

// Details is the partial attribute set returned by the detail enricher.
// Zero-value fields mean the provider did not supply them.
type Details struct {
	Address  string
	City     string
	County   string
	Postcode string
	Phone    string
	Website  string
	Hours    []OpeningHours
}

// Venue status values. The ingestion engine only ever writes active; closed
// and flagged are set by curation.
const (
	VenueActive  = "active"
	VenuePending = "pending"
	VenueClosed  = "closed"
	VenueFlagged = "flagged"
)

// Venue is the persisted entity. ExternalID is empty for manually created
// venues; when present it is unique among venues.
type Venue struct {
	ID           int64     `json:"id"`
	ExternalID   string    `json:"external_id,omitempty"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Address      string    `json:"address"`
	City         string    `json:"city"`
	County       string    `json:"county"`
	Postcode     string    `json:"postcode"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Phone        string    `json:"phone,omitempty"`
	Website      string    `json:"website,omitempty"`
	Category     string    `json:"category"`
	Rating       float64   `json:"rating"`
	RatingCount  int       `json:"rating_count"`
	Status       string    `json:"status"`
	LastSyncedAt time.Time `json:"last_synced_at"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

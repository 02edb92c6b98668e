// Package provider abstracts the external place-search API the backfill
// engine discovers venues through. One implementation (the Places client)
// ships today; the engine only depends on the Provider interface.
package provider

import (
	"context"
	"fmt"

	"github.com/rendis/venuegrid/internal/model"
)

// SearchStatus classifies a provider response. Callers switch on this
// instead of matching provider status strings.
type SearchStatus int

const (
	StatusOK SearchStatus = iota
	StatusEmpty
	StatusRateLimited
	StatusError
)

func (s SearchStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusRateLimited:
		return "rate_limited"
	default:
		return "error"
	}
}

// RateLimitError is returned when the provider keeps rate limiting after the
// backoff retry is exhausted.
type RateLimitError struct {
	Keyword string
	Page    int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on keyword %q page %d after retry", e.Keyword, e.Page)
}

// Provider is the discovery boundary. SearchArea returns the candidates in
// one tile, already merged across keyword variants and deduplicated by
// external id within the call. GetDetails is best-effort enrichment: it
// returns nil on any failure and callers fall back to the basic candidate.
type Provider interface {
	Name() string
	SearchArea(ctx context.Context, lat, lng float64, radiusM int) ([]model.Candidate, error)
	GetDetails(ctx context.Context, externalID string) *model.Details
}

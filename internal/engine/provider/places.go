package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rendis/venuegrid/internal/metrics"
	"github.com/rendis/venuegrid/internal/model"
)

const (
	defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

	// The provider invalidates a page cursor consumed before this delay.
	defaultPageDelay = 2 * time.Second

	// Fixed backoff on a rate-limit response; the page is retried once.
	defaultRateLimitWait = 30 * time.Second

	defaultMaxPages = 3
	defaultTimeout  = 15 * time.Second
)

// PlacesConfig configures the Places client. Zero values take the production
// defaults; tests shrink the delays and point BaseURL at a local server.
type PlacesConfig struct {
	APIKey        string
	BaseURL       string
	Keywords      []string
	MaxPages      int
	PageDelay     time.Duration
	RateLimitWait time.Duration
	Timeout       time.Duration
	Logger        *slog.Logger
}

func (c *PlacesConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.PageDelay <= 0 {
		c.PageDelay = defaultPageDelay
	}
	if c.RateLimitWait <= 0 {
		c.RateLimitWait = defaultRateLimitWait
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// PlacesClient queries a Places-style nearby-search API. One search is
// issued per configured keyword variant; results are merged and deduplicated
// by place id within the call.
type PlacesClient struct {
	cfg  PlacesConfig
	http *http.Client
}

func NewPlacesClient(cfg PlacesConfig) (*PlacesClient, error) {
	cfg.defaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("places: api key is required")
	}
	if len(cfg.Keywords) == 0 {
		return nil, fmt.Errorf("places: at least one keyword variant is required")
	}
	return &PlacesClient{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (c *PlacesClient) Name() string { return "places" }

// SearchArea searches one tile with every keyword variant, following the
// pagination cursor up to MaxPages per keyword.
func (c *PlacesClient) SearchArea(ctx context.Context, lat, lng float64, radiusM int) ([]model.Candidate, error) {
	var out []model.Candidate
	seen := make(map[string]bool)

	for _, kw := range c.cfg.Keywords {
		cands, err := c.searchKeyword(ctx, lat, lng, radiusM, kw)
		if err != nil {
			return nil, err
		}
		for _, cand := range cands {
			if seen[cand.ExternalID] {
				continue
			}
			seen[cand.ExternalID] = true
			out = append(out, cand)
		}
	}

	return out, nil
}

func (c *PlacesClient) searchKeyword(ctx context.Context, lat, lng float64, radiusM int, keyword string) ([]model.Candidate, error) {
	var out []model.Candidate
	pageToken := ""

	for page := 0; page < c.cfg.MaxPages; page++ {
		if pageToken != "" {
			// The cursor token is invalid if consumed too early.
			if err := sleepCtx(ctx, c.cfg.PageDelay); err != nil {
				return out, err
			}
		}

		resp, status, err := c.searchPage(ctx, lat, lng, radiusM, keyword, pageToken)
		if status == StatusRateLimited {
			c.cfg.Logger.Warn("provider rate limited, backing off",
				"keyword", keyword, "page", page, "wait", c.cfg.RateLimitWait)
			if err := sleepCtx(ctx, c.cfg.RateLimitWait); err != nil {
				return out, err
			}
			resp, status, err = c.searchPage(ctx, lat, lng, radiusM, keyword, pageToken)
			if status == StatusRateLimited {
				return out, &RateLimitError{Keyword: keyword, Page: page}
			}
		}
		if err != nil {
			return out, err
		}
		if status == StatusEmpty {
			break
		}

		for _, r := range resp.Results {
			out = append(out, r.candidate())
		}

		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return out, nil
}

// searchPage performs one nearby-search request and classifies the outcome.
func (c *PlacesClient) searchPage(ctx context.Context, lat, lng float64, radiusM int, keyword, pageToken string) (*searchResponse, SearchStatus, error) {
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	if pageToken != "" {
		params.Set("pagetoken", pageToken)
	} else {
		params.Set("location", fmt.Sprintf("%.6f,%.6f", lat, lng))
		params.Set("radius", strconv.Itoa(radiusM))
		params.Set("keyword", keyword)
	}

	body, status, err := c.get(ctx, c.cfg.BaseURL+"/nearbysearch/json?"+params.Encode())
	metrics.ProviderRequests.WithLabelValues(status.String()).Inc()
	if err != nil || status == StatusRateLimited {
		return nil, status, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, StatusError, fmt.Errorf("decoding search response: %w", err)
	}

	switch classifyStatus(resp.Status) {
	case StatusOK:
		return &resp, StatusOK, nil
	case StatusEmpty:
		return &resp, StatusEmpty, nil
	case StatusRateLimited:
		return nil, StatusRateLimited, nil
	default:
		return nil, StatusError, fmt.Errorf("provider status %q: %s", resp.Status, resp.ErrorMessage)
	}
}

// GetDetails fetches extended attributes for one place. Best-effort: any
// failure returns nil and the caller keeps the basic candidate data.
func (c *PlacesClient) GetDetails(ctx context.Context, externalID string) *model.Details {
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("place_id", externalID)
	params.Set("fields", "address_component,formatted_phone_number,website,opening_hours")

	body, status, err := c.get(ctx, c.cfg.BaseURL+"/details/json?"+params.Encode())
	metrics.ProviderRequests.WithLabelValues(status.String()).Inc()
	if err != nil || status != StatusOK {
		c.cfg.Logger.Debug("details fetch failed", "external_id", externalID, "status", status.String(), "err", err)
		return nil
	}

	var resp detailsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}
	if classifyStatus(resp.Status) != StatusOK {
		return nil
	}

	return resp.Result.details()
}

func (c *PlacesClient) get(ctx context.Context, reqURL string) ([]byte, SearchStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, StatusError, fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, StatusError, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, StatusRateLimited, nil
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body)
		return nil, StatusError, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, StatusError, fmt.Errorf("reading body: %w", err)
	}
	return body, StatusOK, nil
}

// classifyStatus maps the provider's body-level status string to the typed
// enum. This is the only place those strings are interpreted.
func classifyStatus(s string) SearchStatus {
	switch s {
	case "OK":
		return StatusOK
	case "ZERO_RESULTS":
		return StatusEmpty
	case "OVER_QUERY_LIMIT", "RESOURCE_EXHAUSTED":
		return StatusRateLimited
	default:
		return StatusError
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/rendis/venuegrid/internal/model"
)

// kmPerDegreeLat is the approximate north-south distance of one degree of
// latitude. Longitude degrees shrink by cos(lat) away from the equator.
const kmPerDegreeLat = 111.0

// Generate creates the search grid covering bound. Latitude is stepped in
// fixed stepKm increments; at each row the longitude step is widened by
// 1/cos(lat) so tiles keep a constant ground distance at high latitudes.
// Every tile carries radiusKm converted to metres.
//
// The output is deterministic for identical inputs, deduplicated, and never
// empty: a degenerate box yields a single tile at its center.
func Generate(bound orb.Bound, stepKm, radiusKm float64) []model.Tile {
	latStep := stepKm / kmPerDegreeLat
	radiusM := int(radiusKm * 1000)

	minLat, maxLat := bound.Min.Lat(), bound.Max.Lat()
	minLng, maxLng := bound.Min.Lon(), bound.Max.Lon()

	var tiles []model.Tile
	seen := make(map[[2]int64]bool)
	add := func(lat, lng float64) {
		key := [2]int64{int64(lat * 1e7), int64(lng * 1e7)}
		if seen[key] {
			return
		}
		seen[key] = true
		tiles = append(tiles, model.Tile{Lat: lat, Lng: lng, RadiusM: radiusM})
	}

	// Rows and columns run until the previous tile's half-step reach passes
	// the box edge, keeping the uncovered margin under step/2 on every side.
	// With step <= radius the worst corner point is within sqrt(2)/2*step of
	// a center, inside the tile circle.
	for lat := minLat + latStep/2; lat-latStep/2 < maxLat; lat += latStep {
		lngStep := latStep / math.Cos(lat*math.Pi/180.0)
		cols := 0
		for lng := minLng + lngStep/2; lng-lngStep/2 < maxLng; lng += lngStep {
			add(lat, lng)
			cols++
		}
		// A zero-width box still needs one tile per row.
		if cols == 0 {
			add(lat, (minLng+maxLng)/2)
		}
	}

	if len(tiles) == 0 {
		add((minLat+maxLat)/2, (minLng+maxLng)/2)
	}

	return tiles
}

// GenerateRadius creates the grid for a point + radius area: a bounding box
// around the center, filtered to tiles within areaRadiusKm of it.
func GenerateRadius(centerLat, centerLng, areaRadiusKm, stepKm, radiusKm float64) []model.Tile {
	latDeg := areaRadiusKm / kmPerDegreeLat
	lngDeg := areaRadiusKm / (kmPerDegreeLat * math.Cos(centerLat*math.Pi/180.0))

	bound := orb.Bound{
		Min: orb.Point{centerLng - lngDeg, centerLat - latDeg},
		Max: orb.Point{centerLng + lngDeg, centerLat + latDeg},
	}

	all := Generate(bound, stepKm, radiusKm)
	center := orb.Point{centerLng, centerLat}

	var tiles []model.Tile
	for _, t := range all {
		if orbgeo.Distance(center, orb.Point{t.Lng, t.Lat}) <= areaRadiusKm*1000 {
			tiles = append(tiles, t)
		}
	}
	if len(tiles) == 0 {
		tiles = append(tiles, model.Tile{Lat: centerLat, Lng: centerLng, RadiusM: int(radiusKm * 1000)})
	}
	return tiles
}

// GridForRegion resolves a region descriptor and generates its tile grid.
// Returns the tiles and a human-readable region label for the run record.
func GridForRegion(desc model.RegionDescriptor, stepKm, radiusKm float64) ([]model.Tile, string, error) {
	if stepKm <= 0 || radiusKm <= 0 {
		return nil, "", fmt.Errorf("step and radius must be positive (step=%.1f radius=%.1f)", stepKm, radiusKm)
	}
	if stepKm > radiusKm {
		return nil, "", fmt.Errorf("step %.1fkm exceeds radius %.1fkm: adjacent tiles would leave coverage gaps", stepKm, radiusKm)
	}

	if desc.IsPointRadius() {
		label := fmt.Sprintf("%.4f,%.4f r=%.1fkm", desc.Lat, desc.Lng, desc.RadiusKm)
		return GenerateRadius(desc.Lat, desc.Lng, desc.RadiusKm, stepKm, radiusKm), label, nil
	}

	bound, label, err := ResolveRegion(desc)
	if err != nil {
		return nil, "", err
	}
	return Generate(bound, stepKm, radiusKm), label, nil
}

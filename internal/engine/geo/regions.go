package geo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/paulmach/orb"

	"github.com/rendis/venuegrid/internal/model"
)

// Fixed bounding boxes for the region and city slugs the directory serves.
// Resolution must be deterministic (the grid for a config is reproducible),
// so these are compiled-in tables rather than a live geocoder.

var regionBounds = map[string]orb.Bound{
	"north-east":    {Min: orb.Point{-2.70, 54.45}, Max: orb.Point{-0.75, 55.82}},
	"north-west":    {Min: orb.Point{-3.65, 52.95}, Max: orb.Point{-2.00, 55.20}},
	"yorkshire":     {Min: orb.Point{-2.60, 53.30}, Max: orb.Point{0.20, 54.60}},
	"east-midlands": {Min: orb.Point{-2.05, 52.35}, Max: orb.Point{0.35, 53.65}},
	"west-midlands": {Min: orb.Point{-3.25, 51.95}, Max: orb.Point{-1.15, 53.25}},
	"east-anglia":   {Min: orb.Point{-0.55, 51.80}, Max: orb.Point{1.80, 53.00}},
	"south-east":    {Min: orb.Point{-1.95, 50.55}, Max: orb.Point{1.45, 52.20}},
	"south-west":    {Min: orb.Point{-6.40, 49.90}, Max: orb.Point{-1.45, 51.95}},
	"london":        {Min: orb.Point{-0.52, 51.28}, Max: orb.Point{0.34, 51.70}},
	"wales":         {Min: orb.Point{-5.35, 51.35}, Max: orb.Point{-2.65, 53.45}},
	"scotland":      {Min: orb.Point{-7.65, 54.60}, Max: orb.Point{-0.70, 58.70}},
}

var cityBounds = map[string]orb.Bound{
	"london":     {Min: orb.Point{-0.52, 51.28}, Max: orb.Point{0.34, 51.70}},
	"manchester": {Min: orb.Point{-2.52, 53.33}, Max: orb.Point{-2.08, 53.59}},
	"birmingham": {Min: orb.Point{-2.10, 52.35}, Max: orb.Point{-1.70, 52.58}},
	"leeds":      {Min: orb.Point{-1.75, 53.70}, Max: orb.Point{-1.35, 53.91}},
	"liverpool":  {Min: orb.Point{-3.10, 53.30}, Max: orb.Point{-2.75, 53.50}},
	"sheffield":  {Min: orb.Point{-1.65, 53.30}, Max: orb.Point{-1.30, 53.46}},
	"bristol":    {Min: orb.Point{-2.75, 51.38}, Max: orb.Point{-2.45, 51.55}},
	"newcastle":  {Min: orb.Point{-1.80, 54.93}, Max: orb.Point{-1.45, 55.08}},
	"nottingham": {Min: orb.Point{-1.30, 52.87}, Max: orb.Point{-1.05, 53.02}},
	"glasgow":    {Min: orb.Point{-4.40, 55.78}, Max: orb.Point{-4.05, 55.93}},
	"edinburgh":  {Min: orb.Point{-3.35, 55.89}, Max: orb.Point{-3.05, 56.00}},
	"cardiff":    {Min: orb.Point{-3.30, 51.43}, Max: orb.Point{-3.05, 51.58}},
}

// ResolveRegion turns a descriptor into a bounding box and a display label.
// Point+radius descriptors are handled by GridForRegion, not here.
func ResolveRegion(desc model.RegionDescriptor) (orb.Bound, string, error) {
	switch {
	case desc.IsBox():
		if desc.MinLat >= desc.MaxLat && desc.MinLat != desc.MaxLat {
			return orb.Bound{}, "", fmt.Errorf("invalid bounding box: min_lat %.4f above max_lat %.4f", desc.MinLat, desc.MaxLat)
		}
		b := orb.Bound{
			Min: orb.Point{desc.MinLng, desc.MinLat},
			Max: orb.Point{desc.MaxLng, desc.MaxLat},
		}
		label := fmt.Sprintf("box %.4f,%.4f %.4f,%.4f", desc.MinLat, desc.MinLng, desc.MaxLat, desc.MaxLng)
		return b, label, nil

	case desc.City != "":
		slug := normalizeSlug(desc.City)
		b, ok := cityBounds[slug]
		if !ok {
			return orb.Bound{}, "", fmt.Errorf("unknown city %q (known: %s)", desc.City, strings.Join(CityNames(), ", "))
		}
		return b, "city:" + slug, nil

	case desc.Region != "":
		slug := normalizeSlug(desc.Region)
		b, ok := regionBounds[slug]
		if !ok {
			return orb.Bound{}, "", fmt.Errorf("unknown region %q (known: %s)", desc.Region, strings.Join(RegionNames(), ", "))
		}
		return b, "region:" + slug, nil
	}

	return orb.Bound{}, "", fmt.Errorf("empty region descriptor: need a bounding box, region, city, or point+radius")
}

// RegionNames returns all known region slugs, sorted.
func RegionNames() []string {
	names := make([]string, 0, len(regionBounds))
	for n := range regionBounds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// CityNames returns all known city slugs, sorted.
func CityNames() []string {
	names := make([]string, 0, len(cityBounds))
	for n := range cityBounds {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func normalizeSlug(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "-"))
}

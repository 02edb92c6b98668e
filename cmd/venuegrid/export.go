package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/venuegrid/internal/engine/storage"
)

func runExport(args []string) error {
	var dbPath, outputPath, format string

	fs := flag.NewFlagSet("export", flag.ExitOnError)
	fs.StringVar(&dbPath, "db", "venuegrid.db", "Path to .db file")
	fs.StringVar(&outputPath, "output", "", "Output file path (default: same dir as db)")
	fs.StringVar(&format, "format", "csv", "Export format: csv")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: venuegrid export [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  venuegrid export -db venuegrid.db -output venues.csv\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if format != "csv" {
		return fmt.Errorf("unsupported format: %s (only csv supported)", format)
	}

	if outputPath == "" {
		dir := filepath.Dir(dbPath)
		base := strings.TrimSuffix(filepath.Base(dbPath), ".db")
		outputPath = filepath.Join(dir, base+".csv")
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	venues, err := store.ListVenues(context.Background())
	if err != nil {
		return fmt.Errorf("loading venues: %w", err)
	}
	if len(venues) == 0 {
		return fmt.Errorf("no venues found in database")
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	w.Write([]string{
		"slug", "name", "address", "city", "county", "postcode",
		"lat", "lng", "phone", "website", "category",
		"rating", "rating_count", "status", "external_id",
	})

	for _, v := range venues {
		w.Write([]string{
			v.Slug,
			v.Name,
			v.Address,
			v.City,
			v.County,
			v.Postcode,
			fmt.Sprintf("%.6f", v.Lat),
			fmt.Sprintf("%.6f", v.Lng),
			v.Phone,
			v.Website,
			v.Category,
			fmt.Sprintf("%.1f", v.Rating),
			fmt.Sprintf("%d", v.RatingCount),
			v.Status,
			v.ExternalID,
		})
	}

	fmt.Fprintf(os.Stderr, "Exported %d venues to %s\n", len(venues), outputPath)
	return nil
}

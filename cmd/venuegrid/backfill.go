package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rendis/venuegrid/internal/config"
	"github.com/rendis/venuegrid/internal/engine/ingest"
	"github.com/rendis/venuegrid/internal/engine/storage"
	"github.com/rendis/venuegrid/internal/model"
)

func runBackfill(args []string) error {
	var (
		configPath  string
		keywordsStr string
		desc        model.RegionDescriptor
		stepKm      float64
		radiusKm    float64
		enrich      bool
	)

	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "venuegrid.yaml", "Path to YAML config")
	fs.StringVar(&desc.Region, "region", "", "Named region slug")
	fs.StringVar(&desc.City, "city", "", "Named city slug")
	fs.Float64Var(&desc.MinLat, "min-lat", 0, "Bounding box min latitude")
	fs.Float64Var(&desc.MinLng, "min-lng", 0, "Bounding box min longitude")
	fs.Float64Var(&desc.MaxLat, "max-lat", 0, "Bounding box max latitude")
	fs.Float64Var(&desc.MaxLng, "max-lng", 0, "Bounding box max longitude")
	fs.Float64Var(&desc.Lat, "lat", 0, "Center latitude (point mode)")
	fs.Float64Var(&desc.Lng, "lng", 0, "Center longitude (point mode)")
	fs.Float64Var(&desc.RadiusKm, "area-radius", 0, "Area radius in km (point mode)")
	fs.Float64Var(&stepKm, "step", 0, "Grid step in km (default from config)")
	fs.Float64Var(&radiusKm, "radius", 0, "Tile search radius in km (default from config)")
	fs.StringVar(&keywordsStr, "keywords", "", "Comma-separated keyword variants (default from config)")
	fs.BoolVar(&enrich, "enrich", false, "Fetch provider details for each candidate")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: venuegrid backfill [flags]\n\nFlags:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  venuegrid backfill -city manchester -keywords \"restaurant,bar\"\n")
		fmt.Fprintf(os.Stderr, "  venuegrid backfill -lat 53.48 -lng -2.24 -area-radius 15 -enrich\n")
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	runCfg := model.RunConfig{
		Region:   desc,
		StepKm:   stepKm,
		RadiusKm: radiusKm,
		Enrich:   enrich,
	}
	if runCfg.StepKm == 0 {
		runCfg.StepKm = cfg.Defaults.StepKm
	}
	if runCfg.RadiusKm == 0 {
		runCfg.RadiusKm = cfg.Defaults.RadiusKm
	}
	if keywordsStr != "" {
		for _, k := range strings.Split(keywordsStr, ",") {
			if k = strings.TrimSpace(k); k != "" {
				runCfg.Keywords = append(runCfg.Keywords, k)
			}
		}
	} else {
		runCfg.Keywords = cfg.Provider.Keywords
	}

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	runner := ingest.NewRunner(store, providerFactory(cfg, logger), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nStopping after current tile...")
		cancel()
	}()

	start := time.Now()
	pr, err := runner.Prepare(ctx, runCfg)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Run #%d: %d tiles, step=%.1fkm radius=%.1fkm keywords=%s\n",
		pr.ID, len(pr.Tiles), runCfg.StepKm, runCfg.RadiusKm, strings.Join(runCfg.Keywords, ","))

	if err := runner.Execute(ctx, pr); err != nil && err != context.Canceled {
		return err
	}

	run, err := store.RunByID(context.Background(), pr.ID)
	if err != nil {
		return err
	}
	total, _ := store.CountVenues(context.Background())

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Backfill %s\n", run.Status)
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Region:     %s\n", run.RegionLabel)
	fmt.Fprintf(os.Stderr, "  Tiles:      %d/%d\n", run.CompletedTiles, run.TotalTiles)
	fmt.Fprintf(os.Stderr, "  Discovered: %d\n", run.Discovered)
	fmt.Fprintf(os.Stderr, "  Inserted:   %d\n", run.Inserted)
	fmt.Fprintf(os.Stderr, "  Updated:    %d\n", run.Updated)
	fmt.Fprintf(os.Stderr, "  Skipped:    %d\n", run.Skipped)
	fmt.Fprintf(os.Stderr, "  Errors:     %d\n", len(run.Errors))
	fmt.Fprintf(os.Stderr, "  Venues:     %d total in store\n", total)
	fmt.Fprintf(os.Stderr, "  Duration:   %s\n", time.Since(start).Truncate(time.Second))
	fmt.Fprintf(os.Stderr, "══════════════════════════════\n")

	return nil
}

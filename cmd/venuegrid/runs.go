package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/rendis/venuegrid/internal/engine/storage"
)

func runRuns(args []string) error {
	var dbPath string
	var runID int64
	var limit int

	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	fs.StringVar(&dbPath, "db", "venuegrid.db", "Path to .db file")
	fs.Int64Var(&runID, "id", 0, "Show one run with its audit trail")
	fs.IntVar(&limit, "limit", 20, "Max runs to list")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: venuegrid runs [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	if runID > 0 {
		return showRun(ctx, store, runID)
	}

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return nil
	}

	fmt.Printf("%-5s %-9s %-30s %-11s %-10s %-24s\n", "ID", "STATUS", "REGION", "TILES", "DISCOVERED", "INS/UPD/SKIP (ERRORS)")
	for _, r := range runs {
		fmt.Printf("%-5d %-9s %-30s %4d/%-6d %-10d %d/%d/%d (%d)\n",
			r.ID, r.Status, r.RegionLabel, r.CompletedTiles, r.TotalTiles,
			r.Discovered, r.Inserted, r.Updated, r.Skipped, len(r.Errors))
	}
	return nil
}

func showRun(ctx context.Context, store *storage.Store, id int64) error {
	run, err := store.RunByID(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %d not found", id)
	}

	fmt.Printf("Run #%d (%s)\n", run.ID, run.Status)
	fmt.Printf("  Provider: %s\n", run.Provider)
	fmt.Printf("  Region:   %s\n", run.RegionLabel)
	fmt.Printf("  Tiles:    %d/%d\n", run.CompletedTiles, run.TotalTiles)
	fmt.Printf("  Counts:   discovered=%d inserted=%d updated=%d skipped=%d\n",
		run.Discovered, run.Inserted, run.Updated, run.Skipped)
	if run.StartedAt != nil {
		fmt.Printf("  Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if run.CompletedAt != nil {
		fmt.Printf("  Finished: %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
	}

	if len(run.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(run.Errors))
		for _, e := range run.Errors {
			fmt.Printf("  tile %d: %s\n", e.Tile, e.Message)
		}
	}

	trail, err := store.AuditTrail(ctx, id, 0)
	if err != nil {
		return err
	}
	if len(trail) > 0 {
		fmt.Printf("\nVenues touched (%d, most recent first):\n", len(trail))
		for _, rv := range trail {
			fmt.Printf("  %-9s %-30s %-16s %s\n", rv.Action, rv.Name, rv.City, rv.ExternalID)
		}
	}
	return nil
}

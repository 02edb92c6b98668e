package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rendis/venuegrid/internal/tui"
)

func runMonitor(args []string) error {
	var dbPath string

	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	fs.StringVar(&dbPath, "db", "venuegrid.db", "Path to .db file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: venuegrid monitor [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	return tui.Run(dbPath)
}

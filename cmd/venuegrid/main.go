package main

import (
	"fmt"
	"os"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[0] != "" {
		switch os.Args[1] {
		case "serve":
			if err := runServe(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "backfill":
			if err := runBackfill(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "runs":
			if err := runRuns(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "export":
			if err := runExport(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "monitor":
			if err := runMonitor(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				os.Exit(1)
			}
			return
		case "version":
			fmt.Println("venuegrid " + version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	printUsage()
	os.Exit(2)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `venuegrid - venue directory backfill engine

Usage:
  venuegrid serve [flags]     Run the HTTP API server
  venuegrid backfill [flags]  Run a headless backfill over a region
  venuegrid runs [flags]      List or inspect backfill runs
  venuegrid export [flags]    Export venues to CSV
  venuegrid monitor [flags]   Live TUI over the runs table
  venuegrid version           Show version

Run 'venuegrid <command> --help' for flags.
`)
}

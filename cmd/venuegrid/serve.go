package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rendis/venuegrid/internal/config"
	"github.com/rendis/venuegrid/internal/engine/ingest"
	"github.com/rendis/venuegrid/internal/engine/provider"
	"github.com/rendis/venuegrid/internal/engine/storage"
	"github.com/rendis/venuegrid/internal/model"
	"github.com/rendis/venuegrid/internal/server"
)

func runServe(args []string) error {
	var configPath string

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	fs.StringVar(&configPath, "config", "venuegrid.yaml", "Path to YAML config")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: venuegrid serve [flags]\n\nFlags:\n")
		fs.PrintDefaults()
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

	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer store.Close()

	runner := ingest.NewRunner(store, providerFactory(cfg, logger), logger)

	srv := server.New(store, runner, server.Options{
		AuthToken:       cfg.AuthToken,
		DefaultStepKm:   cfg.Defaults.StepKm,
		DefaultRadiusKm: cfg.Defaults.RadiusKm,
		DefaultKeywords: cfg.Provider.Keywords,
		Logger:          logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.Listen,
		Handler: srv.Router(),
	}

	// Graceful shutdown on SIGINT/SIGTERM. In-flight runs keep their
	// running status and are restarted as new runs by an operator.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(ctx)
	}()

	logger.Info("listening", "addr", cfg.Listen, "db", cfg.DBPath)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// providerFactory builds the discovery provider for each run from the
// process config plus the run's own keyword variants.
func providerFactory(cfg *config.Config, logger *slog.Logger) ingest.ProviderFactory {
	return func(runCfg model.RunConfig) (provider.Provider, error) {
		if runCfg.Provider != "" && runCfg.Provider != "places" {
			return nil, fmt.Errorf("unknown provider %q", runCfg.Provider)
		}
		keywords := runCfg.Keywords
		if len(keywords) == 0 {
			keywords = cfg.Provider.Keywords
		}
		return provider.NewPlacesClient(provider.PlacesConfig{
			APIKey:   cfg.Provider.APIKey,
			BaseURL:  cfg.Provider.BaseURL,
			Keywords: keywords,
			MaxPages: cfg.Provider.MaxPages,
			Logger:   logger,
		})
	}
}

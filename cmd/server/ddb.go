package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/yegors/ogn-tracker/internal/ogn"
	"github.com/yegors/ogn-tracker/internal/storage/sqlite"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

const ddbTimeout = 2 * time.Minute

func runDDBSync(ctx context.Context, configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := sqlite.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	_, err = syncDDB(ctx, store, cfg.Reference.DDBURL, log)
	return err
}

// syncDDB downloads the device database and replaces the stored copy
func syncDDB(ctx context.Context, store *sqlite.Storage, url string, log *logger.Logger) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, ddbTimeout)
	defer cancel()

	start := time.Now()
	devices, err := ogn.FetchDDB(ctx, &http.Client{Timeout: ddbTimeout}, url)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch device database: %w", err)
	}
	if err := store.ReplaceDevices(ctx, devices); err != nil {
		return 0, fmt.Errorf("failed to store device database: %w", err)
	}

	log.Info("Device database synchronized",
		logger.Int("devices", len(devices)),
		logger.Duration("duration", time.Since(start)))
	return len(devices), nil
}

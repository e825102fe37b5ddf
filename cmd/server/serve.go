package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/yegors/ogn-tracker/internal/adsb"
	"github.com/yegors/ogn-tracker/internal/api"
	"github.com/yegors/ogn-tracker/internal/config"
	"github.com/yegors/ogn-tracker/internal/engine"
	"github.com/yegors/ogn-tracker/internal/events"
	"github.com/yegors/ogn-tracker/internal/ogn"
	"github.com/yegors/ogn-tracker/internal/persistence"
	"github.com/yegors/ogn-tracker/internal/reference"
	"github.com/yegors/ogn-tracker/internal/storage/sqlite"
	"github.com/yegors/ogn-tracker/internal/tracker"
	"github.com/yegors/ogn-tracker/internal/websocket"
	"github.com/yegors/ogn-tracker/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func runServe(ctx context.Context, configPath string) error {
	cfg, log, err := setup(configPath)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting OGN tracker",
		logger.String("version", Version),
		logger.String("config_path", configPath))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(cfg.Storage.SQLitePath, log)
	if err != nil {
		return fmt.Errorf("failed to create SQLite storage: %w", err)
	}
	defer store.Close()

	regions := cfg.SpatialRegions()
	refreshInterval := time.Duration(cfg.Reference.RefreshIntervalMinutes) * time.Minute

	states := tracker.NewStore(tracker.Options{
		HistorySize:          cfg.Tracker.HistorySize,
		InactivityTimeout:    config.Seconds(cfg.Tracker.InactivityTimeoutSecs),
		SignificantDistanceM: cfg.Tracker.SignificantDistanceM,
		SignificantSpeedKmh:  cfg.Tracker.SignificantSpeedKmh,
		SignificantAltitudeM: cfg.Tracker.SignificantAltitudeM,
	}, log)

	hub := websocket.NewServer(states, websocket.Options{
		HeartbeatInterval: config.Seconds(cfg.Hub.HeartbeatSecs),
		WriteTimeout:      config.Seconds(cfg.Hub.WriteTimeoutSecs),
		PongTimeout:       config.Seconds(cfg.Hub.PongTimeoutSecs),
		SendQueueSize:     cfg.Hub.SendQueueSize,
		BroadcastTick:     time.Duration(cfg.Hub.BroadcastTickMs) * time.Millisecond,
	}, log)

	clubPlanes := reference.NewClubPlanes(store, refreshInterval, log)
	airfields := reference.NewAirfields(store, cfg.Reference.AirfieldsPath, cfg.Detection.AirfieldRadiusKm, refreshInterval, log)
	devices := reference.NewDeviceLookup(store, cfg.Reference.DeviceCacheSize, time.Hour, log)

	policy, err := events.NewScopePolicy(cfg.Detection.Scope, cfg.Storage.PositionMinSpeedKmh)
	if err != nil {
		return err
	}

	writer := persistence.NewWriter(store, persistence.Options{
		QueueSize:      cfg.Storage.QueueSize,
		EventQueueSize: cfg.Storage.EventQueueSize,
		BatchSize:      cfg.Storage.BatchSize,
		FlushInterval:  time.Duration(cfg.Storage.FlushIntervalMs) * time.Millisecond,
	}, log)
	defer writer.Close()

	var notifier events.Notifier
	var webhook *events.WebhookNotifier
	if cfg.Webhook.Enabled {
		webhook = events.NewWebhookNotifier(cfg.Webhook.URL, cfg.Webhook.APIKey, cfg.Webhook.Origin,
			config.Seconds(cfg.Webhook.TimeoutSecs), log)
		notifier = webhook
	}

	detector := events.NewDetector(events.Config{
		TakeoffSpeedKmh:  cfg.Detection.TakeoffSpeedKmh,
		TakeoffAltitudeM: cfg.Detection.TakeoffAltitudeM,
		LandingSpeedKmh:  cfg.Detection.LandingSpeedKmh,
		LandingAltitudeM: cfg.Detection.LandingAltitudeM,
		TowWindow:        config.Seconds(cfg.Detection.TowTimeWindowSecs),
		TowDistanceM:     cfg.Detection.TowDistanceM,
		TowGrace:         config.Seconds(cfg.Detection.TowGraceSecs),
		Cooldown:         config.Seconds(cfg.Detection.EventCooldownSecs),
		TakeoffRetention: config.Seconds(cfg.Detection.RecentTakeoffRetainSecs),
		WinchClimbRateMs: cfg.Detection.WinchClimbRateMs,
		WinchTimeout:     config.Seconds(cfg.Detection.WinchTimeoutSecs),
		WinchMinGainM:    cfg.Detection.WinchMinGainM,
	}, states, events.Deps{
		Airfields:  airfields,
		ClubPlanes: clubPlanes,
		Policy:     policy,
		Sink:       writer,
		Publisher:  hub,
		Notifier:   notifier,
	}, log)

	eng, err := engine.New(engine.Deps{
		Store:      states,
		Detector:   detector,
		Hub:        hub,
		Devices:    devices,
		ClubPlanes: clubPlanes,
		Policy:     policy,
		Positions:  writer,
	}, engine.Options{
		SweepInterval:  config.Seconds(cfg.Tracker.SweepIntervalSecs),
		HideUntracked:  cfg.OGN.HideUntrackedDevs,
		TowPlaneModels: cfg.Detection.TowPlaneModels,
	}, log)
	if err != nil {
		return err
	}

	client := ogn.NewClient(ogn.ClientOptions{
		Server:       cfg.OGN.Server,
		User:         cfg.OGN.User,
		Passcode:     cfg.OGN.Passcode,
		AppName:      cfg.OGN.AppName,
		AppVersion:   cfg.OGN.AppVersion,
		Filter:       ogn.BuildFilter(regions, cfg.OGN.ExtraFilter),
		DialTimeout:  config.Seconds(cfg.OGN.DialTimeoutSecs),
		ReadTimeout:  config.Seconds(cfg.OGN.ReadTimeoutSecs),
		Keepalive:    config.Seconds(cfg.OGN.KeepaliveSecs),
		ReconnectMin: config.Seconds(cfg.OGN.ReconnectMinSecs),
		ReconnectMax: config.Seconds(cfg.OGN.ReconnectMaxSecs),
	}, log)
	ingestor := ogn.NewIngestor(client, ogn.NewRegionFilter(regions), eng.HandleBeacon, log)

	handler := api.NewHandler(states, store, api.Refreshers{ClubPlanes: clubPlanes, Airfields: airfields}, Version, log)
	handler.SetTrackLimit(cfg.Storage.TrackLimit)
	handler.AddStats("ingestor", func() any { return ingestor.Stats() })
	handler.AddStats("engine", func() any { return eng.Stats() })
	handler.AddStats("persistence", func() any { return writer.Stats() })
	handler.AddStats("detector", func() any {
		emitted, persisted := detector.Stats()
		return map[string]int64{"emitted": emitted, "persisted": persisted}
	})
	handler.AddStats("hub", func() any {
		dropped, malformed := hub.Stats()
		return map[string]int64{"clients": int64(hub.ClientCount()), "dropped": dropped, "malformed": malformed}
	})

	if cfg.ADSB.Enabled {
		adsbService := adsb.NewService(
			adsb.NewClient(cfg.ADSB.BaseURL, config.Seconds(cfg.ADSB.RequestTimeoutSecs), log),
			hub, hub,
			adsb.Options{
				Regions:       regions,
				FetchInterval: config.Seconds(cfg.ADSB.FetchIntervalSecs),
				MaxAltitudeFt: cfg.ADSB.MaxAltitudeFt,
				IgnoreFlights: cfg.ADSB.IgnoreFlights,
			}, log)
		wsHandler := adsb.NewWebSocketHandler(adsbService, log)
		hub.SetMessageHandler(wsHandler)
		hub.AddSnapshot(wsHandler.SnapshotMessage)
		handler.AddStats("adsb", func() any {
			lastFetch, ok := adsbService.GetStatus()
			return map[string]any{"last_fetch": lastFetch, "ok": ok, "aircraft": len(adsbService.Snapshot())}
		})

		eng.Add("adsb", func(ctx context.Context) error {
			if err := adsbService.Start(ctx); err != nil {
				return fmt.Errorf("failed to start ADS-B service: %w", err)
			}
			<-ctx.Done()
			adsbService.Stop()
			return nil
		})
	}

	var static http.Handler
	if cfg.Server.StaticDir != "" {
		static = api.NewStaticFileHandler(cfg.Server.StaticDir, log)
	}
	router := api.NewRouter(handler, hub.HandleConnection, static, cfg.Server.CORSAllowedOrigins, log)
	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      router.Routes(),
		ReadTimeout:  config.Seconds(cfg.Server.ReadTimeoutSecs),
		WriteTimeout: config.Seconds(cfg.Server.WriteTimeoutSecs),
		IdleTimeout:  config.Seconds(cfg.Server.IdleTimeoutSecs),
	}

	eng.Add("hub", func(ctx context.Context) error {
		hub.Run(ctx)
		return nil
	})
	eng.Add("club-planes", func(ctx context.Context) error {
		clubPlanes.Run(ctx)
		return nil
	})
	eng.Add("airfields", func(ctx context.Context) error {
		airfields.Run(ctx)
		return nil
	})
	if cfg.Reference.DDBRefreshHours > 0 {
		eng.Add("ddb", func(ctx context.Context) error {
			refreshDDB(ctx, store, devices, cfg, log)
			return nil
		})
	}
	eng.Add("ingestor", ingestor.Run)
	eng.Add("http", func(ctx context.Context) error {
		return serveHTTP(ctx, server, log)
	})

	// The writer and the webhook outlive the engine so the detector's
	// shutdown flush is still stored and delivered
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		_ = writer.Run(context.WithoutCancel(ctx))
	}()
	webhookCtx, stopWebhook := context.WithCancel(context.WithoutCancel(ctx))
	webhookDone := make(chan struct{})
	go func() {
		defer close(webhookDone)
		if webhook != nil {
			webhook.Run(webhookCtx)
		}
	}()

	err = eng.Run(ctx)
	_ = writer.Close()
	<-writerDone
	stopWebhook()
	<-webhookDone
	log.Info("Server fully stopped")
	return err
}

// serveHTTP runs server until ctx is done and then shuts it down gracefully
func serveHTTP(ctx context.Context, server *http.Server, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server error on %s: %w", server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.String("addr", server.Addr), logger.Error(err))
		return nil
	}
	log.Info("HTTP server shutdown complete", logger.String("addr", server.Addr))
	return nil
}

// refreshDDB keeps the stored device database current. The cache is purged
// after each sync so enrichment picks up the new rows.
func refreshDDB(ctx context.Context, store *sqlite.Storage, devices *reference.DeviceLookup, cfg *config.Config, log *logger.Logger) {
	interval := time.Duration(cfg.Reference.DDBRefreshHours) * time.Hour
	refresh := func() {
		if _, err := syncDDB(ctx, store, cfg.Reference.DDBURL, log); err != nil {
			log.Warn("Device database refresh failed", logger.Error(err))
			return
		}
		devices.Purge()
	}

	if n, err := store.DeviceCount(ctx); err == nil && n == 0 {
		refresh()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refresh()
		}
	}
}

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/yegors/planetracker/internal/adsb"
	"github.com/yegors/planetracker/internal/api"
	"github.com/yegors/planetracker/internal/config"
	"github.com/yegors/planetracker/internal/feeder"
	"github.com/yegors/planetracker/internal/geo"
	"github.com/yegors/planetracker/internal/location"
	"github.com/yegors/planetracker/internal/notify"
	"github.com/yegors/planetracker/internal/poller"
	"github.com/yegors/planetracker/internal/storage/sqlite"
	"github.com/yegors/planetracker/internal/websocket"
	"github.com/yegors/planetracker/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

// pruneSpec runs observation retention once a day
const pruneSpec = "15 3 * * *"

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	envPath := flag.String("env", ".env", "Path to a .env file with PLANETRACKER_* overrides")
	flag.Parse()

	// A missing .env is normal outside development
	envErr := godotenv.Load(*envPath)

	// Load configuration with fallback logic
	cfg, usedPath, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting planetracker",
		logger.String("version", Version),
		logger.String("config_path", usedPath),
	)
	if envErr != nil {
		log.Debug("No .env file loaded", logger.String("path", *envPath), logger.Error(envErr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create SQLite storage
	if dir := filepath.Dir(cfg.Storage.SQLitePath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Error("Failed to create database directory", logger.Error(err), logger.String("path", dir))
			os.Exit(1)
		}
	}
	store, err := sqlite.NewRecordStore(cfg.Storage.SQLitePath, log)
	if err != nil {
		log.Error("Failed to create SQLite storage", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	// Aircraft metadata for enrichment
	aircraftDB := adsb.NewAircraftDB()
	if cfg.Feeder.AircraftDBPath != "" {
		aircraftDB, err = adsb.LoadAircraftDB(cfg.Feeder.AircraftDBPath)
		if err != nil {
			log.Warn("Failed to load aircraft database, continuing without enrichment",
				logger.String("path", cfg.Feeder.AircraftDBPath),
				logger.Error(err))
			aircraftDB = adsb.NewAircraftDB()
		} else {
			log.Info("Loaded aircraft database", logger.Int("entries", aircraftDB.Len()))
		}
	}

	// User position
	locationProvider := location.NewProvider(location.Options{
		Configured:    geo.Coordinate{Lat: cfg.Location.Latitude, Lon: cfg.Location.Longitude},
		AllowOverride: cfg.Location.AllowOverride,
		MaxAge:        cfg.Location.MaxAge.Duration,
	}, log)

	// Create WebSocket server
	wsServer := websocket.NewServer(log)
	go wsServer.Run(ctx)

	// Notification sinks
	var sinks []notify.Sink
	if cfg.Notify.WebSocket {
		sinks = append(sinks, notify.NewWebSocketSink(wsServer))
	}
	if cfg.Notify.Log {
		sinks = append(sinks, notify.NewLogSink(log))
	}
	if cfg.Notify.NATSURL != "" {
		nc, err := notify.ConnectNATS(notify.NATSOptions{
			URL:            cfg.Notify.NATSURL,
			MaxReconnects:  cfg.Notify.NATSMaxReconnects,
			ReconnectWait:  cfg.Notify.NATSReconnectWait.Duration,
			ConnectTimeout: 5 * time.Second,
		}, log)
		if err != nil {
			// Alerts still reach the other sinks
			log.Error("Failed to connect to NATS, continuing without it", logger.Error(err))
		} else {
			defer nc.Drain()
			sinks = append(sinks, notify.NewNATSSink(nc, cfg.Notify.NATSSubject))
			log.Info("Publishing alerts to NATS",
				logger.String("url", cfg.Notify.NATSURL),
				logger.String("subject", cfg.Notify.NATSSubject))
		}
	}
	notifier := notify.NewNotifier(cfg.Notify.RatePerMinute, log, sinks...)

	// Poll scheduler
	scheduler := poller.New(poller.Options{
		Radius:          cfg.Alerting.RadiusMeters,
		Window:          cfg.Alerting.RecencyWindow(),
		BucketMinutes:   cfg.Alerting.BucketMinutes,
		AlertInterval:   cfg.Alerting.PollInterval.Duration,
		StatsInterval:   cfg.Stats.PollInterval.Duration,
		FlagInterval:    cfg.Flag.SyncInterval.Duration,
		CycleTimeout:    cfg.Alerting.CycleTimeout.Duration,
		ForceOnInvalid:  cfg.Alerting.InvalidLocationForcesAlert,
		TitleFormat:     cfg.Notify.TitleFormat,
		EditSuppression: cfg.Flag.EditSuppression.Duration,
		AckGrace:        cfg.Flag.AckGrace.Duration,
	}, store, locationProvider, notifier, wsServer, log)

	wsServer.SetMessageHandler(api.NewWebSocketHandler(scheduler, log))

	if err := scheduler.Start(ctx); err != nil {
		log.Error("Failed to start poll scheduler", logger.Error(err))
		os.Exit(1)
	}

	// Observation feeder; also serves POST /api/observations when not running
	obsFeeder := feeder.New(feeder.Options{
		SBSAddress:     cfg.Feeder.SBSAddress,
		AircraftJSON:   cfg.Feeder.AircraftJSON,
		JSONInterval:   cfg.Feeder.JSONInterval.Duration,
		ReconnectDelay: cfg.Feeder.ReconnectDelay.Duration,
		BucketMinutes:  cfg.Alerting.BucketMinutes,
	}, store, aircraftDB, log)

	var background sync.WaitGroup
	if cfg.Feeder.Enabled {
		background.Add(1)
		go func() {
			defer background.Done()
			if err := obsFeeder.Run(ctx); err != nil {
				log.Error("Feeder stopped", logger.Error(err))
			}
		}()
	}

	// Observation retention
	var pruner *cron.Cron
	if cfg.Storage.RetentionDays > 0 {
		prune := func() {
			before := time.Now().AddDate(0, 0, -cfg.Storage.RetentionDays)
			if _, err := store.Prune(ctx, before); err != nil {
				log.Warn("Failed to prune observations", logger.Error(err))
			}
		}
		prune()
		pruner = cron.New()
		if _, err := pruner.AddFunc(pruneSpec, prune); err != nil {
			log.Error("Failed to schedule retention", logger.Error(err))
			os.Exit(1)
		}
		pruner.Start()
	}

	// Config hot reload
	watcher := config.NewWatcher(usedPath, cfg, log)
	watcher.OnReload(func(next *config.Config) {
		scheduler.UpdateAlerting(next.Alerting.RadiusMeters, next.Alerting.RecencyWindow())
		notifier.SetRate(next.Notify.RatePerMinute)
	})
	background.Add(1)
	go func() {
		defer background.Done()
		if err := watcher.Watch(ctx); err != nil {
			log.Warn("Config watcher stopped", logger.Error(err))
		}
	}()

	// Create API router
	handler := api.NewHandler(scheduler, locationProvider, obsFeeder, wsServer.ClientCount, log)
	router := api.NewRouter(handler, wsServer.HandleConnection, api.RouterOptions{
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
		StaticFilesDir:     cfg.Server.StaticFilesDir,
	}, log)

	// --- Setup for multiple HTTP servers ---
	var servers []*http.Server
	allPorts := []int{cfg.Server.Port}
	if len(cfg.Server.AdditionalPorts) > 0 {
		allPorts = append(allPorts, cfg.Server.AdditionalPorts...)
	}

	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	routes := router.Routes()
	for _, port := range allPorts {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		server := &http.Server{
			Addr:         addr,
			Handler:      routes, // All servers use the same main router
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", s.Addr), logger.Error(err))
			}
		}(server)
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("Failed to notify systemd", logger.Error(err))
	} else if sent {
		log.Debug("Notified systemd of readiness")
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")
	daemon.SdNotify(false, daemon.SdNotifyStopping)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	log.Info("Stopping poll scheduler...")
	scheduler.Stop(shutdownCtx)
	if pruner != nil {
		<-pruner.Stop().Done()
	}

	// Cancel the main context
	cancel()
	background.Wait()

	// Shutdown all HTTP servers
	log.Info("Shutting down HTTP servers...")
	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error", logger.String("addr", srv.Addr), logger.Error(err))
			} else {
				log.Info("HTTP server shutdown complete", logger.String("addr", srv.Addr))
			}
		}(s)
	}
	wg.Wait()

	log.Info("Server fully stopped")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/skytrail/internal/api"
	"github.com/yegors/skytrail/internal/config"
	"github.com/yegors/skytrail/internal/flights"
	"github.com/yegors/skytrail/internal/opensky"
	"github.com/yegors/skytrail/internal/storage/sqlite"
	"github.com/yegors/skytrail/internal/websocket"
	"github.com/yegors/skytrail/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		CompressLogs: cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting skytrail server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}

	log.Info("Server fully stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	openSkyClient := opensky.NewClient(opensky.Config{
		BaseURL:           cfg.OpenSky.BaseURL,
		TokenURL:          cfg.OpenSky.TokenURL,
		ClientID:          cfg.OpenSky.ClientID,
		ClientSecret:      cfg.OpenSky.ClientSecret,
		Timeout:           time.Duration(cfg.OpenSky.TimeoutSecs) * time.Second,
		RequestsPerMinute: cfg.OpenSky.RequestsPerMinute,
	}, log)

	if cfg.OpenSky.ClientID == "" {
		log.Warn("No OpenSky credentials configured, roster requests will report auth_error")
	}

	// The poll log is optional
	var pollLog flights.PollLog
	if cfg.Storage.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
		store, err := sqlite.NewPollLogStorage(cfg.Storage.SQLitePath, log)
		if err != nil {
			return fmt.Errorf("failed to create SQLite storage: %w", err)
		}
		defer store.Close()
		pollLog = store
		log.Info("Using SQLite poll log", logger.String("path", cfg.Storage.SQLitePath))
	}

	wsServer := websocket.NewServer(originChecker(cfg.Server.CORSAllowedOrigins), log)

	flightsService := flights.NewService(openSkyClient, pollLog, wsServer, flights.Options{
		FetchInterval:  time.Duration(cfg.Flights.FetchIntervalSecs) * time.Second,
		MaxFlights:     cfg.Flights.MaxFlights,
		DetailLookback: time.Duration(cfg.OpenSky.DetailLookbackHrs) * time.Hour,
		StatusHistory:  cfg.Flights.StatusHistory,
	}, log)
	wsServer.SetMessageHandler(flightsService)

	handler := api.NewHandler(flightsService, Version, log)
	router := api.NewRouter(handler, wsServer.HandleConnection, api.RouterConfig{
		AllowedOrigins: cfg.Server.CORSAllowedOrigins,
		StaticDir:      cfg.Server.StaticFilesDir,
	}, log)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsServer.Run()
		return nil
	})

	if err := flightsService.Start(gctx); err != nil {
		wsServer.Stop()
		return fmt.Errorf("failed to start flights service: %w", err)
	}

	g.Go(func() error {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		flightsService.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		wsServer.Stop()
		if err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		log.Info("HTTP server shutdown complete")
		return nil
	})

	return g.Wait()
}

// originChecker accepts websocket upgrades from the configured CORS origins and from
// the server's own origin. Requests without an Origin header are always accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/skytrail/internal/config"
	"github.com/yegors/skytrail/internal/detail"
	"github.com/yegors/skytrail/internal/flightapi"
	"github.com/yegors/skytrail/internal/render"
	"github.com/yegors/skytrail/internal/roster"
	"github.com/yegors/skytrail/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	backendURL := flag.String("backend", "", "Flights backend base URL (overrides tracker.backend_url)")
	rows := flag.Int("rows", 20, "Maximum aircraft rows per frame (0 = all)")
	flag.Parse()

	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	if *backendURL != "" {
		cfg.Tracker.BackendURL = *backendURL
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

	log.Info("Starting skytrail tracker",
		logger.String("version", Version),
		logger.String("backend_url", cfg.Tracker.BackendURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := flightapi.NewClient(cfg.Tracker.BackendURL, time.Duration(cfg.Tracker.TimeoutSecs)*time.Second, log)
	t := newTracker(client, render.NewTerminal(os.Stdout, *rows), log)

	if err := t.run(ctx, os.Stdin); err != nil {
		log.Error("Tracker exited with error", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}
}

// tracker ties the roster poller and the detail controller to a terminal.
// A line on stdin naming an icao24 acts as a click on that aircraft's marker.
type tracker struct {
	roster     *roster.Roster
	poller     *roster.Poller
	controller *detail.Controller
	term       *render.Terminal
	logger     *logger.Logger

	drawMu sync.Mutex
}

func newTracker(client *flightapi.Client, term *render.Terminal, log *logger.Logger) *tracker {
	r := roster.New()
	t := &tracker{
		roster:     r,
		poller:     roster.NewPoller(client, r, log),
		controller: detail.NewController(client, log),
		term:       term,
		logger:     log.Named("tracker"),
	}
	t.poller.SetUpdateHandler(func([]roster.AircraftState) { t.redraw() })
	return t
}

func (t *tracker) run(ctx context.Context, in io.Reader) error {
	handle := t.poller.Start(ctx)
	defer handle.Stop()

	// First frame, shown even when the first poll fails
	t.redraw()

	lines := make(chan string)
	// Reading stdin cannot be interrupted, so this goroutine is left to exit with the process
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case line := <-lines:
				t.handleInput(gctx, g, line)
			}
		}
	})

	return g.Wait()
}

// handleInput selects the named aircraft, or redraws on an empty line
func (t *tracker) handleInput(ctx context.Context, g *errgroup.Group, line string) {
	id := strings.ToLower(strings.TrimSpace(line))
	if id == "" {
		t.redraw()
		return
	}

	a, ok := t.roster.Get(id)
	if !ok || !a.HasPosition() {
		t.logger.Warn("No marker for aircraft", logger.String("icao24", id))
		return
	}

	done := t.controller.Select(ctx, id)
	t.redraw()

	g.Go(func() error {
		select {
		case <-done:
			t.redraw()
		case <-ctx.Done():
		}
		return nil
	})
}

func (t *tracker) redraw() {
	t.drawMu.Lock()
	defer t.drawMu.Unlock()

	lookup := t.controller.State()
	markers := render.Project(t.roster.Snapshot(), lookup, time.Now())
	if err := t.term.Draw(markers, lookup, t.roster.LastSuccess()); err != nil {
		t.logger.Error("Failed to draw frame", logger.Error(err))
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/example/conference-scheduler/internal/application"
	"github.com/example/conference-scheduler/internal/conference"
	"github.com/example/conference-scheduler/internal/config"
	httptransport "github.com/example/conference-scheduler/internal/http"
	"github.com/example/conference-scheduler/internal/logging"
	"github.com/example/conference-scheduler/internal/persistence/sqlite"
)

// keepSnapshots bounds how many snapshots survive a save.
const keepSnapshots = 20

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	if err := a.serve(ctx); err != nil {
		logger.Error("server encountered error", "error", err)
		a.close()
		os.Exit(1)
	}
	a.close()
}

type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *sqlite.Store
	services  services
	handler   http.Handler
	scheduler *cron.Cron
	// ready is set once startup finished; only then does close save.
	ready bool
}

type services struct {
	coordinator *application.ScheduleCoordinator
	rooms       *application.RoomService
	accounts    *application.AccountService
	catalog     *application.EventCatalog
	snapshots   *application.SnapshotService
}

// newApp opens storage, restores the latest snapshot, seeds the venue layout
// and wires the HTTP handlers.
func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := sqlite.Open(ctx, sqlite.DefaultConfig(cfg.SQLiteDSN), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	now := time.Now
	coordinator := application.NewScheduleCoordinatorWithLogger(conference.NewState(), uuid.NewString, now, cfg.Location, logger)
	svc := services{
		coordinator: coordinator,
		rooms:       application.NewRoomServiceWithLogger(coordinator, cfg.MaxRoomCapacity, logger),
		accounts:    application.NewAccountServiceWithLogger(coordinator, application.DefaultPasswordHasher, uuid.NewString, logger),
		catalog:     application.NewEventCatalogWithLogger(coordinator, now, logger),
		snapshots:   application.NewSnapshotServiceWithLogger(coordinator, store, uuid.NewString, now, logger),
	}

	a := &app{cfg: cfg, logger: logger, store: store, services: svc}
	if err := a.restore(ctx); err != nil {
		a.close()
		return nil, err
	}
	if cfg.LayoutFile != "" {
		layout, err := config.LoadLayout(cfg.LayoutFile)
		if err != nil {
			a.close()
			return nil, err
		}
		if err := seedLayout(ctx, layout, svc.rooms, svc.accounts, logger); err != nil {
			a.close()
			return nil, err
		}
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Events:       httptransport.NewEventHandler(coordinator, svc.catalog, logger),
		Rooms:        httptransport.NewRoomHandler(svc.rooms, logger),
		Accounts:     httptransport.NewAccountHandler(svc.accounts, svc.catalog, logger),
		Participants: httptransport.NewParticipantHandler(coordinator, svc.catalog, now, logger),
		Middleware: []func(http.Handler) http.Handler{
			httptransport.Recoverer(logger),
			httptransport.RequestLogger(logger),
		},
	})
	a.handler = router
	a.ready = true
	return a, nil
}

func (a *app) restore(ctx context.Context) error {
	info, report, err := a.services.snapshots.LoadLatest(ctx)
	switch {
	case errors.Is(err, application.ErrNotFound):
		a.logger.InfoContext(ctx, "no snapshot found, starting empty")
		return nil
	case err != nil:
		return fmt.Errorf("restore snapshot: %w", err)
	}
	a.logger.InfoContext(ctx, "snapshot restored",
		"snapshot_id", info.ID,
		"participants", info.ParticipantCount,
		"events", info.EventCount,
		"repairs", len(report.Violations),
	)
	return nil
}

// seedLayout adds the configured features, rooms and accounts. Entries that
// already exist, for instance after a restore, are skipped.
func seedLayout(ctx context.Context, layout config.Layout, rooms *application.RoomService, accounts *application.AccountService, logger *slog.Logger) error {
	skipped := 0
	for _, feature := range layout.Features {
		if err := rooms.AddFeature(ctx, feature); err != nil {
			if errors.Is(err, application.ErrAlreadyExists) {
				skipped++
				continue
			}
			return fmt.Errorf("seed feature %q: %w", feature, err)
		}
	}
	for _, r := range layout.Rooms {
		hours := make([]conference.HourRange, 0, len(r.OpenHours))
		for _, h := range r.OpenHours {
			hours = append(hours, conference.HourRange{From: h.From, To: h.To})
		}
		_, err := rooms.AddRoom(ctx, application.RoomInput{
			ID:        r.ID,
			Name:      r.Name,
			Capacity:  r.Capacity,
			OpenHours: hours,
			Features:  r.Features,
		})
		if err != nil {
			if errors.Is(err, application.ErrAlreadyExists) {
				skipped++
				continue
			}
			return fmt.Errorf("seed room %q: %w", r.Name, err)
		}
	}
	for _, acc := range layout.Accounts {
		_, err := accounts.Register(ctx, application.AccountInput{Kind: acc.Kind, Username: acc.Username, Password: acc.Password})
		if err != nil {
			if errors.Is(err, application.ErrAlreadyExists) {
				skipped++
				continue
			}
			return fmt.Errorf("seed account %q: %w", acc.Username, err)
		}
	}
	logger.InfoContext(ctx, "venue layout applied",
		"features", len(layout.Features),
		"rooms", len(layout.Rooms),
		"accounts", len(layout.Accounts),
		"skipped", skipped,
	)
	return nil
}

// save writes a snapshot when the graph changed and prunes old ones.
func (a *app) save(ctx context.Context) error {
	info, saved, err := a.services.snapshots.SaveIfChanged(ctx)
	if err != nil {
		return err
	}
	if !saved {
		return nil
	}
	removed, err := a.services.snapshots.Prune(ctx, keepSnapshots)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "snapshot saved", "snapshot_id", info.ID, "events", info.EventCount, "pruned", removed)
	return nil
}

// startAutosave schedules save on cfg.AutosaveSpec. An empty spec disables it.
func (a *app) startAutosave(ctx context.Context) error {
	if a.cfg.AutosaveSpec == "" {
		a.logger.InfoContext(ctx, "autosave disabled")
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(a.cfg.AutosaveSpec, func() {
		if err := a.save(ctx); err != nil {
			a.logger.ErrorContext(ctx, "autosave failed", "error", err, "error_kind", application.ErrorKind(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule autosave: %w", err)
	}
	c.Start()
	a.scheduler = c
	a.logger.InfoContext(ctx, "autosave scheduled", "spec", a.cfg.AutosaveSpec)
	return nil
}

func (a *app) serve(ctx context.Context) error {
	if err := a.startAutosave(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              a.cfg.Address(),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("failed to shutdown server", "error", err)
		}
	}()

	a.logger.Info("conference API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// close stops autosave, writes a final snapshot and releases storage.
func (a *app) close() {
	if a == nil {
		return
	}
	if a.scheduler != nil {
		<-a.scheduler.Stop().Done()
		a.scheduler = nil
	}
	if a.store == nil {
		return
	}
	if a.ready {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.save(ctx); err != nil {
			a.logger.Error("final snapshot failed", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close storage", "error", err)
	}
	a.store = nil
}

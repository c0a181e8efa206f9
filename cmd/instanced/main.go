package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/instancer/internal/config"
	"github.com/udisondev/instancer/internal/db"
	"github.com/udisondev/instancer/internal/game/instance"
	"github.com/udisondev/instancer/internal/observability"
	"github.com/udisondev/instancer/internal/region"
	"github.com/udisondev/instancer/internal/scripting"
	"github.com/udisondev/instancer/internal/spawn"
	"github.com/udisondev/instancer/internal/world"
)

// statusInterval is how often the running totals are logged.
const statusInterval = time.Minute

func main() {
	importOnly := flag.Bool("import", false, "import data_dir templates into the database and exit")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, *importOnly); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, importOnly bool) error {
	// Load config FIRST to determine log level
	cfgPath := config.Path()
	cfg, err := config.LoadInstancer(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel, _ := cfg.SlogLevel() // уже проверено в Validate
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("instancer starting",
		"config", cfgPath,
		"log_level", cfg.LogLevel,
		"template_source", cfg.TemplateSource)

	if importOnly {
		return importTemplates(ctx, cfg)
	}

	// Template source
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Entity classes: built-in + scripted
	ids := world.NewIDGenerator()
	factory := spawn.NewFactory(ids)
	if err := spawn.RegisterDefaults(factory); err != nil {
		return fmt.Errorf("registering default classes: %w", err)
	}

	engine, err := scripting.NewEngine(cfg.ScriptsDir)
	if err != nil {
		return fmt.Errorf("loading scripts: %w", err)
	}
	defer engine.Close()

	scripted, err := engine.Register(factory)
	if err != nil {
		return fmt.Errorf("registering scripted classes: %w", err)
	}
	slog.Info("entity classes registered", "total", len(factory.Classes()), "scripted", scripted)

	spawner := spawn.NewManager(factory)
	mgr := instance.NewManager(store, spawner, ids, world.RealScheduler{}, cfg.InstanceConfig())
	defer mgr.Shutdown()

	slog.Info("instance manager ready",
		"empty_delay", cfg.Instances.EmptyDelay,
		"grace_period", cfg.Instances.GracePeriod,
		"track_ownership", cfg.Instances.TrackOwnership)

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		reg := observability.NewRegistry()
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "instancer_entities_live",
			Help: "Number of entities currently spawned across instances",
		}, func() float64 { return float64(spawner.Count()) }))

		srv := observability.NewServer(cfg.MetricsAddr, reg, func() bool {
			return gctx.Err() == nil
		})
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		reportStatus(gctx, mgr, spawner, statusInterval)
		return nil
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// openStore returns the configured template source and its cleanup.
func openStore(ctx context.Context, cfg config.Instancer) (region.Store, func(), error) {
	switch cfg.TemplateSource {
	case config.SourceDatabase:
		database, err := db.New(ctx, cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		slog.Info("database connected")

		if err := db.RunMigrations(ctx, database.Pool()); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("database migrations applied")
		return database.Templates(), database.Close, nil

	default:
		store, err := region.LoadDir(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("loading templates: %w", err)
		}
		slog.Info("templates loaded",
			"dir", cfg.DataDir,
			"templates", len(store.TemplateNames()),
			"regions", len(store.RegionIDs()))
		return store, func() {}, nil
	}
}

// importTemplates copies data_dir into the database.
func importTemplates(ctx context.Context, cfg config.Instancer) error {
	src, err := region.LoadDir(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	database, err := db.New(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	if err := db.RunMigrations(ctx, database.Pool()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	if _, _, err := database.Templates().Import(ctx, src); err != nil {
		return fmt.Errorf("importing templates from %s: %w", cfg.DataDir, err)
	}
	return nil
}

// reportStatus logs instance and entity totals until ctx is done.
func reportStatus(ctx context.Context, mgr *instance.Manager, spawner *spawn.Manager, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Info("instancer status",
				"instances", mgr.InstanceCount(),
				"entities", spawner.Count())
		}
	}
}

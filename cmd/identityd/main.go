package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-identity/httpapi"
	"github.com/goliatone/go-identity/logging"
	"github.com/goliatone/go-identity/migrations"
	"github.com/goliatone/go-identity/notify"
	"github.com/goliatone/go-identity/persistence"
	"github.com/goliatone/go-identity/pipeline"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	dotenv := flag.String("env", ".env", "optional .env file")
	flag.Parse()

	cfg, err := config.Load(*configPath, config.WithDotEnv(*dotenv))
	if err != nil {
		logging.New(os.Stderr, logging.Config{}).Error("load config: %v", err)
		os.Exit(1)
	}

	logger := logging.New(os.Stderr, cfg.Env.Log)

	if err := run(cfg, logger); err != nil {
		logger.Error("identityd: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := persistence.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	results, err := migrations.Up(ctx, db.DB, cfg.Database.MigrationDialect(), cfg.Identity)
	if err != nil {
		return err
	}
	for _, r := range results {
		logger.Info("applied migration %d in %s", r.Source.Version, r.Duration)
	}

	repo, err := identity.NewRepositoryManager(db, cfg.Identity,
		identity.WithIdentitiesLogger(logger.With("component", "store")),
	)
	if err != nil {
		return err
	}
	repo.MustValidate()

	activity, closeActivity := newActivitySink(cfg, repo, logger)
	defer closeActivity()

	lifecycle := identity.NewLifecycle(repo.Identities(), nil,
		identity.WithLifecycleActivitySink(activity),
		identity.WithLifecycleLogger(logger.With("component", "lifecycle")),
	)

	notifier, closeNotifier, err := newNotifier(cfg, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	links := identity.NewLinkBuilder(cfg.HTTP.BaseURL)

	controller := httpapi.NewController(pipeline.Flows{
		Lifecycle:     lifecycle,
		Config:        cfg.Identity,
		Links:         &links,
		Notifier:      notifier,
		Activity:      activity,
		ApprovePath:   cfg.HTTP.ApprovePath,
		ForgottenPath: cfg.HTTP.ForgottenPath,
	},
		httpapi.WithDebug(cfg.Env.Debug),
		httpapi.WithLogger(logger.With("component", "http")),
	)

	app := fiber.New(fiber.Config{
		AppName:               "identityd",
		DisableStartupMessage: true,
		ReadTimeout:           cfg.HTTP.Timeouts.Read,
		WriteTimeout:          cfg.HTTP.Timeouts.Write,
		IdleTimeout:           cfg.HTTP.Timeouts.Idle,
	})

	httpapi.Register(app, controller)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identityd listening on %s", cfg.HTTP.Address)
		errCh <- app.Listen(cfg.HTTP.Address)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("identityd shutting down")
	return app.ShutdownWithTimeout(10 * time.Second)
}

func newNotifier(cfg *config.Config, logger *logging.Logger) (notify.Notifier, func(), error) {
	templates, err := notify.NewTemplates(notify.DefaultTemplates)
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Notify.Driver {
	case "kafka":
		n := notify.NewKafkaNotifier(notify.NewKafkaWriter(cfg.Notify.Brokers, cfg.Notify.Topic), templates)
		return n, func() {
			if err := n.Close(); err != nil {
				logger.Warn("close kafka notifier: %v", err)
			}
		}, nil
	case "none", "":
		return nil, func() {}, nil
	default:
		return notify.NewLogNotifier(logger.With("component", "notify"), templates), func() {}, nil
	}
}

func newActivitySink(cfg *config.Config, repo identity.RepositoryManager, logger *logging.Logger) (identity.ActivitySink, func()) {
	stored := identity.NewBunActivitySink(repo.Activities())
	if cfg.Notify.Driver != "kafka" || cfg.Notify.ActivityTopic == "" {
		return stored, func() {}
	}

	published := activitymap.NewKafkaSink(notify.NewKafkaWriter(cfg.Notify.Brokers, cfg.Notify.ActivityTopic))
	return identity.MultiActivitySink(stored, published), func() {
		if err := published.Close(); err != nil {
			logger.Warn("close activity publisher: %v", err)
		}
	}
}

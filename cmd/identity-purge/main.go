package main

import (
	"context"
	"flag"
	"os"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/config"
	"github.com/goliatone/go-identity/logging"
	"github.com/goliatone/go-identity/persistence"
	"github.com/goliatone/go-identity/pipeline"
	"github.com/uptrace/bun"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML configuration")
	dotenv := flag.String("env", ".env", "optional .env file")
	olderThan := flag.String("older-than", "", "purge threshold, overrides identity.purgeOlderThan")
	flag.Parse()

	cfg, err := config.Load(*configPath, config.WithDotEnv(*dotenv))
	if err != nil {
		logging.New(os.Stderr, logging.Config{}).Error("load config: %v", err)
		os.Exit(1)
	}

	if *olderThan != "" {
		cfg.Identity.PurgeOlderThan = *olderThan
	}

	logger := logging.New(os.Stderr, cfg.Env.Log)

	n, err := purge(cfg, logger)
	if err != nil {
		logger.Error("identity-purge: %v", err)
		os.Exit(1)
	}

	logger.Info("purged %d pending identities older than %q", n, cfg.Identity.PurgeOlderThan)
}

func purge(cfg *config.Config, logger *logging.Logger) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := persistence.Open(cfg.Database)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	repo, err := identity.NewRepositoryManager(db, cfg.Identity,
		identity.WithIdentitiesLogger(logger),
	)
	if err != nil {
		return 0, err
	}
	repo.MustValidate()

	var purged int64
	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pc := pipeline.NewContext(nil)
		cleanup := pipeline.New(pipeline.FlowCleanup, []pipeline.Step{
			pipeline.Cleanup{
				Store:     repo.IdentitiesTx(tx),
				OlderThan: cfg.Identity.PurgeOlderThan,
			},
		}, pipeline.WithLogger(logger))

		err := cleanup.Run(ctx, pc, nil)
		purged, _ = pc.Int64(pipeline.KeyPurged)
		return err
	})
	if err != nil {
		return 0, err
	}

	// recorded after commit, sqlite runs on a single connection
	if purged > 0 {
		sink := identity.NewBunActivitySink(repo.Activities())
		if err := sink.Record(ctx, identity.ActivityEvent{
			EventType: identity.ActivityEventIdentitiesPurged,
			Actor:     identity.SystemActor,
			Metadata:  map[string]any{"count": purged, "older_than": cfg.Identity.PurgeOlderThan},
		}); err != nil {
			logger.Warn("record purge activity: %v", err)
		}
	}

	return purged, nil
}

// Package migrations creates the identity and activity tables. The
// identity table name follows identity.Config so prefixed deployments
// share one schema definition.
package migrations

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goliatone/go-identity"
	"github.com/pressly/goose/v3"
)

// Dialect names accepted by Statements and Up
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "pg"
)

// Statements returns the DDL for the given dialect
func Statements(dialectName string, cfg identity.Config) ([]string, error) {
	table := cfg.Table()
	activity := identity.ActivityTableName

	switch dialectName {
	case DialectSQLite, "sqlite3":
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    login TEXT NOT NULL UNIQUE,
    hash TEXT,
    username TEXT,
    email TEXT,
    role TEXT,
    active BOOLEAN NOT NULL DEFAULT FALSE,
    added TIMESTAMP
);`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (active, added);`, table+"_active_added_idx", table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
    id TEXT NOT NULL PRIMARY KEY,
    event_type TEXT NOT NULL,
    actor_id TEXT,
    actor_type TEXT,
    identity_id INTEGER,
    metadata TEXT NOT NULL DEFAULT '{}',
    occurred_at TIMESTAMP
);`, activity),
		}, nil
	case DialectPostgres, "postgres":
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
    id BIGSERIAL PRIMARY KEY,
    login VARCHAR(255) NOT NULL UNIQUE,
    hash VARCHAR(255),
    username VARCHAR(255),
    email VARCHAR(255),
    role VARCHAR(64),
    active BOOLEAN NOT NULL DEFAULT FALSE,
    added TIMESTAMPTZ
);`, table),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (active, added);`, table+"_active_added_idx", table),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
    id UUID PRIMARY KEY,
    event_type VARCHAR(128) NOT NULL,
    actor_id VARCHAR(255),
    actor_type VARCHAR(64),
    identity_id BIGINT,
    metadata JSONB NOT NULL DEFAULT '{}',
    occurred_at TIMESTAMPTZ
);`, activity),
		}, nil
	}

	return nil, fmt.Errorf("unsupported dialect %q", dialectName)
}

// Up applies pending migrations through a goose provider
func Up(ctx context.Context, db *sql.DB, dialectName string, cfg identity.Config) ([]*goose.MigrationResult, error) {
	statements, err := Statements(dialectName, cfg)
	if err != nil {
		return nil, err
	}

	gooseDialect := goose.DialectSQLite3
	if dialectName == DialectPostgres || dialectName == "postgres" {
		gooseDialect = goose.DialectPostgres
	}

	createTables := goose.NewGoMigration(1, &goose.GoFunc{
		RunTx: func(ctx context.Context, tx *sql.Tx) error {
			for _, stmt := range statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil)

	provider, err := goose.NewProvider(gooseDialect, db, nil,
		goose.WithGoMigrations(createTables),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return nil, err
	}

	return provider.Up(ctx)
}

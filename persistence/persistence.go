// Package persistence opens the bun database used by the identity store.
package persistence

import (
	"database/sql"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

// Supported drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds database connection options
type Config struct {
	Driver       string `json:"driver" yaml:"driver"`
	DSN          string `json:"dsn" yaml:"dsn"`
	Debug        bool   `json:"debug" yaml:"debug"`
	MaxOpenConns int    `json:"max_open_conns" yaml:"maxOpenConns"`
}

// MigrationDialect returns the dialect name understood by the migrations package
func (c Config) MigrationDialect() string {
	if c.driver() == DriverPostgres {
		return "pg"
	}
	return "sqlite"
}

func (c Config) driver() string {
	switch strings.ToLower(c.Driver) {
	case "pg", "pgx", "postgres", "postgresql":
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

// Open connects to the configured database and wraps it with bun
func Open(cfg Config) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch cfg.driver() {
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", cfg.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "db open error")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		sqldb, err = sql.Open(sqliteshim.ShimName, dsn)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "db open error")
		}
		// sqlite serializes writers
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
	}

	if cfg.MaxOpenConns > 0 {
		sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if cfg.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "db ping error")
	}

	return db, nil
}

package identity_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/migrations"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

func newTestDB(t *testing.T, cfg identity.Config) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	_, err = migrations.Up(context.Background(), sqldb, migrations.DialectSQLite, cfg)
	require.NoError(t, err)

	return db
}

type testEnv struct {
	db        *bun.DB
	store     identity.Identities
	lifecycle *identity.Lifecycle
	clock     *fakeClock
	events    []identity.ActivityEvent
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := identity.DefaultConfig()
	env := &testEnv{
		db:    newTestDB(t, cfg),
		clock: &fakeClock{now: time.Now().UTC()},
	}

	hasher := identity.NewBcryptHasher(bcrypt.MinCost)

	store, err := identity.NewIdentitiesRepository(env.db, cfg,
		identity.WithIdentitiesHasher(hasher),
		identity.WithIdentitiesClock(env.clock.Now),
		identity.WithIdentitiesLogger(identity.NopLogger{}),
	)
	require.NoError(t, err)
	env.store = store

	codec := identity.NewHashLinkCodec(hasher, identity.WithHashLinkClock(env.clock.Now))
	env.lifecycle = identity.NewLifecycle(store, codec,
		identity.WithLifecycleClock(env.clock.Now),
		identity.WithLifecycleLogger(identity.NopLogger{}),
		identity.WithLifecycleActivitySink(identity.ActivitySinkFunc(func(_ context.Context, e identity.ActivityEvent) error {
			env.events = append(env.events, e)
			return nil
		})),
	)

	return env
}

func (e *testEnv) insert(t *testing.T, login, email string, active bool) int64 {
	t.Helper()
	id, err := e.store.Insert(context.Background(), identity.Fields{
		identity.FieldLogin:    login,
		identity.FieldEmail:    email,
		identity.FieldPassword: "secret-" + login,
		identity.FieldRole:     identity.RoleMember,
		identity.FieldActive:   active,
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) eventTypes() []identity.ActivityEventType {
	out := make([]identity.ActivityEventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.EventType)
	}
	return out
}

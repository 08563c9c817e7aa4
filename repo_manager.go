package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Identities() Identities
	IdentitiesTx(tx bun.IDB) Identities
	Activities() repository.Repository[*ActivityRecord]
}

type mngr struct {
	db         *bun.DB
	cfg        Config
	opts       []IdentitiesOption
	identities Identities
	activities repository.Repository[*ActivityRecord]
}

// NewRepositoryManager builds the identity and activity repositories
// over db. It fails when cfg is not valid.
func NewRepositoryManager(db *bun.DB, cfg Config, opts ...IdentitiesOption) (RepositoryManager, error) {
	identities, err := NewIdentitiesRepository(db, cfg, opts...)
	if err != nil {
		return nil, err
	}

	return &mngr{
		db:         db,
		cfg:        cfg,
		opts:       opts,
		identities: identities,
		activities: NewActivityRepository(db),
	}, nil
}

func (m mngr) Validate() error {
	if m.identities == nil {
		return errors.New("repository identities should be initialized")
	}

	if m.activities == nil {
		return errors.New("repository activities should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Identities() Identities {
	return m.identities
}

// IdentitiesTx returns an identity store bound to tx
func (m mngr) IdentitiesTx(tx bun.IDB) Identities {
	// cfg was validated by NewRepositoryManager
	store, _ := NewIdentitiesRepository(tx, m.cfg, m.opts...)
	return store
}

func (m mngr) Activities() repository.Repository[*ActivityRecord] {
	return m.activities
}

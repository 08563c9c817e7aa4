package identity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// Identities is the persistence gateway for identity records
type Identities interface {
	Insert(ctx context.Context, fields Fields) (int64, error)
	Update(ctx context.Context, id int64, fields Fields) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)

	FindByID(ctx context.Context, id int64) (*Identity, bool, error)
	FindByEmail(ctx context.Context, email string) (*Identity, bool, error)
	ExistsByLogin(ctx context.Context, login string) (int, error)
	ExistsByEmail(ctx context.Context, email string) (int, error)

	PurgeInactive(ctx context.Context, olderThan string) (int, error)

	Hash(password string) (string, error)
	VerifyHash(password, hash string) bool

	Columns() []string
}

type identities struct {
	db       bun.IDB
	table    string
	standard []string
	extra    []string
	hasher   Hasher
	now      func() time.Time
	logger   Logger
}

var _ Identities = (*identities)(nil)

// identityAlias matches the alias declared on the Identity model
const identityAlias = "i"

// IdentitiesOption customizes the repository
type IdentitiesOption func(*identities)

// WithIdentitiesHasher sets the password hashing collaborator
func WithIdentitiesHasher(h Hasher) IdentitiesOption {
	return func(r *identities) {
		if h != nil {
			r.hasher = h
		}
	}
}

// WithIdentitiesClock injects a custom clock (useful for tests)
func WithIdentitiesClock(clock func() time.Time) IdentitiesOption {
	return func(r *identities) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithIdentitiesLogger overrides the logger
func WithIdentitiesLogger(logger Logger) IdentitiesOption {
	return func(r *identities) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewIdentitiesRepository creates the bun backed store. It fails when
// the configured column set misses a required column.
func NewIdentitiesRepository(db bun.IDB, cfg Config, opts ...IdentitiesOption) (Identities, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	standard, extra := splitColumns(cfg.ColumnSet())

	repo := &identities{
		db:       db,
		table:    cfg.Table(),
		standard: standard,
		extra:    extra,
		hasher:   NewBcryptHasher(cfg.BcryptCost),
		now:      time.Now,
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	return repo, nil
}

func (r *identities) Columns() []string {
	out := append([]string(nil), r.standard...)
	return append(out, r.extra...)
}

func (r *identities) Hash(password string) (string, error) {
	return r.hasher.Hash(password)
}

func (r *identities) VerifyHash(password, hash string) bool {
	return r.hasher.Verify(password, hash)
}

func (r *identities) Insert(ctx context.Context, fields Fields) (int64, error) {
	values, err := r.prepare(fields)
	if err != nil {
		return 0, err
	}

	delete(values, FieldID)
	values[FieldAdded] = r.now().UTC()
	if _, ok := values[FieldActive]; !ok {
		values[FieldActive] = false
	}

	q := r.db.NewInsert().
		Model(&values).
		TableExpr("?", bun.Ident(r.table))

	if r.db.Dialect().Name() == dialect.PG {
		var id int64
		if err := q.Returning("id").Scan(ctx, &id); err != nil {
			return 0, NewStoreError(err, "insert")
		}
		return id, nil
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return 0, NewStoreError(err, "insert")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, NewStoreError(err, "insert")
	}

	return id, nil
}

func (r *identities) Update(ctx context.Context, id int64, fields Fields) (bool, error) {
	values, err := r.prepare(fields)
	if err != nil {
		return false, err
	}

	delete(values, FieldID)
	delete(values, FieldAdded)
	if len(values) == 0 {
		return false, nil
	}

	res, err := r.db.NewUpdate().
		Model(&values).
		TableExpr("?", bun.Ident(r.table)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, NewStoreError(err, "update")
	}

	return affected(res)
}

func (r *identities) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.NewDelete().
		TableExpr("?", bun.Ident(r.table)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, NewStoreError(err, "delete")
	}

	return affected(res)
}

func (r *identities) FindByID(ctx context.Context, id int64) (*Identity, bool, error) {
	return r.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.id = ?", id)
	})
}

// FindByEmail only matches active identities
func (r *identities) FindByEmail(ctx context.Context, email string) (*Identity, bool, error) {
	return r.findOne(ctx, func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.
			Where("?TableAlias.email = ?", email).
			Where("?TableAlias.active = ?", true)
	})
}

func (r *identities) ExistsByLogin(ctx context.Context, login string) (int, error) {
	return r.count(ctx, "login", login)
}

func (r *identities) ExistsByEmail(ctx context.Context, email string) (int, error) {
	return r.count(ctx, "email", email)
}

// PurgeInactive deletes never approved identities added before the
// resolved olderThan expression. The expression must come from trusted
// configuration.
func (r *identities) PurgeInactive(ctx context.Context, olderThan string) (int, error) {
	if olderThan == "" {
		return 0, nil
	}

	cutoff, err := ResolveExpression(r.now(), olderThan)
	if err != nil {
		return 0, err
	}

	ids, err := r.staleIDs(ctx, cutoff.UTC())
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range ids {
		ok, err := r.Delete(ctx, id)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
		}
	}

	r.logger.Debug("purged %d inactive identities added before %s", removed, cutoff.Format(time.RFC3339))

	return removed, nil
}

func (r *identities) staleIDs(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := r.db.NewSelect().
		TableExpr("?", bun.Ident(r.table)).
		Column("id").
		Where("active = ?", false).
		Where("added IS NOT NULL").
		Where("added <= ?", cutoff).
		Order("id ASC").
		Rows(ctx)
	if err != nil {
		return nil, NewStoreError(err, "purge")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, NewStoreError(err, "purge")
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, NewStoreError(err, "purge")
	}

	return ids, nil
}

func (r *identities) findOne(ctx context.Context, where func(*bun.SelectQuery) *bun.SelectQuery) (*Identity, bool, error) {
	record := &Identity{}

	q := r.db.NewSelect().
		Model(record).
		ModelTableExpr("? AS ?", bun.Ident(r.table), bun.Ident(identityAlias)).
		Column(r.standard...)

	err := where(q).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, NewStoreError(err, "select")
	}

	if len(r.extra) > 0 {
		extra := map[string]interface{}{}
		err := r.db.NewSelect().
			TableExpr("?", bun.Ident(r.table)).
			Column(r.extra...).
			Where("id = ?", record.ID).
			Limit(1).
			Scan(ctx, &extra)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, false, nil
			}
			return nil, false, NewStoreError(err, "select")
		}
		record.Extra = extra
	}

	return record, true, nil
}

func (r *identities) count(ctx context.Context, column, value string) (int, error) {
	n, err := r.db.NewSelect().
		TableExpr("?", bun.Ident(r.table)).
		Where("? = ?", bun.Ident(column), value).
		Count(ctx)
	if err != nil {
		return 0, NewStoreError(err, "count")
	}
	return n, nil
}

// prepare copies fields and swaps a raw password for its hash
func (r *identities) prepare(fields Fields) (map[string]interface{}, error) {
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	raw, ok := values[FieldPassword]
	if !ok {
		return values, nil
	}
	delete(values, FieldPassword)

	if password, _ := raw.(string); password != "" {
		hash, err := r.Hash(password)
		if err != nil {
			return nil, err
		}
		values[FieldHash] = hash
	}

	return values, nil
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, NewStoreError(err, "rows affected")
	}
	return n > 0, nil
}

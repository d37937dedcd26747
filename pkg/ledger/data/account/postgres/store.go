package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/code-custody/pkg/database/query"
	"github.com/code-payments/code-custody/pkg/ledger/data/account"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres account.Store
func New(db *sql.DB) account.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Get implements account.Store.Get
func (s *store) Get(ctx context.Context, address string) (*account.Record, error) {
	model, err := dbGet(ctx, s.db, address)
	if err != nil {
		return nil, err
	}
	return fromModel(model), nil
}

// GetAll implements account.Store.GetAll
func (s *store) GetAll(ctx context.Context, addresses ...string) ([]*account.Record, error) {
	models, err := dbGetAll(ctx, s.db, addresses)
	if err != nil {
		return nil, err
	}

	res := make([]*account.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res, nil
}

// GetByOwner implements account.Store.GetByOwner
func (s *store) GetByOwner(ctx context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*account.Record, error) {
	models, err := dbGetByOwner(ctx, s.db, owner, cursor, limit, direction)
	if err != nil {
		return nil, err
	}

	res := make([]*account.Record, len(models))
	for i, model := range models {
		res[i] = fromModel(model)
	}
	return res, nil
}

// Count implements account.Store.Count
func (s *store) Count(ctx context.Context) (uint64, error) {
	return dbCount(ctx, s.db)
}

// Commit implements account.Store.Commit
func (s *store) Commit(ctx context.Context, updates []*account.Record, deletes []string) error {
	models := make([]*model, len(updates))
	for i, update := range updates {
		model, err := toModel(update)
		if err != nil {
			return err
		}
		models[i] = model
	}

	if err := dbCommit(ctx, s.db, models, deletes); err != nil {
		return err
	}

	for i, model := range models {
		fromModel(model).CopyTo(updates[i])
	}
	return nil
}

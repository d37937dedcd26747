package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/code-payments/code-custody/pkg/ledger/data/signature"
)

type store struct {
	db *sqlx.DB
}

// New returns a new postgres signature.Store
func New(db *sql.DB) signature.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Save implements signature.Store.Save
func (s *store) Save(ctx context.Context, record *signature.Record) error {
	model, err := toModel(record)
	if err != nil {
		return err
	}

	if err := model.dbSave(ctx, s.db); err != nil {
		return err
	}

	fromModel(model).CopyTo(record)
	return nil
}

// Get implements signature.Store.Get
func (s *store) Get(ctx context.Context, sig string) (*signature.Record, error) {
	model, err := dbGet(ctx, s.db, sig)
	if err != nil {
		return nil, err
	}
	return fromModel(model), nil
}

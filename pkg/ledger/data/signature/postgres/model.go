package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/code-payments/code-custody/pkg/database/postgres"
	"github.com/code-payments/code-custody/pkg/ledger/data/signature"
)

const (
	tableName = "ledger__core_signature"
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Signature string `db:"signature"`
	Slot      uint64 `db:"slot"`
	Err       string `db:"err"`

	CreatedAt time.Time `db:"created_at"`
}

func toModel(obj *signature.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	return &model{
		Signature: obj.Signature,
		Slot:      obj.Slot,
		Err:       obj.Err,
	}, nil
}

func fromModel(obj *model) *signature.Record {
	return &signature.Record{
		Id:        uint64(obj.Id.Int64),
		Signature: obj.Signature,
		Slot:      obj.Slot,
		Err:       obj.Err,
		CreatedAt: obj.CreatedAt.UTC(),
	}
}

func (m *model) dbSave(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		query := `INSERT INTO ` + tableName + `
			(signature, slot, err, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING id, signature, slot, err, created_at`

		m.CreatedAt = time.Now()

		err := tx.QueryRowxContext(
			ctx,
			query,
			m.Signature,
			m.Slot,
			m.Err,
			m.CreatedAt.UTC(),
		).StructScan(m)

		return pgutil.CheckUniqueViolation(err, signature.ErrAlreadyExists)
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, sig string) (*model, error) {
	res := &model{}

	query := `SELECT id, signature, slot, err, created_at FROM ` + tableName + `
		WHERE signature = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, sig)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, signature.ErrNotFound)
	}
	return res, nil
}

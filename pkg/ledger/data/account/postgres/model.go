package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	pgutil "github.com/code-payments/code-custody/pkg/database/postgres"
	q "github.com/code-payments/code-custody/pkg/database/query"
	"github.com/code-payments/code-custody/pkg/ledger/data/account"
)

const (
	tableName = "ledger__core_account"

	allColumns = `id, address, owner, lamports, data, executable, slot, last_updated_at`
)

type model struct {
	Id sql.NullInt64 `db:"id"`

	Address    string `db:"address"`
	Owner      string `db:"owner"`
	Lamports   uint64 `db:"lamports"`
	Data       []byte `db:"data"`
	Executable bool   `db:"executable"`

	Slot uint64 `db:"slot"`

	LastUpdatedAt time.Time `db:"last_updated_at"`
}

func toModel(obj *account.Record) (*model, error) {
	if err := obj.Validate(); err != nil {
		return nil, err
	}

	data := obj.Data
	if data == nil {
		data = []byte{}
	}

	return &model{
		Address:    obj.Address,
		Owner:      obj.Owner,
		Lamports:   obj.Lamports,
		Data:       data,
		Executable: obj.Executable,
		Slot:       obj.Slot,
	}, nil
}

func fromModel(obj *model) *account.Record {
	var data []byte
	if len(obj.Data) > 0 {
		data = obj.Data
	}

	return &account.Record{
		Id:            uint64(obj.Id.Int64),
		Address:       obj.Address,
		Owner:         obj.Owner,
		Lamports:      obj.Lamports,
		Data:          data,
		Executable:    obj.Executable,
		Slot:          obj.Slot,
		LastUpdatedAt: obj.LastUpdatedAt.UTC(),
	}
}

func (m *model) dbUpsert(ctx context.Context, tx *sqlx.Tx) error {
	query := `INSERT INTO ` + tableName + `
		(address, owner, lamports, data, executable, slot, last_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)

		ON CONFLICT (address)
		DO UPDATE
			SET owner = $2, lamports = $3, data = $4, executable = $5, slot = $6, last_updated_at = $7
			WHERE ` + tableName + `.address = $1

		RETURNING ` + allColumns

	m.LastUpdatedAt = time.Now()

	return tx.QueryRowxContext(
		ctx,
		query,
		m.Address,
		m.Owner,
		m.Lamports,
		m.Data,
		m.Executable,
		m.Slot,
		m.LastUpdatedAt.UTC(),
	).StructScan(m)
}

func dbCommit(ctx context.Context, db *sqlx.DB, updates []*model, deletes []string) error {
	return pgutil.ExecuteInTx(ctx, db, sql.LevelDefault, func(tx *sqlx.Tx) error {
		for _, update := range updates {
			if err := update.dbUpsert(ctx, tx); err != nil {
				return err
			}
		}

		if len(deletes) == 0 {
			return nil
		}

		query := fmt.Sprintf(
			`DELETE FROM `+tableName+` WHERE address IN (%s)`,
			placeholders(1, len(deletes)),
		)
		_, err := tx.ExecContext(ctx, query, toArgs(deletes)...)
		return err
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT ` + allColumns + ` FROM ` + tableName + `
		WHERE address = $1
		LIMIT 1`

	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrAccountNotFound)
	}
	return res, nil
}

func dbGetAll(ctx context.Context, db *sqlx.DB, addresses []string) ([]*model, error) {
	res := []*model{}

	if len(addresses) == 0 {
		return res, nil
	}

	query := fmt.Sprintf(
		`SELECT `+allColumns+` FROM `+tableName+`
		WHERE address IN (%s)`,
		placeholders(1, len(addresses)),
	)

	err := db.SelectContext(ctx, &res, query, toArgs(addresses)...)
	if err != nil && !pgutil.IsNoRows(err) {
		return nil, err
	}
	return res, nil
}

func dbGetByOwner(ctx context.Context, db *sqlx.DB, owner string, cursor q.Cursor, limit uint64, direction q.Ordering) ([]*model, error) {
	res := []*model{}

	query := `SELECT ` + allColumns + ` FROM ` + tableName + `
		WHERE (owner = $1)
	`

	opts := []interface{}{owner}
	query, opts = q.PaginateQuery(query, opts, cursor, limit, direction)

	err := db.SelectContext(ctx, &res, query, opts...)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, account.ErrAccountNotFound)
	}
	if len(res) == 0 {
		return nil, account.ErrAccountNotFound
	}
	return res, nil
}

func dbCount(ctx context.Context, db *sqlx.DB) (uint64, error) {
	var res uint64

	query := `SELECT COUNT(*) FROM ` + tableName
	err := db.GetContext(ctx, &res, query)
	if err != nil {
		return 0, err
	}
	return res, nil
}

func placeholders(start, n int) string {
	values := make([]string, n)
	for i := range values {
		values[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(values, ", ")
}

func toArgs(values []string) []interface{} {
	args := make([]interface{}, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

package data

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	pg "github.com/code-payments/code-custody/pkg/database/postgres"
	"github.com/code-payments/code-custody/pkg/database/query"
	"github.com/code-payments/code-custody/pkg/ledger/data/account"
	"github.com/code-payments/code-custody/pkg/ledger/data/signature"
	"github.com/code-payments/code-custody/pkg/metrics"

	account_memory_client "github.com/code-payments/code-custody/pkg/ledger/data/account/memory"
	account_postgres_client "github.com/code-payments/code-custody/pkg/ledger/data/account/postgres"
	signature_memory_client "github.com/code-payments/code-custody/pkg/ledger/data/signature/memory"
	signature_postgres_client "github.com/code-payments/code-custody/pkg/ledger/data/signature/postgres"
)

const (
	databaseProviderMetricsName = "data.database_provider"
)

// Provider is the ledger's persistence layer.
type Provider interface {
	// Accounts
	// --------------------------------------------------------------------------------
	GetAccount(ctx context.Context, address string) (*account.Record, error)
	GetAccounts(ctx context.Context, addresses ...string) ([]*account.Record, error)
	GetAccountsByOwner(ctx context.Context, owner string, opts ...query.Option) ([]*account.Record, error)
	GetAccountCount(ctx context.Context) (uint64, error)
	CommitAccounts(ctx context.Context, updates []*account.Record, deletes []string) error

	// Signatures
	// --------------------------------------------------------------------------------
	SaveSignature(ctx context.Context, record *signature.Record) error
	GetSignature(ctx context.Context, sig string) (*signature.Record, error)

	// ExecuteInTx executes fn with a single DB transaction that is scoped to the call,
	// so account and signature writes made inside fn commit together.
	//
	// The in memory provider has no transactions and simply calls fn.
	ExecuteInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type provider struct {
	accounts   account.Store
	signatures signature.Store

	db *sqlx.DB
}

// NewDataProvider returns a postgres backed Provider.
func NewDataProvider(db *sql.DB) Provider {
	return &provider{
		accounts:   account_postgres_client.New(db),
		signatures: signature_postgres_client.New(db),

		db: sqlx.NewDb(db, "pgx"),
	}
}

// NewTestDataProvider returns an in memory Provider.
func NewTestDataProvider() Provider {
	return &provider{
		accounts:   account_memory_client.New(),
		signatures: signature_memory_client.New(),
	}
}

func (p *provider) ExecuteInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.db == nil {
		return fn(ctx)
	}

	return pg.ExecuteTxWithinCtx(ctx, p.db, sql.LevelDefault, fn)
}

// Accounts
// --------------------------------------------------------------------------------

func (p *provider) GetAccount(ctx context.Context, address string) (*account.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, databaseProviderMetricsName, "GetAccount")
	defer tracer.End()

	record, err := p.accounts.Get(ctx, address)
	if err != account.ErrAccountNotFound {
		tracer.OnError(err)
	}
	return record, err
}

func (p *provider) GetAccounts(ctx context.Context, addresses ...string) ([]*account.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, databaseProviderMetricsName, "GetAccounts")
	defer tracer.End()

	records, err := p.accounts.GetAll(ctx, addresses...)
	tracer.OnError(err)
	return records, err
}

func (p *provider) GetAccountsByOwner(ctx context.Context, owner string, opts ...query.Option) ([]*account.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, databaseProviderMetricsName, "GetAccountsByOwner")
	defer tracer.End()

	req, err := query.DefaultPaginationHandler(opts...)
	if err != nil {
		return nil, err
	}

	records, err := p.accounts.GetByOwner(ctx, owner, req.Cursor, req.Limit, req.SortBy)
	if err != account.ErrAccountNotFound {
		tracer.OnError(err)
	}
	return records, err
}

func (p *provider) GetAccountCount(ctx context.Context) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, databaseProviderMetricsName, "GetAccountCount")
	defer tracer.End()

	count, err := p.accounts.Count(ctx)
	tracer.OnError(err)
	return count, err
}

func (p *provider) CommitAccounts(ctx context.Context, updates []*account.Record, deletes []string) error {
	tracer := metrics.TraceMethodCall(ctx, databaseProviderMetricsName, "CommitAccounts")
	defer tracer.End()

	tracer.AddAttributes(map[string]interface{}{
		"updates": len(updates),
		"deletes": len(deletes),
	})

	err := p.accounts.Commit(ctx, updates, deletes)
	tracer.OnError(err)
	return err
}

// Signatures
// --------------------------------------------------------------------------------

func (p *provider) SaveSignature(ctx context.Context, record *signature.Record) error {
	tracer := metrics.TraceMethodCall(ctx, databaseProviderMetricsName, "SaveSignature")
	defer tracer.End()

	err := p.signatures.Save(ctx, record)
	if err != signature.ErrAlreadyExists {
		tracer.OnError(err)
	}
	return err
}

func (p *provider) GetSignature(ctx context.Context, sig string) (*signature.Record, error) {
	tracer := metrics.TraceMethodCall(ctx, databaseProviderMetricsName, "GetSignature")
	defer tracer.End()

	record, err := p.signatures.Get(ctx, sig)
	if err != signature.ErrNotFound {
		tracer.OnError(err)
	}
	return record, err
}

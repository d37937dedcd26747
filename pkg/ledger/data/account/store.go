package account

import (
	"context"
	"errors"

	"github.com/code-payments/code-custody/pkg/database/query"
)

var (
	ErrAccountNotFound = errors.New("account not found")
)

type Store interface {
	// Get returns the record for an address.
	//
	// ErrAccountNotFound is returned if the address holds no account.
	Get(ctx context.Context, address string) (*Record, error)

	// GetAll returns the records for the provided addresses. Addresses holding
	// no account are omitted from the result.
	GetAll(ctx context.Context, addresses ...string) ([]*Record, error)

	// GetByOwner returns a page of accounts owned by a program.
	//
	// ErrAccountNotFound is returned if the page is empty.
	GetByOwner(ctx context.Context, owner string, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*Record, error)

	// Count returns the number of accounts on the ledger.
	Count(ctx context.Context) (uint64, error)

	// Commit atomically upserts updates and removes deletes. Deleting an
	// address that holds no account is not an error.
	Commit(ctx context.Context, updates []*Record, deletes []string) error
}

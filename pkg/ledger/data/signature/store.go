package signature

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("signature not found")
	ErrAlreadyExists = errors.New("signature already exists")
)

type Store interface {
	// Save records the outcome of a processed transaction.
	//
	// ErrAlreadyExists is returned if the signature was already recorded.
	Save(ctx context.Context, record *Record) error

	// Get returns the record for a signature.
	//
	// ErrNotFound is returned if the signature was never recorded.
	Get(ctx context.Context, signature string) (*Record, error)
}

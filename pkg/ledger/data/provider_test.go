package data

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/database/query"
	"github.com/code-payments/code-custody/pkg/ledger/data/account"
	"github.com/code-payments/code-custody/pkg/ledger/data/signature"
)

func TestProvider_InMemory(t *testing.T) {
	ctx := context.Background()
	p := NewTestDataProvider()

	for i := 0; i < 3; i++ {
		record := &account.Record{
			Address:  fmt.Sprintf("address%d", i),
			Owner:    "program",
			Lamports: 1,
		}
		require.NoError(t, p.CommitAccounts(ctx, []*account.Record{record}, nil))
	}

	records, err := p.GetAccountsByOwner(ctx, "program", query.WithLimit(2), query.WithDirection(query.Descending))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "address2", records[0].Address)

	_, err = p.GetAccountsByOwner(ctx, "program", query.WithLimit(100000))
	assert.Equal(t, query.ErrQueryNotSupported, err)

	count, err := p.GetAccountCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	expectedErr := errors.New("failure")
	err = p.ExecuteInTx(ctx, func(ctx context.Context) error {
		require.NoError(t, p.SaveSignature(ctx, &signature.Record{Signature: "sig"}))
		return expectedErr
	})
	assert.Equal(t, expectedErr, err)

	record, err := p.GetSignature(ctx, "sig")
	require.NoError(t, err)
	assert.Equal(t, "sig", record.Signature)

	assert.Equal(t, signature.ErrAlreadyExists, p.SaveSignature(ctx, &signature.Record{Signature: "sig"}))

	_, err = p.GetAccount(ctx, "missing")
	assert.Equal(t, account.ErrAccountNotFound, err)
}

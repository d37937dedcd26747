package testutil

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/solana"
)

// AssertInstructionError verifies that err is a transaction error raised by
// the instruction at index, and that it matches target.
func AssertInstructionError(t *testing.T, err error, index int, target error) {
	require.Error(t, err)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr), "expected transaction error, got: %v", err)

	ixErr := txErr.InstructionError()
	require.NotNil(t, ixErr, "expected instruction error, got: %v", err)
	assert.Equal(t, index, ixErr.Index)
	assert.True(t, errors.Is(err, target), "expected %v, got: %v", target, err)
}

// AssertTransactionError verifies that err is a transaction level error with
// the provided key.
func AssertTransactionError(t *testing.T, err error, key solana.TransactionErrorKey) {
	require.Error(t, err)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr), "expected transaction error, got: %v", err)
	assert.Equal(t, key, txErr.ErrorKey())
}

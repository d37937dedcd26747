package program

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/solana"
)

func TestErrorCodes(t *testing.T) {
	seen := make(map[solana.CustomError]struct{})
	for i, err := range Errors() {
		code := err.CustomErrorCode()
		assert.EqualValues(t, ErrorCodeOffset+i, code)

		_, duplicate := seen[code]
		assert.False(t, duplicate, err.Error())
		seen[code] = struct{}{}

		found, ok := FromCustomError(code)
		require.True(t, ok)
		assert.Equal(t, err, found)
	}

	_, ok := FromCustomError(solana.CustomError(ErrorCodeOffset - 1))
	assert.False(t, ok)
}

func TestErrorMatchesBareCode(t *testing.T) {
	// Errors decoded from an RPC response carry only the code.
	remote := solana.CustomError(ErrRecordNotFound.CustomErrorCode())

	assert.True(t, errors.Is(ErrRecordNotFound, remote))
	assert.False(t, errors.Is(ErrRecordAlreadyExists, remote))

	wrapped := solana.InstructionError{Index: 2, Err: remote}
	assert.True(t, errors.Is(wrapped, ErrRecordNotFound))
	assert.False(t, errors.Is(wrapped, ErrUnauthorizedCaller))
}

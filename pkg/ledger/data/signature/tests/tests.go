package tests

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/ledger/data/signature"
)

func RunTests(t *testing.T, s signature.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s signature.Store){
		testHappyPath,
		testFailedTransaction,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s signature.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.Get(ctx, "sig")
		assert.Equal(t, signature.ErrNotFound, err)

		start := time.Now()

		expected := &signature.Record{
			Signature: "sig",
			Slot:      12,
		}
		cloned := expected.Clone()

		require.NoError(t, s.Save(ctx, expected))
		assert.EqualValues(t, 1, expected.Id)
		assert.True(t, expected.CreatedAt.After(start))

		actual, err := s.Get(ctx, "sig")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
		assert.True(t, actual.Succeeded())

		duplicate := &signature.Record{
			Signature: "sig",
			Slot:      13,
		}
		assert.Equal(t, signature.ErrAlreadyExists, s.Save(ctx, duplicate))

		actual, err = s.Get(ctx, "sig")
		require.NoError(t, err)
		assert.EqualValues(t, 12, actual.Slot)

		assert.Error(t, s.Save(ctx, &signature.Record{}))
	})
}

func testFailedTransaction(t *testing.T, s signature.Store) {
	t.Run("testFailedTransaction", func(t *testing.T) {
		ctx := context.Background()

		expected := &signature.Record{
			Signature: "sig",
			Slot:      3,
			Err:       `{"InstructionError":[0,{"Custom":6000}]}`,
		}
		require.NoError(t, s.Save(ctx, expected))

		actual, err := s.Get(ctx, "sig")
		require.NoError(t, err)
		assertEquivalentRecords(t, expected, actual)
		assert.False(t, actual.Succeeded())
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *signature.Record) {
	assert.Equal(t, obj1.Signature, obj2.Signature)
	assert.Equal(t, obj1.Slot, obj2.Slot)
	assert.Equal(t, obj1.Err, obj2.Err)
}

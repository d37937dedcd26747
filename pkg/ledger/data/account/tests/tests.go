package tests

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/database/query"
	"github.com/code-payments/code-custody/pkg/ledger/data/account"
)

func RunTests(t *testing.T, s account.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s account.Store){
		testHappyPath,
		testCommitAtomicBatch,
		testGetByOwner,
		testValidation,
	} {
		tf(t, s)
		teardown()
	}
}

func testHappyPath(t *testing.T, s account.Store) {
	t.Run("testHappyPath", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.Get(ctx, "address")
		assert.Equal(t, account.ErrAccountNotFound, err)

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		start := time.Now()

		expected := &account.Record{
			Address:  "address",
			Owner:    "owner",
			Lamports: 890880,
			Slot:     1,
		}
		cloned := expected.Clone()

		require.NoError(t, s.Commit(ctx, []*account.Record{expected}, nil))
		assert.EqualValues(t, 1, expected.Id)
		assert.True(t, expected.LastUpdatedAt.After(start))

		actual, err := s.Get(ctx, "address")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)
		assert.Nil(t, actual.Data)

		expected.Owner = "program"
		expected.Lamports = 1_000_000
		expected.Data = []byte{1, 2, 3}
		expected.Slot = 2
		cloned = expected.Clone()

		require.NoError(t, s.Commit(ctx, []*account.Record{expected}, nil))
		assert.EqualValues(t, 1, expected.Id)

		actual, err = s.Get(ctx, "address")
		require.NoError(t, err)
		assertEquivalentRecords(t, &cloned, actual)

		count, err = s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, count)

		require.NoError(t, s.Commit(ctx, nil, []string{"address", "unknown"}))

		_, err = s.Get(ctx, "address")
		assert.Equal(t, account.ErrAccountNotFound, err)

		count, err = s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})
}

func testCommitAtomicBatch(t *testing.T, s account.Store) {
	t.Run("testCommitAtomicBatch", func(t *testing.T) {
		ctx := context.Background()

		var records []*account.Record
		for i := 0; i < 5; i++ {
			records = append(records, &account.Record{
				Address:  fmt.Sprintf("address%d", i),
				Owner:    "owner",
				Lamports: uint64(i + 1),
				Data:     []byte{byte(i)},
			})
		}
		require.NoError(t, s.Commit(ctx, records, nil))

		actual, err := s.GetAll(ctx, "address0", "address3", "missing")
		require.NoError(t, err)
		require.Len(t, actual, 2)
		for _, record := range actual {
			switch record.Address {
			case "address0":
				assertEquivalentRecords(t, records[0], record)
			case "address3":
				assertEquivalentRecords(t, records[3], record)
			default:
				t.Fatalf("unexpected address %s", record.Address)
			}
		}

		empty, err := s.GetAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		records[1].Lamports = 100
		require.NoError(t, s.Commit(ctx, []*account.Record{records[1]}, []string{"address2", "address4"}))

		actual, err = s.GetAll(ctx, "address0", "address1", "address2", "address3", "address4")
		require.NoError(t, err)
		require.Len(t, actual, 3)

		updated, err := s.Get(ctx, "address1")
		require.NoError(t, err)
		assert.EqualValues(t, 100, updated.Lamports)

		invalid := &account.Record{Address: "address5", Owner: "owner"}
		assert.Error(t, s.Commit(ctx, []*account.Record{records[0], invalid}, []string{"address0"}))

		_, err = s.Get(ctx, "address0")
		require.NoError(t, err)
		_, err = s.Get(ctx, "address5")
		assert.Equal(t, account.ErrAccountNotFound, err)
	})
}

func testGetByOwner(t *testing.T, s account.Store) {
	t.Run("testGetByOwner", func(t *testing.T) {
		ctx := context.Background()

		_, err := s.GetByOwner(ctx, "program", query.EmptyCursor, 10, query.Ascending)
		assert.Equal(t, account.ErrAccountNotFound, err)

		var records []*account.Record
		for i := 0; i < 10; i++ {
			owner := "program"
			if i%2 == 1 {
				owner = "other"
			}

			record := &account.Record{
				Address:  fmt.Sprintf("address%d", i),
				Owner:    owner,
				Lamports: 1,
			}
			require.NoError(t, s.Commit(ctx, []*account.Record{record}, nil))
			records = append(records, record)
		}

		actual, err := s.GetByOwner(ctx, "program", query.EmptyCursor, 10, query.Ascending)
		require.NoError(t, err)
		require.Len(t, actual, 5)
		for i, record := range actual {
			assert.Equal(t, records[2*i].Address, record.Address)
		}

		actual, err = s.GetByOwner(ctx, "program", query.EmptyCursor, 2, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 2)
		assert.Equal(t, "address8", actual[0].Address)
		assert.Equal(t, "address6", actual[1].Address)

		actual, err = s.GetByOwner(ctx, "program", query.ToCursor(actual[1].Id), 10, query.Descending)
		require.NoError(t, err)
		require.Len(t, actual, 3)
		assert.Equal(t, "address4", actual[0].Address)

		_, err = s.GetByOwner(ctx, "program", query.ToCursor(records[8].Id), 10, query.Ascending)
		assert.Equal(t, account.ErrAccountNotFound, err)
	})
}

func testValidation(t *testing.T, s account.Store) {
	t.Run("testValidation", func(t *testing.T) {
		ctx := context.Background()

		for _, invalid := range []*account.Record{
			{Owner: "owner", Lamports: 1},
			{Address: "address", Lamports: 1},
			{Address: "address", Owner: "owner"},
		} {
			assert.Error(t, s.Commit(ctx, []*account.Record{invalid}, nil))
		}

		count, err := s.Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})
}

func assertEquivalentRecords(t *testing.T, obj1, obj2 *account.Record) {
	assert.Equal(t, obj1.Address, obj2.Address)
	assert.Equal(t, obj1.Owner, obj2.Owner)
	assert.Equal(t, obj1.Lamports, obj2.Lamports)
	assert.Equal(t, obj1.Data, obj2.Data)
	assert.Equal(t, obj1.Executable, obj2.Executable)
	assert.Equal(t, obj1.Slot, obj2.Slot)
}

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginateQuery(t *testing.T) {
	base := "SELECT id FROM accounts WHERE (owner = $1)"

	q, args := PaginateQuery(base, []interface{}{"owner"}, nil, 0, Ascending)
	assert.Equal(t, base+" ORDER BY id ASC", q)
	assert.Equal(t, []interface{}{"owner"}, args)

	q, args = PaginateQuery(base, []interface{}{"owner"}, ToCursor(42), 10, Descending)
	assert.Equal(t, base+" AND id < $2 ORDER BY id DESC LIMIT $3", q)
	assert.Equal(t, []interface{}{"owner", uint64(42), uint64(10)}, args)
}

func TestDefaultPaginationHandler(t *testing.T) {
	opts, err := DefaultPaginationHandler()
	require.NoError(t, err)
	assert.EqualValues(t, defaultPagingLimit, opts.Limit)
	assert.Equal(t, Ascending, opts.SortBy)
	assert.Empty(t, opts.Cursor)

	opts, err = DefaultPaginationHandler(WithLimit(5), WithDirection(Descending), WithCursor(ToCursor(7)))
	require.NoError(t, err)
	assert.EqualValues(t, 5, opts.Limit)
	assert.Equal(t, Descending, opts.SortBy)
	assert.EqualValues(t, 7, opts.Cursor.ToUint64())

	_, err = DefaultPaginationHandler(WithLimit(defaultPagingLimit + 1))
	assert.Equal(t, ErrQueryNotSupported, err)
}

func TestOrdering(t *testing.T) {
	for _, o := range []Ordering{Ascending, Descending} {
		s, err := FromOrdering(o)
		require.NoError(t, err)

		actual, err := ToOrdering(s)
		require.NoError(t, err)
		assert.Equal(t, o, actual)
	}

	_, err := ToOrdering("sideways")
	assert.Error(t, err)
}

package query

import (
	"encoding/binary"

	"github.com/mr-tron/base58"
)

// Cursor is an opaque position within an ordered result set. Stores encode
// their monotonic record ids as big endian uint64 values.
type Cursor []byte

var (
	EmptyCursor Cursor = Cursor([]byte{})
)

func ToCursor(val uint64) Cursor {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, val)
	return b
}

func (c Cursor) ToUint64() uint64 {
	return binary.BigEndian.Uint64(c)
}

func (c Cursor) ToBase58() string {
	return base58.Encode(c)
}

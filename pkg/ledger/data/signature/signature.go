package signature

import (
	"time"

	"github.com/pkg/errors"
)

// Record is the processing outcome of a transaction, keyed by its first
// signature. Err holds the JSON encoded transaction error and is empty when
// the transaction succeeded.
type Record struct {
	Id uint64

	Signature string
	Slot      uint64
	Err       string

	CreatedAt time.Time
}

func (r *Record) Validate() error {
	if len(r.Signature) == 0 {
		return errors.New("signature is required")
	}

	return nil
}

// Succeeded reports whether the transaction committed.
func (r *Record) Succeeded() bool {
	return len(r.Err) == 0
}

func (r *Record) Clone() Record {
	return Record{
		Id: r.Id,

		Signature: r.Signature,
		Slot:      r.Slot,
		Err:       r.Err,

		CreatedAt: r.CreatedAt,
	}
}

func (r *Record) CopyTo(dst *Record) {
	dst.Id = r.Id

	dst.Signature = r.Signature
	dst.Slot = r.Slot
	dst.Err = r.Err

	dst.CreatedAt = r.CreatedAt
}

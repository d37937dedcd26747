package ledger

import (
	"encoding/binary"
	"math"
)

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/rent.rs#L25
const accountStorageOverhead = 128

// Rent determines the balance an account must hold to persist with a given
// amount of data.
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
}

// MinimumBalance returns the rent exempt balance for an account holding size
// bytes of data.
func (r Rent) MinimumBalance(size int) uint64 {
	bytes := uint64(accountStorageOverhead + size)
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}

// IsExempt reports whether lamports covers the rent exempt balance.
func (r Rent) IsExempt(lamports uint64, size int) bool {
	return lamports >= r.MinimumBalance(size)
}

// Marshal encodes the rent sysvar layout: lamports per byte year, the
// exemption threshold as a float64 and the burn percent.
func (r Rent) Marshal() []byte {
	b := make([]byte, 17)
	binary.LittleEndian.PutUint64(b, r.LamportsPerByteYear)
	binary.LittleEndian.PutUint64(b[8:], math.Float64bits(r.ExemptionThreshold))
	b[16] = 50
	return b
}

// transitionAllowed reports whether an account may move from pre to post
// with respect to rent. Accounts must end either closed or exempt, unless
// they already paid rent and neither grew nor gained lamports.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/runtime/src/rent_state.rs#L43
func (r Rent) transitionAllowed(pre, post *Account) bool {
	if post.Lamports == 0 || r.IsExempt(post.Lamports, len(post.Data)) {
		return true
	}

	if pre.Lamports == 0 || r.IsExempt(pre.Lamports, len(pre.Data)) {
		return false
	}

	return len(pre.Data) == len(post.Data) && post.Lamports <= pre.Lamports
}

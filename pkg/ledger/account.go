package ledger

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-custody/pkg/ledger/data/account"
	"github.com/code-payments/code-custody/pkg/solana/system"
)

var (
	// NativeLoaderKey owns every program account on the ledger.
	NativeLoaderKey = mustBase58Decode("NativeLoader1111111111111111111111111111111")

	// SysvarOwnerKey owns the sysvar accounts.
	SysvarOwnerKey = mustBase58Decode("Sysvar1111111111111111111111111111111111111")
)

// Account is the state held at a ledger address.
type Account struct {
	Lamports   uint64
	Data       []byte
	Owner      ed25519.PublicKey
	Executable bool
}

func newEmptyAccount() *Account {
	return &Account{
		Owner: system.ProgramKey,
	}
}

// IsEmpty reports whether the address holds nothing, as a never funded
// address does.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0 && bytes.Equal(a.Owner, system.ProgramKey) && !a.Executable
}

func (a *Account) Clone() *Account {
	var data []byte
	if len(a.Data) > 0 {
		data = make([]byte, len(a.Data))
		copy(data, a.Data)
	}

	owner := make(ed25519.PublicKey, len(a.Owner))
	copy(owner, a.Owner)

	return &Account{
		Lamports:   a.Lamports,
		Data:       data,
		Owner:      owner,
		Executable: a.Executable,
	}
}

func (a *Account) equal(other *Account) bool {
	return a.Lamports == other.Lamports &&
		bytes.Equal(a.Data, other.Data) &&
		bytes.Equal(a.Owner, other.Owner) &&
		a.Executable == other.Executable
}

// AccountInfo is an account as seen by an executing instruction. Programs
// mutate the embedded Account in place; duplicated keys within an
// instruction share the same Account.
type AccountInfo struct {
	Key        ed25519.PublicKey
	IsSigner   bool
	IsWritable bool

	*Account

	index int
}

func fromRecord(record *account.Record) (*Account, error) {
	owner, err := base58.Decode(record.Owner)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid owner for %s", record.Address)
	}
	if len(owner) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid owner length for %s", record.Address)
	}

	var data []byte
	if len(record.Data) > 0 {
		data = make([]byte, len(record.Data))
		copy(data, record.Data)
	}

	return &Account{
		Lamports:   record.Lamports,
		Data:       data,
		Owner:      owner,
		Executable: record.Executable,
	}, nil
}

func toRecord(address ed25519.PublicKey, a *Account, slot uint64) *account.Record {
	return &account.Record{
		Address:    base58.Encode(address),
		Owner:      base58.Encode(a.Owner),
		Lamports:   a.Lamports,
		Data:       a.Data,
		Executable: a.Executable,
		Slot:       slot,
	}
}

func mustBase58Decode(value string) ed25519.PublicKey {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}

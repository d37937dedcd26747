package vault

import (
	"bytes"
	"fmt"

	"github.com/code-payments/code-custody/pkg/solana"
)

const (
	VaultStateAccountSize = (8 + // discriminator
		1 + // vault_bump
		1) // state_bump
)

var VaultStateAccountDiscriminator = solana.AccountDiscriminator("VaultState")

// VaultStateAccount records the bumps of an owner's derived addresses. It is
// written once by initialize and never mutated.
type VaultStateAccount struct {
	VaultBump uint8
	StateBump uint8
}

func (obj *VaultStateAccount) Marshal() []byte {
	data := make([]byte, VaultStateAccountSize)

	var offset int
	copy(data, VaultStateAccountDiscriminator)
	offset += solana.DiscriminatorSize

	data[offset] = obj.VaultBump
	offset++
	data[offset] = obj.StateBump

	return data
}

func (obj *VaultStateAccount) Unmarshal(data []byte) error {
	if len(data) != VaultStateAccountSize {
		return ErrInvalidAccountData
	}
	if !bytes.Equal(data[:solana.DiscriminatorSize], VaultStateAccountDiscriminator) {
		return ErrInvalidAccountData
	}

	offset := solana.DiscriminatorSize
	obj.VaultBump = data[offset]
	obj.StateBump = data[offset+1]

	return nil
}

func (obj *VaultStateAccount) String() string {
	return fmt.Sprintf("VaultStateAccount{vault_bump=%d,state_bump=%d}", obj.VaultBump, obj.StateBump)
}

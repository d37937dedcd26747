package vault

import (
	"crypto/ed25519"

	"github.com/code-payments/code-custody/pkg/solana"
)

// GetStateAddress derives the VaultState record address for an owner.
func GetStateAddress(program, owner ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program,
		StatePrefix,
		owner,
	)
}

// GetVaultAddress derives the custodial balance address paired with a
// VaultState record.
func GetVaultAddress(program, state ed25519.PublicKey) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program,
		VaultPrefix,
		state,
	)
}

// Addresses is the full set of derived addresses for one owner.
type Addresses struct {
	State     ed25519.PublicKey
	StateBump uint8
	Vault     ed25519.PublicKey
	VaultBump uint8
}

// GetAddresses derives both the state and custodial balance addresses.
func GetAddresses(program, owner ed25519.PublicKey) (*Addresses, error) {
	state, stateBump, err := GetStateAddress(program, owner)
	if err != nil {
		return nil, err
	}

	vault, vaultBump, err := GetVaultAddress(program, state)
	if err != nil {
		return nil, err
	}

	return &Addresses{
		State:     state,
		StateBump: stateBump,
		Vault:     vault,
		VaultBump: vaultBump,
	}, nil
}

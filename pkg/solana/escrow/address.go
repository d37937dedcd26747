package escrow

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/token"
)

// SeedBytes is the little-endian encoding of an escrow seed as used in
// address derivation.
func SeedBytes(seed uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, seed)
	return b
}

// GetEscrowAddress derives the escrow record address for a maker and seed.
func GetEscrowAddress(program, maker ed25519.PublicKey, seed uint64) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		program,
		EscrowPrefix,
		maker,
		SeedBytes(seed),
	)
}

// GetVaultAddress returns the token account holding the maker's deposit. It is
// the associated token account of the escrow record's address for mint_a.
func GetVaultAddress(escrow, mintA ed25519.PublicKey) (ed25519.PublicKey, error) {
	return token.GetAssociatedAccount(escrow, mintA)
}

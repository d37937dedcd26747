package program

import (
	"bytes"
	"crypto/ed25519"

	"github.com/code-payments/code-custody/pkg/ledger"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/token"
)

// FindAddress derives a program address with a bump search.
func FindAddress(program ed25519.PublicKey, seeds ...[]byte) (ed25519.PublicKey, uint8, error) {
	address, bump, err := solana.FindProgramAddressAndBump(program, seeds...)
	if err == solana.ErrNoValidBump {
		return nil, 0, ErrDerivationExhausted
	} else if err != nil {
		return nil, 0, solana.InstructionErrorMaxSeedLengthExceeded
	}
	return address, bump, nil
}

// RequireFound checks the account is at the address found by a bump search
// over seeds, returning the bump.
func RequireFound(info *ledger.AccountInfo, program ed25519.PublicKey, seeds ...[]byte) (uint8, error) {
	address, bump, err := FindAddress(program, seeds...)
	if err != nil {
		return 0, err
	}
	if !bytes.Equal(address, info.Key) {
		return 0, ErrAddressMismatch
	}
	return bump, nil
}

// RequireDerived checks the account is at the address derived from seeds,
// which must end with a stored bump.
func RequireDerived(info *ledger.AccountInfo, program ed25519.PublicKey, seeds ...[]byte) error {
	address, err := solana.CreateProgramAddress(program, seeds...)
	if err != nil || !bytes.Equal(address, info.Key) {
		return ErrAddressMismatch
	}
	return nil
}

// RequireAddress checks the account is at the expected address.
func RequireAddress(info *ledger.AccountInfo, expected ed25519.PublicKey) error {
	if !bytes.Equal(info.Key, expected) {
		return ErrAddressMismatch
	}
	return nil
}

// RequireSigner checks the account signed the instruction.
func RequireSigner(info *ledger.AccountInfo) error {
	if !info.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}
	return nil
}

// RequireProgram checks the account is the expected program.
func RequireProgram(info *ledger.AccountInfo, program ed25519.PublicKey) error {
	if !bytes.Equal(info.Key, program) {
		return solana.InstructionErrorIncorrectProgramID
	}
	return nil
}

// IsOwnedBy reports whether the account is owned by program.
func IsOwnedBy(info *ledger.AccountInfo, program ed25519.PublicKey) bool {
	return bytes.Equal(info.Owner, program)
}

// IsUnallocated reports whether no program claimed the account yet. Lamports
// alone do not count, since anyone may send them to any address.
func IsUnallocated(info *ledger.AccountInfo) bool {
	return IsOwnedBy(info, system.ProgramKey) && len(info.Data) == 0
}

// CreateAccount allocates size bytes at a derived address, funded by payer
// up to the rent exempt minimum and owned by the executing program.
func CreateAccount(ic *ledger.InvokeContext, payer, address *ledger.AccountInfo, size int, seeds ...[]byte) error {
	return ic.CreateDerivedAccount(payer, address, ic.ProgramID(), size, seeds...)
}

// CloseAccount releases an account owned by the executing program, moving
// its lamports to destination and returning it to the system program.
func CloseAccount(info, destination *ledger.AccountInfo) {
	destination.Lamports += info.Lamports
	info.Lamports = 0
	info.Data = nil
	info.Owner = system.ProgramKey
}

// LoadMint decodes an initialized mint.
func LoadMint(info *ledger.AccountInfo) (*token.Mint, error) {
	var mint token.Mint
	if !IsOwnedBy(info, token.ProgramKey) || !mint.Unmarshal(info.Data) || !mint.IsInitialized {
		return nil, ErrInvalidMint
	}
	return &mint, nil
}

// LoadTokenAccount decodes an initialized token account, which must hold the
// provided mint when one is given.
func LoadTokenAccount(info *ledger.AccountInfo, mint ed25519.PublicKey) (*token.Account, error) {
	var account token.Account
	if !IsOwnedBy(info, token.ProgramKey) || !account.Unmarshal(info.Data) || account.State == token.AccountStateUninitialized {
		return nil, ErrInvalidTokenAccount
	}
	if mint != nil && !bytes.Equal(account.Mint, mint) {
		return nil, ErrInvalidTokenAccount
	}
	return &account, nil
}

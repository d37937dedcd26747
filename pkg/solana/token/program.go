package token

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
)

// ProgramKey is the address of the token program that should be used.
//
// Current key: TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA
var ProgramKey = ed25519.PublicKey{6, 221, 246, 225, 215, 101, 161, 147, 217, 203, 225, 70, 206, 235, 121, 172, 28, 180, 133, 237, 95, 91, 55, 145, 58, 140, 245, 133, 126, 255, 0, 169}

type Command byte

const (
	CommandInitializeMint Command = iota
	CommandInitializeAccount
	CommandInitializeMultisig
	CommandTransfer
	CommandApprove
	CommandRevoke
	CommandSetAuthority
	CommandMintTo
	CommandBurn
	CommandCloseAccount
	CommandFreezeAccount
	CommandThawAccount
	CommandTransferChecked
	CommandApproveChecked
	CommandMintToChecked
	CommandBurnChecked
	CommandInitializeAccount2
	CommandSyncNative
	CommandInitializeAccount3

	CommandUnknown = Command(math.MaxUint8)
)

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/error.rs
const (
	ErrorNotRentExempt solana.CustomError = iota
	ErrorInsufficientFunds
	ErrorInvalidMint
	ErrorMintMismatch
	ErrorOwnerMismatch
	ErrorFixedSupply
	ErrorAlreadyInUse
	ErrorInvalidNumberOfProvidedSigners
	ErrorInvalidNumberOfRequiredSigners
	ErrorUninitializedState
	ErrorNativeNotSupported
	ErrorNonNativeHasBalance
	ErrorInvalidInstruction
	ErrorInvalidState
	ErrorOverflow
	ErrorAuthorityTypeNotSupported
	ErrorMintCannotFreeze
	ErrorAccountFrozen
	ErrorMintDecimalsMismatch
)

const (
	amountDataSize        = 1 + 8
	checkedAmountDataSize = 1 + 8 + 1
)

// GetCommand returns the token command encoded in the instruction.
func GetCommand(ix solana.Instruction) (Command, error) {
	if !bytes.Equal(ix.Program, ProgramKey) {
		return CommandUnknown, solana.ErrIncorrectProgram
	}
	if len(ix.Data) == 0 {
		return CommandUnknown, errors.New("token instruction missing data")
	}

	return Command(ix.Data[0]), nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L25-L40
func InitializeMint(mint, mintAuthority, freezeAuthority ed25519.PublicKey, decimals byte) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]` The mint to initialize.
	//   1. `[]` Rent sysvar
	size := 1 + 1 + ed25519.PublicKeySize + 1
	if len(freezeAuthority) > 0 {
		size += ed25519.PublicKeySize
	}

	data := make([]byte, size)
	data[0] = byte(CommandInitializeMint)
	data[1] = decimals
	copy(data[2:], mintAuthority)
	if len(freezeAuthority) > 0 {
		data[2+ed25519.PublicKeySize] = 1
		copy(data[3+ed25519.PublicKeySize:], freezeAuthority)
	}

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

type DecompiledInitializeMint struct {
	Mint            ed25519.PublicKey
	MintAuthority   ed25519.PublicKey
	FreezeAuthority ed25519.PublicKey
	Decimals        byte
}

func DecompileInitializeMint(ix solana.Instruction) (*DecompiledInitializeMint, error) {
	if err := checkCommand(ix, CommandInitializeMint); err != nil {
		return nil, err
	}
	if len(ix.Accounts) < 1 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}

	minSize := 1 + 1 + ed25519.PublicKeySize + 1
	if len(ix.Data) != minSize && len(ix.Data) != minSize+ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	v := &DecompiledInitializeMint{
		Mint:          ix.Accounts[0].PublicKey,
		Decimals:      ix.Data[1],
		MintAuthority: make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(v.MintAuthority, ix.Data[2:])

	if ix.Data[2+ed25519.PublicKeySize] == 1 {
		if len(ix.Data) != minSize+ed25519.PublicKeySize {
			return nil, errors.New("freeze authority flag set without key")
		}
		v.FreezeAuthority = make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(v.FreezeAuthority, ix.Data[3+ed25519.PublicKeySize:])
	}

	return v, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L41-L55
func InitializeAccount(account, mint, owner ed25519.PublicKey) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]`  The account to initialize.
	//   1. `[]` The mint this account will be associated with.
	//   2. `[]` The new account's owner/multisignature.
	//   3. `[]` Rent sysvar
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandInitializeAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(mint, false),
		solana.NewReadonlyAccountMeta(owner, false),
		solana.NewReadonlyAccountMeta(system.RentSysVar, false),
	)
}

type DecompiledInitializeAccount struct {
	Account ed25519.PublicKey
	Mint    ed25519.PublicKey
	Owner   ed25519.PublicKey
}

func DecompileInitializeAccount(ix solana.Instruction) (*DecompiledInitializeAccount, error) {
	if err := checkCommand(ix, CommandInitializeAccount); err != nil {
		return nil, err
	}
	if len(ix.Data) != 1 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}
	if len(ix.Accounts) != 4 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if !bytes.Equal(system.RentSysVar, ix.Accounts[3].PublicKey) {
		return nil, errors.Errorf("invalid rent sysvar")
	}

	return &DecompiledInitializeAccount{
		Account: ix.Accounts[0].PublicKey,
		Mint:    ix.Accounts[1].PublicKey,
		Owner:   ix.Accounts[2].PublicKey,
	}, nil
}

// InitializeAccount3 is InitializeAccount with the owner carried in the
// instruction data, so neither the owner nor the rent sysvar are passed as
// accounts.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L414-L423
func InitializeAccount3(account, mint, owner ed25519.PublicKey) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   0. `[writable]`  The account to initialize.
	//   1. `[]` The mint this account will be associated with.
	data := make([]byte, 1+ed25519.PublicKeySize)
	data[0] = byte(CommandInitializeAccount3)
	copy(data[1:], owner)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(mint, false),
	)
}

func DecompileInitializeAccount3(ix solana.Instruction) (*DecompiledInitializeAccount, error) {
	if err := checkCommand(ix, CommandInitializeAccount3); err != nil {
		return nil, err
	}
	if len(ix.Data) != 1+ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}
	if len(ix.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}

	owner := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(owner, ix.Data[1:])

	return &DecompiledInitializeAccount{
		Account: ix.Accounts[0].PublicKey,
		Mint:    ix.Accounts[1].PublicKey,
		Owner:   owner,
	}, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L141-L155
func MintTo(mint, destination, authority ed25519.PublicKey, amount uint64) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   * Single authority
	//   0. `[writable]` The mint.
	//   1. `[writable]` The account to mint tokens to.
	//   2. `[signer]` The mint's minting authority.
	data := make([]byte, amountDataSize)
	data[0] = byte(CommandMintTo)
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(mint, false),
		solana.NewAccountMeta(destination, false),
		solana.NewReadonlyAccountMeta(authority, true),
	)
}

type DecompiledMintTo struct {
	Mint        ed25519.PublicKey
	Destination ed25519.PublicKey
	Authority   ed25519.PublicKey
	Amount      uint64
}

func DecompileMintTo(ix solana.Instruction) (*DecompiledMintTo, error) {
	if err := checkCommand(ix, CommandMintTo); err != nil {
		return nil, err
	}
	if len(ix.Accounts) < 3 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != amountDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	return &DecompiledMintTo{
		Mint:        ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Authority:   ix.Accounts[2].PublicKey,
		Amount:      binary.LittleEndian.Uint64(ix.Data[1:]),
	}, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L76-L91
func Transfer(source, dest, owner ed25519.PublicKey, amount uint64) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   * Single owner/delegate
	//   0. `[writable]` The source account.
	//   1. `[writable]` The destination account.
	//   2. `[signer]` The source account's owner/delegate.
	data := make([]byte, amountDataSize)
	data[0] = byte(CommandTransfer)
	binary.LittleEndian.PutUint64(data[1:], amount)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(source, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledTransfer struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
	Amount      uint64
}

func DecompileTransfer(ix solana.Instruction) (*DecompiledTransfer, error) {
	if err := checkCommand(ix, CommandTransfer); err != nil {
		return nil, err
	}
	if len(ix.Accounts) < 3 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != amountDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	return &DecompiledTransfer{
		Source:      ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Owner:       ix.Accounts[2].PublicKey,
		Amount:      binary.LittleEndian.Uint64(ix.Data[1:]),
	}, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L230-L252
func TransferChecked(source, mint, dest, owner ed25519.PublicKey, amount uint64, decimals byte) solana.Instruction {
	// Accounts expected by this instruction:
	//
	//   * Single owner/delegate
	//   0. `[writable]` The source account.
	//   1. `[]` The token mint.
	//   2. `[writable]` The destination account.
	//   3. `[signer]` The source account's owner/delegate.
	data := make([]byte, checkedAmountDataSize)
	data[0] = byte(CommandTransferChecked)
	binary.LittleEndian.PutUint64(data[1:], amount)
	data[9] = decimals

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(source, false),
		solana.NewReadonlyAccountMeta(mint, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledTransferChecked struct {
	Source      ed25519.PublicKey
	Mint        ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
	Amount      uint64
	Decimals    byte
}

func DecompileTransferChecked(ix solana.Instruction) (*DecompiledTransferChecked, error) {
	if err := checkCommand(ix, CommandTransferChecked); err != nil {
		return nil, err
	}
	if len(ix.Accounts) < 4 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != checkedAmountDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	return &DecompiledTransferChecked{
		Source:      ix.Accounts[0].PublicKey,
		Mint:        ix.Accounts[1].PublicKey,
		Destination: ix.Accounts[2].PublicKey,
		Owner:       ix.Accounts[3].PublicKey,
		Amount:      binary.LittleEndian.Uint64(ix.Data[1:9]),
		Decimals:    ix.Data[9],
	}, nil
}

// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/instruction.rs#L183-L197
func CloseAccount(account, dest, owner ed25519.PublicKey) solana.Instruction {
	// Close an account by transferring all its SOL to the destination account.
	// Non-native accounts may only be closed if its token amount is zero.
	//
	// Accounts expected by this instruction:
	//
	//   * Single owner
	//   0. `[writable]` The account to close.
	//   1. `[writable]` The destination account.
	//   2. `[signer]` The account's owner.
	return solana.NewInstruction(
		ProgramKey,
		[]byte{byte(CommandCloseAccount)},
		solana.NewAccountMeta(account, false),
		solana.NewAccountMeta(dest, false),
		solana.NewReadonlyAccountMeta(owner, true),
	)
}

type DecompiledCloseAccount struct {
	Account     ed25519.PublicKey
	Destination ed25519.PublicKey
	Owner       ed25519.PublicKey
}

func DecompileCloseAccount(ix solana.Instruction) (*DecompiledCloseAccount, error) {
	if err := checkCommand(ix, CommandCloseAccount); err != nil {
		return nil, err
	}
	if len(ix.Data) != 1 {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}
	if len(ix.Accounts) < 3 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}

	return &DecompiledCloseAccount{
		Account:     ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Owner:       ix.Accounts[2].PublicKey,
	}, nil
}

func checkCommand(ix solana.Instruction, expected Command) error {
	if !bytes.Equal(ix.Program, ProgramKey) {
		return solana.ErrIncorrectProgram
	}
	if len(ix.Data) == 0 || Command(ix.Data[0]) != expected {
		return solana.ErrIncorrectInstruction
	}
	return nil
}

package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/code-payments/code-custody/pkg/solana"
)

// ProgramKey is the address of the system program, 11111111111111111111111111111111.
var ProgramKey = ed25519.PublicKey(make([]byte, ed25519.PublicKeySize))

type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer
)

// CommandAllocate follows the nonce and seeded-account commands, which are not
// supported.
const CommandAllocate Command = 8

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L50
const (
	ErrorAccountAlreadyInUse solana.CustomError = iota
	ErrorResultWithNegativeLamports
	ErrorInvalidProgramId
	ErrorInvalidAccountDataLength
)

const (
	createAccountDataSize = 4 + 2*8 + ed25519.PublicKeySize
	assignDataSize        = 4 + ed25519.PublicKeySize
	transferDataSize      = 4 + 8
	allocateDataSize      = 4 + 8
)

// MaxAccountDataSize is the largest allocation CreateAccount permits.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L38
const MaxAccountDataSize = 10 * 1024 * 1024

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE, SIGNER] New account
	data := make([]byte, createAccountDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandCreateAccount))
	binary.LittleEndian.PutUint64(data[4:], lamports)
	binary.LittleEndian.PutUint64(data[4+8:], size)
	copy(data[4+2*8:], owner)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func DecompileCreateAccount(ix solana.Instruction) (*DecompiledCreateAccount, error) {
	if err := checkCommand(ix, CommandCreateAccount); err != nil {
		return nil, err
	}

	if len(ix.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != createAccountDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	v := &DecompiledCreateAccount{
		Funder:  ix.Accounts[0].PublicKey,
		Address: ix.Accounts[1].PublicKey,
	}
	v.Lamports = binary.LittleEndian.Uint64(ix.Data[4:])
	v.Size = binary.LittleEndian.Uint64(ix.Data[4+8:])
	v.Owner = make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(v.Owner, ix.Data[4+2*8:])

	return v, nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L96-L101
func Transfer(source, destination ed25519.PublicKey, lamports uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Funding account
	//   1. [WRITE] Recipient account
	data := make([]byte, transferDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandTransfer))
	binary.LittleEndian.PutUint64(data[4:], lamports)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(source, true),
		solana.NewAccountMeta(destination, false),
	)
}

type DecompiledTransfer struct {
	Source      ed25519.PublicKey
	Destination ed25519.PublicKey
	Lamports    uint64
}

func DecompileTransfer(ix solana.Instruction) (*DecompiledTransfer, error) {
	if err := checkCommand(ix, CommandTransfer); err != nil {
		return nil, err
	}

	if len(ix.Accounts) != 2 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != transferDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	return &DecompiledTransfer{
		Source:      ix.Accounts[0].PublicKey,
		Destination: ix.Accounts[1].PublicKey,
		Lamports:    binary.LittleEndian.Uint64(ix.Data[4:]),
	}, nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L85-L89
func Assign(address, owner ed25519.PublicKey) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] Assigned account
	data := make([]byte, assignDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandAssign))
	copy(data[4:], owner)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledAssign struct {
	Address ed25519.PublicKey
	Owner   ed25519.PublicKey
}

func DecompileAssign(ix solana.Instruction) (*DecompiledAssign, error) {
	if err := checkCommand(ix, CommandAssign); err != nil {
		return nil, err
	}

	if len(ix.Accounts) != 1 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != assignDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	v := &DecompiledAssign{
		Address: ix.Accounts[0].PublicKey,
		Owner:   make(ed25519.PublicKey, ed25519.PublicKeySize),
	}
	copy(v.Owner, ix.Data[4:])

	return v, nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/system_instruction.rs#L166-L171
func Allocate(address ed25519.PublicKey, size uint64) solana.Instruction {
	// # Account references
	//   0. [WRITE, SIGNER] New account
	data := make([]byte, allocateDataSize)
	binary.LittleEndian.PutUint32(data, uint32(CommandAllocate))
	binary.LittleEndian.PutUint64(data[4:], size)

	return solana.NewInstruction(
		ProgramKey,
		data,
		solana.NewAccountMeta(address, true),
	)
}

type DecompiledAllocate struct {
	Address ed25519.PublicKey
	Size    uint64
}

func DecompileAllocate(ix solana.Instruction) (*DecompiledAllocate, error) {
	if err := checkCommand(ix, CommandAllocate); err != nil {
		return nil, err
	}

	if len(ix.Accounts) != 1 {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	if len(ix.Data) != allocateDataSize {
		return nil, errors.Errorf("invalid instruction data size: %d", len(ix.Data))
	}

	return &DecompiledAllocate{
		Address: ix.Accounts[0].PublicKey,
		Size:    binary.LittleEndian.Uint64(ix.Data[4:]),
	}, nil
}

// GetCommand returns the system command encoded in the instruction.
func GetCommand(ix solana.Instruction) (Command, error) {
	if !bytes.Equal(ix.Program, ProgramKey) {
		return 0, solana.ErrIncorrectProgram
	}
	if len(ix.Data) < 4 {
		return 0, solana.ErrIncorrectInstruction
	}

	return Command(binary.LittleEndian.Uint32(ix.Data)), nil
}

func checkCommand(ix solana.Instruction, expected Command) error {
	command, err := GetCommand(ix)
	if err != nil {
		return err
	}
	if command != expected {
		return solana.ErrIncorrectInstruction
	}
	return nil
}

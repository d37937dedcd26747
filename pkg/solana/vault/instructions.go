package vault

import (
	"crypto/ed25519"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/binary"
	"github.com/code-payments/code-custody/pkg/solana/system"
)

const (
	AmountInstructionArgsSize = 8
)

// InstructionAccounts are shared by every vault instruction.
type InstructionAccounts struct {
	Owner      ed25519.PublicKey
	Vault      ed25519.PublicKey
	VaultState ed25519.PublicKey
}

// AmountInstructionArgs carries the lamport amount of a deposit or withdraw.
type AmountInstructionArgs struct {
	Amount uint64
}

func (args *AmountInstructionArgs) Unmarshal(data []byte) error {
	if len(data) != solana.DiscriminatorSize+AmountInstructionArgsSize {
		return ErrInvalidInstructionData
	}

	offset := solana.DiscriminatorSize
	binary.GetUint64(data[offset:], &args.Amount, &offset)
	return nil
}

func NewInitializeInstruction(program ed25519.PublicKey, accounts *InstructionAccounts) solana.Instruction {
	return newInstruction(program, accounts, InstructionTypeInitialize.Discriminator())
}

func NewDepositInstruction(program ed25519.PublicKey, accounts *InstructionAccounts, args *AmountInstructionArgs) solana.Instruction {
	return newInstruction(program, accounts, amountData(InstructionTypeDeposit, args))
}

func NewWithdrawInstruction(program ed25519.PublicKey, accounts *InstructionAccounts, args *AmountInstructionArgs) solana.Instruction {
	return newInstruction(program, accounts, amountData(InstructionTypeWithdraw, args))
}

func NewCloseInstruction(program ed25519.PublicKey, accounts *InstructionAccounts) solana.Instruction {
	return newInstruction(program, accounts, InstructionTypeClose.Discriminator())
}

func amountData(t InstructionType, args *AmountInstructionArgs) []byte {
	data := make([]byte, solana.DiscriminatorSize+AmountInstructionArgsSize)

	var offset int
	binary.PutBytes(data, t.Discriminator(), &offset)
	binary.PutUint64(data[offset:], args.Amount, &offset)

	return data
}

func newInstruction(program ed25519.PublicKey, accounts *InstructionAccounts, data []byte) solana.Instruction {
	return solana.Instruction{
		Program: program,

		// Instruction args
		Data: data,

		// Instruction accounts
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Owner,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.Vault,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.VaultState,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  system.ProgramKey,
				IsWritable: false,
				IsSigner:   false,
			},
		},
	}
}

package escrow

import (
	"crypto/ed25519"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/binary"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/token"
)

const (
	MakeInstructionArgsSize = (8 + // seed
		8 + // deposit
		8) // receive
)

type MakeInstructionArgs struct {
	Seed    uint64
	Deposit uint64
	Receive uint64
}

type MakeInstructionAccounts struct {
	Maker     ed25519.PublicKey
	MintA     ed25519.PublicKey
	MintB     ed25519.PublicKey
	MakerAtaA ed25519.PublicKey
	Escrow    ed25519.PublicKey
	Vault     ed25519.PublicKey
}

func NewMakeInstruction(
	program ed25519.PublicKey,
	accounts *MakeInstructionAccounts,
	args *MakeInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte, solana.DiscriminatorSize+MakeInstructionArgsSize)

	binary.PutBytes(data, InstructionTypeMake.Discriminator(), &offset)
	binary.PutUint64(data[offset:], args.Seed, &offset)
	binary.PutUint64(data[offset:], args.Deposit, &offset)
	binary.PutUint64(data[offset:], args.Receive, &offset)

	return solana.Instruction{
		Program: program,

		// Instruction args
		Data: data,

		// Instruction accounts
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Maker,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.MintA,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.MintB,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.MakerAtaA,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Escrow,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.Vault,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  token.AssociatedTokenAccountProgramKey,
				IsWritable: false,
				IsSigner:   false,
			},
			{
				PublicKey:  token.ProgramKey,
				IsWritable: false,
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

func (args *MakeInstructionArgs) Unmarshal(data []byte) error {
	if len(data) != solana.DiscriminatorSize+MakeInstructionArgsSize {
		return ErrInvalidInstructionData
	}

	offset := solana.DiscriminatorSize

	binary.GetUint64(data[offset:], &args.Seed, &offset)
	binary.GetUint64(data[offset:], &args.Deposit, &offset)
	binary.GetUint64(data[offset:], &args.Receive, &offset)

	return nil
}

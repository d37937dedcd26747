package escrow

import (
	"crypto/ed25519"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/token"
)

type TakeInstructionAccounts struct {
	Taker     ed25519.PublicKey
	Maker     ed25519.PublicKey
	MintA     ed25519.PublicKey
	MintB     ed25519.PublicKey
	TakerAtaA ed25519.PublicKey
	TakerAtaB ed25519.PublicKey
	MakerAtaB ed25519.PublicKey
	Escrow    ed25519.PublicKey
	Vault     ed25519.PublicKey
}

func NewTakeInstruction(
	program ed25519.PublicKey,
	accounts *TakeInstructionAccounts,
) solana.Instruction {
	return solana.Instruction{
		Program: program,

		// Instruction args
		Data: InstructionTypeTake.Discriminator(),

		// Instruction accounts
		Accounts: []solana.AccountMeta{
			{
				PublicKey:  accounts.Taker,
				IsWritable: true,
				IsSigner:   true,
			},
			{
				PublicKey:  accounts.Maker,
				IsWritable: true,
				IsSigner:   false,
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
				PublicKey:  accounts.TakerAtaA,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.TakerAtaB,
				IsWritable: true,
				IsSigner:   false,
			},
			{
				PublicKey:  accounts.MakerAtaB,
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

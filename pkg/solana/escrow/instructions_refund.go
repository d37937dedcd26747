package escrow

import (
	"crypto/ed25519"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/token"
)

type RefundInstructionAccounts struct {
	Maker     ed25519.PublicKey
	MintA     ed25519.PublicKey
	MakerAtaA ed25519.PublicKey
	Escrow    ed25519.PublicKey
	Vault     ed25519.PublicKey
}

func NewRefundInstruction(
	program ed25519.PublicKey,
	accounts *RefundInstructionAccounts,
) solana.Instruction {
	return solana.Instruction{
		Program: program,

		// Instruction args
		Data: InstructionTypeRefund.Discriminator(),

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

package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
)

const (
	createAccountDataSize = 4 + 2*8 + ed25519.PublicKeySize
	assignDataSize        = 4 + ed25519.PublicKeySize
	transferDataSize      = 4 + 8
	allocateDataSize      = 4 + 8
)

// systemProgram implements account creation, allocation, assignment and
// lamport transfers.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/programs/system/src/system_processor.rs
type systemProgram struct{}

func (p *systemProgram) Process(ic *InvokeContext) error {
	data := ic.Data()
	if len(data) < 4 {
		return solana.InstructionErrorInvalidInstructionData
	}

	switch system.Command(binary.LittleEndian.Uint32(data)) {
	case system.CommandCreateAccount:
		if len(data) != createAccountDataSize {
			return solana.InstructionErrorInvalidInstructionData
		}

		owner := make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(owner, data[4+2*8:])

		return p.createAccount(
			ic,
			binary.LittleEndian.Uint64(data[4:]),
			binary.LittleEndian.Uint64(data[4+8:]),
			owner,
		)
	case system.CommandTransfer:
		if len(data) != transferDataSize {
			return solana.InstructionErrorInvalidInstructionData
		}

		return p.transfer(ic, binary.LittleEndian.Uint64(data[4:]))
	case system.CommandAssign:
		if len(data) != assignDataSize {
			return solana.InstructionErrorInvalidInstructionData
		}

		owner := make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(owner, data[4:])

		return p.assign(ic, owner)
	case system.CommandAllocate:
		if len(data) != allocateDataSize {
			return solana.InstructionErrorInvalidInstructionData
		}

		return p.allocate(ic, binary.LittleEndian.Uint64(data[4:]))
	default:
		return solana.InstructionErrorInvalidInstructionData
	}
}

func (p *systemProgram) createAccount(ic *InvokeContext, lamports, space uint64, owner ed25519.PublicKey) error {
	funder, err := ic.Account(0)
	if err != nil {
		return err
	}
	to, err := ic.Account(1)
	if err != nil {
		return err
	}

	if !funder.IsSigner || !to.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	if !to.IsEmpty() {
		ic.Log().Debug("create account: address already in use")
		return system.ErrorAccountAlreadyInUse
	}
	if space > system.MaxAccountDataSize {
		return system.ErrorInvalidAccountDataLength
	}

	if len(funder.Data) > 0 {
		return solana.InstructionErrorInvalidArgument
	}
	if funder.Lamports < lamports {
		ic.Log().Debug("create account: insufficient lamports")
		return solana.InstructionErrorInsufficientFunds
	}

	funder.Lamports -= lamports
	to.Lamports += lamports
	if space > 0 {
		to.Data = make([]byte, space)
	}
	to.Owner = owner

	return nil
}

func (p *systemProgram) transfer(ic *InvokeContext, lamports uint64) error {
	from, err := ic.Account(0)
	if err != nil {
		return err
	}
	to, err := ic.Account(1)
	if err != nil {
		return err
	}

	if !from.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	// Only plain wallets can be debited by the system program.
	if len(from.Data) > 0 {
		return solana.InstructionErrorInvalidArgument
	}
	if from.Lamports < lamports {
		ic.Log().Debug("transfer: insufficient lamports")
		return solana.InstructionErrorInsufficientFunds
	}

	from.Lamports -= lamports
	to.Lamports += lamports

	return nil
}

func (p *systemProgram) assign(ic *InvokeContext, owner ed25519.PublicKey) error {
	account, err := ic.Account(0)
	if err != nil {
		return err
	}

	if bytes.Equal(account.Owner, owner) {
		return nil
	}
	if !account.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	account.Owner = owner
	return nil
}

func (p *systemProgram) allocate(ic *InvokeContext, space uint64) error {
	account, err := ic.Account(0)
	if err != nil {
		return err
	}

	if !account.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	// Funded addresses may be allocated, as long as nothing claimed them yet.
	if len(account.Data) > 0 || !bytes.Equal(account.Owner, system.ProgramKey) {
		ic.Log().Debug("allocate: address already in use")
		return system.ErrorAccountAlreadyInUse
	}
	if space > system.MaxAccountDataSize {
		return system.ErrorInvalidAccountDataLength
	}

	if space > 0 {
		account.Data = make([]byte, space)
	}
	return nil
}

package ledger

import (
	"bytes"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/token"
)

const (
	ataCommandCreate byte = iota
	ataCommandCreateIdempotent
)

// associatedTokenProgram creates the canonical token account of a wallet for
// a mint, at an address derived from both.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/0639953c7dd0f5228c3ceda3ba68fece3b46ff1d/associated-token-account/program/src/processor.rs
type associatedTokenProgram struct{}

func (p *associatedTokenProgram) Process(ic *InvokeContext) error {
	var idempotent bool
	switch data := ic.Data(); {
	case len(data) == 0, bytes.Equal(data, []byte{ataCommandCreate}):
	case bytes.Equal(data, []byte{ataCommandCreateIdempotent}):
		idempotent = true
	default:
		return solana.InstructionErrorInvalidInstructionData
	}

	// Account layout:
	//   0. [writable, signer] funder
	//   1. [writable] associated account
	//   2. [] wallet
	//   3. [] mint
	//   4. [] system program
	//   5. [] token program
	if len(ic.Accounts()) < 6 {
		return solana.InstructionErrorNotEnoughAccountKeys
	}
	funder, associated, wallet, mint := ic.Accounts()[0], ic.Accounts()[1], ic.Accounts()[2], ic.Accounts()[3]

	address, bump, err := token.GetAssociatedAccountAndBump(wallet.Key, mint.Key)
	if err != nil || !bytes.Equal(address, associated.Key) {
		return solana.InstructionErrorInvalidSeeds
	}

	if idempotent && bytes.Equal(associated.Owner, token.ProgramKey) {
		var existing token.Account
		if existing.Unmarshal(associated.Data) &&
			existing.State != token.AccountStateUninitialized &&
			bytes.Equal(existing.Owner, wallet.Key) &&
			bytes.Equal(existing.Mint, mint.Key) {
			return nil
		}
		return solana.InstructionErrorInvalidAccountData
	}

	if !bytes.Equal(mint.Owner, token.ProgramKey) {
		return solana.InstructionErrorIncorrectProgramID
	}

	err = ic.CreateDerivedAccount(funder, associated, token.ProgramKey, token.AccountSize, wallet.Key, token.ProgramKey, mint.Key, []byte{bump})
	if err != nil {
		return err
	}

	return ic.Invoke(token.InitializeAccount3(associated.Key, mint.Key, wallet.Key))
}

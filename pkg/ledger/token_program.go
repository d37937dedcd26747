package ledger

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"math"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/token"
)

// tokenProgram implements the subset of the token program needed to mint,
// hold, move and close fungible token balances.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/b011698251981b5a12088acba18fad1d41c3719a/token/program/src/processor.rs
type tokenProgram struct{}

func (p *tokenProgram) Process(ic *InvokeContext) error {
	data := ic.Data()
	if len(data) == 0 {
		return solana.InstructionErrorInvalidInstructionData
	}

	switch token.Command(data[0]) {
	case token.CommandInitializeMint:
		return p.initializeMint(ic, data)
	case token.CommandInitializeAccount:
		owner, err := ic.Account(2)
		if err != nil {
			return err
		}
		if len(data) != 1 {
			return solana.InstructionErrorInvalidInstructionData
		}
		return p.initializeAccount(ic, owner.Key)
	case token.CommandInitializeAccount3:
		if len(data) != 1+ed25519.PublicKeySize {
			return solana.InstructionErrorInvalidInstructionData
		}
		owner := make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(owner, data[1:])
		return p.initializeAccount(ic, owner)
	case token.CommandMintTo:
		if len(data) != 1+8 {
			return solana.InstructionErrorInvalidInstructionData
		}
		return p.mintTo(ic, binary.LittleEndian.Uint64(data[1:]))
	case token.CommandTransfer:
		if len(data) != 1+8 {
			return solana.InstructionErrorInvalidInstructionData
		}
		return p.transfer(ic, binary.LittleEndian.Uint64(data[1:]), nil)
	case token.CommandTransferChecked:
		if len(data) != 1+8+1 {
			return solana.InstructionErrorInvalidInstructionData
		}
		decimals := data[9]
		return p.transfer(ic, binary.LittleEndian.Uint64(data[1:]), &decimals)
	case token.CommandCloseAccount:
		if len(data) != 1 {
			return solana.InstructionErrorInvalidInstructionData
		}
		return p.closeAccount(ic)
	default:
		return solana.InstructionErrorInvalidInstructionData
	}
}

func (p *tokenProgram) initializeMint(ic *InvokeContext, data []byte) error {
	minSize := 1 + 1 + ed25519.PublicKeySize + 1
	if len(data) != minSize && len(data) != minSize+ed25519.PublicKeySize {
		return solana.InstructionErrorInvalidInstructionData
	}

	info, err := ic.Account(0)
	if err != nil {
		return err
	}
	if !bytes.Equal(info.Owner, token.ProgramKey) {
		return solana.InstructionErrorIncorrectProgramID
	}
	if len(info.Data) != token.MintSize {
		return solana.InstructionErrorInvalidAccountData
	}

	var existing token.Mint
	existing.Unmarshal(info.Data)
	if existing.IsInitialized {
		return token.ErrorAlreadyInUse
	}
	if !ic.Rent().IsExempt(info.Lamports, len(info.Data)) {
		return token.ErrorNotRentExempt
	}

	mint := token.Mint{
		MintAuthority: make(ed25519.PublicKey, ed25519.PublicKeySize),
		Decimals:      data[1],
		IsInitialized: true,
	}
	copy(mint.MintAuthority, data[2:])

	if data[2+ed25519.PublicKeySize] == 1 {
		if len(data) != minSize+ed25519.PublicKeySize {
			return solana.InstructionErrorInvalidInstructionData
		}
		mint.FreezeAuthority = make(ed25519.PublicKey, ed25519.PublicKeySize)
		copy(mint.FreezeAuthority, data[minSize:])
	}

	info.Data = mint.Marshal()
	return nil
}

func (p *tokenProgram) initializeAccount(ic *InvokeContext, owner ed25519.PublicKey) error {
	info, err := ic.Account(0)
	if err != nil {
		return err
	}
	mintInfo, err := ic.Account(1)
	if err != nil {
		return err
	}

	if !bytes.Equal(info.Owner, token.ProgramKey) {
		return solana.InstructionErrorIncorrectProgramID
	}
	if len(info.Data) != token.AccountSize {
		return solana.InstructionErrorInvalidAccountData
	}

	var existing token.Account
	existing.Unmarshal(info.Data)
	if existing.State != token.AccountStateUninitialized {
		return token.ErrorAlreadyInUse
	}
	if !ic.Rent().IsExempt(info.Lamports, len(info.Data)) {
		return token.ErrorNotRentExempt
	}

	if _, err := loadMint(mintInfo); err != nil {
		return token.ErrorInvalidMint
	}

	account := token.Account{
		Mint:  mintInfo.Key,
		Owner: owner,
		State: token.AccountStateInitialized,
	}
	info.Data = account.Marshal()
	return nil
}

func (p *tokenProgram) mintTo(ic *InvokeContext, amount uint64) error {
	mintInfo, err := ic.Account(0)
	if err != nil {
		return err
	}
	destinationInfo, err := ic.Account(1)
	if err != nil {
		return err
	}
	authority, err := ic.Account(2)
	if err != nil {
		return err
	}

	destination, err := loadTokenAccount(destinationInfo)
	if err != nil {
		return err
	}
	if destination.State == token.AccountStateFrozen {
		return token.ErrorAccountFrozen
	}
	if !bytes.Equal(destination.Mint, mintInfo.Key) {
		return token.ErrorMintMismatch
	}

	mint, err := loadMint(mintInfo)
	if err != nil {
		return err
	}
	if len(mint.MintAuthority) == 0 {
		return token.ErrorFixedSupply
	}
	if !bytes.Equal(mint.MintAuthority, authority.Key) {
		return token.ErrorOwnerMismatch
	}
	if !authority.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	if mint.Supply > math.MaxUint64-amount || destination.Amount > math.MaxUint64-amount {
		return token.ErrorOverflow
	}
	mint.Supply += amount
	destination.Amount += amount

	mintInfo.Data = mint.Marshal()
	destinationInfo.Data = destination.Marshal()
	return nil
}

// transfer moves tokens between accounts of the same mint. When decimals is
// set, the mint is passed as the second account and both are checked.
func (p *tokenProgram) transfer(ic *InvokeContext, amount uint64, decimals *byte) error {
	sourceIndex, mintIndex, destinationIndex, authorityIndex := 0, -1, 1, 2
	if decimals != nil {
		sourceIndex, mintIndex, destinationIndex, authorityIndex = 0, 1, 2, 3
	}

	sourceInfo, err := ic.Account(sourceIndex)
	if err != nil {
		return err
	}
	destinationInfo, err := ic.Account(destinationIndex)
	if err != nil {
		return err
	}
	authority, err := ic.Account(authorityIndex)
	if err != nil {
		return err
	}

	source, err := loadTokenAccount(sourceInfo)
	if err != nil {
		return err
	}
	destination, err := loadTokenAccount(destinationInfo)
	if err != nil {
		return err
	}

	if source.State == token.AccountStateFrozen || destination.State == token.AccountStateFrozen {
		return token.ErrorAccountFrozen
	}
	if !bytes.Equal(source.Mint, destination.Mint) {
		return token.ErrorMintMismatch
	}

	if decimals != nil {
		mintInfo, err := ic.Account(mintIndex)
		if err != nil {
			return err
		}
		if !bytes.Equal(mintInfo.Key, source.Mint) {
			return token.ErrorMintMismatch
		}

		mint, err := loadMint(mintInfo)
		if err != nil {
			return err
		}
		if mint.Decimals != *decimals {
			return token.ErrorMintDecimalsMismatch
		}
	}

	if !bytes.Equal(source.Owner, authority.Key) {
		return token.ErrorOwnerMismatch
	}
	if !authority.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	if source.Amount < amount {
		ic.Log().Debug("token transfer: insufficient funds")
		return solana.InstructionErrorInsufficientFunds
	}

	// A self transfer only validates.
	if bytes.Equal(sourceInfo.Key, destinationInfo.Key) {
		return nil
	}

	if destination.Amount > math.MaxUint64-amount {
		return token.ErrorOverflow
	}
	source.Amount -= amount
	destination.Amount += amount

	sourceInfo.Data = source.Marshal()
	destinationInfo.Data = destination.Marshal()
	return nil
}

func (p *tokenProgram) closeAccount(ic *InvokeContext) error {
	info, err := ic.Account(0)
	if err != nil {
		return err
	}
	destination, err := ic.Account(1)
	if err != nil {
		return err
	}
	authority, err := ic.Account(2)
	if err != nil {
		return err
	}

	if bytes.Equal(info.Key, destination.Key) {
		return solana.InstructionErrorInvalidAccountData
	}

	account, err := loadTokenAccount(info)
	if err != nil {
		return err
	}
	if account.Amount != 0 {
		return token.ErrorNonNativeHasBalance
	}

	closeAuthority := account.Owner
	if len(account.CloseAuthority) > 0 {
		closeAuthority = account.CloseAuthority
	}
	if !bytes.Equal(closeAuthority, authority.Key) {
		return token.ErrorOwnerMismatch
	}
	if !authority.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	destination.Lamports += info.Lamports
	info.Lamports = 0
	info.Data = nil
	info.Owner = system.ProgramKey

	return nil
}

func loadTokenAccount(info *AccountInfo) (*token.Account, error) {
	if !bytes.Equal(info.Owner, token.ProgramKey) {
		return nil, solana.InstructionErrorIncorrectProgramID
	}

	var account token.Account
	if !account.Unmarshal(info.Data) {
		return nil, solana.InstructionErrorInvalidAccountData
	}
	if account.State == token.AccountStateUninitialized {
		return nil, token.ErrorUninitializedState
	}

	return &account, nil
}

func loadMint(info *AccountInfo) (*token.Mint, error) {
	if !bytes.Equal(info.Owner, token.ProgramKey) {
		return nil, solana.InstructionErrorIncorrectProgramID
	}

	var mint token.Mint
	if !mint.Unmarshal(info.Data) {
		return nil, solana.InstructionErrorInvalidAccountData
	}
	if !mint.IsInitialized {
		return nil, token.ErrorUninitializedState
	}

	return &mint, nil
}

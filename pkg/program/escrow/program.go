// Package escrow implements the escrow program. A maker locks a deposit of
// one mint in a holding account controlled by the program, and any taker who
// pays the requested amount of a second mint receives the whole deposit in
// the same instruction.
package escrow

import (
	"bytes"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"

	"github.com/code-payments/code-custody/pkg/ledger"
	"github.com/code-payments/code-custody/pkg/program"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/escrow"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/token"
)

type escrowProgram struct {
	id ed25519.PublicKey
}

// NewProgram returns the escrow program deployed at id.
func NewProgram(id ed25519.PublicKey) ledger.Program {
	return &escrowProgram{
		id: id,
	}
}

func (p *escrowProgram) Process(ic *ledger.InvokeContext) error {
	instructionType, err := escrow.GetInstructionType(ic.Data())
	if err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	log := ic.Log().WithField("instruction", instructionType.String())

	switch instructionType {
	case escrow.InstructionTypeMake:
		var args escrow.MakeInstructionArgs
		if err := args.Unmarshal(ic.Data()); err != nil {
			return solana.InstructionErrorInvalidInstructionData
		}

		req, err := newMakeRequest(ic, p.id, &args)
		if err != nil {
			log.WithError(err).Debug("make rejected")
			return err
		}
		return req.make()
	case escrow.InstructionTypeTake:
		if len(ic.Data()) != solana.DiscriminatorSize {
			return solana.InstructionErrorInvalidInstructionData
		}

		req, err := newTakeRequest(ic, p.id)
		if err != nil {
			log.WithError(err).Debug("take rejected")
			return err
		}
		return req.take()
	case escrow.InstructionTypeRefund:
		if len(ic.Data()) != solana.DiscriminatorSize {
			return solana.InstructionErrorInvalidInstructionData
		}

		req, err := newRefundRequest(ic, p.id)
		if err != nil {
			log.WithError(err).Debug("refund rejected")
			return err
		}
		return req.refund()
	default:
		return solana.InstructionErrorInvalidInstructionData
	}
}

// requirePrograms checks the trailing program accounts every escrow
// instruction carries.
func requirePrograms(accounts []*ledger.AccountInfo) error {
	n := len(accounts)
	if err := program.RequireProgram(accounts[n-3], token.AssociatedTokenAccountProgramKey); err != nil {
		return err
	}
	if err := program.RequireProgram(accounts[n-2], token.ProgramKey); err != nil {
		return err
	}
	return program.RequireProgram(accounts[n-1], system.ProgramKey)
}

// requireAssociated checks the account is the associated token account of
// wallet for mint.
func requireAssociated(info *ledger.AccountInfo, wallet, mint ed25519.PublicKey) error {
	address, err := token.GetAssociatedAccount(wallet, mint)
	if err != nil {
		return program.ErrAddressMismatch
	}
	return program.RequireAddress(info, address)
}

// createAssociated creates the associated token account of wallet for mint
// unless it already exists. Only the accounts the associated token program
// reads are forwarded.
func createAssociated(ic *ledger.InvokeContext, funder, wallet, mint ed25519.PublicKey) error {
	ix, _, err := token.CreateAssociatedTokenAccountIdempotent(funder, wallet, mint)
	if err != nil {
		return err
	}
	ix.Accounts = ix.Accounts[:6]

	return ic.Invoke(ix)
}

// offer is an existing escrow record, checked against the address it was
// derived at, along with its holding account.
type offer struct {
	ic     *ledger.InvokeContext
	record escrow.EscrowAccount

	escrow *ledger.AccountInfo
	vault  *ledger.AccountInfo
	mintA  *ledger.AccountInfo

	decimalsA byte
}

func loadOffer(ic *ledger.InvokeContext, id ed25519.PublicKey, escrowInfo *ledger.AccountInfo) (*offer, error) {
	var record escrow.EscrowAccount
	if !program.IsOwnedBy(escrowInfo, id) || record.Unmarshal(escrowInfo.Data) != nil {
		return nil, program.ErrRecordNotFound
	}

	return &offer{
		ic:     ic,
		record: record,
		escrow: escrowInfo,
	}, nil
}

// verify checks the record lives at its derived address and that the
// provided mint and holding account are the ones it was made with.
func (o *offer) verify(id ed25519.PublicKey, mintA, vault *ledger.AccountInfo) error {
	err := program.RequireDerived(o.escrow, id, o.seeds()...)
	if err != nil {
		return err
	}

	if err := program.RequireAddress(mintA, o.record.MintA); err != nil {
		return err
	}
	mint, err := program.LoadMint(mintA)
	if err != nil {
		return err
	}

	if err := requireAssociated(vault, o.escrow.Key, o.record.MintA); err != nil {
		return err
	}
	if _, err := program.LoadTokenAccount(vault, o.record.MintA); err != nil {
		return err
	}

	o.mintA = mintA
	o.vault = vault
	o.decimalsA = mint.Decimals
	return nil
}

func (o *offer) seeds() [][]byte {
	return [][]byte{
		escrow.EscrowPrefix,
		o.record.Maker,
		escrow.SeedBytes(o.record.Seed),
		{o.record.Bump},
	}
}

// settle releases the full holding balance to destination, then closes the
// holding account and the record, returning their rent to maker.
func (o *offer) settle(destination, maker *ledger.AccountInfo) error {
	vault, err := program.LoadTokenAccount(o.vault, o.record.MintA)
	if err != nil {
		return err
	}

	if vault.Amount > 0 {
		authority, err := o.ic.Authorize(o.seeds()...)
		if err != nil {
			return err
		}

		err = o.ic.InvokeSigned(
			token.TransferChecked(o.vault.Key, o.mintA.Key, destination.Key, o.escrow.Key, vault.Amount, o.decimalsA),
			authority,
		)
		if err != nil {
			return err
		}
	}

	authority, err := o.ic.Authorize(o.seeds()...)
	if err != nil {
		return err
	}

	err = o.ic.InvokeSigned(token.CloseAccount(o.vault.Key, maker.Key, o.escrow.Key), authority)
	if err != nil {
		return err
	}

	program.CloseAccount(o.escrow, maker)
	return nil
}

// Account layout:
//  0. [writable, signer] maker
//  1. [] mint a
//  2. [] mint b
//  3. [writable] maker token account for mint a
//  4. [writable] escrow
//  5. [writable] vault
//  6. [] associated token program
//  7. [] token program
//  8. [] system program
type makeRequest struct {
	ic   *ledger.InvokeContext
	args *escrow.MakeInstructionArgs

	maker     *ledger.AccountInfo
	mintA     *ledger.AccountInfo
	makerAtaA *ledger.AccountInfo
	escrow    *ledger.AccountInfo
	vault     *ledger.AccountInfo

	record    escrow.EscrowAccount
	decimalsA byte
}

func newMakeRequest(ic *ledger.InvokeContext, id ed25519.PublicKey, args *escrow.MakeInstructionArgs) (*makeRequest, error) {
	accounts := ic.Accounts()
	if len(accounts) < 9 {
		return nil, solana.InstructionErrorNotEnoughAccountKeys
	}
	if err := requirePrograms(accounts[:9]); err != nil {
		return nil, err
	}

	r := &makeRequest{
		ic:        ic,
		args:      args,
		maker:     accounts[0],
		mintA:     accounts[1],
		makerAtaA: accounts[3],
		escrow:    accounts[4],
		vault:     accounts[5],
	}
	mintB := accounts[2]

	if err := program.RequireSigner(r.maker); err != nil {
		return nil, err
	}

	if args.Deposit == 0 || args.Receive == 0 {
		return nil, program.ErrInvalidAmount
	}

	mint, err := program.LoadMint(r.mintA)
	if err != nil {
		return nil, err
	}
	if _, err := program.LoadMint(mintB); err != nil {
		return nil, err
	}
	if bytes.Equal(r.mintA.Key, mintB.Key) {
		return nil, program.ErrInvalidMint
	}

	if err := requireAssociated(r.makerAtaA, r.maker.Key, r.mintA.Key); err != nil {
		return nil, err
	}
	if _, err := program.LoadTokenAccount(r.makerAtaA, r.mintA.Key); err != nil {
		return nil, err
	}

	bump, err := program.RequireFound(r.escrow, id, escrow.EscrowPrefix, r.maker.Key, escrow.SeedBytes(args.Seed))
	if err != nil {
		return nil, err
	}
	if err := requireAssociated(r.vault, r.escrow.Key, r.mintA.Key); err != nil {
		return nil, err
	}

	if !program.IsUnallocated(r.escrow) {
		return nil, program.ErrRecordAlreadyExists
	}

	r.decimalsA = mint.Decimals
	r.record = escrow.EscrowAccount{
		Seed:    args.Seed,
		Maker:   r.maker.Key,
		MintA:   r.mintA.Key,
		MintB:   mintB.Key,
		Receive: args.Receive,
		Bump:    bump,
	}
	return r, nil
}

func (r *makeRequest) make() error {
	err := program.CreateAccount(
		r.ic,
		r.maker,
		r.escrow,
		escrow.EscrowAccountSize,
		escrow.EscrowPrefix,
		r.maker.Key,
		escrow.SeedBytes(r.args.Seed),
		[]byte{r.record.Bump},
	)
	if err != nil {
		return err
	}

	if err := createAssociated(r.ic, r.maker.Key, r.escrow.Key, r.mintA.Key); err != nil {
		return err
	}

	err = r.ic.Invoke(token.TransferChecked(r.makerAtaA.Key, r.mintA.Key, r.vault.Key, r.maker.Key, r.args.Deposit, r.decimalsA))
	if err != nil {
		return err
	}

	r.escrow.Data = r.record.Marshal()

	r.ic.Log().WithField("escrow", base58.Encode(r.escrow.Key)).Debug("escrow made")
	return nil
}

// Account layout:
//  0. [writable, signer] taker
//  1. [writable] maker
//  2. [] mint a
//  3. [] mint b
//  4. [writable] taker token account for mint a
//  5. [writable] taker token account for mint b
//  6. [writable] maker token account for mint b
//  7. [writable] escrow
//  8. [writable] vault
//  9. [] associated token program
// 10. [] token program
// 11. [] system program
type takeRequest struct {
	*offer

	taker     *ledger.AccountInfo
	maker     *ledger.AccountInfo
	mintB     *ledger.AccountInfo
	takerAtaA *ledger.AccountInfo
	takerAtaB *ledger.AccountInfo
	makerAtaB *ledger.AccountInfo

	decimalsB byte
}

func newTakeRequest(ic *ledger.InvokeContext, id ed25519.PublicKey) (*takeRequest, error) {
	accounts := ic.Accounts()
	if len(accounts) < 12 {
		return nil, solana.InstructionErrorNotEnoughAccountKeys
	}
	if err := requirePrograms(accounts[:12]); err != nil {
		return nil, err
	}

	r := &takeRequest{
		taker:     accounts[0],
		maker:     accounts[1],
		mintB:     accounts[3],
		takerAtaA: accounts[4],
		takerAtaB: accounts[5],
		makerAtaB: accounts[6],
	}

	if err := program.RequireSigner(r.taker); err != nil {
		return nil, err
	}

	o, err := loadOffer(ic, id, accounts[7])
	if err != nil {
		return nil, err
	}
	if err := o.verify(id, accounts[2], accounts[8]); err != nil {
		return nil, err
	}
	r.offer = o

	if err := program.RequireAddress(r.maker, o.record.Maker); err != nil {
		return nil, err
	}
	if err := program.RequireAddress(r.mintB, o.record.MintB); err != nil {
		return nil, err
	}
	mint, err := program.LoadMint(r.mintB)
	if err != nil {
		return nil, err
	}
	r.decimalsB = mint.Decimals

	if err := requireAssociated(r.takerAtaA, r.taker.Key, o.record.MintA); err != nil {
		return nil, err
	}
	if err := requireAssociated(r.takerAtaB, r.taker.Key, o.record.MintB); err != nil {
		return nil, err
	}
	if err := requireAssociated(r.makerAtaB, o.record.Maker, o.record.MintB); err != nil {
		return nil, err
	}
	if _, err := program.LoadTokenAccount(r.takerAtaB, o.record.MintB); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *takeRequest) take() error {
	if err := createAssociated(r.ic, r.taker.Key, r.taker.Key, r.mintA.Key); err != nil {
		return err
	}
	if err := createAssociated(r.ic, r.taker.Key, r.maker.Key, r.mintB.Key); err != nil {
		return err
	}

	// The taker pays before the deposit is released.
	err := r.ic.Invoke(token.TransferChecked(r.takerAtaB.Key, r.mintB.Key, r.makerAtaB.Key, r.taker.Key, r.record.Receive, r.decimalsB))
	if err != nil {
		return err
	}

	if err := r.settle(r.takerAtaA, r.maker); err != nil {
		return err
	}

	r.ic.Log().WithField("escrow", base58.Encode(r.escrow.Key)).Debug("escrow taken")
	return nil
}

// Account layout:
//  0. [writable, signer] maker
//  1. [] mint a
//  2. [writable] maker token account for mint a
//  3. [writable] escrow
//  4. [writable] vault
//  5. [] associated token program
//  6. [] token program
//  7. [] system program
type refundRequest struct {
	*offer

	maker     *ledger.AccountInfo
	makerAtaA *ledger.AccountInfo
}

func newRefundRequest(ic *ledger.InvokeContext, id ed25519.PublicKey) (*refundRequest, error) {
	accounts := ic.Accounts()
	if len(accounts) < 8 {
		return nil, solana.InstructionErrorNotEnoughAccountKeys
	}
	if err := requirePrograms(accounts[:8]); err != nil {
		return nil, err
	}

	r := &refundRequest{
		maker:     accounts[0],
		makerAtaA: accounts[2],
	}

	o, err := loadOffer(ic, id, accounts[3])
	if err != nil {
		return nil, err
	}

	if !r.maker.IsSigner || !bytes.Equal(r.maker.Key, o.record.Maker) {
		return nil, program.ErrUnauthorizedCaller
	}

	if err := o.verify(id, accounts[1], accounts[4]); err != nil {
		return nil, err
	}
	r.offer = o

	if err := requireAssociated(r.makerAtaA, o.record.Maker, o.record.MintA); err != nil {
		return nil, err
	}

	return r, nil
}

func (r *refundRequest) refund() error {
	if err := createAssociated(r.ic, r.maker.Key, r.maker.Key, r.mintA.Key); err != nil {
		return err
	}

	if err := r.settle(r.makerAtaA, r.maker); err != nil {
		return err
	}

	r.ic.Log().WithField("escrow", base58.Encode(r.escrow.Key)).Debug("escrow refunded")
	return nil
}

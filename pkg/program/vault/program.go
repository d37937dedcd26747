// Package vault implements the custodial vault program. Each owner holds one
// VaultState record and one custodial balance, both at addresses derived from
// the owner and controlled only by the program.
package vault

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"

	"github.com/code-payments/code-custody/pkg/ledger"
	"github.com/code-payments/code-custody/pkg/program"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/vault"
)

type vaultProgram struct {
	id ed25519.PublicKey
}

// NewProgram returns the vault program deployed at id.
func NewProgram(id ed25519.PublicKey) ledger.Program {
	return &vaultProgram{
		id: id,
	}
}

func (p *vaultProgram) Process(ic *ledger.InvokeContext) error {
	instructionType, err := vault.GetInstructionType(ic.Data())
	if err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	log := ic.Log().WithField("instruction", instructionType.String())

	switch instructionType {
	case vault.InstructionTypeInitialize:
		req, err := newInitializeRequest(ic, p.id)
		if err != nil {
			log.WithError(err).Debug("initialize rejected")
			return err
		}
		return req.initialize()
	case vault.InstructionTypeDeposit, vault.InstructionTypeWithdraw:
		var args vault.AmountInstructionArgs
		if err := args.Unmarshal(ic.Data()); err != nil {
			return solana.InstructionErrorInvalidInstructionData
		}
		if args.Amount == 0 {
			return program.ErrInvalidAmount
		}

		req, err := newRequest(ic, p.id)
		if err != nil {
			log.WithError(err).Debug("request rejected")
			return err
		}

		if instructionType == vault.InstructionTypeDeposit {
			return req.deposit(args.Amount)
		}
		return req.withdraw(args.Amount)
	case vault.InstructionTypeClose:
		req, err := newRequest(ic, p.id)
		if err != nil {
			log.WithError(err).Debug("close rejected")
			return err
		}
		return req.close()
	default:
		return solana.InstructionErrorInvalidInstructionData
	}
}

type accounts struct {
	owner *ledger.AccountInfo
	vault *ledger.AccountInfo
	state *ledger.AccountInfo
}

// Account layout:
//  0. [writable, signer] owner
//  1. [writable] vault
//  2. [writable] vault state
//  3. [] system program
func loadAccounts(ic *ledger.InvokeContext) (*accounts, error) {
	if len(ic.Accounts()) < 4 {
		return nil, solana.InstructionErrorNotEnoughAccountKeys
	}

	a := &accounts{
		owner: ic.Accounts()[0],
		vault: ic.Accounts()[1],
		state: ic.Accounts()[2],
	}

	if err := program.RequireSigner(a.owner); err != nil {
		return nil, err
	}
	if err := program.RequireProgram(ic.Accounts()[3], system.ProgramKey); err != nil {
		return nil, err
	}

	return a, nil
}

type initializeRequest struct {
	ic *ledger.InvokeContext
	*accounts

	record vault.VaultStateAccount
}

func newInitializeRequest(ic *ledger.InvokeContext, id ed25519.PublicKey) (*initializeRequest, error) {
	a, err := loadAccounts(ic)
	if err != nil {
		return nil, err
	}

	stateBump, err := program.RequireFound(a.state, id, vault.StatePrefix, a.owner.Key)
	if err != nil {
		return nil, err
	}
	vaultBump, err := program.RequireFound(a.vault, id, vault.VaultPrefix, a.state.Key)
	if err != nil {
		return nil, err
	}

	if !program.IsUnallocated(a.state) {
		return nil, program.ErrRecordAlreadyExists
	}

	return &initializeRequest{
		ic:       ic,
		accounts: a,
		record: vault.VaultStateAccount{
			VaultBump: vaultBump,
			StateBump: stateBump,
		},
	}, nil
}

func (r *initializeRequest) initialize() error {
	err := program.CreateAccount(
		r.ic,
		r.owner,
		r.state,
		vault.VaultStateAccountSize,
		vault.StatePrefix,
		r.owner.Key,
		[]byte{r.record.StateBump},
	)
	if err != nil {
		return err
	}

	r.state.Data = r.record.Marshal()

	r.ic.Log().WithField("owner", base58.Encode(r.owner.Key)).Debug("vault initialized")
	return nil
}

// request is a vault operation on an existing record whose accounts were all
// checked against the addresses re-derived from the stored bumps.
type request struct {
	ic *ledger.InvokeContext
	*accounts

	record vault.VaultStateAccount
}

func newRequest(ic *ledger.InvokeContext, id ed25519.PublicKey) (*request, error) {
	a, err := loadAccounts(ic)
	if err != nil {
		return nil, err
	}

	var record vault.VaultStateAccount
	if !program.IsOwnedBy(a.state, id) || record.Unmarshal(a.state.Data) != nil {
		return nil, program.ErrRecordNotFound
	}

	err = program.RequireDerived(a.state, id, vault.StatePrefix, a.owner.Key, []byte{record.StateBump})
	if err != nil {
		return nil, err
	}
	err = program.RequireDerived(a.vault, id, vault.VaultPrefix, a.state.Key, []byte{record.VaultBump})
	if err != nil {
		return nil, err
	}

	return &request{
		ic:       ic,
		accounts: a,
		record:   record,
	}, nil
}

func (r *request) deposit(amount uint64) error {
	return r.ic.Invoke(system.Transfer(r.owner.Key, r.vault.Key, amount))
}

func (r *request) withdraw(amount uint64) error {
	if r.vault.Lamports < amount {
		return program.ErrInsufficientBalance
	}
	return r.release(amount)
}

func (r *request) close() error {
	if r.vault.Lamports > 0 {
		if err := r.release(r.vault.Lamports); err != nil {
			return err
		}
	}

	program.CloseAccount(r.state, r.owner)

	r.ic.Log().WithField("owner", base58.Encode(r.owner.Key)).Debug("vault closed")
	return nil
}

// release moves lamports from the custodial balance back to the owner.
func (r *request) release(amount uint64) error {
	authority, err := r.ic.Authorize(vault.VaultPrefix, r.state.Key, []byte{r.record.VaultBump})
	if err != nil {
		return err
	}

	return r.ic.InvokeSigned(system.Transfer(r.vault.Key, r.owner.Key, amount), authority)
}

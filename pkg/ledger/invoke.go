package ledger

import (
	"bytes"
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
)

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/program-runtime/src/compute_budget.rs#L113
const maxInvokeStackHeight = 5

// Program executes instructions addressed to its id.
type Program interface {
	Process(ic *InvokeContext) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ic *InvokeContext) error

func (f ProgramFunc) Process(ic *InvokeContext) error {
	return f(ic)
}

// InvokeContext is the view an executing program has of its instruction:
// the accounts it was given, the instruction data, and the ability to call
// other programs.
type InvokeContext struct {
	tx *transactionContext

	id       uint64
	program  ed25519.PublicKey
	data     []byte
	accounts []*AccountInfo

	// Snapshot of each distinct account at the start of the current segment,
	// keyed by message index. Segments are split by cross-program calls.
	pre      map[int]*Account
	writable map[int]bool
	signers  map[string]bool

	log *logrus.Entry
}

func newInvokeContext(tx *transactionContext, program ed25519.PublicKey, data []byte, accounts []*AccountInfo) *InvokeContext {
	tx.invocations++

	ic := &InvokeContext{
		tx:       tx,
		id:       tx.invocations,
		program:  program,
		data:     data,
		accounts: accounts,
		writable: make(map[int]bool),
		signers:  make(map[string]bool),
		log: tx.log.WithFields(logrus.Fields{
			"program":    base58.Encode(program),
			"invocation": tx.invocations,
		}),
	}

	for _, info := range accounts {
		if info.IsWritable {
			ic.writable[info.index] = true
		}
		if info.IsSigner {
			ic.signers[string(info.Key)] = true
		}
	}

	ic.snapshot()
	return ic
}

// Context returns the context of the transaction being processed.
func (ic *InvokeContext) Context() context.Context {
	return ic.tx.ctx
}

// Log returns a logger scoped to this invocation.
func (ic *InvokeContext) Log() *logrus.Entry {
	return ic.log
}

// ProgramID returns the id of the executing program.
func (ic *InvokeContext) ProgramID() ed25519.PublicKey {
	return ic.program
}

// Data returns the instruction data.
func (ic *InvokeContext) Data() []byte {
	return ic.data
}

// Accounts returns the instruction accounts in order.
func (ic *InvokeContext) Accounts() []*AccountInfo {
	return ic.accounts
}

// Account returns the instruction account at index, or NotEnoughAccountKeys.
func (ic *InvokeContext) Account(index int) (*AccountInfo, error) {
	if index < 0 || index >= len(ic.accounts) {
		return nil, solana.InstructionErrorNotEnoughAccountKeys
	}
	return ic.accounts[index], nil
}

// Rent returns the rent parameters of the ledger.
func (ic *InvokeContext) Rent() Rent {
	return ic.tx.rent
}

// Authorize mints a delegated authority for the address derived from seeds
// under the executing program. The last seed must be the bump.
func (ic *InvokeContext) Authorize(seeds ...[]byte) (*DelegatedAuthority, error) {
	address, err := solana.CreateProgramAddress(ic.program, seeds...)
	switch err {
	case nil:
	case solana.ErrMaxSeedLengthExceeded, solana.ErrTooManySeeds:
		return nil, solana.InstructionErrorMaxSeedLengthExceeded
	default:
		return nil, solana.InstructionErrorInvalidSeeds
	}

	return &DelegatedAuthority{
		address:    address,
		invocation: ic.id,
	}, nil
}

// Invoke calls another program, forwarding only signer privileges the
// current instruction already holds.
func (ic *InvokeContext) Invoke(ix solana.Instruction) error {
	return ic.InvokeSigned(ix)
}

// InvokeSigned calls another program, additionally treating the address of
// every provided authority as a signer. Each authority is consumed.
func (ic *InvokeContext) InvokeSigned(ix solana.Instruction, authorities ...*DelegatedAuthority) error {
	if len(ic.tx.stack) >= maxInvokeStackHeight {
		return solana.InstructionErrorCallDepth
	}

	signers := make(map[string]bool)
	for _, authority := range authorities {
		if authority == nil {
			continue
		}
		if authority.consumed {
			return ErrAuthorityConsumed
		}
		if authority.invocation != ic.id {
			return ErrAuthorityInvocationMismatch
		}

		authority.consumed = true
		signers[string(authority.address)] = true
	}

	if ic.find(ix.Program) == nil {
		ic.log.WithField("callee", base58.Encode(ix.Program)).Debug("callee program not passed to caller")
		return solana.InstructionErrorMissingAccount
	}

	for _, caller := range ic.tx.stack {
		if bytes.Equal(caller, ix.Program) && !bytes.Equal(caller, ic.program) {
			return solana.InstructionErrorReentrancyNotAllowed
		}
	}

	accounts := make([]*AccountInfo, len(ix.Accounts))
	for i, meta := range ix.Accounts {
		info := ic.find(meta.PublicKey)
		if info == nil {
			ic.log.WithField("account", base58.Encode(meta.PublicKey)).Debug("callee account not passed to caller")
			return solana.InstructionErrorMissingAccount
		}

		if meta.IsWritable && !ic.writable[info.index] {
			ic.log.WithField("account", base58.Encode(meta.PublicKey)).Debug("writable privilege escalated")
			return solana.InstructionErrorPrivilegeEscalation
		}
		if meta.IsSigner && !ic.signers[string(meta.PublicKey)] && !signers[string(meta.PublicKey)] {
			ic.log.WithField("account", base58.Encode(meta.PublicKey)).Debug("signer privilege escalated")
			return solana.InstructionErrorPrivilegeEscalation
		}

		accounts[i] = &AccountInfo{
			Key:        info.Key,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
			Account:    info.Account,
			index:      info.index,
		}
	}

	// Changes made so far are attributed to the caller.
	if err := ic.verify(); err != nil {
		return err
	}

	if err := ic.tx.process(ix.Program, ix.Data, accounts); err != nil {
		return err
	}

	// Changes made by the callee were verified against the callee.
	ic.snapshot()
	return nil
}

// CreateDerivedAccount allocates size rent exempt bytes owned by owner at the
// address derived from seeds under the executing program. Lamports already
// sent to the address are kept and payer covers the rest, so funding an
// address ahead of time cannot block its creation.
//
// Reference: https://github.com/solana-labs/solana-program-library/blob/0639953c7dd0f5228c3ceda3ba68fece3b46ff1d/associated-token-account/program/src/tools/account.rs#L18
func (ic *InvokeContext) CreateDerivedAccount(payer, address *AccountInfo, owner ed25519.PublicKey, size int, seeds ...[]byte) error {
	required := ic.Rent().MinimumBalance(size)

	if address.Lamports == 0 {
		authority, err := ic.Authorize(seeds...)
		if err != nil {
			return err
		}
		return ic.InvokeSigned(system.CreateAccount(payer.Key, address.Key, owner, required, uint64(size)), authority)
	}

	if address.Lamports < required {
		if err := ic.Invoke(system.Transfer(payer.Key, address.Key, required-address.Lamports)); err != nil {
			return err
		}
	}

	allocate, err := ic.Authorize(seeds...)
	if err != nil {
		return err
	}
	if err := ic.InvokeSigned(system.Allocate(address.Key, uint64(size)), allocate); err != nil {
		return err
	}

	assign, err := ic.Authorize(seeds...)
	if err != nil {
		return err
	}
	return ic.InvokeSigned(system.Assign(address.Key, owner), assign)
}

func (ic *InvokeContext) find(key ed25519.PublicKey) *AccountInfo {
	for _, info := range ic.accounts {
		if bytes.Equal(info.Key, key) {
			return info
		}
	}
	return nil
}

func (ic *InvokeContext) snapshot() {
	ic.pre = make(map[int]*Account, len(ic.accounts))
	for _, info := range ic.accounts {
		if _, ok := ic.pre[info.index]; !ok {
			ic.pre[info.index] = info.Account.Clone()
		}
	}
}

// verify checks every change made in the current segment was permitted for
// the executing program, and that lamports were neither minted nor burned.
func (ic *InvokeContext) verify() error {
	var preTotal, postTotal uint128
	for index, pre := range ic.pre {
		post := ic.tx.accounts[index]

		if err := verifyAccount(ic.program, pre, post, ic.writable[index]); err != nil {
			ic.log.WithError(err).WithField("account", base58.Encode(ic.tx.keys[index])).Debug("account change rejected")
			return err
		}

		preTotal = preTotal.add(pre.Lamports)
		postTotal = postTotal.add(post.Lamports)
	}

	if preTotal != postTotal {
		return solana.InstructionErrorUnbalancedInstruction
	}
	return nil
}

// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/program-runtime/src/pre_account.rs#L42
func verifyAccount(program ed25519.PublicKey, pre, post *Account, writable bool) error {
	isOwner := bytes.Equal(pre.Owner, program)

	if !bytes.Equal(pre.Owner, post.Owner) {
		if !writable || pre.Executable || !isOwner || !isZeroed(post.Data) {
			return solana.InstructionErrorModifiedProgramID
		}
	}

	if pre.Lamports != post.Lamports {
		if !writable {
			return solana.InstructionErrorReadonlyLamportChange
		}
		if pre.Executable {
			return solana.InstructionErrorExecutableLamportChange
		}
	}
	if post.Lamports < pre.Lamports && !isOwner {
		return solana.InstructionErrorExternalAccountLamportSpend
	}

	if len(pre.Data) != len(post.Data) && !(writable && isOwner) {
		return solana.InstructionErrorAccountDataSizeChanged
	}

	if !bytes.Equal(pre.Data, post.Data) {
		if pre.Executable {
			return solana.InstructionErrorExecutableDataModified
		}
		if !writable {
			return solana.InstructionErrorReadonlyDataModified
		}
		if !isOwner {
			return solana.InstructionErrorExternalAccountDataModified
		}
	}

	if pre.Executable != post.Executable {
		return solana.InstructionErrorExecutableModified
	}

	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

type uint128 struct {
	hi, lo uint64
}

func (u uint128) add(v uint64) uint128 {
	lo := u.lo + v
	hi := u.hi
	if lo < u.lo {
		hi++
	}
	return uint128{hi: hi, lo: lo}
}

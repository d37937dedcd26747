package ledger

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-custody/pkg/ledger/data/account"
	"github.com/code-payments/code-custody/pkg/solana"
)

// transactionContext is the working set of a single transaction. Programs
// mutate accounts in place; nothing is persisted until the bank commits the
// changes.
type transactionContext struct {
	ctx      context.Context
	log      *logrus.Entry
	rent     Rent
	programs map[string]Program

	message solana.Message

	keys     []ed25519.PublicKey
	accounts []*Account
	loaded   []*Account
	existed  []bool
	writable []bool

	stack       []ed25519.PublicKey
	invocations uint64
}

// execute runs every instruction in order, stopping at the first failure.
func (tx *transactionContext) execute() error {
	for i, compiled := range tx.message.Instructions {
		accounts := make([]*AccountInfo, len(compiled.Accounts))
		for j, index := range compiled.Accounts {
			accounts[j] = &AccountInfo{
				Key:        tx.keys[index],
				IsSigner:   tx.message.IsSigner(int(index)),
				IsWritable: tx.writable[index],
				Account:    tx.accounts[index],
				index:      int(index),
			}
		}

		if err := tx.process(tx.keys[compiled.ProgramIndex], compiled.Data, accounts); err != nil {
			return solana.InstructionError{Index: i, Err: err}
		}
	}

	for i := range tx.keys {
		if !tx.writable[i] {
			continue
		}
		if !tx.rent.transitionAllowed(tx.loaded[i], tx.accounts[i]) {
			tx.log.WithField("account", base58.Encode(tx.keys[i])).Debug("account left below rent exemption")
			return solana.NewInsufficientFundsForRentError(i)
		}
	}

	return nil
}

// process runs a program against the provided accounts and verifies the
// changes it made.
func (tx *transactionContext) process(program ed25519.PublicKey, data []byte, accounts []*AccountInfo) error {
	p, ok := tx.programs[string(program)]
	if !ok {
		return solana.InstructionErrorUnsupportedProgramID
	}

	tx.stack = append(tx.stack, program)
	defer func() {
		tx.stack = tx.stack[:len(tx.stack)-1]
	}()

	ic := newInvokeContext(tx, program, data, accounts)
	if err := run(p, ic); err != nil {
		return err
	}

	return ic.verify()
}

func run(p Program, ic *InvokeContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ic.Log().WithField("panic", r).Warn("program panicked")
			err = solana.InstructionErrorGenericError
		}
	}()

	return p.Process(ic)
}

// changes returns the account writes produced by a successful execution.
// Accounts drained of lamports are removed.
func (tx *transactionContext) changes(slot uint64) (updates []*account.Record, deletes []string) {
	for i, key := range tx.keys {
		if !tx.writable[i] {
			continue
		}

		post := tx.accounts[i]
		if post.equal(tx.loaded[i]) {
			continue
		}

		if post.Lamports == 0 {
			if tx.existed[i] {
				deletes = append(deletes, base58.Encode(key))
			}
			continue
		}

		updates = append(updates, toRecord(key, post, slot))
	}

	return updates, deletes
}

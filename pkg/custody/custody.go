// Package custody submits vault and escrow operations to a ledger through
// solana.Client and reads back their records.
package custody

import (
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-custody/pkg/metrics"
	"github.com/code-payments/code-custody/pkg/program"
	"github.com/code-payments/code-custody/pkg/solana"
)

const (
	metricsStructName = "custody.client"

	// Derived addresses cost a bump search, so clients remember them.
	addressCacheSize = 10_000
)

// submitter builds, signs and submits transactions paid by the first signer.
type submitter struct {
	sc         solana.Client
	commitment solana.Commitment
}

func (s *submitter) submit(ctx context.Context, method string, signers []ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, method)
	defer tracer.End()

	sig, err := s.doSubmit(signers, instructions...)
	if err != nil {
		tracer.OnError(err)
	}
	return sig, err
}

func (s *submitter) doSubmit(signers []ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	if len(signers) == 0 {
		return solana.Signature{}, errors.New("at least one signer is required")
	}

	blockhash, err := s.sc.GetLatestBlockhash()
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to get latest blockhash")
	}

	txn := solana.NewTransaction(signers[0].Public().(ed25519.PublicKey), instructions...)
	txn.SetBlockhash(blockhash)
	if err := txn.Sign(signers...); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to sign transaction")
	}

	// Transaction errors are returned unwrapped so callers can match program
	// errors with errors.Is.
	return s.sc.SubmitTransaction(txn, s.commitment)
}

// getRecord fetches the data of an account owned by owner. Missing accounts
// and accounts held by any other program are reported as not found.
func (s *submitter) getRecord(ctx context.Context, method string, address, owner ed25519.PublicKey) ([]byte, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, method)
	defer tracer.End()

	info, err := s.sc.GetAccountInfo(address, s.commitment)
	if err == solana.ErrNoAccountInfo {
		return nil, program.ErrRecordNotFound
	} else if err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "failed to get account info")
	}

	if !info.Owner.Equal(owner) {
		return nil, program.ErrRecordNotFound
	}
	return info.Data, nil
}

// tokenBalance returns the amount held by a token account, treating a missing
// account as empty.
func (s *submitter) tokenBalance(address ed25519.PublicKey) (uint64, error) {
	amount, _, err := s.sc.GetTokenAccountBalance(address)
	if err == solana.ErrNoBalance {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrap(err, "failed to get token account balance")
	}
	return amount, nil
}

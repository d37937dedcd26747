package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-custody/pkg/ledger/data/account"
	"github.com/code-payments/code-custody/pkg/retry"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
)

const (
	faucetLamports = 1_000_000_000 * LamportsPerSol

	maxAirdropAttempts = 3
)

var (
	ErrAirdropsDisabled = errors.New("airdrops are disabled")
	ErrAirdropTooLarge  = errors.New("airdrop exceeds the maximum amount")
	ErrInvalidAirdrop   = errors.New("airdrop amount must be positive")
)

func faucetKey() ed25519.PrivateKey {
	seed := sha256.Sum256([]byte("faucet"))
	return ed25519.NewKeyFromSeed(seed[:])
}

// FaucetAddress returns the address funding airdrops.
func (b *Bank) FaucetAddress() ed25519.PublicKey {
	return b.faucet.Public().(ed25519.PublicKey)
}

func (b *Bank) seedFaucet(ctx context.Context) error {
	address := base58.Encode(b.FaucetAddress())

	_, err := b.data.GetAccount(ctx, address)
	if err == nil {
		return nil
	} else if err != account.ErrAccountNotFound {
		return err
	}

	b.log.WithField("faucet", address).Info("seeding faucet")
	return b.data.CommitAccounts(ctx, []*account.Record{
		toRecord(b.FaucetAddress(), &Account{
			Lamports: faucetLamports,
			Owner:    system.ProgramKey,
		}, 0),
	}, nil)
}

// RequestAirdrop transfers lamports from the faucet to the destination
// through a regular system transfer.
func (b *Bank) RequestAirdrop(ctx context.Context, destination ed25519.PublicKey, lamports uint64) (solana.Signature, error) {
	log := b.log.WithFields(logrus.Fields{
		"method":      "RequestAirdrop",
		"destination": base58.Encode(destination),
		"lamports":    lamports,
	})

	if !b.conf.enableAirdrops.Get(ctx) {
		return solana.Signature{}, ErrAirdropsDisabled
	}
	if lamports == 0 {
		return solana.Signature{}, ErrInvalidAirdrop
	}
	if lamports > b.conf.maxAirdropLamports.Get(ctx) {
		return solana.Signature{}, ErrAirdropTooLarge
	}

	var sig solana.Signature
	_, err := retry.Retry(
		func() error {
			// Two airdrops of the same amount to the same address within a
			// slot produce the same signature.
			blockhash, _ := b.GetLatestBlockhash()

			txn := solana.NewTransaction(
				b.FaucetAddress(),
				system.Transfer(b.FaucetAddress(), destination, lamports),
			)
			txn.SetBlockhash(blockhash)
			if err := txn.Sign(b.faucet); err != nil {
				return err
			}

			var err error
			sig, err = b.ProcessTransaction(ctx, txn)
			return err
		},
		retry.Limit(maxAirdropAttempts),
		retry.RetriableIf(func(err error) bool {
			return errors.Is(err, solana.TransactionErrorDuplicateSignature)
		}),
	)
	if err != nil {
		log.WithError(err).Info("airdrop failed")
		return sig, err
	}

	log.WithField("signature", sig.String()).Debug("airdrop processed")
	return sig, nil
}

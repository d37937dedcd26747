// Package ledgertest provides helpers for running transactions against an in
// memory bank in tests.
package ledgertest

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/ledger"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/token"
	"github.com/code-payments/code-custody/pkg/testutil"
)

// NewBank returns a bank over in memory stores.
func NewBank(t *testing.T) *ledger.Bank {
	bank, err := ledger.NewTestBank(context.Background())
	require.NoError(t, err)
	return bank
}

// Submit signs the instructions with every signer and processes them. The
// first signer pays.
func Submit(bank *ledger.Bank, signers []ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	blockhash, _ := bank.GetLatestBlockhash()

	txn := solana.NewTransaction(testutil.PublicKey(signers[0]), instructions...)
	txn.SetBlockhash(blockhash)
	if err := txn.Sign(signers...); err != nil {
		return solana.Signature{}, err
	}

	return bank.ProcessTransaction(context.Background(), txn)
}

// MustSubmit is Submit, failing the test on error.
func MustSubmit(t *testing.T, bank *ledger.Bank, signers []ed25519.PrivateKey, instructions ...solana.Instruction) solana.Signature {
	sig, err := Submit(bank, signers, instructions...)
	require.NoError(t, err)
	return sig
}

// Fund airdrops lamports to address.
func Fund(t *testing.T, bank *ledger.Bank, address ed25519.PublicKey, lamports uint64) {
	_, err := bank.RequestAirdrop(context.Background(), address, lamports)
	require.NoError(t, err)
}

// NewWallet returns a new keypair funded with lamports.
func NewWallet(t *testing.T, bank *ledger.Bank, lamports uint64) ed25519.PrivateKey {
	wallet := testutil.GenerateSolanaKeypair(t)
	if lamports > 0 {
		Fund(t, bank, testutil.PublicKey(wallet), lamports)
	}
	return wallet
}

// CreateMint creates and initializes a mint controlled by authority.
func CreateMint(t *testing.T, bank *ledger.Bank, payer ed25519.PrivateKey, authority ed25519.PublicKey, decimals byte) ed25519.PublicKey {
	mint := testutil.GenerateSolanaKeypair(t)
	mintAddress := testutil.PublicKey(mint)

	MustSubmit(
		t,
		bank,
		[]ed25519.PrivateKey{payer, mint},
		system.CreateAccount(
			testutil.PublicKey(payer),
			mintAddress,
			token.ProgramKey,
			bank.GetMinimumBalanceForRentExemption(token.MintSize),
			token.MintSize,
		),
		token.InitializeMint(mintAddress, authority, nil, decimals),
	)

	return mintAddress
}

// CreateAssociatedAccount creates the associated token account of wallet for
// mint, paid by payer.
func CreateAssociatedAccount(t *testing.T, bank *ledger.Bank, payer ed25519.PrivateKey, wallet, mint ed25519.PublicKey) ed25519.PublicKey {
	ix, address, err := token.CreateAssociatedTokenAccount(testutil.PublicKey(payer), wallet, mint)
	require.NoError(t, err)

	MustSubmit(t, bank, []ed25519.PrivateKey{payer}, ix)
	return address
}

// MintTo mints amount of mint to destination.
func MintTo(t *testing.T, bank *ledger.Bank, authority ed25519.PrivateKey, mint, destination ed25519.PublicKey, amount uint64) {
	MustSubmit(t, bank, []ed25519.PrivateKey{authority}, token.MintTo(mint, destination, testutil.PublicKey(authority), amount))
}

// TokenBalance returns the amount held by a token account.
func TokenBalance(t *testing.T, bank *ledger.Bank, account ed25519.PublicKey) uint64 {
	amount, _, err := bank.GetTokenBalance(context.Background(), account)
	require.NoError(t, err)
	return amount
}

// Balance returns the lamports held at address.
func Balance(t *testing.T, bank *ledger.Bank, address ed25519.PublicKey) uint64 {
	balance, err := bank.GetBalance(context.Background(), address)
	require.NoError(t, err)
	return balance
}

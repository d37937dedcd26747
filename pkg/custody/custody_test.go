package custody_test

import (
	"context"
	"crypto/ed25519"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/custody"
	"github.com/code-payments/code-custody/pkg/ledger"
	"github.com/code-payments/code-custody/pkg/ledger/ledgertest"
	"github.com/code-payments/code-custody/pkg/ledger/rpc"
	"github.com/code-payments/code-custody/pkg/program"
	escrow_program "github.com/code-payments/code-custody/pkg/program/escrow"
	vault_program "github.com/code-payments/code-custody/pkg/program/vault"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/testutil"
)

type testEnv struct {
	bank    *ledger.Bank
	vaults  *custody.VaultClient
	escrows *custody.EscrowClient
}

func setup(t *testing.T) *testEnv {
	bank := ledgertest.NewBank(t)

	ids := testutil.GenerateSolanaKeys(t, 2)
	require.NoError(t, bank.RegisterProgram(ids[0], vault_program.NewProgram(ids[0])))
	require.NoError(t, bank.RegisterProgram(ids[1], escrow_program.NewProgram(ids[1])))

	server := httptest.NewServer(rpc.NewServer(bank, rpc.WithTestOverrides(0)).Handler(nil))
	t.Cleanup(server.Close)

	sc := solana.New(server.URL)
	return &testEnv{
		bank:    bank,
		vaults:  custody.NewVaultClient(sc, ids[0]),
		escrows: custody.NewEscrowClient(sc, ids[1]),
	}
}

func TestVaultClient(t *testing.T) {
	env := setup(t)
	ctx := context.Background()

	owner := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
	ownerKey := testutil.PublicKey(owner)

	_, err := env.vaults.GetState(ctx, ownerKey)
	assert.ErrorIs(t, err, program.ErrRecordNotFound)

	_, err = env.vaults.Deposit(ctx, owner, 1_000_000)
	testutil.AssertInstructionError(t, err, 0, program.ErrRecordNotFound)

	_, err = env.vaults.Initialize(ctx, owner)
	require.NoError(t, err)

	addresses, err := env.vaults.Addresses(ownerKey)
	require.NoError(t, err)

	state, err := env.vaults.GetState(ctx, ownerKey)
	require.NoError(t, err)
	assert.Equal(t, addresses.StateBump, state.StateBump)
	assert.Equal(t, addresses.VaultBump, state.VaultBump)

	_, err = env.vaults.Deposit(ctx, owner, ledger.LamportsPerSol/2)
	require.NoError(t, err)

	balance, err := env.vaults.GetBalance(ctx, ownerKey)
	require.NoError(t, err)
	assert.EqualValues(t, ledger.LamportsPerSol/2, balance)

	_, err = env.vaults.Withdraw(ctx, owner, ledger.LamportsPerSol/4)
	require.NoError(t, err)

	balance, err = env.vaults.GetBalance(ctx, ownerKey)
	require.NoError(t, err)
	assert.EqualValues(t, ledger.LamportsPerSol/4, balance)

	_, err = env.vaults.Withdraw(ctx, owner, ledger.LamportsPerSol/2)
	testutil.AssertInstructionError(t, err, 0, program.ErrInsufficientBalance)

	_, err = env.vaults.Close(ctx, owner)
	require.NoError(t, err)

	_, err = env.vaults.GetState(ctx, ownerKey)
	assert.ErrorIs(t, err, program.ErrRecordNotFound)

	balance, err = env.vaults.GetBalance(ctx, ownerKey)
	require.NoError(t, err)
	assert.Zero(t, balance)
	assert.EqualValues(t, ledger.LamportsPerSol, ledgertest.Balance(t, env.bank, ownerKey))
}

type escrowParties struct {
	maker ed25519.PrivateKey
	taker ed25519.PrivateKey
	mintA ed25519.PublicKey
	mintB ed25519.PublicKey
}

func (e *testEnv) parties(t *testing.T) *escrowParties {
	maker := ledgertest.NewWallet(t, e.bank, ledger.LamportsPerSol)
	taker := ledgertest.NewWallet(t, e.bank, ledger.LamportsPerSol)

	mintA := ledgertest.CreateMint(t, e.bank, maker, testutil.PublicKey(maker), 6)
	mintB := ledgertest.CreateMint(t, e.bank, taker, testutil.PublicKey(taker), 9)

	makerAtaA := ledgertest.CreateAssociatedAccount(t, e.bank, maker, testutil.PublicKey(maker), mintA)
	ledgertest.MintTo(t, e.bank, maker, mintA, makerAtaA, 100)

	takerAtaB := ledgertest.CreateAssociatedAccount(t, e.bank, taker, testutil.PublicKey(taker), mintB)
	ledgertest.MintTo(t, e.bank, taker, mintB, takerAtaB, 50)

	return &escrowParties{
		maker: maker,
		taker: taker,
		mintA: mintA,
		mintB: mintB,
	}
}

func (p *escrowParties) terms(seed uint64) *custody.Terms {
	return &custody.Terms{
		Seed:    seed,
		MintA:   p.mintA,
		MintB:   p.mintB,
		Deposit: 100,
		Receive: 50,
	}
}

func (e *testEnv) snapshot(t *testing.T, p *escrowParties, seed uint64) *custody.Balances {
	balances, err := e.escrows.Snapshot(context.Background(), testutil.PublicKey(p.maker), testutil.PublicKey(p.taker), p.mintA, p.mintB, seed)
	require.NoError(t, err)
	return balances
}

func TestEscrowMakeAndTake(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	p := env.parties(t)
	makerKey := testutil.PublicKey(p.maker)

	_, err := env.escrows.GetEscrow(ctx, makerKey, 7)
	assert.ErrorIs(t, err, program.ErrRecordNotFound)

	_, err = env.escrows.Make(ctx, p.maker, p.terms(7))
	require.NoError(t, err)

	offer, err := env.escrows.GetEscrow(ctx, makerKey, 7)
	require.NoError(t, err)
	assert.EqualValues(t, 7, offer.Record.Seed)
	assert.Equal(t, makerKey, offer.Record.Maker)
	assert.Equal(t, p.mintA, offer.Record.MintA)
	assert.Equal(t, p.mintB, offer.Record.MintB)
	assert.EqualValues(t, 50, offer.Record.Receive)
	assert.EqualValues(t, 100, offer.Deposited)

	assert.Equal(t, &custody.Balances{Vault: 100, TakerB: 50}, env.snapshot(t, p, 7))

	_, err = env.escrows.Take(ctx, p.taker, makerKey, p.terms(7))
	require.NoError(t, err)

	assert.Equal(t, &custody.Balances{MakerB: 50, TakerA: 100}, env.snapshot(t, p, 7))

	_, err = env.escrows.GetEscrow(ctx, makerKey, 7)
	assert.ErrorIs(t, err, program.ErrRecordNotFound)

	_, err = env.escrows.Take(ctx, p.taker, makerKey, p.terms(7))
	assert.ErrorIs(t, err, program.ErrRecordNotFound)
}

func TestEscrowTakeRejectsChangedTerms(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	p := env.parties(t)
	makerKey := testutil.PublicKey(p.maker)

	agreed := p.terms(3)
	_, err := env.escrows.Make(ctx, p.maker, agreed)
	require.NoError(t, err)

	// The maker reopens the same seed at a higher price.
	_, err = env.escrows.Refund(ctx, p.maker, 3)
	require.NoError(t, err)
	raised := p.terms(3)
	raised.Receive = 80
	_, err = env.escrows.Make(ctx, p.maker, raised)
	require.NoError(t, err)

	_, err = env.escrows.Take(ctx, p.taker, makerKey, agreed)
	assert.ErrorIs(t, err, custody.ErrTermsChanged)
	assert.Equal(t, &custody.Balances{Vault: 100, TakerB: 50}, env.snapshot(t, p, 3))

	lower := p.terms(3)
	lower.Receive = 80
	lower.Deposit = 101
	_, err = env.escrows.Take(ctx, p.taker, makerKey, lower)
	assert.ErrorIs(t, err, custody.ErrTermsChanged)

	_, err = env.escrows.Take(ctx, p.taker, makerKey, raised)
	require.Error(t, err)
	assert.NotErrorIs(t, err, custody.ErrTermsChanged)
}

func TestEscrowRefund(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	p := env.parties(t)

	_, err := env.escrows.Make(ctx, p.maker, p.terms(1))
	require.NoError(t, err)

	// The taker has no offer under this seed of their own.
	_, err = env.escrows.Refund(ctx, p.taker, 1)
	assert.ErrorIs(t, err, program.ErrRecordNotFound)

	_, err = env.escrows.Refund(ctx, p.maker, 1)
	require.NoError(t, err)

	assert.Equal(t, &custody.Balances{MakerA: 100, TakerB: 50}, env.snapshot(t, p, 1))

	_, err = env.escrows.Refund(ctx, p.maker, 1)
	assert.ErrorIs(t, err, program.ErrRecordNotFound)
}

func TestEscrowMakeFailures(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	p := env.parties(t)

	terms := p.terms(2)
	terms.Deposit = 101
	_, err := env.escrows.Make(ctx, p.maker, terms)
	testutil.AssertInstructionError(t, err, 0, program.ErrInsufficientBalance)

	terms = p.terms(2)
	terms.Receive = 0
	_, err = env.escrows.Make(ctx, p.maker, terms)
	testutil.AssertInstructionError(t, err, 0, program.ErrInvalidAmount)

	terms = p.terms(2)
	terms.MintB = p.mintA
	_, err = env.escrows.Make(ctx, p.maker, terms)
	testutil.AssertInstructionError(t, err, 0, program.ErrInvalidMint)

	_, err = env.escrows.GetEscrow(ctx, testutil.PublicKey(p.maker), 2)
	assert.ErrorIs(t, err, program.ErrRecordNotFound)

	_, err = env.escrows.Make(ctx, p.maker, p.terms(2))
	require.NoError(t, err)

	terms = p.terms(2)
	terms.Deposit = 0
	_, err = env.escrows.Make(ctx, p.maker, terms)
	testutil.AssertInstructionError(t, err, 0, program.ErrInvalidAmount)
}

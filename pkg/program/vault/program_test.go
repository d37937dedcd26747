package vault_test

import (
	"context"
	"crypto/ed25519"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/ledger"
	"github.com/code-payments/code-custody/pkg/ledger/ledgertest"
	"github.com/code-payments/code-custody/pkg/program"
	vault_program "github.com/code-payments/code-custody/pkg/program/vault"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/vault"
	"github.com/code-payments/code-custody/pkg/testutil"
)

type testEnv struct {
	bank    *ledger.Bank
	program ed25519.PublicKey
}

func setup(t *testing.T) *testEnv {
	bank := ledgertest.NewBank(t)

	id := testutil.GenerateSolanaKeys(t, 1)[0]
	require.NoError(t, bank.RegisterProgram(id, vault_program.NewProgram(id)))

	return &testEnv{
		bank:    bank,
		program: id,
	}
}

func (e *testEnv) accounts(t *testing.T, owner ed25519.PublicKey) *vault.InstructionAccounts {
	addrs, err := vault.GetAddresses(e.program, owner)
	require.NoError(t, err)

	return &vault.InstructionAccounts{
		Owner:      owner,
		Vault:      addrs.Vault,
		VaultState: addrs.State,
	}
}

func (e *testEnv) initialize(t *testing.T, owner ed25519.PrivateKey) *vault.InstructionAccounts {
	accounts := e.accounts(t, testutil.PublicKey(owner))
	ledgertest.MustSubmit(t, e.bank, []ed25519.PrivateKey{owner}, vault.NewInitializeInstruction(e.program, accounts))
	return accounts
}

func (e *testEnv) deposit(owner ed25519.PrivateKey, accounts *vault.InstructionAccounts, amount uint64) error {
	_, err := ledgertest.Submit(e.bank, []ed25519.PrivateKey{owner}, vault.NewDepositInstruction(e.program, accounts, &vault.AmountInstructionArgs{Amount: amount}))
	return err
}

func (e *testEnv) withdraw(owner ed25519.PrivateKey, accounts *vault.InstructionAccounts, amount uint64) error {
	_, err := ledgertest.Submit(e.bank, []ed25519.PrivateKey{owner}, vault.NewWithdrawInstruction(e.program, accounts, &vault.AmountInstructionArgs{Amount: amount}))
	return err
}

func (e *testEnv) close(owner ed25519.PrivateKey, accounts *vault.InstructionAccounts) error {
	_, err := ledgertest.Submit(e.bank, []ed25519.PrivateKey{owner}, vault.NewCloseInstruction(e.program, accounts))
	return err
}

func TestVaultLifecycle(t *testing.T) {
	env := setup(t)

	owner := ledgertest.NewWallet(t, env.bank, 10*ledger.LamportsPerSol)
	ownerKey := testutil.PublicKey(owner)

	accounts := env.initialize(t, owner)

	stateRent := env.bank.GetMinimumBalanceForRentExemption(vault.VaultStateAccountSize)
	assert.EqualValues(t, 10*ledger.LamportsPerSol-stateRent, ledgertest.Balance(t, env.bank, ownerKey))

	state, err := env.bank.GetAccount(context.Background(), accounts.VaultState)
	require.NoError(t, err)
	assert.EqualValues(t, env.program, state.Owner)
	assert.EqualValues(t, stateRent, state.Lamports)

	addrs, err := vault.GetAddresses(env.program, ownerKey)
	require.NoError(t, err)

	var record vault.VaultStateAccount
	require.NoError(t, record.Unmarshal(state.Data))
	assert.Equal(t, addrs.StateBump, record.StateBump)
	assert.Equal(t, addrs.VaultBump, record.VaultBump)

	require.NoError(t, env.deposit(owner, accounts, 2*ledger.LamportsPerSol))
	assert.EqualValues(t, 2*ledger.LamportsPerSol, ledgertest.Balance(t, env.bank, accounts.Vault))

	require.NoError(t, env.withdraw(owner, accounts, ledger.LamportsPerSol/2))
	assert.EqualValues(t, 3*ledger.LamportsPerSol/2, ledgertest.Balance(t, env.bank, accounts.Vault))
	assert.EqualValues(t, 10*ledger.LamportsPerSol-stateRent-3*ledger.LamportsPerSol/2, ledgertest.Balance(t, env.bank, ownerKey))

	require.NoError(t, env.close(owner, accounts))

	_, err = env.bank.GetAccount(context.Background(), accounts.VaultState)
	assert.Equal(t, ledger.ErrAccountNotFound, err)
	assert.EqualValues(t, 0, ledgertest.Balance(t, env.bank, accounts.Vault))
	assert.EqualValues(t, 10*ledger.LamportsPerSol, ledgertest.Balance(t, env.bank, ownerKey))
}

func TestInitialize(t *testing.T) {
	env := setup(t)

	owner := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
	accounts := env.initialize(t, owner)

	sig, err := ledgertest.Submit(env.bank, []ed25519.PrivateKey{owner}, vault.NewInitializeInstruction(env.program, accounts))
	testutil.AssertInstructionError(t, err, 0, program.ErrRecordAlreadyExists)

	// The error code survives the trip through the signature store.
	status, err := env.bank.GetSignatureStatus(context.Background(), sig)
	require.NoError(t, err)
	require.NotNil(t, status.Err)
	require.NotNil(t, status.Err.InstructionError())
	assert.Equal(t, program.ErrRecordAlreadyExists.CustomErrorCode(), *status.Err.InstructionError().CustomError())
	assert.ErrorIs(t, status.Err, program.ErrRecordAlreadyExists)
}

func TestInitializeFundedAddress(t *testing.T) {
	rent := ledgertest.NewBank(t)
	stateRent := rent.GetMinimumBalanceForRentExemption(vault.VaultStateAccountSize)

	for _, tc := range []struct {
		name    string
		prefund uint64
	}{
		{"below rent", rent.GetMinimumBalanceForRentExemption(0)},
		{"above rent", 2 * stateRent},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := setup(t)

			owner := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
			ownerKey := testutil.PublicKey(owner)
			accounts := env.accounts(t, ownerKey)

			// Anyone can send lamports to the owner's state address.
			stranger := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
			ledgertest.MustSubmit(t, env.bank, []ed25519.PrivateKey{stranger}, system.Transfer(testutil.PublicKey(stranger), accounts.VaultState, tc.prefund))

			env.initialize(t, owner)

			info, err := env.bank.GetAccount(context.Background(), accounts.VaultState)
			require.NoError(t, err)
			assert.EqualValues(t, env.program, info.Owner)

			var state vault.VaultStateAccount
			require.NoError(t, state.Unmarshal(info.Data))

			var paid uint64
			if tc.prefund < stateRent {
				paid = stateRent - tc.prefund
				assert.EqualValues(t, stateRent, info.Lamports)
			} else {
				assert.EqualValues(t, tc.prefund, info.Lamports)
			}
			assert.EqualValues(t, ledger.LamportsPerSol-paid, ledgertest.Balance(t, env.bank, ownerKey))

			require.NoError(t, env.deposit(owner, accounts, ledger.LamportsPerSol/2))
			require.NoError(t, env.close(owner, accounts))

			_, err = env.bank.GetAccount(context.Background(), accounts.VaultState)
			assert.Equal(t, ledger.ErrAccountNotFound, err)
			assert.EqualValues(t, ledger.LamportsPerSol+tc.prefund, ledgertest.Balance(t, env.bank, ownerKey))
		})
	}
}

func TestInitializeRejectsOtherAddresses(t *testing.T) {
	env := setup(t)

	owner := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
	other := env.accounts(t, testutil.GenerateSolanaKeys(t, 1)[0])

	for _, accounts := range []*vault.InstructionAccounts{
		{Owner: testutil.PublicKey(owner), Vault: env.accounts(t, testutil.PublicKey(owner)).Vault, VaultState: other.VaultState},
		{Owner: testutil.PublicKey(owner), Vault: other.Vault, VaultState: env.accounts(t, testutil.PublicKey(owner)).VaultState},
	} {
		_, err := ledgertest.Submit(env.bank, []ed25519.PrivateKey{owner}, vault.NewInitializeInstruction(env.program, accounts))
		testutil.AssertInstructionError(t, err, 0, program.ErrAddressMismatch)
	}

	assert.EqualValues(t, ledger.LamportsPerSol, ledgertest.Balance(t, env.bank, testutil.PublicKey(owner)))
}

func TestOperationsRequireRecord(t *testing.T) {
	env := setup(t)

	owner := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
	accounts := env.accounts(t, testutil.PublicKey(owner))

	testutil.AssertInstructionError(t, env.deposit(owner, accounts, ledger.LamportsPerSol/10), 0, program.ErrRecordNotFound)
	testutil.AssertInstructionError(t, env.withdraw(owner, accounts, 1), 0, program.ErrRecordNotFound)
	testutil.AssertInstructionError(t, env.close(owner, accounts), 0, program.ErrRecordNotFound)

	env.initialize(t, owner)
	require.NoError(t, env.close(owner, accounts))

	testutil.AssertInstructionError(t, env.deposit(owner, accounts, ledger.LamportsPerSol/10), 0, program.ErrRecordNotFound)
	testutil.AssertInstructionError(t, env.close(owner, accounts), 0, program.ErrRecordNotFound)
}

func TestInvalidAmounts(t *testing.T) {
	env := setup(t)

	owner := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
	accounts := env.initialize(t, owner)
	require.NoError(t, env.deposit(owner, accounts, ledger.LamportsPerSol/10))

	testutil.AssertInstructionError(t, env.deposit(owner, accounts, 0), 0, program.ErrInvalidAmount)
	testutil.AssertInstructionError(t, env.withdraw(owner, accounts, 0), 0, program.ErrInvalidAmount)

	// Deposits beyond the owner's balance fail in the system program.
	testutil.AssertInstructionError(t, env.deposit(owner, accounts, 10*ledger.LamportsPerSol), 0, program.ErrInsufficientBalance)

	testutil.AssertInstructionError(t, env.withdraw(owner, accounts, ledger.LamportsPerSol/10+1), 0, program.ErrInsufficientBalance)
	assert.EqualValues(t, ledger.LamportsPerSol/10, ledgertest.Balance(t, env.bank, accounts.Vault))
}

func TestCustodialBalanceMustBeRentExempt(t *testing.T) {
	env := setup(t)

	owner := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
	accounts := env.initialize(t, owner)

	minimum := env.bank.GetMinimumBalanceForRentExemption(0)

	err := env.deposit(owner, accounts, minimum-1)
	testutil.AssertTransactionError(t, err, solana.TransactionErrorInsufficientFundsForRent)

	require.NoError(t, env.deposit(owner, accounts, minimum+10))

	err = env.withdraw(owner, accounts, 11)
	testutil.AssertTransactionError(t, err, solana.TransactionErrorInsufficientFundsForRent)

	require.NoError(t, env.withdraw(owner, accounts, 10))
	assert.EqualValues(t, minimum, ledgertest.Balance(t, env.bank, accounts.Vault))
}

func TestNoSubstitution(t *testing.T) {
	env := setup(t)

	alice := ledgertest.NewWallet(t, env.bank, 10*ledger.LamportsPerSol)
	bob := ledgertest.NewWallet(t, env.bank, 10*ledger.LamportsPerSol)

	aliceAccounts := env.initialize(t, alice)
	bobAccounts := env.initialize(t, bob)
	require.NoError(t, env.deposit(bob, bobAccounts, ledger.LamportsPerSol))

	for _, accounts := range []*vault.InstructionAccounts{
		{Owner: aliceAccounts.Owner, Vault: bobAccounts.Vault, VaultState: bobAccounts.VaultState},
		{Owner: aliceAccounts.Owner, Vault: bobAccounts.Vault, VaultState: aliceAccounts.VaultState},
		{Owner: aliceAccounts.Owner, Vault: aliceAccounts.Vault, VaultState: bobAccounts.VaultState},
	} {
		testutil.AssertInstructionError(t, env.withdraw(alice, accounts, ledger.LamportsPerSol), 0, program.ErrAddressMismatch)
		testutil.AssertInstructionError(t, env.close(alice, accounts), 0, program.ErrAddressMismatch)
	}

	assert.EqualValues(t, ledger.LamportsPerSol, ledgertest.Balance(t, env.bank, bobAccounts.Vault))
}

func TestOwnerMustSign(t *testing.T) {
	env := setup(t)

	owner := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
	payer := ledgertest.NewWallet(t, env.bank, ledger.LamportsPerSol)
	accounts := env.initialize(t, owner)
	require.NoError(t, env.deposit(owner, accounts, ledger.LamportsPerSol/10))

	ix := vault.NewWithdrawInstruction(env.program, accounts, &vault.AmountInstructionArgs{Amount: 1})
	ix.Accounts[0].IsSigner = false

	_, err := ledgertest.Submit(env.bank, []ed25519.PrivateKey{payer}, ix)
	testutil.AssertInstructionError(t, err, 0, solana.InstructionErrorMissingRequiredSignature)
}

func TestVaultConservation(t *testing.T) {
	env := setup(t)

	owner := ledgertest.NewWallet(t, env.bank, 100*ledger.LamportsPerSol)
	accounts := env.initialize(t, owner)

	require.NoError(t, env.deposit(owner, accounts, ledger.LamportsPerSol))
	expected := uint64(ledger.LamportsPerSol)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 25; i++ {
		amount := uint64(r.Int63n(int64(ledger.LamportsPerSol))) + 1

		if r.Intn(2) == 0 {
			require.NoError(t, env.deposit(owner, accounts, amount))
			expected += amount
		} else if amount > expected {
			testutil.AssertInstructionError(t, env.withdraw(owner, accounts, amount), 0, program.ErrInsufficientBalance)
		} else if expected-amount >= env.bank.GetMinimumBalanceForRentExemption(0) {
			require.NoError(t, env.withdraw(owner, accounts, amount))
			expected -= amount
		}

		require.EqualValues(t, expected, ledgertest.Balance(t, env.bank, accounts.Vault))
	}
}

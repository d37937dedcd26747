package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/testutil"
)

func TestAddresses(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)
	program, owner, other := keys[0], keys[1], keys[2]

	addrs, err := GetAddresses(program, owner)
	require.NoError(t, err)

	again, err := GetAddresses(program, owner)
	require.NoError(t, err)
	assert.Equal(t, addrs, again)

	assert.False(t, solana.IsOnCurve(addrs.State))
	assert.False(t, solana.IsOnCurve(addrs.Vault))

	state, err := solana.CreateProgramAddress(program, StatePrefix, owner, []byte{addrs.StateBump})
	require.NoError(t, err)
	assert.EqualValues(t, addrs.State, state)

	vault, err := solana.CreateProgramAddress(program, VaultPrefix, addrs.State, []byte{addrs.VaultBump})
	require.NoError(t, err)
	assert.EqualValues(t, addrs.Vault, vault)

	otherAddrs, err := GetAddresses(program, other)
	require.NoError(t, err)
	assert.NotEqual(t, addrs.State, otherAddrs.State)
	assert.NotEqual(t, addrs.Vault, otherAddrs.Vault)

	otherProgram, err := GetAddresses(other, owner)
	require.NoError(t, err)
	assert.NotEqual(t, addrs.State, otherProgram.State)
}

func TestVaultStateAccount(t *testing.T) {
	expected := &VaultStateAccount{VaultBump: 254, StateBump: 251}

	data := expected.Marshal()
	assert.Len(t, data, VaultStateAccountSize)
	assert.EqualValues(t, VaultStateAccountDiscriminator, data[:solana.DiscriminatorSize])

	var actual VaultStateAccount
	require.NoError(t, actual.Unmarshal(data))
	assert.Equal(t, *expected, actual)

	assert.Equal(t, ErrInvalidAccountData, actual.Unmarshal(data[:VaultStateAccountSize-1]))

	data[0] ^= 0xff
	assert.Equal(t, ErrInvalidAccountData, actual.Unmarshal(data))
}

func TestInstructions(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 4)
	program := keys[0]
	accounts := &InstructionAccounts{
		Owner:      keys[1],
		Vault:      keys[2],
		VaultState: keys[3],
	}

	for _, tc := range []struct {
		ix       solana.Instruction
		expected InstructionType
		amount   uint64
	}{
		{NewInitializeInstruction(program, accounts), InstructionTypeInitialize, 0},
		{NewDepositInstruction(program, accounts, &AmountInstructionArgs{Amount: 100}), InstructionTypeDeposit, 100},
		{NewWithdrawInstruction(program, accounts, &AmountInstructionArgs{Amount: 50}), InstructionTypeWithdraw, 50},
		{NewCloseInstruction(program, accounts), InstructionTypeClose, 0},
	} {
		assert.EqualValues(t, program, tc.ix.Program)

		require.Len(t, tc.ix.Accounts, 4)
		assert.EqualValues(t, accounts.Owner, tc.ix.Accounts[0].PublicKey)
		assert.True(t, tc.ix.Accounts[0].IsSigner)
		assert.True(t, tc.ix.Accounts[0].IsWritable)
		assert.EqualValues(t, accounts.Vault, tc.ix.Accounts[1].PublicKey)
		assert.False(t, tc.ix.Accounts[1].IsSigner)
		assert.True(t, tc.ix.Accounts[1].IsWritable)
		assert.EqualValues(t, accounts.VaultState, tc.ix.Accounts[2].PublicKey)
		assert.True(t, tc.ix.Accounts[2].IsWritable)
		assert.EqualValues(t, system.ProgramKey, tc.ix.Accounts[3].PublicKey)
		assert.False(t, tc.ix.Accounts[3].IsWritable)

		actual, err := GetInstructionType(tc.ix.Data)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, actual)

		if tc.amount > 0 {
			var args AmountInstructionArgs
			require.NoError(t, args.Unmarshal(tc.ix.Data))
			assert.Equal(t, tc.amount, args.Amount)
		} else {
			assert.Len(t, tc.ix.Data, solana.DiscriminatorSize)
		}
	}

	_, err := GetInstructionType([]byte{1, 2, 3})
	assert.Equal(t, ErrInvalidInstructionData, err)

	_, err = GetInstructionType(solana.InstructionDiscriminator("make"))
	assert.Equal(t, ErrInvalidInstructionData, err)

	var args AmountInstructionArgs
	assert.Equal(t, ErrInvalidInstructionData, args.Unmarshal(InstructionTypeDeposit.Discriminator()))
}

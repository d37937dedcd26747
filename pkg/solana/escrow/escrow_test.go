package escrow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/token"
	"github.com/code-payments/code-custody/pkg/testutil"
)

func TestGetEscrowAddress(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)
	program, maker, mint := keys[0], keys[1], keys[2]

	escrow, bump, err := GetEscrowAddress(program, maker, 7)
	require.NoError(t, err)
	assert.False(t, solana.IsOnCurve(escrow))

	recreated, err := solana.CreateProgramAddress(program, EscrowPrefix, maker, SeedBytes(7), []byte{bump})
	require.NoError(t, err)
	assert.EqualValues(t, escrow, recreated)

	other, _, err := GetEscrowAddress(program, maker, 8)
	require.NoError(t, err)
	assert.NotEqual(t, escrow, other)

	assert.Equal(t, []byte{7, 0, 0, 0, 0, 0, 0, 0}, SeedBytes(7))

	vault, err := GetVaultAddress(escrow, mint)
	require.NoError(t, err)
	expected, err := token.GetAssociatedAccount(escrow, mint)
	require.NoError(t, err)
	assert.EqualValues(t, expected, vault)
}

func TestEscrowAccount(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 3)
	expected := &EscrowAccount{
		Seed:    7,
		Maker:   keys[0],
		MintA:   keys[1],
		MintB:   keys[2],
		Receive: 50,
		Bump:    253,
	}

	data := expected.Marshal()
	assert.Len(t, data, EscrowAccountSize)
	assert.Equal(t, 121, EscrowAccountSize)

	var actual EscrowAccount
	require.NoError(t, actual.Unmarshal(data))
	assert.Equal(t, *expected, actual)

	assert.Equal(t, ErrInvalidAccountData, actual.Unmarshal(data[1:]))

	copy(data, solana.AccountDiscriminator("VaultState"))
	assert.Equal(t, ErrInvalidAccountData, actual.Unmarshal(data))
}

func TestMakeInstruction(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 7)
	accounts := &MakeInstructionAccounts{
		Maker:     keys[1],
		MintA:     keys[2],
		MintB:     keys[3],
		MakerAtaA: keys[4],
		Escrow:    keys[5],
		Vault:     keys[6],
	}

	ix := NewMakeInstruction(keys[0], accounts, &MakeInstructionArgs{Seed: 7, Deposit: 100, Receive: 50})
	assert.EqualValues(t, keys[0], ix.Program)

	instructionType, err := GetInstructionType(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeMake, instructionType)

	var args MakeInstructionArgs
	require.NoError(t, args.Unmarshal(ix.Data))
	assert.Equal(t, MakeInstructionArgs{Seed: 7, Deposit: 100, Receive: 50}, args)
	assert.Equal(t, ErrInvalidInstructionData, args.Unmarshal(ix.Data[:10]))

	require.Len(t, ix.Accounts, 9)
	assert.True(t, ix.Accounts[0].IsSigner)
	for _, i := range []int{0, 3, 4, 5} {
		assert.True(t, ix.Accounts[i].IsWritable)
	}
	for _, i := range []int{1, 2, 6, 7, 8} {
		assert.False(t, ix.Accounts[i].IsWritable)
	}
	for i := 1; i < len(ix.Accounts); i++ {
		assert.False(t, ix.Accounts[i].IsSigner)
	}
	assert.EqualValues(t, token.AssociatedTokenAccountProgramKey, ix.Accounts[6].PublicKey)
	assert.EqualValues(t, token.ProgramKey, ix.Accounts[7].PublicKey)
	assert.EqualValues(t, system.ProgramKey, ix.Accounts[8].PublicKey)
}

func TestTakeInstruction(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 10)
	accounts := &TakeInstructionAccounts{
		Taker:     keys[1],
		Maker:     keys[2],
		MintA:     keys[3],
		MintB:     keys[4],
		TakerAtaA: keys[5],
		TakerAtaB: keys[6],
		MakerAtaB: keys[7],
		Escrow:    keys[8],
		Vault:     keys[9],
	}

	ix := NewTakeInstruction(keys[0], accounts)

	instructionType, err := GetInstructionType(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeTake, instructionType)
	assert.Len(t, ix.Data, solana.DiscriminatorSize)

	require.Len(t, ix.Accounts, 12)
	assert.True(t, ix.Accounts[0].IsSigner)
	assert.False(t, ix.Accounts[1].IsSigner)
	for i := 0; i < 9; i++ {
		expectWritable := i != 2 && i != 3
		assert.Equal(t, expectWritable, ix.Accounts[i].IsWritable, "account %d", i)
	}
	assert.EqualValues(t, accounts.Vault, ix.Accounts[8].PublicKey)
	assert.EqualValues(t, system.ProgramKey, ix.Accounts[11].PublicKey)
}

func TestRefundInstruction(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 6)
	accounts := &RefundInstructionAccounts{
		Maker:     keys[1],
		MintA:     keys[2],
		MakerAtaA: keys[3],
		Escrow:    keys[4],
		Vault:     keys[5],
	}

	ix := NewRefundInstruction(keys[0], accounts)

	instructionType, err := GetInstructionType(ix.Data)
	require.NoError(t, err)
	assert.Equal(t, InstructionTypeRefund, instructionType)

	require.Len(t, ix.Accounts, 8)
	assert.True(t, ix.Accounts[0].IsSigner)
	assert.False(t, ix.Accounts[1].IsWritable)
	assert.True(t, ix.Accounts[4].IsWritable)
	assert.EqualValues(t, token.ProgramKey, ix.Accounts[6].PublicKey)
}

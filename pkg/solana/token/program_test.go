package token

import (
	"crypto/ed25519"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/solana"
)

func TestGetCommand_Error(t *testing.T) {
	keys := generateKeys(t, 4)

	// invalid program
	cmd, err := GetCommand(solana.NewInstruction(keys[1], []byte{}))
	assert.Equal(t, CommandUnknown, cmd)
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	// no data
	cmd, err = GetCommand(solana.NewInstruction(ProgramKey, []byte{}))
	assert.Equal(t, CommandUnknown, cmd)
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "missing data")
}

func TestInitializeMint(t *testing.T) {
	keys := generateKeys(t, 3)

	instruction := InitializeMint(keys[0], keys[1], nil, 6)
	require.Len(t, instruction.Data, 35)
	assert.EqualValues(t, CommandInitializeMint, instruction.Data[0])
	assert.EqualValues(t, 6, instruction.Data[1])
	assert.EqualValues(t, keys[1], instruction.Data[2:34])
	assert.EqualValues(t, 0, instruction.Data[34])

	decompiled, err := DecompileInitializeMint(instruction)
	require.NoError(t, err)
	assert.EqualValues(t, keys[0], decompiled.Mint)
	assert.EqualValues(t, keys[1], decompiled.MintAuthority)
	assert.Nil(t, decompiled.FreezeAuthority)
	assert.EqualValues(t, 6, decompiled.Decimals)

	instruction = InitializeMint(keys[0], keys[1], keys[2], 9)
	require.Len(t, instruction.Data, 67)

	decompiled, err = DecompileInitializeMint(instruction)
	require.NoError(t, err)
	assert.EqualValues(t, keys[2], decompiled.FreezeAuthority)
	assert.EqualValues(t, 9, decompiled.Decimals)

	instruction.Data = instruction.Data[:40]
	_, err = DecompileInitializeMint(instruction)
	assert.True(t, strings.Contains(err.Error(), "invalid instruction data size"))
}

func TestInitializeAccount(t *testing.T) {
	keys := generateKeys(t, 4)

	instruction := InitializeAccount(keys[0], keys[1], keys[2])

	assert.Equal(t, []byte{1}, instruction.Data)
	assert.False(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)
	for i := 1; i < 4; i++ {
		assert.False(t, instruction.Accounts[i].IsSigner)
		assert.False(t, instruction.Accounts[i].IsWritable)
	}

	decompiled, err := DecompileInitializeAccount(instruction)
	assert.NoError(t, err)
	assert.Equal(t, keys[0], decompiled.Account)
	assert.Equal(t, keys[1], decompiled.Mint)
	assert.Equal(t, keys[2], decompiled.Owner)

	cmd, err := GetCommand(instruction)
	require.NoError(t, err)
	assert.Equal(t, CommandInitializeAccount, cmd)

	instruction.Accounts[3].PublicKey = keys[3]
	_, err = DecompileInitializeAccount(instruction)
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid rent sysvar"))

	instruction.Accounts = instruction.Accounts[:2]
	_, err = DecompileInitializeAccount(instruction)
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid number of accounts"))

	instruction.Data[0] = byte(CommandTransfer)
	_, err = DecompileInitializeAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction.Data = nil
	_, err = DecompileInitializeAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction.Program = keys[3]
	_, err = DecompileInitializeAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}

func TestInitializeAccount3(t *testing.T) {
	keys := generateKeys(t, 3)

	instruction := InitializeAccount3(keys[0], keys[1], keys[2])

	assert.Len(t, instruction.Data, 33)
	assert.EqualValues(t, CommandInitializeAccount3, instruction.Data[0])
	require.Len(t, instruction.Accounts, 2)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.False(t, instruction.Accounts[1].IsWritable)

	decompiled, err := DecompileInitializeAccount3(instruction)
	require.NoError(t, err)
	assert.EqualValues(t, keys[0], decompiled.Account)
	assert.EqualValues(t, keys[1], decompiled.Mint)
	assert.EqualValues(t, keys[2], decompiled.Owner)

	instruction.Data = instruction.Data[:10]
	_, err = DecompileInitializeAccount3(instruction)
	assert.Error(t, err)

	_, err = DecompileInitializeAccount(InitializeAccount3(keys[0], keys[1], keys[2]))
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
}

func TestMintTo(t *testing.T) {
	keys := generateKeys(t, 3)

	instruction := MintTo(keys[0], keys[1], keys[2], 42)
	assert.EqualValues(t, CommandMintTo, instruction.Data[0])
	assert.EqualValues(t, 42, binary.LittleEndian.Uint64(instruction.Data[1:]))

	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.True(t, instruction.Accounts[1].IsWritable)
	assert.True(t, instruction.Accounts[2].IsSigner)
	assert.False(t, instruction.Accounts[2].IsWritable)

	decompiled, err := DecompileMintTo(instruction)
	require.NoError(t, err)
	assert.Equal(t, keys[0], decompiled.Mint)
	assert.Equal(t, keys[1], decompiled.Destination)
	assert.Equal(t, keys[2], decompiled.Authority)
	assert.EqualValues(t, 42, decompiled.Amount)

	_, err = DecompileMintTo(Transfer(keys[0], keys[1], keys[2], 42))
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
}

func TestTransfer(t *testing.T) {
	keys := generateKeys(t, 4)

	instruction := Transfer(keys[0], keys[1], keys[2], 123456789)

	expectedAmount := make([]byte, 8)
	binary.LittleEndian.PutUint64(expectedAmount, 123456789)

	assert.EqualValues(t, 3, instruction.Data[0])
	assert.EqualValues(t, expectedAmount, instruction.Data[1:])

	assert.False(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.False(t, instruction.Accounts[1].IsSigner)
	assert.True(t, instruction.Accounts[1].IsWritable)

	assert.True(t, instruction.Accounts[2].IsSigner)
	assert.False(t, instruction.Accounts[2].IsWritable)

	decompiled, err := DecompileTransfer(instruction)
	assert.NoError(t, err)
	assert.EqualValues(t, 123456789, decompiled.Amount)
	assert.Equal(t, keys[0], decompiled.Source)
	assert.Equal(t, keys[1], decompiled.Destination)
	assert.Equal(t, keys[2], decompiled.Owner)

	cmd, err := GetCommand(instruction)
	require.NoError(t, err)
	assert.Equal(t, CommandTransfer, cmd)

	instruction.Data = instruction.Data[:1]
	_, err = DecompileTransfer(instruction)
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid instruction data size"))

	instruction.Accounts = instruction.Accounts[:2]
	_, err = DecompileTransfer(instruction)
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid number of accounts"))

	instruction.Data[0] = byte(CommandApprove)
	_, err = DecompileTransfer(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction.Data = nil
	_, err = DecompileTransfer(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction.Program = keys[3]
	_, err = DecompileTransfer(instruction)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}

func TestTransferChecked(t *testing.T) {
	keys := generateKeys(t, 5)

	instruction := TransferChecked(keys[0], keys[1], keys[2], keys[3], 123456789, 3)

	expectedAmount := make([]byte, 8)
	binary.LittleEndian.PutUint64(expectedAmount, 123456789)

	assert.EqualValues(t, CommandTransferChecked, instruction.Data[0])
	assert.EqualValues(t, expectedAmount, instruction.Data[1:9])
	assert.EqualValues(t, 3, instruction.Data[9])

	assert.False(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)

	assert.False(t, instruction.Accounts[1].IsSigner)
	assert.False(t, instruction.Accounts[1].IsWritable)

	assert.False(t, instruction.Accounts[2].IsSigner)
	assert.True(t, instruction.Accounts[2].IsWritable)

	assert.True(t, instruction.Accounts[3].IsSigner)
	assert.False(t, instruction.Accounts[3].IsWritable)

	decompiled, err := DecompileTransferChecked(instruction)
	assert.NoError(t, err)
	assert.EqualValues(t, 123456789, decompiled.Amount)
	assert.EqualValues(t, 3, decompiled.Decimals)
	assert.Equal(t, keys[0], decompiled.Source)
	assert.Equal(t, keys[1], decompiled.Mint)
	assert.Equal(t, keys[2], decompiled.Destination)
	assert.Equal(t, keys[3], decompiled.Owner)

	instruction.Data = instruction.Data[:1]
	_, err = DecompileTransferChecked(instruction)
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid instruction data size"))

	instruction.Accounts = instruction.Accounts[:3]
	_, err = DecompileTransferChecked(instruction)
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid number of accounts"))

	instruction.Program = keys[4]
	_, err = DecompileTransferChecked(instruction)
	assert.Equal(t, solana.ErrIncorrectProgram, err)
}

func TestCloseAccount(t *testing.T) {
	keys := generateKeys(t, 3)

	instruction := CloseAccount(keys[0], keys[1], keys[2])
	assert.Equal(t, []byte{byte(CommandCloseAccount)}, instruction.Data)

	cmd, err := GetCommand(instruction)
	require.NoError(t, err)
	assert.Equal(t, CommandCloseAccount, cmd)

	assert.False(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)
	assert.False(t, instruction.Accounts[1].IsSigner)
	assert.True(t, instruction.Accounts[1].IsWritable)

	assert.True(t, instruction.Accounts[2].IsSigner)
	assert.False(t, instruction.Accounts[2].IsWritable)

	decompiled, err := DecompileCloseAccount(instruction)
	assert.NoError(t, err)
	assert.Equal(t, keys[0], decompiled.Account)
	assert.Equal(t, keys[1], decompiled.Destination)
	assert.Equal(t, keys[2], decompiled.Owner)

	instruction.Accounts = instruction.Accounts[:2]
	decompiled, err = DecompileCloseAccount(instruction)
	assert.True(t, strings.Contains(err.Error(), "invalid number of accounts"))
	assert.Nil(t, decompiled)

	instruction.Data = append(instruction.Data, 1)
	decompiled, err = DecompileCloseAccount(instruction)
	assert.True(t, strings.Contains(err.Error(), "invalid instruction data size"))
	assert.Nil(t, decompiled)

	instruction.Data = []byte{byte(CommandTransfer)}
	decompiled, err = DecompileCloseAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
	assert.Nil(t, decompiled)

	instruction.Data = nil
	decompiled, err = DecompileCloseAccount(instruction)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)
	assert.Nil(t, decompiled)
}

func generateKeys(t *testing.T, amount int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, amount)

	for i := 0; i < amount; i++ {
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = pub
	}

	return keys
}

// Package vault is the client interface to the custodial vault program: its
// derived addresses, instruction encoding and account layout.
//
// The program's address is never compiled in. Callers pass the deployed
// program id to every function that needs it.
package vault

import (
	"errors"

	"github.com/code-payments/code-custody/pkg/solana"
)

var (
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
)

var (
	StatePrefix = []byte("state")
	VaultPrefix = []byte("vault")
)

type InstructionType uint8

const (
	InstructionTypeUnknown InstructionType = iota
	InstructionTypeInitialize
	InstructionTypeDeposit
	InstructionTypeWithdraw
	InstructionTypeClose
)

var instructionNames = map[InstructionType]string{
	InstructionTypeInitialize: "initialize",
	InstructionTypeDeposit:    "deposit",
	InstructionTypeWithdraw:   "withdraw",
	InstructionTypeClose:      "close",
}

var instructionDiscriminators = func() map[string]InstructionType {
	m := make(map[string]InstructionType)
	for t, name := range instructionNames {
		m[string(solana.InstructionDiscriminator(name))] = t
	}
	return m
}()

func (t InstructionType) String() string {
	if name, ok := instructionNames[t]; ok {
		return name
	}
	return "unknown"
}

// Discriminator returns the eight byte tag prefixing the instruction's data.
func (t InstructionType) Discriminator() []byte {
	return solana.InstructionDiscriminator(t.String())
}

// GetInstructionType identifies a vault instruction by its discriminator.
func GetInstructionType(data []byte) (InstructionType, error) {
	if len(data) < solana.DiscriminatorSize {
		return InstructionTypeUnknown, ErrInvalidInstructionData
	}

	t, ok := instructionDiscriminators[string(data[:solana.DiscriminatorSize])]
	if !ok {
		return InstructionTypeUnknown, ErrInvalidInstructionData
	}
	return t, nil
}

// Package escrow is the client interface to the escrow program, which swaps
// two token positions atomically between a maker and a taker.
package escrow

import (
	"errors"

	"github.com/code-payments/code-custody/pkg/solana"
)

var (
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
)

var (
	EscrowPrefix = []byte("maker")
)

type InstructionType uint8

const (
	InstructionTypeUnknown InstructionType = iota
	InstructionTypeMake
	InstructionTypeTake
	InstructionTypeRefund
)

var instructionNames = map[InstructionType]string{
	InstructionTypeMake:   "make",
	InstructionTypeTake:   "take",
	InstructionTypeRefund: "refund",
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

func (t InstructionType) Discriminator() []byte {
	return solana.InstructionDiscriminator(t.String())
}

// GetInstructionType identifies an escrow instruction by its discriminator.
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

package solana

import (
	"crypto/sha256"
)

// DiscriminatorSize is the length of the type tag prefixing program account
// data and instruction data.
const DiscriminatorSize = 8

// AccountDiscriminator returns the tag for an account type, the first eight
// bytes of sha256("account:<name>").
func AccountDiscriminator(name string) []byte {
	return discriminator("account", name)
}

// InstructionDiscriminator returns the tag for an instruction, the first eight
// bytes of sha256("global:<name>").
func InstructionDiscriminator(name string) []byte {
	return discriminator("global", name)
}

func discriminator(namespace, name string) []byte {
	h := sha256.Sum256([]byte(namespace + ":" + name))
	return h[:DiscriminatorSize]
}

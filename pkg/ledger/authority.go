package ledger

import (
	"crypto/ed25519"

	"github.com/code-payments/code-custody/pkg/solana"
)

// authorityError carries the instruction error key reported when a
// delegated authority is misused.
type authorityError struct {
	key solana.InstructionErrorKey
	msg string
}

func (e authorityError) Error() string {
	return e.msg
}

func (e authorityError) Unwrap() error {
	return e.key
}

var (
	ErrAuthorityConsumed           error = authorityError{solana.InstructionErrorPrivilegeEscalation, "delegated authority already consumed"}
	ErrAuthorityInvocationMismatch error = authorityError{solana.InstructionErrorPrivilegeEscalation, "delegated authority belongs to another invocation"}
)

// DelegatedAuthority lets the executing program sign for one of its derived
// addresses in a single cross-program invocation. It is minted by
// InvokeContext.Authorize, is bound to the invocation that minted it, and is
// consumed by the first InvokeSigned call it is passed to.
type DelegatedAuthority struct {
	address    ed25519.PublicKey
	invocation uint64
	consumed   bool
}

// Address returns the derived address the authority signs for.
func (a *DelegatedAuthority) Address() ed25519.PublicKey {
	address := make(ed25519.PublicKey, len(a.address))
	copy(address, a.address)
	return address
}

// Consumed reports whether the authority was already used.
func (a *DelegatedAuthority) Consumed() bool {
	return a.consumed
}

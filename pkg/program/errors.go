// Package program holds helpers shared by the on-ledger programs: the error
// type they report, derived address validation and account lifecycle
// primitives built on cross-program invocation.
package program

import (
	"github.com/code-payments/code-custody/pkg/solana"
)

// ErrorCodeOffset is the first custom error code used by programs, leaving
// lower codes to the native programs.
const ErrorCodeOffset = 6000

// Error is a program failure carrying a custom error code. It matches the
// bare solana.CustomError of the same code, which is all a failure carries
// once it has crossed the RPC boundary.
type Error struct {
	code solana.CustomError
	msg  string
}

func newError(offset int, msg string) Error {
	return Error{
		code: solana.CustomError(ErrorCodeOffset + offset),
		msg:  msg,
	}
}

func (e Error) Error() string {
	return e.msg
}

// CustomErrorCode returns the code reported in the instruction error.
func (e Error) CustomErrorCode() solana.CustomError {
	return e.code
}

func (e Error) Is(target error) bool {
	code, ok := target.(solana.CustomError)
	return ok && code == e.code
}

var (
	ErrAddressMismatch     = newError(0, "account does not match the derived address")
	ErrRecordAlreadyExists = newError(1, "record already exists")
	ErrRecordNotFound      = newError(2, "record not found")
	ErrUnauthorizedCaller  = newError(3, "caller is not authorized")
	ErrDerivationExhausted = newError(4, "no valid bump for derived address")
	ErrInvalidAmount       = newError(5, "amount must be positive")
	ErrInvalidMint         = newError(6, "invalid mint")
	ErrInvalidTokenAccount = newError(7, "invalid token account")
)

// ErrInsufficientBalance is reported by the system and token programs when a
// transfer source lacks the amount.
var ErrInsufficientBalance error = solana.InstructionErrorInsufficientFunds

// Errors returns every program error, in code order.
func Errors() []Error {
	return []Error{
		ErrAddressMismatch,
		ErrRecordAlreadyExists,
		ErrRecordNotFound,
		ErrUnauthorizedCaller,
		ErrDerivationExhausted,
		ErrInvalidAmount,
		ErrInvalidMint,
		ErrInvalidTokenAccount,
	}
}

// FromCustomError returns the program error with the provided code.
func FromCustomError(code solana.CustomError) (Error, bool) {
	for _, err := range Errors() {
		if err.code == code {
			return err, true
		}
	}
	return Error{}, false
}

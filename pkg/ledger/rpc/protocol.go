package rpc

import (
	"encoding/json"

	"github.com/code-payments/code-custody/pkg/solana"
)

const (
	version = "2.0"

	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeRateLimited    = 429
)

type request struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type response struct {
	Version string          `json:"jsonrpc"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

func newError(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

func invalidParams(message string) *Error {
	return newError(solana.RPCCodeInvalidParams, "Invalid params: "+message)
}

func internalError(err error) *Error {
	return newError(solana.RPCCodeInternal, "Internal error: "+err.Error())
}

// transactionFailed reports a transaction the ledger rejected, carrying the
// error in the shape solana.ParseRPCError expects.
func transactionFailed(txErr *solana.TransactionError) *Error {
	return &Error{
		Code:    solana.RPCCodeTransactionFailed,
		Message: "Transaction failed: " + txErr.Error(),
		Data: map[string]interface{}{
			"err":  txErr.Raw(),
			"logs": []string{},
		},
	}
}

type contextResult struct {
	Context struct {
		Slot uint64 `json:"slot"`
	} `json:"context"`
	Value interface{} `json:"value"`
}

func withContext(slot uint64, value interface{}) *contextResult {
	result := &contextResult{Value: value}
	result.Context.Slot = slot
	return result
}

type accountInfo struct {
	Data       []string `json:"data"`
	Executable bool     `json:"executable"`
	Lamports   uint64   `json:"lamports"`
	Owner      string   `json:"owner"`
	RentEpoch  uint64   `json:"rentEpoch"`
	Space      int      `json:"space"`
}

type keyedAccountInfo struct {
	Pubkey  string       `json:"pubkey"`
	Account *accountInfo `json:"account"`
}

type tokenAmount struct {
	Amount         string  `json:"amount"`
	Decimals       uint8   `json:"decimals"`
	UIAmount       float64 `json:"uiAmount"`
	UIAmountString string  `json:"uiAmountString"`
}

type blockhashResult struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

type signatureStatus struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *int        `json:"confirmations"`
	ConfirmationStatus string      `json:"confirmationStatus"`
	Err                interface{} `json:"err"`
	Status             interface{} `json:"status"`
}

// requestConfig is the union of the optional configuration objects the
// supported methods accept.
type requestConfig struct {
	Commitment               string `json:"commitment"`
	Encoding                 string `json:"encoding"`
	SkipPreflight            bool   `json:"skipPreflight"`
	SearchTransactionHistory bool   `json:"searchTransactionHistory"`
}

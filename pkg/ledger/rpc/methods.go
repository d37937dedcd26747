package rpc

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"strconv"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-custody/pkg/ledger"
	"github.com/code-payments/code-custody/pkg/solana"
)

const (
	encodingBase58 = "base58"
	encodingBase64 = "base64"

	maxSignatureStatuses = 256
)

func (s *Server) getHealth(_ context.Context, _ []json.RawMessage) (interface{}, *Error) {
	return "ok", nil
}

func (s *Server) getAccountInfo(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	address, rpcErr := parseAddress(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}
	config, rpcErr := parseConfig(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}

	account, err := s.bank.GetAccount(ctx, address)
	if err == ledger.ErrAccountNotFound {
		return withContext(s.bank.GetSlot(), nil), nil
	} else if err != nil {
		return nil, internalError(err)
	}

	info, rpcErr := toAccountInfo(account, config.Encoding)
	if rpcErr != nil {
		return nil, rpcErr
	}
	return withContext(s.bank.GetSlot(), info), nil
}

func (s *Server) getBalance(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	address, rpcErr := parseAddress(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}

	balance, err := s.bank.GetBalance(ctx, address)
	if err != nil {
		return nil, internalError(err)
	}
	return withContext(s.bank.GetSlot(), balance), nil
}

func (s *Server) getTokenAccountBalance(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	address, rpcErr := parseAddress(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}

	amount, decimals, err := s.bank.GetTokenBalance(ctx, address)
	switch err {
	case nil:
	case ledger.ErrAccountNotFound:
		return nil, invalidParams("could not find account")
	case ledger.ErrNotTokenAccount:
		return nil, invalidParams("not a Token account")
	default:
		return nil, internalError(err)
	}

	ui := strconv.FormatFloat(float64(amount)/pow10(decimals), 'f', -1, 64)
	uiAmount, _ := strconv.ParseFloat(ui, 64)

	return withContext(s.bank.GetSlot(), &tokenAmount{
		Amount:         strconv.FormatUint(amount, 10),
		Decimals:       decimals,
		UIAmount:       uiAmount,
		UIAmountString: ui,
	}), nil
}

func (s *Server) getMinimumBalanceForRentExemption(_ context.Context, params []json.RawMessage) (interface{}, *Error) {
	if len(params) < 1 {
		return nil, invalidParams("missing data size")
	}

	var size uint64
	if err := json.Unmarshal(params[0], &size); err != nil {
		return nil, invalidParams("invalid data size")
	}
	return s.bank.GetMinimumBalanceForRentExemption(int(size)), nil
}

func (s *Server) getLatestBlockhash(_ context.Context, _ []json.RawMessage) (interface{}, *Error) {
	blockhash, slot := s.bank.GetLatestBlockhash()

	return withContext(slot, &blockhashResult{
		Blockhash:            base58.Encode(blockhash[:]),
		LastValidBlockHeight: s.bank.GetLastValidSlot(),
	}), nil
}

func (s *Server) getSlot(_ context.Context, _ []json.RawMessage) (interface{}, *Error) {
	return s.bank.GetSlot(), nil
}

func (s *Server) getProgramAccounts(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	program, rpcErr := parseAddress(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}
	config, rpcErr := parseConfig(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}

	accounts, err := s.bank.GetProgramAccounts(ctx, program)
	if err != nil {
		return nil, internalError(err)
	}

	result := make([]*keyedAccountInfo, len(accounts))
	for i, account := range accounts {
		info, rpcErr := toAccountInfo(account.Account, config.Encoding)
		if rpcErr != nil {
			return nil, rpcErr
		}

		result[i] = &keyedAccountInfo{
			Pubkey:  base58.Encode(account.Address),
			Account: info,
		}
	}
	return result, nil
}

func (s *Server) getSignatureStatuses(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	if len(params) < 1 {
		return nil, invalidParams("missing signatures")
	}

	var encoded []string
	if err := json.Unmarshal(params[0], &encoded); err != nil {
		return nil, invalidParams("expected an array of signatures")
	}
	if len(encoded) > maxSignatureStatuses {
		return nil, invalidParams("too many signatures")
	}

	statuses := make([]*signatureStatus, len(encoded))
	for i, value := range encoded {
		sig, rpcErr := decodeSignature(value)
		if rpcErr != nil {
			return nil, rpcErr
		}

		status, err := s.bank.GetSignatureStatus(ctx, sig)
		if err == ledger.ErrSignatureNotFound {
			continue
		} else if err != nil {
			return nil, internalError(err)
		}

		statuses[i] = &signatureStatus{
			Slot:               status.Slot,
			ConfirmationStatus: solana.ConfirmationStatusFinalized,
			Status:             map[string]interface{}{"Ok": nil},
		}
		if status.Err != nil {
			statuses[i].Err = status.Err.Raw()
			statuses[i].Status = map[string]interface{}{"Err": status.Err.Raw()}
		}
	}

	return withContext(s.bank.GetSlot(), statuses), nil
}

func (s *Server) sendTransaction(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	if len(params) < 1 {
		return nil, invalidParams("missing transaction")
	}

	var encoded string
	if err := json.Unmarshal(params[0], &encoded); err != nil {
		return nil, invalidParams("expected an encoded transaction")
	}
	config, rpcErr := parseConfig(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}

	var raw []byte
	var err error
	switch config.Encoding {
	case "", encodingBase58:
		raw, err = base58.Decode(encoded)
	case encodingBase64:
		raw, err = base64.StdEncoding.DecodeString(encoded)
	default:
		return nil, invalidParams("unsupported encoding " + config.Encoding)
	}
	if err != nil {
		return nil, invalidParams("invalid transaction encoding")
	}

	var txn solana.Transaction
	if err := txn.Unmarshal(raw); err != nil {
		return nil, invalidParams("failed to deserialize transaction: " + err.Error())
	}

	sig, err := s.bank.ProcessTransaction(ctx, txn)
	if rpcErr := toRPCError(err); rpcErr != nil {
		return nil, rpcErr
	}
	return sig.String(), nil
}

func (s *Server) requestAirdrop(ctx context.Context, params []json.RawMessage) (interface{}, *Error) {
	address, rpcErr := parseAddress(params, 0)
	if rpcErr != nil {
		return nil, rpcErr
	}
	if len(params) < 2 {
		return nil, invalidParams("missing lamports")
	}

	var lamports uint64
	if err := json.Unmarshal(params[1], &lamports); err != nil {
		return nil, invalidParams("invalid lamports")
	}

	allowed, err := s.airdropLimiter.Allow(base58.Encode(address))
	if err != nil {
		return nil, internalError(err)
	} else if !allowed {
		return nil, newError(codeRateLimited, "airdrop rate limit exceeded")
	}

	sig, err := s.bank.RequestAirdrop(ctx, address, lamports)
	switch err {
	case ledger.ErrAirdropsDisabled, ledger.ErrAirdropTooLarge, ledger.ErrInvalidAirdrop:
		return nil, invalidParams(err.Error())
	}
	if rpcErr := toRPCError(err); rpcErr != nil {
		return nil, rpcErr
	}
	return sig.String(), nil
}

func toRPCError(err error) *Error {
	if err == nil {
		return nil
	}

	var txErr *solana.TransactionError
	if errors.As(err, &txErr) {
		return transactionFailed(txErr)
	}
	return internalError(err)
}

func toAccountInfo(account *ledger.Account, encoding string) (*accountInfo, *Error) {
	info := &accountInfo{
		Executable: account.Executable,
		Lamports:   account.Lamports,
		Owner:      base58.Encode(account.Owner),
		Space:      len(account.Data),
	}

	switch encoding {
	case "", encodingBase64:
		info.Data = []string{base64.StdEncoding.EncodeToString(account.Data), encodingBase64}
	case encodingBase58:
		info.Data = []string{base58.Encode(account.Data), encodingBase58}
	default:
		return nil, invalidParams("unsupported encoding " + encoding)
	}
	return info, nil
}

func parseAddress(params []json.RawMessage, index int) (ed25519.PublicKey, *Error) {
	if len(params) <= index {
		return nil, invalidParams("missing address")
	}

	var encoded string
	if err := json.Unmarshal(params[index], &encoded); err != nil {
		return nil, invalidParams("expected a base58 address")
	}

	decoded, err := base58.Decode(encoded)
	if err != nil || len(decoded) != ed25519.PublicKeySize {
		return nil, invalidParams("invalid address " + encoded)
	}
	return decoded, nil
}

func parseConfig(params []json.RawMessage, index int) (*requestConfig, *Error) {
	var config requestConfig
	if len(params) <= index || string(params[index]) == "null" {
		return &config, nil
	}

	if err := json.Unmarshal(params[index], &config); err != nil {
		return nil, invalidParams("invalid configuration")
	}
	return &config, nil
}

func decodeSignature(encoded string) (solana.Signature, *Error) {
	var sig solana.Signature

	decoded, err := base58.Decode(encoded)
	if err != nil || len(decoded) != len(sig) {
		return sig, invalidParams("invalid signature " + encoded)
	}

	copy(sig[:], decoded)
	return sig, nil
}

func pow10(decimals uint8) float64 {
	v := 1.0
	for i := uint8(0); i < decimals; i++ {
		v *= 10
	}
	return v
}

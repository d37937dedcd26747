package ledger

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-custody/pkg/database/query"
	"github.com/code-payments/code-custody/pkg/ledger/data"
	"github.com/code-payments/code-custody/pkg/ledger/data/account"
	"github.com/code-payments/code-custody/pkg/ledger/data/signature"
	"github.com/code-payments/code-custody/pkg/metrics"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/system"
	"github.com/code-payments/code-custody/pkg/solana/token"

	sync_util "github.com/code-payments/code-custody/pkg/sync"
)

const (
	metricsStructName = "ledger.bank"

	transactionEventName = "LedgerTransaction"

	signatureFilterFalsePositiveRate = 0.001
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrNotTokenAccount   = errors.New("account is not a token account")
	ErrSignatureNotFound = errors.New("signature not found")
	ErrProgramRegistered = errors.New("program already registered")
)

// SignatureStatus is the processing outcome of a transaction.
type SignatureStatus struct {
	Slot uint64
	Err  *solana.TransactionError
}

// KeyedAccount is an account along with its address.
type KeyedAccount struct {
	Address ed25519.PublicKey
	*Account
}

// Bank processes transactions against the ledger state held by a
// data.Provider. Transactions touching disjoint accounts execute
// concurrently.
type Bank struct {
	log  *logrus.Entry
	conf *conf
	data data.Provider

	rent      Rent
	locks     *sync_util.StripedLock
	estimated data.EstimatedSignatures

	programsMu sync.RWMutex
	programs   map[string]Program

	stateMu     sync.RWMutex
	blockhashes *blockhashQueue

	faucet ed25519.PrivateKey
}

// NewBank returns a bank over the provided data, with the native system,
// token and associated token account programs registered.
func NewBank(ctx context.Context, provider data.Provider, configProvider ConfigProvider) (*Bank, error) {
	conf := configProvider()

	// Blockhashes from a previous run must not validate after a restart.
	id := uuid.New()
	genesis := solana.Blockhash(sha256.Sum256(id[:]))

	b := &Bank{
		log:  logrus.StandardLogger().WithField("type", "ledger/bank"),
		conf: conf,
		data: provider,
		rent: Rent{
			LamportsPerByteYear: conf.lamportsPerByteYear.Get(ctx),
			ExemptionThreshold:  conf.rentExemptionThreshold.Get(ctx),
		},
		locks:       sync_util.NewStripedLock(uint(conf.accountLockStripes.Get(ctx))),
		estimated:   data.NewEstimatedSignatures(uint(conf.signatureFilterSize.Get(ctx)), signatureFilterFalsePositiveRate),
		programs:    make(map[string]Program),
		blockhashes: newBlockhashQueue(int(conf.maxRecentBlockhashes.Get(ctx)), genesis),
		faucet:      faucetKey(),
	}

	b.programs[string(system.ProgramKey)] = &systemProgram{}
	b.programs[string(token.ProgramKey)] = &tokenProgram{}
	b.programs[string(token.AssociatedTokenAccountProgramKey)] = &associatedTokenProgram{}

	if err := b.seedFaucet(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to seed faucet")
	}

	return b, nil
}

// NewTestBank returns a bank over in memory stores with test defaults.
func NewTestBank(ctx context.Context) (*Bank, error) {
	return NewBank(ctx, data.NewTestDataProvider(), WithTestOverrides(&TestOverrides{}))
}

// RegisterProgram makes a program executable at the provided id.
func (b *Bank) RegisterProgram(id ed25519.PublicKey, program Program) error {
	if len(id) != ed25519.PublicKeySize {
		return errors.Errorf("invalid program id length: %d", len(id))
	}

	b.programsMu.Lock()
	defer b.programsMu.Unlock()

	if _, ok := b.programs[string(id)]; ok {
		return ErrProgramRegistered
	}
	b.programs[string(id)] = program

	b.log.WithField("program", base58.Encode(id)).Info("program registered")
	return nil
}

// ProcessTransaction executes a signed transaction. The working set is
// committed only if every instruction succeeds. Failures after validation
// are recorded against the signature and returned as a
// *solana.TransactionError.
func (b *Bank) ProcessTransaction(ctx context.Context, txn solana.Transaction) (sig solana.Signature, err error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "ProcessTransaction")
	defer tracer.End()

	start := time.Now()

	if err := b.sanitize(&txn); err != nil {
		return sig, err
	}
	sig = txn.Signatures[0]

	log := b.log.WithFields(logrus.Fields{
		"method":    "ProcessTransaction",
		"signature": sig.String(),
	})

	if err := txn.VerifySignatures(); err != nil {
		log.WithError(err).Debug("signature verification failed")
		return sig, solana.NewTransactionError(solana.TransactionErrorSignatureFailure)
	}

	if !b.isRecentBlockhash(txn.Message.RecentBlockhash) {
		return sig, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}

	if err := b.checkDuplicate(ctx, sig); err != nil {
		return sig, err
	}

	writable, readonly := b.lockKeys(&txn.Message)
	unlock := b.locks.LockAll(writable, readonly)
	defer unlock()

	// Another transaction with the same signature may have held the locks.
	if err := b.checkDuplicate(ctx, sig); err != nil {
		return sig, err
	}

	tx, err := b.load(ctx, log, &txn)
	if err != nil {
		tracer.OnError(err)
		log.WithError(err).Warn("failure loading accounts")
		return sig, err
	}

	var txErr *solana.TransactionError
	if execErr := tx.execute(); execErr != nil {
		txErr, err = toTransactionError(execErr)
		if err != nil {
			tracer.OnError(err)
			return sig, err
		}
		log.WithError(execErr).Debug("transaction failed")
	}

	slot := b.advance()

	record := &signature.Record{
		Signature: sig.String(),
		Slot:      slot,
		CreatedAt: time.Now(),
	}
	if txErr != nil {
		record.Err, err = txErr.JSONString()
		if err != nil {
			return sig, errors.Wrap(err, "failed to encode transaction error")
		}
	}

	err = b.data.ExecuteInTx(ctx, func(ctx context.Context) error {
		if err := b.data.SaveSignature(ctx, record); err != nil {
			return err
		}

		if txErr != nil {
			return nil
		}

		updates, deletes := tx.changes(slot)
		return b.data.CommitAccounts(ctx, updates, deletes)
	})
	if err == signature.ErrAlreadyExists {
		return sig, solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
	} else if err != nil {
		tracer.OnError(err)
		log.WithError(err).Warn("failure committing transaction")
		return sig, err
	}

	if err := b.estimated.AddKnownSignature(ctx, sig[:]); err != nil {
		log.WithError(err).Warn("failure adding signature to filter")
	}

	metrics.RecordEvent(ctx, transactionEventName, map[string]interface{}{
		"success":      txErr == nil,
		"instructions": len(txn.Message.Instructions),
		"slot":         slot,
	})
	metrics.RecordDuration(ctx, "Ledger/ProcessTransaction", time.Since(start))

	if txErr != nil {
		return sig, txErr
	}

	log.WithField("slot", slot).Trace("transaction committed")
	return sig, nil
}

func toTransactionError(err error) (*solana.TransactionError, error) {
	switch typed := err.(type) {
	case *solana.TransactionError:
		return typed, nil
	case solana.InstructionError:
		return solana.TransactionErrorFromInstructionError(&typed)
	default:
		return nil, errors.Wrap(err, "unexpected execution error")
	}
}

// sanitize rejects malformed transactions before any state is consulted.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/program/src/message/legacy.rs#L312
func (b *Bank) sanitize(txn *solana.Transaction) error {
	sanitizeFailure := solana.NewTransactionError(solana.TransactionErrorSanitizeFailure)

	m := &txn.Message
	numSignatures := int(m.Header.NumSignatures)

	if numSignatures == 0 || len(txn.Signatures) != numSignatures {
		return sanitizeFailure
	}
	if int(m.Header.NumReadonlySigned) >= numSignatures {
		return sanitizeFailure
	}
	if numSignatures+int(m.Header.NumReadOnly) > len(m.Accounts) {
		return sanitizeFailure
	}
	if len(txn.Marshal()) > solana.MaxTransactionSize {
		return sanitizeFailure
	}

	seen := make(map[string]struct{}, len(m.Accounts))
	for _, key := range m.Accounts {
		if len(key) != ed25519.PublicKeySize {
			return sanitizeFailure
		}
		if _, ok := seen[string(key)]; ok {
			return solana.NewTransactionError(solana.TransactionErrorAccountLoadedTwice)
		}
		seen[string(key)] = struct{}{}
	}

	for _, ix := range m.Instructions {
		// The fee payer can never be a program.
		if ix.ProgramIndex == 0 || int(ix.ProgramIndex) >= len(m.Accounts) {
			return sanitizeFailure
		}
		for _, index := range ix.Accounts {
			if int(index) >= len(m.Accounts) {
				return sanitizeFailure
			}
		}
	}

	b.programsMu.RLock()
	defer b.programsMu.RUnlock()
	for _, ix := range m.Instructions {
		if _, ok := b.programs[string(m.Accounts[ix.ProgramIndex])]; !ok {
			return solana.NewTransactionError(solana.TransactionErrorProgramAccountNotFound)
		}
	}

	return nil
}

func (b *Bank) checkDuplicate(ctx context.Context, sig solana.Signature) error {
	maybeKnown, err := b.estimated.TestForKnownSignature(ctx, sig[:])
	if err != nil {
		return err
	}
	if !maybeKnown {
		return nil
	}

	_, err = b.data.GetSignature(ctx, sig.String())
	switch err {
	case nil:
		return solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
	case signature.ErrNotFound:
		return nil
	default:
		return err
	}
}

func (b *Bank) lockKeys(m *solana.Message) (writable, readonly [][]byte) {
	for i, key := range m.Accounts {
		if m.IsWritable(i) && !b.isVirtual(key) {
			writable = append(writable, key)
		} else {
			readonly = append(readonly, key)
		}
	}
	return writable, readonly
}

// isVirtual reports whether the account at key is synthesized by the bank
// rather than stored. Virtual accounts are always read only.
func (b *Bank) isVirtual(key ed25519.PublicKey) bool {
	if string(key) == string(system.RentSysVar) {
		return true
	}

	b.programsMu.RLock()
	_, ok := b.programs[string(key)]
	b.programsMu.RUnlock()
	return ok
}

func (b *Bank) virtualAccount(key ed25519.PublicKey) (*Account, bool) {
	if string(key) == string(system.RentSysVar) {
		return &Account{
			Lamports: 1,
			Data:     b.rent.Marshal(),
			Owner:    SysvarOwnerKey,
		}, true
	}

	b.programsMu.RLock()
	_, ok := b.programs[string(key)]
	b.programsMu.RUnlock()
	if ok {
		return &Account{
			Lamports:   1,
			Owner:      NativeLoaderKey,
			Executable: true,
		}, true
	}

	return nil, false
}

func (b *Bank) load(ctx context.Context, log *logrus.Entry, txn *solana.Transaction) (*transactionContext, error) {
	m := &txn.Message

	tx := &transactionContext{
		ctx:      ctx,
		log:      log,
		rent:     b.rent,
		programs: b.snapshotPrograms(),
		message:  *m,
		keys:     m.Accounts,
		accounts: make([]*Account, len(m.Accounts)),
		loaded:   make([]*Account, len(m.Accounts)),
		existed:  make([]bool, len(m.Accounts)),
		writable: make([]bool, len(m.Accounts)),
	}

	var addresses []string
	for _, key := range m.Accounts {
		if !b.isVirtual(key) {
			addresses = append(addresses, base58.Encode(key))
		}
	}

	records, err := b.data.GetAccounts(ctx, addresses...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load accounts")
	}

	byAddress := make(map[string]*account.Record, len(records))
	for _, record := range records {
		byAddress[record.Address] = record
	}

	for i, key := range m.Accounts {
		loaded, virtual := b.virtualAccount(key)
		if !virtual {
			if record, ok := byAddress[base58.Encode(key)]; ok {
				loaded, err = fromRecord(record)
				if err != nil {
					return nil, err
				}
				tx.existed[i] = true
			} else {
				loaded = newEmptyAccount()
			}
		}

		tx.accounts[i] = loaded
		tx.loaded[i] = loaded.Clone()
		tx.writable[i] = m.IsWritable(i) && !virtual
	}

	return tx, nil
}

func (b *Bank) snapshotPrograms() map[string]Program {
	b.programsMu.RLock()
	defer b.programsMu.RUnlock()

	programs := make(map[string]Program, len(b.programs))
	for id, p := range b.programs {
		programs[id] = p
	}
	return programs
}

func (b *Bank) isRecentBlockhash(hash solana.Blockhash) bool {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.blockhashes.contains(hash)
}

func (b *Bank) advance() uint64 {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.blockhashes.advance()
}

// GetLatestBlockhash returns the most recent blockhash and the slot that
// produced it.
func (b *Bank) GetLatestBlockhash() (solana.Blockhash, uint64) {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.blockhashes.latest, b.blockhashes.slot
}

// GetLastValidSlot returns the last slot at which the latest blockhash is
// still accepted.
func (b *Bank) GetLastValidSlot() uint64 {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.blockhashes.slot + uint64(b.blockhashes.capacity) - 1
}

// GetSlot returns the current slot.
func (b *Bank) GetSlot() uint64 {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.blockhashes.slot
}

// GetMinimumBalanceForRentExemption returns the balance an account holding
// size bytes must keep.
func (b *Bank) GetMinimumBalanceForRentExemption(size int) uint64 {
	return b.rent.MinimumBalance(size)
}

// Rent returns the rent parameters of the ledger.
func (b *Bank) Rent() Rent {
	return b.rent
}

// GetAccount returns the account at address. Program ids and sysvars are
// returned as the runtime sees them.
func (b *Bank) GetAccount(ctx context.Context, address ed25519.PublicKey) (*Account, error) {
	if virtual, ok := b.virtualAccount(address); ok {
		return virtual, nil
	}

	record, err := b.data.GetAccount(ctx, base58.Encode(address))
	if err == account.ErrAccountNotFound {
		return nil, ErrAccountNotFound
	} else if err != nil {
		return nil, err
	}

	return fromRecord(record)
}

// GetBalance returns the lamports held at address, which is zero for
// addresses holding no account.
func (b *Bank) GetBalance(ctx context.Context, address ed25519.PublicKey) (uint64, error) {
	a, err := b.GetAccount(ctx, address)
	if err == ErrAccountNotFound {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return a.Lamports, nil
}

// GetTokenBalance returns the token amount held by a token account along with
// the decimals of its mint.
func (b *Bank) GetTokenBalance(ctx context.Context, address ed25519.PublicKey) (uint64, uint8, error) {
	a, err := b.GetAccount(ctx, address)
	if err != nil {
		return 0, 0, err
	}

	var tokenAccount token.Account
	if string(a.Owner) != string(token.ProgramKey) || !tokenAccount.Unmarshal(a.Data) || tokenAccount.State == token.AccountStateUninitialized {
		return 0, 0, ErrNotTokenAccount
	}

	mintAccount, err := b.GetAccount(ctx, tokenAccount.Mint)
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to load mint")
	}

	var mint token.Mint
	if !mint.Unmarshal(mintAccount.Data) {
		return 0, 0, ErrNotTokenAccount
	}

	return tokenAccount.Amount, mint.Decimals, nil
}

// GetProgramAccounts returns every account owned by the provided program.
func (b *Bank) GetProgramAccounts(ctx context.Context, owner ed25519.PublicKey) ([]KeyedAccount, error) {
	var result []KeyedAccount
	var cursor query.Cursor
	for {
		opts := []query.Option{query.WithLimit(100)}
		if cursor != nil {
			opts = append(opts, query.WithCursor(cursor))
		}

		records, err := b.data.GetAccountsByOwner(ctx, base58.Encode(owner), opts...)
		if err == account.ErrAccountNotFound {
			return result, nil
		} else if err != nil {
			return nil, err
		}

		for _, record := range records {
			address, err := base58.Decode(record.Address)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid address %s", record.Address)
			}

			a, err := fromRecord(record)
			if err != nil {
				return nil, err
			}

			result = append(result, KeyedAccount{Address: address, Account: a})
		}

		cursor = query.ToCursor(records[len(records)-1].Id)
	}
}

// GetSignatureStatus returns the outcome of a processed transaction.
func (b *Bank) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error) {
	record, err := b.data.GetSignature(ctx, sig.String())
	if err == signature.ErrNotFound {
		return nil, ErrSignatureNotFound
	} else if err != nil {
		return nil, err
	}

	status := &SignatureStatus{
		Slot: record.Slot,
	}
	if record.Succeeded() {
		return status, nil
	}

	var raw interface{}
	if err := json.Unmarshal([]byte(record.Err), &raw); err != nil {
		return nil, errors.Wrap(err, "invalid stored transaction error")
	}

	status.Err, err = solana.ParseTransactionError(raw)
	if err != nil {
		return nil, errors.Wrap(err, "invalid stored transaction error")
	}
	return status, nil
}

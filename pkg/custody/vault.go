package custody

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-custody/pkg/cache"
	"github.com/code-payments/code-custody/pkg/metrics"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/vault"
)

// VaultClient operates an owner's custodial vault.
type VaultClient struct {
	log       *logrus.Entry
	program   ed25519.PublicKey
	addresses cache.Cache
	submitter
}

// NewVaultClient returns a client for the vault program deployed at program.
func NewVaultClient(sc solana.Client, program ed25519.PublicKey) *VaultClient {
	return &VaultClient{
		log:       logrus.StandardLogger().WithField("type", "custody/vault"),
		program:   program,
		addresses: cache.New(addressCacheSize),
		submitter: submitter{
			sc:         sc,
			commitment: solana.CommitmentFinalized,
		},
	}
}

// Addresses derives the owner's state record and custodial balance addresses.
func (c *VaultClient) Addresses(owner ed25519.PublicKey) (*vault.Addresses, error) {
	key := base58.Encode(owner)

	if cached, ok := c.addresses.Retrieve(key); ok {
		addresses := *cached.(*vault.Addresses)
		return &addresses, nil
	}

	addresses, err := vault.GetAddresses(c.program, owner)
	if err != nil {
		return nil, err
	}

	// A concurrent caller may have derived the same addresses first.
	_ = c.addresses.Insert(key, addresses, 1)

	copied := *addresses
	return &copied, nil
}

// Initialize creates the owner's state record.
func (c *VaultClient) Initialize(ctx context.Context, owner ed25519.PrivateKey) (solana.Signature, error) {
	accounts, err := c.instructionAccounts(owner)
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := c.submit(ctx, "Initialize", []ed25519.PrivateKey{owner}, vault.NewInitializeInstruction(c.program, accounts))
	c.logResult("Initialize", accounts, 0, sig, err)
	return sig, err
}

// Deposit moves lamports from the owner into custody. The first deposit must
// leave the custodial balance rent exempt.
func (c *VaultClient) Deposit(ctx context.Context, owner ed25519.PrivateKey, lamports uint64) (solana.Signature, error) {
	accounts, err := c.instructionAccounts(owner)
	if err != nil {
		return solana.Signature{}, err
	}

	ix := vault.NewDepositInstruction(c.program, accounts, &vault.AmountInstructionArgs{Amount: lamports})
	sig, err := c.submit(ctx, "Deposit", []ed25519.PrivateKey{owner}, ix)
	c.logResult("Deposit", accounts, lamports, sig, err)
	return sig, err
}

// Withdraw moves lamports from custody back to the owner.
func (c *VaultClient) Withdraw(ctx context.Context, owner ed25519.PrivateKey, lamports uint64) (solana.Signature, error) {
	accounts, err := c.instructionAccounts(owner)
	if err != nil {
		return solana.Signature{}, err
	}

	ix := vault.NewWithdrawInstruction(c.program, accounts, &vault.AmountInstructionArgs{Amount: lamports})
	sig, err := c.submit(ctx, "Withdraw", []ed25519.PrivateKey{owner}, ix)
	c.logResult("Withdraw", accounts, lamports, sig, err)
	return sig, err
}

// Close returns the full custodial balance and the record's rent to the
// owner, deleting the record.
func (c *VaultClient) Close(ctx context.Context, owner ed25519.PrivateKey) (solana.Signature, error) {
	accounts, err := c.instructionAccounts(owner)
	if err != nil {
		return solana.Signature{}, err
	}

	sig, err := c.submit(ctx, "Close", []ed25519.PrivateKey{owner}, vault.NewCloseInstruction(c.program, accounts))
	c.logResult("Close", accounts, 0, sig, err)
	return sig, err
}

// GetState returns the owner's state record, or program.ErrRecordNotFound.
func (c *VaultClient) GetState(ctx context.Context, owner ed25519.PublicKey) (*vault.VaultStateAccount, error) {
	addresses, err := c.Addresses(owner)
	if err != nil {
		return nil, err
	}

	data, err := c.getRecord(ctx, "GetState", addresses.State, c.program)
	if err != nil {
		return nil, err
	}

	var state vault.VaultStateAccount
	if err := state.Unmarshal(data); err != nil {
		return nil, errors.Wrap(err, "invalid vault state")
	}
	return &state, nil
}

// GetBalance returns the lamports held in custody for the owner.
func (c *VaultClient) GetBalance(ctx context.Context, owner ed25519.PublicKey) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetBalance")
	defer tracer.End()

	addresses, err := c.Addresses(owner)
	if err != nil {
		return 0, err
	}

	balance, err := c.sc.GetBalance(addresses.Vault)
	if err == solana.ErrNoBalance {
		return 0, nil
	} else if err != nil {
		tracer.OnError(err)
		return 0, errors.Wrap(err, "failed to get custodial balance")
	}
	return balance, nil
}

func (c *VaultClient) instructionAccounts(owner ed25519.PrivateKey) (*vault.InstructionAccounts, error) {
	ownerKey := owner.Public().(ed25519.PublicKey)

	addresses, err := c.Addresses(ownerKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive vault addresses")
	}

	return &vault.InstructionAccounts{
		Owner:      ownerKey,
		Vault:      addresses.Vault,
		VaultState: addresses.State,
	}, nil
}

func (c *VaultClient) logResult(method string, accounts *vault.InstructionAccounts, lamports uint64, sig solana.Signature, err error) {
	log := c.log.WithFields(logrus.Fields{
		"method":   method,
		"owner":    base58.Encode(accounts.Owner),
		"lamports": lamports,
	})

	if err != nil {
		log.WithError(err).Info("vault operation failed")
		return
	}
	log.WithField("signature", sig.String()).Debug("vault operation submitted")
}

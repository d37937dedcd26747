package custody

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/code-payments/code-custody/pkg/cache"
	"github.com/code-payments/code-custody/pkg/metrics"
	"github.com/code-payments/code-custody/pkg/solana"
	"github.com/code-payments/code-custody/pkg/solana/escrow"
	"github.com/code-payments/code-custody/pkg/solana/token"
)

// ErrTermsChanged is returned by Take when the open offer no longer has the
// terms the taker agreed to.
var ErrTermsChanged = errors.New("escrow offer terms changed")

// Offer is an open escrow along with the derived addresses holding it.
type Offer struct {
	Address ed25519.PublicKey
	Vault   ed25519.PublicKey

	// Deposited is the amount of mint_a currently held by the vault.
	Deposited uint64

	Record *escrow.EscrowAccount
}

func (o *Offer) matches(terms *Terms) bool {
	return bytes.Equal(o.Record.MintA, terms.MintA) &&
		bytes.Equal(o.Record.MintB, terms.MintB) &&
		o.Record.Receive == terms.Receive &&
		o.Deposited >= terms.Deposit
}

// Terms describe an offer to be made or taken.
type Terms struct {
	Seed    uint64
	MintA   ed25519.PublicKey
	MintB   ed25519.PublicKey
	Deposit uint64
	Receive uint64
}

// Balances are the token holdings of both parties to an escrow.
type Balances struct {
	Vault  uint64
	MakerA uint64
	MakerB uint64
	TakerA uint64
	TakerB uint64
}

// EscrowClient makes, takes and refunds escrow offers.
type EscrowClient struct {
	log       *logrus.Entry
	program   ed25519.PublicKey
	addresses cache.Cache
	submitter
}

// NewEscrowClient returns a client for the escrow program deployed at program.
func NewEscrowClient(sc solana.Client, program ed25519.PublicKey) *EscrowClient {
	return &EscrowClient{
		log:       logrus.StandardLogger().WithField("type", "custody/escrow"),
		program:   program,
		addresses: cache.New(addressCacheSize),
		submitter: submitter{
			sc:         sc,
			commitment: solana.CommitmentFinalized,
		},
	}
}

// Make deposits terms.Deposit of mint_a from the maker's associated token
// account into a new escrow.
func (c *EscrowClient) Make(ctx context.Context, maker ed25519.PrivateKey, terms *Terms) (solana.Signature, error) {
	makerKey := maker.Public().(ed25519.PublicKey)

	log := c.log.WithFields(logrus.Fields{
		"method":  "Make",
		"maker":   base58.Encode(makerKey),
		"seed":    terms.Seed,
		"deposit": terms.Deposit,
		"receive": terms.Receive,
	})

	address, err := c.escrowAddress(makerKey, terms.Seed)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to derive escrow address")
	}
	vault, err := escrow.GetVaultAddress(address, terms.MintA)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to derive vault address")
	}
	makerAtaA, err := token.GetAssociatedAccount(makerKey, terms.MintA)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to derive maker token account")
	}

	ix := escrow.NewMakeInstruction(
		c.program,
		&escrow.MakeInstructionAccounts{
			Maker:     makerKey,
			MintA:     terms.MintA,
			MintB:     terms.MintB,
			MakerAtaA: makerAtaA,
			Escrow:    address,
			Vault:     vault,
		},
		&escrow.MakeInstructionArgs{
			Seed:    terms.Seed,
			Deposit: terms.Deposit,
			Receive: terms.Receive,
		},
	)

	sig, err := c.submit(ctx, "Make", []ed25519.PrivateKey{maker}, ix)
	if err != nil {
		log.WithError(err).Info("failed to make offer")
		return sig, err
	}

	log.WithField("escrow", base58.Encode(address)).Debug("offer made")
	return sig, nil
}

// Take pays the offer's receive amount of mint_b to the maker and collects the
// vault's mint_a. The taker funds any associated token accounts that do not
// yet exist.
//
// The open offer must match expected: same mints, same receive amount and at
// least the expected deposit. Otherwise ErrTermsChanged is returned and nothing
// is submitted. The program does not check this, so a maker may still replace
// the offer between this check and the transaction landing.
func (c *EscrowClient) Take(ctx context.Context, taker ed25519.PrivateKey, maker ed25519.PublicKey, expected *Terms) (solana.Signature, error) {
	takerKey := taker.Public().(ed25519.PublicKey)

	log := c.log.WithFields(logrus.Fields{
		"method":  "Take",
		"maker":   base58.Encode(maker),
		"taker":   base58.Encode(takerKey),
		"seed":    expected.Seed,
		"receive": expected.Receive,
	})

	offer, err := c.GetEscrow(ctx, maker, expected.Seed)
	if err != nil {
		return solana.Signature{}, err
	}

	if !offer.matches(expected) {
		log.WithFields(logrus.Fields{
			"actual_receive": offer.Record.Receive,
			"deposited":      offer.Deposited,
		}).Info("offer terms changed")
		return solana.Signature{}, ErrTermsChanged
	}

	var accounts escrow.TakeInstructionAccounts
	accounts.Taker = takerKey
	accounts.Maker = maker
	accounts.MintA = offer.Record.MintA
	accounts.MintB = offer.Record.MintB
	accounts.Escrow = offer.Address
	accounts.Vault = offer.Vault

	if accounts.TakerAtaA, err = token.GetAssociatedAccount(takerKey, offer.Record.MintA); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to derive taker token account")
	}
	if accounts.TakerAtaB, err = token.GetAssociatedAccount(takerKey, offer.Record.MintB); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to derive taker token account")
	}
	if accounts.MakerAtaB, err = token.GetAssociatedAccount(maker, offer.Record.MintB); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to derive maker token account")
	}

	sig, err := c.submit(ctx, "Take", []ed25519.PrivateKey{taker}, escrow.NewTakeInstruction(c.program, &accounts))
	if err != nil {
		log.WithError(err).Info("failed to take offer")
		return sig, err
	}

	log.Debug("offer taken")
	return sig, nil
}

// Refund returns the vault's mint_a to the maker and closes the escrow.
func (c *EscrowClient) Refund(ctx context.Context, maker ed25519.PrivateKey, seed uint64) (solana.Signature, error) {
	makerKey := maker.Public().(ed25519.PublicKey)

	log := c.log.WithFields(logrus.Fields{
		"method": "Refund",
		"maker":  base58.Encode(makerKey),
		"seed":   seed,
	})

	offer, err := c.GetEscrow(ctx, makerKey, seed)
	if err != nil {
		return solana.Signature{}, err
	}

	makerAtaA, err := token.GetAssociatedAccount(makerKey, offer.Record.MintA)
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to derive maker token account")
	}

	ix := escrow.NewRefundInstruction(
		c.program,
		&escrow.RefundInstructionAccounts{
			Maker:     makerKey,
			MintA:     offer.Record.MintA,
			MakerAtaA: makerAtaA,
			Escrow:    offer.Address,
			Vault:     offer.Vault,
		},
	)

	sig, err := c.submit(ctx, "Refund", []ed25519.PrivateKey{maker}, ix)
	if err != nil {
		log.WithError(err).Info("failed to refund offer")
		return sig, err
	}

	log.Debug("offer refunded")
	return sig, nil
}

// GetEscrow returns the open offer identified by maker and seed, or
// program.ErrRecordNotFound.
func (c *EscrowClient) GetEscrow(ctx context.Context, maker ed25519.PublicKey, seed uint64) (*Offer, error) {
	address, err := c.escrowAddress(maker, seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive escrow address")
	}

	data, err := c.getRecord(ctx, "GetEscrow", address, c.program)
	if err != nil {
		return nil, err
	}

	var record escrow.EscrowAccount
	if err := record.Unmarshal(data); err != nil {
		return nil, errors.Wrap(err, "invalid escrow record")
	}

	vault, err := escrow.GetVaultAddress(address, record.MintA)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive vault address")
	}

	deposited, err := c.tokenBalance(vault)
	if err != nil {
		return nil, err
	}

	return &Offer{
		Address:   address,
		Vault:     vault,
		Deposited: deposited,
		Record:    &record,
	}, nil
}

// Snapshot reads the balances of both parties and the vault concurrently.
// Token accounts that do not exist read as zero.
func (c *EscrowClient) Snapshot(ctx context.Context, maker, taker, mintA, mintB ed25519.PublicKey, seed uint64) (*Balances, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "Snapshot")
	defer tracer.End()

	address, err := c.escrowAddress(maker, seed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive escrow address")
	}

	var balances Balances
	targets := []struct {
		wallet ed25519.PublicKey
		mint   ed25519.PublicKey
		out    *uint64
	}{
		{address, mintA, &balances.Vault},
		{maker, mintA, &balances.MakerA},
		{maker, mintB, &balances.MakerB},
		{taker, mintA, &balances.TakerA},
		{taker, mintB, &balances.TakerB},
	}

	eg, _ := errgroup.WithContext(ctx)
	for _, target := range targets {
		target := target
		eg.Go(func() error {
			account, err := token.GetAssociatedAccount(target.wallet, target.mint)
			if err != nil {
				return errors.Wrap(err, "failed to derive token account")
			}

			*target.out, err = c.tokenBalance(account)
			return err
		})
	}

	if err := eg.Wait(); err != nil {
		tracer.OnError(err)
		return nil, err
	}
	return &balances, nil
}

// escrowAddress derives the record address of the maker's escrow under seed.
func (c *EscrowClient) escrowAddress(maker ed25519.PublicKey, seed uint64) (ed25519.PublicKey, error) {
	key := fmt.Sprintf("%s:%d", base58.Encode(maker), seed)

	if cached, ok := c.addresses.Retrieve(key); ok {
		return cached.(ed25519.PublicKey), nil
	}

	address, _, err := escrow.GetEscrowAddress(c.program, maker, seed)
	if err != nil {
		return nil, err
	}

	_ = c.addresses.Insert(key, address, 1)
	return address, nil
}

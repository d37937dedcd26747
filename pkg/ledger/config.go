package ledger

import (
	"github.com/code-payments/code-custody/pkg/config"
	"github.com/code-payments/code-custody/pkg/config/env"
	"github.com/code-payments/code-custody/pkg/config/memory"
	"github.com/code-payments/code-custody/pkg/config/wrapper"
)

const (
	envConfigPrefix = "LEDGER_"

	LamportsPerByteYearConfigEnvName = envConfigPrefix + "LAMPORTS_PER_BYTE_YEAR"
	defaultLamportsPerByteYear       = 3480

	RentExemptionThresholdConfigEnvName = envConfigPrefix + "RENT_EXEMPTION_THRESHOLD"
	defaultRentExemptionThreshold       = 2.0

	MaxRecentBlockhashesConfigEnvName = envConfigPrefix + "MAX_RECENT_BLOCKHASHES"
	defaultMaxRecentBlockhashes       = 150

	EnableAirdropsConfigEnvName = envConfigPrefix + "ENABLE_AIRDROPS"
	defaultEnableAirdrops       = true

	MaxAirdropLamportsConfigEnvName = envConfigPrefix + "MAX_AIRDROP_LAMPORTS"
	defaultMaxAirdropLamports       = 10 * LamportsPerSol

	AccountLockStripesConfigEnvName = envConfigPrefix + "ACCOUNT_LOCK_STRIPES"
	defaultAccountLockStripes       = 1024

	SignatureFilterSizeConfigEnvName = envConfigPrefix + "SIGNATURE_FILTER_SIZE"
	defaultSignatureFilterSize       = 1_000_000
)

const (
	LamportsPerSol = 1_000_000_000
)

type conf struct {
	lamportsPerByteYear    config.Uint64
	rentExemptionThreshold config.Float64
	maxRecentBlockhashes   config.Uint64
	enableAirdrops         config.Bool
	maxAirdropLamports     config.Uint64
	accountLockStripes     config.Uint64
	signatureFilterSize    config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			lamportsPerByteYear:    env.NewUint64Config(LamportsPerByteYearConfigEnvName, defaultLamportsPerByteYear),
			rentExemptionThreshold: env.NewFloat64Config(RentExemptionThresholdConfigEnvName, defaultRentExemptionThreshold),
			maxRecentBlockhashes:   env.NewUint64Config(MaxRecentBlockhashesConfigEnvName, defaultMaxRecentBlockhashes),
			enableAirdrops:         env.NewBoolConfig(EnableAirdropsConfigEnvName, defaultEnableAirdrops),
			maxAirdropLamports:     env.NewUint64Config(MaxAirdropLamportsConfigEnvName, defaultMaxAirdropLamports),
			accountLockStripes:     env.NewUint64Config(AccountLockStripesConfigEnvName, defaultAccountLockStripes),
			signatureFilterSize:    env.NewUint64Config(SignatureFilterSizeConfigEnvName, defaultSignatureFilterSize),
		}
	}
}

// TestOverrides are the knobs tests may turn. Zero values fall back to
// defaults.
type TestOverrides struct {
	DisableAirdrops      bool
	MaxAirdropLamports   uint64
	MaxRecentBlockhashes uint64
}

// WithTestOverrides returns in memory configuration for tests.
func WithTestOverrides(overrides *TestOverrides) ConfigProvider {
	maxAirdropLamports := uint64(defaultMaxAirdropLamports)
	if overrides.MaxAirdropLamports > 0 {
		maxAirdropLamports = overrides.MaxAirdropLamports
	}

	maxRecentBlockhashes := uint64(defaultMaxRecentBlockhashes)
	if overrides.MaxRecentBlockhashes > 0 {
		maxRecentBlockhashes = overrides.MaxRecentBlockhashes
	}

	return func() *conf {
		return &conf{
			lamportsPerByteYear:    wrapper.NewUint64Config(memory.NewConfig(uint64(defaultLamportsPerByteYear)), defaultLamportsPerByteYear),
			rentExemptionThreshold: wrapper.NewFloat64Config(memory.NewConfig(defaultRentExemptionThreshold), defaultRentExemptionThreshold),
			maxRecentBlockhashes:   wrapper.NewUint64Config(memory.NewConfig(maxRecentBlockhashes), defaultMaxRecentBlockhashes),
			enableAirdrops:         wrapper.NewBoolConfig(memory.NewConfig(!overrides.DisableAirdrops), defaultEnableAirdrops),
			maxAirdropLamports:     wrapper.NewUint64Config(memory.NewConfig(maxAirdropLamports), defaultMaxAirdropLamports),
			accountLockStripes:     wrapper.NewUint64Config(memory.NewConfig(uint64(64)), defaultAccountLockStripes),
			signatureFilterSize:    wrapper.NewUint64Config(memory.NewConfig(uint64(10_000)), defaultSignatureFilterSize),
		}
	}
}

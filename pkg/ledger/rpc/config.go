package rpc

import (
	"github.com/code-payments/code-custody/pkg/config"
	"github.com/code-payments/code-custody/pkg/config/env"
	"github.com/code-payments/code-custody/pkg/config/memory"
	"github.com/code-payments/code-custody/pkg/config/wrapper"
)

const (
	envConfigPrefix = "LEDGER_RPC_"

	AirdropsPerSecondConfigEnvName = envConfigPrefix + "AIRDROPS_PER_SECOND"
	defaultAirdropsPerSecond       = 1.0

	MaxRequestBytesConfigEnvName = envConfigPrefix + "MAX_REQUEST_BYTES"
	defaultMaxRequestBytes       = 64 * 1024

	MaxBatchSizeConfigEnvName = envConfigPrefix + "MAX_BATCH_SIZE"
	defaultMaxBatchSize       = 100
)

type conf struct {
	airdropsPerSecond config.Float64
	maxRequestBytes   config.Uint64
	maxBatchSize      config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			airdropsPerSecond: env.NewFloat64Config(AirdropsPerSecondConfigEnvName, defaultAirdropsPerSecond),
			maxRequestBytes:   env.NewUint64Config(MaxRequestBytesConfigEnvName, defaultMaxRequestBytes),
			maxBatchSize:      env.NewUint64Config(MaxBatchSizeConfigEnvName, defaultMaxBatchSize),
		}
	}
}

// WithTestOverrides returns in memory configuration for tests. A zero rate
// falls back to the default and a negative one disables airdrop throttling.
func WithTestOverrides(airdropsPerSecond float64) ConfigProvider {
	if airdropsPerSecond == 0 {
		airdropsPerSecond = defaultAirdropsPerSecond
	}

	return func() *conf {
		return &conf{
			airdropsPerSecond: wrapper.NewFloat64Config(memory.NewConfig(airdropsPerSecond), defaultAirdropsPerSecond),
			maxRequestBytes:   wrapper.NewUint64Config(memory.NewConfig(uint64(defaultMaxRequestBytes)), defaultMaxRequestBytes),
			maxBatchSize:      wrapper.NewUint64Config(memory.NewConfig(uint64(defaultMaxBatchSize)), defaultMaxBatchSize),
		}
	}
}

package main

import (
	"crypto/ed25519"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/code-payments/code-custody/pkg/grpc/app"
)

const (
	storageMemory   = "memory"
	storagePostgres = "postgres"
)

type config struct {
	// Storage selects the account and signature stores: memory or postgres.
	Storage string `mapstructure:"storage"`

	DatabaseUser            string        `mapstructure:"database_user"`
	DatabasePassword        string        `mapstructure:"database_password"`
	DatabaseHost            string        `mapstructure:"database_host"`
	DatabasePort            int           `mapstructure:"database_port"`
	DatabaseName            string        `mapstructure:"database_name"`
	DatabaseSSLMode         string        `mapstructure:"database_ssl_mode"`
	DatabaseMaxOpenConns    int           `mapstructure:"database_max_open_connections"`
	DatabaseMaxIdleConns    int           `mapstructure:"database_max_idle_connections"`
	DatabaseConnMaxLifetime time.Duration `mapstructure:"database_conn_max_lifetime"`

	// Program ids are base58 addresses chosen at deployment.
	VaultProgramID  string `mapstructure:"vault_program_id"`
	EscrowProgramID string `mapstructure:"escrow_program_id"`
}

var defaultConfig = config{
	Storage: storageMemory,

	DatabasePort:            5432,
	DatabaseMaxOpenConns:    10,
	DatabaseMaxIdleConns:    5,
	DatabaseConnMaxLifetime: 5 * time.Minute,
}

func parseConfig(raw app.Config) (*config, error) {
	conf := defaultConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &conf,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]interface{}(raw)); err != nil {
		return nil, errors.Wrap(err, "invalid app config")
	}

	switch conf.Storage {
	case storageMemory, storagePostgres:
	default:
		return nil, errors.Errorf("unsupported storage %q", conf.Storage)
	}

	return &conf, nil
}

func parseProgramID(name, encoded string) (ed25519.PublicKey, error) {
	if len(encoded) == 0 {
		return nil, errors.Errorf("%s is required", name)
	}

	decoded, err := base58.Decode(encoded)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s", name)
	}
	if len(decoded) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid %s length: %d", name, len(decoded))
	}
	return decoded, nil
}

package main

import (
	"testing"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-custody/pkg/grpc/app"
	"github.com/code-payments/code-custody/pkg/testutil"
)

func TestParseConfig(t *testing.T) {
	conf, err := parseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultConfig, *conf)

	conf, err = parseConfig(app.Config{
		"storage":                    "postgres",
		"database_host":              "db",
		"database_conn_max_lifetime": "90s",
		"vault_program_id":           "vault",
	})
	require.NoError(t, err)
	assert.Equal(t, storagePostgres, conf.Storage)
	assert.Equal(t, "db", conf.DatabaseHost)
	assert.Equal(t, 5432, conf.DatabasePort)
	assert.Equal(t, 90*time.Second, conf.DatabaseConnMaxLifetime)
	assert.Equal(t, "vault", conf.VaultProgramID)

	_, err = parseConfig(app.Config{"storage": "etcd"})
	assert.Error(t, err)
}

func TestParseProgramID(t *testing.T) {
	id := testutil.GenerateSolanaKeys(t, 1)[0]

	parsed, err := parseProgramID("vault_program_id", base58.Encode(id))
	require.NoError(t, err)
	assert.EqualValues(t, id, parsed)

	for _, invalid := range []string{
		"",
		"0OIl",
		base58.Encode(id[:31]),
	} {
		_, err := parseProgramID("vault_program_id", invalid)
		assert.Error(t, err)
	}
}

package env

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/code-payments/code-custody/pkg/config"
)

func TestConfigDoesntExist(t *testing.T) {
	const env = "ENV_CONFIG_TEST_VAR"
	os.Setenv(env, "default")

	v, err := NewConfig(env).Get(context.Background())
	assert.Equal(t, []byte("default"), v)
	assert.Nil(t, err)

	os.Unsetenv(env)

	v, err = NewConfig(env).Get(context.Background())
	assert.Nil(t, v)
	assert.Equal(t, config.ErrNoValue, err)
}

func TestTypedConfigs(t *testing.T) {
	const key = "ENV_CONFIG_TEST_LAMPORTS"
	ctx := context.Background()

	os.Unsetenv(key)
	assert.EqualValues(t, 3480, NewUint64Config(key, 3480).Get(ctx))

	os.Setenv(key, "6960")
	defer os.Unsetenv(key)

	assert.EqualValues(t, 6960, NewUint64Config(key, 3480).Get(ctx))
	assert.Equal(t, "6960", NewStringConfig(key, "").Get(ctx))
	assert.Equal(t, 6960.0, NewFloat64Config(key, 2.0).Get(ctx))

	_, err := NewBoolConfig(key, true).GetSafe(ctx)
	assert.Error(t, err)
}

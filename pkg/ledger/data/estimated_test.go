package data

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatedSignatures(t *testing.T) {
	ctx := context.Background()
	estimated := NewEstimatedSignatures(1000, 0.001)

	sig := make([]byte, 64)
	_, err := rand.Read(sig)
	require.NoError(t, err)

	known, err := estimated.TestForKnownSignature(ctx, sig)
	require.NoError(t, err)
	assert.False(t, known)

	require.NoError(t, estimated.AddKnownSignature(ctx, sig))

	known, err = estimated.TestForKnownSignature(ctx, sig)
	require.NoError(t, err)
	assert.True(t, known)

	_, err = estimated.TestForKnownSignature(ctx, nil)
	assert.Equal(t, ErrInvalidSignature, err)
	assert.Equal(t, ErrInvalidSignature, estimated.AddKnownSignature(ctx, nil))
}

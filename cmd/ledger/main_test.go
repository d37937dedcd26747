package main

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryLoggingInterceptor(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)

	node := &ledgerApp{log: logger.WithField("type", "cmd/ledger")}

	resp, err := node.unaryLoggingInterceptor(
		context.Background(),
		"req",
		&grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return "resp", nil
		},
	)
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.TraceLevel, entry.Level)
	assert.Equal(t, codes.OK.String(), entry.Data["grpc_code"])

	_, err = node.unaryLoggingInterceptor(
		context.Background(),
		"req",
		&grpc.UnaryServerInfo{FullMethod: "/ledger.v1.Ledger/Status"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, status.Error(codes.Unavailable, "unavailable")
		},
	)
	assert.Equal(t, codes.Unavailable, status.Code(err))

	entry = hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.DebugLevel, entry.Level)
	assert.Equal(t, "/ledger.v1.Ledger/Status", entry.Data["grpc_method"])
	assert.Equal(t, codes.Unavailable.String(), entry.Data["grpc_code"])
}

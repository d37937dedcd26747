// Command ledger runs a ledger node with the vault and escrow programs
// deployed, serving the JSON-RPC API over HTTP.
package main

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	pg "github.com/code-payments/code-custody/pkg/database/postgres"
	grpcutil "github.com/code-payments/code-custody/pkg/grpc"
	"github.com/code-payments/code-custody/pkg/grpc/app"
	"github.com/code-payments/code-custody/pkg/ledger"
	"github.com/code-payments/code-custody/pkg/ledger/data"
	"github.com/code-payments/code-custody/pkg/ledger/rpc"
	"github.com/code-payments/code-custody/pkg/metrics"
	escrow_program "github.com/code-payments/code-custody/pkg/program/escrow"
	vault_program "github.com/code-payments/code-custody/pkg/program/vault"
)

type ledgerApp struct {
	log *logrus.Entry

	db      *sql.DB
	handler http.Handler

	stopOnce   sync.Once
	shutdownCh chan struct{}
}

func (a *ledgerApp) Init(raw app.Config, metricsProvider *newrelic.Application) error {
	conf, err := parseConfig(raw)
	if err != nil {
		return err
	}

	vaultID, err := parseProgramID("vault_program_id", conf.VaultProgramID)
	if err != nil {
		return err
	}
	escrowID, err := parseProgramID("escrow_program_id", conf.EscrowProgramID)
	if err != nil {
		return err
	}

	ctx := metrics.NewContext(context.Background(), metricsProvider)

	var provider data.Provider
	switch conf.Storage {
	case storagePostgres:
		a.db, err = pg.Open(pg.Config{
			User:               conf.DatabaseUser,
			Password:           conf.DatabasePassword,
			Host:               conf.DatabaseHost,
			Port:               conf.DatabasePort,
			DbName:             conf.DatabaseName,
			SSLMode:            conf.DatabaseSSLMode,
			MaxOpenConnections: conf.DatabaseMaxOpenConns,
			MaxIdleConnections: conf.DatabaseMaxIdleConns,
			ConnMaxLifetime:    conf.DatabaseConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		provider = data.NewDataProvider(a.db)
	default:
		a.log.Warn("using in memory storage, state is lost on exit")
		provider = data.NewTestDataProvider()
	}

	bank, err := ledger.NewBank(ctx, provider, ledger.WithEnvConfigs())
	if err != nil {
		return errors.Wrap(err, "failed to initialize bank")
	}

	if err := bank.RegisterProgram(vaultID, vault_program.NewProgram(vaultID)); err != nil {
		return errors.Wrap(err, "failed to register vault program")
	}
	if err := bank.RegisterProgram(escrowID, escrow_program.NewProgram(escrowID)); err != nil {
		return errors.Wrap(err, "failed to register escrow program")
	}

	a.handler = rpc.NewServer(bank, rpc.WithEnvConfigs()).Handler(metricsProvider)

	a.log.WithFields(logrus.Fields{
		"storage":           conf.Storage,
		"vault_program_id":  conf.VaultProgramID,
		"escrow_program_id": conf.EscrowProgramID,
	}).Info("ledger initialized")

	return nil
}

func (a *ledgerApp) HTTPHandler() http.Handler {
	return a.handler
}

func (a *ledgerApp) RegisterWithGRPC(_ *grpc.Server) {}

func (a *ledgerApp) ShutdownChan() <-chan struct{} {
	return a.shutdownCh
}

func (a *ledgerApp) Stop() {
	a.stopOnce.Do(func() {
		if a.db != nil {
			if err := a.db.Close(); err != nil {
				a.log.WithError(err).Warn("failed to close database")
			}
		}
		close(a.shutdownCh)
	})
}

func (a *ledgerApp) unaryLoggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	a.logCall(info.FullMethod, start, err)
	return resp, err
}

func (a *ledgerApp) streamLoggingInterceptor(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	start := time.Now()
	err := handler(srv, ss)
	a.logCall(info.FullMethod, start, err)
	return err
}

func (a *ledgerApp) logCall(fullMethod string, start time.Time, err error) {
	log := a.log.WithFields(logrus.Fields{
		"grpc_method": fullMethod,
		"grpc_code":   status.Code(err).String(),
		"duration":    time.Since(start),
	})

	if grpcutil.IsHealthCheckEndpoint(fullMethod) {
		log.Trace("grpc call served")
		return
	}
	log.Debug("grpc call served")
}

func main() {
	log := logrus.StandardLogger().WithField("type", "cmd/ledger")

	node := &ledgerApp{
		log:        log,
		shutdownCh: make(chan struct{}),
	}

	err := app.Run(
		node,
		app.WithUnaryServerInterceptor(node.unaryLoggingInterceptor),
		app.WithStreamServerInterceptor(node.streamLoggingInterceptor),
	)
	if err != nil {
		log.WithError(err).Fatal("error running ledger")
	}
}

package app

import (
	"context"
	"expvar"
	"flag"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/code-payments/code-custody/pkg/grpc/metrics"
	metrics_util "github.com/code-payments/code-custody/pkg/metrics"
)

// App is a long lived application that services network requests over HTTP
// and, optionally, gRPC.
//
// The lifecycle of the App is tied to the process. The app gets initialized
// before the servers run, and gets stopped after they have stopped serving.
type App interface {
	// Init initializes the application in a blocking fashion. When Init returns, it
	// is expected that the application is ready to start receiving requests.
	Init(config Config, metricsProvider *newrelic.Application) error

	// HTTPHandler returns the handler served on the HTTP listen address. A nil
	// handler disables the HTTP server.
	HTTPHandler() http.Handler

	// RegisterWithGRPC provides a mechanism for the application to register gRPC services
	// with the gRPC server.
	RegisterWithGRPC(server *grpc.Server)

	// ShutdownChan returns a channel that is closed when the application is shutdown.
	//
	// If the channel is closed, the servers will initiate a shutdown if they have
	// not already done so.
	ShutdownChan() <-chan struct{}

	// Stop stops the service, allowing for it to clean up any resources. When Stop()
	// returns, the process exits.
	//
	// Stop should be idempotent.
	Stop()
}

var (
	configPath = flag.String("config", "config.yaml", "configuration file path")

	osSigCh = make(chan os.Signal, 1)
)

func init() {
	signal.Notify(osSigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
}

// Run loads configuration, initializes app and serves it until the process is
// signalled or one of the servers stops.
func Run(app App, options ...Option) error {
	flag.Parse()

	logger := logrus.StandardLogger().WithField("type", "grpc/app")

	config, err := loadConfig()
	if err != nil {
		logger.WithError(err).Error("failed to load config")
		os.Exit(1)
	}

	var metricsProvider *newrelic.Application
	if len(config.NewRelicLicenseKey) > 0 {
		nr, err := newrelic.NewApplication(
			newrelic.ConfigFromEnvironment(),
			newrelic.ConfigAppName(config.AppName),
			newrelic.ConfigLicense(config.NewRelicLicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
			newrelic.ConfigAppLogForwardingEnabled(true),
		)
		if err != nil {
			logrus.WithError(err).Error("error connecting to new relic")
			os.Exit(1)
		}

		metricsProvider = nr
	}

	configureLogger(config, metricsProvider)

	// pprof and expvar install themselves on the default mux. Reset it so
	// they are only reachable through the debug listener.
	http.DefaultServeMux = http.NewServeMux()

	if config.EnableExpvar || config.EnablePprof {
		go serveDebug(logger, config)
	}

	memoryLeakShutdownCh := make(chan struct{})
	if config.EnableMemoryLeakCron {
		cronJob := cron.New(cron.WithLocation(time.Local))
		_, err = cronJob.AddFunc(config.MemoryLeakCronSchedule, func() {
			close(memoryLeakShutdownCh)
		})
		if err != nil {
			logger.WithError(err).Error("failed to initialize memory leak cron")
			os.Exit(1)
		}
		cronJob.Start()
	}

	grpcLis, err := net.Listen("tcp", config.InsecureListenAddress)
	if err != nil {
		logger.WithError(err).Errorf("failed to listen on %s", config.InsecureListenAddress)
		os.Exit(1)
	}

	opts := opts{
		unaryServerInterceptors: []grpc.UnaryServerInterceptor{
			grpc_recovery.UnaryServerInterceptor(),
			metrics.CustomNewRelicUnaryServerInterceptor(metricsProvider),
		},
		streamServerInterceptors: []grpc.StreamServerInterceptor{
			grpc_recovery.StreamServerInterceptor(),
			metrics.CustomNewRelicStreamServerInterceptor(metricsProvider),
		},
	}
	for _, o := range options {
		o(&opts)
	}

	if err := app.Init(config.AppConfig, metricsProvider); err != nil {
		logger.WithError(err).Error("failed to initialize application")
		os.Exit(1)
	}

	grpcServ := grpc.NewServer(
		grpc_middleware.WithUnaryServerChain(opts.unaryServerInterceptors...),
		grpc_middleware.WithStreamServerChain(opts.streamServerInterceptors...),
	)
	app.RegisterWithGRPC(grpcServ)
	healthgrpc.RegisterHealthServer(grpcServ, health.NewServer())

	grpcServShutdownCh := make(chan struct{})
	go func() {
		if err := grpcServ.Serve(grpcLis); err != nil {
			logger.WithError(err).Error("grpc serve stopped")
		} else {
			logger.Info("grpc server stopped")
		}

		close(grpcServShutdownCh)
	}()

	var httpServ *http.Server
	httpServShutdownCh := make(chan struct{})
	if handler := app.HTTPHandler(); handler != nil {
		httpServ = &http.Server{
			Addr:              config.HTTPListenAddress,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			if err := httpServ.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Error("http serve stopped")
			} else {
				logger.Info("http server stopped")
			}

			close(httpServShutdownCh)
		}()
	}

	// Wait for the following shutdown conditions:
	//    1. OS Signal telling us to shutdown
	//    2. A server has shutdown (for whatever reason)
	//    3. The application has shutdown (for whatever reason)
	select {
	case <-osSigCh:
		logger.Info("interrupt received, shutting down")
	case <-grpcServShutdownCh:
		logger.Info("grpc server shutdown")
	case <-httpServShutdownCh:
		logger.Info("http server shutdown")
	case <-memoryLeakShutdownCh:
		logger.Info("shutdown to deal with memory leak")
	case <-app.ShutdownChan():
		logger.Info("app shutdown")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
	defer cancel()

	shutdownCh := make(chan struct{})
	go func() {
		// The servers and the application all have idempotent shutdown
		// methods, so it's fine to call them regardless of the shutdown
		// condition.
		if httpServ != nil {
			if err := httpServ.Shutdown(ctx); err != nil {
				logger.WithError(err).Warn("failed to gracefully stop http server")
			}
		}
		grpcServ.GracefulStop()
		app.Stop()

		close(shutdownCh)
	}()

	select {
	case <-shutdownCh:
		return nil
	case <-ctx.Done():
		return errors.Errorf("failed to stop the application within %v", config.ShutdownGracePeriod)
	}
}

func loadConfig() (BaseConfig, error) {
	// viper.ReadInConfig only returns ConfigFileNotFoundError if it has to search
	// for a default config file because one hasn't been explicitly set. That is,
	// if we explicitly set a config file, and it does not exist, viper will not
	// return a ConfigFileNotFoundError, so we do it ourselves.
	if _, err := os.Stat(*configPath); err == nil {
		viper.SetConfigFile(*configPath)
	} else if !os.IsNotExist(err) {
		return BaseConfig{}, errors.Wrap(err, "failed to check if config exists")
	}

	err := viper.ReadInConfig()
	_, isConfigNotFound := err.(viper.ConfigFileNotFoundError)
	if err != nil && !isConfigNotFound {
		return BaseConfig{}, errors.Wrap(err, "failed to read config")
	}

	config := defaultConfig
	if err := viper.Unmarshal(&config); err != nil {
		return BaseConfig{}, errors.Wrap(err, "failed to unmarshal config")
	}

	if len(config.AppName) == 0 {
		return BaseConfig{}, errors.New("must specify an application name")
	}
	return config, nil
}

func serveDebug(logger *logrus.Entry, config BaseConfig) {
	debugHTTPMux := http.NewServeMux()
	if config.EnableExpvar {
		debugHTTPMux.Handle("/debug/vars", expvar.Handler())
	}
	if config.EnablePprof {
		debugHTTPMux.HandleFunc("/debug/pprof/", pprof.Index)
		debugHTTPMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		debugHTTPMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		debugHTTPMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		debugHTTPMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	for {
		if err := http.ListenAndServe(config.DebugListenAddress, debugHTTPMux); err != nil {
			logger.WithError(err).Warn("Debug HTTP server failed. Retrying in 5s...")
		}
		time.Sleep(5 * time.Second)
	}
}

func configureLogger(config BaseConfig, metricsProvider *newrelic.Application) {
	if metricsProvider != nil {
		logrus.SetFormatter(metrics_util.NewCustomNewRelicLogFormatter(metricsProvider, &logrus.JSONFormatter{}))
	} else {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(strings.ToLower(config.LogLevel))
	if err != nil {
		logrus.StandardLogger().WithField("log_level", config.LogLevel).Warn("unknown log level, ignoring")
	} else {
		logrus.SetLevel(level)
	}

	logrus.SetOutput(os.Stdout)
}

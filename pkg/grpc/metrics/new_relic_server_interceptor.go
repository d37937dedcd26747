package metrics

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/newrelic/go-agent/v3/newrelic"
	grpc_core "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/code-payments/code-custody/pkg/grpc"
	"github.com/code-payments/code-custody/pkg/metrics"
)

type statusCodeHandler func(*newrelic.Transaction, *status.Status)

const (
	grpcRequestPackageAttributeKey = "grpc.request.package"
	grpcRequestServiceAttributeKey = "grpc.request.service"
	grpcRequestMethodAttributeKey  = "grpc.request.method"

	grpcResponseStatusCodeAttributeKey      = "grpc.response.statusCode"
	grpcResponseStatusMessageAttributeKey   = "grpc.response.statusMessage"
	grpcResponseStatusCodeLevelAttributeKey = "grpc.response.statusCodeLevel"

	infoLevel    = "info"
	warningLevel = "warning"
	errorLevel   = "error"
)

var (
	statusCodeHandlers = map[codes.Code]statusCodeHandler{
		codes.OK:              infoStatusCodeHandler,
		codes.AlreadyExists:   infoStatusCodeHandler,
		codes.Canceled:        infoStatusCodeHandler,
		codes.InvalidArgument: infoStatusCodeHandler,
		codes.NotFound:        infoStatusCodeHandler,

		codes.Aborted:            warningStatusCodeHandler,
		codes.DeadlineExceeded:   warningStatusCodeHandler,
		codes.FailedPrecondition: warningStatusCodeHandler,
		codes.ResourceExhausted:  warningStatusCodeHandler,
		codes.Unavailable:        warningStatusCodeHandler,

		codes.Unknown:       errorStatusCodeHandler,
		codes.Internal:      errorStatusCodeHandler,
		codes.Unimplemented: errorStatusCodeHandler,
	}
	defaultStatusCodeHandler = errorStatusCodeHandler
)

func infoStatusCodeHandler(m *newrelic.Transaction, s *status.Status) {
	addStatusAttributes(m, s, infoLevel)
}

func warningStatusCodeHandler(m *newrelic.Transaction, s *status.Status) {
	addStatusAttributes(m, s, warningLevel)
}

func errorStatusCodeHandler(m *newrelic.Transaction, s *status.Status) {
	addStatusAttributes(m, s, errorLevel)
	m.NoticeError(&newrelic.Error{
		Message: s.Message(),
		Class:   "gRPC Status: " + s.Code().String(),
	})
}

func addStatusAttributes(m *newrelic.Transaction, s *status.Status, level string) {
	m.SetWebResponse(nil).WriteHeader(int(codes.OK))
	m.AddAttribute(grpcResponseStatusCodeAttributeKey, s.Code().String())
	m.AddAttribute(grpcResponseStatusMessageAttributeKey, s.Message())
	m.AddAttribute(grpcResponseStatusCodeLevelAttributeKey, level)
}

// CustomNewRelicUnaryServerInterceptor records a New Relic transaction per
// unary call. A nil app disables instrumentation.
func CustomNewRelicUnaryServerInterceptor(app *newrelic.Application) grpc_core.UnaryServerInterceptor {
	if app == nil {
		return func(ctx context.Context, req interface{}, info *grpc_core.UnaryServerInfo, handler grpc_core.UnaryHandler) (interface{}, error) {
			return handler(ctx, req)
		}
	}

	return func(ctx context.Context, req interface{}, info *grpc_core.UnaryServerInfo, handler grpc_core.UnaryHandler) (interface{}, error) {
		if grpc.IsHealthCheckEndpoint(info.FullMethod) {
			return handler(ctx, req)
		}

		ctx = metrics.NewContext(ctx, app)

		m := startTransaction(ctx, app, info.FullMethod)
		defer m.End()

		ctx = newrelic.NewContext(ctx, m)
		includeParsedFullMethodName(m, info.FullMethod)

		resp, err := handler(ctx, req)
		includeGRPCStatusCode(m, err)
		return resp, err
	}
}

// CustomNewRelicStreamServerInterceptor is the streaming counterpart of
// CustomNewRelicUnaryServerInterceptor.
func CustomNewRelicStreamServerInterceptor(app *newrelic.Application) grpc_core.StreamServerInterceptor {
	if app == nil {
		return func(srv interface{}, ss grpc_core.ServerStream, info *grpc_core.StreamServerInfo, handler grpc_core.StreamHandler) error {
			return handler(srv, ss)
		}
	}

	return func(srv interface{}, ss grpc_core.ServerStream, info *grpc_core.StreamServerInfo, handler grpc_core.StreamHandler) error {
		ctx := metrics.NewContext(ss.Context(), app)

		m := startTransaction(ctx, app, info.FullMethod)
		defer m.End()

		ctx = newrelic.NewContext(ctx, m)
		includeParsedFullMethodName(m, info.FullMethod)

		err := handler(srv, &wrappedStream{ctx, ss})
		includeGRPCStatusCode(m, err)
		return err
	}
}

type wrappedStream struct {
	ctx context.Context
	grpc_core.ServerStream
}

func (w *wrappedStream) Context() context.Context {
	return w.ctx
}

func startTransaction(ctx context.Context, app *newrelic.Application, fullMethod string) *newrelic.Transaction {
	method := strings.TrimPrefix(fullMethod, "/")

	var hdrs http.Header
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		hdrs = make(http.Header, len(md))
		for k, vs := range md {
			for _, v := range vs {
				hdrs.Add(k, v)
			}
		}
	}

	txn := app.StartTransaction(method)
	txn.SetWebRequest(newrelic.WebRequest{
		Header: hdrs,
		URL: &url.URL{
			Scheme: "grpc",
			Host:   strings.TrimPrefix(hdrs.Get(":authority"), "dns:///"),
			Path:   method,
		},
		Method:    method,
		Transport: newrelic.TransportHTTP,
	})

	return txn
}

func includeGRPCStatusCode(m *newrelic.Transaction, err error) {
	grpcStatus := status.Convert(err)
	handler, ok := statusCodeHandlers[grpcStatus.Code()]
	if !ok {
		handler = defaultStatusCodeHandler
	}
	handler(m, grpcStatus)
}

func includeParsedFullMethodName(m *newrelic.Transaction, fullMethodName string) {
	packageName, serviceName, methodName, err := grpc.ParseFullMethodName(fullMethodName)
	if err != nil {
		return
	}

	m.AddAttribute(grpcRequestPackageAttributeKey, packageName)
	m.AddAttribute(grpcRequestServiceAttributeKey, serviceName)
	m.AddAttribute(grpcRequestMethodAttributeKey, methodName)
}

// Package rpc exposes a ledger bank over the subset of the Solana JSON-RPC
// API that pkg/solana's client speaks.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/code-payments/code-custody/pkg/ledger"
	"github.com/code-payments/code-custody/pkg/metrics"
	rate_util "github.com/code-payments/code-custody/pkg/rate"
	"github.com/code-payments/code-custody/pkg/solana"
)

const (
	metricsStructName = "ledger.rpc"

	requestCountMetricName    = "LedgerRpcRequest"
	requestDurationMetricName = "LedgerRpcRequestDuration"
)

var null = json.RawMessage("null")

type handlerFunc func(ctx context.Context, params []json.RawMessage) (interface{}, *Error)

// Server serves JSON-RPC requests against a bank.
type Server struct {
	log  *logrus.Entry
	conf *conf
	bank *ledger.Bank

	airdropLimiter rate_util.Limiter

	methods map[string]handlerFunc
}

// NewServer returns a server for the provided bank.
func NewServer(bank *ledger.Bank, configProvider ConfigProvider) *Server {
	conf := configProvider()

	s := &Server{
		log:  logrus.StandardLogger().WithField("type", "ledger/rpc"),
		conf: conf,
		bank: bank,
	}

	// A non-positive rate leaves the faucet unthrottled.
	if airdropsPerSecond := conf.airdropsPerSecond.Get(context.Background()); airdropsPerSecond > 0 {
		s.airdropLimiter = rate_util.NewLocalRateLimiter(rate.Limit(airdropsPerSecond))
	} else {
		s.airdropLimiter = &rate_util.NoLimiter{}
	}

	s.methods = map[string]handlerFunc{
		"getAccountInfo":                    s.getAccountInfo,
		"getBalance":                        s.getBalance,
		"getHealth":                         s.getHealth,
		"getLatestBlockhash":                s.getLatestBlockhash,
		"getMinimumBalanceForRentExemption": s.getMinimumBalanceForRentExemption,
		"getProgramAccounts":                s.getProgramAccounts,
		"getSignatureStatuses":              s.getSignatureStatuses,
		"getSlot":                           s.getSlot,
		"getTokenAccountBalance":            s.getTokenAccountBalance,
		"requestAirdrop":                    s.requestAirdrop,
		"sendTransaction":                   s.sendTransaction,
	}

	return s
}

// Handler returns the HTTP handler serving JSON-RPC at the root path. A nil
// app disables New Relic instrumentation.
func (s *Server) Handler(app *newrelic.Application) http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Post("/", s.serveHTTP)

	return metrics.WrapHTTPHandler(app, "/", router)
}

func (s *Server) serveHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(s.conf.maxRequestBytes.Get(ctx))+1))
	if err != nil {
		s.write(w, &response{Version: version, Error: newError(codeParseError, "Parse error"), ID: null})
		return
	} else if uint64(len(body)) > s.conf.maxRequestBytes.Get(ctx) {
		s.write(w, &response{Version: version, Error: newError(codeInvalidRequest, "Request too large"), ID: null})
		return
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			s.write(w, &response{Version: version, Error: newError(codeParseError, "Parse error"), ID: null})
			return
		}
		if len(batch) == 0 || uint64(len(batch)) > s.conf.maxBatchSize.Get(ctx) {
			s.write(w, &response{Version: version, Error: newError(codeInvalidRequest, "Invalid batch size"), ID: null})
			return
		}

		responses := make([]*response, 0, len(batch))
		for _, raw := range batch {
			if resp := s.handle(ctx, raw); resp != nil {
				responses = append(responses, resp)
			}
		}
		if len(responses) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.write(w, responses)
		return
	}

	resp := s.handle(ctx, trimmed)
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.write(w, resp)
}

// handle serves a single request. Notifications, which omit the id, are
// executed but get no response.
func (s *Server) handle(ctx context.Context, raw []byte) *response {
	start := time.Now()

	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return &response{Version: version, Error: newError(codeParseError, "Parse error"), ID: null}
	}

	id := req.ID
	notification := len(id) == 0
	if notification {
		id = null
	}

	log := s.log.WithFields(logrus.Fields{
		"request_id": uuid.New().String(),
		"method":     req.Method,
	})

	if req.Version != version {
		return &response{Version: version, Error: newError(codeInvalidRequest, "Invalid request"), ID: id}
	}

	handler, ok := s.methods[req.Method]
	if !ok {
		log.Debug("method not found")
		if notification {
			return nil
		}
		return &response{Version: version, Error: newError(solana.RPCCodeMethodNotFound, "Method not found"), ID: id}
	}

	var params []json.RawMessage
	if len(req.Params) > 0 && !bytes.Equal(req.Params, null) {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			if notification {
				return nil
			}
			return &response{Version: version, Error: invalidParams("expected an array"), ID: id}
		}
	}

	tracer := metrics.TraceMethodCall(ctx, metricsStructName, req.Method)
	defer tracer.End()

	result, rpcErr := handler(ctx, params)

	metrics.RecordCount(ctx, requestCountMetricName, 1)
	metrics.RecordDuration(ctx, requestDurationMetricName, time.Since(start))

	if rpcErr != nil {
		tracer.OnError(rpcErr)
		log.WithField("code", rpcErr.Code).WithError(rpcErr).Debug("request failed")
		if notification {
			return nil
		}
		return &response{Version: version, Error: rpcErr, ID: id}
	}

	log.Trace("request served")
	if notification {
		return nil
	}
	return &response{Version: version, Result: result, ID: id}
}

func (s *Server) write(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).Warn("failed to write response")
	}
}

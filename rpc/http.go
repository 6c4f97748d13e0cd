package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"premarket/core/events"
	"premarket/native/ledger"
	"premarket/native/market"
	"premarket/native/registry"
	"premarket/observability"
	"premarket/state"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeNotFound       = -32021
	codeForbidden      = -32022
	codeConflict       = -32023
)

// Server exposes the market, delivery, registry and ledger engines over
// JSON-RPC. Every mutating method runs inside a state transaction so a
// failing handler leaves no partial writes behind.
type Server struct {
	state    *state.Manager
	store    *market.StoreState
	market   *market.Engine
	delivery *market.DeliveryEngine
	registry *registry.Engine
	ledger   *ledger.Engine
	events   *events.Recorder
	log      *slog.Logger
}

// Config bundles the collaborators a Server needs.
type Config struct {
	State    *state.Manager
	Store    *market.StoreState
	Market   *market.Engine
	Delivery *market.DeliveryEngine
	Registry *registry.Engine
	Ledger   *ledger.Engine
	Events   *events.Recorder
	Logger   *slog.Logger
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		state:    cfg.State,
		store:    cfg.Store,
		market:   cfg.Market,
		delivery: cfg.Delivery,
		registry: cfg.Registry,
		ledger:   cfg.Ledger,
		events:   cfg.Events,
		log:      logger,
	}
}

// Router builds the HTTP mux: JSON-RPC on the root, liveness and metrics
// alongside.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return r
}

// Start serves the router on addr and blocks until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.Info("starting JSON-RPC server", "addr", addr)
	return http.ListenAndServe(addr, s.Router())
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      int               `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeEngineError translates a module error into the matching RPC code and
// HTTP status.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	status, code := classifyError(err)
	writeError(w, status, id, code, err.Error(), nil)
}

func classifyError(err error) (int, int) {
	switch {
	case errors.Is(err, market.ErrOfferNotFound),
		errors.Is(err, market.ErrStockNotFound),
		errors.Is(err, market.ErrMakerNotFound),
		errors.Is(err, market.ErrMarketPlaceNotFound),
		errors.Is(err, registry.ErrMarketNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, market.ErrUnauthorized),
		errors.Is(err, market.ErrNotOperator),
		errors.Is(err, registry.ErrNotOwner):
		return http.StatusForbidden, codeForbidden
	case errors.Is(err, market.ErrInvalidOfferStatus),
		errors.Is(err, market.ErrInvalidStockStatus),
		errors.Is(err, market.ErrInvalidAbortStatus),
		errors.Is(err, market.ErrMarketStatus),
		errors.Is(err, market.ErrStockAlreadyListed),
		errors.Is(err, market.ErrInsufficientPoints),
		errors.Is(err, market.ErrNoRemainingPoints),
		errors.Is(err, registry.ErrMarketExists),
		errors.Is(err, registry.ErrMarketNotOnline),
		errors.Is(err, ledger.ErrInsufficientFunds):
		return http.StatusConflict, codeConflict
	case errors.Is(err, market.ErrInvalidPoints),
		errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInvalidSettledPoints),
		errors.Is(err, market.ErrCollateralRateTooLow),
		errors.Is(err, market.ErrTradeTaxTooHigh),
		errors.Is(err, market.ErrTurboRateMismatch),
		errors.Is(err, market.ErrForcedSettleNonZero),
		errors.Is(err, market.ErrFixedRatioUnsupported),
		errors.Is(err, market.ErrInvalidOfferType),
		errors.Is(err, market.ErrInvalidStockType),
		errors.Is(err, market.ErrStockOfferMismatch),
		errors.Is(err, registry.ErrInvalidName),
		errors.Is(err, registry.ErrInvalidTokenPer),
		errors.Is(err, registry.ErrInvalidPeriod),
		errors.Is(err, registry.ErrInvalidFeeRate),
		errors.Is(err, registry.ErrSelfReferral),
		errors.Is(err, registry.ErrZeroReferrer),
		errors.Is(err, registry.ErrInvalidSplitRates),
		errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrInvalidCategory):
		return http.StatusBadRequest, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
	defer func() {
		_ = reader.Close()
	}()

	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "method not found", req.Method)
		return
	}

	module := req.Method
	if idx := strings.IndexByte(module, '_'); idx > 0 {
		module = module[:idx]
	}
	start := time.Now()
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	handler(recorder, r, req)
	observability.ModuleMetrics().Observe(module, req.Method, recorder.status, time.Since(start))
}

func (s *Server) methods() map[string]handlerFunc {
	return map[string]handlerFunc{
		"market_createOffer":               s.handleMarketCreateOffer,
		"market_createTaker":               s.handleMarketCreateTaker,
		"market_listOffer":                 s.handleMarketListOffer,
		"market_closeOffer":                s.handleMarketCloseOffer,
		"market_relistOffer":               s.handleMarketRelistOffer,
		"market_abortAskOffer":             s.handleMarketAbortAskOffer,
		"market_abortBidTaker":             s.handleMarketAbortBidTaker,
		"market_getOffer":                  s.handleMarketGetOffer,
		"market_getStock":                  s.handleMarketGetStock,
		"market_getMaker":                  s.handleMarketGetMaker,
		"delivery_closeBidOffer":           s.handleDeliveryCloseBidOffer,
		"delivery_closeBidTaker":           s.handleDeliveryCloseBidTaker,
		"delivery_settleAskMaker":          s.handleDeliverySettleAskMaker,
		"delivery_settleAskTaker":          s.handleDeliverySettleAskTaker,
		"registry_createMarketPlace":       s.handleRegistryCreateMarketPlace,
		"registry_updateMarket":            s.handleRegistryUpdateMarket,
		"registry_updateMarketPlaceStatus": s.handleRegistryUpdateMarketPlaceStatus,
		"registry_setPlatformFeeRate":      s.handleRegistrySetPlatformFeeRate,
		"registry_updateReferrer":          s.handleRegistryUpdateReferrer,
		"registry_setOperator":             s.handleRegistrySetOperator,
		"registry_setPaused":               s.handleRegistrySetPaused,
		"registry_getMarketPlace":          s.handleRegistryGetMarketPlace,
		"events_list":                      s.handleEventsList,
		"ledger_deposit":                   s.handleLedgerDeposit,
		"ledger_withdraw":                  s.handleLedgerWithdraw,
		"ledger_getBalance":                s.handleLedgerGetBalance,
		"ledger_getClaimable":              s.handleLedgerGetClaimable,
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

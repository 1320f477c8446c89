// Package api serves the ledger operations and views over HTTP/JSON.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"lockup-ledger/internal/address"
	"lockup-ledger/internal/checkpoint"
	"lockup-ledger/internal/domain"
	"lockup-ledger/internal/lockup"
	"lockup-ledger/internal/observability"
	"lockup-ledger/internal/reporting"
	"lockup-ledger/internal/reward"
	"lockup-ledger/internal/storage"
	"lockup-ledger/internal/token"
)

// CallerHeader names the request header carrying the acting account.
const CallerHeader = "X-Caller"

// Approver is the optional token capability used by the approve endpoint.
type Approver interface {
	Approve(ctx context.Context, asset, owner, spender domain.Address, amount sdkmath.Int) error
}

// Options configures a Server.
type Options struct {
	Ledger  *lockup.Ledger
	Emitter *reward.Emitter

	// Optional collaborators; their endpoints answer 404 when unset.
	Tokens      token.Ledger
	Events      storage.EventStore
	Checkpoints *checkpoint.Manager
	Reports     *reporting.Generator
	Feed        http.Handler

	// ParseCaller validates X-Caller; defaults to address.ParseWallet.
	ParseCaller func(string) (domain.Address, error)
	// ParseAddress validates tokens and owners in paths and bodies; defaults to address.Parse.
	ParseAddress func(string) (domain.Address, error)

	Logger *zap.Logger
}

// Server is the HTTP surface of the ledger.
type Server struct {
	ledger      *lockup.Ledger
	emitter     *reward.Emitter
	tokens      token.Ledger
	events      storage.EventStore
	checkpoints *checkpoint.Manager
	reports     *reporting.Generator
	feed        http.Handler

	parseCaller  func(string) (domain.Address, error)
	parseAddress func(string) (domain.Address, error)
	logger       *zap.Logger
	started      time.Time
}

// New creates a Server.
func New(opts Options) (*Server, error) {
	if opts.Ledger == nil || opts.Emitter == nil {
		return nil, errors.New("ledger and emitter are required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ledger:       opts.Ledger,
		emitter:      opts.Emitter,
		tokens:       opts.Tokens,
		events:       opts.Events,
		checkpoints:  opts.Checkpoints,
		reports:      opts.Reports,
		feed:         opts.Feed,
		parseCaller:  opts.ParseCaller,
		parseAddress: opts.ParseAddress,
		logger:       logger.Named("api"),
		started:      time.Now(),
	}
	if s.parseCaller == nil {
		s.parseCaller = address.ParseWallet
	}
	if s.parseAddress == nil {
		s.parseAddress = address.Parse
	}
	return s, nil
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)
	if s.feed != nil {
		r.Handle("/ws", s.feed).Methods(http.MethodGet)
	}
	r.HandleFunc("/report", s.handleReport).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	// Views
	v1.HandleFunc("/ledger", s.handleLedger).Methods(http.MethodGet)
	v1.HandleFunc("/pools", s.handlePools).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{token}", s.handlePool).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{token}/accounts/{owner}", s.handleAccount).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{token}/accounts/{owner}/positions/{index:[0-9]+}", s.handlePosition).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{token}/balances/{owner}", s.handleBalance).Methods(http.MethodGet)

	// User operations
	v1.HandleFunc("/pools/{token}/deposits", s.handleDeposit).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{token}/positions/{index:[0-9]+}/exit", s.handleExit).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{token}/claims/bonus", s.handleClaimBonus).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{token}/claims/reward", s.handleClaimReward).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{token}/claims/all", s.handleClaimAll).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{token}/settle", s.handleSettlePool).Methods(http.MethodPost)
	v1.HandleFunc("/settle", s.handleSettleAll).Methods(http.MethodPost)
	v1.HandleFunc("/tokens/{token}/approve", s.handleApprove).Methods(http.MethodPost)

	// Owner operations
	v1.HandleFunc("/pools", s.handleRegisterPool).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{token}/limit", s.handleUpdateMaxLimit).Methods(http.MethodPut)
	v1.HandleFunc("/pools/{token}/multiplier", s.handleUpdateMultiplier).Methods(http.MethodPut)
	v1.HandleFunc("/admin/emergency", s.handleEmergency).Methods(http.MethodPut)
	v1.HandleFunc("/admin/fund", s.handleFund).Methods(http.MethodPut)
	v1.HandleFunc("/admin/owner", s.handleOwner).Methods(http.MethodPut)
	v1.HandleFunc("/checkpoints", s.handleListCheckpoints).Methods(http.MethodGet)
	v1.HandleFunc("/checkpoints", s.handleSaveCheckpoint).Methods(http.MethodPost)

	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		elapsed := time.Since(start)
		observability.RecordHTTPRequest(route, rec.status, elapsed.Seconds())
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", rec.status),
			zap.Duration("took", elapsed),
		)
	})
}

func (s *Server) caller(r *http.Request) (domain.Address, error) {
	v := r.Header.Get(CallerHeader)
	if v == "" {
		return "", errMissingCaller
	}
	return s.parseCaller(v)
}

func (s *Server) pathAddress(r *http.Request, name string) (domain.Address, error) {
	return s.parseAddress(mux.Vars(r)[name])
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, newErrorResponse(err, status))
}

func decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", storage.ErrInvalidInput, err)
	}
	return nil
}

// operation runs fn and records its outcome under name.
func operation(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	observability.RecordOperation(name, start, err)
	return err
}

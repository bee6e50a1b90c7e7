// Package admin exposes the operational HTTP API: read access to derived
// state, a manual liquidation sweep trigger, and an analytics rebuild.
package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/liquidation"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
)

// SweepRequester triggers one liquidation pass on demand.
type SweepRequester interface {
	Sweep(ctx context.Context) (*liquidation.SweepResult, error)
}

// AnalyticsRebuilder recomputes the derived per-domain counters.
type AnalyticsRebuilder interface {
	Rebuild(ctx context.Context) error
}

// Pinger reports storage liveness.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server provides the HTTP admin API.
type Server struct {
	loans      store.LoanRepository
	loanHist   store.LoanHistoryRepository
	pools      store.PoolRepository
	poolHist   store.PoolHistoryRepository
	auctions   store.AuctionRepository
	requests   store.LoanRequestRepository
	fundings   store.LoanFundingRepository
	analytics  store.DomainAnalyticsRepository
	scoring    store.ScoringEventRepository
	sweeper    SweepRequester
	rebuilder  AnalyticsRebuilder
	pinger     Pinger
	logger     *slog.Logger
}

// Repos bundles the read-side repositories the server queries.
type Repos struct {
	Loans       store.LoanRepository
	LoanHistory store.LoanHistoryRepository
	Pools       store.PoolRepository
	PoolHistory store.PoolHistoryRepository
	Auctions    store.AuctionRepository
	Requests    store.LoanRequestRepository
	Fundings    store.LoanFundingRepository
	Analytics   store.DomainAnalyticsRepository
	Scoring     store.ScoringEventRepository
}

// ServerOption configures optional dependencies for the admin server.
type ServerOption func(*Server)

// WithSweepRequester enables the manual sweep endpoint.
func WithSweepRequester(sr SweepRequester) ServerOption {
	return func(s *Server) { s.sweeper = sr }
}

// WithAnalyticsRebuilder enables the analytics rebuild endpoint.
func WithAnalyticsRebuilder(ar AnalyticsRebuilder) ServerOption {
	return func(s *Server) { s.rebuilder = ar }
}

// WithPinger wires storage liveness into the health endpoint.
func WithPinger(p Pinger) ServerOption {
	return func(s *Server) { s.pinger = p }
}

func NewServer(repos Repos, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		loans:     repos.Loans,
		loanHist:  repos.LoanHistory,
		pools:     repos.Pools,
		poolHist:  repos.PoolHistory,
		auctions:  repos.Auctions,
		requests:  repos.Requests,
		fundings:  repos.Fundings,
		analytics: repos.Analytics,
		scoring:   repos.Scoring,
		logger:    logger.With("component", "admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler for the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /admin/v1/loans", s.handleGetLoan)
	mux.HandleFunc("GET /admin/v1/loans/history", s.handleLoanHistory)
	mux.HandleFunc("GET /admin/v1/pools", s.handleGetPool)
	mux.HandleFunc("GET /admin/v1/pools/history", s.handlePoolHistory)
	mux.HandleFunc("GET /admin/v1/auctions", s.handleGetAuction)
	mux.HandleFunc("GET /admin/v1/loan-requests", s.handleGetLoanRequest)
	mux.HandleFunc("GET /admin/v1/loan-requests/fundings", s.handleLoanFundings)
	mux.HandleFunc("GET /admin/v1/domains", s.handleGetDomainAnalytics)
	mux.HandleFunc("GET /admin/v1/scoring/latest", s.handleLatestScore)

	mux.HandleFunc("POST /admin/v1/liquidation/sweep", s.handleSweep)
	mux.HandleFunc("POST /admin/v1/analytics/rebuild", s.handleRebuild)

	return mux
}

// writeJSON writes v as JSON with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// requireQuery extracts a required query param, writing a 400 when absent.
func requireQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		http.Error(w, `{"error":"`+name+` query param required"}`, http.StatusBadRequest)
		return "", false
	}
	return v, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		if err := s.pinger.PingContext(r.Context()); err != nil {
			s.logger.Warn("health check db ping failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "db": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, ok := requireQuery(w, r, "loan_id")
	if !ok {
		return
	}
	loan, err := s.loans.Get(r.Context(), loanID)
	if err != nil {
		s.logger.Error("get loan failed", "loan_id", loanID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if loan == nil {
		http.Error(w, `{"error":"loan not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

func (s *Server) handleLoanHistory(w http.ResponseWriter, r *http.Request) {
	loanID, ok := requireQuery(w, r, "loan_id")
	if !ok {
		return
	}
	history, err := s.loanHist.ListByLoan(r.Context(), loanID)
	if err != nil {
		s.logger.Error("list loan history failed", "loan_id", loanID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	poolID := r.URL.Query().Get("pool_id")
	if poolID == "" {
		pools, err := s.pools.ListAll(r.Context())
		if err != nil {
			s.logger.Error("list pools failed", "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, pools)
		return
	}
	pool, err := s.pools.Get(r.Context(), poolID)
	if err != nil {
		s.logger.Error("get pool failed", "pool_id", poolID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if pool == nil {
		http.Error(w, `{"error":"pool not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Server) handlePoolHistory(w http.ResponseWriter, r *http.Request) {
	poolID, ok := requireQuery(w, r, "pool_id")
	if !ok {
		return
	}
	history, err := s.poolHist.ListByPool(r.Context(), poolID)
	if err != nil {
		s.logger.Error("list pool history failed", "pool_id", poolID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := requireQuery(w, r, "auction_id")
	if !ok {
		return
	}
	auction, err := s.auctions.Get(r.Context(), auctionID)
	if err != nil {
		s.logger.Error("get auction failed", "auction_id", auctionID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if auction == nil {
		http.Error(w, `{"error":"auction not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, auction)
}

func (s *Server) handleGetLoanRequest(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requireQuery(w, r, "request_id")
	if !ok {
		return
	}
	req, err := s.requests.Get(r.Context(), requestID)
	if err != nil {
		s.logger.Error("get loan request failed", "request_id", requestID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if req == nil {
		http.Error(w, `{"error":"loan request not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleLoanFundings(w http.ResponseWriter, r *http.Request) {
	requestID, ok := requireQuery(w, r, "request_id")
	if !ok {
		return
	}
	fundings, err := s.fundings.ListByRequest(r.Context(), requestID)
	if err != nil {
		s.logger.Error("list loan fundings failed", "request_id", requestID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, fundings)
}

func (s *Server) handleGetDomainAnalytics(w http.ResponseWriter, r *http.Request) {
	tokenID, ok := requireQuery(w, r, "token_id")
	if !ok {
		return
	}
	analytics, err := s.analytics.Get(r.Context(), tokenID)
	if err != nil {
		s.logger.Error("get domain analytics failed", "token_id", tokenID, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if analytics == nil {
		http.Error(w, `{"error":"domain not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (s *Server) handleLatestScore(w http.ResponseWriter, r *http.Request) {
	id, ok := requireQuery(w, r, "id")
	if !ok {
		return
	}
	ev, err := s.scoring.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("get scoring event failed", "id", id, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	if ev == nil {
		http.Error(w, `{"error":"scoring event not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	if s.sweeper == nil {
		http.Error(w, `{"error":"liquidation sweep not available"}`, http.StatusServiceUnavailable)
		return
	}
	result, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.logger.Error("manual sweep failed", "error", err)
		http.Error(w, `{"error":"sweep failed"}`, http.StatusInternalServerError)
		return
	}
	s.logger.Info("manual liquidation sweep completed",
		"scanned", result.Scanned, "eligible", result.Eligible, "triggered", result.Triggered)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if s.rebuilder == nil {
		http.Error(w, `{"error":"analytics rebuild not available"}`, http.StatusServiceUnavailable)
		return
	}
	if err := s.rebuilder.Rebuild(r.Context()); err != nil {
		s.logger.Error("analytics rebuild failed", "error", err)
		http.Error(w, `{"error":"rebuild failed"}`, http.StatusInternalServerError)
		return
	}
	s.logger.Info("analytics rebuild completed via admin API")
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

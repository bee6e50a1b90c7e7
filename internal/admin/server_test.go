package admin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/liquidation"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store/memory"
)

// --- Mocks ---

type mockSweeper struct {
	result *liquidation.SweepResult
	err    error
	calls  int
}

func (m *mockSweeper) Sweep(_ context.Context) (*liquidation.SweepResult, error) {
	m.calls++
	return m.result, m.err
}

type mockRebuilder struct {
	err   error
	calls int
}

func (m *mockRebuilder) Rebuild(_ context.Context) error {
	m.calls++
	return m.err
}

type mockPinger struct {
	err error
}

func (m *mockPinger) PingContext(_ context.Context) error { return m.err }

// --- Helper ---

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *memory.LoanStore, *memory.PoolStore) {
	t.Helper()
	loans := memory.NewLoanStore()
	pools := memory.NewPoolStore()
	scoring := memory.NewScoringEventStore()
	s := NewServer(Repos{
		Loans:       loans,
		LoanHistory: memory.NewLoanHistoryStore(),
		Pools:       pools,
		PoolHistory: memory.NewPoolHistoryStore(),
		Auctions:    memory.NewAuctionStore(),
		Requests:    memory.NewLoanRequestStore(),
		Fundings:    memory.NewLoanFundingStore(),
		Analytics:   memory.NewDomainAnalyticsStore(loans, scoring),
		Scoring:     scoring,
	}, slog.New(slog.NewTextHandler(os.Stderr, nil)), opts...)
	return s, loans, pools
}

func seedLoan(t *testing.T, loans *memory.LoanStore, loanID string) {
	t.Helper()
	err := loans.UpsertTx(context.Background(), nil, &model.Loan{
		LoanID:            loanID,
		BorrowerAddress:   "0xb0rr0wer",
		DomainTokenID:     "4242",
		DomainName:        "example.io",
		OriginalAmount:    "1000000",
		CurrentBalance:    "1000000",
		TotalRepaid:       "0",
		TotalOwed:         "1100000",
		Status:            model.LoanStatusActive,
		RepaymentDeadline: time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)
}

// --- Tests ---

func TestHandleHealth_OK(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}

func TestHandleHealth_DegradedOnPingFailure(t *testing.T) {
	s, _, _ := newTestServer(t, WithPinger(&mockPinger{err: errors.New("connection refused")}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}

func TestHandleGetLoan(t *testing.T) {
	s, loans, _ := newTestServer(t)
	seedLoan(t, loans, "loan-1")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/loans?loan_id=loan-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var loan model.Loan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &loan))
	assert.Equal(t, "loan-1", loan.LoanID)
	assert.Equal(t, "example.io", loan.DomainName)
}

func TestHandleGetLoan_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/loans?loan_id=nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetLoan_MissingParam(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/loans", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "loan_id")
}

func TestHandleGetPool_ListAll(t *testing.T) {
	s, _, pools := newTestServer(t)
	require.NoError(t, pools.UpsertTx(context.Background(), nil, &model.Pool{
		PoolID:             "7",
		CreatorAddress:     "0xcreator",
		TotalLiquidity:     "5000000",
		AvailableLiquidity: "5000000",
		Status:             model.PoolStatusActive,
	}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/pools", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var got []model.Pool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "7", got[0].PoolID)
}

func TestHandleSweep(t *testing.T) {
	sweeper := &mockSweeper{result: &liquidation.SweepResult{Scanned: 3, Eligible: 1, Triggered: 1}}
	s, _, _ := newTestServer(t, WithSweepRequester(sweeper))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/liquidation/sweep", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sweeper.calls)
	var result liquidation.SweepResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, 3, result.Scanned)
	assert.Equal(t, 1, result.Triggered)
}

func TestHandleSweep_NotConfigured(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/liquidation/sweep", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleSweep_Error(t *testing.T) {
	sweeper := &mockSweeper{err: errors.New("db unavailable")}
	s, _, _ := newTestServer(t, WithSweepRequester(sweeper))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/liquidation/sweep", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleRebuild(t *testing.T) {
	rebuilder := &mockRebuilder{}
	s, _, _ := newTestServer(t, WithAnalyticsRebuilder(rebuilder))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/analytics/rebuild", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, rebuilder.calls)
}

func TestHandleRebuild_NotConfigured(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/v1/analytics/rebuild", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleGetAuction_NotFound(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/v1/auctions?auction_id=9", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMetricsExposed(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

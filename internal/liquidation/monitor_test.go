package liquidation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/alert"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/contracts"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store/memory"
)

type stubExecutor struct {
	mu       sync.Mutex
	err      error
	requests []contracts.LiquidationRequest
}

func (s *stubExecutor) LiquidateLoan(_ context.Context, req contracts.LiquidationRequest) (contracts.LiquidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return contracts.LiquidationResult{}, s.err
	}
	return contracts.LiquidationResult{
		TxHash:    "0xliquidation",
		AuctionID: "auction-new",
	}, nil
}

func (s *stubExecutor) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type capturingAlerter struct {
	mu     sync.Mutex
	alerts []alert.Alert
}

func (c *capturingAlerter) Send(_ context.Context, a alert.Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return nil
}

func (c *capturingAlerter) byType(t alert.AlertType) []alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []alert.Alert
	for _, a := range c.alerts {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	monitor  *Monitor
	loans    *memory.LoanStore
	system   *memory.SystemEventStore
	executor *stubExecutor
	alerter  *capturingAlerter
	clock    *fakeClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		loans:    memory.NewLoanStore(),
		system:   memory.NewSystemEventStore(),
		executor: &stubExecutor{},
		alerter:  &capturingAlerter{},
		clock:    &fakeClock{now: time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC)},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.monitor = NewMonitor(env.loans, env.system, env.executor, logger,
		WithAlerter(env.alerter), WithClock(env.clock.Now))
	return env
}

func (env *testEnv) seedLoan(t *testing.T, loanID string, deadline time.Time, bufferHours int) {
	t.Helper()
	err := env.loans.UpsertTx(context.Background(), nil, &model.Loan{
		LoanID:                 loanID,
		BorrowerAddress:        "0xborrower",
		DomainTokenID:          "101",
		OriginalAmount:         "300",
		CurrentBalance:         "300",
		TotalRepaid:            "0",
		TotalOwed:              "315",
		Status:                 model.LoanStatusActive,
		RepaymentDeadline:      deadline,
		LiquidationBufferHours: bufferHours,
	})
	require.NoError(t, err)
}

func TestSweep_TriggersOverdueLoans(t *testing.T) {
	env := newTestEnv(t)
	now := env.clock.Now()
	env.seedLoan(t, "loan-overdue", now.Add(-time.Hour), 0)
	env.seedLoan(t, "loan-current", now.Add(24*time.Hour), 0)

	result, err := env.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Eligible)
	assert.Equal(t, 1, result.Triggered)
	assert.Equal(t, 0, result.Failed)

	require.Equal(t, 1, env.executor.calls())
	assert.Equal(t, "loan-overdue", env.executor.requests[0].LoanID)
	assert.Equal(t, "101", env.executor.requests[0].DomainTokenID)

	loan, err := env.loans.Get(context.Background(), "loan-overdue")
	require.NoError(t, err)
	assert.True(t, loan.LiquidationAttempted)
	require.NotNil(t, loan.LiquidationTxHash)
	assert.Equal(t, "0xliquidation", *loan.LiquidationTxHash)

	alerts := env.alerter.byType(alert.AlertTypeLiquidationTrigger)
	require.Len(t, alerts, 1)
	assert.Equal(t, "loan-overdue", alerts[0].Subject)

	recorded := env.system.ListByType(model.SystemEventLiquidationSweep)
	require.Len(t, recorded, 1)
	assert.Contains(t, string(recorded[0].Details), `"triggered":1`)
}

func TestSweep_SecondPassDoesNotRetrigger(t *testing.T) {
	env := newTestEnv(t)
	env.seedLoan(t, "loan-1", env.clock.Now().Add(-time.Hour), 0)

	_, err := env.monitor.Sweep(context.Background())
	require.NoError(t, err)

	result, err := env.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Equal(t, 0, result.Triggered)
	assert.Equal(t, 1, env.executor.calls())
}

func TestSweep_BufferDelaysEligibility(t *testing.T) {
	env := newTestEnv(t)
	env.seedLoan(t, "loan-1", env.clock.Now().Add(-time.Hour), 24)

	result, err := env.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.Eligible)
	assert.Equal(t, 0, env.executor.calls())

	env.clock.Advance(24 * time.Hour)

	result, err = env.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Eligible)
	assert.Equal(t, 1, result.Triggered)
}

func TestSweep_ExecutorFailureReleasesLatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedLoan(t, "loan-1", env.clock.Now().Add(-time.Hour), 0)
	env.executor.err = errors.New("rpc timeout")

	result, err := env.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 0, result.Triggered)

	loan, err := env.loans.Get(context.Background(), "loan-1")
	require.NoError(t, err)
	assert.False(t, loan.LiquidationAttempted)
	assert.Nil(t, loan.LiquidationTxHash)

	require.Len(t, env.alerter.byType(alert.AlertTypeLiquidationFailed), 1)

	// Once the executor recovers the next sweep picks the loan up again.
	env.executor.err = nil
	result, err = env.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Triggered)
	assert.Equal(t, 2, env.executor.calls())
}

// raceLatchStore simulates a competing process holding the latch between
// the list query and the acquire attempt.
type raceLatchStore struct {
	*memory.LoanStore
}

func (s *raceLatchStore) AcquireLiquidationLatch(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func TestSweep_HeldLatchIsSkippedNotFailed(t *testing.T) {
	env := newTestEnv(t)
	env.seedLoan(t, "loan-1", env.clock.Now().Add(-time.Hour), 0)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	monitor := NewMonitor(&raceLatchStore{LoanStore: env.loans}, env.system, env.executor, logger,
		WithAlerter(env.alerter), WithClock(env.clock.Now))

	result, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Eligible)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 0, env.executor.calls())
}

// stuckLatchStore fails the latch release, the double fault that strands
// a loan until an operator intervenes.
type stuckLatchStore struct {
	*memory.LoanStore
}

func (s *stuckLatchStore) ReleaseLiquidationLatch(context.Context, string) error {
	return errors.New("connection reset")
}

func TestSweep_StuckLatchRaisesStrandedAlert(t *testing.T) {
	env := newTestEnv(t)
	env.seedLoan(t, "loan-1", env.clock.Now().Add(-time.Hour), 0)
	env.executor.err = errors.New("rpc timeout")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	monitor := NewMonitor(&stuckLatchStore{LoanStore: env.loans}, env.system, env.executor, logger,
		WithAlerter(env.alerter), WithClock(env.clock.Now))

	result, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	stranded := env.alerter.byType(alert.AlertTypeLiquidationStranded)
	require.Len(t, stranded, 1)
	assert.Equal(t, "loan-1", stranded[0].Subject)

	// The latch stays held; the loan needs operator attention, not a
	// second automatic attempt.
	loan, err := env.loans.Get(context.Background(), "loan-1")
	require.NoError(t, err)
	assert.True(t, loan.LiquidationAttempted)
}

func TestSweep_NoEligibleLoansRecordsNothing(t *testing.T) {
	env := newTestEnv(t)
	env.seedLoan(t, "loan-1", env.clock.Now().Add(time.Hour), 0)

	result, err := env.monitor.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.Eligible)
	assert.Empty(t, env.system.ListByType(model.SystemEventLiquidationSweep))
}

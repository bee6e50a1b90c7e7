package analytics

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/alert"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store/memory"
)

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

func (c *capturingAlerter) sent() []alert.Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]alert.Alert(nil), c.alerts...)
}

type testEnv struct {
	svc       *Service
	pools     *memory.PoolStore
	history   *memory.PoolHistoryStore
	systemLog *memory.SystemEventStore
	alerter   *capturingAlerter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	loans := memory.NewLoanStore()
	scoring := memory.NewScoringEventStore()
	env := &testEnv{
		pools:     memory.NewPoolStore(),
		history:   memory.NewPoolHistoryStore(),
		systemLog: memory.NewSystemEventStore(),
		alerter:   &capturingAlerter{},
	}
	env.svc = NewService(
		memory.NewTransactor(),
		env.pools,
		env.history,
		memory.NewDomainAnalyticsStore(loans, scoring),
		env.systemLog,
		env.alerter,
		slog.Default(),
	)
	return env
}

func (e *testEnv) seedPool(t *testing.T, poolID, available string) {
	t.Helper()
	err := e.pools.UpsertTx(context.Background(), nil, &model.Pool{
		PoolID:             poolID,
		TotalLiquidity:     available,
		AvailableLiquidity: available,
		Status:             model.PoolStatusActive,
	})
	require.NoError(t, err)
}

func (e *testEnv) seedLedger(t *testing.T, poolID string, logIndex uint, eventType model.PoolEventType, amount string) {
	t.Helper()
	inserted, err := e.history.AppendTx(context.Background(), nil, &model.PoolHistory{
		PoolID:    poolID,
		EventType: eventType,
		TxHash:    "0xledger",
		LogIndex:  logIndex,
		Amount:    amount,
	})
	require.NoError(t, err)
	require.True(t, inserted)
}

func TestCheckPools_LedgerMatches(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "1", "700")
	env.seedLedger(t, "1", 0, model.PoolEventCreated, "1000")
	env.seedLedger(t, "1", 1, model.PoolEventLoanDrawn, "300")

	result, err := env.svc.CheckPools(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, 0, result.Mismatched)
	require.Len(t, result.Checks, 1)
	assert.Equal(t, "700", result.Checks[0].LedgerBalance)
	assert.Equal(t, "0", result.Checks[0].Difference)
	assert.True(t, result.Checks[0].IsMatch)
	assert.Empty(t, env.alerter.sent())
}

func TestCheckPools_MismatchAlertsAndRecords(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "1", "500")
	env.seedLedger(t, "1", 0, model.PoolEventCreated, "1000")
	env.seedLedger(t, "1", 1, model.PoolEventLoanDrawn, "300")

	result, err := env.svc.CheckPools(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Mismatched)
	require.Len(t, result.Checks, 1)
	assert.Equal(t, "700", result.Checks[0].LedgerBalance)
	assert.Equal(t, "-200", result.Checks[0].Difference)
	assert.False(t, result.Checks[0].IsMatch)

	alerts := env.alerter.sent()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.AlertTypeLedgerMismatch, alerts[0].Type)

	recorded := env.systemLog.ListByType(model.SystemEventLedgerMismatch)
	require.Len(t, recorded, 1)
	assert.Contains(t, string(recorded[0].Details), `"mismatched":1`)
}

func TestCheckPools_CreditRowsAdd(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "7", "1150")
	env.seedLedger(t, "7", 0, model.PoolEventCreated, "1000")
	env.seedLedger(t, "7", 1, model.PoolEventLoanDrawn, "400")
	env.seedLedger(t, "7", 2, model.PoolEventRepayment, "250")
	env.seedLedger(t, "7", 3, model.PoolEventAuctionProceeds, "300")

	result, err := env.svc.CheckPools(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Matched)
	assert.Equal(t, "1150", result.Checks[0].LedgerBalance)
}

func TestCheckPools_BadLedgerRowCountsAsMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.seedPool(t, "1", "100")
	env.seedLedger(t, "1", 0, model.PoolEventCreated, "not-a-number")

	result, err := env.svc.CheckPools(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Mismatched)
	assert.Equal(t, "ERROR", result.Checks[0].LedgerBalance)
	assert.False(t, result.Checks[0].IsMatch)
}

func TestCheckPools_NoPools(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.CheckPools(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, result.Total)
	assert.Empty(t, env.alerter.sent())
}

func TestReplayLedger(t *testing.T) {
	tests := []struct {
		name     string
		rows     []model.PoolHistory
		expected string
	}{
		{
			name:     "empty ledger",
			rows:     nil,
			expected: "0",
		},
		{
			name: "updated rows carry no amount",
			rows: []model.PoolHistory{
				{EventType: model.PoolEventCreated, Amount: "500"},
				{EventType: model.PoolEventUpdated, Amount: "0"},
			},
			expected: "500",
		},
		{
			name: "auction restore credits outstanding balance",
			rows: []model.PoolHistory{
				{EventType: model.PoolEventCreated, Amount: "1000"},
				{EventType: model.PoolEventLoanDrawn, Amount: "600"},
				{EventType: model.PoolEventAuctionRestored, Amount: "600"},
			},
			expected: "1000",
		},
		{
			name: "withdrawal below zero is representable",
			rows: []model.PoolHistory{
				{EventType: model.PoolEventLiquidityRemoved, Amount: "10"},
			},
			expected: "-10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			balance, err := replayLedger(tt.rows)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, balance.String())
		})
	}
}

func TestReplayLedger_UnknownEventType(t *testing.T) {
	_, err := replayLedger([]model.PoolHistory{{EventType: "minted", Amount: "1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ledger event type")
}

func TestRebuild(t *testing.T) {
	loans := memory.NewLoanStore()
	scoring := memory.NewScoringEventStore()
	analytics := memory.NewDomainAnalyticsStore(loans, scoring)

	err := loans.UpsertTx(context.Background(), nil, &model.Loan{
		LoanID:         "1",
		DomainTokenID:  "42",
		DomainName:     "alpha.io",
		OriginalAmount: "1000",
		CurrentBalance: "1000",
		TotalRepaid:    "0",
		Status:         model.LoanStatusActive,
	})
	require.NoError(t, err)

	svc := NewService(
		memory.NewTransactor(),
		memory.NewPoolStore(),
		memory.NewPoolHistoryStore(),
		analytics,
		memory.NewSystemEventStore(),
		nil,
		slog.Default(),
	)

	require.NoError(t, svc.Rebuild(context.Background()))

	row, err := analytics.Get(context.Background(), "42")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, int64(1), row.TotalLoans)
	assert.Equal(t, int64(1), row.ActiveLoans)
}

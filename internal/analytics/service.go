// Package analytics maintains the derived aggregates: full rebuild of the
// per-domain counters and periodic verification that pool aggregate
// balances still match their append-only liquidity ledgers.
package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/alert"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/metrics"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
)

// CheckResult holds the outcome of verifying one pool against its ledger.
type CheckResult struct {
	PoolID        string    `json:"pool_id"`
	LedgerBalance string    `json:"ledger_balance"`
	StoredBalance string    `json:"stored_balance"`
	Difference    string    `json:"difference"`
	IsMatch       bool      `json:"is_match"`
	CheckedAt     time.Time `json:"checked_at"`
}

// RunResult aggregates a full consistency run.
type RunResult struct {
	Total      int           `json:"total"`
	Matched    int           `json:"matched"`
	Mismatched int           `json:"mismatched"`
	Errors     int           `json:"errors"`
	Checks     []CheckResult `json:"checks"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Service rebuilds domain analytics and cross-checks pool aggregates
// against the liquidity ledger.
type Service struct {
	tx        store.Transactor
	pools     store.PoolRepository
	history   store.PoolHistoryRepository
	analytics store.DomainAnalyticsRepository
	systemLog store.SystemEventRepository
	alerter   alert.Alerter
	logger    *slog.Logger

	mu sync.Mutex // one check or rebuild at a time
}

func NewService(
	tx store.Transactor,
	pools store.PoolRepository,
	history store.PoolHistoryRepository,
	analytics store.DomainAnalyticsRepository,
	systemLog store.SystemEventRepository,
	alerter alert.Alerter,
	logger *slog.Logger,
) *Service {
	if alerter == nil {
		alerter = &alert.NoopAlerter{}
	}
	return &Service{
		tx:        tx,
		pools:     pools,
		history:   history,
		analytics: analytics,
		systemLog: systemLog,
		alerter:   alerter,
		logger:    logger.With("component", "analytics"),
	}
}

// Rebuild recomputes every per-domain analytics row from the loan and
// scoring tables inside one transaction.
func (s *Service) Rebuild(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	err := s.tx.WithinTx(ctx, func(tx *sql.Tx) error {
		return s.analytics.RebuildTx(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("rebuild analytics: %w", err)
	}
	metrics.AnalyticsRebuildsTotal.Inc()
	s.logger.Info("analytics rebuilt", "duration", time.Since(start))
	return nil
}

// CheckPools replays every pool's liquidity ledger and compares the result
// with the stored aggregate. A mismatch means a missed or duplicated event;
// it is reported, never auto-corrected.
func (s *Service) CheckPools(ctx context.Context) (*RunResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := &RunResult{StartedAt: time.Now()}

	pools, err := s.pools.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pools: %w", err)
	}

	for _, pool := range pools {
		rows, err := s.history.ListByPool(ctx, pool.PoolID)
		if err != nil {
			s.logger.Warn("failed to load pool ledger", "pool_id", pool.PoolID, "error", err)
			result.Errors++
			continue
		}

		check := s.checkOne(pool, rows)
		result.Checks = append(result.Checks, check)
		result.Total++
		if check.IsMatch {
			result.Matched++
		} else {
			result.Mismatched++
		}
	}

	result.FinishedAt = time.Now()

	metrics.ConsistencyChecksTotal.Inc()
	if result.Mismatched > 0 {
		metrics.ConsistencyMismatchesTotal.Add(float64(result.Mismatched))

		_ = s.alerter.Send(ctx, alert.Alert{
			Type:    alert.AlertTypeLedgerMismatch,
			Subject: "pool-ledger",
			Title:   "Pool balance diverged from ledger",
			Message: fmt.Sprintf("%d/%d pools have a balance mismatch", result.Mismatched, result.Total),
			Fields: map[string]string{
				"matched":    fmt.Sprintf("%d", result.Matched),
				"mismatched": fmt.Sprintf("%d", result.Mismatched),
				"errors":     fmt.Sprintf("%d", result.Errors),
			},
		})
		s.recordRun(ctx, result)
	}

	s.logger.Info("consistency check completed",
		"total", result.Total, "matched", result.Matched,
		"mismatched", result.Mismatched, "errors", result.Errors,
	)

	return result, nil
}

func (s *Service) checkOne(pool model.Pool, rows []model.PoolHistory) CheckResult {
	check := CheckResult{
		PoolID:        pool.PoolID,
		StoredBalance: pool.AvailableLiquidity,
		CheckedAt:     time.Now(),
	}

	ledger, err := replayLedger(rows)
	if err != nil {
		s.logger.Warn("ledger replay failed", "pool_id", pool.PoolID, "error", err)
		check.LedgerBalance = "ERROR"
		check.Difference = "N/A"
		return check
	}
	check.LedgerBalance = ledger.String()

	stored, ok := new(big.Int).SetString(pool.AvailableLiquidity, 10)
	if !ok {
		check.Difference = "PARSE_ERROR"
		check.IsMatch = pool.AvailableLiquidity == check.LedgerBalance
		return check
	}

	diff := new(big.Int).Sub(stored, ledger)
	check.Difference = diff.String()
	check.IsMatch = diff.Sign() == 0
	return check
}

// replayLedger folds the ledger rows into the available balance they imply.
// Credit rows add, draw rows subtract, metadata rows carry no amount.
func replayLedger(rows []model.PoolHistory) (*big.Int, error) {
	balance := new(big.Int)
	for _, row := range rows {
		amount, ok := new(big.Int).SetString(row.Amount, 10)
		if !ok {
			return nil, fmt.Errorf("invalid ledger amount %q in row %s/%d", row.Amount, row.TxHash, row.LogIndex)
		}
		switch row.EventType {
		case model.PoolEventCreated, model.PoolEventLiquidityAdded,
			model.PoolEventRepayment, model.PoolEventAuctionProceeds,
			model.PoolEventAuctionRestored:
			balance.Add(balance, amount)
		case model.PoolEventLiquidityRemoved, model.PoolEventLoanDrawn:
			balance.Sub(balance, amount)
		case model.PoolEventUpdated:
			// parameter change, no liquidity movement
		default:
			return nil, fmt.Errorf("unknown ledger event type %q in row %s/%d", row.EventType, row.TxHash, row.LogIndex)
		}
	}
	return balance, nil
}

func (s *Service) recordRun(ctx context.Context, result *RunResult) {
	details, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.systemLog.Append(ctx, &model.SystemEvent{
		EventType: model.SystemEventLedgerMismatch,
		Details:   details,
	}); err != nil {
		s.logger.Warn("record consistency run failed", "error", err)
	}
}

// RunPeriodic checks pool consistency at the given interval until the
// context is cancelled.
func (s *Service) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Hour
	}

	s.logger.Info("periodic consistency check started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("periodic consistency check stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.CheckPools(ctx); err != nil {
				s.logger.Warn("periodic consistency check failed", "error", err)
			}
		}
	}
}

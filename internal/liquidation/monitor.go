// Package liquidation runs the periodic sweep that finds loans past their
// repayment deadline and triggers their on-chain liquidation at most once.
package liquidation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/alert"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/contracts"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/metrics"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
)

// SweepResult aggregates one monitor pass over the active loan set.
type SweepResult struct {
	Scanned    int       `json:"scanned"`
	Eligible   int       `json:"eligible"`
	Triggered  int       `json:"triggered"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Monitor scans for overdue loans and hands them to the contract executor.
// The per-loan latch in the loan store guarantees at most one liquidation
// attempt even when sweeps overlap across processes.
type Monitor struct {
	loans    store.LoanRepository
	system   store.SystemEventRepository
	executor contracts.Executor
	alerter  alert.Alerter
	logger   *slog.Logger

	mu  sync.Mutex // serializes sweeps within this process
	now func() time.Time
}

type Option func(*Monitor)

func WithAlerter(a alert.Alerter) Option {
	return func(m *Monitor) {
		m.alerter = a
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func NewMonitor(
	loans store.LoanRepository,
	system store.SystemEventRepository,
	executor contracts.Executor,
	logger *slog.Logger,
	opts ...Option,
) *Monitor {
	m := &Monitor{
		loans:    loans,
		system:   system,
		executor: executor,
		alerter:  &alert.NoopAlerter{},
		logger:   logger.With("component", "liquidation"),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// RunPeriodic sweeps at the given interval until the context is cancelled.
// The first sweep runs after one full interval so a crash-looping process
// does not hammer the executor.
func (m *Monitor) RunPeriodic(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}

	m.logger.Info("liquidation monitor started", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("liquidation monitor stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				m.logger.Warn("liquidation sweep failed", "error", err)
			}
		}
	}
}

// Sweep scans every active unattempted loan once and triggers liquidation
// for those past deadline plus buffer. Per-loan failures are recorded and
// do not stop the pass.
func (m *Monitor) Sweep(ctx context.Context) (*SweepResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.now().UTC()
	result := &SweepResult{StartedAt: start}
	metrics.LiquidationSweepsTotal.Inc()
	defer func() {
		metrics.LiquidationSweepLatency.Observe(time.Since(start).Seconds())
	}()

	loans, err := m.loans.ListActiveUnattempted(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active loans: %w", err)
	}
	result.Scanned = len(loans)

	eligible := 0
	for i := range loans {
		loan := &loans[i]
		if !m.pastThreshold(loan, start) {
			continue
		}
		eligible++
		switch err := m.liquidate(ctx, loan, start); {
		case err == nil:
			result.Triggered++
		case err == errLatchHeld:
			result.Skipped++
		default:
			result.Failed++
			metrics.LiquidationFailuresTotal.Inc()
			m.logger.Error("liquidation attempt failed",
				"loan_id", loan.LoanID,
				"domain_token_id", loan.DomainTokenID,
				"error", err,
			)
		}
		if ctx.Err() != nil {
			break
		}
	}
	result.Eligible = eligible
	result.FinishedAt = m.now().UTC()
	metrics.LiquidationEligibleLoans.Set(float64(eligible))

	m.logger.Info("liquidation sweep finished",
		"scanned", result.Scanned,
		"eligible", result.Eligible,
		"triggered", result.Triggered,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	m.recordSweep(ctx, result)
	return result, nil
}

// pastThreshold reports whether the loan's repayment deadline plus its
// grace buffer has elapsed.
func (m *Monitor) pastThreshold(loan *model.Loan, now time.Time) bool {
	threshold := loan.RepaymentDeadline.Add(time.Duration(loan.LiquidationBufferHours) * time.Hour)
	return now.After(threshold)
}

var errLatchHeld = fmt.Errorf("liquidation latch already held")

func (m *Monitor) liquidate(ctx context.Context, loan *model.Loan, attemptedAt time.Time) error {
	acquired, err := m.loans.AcquireLiquidationLatch(ctx, loan.LoanID, attemptedAt)
	if err != nil {
		return fmt.Errorf("acquire latch: %w", err)
	}
	if !acquired {
		return errLatchHeld
	}

	res, err := m.executor.LiquidateLoan(ctx, contracts.LiquidationRequest{
		LoanID:          loan.LoanID,
		DomainTokenID:   loan.DomainTokenID,
		BorrowerAddress: loan.BorrowerAddress,
	})
	if err != nil {
		// Release so the next sweep retries; a stuck latch would strand
		// the loan forever.
		if relErr := m.loans.ReleaseLiquidationLatch(ctx, loan.LoanID); relErr != nil {
			m.logger.Error("release liquidation latch failed, loan may be stranded",
				"loan_id", loan.LoanID, "error", relErr)
			m.sendAlert(ctx, alert.Alert{
				Type:    alert.AlertTypeLiquidationStranded,
				Subject: loan.LoanID,
				Title:   "Liquidation latch stuck",
				Message: fmt.Sprintf("executor failed (%v) and latch release also failed (%v)", err, relErr),
			})
			return fmt.Errorf("executor failed and latch release failed: %v: %w", relErr, err)
		}
		m.sendAlert(ctx, alert.Alert{
			Type:    alert.AlertTypeLiquidationFailed,
			Subject: loan.LoanID,
			Title:   "Liquidation trigger failed",
			Message: err.Error(),
			Fields: map[string]string{
				"domain_token_id": loan.DomainTokenID,
				"borrower":        loan.BorrowerAddress,
			},
		})
		return fmt.Errorf("liquidate loan %s: %w", loan.LoanID, err)
	}

	if err := m.loans.RecordLiquidationOutcome(ctx, loan.LoanID, res.TxHash); err != nil {
		// The on-chain call went through; keep the latch set and surface
		// the bookkeeping failure.
		m.logger.Error("record liquidation outcome failed",
			"loan_id", loan.LoanID, "tx_hash", res.TxHash, "error", err)
	}
	metrics.LiquidationsTriggeredTotal.Inc()
	m.logger.Info("liquidation triggered",
		"loan_id", loan.LoanID,
		"domain_token_id", loan.DomainTokenID,
		"tx_hash", res.TxHash,
		"auction_id", res.AuctionID,
	)
	m.sendAlert(ctx, alert.Alert{
		Type:    alert.AlertTypeLiquidationTrigger,
		Subject: loan.LoanID,
		Title:   "Loan liquidation triggered",
		Message: fmt.Sprintf("domain %s sent to auction", loan.DomainTokenID),
		Fields: map[string]string{
			"tx_hash":    res.TxHash,
			"auction_id": res.AuctionID,
		},
	})
	return nil
}

func (m *Monitor) recordSweep(ctx context.Context, result *SweepResult) {
	if result.Eligible == 0 {
		return
	}
	details, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := m.system.Append(ctx, &model.SystemEvent{
		EventType: model.SystemEventLiquidationSweep,
		Details:   details,
	}); err != nil {
		m.logger.Warn("record sweep summary failed", "error", err)
	}
}

func (m *Monitor) sendAlert(ctx context.Context, a alert.Alert) {
	if err := m.alerter.Send(ctx, a); err != nil {
		m.logger.Warn("alert send failed", "alert_type", a.Type, "error", err)
	}
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

// TxBeginner abstracts the ability to begin a database transaction.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Transactor runs fn inside one transaction. The memory implementation
// passes a nil *sql.Tx; repositories must treat the tx argument as opaque.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx *sql.Tx) error) error
}

// ScoringEventRepository provides access to scoring request rows. Rows are
// keyed by the request event's (tx_hash, log_index), so InsertTx on a
// replayed event reports inserted=false and changes nothing.
type ScoringEventRepository interface {
	InsertTx(ctx context.Context, tx *sql.Tx, ev *model.ScoringEvent) (inserted bool, err error)
	UpdateTx(ctx context.Context, tx *sql.Tx, ev *model.ScoringEvent) error
	GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.ScoringEvent, error)
	// LatestByTokenTx returns the most recent scoring row for a domain, or
	// nil when the domain has never been scored.
	LatestByTokenTx(ctx context.Context, tx *sql.Tx, domainTokenID string) (*model.ScoringEvent, error)
	Get(ctx context.Context, id string) (*model.ScoringEvent, error)
}

// LoanRepository provides access to loan aggregate rows.
type LoanRepository interface {
	GetTx(ctx context.Context, tx *sql.Tx, loanID string) (*model.Loan, error)
	UpsertTx(ctx context.Context, tx *sql.Tx, loan *model.Loan) error
	Get(ctx context.Context, loanID string) (*model.Loan, error)
	// ListActiveUnattempted returns loans with status=active and
	// liquidation_attempted=false, the liquidation monitor's scan set.
	ListActiveUnattempted(ctx context.Context) ([]model.Loan, error)
	// AcquireLiquidationLatch atomically sets liquidation_attempted=true
	// and the attempt timestamp, returning false when another sweep got
	// there first or the loan is no longer active.
	AcquireLiquidationLatch(ctx context.Context, loanID string, attemptedAt time.Time) (bool, error)
	// ReleaseLiquidationLatch is the compensating update after an executor
	// failure: liquidation_attempted=false, timestamp cleared.
	ReleaseLiquidationLatch(ctx context.Context, loanID string) error
	// RecordLiquidationOutcome persists the executor tx hash; the latch
	// stays set.
	RecordLiquidationOutcome(ctx context.Context, loanID string, txHash string) error
	ListAll(ctx context.Context) ([]model.Loan, error)
}

// LoanHistoryRepository appends audit rows keyed by (tx_hash, log_index).
// AppendTx on a replayed event reports inserted=false.
type LoanHistoryRepository interface {
	AppendTx(ctx context.Context, tx *sql.Tx, h *model.LoanHistory) (inserted bool, err error)
	ListByLoan(ctx context.Context, loanID string) ([]model.LoanHistory, error)
}

// PoolRepository provides access to lending pool aggregate rows.
type PoolRepository interface {
	GetTx(ctx context.Context, tx *sql.Tx, poolID string) (*model.Pool, error)
	UpsertTx(ctx context.Context, tx *sql.Tx, pool *model.Pool) error
	Get(ctx context.Context, poolID string) (*model.Pool, error)
	ListAll(ctx context.Context) ([]model.Pool, error)
}

// PoolHistoryRepository appends liquidity ledger rows keyed by
// (tx_hash, log_index).
type PoolHistoryRepository interface {
	AppendTx(ctx context.Context, tx *sql.Tx, h *model.PoolHistory) (inserted bool, err error)
	ListByPool(ctx context.Context, poolID string) ([]model.PoolHistory, error)
}

// AuctionRepository provides access to auction aggregate rows.
type AuctionRepository interface {
	GetTx(ctx context.Context, tx *sql.Tx, auctionID string) (*model.Auction, error)
	UpsertTx(ctx context.Context, tx *sql.Tx, auction *model.Auction) error
	Get(ctx context.Context, auctionID string) (*model.Auction, error)
}

// LoanRequestRepository provides access to crowdfunding campaign rows.
type LoanRequestRepository interface {
	GetTx(ctx context.Context, tx *sql.Tx, requestID string) (*model.LoanRequest, error)
	UpsertTx(ctx context.Context, tx *sql.Tx, req *model.LoanRequest) error
	Get(ctx context.Context, requestID string) (*model.LoanRequest, error)
}

// LoanFundingRepository appends contribution rows keyed by
// (tx_hash, log_index).
type LoanFundingRepository interface {
	AppendTx(ctx context.Context, tx *sql.Tx, f *model.LoanFunding) (inserted bool, err error)
	ListByRequest(ctx context.Context, requestID string) ([]model.LoanFunding, error)
}

// DomainAnalyticsRepository maintains the derived per-domain counters.
type DomainAnalyticsRepository interface {
	// ApplyTx folds one delta into the aggregate row, creating it if absent.
	ApplyTx(ctx context.Context, tx *sql.Tx, delta model.AnalyticsDelta) error
	Get(ctx context.Context, domainTokenID string) (*model.DomainAnalytics, error)
	// RebuildTx recomputes every analytics row from the loan and scoring
	// tables inside the given transaction.
	RebuildTx(ctx context.Context, tx *sql.Tx) error
}

// SystemEventRepository appends administrative/audit records.
type SystemEventRepository interface {
	AppendTx(ctx context.Context, tx *sql.Tx, ev *model.SystemEvent) error
	Append(ctx context.Context, ev *model.SystemEvent) error
}

// BatchOperationRepository tracks batch scoring runs.
type BatchOperationRepository interface {
	InsertTx(ctx context.Context, tx *sql.Tx, op *model.BatchOperation) (inserted bool, err error)
	GetTx(ctx context.Context, tx *sql.Tx, batchID string) (*model.BatchOperation, error)
	// AddScoredTx increments scored_count and flips the status to completed
	// once every token in the batch has been scored.
	AddScoredTx(ctx context.Context, tx *sql.Tx, batchID string, n int) error
}

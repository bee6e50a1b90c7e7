package model

import (
	"time"

	"github.com/google/uuid"
)

type LoanStatus string

const (
	LoanStatusActive     LoanStatus = "active"
	LoanStatusRepaid     LoanStatus = "repaid"
	LoanStatusLiquidated LoanStatus = "liquidated"
	LoanStatusAuctioning LoanStatus = "auctioning"
	LoanStatusSold       LoanStatus = "sold"
)

// Loan is the mutable aggregate row for a single on-chain loan, keyed by
// loan_id. Derived fields (CurrentBalance, TotalRepaid) are recomputed from
// the previous snapshot on every lifecycle event, so re-applying the same
// event leaves the row unchanged.
type Loan struct {
	LoanID                 string     `db:"loan_id"`
	BorrowerAddress        string     `db:"borrower_address"`
	DomainTokenID          string     `db:"domain_token_id"`
	DomainName             string     `db:"domain_name"`
	OriginalAmount         string     `db:"original_amount"`
	CurrentBalance         string     `db:"current_balance"`
	TotalRepaid            string     `db:"total_repaid"`
	TotalOwed              string     `db:"total_owed"`
	InterestRate           int64      `db:"interest_rate"`
	PoolID                 string     `db:"pool_id"`
	RequestID              string     `db:"request_id"`
	AiScore                int        `db:"ai_score"`
	Status                 LoanStatus `db:"status"`
	RepaymentDeadline      time.Time  `db:"repayment_deadline"`
	LiquidationAttempted   bool       `db:"liquidation_attempted"`
	LiquidationBufferHours int        `db:"liquidation_buffer_hours"`
	LiquidationTimestamp   *time.Time `db:"liquidation_timestamp"`
	LiquidationTxHash      *string    `db:"liquidation_tx_hash"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}

// HasPool reports whether the loan draws principal from a lending pool.
// Crowdfunded and instant loans without a pool carry poolId "0" or empty.
func (l *Loan) HasPool() bool {
	return l.PoolID != "" && l.PoolID != "0"
}

type LoanEventType string

const (
	LoanEventCreatedInstant     LoanEventType = "created_instant"
	LoanEventCreatedCrowdfunded LoanEventType = "created_crowdfunded"
	LoanEventCollateralLocked   LoanEventType = "collateral_locked"
	LoanEventCollateralReleased LoanEventType = "collateral_released"
	LoanEventRepaidPartial      LoanEventType = "repaid_partial"
	LoanEventRepaidFull         LoanEventType = "repaid_full"
	LoanEventLiquidated         LoanEventType = "liquidated"
)

// LoanHistory is an append-only audit row mirroring one loan lifecycle
// event, keyed by (tx_hash, log_index). Never mutated after insert.
type LoanHistory struct {
	ID          uuid.UUID     `db:"id"`
	LoanID      string        `db:"loan_id"`
	EventType   LoanEventType `db:"event_type"`
	TxHash      string        `db:"tx_hash"`
	LogIndex    uint          `db:"log_index"`
	BlockNumber uint64        `db:"block_number"`
	Amount      string        `db:"amount"`
	BlockTime   *time.Time    `db:"block_time"`
	CreatedAt   time.Time     `db:"created_at"`
}

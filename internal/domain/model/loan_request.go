package model

import (
	"time"

	"github.com/google/uuid"
)

type LoanRequestStatus string

const (
	LoanRequestStatusActive    LoanRequestStatus = "active"
	LoanRequestStatusFunded    LoanRequestStatus = "funded"
	LoanRequestStatusExecuted  LoanRequestStatus = "executed"
	LoanRequestStatusCancelled LoanRequestStatus = "cancelled"
)

// LoanRequest is the crowdfunding campaign aggregate, keyed by request_id.
// TotalFunded and ContributorCount are derived from LoanFunding rows.
type LoanRequest struct {
	RequestID          string            `db:"request_id"`
	BorrowerAddress    string            `db:"borrower_address"`
	DomainTokenID      string            `db:"domain_token_id"`
	DomainName         string            `db:"domain_name"`
	RequestedAmount    string            `db:"requested_amount"`
	TotalFunded        string            `db:"total_funded"`
	ContributorCount   int               `db:"contributor_count"`
	InterestRate       int64             `db:"interest_rate"`
	DurationSeconds    int64             `db:"duration_seconds"`
	Status             LoanRequestStatus `db:"status"`
	ExecutedLoanID     *string           `db:"executed_loan_id"`
	CancellationReason string            `db:"cancellation_reason"`
	CreatedAt          time.Time         `db:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at"`
}

// LoanFunding is one append-only contribution to a loan request, keyed by
// (tx_hash, log_index).
type LoanFunding struct {
	ID                 uuid.UUID `db:"id"`
	RequestID          string    `db:"request_id"`
	ContributorAddress string    `db:"contributor_address"`
	Amount             string    `db:"amount"`
	TxHash             string    `db:"tx_hash"`
	LogIndex           uint      `db:"log_index"`
	BlockNumber        uint64    `db:"block_number"`
	CreatedAt          time.Time `db:"created_at"`
}

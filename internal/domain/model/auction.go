package model

import "time"

type AuctionStatus string

const (
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusEnded     AuctionStatus = "ended"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether no further transition is valid for the auction.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusEnded || s == AuctionStatusCancelled
}

// Auction is the mutable aggregate row for a Dutch auction of liquidated
// collateral, keyed by auction_id. Once Status is terminal, later events
// for the same auction are ignored.
type Auction struct {
	AuctionID            string        `db:"auction_id"`
	LoanID               string        `db:"loan_id"`
	DomainTokenID        string        `db:"domain_token_id"`
	DomainName           string        `db:"domain_name"`
	BorrowerAddress      string        `db:"borrower_address"`
	AiScore              int           `db:"ai_score"`
	StartingPrice        string        `db:"starting_price"`
	CurrentPrice         string        `db:"current_price"`
	ReservePrice         string        `db:"reserve_price"`
	FinalPrice           *string       `db:"final_price"`
	CurrentBidderAddress string        `db:"current_bidder_address"`
	WinnerAddress        string        `db:"winner_address"`
	Status               AuctionStatus `db:"status"`
	// RecoveryRate is finalPrice / originalLoanAmount, in [0, +inf).
	RecoveryRate   *float64   `db:"recovery_rate"`
	StartTimestamp *time.Time `db:"start_timestamp"`
	EndTimestamp   *time.Time `db:"end_timestamp"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

package event

import "time"

// LogKey identifies one chain log entry. (BlockNumber, LogIndex) gives the
// canonical application order; (TxHash, LogIndex) gives the stable
// idempotency key for rows derived from this log.
type LogKey struct {
	TxHash      string
	BlockNumber uint64
	LogIndex    uint
}

// Less reports whether k precedes other in canonical order.
func (k LogKey) Less(other LogKey) bool {
	if k.BlockNumber != other.BlockNumber {
		return k.BlockNumber < other.BlockNumber
	}
	return k.LogIndex < other.LogIndex
}

// Event is one decoded chain log. Each variant carries a concretely-typed
// payload; decoding happens once at the ingestion boundary.
type Event interface {
	Key() LogKey
	Name() string
}

// Base carries the fields common to every event variant.
type Base struct {
	LogKey
	BlockTime time.Time
}

func (b Base) Key() LogKey { return b.LogKey }

// Scoring events.

type ScoringRequested struct {
	Base
	DomainTokenID    string
	RequesterAddress string
	RequestedAt      time.Time
}

func (ScoringRequested) Name() string { return "ScoringRequested" }

type ScoreSubmitted struct {
	Base
	DomainTokenID string
	Score         int
	SubmittedBy   string
	SubmittedAt   time.Time
}

func (ScoreSubmitted) Name() string { return "ScoreSubmitted" }

type BatchScoringRequested struct {
	Base
	DomainTokenIDs   []string
	RequesterAddress string
}

func (BatchScoringRequested) Name() string { return "BatchScoringRequested" }

type BatchScoresSubmitted struct {
	Base
	DomainTokenIDs []string
	Scores         []int
	SubmittedBy    string
}

func (BatchScoresSubmitted) Name() string { return "BatchScoresSubmitted" }

type ScoreInvalidated struct {
	Base
	DomainTokenID string
	InvalidatedBy string
	Reason        string
}

func (ScoreInvalidated) Name() string { return "ScoreInvalidated" }

// Loan lifecycle events.

type LoanCreated struct {
	Base
	LoanID          string
	BorrowerAddress string
	DomainTokenID   string
	PrincipalAmount string
	InterestRate    int64
	DurationSeconds int64
	TotalOwed       string
	DueDate         time.Time
	PoolID          string
	RequestID       string
	AiScore         int
}

func (LoanCreated) Name() string { return "LoanCreated" }

type LoanRepaid struct {
	Base
	LoanID          string
	BorrowerAddress string
	RepaymentAmount string
	IsFullyRepaid   bool
}

func (LoanRepaid) Name() string { return "LoanRepaid" }

type CollateralLocked struct {
	Base
	LoanID          string
	DomainTokenID   string
	BorrowerAddress string
}

func (CollateralLocked) Name() string { return "CollateralLocked" }

type CollateralReleased struct {
	Base
	LoanID          string
	DomainTokenID   string
	BorrowerAddress string
}

func (CollateralReleased) Name() string { return "CollateralReleased" }

type CollateralLiquidated struct {
	Base
	LoanID            string
	DomainTokenID     string
	BorrowerAddress   string
	LiquidatorAddress string
}

func (CollateralLiquidated) Name() string { return "CollateralLiquidated" }

// Pool events.

type PoolCreated struct {
	Base
	PoolID           string
	CreatorAddress   string
	InitialLiquidity string
	MinAiScore       int
	InterestRate     int64
}

func (PoolCreated) Name() string { return "PoolCreated" }

type LiquidityAdded struct {
	Base
	PoolID          string
	ProviderAddress string
	Amount          string
}

func (LiquidityAdded) Name() string { return "LiquidityAdded" }

type LiquidityRemoved struct {
	Base
	PoolID          string
	ProviderAddress string
	Amount          string
}

func (LiquidityRemoved) Name() string { return "LiquidityRemoved" }

type PoolUpdated struct {
	Base
	PoolID       string
	MinAiScore   int
	InterestRate int64
	Status       string
}

func (PoolUpdated) Name() string { return "PoolUpdated" }

// Auction events.

type AuctionStarted struct {
	Base
	AuctionID      string
	LoanID         string
	DomainTokenID  string
	StartingPrice  string
	ReservePrice   string
	StartTimestamp time.Time
	EndTimestamp   time.Time
}

func (AuctionStarted) Name() string { return "AuctionStarted" }

type BidPlaced struct {
	Base
	AuctionID     string
	BidderAddress string
	BidAmount     string
	CurrentPrice  string
}

func (BidPlaced) Name() string { return "BidPlaced" }

type AuctionEnded struct {
	Base
	AuctionID     string
	WinnerAddress string
	FinalPrice    string
	LoanAmount    string
}

func (AuctionEnded) Name() string { return "AuctionEnded" }

type AuctionCancelled struct {
	Base
	AuctionID string
	Reason    string
}

func (AuctionCancelled) Name() string { return "AuctionCancelled" }

// Crowdfunding events.

type LoanRequestCreated struct {
	Base
	RequestID       string
	BorrowerAddress string
	DomainTokenID   string
	RequestedAmount string
	InterestRate    int64
	DurationSeconds int64
}

func (LoanRequestCreated) Name() string { return "LoanRequestCreated" }

type LoanRequestFunded struct {
	Base
	RequestID          string
	ContributorAddress string
	Amount             string
	TotalFunded        string
	IsFullyFunded      bool
}

func (LoanRequestFunded) Name() string { return "LoanRequestFunded" }

type LoanRequestCancelled struct {
	Base
	RequestID string
	Reason    string
}

func (LoanRequestCancelled) Name() string { return "LoanRequestCancelled" }

// Administrative events.

type SystemPaused struct {
	Base
	Actor  string
	Paused bool
}

func (SystemPaused) Name() string { return "SystemPaused" }

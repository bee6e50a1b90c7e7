package model

import (
	"time"

	"github.com/google/uuid"
)

type PoolStatus string

const (
	PoolStatusActive PoolStatus = "active"
	PoolStatusPaused PoolStatus = "paused"
	PoolStatusClosed PoolStatus = "closed"
)

// Pool is the mutable aggregate row for a lending pool, keyed by pool_id.
// Invariant: 0 <= AvailableLiquidity <= TotalLiquidity. A violation means a
// missed or duplicated event and is surfaced, never clamped.
type Pool struct {
	PoolID             string     `db:"pool_id"`
	CreatorAddress     string     `db:"creator_address"`
	TotalLiquidity     string     `db:"total_liquidity"`
	AvailableLiquidity string     `db:"available_liquidity"`
	MinAiScore         int        `db:"min_ai_score"`
	InterestRate       int64      `db:"interest_rate"`
	ParticipantCount   int        `db:"participant_count"`
	Status             PoolStatus `db:"status"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

type PoolEventType string

const (
	PoolEventCreated          PoolEventType = "created"
	PoolEventLiquidityAdded   PoolEventType = "liquidity_added"
	PoolEventLiquidityRemoved PoolEventType = "liquidity_removed"
	PoolEventLoanDrawn        PoolEventType = "loan_drawn"
	PoolEventRepayment        PoolEventType = "repayment"
	PoolEventAuctionProceeds  PoolEventType = "auction_proceeds"
	PoolEventAuctionRestored  PoolEventType = "auction_restored"
	PoolEventUpdated          PoolEventType = "updated"
)

// PoolHistory is the append-only ledger of liquidity-affecting events,
// keyed by (tx_hash, log_index).
type PoolHistory struct {
	ID           uuid.UUID     `db:"id"`
	PoolID       string        `db:"pool_id"`
	EventType    PoolEventType `db:"event_type"`
	TxHash       string        `db:"tx_hash"`
	LogIndex     uint          `db:"log_index"`
	BlockNumber  uint64        `db:"block_number"`
	Amount       string        `db:"amount"`
	ActorAddress string        `db:"actor_address"`
	CreatedAt    time.Time     `db:"created_at"`
}

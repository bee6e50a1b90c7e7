package model

import (
	"strconv"
	"time"
)

type ScoringStatus string

const (
	ScoringStatusPending             ScoringStatus = "pending"
	ScoringStatusBackendCalled       ScoringStatus = "backend_called"
	ScoringStatusAwaitingAVSOperator ScoringStatus = "awaiting_avs_operator"
	ScoringStatusBatchRequested      ScoringStatus = "batch_requested"
	ScoringStatusCompleted           ScoringStatus = "completed"
	ScoringStatusFailed              ScoringStatus = "failed"
	ScoringStatusInvalidated         ScoringStatus = "invalidated"
)

// scoringStatusRank orders statuses so that lifecycle updates advance
// monotonically. Invalidation is the only permitted regression and is
// handled explicitly, not through rank.
var scoringStatusRank = map[ScoringStatus]int{
	ScoringStatusPending:             0,
	ScoringStatusBatchRequested:      1,
	ScoringStatusBackendCalled:       2,
	ScoringStatusAwaitingAVSOperator: 3,
	ScoringStatusCompleted:           4,
	ScoringStatusFailed:              4,
	ScoringStatusInvalidated:         5,
}

// CanAdvanceTo reports whether a status update from s to next is a legal
// forward transition.
func (s ScoringStatus) CanAdvanceTo(next ScoringStatus) bool {
	if next == ScoringStatusInvalidated {
		return true
	}
	return scoringStatusRank[next] >= scoringStatusRank[s]
}

// ScoringEvent tracks one scoring request from chain event to backend score
// to on-chain submission. Keyed by (tx_hash, log_index) of the request
// event, so replayed request events insert as no-ops.
type ScoringEvent struct {
	ID               string        `db:"id"` // "<tx_hash>-<log_index>"
	TxHash           string        `db:"tx_hash"`
	LogIndex         uint          `db:"log_index"`
	BlockNumber      uint64        `db:"block_number"`
	DomainTokenID    string        `db:"domain_token_id"`
	DomainName       string        `db:"domain_name"`
	RequesterAddress string        `db:"requester_address"`
	Status           ScoringStatus `db:"status"`
	AiScore          *int          `db:"ai_score"`
	Confidence       *int          `db:"confidence"`
	Reasoning        string        `db:"reasoning"`
	SubmissionTxHash *string       `db:"submission_tx_hash"`
	ErrorMessage     string        `db:"error_message"`
	RetryCount       int           `db:"retry_count"`
	BatchID          *string       `db:"batch_id"`
	RequestedAt      time.Time     `db:"requested_at"`
	CompletedAt      *time.Time    `db:"completed_at"`
	CreatedAt        time.Time     `db:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at"`
}

// ScoringEventID builds the stable idempotent primary key for a scoring
// request row.
func ScoringEventID(txHash string, logIndex uint) string {
	return txHash + "-" + strconv.FormatUint(uint64(logIndex), 10)
}

// BatchScoringEventID keys the per-token rows spawned by one batch request
// event, which share a single (tx_hash, log_index).
func BatchScoringEventID(txHash string, logIndex uint, tokenID string) string {
	return ScoringEventID(txHash, logIndex) + "-" + tokenID
}

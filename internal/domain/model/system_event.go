package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type SystemEventType string

const (
	SystemEventPaused             SystemEventType = "paused"
	SystemEventUnpaused           SystemEventType = "unpaused"
	SystemEventConfigChanged      SystemEventType = "config_changed"
	SystemEventInvariantViolation SystemEventType = "invariant_violation"
	SystemEventLiquidationSweep   SystemEventType = "liquidation_sweep"
	SystemEventLedgerMismatch     SystemEventType = "ledger_mismatch"
)

// SystemEvent is an append-only administrative/audit record.
type SystemEvent struct {
	ID        uuid.UUID       `db:"id"`
	EventType SystemEventType `db:"event_type"`
	TxHash    string          `db:"tx_hash"`
	Actor     string          `db:"actor"`
	Details   json.RawMessage `db:"details"`
	CreatedAt time.Time       `db:"created_at"`
}

type BatchOperationStatus string

const (
	BatchOperationPending   BatchOperationStatus = "pending"
	BatchOperationSubmitted BatchOperationStatus = "submitted"
	BatchOperationCompleted BatchOperationStatus = "completed"
	BatchOperationFailed    BatchOperationStatus = "failed"
)

// BatchOperation tracks one batch-scoring run: how many token ids were
// requested and how many have received scores so far.
type BatchOperation struct {
	BatchID          string               `db:"batch_id"` // "<tx_hash>-<log_index>"
	RequesterAddress string               `db:"requester_address"`
	TokenCount       int                  `db:"token_count"`
	ScoredCount      int                  `db:"scored_count"`
	Status           BatchOperationStatus `db:"status"`
	CreatedAt        time.Time            `db:"created_at"`
	UpdatedAt        time.Time            `db:"updated_at"`
}

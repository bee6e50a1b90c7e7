package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

type SystemEventRepo struct {
	db *DB
}

func NewSystemEventRepo(db *DB) *SystemEventRepo {
	return &SystemEventRepo{db: db}
}

const insertSystemEvent = `
	INSERT INTO system_events (event_type, tx_hash, actor, details)
	VALUES ($1, $2, $3, $4)`

func (r *SystemEventRepo) AppendTx(ctx context.Context, tx *sql.Tx, ev *model.SystemEvent) error {
	if _, err := tx.ExecContext(ctx, insertSystemEvent, ev.EventType, ev.TxHash, ev.Actor, ev.Details); err != nil {
		return fmt.Errorf("append system event: %w", err)
	}
	return nil
}

// Append writes outside any event transaction. The liquidation monitor and
// admin endpoints use this path.
func (r *SystemEventRepo) Append(ctx context.Context, ev *model.SystemEvent) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	if _, err := r.db.ExecContext(ctx, insertSystemEvent, ev.EventType, ev.TxHash, ev.Actor, ev.Details); err != nil {
		return fmt.Errorf("append system event: %w", err)
	}
	return nil
}

type BatchOperationRepo struct {
	db *DB
}

func NewBatchOperationRepo(db *DB) *BatchOperationRepo {
	return &BatchOperationRepo{db: db}
}

func (r *BatchOperationRepo) InsertTx(ctx context.Context, tx *sql.Tx, op *model.BatchOperation) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO batch_operations (batch_id, requester_address, token_count, scored_count, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (batch_id) DO NOTHING
	`, op.BatchID, op.RequesterAddress, op.TokenCount, op.ScoredCount, op.Status)
	if err != nil {
		return false, fmt.Errorf("insert batch operation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert batch operation rows: %w", err)
	}
	return n == 1, nil
}

func (r *BatchOperationRepo) GetTx(ctx context.Context, tx *sql.Tx, batchID string) (*model.BatchOperation, error) {
	var op model.BatchOperation
	err := tx.QueryRowContext(ctx, `
		SELECT batch_id, requester_address, token_count, scored_count, status, created_at, updated_at
		FROM batch_operations WHERE batch_id = $1 FOR UPDATE
	`, batchID).Scan(&op.BatchID, &op.RequesterAddress, &op.TokenCount, &op.ScoredCount,
		&op.Status, &op.CreatedAt, &op.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get batch operation: %w", err)
	}
	return &op, nil
}

func (r *BatchOperationRepo) AddScoredTx(ctx context.Context, tx *sql.Tx, batchID string, n int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE batch_operations SET
			scored_count = scored_count + $2,
			status = CASE WHEN scored_count + $2 >= token_count THEN 'completed' ELSE status END,
			updated_at = now()
		WHERE batch_id = $1
	`, batchID, n)
	if err != nil {
		return fmt.Errorf("add batch scored count: %w", err)
	}
	return nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

// LoanHistoryRepo and PoolHistoryRepo are append-only; ON CONFLICT DO
// NOTHING on the (tx_hash, log_index) key makes replayed events no-ops.

type LoanHistoryRepo struct {
	db *DB
}

func NewLoanHistoryRepo(db *DB) *LoanHistoryRepo {
	return &LoanHistoryRepo{db: db}
}

func (r *LoanHistoryRepo) AppendTx(ctx context.Context, tx *sql.Tx, h *model.LoanHistory) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO loan_history (loan_id, event_type, tx_hash, log_index, block_number, amount, block_time)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`, h.LoanID, h.EventType, h.TxHash, h.LogIndex, h.BlockNumber, h.Amount, h.BlockTime)
	if err != nil {
		return false, fmt.Errorf("append loan history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append loan history rows: %w", err)
	}
	return n == 1, nil
}

func (r *LoanHistoryRepo) ListByLoan(ctx context.Context, loanID string) ([]model.LoanHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, loan_id, event_type, tx_hash, log_index, block_number, amount::text, block_time, created_at
		FROM loan_history
		WHERE loan_id = $1
		ORDER BY block_number, log_index
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("query loan history: %w", err)
	}
	defer rows.Close()

	var history []model.LoanHistory
	for rows.Next() {
		var h model.LoanHistory
		if err := rows.Scan(&h.ID, &h.LoanID, &h.EventType, &h.TxHash, &h.LogIndex,
			&h.BlockNumber, &h.Amount, &h.BlockTime, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan loan history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

type PoolHistoryRepo struct {
	db *DB
}

func NewPoolHistoryRepo(db *DB) *PoolHistoryRepo {
	return &PoolHistoryRepo{db: db}
}

func (r *PoolHistoryRepo) AppendTx(ctx context.Context, tx *sql.Tx, h *model.PoolHistory) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO pool_history (pool_id, event_type, tx_hash, log_index, block_number, amount, actor_address)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`, h.PoolID, h.EventType, h.TxHash, h.LogIndex, h.BlockNumber, h.Amount, h.ActorAddress)
	if err != nil {
		return false, fmt.Errorf("append pool history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append pool history rows: %w", err)
	}
	return n == 1, nil
}

func (r *PoolHistoryRepo) ListByPool(ctx context.Context, poolID string) ([]model.PoolHistory, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, pool_id, event_type, tx_hash, log_index, block_number, amount::text, actor_address, created_at
		FROM pool_history
		WHERE pool_id = $1
		ORDER BY block_number, log_index
	`, poolID)
	if err != nil {
		return nil, fmt.Errorf("query pool history: %w", err)
	}
	defer rows.Close()

	var history []model.PoolHistory
	for rows.Next() {
		var h model.PoolHistory
		if err := rows.Scan(&h.ID, &h.PoolID, &h.EventType, &h.TxHash, &h.LogIndex,
			&h.BlockNumber, &h.Amount, &h.ActorAddress, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pool history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

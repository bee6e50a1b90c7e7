package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

type ScoringEventRepo struct {
	db *DB
}

func NewScoringEventRepo(db *DB) *ScoringEventRepo {
	return &ScoringEventRepo{db: db}
}

const scoringColumns = `
	id, tx_hash, log_index, block_number, domain_token_id, domain_name,
	requester_address, status, ai_score, confidence, reasoning, submission_tx_hash,
	error_message, retry_count, batch_id, requested_at, completed_at, created_at, updated_at`

func scanScoringEvent(row interface{ Scan(...any) error }) (*model.ScoringEvent, error) {
	var ev model.ScoringEvent
	err := row.Scan(
		&ev.ID, &ev.TxHash, &ev.LogIndex, &ev.BlockNumber, &ev.DomainTokenID, &ev.DomainName,
		&ev.RequesterAddress, &ev.Status, &ev.AiScore, &ev.Confidence, &ev.Reasoning, &ev.SubmissionTxHash,
		&ev.ErrorMessage, &ev.RetryCount, &ev.BatchID, &ev.RequestedAt, &ev.CompletedAt, &ev.CreatedAt, &ev.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// InsertTx inserts a new scoring row; a duplicate id (replayed request
// event) is a no-op and reports inserted=false.
func (r *ScoringEventRepo) InsertTx(ctx context.Context, tx *sql.Tx, ev *model.ScoringEvent) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO scoring_events (
			id, tx_hash, log_index, block_number, domain_token_id, domain_name,
			requester_address, status, ai_score, confidence, reasoning, submission_tx_hash,
			error_message, retry_count, batch_id, requested_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.TxHash, ev.LogIndex, ev.BlockNumber, ev.DomainTokenID, ev.DomainName,
		ev.RequesterAddress, ev.Status, ev.AiScore, ev.Confidence, ev.Reasoning, ev.SubmissionTxHash,
		ev.ErrorMessage, ev.RetryCount, ev.BatchID, ev.RequestedAt, ev.CompletedAt)
	if err != nil {
		return false, fmt.Errorf("insert scoring event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert scoring event rows: %w", err)
	}
	return n == 1, nil
}

func (r *ScoringEventRepo) UpdateTx(ctx context.Context, tx *sql.Tx, ev *model.ScoringEvent) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE scoring_events SET
			domain_name = $2, status = $3, ai_score = $4, confidence = $5, reasoning = $6,
			submission_tx_hash = $7, error_message = $8, retry_count = $9,
			completed_at = $10, updated_at = now()
		WHERE id = $1
	`, ev.ID, ev.DomainName, ev.Status, ev.AiScore, ev.Confidence, ev.Reasoning,
		ev.SubmissionTxHash, ev.ErrorMessage, ev.RetryCount, ev.CompletedAt)
	if err != nil {
		return fmt.Errorf("update scoring event: %w", err)
	}
	return nil
}

func (r *ScoringEventRepo) GetTx(ctx context.Context, tx *sql.Tx, id string) (*model.ScoringEvent, error) {
	ev, err := scanScoringEvent(tx.QueryRowContext(ctx,
		`SELECT `+scoringColumns+` FROM scoring_events WHERE id = $1 FOR UPDATE`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scoring event: %w", err)
	}
	return ev, nil
}

func (r *ScoringEventRepo) Get(ctx context.Context, id string) (*model.ScoringEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	ev, err := scanScoringEvent(r.db.QueryRowContext(ctx,
		`SELECT `+scoringColumns+` FROM scoring_events WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scoring event: %w", err)
	}
	return ev, nil
}

func (r *ScoringEventRepo) LatestByTokenTx(ctx context.Context, tx *sql.Tx, domainTokenID string) (*model.ScoringEvent, error) {
	ev, err := scanScoringEvent(tx.QueryRowContext(ctx, `
		SELECT `+scoringColumns+` FROM scoring_events
		WHERE domain_token_id = $1 AND status NOT IN ($2, $3)
		ORDER BY block_number DESC, log_index DESC
		LIMIT 1
		FOR UPDATE
	`, domainTokenID, model.ScoringStatusInvalidated, model.ScoringStatusFailed))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest scoring event by token: %w", err)
	}
	return ev, nil
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

type LoanRequestRepo struct {
	db *DB
}

func NewLoanRequestRepo(db *DB) *LoanRequestRepo {
	return &LoanRequestRepo{db: db}
}

const loanRequestColumns = `
	request_id, borrower_address, domain_token_id, domain_name,
	requested_amount::text, total_funded::text, contributor_count,
	interest_rate, duration_seconds, status, executed_loan_id,
	cancellation_reason, created_at, updated_at`

func scanLoanRequest(row interface{ Scan(...any) error }) (*model.LoanRequest, error) {
	var req model.LoanRequest
	err := row.Scan(
		&req.RequestID, &req.BorrowerAddress, &req.DomainTokenID, &req.DomainName,
		&req.RequestedAmount, &req.TotalFunded, &req.ContributorCount,
		&req.InterestRate, &req.DurationSeconds, &req.Status, &req.ExecutedLoanID,
		&req.CancellationReason, &req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *LoanRequestRepo) GetTx(ctx context.Context, tx *sql.Tx, requestID string) (*model.LoanRequest, error) {
	req, err := scanLoanRequest(tx.QueryRowContext(ctx,
		`SELECT `+loanRequestColumns+` FROM loan_requests WHERE request_id = $1 FOR UPDATE`, requestID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get loan request: %w", err)
	}
	return req, nil
}

func (r *LoanRequestRepo) Get(ctx context.Context, requestID string) (*model.LoanRequest, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	req, err := scanLoanRequest(r.db.QueryRowContext(ctx,
		`SELECT `+loanRequestColumns+` FROM loan_requests WHERE request_id = $1`, requestID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get loan request: %w", err)
	}
	return req, nil
}

func (r *LoanRequestRepo) UpsertTx(ctx context.Context, tx *sql.Tx, req *model.LoanRequest) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loan_requests (
			request_id, borrower_address, domain_token_id, domain_name,
			requested_amount, total_funded, contributor_count,
			interest_rate, duration_seconds, status, executed_loan_id, cancellation_reason
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (request_id) DO UPDATE SET
			total_funded = EXCLUDED.total_funded,
			contributor_count = EXCLUDED.contributor_count,
			status = EXCLUDED.status,
			executed_loan_id = EXCLUDED.executed_loan_id,
			cancellation_reason = EXCLUDED.cancellation_reason,
			updated_at = now()
	`, req.RequestID, req.BorrowerAddress, req.DomainTokenID, req.DomainName,
		req.RequestedAmount, req.TotalFunded, req.ContributorCount,
		req.InterestRate, req.DurationSeconds, req.Status, req.ExecutedLoanID, req.CancellationReason)
	if err != nil {
		return fmt.Errorf("upsert loan request: %w", err)
	}
	return nil
}

type LoanFundingRepo struct {
	db *DB
}

func NewLoanFundingRepo(db *DB) *LoanFundingRepo {
	return &LoanFundingRepo{db: db}
}

func (r *LoanFundingRepo) AppendTx(ctx context.Context, tx *sql.Tx, f *model.LoanFunding) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO loan_fundings (request_id, contributor_address, amount, tx_hash, log_index, block_number)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		ON CONFLICT (tx_hash, log_index) DO NOTHING
	`, f.RequestID, f.ContributorAddress, f.Amount, f.TxHash, f.LogIndex, f.BlockNumber)
	if err != nil {
		return false, fmt.Errorf("append loan funding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("append loan funding rows: %w", err)
	}
	return n == 1, nil
}

func (r *LoanFundingRepo) ListByRequest(ctx context.Context, requestID string) ([]model.LoanFunding, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, contributor_address, amount::text, tx_hash, log_index, block_number, created_at
		FROM loan_fundings
		WHERE request_id = $1
		ORDER BY block_number, log_index
	`, requestID)
	if err != nil {
		return nil, fmt.Errorf("query loan fundings: %w", err)
	}
	defer rows.Close()

	var fundings []model.LoanFunding
	for rows.Next() {
		var f model.LoanFunding
		if err := rows.Scan(&f.ID, &f.RequestID, &f.ContributorAddress, &f.Amount,
			&f.TxHash, &f.LogIndex, &f.BlockNumber, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan loan funding: %w", err)
		}
		fundings = append(fundings, f)
	}
	return fundings, rows.Err()
}

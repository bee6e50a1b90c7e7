package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

type LoanRepo struct {
	db *DB
}

func NewLoanRepo(db *DB) *LoanRepo {
	return &LoanRepo{db: db}
}

const loanColumns = `
	loan_id, borrower_address, domain_token_id, domain_name,
	original_amount::text, current_balance::text, total_repaid::text, total_owed::text,
	interest_rate, pool_id, request_id, ai_score, status, repayment_deadline,
	liquidation_attempted, liquidation_buffer_hours, liquidation_timestamp,
	liquidation_tx_hash, created_at, updated_at`

func scanLoan(row interface{ Scan(...any) error }) (*model.Loan, error) {
	var l model.Loan
	err := row.Scan(
		&l.LoanID, &l.BorrowerAddress, &l.DomainTokenID, &l.DomainName,
		&l.OriginalAmount, &l.CurrentBalance, &l.TotalRepaid, &l.TotalOwed,
		&l.InterestRate, &l.PoolID, &l.RequestID, &l.AiScore, &l.Status, &l.RepaymentDeadline,
		&l.LiquidationAttempted, &l.LiquidationBufferHours, &l.LiquidationTimestamp,
		&l.LiquidationTxHash, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetTx reads the loan aggregate FOR UPDATE, giving the dispatcher its
// read-before-write snapshot for derived field computation.
func (r *LoanRepo) GetTx(ctx context.Context, tx *sql.Tx, loanID string) (*model.Loan, error) {
	l, err := scanLoan(tx.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE loan_id = $1 FOR UPDATE`, loanID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

func (r *LoanRepo) Get(ctx context.Context, loanID string) (*model.Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	l, err := scanLoan(r.db.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE loan_id = $1`, loanID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

func (r *LoanRepo) UpsertTx(ctx context.Context, tx *sql.Tx, l *model.Loan) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO loans (
			loan_id, borrower_address, domain_token_id, domain_name,
			original_amount, current_balance, total_repaid, total_owed,
			interest_rate, pool_id, request_id, ai_score, status, repayment_deadline,
			liquidation_attempted, liquidation_buffer_hours, liquidation_timestamp, liquidation_tx_hash
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric,
			$9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (loan_id) DO UPDATE SET
			domain_name = EXCLUDED.domain_name,
			current_balance = EXCLUDED.current_balance,
			total_repaid = EXCLUDED.total_repaid,
			status = EXCLUDED.status,
			liquidation_attempted = EXCLUDED.liquidation_attempted,
			liquidation_timestamp = EXCLUDED.liquidation_timestamp,
			liquidation_tx_hash = EXCLUDED.liquidation_tx_hash,
			updated_at = now()
	`, l.LoanID, l.BorrowerAddress, l.DomainTokenID, l.DomainName,
		l.OriginalAmount, l.CurrentBalance, l.TotalRepaid, l.TotalOwed,
		l.InterestRate, l.PoolID, l.RequestID, l.AiScore, l.Status, l.RepaymentDeadline,
		l.LiquidationAttempted, l.LiquidationBufferHours, l.LiquidationTimestamp, l.LiquidationTxHash)
	if err != nil {
		return fmt.Errorf("upsert loan: %w", err)
	}
	return nil
}

func (r *LoanRepo) ListActiveUnattempted(ctx context.Context) ([]model.Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+loanColumns+` FROM loans
		 WHERE status = $1 AND liquidation_attempted = false
		 ORDER BY repayment_deadline`, model.LoanStatusActive)
	if err != nil {
		return nil, fmt.Errorf("query liquidatable loans: %w", err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

func (r *LoanRepo) ListAll(ctx context.Context) ([]model.Loan, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+loanColumns+` FROM loans ORDER BY loan_id`)
	if err != nil {
		return nil, fmt.Errorf("query loans: %w", err)
	}
	defer rows.Close()
	return collectLoans(rows)
}

func collectLoans(rows *sql.Rows) ([]model.Loan, error) {
	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan loan: %w", err)
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

// AcquireLiquidationLatch is the exactly-once guard: the WHERE clause makes
// the update a compare-and-set, so only one sweep can win the latch.
func (r *LoanRepo) AcquireLiquidationLatch(ctx context.Context, loanID string, attemptedAt time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `
		UPDATE loans
		SET liquidation_attempted = true, liquidation_timestamp = $2, updated_at = now()
		WHERE loan_id = $1 AND liquidation_attempted = false AND status = $3
	`, loanID, attemptedAt, model.LoanStatusActive)
	if err != nil {
		return false, fmt.Errorf("acquire liquidation latch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire liquidation latch rows: %w", err)
	}
	return n == 1, nil
}

// ReleaseLiquidationLatch reverts the latch after an executor failure so
// the next sweep retries the loan.
func (r *LoanRepo) ReleaseLiquidationLatch(ctx context.Context, loanID string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `
		UPDATE loans
		SET liquidation_attempted = false, liquidation_timestamp = NULL, updated_at = now()
		WHERE loan_id = $1 AND liquidation_tx_hash IS NULL
	`, loanID)
	if err != nil {
		return fmt.Errorf("release liquidation latch: %w", err)
	}
	return nil
}

func (r *LoanRepo) RecordLiquidationOutcome(ctx context.Context, loanID string, txHash string) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `
		UPDATE loans
		SET liquidation_tx_hash = $2, updated_at = now()
		WHERE loan_id = $1
	`, loanID, txHash)
	if err != nil {
		return fmt.Errorf("record liquidation outcome: %w", err)
	}
	return nil
}

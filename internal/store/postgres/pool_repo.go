package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

type PoolRepo struct {
	db *DB
}

func NewPoolRepo(db *DB) *PoolRepo {
	return &PoolRepo{db: db}
}

const poolColumns = `
	pool_id, creator_address, total_liquidity::text, available_liquidity::text,
	min_ai_score, interest_rate, participant_count, status, created_at, updated_at`

func scanPool(row interface{ Scan(...any) error }) (*model.Pool, error) {
	var p model.Pool
	err := row.Scan(
		&p.PoolID, &p.CreatorAddress, &p.TotalLiquidity, &p.AvailableLiquidity,
		&p.MinAiScore, &p.InterestRate, &p.ParticipantCount, &p.Status,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PoolRepo) GetTx(ctx context.Context, tx *sql.Tx, poolID string) (*model.Pool, error) {
	p, err := scanPool(tx.QueryRowContext(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE pool_id = $1 FOR UPDATE`, poolID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

func (r *PoolRepo) Get(ctx context.Context, poolID string) (*model.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	p, err := scanPool(r.db.QueryRowContext(ctx,
		`SELECT `+poolColumns+` FROM pools WHERE pool_id = $1`, poolID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pool: %w", err)
	}
	return p, nil
}

func (r *PoolRepo) ListAll(ctx context.Context) ([]model.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT `+poolColumns+` FROM pools ORDER BY pool_id`)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var pools []model.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pool: %w", err)
		}
		pools = append(pools, *p)
	}
	return pools, rows.Err()
}

func (r *PoolRepo) UpsertTx(ctx context.Context, tx *sql.Tx, p *model.Pool) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pools (
			pool_id, creator_address, total_liquidity, available_liquidity,
			min_ai_score, interest_rate, participant_count, status
		) VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7, $8)
		ON CONFLICT (pool_id) DO UPDATE SET
			total_liquidity = EXCLUDED.total_liquidity,
			available_liquidity = EXCLUDED.available_liquidity,
			min_ai_score = EXCLUDED.min_ai_score,
			interest_rate = EXCLUDED.interest_rate,
			participant_count = EXCLUDED.participant_count,
			status = EXCLUDED.status,
			updated_at = now()
	`, p.PoolID, p.CreatorAddress, p.TotalLiquidity, p.AvailableLiquidity,
		p.MinAiScore, p.InterestRate, p.ParticipantCount, p.Status)
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

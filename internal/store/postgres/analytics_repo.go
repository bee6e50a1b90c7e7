package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
)

type DomainAnalyticsRepo struct {
	db *DB
}

func NewDomainAnalyticsRepo(db *DB) *DomainAnalyticsRepo {
	return &DomainAnalyticsRepo{db: db}
}

// ApplyTx folds one delta into the per-domain row. Counters are additive
// and has_been_liquidated is sticky; latest_ai_score and domain_name only
// move when the delta carries a value.
func (r *DomainAnalyticsRepo) ApplyTx(ctx context.Context, tx *sql.Tx, delta model.AnalyticsDelta) error {
	volume := delta.LoanVolume
	if volume == "" {
		volume = "0"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO domain_analytics (
			domain_token_id, domain_name, scoring_requests, total_loans,
			active_loans, total_loan_volume, has_been_liquidated,
			latest_ai_score, last_activity_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)
		ON CONFLICT (domain_token_id) DO UPDATE SET
			domain_name = CASE WHEN EXCLUDED.domain_name <> '' THEN EXCLUDED.domain_name ELSE domain_analytics.domain_name END,
			scoring_requests = domain_analytics.scoring_requests + EXCLUDED.scoring_requests,
			total_loans = domain_analytics.total_loans + EXCLUDED.total_loans,
			active_loans = domain_analytics.active_loans + EXCLUDED.active_loans,
			total_loan_volume = domain_analytics.total_loan_volume + EXCLUDED.total_loan_volume,
			has_been_liquidated = domain_analytics.has_been_liquidated OR EXCLUDED.has_been_liquidated,
			latest_ai_score = COALESCE(EXCLUDED.latest_ai_score, domain_analytics.latest_ai_score),
			last_activity_at = GREATEST(domain_analytics.last_activity_at, EXCLUDED.last_activity_at),
			updated_at = now()
	`, delta.DomainTokenID, delta.DomainName, delta.ScoringRequests, delta.TotalLoans,
		delta.ActiveLoans, volume, delta.Liquidated, delta.AiScore, delta.ActivityAt)
	if err != nil {
		return fmt.Errorf("apply analytics delta: %w", err)
	}
	return nil
}

func (r *DomainAnalyticsRepo) Get(ctx context.Context, domainTokenID string) (*model.DomainAnalytics, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()
	var a model.DomainAnalytics
	err := r.db.QueryRowContext(ctx, `
		SELECT domain_token_id, domain_name, scoring_requests, total_loans,
			active_loans, total_loan_volume::text, has_been_liquidated,
			latest_ai_score, last_activity_at, created_at, updated_at
		FROM domain_analytics WHERE domain_token_id = $1
	`, domainTokenID).Scan(
		&a.DomainTokenID, &a.DomainName, &a.ScoringRequests, &a.TotalLoans,
		&a.ActiveLoans, &a.TotalLoanVolume, &a.HasBeenLiquidated,
		&a.LatestAiScore, &a.LastActivityAt, &a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get domain analytics: %w", err)
	}
	return &a, nil
}

// RebuildTx recomputes every row from the loan and scoring tables. Used by
// the admin rebuild endpoint after a manual backfill.
func (r *DomainAnalyticsRepo) RebuildTx(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM domain_analytics`); err != nil {
		return fmt.Errorf("clear domain analytics: %w", err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO domain_analytics (
			domain_token_id, domain_name, scoring_requests, total_loans,
			active_loans, total_loan_volume, has_been_liquidated,
			latest_ai_score, last_activity_at
		)
		SELECT
			d.domain_token_id,
			COALESCE(l.domain_name, s.domain_name, ''),
			COALESCE(s.scoring_requests, 0),
			COALESCE(l.total_loans, 0),
			COALESCE(l.active_loans, 0),
			COALESCE(l.total_loan_volume, 0),
			COALESCE(l.has_been_liquidated, false),
			s.latest_ai_score,
			GREATEST(l.last_activity_at, s.last_activity_at)
		FROM (
			SELECT domain_token_id FROM loans
			UNION
			SELECT domain_token_id FROM scoring_events
		) d
		LEFT JOIN (
			SELECT domain_token_id,
				max(domain_name) AS domain_name,
				count(*) AS total_loans,
				count(*) FILTER (WHERE status = 'active') AS active_loans,
				sum(original_amount) AS total_loan_volume,
				bool_or(status = 'liquidated') AS has_been_liquidated,
				max(updated_at) AS last_activity_at
			FROM loans GROUP BY domain_token_id
		) l ON l.domain_token_id = d.domain_token_id
		LEFT JOIN (
			SELECT domain_token_id,
				max(domain_name) AS domain_name,
				count(*) AS scoring_requests,
				(array_agg(ai_score ORDER BY block_number DESC, log_index DESC)
					FILTER (WHERE ai_score IS NOT NULL))[1] AS latest_ai_score,
				max(updated_at) AS last_activity_at
			FROM scoring_events
			WHERE status NOT IN ('invalidated', 'failed')
			GROUP BY domain_token_id
		) s ON s.domain_token_id = d.domain_token_id
	`)
	if err != nil {
		return fmt.Errorf("rebuild domain analytics: %w", err)
	}
	return nil
}

package model

import "time"

// DomainAnalytics holds derived per-domain counters, keyed by
// domain_token_id. Rebuildable from history tables; not a source of truth.
type DomainAnalytics struct {
	DomainTokenID     string     `db:"domain_token_id"`
	DomainName        string     `db:"domain_name"`
	ScoringRequests   int64      `db:"scoring_requests"`
	TotalLoans        int64      `db:"total_loans"`
	ActiveLoans       int64      `db:"active_loans"`
	TotalLoanVolume   string     `db:"total_loan_volume"`
	HasBeenLiquidated bool       `db:"has_been_liquidated"`
	LatestAiScore     *int       `db:"latest_ai_score"`
	LastActivityAt    *time.Time `db:"last_activity_at"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// AnalyticsDelta describes one counter adjustment produced by an applied
// event. Deltas are additive so replaying an event through the aggregate
// upsert path must be guarded by the caller's idempotency key.
type AnalyticsDelta struct {
	DomainTokenID   string
	DomainName      string
	ScoringRequests int64
	TotalLoans      int64
	ActiveLoans     int64
	LoanVolume      string
	Liquidated      bool
	AiScore         *int
	ActivityAt      time.Time
}

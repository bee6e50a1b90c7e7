package memory

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
)

// DomainAnalyticsStore is an in-memory store.DomainAnalyticsRepository.
// When loan and scoring stores are supplied, RebuildTx recomputes every
// row from them the way the SQL rebuild does.
type DomainAnalyticsStore struct {
	mu      sync.RWMutex
	data    map[string]*model.DomainAnalytics // keyed by domain_token_id
	loans   *LoanStore
	scoring *ScoringEventStore
}

func NewDomainAnalyticsStore(loans *LoanStore, scoring *ScoringEventStore) *DomainAnalyticsStore {
	return &DomainAnalyticsStore{
		data:    make(map[string]*model.DomainAnalytics),
		loans:   loans,
		scoring: scoring,
	}
}

func (s *DomainAnalyticsStore) ApplyTx(_ context.Context, _ *sql.Tx, delta model.AnalyticsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, exists := s.data[delta.DomainTokenID]
	if !exists {
		a = &model.DomainAnalytics{
			DomainTokenID:   delta.DomainTokenID,
			TotalLoanVolume: "0",
			CreatedAt:       time.Now().UTC(),
		}
		s.data[delta.DomainTokenID] = a
	}
	if delta.DomainName != "" {
		a.DomainName = delta.DomainName
	}
	a.ScoringRequests += delta.ScoringRequests
	a.TotalLoans += delta.TotalLoans
	a.ActiveLoans += delta.ActiveLoans
	if delta.LoanVolume != "" {
		sum, err := model.AddAmounts(a.TotalLoanVolume, delta.LoanVolume)
		if err != nil {
			return err
		}
		a.TotalLoanVolume = sum
	}
	a.HasBeenLiquidated = a.HasBeenLiquidated || delta.Liquidated
	if delta.AiScore != nil {
		score := *delta.AiScore
		a.LatestAiScore = &score
	}
	if a.LastActivityAt == nil || delta.ActivityAt.After(*a.LastActivityAt) {
		at := delta.ActivityAt
		a.LastActivityAt = &at
	}
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *DomainAnalyticsStore) Get(_ context.Context, domainTokenID string) (*model.DomainAnalytics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, exists := s.data[domainTokenID]
	if !exists {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (s *DomainAnalyticsStore) RebuildTx(ctx context.Context, _ *sql.Tx) error {
	var loans []model.Loan
	if s.loans != nil {
		var err error
		loans, err = s.loans.ListAll(ctx)
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]*model.DomainAnalytics)

	row := func(tokenID string) *model.DomainAnalytics {
		a, ok := s.data[tokenID]
		if !ok {
			a = &model.DomainAnalytics{
				DomainTokenID:   tokenID,
				TotalLoanVolume: "0",
				CreatedAt:       time.Now().UTC(),
				UpdatedAt:       time.Now().UTC(),
			}
			s.data[tokenID] = a
		}
		return a
	}

	for _, loan := range loans {
		a := row(loan.DomainTokenID)
		if loan.DomainName != "" {
			a.DomainName = loan.DomainName
		}
		a.TotalLoans++
		if loan.Status == model.LoanStatusActive {
			a.ActiveLoans++
		}
		if loan.Status == model.LoanStatusLiquidated {
			a.HasBeenLiquidated = true
		}
		sum, err := model.AddAmounts(a.TotalLoanVolume, loan.OriginalAmount)
		if err != nil {
			return err
		}
		a.TotalLoanVolume = sum
		at := loan.UpdatedAt
		if a.LastActivityAt == nil || at.After(*a.LastActivityAt) {
			a.LastActivityAt = &at
		}
	}

	if s.scoring != nil {
		s.scoring.mu.RLock()
		for _, ev := range s.scoring.data {
			if ev.Status == model.ScoringStatusInvalidated || ev.Status == model.ScoringStatusFailed {
				continue
			}
			a := row(ev.DomainTokenID)
			if a.DomainName == "" && ev.DomainName != "" {
				a.DomainName = ev.DomainName
			}
			a.ScoringRequests++
			if ev.AiScore != nil {
				score := *ev.AiScore
				a.LatestAiScore = &score
			}
			at := ev.UpdatedAt
			if a.LastActivityAt == nil || at.After(*a.LastActivityAt) {
				a.LastActivityAt = &at
			}
		}
		s.scoring.mu.RUnlock()
	}
	return nil
}

var _ store.DomainAnalyticsRepository = (*DomainAnalyticsStore)(nil)

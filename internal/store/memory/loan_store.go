package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
)

// LoanStore is an in-memory store.LoanRepository. The liquidation latch is
// a mutex-guarded compare-and-set with the same at-most-once semantics as
// the SQL implementation.
type LoanStore struct {
	mu   sync.RWMutex
	data map[string]*model.Loan // keyed by loan_id
}

func NewLoanStore() *LoanStore {
	return &LoanStore{data: make(map[string]*model.Loan)}
}

func (s *LoanStore) GetTx(ctx context.Context, _ *sql.Tx, loanID string) (*model.Loan, error) {
	return s.Get(ctx, loanID)
}

func (s *LoanStore) Get(_ context.Context, loanID string) (*model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, exists := s.data[loanID]
	if !exists {
		return nil, nil
	}
	cp := *loan
	return &cp, nil
}

func (s *LoanStore) UpsertTx(_ context.Context, _ *sql.Tx, loan *model.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *loan
	if existing, ok := s.data[loan.LoanID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.data[loan.LoanID] = &cp
	return nil
}

func (s *LoanStore) ListActiveUnattempted(_ context.Context) ([]model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var loans []model.Loan
	for _, loan := range s.data {
		if loan.Status == model.LoanStatusActive && !loan.LiquidationAttempted {
			loans = append(loans, *loan)
		}
	}
	sortLoans(loans)
	return loans, nil
}

func (s *LoanStore) ListAll(_ context.Context) ([]model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loans := make([]model.Loan, 0, len(s.data))
	for _, loan := range s.data {
		loans = append(loans, *loan)
	}
	sortLoans(loans)
	return loans, nil
}

func sortLoans(loans []model.Loan) {
	sort.Slice(loans, func(i, j int) bool { return loans[i].LoanID < loans[j].LoanID })
}

func (s *LoanStore) AcquireLiquidationLatch(_ context.Context, loanID string, attemptedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, exists := s.data[loanID]
	if !exists || loan.Status != model.LoanStatusActive || loan.LiquidationAttempted {
		return false, nil
	}
	loan.LiquidationAttempted = true
	ts := attemptedAt
	loan.LiquidationTimestamp = &ts
	loan.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *LoanStore) ReleaseLiquidationLatch(_ context.Context, loanID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, exists := s.data[loanID]
	if !exists || loan.LiquidationTxHash != nil {
		return nil
	}
	loan.LiquidationAttempted = false
	loan.LiquidationTimestamp = nil
	loan.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *LoanStore) RecordLiquidationOutcome(_ context.Context, loanID string, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loan, exists := s.data[loanID]
	if !exists {
		return nil
	}
	loan.LiquidationTxHash = &txHash
	loan.UpdatedAt = time.Now().UTC()
	return nil
}

var _ store.LoanRepository = (*LoanStore)(nil)

package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mfahriferdiansyah/domalend-sub000/internal/domain/model"
	"github.com/mfahriferdiansyah/domalend-sub000/internal/store"
)

// LoanRequestStore is an in-memory store.LoanRequestRepository.
type LoanRequestStore struct {
	mu   sync.RWMutex
	data map[string]*model.LoanRequest // keyed by request_id
}

func NewLoanRequestStore() *LoanRequestStore {
	return &LoanRequestStore{data: make(map[string]*model.LoanRequest)}
}

func (s *LoanRequestStore) GetTx(ctx context.Context, _ *sql.Tx, requestID string) (*model.LoanRequest, error) {
	return s.Get(ctx, requestID)
}

func (s *LoanRequestStore) Get(_ context.Context, requestID string) (*model.LoanRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, exists := s.data[requestID]
	if !exists {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (s *LoanRequestStore) UpsertTx(_ context.Context, _ *sql.Tx, req *model.LoanRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	if existing, ok := s.data[req.RequestID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.data[req.RequestID] = &cp
	return nil
}

var _ store.LoanRequestRepository = (*LoanRequestStore)(nil)

// LoanFundingStore is an in-memory store.LoanFundingRepository.
type LoanFundingStore struct {
	mu   sync.RWMutex
	rows []model.LoanFunding
	seen map[logKey]struct{}
}

func NewLoanFundingStore() *LoanFundingStore {
	return &LoanFundingStore{seen: make(map[logKey]struct{})}
}

func (s *LoanFundingStore) AppendTx(_ context.Context, _ *sql.Tx, f *model.LoanFunding) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := logKey{txHash: f.TxHash, logIndex: f.LogIndex}
	if _, dup := s.seen[key]; dup {
		return false, nil
	}
	s.seen[key] = struct{}{}
	cp := *f
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, cp)
	return true, nil
}

func (s *LoanFundingStore) ListByRequest(_ context.Context, requestID string) ([]model.LoanFunding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []model.LoanFunding
	for _, f := range s.rows {
		if f.RequestID == requestID {
			rows = append(rows, f)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].BlockNumber != rows[j].BlockNumber {
			return rows[i].BlockNumber < rows[j].BlockNumber
		}
		return rows[i].LogIndex < rows[j].LogIndex
	})
	return rows, nil
}

var _ store.LoanFundingRepository = (*LoanFundingStore)(nil)

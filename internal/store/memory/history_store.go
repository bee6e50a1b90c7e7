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

type logKey struct {
	txHash   string
	logIndex uint
}

// LoanHistoryStore is an in-memory store.LoanHistoryRepository.
type LoanHistoryStore struct {
	mu   sync.RWMutex
	rows []model.LoanHistory
	seen map[logKey]struct{}
}

func NewLoanHistoryStore() *LoanHistoryStore {
	return &LoanHistoryStore{seen: make(map[logKey]struct{})}
}

func (s *LoanHistoryStore) AppendTx(_ context.Context, _ *sql.Tx, h *model.LoanHistory) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := logKey{txHash: h.TxHash, logIndex: h.LogIndex}
	if _, dup := s.seen[key]; dup {
		return false, nil
	}
	s.seen[key] = struct{}{}
	cp := *h
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, cp)
	return true, nil
}

func (s *LoanHistoryStore) ListByLoan(_ context.Context, loanID string) ([]model.LoanHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []model.LoanHistory
	for _, h := range s.rows {
		if h.LoanID == loanID {
			rows = append(rows, h)
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

// PoolHistoryStore is an in-memory store.PoolHistoryRepository.
type PoolHistoryStore struct {
	mu   sync.RWMutex
	rows []model.PoolHistory
	seen map[logKey]struct{}
}

func NewPoolHistoryStore() *PoolHistoryStore {
	return &PoolHistoryStore{seen: make(map[logKey]struct{})}
}

func (s *PoolHistoryStore) AppendTx(_ context.Context, _ *sql.Tx, h *model.PoolHistory) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := logKey{txHash: h.TxHash, logIndex: h.LogIndex}
	if _, dup := s.seen[key]; dup {
		return false, nil
	}
	s.seen[key] = struct{}{}
	cp := *h
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, cp)
	return true, nil
}

func (s *PoolHistoryStore) ListByPool(_ context.Context, poolID string) ([]model.PoolHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []model.PoolHistory
	for _, h := range s.rows {
		if h.PoolID == poolID {
			rows = append(rows, h)
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

var (
	_ store.LoanHistoryRepository = (*LoanHistoryStore)(nil)
	_ store.PoolHistoryRepository = (*PoolHistoryStore)(nil)
)

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

// PoolStore is an in-memory store.PoolRepository.
type PoolStore struct {
	mu   sync.RWMutex
	data map[string]*model.Pool // keyed by pool_id
}

func NewPoolStore() *PoolStore {
	return &PoolStore{data: make(map[string]*model.Pool)}
}

func (s *PoolStore) GetTx(ctx context.Context, _ *sql.Tx, poolID string) (*model.Pool, error) {
	return s.Get(ctx, poolID)
}

func (s *PoolStore) Get(_ context.Context, poolID string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, exists := s.data[poolID]
	if !exists {
		return nil, nil
	}
	cp := *pool
	return &cp, nil
}

func (s *PoolStore) UpsertTx(_ context.Context, _ *sql.Tx, pool *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *pool
	if existing, ok := s.data[pool.PoolID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.data[pool.PoolID] = &cp
	return nil
}

func (s *PoolStore) ListAll(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pools := make([]model.Pool, 0, len(s.data))
	for _, pool := range s.data {
		pools = append(pools, *pool)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].PoolID < pools[j].PoolID })
	return pools, nil
}

var _ store.PoolRepository = (*PoolStore)(nil)

// AuctionStore is an in-memory store.AuctionRepository.
type AuctionStore struct {
	mu   sync.RWMutex
	data map[string]*model.Auction // keyed by auction_id
}

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{data: make(map[string]*model.Auction)}
}

func (s *AuctionStore) GetTx(ctx context.Context, _ *sql.Tx, auctionID string) (*model.Auction, error) {
	return s.Get(ctx, auctionID)
}

func (s *AuctionStore) Get(_ context.Context, auctionID string) (*model.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	auction, exists := s.data[auctionID]
	if !exists {
		return nil, nil
	}
	cp := *auction
	return &cp, nil
}

func (s *AuctionStore) UpsertTx(_ context.Context, _ *sql.Tx, auction *model.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *auction
	if existing, ok := s.data[auction.AuctionID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	cp.UpdatedAt = time.Now().UTC()
	s.data[auction.AuctionID] = &cp
	return nil
}

var _ store.AuctionRepository = (*AuctionStore)(nil)
